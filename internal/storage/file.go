package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "powerbot/pkg/logx"
)

// fileStore keeps the whole dataset in memory and writes a JSON snapshot
// on every mutation (temp file + rename, so a crash can't truncate state).
type fileStore struct {
	path string
	log  logx.Logger

	mu   sync.Mutex
	data map[string]map[string]json.RawMessage // bucket -> key -> value
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("file storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	st := &fileStore{path: cfg.Path, log: log, data: map[string]map[string]json.RawMessage{}}

	b, err := os.ReadFile(cfg.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// fresh store
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(b, &st.data); err != nil {
			// Don't silently wipe a corrupt snapshot; the operator should look at it.
			return nil, errors.New("corrupt storage snapshot: " + err.Error())
		}
	}
	return st, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.data[bucket]
	if b == nil {
		return nil, false, nil
	}
	v, ok := b[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *fileStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.data[bucket]
	if b == nil {
		b = map[string]json.RawMessage{}
		s.data[bucket] = b
	}
	b[key] = append([]byte(nil), value...)
	return s.flushLocked()
}

func (s *fileStore) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.data[bucket]
	if b == nil {
		return nil
	}
	if _, ok := b[key]; !ok {
		return nil
	}
	delete(b, key)
	if len(b) == 0 {
		delete(s.data, bucket)
	}
	return s.flushLocked()
}

func (s *fileStore) Keys(ctx context.Context, bucket string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.data[bucket]
	if len(b) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(b))
	for k := range b {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *fileStore) flushLocked() error {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
