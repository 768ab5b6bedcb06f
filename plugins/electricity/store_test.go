package electricity

import (
	"context"
	"path/filepath"
	"testing"

	"powerbot/internal/storage"
	kit "powerbot/internal/transport"
	logx "powerbot/pkg/logx"
)

func TestSubscriptionsAddRemove(t *testing.T) {
	s := newSubscriptions()
	a := kit.ChatTarget{ChatID: 100}
	b := kit.ChatTarget{ChatID: 200, ThreadID: 7}

	if !s.Add(a) {
		t.Fatalf("first Add returned false")
	}
	if s.Add(a) {
		t.Fatalf("duplicate Add returned true")
	}
	if !s.Add(b) {
		t.Fatalf("Add(b) returned false")
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
	if !s.Contains(a) || !s.Contains(b) {
		t.Fatalf("Contains failed")
	}

	list := s.List()
	if len(list) != 2 || list[0] != a || list[1] != b {
		t.Fatalf("subscription order lost: %v", list)
	}

	if !s.Remove(a) {
		t.Fatalf("Remove returned false for subscribed chat")
	}
	if s.Remove(a) {
		t.Fatalf("Remove returned true for unsubscribed chat")
	}
	if s.Contains(a) || s.Len() != 1 {
		t.Fatalf("remove did not take effect")
	}
}

func newFileStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{
		Driver: "file",
		Path:   filepath.Join(t.TempDir(), "state.json"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newFileStore(t)

	p := New()
	p.Log = logx.Nop()
	p.Deps.Store = st

	p.subs.Add(kit.ChatTarget{ChatID: 300})
	p.subs.Add(kit.ChatTarget{ChatID: 100})
	p.persistSubscriptions(ctx)

	bal := 48.5
	p.state.LastBalance = &bal
	p.persistState(ctx)

	thr := 25.0
	p.ovr.Threshold = &thr
	p.persistOverrides(ctx)

	p.persistToken(ctx, "tok-abc")

	// a fresh plugin sharing the same store sees everything back
	q := New()
	q.Log = logx.Nop()
	q.Deps.Store = st
	q.loadPersisted(ctx)

	if q.cfg.Token != "tok-abc" {
		t.Fatalf("token = %q, want tok-abc", q.cfg.Token)
	}
	if q.state.LastBalance == nil || *q.state.LastBalance != 48.5 {
		t.Fatalf("state not restored: %v", q.state.LastBalance)
	}
	if q.ovr.Threshold == nil || *q.ovr.Threshold != 25.0 {
		t.Fatalf("overrides not restored: %v", q.ovr.Threshold)
	}
	if q.subs.Len() != 2 {
		t.Fatalf("subscriptions not restored, len = %d", q.subs.Len())
	}
	if !q.subs.Contains(kit.ChatTarget{ChatID: 100}) || !q.subs.Contains(kit.ChatTarget{ChatID: 300}) {
		t.Fatalf("wrong subscribers restored: %v", q.subs.List())
	}
}

func TestConfigTokenWinsOverPersisted(t *testing.T) {
	ctx := context.Background()
	st := newFileStore(t)

	p := New()
	p.Log = logx.Nop()
	p.Deps.Store = st
	p.persistToken(ctx, "old-persisted")

	q := New()
	q.Log = logx.Nop()
	q.Deps.Store = st
	q.cfg.Token = "from-config"
	q.loadPersisted(ctx)

	if q.cfg.Token != "from-config" {
		t.Fatalf("token = %q, config token must not be overwritten", q.cfg.Token)
	}
}

func TestPersistTokenDeleteOnEmpty(t *testing.T) {
	ctx := context.Background()
	st := newFileStore(t)

	p := New()
	p.Log = logx.Nop()
	p.Deps.Store = st
	p.persistToken(ctx, "tok")
	p.persistToken(ctx, "")

	if _, ok, err := st.Get(ctx, storeBucket, keyToken); err != nil || ok {
		t.Fatalf("token should be deleted, got ok=%v err=%v", ok, err)
	}
}

func TestPersistHelpersNilStore(t *testing.T) {
	ctx := context.Background()
	p := New()
	p.Log = logx.Nop()

	// all persistence is a no-op without a store
	p.loadPersisted(ctx)
	p.persistToken(ctx, "tok")
	p.persistState(ctx)
	p.persistOverrides(ctx)
	p.persistSubscriptions(ctx)
}
