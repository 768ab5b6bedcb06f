package electricity

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	kit "powerbot/internal/transport"
	logx "powerbot/pkg/logx"
)

const (
	storeBucket = "electricity"

	keyToken         = "token"
	keyState         = "state"
	keyOverrides     = "overrides"
	keySubscriptions = "subscriptions"
)

// subscriptions is an ordered set of chats that receive balance notifications.
type subscriptions struct {
	mu    sync.Mutex
	set   map[kit.ChatTarget]struct{}
	order []kit.ChatTarget
}

func newSubscriptions() *subscriptions {
	return &subscriptions{set: map[kit.ChatTarget]struct{}{}}
}

// Add returns false if the target was already subscribed.
func (s *subscriptions) Add(t kit.ChatTarget) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[t]; ok {
		return false
	}
	s.set[t] = struct{}{}
	s.order = append(s.order, t)
	return true
}

// Remove returns false if the target was not subscribed.
func (s *subscriptions) Remove(t kit.ChatTarget) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[t]; !ok {
		return false
	}
	delete(s.set, t)
	for i := range s.order {
		if s.order[i] == t {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *subscriptions) Contains(t kit.ChatTarget) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[t]
	return ok
}

// List returns subscribers in subscription order.
func (s *subscriptions) List() []kit.ChatTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]kit.ChatTarget(nil), s.order...)
}

func (s *subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *subscriptions) replace(list []kit.ChatTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = make(map[kit.ChatTarget]struct{}, len(list))
	s.order = s.order[:0]
	for _, t := range list {
		if _, ok := s.set[t]; ok {
			continue
		}
		s.set[t] = struct{}{}
		s.order = append(s.order, t)
	}
}

// ---- persistence ----
// All helpers are best-effort: a nil store (persistence disabled) is fine,
// and load errors fall back to empty state with a warning.

func (p *Plugin) loadPersisted(ctx context.Context) {
	if p.Deps.Store == nil {
		return
	}

	if b, ok, err := p.Deps.Store.Get(ctx, storeBucket, keyToken); err == nil && ok {
		p.mu.Lock()
		if p.cfg.Token == "" {
			p.cfg.Token = string(b)
		}
		p.mu.Unlock()
	} else if err != nil {
		p.Log.Warn("load token failed", logx.Err(err))
	}

	if b, ok, err := p.Deps.Store.Get(ctx, storeBucket, keyState); err == nil && ok {
		var st monitorState
		if err := json.Unmarshal(b, &st); err != nil {
			p.Log.Warn("load state failed", logx.Err(err))
		} else {
			p.stateMu.Lock()
			p.state = st
			p.stateMu.Unlock()
		}
	} else if err != nil {
		p.Log.Warn("load state failed", logx.Err(err))
	}

	if b, ok, err := p.Deps.Store.Get(ctx, storeBucket, keyOverrides); err == nil && ok {
		var ovr overrides
		if err := json.Unmarshal(b, &ovr); err != nil {
			p.Log.Warn("load overrides failed", logx.Err(err))
		} else {
			p.mu.Lock()
			p.ovr = ovr
			p.mu.Unlock()
		}
	} else if err != nil {
		p.Log.Warn("load overrides failed", logx.Err(err))
	}

	if b, ok, err := p.Deps.Store.Get(ctx, storeBucket, keySubscriptions); err == nil && ok {
		var list []kit.ChatTarget
		if err := json.Unmarshal(b, &list); err != nil {
			p.Log.Warn("load subscriptions failed", logx.Err(err))
		} else {
			p.subs.replace(list)
		}
	} else if err != nil {
		p.Log.Warn("load subscriptions failed", logx.Err(err))
	}
}

func (p *Plugin) persistToken(ctx context.Context, token string) {
	if p.Deps.Store == nil {
		return
	}
	var err error
	if token == "" {
		err = p.Deps.Store.Delete(ctx, storeBucket, keyToken)
	} else {
		err = p.Deps.Store.Put(ctx, storeBucket, keyToken, []byte(token))
	}
	if err != nil {
		p.Log.Warn("persist token failed", logx.Err(err))
	}
}

func (p *Plugin) persistState(ctx context.Context) {
	if p.Deps.Store == nil {
		return
	}
	p.stateMu.Lock()
	b, err := json.Marshal(p.state)
	p.stateMu.Unlock()
	if err == nil {
		err = p.Deps.Store.Put(ctx, storeBucket, keyState, b)
	}
	if err != nil {
		p.Log.Warn("persist state failed", logx.Err(err))
	}
}

func (p *Plugin) persistOverrides(ctx context.Context) {
	if p.Deps.Store == nil {
		return
	}
	p.mu.RLock()
	b, err := json.Marshal(p.ovr)
	p.mu.RUnlock()
	if err == nil {
		err = p.Deps.Store.Put(ctx, storeBucket, keyOverrides, b)
	}
	if err != nil {
		p.Log.Warn("persist overrides failed", logx.Err(err))
	}
}

func (p *Plugin) persistSubscriptions(ctx context.Context) {
	if p.Deps.Store == nil {
		return
	}
	list := p.subs.List()
	// stable order on disk regardless of subscription order
	sort.Slice(list, func(i, j int) bool {
		if list[i].ChatID != list[j].ChatID {
			return list[i].ChatID < list[j].ChatID
		}
		return list[i].ThreadID < list[j].ThreadID
	})
	b, err := json.Marshal(list)
	if err == nil {
		err = p.Deps.Store.Put(ctx, storeBucket, keySubscriptions, b)
	}
	if err != nil {
		p.Log.Warn("persist subscriptions failed", logx.Err(err))
	}
}
