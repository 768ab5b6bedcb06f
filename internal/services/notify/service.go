// Package notify delivers user-facing notifications through the chat adapter.
//
// Messages are tagged by priority (ℹ️ / ⚠️ / 🚨) and rate limited so a
// misbehaving plugin cannot flood the chat. A small bounded history is
// kept for status commands.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "powerbot/internal/transport"
	logx "powerbot/pkg/logx"
)

var ErrNoTarget = errors.New("notification has no target chat")

type Service struct {
	adapter kit.Adapter
	log     logx.Logger
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []kit.NotificationRecord
}

func New(adapter kit.Adapter, log logx.Logger) *Service {
	return &Service{
		adapter: adapter,
		log:     log,
		// 3 msgs/sec with a small burst; Telegram throttles above ~30/sec globally anyway.
		limiter: rate.NewLimiter(rate.Limit(3), 5),
	}
}

func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	if n.Target.ChatID == 0 {
		return ErrNoTarget
	}
	text := prefixForPriority(n.Priority) + n.Text
	if text == "" {
		return nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := s.adapter.SendText(ctx, n.Target, text, n.Options)
	if err != nil {
		s.log.Warn("notify send failed", logx.Int64("chat_id", n.Target.ChatID), logx.Err(err))
		return err
	}

	s.appendHistory(text)
	return nil
}

// History returns the delivered notifications kept for status views,
// oldest first.
func (s *Service) History() []kit.NotificationRecord {
	s.hmu.Lock()
	out := append([]kit.NotificationRecord(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) Stop(ctx context.Context) { /* nothing to drain; sends are synchronous */ }

func (s *Service) appendHistory(text string) {
	s.hmu.Lock()
	s.history = append(s.history, kit.NotificationRecord{At: time.Now(), Text: text})
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func prefixForPriority(p int) string {
	switch {
	case p >= 9:
		return "🚨 "
	case p >= 7:
		return "⚠️ "
	case p >= 5:
		return "ℹ️ "
	default:
		return ""
	}
}
