package electricity

import (
	"context"
	"strings"
	"testing"
	"time"

	"powerbot/internal/core"
	kit "powerbot/internal/transport"
)

type fakeAdapter struct {
	texts []string
}

func (a *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (a *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.texts = append(a.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(a.texts)}, nil
}

func (a *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return nil
}

type fakeScheduler struct {
	snap core.Snapshot
}

func (s *fakeScheduler) Enabled() bool           { return true }
func (s *fakeScheduler) Snapshot() core.Snapshot { return s.snap }

func (s *fakeScheduler) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return "", nil
}

func (s *fakeScheduler) AddInterval(name string, every time.Duration, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return "", nil
}

func (s *fakeScheduler) Remove(name string) bool { return false }

func TestStatusShowsScheduleAndAlertHistory(t *testing.T) {
	p := newTestPlugin(Config{Token: "tok"}, &fakeClient{})
	next := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	p.Deps.Services = &core.Services{
		Scheduler: &fakeScheduler{snap: core.Snapshot{
			Schedules: []core.ScheduleInfo{
				{Name: "other:job", Next: next.Add(time.Hour)},
				{Name: "electricity:auto", Next: next},
			},
		}},
		Notifier: &fakeNotifier{sent: []kit.Notification{{Text: "balance is low"}}},
	}

	ad := &fakeAdapter{}
	req := &core.Request{Adapter: ad, Chat: kit.ChatTarget{ChatID: 9}}
	if err := p.cmdStatus(context.Background(), req); err != nil {
		t.Fatalf("cmdStatus: %v", err)
	}
	if len(ad.texts) != 1 {
		t.Fatalf("replies = %d, want 1", len(ad.texts))
	}

	got := ad.texts[0]
	if !strings.Contains(got, "Next auto check: 2026-03-01 08:30:00") {
		t.Fatalf("status is missing the next scheduled run:\n%s", got)
	}
	if !strings.Contains(got, "Alerts delivered: 1") {
		t.Fatalf("status is missing the alert history line:\n%s", got)
	}
}

func TestStatusWithoutServices(t *testing.T) {
	p := newTestPlugin(Config{Token: "tok"}, &fakeClient{})

	ad := &fakeAdapter{}
	req := &core.Request{Adapter: ad, Chat: kit.ChatTarget{ChatID: 9}}
	if err := p.cmdStatus(context.Background(), req); err != nil {
		t.Fatalf("cmdStatus: %v", err)
	}
	if len(ad.texts) != 1 {
		t.Fatalf("replies = %d, want 1", len(ad.texts))
	}
	if strings.Contains(ad.texts[0], "Next auto check") {
		t.Fatalf("status must omit the next-run line without a scheduler:\n%s", ad.texts[0])
	}
}
