package scheduler

import (
	"context"
	"testing"
	"time"

	logx "powerbot/pkg/logx"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := New(Config{Enabled: true, Workers: 1}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		s.Stop(context.Background())
		cancel()
	})
	return s
}

func noop(ctx context.Context) error { return nil }

func TestAddIntervalUpsertsByName(t *testing.T) {
	s := newTestService(t)

	id1, err := s.AddInterval("job", time.Hour, 0, noop)
	if err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	id2, err := s.AddInterval("job", 30*time.Minute, 0, noop)
	if err != nil {
		t.Fatalf("AddInterval replace: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("replacement should get a new id")
	}

	snap := s.Snapshot()
	if len(snap.Schedules) != 1 {
		t.Fatalf("schedules = %d, want 1 after upsert", len(snap.Schedules))
	}
	if snap.Schedules[0].Spec != "@every 30m0s" {
		t.Fatalf("spec = %q, want the replacement interval", snap.Schedules[0].Spec)
	}
	if snap.Schedules[0].Next.IsZero() {
		t.Fatalf("registered schedule has no next run time")
	}
}

func TestAddIntervalRejectsNonPositive(t *testing.T) {
	s := newTestService(t)
	if _, err := s.AddInterval("job", 0, 0, noop); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

func TestAddCronValidatesSpec(t *testing.T) {
	s := newTestService(t)
	if _, err := s.AddCron("bad", "not a cron spec", 0, noop); err == nil {
		t.Fatalf("expected parse error")
	}
	if len(s.Snapshot().Schedules) != 0 {
		t.Fatalf("failed registration must not leave a schedule behind")
	}
}

func TestAddCronAcceptsSecondsField(t *testing.T) {
	s := newTestService(t)
	if _, err := s.AddCron("with-seconds", "0 0 3 * * *", 0, noop); err != nil {
		t.Fatalf("6-field spec rejected: %v", err)
	}
	if _, err := s.AddCron("without-seconds", "0 3 * * *", 0, noop); err != nil {
		t.Fatalf("5-field spec rejected: %v", err)
	}
}

func TestRemove(t *testing.T) {
	s := newTestService(t)
	if _, err := s.AddInterval("job", time.Hour, 0, noop); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if !s.Remove("job") {
		t.Fatalf("Remove returned false for registered schedule")
	}
	if s.Remove("job") {
		t.Fatalf("Remove returned true for missing schedule")
	}
	if len(s.Snapshot().Schedules) != 0 {
		t.Fatalf("schedule still present after Remove")
	}
}

func TestAddBeforeStart(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop())
	if _, err := s.AddInterval("job", time.Hour, 0, noop); err == nil {
		t.Fatalf("expected error before Start")
	}
}

func TestExecOneSkipsWhileRunning(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop())

	release := make(chan struct{})
	started := make(chan struct{})
	st := &runState{}
	slow := task{id: "t1", name: "slow", state: st, run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}

	go s.execOne(context.Background(), slow)
	<-started

	// the same job must be skipped while the first run is in flight
	s.execOne(context.Background(), task{id: "t1", name: "slow", state: st, run: func(ctx context.Context) error {
		t.Error("overlapping run was not skipped")
		return nil
	}})

	close(release)

	deadline := time.After(2 * time.Second)
	for {
		snap := s.Snapshot()
		if len(snap.History) == 1 {
			if snap.History[0].Name != "slow" || snap.History[0].Error != "" {
				t.Fatalf("unexpected history item: %+v", snap.History[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("history = %d items, want 1", len(snap.History))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestHistoryBounded(t *testing.T) {
	s := New(Config{Enabled: true, HistorySize: 3}, logx.Nop())
	for i := 0; i < 10; i++ {
		s.execOne(context.Background(), task{id: "t", name: "n", run: noop})
	}
	if got := len(s.Snapshot().History); got != 3 {
		t.Fatalf("history = %d items, want 3", got)
	}
}
