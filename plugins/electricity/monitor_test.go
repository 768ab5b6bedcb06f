package electricity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"powerbot/internal/core"
	kit "powerbot/internal/transport"
	logx "powerbot/pkg/logx"
)

func f64(v float64) *float64 { return &v }

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		prev      *float64
		cur       float64
		threshold float64
		want      EventKind
		wantDelta float64
	}{
		{"first check seeds baseline", nil, 12.5, 30, EventNone, 0},
		{"decrease above threshold", f64(50), 45, 30, EventNone, 0},
		{"crossing below threshold", f64(45), 25, 30, EventLowBalance, 0},
		{"already below, no re-alert", f64(25), 20, 30, EventNone, 0},
		{"recharge from below threshold", f64(20), 60, 30, EventRecharge, 40},
		{"recharge above threshold", f64(50), 80, 30, EventRecharge, 30},
		{"unchanged balance", f64(30), 30, 30, EventNone, 0},
		{"drop exactly to threshold is not below", f64(35), 30, 30, EventNone, 0},
		{"drop from exactly threshold", f64(30), 25, 30, EventLowBalance, 0},
		{"drop to zero crossing", f64(31), 0, 30, EventLowBalance, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, delta := classify(tc.prev, tc.cur, tc.threshold)
			if got != tc.want {
				t.Fatalf("classify(%v, %v, %v) = %v, want %v", tc.prev, tc.cur, tc.threshold, got, tc.want)
			}
			if delta != tc.wantDelta {
				t.Fatalf("delta = %v, want %v", delta, tc.wantDelta)
			}
		})
	}
}

type fakeClient struct {
	fetchFn func(token string) (Reading, error)
	loginFn func(account, password string) (string, error)

	fetchCalls int
	loginCalls int
}

func (c *fakeClient) FetchBalance(ctx context.Context, token string) (Reading, error) {
	c.fetchCalls++
	return c.fetchFn(token)
}

func (c *fakeClient) Login(ctx context.Context, account, password string) (string, error) {
	c.loginCalls++
	if c.loginFn == nil {
		return "", errors.New("login not configured")
	}
	return c.loginFn(account, password)
}

func newTestPlugin(cfg Config, client portalClient) *Plugin {
	p := New()
	p.Log = logx.Nop()
	p.cfg = cfg
	p.client = client
	return p
}

func TestRunCycleSeedsBaselineWithoutEvent(t *testing.T) {
	fc := &fakeClient{fetchFn: func(string) (Reading, error) {
		return Reading{RoomName: "A-101", Balance: 12.0}, nil
	}}
	p := newTestPlugin(Config{Token: "tok", Threshold: 30}, fc)

	res := p.runCycle(context.Background())
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %v, want success", res.Outcome)
	}
	// 12 is below the threshold, but there is no previous value to cross from
	if res.Event != EventNone {
		t.Fatalf("event = %v, want none on first check", res.Event)
	}
	if p.state.LastBalance == nil || *p.state.LastBalance != 12.0 {
		t.Fatalf("baseline not recorded: %v", p.state.LastBalance)
	}
	if p.state.LastCheck.IsZero() {
		t.Fatalf("last check time not recorded")
	}
}

func TestRunCycleScenarioSequence(t *testing.T) {
	balance := 0.0
	fc := &fakeClient{fetchFn: func(string) (Reading, error) {
		return Reading{RoomName: "A-101", Balance: balance}, nil
	}}
	p := newTestPlugin(Config{Token: "tok", Threshold: 30}, fc)

	steps := []struct {
		balance   float64
		wantEvent EventKind
		wantDelta float64
	}{
		{50, EventNone, 0}, // baseline
		{45, EventNone, 0},
		{25, EventLowBalance, 0},
		{20, EventNone, 0}, // still below, no repeat alert
		{60, EventRecharge, 40},
	}
	for i, st := range steps {
		balance = st.balance
		res := p.runCycle(context.Background())
		if res.Outcome != OutcomeSuccess {
			t.Fatalf("step %d: outcome = %v", i, res.Outcome)
		}
		if res.Event != st.wantEvent {
			t.Fatalf("step %d (balance %v): event = %v, want %v", i, st.balance, res.Event, st.wantEvent)
		}
		if res.Delta != st.wantDelta {
			t.Fatalf("step %d: delta = %v, want %v", i, res.Delta, st.wantDelta)
		}
	}
}

func TestRunCycleRefreshesExpiredToken(t *testing.T) {
	fc := &fakeClient{}
	fc.fetchFn = func(token string) (Reading, error) {
		if token == "stale" {
			return Reading{}, fmt.Errorf("%w: 登录过期", errAuthExpired)
		}
		return Reading{Balance: 42}, nil
	}
	fc.loginFn = func(account, password string) (string, error) {
		if account != "user" || password != "pass" {
			return "", errors.New("bad credentials")
		}
		return "fresh", nil
	}
	p := newTestPlugin(Config{
		Token: "stale", Account: "user", Password: "pass",
		AutoRefreshToken: true, Threshold: 30,
	}, fc)

	res := p.runCycle(context.Background())
	if res.Outcome != OutcomeAuthRefreshed {
		t.Fatalf("outcome = %v, want auth_refreshed (err=%v)", res.Outcome, res.Err)
	}
	if res.Reading.Balance != 42 {
		t.Fatalf("balance = %v, want 42", res.Reading.Balance)
	}
	if fc.loginCalls != 1 || fc.fetchCalls != 2 {
		t.Fatalf("calls: login=%d fetch=%d, want 1 login and 2 fetches", fc.loginCalls, fc.fetchCalls)
	}
	p.mu.RLock()
	tok := p.cfg.Token
	p.mu.RUnlock()
	if tok != "fresh" {
		t.Fatalf("token = %q, want refreshed token", tok)
	}
}

func TestRunCycleRefreshFailureKeepsState(t *testing.T) {
	fc := &fakeClient{}
	fc.fetchFn = func(string) (Reading, error) {
		return Reading{}, fmt.Errorf("%w: 请先登录", errAuthExpired)
	}
	fc.loginFn = func(string, string) (string, error) {
		return "", errors.New("portal down")
	}
	p := newTestPlugin(Config{
		Token: "stale", Account: "user", Password: "pass",
		AutoRefreshToken: true, Threshold: 30,
	}, fc)
	prev := 55.0
	p.state.LastBalance = &prev

	res := p.runCycle(context.Background())
	if res.Outcome != OutcomeAuthExpired {
		t.Fatalf("outcome = %v, want auth_expired", res.Outcome)
	}
	if res.Err == nil {
		t.Fatalf("expected error in result")
	}
	if fc.loginCalls != 1 {
		t.Fatalf("login calls = %d, want exactly 1", fc.loginCalls)
	}
	if p.state.LastBalance == nil || *p.state.LastBalance != 55.0 {
		t.Fatalf("failed check must not touch the recorded balance")
	}
}

func TestRunCycleRefreshDisabled(t *testing.T) {
	fc := &fakeClient{}
	fc.fetchFn = func(string) (Reading, error) {
		return Reading{}, fmt.Errorf("%w: 未登录", errAuthExpired)
	}
	p := newTestPlugin(Config{Token: "stale", Account: "user", Password: "pass"}, fc)

	res := p.runCycle(context.Background())
	if res.Outcome != OutcomeAuthExpired {
		t.Fatalf("outcome = %v, want auth_expired", res.Outcome)
	}
	if fc.loginCalls != 0 {
		t.Fatalf("login must not be attempted when auto refresh is off, got %d calls", fc.loginCalls)
	}
}

func TestRunCycleSingleRefreshPerCycle(t *testing.T) {
	fc := &fakeClient{}
	fc.fetchFn = func(string) (Reading, error) {
		// even the refreshed token is rejected
		return Reading{}, fmt.Errorf("%w: token过期", errAuthExpired)
	}
	fc.loginFn = func(string, string) (string, error) { return "fresh", nil }
	p := newTestPlugin(Config{
		Token: "stale", Account: "user", Password: "pass",
		AutoRefreshToken: true,
	}, fc)

	res := p.runCycle(context.Background())
	if res.Outcome != OutcomeAuthExpired {
		t.Fatalf("outcome = %v, want auth_expired", res.Outcome)
	}
	if fc.loginCalls != 1 || fc.fetchCalls != 2 {
		t.Fatalf("calls: login=%d fetch=%d, want at most one refresh and one retry", fc.loginCalls, fc.fetchCalls)
	}
}

func TestRunCycleLoginFirstWhenNoToken(t *testing.T) {
	fc := &fakeClient{}
	fc.fetchFn = func(token string) (Reading, error) {
		if token != "fresh" {
			return Reading{}, fmt.Errorf("%w: no session token", errAuthExpired)
		}
		return Reading{Balance: 10}, nil
	}
	fc.loginFn = func(string, string) (string, error) { return "fresh", nil }
	p := newTestPlugin(Config{
		Account: "user", Password: "pass", AutoRefreshToken: true,
	}, fc)

	res := p.runCycle(context.Background())
	if res.Outcome != OutcomeAuthRefreshed {
		t.Fatalf("outcome = %v, want auth_refreshed (err=%v)", res.Outcome, res.Err)
	}
	if fc.loginCalls != 1 || fc.fetchCalls != 1 {
		t.Fatalf("calls: login=%d fetch=%d, want pre-login then a single fetch", fc.loginCalls, fc.fetchCalls)
	}
}

func TestRunCycleNoCredentials(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"nothing configured", Config{}},
		{"refresh disabled", Config{Account: "user", Password: "pass"}},
		{"missing password", Config{Account: "user", AutoRefreshToken: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeClient{fetchFn: func(string) (Reading, error) {
				t.Error("fetch must not run without a token")
				return Reading{}, nil
			}}
			p := newTestPlugin(tc.cfg, fc)

			res := p.runCycle(context.Background())
			if res.Outcome != OutcomeFailure || !errors.Is(res.Err, errNoCredentials) {
				t.Fatalf("got outcome=%v err=%v, want no-credentials failure", res.Outcome, res.Err)
			}
			if fc.loginCalls != 0 {
				t.Fatalf("login calls = %d, want 0", fc.loginCalls)
			}
		})
	}
}

type fakeNotifier struct {
	sent []kit.Notification
}

func (n *fakeNotifier) Notify(ctx context.Context, msg kit.Notification) error {
	n.sent = append(n.sent, msg)
	return nil
}

func (n *fakeNotifier) History() []kit.NotificationRecord {
	out := make([]kit.NotificationRecord, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, kit.NotificationRecord{Text: m.Text})
	}
	return out
}

func TestBackgroundAuthExpiredNotifiesOnce(t *testing.T) {
	p := newTestPlugin(Config{Token: "tok"}, &fakeClient{})
	fn := &fakeNotifier{}
	p.Deps.Services = &core.Services{Notifier: fn}
	p.subs.Add(kit.ChatTarget{ChatID: 1})
	p.subs.Add(kit.ChatTarget{ChatID: 2})

	ctx := context.Background()
	expired := CheckResult{Outcome: OutcomeAuthExpired, Err: errAuthExpired}
	bg := checkRequest{} // scheduled, not manual

	p.handleResult(ctx, bg, expired)
	if len(fn.sent) != 2 {
		t.Fatalf("notifications = %d, want one per subscriber", len(fn.sent))
	}

	// next failing tick stays quiet
	p.handleResult(ctx, bg, expired)
	if len(fn.sent) != 2 {
		t.Fatalf("repeated auth failure re-notified, sent = %d", len(fn.sent))
	}

	// a successful check re-arms the alert
	p.handleResult(ctx, bg, CheckResult{Outcome: OutcomeSuccess, Reading: Reading{Balance: 50}})
	p.handleResult(ctx, bg, expired)
	if len(fn.sent) != 4 {
		t.Fatalf("alert not re-armed after success, sent = %d", len(fn.sent))
	}
}

func TestManualAuthExpiredDoesNotFanOut(t *testing.T) {
	p := newTestPlugin(Config{Token: "tok"}, &fakeClient{})
	fn := &fakeNotifier{}
	p.Deps.Services = &core.Services{Notifier: fn}
	p.subs.Add(kit.ChatTarget{ChatID: 1})

	p.handleResult(context.Background(), checkRequest{manual: true},
		CheckResult{Outcome: OutcomeAuthExpired, Err: errAuthExpired})
	if len(fn.sent) != 0 {
		t.Fatalf("manual failure was broadcast to subscribers: %d", len(fn.sent))
	}
}

func TestRequestCheckBusyWhileCycleRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fc := &fakeClient{}
	fc.fetchFn = func(string) (Reading, error) {
		started <- struct{}{}
		<-release
		return Reading{Balance: 1}, nil
	}
	p := newTestPlugin(Config{Token: "tok"}, fc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.monitorLoop(ctx)
	}()

	firstErr := make(chan error, 1)
	go func() {
		_, err := p.RequestCheck(ctx)
		firstErr <- err
	}()

	// the first request is now inside FetchBalance
	<-started

	if _, err := p.RequestCheck(ctx); !errors.Is(err, ErrCheckInProgress) {
		t.Fatalf("err = %v, want ErrCheckInProgress while a cycle is in flight", err)
	}

	close(release)
	if err := <-firstErr; err != nil {
		t.Fatalf("first check: %v", err)
	}
	if fc.fetchCalls != 1 {
		t.Fatalf("fetch calls = %d; the rejected request must not run a cycle of its own", fc.fetchCalls)
	}

	cancel()
	<-done
}

func TestRequestCheckBusyWithoutMonitor(t *testing.T) {
	p := newTestPlugin(Config{Token: "tok"}, &fakeClient{
		fetchFn: func(string) (Reading, error) { return Reading{Balance: 1}, nil },
	})

	// no monitor goroutine is at the receive, so nothing can take the request
	_, err := p.RequestCheck(context.Background())
	if !errors.Is(err, ErrCheckInProgress) {
		t.Fatalf("err = %v, want ErrCheckInProgress", err)
	}
}

func TestRequestCheckThroughMonitorLoop(t *testing.T) {
	fc := &fakeClient{fetchFn: func(string) (Reading, error) {
		return Reading{RoomName: "B-202", Balance: 77}, nil
	}}
	p := newTestPlugin(Config{Token: "tok", Threshold: 30}, fc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.monitorLoop(ctx)
	}()

	res, err := p.RequestCheck(ctx)
	if err != nil {
		t.Fatalf("RequestCheck: %v", err)
	}
	if res.Outcome != OutcomeSuccess || res.Reading.Balance != 77 {
		t.Fatalf("unexpected result: %+v", res)
	}

	cancel()
	<-done
}
