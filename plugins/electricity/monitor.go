package electricity

import (
	"context"
	"errors"
	"fmt"
	"time"

	logx "powerbot/pkg/logx"
)

// ErrCheckInProgress is returned when a manual check is requested while
// another check is still pending or running.
var ErrCheckInProgress = errors.New("balance check already in progress")

// errNoCredentials: no token and no way to obtain one.
var errNoCredentials = errors.New("no token configured and auto refresh is unavailable")

type checkRequest struct {
	manual bool
	reply  chan CheckResult // nil for scheduled checks
}

// RequestCheck runs a manual check through the monitor goroutine and waits
// for its result. At most one check runs at a time; a request arriving
// while a cycle is in flight fails with ErrCheckInProgress rather than
// queueing a second cycle.
func (p *Plugin) RequestCheck(ctx context.Context) (CheckResult, error) {
	reply := make(chan CheckResult, 1)
	select {
	case p.reqCh <- checkRequest{manual: true, reply: reply}:
	default:
		return CheckResult{}, ErrCheckInProgress
	}

	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return CheckResult{}, ctx.Err()
	}
}

// triggerScheduled hands a background check to the monitor. Skips silently
// when a check is already running; the next tick will try again.
func (p *Plugin) triggerScheduled() {
	select {
	case p.reqCh <- checkRequest{}:
	default:
		p.Log.Debug("check already running; skipping tick")
	}
}

// monitorLoop is the single goroutine that owns check execution.
// Everything else talks to it via reqCh.
func (p *Plugin) monitorLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-p.reqCh:
			res := p.runCycle(ctx)

			p.handleResult(ctx, req, res)

			if req.reply != nil {
				req.reply <- res
			}
		}
	}
}

// runCycle performs one full check: fetch, optional token refresh with a
// single retried fetch, classification, and state persistence.
func (p *Plugin) runCycle(ctx context.Context) CheckResult {
	cfg := p.effectiveConfig()

	p.mu.RLock()
	token := p.cfg.Token
	client := p.client
	p.mu.RUnlock()

	outcome := OutcomeSuccess

	if token == "" {
		if !cfg.AutoRefreshToken || cfg.Account == "" || cfg.Password == "" {
			return CheckResult{Outcome: OutcomeFailure, Err: errNoCredentials}
		}
		// No token yet: log in first instead of burning a fetch we know will fail.
		tok, err := p.refreshToken(ctx, client, cfg)
		if err != nil {
			return CheckResult{Outcome: OutcomeAuthExpired, Err: err}
		}
		token = tok
		outcome = OutcomeAuthRefreshed
	}

	reading, err := client.FetchBalance(ctx, token)
	if errors.Is(err, errAuthExpired) && outcome != OutcomeAuthRefreshed {
		if !cfg.AutoRefreshToken || cfg.Account == "" || cfg.Password == "" {
			return CheckResult{Outcome: OutcomeAuthExpired, Err: err}
		}
		tok, lerr := p.refreshToken(ctx, client, cfg)
		if lerr != nil {
			return CheckResult{Outcome: OutcomeAuthExpired, Err: lerr}
		}
		// one retried fetch, never more than one refresh per cycle
		reading, err = client.FetchBalance(ctx, tok)
		if err != nil {
			if errors.Is(err, errAuthExpired) {
				return CheckResult{Outcome: OutcomeAuthExpired, Err: err}
			}
			return CheckResult{Outcome: OutcomeFailure, Err: err}
		}
		outcome = OutcomeAuthRefreshed
	} else if err != nil {
		if errors.Is(err, errAuthExpired) {
			return CheckResult{Outcome: OutcomeAuthExpired, Err: err}
		}
		return CheckResult{Outcome: OutcomeFailure, Err: err}
	}

	// classify against previous balance, then advance state
	p.stateMu.Lock()
	prev := p.state.LastBalance
	event, delta := classify(prev, reading.Balance, cfg.Threshold)
	bal := reading.Balance
	p.state.LastBalance = &bal
	p.state.LastCheck = time.Now()
	p.stateMu.Unlock()
	p.persistState(ctx)

	return CheckResult{Outcome: outcome, Reading: reading, Event: event, Delta: delta}
}

// refreshToken logs in and persists the fresh token.
func (p *Plugin) refreshToken(ctx context.Context, client portalClient, cfg Config) (string, error) {
	tok, err := client.Login(ctx, cfg.Account, cfg.Password)
	if err != nil {
		return "", fmt.Errorf("token refresh: %w", err)
	}
	p.mu.Lock()
	p.cfg.Token = tok
	p.mu.Unlock()
	p.persistToken(ctx, tok)
	p.Log.Info("session token refreshed")
	return tok, nil
}

// classify decides which event (if any) a new balance observation triggers.
//
// Rules:
//   - First ever observation just seeds the baseline; no event.
//   - An increase is a recharge, regardless of threshold.
//   - A decrease fires a low-balance alert only when it CROSSES the
//     threshold: new value strictly below it, previous value not below it.
//     A balance that stays below the threshold does not re-alert.
func classify(prev *float64, cur, threshold float64) (EventKind, float64) {
	if prev == nil {
		return EventNone, 0
	}
	switch {
	case cur > *prev:
		return EventRecharge, cur - *prev
	case cur < *prev && cur < threshold && !(*prev < threshold):
		return EventLowBalance, 0
	default:
		return EventNone, 0
	}
}

// handleResult logs and fans out notifications for one finished cycle.
// Manual failures are NOT notified here; the caller reports them to the
// requesting chat. Background failures are logged only.
func (p *Plugin) handleResult(ctx context.Context, req checkRequest, res CheckResult) {
	switch res.Outcome {
	case OutcomeSuccess, OutcomeAuthRefreshed:
		p.authAlerted = false
		p.Log.Debug("check ok",
			logx.Float64("balance", res.Reading.Balance),
			logx.String("outcome", res.Outcome.String()),
		)
	case OutcomeAuthExpired:
		p.Log.Warn("check failed: session expired", logx.Err(res.Err))
		if !req.manual && !p.authAlerted {
			// Auth going stale silently would kill monitoring until someone
			// notices, so the first background occurrence gets announced.
			// Subsequent ticks stay quiet until a check succeeds again.
			p.authAlerted = true
			p.notifyAll(ctx, formatAuthExpired(res.Err), 7)
		}
		return
	case OutcomeFailure:
		p.Log.Warn("check failed", logx.Err(res.Err))
		return
	}

	cfg := p.effectiveConfig()
	switch res.Event {
	case EventLowBalance:
		p.Log.Info("low balance detected",
			logx.Float64("balance", res.Reading.Balance),
			logx.Float64("threshold", cfg.Threshold),
		)
		p.notifyAll(ctx, formatLowBalance(res.Reading, cfg.Threshold), 9)
	case EventRecharge:
		p.Log.Info("recharge detected",
			logx.Float64("balance", res.Reading.Balance),
			logx.Float64("amount", res.Delta),
		)
		p.notifyAll(ctx, formatRecharge(res.Reading, res.Delta), 5)
	}
}

// notifyAll delivers text to every subscriber, best-effort per recipient.
func (p *Plugin) notifyAll(ctx context.Context, text string, priority int) {
	for _, target := range p.subs.List() {
		nctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := p.Notify(nctx, notification(target, text, priority))
		cancel()
		if err != nil {
			p.Log.Warn("notify subscriber failed",
				logx.Int64("chat_id", target.ChatID),
				logx.Err(err),
			)
		}
	}
}
