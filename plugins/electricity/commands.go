package electricity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"powerbot/internal/core"
	kit "powerbot/internal/transport"
)

func (p *Plugin) Commands() []core.Command {
	return []core.Command{
		{
			Route:       "power",
			Aliases:     []string{"balance"},
			Description: "check electricity balance now",
			Usage:       "/power",
			Access:      core.AccessEveryone,
			Timeout:     60 * time.Second,
			Handle:      p.cmdCheck,
		},
		{
			Route:       "power check",
			Description: "force a balance check",
			Usage:       "/power check",
			Access:      core.AccessEveryone,
			Timeout:     60 * time.Second,
			Handle:      p.cmdCheck,
		},
		{
			Route:       "power subscribe",
			Description: "subscribe this chat to balance alerts",
			Usage:       "/power subscribe",
			Access:      core.AccessEveryone,
			Handle:      p.cmdSubscribe,
		},
		{
			Route:       "power unsubscribe",
			Description: "unsubscribe this chat from balance alerts",
			Usage:       "/power unsubscribe",
			Access:      core.AccessEveryone,
			Handle:      p.cmdUnsubscribe,
		},
		{
			Route:       "power status",
			Description: "show monitor status",
			Usage:       "/power status",
			Access:      core.AccessEveryone,
			Handle:      p.cmdStatus,
		},
		{
			Route:       "power threshold",
			Description: "set the low-balance alert threshold (CNY)",
			Usage:       "/power threshold <amount>",
			Access:      core.AccessOwnerOnly,
			Handle:      p.cmdThreshold,
		},
		{
			Route:       "power interval",
			Description: "set the check interval in minutes",
			Usage:       "/power interval <minutes>",
			Access:      core.AccessOwnerOnly,
			Handle:      p.cmdInterval,
		},
		{
			Route:       "power monitor",
			Description: "turn automatic checks on or off",
			Usage:       "/power monitor <on|off>",
			Access:      core.AccessOwnerOnly,
			Handle:      p.cmdMonitor,
		},
	}
}

func (p *Plugin) cmdCheck(ctx context.Context, req *core.Request) error {
	res, err := p.RequestCheck(ctx)
	if errors.Is(err, ErrCheckInProgress) {
		return p.reply(ctx, req, "⏳ A check is already running, try again in a moment.")
	}
	if err != nil {
		return err
	}

	switch res.Outcome {
	case OutcomeSuccess, OutcomeAuthRefreshed:
		cfg := p.effectiveConfig()
		msg := formatReading(res.Reading, cfg.Threshold)
		if res.Reading.Balance < cfg.Threshold {
			msg += "\n\n⚠️ Balance is below the threshold, please recharge."
		}
		return p.reply(ctx, req, msg)
	case OutcomeAuthExpired:
		return p.reply(ctx, req, "🔑 "+formatAuthExpired(res.Err))
	default:
		if errors.Is(res.Err, errNoCredentials) {
			return p.reply(ctx, req, "🔑 No portal credentials configured. Set a token or an account/password pair in the plugin config.")
		}
		msg := "❌ Balance check failed."
		if res.Err != nil {
			msg += "\n" + res.Err.Error()
		}
		return p.reply(ctx, req, msg)
	}
}

func (p *Plugin) cmdSubscribe(ctx context.Context, req *core.Request) error {
	if !p.subs.Add(req.Chat) {
		return p.reply(ctx, req, "This chat is already subscribed.")
	}
	p.persistSubscriptions(ctx)
	return p.reply(ctx, req, "🔔 Subscribed. This chat will receive low-balance and recharge alerts.")
}

func (p *Plugin) cmdUnsubscribe(ctx context.Context, req *core.Request) error {
	if !p.subs.Remove(req.Chat) {
		return p.reply(ctx, req, "This chat is not subscribed.")
	}
	p.persistSubscriptions(ctx)
	return p.reply(ctx, req, "🔕 Unsubscribed.")
}

func (p *Plugin) cmdStatus(ctx context.Context, req *core.Request) error {
	cfg := p.effectiveConfig()
	p.stateMu.Lock()
	st := p.state
	p.stateMu.Unlock()

	msg := formatStatus(cfg, st, p.subs.Contains(req.Chat), p.subs.Len())
	if next := p.nextAutoCheck(); !next.IsZero() {
		msg += fmt.Sprintf("\n⏭ Next auto check: %s", next.Format("2006-01-02 15:04:05"))
	}
	if hist := p.notifyHistory(); len(hist) > 0 {
		last := hist[len(hist)-1]
		msg += fmt.Sprintf("\n📨 Alerts delivered: %d (last %s)", len(hist), last.At.Format("2006-01-02 15:04:05"))
	}
	return p.reply(ctx, req, msg)
}

// nextAutoCheck asks the scheduler when the periodic check fires next.
// Zero when auto check is off or the scheduler is unavailable.
func (p *Plugin) nextAutoCheck() time.Time {
	if p.Deps.Services == nil || p.Deps.Services.Scheduler == nil {
		return time.Time{}
	}
	for _, s := range p.Deps.Services.Scheduler.Snapshot().Schedules {
		if s.Name == p.Name()+":auto" {
			return s.Next
		}
	}
	return time.Time{}
}

func (p *Plugin) notifyHistory() []kit.NotificationRecord {
	if p.Deps.Services == nil || p.Deps.Services.Notifier == nil {
		return nil
	}
	return p.Deps.Services.Notifier.History()
}

func (p *Plugin) cmdThreshold(ctx context.Context, req *core.Request) error {
	if len(req.Args) != 1 {
		return p.reply(ctx, req, "Usage: /power threshold <amount>")
	}
	v, err := strconv.ParseFloat(req.Args[0], 64)
	if err != nil || v <= 0 {
		return p.reply(ctx, req, "Threshold must be a positive number.")
	}

	p.mu.Lock()
	p.ovr.Threshold = &v
	p.mu.Unlock()
	p.persistOverrides(ctx)

	return p.reply(ctx, req, fmt.Sprintf("✅ Threshold set to %.2f CNY.", v))
}

func (p *Plugin) cmdInterval(ctx context.Context, req *core.Request) error {
	if len(req.Args) != 1 {
		return p.reply(ctx, req, "Usage: /power interval <minutes>")
	}
	minutes, err := strconv.Atoi(req.Args[0])
	if err != nil || minutes < 1 {
		return p.reply(ctx, req, "Interval must be a whole number of minutes (>= 1).")
	}

	d := time.Duration(minutes) * time.Minute
	s := d.String()
	p.mu.Lock()
	p.ovr.CheckInterval = &s
	p.mu.Unlock()
	p.persistOverrides(ctx)

	if err := p.applySchedule(); err != nil {
		return err
	}
	return p.reply(ctx, req, fmt.Sprintf("✅ Check interval set to %d minute(s).", minutes))
}

func (p *Plugin) cmdMonitor(ctx context.Context, req *core.Request) error {
	if len(req.Args) != 1 {
		return p.reply(ctx, req, "Usage: /power monitor <on|off>")
	}
	var enabled bool
	switch strings.ToLower(req.Args[0]) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return p.reply(ctx, req, "Usage: /power monitor <on|off>")
	}

	p.mu.Lock()
	p.ovr.AutoCheck = &enabled
	p.mu.Unlock()
	p.persistOverrides(ctx)

	if err := p.applySchedule(); err != nil {
		return err
	}
	if enabled {
		return p.reply(ctx, req, "✅ Automatic checks enabled.")
	}
	return p.reply(ctx, req, "✅ Automatic checks disabled.")
}

func (p *Plugin) reply(ctx context.Context, req *core.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}
