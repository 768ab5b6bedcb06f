package electricity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"powerbot/internal/core"
	logx "powerbot/pkg/logx"
)

func New() *Plugin {
	return &Plugin{
		subs:  newSubscriptions(),
		reqCh: make(chan checkRequest),
	}
}

func (p *Plugin) Name() string { return "electricity" }

func (p *Plugin) Init(ctx context.Context, deps core.PluginDeps) error {
	p.InitBase(deps, p.Name())
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)

	p.loadPersisted(ctx)
	p.rebuildClient()

	p.Runner.Go("monitor", p.monitorLoop)

	if err := p.applySchedule(); err != nil {
		p.Log.Warn("auto check schedule failed", logx.Err(err))
	}

	p.stateMu.Lock()
	hasBaseline := p.state.LastBalance != nil
	p.stateMu.Unlock()
	p.Log.Info("monitor started",
		logx.Int("subscribers", p.subs.Len()),
		logx.Bool("has_baseline", hasBaseline),
	)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.Unschedule("auto")
	return p.StopBase(ctx)
}

// ValidateConfig rejects bad config before it is committed (hot-reload safe).
func (p *Plugin) ValidateConfig(ctx context.Context, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	// An absent threshold and an explicit 0 decode identically on Config,
	// so the explicit form is checked separately: 0 would read as "never
	// alert" yet be replaced by the default later.
	var th struct {
		Threshold *float64 `json:"threshold"`
	}
	if err := json.Unmarshal(raw, &th); err == nil && th.Threshold != nil && *th.Threshold <= 0 {
		return fmt.Errorf("threshold must be > 0")
	}
	if s := strings.TrimSpace(c.CheckInterval); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("check_interval: %w", err)
		}
		if d < time.Minute {
			return fmt.Errorf("check_interval must be >= 1m")
		}
	}
	if s := strings.TrimSpace(c.RequestTimeout); s != "" {
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
	}
	return nil
}

// OnConfigChange applies new plugin configuration.
func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	c, err := core.DecodePluginConfig[Config](raw)
	if err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	p.mu.Lock()
	// keep the runtime token when config doesn't force a new one
	if c.Token == "" {
		c.Token = p.cfg.Token
	}
	p.cfg = c
	p.mu.Unlock()

	p.rebuildClient()

	// Runner is nil while the manager applies config before Start; the
	// schedule is registered in Start in that case.
	if p.Runner == nil {
		return nil
	}
	return p.applySchedule()
}

// effectiveConfig merges file config, runtime overrides, and defaults.
func (p *Plugin) effectiveConfig() Config {
	p.mu.RLock()
	cfg := p.cfg
	ovr := p.ovr
	p.mu.RUnlock()

	if ovr.Threshold != nil {
		cfg.Threshold = *ovr.Threshold
	}
	if ovr.CheckInterval != nil {
		cfg.CheckInterval = *ovr.CheckInterval
	}
	if ovr.AutoCheck != nil {
		cfg.AutoCheck = *ovr.AutoCheck
	}

	if cfg.Threshold <= 0 {
		// validation rejects explicit non-positive thresholds, so zero
		// here always means "not configured"
		cfg.Threshold = defaultThreshold
	}
	if strings.TrimSpace(cfg.CheckInterval) == "" {
		cfg.CheckInterval = defaultCheckInterval.String()
	}
	if strings.TrimSpace(cfg.BalanceURL) == "" {
		cfg.BalanceURL = defaultBalanceURL
	}
	if strings.TrimSpace(cfg.LoginURL) == "" {
		cfg.LoginURL = defaultLoginURL
	}
	if strings.TrimSpace(cfg.RequestTimeout) == "" {
		cfg.RequestTimeout = defaultRequestTimeout.String()
	}
	return cfg
}

func (p *Plugin) rebuildClient() {
	cfg := p.effectiveConfig()
	timeout, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil || timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	p.mu.Lock()
	p.client = newPortalClient(cfg.BalanceURL, cfg.LoginURL, timeout)
	p.mu.Unlock()
}

// applySchedule registers or removes the periodic background check.
// The scheduler upserts by name, so re-applying replaces the old interval.
func (p *Plugin) applySchedule() error {
	cfg := p.effectiveConfig()

	if !cfg.AutoCheck {
		p.Unschedule("auto")
		p.Log.Debug("auto check disabled")
		return nil
	}

	interval, err := time.ParseDuration(cfg.CheckInterval)
	if err != nil || interval < time.Minute {
		interval = defaultCheckInterval
	}

	_, err = p.Every("auto", interval, 30*time.Second, func(ctx context.Context) error {
		p.triggerScheduled()
		return nil
	})
	if err != nil {
		return err
	}
	p.Log.Info("auto check scheduled", logx.Duration("interval", interval))
	return nil
}
