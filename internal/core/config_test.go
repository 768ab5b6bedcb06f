package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigParseJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "t", "owner_user_ids": [1, 2]},
		"storage": {"driver": "file", "path": "state.json"},
		"scheduler": {"enabled": true, "workers": 2},
		"plugins": {
			"electricity": {"enabled": true, "config": {"threshold": 25}}
		}
	}`)

	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "t" || len(cfg.Telegram.OwnerUserIDs) != 2 {
		t.Fatalf("telegram section: %+v", cfg.Telegram)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("storage section: %+v", cfg.Storage)
	}
	p, ok := cfg.Plugins["electricity"]
	if !ok || !p.Enabled || len(p.Config) == 0 {
		t.Fatalf("plugin section: %+v", p)
	}
}

func TestConfigParseYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
telegram:
  token: t
  owner_user_ids: [7]
scheduler:
  enabled: true
  default_timeout: 30s
plugins:
  electricity:
    enabled: true
`)

	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "t" || cfg.Scheduler.DefaultTimeout != "30s" {
		t.Fatalf("parsed: %+v", cfg)
	}
	if !cfg.Plugins["electricity"].Enabled {
		t.Fatalf("plugin not enabled: %+v", cfg.Plugins)
	}
}

func TestConfigParseRejectsUnknownFields(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"top level", `{"telegram": {"token": "t"}, "nonsense": 1}`},
		{"plugin level", `{"plugins": {"p": {"enabled": true, "typo_field": 1}}}`},
		{"trailing data", `{"telegram": {"token": "t"}} {"extra": 1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, "config.json", tc.content)
			if _, err := NewConfigManager(path).Parse(); err == nil {
				t.Fatalf("expected parse error")
			}
		})
	}
}

func TestConfigReloadSkipsUnchanged(t *testing.T) {
	content := `{"telegram": {"token": "t"}}`
	path := writeConfig(t, "config.json", content)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	// identical content: no publish
	m.reload(context.Background())
	select {
	case <-ch:
		t.Fatalf("unchanged config was republished")
	default:
	}

	// changed content: one publish
	if err := os.WriteFile(path, []byte(`{"telegram": {"token": "t2"}}`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	m.reload(context.Background())
	select {
	case cfg := <-ch:
		if cfg.Telegram.Token != "t2" {
			t.Fatalf("got stale config: %+v", cfg.Telegram)
		}
	case <-time.After(time.Second):
		t.Fatalf("no config published after change")
	}
	if m.Get().Telegram.Token != "t2" {
		t.Fatalf("Get() not updated")
	}
}

func TestConfigReloadRejectedByValidator(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram": {"token": "t"}}`)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.Telegram.Token == "" {
			return errors.New("token required")
		}
		return nil
	})

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	if err := os.WriteFile(path, []byte(`{"telegram": {"token": ""}}`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	m.reload(context.Background())

	select {
	case <-ch:
		t.Fatalf("invalid config was published")
	default:
	}
	if m.Get().Telegram.Token != "t" {
		t.Fatalf("invalid config was committed")
	}
}

func TestConfigPublishDropsOldest(t *testing.T) {
	m := NewConfigManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{Telegram: TelegramConfig{Token: "1"}}
	second := &Config{Telegram: TelegramConfig{Token: "2"}}
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got.Telegram.Token != "2" {
		t.Fatalf("subscriber got %q, want the newest config", got.Telegram.Token)
	}
}
