package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/gauge"
	"github.com/theirongolddev/redline/internal/kv"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"REDLINE_CLIENT_ID", "REDLINE_TENANT_ID", "REDLINE_ACCESS_TOKEN", "REDLINE_GRAPH_URL",
		"REDLINE_AUTO_REFRESH", "REDLINE_STORE", "REDLINE_LOG_LEVEL", "REDLINE_THEME",
	} {
		t.Setenv(k, "")
	}
}

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if len(cfg.Channels) != 4 {
		t.Fatalf("Expected 4 default channels, got %d", len(cfg.Channels))
	}
	if !cfg.Channels[0].Inbox || cfg.Channels[0].Key != "outlook" {
		t.Errorf("Expected outlook inbox first, got %+v", cfg.Channels[0])
	}
	if cfg.Channels[1].Folder != "PTC - Slack Alerts" {
		t.Errorf("Unexpected slack folder %q", cfg.Channels[1].Folder)
	}
	if cfg.Total.Max != 100 || cfg.Total.Redline != 35 {
		t.Errorf("Expected total 100/35, got %d/%d", cfg.Total.Max, cfg.Total.Redline)
	}
	if cfg.Refresh.Auto {
		t.Error("Auto-refresh should be off by default")
	}
	if cfg.Store.Backend != kv.BackendFile {
		t.Errorf("Expected file store, got %s", cfg.Store.Backend)
	}
}

func TestDefaultPathWithXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := DefaultPath(); got != "/custom/config/redline/config.toml" {
		t.Errorf("Expected XDG path, got %s", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get user home dir")
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"~", home},
		{"~/foo", filepath.Join(home, "foo")},
		{"/abs/path", "/abs/path"},
		{"rel/path", "rel/path"},
		{"~user/x", "~user/x"},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.input); got != tt.expected {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("/definitely/does/not/exist/config.toml")
	if err != nil {
		t.Fatalf("Expected defaults for missing config, got error: %v", err)
	}
	if len(cfg.Channels) != 4 {
		t.Errorf("Expected default channels, got %d", len(cfg.Channels))
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	content := `
theme = "nord"

[auth]
client_id = "app-id"
tenant_id = "contoso"

[[channels]]
key = "mail"
inbox = true
max = 40
redline = 20

[[channels]]
key = "pager"
folder = "Pager Alerts"
kick = "directional"

[refresh]
auto = true
interval = "2m"

[store]
backend = "sqlite"
poll = true
`
	cfg, err := Load(createTempConfig(t, content))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Theme != "nord" {
		t.Errorf("Expected theme nord, got %s", cfg.Theme)
	}
	if cfg.Auth.ClientID != "app-id" || cfg.Auth.TenantID != "contoso" {
		t.Errorf("Unexpected auth %+v", cfg.Auth)
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("Expected 2 channels, got %d", len(cfg.Channels))
	}
	pager := cfg.Channels[1]
	if pager.Inbox {
		t.Error("Second channel must not inherit inbox from defaults")
	}
	if pager.Label != "Pager" || pager.Max != DefaultChannelMax || pager.Redline != DefaultChannelRedline {
		t.Errorf("Expected channel defaults applied, got %+v", pager)
	}
	if cfg.KickPolicy("pager") != gauge.KickDirectional {
		t.Error("Expected directional kick for pager")
	}
	if cfg.Total.Max != DefaultTotalMax {
		t.Errorf("Expected default total max, got %d", cfg.Total.Max)
	}
	if d, _ := cfg.AutoInterval(); !cfg.Refresh.Auto || d != 2*time.Minute {
		t.Errorf("Expected auto every 2m, got %v/%v", cfg.Refresh.Auto, d)
	}
	if cfg.Store.Backend != kv.BackendSQLite || !strings.HasSuffix(cfg.Store.Path, "store.db") {
		t.Errorf("Expected sqlite default path, got %s %s", cfg.Store.Backend, cfg.Store.Path)
	}
	if !cfg.Store.Poll {
		t.Error("Expected store.poll to be read")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	clearEnv(t)
	_, err := Load(createTempConfig(t, `this is not valid TOML {{{`))
	if err == nil {
		t.Error("Expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDLINE_CLIENT_ID", "env-client")
	t.Setenv("REDLINE_ACCESS_TOKEN", "tok")
	t.Setenv("REDLINE_GRAPH_URL", "http://localhost:9999")
	t.Setenv("REDLINE_AUTO_REFRESH", "30")
	t.Setenv("REDLINE_STORE", "memory")
	t.Setenv("REDLINE_LOG_LEVEL", "debug")
	t.Setenv("REDLINE_THEME", "plain")

	cfg, err := Load(createTempConfig(t, `[auth]
client_id = "file-client"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.ClientID != "env-client" || cfg.Auth.AccessToken != "tok" {
		t.Errorf("Expected auth from env, got %+v", cfg.Auth)
	}
	if cfg.Graph.BaseURL != "http://localhost:9999" {
		t.Errorf("Expected graph url from env, got %s", cfg.Graph.BaseURL)
	}
	if !cfg.Refresh.Auto || cfg.Refresh.Interval != "30s" {
		t.Errorf("Expected auto 30s, got %v %s", cfg.Refresh.Auto, cfg.Refresh.Interval)
	}
	if cfg.Store.Backend != kv.BackendMemory {
		t.Errorf("Expected memory store, got %s", cfg.Store.Backend)
	}
	if cfg.Log.Level != "debug" || cfg.Theme != "plain" {
		t.Errorf("Expected log/theme from env, got %s/%s", cfg.Log.Level, cfg.Theme)
	}
}

func TestEnvStoreWithPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDLINE_STORE", "file:/tmp/shared.json")
	cfg, err := Load("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != "file" || cfg.Store.Path != "/tmp/shared.json" {
		t.Errorf("Expected file:/tmp/shared.json, got %s:%s", cfg.Store.Backend, cfg.Store.Path)
	}
}

func TestEnvAutoRefreshInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDLINE_AUTO_REFRESH", "whenever")
	if _, err := Load("/nonexistent/config.toml"); err == nil {
		t.Error("Expected error for bad REDLINE_AUTO_REFRESH")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Auth.ClientID = "app"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"static token only", func(c *Config) { c.Auth.ClientID = ""; c.Auth.AccessToken = "t" }, ""},
		{"no auth", func(c *Config) { c.Auth.ClientID = "" }, "client_id is required"},
		{"no channels", func(c *Config) { c.Channels = nil }, "at least one channel"},
		{"empty key", func(c *Config) { c.Channels[1].Key = "" }, "key is required"},
		{"reserved key", func(c *Config) { c.Channels[1].Key = "total" }, "reserved"},
		{"duplicate key", func(c *Config) { c.Channels[2].Key = "slack" }, "duplicate key"},
		{"two inboxes", func(c *Config) { c.Channels[1].Inbox = true }, "exactly one channel"},
		{"no inbox", func(c *Config) { c.Channels[0].Inbox = false; c.Channels[0].Folder = "x" }, "exactly one channel"},
		{"missing folder", func(c *Config) { c.Channels[2].Folder = "  " }, "folder name is required"},
		{"zero max", func(c *Config) { c.Channels[1].Max = 0 }, "max must be positive"},
		{"zero redline", func(c *Config) { c.Channels[1].Redline = 0 }, "redline must be positive"},
		{"bad kick", func(c *Config) { c.Channels[1].Kick = "wobble" }, "slack"},
		{"bad total", func(c *Config) { c.Total.Redline = 0 }, "total"},
		{"bad interval", func(c *Config) { c.Refresh.Interval = "0s" }, "refresh.interval"},
		{"bad backend", func(c *Config) { c.Store.Backend = "redis" }, "unknown backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected valid, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestChannelHelpers(t *testing.T) {
	cfg := Default()

	set, err := cfg.ChannelSet()
	if err != nil {
		t.Fatalf("ChannelSet: %v", err)
	}
	if set.Len() != 4 || set.Keys()[3] != "monday" {
		t.Errorf("Unexpected set %v", set.Keys())
	}

	chans := cfg.ResolverChannels()
	if !chans[0].Inbox || chans[1].Folder != "PTC - Slack Alerts" {
		t.Errorf("Unexpected resolver channels %+v", chans)
	}

	if got := cfg.Thresholds("outlook"); got.Max != 60 || got.Redline != 25 {
		t.Errorf("Unexpected outlook thresholds %+v", got)
	}
	if got := cfg.Thresholds(counter.TotalKey); got.Max != 100 || got.Redline != 35 {
		t.Errorf("Unexpected total thresholds %+v", got)
	}
	if cfg.Label(counter.TotalKey) != "Total" || cfg.Label("hubspot") != "HubSpot" || cfg.Label("other") != "other" {
		t.Error("Unexpected labels")
	}

	limits := cfg.Limits()
	if len(limits) != 5 || limits["slack"].Redline != 10 {
		t.Errorf("Unexpected limits %+v", limits)
	}
}

func TestPrintRoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Auth.ClientID = "app"
	cfg.Notifications.Webhook.Template = `{"text":"{{.Message}}"}`
	cfg.Store.Poll = true

	var buf bytes.Buffer
	if err := Print(cfg, &buf); err != nil {
		t.Fatalf("Print: %v", err)
	}
	if !strings.Contains(buf.String(), "[[channels]]") {
		t.Error("Expected channel tables in output")
	}

	path := createTempConfig(t, buf.String())
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Printed config does not load: %v", err)
	}
	if len(loaded.Channels) != 4 || loaded.Channels[2].Folder != "PTC - HubSpot Alerts" {
		t.Errorf("Channels lost in round trip: %+v", loaded.Channels)
	}
	if !loaded.Store.Poll {
		t.Error("store.poll lost in round trip")
	}
	if loaded.Notifications.Webhook.Template != cfg.Notifications.Webhook.Template {
		t.Errorf("Template lost: %q", loaded.Notifications.Webhook.Template)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Printed config invalid: %v", err)
	}
}

func TestPrintHidesSecrets(t *testing.T) {
	cfg := Default()
	cfg.Auth.AccessToken = "secret-token"
	cfg.Notifications.Telegram.Token = "123:secret"

	var buf bytes.Buffer
	Print(cfg, &buf)
	if strings.Contains(buf.String(), "secret") {
		t.Error("Print must not write secrets")
	}
}

func TestCreateDefault(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "redline", "config.toml")

	got, err := CreateDefault(path)
	if err != nil {
		t.Fatalf("CreateDefault failed: %v", err)
	}
	if got != path {
		t.Errorf("Expected %s, got %s", path, got)
	}
	if _, err := Load(path); err != nil {
		t.Errorf("Created config is not valid: %v", err)
	}

	if _, err := CreateDefault(path); err == nil {
		t.Error("Expected error when config already exists")
	}
}

func TestWatch(t *testing.T) {
	clearEnv(t)
	path := createTempConfig(t, `[auth]
client_id = "one"
`)

	updated := make(chan *Config, 4)
	closeWatcher, err := Watch(path, func(cfg *Config) {
		updated <- cfg
	}, nil)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer closeWatcher()

	// Invalid configs are skipped.
	os.WriteFile(path, []byte(`[total]
redline = -1
`), 0644)
	time.Sleep(700 * time.Millisecond)

	os.WriteFile(path, []byte(`[auth]
client_id = "two"
`), 0644)

	select {
	case cfg := <-updated:
		if cfg.Auth.ClientID != "two" {
			t.Errorf("Expected client_id two, got %q", cfg.Auth.ClientID)
		}
	case <-time.After(3 * time.Second):
		t.Error("Timed out waiting for config update")
	}
}
