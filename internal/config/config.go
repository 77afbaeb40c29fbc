package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/gauge"
	"github.com/theirongolddev/redline/internal/graph"
	"github.com/theirongolddev/redline/internal/kv"
	"github.com/theirongolddev/redline/internal/logging"
	"github.com/theirongolddev/redline/internal/notify"
	"github.com/theirongolddev/redline/internal/resolver"
	"github.com/theirongolddev/redline/internal/util"
)

// Config represents the main configuration
type Config struct {
	Theme         string          `toml:"theme" json:"theme"`
	Auth          AuthConfig      `toml:"auth" json:"auth"`
	Graph         GraphConfig     `toml:"graph" json:"graph"`
	Channels      []ChannelConfig `toml:"channels" json:"channels"`
	Total         TotalConfig     `toml:"total" json:"total"`
	Refresh       RefreshConfig   `toml:"refresh" json:"refresh"`
	Store         StoreConfig     `toml:"store" json:"store"`
	Log           logging.Config  `toml:"log" json:"log"`
	Notifications notify.Config   `toml:"notifications" json:"notifications"`
	Server        ServerConfig    `toml:"server" json:"server"`
}

// AuthConfig holds sign-in settings.
type AuthConfig struct {
	ClientID string `toml:"client_id" json:"client_id"`
	TenantID string `toml:"tenant_id" json:"tenant_id"`

	// AccessToken is a fixed bearer token; when set the device flow is skipped.
	AccessToken string `toml:"access_token" json:"-"`

	// Headless disables the interactive device-code prompt.
	Headless bool     `toml:"headless" json:"headless"`
	Scopes   []string `toml:"scopes" json:"scopes,omitempty"`
}

// GraphConfig holds mail API settings.
type GraphConfig struct {
	BaseURL  string `toml:"base_url" json:"base_url"`
	Timeout  string `toml:"timeout" json:"timeout"`
	PageSize int    `toml:"page_size" json:"page_size"`
	MaxPages int    `toml:"max_pages" json:"max_pages"`
}

// ChannelConfig describes one gauge.
type ChannelConfig struct {
	Key     string `toml:"key" json:"key"`
	Label   string `toml:"label" json:"label"`
	Folder  string `toml:"folder" json:"folder,omitempty"`
	Inbox   bool   `toml:"inbox" json:"inbox,omitempty"`
	Max     int    `toml:"max" json:"max"`
	Redline int    `toml:"redline" json:"redline"`
	Link    string `toml:"link" json:"link,omitempty"`
	Kick    string `toml:"kick" json:"kick,omitempty"`
}

// TotalConfig scales the total gauge.
type TotalConfig struct {
	Max     int    `toml:"max" json:"max"`
	Redline int    `toml:"redline" json:"redline"`
	Kick    string `toml:"kick" json:"kick,omitempty"`
}

// RefreshConfig holds auto-refresh settings.
type RefreshConfig struct {
	Auto     bool   `toml:"auto" json:"auto"`
	Interval string `toml:"interval" json:"interval"`
}

// StoreConfig selects the key-value backend.
type StoreConfig struct {
	Backend string `toml:"backend" json:"backend"`
	Path    string `toml:"path" json:"path"`
	// Poll watches the file store by polling instead of fsnotify, for
	// network filesystems that do not deliver change events.
	Poll bool `toml:"poll" json:"poll,omitempty"`
}

// ServerConfig holds the web surface settings.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`
}

const (
	DefaultTenant          = "common"
	DefaultRefreshInterval = "60s"
	DefaultServerAddr      = "127.0.0.1:8787"
	DefaultTotalMax        = 100
	DefaultTotalRedline    = 35
	DefaultChannelMax      = 25
	DefaultChannelRedline  = 10
)

// DefaultPath returns the default config file path
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "redline", "config.toml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "redline", "config.toml")
}

// DefaultChannels returns the inbox plus the three alert folders.
func DefaultChannels() []ChannelConfig {
	return []ChannelConfig{
		{Key: "outlook", Label: "Outlook", Inbox: true, Max: 60, Redline: 25, Link: "https://outlook.office.com/mail/"},
		{Key: "slack", Label: "Slack", Folder: "PTC - Slack Alerts", Max: 25, Redline: 10, Link: "https://app.slack.com/client/"},
		{Key: "hubspot", Label: "HubSpot", Folder: "PTC - HubSpot Alerts", Max: 25, Redline: 10, Link: "https://app.hubspot.com/"},
		{Key: "monday", Label: "Monday", Folder: "PTC - Monday Alerts", Max: 25, Redline: 10, Link: "https://monday.com/"},
	}
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Theme: "auto",
		Auth: AuthConfig{
			TenantID: DefaultTenant,
		},
		Graph: GraphConfig{
			BaseURL:  graph.DefaultBaseURL,
			Timeout:  graph.DefaultTimeout.String(),
			PageSize: graph.DefaultPageSize,
			MaxPages: graph.DefaultMaxPages,
		},
		Channels: DefaultChannels(),
		Total: TotalConfig{
			Max:     DefaultTotalMax,
			Redline: DefaultTotalRedline,
		},
		Refresh: RefreshConfig{
			Interval: DefaultRefreshInterval,
		},
		Store: StoreConfig{
			Backend: kv.BackendFile,
			Path:    kv.DefaultPath(kv.BackendFile),
		},
		Log:           logging.DefaultConfig(),
		Notifications: notify.DefaultConfig(),
		Server: ServerConfig{
			Addr: DefaultServerAddr,
		},
	}
}

// LoadEnvFile loads a .env file from the working directory, if present.
func LoadEnvFile() error {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// Load loads configuration from a file. A missing file yields the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if err := applyEnv(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyDefaults(&cfg)
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills fields a config file left empty.
func applyDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Theme == "" {
		cfg.Theme = defaults.Theme
	}
	if cfg.Auth.TenantID == "" {
		cfg.Auth.TenantID = defaults.Auth.TenantID
	}

	if cfg.Graph.BaseURL == "" {
		cfg.Graph.BaseURL = defaults.Graph.BaseURL
	}
	if cfg.Graph.Timeout == "" {
		cfg.Graph.Timeout = defaults.Graph.Timeout
	}
	if cfg.Graph.PageSize == 0 {
		cfg.Graph.PageSize = defaults.Graph.PageSize
	}
	if cfg.Graph.MaxPages == 0 {
		cfg.Graph.MaxPages = defaults.Graph.MaxPages
	}

	// Channels section missing entirely: use the built-in set
	if len(cfg.Channels) == 0 {
		cfg.Channels = defaults.Channels
	}
	for i := range cfg.Channels {
		ch := &cfg.Channels[i]
		ch.Key = strings.TrimSpace(ch.Key)
		if ch.Label == "" && ch.Key != "" {
			ch.Label = strings.ToUpper(ch.Key[:1]) + ch.Key[1:]
		}
		if ch.Max == 0 {
			ch.Max = DefaultChannelMax
		}
		if ch.Redline == 0 {
			ch.Redline = DefaultChannelRedline
		}
	}

	if cfg.Total.Max == 0 {
		cfg.Total.Max = defaults.Total.Max
	}
	if cfg.Total.Redline == 0 {
		cfg.Total.Redline = defaults.Total.Redline
	}
	if cfg.Refresh.Interval == "" {
		cfg.Refresh.Interval = defaults.Refresh.Interval
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = defaults.Store.Backend
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = kv.DefaultPath(cfg.Store.Backend)
	}
	cfg.Store.Path = ExpandHome(cfg.Store.Path)

	logDefaults := logging.DefaultConfig()
	if cfg.Log.Level == "" {
		cfg.Log.Level = logDefaults.Level
	}
	if cfg.Log.File == "" {
		cfg.Log.File = logDefaults.File
	}
	cfg.Log.File = ExpandHome(cfg.Log.File)
	if cfg.Log.Format == "" {
		cfg.Log.Format = logDefaults.Format
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = logDefaults.MaxSizeMB
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = logDefaults.MaxBackups
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = logDefaults.MaxAgeDays
	}

	// If Events is empty, apply all defaults (section likely missing)
	if len(cfg.Notifications.Events) == 0 {
		cfg.Notifications = notify.DefaultConfig()
	}
	if cfg.Notifications.Desktop.Title == "" {
		cfg.Notifications.Desktop.Title = "redline"
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaults.Server.Addr
	}
}

// applyEnv applies REDLINE_* environment overrides.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("REDLINE_CLIENT_ID"); v != "" {
		cfg.Auth.ClientID = v
	}
	if v := os.Getenv("REDLINE_TENANT_ID"); v != "" {
		cfg.Auth.TenantID = v
	}
	if v := os.Getenv("REDLINE_ACCESS_TOKEN"); v != "" {
		cfg.Auth.AccessToken = v
	}
	if v := os.Getenv("REDLINE_GRAPH_URL"); v != "" {
		cfg.Graph.BaseURL = v
	}
	if v := os.Getenv("REDLINE_AUTO_REFRESH"); v != "" {
		switch strings.ToLower(v) {
		case "0", "false", "off", "no":
			cfg.Refresh.Auto = false
		case "1", "true", "on", "yes":
			cfg.Refresh.Auto = true
		default:
			d, err := util.ParseInterval(v, time.Second)
			if err != nil {
				return fmt.Errorf("REDLINE_AUTO_REFRESH: %w", err)
			}
			cfg.Refresh.Auto = true
			cfg.Refresh.Interval = util.FormatInterval(d)
		}
	}
	if v := os.Getenv("REDLINE_STORE"); v != "" {
		// "sqlite", "memory", "file", or "backend:path"
		backend, path, hasPath := strings.Cut(v, ":")
		cfg.Store.Backend = backend
		if hasPath {
			cfg.Store.Path = ExpandHome(path)
		} else {
			cfg.Store.Path = kv.DefaultPath(backend)
		}
	}
	if v := os.Getenv("REDLINE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REDLINE_THEME"); v != "" {
		cfg.Theme = v
	}
	return nil
}

// Validate checks the configuration for errors the dashboard cannot run with.
func (c *Config) Validate() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}

	seen := make(map[string]bool, len(c.Channels))
	inbox := 0
	for i, ch := range c.Channels {
		if ch.Key == "" {
			return fmt.Errorf("channels[%d]: key is required", i)
		}
		if counter.Key(ch.Key) == counter.TotalKey {
			return fmt.Errorf("channels[%d]: key %q is reserved", i, ch.Key)
		}
		if seen[ch.Key] {
			return fmt.Errorf("channels[%d]: duplicate key %q", i, ch.Key)
		}
		seen[ch.Key] = true

		if ch.Inbox {
			inbox++
		} else if strings.TrimSpace(ch.Folder) == "" {
			return fmt.Errorf("channel %q: folder name is required for alert channels", ch.Key)
		}
		if ch.Max <= 0 {
			return fmt.Errorf("channel %q: max must be positive", ch.Key)
		}
		if ch.Redline <= 0 {
			return fmt.Errorf("channel %q: redline must be positive", ch.Key)
		}
		if _, err := gauge.ParseKickPolicy(ch.Kick); err != nil {
			return fmt.Errorf("channel %q: %w", ch.Key, err)
		}
	}
	if inbox != 1 {
		return fmt.Errorf("exactly one channel must be the inbox, found %d", inbox)
	}

	if c.Total.Max <= 0 || c.Total.Redline <= 0 {
		return fmt.Errorf("total: max and redline must be positive")
	}
	if _, err := gauge.ParseKickPolicy(c.Total.Kick); err != nil {
		return fmt.Errorf("total: %w", err)
	}
	if _, err := c.AutoInterval(); err != nil {
		return fmt.Errorf("refresh.interval: %w", err)
	}
	if _, err := c.GraphTimeout(); err != nil {
		return fmt.Errorf("graph.timeout: %w", err)
	}

	switch c.Store.Backend {
	case kv.BackendFile, kv.BackendSQLite, kv.BackendMemory:
	default:
		return fmt.Errorf("store.backend: unknown backend %q (expected file, sqlite or memory)", c.Store.Backend)
	}

	if c.Auth.AccessToken == "" && c.Auth.ClientID == "" {
		return fmt.Errorf("auth: client_id is required (or set REDLINE_ACCESS_TOKEN)")
	}
	return nil
}

// ChannelSet returns the configured channel keys in order.
func (c *Config) ChannelSet() (counter.ChannelSet, error) {
	keys := make([]counter.Key, len(c.Channels))
	for i, ch := range c.Channels {
		keys[i] = counter.Key(ch.Key)
	}
	return counter.NewChannelSet(keys...)
}

// ResolverChannels maps channels to their mailbox sources.
func (c *Config) ResolverChannels() []resolver.Channel {
	out := make([]resolver.Channel, len(c.Channels))
	for i, ch := range c.Channels {
		out[i] = resolver.Channel{Key: counter.Key(ch.Key), Inbox: ch.Inbox, Folder: ch.Folder}
	}
	return out
}

// Channel returns the channel with key k.
func (c *Config) Channel(k counter.Key) (ChannelConfig, bool) {
	for _, ch := range c.Channels {
		if counter.Key(ch.Key) == k {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

// Label returns the display label for a channel or the total.
func (c *Config) Label(k counter.Key) string {
	if k == counter.TotalKey {
		return "Total"
	}
	if ch, ok := c.Channel(k); ok && ch.Label != "" {
		return ch.Label
	}
	return string(k)
}

// Thresholds returns the gauge scale for a channel or the total.
func (c *Config) Thresholds(k counter.Key) gauge.Thresholds {
	if k == counter.TotalKey {
		return gauge.Thresholds{Max: c.Total.Max, Redline: c.Total.Redline}
	}
	ch, _ := c.Channel(k)
	return gauge.Thresholds{Max: ch.Max, Redline: ch.Redline}
}

// KickPolicy returns the kick policy for a channel or the total.
func (c *Config) KickPolicy(k counter.Key) gauge.KickPolicy {
	name := c.Total.Kick
	if k != counter.TotalKey {
		ch, _ := c.Channel(k)
		name = ch.Kick
	}
	p, _ := gauge.ParseKickPolicy(name)
	return p
}

// Limits returns the thresholds of every channel and the total.
func (c *Config) Limits() notify.Limits {
	out := make(notify.Limits, len(c.Channels)+1)
	for _, ch := range c.Channels {
		out[counter.Key(ch.Key)] = c.Thresholds(counter.Key(ch.Key))
	}
	out[counter.TotalKey] = c.Thresholds(counter.TotalKey)
	return out
}

// AutoInterval parses refresh.interval.
func (c *Config) AutoInterval() (time.Duration, error) {
	return util.ParseInterval(c.Refresh.Interval, time.Second)
}

// GraphTimeout parses graph.timeout.
func (c *Config) GraphTimeout() (time.Duration, error) {
	return util.ParseInterval(c.Graph.Timeout, time.Second)
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// CreateDefault writes the default config to path (DefaultPath when empty).
func CreateDefault(path string) (string, error) {
	if path == "" {
		path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config file already exists: %s", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := Print(Default(), f); err != nil {
		return "", err
	}
	return path, nil
}

// Print writes config to a writer in TOML format
func Print(cfg *Config, w io.Writer) error {
	fmt.Fprintln(w, "# redline configuration")
	fmt.Fprintln(w, "# Environment overrides: REDLINE_CLIENT_ID, REDLINE_TENANT_ID, REDLINE_ACCESS_TOKEN,")
	fmt.Fprintln(w, "# REDLINE_GRAPH_URL, REDLINE_AUTO_REFRESH, REDLINE_STORE, REDLINE_LOG_LEVEL, REDLINE_THEME")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "# auto, mocha, macchiato, latte, nord or plain")
	fmt.Fprintf(w, "theme = %q\n", cfg.Theme)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[auth]")
	fmt.Fprintln(w, "# Azure app registration used for the device-code sign-in")
	fmt.Fprintf(w, "client_id = %q\n", cfg.Auth.ClientID)
	fmt.Fprintf(w, "tenant_id = %q\n", cfg.Auth.TenantID)
	fmt.Fprintf(w, "headless = %t\n", cfg.Auth.Headless)
	if cfg.Auth.AccessToken != "" {
		fmt.Fprintln(w, "# access_token is set (hidden)")
	} else {
		fmt.Fprintln(w, "# access_token = \"\"  # Or set REDLINE_ACCESS_TOKEN")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[graph]")
	fmt.Fprintf(w, "base_url = %q\n", cfg.Graph.BaseURL)
	fmt.Fprintf(w, "timeout = %q\n", cfg.Graph.Timeout)
	fmt.Fprintf(w, "page_size = %d\n", cfg.Graph.PageSize)
	fmt.Fprintf(w, "max_pages = %d\n", cfg.Graph.MaxPages)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "# One gauge per channel. Exactly one channel reads the inbox;")
	fmt.Fprintln(w, "# the others match a mail folder by display name.")
	for _, ch := range cfg.Channels {
		fmt.Fprintln(w, "[[channels]]")
		fmt.Fprintf(w, "key = %q\n", ch.Key)
		fmt.Fprintf(w, "label = %q\n", ch.Label)
		if ch.Inbox {
			fmt.Fprintln(w, "inbox = true")
		} else {
			fmt.Fprintf(w, "folder = %q\n", ch.Folder)
		}
		fmt.Fprintf(w, "max = %d\n", ch.Max)
		fmt.Fprintf(w, "redline = %d\n", ch.Redline)
		if ch.Link != "" {
			fmt.Fprintf(w, "link = %q\n", ch.Link)
		}
		if ch.Kick != "" {
			fmt.Fprintf(w, "kick = %q\n", ch.Kick)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "[total]")
	fmt.Fprintf(w, "max = %d\n", cfg.Total.Max)
	fmt.Fprintf(w, "redline = %d\n", cfg.Total.Redline)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[refresh]")
	fmt.Fprintf(w, "auto = %t\n", cfg.Refresh.Auto)
	fmt.Fprintf(w, "interval = %q\n", cfg.Refresh.Interval)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[store]")
	fmt.Fprintln(w, "# file, sqlite or memory")
	fmt.Fprintf(w, "backend = %q\n", cfg.Store.Backend)
	fmt.Fprintf(w, "path = %q\n", cfg.Store.Path)
	fmt.Fprintln(w, "# poll the file store for changes (network filesystems)")
	fmt.Fprintf(w, "poll = %t\n", cfg.Store.Poll)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[log]")
	fmt.Fprintf(w, "level = %q\n", cfg.Log.Level)
	fmt.Fprintf(w, "file = %q\n", cfg.Log.File)
	fmt.Fprintf(w, "format = %q\n", cfg.Log.Format)
	fmt.Fprintf(w, "max_size_mb = %d\n", cfg.Log.MaxSizeMB)
	fmt.Fprintf(w, "max_backups = %d\n", cfg.Log.MaxBackups)
	fmt.Fprintf(w, "max_age_days = %d\n", cfg.Log.MaxAgeDays)
	fmt.Fprintln(w)

	n := cfg.Notifications
	fmt.Fprintln(w, "[notifications]")
	fmt.Fprintln(w, "# Events: redline, increase, check")
	fmt.Fprintf(w, "enabled = %t\n", n.Enabled)
	fmt.Fprintf(w, "events = [%s]\n", quoteList(n.Events))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[notifications.desktop]")
	fmt.Fprintf(w, "enabled = %t\n", n.Desktop.Enabled)
	fmt.Fprintf(w, "title = %q\n", n.Desktop.Title)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[notifications.telegram]")
	fmt.Fprintf(w, "enabled = %t\n", n.Telegram.Enabled)
	if n.Telegram.Token != "" {
		fmt.Fprintln(w, "# token is set (hidden)")
	} else {
		fmt.Fprintln(w, "# token = \"123456:ABC...\"")
	}
	fmt.Fprintf(w, "chat_id = %d\n", n.Telegram.ChatID)
	fmt.Fprintf(w, "rate_per_second = %s\n", tomlFloat(n.Telegram.RatePerSecond))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[notifications.webhook]")
	fmt.Fprintf(w, "enabled = %t\n", n.Webhook.Enabled)
	fmt.Fprintf(w, "url = %q\n", n.Webhook.URL)
	fmt.Fprintf(w, "method = %q\n", n.Webhook.Method)
	fmt.Fprintf(w, "template = %q\n", n.Webhook.Template)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[server]")
	fmt.Fprintf(w, "addr = %q\n", cfg.Server.Addr)
	return nil
}

func tomlFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}
