// Package notify raises alerts when unread counts cross their redline or
// climb between cycles. Alerts go out through desktop notifications,
// Telegram, and webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Kind is the type of alert.
type Kind string

const (
	KindRedline  Kind = "redline"  // a gauge reached its redline
	KindIncrease Kind = "increase" // total unread rose since the last cycle
	KindCheck    Kind = "check"    // a refresh failed
)

// Event is one alert.
type Event struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Identity  string    `json:"identity,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Count     int       `json:"count"`
	Previous  int       `json:"previous"`
	Redline   int       `json:"redline,omitempty"`
	Message   string    `json:"message"`
}

// Config holds notification configuration
type Config struct {
	Enabled bool     `toml:"enabled" json:"enabled"`
	Events  []string `toml:"events" json:"events"`

	Desktop  DesktopConfig  `toml:"desktop" json:"desktop"`
	Telegram TelegramConfig `toml:"telegram" json:"telegram"`
	Webhook  WebhookConfig  `toml:"webhook" json:"webhook"`
}

// DesktopConfig configures desktop notifications
type DesktopConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Title   string `toml:"title" json:"title"`
}

// TelegramConfig configures Telegram bot messages.
type TelegramConfig struct {
	Enabled       bool    `toml:"enabled" json:"enabled"`
	Token         string  `toml:"token" json:"-"`
	ChatID        int64   `toml:"chat_id" json:"chat_id"`
	RatePerSecond float64 `toml:"rate_per_second" json:"rate_per_second"`
	ServerURL     string  `toml:"server_url" json:"server_url,omitempty"`
}

// WebhookConfig configures webhook notifications
type WebhookConfig struct {
	Enabled  bool              `toml:"enabled" json:"enabled"`
	URL      string            `toml:"url" json:"url"`
	Method   string            `toml:"method" json:"method"`
	Headers  map[string]string `toml:"headers" json:"headers,omitempty"`
	Template string            `toml:"template" json:"template"` // Go template for payload
}

const defaultWebhookTemplate = `{"kind":{{json .Kind}},"channel":{{json .Channel}},"count":{{.Count}},"message":{{json .Message}},"timestamp":{{json .Timestamp}}}`

// DefaultConfig returns a default notification configuration
func DefaultConfig() Config {
	return Config{
		Enabled: false,
		Events:  []string{string(KindRedline)},
		Desktop: DesktopConfig{
			Enabled: true,
			Title:   "redline",
		},
		Telegram: TelegramConfig{
			RatePerSecond: 1,
		},
		Webhook: WebhookConfig{
			Method:   http.MethodPost,
			Template: defaultWebhookTemplate,
		},
	}
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger.
func WithLogger(entry *logrus.Entry) Option {
	return func(n *Notifier) {
		if entry != nil {
			n.log = entry
		}
	}
}

// WithHTTPClient sets the client used for webhooks.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) {
		if c != nil {
			n.httpClient = c
		}
	}
}

// WithDesktopFunc replaces the desktop sender.
func WithDesktopFunc(fn func(title, body string) error) Option {
	return func(n *Notifier) {
		if fn != nil {
			n.desktop = fn
		}
	}
}

// Notifier sends notifications through configured channels
type Notifier struct {
	config     Config
	enabledSet map[Kind]bool
	httpClient *http.Client
	desktop    func(title, body string) error
	log        *logrus.Entry

	limiter *rate.Limiter
	botMu   sync.Mutex
	bot     *bot.Bot

	wg sync.WaitGroup
}

// New creates a new Notifier with the given configuration
func New(cfg Config, opts ...Option) *Notifier {
	n := &Notifier{
		config:     cfg,
		enabledSet: make(map[Kind]bool),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		desktop:    sendDesktop,
		log:        logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.WithField("component", "notify")

	for _, e := range cfg.Events {
		n.enabledSet[Kind(strings.ToLower(strings.TrimSpace(e)))] = true
	}

	perSecond := cfg.Telegram.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	n.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return n
}

// Enabled reports whether alerts of kind k are delivered.
func (n *Notifier) Enabled(k Kind) bool {
	return n.config.Enabled && n.enabledSet[k]
}

// Notify sends the event through every enabled sink in parallel.
func (n *Notifier) Notify(ctx context.Context, event Event) error {
	if !n.Enabled(event.Kind) {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var (
		wg    sync.WaitGroup
		errs  []error
		errMu sync.Mutex
	)
	addErr := func(err error) {
		if err != nil {
			errMu.Lock()
			errs = append(errs, err)
			errMu.Unlock()
		}
	}

	if n.config.Desktop.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := n.desktop(n.title(event), event.Message); err != nil {
				addErr(fmt.Errorf("desktop: %w", err))
			}
		}()
	}

	if n.config.Telegram.Enabled && n.config.Telegram.Token != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := n.sendTelegram(ctx, event); err != nil {
				addErr(fmt.Errorf("telegram: %w", err))
			}
		}()
	}

	if n.config.Webhook.Enabled && n.config.Webhook.URL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := n.sendWebhook(ctx, event); err != nil {
				addErr(fmt.Errorf("webhook: %w", err))
			}
		}()
	}

	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %v", errs)
	}
	return nil
}

// Dispatch sends the event in the background and logs failures. Wait blocks
// until every dispatched event is done.
func (n *Notifier) Dispatch(event Event) {
	if !n.Enabled(event.Kind) {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := n.Notify(ctx, event); err != nil {
			n.log.WithError(err).WithField("kind", event.Kind).Warn("notification failed")
		}
	}()
}

// Wait blocks until dispatched notifications finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) title(event Event) string {
	title := n.config.Desktop.Title
	if title == "" {
		title = "redline"
	}
	if event.Channel != "" {
		title = fmt.Sprintf("%s [%s]", title, event.Channel)
	}
	return title
}

func sendDesktop(title, body string) error {
	return beeep.Notify(title, body, "")
}

func (n *Notifier) telegramBot() (*bot.Bot, error) {
	n.botMu.Lock()
	defer n.botMu.Unlock()
	if n.bot != nil {
		return n.bot, nil
	}
	opts := []bot.Option{bot.WithSkipGetMe()}
	if n.config.Telegram.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(n.config.Telegram.ServerURL))
	}
	b, err := bot.New(n.config.Telegram.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bot: %w", err)
	}
	n.bot = b
	return b, nil
}

func (n *Notifier) sendTelegram(ctx context.Context, event Event) error {
	if n.config.Telegram.ChatID == 0 {
		return fmt.Errorf("missing chat_id")
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	b, err := n.telegramBot()
	if err != nil {
		return err
	}

	text := fmt.Sprintf("%s\n%s", n.title(event), event.Message)
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.config.Telegram.ChatID,
		Text:   text,
	}); err != nil {
		return fmt.Errorf("failed to send message to chat_id %d: %w", n.config.Telegram.ChatID, err)
	}
	return nil
}

var templateFuncs = template.FuncMap{
	"json": func(v interface{}) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

func (n *Notifier) sendWebhook(ctx context.Context, event Event) error {
	tmplStr := n.config.Webhook.Template
	if tmplStr == "" {
		tmplStr = defaultWebhookTemplate
	}

	tmpl, err := template.New("webhook").Funcs(templateFuncs).Parse(tmplStr)
	if err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, event); err != nil {
		return fmt.Errorf("template execution failed: %w", err)
	}

	method := n.config.Webhook.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, n.config.Webhook.URL, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.config.Webhook.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
