package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/theirongolddev/redline/internal/auth"
	"github.com/theirongolddev/redline/internal/baseline"
	"github.com/theirongolddev/redline/internal/config"
	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/events"
	"github.com/theirongolddev/redline/internal/gauge"
	"github.com/theirongolddev/redline/internal/graph"
	"github.com/theirongolddev/redline/internal/kv"
	"github.com/theirongolddev/redline/internal/logging"
	"github.com/theirongolddev/redline/internal/notify"
	"github.com/theirongolddev/redline/internal/output"
	"github.com/theirongolddev/redline/internal/refresh"
	"github.com/theirongolddev/redline/internal/resolver"
	"github.com/theirongolddev/redline/internal/watcher"
)

// appOptions selects how much of the session a command needs.
type appOptions struct {
	// prompt displays device codes. Nil disables the interactive fallback,
	// so commands that should never block on sign-in fail fast instead.
	prompt auth.PromptFunc

	// watch reloads baselines and config when their files change.
	watch bool
}

// app is one wired session: store, provider, resolver, loop and notifier.
type app struct {
	cfg      *config.Config
	log      *logrus.Entry
	store    kv.Store
	provider auth.Provider
	loop     *refresh.Loop

	mu          sync.Mutex
	notifier    *notify.Notifier
	unsubNotify events.UnsubscribeFunc
	closers     []func()
}

func newApp(c *config.Config, opts appOptions) (*app, error) {
	log := componentLogger("cli")

	storePath := config.ExpandHome(c.Store.Path)
	store, err := kv.Open(c.Store.Backend, storePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", c.Store.Backend, err)
	}

	a := &app{cfg: c, log: log, store: store}
	a.provider = newProvider(c, store, opts.prompt)

	timeout, err := c.GraphTimeout()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("graph.timeout: %w", err)
	}
	client := graph.NewClient(
		graph.WithBaseURL(c.Graph.BaseURL),
		graph.WithTimeout(timeout),
		graph.WithPageSize(c.Graph.PageSize),
		graph.WithMaxPages(c.Graph.MaxPages),
	)
	res, err := resolver.New(client, c.ResolverChannels(), componentLogger("resolver"))
	if err != nil {
		store.Close()
		return nil, err
	}

	a.loop = refresh.New(a.provider, res, baseline.New(store), refresh.WithLogger(componentLogger("refresh")))
	a.setNotifier(c)

	if opts.watch {
		a.watchFiles(storePath)
	}
	return a, nil
}

func newProvider(c *config.Config, store kv.Store, prompt auth.PromptFunc) auth.Provider {
	if c.Auth.AccessToken != "" {
		return auth.NewStaticProvider(c.Auth.AccessToken)
	}
	opts := []auth.DeviceOption{
		auth.WithLogger(componentLogger("auth")),
		auth.WithInteractiveFallback(prompt != nil && !c.Auth.Headless),
	}
	if prompt != nil {
		opts = append(opts, auth.WithPrompt(prompt))
	}
	if len(c.Auth.Scopes) > 0 {
		opts = append(opts, auth.WithScopes(c.Auth.Scopes))
	}
	return auth.NewDeviceProvider(c.Auth.ClientID, c.Auth.TenantID, store, opts...)
}

// setNotifier (re)subscribes a notifier built from c to the loop's events.
func (a *app) setNotifier(c *config.Config) {
	n := notify.New(c.Notifications, notify.WithLogger(componentLogger("notify")))
	unsub := n.Watch(a.loop.Bus(), a.loop.Channels(), c.Limits())

	a.mu.Lock()
	old, oldUnsub := a.notifier, a.unsubNotify
	a.notifier, a.unsubNotify = n, unsub
	a.mu.Unlock()

	if oldUnsub != nil {
		oldUnsub()
		old.Wait()
	}
}

// watchFiles reloads the baseline when another process writes the store
// file, and applies config edits that are safe to take live: log level and
// notifications.
func (a *app) watchFiles(storePath string) {
	if a.cfg.Store.Backend == kv.BackendFile {
		w, err := watcher.New(func([]watcher.Event) {
			a.loop.ReloadBaseline()
		},
			watcher.WithDebounceDuration(300*time.Millisecond),
			watcher.WithPolling(a.cfg.Store.Poll),
			watcher.WithErrorHandler(func(err error) { a.log.WithError(err).Debug("store watcher") }),
		)
		if err == nil {
			err = w.Add(storePath)
		}
		if err != nil {
			a.log.WithError(err).Warn("not watching baseline store")
		} else {
			a.closers = append(a.closers, func() { w.Close() })
		}
	}

	stop, err := config.Watch(cfgFile, func(next *config.Config) {
		if logger != nil {
			if level, err := logging.ParseLevel(next.Log.Level); err == nil {
				logger.SetLevel(level)
			}
		}
		a.setNotifier(next)
		a.log.Info("config reloaded")
	}, a.log)
	if err != nil {
		a.log.WithError(err).Debug("not watching config file")
		return
	}
	a.closers = append(a.closers, stop)
}

// startAuto turns on auto-refresh when the config asks for it.
func (a *app) startAuto() error {
	if !a.cfg.Refresh.Auto {
		return nil
	}
	interval, err := a.cfg.AutoInterval()
	if err != nil {
		return err
	}
	return a.loop.StartAutoRefresh(interval)
}

// refreshIfSignedIn runs a first cycle in the background when a token is
// configured or a cached account exists, so long-running surfaces open
// with data.
func (a *app) refreshIfSignedIn(ctx context.Context) {
	if a.cfg.Auth.AccessToken == "" && a.provider.Account() == nil {
		return
	}
	go func() {
		if err := a.loop.RefreshOnce(ctx); err != nil {
			a.log.WithError(err).Debug("initial refresh failed")
		}
	}()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.loop.Close()

	a.mu.Lock()
	n, unsub := a.notifier, a.unsubNotify
	a.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	if n != nil {
		n.Wait()
	}
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("closing store")
	}
}

// gaugeChannels builds the display descriptions of every channel and the
// total from the config.
func gaugeChannels(c *config.Config) ([]output.Channel, output.Channel) {
	channels := make([]output.Channel, 0, len(c.Channels))
	for _, ch := range c.Channels {
		k := counter.Key(ch.Key)
		channels = append(channels, output.Channel{
			Key:        k,
			Label:      c.Label(k),
			Thresholds: c.Thresholds(k),
			Link:       ch.Link,
		})
	}
	total := output.Channel{
		Key:        counter.TotalKey,
		Label:      c.Label(counter.TotalKey),
		Thresholds: c.Thresholds(counter.TotalKey),
	}
	return channels, total
}

func kickPolicies(c *config.Config) map[counter.Key]gauge.KickPolicy {
	out := make(map[counter.Key]gauge.KickPolicy, len(c.Channels)+1)
	for _, ch := range c.Channels {
		out[counter.Key(ch.Key)] = c.KickPolicy(counter.Key(ch.Key))
	}
	out[counter.TotalKey] = c.KickPolicy(counter.TotalKey)
	return out
}

func componentLogger(name string) *logrus.Entry {
	if logger == nil {
		return logging.Discard().WithField("component", name)
	}
	return logger.Component(name)
}
