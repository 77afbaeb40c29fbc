// Package refresh owns the dashboard session: it runs refresh cycles
// (token, resolve, aggregate), keeps the last published counts and drives
// the optional auto-refresh timer.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/theirongolddev/redline/internal/auth"
	"github.com/theirongolddev/redline/internal/baseline"
	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/events"
)

var (
	// ErrBusy is returned when a refresh is triggered while one is in flight.
	// The trigger is dropped.
	ErrBusy = errors.New("refresh already in progress")

	// ErrStale is returned by a cycle whose session was signed out while it
	// was in flight. Its result is discarded.
	ErrStale = errors.New("refresh result discarded after sign-out")
)

// Error kinds reported on failed cycles.
const (
	KindAuth      = "auth"
	KindTransport = "transport"
)

// State is the loop's position in its cycle.
type State int

const (
	StateIdle State = iota
	StatePulling
	StateLive
	StateError
)

func (s State) String() string {
	switch s {
	case StatePulling:
		return "pulling"
	case StateLive:
		return "live"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// MarshalText lets State serialize as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Resolver produces the counts for one cycle.
type Resolver interface {
	Set() counter.ChannelSet
	Resolve(ctx context.Context, token string) (counter.Counts, error)
}

// Snapshot is a consistent copy of the loop's published state.
type Snapshot struct {
	State        State             `json:"state"`
	Identity     string            `json:"identity,omitempty"`
	Username     string            `json:"username,omitempty"`
	CycleID      string            `json:"cycle_id,omitempty"`
	Counts       *counter.Counts   `json:"counts,omitempty"`
	Deltas       *counter.DeltaSet `json:"deltas,omitempty"`
	Baseline     *counter.Snapshot `json:"-"`
	BaselineAt   *time.Time        `json:"baseline_at,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at,omitempty"`
	CheckedAt    time.Time         `json:"checked_at,omitempty"`
	Latency      time.Duration     `json:"latency_ns,omitempty"`
	Error        string            `json:"error,omitempty"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	Auto         bool              `json:"auto"`
	AutoInterval time.Duration     `json:"auto_interval_ns,omitempty"`
}

// SignedIn reports whether an account is active.
func (s Snapshot) SignedIn() bool {
	return s.Identity != ""
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(entry *logrus.Entry) Option {
	return func(l *Loop) {
		if entry != nil {
			l.log = entry
		}
	}
}

// WithBus sets the event bus the loop publishes to.
func WithBus(bus *events.EventBus) Option {
	return func(l *Loop) {
		if bus != nil {
			l.bus = bus
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
	}
}

// Loop is one dashboard session. All methods are safe for concurrent use.
type Loop struct {
	provider  auth.Provider
	resolver  Resolver
	baselines *baseline.Store
	bus       *events.EventBus
	log       *logrus.Entry
	now       func() time.Time

	mu           sync.Mutex
	state        State
	account      *auth.Account
	counts       *counter.Counts
	deltas       *counter.DeltaSet
	base         *counter.Snapshot
	updatedAt    time.Time
	checkedAt    time.Time
	latency      time.Duration
	lastErr      error
	errKind      string
	cycleID      string
	generation   uint64
	autoStop     chan struct{}
	autoInterval time.Duration
}

// New creates a loop. The provider's cached account, if any, becomes the
// active identity without a network call.
func New(provider auth.Provider, resolver Resolver, baselines *baseline.Store, opts ...Option) *Loop {
	l := &Loop{
		provider:  provider,
		resolver:  resolver,
		baselines: baselines,
		bus:       events.NewEventBus(50),
		log:       logrus.NewEntry(logrus.StandardLogger()),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.WithField("component", "refresh")
	l.account = provider.Account()
	l.base = baselines.Get(l.account.Identity())
	return l
}

// Bus returns the event bus the loop publishes to.
func (l *Loop) Bus() *events.EventBus {
	return l.bus
}

// History returns up to limit recent events, newest first.
func (l *Loop) History(limit int) []events.BusEvent {
	return l.bus.History(limit)
}

// Subscribe registers fn for every event the loop publishes.
func (l *Loop) Subscribe(fn events.EventHandler) events.UnsubscribeFunc {
	return l.bus.SubscribeAll(fn)
}

// Channels returns the channel set counts are reported over.
func (l *Loop) Channels() counter.ChannelSet {
	return l.resolver.Set()
}

// Snapshot returns a copy of the published state.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Loop) snapshotLocked() Snapshot {
	s := Snapshot{
		State:        l.state,
		Identity:     l.account.Identity(),
		Username:     l.account.DisplayName(),
		CycleID:      l.cycleID,
		UpdatedAt:    l.updatedAt,
		CheckedAt:    l.checkedAt,
		Latency:      l.latency,
		ErrorKind:    l.errKind,
		Auto:         l.autoStop != nil,
		AutoInterval: l.autoInterval,
	}
	if l.counts != nil {
		c := copyCounts(*l.counts)
		s.Counts = &c
	}
	if l.deltas != nil {
		d := counter.DeltaSet{Values: copyMap(l.deltas.Values), Total: l.deltas.Total}
		s.Deltas = &d
	}
	if l.base != nil {
		b := counter.Snapshot{CapturedAt: l.base.CapturedAt, Counts: copyMap(l.base.Counts)}
		s.Baseline = &b
		at := b.CapturedAt
		s.BaselineAt = &at
	}
	if l.lastErr != nil {
		s.Error = l.lastErr.Error()
	}
	if !s.Auto {
		s.AutoInterval = 0
	}
	return s
}

// RefreshOnce runs one cycle. It returns ErrBusy without doing anything if
// a cycle is already in flight, and ErrStale if the session was signed out
// before the cycle finished.
func (l *Loop) RefreshOnce(ctx context.Context) error {
	l.mu.Lock()
	if l.state == StatePulling {
		l.mu.Unlock()
		return ErrBusy
	}
	l.state = StatePulling
	gen := l.generation
	cycleID := uuid.NewString()
	l.cycleID = cycleID
	identity := l.account.Identity()
	l.mu.Unlock()

	log := l.log.WithField("cycle_id", cycleID)
	l.bus.PublishSync(events.NewRefreshStartedEvent(identity, cycleID))
	start := l.now()

	token, err := l.provider.Token(ctx)
	if err != nil {
		return l.fail(gen, cycleID, KindAuth, err, log)
	}

	acct := l.provider.Account()
	counts, err := l.resolver.Resolve(ctx, token)
	if err != nil {
		return l.fail(gen, cycleID, KindTransport, err, log)
	}

	base := l.baselines.Get(acct.Identity())
	_, deltas := counter.Aggregate(l.resolver.Set(), counts.Values, base)
	finished := l.now()
	latency := finished.Sub(start)

	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		log.Debug("discarding cycle completed after sign-out")
		return ErrStale
	}
	prev := l.counts
	signedIn := l.account.Identity() == "" && acct.Identity() != ""
	l.account = acct
	l.counts = &counts
	l.deltas = deltas
	l.base = base
	l.updatedAt = finished
	l.checkedAt = finished
	l.latency = latency
	l.lastErr = nil
	l.errKind = ""
	l.state = StateLive
	l.mu.Unlock()

	log.WithFields(logrus.Fields{
		"total":   counts.Total,
		"latency": latency.Round(time.Millisecond),
	}).Info("refresh complete")

	if signedIn {
		l.bus.PublishSync(events.NewSignedInEvent(acct.Identity(), acct.DisplayName()))
	}
	l.bus.PublishSync(events.NewRefreshCompletedEvent(acct.Identity(), cycleID, counts, prev, deltas, latency))
	return nil
}

func (l *Loop) fail(gen uint64, cycleID, kind string, err error, log *logrus.Entry) error {
	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		return ErrStale
	}
	l.state = StateError
	l.lastErr = err
	l.errKind = kind
	l.checkedAt = l.now()
	identity := l.account.Identity()
	l.mu.Unlock()

	log.WithError(err).WithField("kind", kind).Warn("refresh failed")
	l.bus.PublishSync(events.NewRefreshFailedEvent(identity, cycleID, kind, err))
	return fmt.Errorf("refresh: %w", err)
}

// SetBaselineFromCurrent captures the displayed counts as the baseline for
// the active identity. Channels never displayed are captured as zero. Deltas
// are recomputed from the displayed counts without a network round trip.
func (l *Loop) SetBaselineFromCurrent() (counter.Snapshot, error) {
	l.mu.Lock()
	set := l.resolver.Set()
	var values map[counter.Key]int
	if l.counts != nil {
		values = copyMap(l.counts.Values)
	}
	identity := l.account.Identity()
	gen := l.generation
	l.mu.Unlock()

	snap := counter.NewSnapshot(set, values, l.now())
	if err := l.baselines.Set(identity, snap); err != nil {
		return counter.Snapshot{}, err
	}

	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		return snap, nil
	}
	l.base = &snap
	if l.counts != nil {
		_, l.deltas = counter.Aggregate(set, l.counts.Values, l.base)
	}
	deltas := l.deltas
	l.mu.Unlock()

	l.log.WithField("captured_at", snap.CapturedAt).Info("baseline set")
	l.bus.PublishSync(events.NewBaselineSetEvent(identity, snap.CapturedAt, deltas))
	return snap, nil
}

// ReloadBaseline re-reads the active identity's baseline from the store,
// for when another process has changed it.
func (l *Loop) ReloadBaseline() {
	l.mu.Lock()
	identity := l.account.Identity()
	l.mu.Unlock()

	base := l.baselines.Get(identity)

	l.mu.Lock()
	if l.account.Identity() != identity {
		l.mu.Unlock()
		return
	}
	changed := !sameBaseline(l.base, base)
	l.base = base
	if l.counts != nil {
		_, l.deltas = counter.Aggregate(l.resolver.Set(), l.counts.Values, base)
	}
	deltas := l.deltas
	l.mu.Unlock()

	if !changed {
		return
	}
	var at time.Time
	if base != nil {
		at = base.CapturedAt
	}
	l.log.Debug("baseline reloaded from store")
	l.bus.PublishSync(events.NewBaselineReloadedEvent(identity, at, deltas))
}

// ClearBaseline deletes the active identity's baseline.
func (l *Loop) ClearBaseline() error {
	l.mu.Lock()
	identity := l.account.Identity()
	l.mu.Unlock()

	if err := l.baselines.Clear(identity); err != nil {
		return err
	}
	l.ReloadBaseline()
	return nil
}

// StartAutoRefresh refreshes every interval until stopped. Restarting
// replaces the running timer.
func (l *Loop) StartAutoRefresh(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("auto-refresh interval must be positive, got %s", interval)
	}

	l.mu.Lock()
	l.stopAutoLocked()
	stop := make(chan struct{})
	l.autoStop = stop
	l.autoInterval = interval
	identity := l.account.Identity()
	l.mu.Unlock()

	go l.runAuto(stop, interval)

	l.log.WithField("interval", interval).Info("auto-refresh on")
	l.bus.PublishSync(events.NewAutoRefreshEvent(identity, true, interval))
	return nil
}

// StopAutoRefresh stops the auto-refresh timer, if running.
func (l *Loop) StopAutoRefresh() {
	l.mu.Lock()
	stopped := l.stopAutoLocked()
	identity := l.account.Identity()
	l.mu.Unlock()

	if stopped {
		l.log.Info("auto-refresh off")
		l.bus.PublishSync(events.NewAutoRefreshEvent(identity, false, 0))
	}
}

// ToggleAutoRefresh flips the timer and reports whether it is now running.
func (l *Loop) ToggleAutoRefresh(interval time.Duration) (bool, error) {
	l.mu.Lock()
	running := l.autoStop != nil
	l.mu.Unlock()

	if running {
		l.StopAutoRefresh()
		return false, nil
	}
	if err := l.StartAutoRefresh(interval); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Loop) stopAutoLocked() bool {
	if l.autoStop == nil {
		return false
	}
	close(l.autoStop)
	l.autoStop = nil
	return true
}

func (l *Loop) runAuto(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			err := l.RefreshOnce(context.Background())
			if errors.Is(err, ErrBusy) {
				l.log.Debug("auto-refresh tick skipped: cycle in flight")
			}
		}
	}
}

// SignIn activates an account and refreshes immediately.
func (l *Loop) SignIn(ctx context.Context) error {
	acct, err := l.provider.SignIn(ctx)
	if err != nil {
		l.log.WithError(err).Warn("sign-in failed")
		return err
	}
	if acct == nil {
		acct = l.provider.Account()
	}

	l.mu.Lock()
	l.account = acct
	l.base = l.baselines.Get(acct.Identity())
	l.mu.Unlock()

	l.log.WithField("account", acct.DisplayName()).Info("signed in")
	l.bus.PublishSync(events.NewSignedInEvent(acct.Identity(), acct.DisplayName()))

	if err := l.RefreshOnce(ctx); err != nil && !errors.Is(err, ErrBusy) {
		return err
	}
	return nil
}

// SignOut resets the session: counts are cleared, auto-refresh stops and any
// cycle still in flight is discarded when it completes.
func (l *Loop) SignOut(ctx context.Context) error {
	l.mu.Lock()
	identity := l.account.Identity()
	l.generation++
	l.state = StateIdle
	l.account = nil
	l.counts = nil
	l.deltas = nil
	l.base = nil
	l.updatedAt = time.Time{}
	l.checkedAt = time.Time{}
	l.latency = 0
	l.lastErr = nil
	l.errKind = ""
	l.cycleID = ""
	autoWasOn := l.stopAutoLocked()
	l.mu.Unlock()

	if autoWasOn {
		l.bus.PublishSync(events.NewAutoRefreshEvent(identity, false, 0))
	}
	l.bus.PublishSync(events.NewSignedOutEvent(identity))

	if err := l.provider.SignOut(ctx); err != nil {
		l.log.WithError(err).Warn("provider sign-out failed")
		return err
	}
	return nil
}

// Close stops background work.
func (l *Loop) Close() {
	l.mu.Lock()
	l.stopAutoLocked()
	l.mu.Unlock()
}

func copyCounts(c counter.Counts) counter.Counts {
	return counter.Counts{Values: copyMap(c.Values), Total: c.Total}
}

func copyMap(m map[counter.Key]int) map[counter.Key]int {
	if m == nil {
		return nil
	}
	out := make(map[counter.Key]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sameBaseline(a, b *counter.Snapshot) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !a.CapturedAt.Equal(b.CapturedAt) || len(a.Counts) != len(b.Counts) {
		return false
	}
	for k, v := range a.Counts {
		if bv, ok := b.Counts[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
