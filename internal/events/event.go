package events

import (
	"time"

	"github.com/theirongolddev/redline/internal/counter"
)

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Identity  string    `json:"identity,omitempty"`
}

// EventType returns the event type
func (e BaseEvent) EventType() string { return e.Type }

// EventTimestamp returns the event timestamp
func (e BaseEvent) EventTimestamp() time.Time { return e.Timestamp }

// EventIdentity returns the account the event belongs to
func (e BaseEvent) EventIdentity() string { return e.Identity }

func newBase(eventType, identity string) BaseEvent {
	return BaseEvent{Type: eventType, Timestamp: time.Now().UTC(), Identity: identity}
}

// RefreshStartedEvent marks the start of a refresh cycle.
type RefreshStartedEvent struct {
	BaseEvent
	CycleID string `json:"cycle_id"`
}

// NewRefreshStartedEvent creates a new refresh started event
func NewRefreshStartedEvent(identity, cycleID string) RefreshStartedEvent {
	return RefreshStartedEvent{BaseEvent: newBase(TypeRefreshStarted, identity), CycleID: cycleID}
}

// RefreshCompletedEvent carries the outcome of a successful cycle.
// Previous is nil on the first cycle of a session.
type RefreshCompletedEvent struct {
	BaseEvent
	CycleID   string            `json:"cycle_id"`
	Counts    counter.Counts    `json:"counts"`
	Previous  *counter.Counts   `json:"previous,omitempty"`
	Deltas    *counter.DeltaSet `json:"deltas,omitempty"`
	LatencyMS int64             `json:"latency_ms"`
}

// NewRefreshCompletedEvent creates a new refresh completed event
func NewRefreshCompletedEvent(identity, cycleID string, counts counter.Counts, previous *counter.Counts, deltas *counter.DeltaSet, latency time.Duration) RefreshCompletedEvent {
	return RefreshCompletedEvent{
		BaseEvent: newBase(TypeRefreshCompleted, identity),
		CycleID:   cycleID,
		Counts:    counts,
		Previous:  previous,
		Deltas:    deltas,
		LatencyMS: latency.Milliseconds(),
	}
}

// RefreshFailedEvent reports a cycle that ended in the error state.
type RefreshFailedEvent struct {
	BaseEvent
	CycleID string `json:"cycle_id"`
	Kind    string `json:"kind"` // "auth" or "transport"
	Error   string `json:"error"`
}

// NewRefreshFailedEvent creates a new refresh failed event
func NewRefreshFailedEvent(identity, cycleID, kind string, err error) RefreshFailedEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return RefreshFailedEvent{
		BaseEvent: newBase(TypeRefreshFailed, identity),
		CycleID:   cycleID,
		Kind:      kind,
		Error:     msg,
	}
}

// BaselineEvent reports a captured or externally reloaded baseline.
type BaselineEvent struct {
	BaseEvent
	CapturedAt time.Time         `json:"captured_at"`
	Deltas     *counter.DeltaSet `json:"deltas,omitempty"`
}

// NewBaselineSetEvent creates a new baseline set event
func NewBaselineSetEvent(identity string, capturedAt time.Time, deltas *counter.DeltaSet) BaselineEvent {
	return BaselineEvent{BaseEvent: newBase(TypeBaselineSet, identity), CapturedAt: capturedAt, Deltas: deltas}
}

// NewBaselineReloadedEvent creates a new baseline reloaded event
func NewBaselineReloadedEvent(identity string, capturedAt time.Time, deltas *counter.DeltaSet) BaselineEvent {
	return BaselineEvent{BaseEvent: newBase(TypeBaselineReloaded, identity), CapturedAt: capturedAt, Deltas: deltas}
}

// AccountEvent reports a sign-in or sign-out.
type AccountEvent struct {
	BaseEvent
	Username string `json:"username,omitempty"`
}

// NewSignedInEvent creates a new signed in event
func NewSignedInEvent(identity, username string) AccountEvent {
	return AccountEvent{BaseEvent: newBase(TypeSignedIn, identity), Username: username}
}

// NewSignedOutEvent creates a new signed out event
func NewSignedOutEvent(identity string) AccountEvent {
	return AccountEvent{BaseEvent: newBase(TypeSignedOut, identity)}
}

// AutoRefreshEvent reports the auto-refresh timer being started or stopped.
type AutoRefreshEvent struct {
	BaseEvent
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval,omitempty"`
}

// NewAutoRefreshEvent creates a new auto refresh event
func NewAutoRefreshEvent(identity string, enabled bool, interval time.Duration) AutoRefreshEvent {
	e := AutoRefreshEvent{BaseEvent: newBase(TypeAutoRefresh, identity), Enabled: enabled}
	if enabled {
		e.Interval = interval.String()
	}
	return e
}
