// Package events is the in-process pub/sub the refresh loop uses to tell the
// dashboard, the web surface and the notifier what happened.
package events

import (
	"container/ring"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the refresh loop.
const (
	TypeRefreshStarted   = "refresh_started"
	TypeRefreshCompleted = "refresh_completed"
	TypeRefreshFailed    = "refresh_failed"
	TypeBaselineSet      = "baseline_set"
	TypeBaselineReloaded = "baseline_reloaded"
	TypeSignedIn         = "signed_in"
	TypeSignedOut        = "signed_out"
	TypeAutoRefresh      = "auto_refresh"
)

// BusEvent is the interface that all bus events must implement
type BusEvent interface {
	EventType() string
	EventTimestamp() time.Time
	EventIdentity() string
}

// EventHandler is a callback function for event subscriptions
type EventHandler func(BusEvent)

// UnsubscribeFunc is returned from Subscribe and can be called to unsubscribe
type UnsubscribeFunc func()

type handlerEntry struct {
	id      uint64
	handler EventHandler
}

// EventBus fans events out to subscribers and keeps a short history.
type EventBus struct {
	subscribers map[string][]handlerEntry
	nextID      atomic.Uint64
	mu          sync.RWMutex
	history     *ring.Ring
	historySize int
	historyMu   sync.RWMutex
}

// NewEventBus creates a new event bus with the specified history size
func NewEventBus(historySize int) *EventBus {
	if historySize < 1 {
		historySize = 50
	}
	return &EventBus{
		subscribers: make(map[string][]handlerEntry),
		history:     ring.New(historySize),
		historySize: historySize,
	}
}

// Subscribe registers a handler for a specific event type
// Returns an unsubscribe function
func (b *EventBus) Subscribe(eventType string, handler EventHandler) UnsubscribeFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID.Add(1)
	b.subscribers[eventType] = append(b.subscribers[eventType], handlerEntry{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		handlers := b.subscribers[eventType]
		for i, h := range handlers {
			if h.id == id {
				b.subscribers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers a handler for all events (wildcard)
func (b *EventBus) SubscribeAll(handler EventHandler) UnsubscribeFunc {
	return b.Subscribe("*", handler)
}

func (b *EventBus) record(event BusEvent) []handlerEntry {
	b.historyMu.Lock()
	b.history.Value = event
	b.history = b.history.Next()
	b.historyMu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	eventType := event.EventType()
	entries := make([]handlerEntry, 0, len(b.subscribers[eventType])+len(b.subscribers["*"]))
	entries = append(entries, b.subscribers[eventType]...)
	entries = append(entries, b.subscribers["*"]...)
	return entries
}

// PublishSync delivers an event and returns once every handler is done.
// Handlers run in subscription order, so successive PublishSync calls are
// observed in order.
func (b *EventBus) PublishSync(event BusEvent) {
	for _, entry := range b.record(event) {
		entry.handler(event)
	}
}

// History returns recent events (newest first)
func (b *EventBus) History(limit int) []BusEvent {
	if limit <= 0 || limit > b.historySize {
		limit = b.historySize
	}

	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	out := make([]BusEvent, 0, limit)
	r := b.history.Prev()
	for i := 0; i < limit; i++ {
		if event, ok := r.Value.(BusEvent); ok {
			out = append(out, event)
		}
		r = r.Prev()
	}
	return out
}

// StreamJSON writes every event to w as one JSON object per line.
func (b *EventBus) StreamJSON(w io.Writer) UnsubscribeFunc {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return b.SubscribeAll(func(e BusEvent) {
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(e)
	})
}

