package notify

import (
	"fmt"

	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/events"
	"github.com/theirongolddev/redline/internal/gauge"
)

// Limits maps each channel key, and counter.TotalKey, to its thresholds.
type Limits map[counter.Key]gauge.Thresholds

// Detect compares two consecutive cycles and returns the alerts they raise.
// A redline alert fires only on the cycle a gauge first reaches its redline.
// prev is nil on the first cycle of a session; then only redline alerts are
// possible.
func Detect(set counter.ChannelSet, prev *counter.Counts, cur counter.Counts, limits Limits) []Event {
	var out []Event

	keys := append(set.Keys(), counter.TotalKey)
	for _, k := range keys {
		t, ok := limits[k]
		if !ok || t.Redline <= 0 {
			continue
		}
		now := cur.Get(k)
		if now < t.Redline {
			continue
		}
		before := 0
		if prev != nil {
			before = prev.Get(k)
			if before >= t.Redline {
				continue
			}
		}
		out = append(out, Event{
			Kind:     KindRedline,
			Channel:  string(k),
			Count:    now,
			Previous: before,
			Redline:  t.Redline,
			Message:  fmt.Sprintf("%s at %d unread (redline %d)", k, now, t.Redline),
		})
	}

	if prev != nil && cur.Total > prev.Total {
		out = append(out, Event{
			Kind:     KindIncrease,
			Channel:  string(counter.TotalKey),
			Count:    cur.Total,
			Previous: prev.Total,
			Message:  fmt.Sprintf("%s new unread (%d total)", counter.FormatDelta(cur.Total-prev.Total), cur.Total),
		})
	}
	return out
}

// Watch subscribes the notifier to a loop's events. Sends happen in the
// background so the publishing cycle is never held up.
func (n *Notifier) Watch(bus *events.EventBus, set counter.ChannelSet, limits Limits) events.UnsubscribeFunc {
	unsubCompleted := bus.Subscribe(events.TypeRefreshCompleted, func(e events.BusEvent) {
		done, ok := e.(events.RefreshCompletedEvent)
		if !ok {
			return
		}
		for _, alert := range Detect(set, done.Previous, done.Counts, limits) {
			alert.Identity = done.Identity
			alert.Timestamp = done.Timestamp
			n.Dispatch(alert)
		}
	})
	unsubFailed := bus.Subscribe(events.TypeRefreshFailed, func(e events.BusEvent) {
		failed, ok := e.(events.RefreshFailedEvent)
		if !ok {
			return
		}
		n.Dispatch(Event{
			Kind:      KindCheck,
			Timestamp: failed.Timestamp,
			Identity:  failed.Identity,
			Message:   fmt.Sprintf("refresh failed (%s): %s", failed.Kind, failed.Error),
		})
	})
	return func() {
		unsubCompleted()
		unsubFailed()
	}
}
