// Package counter aggregates per-channel unread counts into a total and
// computes deltas against a captured baseline.
package counter

import (
	"fmt"
	"strings"
)

// Key identifies a logical channel (e.g. "outlook", "slack").
type Key string

// TotalKey is reserved for the aggregate gauge and never names a channel.
const TotalKey Key = "total"

// ChannelSet is the ordered, closed set of channel keys known at
// configuration time.
type ChannelSet struct {
	keys []Key
}

// NewChannelSet builds a channel set. Keys must be non-empty, unique and must
// not collide with TotalKey.
func NewChannelSet(keys ...Key) (ChannelSet, error) {
	seen := make(map[Key]bool, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		k = Key(strings.TrimSpace(string(k)))
		if k == "" {
			return ChannelSet{}, fmt.Errorf("channel key cannot be empty")
		}
		if k == TotalKey {
			return ChannelSet{}, fmt.Errorf("channel key %q is reserved", k)
		}
		if seen[k] {
			return ChannelSet{}, fmt.Errorf("duplicate channel key %q", k)
		}
		seen[k] = true
		out = append(out, k)
	}
	if len(out) == 0 {
		return ChannelSet{}, fmt.Errorf("channel set cannot be empty")
	}
	return ChannelSet{keys: out}, nil
}

// MustChannelSet is like NewChannelSet but panics on error. Intended for
// tests and package-level defaults.
func MustChannelSet(keys ...Key) ChannelSet {
	s, err := NewChannelSet(keys...)
	if err != nil {
		panic(err)
	}
	return s
}

// Keys returns the channel keys in configuration order.
func (s ChannelSet) Keys() []Key {
	out := make([]Key, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of channels.
func (s ChannelSet) Len() int { return len(s.keys) }

// Has reports whether k belongs to the set.
func (s ChannelSet) Has(k Key) bool {
	for _, key := range s.keys {
		if key == k {
			return true
		}
	}
	return false
}

// Counts maps every channel of a set to a non-negative unread count.
// A Counts value is created fresh on every refresh cycle.
type Counts struct {
	Values map[Key]int `json:"counts"`
	Total  int         `json:"total"`
}

// NewCounts builds Counts over set from raw values. Channels absent from raw
// count as zero, negatives are clamped to zero and keys outside the set are
// ignored. Total is always the sum of the set's channels.
func NewCounts(set ChannelSet, raw map[Key]int) Counts {
	c := Counts{Values: make(map[Key]int, set.Len())}
	for _, k := range set.keys {
		v := raw[k]
		if v < 0 {
			v = 0
		}
		c.Values[k] = v
	}
	c.Total = Sum(set, c.Values)
	return c
}

// Get returns the count for k, or zero.
func (c Counts) Get(k Key) int {
	if k == TotalKey {
		return c.Total
	}
	return c.Values[k]
}

// Sum adds up the values of the set's channels.
func Sum(set ChannelSet, values map[Key]int) int {
	total := 0
	for _, k := range set.keys {
		total += values[k]
	}
	return total
}

// DeltaSet holds signed differences between current counts and a baseline.
// Total is the sum of the per-channel deltas.
type DeltaSet struct {
	Values map[Key]int `json:"deltas"`
	Total  int         `json:"total"`
}

// Get returns the delta for k, or zero.
func (d *DeltaSet) Get(k Key) int {
	if d == nil {
		return 0
	}
	if k == TotalKey {
		return d.Total
	}
	return d.Values[k]
}

// Aggregate computes the total over set and, when a baseline with counts is
// present, the delta of each channel against it. A baseline entry missing
// for a channel is treated as zero. Without a usable baseline the returned
// DeltaSet is nil.
func Aggregate(set ChannelSet, counts map[Key]int, base *Snapshot) (int, *DeltaSet) {
	total := Sum(set, counts)
	if base == nil || base.Counts == nil {
		return total, nil
	}

	d := &DeltaSet{Values: make(map[Key]int, set.Len())}
	for _, k := range set.keys {
		delta := counts[k] - base.Counts[k]
		d.Values[k] = delta
		d.Total += delta
	}
	return total, d
}

// FormatDelta renders a delta with an explicit sign ("+3", "-2", "+0").
func FormatDelta(n int) string {
	if n < 0 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("+%d", n)
}
