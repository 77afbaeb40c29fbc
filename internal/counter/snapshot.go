package counter

import (
	"encoding/json"
	"math"
	"time"
)

// Snapshot is a captured set of counts used as the reference point for
// deltas. One snapshot exists per identity and is overwritten on capture.
type Snapshot struct {
	CapturedAt time.Time
	Counts     map[Key]int
}

// NewSnapshot captures the given values over set. Channels with no value
// are stored as zero.
func NewSnapshot(set ChannelSet, values map[Key]int, at time.Time) Snapshot {
	counts := make(map[Key]int, set.Len())
	for _, k := range set.keys {
		counts[k] = values[k]
	}
	return Snapshot{CapturedAt: at, Counts: counts}
}

// snapshotWire is the persisted form: {"time": <unix ms>, "counts": {...}}.
type snapshotWire struct {
	Time   int64                      `json:"time"`
	Counts map[string]json.RawMessage `json:"counts"`
}

// MarshalJSON writes the persisted wire form.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	counts := make(map[string]int, len(s.Counts))
	for k, v := range s.Counts {
		counts[string(k)] = v
	}
	return json.Marshal(struct {
		Time   int64          `json:"time"`
		Counts map[string]int `json:"counts"`
	}{
		Time:   s.CapturedAt.UnixMilli(),
		Counts: counts,
	})
}

// UnmarshalJSON reads the wire form. Count entries that are not finite
// numbers are dropped, so they read back as zero.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w snapshotWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.CapturedAt = time.UnixMilli(w.Time)
	s.Counts = nil
	if w.Counts == nil {
		return nil
	}
	s.Counts = make(map[Key]int, len(w.Counts))
	for k, raw := range w.Counts {
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		s.Counts[Key(k)] = int(f)
	}
	return nil
}

// ParseSnapshot decodes a persisted snapshot. Corrupt input and snapshots
// without a counts object yield nil rather than an error.
func ParseSnapshot(data []byte) *Snapshot {
	if len(data) == 0 {
		return nil
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if s.Counts == nil {
		return nil
	}
	return &s
}
