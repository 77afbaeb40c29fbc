// Package baseline persists one counts snapshot per signed-in identity.
package baseline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/kv"
)

// AnonymousIdentity is used when no account is signed in. Baselines stored
// under it are shared by every unauthenticated session on the same store.
const AnonymousIdentity = "anon"

const keyPrefix = "baseline:"

// Store reads and writes baselines through a kv.Store.
type Store struct {
	kv kv.Store
}

// New wraps a key-value store.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

// Key returns the storage key for identity.
func Key(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = AnonymousIdentity
	}
	return keyPrefix + identity
}

// IsKey reports whether a storage key holds a baseline.
func IsKey(key string) bool {
	return strings.HasPrefix(key, keyPrefix)
}

// Get returns the baseline for identity. A missing, unreadable or corrupt
// entry yields nil.
func (s *Store) Get(identity string) *counter.Snapshot {
	raw, ok, err := s.kv.Get(Key(identity))
	if err != nil || !ok {
		return nil
	}
	return counter.ParseSnapshot([]byte(raw))
}

// Set overwrites the baseline for identity.
func (s *Store) Set(identity string, snap counter.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding baseline: %w", err)
	}
	if err := s.kv.Set(Key(identity), string(data)); err != nil {
		return fmt.Errorf("saving baseline: %w", err)
	}
	return nil
}

// Clear removes the baseline for identity.
func (s *Store) Clear(identity string) error {
	if err := s.kv.Delete(Key(identity)); err != nil {
		return fmt.Errorf("clearing baseline: %w", err)
	}
	return nil
}
