// Package tier holds the key/value maps behind the three cache tiers.
//
// The types here are not safe for concurrent use; the cache service
// serialises access to them.
package tier

import (
	"time"

	"github.com/goliatone/go-tiered-cache/internal/equality"
)

// Entry is the value envelope stored by the memory and shared tiers.
// A zero ExpireAt means the entry never expires.
type Entry struct {
	Value    any
	ExpireAt time.Time
}

// Expired reports whether the entry is logically absent at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpireAt.IsZero() && !now.Before(e.ExpireAt)
}

// HasTTL reports whether the entry carries an expiry.
func (e Entry) HasTTL() bool {
	return !e.ExpireAt.IsZero()
}

// ExpireAt converts a relative ttl into an absolute deadline. A ttl of zero
// or less yields the zero time.
func ExpireAt(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// Outcome describes what a write did to the store.
type Outcome int

const (
	// Unchanged means value and expiry were already in place.
	Unchanged Outcome = iota
	// TTLOnly means the value was equal but the expiry moved.
	TTLOnly
	// Changed means the value was replaced or created.
	Changed
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case TTLOnly:
		return "ttl-only"
	case Changed:
		return "changed"
	}
	return "unknown"
}

// Store is a string-keyed map of entries with lazy TTL eviction.
type Store struct {
	entries map[string]*Entry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*Entry)}
}

// Get returns the live entry for key. Expired entries are removed and
// reported through evicted so the caller can notify observers.
func (s *Store) Get(key string, now time.Time) (entry Entry, ok bool, evicted bool) {
	e, found := s.entries[key]
	if !found {
		return Entry{}, false, false
	}
	if e.Expired(now) {
		delete(s.entries, key)
		return Entry{}, false, true
	}
	return *e, true, false
}

// Peek returns the stored entry without evicting it.
func (s *Store) Peek(key string) (Entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Set writes value under key, comparing against the current entry with
// equality.Same. An equal value with a different expiry only moves the
// expiry in place. An expired current entry counts as absent.
func (s *Store) Set(key string, value any, expireAt time.Time, now time.Time) Outcome {
	if current, ok := s.entries[key]; ok && !current.Expired(now) && equality.Same(current.Value, value) {
		if current.ExpireAt.Equal(expireAt) {
			return Unchanged
		}
		current.ExpireAt = expireAt
		return TTLOnly
	}

	s.entries[key] = &Entry{Value: value, ExpireAt: expireAt}
	return Changed
}

// Put overwrites key unconditionally. Used when applying peer updates.
func (s *Store) Put(key string, entry Entry) {
	e := entry
	s.entries[key] = &e
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	return true
}

// Contains reports raw membership, ignoring expiry.
func (s *Store) Contains(key string) bool {
	_, ok := s.entries[key]
	return ok
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	return len(s.entries)
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.entries = make(map[string]*Entry)
}
