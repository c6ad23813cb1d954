package cacheinfra

import (
	"context"
	"sort"
	"time"

	"github.com/gobwas/glob"
	"github.com/viccon/sturdyc"
	"golang.org/x/sync/singleflight"
)

// Config holds the configuration for the sturdyc backed store.
type Config struct {
	// Capacity defines the maximum number of entries that the store can hold.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of shards for concurrent access.
	// Must be greater than 0. Default: 64
	NumShards int

	// TTL is the upper bound on the lifetime of any entry. Entries written
	// without their own TTL live this long; per-entry TTLs shorter than it
	// are enforced lazily on read.
	// Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the store reaches its capacity. Must be between 1-100.
	// Default: 10
	EvictionPercentage int

	// EvictionInterval sets how often sturdyc sweeps entries older than TTL.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for a process-wide
// cache.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		TTL:                24 * time.Hour,
		EvictionPercentage: 10,
		EvictionInterval:   0, // Use default
	}
}

// ToSturdycOptions converts the Config to sturdyc.Option slice.
// Capacity, NumShards, TTL, and EvictionPercentage are passed directly
// to sturdyc.New() and are not included in the options.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// FetchFunc loads a value on a cache miss.
type FetchFunc func(ctx context.Context) (any, error)

type item struct {
	value    any
	expireAt time.Time
}

func (i item) expired(now time.Time) bool {
	return !i.expireAt.IsZero() && !now.Before(i.expireAt)
}

// Store is a bounded key/value cache with optional per-entry TTL. Expired
// entries are evicted when they are read.
type Store struct {
	client *sturdyc.Client[item]
	group  singleflight.Group
	now    func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore validates cfg and creates a sturdyc client with it.
func NewStore(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[item](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	s := &Store{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the live value for key.
func (s *Store) Get(key string) (any, bool) {
	it, ok := s.client.Get(key)
	if !ok {
		return nil, false
	}
	if it.expired(s.now()) {
		s.client.Delete(key)
		return nil, false
	}
	return it.value, true
}

// Set stores value without a TTL of its own.
func (s *Store) Set(key string, value any) {
	s.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value for ttl. A ttl of zero or less means the entry
// lives for the store-wide TTL.
func (s *Store) SetWithTTL(key string, value any, ttl time.Duration) {
	it := item{value: value}
	if ttl > 0 {
		it.expireAt = s.now().Add(ttl)
	}
	s.client.Set(key, it)
}

// Has reports whether key holds a live value.
func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Delete removes key and reports whether an entry was present.
func (s *Store) Delete(key string) bool {
	_, ok := s.client.Get(key)
	s.client.Delete(key)
	return ok
}

// Keys returns the live keys in sorted order.
func (s *Store) Keys() []string {
	now := s.now()
	keys := make([]string, 0, s.client.Size())
	for _, key := range s.client.ScanKeys() {
		it, ok := s.client.Get(key)
		if !ok {
			continue
		}
		if it.expired(now) {
			s.client.Delete(key)
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// DeleteMatching removes every key matching the glob pattern, e.g.
// "window:*:draft", and returns how many were removed.
func (s *Store) DeleteMatching(pattern string) (int, error) {
	g, err := glob.Compile(pattern, ':')
	if err != nil {
		return 0, &ConfigError{Field: "pattern", Message: err.Error()}
	}

	removed := 0
	for _, key := range s.client.ScanKeys() {
		if g.Match(key) {
			s.client.Delete(key)
			removed++
		}
	}
	return removed, nil
}

// GetOrFetch returns the live value for key or calls fetch once, even when
// several callers miss at the same time, and stores the result for ttl.
// Errors from fetch are returned and nothing is stored.
func (s *Store) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (any, error) {
	if fetch == nil {
		return nil, &ConfigError{Field: "fetch", Message: "cannot be nil"}
	}
	if value, ok := s.Get(key); ok {
		return value, nil
	}

	value, err, _ := s.group.Do(key, func() (any, error) {
		if value, ok := s.Get(key); ok {
			return value, nil
		}
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.SetWithTTL(key, value, ttl)
		return value, nil
	})
	return value, err
}

// Len returns the number of stored entries, expired ones included until
// they are read.
func (s *Store) Len() int {
	return s.client.Size()
}

// Clear removes every entry.
func (s *Store) Clear() {
	for _, key := range s.client.ScanKeys() {
		s.client.Delete(key)
	}
}
