package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-tiered-cache/internal/persist"
	"github.com/goliatone/go-tiered-cache/internal/registry"
	"github.com/goliatone/go-tiered-cache/internal/tier"
	"github.com/goliatone/go-tiered-cache/pkg/storage"
)

// Service is the per-process cache with three tiers:
//
//   - memory: process local, optional TTL
//   - shared: mirrored to every peer through the Relay, optional TTL
//   - persist: schema-closed, mirrored to peers and saved to Storage
//
// All tier operations are synchronous and safe for concurrent use.
// Subscribers are notified after the service lock is released, so callbacks
// may read and write the cache. Sync messages reach the relay in the order
// the writes were applied. Values handed to the shared and persist tiers are
// kept by reference and must not be mutated afterwards.
type Service struct {
	cfg      Config
	schema   Schema
	logger   *slog.Logger
	now      func() time.Time
	relay    Relay
	storage  Storage
	teardown TeardownFunc
	peerID   string

	mu           sync.Mutex
	memory       *tier.Store
	shared       *tier.Store
	persist      *tier.Persistent
	initialized  bool
	stopRelay    func()
	stopTeardown func()
	outbox       []Message

	sendMu sync.Mutex
	subs     *registry.Subscriptions
	pins   *registry.Pins
	writer *persist.Writer
}

// New builds a Service for schema. Call Initialize before use of the
// persistent tier.
func New(schema Schema, cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		schema:  schema,
		logger:  slog.Default().With("component", "cache-service"),
		now:     time.Now,
		storage: storage.NewMemoryStore(),
		peerID:  uuid.New().String(),
		memory:  tier.NewStore(),
		shared:  tier.NewStore(),
		persist: tier.NewPersistent(schema),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.subs = registry.NewSubscriptions(s.logger)
	s.pins = registry.NewPins()
	s.writer = persist.NewWriter(s.storage, cfg.toWriter(), s.persistSnapshot, s.logger)
	return s, nil
}

// PeerID returns the origin id stamped on outgoing sync messages.
func (s *Service) PeerID() string {
	return s.peerID
}

// Initialize loads the persistent tier, starts listening to peers and
// registers the teardown flush. Calling it again is a no-op.
func (s *Service) Initialize() {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		s.logger.Warn("cache service already initialized")
		return
	}
	s.initialized = true
	s.mu.Unlock()

	values := s.writer.Load(s.schema)

	s.mu.Lock()
	s.persist.Replace(values)
	s.mu.Unlock()
	s.writer.Start()

	var stopRelay, stopTeardown func()
	if s.relay != nil {
		stopRelay = s.relay.Subscribe(s.HandleMessage)
	} else {
		s.logger.Warn("cache sync relay not available")
	}
	if s.teardown != nil {
		stopTeardown = s.teardown(func() { s.Flush() })
	}

	s.mu.Lock()
	s.stopRelay = stopRelay
	s.stopTeardown = stopTeardown
	s.mu.Unlock()

	s.logger.Debug("cache service initialized", "peer", s.peerID, "persist_keys", len(values))
}

// Flush writes pending persistent changes right away. It reports whether a
// save was attempted.
func (s *Service) Flush() bool {
	return s.writer.Flush()
}

// Cleanup flushes dirty persistent state, detaches from the relay and clears
// every tier, subscription and pin. The service may be initialized again.
func (s *Service) Cleanup() {
	s.mu.Lock()
	stopRelay, stopTeardown := s.stopRelay, s.stopTeardown
	s.stopRelay, s.stopTeardown = nil, nil
	s.mu.Unlock()

	if stopRelay != nil {
		stopRelay()
	}
	if stopTeardown != nil {
		stopTeardown()
	}

	s.writer.Close()

	s.mu.Lock()
	s.memory.Clear()
	s.shared.Clear()
	s.persist.Clear()
	s.outbox = nil
	s.initialized = false
	s.mu.Unlock()

	s.subs.Clear()
	s.pins.Clear()

	s.logger.Debug("cache service cleanup completed")
}

// ---- memory tier ----

// Get returns the memory value for key. Expired entries are evicted on read
// and their subscribers notified.
func (s *Service) Get(key string) (any, bool) {
	return s.get(s.memory, key)
}

// Set stores value in the memory tier without expiry.
func (s *Service) Set(key string, value any) {
	s.set(s.memory, TierMemory, key, value, 0)
}

// SetWithTTL stores value in the memory tier for ttl. A ttl of zero or less
// means no expiry.
func (s *Service) SetWithTTL(key string, value any, ttl time.Duration) {
	s.set(s.memory, TierMemory, key, value, ttl)
}

// Has reports whether key holds a live memory value.
func (s *Service) Has(key string) bool {
	return s.has(s.memory, key)
}

// Delete removes key from the memory tier. It returns false, leaving the
// entry in place, when the key is pinned.
func (s *Service) Delete(key string) bool {
	ok, _ := s.del(s.memory, TierMemory, key)
	return ok
}

// HasTTL reports whether the memory entry for key carries an expiry.
func (s *Service) HasTTL(key string) bool {
	return s.hasTTL(s.memory, key)
}

// ---- shared tier ----

// GetShared returns the shared value for key from the local mirror.
func (s *Service) GetShared(key string) (any, bool) {
	return s.get(s.shared, key)
}

// SetShared stores value in the shared tier and broadcasts it to peers.
func (s *Service) SetShared(key string, value any) {
	s.setShared(key, value, 0)
}

// SetSharedWithTTL stores value in the shared tier for ttl and broadcasts it.
func (s *Service) SetSharedWithTTL(key string, value any, ttl time.Duration) {
	s.setShared(key, value, ttl)
}

func (s *Service) setShared(key string, value any, ttl time.Duration) {
	if out := s.set(s.shared, TierShared, key, value, ttl); out != tier.Unchanged {
		s.drainOutbox()
	}
}

// HasShared reports whether key holds a live shared value.
func (s *Service) HasShared(key string) bool {
	return s.has(s.shared, key)
}

// DeleteShared removes key from the shared tier and tells peers. It returns
// false when the key is pinned.
func (s *Service) DeleteShared(key string) bool {
	ok, existed := s.del(s.shared, TierShared, key)
	if existed {
		s.drainOutbox()
	}
	return ok
}

// HasSharedTTL reports whether the shared entry for key carries an expiry.
func (s *Service) HasSharedTTL(key string) bool {
	return s.hasTTL(s.shared, key)
}

// ---- persist tier ----

// GetPersist returns the persistent value for key. A key outside the schema
// is a programming error and returns an error.
func (s *Service) GetPersist(key string) (any, error) {
	s.mu.Lock()
	if !s.persist.Known(key) {
		s.mu.Unlock()
		return nil, unknownPersistKey(key)
	}
	if value, ok := s.persist.Get(key); ok {
		s.mu.Unlock()
		return value, nil
	}
	def, _ := s.persist.Default(key)
	s.persist.Put(key, def)
	s.mu.Unlock()

	s.writer.Schedule()
	s.logger.Warn("missing persist cache key, using default value", "key", key)
	return def, nil
}

// SetPersist stores value when it differs structurally from the current
// one, notifies subscribers, broadcasts to peers and schedules a save. A
// value that cannot be encoded into the blob is rejected and nothing changes.
func (s *Service) SetPersist(key string, value any) error {
	if err := encodable(value); err != nil {
		return invalidValue(key, err)
	}

	s.mu.Lock()
	if !s.persist.Known(key) {
		s.mu.Unlock()
		return unknownPersistKey(key)
	}
	changed := s.persist.Set(key, value)
	if changed {
		s.enqueue(Message{Type: MessagePersist, Key: key, Value: value})
	}
	s.mu.Unlock()

	if !changed {
		s.logger.Debug("skipped persist cache update, value unchanged", "key", key)
		return nil
	}

	s.subs.Notify(key)
	s.drainOutbox()
	s.writer.Schedule()
	s.logger.Debug("updated persist cache", "key", key)
	return nil
}

// HasPersist reports whether key currently holds a persistent value.
func (s *Service) HasPersist(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist.Has(key)
}

// PersistKeys returns the schema keys in sorted order.
func (s *Service) PersistKeys() []string {
	return s.schema.Keys()
}

// ---- subscriptions and pins ----

// Subscribe calls fn after every change of key in any tier and returns an
// idempotent unsubscribe function.
func (s *Service) Subscribe(key string, fn func()) func() {
	return s.subs.Subscribe(key, fn)
}

// Pin marks key as in use, preventing Delete and DeleteShared until every
// Pin is matched by an Unpin.
func (s *Service) Pin(key string) {
	s.pins.Pin(key)
}

// Unpin releases one Pin of key.
func (s *Service) Unpin(key string) {
	s.pins.Unpin(key)
}

// Pinned reports whether key is pinned.
func (s *Service) Pinned(key string) bool {
	return s.pins.Pinned(key)
}

// ---- peer messages ----

// HandleMessage applies a message received from a peer. It updates the
// local mirror and notifies subscribers but never broadcasts or schedules a
// durable save. Invalid messages are logged and dropped.
func (s *Service) HandleMessage(msg Message) {
	if err := msg.Validate(); err != nil {
		s.logger.Warn("dropping cache sync message", "type", msg.Type, "key", msg.Key, "error", err)
		return
	}
	if msg.Origin != "" && msg.Origin == s.peerID {
		s.logger.Debug("ignoring own cache sync message", "key", msg.Key)
		return
	}

	switch msg.Type {
	case MessageShared:
		s.mu.Lock()
		if msg.Deleted {
			s.shared.Delete(msg.Key)
		} else {
			now := s.now()
			s.shared.Put(msg.Key, tier.Entry{Value: msg.Value, ExpireAt: tier.ExpireAt(now, msg.TTLDuration())})
		}
		s.mu.Unlock()

	case MessagePersist:
		if err := encodable(msg.Value); err != nil {
			s.logger.Warn("dropping cache sync message with unencodable persist value", "key", msg.Key, "error", err)
			return
		}
		s.mu.Lock()
		if !s.persist.Known(msg.Key) {
			s.mu.Unlock()
			s.logger.Warn("dropping cache sync message for unknown persist key", "key", msg.Key)
			return
		}
		s.persist.Put(msg.Key, msg.Value)
		s.mu.Unlock()
	}

	s.subs.Notify(msg.Key)
}

// ---- internals ----

func (s *Service) get(st *tier.Store, key string) (any, bool) {
	s.mu.Lock()
	entry, ok, evicted := st.Get(key, s.now())
	s.mu.Unlock()

	if evicted {
		s.subs.Notify(key)
	}
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

func (s *Service) has(st *tier.Store, key string) bool {
	_, ok := s.get(st, key)
	return ok
}

func (s *Service) hasTTL(st *tier.Store, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := st.Peek(key)
	return ok && entry.HasTTL()
}

func (s *Service) set(st *tier.Store, t Tier, key string, value any, ttl time.Duration) tier.Outcome {
	s.mu.Lock()
	now := s.now()
	out := st.Set(key, value, tier.ExpireAt(now, ttl), now)
	// peers need expiry moves too
	if t == TierShared && out != tier.Unchanged {
		s.enqueue(Message{Type: MessageShared, Key: key, Value: value, TTL: ttlMillis(ttl)})
	}
	s.mu.Unlock()

	switch out {
	case tier.Changed:
		s.subs.Notify(key)
		s.logger.Debug("updated cache", "tier", t.String(), "key", key)
	case tier.TTLOnly:
		s.logger.Debug("updated cache ttl", "tier", t.String(), "key", key)
	default:
		s.logger.Debug("skipped cache update, value and ttl unchanged", "tier", t.String(), "key", key)
	}
	return out
}

// del returns ok=false when the key is pinned, and existed=true when an
// entry was actually removed.
func (s *Service) del(st *tier.Store, t Tier, key string) (ok bool, existed bool) {
	if s.pins.Pinned(key) {
		s.logger.Error("cannot delete key, it is pinned by an active binding", "tier", t.String(), "key", key)
		return false, false
	}

	s.mu.Lock()
	existed = st.Delete(key)
	if t == TierShared && existed {
		s.enqueue(Message{Type: MessageShared, Key: key, Deleted: true})
	}
	s.mu.Unlock()

	if !existed {
		s.logger.Debug("skipped cache delete, key does not exist", "tier", t.String(), "key", key)
		return true, false
	}

	s.subs.Notify(key)
	s.logger.Debug("deleted cache key", "tier", t.String(), "key", key)
	return true, true
}

// enqueue records msg for the relay in apply order; callers hold mu.
func (s *Service) enqueue(msg Message) {
	if s.relay == nil {
		return
	}
	msg.Origin = s.peerID
	s.outbox = append(s.outbox, msg)
}

// drainOutbox sends queued messages in order. Whichever writer holds sendMu
// also sends messages queued by writers waiting behind it.
func (s *Service) drainOutbox() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	for {
		s.mu.Lock()
		msgs := s.outbox
		s.outbox = nil
		s.mu.Unlock()

		if len(msgs) == 0 {
			return
		}
		for _, msg := range msgs {
			s.broadcast(msg)
		}
	}
}

func (s *Service) broadcast(msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Warn("cache sync broadcast panicked", "key", msg.Key, "panic", rec)
		}
	}()

	if err := s.relay.Send(msg); err != nil {
		s.logger.Warn("cache sync broadcast failed", "type", msg.Type, "key", msg.Key, "error", err)
	}
}

func (s *Service) persistSnapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist.Snapshot()
}
