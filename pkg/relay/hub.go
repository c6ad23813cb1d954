package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-tiered-cache/internal/cacheinfra"
)

// Hub fans messages out between connected endpoints and owns a process
// cache for code running next to it.
type Hub struct {
	cfg    HubConfig
	logger *slog.Logger
	cache  *Cache

	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	closed    bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// Stats counts messages handed to endpoint queues.
type Stats struct {
	Endpoints int
	Delivered uint64
	Dropped   uint64
}

// Option customises a Hub.
type Option func(*Hub)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub validates cfg and returns an empty hub.
func NewHub(cfg HubConfig, opts ...Option) (*Hub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := cacheinfra.NewStore(cfg.Cache.infra())
	if err != nil {
		return nil, err
	}

	h := &Hub{
		cfg:       cfg,
		logger:    slog.Default().With("component", "cache-relay"),
		cache:     &Cache{store: store},
		endpoints: make(map[string]*Endpoint),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.logger.Info("cache relay hub initialized", "queue_size", cfg.QueueSize)
	return h, nil
}

// Connect registers a new endpoint, typically one per window.
func (h *Hub) Connect() (*Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, relayClosed("connect")
	}

	e := newEndpoint(uuid.New().String(), h)
	h.endpoints[e.id] = e
	h.logger.Debug("cache relay endpoint connected", "endpoint", e.id, "endpoints", len(h.endpoints))
	return e, nil
}

// Cache returns the hub's process cache.
func (h *Hub) Cache() *Cache {
	return h.cache
}

// Stats returns delivery counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.endpoints)
	h.mu.RUnlock()
	return Stats{
		Endpoints: n,
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}

// Close disconnects every endpoint, waiting for their queues to drain, and
// clears the hub cache.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	endpoints := make([]*Endpoint, 0, len(h.endpoints))
	for _, e := range h.endpoints {
		endpoints = append(endpoints, e)
	}
	h.endpoints = make(map[string]*Endpoint)
	h.mu.Unlock()

	for _, e := range endpoints {
		e.stop()
	}
	h.cache.Clear()
	h.logger.Debug("cache relay hub closed")
}

// fanOut queues data on every endpoint except the sender.
func (h *Hub) fanOut(from string, data []byte, kind, key string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, e := range h.endpoints {
		if id == from {
			continue
		}
		select {
		case e.queue <- data:
			h.delivered.Add(1)
		default:
			h.dropped.Add(1)
			h.logger.Warn("cache relay queue full, dropping message", "endpoint", id, "type", kind, "key", key)
		}
	}
	h.logger.Debug("broadcasted cache sync", "type", kind, "key", key, "from", from)
}

func (h *Hub) disconnect(id string) {
	h.mu.Lock()
	delete(h.endpoints, id)
	n := len(h.endpoints)
	h.mu.Unlock()
	h.logger.Debug("cache relay endpoint disconnected", "endpoint", id, "endpoints", n)
}

func relayClosed(op string) error {
	return goerrors.New("cache relay is closed", goerrors.CategoryInternal).
		WithTextCode(CodeRelayClosed).
		WithMetadata(map[string]any{"operation": op})
}
