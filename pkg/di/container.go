package di

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/goliatone/go-tiered-cache/cache"
	"github.com/goliatone/go-tiered-cache/pkg/relay"
	"github.com/goliatone/go-tiered-cache/pkg/storage"
)

// Container provides dependency injection for the cache components.
// It owns one relay hub and one durable store, and creates a Peer (a cache
// service plus its hub endpoint) for every window or worker that needs one.
type Container struct {
	config   Config
	schema   cache.Schema
	logger   *slog.Logger
	teardown cache.TeardownFunc

	hub     *relay.Hub
	storage cache.Storage

	mu    sync.Mutex
	peers map[*Peer]struct{}
}

// ContainerOption customises a Container.
type ContainerOption func(*Container)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTeardown registers a flush hook for every peer, see SignalTeardown.
func WithTeardown(teardown cache.TeardownFunc) ContainerOption {
	return func(c *Container) {
		c.teardown = teardown
	}
}

// WithStorage overrides the store selected by the configuration.
func WithStorage(store cache.Storage) ContainerOption {
	return func(c *Container) {
		c.storage = store
	}
}

// NewContainer validates config, opens the configured storage and starts the
// relay hub.
func NewContainer(ctx context.Context, config Config, opts ...ContainerOption) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		config: config,
		schema: cache.Schema(config.Schema),
		logger: slog.Default(),
		peers:  make(map[*Peer]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.schema.Validate(); err != nil {
		return nil, err
	}

	if c.storage == nil {
		store, err := openStorage(ctx, config.Storage)
		if err != nil {
			return nil, err
		}
		c.storage = store
	}

	hub, err := relay.NewHub(config.HubConfig(), relay.WithLogger(c.logger.With("component", "cache-relay")))
	if err != nil {
		c.closeStorage()
		return nil, err
	}
	c.hub = hub

	return c, nil
}

// NewContainerWithDefaults creates a container with an in-memory store and
// the given schema.
func NewContainerWithDefaults(schema cache.Schema) (*Container, error) {
	cfg := DefaultConfig()
	cfg.Schema = schema
	return NewContainer(context.Background(), cfg)
}

func openStorage(ctx context.Context, cfg StorageSection) (cache.Storage, error) {
	switch cfg.Driver {
	case StorageFile:
		return storage.NewFileStore(cfg.Dir)
	case StorageSQLite, StoragePostgres:
		return storage.OpenSQLStore(ctx, storage.SQLConfig{
			Driver:  cfg.Driver,
			DSN:     cfg.DSN,
			Timeout: time.Duration(cfg.Timeout),
		})
	default:
		return storage.NewMemoryStore(), nil
	}
}

// Hub returns the relay hub shared by every peer.
func (c *Container) Hub() *relay.Hub {
	return c.hub
}

// Storage returns the durable store shared by every peer.
func (c *Container) Storage() cache.Storage {
	return c.storage
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() Config {
	return c.config
}

// Peer is one cache service connected to the container's hub.
type Peer struct {
	Service  *cache.Service
	Endpoint *relay.Endpoint

	container *Container
	closeOnce sync.Once
}

// NewPeer connects an endpoint, builds an initialized service on it and
// returns both. opts are applied after the container's own options.
func (c *Container) NewPeer(opts ...cache.Option) (*Peer, error) {
	endpoint, err := c.hub.Connect()
	if err != nil {
		return nil, err
	}

	options := []cache.Option{
		cache.WithLogger(c.logger.With("component", "cache-service", "peer", endpoint.ID())),
		cache.WithRelay(endpoint),
		cache.WithStorage(c.storage),
		cache.WithPeerID(endpoint.ID()),
	}
	if c.teardown != nil {
		options = append(options, cache.WithTeardown(c.teardown))
	}
	options = append(options, opts...)

	svc, err := cache.New(c.schema, c.config.CacheConfig(), options...)
	if err != nil {
		endpoint.Close()
		return nil, err
	}
	svc.Initialize()

	p := &Peer{Service: svc, Endpoint: endpoint, container: c}
	c.mu.Lock()
	c.peers[p] = struct{}{}
	c.mu.Unlock()
	return p, nil
}

// Close cleans up the service, flushing pending persistent changes, and
// disconnects the endpoint.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		p.Service.Cleanup()
		p.Endpoint.Close()

		p.container.mu.Lock()
		delete(p.container.peers, p)
		p.container.mu.Unlock()
	})
}

// Peers returns the number of open peers.
func (c *Container) Peers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peers)
}

// Close closes every open peer, the hub and the storage.
func (c *Container) Close() error {
	c.mu.Lock()
	peers := make([]*Peer, 0, len(c.peers))
	for p := range c.peers {
		peers = append(peers, p)
	}
	c.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
	c.hub.Close()
	return c.closeStorage()
}

func (c *Container) closeStorage() error {
	if closer, ok := c.storage.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
