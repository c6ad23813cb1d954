package cache

import (
	"log/slog"
	"time"
)

// Option customises a Service at construction.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now, mostly for tests driving TTL expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRelay connects the service to its peers.
func WithRelay(relay Relay) Option {
	return func(s *Service) {
		s.relay = relay
	}
}

// WithStorage sets the durable store of the persistent tier. Without it the
// tier is kept in an in-memory store and lost on exit.
func WithStorage(storage Storage) Option {
	return func(s *Service) {
		if storage != nil {
			s.storage = storage
		}
	}
}

// WithTeardown registers a forced persist flush with the host's shutdown
// mechanism during Initialize.
func WithTeardown(teardown TeardownFunc) Option {
	return func(s *Service) {
		s.teardown = teardown
	}
}

// WithPeerID sets the origin id stamped on outgoing sync messages.
func WithPeerID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.peerID = id
		}
	}
}
