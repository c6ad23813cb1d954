// Package relay connects cache services running as peers. A Hub plays the
// part of the main process: every window connects an Endpoint, and a message
// sent by one endpoint is delivered to every other endpoint, never back to
// the sender.
//
// Messages are encoded with msgpack on Send and decoded separately for each
// receiver, so peers never share a value. Delivery is asynchronous through a
// bounded queue per endpoint; when a queue is full the message is dropped
// and a warning is logged.
package relay

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-tiered-cache/internal/cacheinfra"
)

// Text codes attached to relay errors.
const (
	CodeRelayClosed   = "RELAY_CLOSED"
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeEncodeFailure = "RELAY_ENCODE_FAILURE"
)

// HubConfig configures a Hub.
type HubConfig struct {
	// QueueSize is the number of messages buffered per endpoint.
	QueueSize int

	// Cache sizes the hub's own process cache.
	Cache CacheConfig
}

// CacheConfig sizes the hub cache.
type CacheConfig struct {
	Capacity  int
	NumShards int
	// MaxAge bounds the lifetime of every entry, TTL or not.
	MaxAge time.Duration
}

// DefaultHubConfig returns a HubConfig with sensible defaults.
func DefaultHubConfig() HubConfig {
	infra := cacheinfra.DefaultConfig()
	return HubConfig{
		QueueSize: 256,
		Cache: CacheConfig{
			Capacity:  infra.Capacity,
			NumShards: infra.NumShards,
			MaxAge:    infra.TTL,
		},
	}
}

// Validate checks whether the configuration values are valid.
func (c HubConfig) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.QueueSize, validation.Required, validation.Min(1)),
	)
	if err == nil {
		err = c.Cache.infra().Validate()
	}
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid relay hub config").
			WithTextCode(CodeInvalidConfig)
	}
	return nil
}

func (c CacheConfig) infra() cacheinfra.Config {
	cfg := cacheinfra.DefaultConfig()
	cfg.Capacity = c.Capacity
	cfg.NumShards = c.NumShards
	cfg.TTL = c.MaxAge
	return cfg
}
