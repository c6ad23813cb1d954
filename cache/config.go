package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/goliatone/go-tiered-cache/internal/persist"
)

// DefaultPersistKey is the storage key holding the persistent tier.
const DefaultPersistKey = "cs_cache_persist"

// Config exposes the tunables of the cache service.
type Config struct {
	// PersistKey is the storage key the persistent tier is saved under.
	PersistKey string

	// PersistDebounce is the quiet period before a durable save runs.
	// Every persistent write re-arms the timer.
	PersistDebounce time.Duration

	// PersistSizeWarning is the serialised size in bytes above which a
	// warning is logged on save. Zero disables the warning.
	PersistSizeWarning int
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PersistKey:         DefaultPersistKey,
		PersistDebounce:    200 * time.Millisecond,
		PersistSizeWarning: 2 * 1024 * 1024,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.PersistKey, validation.Required),
		validation.Field(&c.PersistDebounce, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.PersistSizeWarning, validation.Min(0)),
	)
	if err != nil {
		return invalidConfig(err)
	}
	return nil
}

func (c Config) toWriter() persist.Config {
	return persist.Config{
		Key:         c.PersistKey,
		Debounce:    c.PersistDebounce,
		SizeWarning: c.PersistSizeWarning,
	}
}
