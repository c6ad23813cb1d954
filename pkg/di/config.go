package di

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-tiered-cache/cache"
	"github.com/goliatone/go-tiered-cache/pkg/relay"
	"github.com/goliatone/go-tiered-cache/pkg/storage"
)

// Storage drivers accepted in configuration files.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageSQLite   = storage.DriverSQLite
	StoragePostgres = storage.DriverPostgres
)

// Duration is a time.Duration written as a string such as "200ms" in
// configuration files.
type Duration time.Duration

// UnmarshalJSON parses a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"200ms\": %w", err)
	}
	return d.parse(s)
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"200ms\": %w", err)
	}
	return d.parse(s)
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config is the file representation of a full deployment: the cache
// service, its durable storage, the relay hub and the persist schema.
type Config struct {
	Cache   CacheSection   `json:"cache" yaml:"cache"`
	Storage StorageSection `json:"storage" yaml:"storage"`
	Relay   RelaySection   `json:"relay" yaml:"relay"`
	Schema  map[string]any `json:"schema" yaml:"schema"`
}

// CacheSection mirrors cache.Config.
type CacheSection struct {
	PersistKey         string   `json:"persist_key" yaml:"persist_key"`
	PersistDebounce    Duration `json:"persist_debounce" yaml:"persist_debounce"`
	PersistSizeWarning int      `json:"persist_size_warning" yaml:"persist_size_warning"`
}

// StorageSection selects the durable store of the persistent tier.
type StorageSection struct {
	// Driver is one of memory, file, sqlite3 or postgres.
	Driver string `json:"driver" yaml:"driver"`
	// Dir holds the blobs of the file driver.
	Dir string `json:"dir" yaml:"dir"`
	// DSN is the data source of the SQL drivers.
	DSN     string   `json:"dsn" yaml:"dsn"`
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

// RelaySection mirrors relay.HubConfig.
type RelaySection struct {
	QueueSize     int      `json:"queue_size" yaml:"queue_size"`
	CacheCapacity int      `json:"cache_capacity" yaml:"cache_capacity"`
	CacheShards   int      `json:"cache_shards" yaml:"cache_shards"`
	CacheMaxAge   Duration `json:"cache_max_age" yaml:"cache_max_age"`
}

// DefaultConfig returns the defaults every loaded file is merged over.
func DefaultConfig() Config {
	cc := cache.DefaultConfig()
	hc := relay.DefaultHubConfig()
	return Config{
		Cache: CacheSection{
			PersistKey:         cc.PersistKey,
			PersistDebounce:    Duration(cc.PersistDebounce),
			PersistSizeWarning: cc.PersistSizeWarning,
		},
		Storage: StorageSection{
			Driver:  StorageMemory,
			Timeout: Duration(5 * time.Second),
		},
		Relay: RelaySection{
			QueueSize:     hc.QueueSize,
			CacheCapacity: hc.Cache.Capacity,
			CacheShards:   hc.Cache.NumShards,
			CacheMaxAge:   Duration(hc.Cache.MaxAge),
		},
		Schema: map[string]any{},
	}
}

// LoadConfig reads a JSON, JSONC or YAML file, chosen by extension, over
// DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to read config file").
			WithTextCode(CodeInvalidConfig).
			WithMetadata(map[string]any{"path": path})
	}
	return ParseConfig(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// ParseConfig decodes data in the given format: json, jsonc, hujson, yaml or
// yml.
func ParseConfig(data []byte, format string) (Config, error) {
	cfg := DefaultConfig()

	var err error
	switch strings.ToLower(format) {
	case "json", "jsonc", "hujson":
		var std []byte
		if std, err = hujson.Standardize(data); err == nil {
			err = json.Unmarshal(std, &cfg)
		}
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = fmt.Errorf("unsupported config format %q", format)
	}
	if err != nil {
		return Config{}, invalidConfig(err)
	}

	if cfg.Schema == nil {
		cfg.Schema = map[string]any{}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the storage selection and every derived component config.
func (c Config) Validate() error {
	sqlDriver := c.Storage.Driver == StorageSQLite || c.Storage.Driver == StoragePostgres
	err := validation.ValidateStruct(&c.Storage,
		validation.Field(&c.Storage.Driver, validation.Required,
			validation.In(StorageMemory, StorageFile, StorageSQLite, StoragePostgres)),
		validation.Field(&c.Storage.Dir, validation.When(c.Storage.Driver == StorageFile, validation.Required)),
		validation.Field(&c.Storage.DSN, validation.When(sqlDriver, validation.Required)),
	)
	if err != nil {
		return invalidConfig(err)
	}
	if err := c.CacheConfig().Validate(); err != nil {
		return err
	}
	if err := c.HubConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// CacheConfig returns the cache service configuration.
func (c Config) CacheConfig() cache.Config {
	return cache.Config{
		PersistKey:         c.Cache.PersistKey,
		PersistDebounce:    time.Duration(c.Cache.PersistDebounce),
		PersistSizeWarning: c.Cache.PersistSizeWarning,
	}
}

// HubConfig returns the relay hub configuration.
func (c Config) HubConfig() relay.HubConfig {
	return relay.HubConfig{
		QueueSize: c.Relay.QueueSize,
		Cache: relay.CacheConfig{
			Capacity:  c.Relay.CacheCapacity,
			NumShards: c.Relay.CacheShards,
			MaxAge:    time.Duration(c.Relay.CacheMaxAge),
		},
	}
}

// CodeInvalidConfig tags configuration errors raised by this package.
const CodeInvalidConfig = "INVALID_CONFIG"

func invalidConfig(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration").
		WithTextCode(CodeInvalidConfig)
}
