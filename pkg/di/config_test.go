package di

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-tiered-cache/cache"
	"github.com/goliatone/go-tiered-cache/pkg/testsupport"
)

func TestLoadConfig_JSONC(t *testing.T) {
	cfg, err := LoadConfig(testsupport.FixturePath("config.jsonc"))
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Cache.PersistKey != "shell_cache" {
		t.Errorf("expected persist key shell_cache, got %s", cfg.Cache.PersistKey)
	}
	if got := time.Duration(cfg.Cache.PersistDebounce); got != 50*time.Millisecond {
		t.Errorf("expected 50ms debounce, got %v", got)
	}
	// unset values keep their defaults
	if cfg.Cache.PersistSizeWarning != cache.DefaultConfig().PersistSizeWarning {
		t.Errorf("expected default size warning, got %d", cfg.Cache.PersistSizeWarning)
	}
	if cfg.Storage.Driver != StorageFile || cfg.Storage.Dir != "/tmp/shell-cache" {
		t.Errorf("unexpected storage section %+v", cfg.Storage)
	}
	if cfg.Relay.QueueSize != 64 || time.Duration(cfg.Relay.CacheMaxAge) != time.Hour {
		t.Errorf("unexpected relay section %+v", cfg.Relay)
	}
	if cfg.Schema["fontSize"] != float64(14) {
		t.Errorf("expected fontSize 14, got %v", cfg.Schema["fontSize"])
	}
	sidebar, ok := cfg.Schema["sidebar"].(map[string]any)
	if !ok || sidebar["open"] != true {
		t.Errorf("expected nested sidebar default, got %v", cfg.Schema["sidebar"])
	}
}

func TestParseConfig_YAML(t *testing.T) {
	data := testsupport.LoadFixture(t, testsupport.FixturePath("config.yaml"))

	cfg, err := ParseConfig(data, "yaml")
	if err != nil {
		t.Fatalf("ParseConfig() failed: %v", err)
	}

	cc := cfg.CacheConfig()
	if cc.PersistDebounce != time.Second || cc.PersistSizeWarning != 1048576 {
		t.Errorf("unexpected cache config %+v", cc)
	}
	if cc.PersistKey != cache.DefaultPersistKey {
		t.Errorf("expected default persist key, got %s", cc.PersistKey)
	}
	if cfg.Storage.Driver != StorageSQLite || time.Duration(cfg.Storage.Timeout) != 2*time.Second {
		t.Errorf("unexpected storage section %+v", cfg.Storage)
	}
	if hc := cfg.HubConfig(); hc.QueueSize != 32 {
		t.Errorf("expected queue size 32, got %d", hc.QueueSize)
	}
	if cfg.Schema["theme"] != "dark" {
		t.Errorf("expected theme dark, got %v", cfg.Schema["theme"])
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format string
	}{
		{name: "unknown format", data: `{}`, format: "toml"},
		{name: "bad duration", data: `{"cache": {"persist_debounce": "soon"}}`, format: "json"},
		{name: "numeric duration", data: `{"cache": {"persist_debounce": 200}}`, format: "json"},
		{name: "unknown driver", data: "storage:\n  driver: redis\n", format: "yaml"},
		{name: "sql without dsn", data: `{"storage": {"driver": "postgres"}}`, format: "jsonc"},
		{name: "zero queue", data: "relay:\n  queue_size: 0\n", format: "yml"},
		{name: "bad debounce", data: `{"cache": {"persist_debounce": "0s"}}`, format: "json"},
		{name: "malformed", data: `{"cache": `, format: "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.data), tt.format); err == nil {
				t.Error("expected error but got none")
			}
		})
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	_, err := LoadConfig(testsupport.FixturePath("invalid.yaml"))
	if err == nil {
		t.Fatal("expected validation error for file storage without dir")
	}

	var gerr *goerrors.Error
	if !errors.As(err, &gerr) || gerr.TextCode != CodeInvalidConfig {
		t.Errorf("expected %s error, got %v", CodeInvalidConfig, err)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	data, err := Duration(1500 * time.Millisecond).MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"1.5s"` {
		t.Errorf("expected \"1.5s\", got %s", data)
	}
}
