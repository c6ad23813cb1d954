// Package persist writes the persistent cache tier to durable storage.
//
// The whole tier is serialised as one JSON object under a single storage key.
// Writes are debounced: every Schedule re-arms one timer and the save runs
// when the timer fires. Flush forces a pending save immediately.
package persist

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Storage is the durable blob store the writer saves into.
type Storage interface {
	ReadBlob(key string) ([]byte, bool, error)
	WriteBlob(key string, data []byte) error
	RemoveBlob(key string) error
}

// Config controls where and how often the tier is written.
type Config struct {
	// Key is the storage key holding the serialised tier.
	Key string
	// Debounce is the quiet period before a scheduled save runs.
	Debounce time.Duration
	// SizeWarning is the blob size in bytes above which a warning is logged.
	SizeWarning int
}

// Writer owns the dirty flag and the debounce timer for one persistent tier.
// It starts closed; call Load and then Start.
type Writer struct {
	cfg      Config
	storage  Storage
	snapshot func() map[string]any
	logger   *slog.Logger

	mu     sync.Mutex
	timer  *time.Timer
	dirty  bool
	gen    uint64
	closed bool

	// saveMu serialises writes and guards the checksum
	saveMu  sync.Mutex
	lastSum uint64
	hasSum  bool

	writes atomic.Int64
}

// NewWriter returns a closed writer. snapshot must return the current tier
// contents; it is called without any writer lock held.
func NewWriter(storage Storage, cfg Config, snapshot func() map[string]any, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:      cfg,
		storage:  storage,
		snapshot: snapshot,
		logger:   logger,
		closed:   true,
	}
}

// Start enables scheduling.
func (w *Writer) Start() {
	w.mu.Lock()
	w.closed = false
	w.mu.Unlock()
}

// Load seeds every schema key with its default, overlays the values found in
// storage for keys that belong to the schema and writes the reconciled set
// back. A missing blob is initialised with the defaults. An unreadable blob
// is removed and the defaults are returned. Load never fails.
func (w *Writer) Load(defaults map[string]any) map[string]any {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()

	values := make(map[string]any, len(defaults))
	for k, v := range defaults {
		values[k] = v
	}

	data, found, err := w.storage.ReadBlob(w.cfg.Key)
	if err != nil {
		w.logger.Error("failed to read persist cache", "key", w.cfg.Key, "error", err)
		w.discard()
		return values
	}

	if !found {
		if err := w.write(values, true); err == nil {
			w.logger.Debug("initialized persist cache with default values", "keys", len(values))
		}
		return values
	}

	var stored map[string]any
	if err := json.Unmarshal(data, &stored); err != nil {
		w.logger.Error("failed to load persist cache", "key", w.cfg.Key, "error", err)
		w.discard()
		w.logger.Debug("fallback to default persist cache values")
		return values
	}

	dropped := 0
	for k := range stored {
		if _, ok := defaults[k]; !ok {
			dropped++
		}
	}
	for k := range defaults {
		if v, ok := stored[k]; ok {
			values[k] = v
		}
	}

	if err := w.write(values, true); err == nil {
		w.logger.Debug("loaded persist cache", "keys", len(values), "dropped", dropped)
	}
	return values
}

func (w *Writer) discard() {
	if err := w.storage.RemoveBlob(w.cfg.Key); err != nil {
		w.logger.Error("failed to remove persist cache", "key", w.cfg.Key, "error", err)
	}
}

// Schedule marks the tier dirty and re-arms the debounce timer.
func (w *Writer) Schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		w.logger.Debug("persist save skipped, writer not started")
		return
	}

	w.dirty = true
	w.gen++
	gen := w.gen

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, func() { w.fire(gen) })
}

func (w *Writer) fire(gen uint64) {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()

	w.mu.Lock()
	if w.closed || gen != w.gen {
		// superseded by a later Schedule or by Flush
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()

	w.save(gen)
}

// Flush saves immediately when the tier is dirty, bypassing the timer. It
// reports whether a save was attempted.
func (w *Writer) Flush() bool {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()

	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return false
	}
	gen := w.gen
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	w.save(gen)
	return true
}

// save writes the current snapshot; callers hold saveMu.
func (w *Writer) save(gen uint64) {
	if err := w.write(w.snapshot(), false); err != nil {
		return
	}
	w.mu.Lock()
	if gen == w.gen {
		w.dirty = false
	}
	w.mu.Unlock()
}

// Close flushes pending changes and stops the timer. Further Schedule calls
// are ignored until Start.
func (w *Writer) Close() {
	w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Dirty reports whether changes are waiting to be written.
func (w *Writer) Dirty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirty
}

// Writes returns how many blobs were written to storage.
func (w *Writer) Writes() int64 {
	return w.writes.Load()
}

// write serialises values and stores them. Unless force is set, a blob
// identical to the last one written is skipped. Callers hold saveMu.
func (w *Writer) write(values map[string]any, force bool) error {
	data, err := json.Marshal(values)
	if err != nil {
		w.logger.Error("failed to encode persist cache", "error", err)
		return fmt.Errorf("encode persist cache: %w", err)
	}

	sum := xxhash.Sum64(data)
	if !force && w.hasSum && sum == w.lastSum {
		w.logger.Debug("persist cache unchanged, skipping write", "size", len(data))
		return nil
	}

	size := len(data)
	if w.cfg.SizeWarning > 0 && size > w.cfg.SizeWarning {
		w.logger.Warn("persist cache is too large, this may cause performance issues and data loss",
			"size_mb", fmt.Sprintf("%.2f", float64(size)/(1024*1024)),
			"limit_bytes", w.cfg.SizeWarning,
		)
	}

	if err := w.storage.WriteBlob(w.cfg.Key, data); err != nil {
		w.logger.Error("failed to save persist cache", "key", w.cfg.Key, "error", err)
		return fmt.Errorf("write persist cache: %w", err)
	}

	w.lastSum = sum
	w.hasSum = true
	w.writes.Add(1)
	w.logger.Debug("saved persist cache", "size", size)
	return nil
}
