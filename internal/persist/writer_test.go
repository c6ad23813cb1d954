package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	writes  [][]byte
	removed int
	readErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{blobs: map[string][]byte{}}
}

func (f *fakeStorage) ReadBlob(key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, false, f.readErr
	}
	b, ok := f.blobs[key]
	return b, ok, nil
}

func (f *fakeStorage) WriteBlob(key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = append([]byte(nil), data...)
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeStorage) RemoveBlob(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, key)
	f.removed++
	return nil
}

func (f *fakeStorage) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeStorage) decoded(t *testing.T, key string) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out map[string]any
	require.NoError(t, json.Unmarshal(f.blobs[key], &out))
	return out
}

type tierState struct {
	mu     sync.Mutex
	values map[string]any
}

func (s *tierState) set(k string, v any) {
	s.mu.Lock()
	s.values[k] = v
	s.mu.Unlock()
}

func (s *tierState) snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func testConfig() Config {
	return Config{Key: "cs_cache_persist", Debounce: 20 * time.Millisecond, SizeWarning: 2 * 1024 * 1024}
}

func TestWriter_LoadSeedsDefaultsWhenEmpty(t *testing.T) {
	store := newFakeStorage()
	w := NewWriter(store, testConfig(), nil, nil)

	values := w.Load(map[string]any{"theme": "light", "zoom": 1.0})

	assert.Equal(t, map[string]any{"theme": "light", "zoom": 1.0}, values)
	assert.Equal(t, 1, store.writeCount())
	assert.Equal(t, values, store.decoded(t, "cs_cache_persist"))
}

func TestWriter_LoadReconcilesAgainstSchema(t *testing.T) {
	store := newFakeStorage()
	store.blobs["cs_cache_persist"] = []byte(`{"unknownKey":1,"knownKey":2}`)
	w := NewWriter(store, testConfig(), nil, nil)

	values := w.Load(map[string]any{"knownKey": 0.0})

	assert.Equal(t, map[string]any{"knownKey": 2.0}, values)
	assert.Equal(t, map[string]any{"knownKey": 2.0}, store.decoded(t, "cs_cache_persist"),
		"blob must be rewritten without unknownKey")
}

func TestWriter_LoadCorruptBlobFallsBack(t *testing.T) {
	var buf bytes.Buffer
	store := newFakeStorage()
	store.blobs["cs_cache_persist"] = []byte(`{not json`)
	w := NewWriter(store, testConfig(), nil, slog.New(slog.NewTextHandler(&buf, nil)))

	values := w.Load(map[string]any{"theme": "light"})

	assert.Equal(t, map[string]any{"theme": "light"}, values)
	assert.Equal(t, 1, store.removed)
	assert.Equal(t, 0, store.writeCount())
	assert.Contains(t, buf.String(), "failed to load persist cache")
}

func TestWriter_LoadReadError(t *testing.T) {
	store := newFakeStorage()
	store.readErr = errors.New("disk gone")
	w := NewWriter(store, testConfig(), nil, nil)

	values := w.Load(map[string]any{"theme": "light"})
	assert.Equal(t, map[string]any{"theme": "light"}, values)
	assert.Equal(t, 1, store.removed)
}

func TestWriter_DebounceCoalesces(t *testing.T) {
	store := newFakeStorage()
	state := &tierState{values: map[string]any{"a": 0.0, "b": 0.0, "c": 0.0}}
	w := NewWriter(store, testConfig(), state.snapshot, nil)
	w.Start()
	defer w.Close()

	for _, k := range []string{"a", "b", "c"} {
		state.set(k, 1.0)
		w.Schedule()
	}
	assert.True(t, w.Dirty())

	require.Eventually(t, func() bool { return store.writeCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 1, store.writeCount())
	assert.Equal(t, map[string]any{"a": 1.0, "b": 1.0, "c": 1.0}, store.decoded(t, "cs_cache_persist"))
	assert.False(t, w.Dirty())
}

func TestWriter_ScheduleBeforeStartIsIgnored(t *testing.T) {
	store := newFakeStorage()
	w := NewWriter(store, testConfig(), func() map[string]any { return map[string]any{} }, nil)

	w.Schedule()
	assert.False(t, w.Dirty())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, store.writeCount())
}

func TestWriter_FlushBypassesTimer(t *testing.T) {
	store := newFakeStorage()
	state := &tierState{values: map[string]any{"theme": "dark"}}
	cfg := testConfig()
	cfg.Debounce = time.Hour
	w := NewWriter(store, cfg, state.snapshot, nil)
	w.Start()

	assert.False(t, w.Flush(), "nothing to flush yet")

	w.Schedule()
	assert.True(t, w.Flush())
	assert.Equal(t, 1, store.writeCount())
	assert.False(t, w.Dirty())

	state.set("theme", "light")
	w.Schedule()
	w.Close()
	assert.Equal(t, 2, store.writeCount(), "close must flush dirty state")
	assert.Equal(t, map[string]any{"theme": "light"}, store.decoded(t, "cs_cache_persist"))

	w.Schedule()
	assert.False(t, w.Dirty(), "closed writer ignores schedules")
}

func TestWriter_SkipsIdenticalBlob(t *testing.T) {
	store := newFakeStorage()
	state := &tierState{values: map[string]any{"theme": "dark"}}
	cfg := testConfig()
	cfg.Debounce = time.Hour
	w := NewWriter(store, cfg, state.snapshot, nil)
	w.Load(map[string]any{"theme": "dark"})
	w.Start()

	w.Schedule()
	w.Flush()

	assert.Equal(t, 1, store.writeCount(), "only the load write happened")
	assert.EqualValues(t, 1, w.Writes())
	assert.False(t, w.Dirty())
}

func TestWriter_SizeWarning(t *testing.T) {
	var buf bytes.Buffer
	store := newFakeStorage()
	big := strings.Repeat("x", 256)
	cfg := testConfig()
	cfg.SizeWarning = 100
	w := NewWriter(store, cfg, nil, slog.New(slog.NewTextHandler(&buf, nil)))

	w.Load(map[string]any{"blob": big})

	assert.Contains(t, buf.String(), "persist cache is too large")
	assert.Equal(t, 1, store.writeCount(), "oversized blobs are still written")
}
