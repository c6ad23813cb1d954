package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blobStore interface {
	ReadBlob(key string) ([]byte, bool, error)
	WriteBlob(key string, data []byte) error
	RemoveBlob(key string) error
}

func stores(t *testing.T) map[string]blobStore {
	t.Helper()

	file, err := NewFileStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	sqlite, err := OpenSQLStore(context.Background(), SQLConfig{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "cache.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]blobStore{
		"memory": NewMemoryStore(),
		"file":   file,
		"sqlite": sqlite,
	}
}

func TestStores_Contract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, found, err := store.ReadBlob("cs_cache_persist")
			require.NoError(t, err)
			assert.False(t, found, "absent key must report found=false")

			require.NoError(t, store.WriteBlob("cs_cache_persist", []byte(`{"theme":"dark"}`)))
			data, found, err := store.ReadBlob("cs_cache_persist")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, `{"theme":"dark"}`, string(data))

			require.NoError(t, store.WriteBlob("cs_cache_persist", []byte(`{"theme":"light"}`)))
			data, _, err = store.ReadBlob("cs_cache_persist")
			require.NoError(t, err)
			assert.Equal(t, `{"theme":"light"}`, string(data), "write must replace")

			require.NoError(t, store.WriteBlob("other", []byte(`{}`)))
			require.NoError(t, store.RemoveBlob("cs_cache_persist"))
			_, found, err = store.ReadBlob("cs_cache_persist")
			require.NoError(t, err)
			assert.False(t, found)

			_, found, err = store.ReadBlob("other")
			require.NoError(t, err)
			assert.True(t, found, "removing one key must keep the others")

			assert.NoError(t, store.RemoveBlob("never-written"))
		})
	}
}

func TestMemoryStore_CopiesData(t *testing.T) {
	store := NewMemoryStore()
	data := []byte("abc")
	require.NoError(t, store.WriteBlob("k", data))
	data[0] = 'x'

	got, _, _ := store.ReadBlob("k")
	assert.Equal(t, "abc", string(got))

	got[1] = 'y'
	again, _, _ := store.ReadBlob("k")
	assert.Equal(t, "abc", string(again))
}

func TestFileStore_SanitisesKeys(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{key: "cs_cache_persist", want: "cs_cache_persist"},
		{key: "../../etc/passwd", want: "_.._etc_passwd"},
		{key: "window:3/draft", want: "window_3_draft"},
		{key: "..", want: "_"},
		{key: "", want: "_"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, fileName(tt.key))
		})
	}

	dir := filepath.Join(t.TempDir(), "blobs")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.WriteBlob("../escape", []byte("x")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "_escape.json", entries[0].Name())
}

func TestFileStore_Errors(t *testing.T) {
	_, err := NewFileStore("")
	require.Error(t, err)

	var gerr *goerrors.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, CodeStorageFailure, gerr.TextCode)

	// a regular file where the directory should be
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))
	_, err = NewFileStore(filepath.Join(blocker, "blobs"))
	assert.Error(t, err)
}

func TestOpenSQLStore_UnsupportedDriver(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), SQLConfig{Driver: "mysql", DSN: "x"})
	require.Error(t, err)

	var gerr *goerrors.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, CodeStorageFailure, gerr.TextCode)
}

func TestSQLStore_ReopenKeepsData(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	first, err := OpenSQLStore(ctx, SQLConfig{Driver: DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, first.WriteBlob("k", []byte("v")))
	require.NoError(t, first.Close())

	second, err := OpenSQLStore(ctx, SQLConfig{Driver: DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	defer second.Close()

	data, found, err := second.ReadBlob("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", string(data))
}
