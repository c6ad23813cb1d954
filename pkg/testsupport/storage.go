package testsupport

import (
	"sync"

	"github.com/goliatone/go-tiered-cache/pkg/storage"
)

// CountingStorage wraps a MemoryStore and counts calls. ReadErr and
// WriteErr inject failures.
type CountingStorage struct {
	*storage.MemoryStore

	mu      sync.Mutex
	reads   int
	writes  int
	removes int

	ReadErr  error
	WriteErr error
}

// NewCountingStorage returns an empty store.
func NewCountingStorage() *CountingStorage {
	return &CountingStorage{MemoryStore: storage.NewMemoryStore()}
}

func (c *CountingStorage) ReadBlob(key string) ([]byte, bool, error) {
	c.mu.Lock()
	c.reads++
	err := c.ReadErr
	c.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	return c.MemoryStore.ReadBlob(key)
}

func (c *CountingStorage) WriteBlob(key string, data []byte) error {
	c.mu.Lock()
	c.writes++
	err := c.WriteErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.MemoryStore.WriteBlob(key, data)
}

func (c *CountingStorage) RemoveBlob(key string) error {
	c.mu.Lock()
	c.removes++
	c.mu.Unlock()
	return c.MemoryStore.RemoveBlob(key)
}

// Writes returns the number of WriteBlob calls.
func (c *CountingStorage) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// Removes returns the number of RemoveBlob calls.
func (c *CountingStorage) Removes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removes
}

// Reads returns the number of ReadBlob calls.
func (c *CountingStorage) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}
