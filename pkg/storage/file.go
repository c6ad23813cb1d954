package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/natefinch/atomic"
)

// CodeStorageFailure tags errors raised by the blob stores.
const CodeStorageFailure = "STORAGE_FAILURE"

// FileStore keeps one file per key inside a directory. Writes go through a
// temp file and rename so a crash never leaves a half written blob.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, goerrors.New("file store directory is required", goerrors.CategoryValidation).
			WithTextCode(CodeStorageFailure)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, storageError(err, "create blob directory")
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory.
func (f *FileStore) Dir() string {
	return f.dir
}

// ReadBlob returns the file content stored for key.
func (f *FileStore) ReadBlob(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, storageError(err, fmt.Sprintf("read blob %q", key))
	}
	return data, true, nil
}

// WriteBlob atomically replaces the file for key.
func (f *FileStore) WriteBlob(key string, data []byte) error {
	if err := atomic.WriteFile(f.path(key), bytes.NewReader(data)); err != nil {
		return storageError(err, fmt.Sprintf("write blob %q", key))
	}
	return nil
}

// RemoveBlob deletes the file for key. A missing file is not an error.
func (f *FileStore) RemoveBlob(key string) error {
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return storageError(err, fmt.Sprintf("remove blob %q", key))
	}
	return nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, fileName(key)+".json")
}

// fileName maps a key onto a safe file name.
func fileName(key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '_'
	}, key)
	name = strings.Trim(name, ".")
	if name == "" {
		return "_"
	}
	return name
}

func storageError(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithTextCode(CodeStorageFailure)
}
