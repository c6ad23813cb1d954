package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type blobRecord struct {
	bun.BaseModel `bun:"table:cache_blobs,alias:cb"`

	Key       string    `bun:"blob_key,pk"`
	Value     string    `bun:"blob_value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// SQLConfig describes the database behind a SQLStore.
type SQLConfig struct {
	Driver  string
	DSN     string
	Timeout time.Duration
}

// SQLStore keeps blobs in the cache_blobs table.
type SQLStore struct {
	db      *bun.DB
	timeout time.Duration
}

// OpenSQLStore opens the database described by cfg, wraps it with the
// matching bun dialect and creates the table when missing.
func OpenSQLStore(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	sqldb, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, storageError(err, "open blob database")
	}

	var db *bun.DB
	switch cfg.Driver {
	case DriverSQLite:
		// sqlite allows a single writer
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres:
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb.Close()
		return nil, goerrors.New(fmt.Sprintf("unsupported blob database driver %q", cfg.Driver), goerrors.CategoryValidation).
			WithTextCode(CodeStorageFailure)
	}

	store := NewSQLStore(db, cfg.Timeout)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open bun database. Each operation is bounded by
// timeout; zero means five seconds.
func NewSQLStore(db *bun.DB, timeout time.Duration) *SQLStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SQLStore{db: db, timeout: timeout}
}

// Migrate creates the blob table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*blobRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return storageError(err, "create blob table")
	}
	return nil
}

// ReadBlob returns the blob stored under key.
func (s *SQLStore) ReadBlob(key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rec := new(blobRecord)
	err := s.db.NewSelect().
		Model(rec).
		Where("blob_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, storageError(err, fmt.Sprintf("read blob %q", key))
	}
	return []byte(rec.Value), true, nil
}

// WriteBlob inserts or replaces the blob under key.
func (s *SQLStore) WriteBlob(key string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rec := &blobRecord{Key: key, Value: string(data), UpdatedAt: time.Now().UTC()}
	_, err := s.db.NewInsert().
		Model(rec).
		On("CONFLICT (blob_key) DO UPDATE").
		Set("blob_value = EXCLUDED.blob_value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return storageError(err, fmt.Sprintf("write blob %q", key))
	}
	return nil
}

// RemoveBlob deletes the blob under key.
func (s *SQLStore) RemoveBlob(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.db.NewDelete().
		Model((*blobRecord)(nil)).
		Where("blob_key = ?", key).
		Exec(ctx)
	if err != nil {
		return storageError(err, fmt.Sprintf("remove blob %q", key))
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
