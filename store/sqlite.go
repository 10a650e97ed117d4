package store

import (
	"context"
	"fmt"

	"alterego/db"
)

// SQLiteStore persists values in the kv_blobs table of a migrated
// database.
type SQLiteStore struct {
	database *db.Database
	repo     *db.Repository
	owned    bool
}

// OpenSQLite opens (and migrates) the database at path. Close releases it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &SQLiteStore{database: database, repo: db.NewRepository(database, nil), owned: true}, nil
}

// NewSQLiteStore wraps an already open database owned by the caller.
func NewSQLiteStore(database *db.Database) *SQLiteStore {
	return &SQLiteStore{database: database, repo: db.NewRepository(database, nil)}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.repo.GetBlob(ctx, key)
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	return s.repo.PutBlob(ctx, key, value)
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	return s.repo.DeleteBlob(ctx, key)
}

// Database exposes the underlying database for the activity log.
func (s *SQLiteStore) Database() *db.Database {
	return s.database
}

// Close closes the database if OpenSQLite opened it.
func (s *SQLiteStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.database.Close()
}
