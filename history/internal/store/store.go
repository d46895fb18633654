// CLAUDE:SUMMARY SQLite handle for the screenshot catalogue — opens DB with pragmas and applies schema.
// Package store is the durable catalogue behind the screenshot history:
// the records table, its FTS5 shadow index, and the search audit log.
package store

import (
	"context"
	"database/sql"

	"github.com/hazyhaar/shotkeeper/dbopen"
)

// Store is the catalogue database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the history database at path, applies pragmas
// and the catalogue schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// NewStore wraps an already-opened database. The caller is responsible
// for having applied Schema.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// runTx runs fn in a transaction with busy-retry. Mutations that touch
// both the records table and the FTS5 shadow go through here so readers
// never observe one without the other.
func (s *Store) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return dbopen.RunTx(ctx, s.DB, fn)
}
