// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, registers "sqlite"

	"github.com/replikativ/yggdrasil-go/pkg/ygerrors"
)

// SQLiteStore implements Store over a single key/value table in an
// embedded SQLite database, exercising the teacher's embedded-relational
// dependency for workspaces that would rather bundle a single file than
// run Badger's LSM tree.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a SQLite-backed Store at dsn,
// e.g. a file path or ":memory:".
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ygerrors.NewStorageFaultError("failed to open sqlite store at "+dsn, err)
	}
	const ddl = `CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value BLOB NOT NULL)`
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, ygerrors.NewStorageFaultError("failed to initialize sqlite kv table", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Assoc implements Store.
func (s *SQLiteStore) Assoc(ctx context.Context, key string, value []byte) error {
	const q = `INSERT INTO kv(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return ygerrors.NewStorageFaultError("sqlite assoc failed for "+key, err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key)
	var v []byte
	switch err := row.Scan(&v); err {
	case nil:
		return v, true, nil
	case sql.ErrNoRows:
		return nil, false, nil
	default:
		return nil, false, ygerrors.NewStorageFaultError("sqlite get failed for "+key, err)
	}
}

// Dissoc implements Store.
func (s *SQLiteStore) Dissoc(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return ygerrors.NewStorageFaultError("sqlite dissoc failed for "+key, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return ygerrors.NewStorageFaultError("failed to close sqlite store", err)
	}
	return nil
}
