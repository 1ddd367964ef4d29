// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package share

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/quorate/quorate/lib/codec"
)

const shareSchema = `
CREATE TABLE IF NOT EXISTS shares (
	share_id       TEXT PRIMARY KEY,
	graph          BLOB NOT NULL,
	sealed_keyring BLOB NOT NULL,
	document_ids   BLOB NOT NULL
);
`

// SQLiteStore persists share records in a SQLite database.
//
// SQLiteStore is safe for concurrent use; each operation borrows a
// connection from an internal pool.
type SQLiteStore struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// OpenSQLite opens (creating if needed) the share database at path.
// Use ":memory:" for tests.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("share: database path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	poolSize := 4
	if path == ":memory:" {
		// In-memory connections are independent databases; the pool
		// must not hand out more than one.
		poolSize = 1
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("share: opening %s: %w", path, err)
	}
	logger.Info("share store opened", "path", path)
	return &SQLiteStore{pool: pool, logger: logger, path: path}, nil
}

// prepareConnection applies the standard pragmas and the schema. Runs
// once per pooled connection, on first use.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("share: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, shareSchema, nil); err != nil {
		return fmt.Errorf("share: creating schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, record Record) error {
	documentIDs, err := codec.Marshal(record.DocumentIDs)
	if err != nil {
		return fmt.Errorf("encoding document ids: %w", err)
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("share: take: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO shares (share_id, graph, sealed_keyring, document_ids)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (share_id) DO UPDATE SET
			graph = excluded.graph,
			sealed_keyring = excluded.sealed_keyring,
			document_ids = excluded.document_ids`,
		&sqlitex.ExecOptions{
			Args: []any{record.ShareID, record.Graph, record.SealedKeyring, documentIDs},
		})
	if err != nil {
		return fmt.Errorf("share: saving %s: %w", record.ShareID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, shareID string) (Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("share: take: %w", err)
	}
	defer s.pool.Put(conn)

	var record Record
	var documentIDs []byte
	found := false
	err = sqlitex.Execute(conn, `
		SELECT graph, sealed_keyring, document_ids FROM shares WHERE share_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{shareID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				record.ShareID = shareID
				record.Graph = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, record.Graph)
				record.SealedKeyring = make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, record.SealedKeyring)
				documentIDs = make([]byte, stmt.ColumnLen(2))
				stmt.ColumnBytes(2, documentIDs)
				return nil
			},
		})
	if err != nil {
		return Record{}, fmt.Errorf("share: loading %s: %w", shareID, err)
	}
	if !found {
		return Record{}, fmt.Errorf("loading %s: %w", shareID, ErrShareNotFound)
	}
	if err := codec.Unmarshal(documentIDs, &record.DocumentIDs); err != nil {
		return Record{}, fmt.Errorf("decoding document ids for %s: %w", shareID, err)
	}
	return record, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, shareID string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("share: take: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM shares WHERE share_id = ?`,
		&sqlitex.ExecOptions{Args: []any{shareID}})
	if err != nil {
		return fmt.Errorf("share: deleting %s: %w", shareID, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("share: take: %w", err)
	}
	defer s.pool.Put(conn)

	var ids []string
	err = sqlitex.Execute(conn, `SELECT share_id FROM shares ORDER BY share_id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ids = append(ids, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("share: listing: %w", err)
	}
	return ids, nil
}

// Close closes the underlying connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("share: closing %s: %w", s.path, err)
	}
	s.logger.Info("share store closed", "path", s.path)
	return nil
}
