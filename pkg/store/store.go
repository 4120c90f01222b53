// Package store persists parsed provision trees in SQLite: one document row per part, the
// nodes, their resolved cross-references and a full-text search index.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a document or node does not exist.
var ErrNotFound = errors.New("not found")

// Querier abstracts *sql.DB and *sql.Tx so store methods work in both contexts.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps a SQLite connection for provision storage.
type Store struct {
	db     *sql.DB
	q      Querier // active querier: db or tx
	dbPath string
	fts    bool
}

// OpenPath opens or creates a SQLite database at the given path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return newStore(db, dbPath)
}

// OpenMemory opens an in-memory SQLite database (for testing).
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	// Every pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newStore(db, ":memory:")
}

func newStore(db *sql.DB, dbPath string) (*Store, error) {
	s := &Store{db: db, dbPath: dbPath}
	s.q = s.db
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// WithTransaction executes fn within a single SQLite transaction. The callback receives a
// transaction-scoped Store; the receiver is never mutated.
func (s *Store) WithTransaction(ctx context.Context, fn func(txStore *Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{db: s.db, q: tx, dbPath: s.dbPath, fts: s.fts}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path, ":memory:" for in-memory stores.
func (s *Store) Path() string {
	return s.dbPath
}

// FullText reports whether search uses the FTS5 index.
func (s *Store) FullText() bool {
	return s.fts
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		part INTEGER PRIMARY KEY,
		run_id TEXT NOT NULL,
		profile_id TEXT DEFAULT '',
		source TEXT DEFAULT '',
		source_hash TEXT DEFAULT '',
		node_count INTEGER DEFAULT 0,
		parsed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS nodes (
		part INTEGER NOT NULL REFERENCES documents(part) ON DELETE CASCADE,
		id TEXT NOT NULL,
		type TEXT NOT NULL,
		parent_id TEXT DEFAULT '',
		title TEXT DEFAULT '',
		content TEXT DEFAULT '',
		page INTEGER DEFAULT 0,
		seq INTEGER DEFAULT 0,
		ord INTEGER DEFAULT 0,
		fallback INTEGER DEFAULT 0,
		orphan INTEGER DEFAULT 0,
		PRIMARY KEY (part, id)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_id ON nodes(id);
	CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(part, parent_id, seq);
	CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(part, type);

	CREATE TABLE IF NOT EXISTS refs (
		part INTEGER NOT NULL,
		source_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		target TEXT NOT NULL,
		target_id TEXT DEFAULT '',
		status TEXT NOT NULL,
		ord INTEGER DEFAULT 0,
		PRIMARY KEY (part, source_id, kind, target),
		FOREIGN KEY (part, source_id) REFERENCES nodes(part, id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_refs_target ON refs(target_id);
	CREATE INDEX IF NOT EXISTS idx_refs_kind ON refs(part, kind);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	_, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS search_index USING fts5(
		part UNINDEXED, node_id UNINDEXED, title, content)`)
	if err != nil {
		slog.Warn("schema.fts5.skip", "err", err)
		_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS search_index (
			part INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			title TEXT DEFAULT '',
			content TEXT DEFAULT ''
		)`)
		if err != nil {
			return err
		}
	}

	var ddl string
	if err := s.db.QueryRow(`SELECT sql FROM sqlite_master WHERE name='search_index'`).Scan(&ddl); err != nil {
		return fmt.Errorf("inspect search_index: %w", err)
	}
	s.fts = strings.Contains(strings.ToLower(ddl), "fts5")
	return nil
}
