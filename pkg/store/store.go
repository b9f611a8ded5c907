// Package store implements the single-file embedded storage layer:
// chunk rows, a fixed-dimension cosine vector index, a Porter-stemmed
// BM25 full-text index, and the memory/collection/capture-state tables
// that ride alongside them. All durable state lives in one SQLite file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3" // SQLite driver, registered as "sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    hash TEXT NOT NULL UNIQUE,
    text TEXT NOT NULL,
    role TEXT NOT NULL,
    source_type TEXT NOT NULL,
    source_id TEXT NOT NULL,
    agent_id TEXT NOT NULL,
    token_estimate INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_agent ON chunks(agent_id);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_type, source_id);
CREATE INDEX IF NOT EXISTS idx_chunks_created_at ON chunks(created_at);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    text,
    content='chunks',
    content_rowid='id',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
    INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
END;

CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.id, old.text);
END;

CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    category TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0.5,
    source_chunk_ids TEXT NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'active',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(status);
CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);

CREATE TABLE IF NOT EXISTS collections (
    name TEXT PRIMARY KEY,
    root_path TEXT NOT NULL,
    include_globs TEXT NOT NULL DEFAULT '[]',
    ignore_globs TEXT NOT NULL DEFAULT '[]',
    file_count INTEGER NOT NULL DEFAULT 0,
    chunk_count INTEGER NOT NULL DEFAULT 0,
    last_synced_at TEXT
);

CREATE TABLE IF NOT EXISTS source_files (
    collection TEXT NOT NULL,
    rel_path TEXT NOT NULL,
    hash TEXT NOT NULL,
    size INTEGER NOT NULL,
    chunk_count INTEGER NOT NULL DEFAULT 0,
    last_indexed_at TEXT NOT NULL,
    PRIMARY KEY (collection, rel_path),
    FOREIGN KEY (collection) REFERENCES collections(name) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS capture_state (
    agent_id TEXT NOT NULL,
    source_id TEXT NOT NULL,
    last_message_count INTEGER NOT NULL DEFAULT 0,
    cycle_count INTEGER NOT NULL DEFAULT 0,
    last_captured_at TEXT,
    PRIMARY KEY (agent_id, source_id)
);
`

var vecDimensionPattern = regexp.MustCompile(`float\[(\d+)\]`)

// Store is a handle on one crystal.db file. All writes from within a
// single process go through mu, so a capture poller and an interactive
// caller sharing one *Store never interleave transactions; SQLite's WAL
// mode already allows any number of concurrent cross-process readers.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the store at dbPath, initialising schema
// idempotently.
func Open(dbPath string) (*Store, error) {
	sqlite_vec.Auto()

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initializing schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection. Any in-flight
// transaction started through Store's own methods has already
// completed by the time a caller can observe Close returning, since
// every write method holds mu for its whole transaction.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying connection for callers (status aggregator,
// tests) that need to run ad-hoc read-only queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dimension reports the fixed embedding dimension for this store, if
// one has been established yet (i.e. the vector index has been
// created). It is discovered by inspecting the vec0 table's own DDL
// rather than tracked separately, so a store reopened from disk
// recovers the dimension without a side table.
func (s *Store) Dimension(ctx context.Context) (dim int, ok bool, err error) {
	var createSQL string
	err = s.db.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type='table' AND name='vectors_vec'`,
	).Scan(&createSQL)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: inspecting vector table: %w", err)
	}

	m := vecDimensionPattern.FindStringSubmatch(createSQL)
	if m == nil {
		return 0, false, fmt.Errorf("store: could not parse vector dimension from %q", createSQL)
	}
	var parsed int
	if _, err := fmt.Sscanf(m[1], "%d", &parsed); err != nil {
		return 0, false, fmt.Errorf("store: parsing vector dimension: %w", err)
	}
	return parsed, true, nil
}

// ensureVectorTable creates the vec0 virtual table at the given
// dimension if it does not already exist. Callers must hold mu.
func (s *Store) ensureVectorTable(ctx context.Context, dimension int) error {
	_, ok, err := s.Dimension(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	createSQL := fmt.Sprintf(
		"CREATE VIRTUAL TABLE vectors_vec USING vec0(chunk_id INTEGER PRIMARY KEY, embedding float[%d] distance_metric=cosine)",
		dimension,
	)
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("store: creating vector table: %w", err)
	}
	return nil
}
