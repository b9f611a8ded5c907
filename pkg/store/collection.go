package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PutCollection creates or replaces a collection's configuration row.
func (s *Store) PutCollection(ctx context.Context, c Collection) error {
	includeJSON, err := json.Marshal(c.IncludeGlobs)
	if err != nil {
		return fmt.Errorf("store: put collection: marshaling include globs: %w", err)
	}
	ignoreJSON, err := json.Marshal(c.IgnoreGlobs)
	if err != nil {
		return fmt.Errorf("store: put collection: marshaling ignore globs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collections (name, root_path, include_globs, ignore_globs, file_count, chunk_count, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			root_path = excluded.root_path,
			include_globs = excluded.include_globs,
			ignore_globs = excluded.ignore_globs
	`, c.Name, c.RootPath, string(includeJSON), string(ignoreJSON), c.FileCount, c.ChunkCount, c.LastSyncedAt)
	if err != nil {
		return fmt.Errorf("store: put collection: %w", err)
	}
	return nil
}

// GetCollection returns the collection with the given name, or ErrNotFound.
func (s *Store) GetCollection(ctx context.Context, name string) (Collection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, root_path, include_globs, ignore_globs, file_count, chunk_count, COALESCE(last_synced_at, '')
		FROM collections WHERE name = ?
	`, name)
	c, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return Collection{}, ErrNotFound
	}
	if err != nil {
		return Collection{}, fmt.Errorf("store: get collection: %w", err)
	}
	return c, nil
}

// ListCollections returns all known collections, ordered by name.
func (s *Store) ListCollections(ctx context.Context) ([]Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, root_path, include_globs, ignore_globs, file_count, chunk_count, COALESCE(last_synced_at, '')
		FROM collections ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list collections: %w", err)
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list collections: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCollectionCounters refreshes the cached file/chunk counters and
// sync timestamp after a sync pass completes.
func (s *Store) UpdateCollectionCounters(ctx context.Context, name string, fileCount, chunkCount int, syncedAt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE collections SET file_count = ?, chunk_count = ?, last_synced_at = ? WHERE name = ?
	`, fileCount, chunkCount, syncedAt, name)
	if err != nil {
		return fmt.Errorf("store: update collection counters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update collection counters: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCollection removes a collection and its source file rows
// (cascading via foreign key); chunks already ingested from it remain.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("store: delete collection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete collection: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCollection(row rowScanner) (Collection, error) {
	var c Collection
	var includeJSON, ignoreJSON string
	if err := row.Scan(&c.Name, &c.RootPath, &includeJSON, &ignoreJSON, &c.FileCount, &c.ChunkCount, &c.LastSyncedAt); err != nil {
		return Collection{}, err
	}
	if err := json.Unmarshal([]byte(includeJSON), &c.IncludeGlobs); err != nil {
		return Collection{}, fmt.Errorf("unmarshaling include globs: %w", err)
	}
	if err := json.Unmarshal([]byte(ignoreJSON), &c.IgnoreGlobs); err != nil {
		return Collection{}, fmt.Errorf("unmarshaling ignore globs: %w", err)
	}
	return c, nil
}
