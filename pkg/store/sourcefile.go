package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PutSourceFile records or updates a file's indexing state within a
// collection, keyed on (collection, rel_path).
func (s *Store) PutSourceFile(ctx context.Context, f SourceFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_files (collection, rel_path, hash, size, chunk_count, last_indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, rel_path) DO UPDATE SET
			hash = excluded.hash,
			size = excluded.size,
			chunk_count = excluded.chunk_count,
			last_indexed_at = excluded.last_indexed_at
	`, f.Collection, f.RelPath, f.Hash, f.Size, f.ChunkCount, f.LastIndexedAt)
	if err != nil {
		return fmt.Errorf("store: put source file: %w", err)
	}
	return nil
}

// GetSourceFile returns the indexing state for one file, or ErrNotFound.
func (s *Store) GetSourceFile(ctx context.Context, collection, relPath string) (SourceFile, error) {
	var f SourceFile
	err := s.db.QueryRowContext(ctx, `
		SELECT collection, rel_path, hash, size, chunk_count, last_indexed_at
		FROM source_files WHERE collection = ? AND rel_path = ?
	`, collection, relPath).Scan(&f.Collection, &f.RelPath, &f.Hash, &f.Size, &f.ChunkCount, &f.LastIndexedAt)
	if err == sql.ErrNoRows {
		return SourceFile{}, ErrNotFound
	}
	if err != nil {
		return SourceFile{}, fmt.Errorf("store: get source file: %w", err)
	}
	return f, nil
}

// ListSourceFiles returns every indexed file within a collection.
func (s *Store) ListSourceFiles(ctx context.Context, collection string) ([]SourceFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, rel_path, hash, size, chunk_count, last_indexed_at
		FROM source_files WHERE collection = ? ORDER BY rel_path
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("store: list source files: %w", err)
	}
	defer rows.Close()

	var out []SourceFile
	for rows.Next() {
		var f SourceFile
		if err := rows.Scan(&f.Collection, &f.RelPath, &f.Hash, &f.Size, &f.ChunkCount, &f.LastIndexedAt); err != nil {
			return nil, fmt.Errorf("store: list source files: scan: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CountSourceFiles returns the total number of indexed file rows
// across all collections.
func (s *Store) CountSourceFiles(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM source_files`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count source files: %w", err)
	}
	return count, nil
}

// DeleteSourceFile removes the row for a file that has disappeared from
// disk at the next sync; its already-ingested chunks are left in place.
func (s *Store) DeleteSourceFile(ctx context.Context, collection, relPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM source_files WHERE collection = ? AND rel_path = ?`, collection, relPath)
	if err != nil {
		return fmt.Errorf("store: delete source file: %w", err)
	}
	return nil
}
