package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertMemory inserts a new memory row. The caller (component E's
// Remember operation) is responsible for also ingesting the mirror
// chunk that lets the memory participate in search.
func (s *Store) InsertMemory(ctx context.Context, m Memory) error {
	sourceIDs, err := json.Marshal(m.SourceChunkIDs)
	if err != nil {
		return fmt.Errorf("store: insert memory: marshaling source chunk ids: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, text, category, confidence, source_chunk_ids, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Text, m.Category, m.Confidence, string(sourceIDs), m.Status, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: insert memory: %w", err)
	}
	return nil
}

// GetMemory returns the memory with the given id, or ErrNotFound.
func (s *Store) GetMemory(ctx context.Context, id string) (Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, text, category, confidence, source_chunk_ids, status, created_at, updated_at
		FROM memories WHERE id = ?
	`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return Memory{}, ErrNotFound
	}
	if err != nil {
		return Memory{}, fmt.Errorf("store: get memory: %w", err)
	}
	return m, nil
}

// ListMemories returns memories, optionally filtered by status and/or
// category (empty string means "any").
func (s *Store) ListMemories(ctx context.Context, status, category string) ([]Memory, error) {
	query := `
		SELECT id, text, category, confidence, source_chunk_ids, status, created_at, updated_at
		FROM memories WHERE 1=1
	`
	var args []interface{}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list memories: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMemoryStatus sets a memory's status and updated_at. The memory
// row is never deleted by this or any other operation, per the
// deprecation-only lifecycle.
func (s *Store) UpdateMemoryStatus(ctx context.Context, id, status, updatedAt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE memories SET status = ?, updated_at = ? WHERE id = ?`, status, updatedAt, id)
	if err != nil {
		return fmt.Errorf("store: update memory status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update memory status: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (Memory, error) {
	var m Memory
	var sourceIDs string
	if err := row.Scan(&m.ID, &m.Text, &m.Category, &m.Confidence, &sourceIDs, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return Memory{}, err
	}
	if err := json.Unmarshal([]byte(sourceIDs), &m.SourceChunkIDs); err != nil {
		return Memory{}, fmt.Errorf("unmarshaling source chunk ids: %w", err)
	}
	return m, nil
}
