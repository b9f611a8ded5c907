package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/wipcomputer/memory-crystal/pkg/crypto"
)

// PutChunks inserts rows and their embeddings within a single
// transaction: each chunk row, its vector row (keyed by the chunk's
// id), and its FTS row (populated by the chunks_ai trigger). The
// vector index is created lazily at the dimension of the first
// embedding ever stored; every subsequent embedding must match that
// dimension or the whole batch is rejected.
//
// rows and vectors must be the same length and index-aligned. Callers
// are expected to have already deduplicated by hash (component E); a
// row whose hash already exists returns ErrDuplicateHash and aborts
// the whole batch, since a partial batch would leave some chunks
// embedded and others not.
func (s *Store) PutChunks(ctx context.Context, rows []ChunkInput, vectors [][]float32) ([]int64, error) {
	if len(rows) != len(vectors) {
		return nil, fmt.Errorf("store: put chunks: %d rows but %d vectors", len(rows), len(vectors))
	}
	if len(rows) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dimension := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dimension {
			return nil, fmt.Errorf("store: put chunks: vector %d has dimension %d, want %d", i, len(v), dimension)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: put chunks: begin: %w", err)
	}
	defer tx.Rollback()

	existingDim, hasVectors, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if hasVectors && existingDim != dimension {
		return nil, fmt.Errorf("%w: store is fixed at %d, got %d", ErrDimensionMismatch, existingDim, dimension)
	}
	if err := s.ensureVectorTable(ctx, dimension); err != nil {
		return nil, err
	}

	insertChunk, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (hash, text, role, source_type, source_id, agent_id, token_estimate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("store: put chunks: prepare insert: %w", err)
	}
	defer insertChunk.Close()

	insertVector, err := tx.PrepareContext(ctx, `INSERT INTO vectors_vec (chunk_id, embedding) VALUES (?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("store: put chunks: prepare vector insert: %w", err)
	}
	defer insertVector.Close()

	ids := make([]int64, len(rows))
	for i, row := range rows {
		hash := crypto.Hash([]byte(row.Text))
		createdAt := row.CreatedAt
		if createdAt == "" {
			createdAt = time.Now().UTC().Format(time.RFC3339)
		}

		res, err := insertChunk.ExecContext(ctx, hash, row.Text, row.Role, row.SourceType, row.SourceID, row.AgentID, row.TokenEstimate, createdAt)
		if err != nil {
			if isUniqueConstraintErr(err) {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateHash, hash)
			}
			return nil, fmt.Errorf("store: put chunks: insert chunk %d: %w", i, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("store: put chunks: last insert id: %w", err)
		}

		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			return nil, fmt.Errorf("store: put chunks: serializing vector %d: %w", i, err)
		}
		if _, err := insertVector.ExecContext(ctx, id, blob); err != nil {
			return nil, fmt.Errorf("store: put chunks: insert vector %d: %w", i, err)
		}

		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: put chunks: commit: %w", err)
	}
	return ids, nil
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetChunksByID returns the chunk rows for the given ids, in no
// particular order; callers re-order to match a ranking.
func (s *Store) GetChunksByID(ctx context.Context, ids []int64) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, hash, text, role, source_type, source_id, agent_id, token_estimate, created_at
		FROM chunks WHERE id IN (%s)
	`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get chunks by id: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Hash, &c.Text, &c.Role, &c.SourceType, &c.SourceID, &c.AgentID, &c.TokenEstimate, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: get chunks by id: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChunkByHash looks up a chunk by its content hash, returning
// ErrNotFound if absent. It is the dedup check ingestion (component E)
// runs before embedding a candidate chunk.
func (s *Store) GetChunkByHash(ctx context.Context, hash string) (Chunk, error) {
	var c Chunk
	err := s.db.QueryRowContext(ctx, `
		SELECT id, hash, text, role, source_type, source_id, agent_id, token_estimate, created_at
		FROM chunks WHERE hash = ?
	`, hash).Scan(&c.ID, &c.Hash, &c.Text, &c.Role, &c.SourceType, &c.SourceID, &c.AgentID, &c.TokenEstimate, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return Chunk{}, ErrNotFound
	}
	if err != nil {
		return Chunk{}, fmt.Errorf("store: get chunk by hash: %w", err)
	}
	return c, nil
}

// CountChunks returns the total number of chunk rows.
func (s *Store) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count chunks: %w", err)
	}
	return n, nil
}

// TimeRange returns the earliest and latest chunk creation timestamps.
// Both are empty strings if the store holds no chunks.
func (s *Store) TimeRange(ctx context.Context) (earliest, latest string, err error) {
	var minT, maxT sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT MIN(created_at), MAX(created_at) FROM chunks`).Scan(&minT, &maxT)
	if err != nil {
		return "", "", fmt.Errorf("store: time range: %w", err)
	}
	return minT.String, maxT.String, nil
}

// DistinctAgents returns the distinct agent_id values across all chunks.
func (s *Store) DistinctAgents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT agent_id FROM chunks ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("store: distinct agents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("store: distinct agents: scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
