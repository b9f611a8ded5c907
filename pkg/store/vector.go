package store

import (
	"context"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// VectorQuery returns up to k (chunk_id, cosine_distance) pairs nearest
// to queryVector, using the vec0 index's native MATCH operator. This
// statement never joins against the chunks table: the vector index
// stalls on joins, so a second, separate statement (GetChunksByID)
// fetches metadata for whichever ids the caller wants to display.
func (s *Store) VectorQuery(ctx context.Context, queryVector []float32, k int) ([]VectorHit, error) {
	_, ok, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(queryVector)
	if err != nil {
		return nil, fmt.Errorf("store: vector query: serializing query vector: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, distance FROM vectors_vec WHERE embedding MATCH ? AND k = ?
	`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("store: vector query: %w", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var h VectorHit
		if err := rows.Scan(&h.ChunkID, &h.Distance); err != nil {
			return nil, fmt.Errorf("store: vector query: scan: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
