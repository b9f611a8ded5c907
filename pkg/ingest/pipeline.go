// Package ingest implements the dedup-embed-write pipeline: candidate
// chunks are filtered against the store's content-addressed hash index,
// the survivors are embedded in one call, and the whole batch is
// written transactionally. It also implements the explicit
// remember/forget memory operations, which route through the same
// pipeline so a memory participates in search like any other chunk.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wipcomputer/memory-crystal/pkg/crypto"
	"github.com/wipcomputer/memory-crystal/pkg/embedding"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

// Candidate is one chunk offered for ingestion, prior to dedup.
type Candidate struct {
	Text          string
	Role          string
	SourceType    string
	SourceID      string
	AgentID       string
	TokenEstimate int
}

// Pipeline wires a store and an embedding client together.
type Pipeline struct {
	store    *store.Store
	embedder embedding.Client
	now      func() time.Time
}

// New constructs a Pipeline. now defaults to time.Now if nil, letting
// tests inject a fixed clock.
func New(s *store.Store, embedder embedding.Client, now func() time.Time) *Pipeline {
	if now == nil {
		now = time.Now
	}
	return &Pipeline{store: s, embedder: embedder, now: now}
}

// Ingest deduplicates candidates by content hash, embeds the survivors
// in a single call, and writes them transactionally. It returns the
// number of chunks actually inserted (candidates already present by
// hash are silently skipped, not an error). Embedding failure aborts
// before any write; a write failure aborts the whole batch.
func (p *Pipeline) Ingest(ctx context.Context, candidates []Candidate) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	survivors := make([]Candidate, 0, len(candidates))
	texts := make([]string, 0, len(candidates))

	for _, c := range candidates {
		hash := crypto.Hash([]byte(c.Text))
		_, err := p.store.GetChunkByHash(ctx, hash)
		if err == nil {
			continue // already ingested, dedup
		}
		if err != store.ErrNotFound {
			return 0, fmt.Errorf("ingest: checking dedup for hash %s: %w", hash, err)
		}
		survivors = append(survivors, c)
		texts = append(texts, c.Text)
	}

	if len(survivors) == 0 {
		return 0, nil
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("ingest: embedding batch: %w", err)
	}
	if len(vectors) != len(survivors) {
		return 0, fmt.Errorf("ingest: embedder returned %d vectors for %d inputs", len(vectors), len(survivors))
	}

	rows := make([]store.ChunkInput, len(survivors))
	createdAt := p.now().UTC().Format(time.RFC3339)
	for i, c := range survivors {
		rows[i] = store.ChunkInput{
			Text:          c.Text,
			Role:          c.Role,
			SourceType:    c.SourceType,
			SourceID:      c.SourceID,
			AgentID:       c.AgentID,
			TokenEstimate: c.TokenEstimate,
			CreatedAt:     createdAt,
		}
	}

	ids, err := p.store.PutChunks(ctx, rows, vectors)
	if err != nil {
		return 0, fmt.Errorf("ingest: writing batch: %w", err)
	}
	return len(ids), nil
}

// Remember inserts a new Memory row and ingests a mirror chunk
// (role=system, source_type=manual, source_id=memory:{id}, agent_id=system)
// so the fact participates in hybrid search.
func (p *Pipeline) Remember(ctx context.Context, text, category string) (store.Memory, error) {
	id := uuid.New().String()
	now := p.now().UTC().Format(time.RFC3339)

	n, err := p.Ingest(ctx, []Candidate{{
		Text:       text,
		Role:       store.RoleSystem,
		SourceType: store.SourceTypeManual,
		SourceID:   fmt.Sprintf("memory:%s", id),
		AgentID:    "system",
	}})
	if err != nil {
		return store.Memory{}, fmt.Errorf("ingest: remember: mirror chunk: %w", err)
	}

	var sourceChunkIDs []int64
	if n > 0 {
		hash := crypto.Hash([]byte(text))
		chunk, err := p.store.GetChunkByHash(ctx, hash)
		if err != nil {
			return store.Memory{}, fmt.Errorf("ingest: remember: looking up mirror chunk: %w", err)
		}
		sourceChunkIDs = []int64{chunk.ID}
	}

	m := store.Memory{
		ID:             id,
		Text:           text,
		Category:       category,
		Confidence:     1.0,
		SourceChunkIDs: sourceChunkIDs,
		Status:         store.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.store.InsertMemory(ctx, m); err != nil {
		return store.Memory{}, fmt.Errorf("ingest: remember: inserting memory: %w", err)
	}
	return m, nil
}

// Forget conditionally transitions a memory from active to deprecated.
// It returns whether any row changed (a memory already deprecated, or
// unknown, changes nothing and is not an error).
func (p *Pipeline) Forget(ctx context.Context, id string) (bool, error) {
	m, err := p.store.GetMemory(ctx, id)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ingest: forget: looking up memory: %w", err)
	}
	if m.Status != store.StatusActive {
		return false, nil
	}

	now := p.now().UTC().Format(time.RFC3339)
	if err := p.store.UpdateMemoryStatus(ctx, id, store.StatusDeprecated, now); err != nil {
		return false, fmt.Errorf("ingest: forget: updating status: %w", err)
	}
	return true, nil
}
