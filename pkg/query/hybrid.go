// Package query implements the hybrid retrieval engine: a vector
// nearest-neighbour pass and a BM25 lexical pass, fused with
// Reciprocal Rank Fusion, then reweighted by recency and rescaled into
// a human-useful 0-1 range.
package query

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wipcomputer/memory-crystal/pkg/embedding"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

// Result is one ranked hit returned to a caller.
type Result struct {
	Text           string
	Role           string
	SourceType     string
	SourceID       string
	AgentID        string
	CreatedAt      string
	Score          float64
	FreshnessLabel string
}

// Engine answers hybrid queries against a store using an embedding
// client to vectorize the query text.
type Engine struct {
	store    *store.Store
	embedder embedding.Client
}

// New constructs a query Engine.
func New(s *store.Store, embedder embedding.Client) *Engine {
	return &Engine{store: s, embedder: embedder}
}

// Search runs the hybrid vector+lexical query described by q, returning
// up to limit results ranked best-first. now is passed explicitly
// (rather than read from time.Now inside the algorithm) so recency
// weighting and freshness bucketing can be exercised deterministically
// in tests.
func (e *Engine) Search(ctx context.Context, q string, limit int, filter *store.Filter, now time.Time) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	count, err := e.store.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: search: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	breadth := 3 * limit
	if breadth < 30 {
		breadth = 30
	}

	vectorRanked, err := e.vectorSide(ctx, q, breadth, filter)
	if err != nil {
		return nil, fmt.Errorf("query: search: vector side: %w", err)
	}

	lexicalRanked, err := e.lexicalSide(ctx, q, breadth, filter)
	if err != nil {
		return nil, fmt.Errorf("query: search: lexical side: %w", err)
	}

	metaByID := make(map[int64]store.Chunk)
	for _, c := range vectorRanked.chunks {
		metaByID[c.ID] = c
	}
	for _, c := range lexicalRanked.chunks {
		metaByID[c.ID] = c
	}

	fusedEntries := reciprocalRankFusion([][]rankedResult{vectorRanked.ranked, lexicalRanked.ranked}, []float64{1.0, 1.0})

	results := make([]Result, 0, len(fusedEntries))
	for _, f := range fusedEntries {
		c, ok := metaByID[f.chunkID]
		if !ok {
			continue
		}

		ageDays := ageInDays(c.CreatedAt, now)
		score := recencyWeightedScore(f.rrf, ageDays)

		results = append(results, Result{
			Text:           c.Text,
			Role:           c.Role,
			SourceType:     c.SourceType,
			SourceID:       c.SourceID,
			AgentID:        c.AgentID,
			CreatedAt:      c.CreatedAt,
			Score:          score,
			FreshnessLabel: freshnessLabel(ageDays),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

type sideResult struct {
	ranked []rankedResult
	chunks []store.Chunk
}

func (e *Engine) vectorSide(ctx context.Context, q string, k int, filter *store.Filter) (sideResult, error) {
	vectors, err := e.embedder.Embed(ctx, []string{q})
	if err != nil {
		return sideResult{}, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := e.store.VectorQuery(ctx, vectors[0], k)
	if err != nil {
		return sideResult{}, fmt.Errorf("vector query: %w", err)
	}
	if len(hits) == 0 {
		return sideResult{}, nil
	}

	ids := make([]int64, len(hits))
	distanceByID := make(map[int64]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
		distanceByID[h.ChunkID] = h.Distance
	}

	chunks, err := e.store.GetChunksByID(ctx, ids)
	if err != nil {
		return sideResult{}, fmt.Errorf("fetching vector match metadata: %w", err)
	}

	filtered := make([]store.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if matchesFilter(c, filter) {
			filtered = append(filtered, c)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		return distanceByID[filtered[i].ID] < distanceByID[filtered[j].ID]
	})

	ranked := make([]rankedResult, len(filtered))
	for i, c := range filtered {
		ranked[i] = rankedResult{
			chunkID: c.ID,
			text:    c.Text,
			score:   1 - distanceByID[c.ID],
		}
	}
	return sideResult{ranked: ranked, chunks: filtered}, nil
}

func (e *Engine) lexicalSide(ctx context.Context, q string, k int, filter *store.Filter) (sideResult, error) {
	expr := store.BuildFTSExpression(q)
	if expr == "" {
		return sideResult{}, nil
	}

	hits, err := e.store.FTSQuery(ctx, expr, k, filter)
	if err != nil {
		return sideResult{}, fmt.Errorf("fts query: %w", err)
	}
	if len(hits) == 0 {
		return sideResult{}, nil
	}

	ids := make([]int64, len(hits))
	scoreByID := make(map[int64]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
		abs := math.Abs(h.BM25Raw)
		scoreByID[h.ChunkID] = abs / (1 + abs)
	}

	chunks, err := e.store.GetChunksByID(ctx, ids)
	if err != nil {
		return sideResult{}, fmt.Errorf("fetching lexical match metadata: %w", err)
	}

	orderByID := make(map[int64]int, len(hits))
	for i, h := range hits {
		orderByID[h.ChunkID] = i
	}
	sort.Slice(chunks, func(i, j int) bool {
		return orderByID[chunks[i].ID] < orderByID[chunks[j].ID]
	})

	ranked := make([]rankedResult, len(chunks))
	for i, c := range chunks {
		ranked[i] = rankedResult{chunkID: c.ID, text: c.Text, score: scoreByID[c.ID]}
	}
	return sideResult{ranked: ranked, chunks: chunks}, nil
}

func matchesFilter(c store.Chunk, filter *store.Filter) bool {
	if filter == nil {
		return true
	}
	if filter.AgentID != "" && c.AgentID != filter.AgentID {
		return false
	}
	if filter.SourceType != "" && c.SourceType != filter.SourceType {
		return false
	}
	if filter.Role != "" && c.Role != filter.Role {
		return false
	}
	return true
}

// recencyWeightedScore applies the recency decay and 0-1 rescale to a
// fused RRF score: recency floors at 0.5 (never fully zeroes out an
// old but otherwise strong match), so for a fixed rrf, score is a
// non-increasing function of ageDays.
func recencyWeightedScore(rrf, ageDays float64) float64 {
	recency := math.Max(0.5, 1-ageDays*0.01)
	return math.Min(rrf*recency*8, 1.0)
}

func ageInDays(createdAt string, now time.Time) float64 {
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return 0
	}
	return now.Sub(t).Seconds() / 86400
}

func freshnessLabel(ageDays float64) string {
	switch {
	case ageDays < 3:
		return "fresh"
	case ageDays < 7:
		return "recent"
	case ageDays < 14:
		return "aging"
	default:
		return "stale"
	}
}
