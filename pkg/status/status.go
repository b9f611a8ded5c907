// Package status aggregates a read-only snapshot over the store for
// diagnostic and adapter surfaces, touching nothing.
package status

import (
	"context"
	"fmt"
	"sort"

	"github.com/wipcomputer/memory-crystal/pkg/config"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

// Snapshot is a point-in-time read over the store and the resolved
// configuration.
type Snapshot struct {
	ChunkCount         int64
	ActiveMemoryCount  int
	SourceFileCount    int64
	DistinctAgentIDs   []string
	OldestChunkAt      string
	NewestChunkAt      string
	CapturedSessions   int
	LatestCaptureAt    string
	EmbeddingProvider  string
	DataDir            string
}

// Collect builds a Snapshot over s, reporting cfg's effective
// embedding provider and data directory alongside it.
func Collect(ctx context.Context, s *store.Store, cfg config.Config) (Snapshot, error) {
	chunkCount, err := s.CountChunks(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("status: counting chunks: %w", err)
	}

	activeMemories, err := s.ListMemories(ctx, store.StatusActive, "")
	if err != nil {
		return Snapshot{}, fmt.Errorf("status: listing active memories: %w", err)
	}

	sourceFileCount, err := s.CountSourceFiles(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("status: counting source files: %w", err)
	}

	oldest, newest, err := s.TimeRange(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("status: computing chunk time range: %w", err)
	}

	chunkAgents, err := s.DistinctAgents(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("status: listing distinct chunk agents: %w", err)
	}

	captures, err := s.ListCaptureStates(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("status: listing capture states: %w", err)
	}

	agentSet := map[string]struct{}{}
	for _, a := range chunkAgents {
		agentSet[a] = struct{}{}
	}

	var latestCapture string
	for _, c := range captures {
		agentSet[c.AgentID] = struct{}{}
		if c.LastCapturedAt > latestCapture {
			latestCapture = c.LastCapturedAt
		}
	}

	agents := make([]string, 0, len(agentSet))
	for a := range agentSet {
		agents = append(agents, a)
	}
	sort.Strings(agents)

	return Snapshot{
		ChunkCount:        chunkCount,
		ActiveMemoryCount: len(activeMemories),
		SourceFileCount:   sourceFileCount,
		DistinctAgentIDs:  agents,
		OldestChunkAt:     oldest,
		NewestChunkAt:     newest,
		CapturedSessions:  len(captures),
		LatestCaptureAt:   latestCapture,
		EmbeddingProvider: string(cfg.EmbeddingProvider),
		DataDir:           cfg.DataDir,
	}, nil
}
