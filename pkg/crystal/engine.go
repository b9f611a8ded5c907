// Package crystal presents the memory substrate as a single capability
// surface, so callers depend on Engine rather than on pkg/store,
// pkg/embedding, pkg/ingest, and pkg/query directly. It supplements the
// original design with the polymorphism dyike-mmq's MMQ facade shows:
// one constructor, one interface, and everything downstream of it
// swappable without touching call sites.
package crystal

import (
	"context"

	"github.com/wipcomputer/memory-crystal/pkg/ingest"
	"github.com/wipcomputer/memory-crystal/pkg/query"
	"github.com/wipcomputer/memory-crystal/pkg/store"
	"github.com/wipcomputer/memory-crystal/pkg/status"
)

// Engine is the capability surface every front-end (CLI, hook capture,
// relay poller) drives the substrate through.
type Engine interface {
	Search(ctx context.Context, q string, limit int, filter *store.Filter) ([]query.Result, error)
	Remember(ctx context.Context, text, category string) (store.Memory, error)
	Forget(ctx context.Context, id string) (bool, error)
	Status(ctx context.Context) (status.Snapshot, error)
	Ingest(ctx context.Context, candidates []ingest.Candidate) (int, error)
	ChunkText(text string, targetTokens, overlapTokens int) []string
}

// Mode selects which Engine implementation New builds.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)
