package crystal

import (
	"context"
	"log/slog"
	"time"

	"github.com/wipcomputer/memory-crystal/pkg/chunker"
	"github.com/wipcomputer/memory-crystal/pkg/config"
	"github.com/wipcomputer/memory-crystal/pkg/embedding"
	"github.com/wipcomputer/memory-crystal/pkg/ingest"
	"github.com/wipcomputer/memory-crystal/pkg/privatemode"
	"github.com/wipcomputer/memory-crystal/pkg/query"
	"github.com/wipcomputer/memory-crystal/pkg/status"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

// Local drives the substrate in-process against an already-open store,
// with no network hop between the caller and the SQLite file.
type Local struct {
	store *store.Store
	query *query.Engine
	pipe  *ingest.Pipeline
	gate  *privatemode.Gate
	cfg   config.Config
	now   func() time.Time
}

// NewLocal wires a Local engine over an open store and embedder. now
// defaults to time.Now when nil, matching pkg/ingest's own convention.
// The private-mode gate is read from cfg's data directory, the same
// flag file the private-mode CLI command toggles.
func NewLocal(s *store.Store, embedder embedding.Client, cfg config.Config, now func() time.Time) *Local {
	if now == nil {
		now = time.Now
	}
	return &Local{
		store: s,
		query: query.New(s, embedder),
		pipe:  ingest.New(s, embedder, now),
		gate:  privatemode.New(privatemode.Path(cfg.DataDir)),
		cfg:   cfg,
		now:   now,
	}
}

func (l *Local) Search(ctx context.Context, q string, limit int, filter *store.Filter) ([]query.Result, error) {
	return l.query.Search(ctx, q, limit, filter, l.now())
}

// Remember is an explicit memory write, so it is gated by private mode:
// when the gate is closed it is a polite no-op, returning a zero
// Memory and no error.
func (l *Local) Remember(ctx context.Context, text, category string) (store.Memory, error) {
	if !l.gate.Enabled() {
		slog.Info("crystal: private mode is on, skipping remember")
		return store.Memory{}, nil
	}
	return l.pipe.Remember(ctx, text, category)
}

func (l *Local) Forget(ctx context.Context, id string) (bool, error) {
	return l.pipe.Forget(ctx, id)
}

func (l *Local) Status(ctx context.Context) (status.Snapshot, error) {
	return status.Collect(ctx, l.store, l.cfg)
}

// Ingest is a capture path, so it is gated by private mode: when the
// gate is closed it is a polite no-op, ingesting nothing and reporting
// no error.
func (l *Local) Ingest(ctx context.Context, candidates []ingest.Candidate) (int, error) {
	if !l.gate.Enabled() {
		slog.Info("crystal: private mode is on, skipping ingest", "candidates", len(candidates))
		return 0, nil
	}
	return l.pipe.Ingest(ctx, candidates)
}

func (l *Local) ChunkText(text string, targetTokens, overlapTokens int) []string {
	return chunker.Chunk(text, targetTokens, overlapTokens)
}
