package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wipcomputer/memory-crystal/pkg/crypto"
	"github.com/wipcomputer/memory-crystal/pkg/embedding"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "crystal.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := New(s, embedding.NewFake(8, embedding.ProviderOpenAI), func() time.Time { return fixed })
	return p, s
}

func TestIngestDedupExact(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPipeline(t)

	candidates := []Candidate{
		{Text: "the quick brown fox", Role: store.RoleUser, SourceType: store.SourceTypeManual, SourceID: "t1", AgentID: "a1"},
		{Text: "the quick brown fox", Role: store.RoleUser, SourceType: store.SourceTypeManual, SourceID: "t1", AgentID: "a1"},
		{Text: "a distinct second sentence", Role: store.RoleUser, SourceType: store.SourceTypeManual, SourceID: "t1", AgentID: "a1"},
	}

	n, err := p.Ingest(ctx, candidates)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 inserted (dup collapsed), got %d", n)
	}

	count, err := s.CountChunks(ctx)
	if err != nil {
		t.Fatalf("CountChunks failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows in store, got %d", count)
	}

	// Re-ingesting the same texts again should insert nothing new.
	n2, err := p.Ingest(ctx, candidates)
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}
	if n2 != 0 {
		t.Fatalf("expected 0 inserted on repeat, got %d", n2)
	}
}

func TestIngestEmptyBatch(t *testing.T) {
	p, _ := newTestPipeline(t)
	n, err := p.Ingest(context.Background(), nil)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 for empty batch, got %d", n)
	}
}

func TestIngestDimensionLock(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "crystal.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	p8 := New(s, embedding.NewFake(8, embedding.ProviderOpenAI), nil)
	if _, err := p8.Ingest(ctx, []Candidate{{Text: "seed the dimension", Role: store.RoleUser, SourceType: store.SourceTypeManual, SourceID: "t", AgentID: "a"}}); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	p16 := New(s, embedding.NewFake(16, embedding.ProviderOpenAI), nil)
	_, err = p16.Ingest(ctx, []Candidate{{Text: "a different-dimension text", Role: store.RoleUser, SourceType: store.SourceTypeManual, SourceID: "t", AgentID: "a"}})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestRememberAndForget(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPipeline(t)

	m, err := p.Remember(ctx, "the user prefers dark mode", store.CategoryPreference)
	if err != nil {
		t.Fatalf("Remember failed: %v", err)
	}
	if m.Status != store.StatusActive {
		t.Fatalf("expected active status, got %s", m.Status)
	}
	if len(m.SourceChunkIDs) != 1 {
		t.Fatalf("expected 1 source chunk id, got %d", len(m.SourceChunkIDs))
	}

	stored, err := s.GetMemory(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}
	if stored.Text != m.Text {
		t.Fatalf("expected round-tripped text %q, got %q", m.Text, stored.Text)
	}

	mirror, err := s.GetChunkByHash(ctx, crypto.Hash([]byte(m.Text)))
	if err != nil {
		t.Fatalf("expected mirror chunk to exist: %v", err)
	}
	if mirror.SourceID != "memory:"+m.ID {
		t.Fatalf("expected mirror source id memory:%s, got %s", m.ID, mirror.SourceID)
	}

	changed, err := p.Forget(ctx, m.ID)
	if err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if !changed {
		t.Fatal("expected Forget to report a change")
	}

	after, err := s.GetMemory(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMemory after forget failed: %v", err)
	}
	if after.Status != store.StatusDeprecated {
		t.Fatalf("expected deprecated status, got %s", after.Status)
	}

	// Forgetting again changes nothing.
	changed2, err := p.Forget(ctx, m.ID)
	if err != nil {
		t.Fatalf("second Forget failed: %v", err)
	}
	if changed2 {
		t.Fatal("expected second Forget to report no change")
	}
}

func TestForgetUnknownID(t *testing.T) {
	p, _ := newTestPipeline(t)
	changed, err := p.Forget(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if changed {
		t.Fatal("expected no change for unknown id")
	}
}
