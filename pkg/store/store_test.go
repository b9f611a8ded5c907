package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "crystal.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleChunk(text string) ChunkInput {
	return ChunkInput{
		Text:          text,
		Role:          RoleUser,
		SourceType:    SourceTypeManual,
		SourceID:      "test",
		AgentID:       "agent-1",
		TokenEstimate: len(text) / 4,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
}

func vec(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)*0.01
	}
	return v
}

func TestPutChunksRowCorrespondence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rows := []ChunkInput{sampleChunk("first chunk"), sampleChunk("second chunk")}
	vectors := [][]float32{vec(8, 0.1), vec(8, 0.2)}

	ids, err := s.PutChunks(ctx, rows, vectors)
	if err != nil {
		t.Fatalf("PutChunks failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}

	count, err := s.CountChunks(ctx)
	if err != nil {
		t.Fatalf("CountChunks failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 chunks, got %d", count)
	}

	hits, err := s.VectorQuery(ctx, vec(8, 0.1), 10)
	if err != nil {
		t.Fatalf("VectorQuery failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 vector hits, got %d", len(hits))
	}

	ftsHits, err := s.FTSQuery(ctx, BuildFTSExpression("first"), 10, nil)
	if err != nil {
		t.Fatalf("FTSQuery failed: %v", err)
	}
	if len(ftsHits) != 1 || ftsHits[0].ChunkID != ids[0] {
		t.Fatalf("expected FTS to find only the first chunk, got %+v", ftsHits)
	}
}

func TestPutChunksRejectsDuplicateHash(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	row := sampleChunk("duplicate me")
	if _, err := s.PutChunks(ctx, []ChunkInput{row}, [][]float32{vec(4, 0.1)}); err != nil {
		t.Fatalf("first PutChunks failed: %v", err)
	}

	_, err := s.PutChunks(ctx, []ChunkInput{row}, [][]float32{vec(4, 0.1)})
	if err == nil {
		t.Fatal("expected duplicate hash to be rejected")
	}
}

func TestPutChunksEnforcesDimensionLock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.PutChunks(ctx, []ChunkInput{sampleChunk("a")}, [][]float32{vec(4, 0.1)}); err != nil {
		t.Fatalf("first PutChunks failed: %v", err)
	}

	_, err := s.PutChunks(ctx, []ChunkInput{sampleChunk("b")}, [][]float32{vec(8, 0.1)})
	if err == nil {
		t.Fatal("expected dimension mismatch to be rejected")
	}
}

func TestGetChunkByHashNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.GetChunkByHash(ctx, "does-not-exist"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC().Format(time.RFC3339)
	m := Memory{
		ID:             "mem-1",
		Text:           "user prefers dark mode",
		Category:       CategoryPreference,
		Confidence:     0.9,
		SourceChunkIDs: []int64{1, 2},
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.InsertMemory(ctx, m); err != nil {
		t.Fatalf("InsertMemory failed: %v", err)
	}

	got, err := s.GetMemory(ctx, "mem-1")
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}
	if got.Status != StatusActive || len(got.SourceChunkIDs) != 2 {
		t.Fatalf("unexpected memory row: %+v", got)
	}

	if err := s.UpdateMemoryStatus(ctx, "mem-1", StatusDeprecated, now); err != nil {
		t.Fatalf("UpdateMemoryStatus failed: %v", err)
	}
	got, err = s.GetMemory(ctx, "mem-1")
	if err != nil {
		t.Fatalf("GetMemory after deprecation failed: %v", err)
	}
	if got.Status != StatusDeprecated {
		t.Fatalf("expected status %q, got %q", StatusDeprecated, got.Status)
	}
}

func TestCollectionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := Collection{
		Name:         "notes",
		RootPath:     "/home/user/notes",
		IncludeGlobs: []string{"**/*.md"},
		IgnoreGlobs:  []string{"**/node_modules/**"},
	}
	if err := s.PutCollection(ctx, c); err != nil {
		t.Fatalf("PutCollection failed: %v", err)
	}

	got, err := s.GetCollection(ctx, "notes")
	if err != nil {
		t.Fatalf("GetCollection failed: %v", err)
	}
	if len(got.IncludeGlobs) != 1 || got.IncludeGlobs[0] != "**/*.md" {
		t.Fatalf("unexpected include globs: %+v", got.IncludeGlobs)
	}
}

func TestCaptureStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	state, err := s.GetCaptureState(ctx, "agent-1", "session-1")
	if err != nil {
		t.Fatalf("GetCaptureState failed: %v", err)
	}
	if state.LastMessageCount != 0 {
		t.Fatalf("expected zero-value state, got %+v", state)
	}

	state.LastMessageCount = 42
	state.CycleCount = 1
	state.LastCapturedAt = time.Now().UTC().Format(time.RFC3339)
	if err := s.PutCaptureState(ctx, state); err != nil {
		t.Fatalf("PutCaptureState failed: %v", err)
	}

	got, err := s.GetCaptureState(ctx, "agent-1", "session-1")
	if err != nil {
		t.Fatalf("GetCaptureState after put failed: %v", err)
	}
	if got.LastMessageCount != 42 {
		t.Fatalf("expected LastMessageCount 42, got %d", got.LastMessageCount)
	}
}
