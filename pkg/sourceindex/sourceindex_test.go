package sourceindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wipcomputer/memory-crystal/pkg/embedding"
	"github.com/wipcomputer/memory-crystal/pkg/ingest"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

func newTestIndexer(t *testing.T) (*Indexer, *store.Store, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "crystal.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	root := t.TempDir()
	pipe := ingest.New(s, embedding.NewFake(8, embedding.ProviderOpenAI), nil)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	idx := New(s, pipe, func() time.Time { return fixed })
	return idx, s, root
}

func setupCollection(t *testing.T, s *store.Store, root string) {
	t.Helper()
	ctx := context.Background()
	err := s.PutCollection(ctx, store.Collection{
		Name:         "docs",
		RootPath:     root,
		IncludeGlobs: []string{"**/*.md", "**/*.txt"},
		IgnoreGlobs:  []string{"**/node_modules/**", "**/*.lock"},
	})
	if err != nil {
		t.Fatalf("PutCollection failed: %v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestSyncDetectsAddedFiles(t *testing.T) {
	idx, s, root := newTestIndexer(t)
	setupCollection(t, s, root)

	writeFile(t, filepath.Join(root, "readme.md"), "# Title\n\nSome content about lighthouses.")
	writeFile(t, filepath.Join(root, "notes.txt"), "Plain notes about the ocean.")
	writeFile(t, filepath.Join(root, "ignored.bin"), "should not be picked up")

	result, err := idx.Sync(context.Background(), "docs", false)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if result.Added != 2 {
		t.Fatalf("expected 2 added files, got %d", result.Added)
	}
	if result.Updated != 0 || result.Removed != 0 {
		t.Fatalf("expected no updates/removals on first sync, got %+v", result)
	}

	files, err := s.ListSourceFiles(context.Background(), "docs")
	if err != nil {
		t.Fatalf("ListSourceFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 source file rows, got %d", len(files))
	}
}

func TestSyncDetectsUpdatedAndUnchangedFiles(t *testing.T) {
	ctx := context.Background()
	idx, s, root := newTestIndexer(t)
	setupCollection(t, s, root)

	path := filepath.Join(root, "readme.md")
	writeFile(t, path, "# Title\n\nOriginal content.")
	if _, err := idx.Sync(ctx, "docs", false); err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}

	// Unchanged: a second sync with no disk changes reports nothing.
	result, err := idx.Sync(ctx, "docs", false)
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if result.Added != 0 || result.Updated != 0 || result.Removed != 0 {
		t.Fatalf("expected a no-op sync, got %+v", result)
	}

	writeFile(t, path, "# Title\n\nChanged content that differs from before.")
	result, err = idx.Sync(ctx, "docs", false)
	if err != nil {
		t.Fatalf("third Sync failed: %v", err)
	}
	if result.Updated != 1 {
		t.Fatalf("expected 1 updated file, got %+v", result)
	}
}

func TestSyncDetectsRemovedFiles(t *testing.T) {
	ctx := context.Background()
	idx, s, root := newTestIndexer(t)
	setupCollection(t, s, root)

	path := filepath.Join(root, "readme.md")
	writeFile(t, path, "# Title\n\nContent to be removed later.")
	if _, err := idx.Sync(ctx, "docs", false); err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	result, err := idx.Sync(ctx, "docs", false)
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if result.Removed != 1 {
		t.Fatalf("expected 1 removed file, got %+v", result)
	}

	files, err := s.ListSourceFiles(ctx, "docs")
	if err != nil {
		t.Fatalf("ListSourceFiles failed: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected 0 remaining source file rows, got %d", len(files))
	}

	// Chunks already ingested from the removed file are not deleted.
	count, err := s.CountChunks(ctx)
	if err != nil {
		t.Fatalf("CountChunks failed: %v", err)
	}
	if count == 0 {
		t.Fatal("expected ingested chunks to survive file removal")
	}
}

func TestSyncDryRunDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	idx, s, root := newTestIndexer(t)
	setupCollection(t, s, root)

	writeFile(t, filepath.Join(root, "readme.md"), "# Title\n\nSome content.")

	result, err := idx.Sync(ctx, "docs", true)
	if err != nil {
		t.Fatalf("dry-run Sync failed: %v", err)
	}
	if result.Added != 1 {
		t.Fatalf("expected 1 added file counted, got %+v", result)
	}

	count, err := s.CountChunks(ctx)
	if err != nil {
		t.Fatalf("CountChunks failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected dry-run to write nothing, got %d chunks", count)
	}

	files, err := s.ListSourceFiles(ctx, "docs")
	if err != nil {
		t.Fatalf("ListSourceFiles failed: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected dry-run to record no source file rows, got %d", len(files))
	}
}

func TestCompilePatternsRecognizesForms(t *testing.T) {
	p := compilePatterns(
		[]string{"**/*.md", "**/AGENTS.md"},
		[]string{"**/node_modules/**", "**/*.lock", "**/README.md"},
	)

	if !p.allowExt[".md"] {
		t.Fatal("expected .md to be an allowed extension")
	}
	if !p.allowName["AGENTS.md"] {
		t.Fatal("expected AGENTS.md to be an allowed exact name")
	}
	if !p.ignoreDir["node_modules"] {
		t.Fatal("expected node_modules to be an ignored directory")
	}
	if !p.ignoreExt[".lock"] {
		t.Fatal("expected .lock to be an ignored extension")
	}
	if !p.ignoreName["README.md"] {
		t.Fatal("expected README.md to be an ignored exact name")
	}
}
