// Package sourceindex walks a collection's root directory, detects
// added/updated/removed files by content hash, and re-indexes changed
// files through the chunker and ingestion pipeline.
package sourceindex

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wipcomputer/memory-crystal/pkg/chunker"
	"github.com/wipcomputer/memory-crystal/pkg/crypto"
	"github.com/wipcomputer/memory-crystal/pkg/ingest"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

// maxFileSize is the size above which a file is treated as
// data/generated content and skipped outright.
const maxFileSize = 500 * 1024

// batchSize is how many changed files are ingested per transaction
// batch during a sync pass.
const batchSize = 20

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Added   int
	Updated int
	Removed int
}

// Indexer wires a store and an ingestion pipeline together for
// collection syncs.
type Indexer struct {
	store *store.Store
	pipe  *ingest.Pipeline
	now   func() time.Time
}

// New constructs an Indexer.
func New(s *store.Store, pipe *ingest.Pipeline, now func() time.Time) *Indexer {
	if now == nil {
		now = time.Now
	}
	return &Indexer{store: s, pipe: pipe, now: now}
}

type fileChange struct {
	relPath string
	absPath string
	hash    string
	size    int64
}

// Sync walks name's collection root and reconciles the store's
// source_files rows against what is on disk. In dry-run mode it only
// counts adds/updates/removes without embedding or writing anything.
func (idx *Indexer) Sync(ctx context.Context, collectionName string, dryRun bool) (SyncResult, error) {
	coll, err := idx.store.GetCollection(ctx, collectionName)
	if err != nil {
		return SyncResult{}, fmt.Errorf("sourceindex: sync: %w", err)
	}

	patterns := compilePatterns(coll.IncludeGlobs, coll.IgnoreGlobs)

	seen := map[string]bool{}
	var added, updated []fileChange

	walkErr := filepath.WalkDir(coll.RootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == coll.RootPath {
			return nil
		}

		basename := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(basename, ".") || patterns.ignoredDir(basename) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(basename)
		if !patterns.allowed(basename, ext) || patterns.ignoredFile(basename, ext) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxFileSize {
			return nil
		}

		relPath, err := filepath.Rel(coll.RootPath, path)
		if err != nil {
			return err
		}
		seen[relPath] = true

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", relPath, err)
		}
		hash := crypto.Hash(content)

		existing, err := idx.store.GetSourceFile(ctx, collectionName, relPath)
		switch {
		case err == store.ErrNotFound:
			added = append(added, fileChange{relPath: relPath, absPath: path, hash: hash, size: info.Size()})
		case err != nil:
			return fmt.Errorf("looking up %s: %w", relPath, err)
		case existing.Hash != hash:
			updated = append(updated, fileChange{relPath: relPath, absPath: path, hash: hash, size: info.Size()})
		}
		return nil
	})
	if walkErr != nil {
		return SyncResult{}, fmt.Errorf("sourceindex: sync: walking %s: %w", coll.RootPath, walkErr)
	}

	existingFiles, err := idx.store.ListSourceFiles(ctx, collectionName)
	if err != nil {
		return SyncResult{}, fmt.Errorf("sourceindex: sync: listing existing files: %w", err)
	}
	var removed []store.SourceFile
	for _, f := range existingFiles {
		if !seen[f.RelPath] {
			removed = append(removed, f)
		}
	}

	result := SyncResult{Added: len(added), Updated: len(updated), Removed: len(removed)}
	if dryRun {
		return result, nil
	}

	changed := append(append([]fileChange{}, added...), updated...)
	if err := idx.reindex(ctx, collectionName, changed); err != nil {
		return result, err
	}
	for _, f := range removed {
		if err := idx.store.DeleteSourceFile(ctx, collectionName, f.RelPath); err != nil {
			return result, fmt.Errorf("sourceindex: sync: deleting %s: %w", f.RelPath, err)
		}
	}

	fileCount, chunkCount, err := idx.collectionCounters(ctx, collectionName)
	if err != nil {
		return result, err
	}
	if err := idx.store.UpdateCollectionCounters(ctx, collectionName, fileCount, chunkCount, idx.now().UTC().Format(time.RFC3339)); err != nil {
		return result, fmt.Errorf("sourceindex: sync: updating counters: %w", err)
	}

	return result, nil
}

func (idx *Indexer) reindex(ctx context.Context, collection string, changes []fileChange) error {
	for start := 0; start < len(changes); start += batchSize {
		end := start + batchSize
		if end > len(changes) {
			end = len(changes)
		}
		batch := changes[start:end]

		var candidates []ingest.Candidate
		for _, c := range batch {
			content, err := os.ReadFile(c.absPath)
			if err != nil {
				return fmt.Errorf("sourceindex: reindex: reading %s: %w", c.relPath, err)
			}
			body := fmt.Sprintf("File: %s\n\n%s", c.relPath, string(content))

			for _, chunkText := range chunker.Chunk(body, 400, 80) {
				candidates = append(candidates, ingest.Candidate{
					Text:       chunkText,
					Role:       store.RoleSystem,
					SourceType: store.SourceTypeFile,
					SourceID:   fmt.Sprintf("file:%s:%s", collection, c.relPath),
					AgentID:    "system",
				})
			}
		}

		if _, err := idx.pipe.Ingest(ctx, candidates); err != nil {
			return fmt.Errorf("sourceindex: reindex: %w", err)
		}

		for _, c := range batch {
			chunkCount := 0
			for _, cand := range candidates {
				if cand.SourceID == fmt.Sprintf("file:%s:%s", collection, c.relPath) {
					chunkCount++
				}
			}
			f := store.SourceFile{
				Collection:    collection,
				RelPath:       c.relPath,
				Hash:          c.hash,
				Size:          c.size,
				ChunkCount:    chunkCount,
				LastIndexedAt: idx.now().UTC().Format(time.RFC3339),
			}
			if err := idx.store.PutSourceFile(ctx, f); err != nil {
				return fmt.Errorf("sourceindex: reindex: recording %s: %w", c.relPath, err)
			}
		}
	}
	return nil
}

func (idx *Indexer) collectionCounters(ctx context.Context, collection string) (fileCount, chunkCount int, err error) {
	files, err := idx.store.ListSourceFiles(ctx, collection)
	if err != nil {
		return 0, 0, fmt.Errorf("sourceindex: collection counters: %w", err)
	}
	for _, f := range files {
		chunkCount += f.ChunkCount
	}
	return len(files), chunkCount, nil
}
