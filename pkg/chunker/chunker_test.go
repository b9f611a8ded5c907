package chunker

import (
	"strings"
	"testing"
)

func TestChunkEmptyText(t *testing.T) {
	if got := Chunk("", DefaultTargetTokens, DefaultOverlapTokens); got != nil {
		t.Fatalf("expected nil for empty text, got %v", got)
	}
}

func TestChunkShortTextIsSingleChunk(t *testing.T) {
	text := "short document that fits in one window"
	chunks := Chunk(text, DefaultTargetTokens, DefaultOverlapTokens)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != text {
		t.Fatalf("expected chunk to equal input, got %q", chunks[0])
	}
}

func TestChunkSnapsToBlankLine(t *testing.T) {
	para1 := strings.Repeat("alpha ", 200) // 1200 chars, so the blank line falls inside the first 1600-char window
	para2 := strings.Repeat("beta ", 300)
	text := para1 + "\n\n" + para2

	chunks := Chunk(text, 400, 80)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "alpha") {
		t.Fatalf("expected first chunk to end at the blank-line boundary, got suffix %q", chunks[0][len(chunks[0])-20:])
	}
}

func TestChunkOverlapAdvancesForward(t *testing.T) {
	text := strings.Repeat("word ", 2000)
	chunks := Chunk(text, 400, 80)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long text, got %d", len(chunks))
	}
}

func TestChunkNoInfiniteLoop(t *testing.T) {
	// Overlap larger than the window forces the forward-progress guarantee.
	text := strings.Repeat("x", 50000)
	chunks := Chunk(text, 10, 100)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
}

func TestChunkSkipsEmptyPieces(t *testing.T) {
	text := "\n\n\n\n   \n\n"
	chunks := Chunk(text, DefaultTargetTokens, DefaultOverlapTokens)
	if len(chunks) != 0 {
		t.Fatalf("expected all-whitespace text to yield no chunks, got %v", chunks)
	}
}

func TestChunkLastChunkReachesEndOfText(t *testing.T) {
	text := strings.Repeat("sentence one. sentence two. ", 500)
	chunks := Chunk(text, 400, 80)

	var rebuilt strings.Builder
	for _, c := range chunks {
		rebuilt.WriteString(c)
	}
	// Overlap means content repeats across chunks. This checks that the
	// windows run all the way out: the last chunk ends where the
	// source text ends.
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(strings.TrimSpace(text), strings.TrimSpace(last)) {
		t.Fatalf("last chunk does not reach the end of the source text")
	}
}
