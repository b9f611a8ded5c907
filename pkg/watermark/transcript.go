// Package watermark tracks how much of a transcript file or a
// message-count-based capture source has already been processed, so a
// repeated capture pass only sees new content.
package watermark

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// TranscriptMark is one transcript file's progress marker.
type TranscriptMark struct {
	Offset        int64  `json:"offset"`
	LastTimestamp string `json:"last_timestamp"`
}

// TranscriptTracker persists one TranscriptMark per absolute transcript
// path in a single JSON state file.
type TranscriptTracker struct {
	statePath string
	mu        sync.Mutex
	marks     map[string]TranscriptMark
}

// NewTranscriptTracker loads the tracker state at statePath, treating
// an absent or corrupt file as an empty tracker.
func NewTranscriptTracker(statePath string) *TranscriptTracker {
	t := &TranscriptTracker{statePath: statePath, marks: map[string]TranscriptMark{}}
	data, err := os.ReadFile(statePath)
	if err != nil {
		return t
	}
	var marks map[string]TranscriptMark
	if err := json.Unmarshal(data, &marks); err != nil {
		return t
	}
	t.marks = marks
	return t
}

// ReadNew reads whatever complete lines have been appended to
// transcriptPath since the last call. On first sight of a path the
// offset is seeded at the file's current size (history is skipped)
// and no lines are returned. The offset always advances to the file's
// size seen at the start of the call, even if no complete line
// qualified, so a trailing partial line is not revisited.
func (t *TranscriptTracker) ReadNew(transcriptPath string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(transcriptPath)
	if err != nil {
		return nil, fmt.Errorf("watermark: opening transcript: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("watermark: stat transcript: %w", err)
	}
	size := info.Size()

	mark, seen := t.marks[transcriptPath]
	if !seen {
		t.marks[transcriptPath] = TranscriptMark{Offset: size}
		return nil, t.save()
	}
	if mark.Offset >= size {
		return nil, nil
	}

	if _, err := f.Seek(mark.Offset, 0); err != nil {
		return nil, fmt.Errorf("watermark: seeking transcript: %w", err)
	}

	tail, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("watermark: reading transcript tail: %w", err)
	}

	// Only complete (newline-terminated) lines are parsed; a trailing
	// fragment from a writer still mid-append is dropped for this
	// cycle. The offset still advances to size (see below), so that
	// fragment is not revisited once the writer finishes it.
	rawLines := strings.Split(string(tail), "\n")
	if !strings.HasSuffix(string(tail), "\n") && len(rawLines) > 0 {
		rawLines = rawLines[:len(rawLines)-1]
	}

	var lines []string
	for _, raw := range rawLines {
		line := strings.TrimSpace(raw)
		if line != "" {
			lines = append(lines, line)
		}
	}

	t.marks[transcriptPath] = TranscriptMark{Offset: size, LastTimestamp: mark.LastTimestamp}
	if err := t.save(); err != nil {
		return nil, err
	}
	return lines, nil
}

// SetLastTimestamp updates the last-seen message timestamp recorded
// for transcriptPath, without touching its byte offset.
func (t *TranscriptTracker) SetLastTimestamp(transcriptPath, timestamp string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	mark := t.marks[transcriptPath]
	mark.LastTimestamp = timestamp
	t.marks[transcriptPath] = mark
	return t.save()
}

func (t *TranscriptTracker) save() error {
	data, err := json.Marshal(t.marks)
	if err != nil {
		return fmt.Errorf("watermark: marshaling state: %w", err)
	}
	if err := os.WriteFile(t.statePath, data, 0o600); err != nil {
		return fmt.Errorf("watermark: writing state: %w", err)
	}
	return nil
}
