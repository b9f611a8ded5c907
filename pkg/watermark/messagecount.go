package watermark

import (
	"context"
	"fmt"
	"time"

	"github.com/wipcomputer/memory-crystal/pkg/store"
)

// MinAggregateTokens is the default minimum aggregate estimated token
// count a batch of newly observed messages must clear before a
// message-count-based capture is worth persisting; smaller batches are
// suppressed as trivial.
const MinAggregateTokens = 500

// MessageCountTracker tracks, per (agent, session), how many messages
// of a hook-based capture source have already been processed, using
// the store's capture_state table.
type MessageCountTracker struct {
	store *store.Store
}

// NewMessageCountTracker constructs a tracker over s.
func NewMessageCountTracker(s *store.Store) *MessageCountTracker {
	return &MessageCountTracker{store: s}
}

// StartIndex returns the index a caller should resume processing
// messages from for (agentID, sessionID), given the currently
// observed total message count. If the observed count is smaller than
// the last recorded count, the session is treated as having been
// compacted and processing restarts from zero.
func (m *MessageCountTracker) StartIndex(ctx context.Context, agentID, sessionID string, observedCount int) (int, error) {
	state, err := m.store.GetCaptureState(ctx, agentID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("watermark: reading capture state: %w", err)
	}
	if observedCount < state.LastMessageCount {
		return 0, nil
	}
	return state.LastMessageCount, nil
}

// Advance records that newCount messages of (agentID, sessionID) have
// now been processed, gated by MinAggregateTokens: a batch whose
// estimated token total falls below the threshold is not persisted,
// so a burst of trivial one-word messages does not repeatedly trigger
// downstream ingestion work.
func (m *MessageCountTracker) Advance(ctx context.Context, agentID, sessionID string, newCount, aggregateTokens int, now time.Time) error {
	if aggregateTokens < MinAggregateTokens {
		return nil
	}

	state, err := m.store.GetCaptureState(ctx, agentID, sessionID)
	if err != nil {
		return fmt.Errorf("watermark: reading capture state: %w", err)
	}

	state.AgentID = agentID
	state.SourceID = sessionID
	state.LastMessageCount = newCount
	state.CycleCount++
	state.LastCapturedAt = now.UTC().Format(time.RFC3339)

	if err := m.store.PutCaptureState(ctx, state); err != nil {
		return fmt.Errorf("watermark: writing capture state: %w", err)
	}
	return nil
}
