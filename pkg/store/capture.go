package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetCaptureState returns the capture progress marker for
// (agentID, sourceID), or a zero-value CaptureState if none exists yet
// (a source is captured from scratch the first time it is seen).
func (s *Store) GetCaptureState(ctx context.Context, agentID, sourceID string) (CaptureState, error) {
	var c CaptureState
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, source_id, last_message_count, cycle_count, COALESCE(last_captured_at, '')
		FROM capture_state WHERE agent_id = ? AND source_id = ?
	`, agentID, sourceID).Scan(&c.AgentID, &c.SourceID, &c.LastMessageCount, &c.CycleCount, &c.LastCapturedAt)
	if err == sql.ErrNoRows {
		return CaptureState{AgentID: agentID, SourceID: sourceID}, nil
	}
	if err != nil {
		return CaptureState{}, fmt.Errorf("store: get capture state: %w", err)
	}
	return c, nil
}

// ListCaptureStates returns every capture progress marker, for status
// aggregation across all captured sessions.
func (s *Store) ListCaptureStates(ctx context.Context) ([]CaptureState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, source_id, last_message_count, cycle_count, COALESCE(last_captured_at, '')
		FROM capture_state
	`)
	if err != nil {
		return nil, fmt.Errorf("store: listing capture states: %w", err)
	}
	defer rows.Close()

	var out []CaptureState
	for rows.Next() {
		var c CaptureState
		if err := rows.Scan(&c.AgentID, &c.SourceID, &c.LastMessageCount, &c.CycleCount, &c.LastCapturedAt); err != nil {
			return nil, fmt.Errorf("store: scanning capture state: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating capture states: %w", err)
	}
	return out, nil
}

// PutCaptureState upserts the capture progress marker for
// (agentID, sourceID).
func (s *Store) PutCaptureState(ctx context.Context, c CaptureState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO capture_state (agent_id, source_id, last_message_count, cycle_count, last_captured_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, source_id) DO UPDATE SET
			last_message_count = excluded.last_message_count,
			cycle_count = excluded.cycle_count,
			last_captured_at = excluded.last_captured_at
	`, c.AgentID, c.SourceID, c.LastMessageCount, c.CycleCount, c.LastCapturedAt)
	if err != nil {
		return fmt.Errorf("store: put capture state: %w", err)
	}
	return nil
}
