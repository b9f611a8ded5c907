package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wipcomputer/memory-crystal/pkg/chunker"
	"github.com/wipcomputer/memory-crystal/pkg/ingest"
	"github.com/wipcomputer/memory-crystal/pkg/privatemode"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

// largeMessageTokens is the approximate token count above which a
// single message is re-chunked instead of ingested as one chunk.
const largeMessageTokens = 2000

// Message is one line of a conversation payload.
type Message struct {
	Text      string `json:"text"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"sessionId"`
}

// ConversationPayload is the decrypted body of a conversations-channel
// drop.
type ConversationPayload struct {
	AgentID   string    `json:"agent_id"`
	DroppedAt time.Time `json:"dropped_at"`
	Messages  []Message `json:"messages"`
}

// Poller runs the home-node side of the conversations channel: list,
// fetch, decrypt, rehydrate into chunks, ingest, confirm.
type Poller struct {
	client *Client
	pipe   *ingest.Pipeline
	gate   *privatemode.Gate
}

// NewPoller constructs a Poller over client and pipe. gate is
// consulted before every ingest, since draining the conversations
// channel is a capture path like any other.
func NewPoller(client *Client, pipe *ingest.Pipeline, gate *privatemode.Gate) *Poller {
	return &Poller{client: client, pipe: pipe, gate: gate}
}

// PollOnce processes every blob currently waiting on the conversations
// channel. A blob that fails HMAC/AEAD verification is deleted and
// skipped rather than left to block the channel forever; every
// successfully ingested blob is deleted afterward.
func (p *Poller) PollOnce(ctx context.Context) error {
	blobs, err := p.client.List(ctx, ChannelConversations)
	if err != nil {
		return fmt.Errorf("relay: poll: listing: %w", err)
	}

	for _, blob := range blobs {
		if err := p.processBlob(ctx, blob.ID); err != nil {
			slog.Warn("relay: poll: failed to process blob", "id", blob.ID, "error", err)
		}
	}
	return nil
}

func (p *Poller) processBlob(ctx context.Context, id string) error {
	if !p.gate.Enabled() {
		slog.Info("relay: private mode is on, leaving blob for a later poll", "id", id)
		return nil
	}

	raw, err := p.client.Fetch(ctx, ChannelConversations, id)
	if err != nil {
		return fmt.Errorf("fetching blob %s: %w", id, err)
	}

	plaintext, err := p.client.Open(raw)
	if err != nil {
		slog.Warn("relay: poll: dropping corrupt blob", "channel", ChannelConversations, "id", id, "error", err)
		p.client.Confirm(ctx, ChannelConversations, id)
		return nil
	}

	payload, err := parseConversationPayload(plaintext)
	if err != nil {
		slog.Warn("relay: poll: dropping unparseable blob", "channel", ChannelConversations, "id", id, "error", err)
		p.client.Confirm(ctx, ChannelConversations, id)
		return nil
	}

	candidates := rehydrate(payload)
	if _, err := p.pipe.Ingest(ctx, candidates); err != nil {
		return fmt.Errorf("ingesting blob %s: %w", id, err)
	}

	p.client.Confirm(ctx, ChannelConversations, id)
	return nil
}

func rehydrate(payload ConversationPayload) []ingest.Candidate {
	var candidates []ingest.Candidate
	for _, m := range payload.Messages {
		if len(m.Text) == 0 {
			continue
		}
		if chunker.EstimateTokens(m.Text) <= largeMessageTokens {
			candidates = append(candidates, ingest.Candidate{
				Text:       m.Text,
				Role:       normalizeRole(m.Role),
				SourceType: store.SourceTypeConversation,
				SourceID:   m.SessionID,
				AgentID:    payload.AgentID,
			})
			continue
		}
		for _, chunkText := range chunker.Chunk(m.Text, 400, 80) {
			candidates = append(candidates, ingest.Candidate{
				Text:       chunkText,
				Role:       normalizeRole(m.Role),
				SourceType: store.SourceTypeConversation,
				SourceID:   m.SessionID,
				AgentID:    payload.AgentID,
			})
		}
	}
	return candidates
}

func normalizeRole(role string) string {
	switch role {
	case store.RoleUser, store.RoleAssistant, store.RoleSystem:
		return role
	default:
		return store.RoleUser
	}
}

var errEmptyPayload = errors.New("relay: empty conversation payload")

func parseConversationPayload(plaintext []byte) (ConversationPayload, error) {
	var payload ConversationPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return ConversationPayload{}, err
	}
	if payload.AgentID == "" {
		return ConversationPayload{}, errEmptyPayload
	}
	return payload, nil
}
