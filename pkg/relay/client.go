// Package relay implements the client side of the dead-drop protocol:
// sealing conversation and mirror payloads under the master key,
// dropping them to an untrusted relay, and pulling/decrypting/ingesting
// what arrives on the home node.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wipcomputer/memory-crystal/pkg/crypto"
	"github.com/wipcomputer/memory-crystal/pkg/retry"
)

// Channel names, matching the dead drop's fixed valid set.
const (
	ChannelConversations = "conversations"
	ChannelMirror        = "mirror"
)

// ErrUnknownChannel is returned when a caller names a channel outside
// the dead drop's fixed set, before any request reaches the network.
var ErrUnknownChannel = errors.New("relay: unknown channel")

func validChannel(channel string) bool {
	return channel == ChannelConversations || channel == ChannelMirror
}

// BlobInfo mirrors the dead drop's per-object listing entry.
type BlobInfo struct {
	ID        string    `json:"id"`
	Size      int64     `json:"size"`
	DroppedAt time.Time `json:"dropped_at"`
	AgentID   string    `json:"agent_id"`
}

type listResponse struct {
	Count int        `json:"count"`
	Blobs []BlobInfo `json:"blobs"`
}

// Client talks to one dead-drop server over HTTP, sealing outgoing
// payloads and verifying incoming ones under a shared master key.
type Client struct {
	baseURL    string
	token      string
	masterKey  []byte
	httpClient *http.Client
}

// New constructs a relay Client against baseURL, authenticating with
// bearer token and sealing/opening payloads under masterKey.
func New(baseURL, token string, masterKey []byte) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		masterKey:  masterKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Drop seals payload under the master key and POSTs it to channel,
// retrying on non-2xx responses up to 4 times with exponential backoff
// capped at 30s.
func (c *Client) Drop(ctx context.Context, channel string, payload []byte) error {
	sealed, err := crypto.Seal(payload, c.masterKey)
	if err != nil {
		return fmt.Errorf("relay: drop: sealing payload: %w", err)
	}
	body, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("relay: drop: marshaling envelope: %w", err)
	}
	return c.DropRaw(ctx, channel, body)
}

// DropRaw POSTs an already-prepared body to channel without sealing it
// itself. Used by the mirror protocol, whose drop body is a JSON object
// combining two independently sealed envelopes rather than a single
// sealed payload (see pkg/mirror).
func (c *Client) DropRaw(ctx context.Context, channel string, body []byte) error {
	if !validChannel(channel) {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	return retry.WithBackoff(ctx, retry.MaxAttempts, retry.BackoffCap, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/drop/"+channel, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("relay: drop: building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("relay: drop: request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("relay: drop: unexpected status %d", resp.StatusCode)
		}
		return nil
	})
}

// List enumerates blobs currently waiting on channel.
func (c *Client) List(ctx context.Context, channel string) ([]BlobInfo, error) {
	if !validChannel(channel) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pickup/"+channel, nil)
	if err != nil {
		return nil, fmt.Errorf("relay: list: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay: list: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay: list: unexpected status %d", resp.StatusCode)
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("relay: list: decoding response: %w", err)
	}
	return out.Blobs, nil
}

// Fetch returns the raw sealed bytes of one blob.
func (c *Client) Fetch(ctx context.Context, channel, id string) ([]byte, error) {
	if !validChannel(channel) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pickup/"+channel+"/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("relay: fetch: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay: fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay: fetch: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("relay: fetch: reading body: %w", err)
	}
	return data, nil
}

// Open unmarshals sealedJSON as a crypto.Payload and decrypts it under
// the client's master key, returning ErrIntegrity-wrapping errors on
// HMAC or AEAD failure (see pkg/crypto).
func (c *Client) Open(sealedJSON []byte) ([]byte, error) {
	var payload crypto.Payload
	if err := json.Unmarshal(sealedJSON, &payload); err != nil {
		return nil, fmt.Errorf("relay: open: decoding envelope: %w", err)
	}
	return crypto.Open(payload, c.masterKey)
}

// Confirm deletes a blob after successful processing. Failure is
// best-effort: an unconfirmed blob is simply picked up again later, or
// eventually swept by the dead drop's TTL sweep.
func (c *Client) Confirm(ctx context.Context, channel, id string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/confirm/"+channel+"/"+id, nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
