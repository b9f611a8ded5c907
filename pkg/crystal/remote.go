package crystal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wipcomputer/memory-crystal/pkg/chunker"
	"github.com/wipcomputer/memory-crystal/pkg/ingest"
	"github.com/wipcomputer/memory-crystal/pkg/query"
	"github.com/wipcomputer/memory-crystal/pkg/retry"
	"github.com/wipcomputer/memory-crystal/pkg/status"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

// Remote drives a substrate running on another node over HTTPS. It is
// an adapter boundary only: the RPC surface it calls belongs to a
// server front-end outside this module's scope, so its wire shape is
// kept deliberately small and is not meant to be the substrate's only
// external protocol.
type Remote struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewRemote constructs a Remote engine against a substrate exposed at
// baseURL, authenticating with bearer token.
func NewRemote(baseURL, token string) *Remote {
	return &Remote{baseURL: baseURL, token: token, httpClient: http.DefaultClient}
}

func (r *Remote) do(ctx context.Context, method, path string, reqBody, respBody any) error {
	return retry.WithBackoff(ctx, retry.MaxAttempts, retry.BackoffCap, func() error {
		var reader io.Reader
		if reqBody != nil {
			buf, err := json.Marshal(reqBody)
			if err != nil {
				return fmt.Errorf("crystal: remote: encoding request: %w", err)
			}
			reader = bytes.NewReader(buf)
		}
		req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("crystal: remote: building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+r.token)
		resp, err := r.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("crystal: remote: request failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("crystal: remote: unexpected status %d", resp.StatusCode)
		}
		if respBody == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("crystal: remote: decoding response: %w", err)
		}
		return nil
	})
}

type searchRequest struct {
	Query  string        `json:"query"`
	Limit  int           `json:"limit"`
	Filter *store.Filter `json:"filter,omitempty"`
}

type searchResponse struct {
	Results []query.Result `json:"results"`
}

func (r *Remote) Search(ctx context.Context, q string, limit int, filter *store.Filter) ([]query.Result, error) {
	var resp searchResponse
	if err := r.do(ctx, http.MethodPost, "/v1/search", searchRequest{Query: q, Limit: limit, Filter: filter}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

type rememberRequest struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

func (r *Remote) Remember(ctx context.Context, text, category string) (store.Memory, error) {
	var mem store.Memory
	err := r.do(ctx, http.MethodPost, "/v1/remember", rememberRequest{Text: text, Category: category}, &mem)
	return mem, err
}

type forgetRequest struct {
	ID string `json:"id"`
}

type forgetResponse struct {
	Changed bool `json:"changed"`
}

func (r *Remote) Forget(ctx context.Context, id string) (bool, error) {
	var resp forgetResponse
	err := r.do(ctx, http.MethodPost, "/v1/forget", forgetRequest{ID: id}, &resp)
	return resp.Changed, err
}

func (r *Remote) Status(ctx context.Context) (status.Snapshot, error) {
	var snap status.Snapshot
	err := r.do(ctx, http.MethodGet, "/v1/status", nil, &snap)
	return snap, err
}

type ingestRequest struct {
	Candidates []ingest.Candidate `json:"candidates"`
}

type ingestResponse struct {
	Inserted int `json:"inserted"`
}

func (r *Remote) Ingest(ctx context.Context, candidates []ingest.Candidate) (int, error) {
	var resp ingestResponse
	err := r.do(ctx, http.MethodPost, "/v1/ingest", ingestRequest{Candidates: candidates}, &resp)
	return resp.Inserted, err
}

// ChunkText splits locally rather than round-tripping: chunking is a
// pure function of the text and the caller's chosen window, not of any
// state the remote node holds.
func (r *Remote) ChunkText(text string, targetTokens, overlapTokens int) []string {
	return chunker.Chunk(text, targetTokens, overlapTokens)
}
