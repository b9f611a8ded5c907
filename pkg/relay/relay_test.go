package relay

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/wipcomputer/memory-crystal/pkg/crypto"
	"github.com/wipcomputer/memory-crystal/pkg/deaddrop"
	"github.com/wipcomputer/memory-crystal/pkg/embedding"
	"github.com/wipcomputer/memory-crystal/pkg/ingest"
	"github.com/wipcomputer/memory-crystal/pkg/privatemode"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

// testGate returns a gate over an absent flag file, which fails open
// (capture enabled), matching a freshly provisioned data directory.
func testGate(t *testing.T) *privatemode.Gate {
	t.Helper()
	return privatemode.New(privatemode.Path(t.TempDir()))
}

func testMasterKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return key
}

func newTestRelay(t *testing.T) (*Client, *deaddrop.BlobStore) {
	t.Helper()
	blobs, err := deaddrop.NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobStore failed: %v", err)
	}
	server, err := deaddrop.New(blobs, deaddrop.Config{
		ListenAddr:  ":0",
		AgentTokens: map[string]string{"tok": "agent-1"},
	})
	if err != nil {
		t.Fatalf("deaddrop.New failed: %v", err)
	}
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	client := New(srv.URL, "tok", testMasterKey(t))
	return client, blobs
}

func newTestPipeline(t *testing.T) *ingest.Pipeline {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "crystal.db")
	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return ingest.New(s, embedding.NewFake(8, embedding.ProviderOpenAI), nil)
}

func TestClientDropListFetchOpenConfirm(t *testing.T) {
	client, _ := newTestRelay(t)
	ctx := context.Background()

	payload := []byte(`{"agent_id":"agent-1","messages":[]}`)
	if err := client.Drop(ctx, ChannelMirror, payload); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}

	blobs, err := client.List(ctx, ChannelMirror)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(blobs) != 1 {
		t.Fatalf("expected 1 blob, got %d", len(blobs))
	}

	sealed, err := client.Fetch(ctx, ChannelMirror, blobs[0].ID)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	opened, err := client.Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(opened) != string(payload) {
		t.Fatalf("expected round-tripped payload %q, got %q", payload, opened)
	}

	client.Confirm(ctx, ChannelMirror, blobs[0].ID)
	blobsAfter, err := client.List(ctx, ChannelMirror)
	if err != nil {
		t.Fatalf("List after confirm failed: %v", err)
	}
	if len(blobsAfter) != 0 {
		t.Fatalf("expected 0 blobs after confirm, got %d", len(blobsAfter))
	}
}

func TestClientOpenRejectsWrongKey(t *testing.T) {
	client, _ := newTestRelay(t)
	ctx := context.Background()

	if err := client.Drop(ctx, ChannelMirror, []byte("secret payload")); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	blobs, err := client.List(ctx, ChannelMirror)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	sealed, err := client.Fetch(ctx, ChannelMirror, blobs[0].ID)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	wrongKeyClient := New("", "", testMasterKey(t))
	if _, err := wrongKeyClient.Open(sealed); err == nil {
		t.Fatal("expected Open under wrong key to fail")
	}
}

func TestPollOnceIngestsSmallMessages(t *testing.T) {
	client, _ := newTestRelay(t)
	pipe := newTestPipeline(t)
	ctx := context.Background()

	payload := ConversationPayload{
		AgentID: "agent-1",
		Messages: []Message{
			{Text: "the user asked about deploy pipelines", Role: "user", SessionID: "s1"},
			{Text: "here's how the deploy pipeline works", Role: "assistant", SessionID: "s1"},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshaling payload failed: %v", err)
	}
	if err := client.Drop(ctx, ChannelConversations, body); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}

	poller := NewPoller(client, pipe, testGate(t))
	if err := poller.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce failed: %v", err)
	}

	blobsAfter, err := client.List(ctx, ChannelConversations)
	if err != nil {
		t.Fatalf("List after poll failed: %v", err)
	}
	if len(blobsAfter) != 0 {
		t.Fatalf("expected blob to be confirmed away, got %d remaining", len(blobsAfter))
	}
}

func TestPollOnceDropsCorruptBlob(t *testing.T) {
	client, blobStore := newTestRelay(t)
	pipe := newTestPipeline(t)
	ctx := context.Background()

	// Store a blob directly, sealed under a different key, so the
	// client's Open call fails HMAC verification.
	otherKey := testMasterKey(t)
	sealed, err := crypto.Seal([]byte(`{"agent_id":"agent-1","messages":[]}`), otherKey)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	sealedJSON, err := json.Marshal(sealed)
	if err != nil {
		t.Fatalf("marshaling sealed payload failed: %v", err)
	}
	if _, err := blobStore.Put(ChannelConversations, "agent-1", sealedJSON); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	poller := NewPoller(client, pipe, testGate(t))
	if err := poller.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce failed: %v", err)
	}

	blobsAfter, err := client.List(ctx, ChannelConversations)
	if err != nil {
		t.Fatalf("List after poll failed: %v", err)
	}
	if len(blobsAfter) != 0 {
		t.Fatalf("expected corrupt blob to be dropped, got %d remaining", len(blobsAfter))
	}
}

func TestPollOnceLeavesBlobWhenPrivateModeIsOn(t *testing.T) {
	client, _ := newTestRelay(t)
	pipe := newTestPipeline(t)
	ctx := context.Background()

	body, err := json.Marshal(ConversationPayload{
		AgentID:  "agent-1",
		Messages: []Message{{Text: "should not be captured", Role: "user", SessionID: "s1"}},
	})
	if err != nil {
		t.Fatalf("marshaling payload failed: %v", err)
	}
	if err := client.Drop(ctx, ChannelConversations, body); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}

	gate := testGate(t)
	if err := gate.SetEnabled(false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}

	poller := NewPoller(client, pipe, gate)
	if err := poller.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce failed: %v", err)
	}

	blobsAfter, err := client.List(ctx, ChannelConversations)
	if err != nil {
		t.Fatalf("List after poll failed: %v", err)
	}
	if len(blobsAfter) != 1 {
		t.Fatalf("expected blob to remain unconfirmed while private mode is on, got %d remaining", len(blobsAfter))
	}
}

func TestRehydrateChunksLargeMessages(t *testing.T) {
	longText := make([]byte, 10000)
	for i := range longText {
		longText[i] = 'a'
	}
	payload := ConversationPayload{
		AgentID: "agent-1",
		Messages: []Message{
			{Text: string(longText), Role: "user", SessionID: "s1"},
		},
	}

	candidates := rehydrate(payload)
	if len(candidates) < 2 {
		t.Fatalf("expected a long message to be split into multiple chunks, got %d", len(candidates))
	}
	for _, c := range candidates {
		if c.AgentID != "agent-1" {
			t.Fatalf("expected agent id to propagate, got %q", c.AgentID)
		}
		if c.SourceType != store.SourceTypeConversation {
			t.Fatalf("expected conversation source type, got %q", c.SourceType)
		}
	}
}

func TestDropRejectsUnknownChannel(t *testing.T) {
	client, _ := newTestRelay(t)
	ctx := context.Background()

	if err := client.Drop(ctx, "bogus", []byte("x")); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
	if _, err := client.List(ctx, "bogus"); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel from List, got %v", err)
	}
	if _, err := client.Fetch(ctx, "bogus", "id"); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel from Fetch, got %v", err)
	}
}

func TestRehydrateSkipsEmptyMessages(t *testing.T) {
	payload := ConversationPayload{
		AgentID: "agent-1",
		Messages: []Message{
			{Text: "", Role: "user", SessionID: "s1"},
			{Text: "non-empty", Role: "user", SessionID: "s1"},
		},
	}
	candidates := rehydrate(payload)
	if len(candidates) != 1 {
		t.Fatalf("expected empty message to be skipped, got %d candidates", len(candidates))
	}
}
