// Package deaddrop implements the untrusted relay's blob store: a
// channel-scoped bucket of opaque sealed blobs that never decrypts or
// parses anything beyond its own metadata envelope.
package deaddrop

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when a blob does not exist under the given
// channel/id.
var ErrNotFound = errors.New("deaddrop: not found")

// ErrInvalidChannel is returned for any channel outside the fixed set.
var ErrInvalidChannel = errors.New("deaddrop: invalid channel")

// ErrEmptyBody is returned when a drop's body is empty.
var ErrEmptyBody = errors.New("deaddrop: empty body")

// ErrBodyTooLarge is returned when a drop's body exceeds MaxBlobSize.
var ErrBodyTooLarge = errors.New("deaddrop: body too large")

// MaxBlobSize is the largest body a single drop may contain.
const MaxBlobSize = 100 * 1024 * 1024

// ValidChannels are the only channel names the dead drop will store
// blobs under.
var ValidChannels = map[string]bool{
	"conversations": true,
	"mirror":        true,
}

// Meta is a blob's metadata, the only thing the dead drop ever
// inspects about a drop's content.
type Meta struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	AgentID   string    `json:"agent_id"`
	Size      int64     `json:"size"`
	DroppedAt time.Time `json:"dropped_at"`
}

// BlobStore is a filesystem-backed store of opaque blobs, one
// directory per channel, each blob as a body file plus a JSON sidecar
// of Meta.
type BlobStore struct {
	root string
}

// NewBlobStore opens (creating if absent) a blob store rooted at dir.
func NewBlobStore(dir string) (*BlobStore, error) {
	for channel := range ValidChannels {
		if err := os.MkdirAll(filepath.Join(dir, channel), 0o700); err != nil {
			return nil, fmt.Errorf("deaddrop: creating channel dir %s: %w", channel, err)
		}
	}
	return &BlobStore{root: dir}, nil
}

// Put stores body under a freshly generated ULID and returns its
// metadata. Channel must be one of ValidChannels.
func (b *BlobStore) Put(channel, agentID string, body []byte) (Meta, error) {
	if !ValidChannels[channel] {
		return Meta{}, ErrInvalidChannel
	}
	if len(body) == 0 {
		return Meta{}, ErrEmptyBody
	}
	if len(body) > MaxBlobSize {
		return Meta{}, ErrBodyTooLarge
	}

	id := ulid.Make().String()
	meta := Meta{ID: id, Channel: channel, AgentID: agentID, Size: int64(len(body)), DroppedAt: time.Now().UTC()}

	if err := os.WriteFile(b.bodyPath(channel, id), body, 0o600); err != nil {
		return Meta{}, fmt.Errorf("deaddrop: writing blob body: %w", err)
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return Meta{}, fmt.Errorf("deaddrop: marshaling blob meta: %w", err)
	}
	if err := os.WriteFile(b.metaPath(channel, id), metaBytes, 0o600); err != nil {
		return Meta{}, fmt.Errorf("deaddrop: writing blob meta: %w", err)
	}
	return meta, nil
}

// List enumerates blobs under a channel, oldest first.
func (b *BlobStore) List(channel string) ([]Meta, error) {
	if !ValidChannels[channel] {
		return nil, ErrInvalidChannel
	}

	entries, err := os.ReadDir(filepath.Join(b.root, channel))
	if err != nil {
		return nil, fmt.Errorf("deaddrop: listing channel %s: %w", channel, err)
	}

	var out []Meta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".meta.json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".meta.json")
		meta, err := b.readMeta(channel, id)
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DroppedAt.Before(out[j].DroppedAt) })
	return out, nil
}

// Get returns a blob's body and metadata, or ErrNotFound.
func (b *BlobStore) Get(channel, id string) ([]byte, Meta, error) {
	if !ValidChannels[channel] {
		return nil, Meta{}, ErrInvalidChannel
	}

	meta, err := b.readMeta(channel, id)
	if err != nil {
		return nil, Meta{}, ErrNotFound
	}
	body, err := os.ReadFile(b.bodyPath(channel, id))
	if err != nil {
		return nil, Meta{}, ErrNotFound
	}
	return body, meta, nil
}

// Delete removes a blob's body and metadata, or ErrNotFound.
func (b *BlobStore) Delete(channel, id string) error {
	if !ValidChannels[channel] {
		return ErrInvalidChannel
	}
	if _, err := b.readMeta(channel, id); err != nil {
		return ErrNotFound
	}
	os.Remove(b.bodyPath(channel, id))
	os.Remove(b.metaPath(channel, id))
	return nil
}

// SweepExpired deletes every blob across all channels whose DroppedAt
// is older than ttl, returning the count removed. This is a safety net
// against clients that never confirm; normal deletion is via Delete.
func (b *BlobStore) SweepExpired(ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	removed := 0

	for channel := range ValidChannels {
		blobs, err := b.List(channel)
		if err != nil {
			return removed, err
		}
		for _, m := range blobs {
			if m.DroppedAt.Before(cutoff) {
				if err := b.Delete(channel, m.ID); err != nil && err != ErrNotFound {
					return removed, err
				}
				removed++
			}
		}
	}
	return removed, nil
}

func (b *BlobStore) readMeta(channel, id string) (Meta, error) {
	data, err := os.ReadFile(b.metaPath(channel, id))
	if err != nil {
		return Meta{}, err
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

func (b *BlobStore) bodyPath(channel, id string) string {
	return filepath.Join(b.root, channel, id+".body")
}

func (b *BlobStore) metaPath(channel, id string) string {
	return filepath.Join(b.root, channel, id+".meta.json")
}
