// Package mirror implements the whole-store snapshot protocol: the
// home node seals and pushes its store file to the mirror channel of
// an untrusted relay, and any device pulls the latest snapshot,
// verifies it end to end, and atomically replaces its local copy.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/wipcomputer/memory-crystal/pkg/crypto"
	"github.com/wipcomputer/memory-crystal/pkg/relay"
)

// ErrHashMismatch is returned by Pull when the decrypted store bytes
// do not hash to the value asserted by the (already HMAC-verified)
// meta envelope. The existing local mirror is left untouched.
var ErrHashMismatch = errors.New("mirror: decrypted snapshot hash does not match meta")

// envelope is the wire shape of a mirror drop's body: two
// independently sealed payloads, meta and the raw store bytes.
type envelope struct {
	Meta crypto.Payload `json:"meta"`
	DB   crypto.Payload `json:"db"`
}

// metaInfo is the plaintext of the sealed meta envelope.
type metaInfo struct {
	Hash     string    `json:"hash"`
	Size     int64     `json:"size"`
	PushedAt time.Time `json:"pushed_at"`
}

// Mirror pushes and pulls whole-store snapshots over a relay client.
type Mirror struct {
	relay     *relay.Client
	masterKey []byte
}

// New constructs a Mirror over an existing relay client and the
// master key used to seal and open snapshots.
func New(relayClient *relay.Client, masterKey []byte) *Mirror {
	return &Mirror{relay: relayClient, masterKey: masterKey}
}

// Push reads the store file at storePath, seals it alongside a small
// metadata envelope, and drops both to the mirror channel.
func (m *Mirror) Push(ctx context.Context, storePath string) error {
	data, err := os.ReadFile(storePath)
	if err != nil {
		return fmt.Errorf("mirror: push: reading store file: %w", err)
	}

	meta := metaInfo{Hash: crypto.Hash(data), Size: int64(len(data)), PushedAt: time.Now().UTC()}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("mirror: push: marshaling meta: %w", err)
	}

	sealedMeta, err := crypto.Seal(metaBytes, m.masterKey)
	if err != nil {
		return fmt.Errorf("mirror: push: sealing meta: %w", err)
	}
	sealedDB, err := crypto.Seal(data, m.masterKey)
	if err != nil {
		return fmt.Errorf("mirror: push: sealing store bytes: %w", err)
	}

	body, err := json.Marshal(envelope{Meta: sealedMeta, DB: sealedDB})
	if err != nil {
		return fmt.Errorf("mirror: push: marshaling envelope: %w", err)
	}

	return m.relay.DropRaw(ctx, relay.ChannelMirror, body)
}

// Pull fetches the latest mirror snapshot, verifies it, and atomically
// replaces destPath if it differs from the last-applied snapshot
// recorded in statePath. Returns whether a new snapshot was applied.
// A forced pull skips the last-applied-hash short circuit.
func (m *Mirror) Pull(ctx context.Context, destPath, statePath string, force bool) (bool, error) {
	blobs, err := m.relay.List(ctx, relay.ChannelMirror)
	if err != nil {
		return false, fmt.Errorf("mirror: pull: listing: %w", err)
	}
	if len(blobs) == 0 {
		return false, nil
	}

	latest := blobs[0]
	for _, b := range blobs[1:] {
		if b.DroppedAt.After(latest.DroppedAt) {
			latest = b
		}
	}

	raw, err := m.relay.Fetch(ctx, relay.ChannelMirror, latest.ID)
	if err != nil {
		return false, fmt.Errorf("mirror: pull: fetching: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, fmt.Errorf("mirror: pull: decoding envelope: %w", err)
	}

	metaBytes, err := crypto.Open(env.Meta, m.masterKey)
	if err != nil {
		return false, fmt.Errorf("mirror: pull: opening meta: %w", err)
	}
	var meta metaInfo
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return false, fmt.Errorf("mirror: pull: decoding meta: %w", err)
	}

	st := loadState(statePath)
	if !force && st.LastAppliedHash == meta.Hash {
		return false, nil
	}

	dbBytes, err := crypto.Open(env.DB, m.masterKey)
	if err != nil {
		return false, fmt.Errorf("mirror: pull: opening store bytes: %w", err)
	}
	if crypto.Hash(dbBytes) != meta.Hash {
		return false, ErrHashMismatch
	}

	if err := applyAtomic(destPath, dbBytes); err != nil {
		return false, fmt.Errorf("mirror: pull: applying snapshot: %w", err)
	}

	if err := saveState(statePath, state{LastAppliedHash: meta.Hash}); err != nil {
		return false, fmt.Errorf("mirror: pull: saving state: %w", err)
	}

	for _, b := range blobs {
		m.relay.Confirm(ctx, relay.ChannelMirror, b.ID)
	}

	return true, nil
}

// applyAtomic writes data to a temp file beside dest, backs up any
// existing dest to dest+".bak", and renames the temp file into place.
func applyAtomic(dest string, data []byte) error {
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		if err := os.Rename(dest, dest+".bak"); err != nil {
			return fmt.Errorf("backing up existing mirror: %w", err)
		}
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("renaming temp file into place: %w", err)
	}
	return nil
}
