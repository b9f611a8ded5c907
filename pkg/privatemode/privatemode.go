// Package privatemode implements the single on/off gate consulted by
// capture paths and explicit memory writes before they touch the
// store. Search is never affected by this gate.
package privatemode

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FlagFileName is the flag file's name inside a data directory.
const FlagFileName = "private-mode.json"

// Path returns the flag file path for a data directory.
func Path(dataDir string) string {
	return filepath.Join(dataDir, FlagFileName)
}

type flagFile struct {
	Enabled bool `json:"enabled"`
}

// ErrCorruptState marks a flag file that exists but does not parse. It
// is never returned to callers of Enabled — corrupt state fails open
// there — but is logged so the condition is visible somewhere.
var ErrCorruptState = errors.New("privatemode: corrupt flag file")

// Gate reads and writes a private-mode flag persisted at a fixed path.
// An absent or corrupt file fails open: capture and explicit memory
// writes proceed as if the flag were enabled, since the absence of
// configuration must imply default behaviour.
type Gate struct {
	path string
}

// New constructs a Gate backed by the flag file at path.
func New(path string) *Gate {
	return &Gate{path: path}
}

// Enabled reports whether capture and explicit memory writes are
// currently permitted.
func (g *Gate) Enabled() bool {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return true
	}
	var f flagFile
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("privatemode: flag file corrupt, failing open", "path", g.path, "error", fmt.Errorf("%w: %v", ErrCorruptState, err))
		return true
	}
	return f.Enabled
}

// SetEnabled persists the flag's new value.
func (g *Gate) SetEnabled(enabled bool) error {
	data, err := json.Marshal(flagFile{Enabled: enabled})
	if err != nil {
		return fmt.Errorf("privatemode: marshaling flag: %w", err)
	}
	if err := os.WriteFile(g.path, data, 0o600); err != nil {
		return fmt.Errorf("privatemode: writing flag: %w", err)
	}
	return nil
}
