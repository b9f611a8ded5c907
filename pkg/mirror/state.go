package mirror

import (
	"encoding/json"
	"os"
)

// state is the device-local record of which mirror snapshot has been
// applied, keyed by content hash so a repeat pull is a cheap no-op.
type state struct {
	LastAppliedHash string `json:"last_applied_hash"`
}

// loadState reads path, treating an absent or corrupt file as a fresh
// zero-value state rather than an error, per the corruption-handling
// policy shared by all of the module's small JSON state files.
func loadState(path string) state {
	data, err := os.ReadFile(path)
	if err != nil {
		return state{}
	}
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return state{}
	}
	return s
}

func saveState(path string, s state) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
