package crypto

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
)

// LoadKey reads a base64-encoded 32-byte master key from path. The file
// contents are trimmed of surrounding whitespace before decoding, so a
// key written with a trailing newline (the common case for a file
// produced by `echo` or a text editor) loads without complaint.
func LoadKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: loading key from %s: %w", path, err)
	}
	trimmed := bytes.TrimSpace(raw)

	key, err := base64.StdEncoding.DecodeString(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("crypto: key at %s is not valid base64: %w", path, err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("crypto: key at %s must decode to %d bytes, got %d", path, keySize, len(key))
	}
	return key, nil
}
