// Package crypto implements the sealed-envelope primitives used to move
// chunks and mirror snapshots across an untrusted transport: AES-256-GCM
// encryption under a shared master key, with an HKDF-derived signing
// sub-key authenticating the envelope via HMAC-SHA-256.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// PayloadVersion is the only version this package produces or accepts.
	PayloadVersion = 1

	nonceSize     = 12 // 96 bits, required by AES-GCM
	keySize       = 32 // AES-256
	hkdfInfo      = "crystal-relay-sign"
	hkdfSignedLen = 32
)

// ErrIntegrity is returned by Open when the HMAC over the envelope does
// not match, or when the AEAD tag fails to verify.
var ErrIntegrity = errors.New("crypto: envelope integrity check failed")

// ErrUnsupportedVersion is returned by Open for any payload whose Version
// is not PayloadVersion.
var ErrUnsupportedVersion = errors.New("crypto: unsupported payload version")

// Payload is the wire shape of a sealed envelope, matching the relay and
// mirror wire format exactly.
type Payload struct {
	Version    int    `json:"v"`
	NonceB64   string `json:"nonce"`
	CipherB64  string `json:"ciphertext"`
	TagB64     string `json:"tag"`
	HMACHex    string `json:"hmac"`
}

// Seal encrypts plaintext under key (AES-256-GCM, random 96-bit nonce)
// and authenticates the envelope with an HMAC-SHA-256 computed over
// nonce ∥ ciphertext ∥ tag, keyed by an HKDF-SHA-256 sub-key derived
// from key.
func Seal(plaintext, key []byte) (Payload, error) {
	if len(key) != keySize {
		return Payload{}, fmt.Errorf("crypto: seal: key must be %d bytes, got %d", keySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return Payload{}, fmt.Errorf("crypto: seal: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Payload{}, fmt.Errorf("crypto: seal: creating gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Payload{}, fmt.Errorf("crypto: seal: generating nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	signKey, err := deriveSigningKey(key)
	if err != nil {
		return Payload{}, err
	}

	mac := computeHMAC(signKey, nonce, ciphertext, tag)

	return Payload{
		Version:   PayloadVersion,
		NonceB64:  base64.StdEncoding.EncodeToString(nonce),
		CipherB64: base64.StdEncoding.EncodeToString(ciphertext),
		TagB64:    base64.StdEncoding.EncodeToString(tag),
		HMACHex:   hex.EncodeToString(mac),
	}, nil
}

// Open verifies and decrypts a Payload sealed by Seal under the same key.
// The HMAC is checked, in constant time, before any attempt to decrypt.
func Open(p Payload, key []byte) ([]byte, error) {
	if p.Version != PayloadVersion {
		return nil, fmt.Errorf("%w: got %d", ErrUnsupportedVersion, p.Version)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("crypto: open: key must be %d bytes, got %d", keySize, len(key))
	}

	nonce, err := base64.StdEncoding.DecodeString(p.NonceB64)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(p.CipherB64)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: decoding ciphertext: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(p.TagB64)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: decoding tag: %w", err)
	}
	wantMAC, err := hex.DecodeString(p.HMACHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: decoding hmac: %w", err)
	}

	signKey, err := deriveSigningKey(key)
	if err != nil {
		return nil, err
	}
	gotMAC := computeHMAC(signKey, nonce, ciphertext, tag)
	if subtle.ConstantTimeCompare(gotMAC, wantMAC) != 1 {
		return nil, ErrIntegrity
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: open: creating gcm: %w", err)
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	return plaintext, nil
}

// Hash returns the lowercase hex-encoded SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func deriveSigningKey(masterKey []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, masterKey, nil, []byte(hkdfInfo))
	signKey := make([]byte, hkdfSignedLen)
	if _, err := io.ReadFull(reader, signKey); err != nil {
		return nil, fmt.Errorf("crypto: deriving signing key: %w", err)
	}
	return signKey, nil
}

func computeHMAC(signKey, nonce, ciphertext, tag []byte) []byte {
	mac := hmac.New(sha256.New, signKey)
	mac.Write(nonce)
	mac.Write(ciphertext)
	mac.Write(tag)
	return mac.Sum(nil)
}
