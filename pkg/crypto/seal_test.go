package crypto

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, keySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("a memory chunk worth protecting")

	payload, err := Seal(plaintext, key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if payload.Version != PayloadVersion {
		t.Fatalf("expected version %d, got %d", PayloadVersion, payload.Version)
	}

	got, err := Open(payload, key)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := testKey(t)
	payload, err := Seal([]byte("hello"), key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(payload.CipherB64)
	if err != nil {
		t.Fatalf("decoding ciphertext: %v", err)
	}
	raw[0] ^= 0xFF
	payload.CipherB64 = base64.StdEncoding.EncodeToString(raw)

	if _, err := Open(payload, key); err == nil {
		t.Fatal("expected Open to reject tampered ciphertext")
	}
}

func TestOpenRejectsTamperedHMAC(t *testing.T) {
	key := testKey(t)
	payload, err := Seal([]byte("hello"), key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	payload.HMACHex = "00" + payload.HMACHex[2:]

	if _, err := Open(payload, key); err == nil {
		t.Fatal("expected Open to reject tampered hmac")
	}
}

func TestOpenRejectsWrongVersion(t *testing.T) {
	key := testKey(t)
	payload, err := Seal([]byte("hello"), key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	payload.Version = 2

	if _, err := Open(payload, key); err == nil {
		t.Fatal("expected Open to reject unsupported version")
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key := testKey(t)
	payload, err := Seal([]byte("hello"), key)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	otherKey := make([]byte, keySize)
	copy(otherKey, key)
	otherKey[0] ^= 0xFF

	if _, err := Open(payload, otherKey); err == nil {
		t.Fatal("expected Open to reject decryption under the wrong key")
	}
}

func TestHash(t *testing.T) {
	got := Hash([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("Hash(%q) = %s, want %s", "abc", got, want)
	}
}

func TestLoadKey(t *testing.T) {
	dir := t.TempDir()
	key := testKey(t)
	encoded := base64.StdEncoding.EncodeToString(key)

	path := filepath.Join(dir, "master.key")
	if err := os.WriteFile(path, []byte(encoded+"\n"), 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}

	got, err := LoadKey(path)
	if err != nil {
		t.Fatalf("LoadKey failed: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Fatalf("LoadKey mismatch: got %x, want %x", got, key)
	}
}

func TestLoadKeyRejectsWrongLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.key")
	if err := os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString([]byte("too short"))), 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}

	if _, err := LoadKey(path); err == nil {
		t.Fatal("expected LoadKey to reject a key that is not 32 bytes")
	}
}
