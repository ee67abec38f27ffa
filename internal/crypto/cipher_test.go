package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"tunelock/internal/domain"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := DeriveKey("LIC-test-key", nil)
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("ID3\x04some mp3 frame bytes here")

	ciphertext, env, err := Seal(plaintext, key)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatalf("ciphertext equals plaintext")
	}
	if env.Algorithm != AlgorithmAESGCM {
		t.Fatalf("expected algorithm %q, got %q", AlgorithmAESGCM, env.Algorithm)
	}
	if iv, err := hex.DecodeString(env.IV); err != nil || len(iv) != nonceSize {
		t.Fatalf("iv is not %d hex-encoded bytes: %q", nonceSize, env.IV)
	}
	if tag, err := hex.DecodeString(env.AuthTag); err != nil || len(tag) != 16 {
		t.Fatalf("auth tag is not 16 hex-encoded bytes: %q", env.AuthTag)
	}

	opened, err := Open(ciphertext, key, env)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch")
	}
}

func TestSealFreshNoncePerCall(t *testing.T) {
	key := testKey(t)
	_, env1, err := Seal([]byte("payload"), key)
	if err != nil {
		t.Fatalf("seal 1: %v", err)
	}
	_, env2, err := Seal([]byte("payload"), key)
	if err != nil {
		t.Fatalf("seal 2: %v", err)
	}
	if env1.IV == env2.IV {
		t.Fatalf("nonce reused across calls")
	}
}

func TestSealUsesInjectedNonceSource(t *testing.T) {
	key := testKey(t)
	nonce := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	restore := UseDeterministicRandom(bytes.NewReader(nonce))
	defer restore()

	ciphertext, env, err := Seal([]byte("deterministic payload"), key)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if env.IV != hex.EncodeToString(nonce) {
		t.Fatalf("envelope IV %q, want %q", env.IV, hex.EncodeToString(nonce))
	}
	if _, err := Open(ciphertext, key, env); err != nil {
		t.Fatalf("open: %v", err)
	}

	// The source is exhausted, so a second seal must surface the read error
	// rather than fall back to another reader.
	if _, _, err := Seal([]byte("again"), key); err == nil {
		t.Fatalf("expected nonce read error from drained source")
	}

	restore()
	if _, _, err := Seal([]byte("after restore"), key); err != nil {
		t.Fatalf("seal after restore: %v", err)
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("protected audio payload")

	ciphertext, env, err := Seal(plaintext, key)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0xff
	if _, err := Open(tampered, key, env); !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("tampered ciphertext: expected ErrAuthenticationFailed, got %v", err)
	}

	badTag := env
	raw, _ := hex.DecodeString(env.AuthTag)
	raw[0] ^= 0xff
	badTag.AuthTag = hex.EncodeToString(raw)
	if _, err := Open(ciphertext, key, badTag); !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("tampered tag: expected ErrAuthenticationFailed, got %v", err)
	}

	wrongKey, err := DeriveKey("LIC-wrong-key", nil)
	if err != nil {
		t.Fatalf("derive wrong key: %v", err)
	}
	if _, err := Open(ciphertext, wrongKey, env); !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("wrong key: expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestOpenRejectsMalformedEnvelope(t *testing.T) {
	key := testKey(t)
	ciphertext, env, err := Seal([]byte("x"), key)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	badAlgo := env
	badAlgo.Algorithm = "aes-128-cbc"
	if _, err := Open(ciphertext, key, badAlgo); err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}

	badIV := env
	badIV.IV = "not-hex"
	if _, err := Open(ciphertext, key, badIV); err == nil {
		t.Fatalf("expected error for malformed iv")
	}
}

func TestSealRejectsBadKeyLength(t *testing.T) {
	if _, _, err := Seal([]byte("x"), []byte("short")); err == nil {
		t.Fatalf("expected error for short key")
	}
}
