package crypto

import (
	"bytes"
	"testing"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	key1, err := DeriveKey("LIC-abc123-deadbeef", nil)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	key2, err := DeriveKey("LIC-abc123-deadbeef", nil)
	if err != nil {
		t.Fatalf("derive again: %v", err)
	}
	if !bytes.Equal(key1, key2) {
		t.Fatalf("same license key produced different derived keys")
	}
	if len(key1) != KeySize {
		t.Fatalf("expected %d byte key, got %d", KeySize, len(key1))
	}
}

func TestDeriveKeyVariesByInput(t *testing.T) {
	key1, err := DeriveKey("LIC-one", nil)
	if err != nil {
		t.Fatalf("derive one: %v", err)
	}
	key2, err := DeriveKey("LIC-two", nil)
	if err != nil {
		t.Fatalf("derive two: %v", err)
	}
	if bytes.Equal(key1, key2) {
		t.Fatalf("different license keys produced the same derived key")
	}

	salted, err := DeriveKey("LIC-one", []byte("other-salt"))
	if err != nil {
		t.Fatalf("derive salted: %v", err)
	}
	if bytes.Equal(key1, salted) {
		t.Fatalf("different salts produced the same derived key")
	}
}

func TestDeriveKeyRejectsEmpty(t *testing.T) {
	if _, err := DeriveKey("", nil); err == nil {
		t.Fatalf("expected error for empty license key")
	}
}
