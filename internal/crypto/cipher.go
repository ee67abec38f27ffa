package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"tunelock/internal/domain"
)

// AlgorithmAESGCM identifies the only cipher this service produces. The
// string is part of the persisted envelope format.
const AlgorithmAESGCM = "aes-256-gcm"

const nonceSize = 12

var (
	randMu        sync.RWMutex
	randomnessSrc io.Reader = randReader{}
)

// randReader wraps crypto/rand.Reader but keeps the type unexported so tests
// can substitute deterministic sources.
type randReader struct{}

func (randReader) Read(p []byte) (int, error) {
	return rand.Read(p)
}

// UseDeterministicRandom swaps the nonce source for deterministic testing and
// returns a restore function that must be called when the test completes.
func UseDeterministicRandom(r io.Reader) func() {
	randMu.Lock()
	prev := randomnessSrc
	randomnessSrc = r
	randMu.Unlock()
	return func() {
		randMu.Lock()
		randomnessSrc = prev
		randMu.Unlock()
	}
}

func readRandom(b []byte) error {
	randMu.RLock()
	src := randomnessSrc
	randMu.RUnlock()
	_, err := io.ReadFull(src, b)
	return err
}

// Envelope is the {IV, auth tag, algorithm} triple produced by one Seal call.
// It must always travel with its ciphertext: opening is impossible without
// all three plus the original license key. IV and AuthTag are hex so the
// envelope can live in text columns and JSON payloads.
type Envelope struct {
	IV        string `json:"iv"`
	AuthTag   string `json:"authTag"`
	Algorithm string `json:"algorithm"`
}

// Seal encrypts plaintext under key with AES-256-GCM and a fresh random
// nonce. The returned ciphertext excludes the tag; the tag and nonce ride in
// the envelope.
func Seal(plaintext, key []byte) ([]byte, Envelope, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, Envelope{}, err
	}

	nonce := make([]byte, nonceSize)
	if err := readRandom(nonce); err != nil {
		return nil, Envelope{}, fmt.Errorf("seal: nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	tagStart := len(sealed) - aead.Overhead()
	env := Envelope{
		IV:        hex.EncodeToString(nonce),
		AuthTag:   hex.EncodeToString(sealed[tagStart:]),
		Algorithm: AlgorithmAESGCM,
	}
	return sealed[:tagStart:tagStart], env, nil
}

// Open decrypts ciphertext sealed by Seal. It returns
// domain.ErrAuthenticationFailed when the tag does not verify (tampered data
// or wrong key) and never partial plaintext.
func Open(ciphertext, key []byte, env Envelope) ([]byte, error) {
	if env.Algorithm != AlgorithmAESGCM {
		return nil, fmt.Errorf("open: unsupported algorithm %q", env.Algorithm)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce, err := hex.DecodeString(env.IV)
	if err != nil || len(nonce) != nonceSize {
		return nil, fmt.Errorf("open: malformed iv")
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil || len(tag) != aead.Overhead() {
		return nil, fmt.Errorf("open: malformed auth tag")
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, domain.ErrAuthenticationFailed
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cipher: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	return aead, nil
}

var _ io.Reader = randReader{}
