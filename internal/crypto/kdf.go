package crypto

import (
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters. Deliberately expensive so license keys cannot be
// brute-forced offline against a stored envelope.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1

	// KeySize is the derived key length, matching AES-256.
	KeySize = 32
)

// DefaultSalt is the application-wide KDF salt. Stored client envelopes were
// produced with this value, so changing it invalidates every download already
// in the field. Override via LICENSE_SALT only on a fresh deployment.
var DefaultSalt = []byte("tunelock.license.v1")

// DeriveKey stretches a license key string into a fixed-length symmetric key.
// Deterministic: decryption re-derives the same key from the same inputs with
// no other state.
func DeriveKey(licenseKey string, salt []byte) ([]byte, error) {
	if licenseKey == "" {
		return nil, fmt.Errorf("derive key: empty license key")
	}
	if len(salt) == 0 {
		salt = DefaultSalt
	}
	key, err := scrypt.Key([]byte(licenseKey), salt, scryptN, scryptR, scryptP, KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}
