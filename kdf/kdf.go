// Package kdf derives symmetric key material from a passphrase. It mirrors
// original_source/src/to_key.cpp's master_key: a memory-hard scrypt pass
// over a fixed salt produces a 128-byte secret, and HMAC-SHA-512 labels
// that secret into per-purpose 64-byte keys on demand. The salt is taken
// byte-for-byte from to_key.cpp since spec.md leaves the exact bytes
// unspecified and only the original source is load-bearing here (see
// DESIGN.md).
package kdf

import (
	"crypto/hmac"
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"
)

// SecretSize is the width of the derived master secret.
const SecretSize = 128

// KeySize is the width of a labeled per-purpose key.
const KeySize = sha512.Size

const (
	scryptN = 1 << 19
	scryptR = 8
	scryptP = 1
)

// staticSalt is fixed rather than random: it lets two independent derivations
// of the same passphrase agree on a key without exchanging a salt out of
// band. The tradeoff (no per-install salt) is deliberate upstream.
var staticSalt = [64]byte{
	0x06, 0xCA, 0x7E, 0xA7, 0x42, 0x01, 0x65, 0xBB, 0xC1, 0xEF, 0xBB, 0x02, 0x21, 0x5B, 0x90, 0xCF,
	0x2F, 0x45, 0x53, 0x90, 0x75, 0x2D, 0x1C, 0x21, 0x6F, 0x72, 0x36, 0xF4, 0xD4, 0x12, 0xE7, 0xFA,
	0x4A, 0xDB, 0xB1, 0x52, 0x2B, 0x6C, 0xCE, 0xB5, 0x55, 0xF6, 0xA4, 0x41, 0x02, 0xFA, 0x42, 0x0C,
	0x15, 0xB0, 0xAF, 0x6C, 0x35, 0x16, 0x53, 0x0A, 0xA8, 0x9B, 0x43, 0xFA, 0x86, 0xC5, 0xAA, 0xBE,
}

// DeriveMaster runs scrypt(N=2^19, r=8, p=1) over password and the fixed
// salt, producing a 128-byte secret. At these parameters scrypt's working
// set is 128*N*r bytes (512 MiB), comfortably under the 600 MiB ceiling
// the original enforces explicitly; golang.org/x/crypto/scrypt has no
// separate memory-cap knob, so the cost parameters alone bound it here.
func DeriveMaster(password string) ([SecretSize]byte, error) {
	var secret [SecretSize]byte
	raw, err := scrypt.Key([]byte(password), staticSalt[:], scryptN, scryptR, scryptP, SecretSize)
	if err != nil {
		return secret, fmt.Errorf("kdf: scrypt: %w", err)
	}
	defer Scrub(raw)
	copy(secret[:], raw)
	return secret, nil
}

// DeriveKey labels secret with info via HMAC-SHA-512, producing a distinct
// 64-byte key per purpose from a single master secret.
func DeriveKey(secret [SecretSize]byte, info string) [KeySize]byte {
	mac := hmac.New(sha512.New, secret[:])
	mac.Write([]byte(info))
	var out [KeySize]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// ExpandKeys derives n independent 64-byte keys from secret in a single
// pass via HKDF (RFC 5869, empty salt), labeled by info. Where DeriveKey makes
// one HMAC call per purpose, ExpandKeys amortizes a whole key schedule --
// e.g. deriving per-container salts for several archives from one
// passphrase -- over one extract-then-expand stream instead of n
// independent HMAC constructions.
func ExpandKeys(secret [SecretSize]byte, info string, n int) ([][KeySize]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("kdf: expand count must be positive, got %d", n)
	}
	reader := hkdf.New(sha512.New, secret[:], nil, []byte(info))
	out := make([][KeySize]byte, n)
	for i := range out {
		if _, err := io.ReadFull(reader, out[i][:]); err != nil {
			return nil, fmt.Errorf("kdf: hkdf expand: %w", err)
		}
	}
	return out, nil
}

// Scrub zeroes a secret buffer in place. Call it on every exit path that
// holds derived key material no longer needed.
func Scrub(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ScrubArray zeroes a fixed-size secret array in place.
func ScrubArray(b *[SecretSize]byte) {
	for i := range b {
		b[i] = 0
	}
}
