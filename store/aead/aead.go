// Package aead implements the authenticated block cipher sealing every
// physical block: AES-256-GCM with a non-standard 16-byte nonce, sealing
// fixed 4064-byte payloads with 16 bytes of additional authenticated data.
//
// Go's cipher.AEAD does not expose a default nonce size you can leave
// unset the way some C++ GCM bindings do; NewGCMWithNonceSize is the
// stdlib's own escape hatch for exactly this situation, so no third-party
// crypto library is wired here (see DESIGN.md).
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/eldkv/sealbox/store/types"
)

// NonceSize is the non-standard GCM nonce length used for every block.
const NonceSize = 16

// TagSize is the GCM authentication tag length.
const TagSize = 16

// KeySize is the AES-256 key length.
const KeySize = 32

// Cipher holds one AEAD context keyed at construction. It never persists
// the key; callers own the key's lifetime.
type Cipher struct {
	aead cipher.AEAD
	rng  io.Reader
}

// New builds a Cipher from a 32-byte AES-256 key, drawing nonces from
// crypto/rand.
func New(key [KeySize]byte) (*Cipher, error) {
	return NewWithRand(key, rand.Reader)
}

// NewWithRand builds a Cipher whose nonces are drawn from rng instead of
// the default CSPRNG. The only legitimate reason to override it is a
// deterministic test; callers must ensure rng is itself a CSPRNG in
// production, per §5's seeding requirement.
func NewWithRand(key [KeySize]byte, rng io.Reader) (*Cipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCryptoFail, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCryptoFail, err)
	}
	return &Cipher{aead: aead, rng: rng}, nil
}

// RandomNonce draws a fresh 16-byte nonce from c's configured source.
// Every block write must call this exactly once; reusing a nonce at the
// same block index would let an attacker detect repeated plaintext.
func (c *Cipher) RandomNonce() ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(c.rng, nonce[:]); err != nil {
		return nonce, fmt.Errorf("%w: rng: %v", types.ErrCryptoFail, err)
	}
	return nonce, nil
}

// Seal encrypts plaintext under nonce and aad, returning ciphertext||tag
// packed together the way crypto/cipher.AEAD.Seal does.
func (c *Cipher) Seal(nonce [NonceSize]byte, aad, plaintext []byte) []byte {
	return c.aead.Seal(nil, nonce[:], plaintext, aad)
}

// Open verifies and decrypts sealed (ciphertext||tag), returning the
// plaintext. Any failure is reported as types.ErrCryptoFail; the caller
// must not trust a partially-filled output buffer on error.
func (c *Cipher) Open(nonce [NonceSize]byte, aad, sealed []byte) ([]byte, error) {
	plaintext, err := c.aead.Open(nil, nonce[:], sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCryptoFail, err)
	}
	return plaintext, nil
}

// AAD builds the 16-byte additional authenticated data for a block: a
// container id followed by the block's physical index, both big-endian.
// Binding block_index into the AAD is what defeats block relocation:
// moving a sealed block to a different index invalidates it.
func AAD(containerID types.ContainerID, index types.BlockIndex) [16]byte {
	var aad [16]byte
	be64(aad[0:8], uint64(containerID))
	be64(aad[8:16], uint64(index))
	return aad
}

func be64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
