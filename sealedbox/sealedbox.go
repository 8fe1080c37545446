// Package sealedbox implements anonymous public-key encryption: given only
// a recipient's X25519 public key, Seal produces a ciphertext only the
// matching private key can open, with no sender identity revealed. This is
// ported from original_source/src/to_pubkey.cpp's to::pubkey::encrypt/
// decrypt, rewritten as idiomatic Go rather than translated line-by-line:
// the C++ uses a hand-rolled curve25519 ladder from util/curve25519.hpp,
// Go uses golang.org/x/crypto/curve25519 for the scalar multiplication and
// stdlib crypto/sha512, crypto/aes, crypto/cipher for the rest.
package sealedbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"

	"github.com/eldkv/sealbox/kdf"
)

// KeySize is the width of an X25519 public or private key.
const KeySize = 32

// overhead is the ephemeral public key plus the GCM tag, both of which
// frame the ciphertext in a sealed box.
const overhead = KeySize + 16

// nonceSize matches the original's fixed all-zero 12-byte GCM nonce. A
// zero nonce is only safe here because every box uses a fresh, never-reused
// ephemeral key, so the (key, nonce) pair is never repeated.
const nonceSize = 12

// PublicKey is an X25519 public key.
type PublicKey [KeySize]byte

// PrivateKey is an X25519 private key (scalar).
type PrivateKey [KeySize]byte

// GenerateKey draws a fresh X25519 key pair from a CSPRNG.
func GenerateKey() (PublicKey, PrivateKey, error) {
	var priv PrivateKey
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return PublicKey{}, PrivateKey{}, fmt.Errorf("sealedbox: rng: %w", err)
	}
	pub, err := publicFromPrivate(priv)
	if err != nil {
		return PublicKey{}, PrivateKey{}, err
	}
	return pub, priv, nil
}

func publicFromPrivate(priv PrivateKey) (PublicKey, error) {
	var pub PublicKey
	out, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, fmt.Errorf("sealedbox: derive public key: %w", err)
	}
	copy(pub[:], out)
	return pub, nil
}

func sharedKey(priv PrivateKey, pub PublicKey) ([32]byte, error) {
	var encKey [32]byte
	shared, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return encKey, fmt.Errorf("sealedbox: ecdh: %w", err)
	}
	defer kdf.Scrub(shared)
	sum := sha512.Sum512(shared)
	copy(encKey[:], sum[:32])
	return encKey, nil
}

// Seal encrypts plaintext for pub: an ephemeral X25519 key pair is
// generated, a shared key is derived via ECDH + SHA-512, and the plaintext
// is sealed under AES-256-GCM with a zero nonce and the ephemeral public
// key as additional authenticated data. The result is
// ephemeral_pub(32) || ciphertext || tag(16).
func Seal(pub PublicKey, plaintext []byte) ([]byte, error) {
	ephPub, ephPriv, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	encKey, err := sharedKey(ephPriv, pub)
	if err != nil {
		return nil, err
	}
	defer kdf.Scrub(encKey[:])

	block, err := aes.NewCipher(encKey[:])
	if err != nil {
		return nil, fmt.Errorf("sealedbox: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("sealedbox: %w", err)
	}

	var nonce [nonceSize]byte
	out := make([]byte, 0, KeySize+len(plaintext)+aead.Overhead())
	out = append(out, ephPub[:]...)
	out = aead.Seal(out, nonce[:], plaintext, ephPub[:])
	return out, nil
}

// Open decrypts a sealed box addressed to priv.
func Open(priv PrivateKey, box []byte) ([]byte, error) {
	if len(box) < overhead {
		return nil, fmt.Errorf("sealedbox: box too short: %d bytes", len(box))
	}
	var ephPub PublicKey
	copy(ephPub[:], box[:KeySize])

	encKey, err := sharedKey(priv, ephPub)
	if err != nil {
		return nil, err
	}
	defer kdf.Scrub(encKey[:])

	block, err := aes.NewCipher(encKey[:])
	if err != nil {
		return nil, fmt.Errorf("sealedbox: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("sealedbox: %w", err)
	}

	var nonce [nonceSize]byte
	plaintext, err := aead.Open(nil, nonce[:], box[KeySize:], ephPub[:])
	if err != nil {
		return nil, fmt.Errorf("sealedbox: open: %w", err)
	}
	return plaintext, nil
}
