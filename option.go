package sealbox

import (
	"io"

	"github.com/eldkv/sealbox/store/types"
)

// defaultSalt keys the combined hash when no Salt option is given. It has
// no secrecy requirement of its own -- the combined hash is a tamper-evident
// set fingerprint, not a MAC over secret data -- so a fixed default is fine
// for callers who don't need cross-archive isolation of the hash domain.
var defaultSalt = []byte("sealbox-combined-hash-v1")

// config mirrors the teacher's store/option.go functional-options struct:
// a private config plus an Option closure type, applied in Open.
type config struct {
	containerID types.ContainerID
	salt        []byte
	rng         io.Reader
}

func defaultConfig() *config {
	return &config{
		containerID: 0,
		salt:        defaultSalt,
	}
}

// Option configures an Archive at Open time.
type Option func(*config)

func (c *config) apply(opts []Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// ContainerID sets the u64 mixed into every sealed block's AAD, binding
// the archive's blocks to this identity (§3). Zero (the default) means
// "no particular identity".
func ContainerID(id uint64) Option {
	return func(c *config) {
		c.containerID = types.ContainerID(id)
	}
}

// Salt sets the key for the combined hash's HMAC-SHA-512 (§4.7). Two
// archives sharing a salt whose live sets happen to collide would produce
// the same combined hash; distinct salts segregate that space.
func Salt(salt []byte) Option {
	return func(c *config) {
		c.salt = salt
	}
}

// Rand overrides the CSPRNG used to draw block nonces. The only
// legitimate reason to set this is a deterministic test; production
// callers should leave it unset (crypto/rand.Reader).
func Rand(rng io.Reader) Option {
	return func(c *config) {
		c.rng = rng
	}
}
