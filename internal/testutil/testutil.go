// Package testutil holds small test helpers shared across sealbox's
// packages, the way the teacher's internal/testutil backs its own test
// suite with fixture generators instead of every _test.go reinventing
// them. Random bytes here only need to be unpredictable enough to
// exercise encryption/decoding paths, not cryptographically secure, so
// math/rand is used directly rather than crypto/rand -- freeing
// crypto/rand's entropy pool for the production code paths under test
// and keeping fixtures reproducible across runs.
package testutil

import "math/rand"

// RandomBytes returns n pseudo-random bytes. seq lets callers draw
// multiple independent fixtures deterministically within one test.
func RandomBytes(n int, seq int64) []byte {
	src := rand.New(rand.NewSource(seq*2654435761 + 1))
	b := make([]byte, n)
	src.Read(b)
	return b
}

// RandomKey returns a pseudo-random 32-byte AES-256 key, for tests that
// don't care about key provenance.
func RandomKey(seq int64) [32]byte {
	var k [32]byte
	copy(k[:], RandomBytes(32, seq))
	return k
}
