package sealedbox

import (
	"fmt"

	"github.com/eldkv/sealbox/store/endian"
)

// base57Alphabet is numbers, uppercase Latin without B/D/I/O, lowercase
// Latin without l -- the same 57-symbol set as
// original_source/src/to_pubkey.cpp's s_base57_palette.
const base57Alphabet = "0123456789ACEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var base57Index [256]int8

func init() {
	for i := range base57Index {
		base57Index[i] = -1
	}
	for i, c := range []byte(base57Alphabet) {
		base57Index[c] = int8(i)
	}
}

// Base57Encode renders a key as Base57: each 8-byte big-endian chunk maps
// to 11 characters of base57Alphabet.
func Base57Encode(key PublicKey) string {
	out := make([]byte, 0, KeySize/8*11)
	for i := 0; i < KeySize; i += 8 {
		v := endian.U64(key[i : i+8])
		var chunk [11]byte
		for j := 10; j >= 0; j-- {
			chunk[j] = base57Alphabet[v%57]
			v /= 57
		}
		out = append(out, chunk[:]...)
	}
	return string(out)
}

// Base57Decode parses a Base57-encoded key produced by Base57Encode.
func Base57Decode(s string) (PublicKey, error) {
	var key PublicKey
	if len(s) != KeySize/8*11 {
		return key, fmt.Errorf("sealedbox: base57: wrong length %d", len(s))
	}
	b := []byte(s)
	for i, c := range b {
		if base57Index[c] < 0 {
			return key, fmt.Errorf("sealedbox: base57: invalid character %q at %d", c, i)
		}
	}
	for i, p := 0, 0; i < KeySize; i, p = i+8, p+11 {
		var v uint64
		for j := 0; j < 11; j++ {
			v = v*57 + uint64(base57Index[b[p+j]])
		}
		endian.PutU64(key[i:i+8], v)
	}
	return key, nil
}
