package aead_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldkv/sealbox/internal/testutil"
	"github.com/eldkv/sealbox/store/aead"
)

func TestSealOpenRoundTrip(t *testing.T) {
	c, err := aead.New(testutil.RandomKey(1))
	require.NoError(t, err)

	nonce, err := c.RandomNonce()
	require.NoError(t, err)
	aad := aead.AAD(7, 3)
	plaintext := testutil.RandomBytes(4064, 2)

	sealed := c.Seal(nonce, aad[:], plaintext)
	got, err := c.Open(nonce, aad[:], sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestOpenFailsOnTamperedCiphertext(t *testing.T) {
	c, err := aead.New(testutil.RandomKey(3))
	require.NoError(t, err)

	nonce, err := c.RandomNonce()
	require.NoError(t, err)
	aad := aead.AAD(1, 1)
	sealed := c.Seal(nonce, aad[:], testutil.RandomBytes(64, 4))
	sealed[0] ^= 0xFF

	_, err = c.Open(nonce, aad[:], sealed)
	require.Error(t, err)
}

func TestAADBindsContainerIDAndBlockIndex(t *testing.T) {
	a := aead.AAD(1, 2)
	b := aead.AAD(1, 3)
	c := aead.AAD(2, 2)
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
}

func TestNewWithRandUsesInjectedSource(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, aead.NonceSize*2)
	c, err := aead.NewWithRand(testutil.RandomKey(5), bytes.NewReader(seed))
	require.NoError(t, err)

	n1, err := c.RandomNonce()
	require.NoError(t, err)
	require.Equal(t, seed[:aead.NonceSize], n1[:])

	n2, err := c.RandomNonce()
	require.NoError(t, err)
	require.Equal(t, seed[aead.NonceSize:], n2[:])
}
