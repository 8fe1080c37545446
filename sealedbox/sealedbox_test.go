package sealedbox_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldkv/sealbox/sealedbox"
)

func TestSealOpenRoundTrip(t *testing.T) {
	pub, priv, err := sealedbox.GenerateKey()
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	box, err := sealedbox.Seal(pub, plaintext)
	require.NoError(t, err)

	got, err := sealedbox.Open(priv, box)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestOpenFailsWithWrongPrivateKey(t *testing.T) {
	pub, _, err := sealedbox.GenerateKey()
	require.NoError(t, err)
	_, wrongPriv, err := sealedbox.GenerateKey()
	require.NoError(t, err)

	box, err := sealedbox.Seal(pub, []byte("secret"))
	require.NoError(t, err)

	_, err = sealedbox.Open(wrongPriv, box)
	require.Error(t, err)
}

func TestOpenRejectsShortBox(t *testing.T) {
	_, priv, err := sealedbox.GenerateKey()
	require.NoError(t, err)
	_, err = sealedbox.Open(priv, []byte("too short"))
	require.Error(t, err)
}

func TestSealUsesFreshEphemeralKeyEachTime(t *testing.T) {
	pub, priv, err := sealedbox.GenerateKey()
	require.NoError(t, err)

	box1, err := sealedbox.Seal(pub, []byte("same plaintext"))
	require.NoError(t, err)
	box2, err := sealedbox.Seal(pub, []byte("same plaintext"))
	require.NoError(t, err)

	require.NotEqual(t, box1, box2)

	p1, err := sealedbox.Open(priv, box1)
	require.NoError(t, err)
	p2, err := sealedbox.Open(priv, box2)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
}

func TestBase57EncodeDecodeRoundTrip(t *testing.T) {
	pub, _, err := sealedbox.GenerateKey()
	require.NoError(t, err)

	s := sealedbox.Base57Encode(pub)
	got, err := sealedbox.Base57Decode(s)
	require.NoError(t, err)
	require.Equal(t, pub, got)
}

func TestBase57DecodeRejectsBadInput(t *testing.T) {
	_, err := sealedbox.Base57Decode("too-short")
	require.Error(t, err)

	valid := sealedbox.Base57Encode(sealedbox.PublicKey{})
	bad := []byte(valid)
	bad[0] = '#'
	_, err = sealedbox.Base57Decode(string(bad))
	require.Error(t, err)
}
