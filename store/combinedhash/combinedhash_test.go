package combinedhash_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldkv/sealbox/store/combinedhash"
	"github.com/eldkv/sealbox/store/types"
)

func TestCombineRunIsSelfCancelling(t *testing.T) {
	h := combinedhash.New([]byte("salt"))
	h.CombineRun(1, 10)
	h.CombineRun(2, 20)
	require.NotEqual(t, [combinedhash.Size]byte{}, h.Dump())

	h.CombineRun(2, 20)
	h.CombineRun(1, 10)
	require.Equal(t, [combinedhash.Size]byte{}, h.Dump())
}

func TestCombineRunIsOrderIndependent(t *testing.T) {
	a := combinedhash.New([]byte("salt"))
	a.CombineRun(1, 10)
	a.CombineRun(2, 20)
	a.CombineRun(3, 30)

	b := combinedhash.New([]byte("salt"))
	b.CombineRun(3, 30)
	b.CombineRun(1, 10)
	b.CombineRun(2, 20)

	require.Equal(t, a.Dump(), b.Dump())
}

func TestCheckAndResetRoundTrip(t *testing.T) {
	h := combinedhash.New([]byte("salt"))
	h.CombineRun(5, types.BlockIndex(7))
	snapshot := h.Dump()
	require.True(t, h.Check(snapshot))

	h.Reset()
	require.False(t, h.Check(snapshot))
	require.Equal(t, [combinedhash.Size]byte{}, h.Dump())
}

func TestDifferentSaltsProduceDifferentHashes(t *testing.T) {
	a := combinedhash.New([]byte("salt-a"))
	a.CombineRun(1, 10)

	b := combinedhash.New([]byte("salt-b"))
	b.CombineRun(1, 10)

	require.NotEqual(t, a.Dump(), b.Dump())
}
