package freespace_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldkv/sealbox/store/freespace"
	"github.com/eldkv/sealbox/store/types"
)

func TestSentinelStateAllocatesFromZero(t *testing.T) {
	idx := freespace.New()
	require.Empty(t, idx.Intervals())

	start := idx.GetFree(10)
	require.EqualValues(t, 0, start)
}

func TestAddFreeCoalescesAdjacentIntervals(t *testing.T) {
	idx := freespace.New()
	idx.AddFree(100, 10) // [100,110)
	idx.AddFree(110, 10) // touches right edge -> [100,120)
	idx.AddFree(90, 10)  // touches left edge -> [90,120)

	got := idx.Intervals()
	require.Equal(t, [][2]uint64{{90, 30}}, got)
}

func TestGetFreeIsBestFit(t *testing.T) {
	idx := freespace.New()
	idx.AddFree(0, 5)
	idx.AddFree(100, 50)
	idx.AddFree(200, 8)

	start := idx.GetFree(6)
	require.EqualValues(t, 200, start, "best fit should prefer the smallest interval that satisfies the request")

	got := idx.Intervals()
	require.Contains(t, got, [2]uint64{0, 5})
	require.Contains(t, got, [2]uint64{100, 50})
	require.Contains(t, got, [2]uint64{206, 2})
}

func TestMarkUsedSplitsAndTrimsIntervals(t *testing.T) {
	idx := freespace.New()
	idx.AddFree(0, 100)
	idx.MarkUsed(40, 10) // carve [40,50) out of [0,100)

	got := idx.Intervals()
	require.Equal(t, [][2]uint64{{0, 40}, {50, 50}}, got)
}

// TestFreeSpacePropertyStaysDisjointAndCoalesced is invariant 7: after any
// sequence of AddFree calls over a bounded region, the resulting intervals
// are disjoint and maximally coalesced, so the whole region reduces to one
// interval once every sub-range has been freed at least once.
func TestFreeSpacePropertyStaysDisjointAndCoalesced(t *testing.T) {
	const region = 1000
	rng := rand.New(rand.NewSource(42))

	idx := freespace.New()
	idx.MarkUsed(0, uint64(1)<<32) // mark the entire address space used, isolating region

	covered := make([]bool, region)
	order := rng.Perm(region)
	for _, pos := range order {
		idx.AddFree(types.BlockIndex(pos), 1)
		covered[pos] = true
	}

	for _, iv := range idx.Intervals() {
		require.LessOrEqual(t, iv[0]+iv[1], uint64(region))
	}

	everyCovered := true
	for _, c := range covered {
		everyCovered = everyCovered && c
	}
	require.True(t, everyCovered)

	got := idx.Intervals()
	require.Len(t, got, 1, "a fully freed bounded region must coalesce into a single interval")
	require.Equal(t, [2]uint64{0, region}, got[0])
}

func TestFingerprintIsOrderIndependentOverFinalState(t *testing.T) {
	a := freespace.New()
	a.AddFree(0, 10)
	a.AddFree(20, 10)

	b := freespace.New()
	b.AddFree(20, 10)
	b.AddFree(0, 10)

	require.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintChangesWithState(t *testing.T) {
	a := freespace.New()
	a.AddFree(0, 10)

	b := freespace.New()
	b.AddFree(0, 11)

	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestGetFreeZeroPanics(t *testing.T) {
	idx := freespace.New()
	require.Panics(t, func() { idx.GetFree(0) })
}
