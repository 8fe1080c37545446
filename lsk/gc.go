package lsk

import "github.com/eldkv/sealbox/store/types"

// freedRun is one block run handed from a writer's teardown to the next
// persist/finalize pass, via the stack package's lock-free LIFO. Nothing
// here actually needs lock-freedom -- the map's single guard already
// serializes every Read/Write/Flush -- but it is the natural home for the
// stack described in §4.9: a batch of newly-freed runs queued up without
// retaking the guard a second time.
type freedRun struct {
	block types.BlockIndex
	count uint64
}

// drainFreedRuns returns every run queued by writer teardown since the
// last drain to the free-space index. Called before persisting dirty
// entries so deleted runs are available for best-fit reuse in the same
// generation (S5, S7).
func (m *Map[K, V]) drainFreedRuns() {
	for {
		v, ok := m.freedRuns.Pop()
		if !ok {
			return
		}
		fr := v.(freedRun)
		m.free.AddFree(fr.block, fr.count)
	}
}
