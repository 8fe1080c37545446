package lsk_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldkv/sealbox/codec"
	"github.com/eldkv/sealbox/internal/testutil"
	"github.com/eldkv/sealbox/lsk"
	"github.com/eldkv/sealbox/store/ebs"
	"github.com/eldkv/sealbox/store/file"
)

var stringCodec = lsk.Codec[string]{
	Encode: func(w *codec.Writer, v string) { w.WriteU32Bytes([]byte(v)) },
	Decode: func(r *codec.Reader) (string, error) {
		b, err := r.ReadU32Bytes()
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
}

var intCodec = lsk.Codec[int]{
	Encode: func(w *codec.Writer, v int) { w.WriteU64(uint64(v)) },
	Decode: func(r *codec.Reader) (int, error) {
		v, err := r.ReadU64()
		return int(v), err
	},
}

// blobCodec encodes/decodes a raw byte slice directly, for tests that need
// records of an exact, controllable on-disk size.
var blobCodec = lsk.Codec[[]byte]{
	Encode: func(w *codec.Writer, v []byte) { w.WriteU32Bytes(v) },
	Decode: func(r *codec.Reader) ([]byte, error) {
		b, err := r.ReadU32Bytes()
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	},
}

func openFile(t *testing.T, path string) *file.File {
	t.Helper()
	f, err := file.Open(path)
	require.NoError(t, err)
	return f
}

func newArchiveFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "archive.sealbox")
}

func openIntMap(t *testing.T, path string) *lsk.Map[string, int] {
	t.Helper()
	f := openFile(t, path)
	var key [32]byte
	view, err := ebs.Open(f, key)
	require.NoError(t, err)
	m, err := lsk.New(view, 0, []byte("test-salt"), stringCodec, intCodec)
	require.NoError(t, err)
	return m
}

// TestS3InsertCommitReopen: insert two keys, flush, reopen, and check both
// are present with error == 0 and one live terminator.
func TestS3InsertCommitReopen(t *testing.T) {
	path := newArchiveFile(t)

	m := openIntMap(t, path)
	err := m.Flush(func(w *lsk.Writer[string, int]) error {
		*w.At("alpha") = 1
		*w.At("beta") = 2
		return nil
	})
	require.NoError(t, err)
	require.Zero(t, m.ErrorBits())

	m2 := openIntMap(t, path)
	require.Zero(t, m2.ErrorBits())
	require.Equal(t, 2, m2.Len())
	err = m2.Read(func(r *lsk.Reader[string, int]) error {
		v, ok := r.Get("alpha")
		require.True(t, ok)
		require.Equal(t, 1, v)
		v, ok = r.Get("beta")
		require.True(t, ok)
		require.Equal(t, 2, v)
		return nil
	})
	require.NoError(t, err)
}

// TestS4CrashBeforeTerminator: commit x=1, then write (no flush) x=2 and
// stop -- reopening must see the last *committed* generation, x=1, with no
// salvage bit set.
func TestS4CrashBeforeTerminator(t *testing.T) {
	path := newArchiveFile(t)

	m := openIntMap(t, path)
	require.NoError(t, m.Flush(func(w *lsk.Writer[string, int]) error {
		*w.At("x") = 1
		return nil
	}))

	require.NoError(t, m.Write(func(w *lsk.Writer[string, int]) error {
		*w.At("x") = 2
		return nil
	}))
	// No Flush call: the process "crashes" here with x=2 only persisted,
	// never committed by a terminator.

	m2 := openIntMap(t, path)
	require.False(t, m2.ErrorBits().Has(lsk.ErrBitSalvage))
	err := m2.Read(func(r *lsk.Reader[string, int]) error {
		v, ok := r.Get("x")
		require.True(t, ok)
		require.Equal(t, 1, v)
		return nil
	})
	require.NoError(t, err)
}

func openBlobMap(t *testing.T, path string) *lsk.Map[string, []byte] {
	t.Helper()
	f := openFile(t, path)
	var key [32]byte
	view, err := ebs.Open(f, key)
	require.NoError(t, err)
	m, err := lsk.New(view, 0, []byte("test-salt"), stringCodec, blobCodec)
	require.NoError(t, err)
	return m
}

// TestS5KeyUpdateFreesOldRun: a 3-block value overwritten with a 1-block
// one must free the old 3 blocks, and a later 3-block insert must reuse
// them (best fit) instead of growing the file.
func TestS5KeyUpdateFreesOldRun(t *testing.T) {
	path := newArchiveFile(t)
	m := openBlobMap(t, path)

	big := testutil.RandomBytes(9000, 1) // spans 3 blocks of 4032 usable bytes
	require.NoError(t, m.Flush(func(w *lsk.Writer[string, []byte]) error {
		*w.At("v") = big
		return nil
	}))

	require.NoError(t, m.Flush(func(w *lsk.Writer[string, []byte]) error {
		*w.At("v") = []byte("small")
		return nil
	}))

	countBeforeInsert := countBlocksOf(t, path)
	require.NoError(t, m.Flush(func(w *lsk.Writer[string, []byte]) error {
		*w.At("w") = testutil.RandomBytes(9000, 2)
		return nil
	}))
	require.Equal(t, countBeforeInsert, countBlocksOf(t, path), "the 3-block insert should reuse the freed run")

	err := m.Read(func(r *lsk.Reader[string, []byte]) error {
		v, ok := r.Get("v")
		require.True(t, ok)
		require.Equal(t, []byte("small"), v)
		w, ok := r.Get("w")
		require.True(t, ok)
		require.Len(t, w, 9000)
		return nil
	})
	require.NoError(t, err)
}

// TestS7FreeSpaceReuseAfterChurn inserts many keys of varying size (1 to
// 4 blocks), deletes a third of them, then inserts smaller replacements
// that fit within the freed holes, and checks the container did not grow
// on the final flush.
func TestS7FreeSpaceReuseAfterChurn(t *testing.T) {
	path := newArchiveFile(t)
	m := openBlobMap(t, path)

	const n = 50
	keys := make([]string, n)
	require.NoError(t, m.Flush(func(w *lsk.Writer[string, []byte]) error {
		for i := 0; i < n; i++ {
			k := fmt.Sprintf("key-%02d", i)
			keys[i] = k
			size := 800 + (i%5)*3800 // 1 to 4 encoded blocks
			*w.At(k) = testutil.RandomBytes(size, int64(100+i))
		}
		return nil
	}))

	require.NoError(t, m.Flush(func(w *lsk.Writer[string, []byte]) error {
		for i := 0; i < n; i += 3 {
			w.Delete(keys[i])
		}
		return nil
	}))

	countBeforeReinsert := countBlocksOf(t, path)

	require.NoError(t, m.Flush(func(w *lsk.Writer[string, []byte]) error {
		count := 0
		for i := 0; i < n; i += 3 {
			count++
			if count > 20 {
				break
			}
			*w.At(fmt.Sprintf("replacement-%d", i)) = testutil.RandomBytes(800, int64(200+i))
		}
		return nil
	}))

	countAfter := countBlocksOf(t, path)
	require.Equal(t, countBeforeReinsert, countAfter, "replacements sized to fit freed holes should not grow the file")
}

func countBlocksOf(t *testing.T, path string) int64 {
	t.Helper()
	fi, err := os.Stat(path)
	require.NoError(t, err)
	return fi.Size() / 4096
}

// TestS6CombinedHashSelfCancellation checks invariant 4: after any
// sequence of updates terminated by Flush, the live-entry combined hash
// equals the terminator's stored snapshot. The map doesn't expose raw
// hash internals, so this is exercised indirectly: a reopened archive
// recovers cleanly (pass 1 agrees) after arbitrary churn, which can only
// happen if invariant 4 held at the last flush.
func TestS6CombinedHashSelfCancellation(t *testing.T) {
	path := newArchiveFile(t)
	m := openIntMap(t, path)

	require.NoError(t, m.Flush(func(w *lsk.Writer[string, int]) error {
		*w.At("a") = 1
		*w.At("b") = 2
		return nil
	}))
	require.NoError(t, m.Flush(func(w *lsk.Writer[string, int]) error {
		w.Delete("a")
		*w.At("c") = 3
		return nil
	}))

	m2 := openIntMap(t, path)
	require.Zero(t, m2.ErrorBits())
	require.Equal(t, 2, m2.Len())
}

// TestRepeatedDirtyBeforeFlushCancelsAgainstScratchBlock is the minimal
// repro for a markDirty defect where cancelling a live entry's combined
// hash contribution used loadBlock unconditionally: loadBlock only
// aliases the block a pending write actually lives at immediately after
// a finalize or recovery, not once a key has been persisted via Write
// and then dirtied again before the next Flush. Flush{x=1}, Write{x=2},
// Write{x=3} (no Flush between the last two) exercises exactly that
// window before the final Flush and reopen.
func TestRepeatedDirtyBeforeFlushCancelsAgainstScratchBlock(t *testing.T) {
	path := newArchiveFile(t)
	m := openIntMap(t, path)

	require.NoError(t, m.Flush(func(w *lsk.Writer[string, int]) error {
		*w.At("x") = 1
		return nil
	}))

	require.NoError(t, m.Write(func(w *lsk.Writer[string, int]) error {
		*w.At("x") = 2
		return nil
	}))

	require.NoError(t, m.Flush(func(w *lsk.Writer[string, int]) error {
		*w.At("x") = 3
		return nil
	}))

	m2 := openIntMap(t, path)
	require.Zero(t, m2.ErrorBits())
	err := m2.Read(func(r *lsk.Reader[string, int]) error {
		v, ok := r.Get("x")
		require.True(t, ok)
		require.Equal(t, 3, v)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteThenReopenDoesNotResurrectKey(t *testing.T) {
	path := newArchiveFile(t)
	m := openIntMap(t, path)
	require.NoError(t, m.Flush(func(w *lsk.Writer[string, int]) error {
		*w.At("gone") = 1
		return nil
	}))
	require.NoError(t, m.Flush(func(w *lsk.Writer[string, int]) error {
		w.Delete("gone")
		return nil
	}))

	m2 := openIntMap(t, path)
	err := m2.Read(func(r *lsk.Reader[string, int]) error {
		_, ok := r.Get("gone")
		require.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}
