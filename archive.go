// Package sealbox is a local, single-file, encrypted key/value store with
// crash consistency. Archive composes the file backend, the encrypted
// block store (store/ebs), and the log-structured keyed map (lsk) behind
// one handle, the way storethehash.go's OpenHashedBlockstore composes
// store/primary and store into one HashedBlockstore.
package sealbox

import (
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/eldkv/sealbox/lsk"
	"github.com/eldkv/sealbox/store/aead"
	"github.com/eldkv/sealbox/store/ebs"
	"github.com/eldkv/sealbox/store/file"
	"github.com/eldkv/sealbox/store/types"
)

var log = logging.Logger("sealbox")

// Archive is the top-level handle: one container file, opened, recovered,
// and ready for keyed reads and writes.
type Archive[K comparable, V any] struct {
	stateLk sync.RWMutex
	open    bool

	file *file.File
	view *ebs.View
	m    *lsk.Map[K, V]
}

// Open opens path (creating it if absent), wires the encrypted block
// store under a 256-bit key, and runs LSK recovery (§4.8) before
// returning. keyCodec/valCodec tell the map how to encode and decode K
// and V through the value encoder (§4.5).
func Open[K comparable, V any](path string, key [aead.KeySize]byte, keyCodec lsk.Codec[K], valCodec lsk.Codec[V], opts ...Option) (*Archive[K, V], error) {
	cfg := defaultConfig()
	cfg.apply(opts)

	f, err := file.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sealbox: open %s: %w", path, err)
	}

	var view *ebs.View
	if cfg.rng != nil {
		enc, cerr := aead.NewWithRand(key, cfg.rng)
		if cerr != nil {
			_ = f.Close()
			return nil, fmt.Errorf("sealbox: %w", cerr)
		}
		view, err = ebs.OpenWithCipher(f, enc)
	} else {
		view, err = ebs.Open(f, key)
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sealbox: %w", err)
	}

	m, err := lsk.New(view, cfg.containerID, cfg.salt, keyCodec, valCodec)
	if err != nil {
		_ = view.Close()
		return nil, fmt.Errorf("sealbox: %w", err)
	}

	return &Archive[K, V]{open: true, file: f, view: view, m: m}, nil
}

// Read runs f under the map's guard with read-only access (§4.8).
func (a *Archive[K, V]) Read(f func(*lsk.Reader[K, V]) error) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	return a.m.Read(f)
}

// Write runs f under the guard, persisting dirty entries on return
// without emitting a terminator (no durability barrier).
func (a *Archive[K, V]) Write(f func(*lsk.Writer[K, V]) error) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	return a.m.Write(f)
}

// WriteAndFlush runs f under the guard, persists dirty entries, then
// emits a terminator and durably flushes -- the atomic commit point.
func (a *Archive[K, V]) WriteAndFlush(f func(*lsk.Writer[K, V]) error) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	return a.m.Flush(f)
}

// Flush is a standalone durability barrier: persist dirty entries and
// emit a fresh terminator without running any mutation.
func (a *Archive[K, V]) Flush() error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	return a.m.FlushOnly()
}

// Len reports the number of live keys.
func (a *Archive[K, V]) Len() int {
	if a.m == nil {
		return 0
	}
	return a.m.Len()
}

// ErrorBits returns the accumulated §7 error bitfield.
func (a *Archive[K, V]) ErrorBits() lsk.ErrorBits {
	if a.m == nil {
		return 0
	}
	return a.m.ErrorBits()
}

func (a *Archive[K, V]) checkOpen() error {
	a.stateLk.RLock()
	defer a.stateLk.RUnlock()
	if !a.open {
		return types.ErrClosed
	}
	return nil
}

// Close runs Flush once (per §3's lifecycle) and releases the underlying
// file handle, triggering the EBS destructor semantics from §4.4
// (truncate-to-count, or delete-on-close when the container is empty).
func (a *Archive[K, V]) Close() error {
	a.stateLk.Lock()
	if !a.open {
		a.stateLk.Unlock()
		return nil
	}
	a.open = false
	a.stateLk.Unlock()

	var ferr error
	if err := a.m.FlushOnly(); err != nil {
		log.Warnw("flush on close failed", "err", err)
		ferr = err
	}
	if err := a.view.Close(); err != nil && ferr == nil {
		ferr = err
	}
	return ferr
}
