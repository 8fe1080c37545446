// Package file is the file backend: open/read/write/truncate/allocate/
// flush on a single host file handle, UTF-8 paths, optional delete-on-
// close. It owns exactly one *os.File for its whole lifetime (os.OpenFile
// with O_RDWR|O_CREATE), since the container format is a single file
// rather than a rotating set.
package file

import (
	"fmt"
	"os"

	"github.com/eldkv/sealbox/store/types"
)

// maxReasonableSize rejects absurd sizes (anything over 1 PiB).
const maxReasonableSize = 1 << 50

// File is the host file handle backing one container. Go strings are UTF-8
// already; os.OpenFile on POSIX passes that straight through to the kernel
// and on Windows the runtime itself performs the UTF-8->UTF-16 conversion
// at the syscall boundary, so no explicit conversion step is needed here.
type File struct {
	path         string
	file         *os.File
	deleteOnClose bool
}

// Open opens path for read/write, creating it if absent.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", types.ErrIOFail, path, err)
	}
	return &File{path: path, file: f}, nil
}

// Size returns the current file size in bytes.
func (f *File) Size() (int64, error) {
	fi, err := f.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", types.ErrIOFail, f.path, err)
	}
	return fi.Size(), nil
}

// ReadAt reads len(buf) bytes starting at offset, failing if fewer are
// available (a truncated container is a corruption signal the caller
// should surface, not silently zero-fill).
func (f *File) ReadAt(buf []byte, offset int64) error {
	n, err := f.file.ReadAt(buf, offset)
	if err != nil {
		return fmt.Errorf("%w: read at %d: %v", types.ErrIOFail, offset, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: short read at %d: got %d want %d", types.ErrIOFail, offset, n, len(buf))
	}
	return nil
}

// WriteAt writes buf at offset. A short write is reported as
// ErrPartialWrite with the byte count actually written; callers decide
// whether to retry.
func (f *File) WriteAt(buf []byte, offset int64) (int, error) {
	n, err := f.file.WriteAt(buf, offset)
	if err != nil {
		return n, fmt.Errorf("%w: write at %d: %v", types.ErrIOFail, offset, err)
	}
	if n != len(buf) {
		return n, fmt.Errorf("%w: wrote %d of %d", types.ErrPartialWrite, n, len(buf))
	}
	return n, nil
}

// Flush durably syncs the file to stable storage.
func (f *File) Flush() error {
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %v", types.ErrIOFail, f.path, err)
	}
	return nil
}

// Alloc is a best-effort preallocation hint; it never changes the file's
// logical size. Go's standard library has no portable fallocate, so this
// only rejects out-of-range sizes and otherwise does nothing on every
// platform -- acceptable since it is only a performance hint, never a
// correctness requirement.
func (f *File) Alloc(bytes int64) error {
	if bytes < 0 || bytes > maxReasonableSize {
		return fmt.Errorf("%w: alloc size %d", types.ErrOutOfRange, bytes)
	}
	return nil
}

// Trunc rounds bytes up to the next block multiple and resizes the file to
// that length, growing or shrinking as needed. The caller (the EBS view)
// is responsible for sealing any newly grown region; Trunc itself only
// changes the raw file length.
func (f *File) Trunc(bytes int64) error {
	if bytes < 0 || bytes > maxReasonableSize {
		return fmt.Errorf("%w: trunc size %d", types.ErrOutOfRange, bytes)
	}
	rounded := roundUp(bytes, types.PhysicalBlockSize)
	if err := f.file.Truncate(rounded); err != nil {
		return fmt.Errorf("%w: truncate %s to %d: %v", types.ErrIOFail, f.path, rounded, err)
	}
	return nil
}

func roundUp(n, mult int64) int64 {
	if n%mult == 0 {
		return n
	}
	return (n/mult + 1) * mult
}

// SetDelete marks the file for removal on Close. On Linux this unlinks the
// path immediately -- the open file descriptor keeps the data readable/
// writable until Close drops the last reference, exactly like an
// anonymous tmpfile.
func (f *File) SetDelete() error {
	if f.deleteOnClose {
		return nil
	}
	f.deleteOnClose = true
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: unlink %s: %v", types.ErrIOFail, f.path, err)
	}
	return nil
}

// Close releases the underlying file handle.
func (f *File) Close() error {
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", types.ErrIOFail, f.path, err)
	}
	return nil
}

// Path returns the path this File was opened with.
func (f *File) Path() string { return f.path }
