package types

// errString is a typed string error, the same pattern storethehash.go uses
// for ErrNotSupported/ErrKeyExists: a constant that satisfies error without
// an allocation at init time.
type errString string

func (e errString) Error() string { return string(e) }

// Sentinel errors surfaced by the core, per the error-kind table in §7.
const (
	// ErrCryptoFail indicates an AES-GCM verify/init failure or RNG failure.
	ErrCryptoFail = errString("sealbox: crypto operation failed")
	// ErrIOFail indicates an underlying read/write/seek/allocate/truncate error.
	ErrIOFail = errString("sealbox: i/o operation failed")
	// ErrOutOfRange indicates a block index beyond count/limit, or an absurd size.
	ErrOutOfRange = errString("sealbox: index or size out of range")
	// ErrAllocFail indicates the free-space index is exhausted.
	ErrAllocFail = errString("sealbox: free-space allocation failed")
	// ErrCorruptSalvage indicates recovery pass 3 (salvage) engaged.
	ErrCorruptSalvage = errString("sealbox: container recovered via salvage pass")
	// ErrPartialWrite indicates write() returned fewer bytes than requested.
	ErrPartialWrite = errString("sealbox: partial write")
	// ErrClosed indicates an operation on an archive that has already been closed.
	ErrClosed = errString("sealbox: archive is closed")
	// ErrKeyNotFound indicates a read of a key with no live entry.
	ErrKeyNotFound = errString("sealbox: key not found")
)
