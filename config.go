package stringdb

// Hash algorithms available for the optional key-existence filter
// (bloom.go). Selectable via Config.HashAlgorithm.
const (
	AlgXXHash3 = 1 // default, fastest
	AlgFNV1a   = 2 // no external dependencies
	AlgBlake2b = 3 // best distribution
)

// DefaultBufferSize is used by NewBuffered when Config.BufferSize is
// left at its zero value.
const DefaultBufferSize = 4096

// MinBufferSize is the smallest buffer capacity NewBuffered accepts;
// smaller buffers amortise too little per-batch overhead to be
// worthwhile (spec.md §4.4).
const MinBufferSize = 16

// Config holds the options that shape how a Database is opened.
type Config struct {
	// NoLock disables the exclusive OS advisory lock that Open
	// otherwise takes on the backing file (when the stream is an
	// *os.File) for the lifetime of the Device. Default false — the
	// lock is held by default.
	NoLock bool

	// HashAlgorithm selects the hash used by the optional
	// key-existence bloom filter (see bloom.go, lookup.go). Default
	// AlgXXHash3.
	HashAlgorithm int

	// BufferSize is the capacity NewBuffered uses when none is
	// passed explicitly. Default DefaultBufferSize.
	BufferSize int
}

// withDefaults fills in zero-valued fields.
func (c Config) withDefaults() Config {
	if c.HashAlgorithm == 0 {
		c.HashAlgorithm = AlgXXHash3
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	return c
}
