// Base database and lazy iteration: turns the database device's
// stream of (key, data-position) pairs into a lazy sequence of
// (key, value-loader) pairs, and surfaces Insert/InsertRange to
// callers (spec.md §4.3).
package stringdb

import "iter"

// Loader is a lazy value handle tied to a device and a data
// position: it seeks and decodes the value on first Load and caches
// the result thereafter. A Loader must not outlive the Database it
// came from, and must be used on the same logical owner as the
// iterator that produced it, or under the query manager's
// serialization discipline (spec.md §4.3, §9).
type Loader struct {
	dbd     *DBDevice
	pos     int64
	loaded  bool
	value   []byte
	err     error
}

// Load materializes the value, caching the result so repeated calls
// are idempotent (spec.md §8 property 5) and return the same bytes
// without a second seek.
func (l *Loader) Load() ([]byte, error) {
	if !l.loaded {
		l.value, l.err = l.dbd.ReadValue(l.pos)
		l.loaded = true
	}
	return l.value, l.err
}

// Record is one (key, value-loader) pair produced by iteration.
type Record struct {
	Key    []byte
	Loader *Loader
}

// Database is the base database: a thin wrapper over a DBDevice that
// exposes Insert/InsertRange and a lazy Iter. It is not safe for
// concurrent use (spec.md §5) — only the query manager layers
// serialized concurrent access on top.
type Database struct {
	dbd        *DBDevice
	dev        *Device
	disposeDev bool // whether Close also disposes the underlying Device
	config     Config
	filter     *keyFilter // built lazily by the first Get call
}

// Open opens (or creates) a database on stream and returns the base
// Database. Composing this with NewBuffered or NewQueryManager builds
// up the rest of the stack described in spec.md §2.
func Open(stream Stream, config Config) (*Database, error) {
	config = config.withDefaults()

	dev, err := openDevice(stream, config)
	if err != nil {
		return nil, err
	}
	dbd, err := NewDBDevice(dev)
	if err != nil {
		dev.Dispose(0)
		return nil, err
	}
	return &Database{dbd: dbd, dev: dev, disposeDev: true, config: config}, nil
}

func openDevice(stream Stream, config Config) (*Device, error) {
	return OpenDevice(stream, !config.NoLock)
}

// NewDatabaseFromDevice builds a Database directly from an already
// composed DBDevice, for callers wiring the stack by hand. disposeDev
// controls whether Close also disposes the underlying device.
func NewDatabaseFromDevice(dbd *DBDevice, disposeDev bool) *Database {
	return &Database{dbd: dbd, disposeDev: disposeDev, config: Config{}.withDefaults()}
}

// Insert is InsertRange of a single item.
func (db *Database) Insert(key, value []byte) error {
	return db.InsertRange([]Item{{Key: key, Value: value}})
}

// InsertRange commits items as one atomic block, delegating directly
// to the device's insert-batch protocol. If a key filter has already
// been built (by a prior Get), the new keys are folded into it so the
// filter never goes stale relative to the chain it guards.
func (db *Database) InsertRange(items []Item) error {
	if err := db.dbd.InsertBatch(items); err != nil {
		return err
	}
	if db.filter != nil {
		for _, it := range items {
			db.filter.Add(it.Key)
		}
	}
	return nil
}

// Iter returns a lazy, restartable, single-pass-per-construction
// sequence of (key, loader) pairs in insertion order. The loader's
// Load is never invoked during iteration unless the caller calls it.
func (db *Database) Iter() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		db.dbd.Rewind()
		for {
			key, pos, ok, err := db.dbd.ReadNext()
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !ok {
				return
			}
			rec := Record{
				Key:    key,
				Loader: &Loader{dbd: db.dbd, pos: pos},
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Flush persists the current head-of-chain without closing anything.
func (db *Database) Flush() error {
	return db.dbd.Flush()
}

// Close finalizes the database: flushes the jump-chain head back
// into the header and, if this Database owns its Device (the common
// case via Open), disposes it.
func (db *Database) Close() error {
	if db.disposeDev {
		return db.dbd.Dispose()
	}
	return db.dbd.Flush()
}
