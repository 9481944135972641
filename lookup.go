// Point lookups and enumeration built on top of the base Database:
// Get, Keys, and Len are not part of the core jump-chain protocol
// (spec.md §4.1-§4.3 only define insert and sequential iteration) but
// fall out naturally from Iter and the bloom filter (spec.md's
// supplemental-features allowance for anything the non-goals don't
// explicitly exclude).
package stringdb

import (
	"bytes"
	"iter"
)

// Get returns the value of the first record with the given key in
// insertion order, or ErrNotFound. Duplicate keys are not deduplicated
// by StringDB (there is no update-in-place or delete), so Get reports
// the oldest write; callers that need last-write-wins semantics should
// track that themselves or scan with Keys/Iter directly.
//
// The first call to Get on a Database builds an in-memory key filter
// by walking the whole chain once; subsequent calls use it to skip the
// scan entirely on a guaranteed miss. The filter is kept in sync by
// InsertRange, so later inserts never produce a false negative.
func (db *Database) Get(key []byte) ([]byte, error) {
	if err := db.ensureFilter(); err != nil {
		return nil, err
	}
	if !db.filter.Contains(key) {
		return nil, ErrNotFound
	}
	for rec, err := range db.Iter() {
		if err != nil {
			return nil, err
		}
		if bytes.Equal(rec.Key, key) {
			return rec.Loader.Load()
		}
	}
	return nil, ErrNotFound
}

// ensureFilter builds db.filter from a full scan if it does not
// already exist. Safe to call repeatedly; only the first call pays for
// the scan.
func (db *Database) ensureFilter() error {
	if db.filter != nil {
		return nil
	}
	f := newKeyFilter(db.config.HashAlgorithm)
	for rec, err := range db.Iter() {
		if err != nil {
			return err
		}
		f.Add(rec.Key)
	}
	db.filter = f
	return nil
}

// Keys returns a lazy sequence of every key in insertion order,
// including duplicates. It does not materialize any values.
func (db *Database) Keys() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for rec, err := range db.Iter() {
			if err != nil {
				return
			}
			if !yield(rec.Key) {
				return
			}
		}
	}
}

// Len counts the records currently in the chain by walking it once.
// It does not cache: a database that is still being appended to would
// otherwise report a stale count.
func (db *Database) Len() (int, error) {
	n := 0
	for _, err := range db.Iter() {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}
