// Buffered database: coalesces many small inserts into one
// underlying batch (spec.md §4.4).
package stringdb

import "iter"

// BufferedDatabase wraps a Database, accumulating inserts in a
// fixed-capacity buffer and flushing them as a single InsertRange on
// overflow or Close. It owns the buffer exclusively; callers must not
// interleave Iter with Insert/InsertRange (spec.md §4.4 iteration
// semantics).
type BufferedDatabase struct {
	inner        *Database
	capacity     int
	buf          []Item
	disposeInner bool
}

// NewBuffered wraps inner with a buffer of the given capacity
// (0 means inner's Config.BufferSize, which defaults to
// DefaultBufferSize). disposeInner controls whether Close also closes
// inner. Capacities below MinBufferSize are rejected.
func NewBuffered(inner *Database, bufferSize int, disposeInner bool) (*BufferedDatabase, error) {
	if bufferSize == 0 {
		bufferSize = inner.config.BufferSize
	}
	if bufferSize < MinBufferSize {
		return nil, ErrBufferTooSmall
	}
	return &BufferedDatabase{
		inner:        inner,
		capacity:     bufferSize,
		buf:          make([]Item, 0, bufferSize),
		disposeInner: disposeInner,
	}, nil
}

// Insert buffers one item, flushing first if the buffer is full.
func (b *BufferedDatabase) Insert(key, value []byte) error {
	return b.InsertRange([]Item{{Key: key, Value: value}})
}

// InsertRange buffers items, flushing whenever the buffer fills.
func (b *BufferedDatabase) InsertRange(items []Item) error {
	for _, it := range items {
		if len(b.buf) == b.capacity {
			if err := b.Flush(); err != nil {
				return err
			}
		}
		b.buf = append(b.buf, it)
	}
	return nil
}

// Flush emits any pending entries as a single inner InsertRange, then
// clears the buffer (releasing references to the buffered values).
func (b *BufferedDatabase) Flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	if err := b.inner.InsertRange(b.buf); err != nil {
		return err
	}
	clear(b.buf)
	b.buf = b.buf[:0]
	return nil
}

// Iter yields the inner database's entries first, then the currently
// buffered pending entries as (key, eager-loader) pairs — loaders
// that already hold their value, since it was never written to the
// device. Iteration must not be interleaved with insertion.
func (b *BufferedDatabase) Iter() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for rec, err := range b.inner.Iter() {
			if !yield(rec, err) {
				return
			}
			if err != nil {
				return
			}
		}
		for _, it := range b.buf {
			rec := Record{
				Key:    it.Key,
				Loader: &Loader{loaded: true, value: it.Value},
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Close flushes pending entries and, if disposeInner, closes inner.
func (b *BufferedDatabase) Close() error {
	err := b.Flush()
	if b.disposeInner {
		if cerr := b.inner.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
