// Database I/O device: presents the low-level Device as a linear
// stream of (key, data-position) pairs, hiding jump-record traversal,
// and implements the atomic insert-of-batch protocol (spec.md §4.2).
package stringdb

// Item is one key/value pair to be inserted.
type Item struct {
	Key   []byte
	Value []byte
}

// Cursor is the logical position of a reader traversing the jump
// chain: the current stream offset and how many jump records have
// been followed so far in this pass (spec.md §3).
type Cursor struct {
	Offset   int64
	LastJump int
}

// DBDevice composes a Device into the mid-level read/insert
// interface. It is not safe for concurrent use.
type DBDevice struct {
	dev *Device

	openJumpPos int64 // absolute offset of the last (open, unpatched) jump record; 0 if no block written yet
	jumpsFollowed int

	// optimalReadingTime is a one-shot hint raised whenever ReadNext
	// has just followed one or more jump records, meaning the next
	// read crosses a block boundary. Subscribers (query manager) may
	// use it to decide when to yield the scan lock.
	optimalReadingTime bool
}

// NewDBDevice wraps an opened Device. It reads the persisted
// head-of-chain so the next InsertBatch knows which jump record to
// patch, and positions the read cursor at the start of the record
// stream.
func NewDBDevice(dev *Device) (*DBDevice, error) {
	head, err := dev.HeadOfChain()
	if err != nil {
		return nil, err
	}
	dev.Reset()
	return &DBDevice{dev: dev, openJumpPos: head}, nil
}

// Rewind restarts a read pass from the beginning of the chain
// (offset 8). Each constructed iterator over the database calls this
// once; spec.md §4.3 iteration is "restartable, finite, single-pass
// per construction".
func (d *DBDevice) Rewind() {
	d.dev.Reset()
	d.jumpsFollowed = 0
	d.optimalReadingTime = false
}

// Cursor reports the current read position.
func (d *DBDevice) Cursor() Cursor {
	return Cursor{Offset: d.dev.Position(), LastJump: d.jumpsFollowed}
}

// ReadNext returns the next (key, data-position) pair, transparently
// following jump records. ok is false once the chain is exhausted.
func (d *DBDevice) ReadNext() (key []byte, dataPos int64, ok bool, err error) {
	crossedJump := false
	for {
		kind, err := d.dev.Peek()
		if err != nil {
			return nil, 0, false, err
		}
		switch kind {
		case kindEOF:
			d.optimalReadingTime = crossedJump
			return nil, 0, false, nil
		case kindJump:
			next, err := d.dev.ReadJump()
			if err != nil {
				return nil, 0, false, err
			}
			crossedJump = true
			if next == 0 {
				d.optimalReadingTime = crossedJump
				return nil, 0, false, nil
			}
			d.jumpsFollowed++
			d.dev.Seek(next)
		default: // kindIndex
			k, pos, err := d.dev.ReadIndex()
			if err != nil {
				return nil, 0, false, err
			}
			d.optimalReadingTime = crossedJump
			return k, pos, true, nil
		}
	}
}

// TakeOptimalReadingTime consumes the one-shot block-boundary hint:
// it reports whether the most recent ReadNext crossed one or more
// jump records, then clears the flag.
func (d *DBDevice) TakeOptimalReadingTime() bool {
	v := d.optimalReadingTime
	d.optimalReadingTime = false
	return v
}

// ReadValue performs a random-access value read. It never alters the
// sequential read cursor used by ReadNext.
func (d *DBDevice) ReadValue(p int64) ([]byte, error) {
	return d.dev.ReadValue(p)
}

// InsertBatch commits items as one atomic block: N index records, a
// trailing zero jump, then N value records, following spec.md §4.2
// exactly. On a LimitError no bytes are written — all keys and value
// lengths are validated up front.
func (d *DBDevice) InsertBatch(items []Item) error {
	if len(items) == 0 {
		return nil
	}
	for _, it := range items {
		if len(it.Key) == 0 || len(it.Key) > maxKeyLen {
			return ErrLimit
		}
		if uint64(len(it.Value)) > 0xFFFFFFFF { // largest 4-byte length prefix
			return ErrLimit
		}
	}

	offset, err := d.dev.SeekEnd()
	if err != nil {
		return err
	}

	// Step 2: patch the previously open jump record, if any, to
	// point at this new block. No effect on the very first batch.
	if d.openJumpPos != 0 {
		d.dev.Seek(d.openJumpPos)
		if err := d.dev.WriteJump(offset); err != nil {
			return err
		}
	}

	// Step 3: compute the offset of the first value record.
	valueOffset := offset
	for _, it := range items {
		valueOffset += calcIndexOffset(it.Key)
	}
	valueOffset += jumpOffsetSize

	// Step 4: write index records at the tail, each pointing at its
	// value's precomputed offset.
	d.dev.Seek(offset)
	v := valueOffset
	for _, it := range items {
		if err := d.dev.WriteIndex(it.Key, v); err != nil {
			return err
		}
		v += calcValueOffset(it.Value)
	}

	// Step 5: write a fresh open (zero) jump and remember its
	// position for the next InsertBatch to patch.
	newJumpPos := d.dev.Position()
	if err := d.dev.WriteJump(0); err != nil {
		return err
	}
	d.openJumpPos = newJumpPos

	// Step 6: write the values, in order.
	for _, it := range items {
		if err := d.dev.WriteValue(it.Value); err != nil {
			return err
		}
	}

	return nil
}

// Flush persists the current open-jump position as the head-of-chain
// header, without releasing any lock.
func (d *DBDevice) Flush() error {
	return d.dev.Flush(d.openJumpPos)
}

// Dispose flushes the head-of-chain header and releases the
// underlying device (and its file lock, if any).
func (d *DBDevice) Dispose() error {
	return d.dev.Dispose(d.openJumpPos)
}
