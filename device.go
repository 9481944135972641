// Low-level I/O device: bit-exact encode/decode of the wire format
// on a seekable byte stream (spec.md §4.1).
//
// Device knows the wire format — index records, jump records, value
// records, length encodings — and nothing about batching or
// iteration; that is layered on top by the database I/O device
// (dbdevice.go). All random access goes through ReaderAt/WriterAt, so
// the device's own notion of "cursor" (the pos field) is bookkeeping
// it owns entirely; it never depends on the underlying file's native
// seek position. read_value in particular never touches pos, which
// is what lets it run without disturbing the caller's place in the
// sequential scan (spec.md §4.1's "saves cursor ... restores cursor"
// is automatic here rather than an explicit save/seek/restore dance).
package stringdb

import (
	"io"
	"os"
)

// Stream is the minimal interface the low-level device needs from a
// backing byte store. *os.File satisfies it directly.
type Stream interface {
	io.ReaderAt
	io.WriterAt
	io.Seeker
	io.Closer
}

// Device is the low-level I/O device. It is not safe for concurrent
// use: spec.md §5 assumes a single logical owner at a time.
type Device struct {
	stream Stream
	lock   *fileLock // nil unless the stream is an *os.File with locking enabled

	pos    int64 // current cursor offset, bookkeeping only
	closed bool
}

// OpenDevice validates or initialises the 8-byte header and returns a
// Device positioned at the start of the record stream (offset 8). If
// the stream is an *os.File, an exclusive advisory lock is taken for
// the lifetime of the device (see lockfile.go); pass lockFile=false
// to skip this (e.g. for an in-memory stream in tests).
func OpenDevice(stream Stream, lockFile bool) (*Device, error) {
	d := &Device{stream: stream}

	if lockFile {
		if f, ok := stream.(*os.File); ok {
			d.lock = &fileLock{f: f}
			if err := d.lock.Lock(); err != nil {
				return nil, ioError("lock", err)
			}
		}
	}

	length, err := d.streamLen()
	if err != nil {
		d.unlockOnError()
		return nil, ioError("stat", err)
	}

	if length < headerSize {
		buf := make([]byte, headerSize)
		if _, err := stream.WriteAt(buf, 0); err != nil {
			d.unlockOnError()
			return nil, ioError("write header", err)
		}
	}

	d.pos = headerSize
	return d, nil
}

func (d *Device) unlockOnError() {
	if d.lock != nil {
		d.lock.Unlock()
	}
}

// streamLen reports the current length of the backing stream via a
// seek-to-end-and-restore, the only point the device touches the
// stream's native seek position.
func (d *Device) streamLen() (int64, error) {
	cur, err := d.stream.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := d.stream.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := d.stream.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

// HeadOfChain reads the 8-byte header: the offset of the most recent
// jump record, or 0 if the chain is empty.
func (d *Device) HeadOfChain() (int64, error) {
	buf := make([]byte, headerSize)
	n, err := d.stream.ReadAt(buf, 0)
	if err != nil && !(err == io.EOF && n == headerSize) {
		return 0, ioError("read header", err)
	}
	return getInt64(buf), nil
}

// setHeadOfChain overwrites the 8-byte header in place.
func (d *Device) setHeadOfChain(offset int64) error {
	buf := make([]byte, headerSize)
	putInt64(buf, offset)
	if _, err := d.stream.WriteAt(buf, 0); err != nil {
		return ioError("write header", err)
	}
	return nil
}

// Reset seeks the device's cursor to the first record (offset 8).
func (d *Device) Reset() {
	d.pos = headerSize
}

// Seek moves the device's cursor to an absolute offset.
func (d *Device) Seek(p int64) {
	d.pos = p
}

// SeekEnd moves the device's cursor to the tail of the stream and
// returns the new position.
func (d *Device) SeekEnd() (int64, error) {
	length, err := d.streamLen()
	if err != nil {
		return 0, ioError("seek end", err)
	}
	d.pos = length
	return d.pos, nil
}

// Position reports the device's current cursor offset.
func (d *Device) Position() int64 {
	return d.pos
}

// Peek reads one byte at the cursor without consuming it and
// classifies it per spec.md §6's EOF sentinel / marker rules.
func (d *Device) Peek() (recordKind, error) {
	var buf [1]byte
	n, err := d.stream.ReadAt(buf[:], d.pos)
	if n == 0 {
		if err == io.EOF {
			return kindEOF, nil
		}
		if err != nil {
			return kindEOF, ioError("peek", err)
		}
		return kindEOF, nil
	}
	switch buf[0] {
	case markerEOF, markerDel:
		return kindEOF, nil
	case markerJump:
		return kindJump, nil
	default:
		return kindIndex, nil
	}
}

// ReadIndex reads an index record at the cursor (which must be
// positioned at one — i.e. the last Peek returned kindIndex) and
// advances the cursor past it.
func (d *Device) ReadIndex() (key []byte, dataPos int64, err error) {
	header := make([]byte, 1+8+1)
	if _, err := d.stream.ReadAt(header, d.pos); err != nil {
		return nil, 0, ioError("read index header", err)
	}
	keyLen := int(header[0])
	if keyLen == 0 || keyLen > maxKeyLen {
		return nil, 0, ErrFormat
	}
	dataPos = getInt64(header[1:9])

	key = make([]byte, keyLen)
	if _, err := d.stream.ReadAt(key, d.pos+int64(len(header))); err != nil {
		return nil, 0, ioError("read index key", err)
	}

	d.pos += int64(len(header)) + int64(keyLen)
	return key, dataPos, nil
}

// ReadJump reads a jump record at the cursor (which must be
// positioned at one) and advances the cursor past it.
func (d *Device) ReadJump() (next int64, err error) {
	buf := make([]byte, jumpRecordSize)
	if _, err := d.stream.ReadAt(buf, d.pos); err != nil {
		return 0, ioError("read jump", err)
	}
	if buf[0] != markerJump {
		return 0, ErrFormat
	}
	d.pos += jumpRecordSize
	return getInt64(buf[1:9]), nil
}

// ReadValue reads the value record at the absolute offset p. It does
// not touch the device's cursor: random-access reads and the
// sequential scan are fully independent here.
func (d *Device) ReadValue(p int64) ([]byte, error) {
	tagBuf := make([]byte, 2) // type tag + length tag
	if _, err := d.stream.ReadAt(tagBuf, p); err != nil {
		return nil, ioError("read value header", err)
	}
	lengthTag := tagBuf[1]

	var lengthBytes int
	switch lengthTag {
	case lenTag1:
		lengthBytes = 1
	case lenTag2:
		lengthBytes = 2
	case lenTag3:
		lengthBytes = 4
	default:
		return nil, ErrFormat
	}

	lenBuf := make([]byte, lengthBytes)
	if _, err := d.stream.ReadAt(lenBuf, p+2); err != nil {
		return nil, ioError("read value length", err)
	}

	var length int
	switch lengthBytes {
	case 1:
		length = int(lenBuf[0])
	case 2:
		length = int(lenBuf[0]) | int(lenBuf[1])<<8
	case 4:
		length = int(lenBuf[0]) | int(lenBuf[1])<<8 | int(lenBuf[2])<<16 | int(lenBuf[3])<<24
	}

	value := make([]byte, length)
	if length > 0 {
		if _, err := d.stream.ReadAt(value, p+2+int64(lengthBytes)); err != nil {
			return nil, ioError("read value payload", err)
		}
	}
	return value, nil
}

// WriteJump writes a jump record (marker + next-offset) at the
// cursor, which must be at the tail, and advances the cursor past it.
func (d *Device) WriteJump(next int64) error {
	buf := make([]byte, jumpRecordSize)
	buf[0] = markerJump
	putInt64(buf[1:], next)
	if _, err := d.stream.WriteAt(buf, d.pos); err != nil {
		return ioError("write jump", err)
	}
	d.pos += jumpRecordSize
	return nil
}

// WriteIndex writes an index record at the cursor, which must be at
// the tail, and advances the cursor past it. It rejects keys outside
// [1, maxKeyLen].
func (d *Device) WriteIndex(key []byte, dataPos int64) error {
	if len(key) == 0 || len(key) > maxKeyLen {
		return ErrLimit
	}
	buf := make([]byte, 0, calcIndexOffset(key))
	buf = append(buf, byte(len(key)))
	posBuf := make([]byte, 8)
	putInt64(posBuf, dataPos)
	buf = append(buf, posBuf...)
	buf = append(buf, indexTypeTag)
	buf = append(buf, key...)

	if _, err := d.stream.WriteAt(buf, d.pos); err != nil {
		return ioError("write index", err)
	}
	d.pos += int64(len(buf))
	return nil
}

// WriteValue writes a value record at the cursor, which must be at
// the tail, and advances the cursor past it.
func (d *Device) WriteValue(value []byte) error {
	buf := make([]byte, 0, calcValueOffset(value))
	buf = append(buf, valueTypeTag)
	buf = encodeLengthPrefix(buf, len(value))
	buf = append(buf, value...)

	if _, err := d.stream.WriteAt(buf, d.pos); err != nil {
		return ioError("write value", err)
	}
	d.pos += int64(len(buf))
	return nil
}

// calcIndexOffset returns the on-disk size of an index record for
// key, used to precompute offsets without writing.
func calcIndexOffset(key []byte) int64 {
	return 1 + 8 + 1 + int64(len(key))
}

// calcValueOffset returns the on-disk size of a value record for
// value, used to precompute offsets without writing.
func calcValueOffset(value []byte) int64 {
	return 1 + int64(lengthPrefixSize(len(value))) + int64(len(value))
}

// jumpOffsetSize is the fixed on-disk size of a jump record.
const jumpOffsetSize = jumpRecordSize

// Flush writes the current head-of-chain offset back into the 8-byte
// header. It does not close the stream.
func (d *Device) Flush(headOfChain int64) error {
	return d.setHeadOfChain(headOfChain)
}

// Dispose flushes the header and releases the file lock (if any). It
// does not close the underlying stream — callers own that lifetime
// (spec.md §5's scoped-disposal model).
func (d *Device) Dispose(headOfChain int64) error {
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.Flush(headOfChain)
	if d.lock != nil {
		if uerr := d.lock.Unlock(); uerr != nil && err == nil {
			err = ioError("unlock", uerr)
		}
	}
	return err
}
