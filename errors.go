// Package stringdb provides an embeddable, single-file, append-only
// key/value store with a jump-chain on-disk format and a lazy,
// streaming read model.
package stringdb

import (
	"errors"
	"fmt"
	"io"
)

// Sentinel errors returned by database operations. These mirror the
// error kinds of the on-disk format itself: a FormatError means the
// bytes on disk don't parse, a LimitError means the caller asked for
// something the format cannot represent, and the rest describe the
// lifecycle of the in-memory handles around the file.
var (
	// ErrFormat is returned when a record cannot be decoded: an
	// unrecognised marker byte, a bad length tag, or a record
	// truncated by a short read.
	ErrFormat = errors.New("stringdb: malformed record")

	// ErrLimit is returned when a write exceeds a format-imposed
	// bound — a key longer than the maximum, or a value whose length
	// cannot be expressed by any length tag. Callers should treat
	// this as a programming error, not a transient condition.
	ErrLimit = errors.New("stringdb: value exceeds format limit")

	// ErrCancelled is returned by RunQuery, wrapped together with the
	// context's error, when its context is cancelled. QueryManager.Run
	// and its loops return the context's error itself. It is a normal
	// termination signal, not a failure.
	ErrCancelled = errors.New("stringdb: operation cancelled")

	// ErrDisposed is returned by Receive on a subscriber (or any
	// MessagePipe) whose pipe has been closed. Device, DBDevice,
	// Database and BufferedDatabase methods do not check whether they
	// have been disposed and do not return it.
	ErrDisposed = errors.New("stringdb: use of disposed resource")

	// ErrNotFound is returned by Get when no record with the given
	// key is reachable from the jump chain.
	ErrNotFound = errors.New("stringdb: key not found")

	// ErrBufferTooSmall is returned by NewBuffered when asked for a
	// capacity below MinBufferSize — too small to amortise a flush.
	ErrBufferTooSmall = errors.New("stringdb: buffer size below minimum")
)

// ioError wraps an underlying stream failure (short read, seek
// failure) with the operation that triggered it. It is surfaced
// unchanged rather than retried: the format has no recovery
// discipline for a stream that is failing. A read that runs off the
// end of the stream means the record is truncated, so it also wraps
// ErrFormat.
func ioError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("stringdb: %s: %w: %w", op, ErrFormat, err)
	}
	return fmt.Errorf("stringdb: %s: %w", op, err)
}
