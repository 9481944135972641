package stringdb

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// memStream is an in-memory Stream, used so low-level device tests
// don't pay for a real file per case and can run fully in parallel.
type memStream struct {
	mu   sync.Mutex
	data []byte
	pos  int64
}

func newMemStream() *memStream { return &memStream{} }

func (m *memStream) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memStream) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[off:], p)
	return len(p), nil
}

func (m *memStream) Seek(offset int64, whence int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch whence {
	case io.SeekStart:
		m.pos = offset
	case io.SeekCurrent:
		m.pos += offset
	case io.SeekEnd:
		m.pos = int64(len(m.data)) + offset
	}
	return m.pos, nil
}

func (m *memStream) Close() error { return nil }

// openTestDevice returns a Device over a fresh in-memory stream, with
// locking disabled (there is nothing to lock).
func openTestDevice(t *testing.T) *Device {
	t.Helper()
	dev, err := OpenDevice(newMemStream(), false)
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	t.Cleanup(func() { dev.Dispose(0) })
	return dev
}

// openTestDBDevice returns a DBDevice over a fresh Device.
func openTestDBDevice(t *testing.T) *DBDevice {
	t.Helper()
	dev := openTestDevice(t)
	dbd, err := NewDBDevice(dev)
	if err != nil {
		t.Fatalf("NewDBDevice: %v", err)
	}
	return dbd
}

// mustCreateTemp creates a fresh backing file under dir.
func mustCreateTemp(t *testing.T, dir string) *os.File {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(dir, "config.sdb"), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return f
}

// openTestDB returns a Database backed by a real temp file, matching
// how a caller actually uses the package (locking included).
func openTestDB(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	f, err := os.OpenFile(filepath.Join(dir, "test.sdb"), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	db, err := Open(f, Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		f.Close()
	})
	return db
}
