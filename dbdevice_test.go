// Database I/O device tests: the insert-batch protocol and the
// jump-chain walk that ReadNext performs on top of it (spec.md §4.2).
package stringdb

import "testing"

func TestInsertBatchThenReadNext(t *testing.T) {
	dbd := openTestDBDevice(t)

	items := []Item{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}
	if err := dbd.InsertBatch(items); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	dbd.Rewind()
	for _, want := range items {
		key, pos, ok, err := dbd.ReadNext()
		if err != nil {
			t.Fatalf("ReadNext: %v", err)
		}
		if !ok {
			t.Fatalf("ReadNext: ok=false, expected %q", want.Key)
		}
		if string(key) != string(want.Key) {
			t.Errorf("key = %q, want %q", key, want.Key)
		}
		value, err := dbd.ReadValue(pos)
		if err != nil {
			t.Fatalf("ReadValue: %v", err)
		}
		if string(value) != string(want.Value) {
			t.Errorf("value = %q, want %q", value, want.Value)
		}
	}
	_, _, ok, err := dbd.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext at end: %v", err)
	}
	if ok {
		t.Error("ReadNext past the last item should report ok=false")
	}
}

// TestInsertBatchEmptyDatabase exercises the spec.md §8 boundary case
// of reading an empty chain: Rewind then ReadNext should immediately
// report ok=false with no error.
func TestInsertBatchEmptyDatabase(t *testing.T) {
	dbd := openTestDBDevice(t)
	dbd.Rewind()
	_, _, ok, err := dbd.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if ok {
		t.Error("empty database: ReadNext should report ok=false")
	}
}

// TestInsertBatchIsAtomicOnBadKey checks spec.md §8 scenario 6: a
// batch containing one invalid key must write nothing at all, not a
// partial prefix of the batch.
func TestInsertBatchIsAtomicOnBadKey(t *testing.T) {
	dbd := openTestDBDevice(t)

	items := []Item{
		{Key: []byte("good"), Value: []byte("1")},
		{Key: nil, Value: []byte("2")}, // invalid: empty key
	}
	if err := dbd.InsertBatch(items); err != ErrLimit {
		t.Fatalf("InsertBatch: err = %v, want ErrLimit", err)
	}

	dbd.Rewind()
	_, _, ok, err := dbd.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext: %v", err)
	}
	if ok {
		t.Error("a rejected batch must leave the chain empty")
	}
}

// TestMultipleBatchesChainTogether verifies that separate InsertBatch
// calls link into one continuous chain via jump records, and that
// ReadNext transparently follows the jump without the caller doing
// anything special. This is the core of spec.md §4.2's "linear scan
// equivalent to jump-chain walk" property.
func TestMultipleBatchesChainTogether(t *testing.T) {
	dbd := openTestDBDevice(t)

	if err := dbd.InsertBatch([]Item{{Key: []byte("first"), Value: []byte("1")}}); err != nil {
		t.Fatalf("first InsertBatch: %v", err)
	}
	if err := dbd.InsertBatch([]Item{{Key: []byte("second"), Value: []byte("2")}}); err != nil {
		t.Fatalf("second InsertBatch: %v", err)
	}

	dbd.Rewind()
	var keys []string
	for {
		key, _, ok, err := dbd.ReadNext()
		if err != nil {
			t.Fatalf("ReadNext: %v", err)
		}
		if !ok {
			break
		}
		keys = append(keys, string(key))
	}
	if len(keys) != 2 || keys[0] != "first" || keys[1] != "second" {
		t.Errorf("keys = %v, want [first second]", keys)
	}
}

// TestOptimalReadingTimeFlagsJumpCrossing checks that the one-shot
// hint is set after crossing into a new block and clears once taken.
func TestOptimalReadingTimeFlagsJumpCrossing(t *testing.T) {
	dbd := openTestDBDevice(t)
	dbd.InsertBatch([]Item{{Key: []byte("a"), Value: []byte("1")}})
	dbd.InsertBatch([]Item{{Key: []byte("b"), Value: []byte("2")}})

	dbd.Rewind()
	dbd.ReadNext() // reads "a", no jump crossed yet
	if dbd.TakeOptimalReadingTime() {
		t.Error("no jump crossed yet; flag should be false")
	}
	dbd.ReadNext() // reads "b", crossing the jump from the first block
	if !dbd.TakeOptimalReadingTime() {
		t.Error("expected the flag after crossing a jump record")
	}
	if dbd.TakeOptimalReadingTime() {
		t.Error("TakeOptimalReadingTime should clear the flag on read")
	}
}

// TestHeadOfChainPersistsAcrossReopen confirms the header correctly
// records which jump record InsertBatch should patch next, by closing
// and reopening the device on the same stream.
func TestHeadOfChainPersistsAcrossReopen(t *testing.T) {
	stream := newMemStream()

	dev, _ := OpenDevice(stream, false)
	dbd, _ := NewDBDevice(dev)
	dbd.InsertBatch([]Item{{Key: []byte("a"), Value: []byte("1")}})
	if err := dbd.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	dev2, _ := OpenDevice(stream, false)
	dbd2, err := NewDBDevice(dev2)
	if err != nil {
		t.Fatalf("NewDBDevice (reopen): %v", err)
	}
	if err := dbd2.InsertBatch([]Item{{Key: []byte("b"), Value: []byte("2")}}); err != nil {
		t.Fatalf("InsertBatch after reopen: %v", err)
	}

	dbd2.Rewind()
	var keys []string
	for {
		key, _, ok, err := dbd2.ReadNext()
		if err != nil {
			t.Fatalf("ReadNext: %v", err)
		}
		if !ok {
			break
		}
		keys = append(keys, string(key))
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("keys after reopen = %v, want [a b]", keys)
	}
}
