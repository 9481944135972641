// Query state tests (spec.md §4.6): a Query drives RunQuery until it
// reports completion, and RunQuery always disposes the subscriber
// (and the query, if closeable) on the way out.
package stringdb

import (
	"context"
	"testing"
	"time"
)

// collectingQuery gathers every key it sees and completes once it has
// seen `want` of them.
type collectingQuery struct {
	want   int
	seen   []string
	closed bool
}

func (q *collectingQuery) Process(key []byte, req *RequestHandle) (Status, error) {
	q.seen = append(q.seen, string(key))
	if len(q.seen) >= q.want {
		return StatusCompleted, nil
	}
	return StatusContinue, nil
}

func (q *collectingQuery) Close() error {
	q.closed = true
	return nil
}

func TestRunQueryStopsAtCompleted(t *testing.T) {
	db := openTestDB(t)
	if err := db.InsertRange([]Item{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}); err != nil {
		t.Fatalf("InsertRange: %v", err)
	}

	mgr := NewQueryManager(db)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- mgr.Run(ctx) }()

	q := &collectingQuery{want: 2}
	queryDone := make(chan error, 1)
	go func() { queryDone <- RunQuery(ctx, mgr, q) }()

	select {
	case err := <-queryDone:
		if err != nil {
			t.Fatalf("RunQuery: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RunQuery did not complete")
	}

	if len(q.seen) != 2 || q.seen[0] != "a" || q.seen[1] != "b" {
		t.Errorf("seen = %v, want [a b]", q.seen)
	}
	if !q.closed {
		t.Error("RunQuery did not close the query after completion")
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

// TestRunQueryReturnsOnCancellation checks that a query which never
// reports StatusCompleted is still unblocked by context cancellation,
// and still disposes the query.
func TestRunQueryReturnsOnCancellation(t *testing.T) {
	db := openTestDB(t)
	if err := db.Insert([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	mgr := NewQueryManager(db)
	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan error, 1)
	go func() { runDone <- mgr.Run(ctx) }()

	q := &collectingQuery{want: 1000} // never reached
	queryDone := make(chan error, 1)
	go func() { queryDone <- RunQuery(ctx, mgr, q) }()

	time.Sleep(20 * time.Millisecond) // let the subscriber join and see at least one record
	cancel()

	select {
	case err := <-queryDone:
		if err == nil {
			t.Fatal("RunQuery returned nil after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("RunQuery did not return after cancellation")
	}
	if !q.closed {
		t.Error("RunQuery did not close the query after cancellation")
	}

	<-runDone
}
