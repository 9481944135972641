// Query state (subscriber side): drives one subscriber's consume
// loop against a user-supplied Query until it signals completion
// (spec.md §4.6).
package stringdb

import (
	"context"
	"errors"
	"fmt"
)

// Status is what a Query's Process returns to tell its driving loop
// whether to keep consuming.
type Status int

const (
	// StatusContinue requests the next record.
	StatusContinue Status = iota
	// StatusCompleted ends the query; RunQuery returns nil.
	StatusCompleted
)

// Query is implemented by callers of RunQuery. Process may or may
// not call request.Load — a query that only inspects keys never
// materializes a value.
type Query interface {
	Process(key []byte, request *RequestHandle) (Status, error)
}

// RunQuery subscribes q to mgr's scan and drives it until Process
// returns StatusCompleted, returns an error, or ctx is done. It
// always disposes the subscriber (and q, if it implements
// io.Closer) before returning.
func RunQuery(ctx context.Context, mgr *QueryManager, q Query) error {
	sub := mgr.Subscribe()
	defer disposeQuery(ctx, sub, q)

	if err := sub.Go(ctx); err != nil {
		return wrapCancellation(err)
	}

	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			return wrapCancellation(err)
		}
		status, err := q.Process(msg.Key, msg.Request)
		if err != nil {
			return err
		}
		if status == StatusCompleted {
			return nil
		}
	}
}

// wrapCancellation surfaces ErrCancelled alongside the context error
// that triggered it, so callers can test for either the stable
// sentinel or the specific context.Canceled/DeadlineExceeded value.
func wrapCancellation(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return err
}

type closer interface {
	Close() error
}

func disposeQuery(ctx context.Context, sub *Subscriber, q Query) {
	_ = sub.Stop(ctx)
	sub.Close()
	if c, ok := q.(closer); ok {
		c.Close()
	}
}
