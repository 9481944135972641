// Shared concurrency primitives used by the query manager (spec.md
// §2, §9): a message pipe (bounded FIFO across goroutines), a worker
// lock (a semaphore with a distinct "relinquish" operation), and an
// event waiter (wait-for-predicate). The query manager uses a
// MessagePipe for its control channel and one per subscriber for
// delivery; each Load reply travels on its own one-shot Go channel.
// All three are built on Go channels, the idiomatic equivalent of the
// source's message-pipe abstraction.
package stringdb

import (
	"context"
	"runtime"
	"sync"
)

// MessagePipe is a bounded FIFO channel wrapper with context-aware
// Send/Receive and an idempotent Close.
type MessagePipe[T any] struct {
	ch     chan T
	once   sync.Once
}

// NewMessagePipe creates a pipe with the given capacity (0 makes it
// unbuffered/synchronous; spec.md's "bounded/unbounded" distinction
// maps to the buffer size a caller chooses).
func NewMessagePipe[T any](capacity int) *MessagePipe[T] {
	return &MessagePipe[T]{ch: make(chan T, capacity)}
}

// Send enqueues v, blocking until there is room or ctx is done.
func (p *MessagePipe[T]) Send(ctx context.Context, v T) error {
	select {
	case p.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dequeues the next value, blocking until one arrives, the
// pipe is closed, or ctx is done.
func (p *MessagePipe[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-p.ch:
		if !ok {
			return zero, ErrDisposed
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close closes the pipe. Safe to call more than once.
func (p *MessagePipe[T]) Close() {
	p.once.Do(func() { close(p.ch) })
}

// WorkerLock is a mutual-exclusion primitive with a Relinquish
// operation distinct from Release: Relinquish releases the lock and
// immediately re-acquires it, yielding the scheduler in between so a
// waiting acquirer (the manager's listener servicing a Load request)
// gets a real chance to run. This is the scan lock of spec.md §4.5.
type WorkerLock struct {
	ch chan struct{}
}

// NewWorkerLock returns an unlocked WorkerLock.
func NewWorkerLock() *WorkerLock {
	l := &WorkerLock{ch: make(chan struct{}, 1)}
	l.ch <- struct{}{}
	return l
}

// Acquire blocks until the lock is free or ctx is done.
func (l *WorkerLock) Acquire(ctx context.Context) error {
	select {
	case <-l.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the lock.
func (l *WorkerLock) Release() {
	select {
	case l.ch <- struct{}{}:
	default: // already free; Release should not double-post
	}
}

// Relinquish releases then re-acquires the lock, giving other
// goroutines blocked in Acquire a window to run in between. The
// scanner calls this between record emissions instead of holding the
// lock continuously, so it cannot starve Load requests.
func (l *WorkerLock) Relinquish(ctx context.Context) error {
	l.Release()
	runtime.Gosched()
	return l.Acquire(ctx)
}

// EventWaiter lets goroutines block until a predicate they supply
// becomes true, woken by Broadcast. It is the channel-based
// equivalent of the condition-variable wait-loop the teacher uses for
// its own state machine (db.go's blockRead/blockWrite), generalised
// so a cancellation context can interrupt the wait.
type EventWaiter struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

// NewEventWaiter returns a ready-to-use EventWaiter.
func NewEventWaiter() *EventWaiter {
	return &EventWaiter{}
}

// Wait blocks until ready() reports true or ctx is done. ready is
// re-evaluated after every Broadcast, so spurious wakeups are
// harmless.
func (w *EventWaiter) Wait(ctx context.Context, ready func() bool) error {
	for {
		// Register before checking ready, so a Broadcast that lands
		// between the check and the select is not lost.
		w.mu.Lock()
		ch := make(chan struct{})
		w.waiters = append(w.waiters, ch)
		w.mu.Unlock()

		if ready() {
			return nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Broadcast wakes every goroutine currently blocked in Wait.
func (w *EventWaiter) Broadcast() {
	w.mu.Lock()
	waiters := w.waiters
	w.waiters = nil
	w.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}
