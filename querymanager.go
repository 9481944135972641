// Query manager: multiplexes one streaming scan of a database to N
// concurrent subscribers, each of which may accept, reject, or
// terminate on every record, and serializes their value-load
// requests against the scan (spec.md §4.5).
package stringdb

import (
	"context"
	"iter"
	"sync"
)

// Scannable is anything a QueryManager can run a fan-out scan over —
// Database and BufferedDatabase both satisfy it.
type Scannable interface {
	Iter() iter.Seq2[Record, error]
}

type controlKind int

const (
	ctrlGo controlKind = iota
	ctrlStop
	ctrlLoad
)

type controlMsg struct {
	kind     controlKind
	sub      *Subscriber
	recordID int64
	reply    chan loadReply
}

type loadReply struct {
	value []byte
	err   error
}

// Message is what the manager delivers to an active subscriber for
// each scanned record.
type Message struct {
	RecordID int64
	Key      []byte
	Request  *RequestHandle
}

// RequestHandle lets a subscriber ask the manager to materialize the
// value of the record it was delivered with. Calling Load more than
// once is safe — the underlying Loader caches the result — but each
// call round-trips through the manager's control pipe.
type RequestHandle struct {
	mgr      *QueryManager
	recordID int64
}

// Load sends a Load{record_id} control message and awaits the reply.
func (r *RequestHandle) Load(ctx context.Context) ([]byte, error) {
	reply := make(chan loadReply, 1)
	msg := controlMsg{kind: ctrlLoad, recordID: r.recordID, reply: reply}
	if err := r.mgr.control.Send(ctx, msg); err != nil {
		return nil, err
	}
	select {
	case rep := <-reply:
		return rep.value, rep.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscriber is one registered consumer of a QueryManager's scan. It
// owns a delivery pipe the manager writes records into.
type Subscriber struct {
	mgr      *QueryManager
	delivery *MessagePipe[Message]
}

// Go adds the subscriber to the active set, eligible to receive
// records from the next emission onward (spec.md §5 ordering
// guarantee: it will see all records of a scan that starts strictly
// after this call took effect).
func (s *Subscriber) Go(ctx context.Context) error {
	return s.mgr.control.Send(ctx, controlMsg{kind: ctrlGo, sub: s})
}

// Stop removes the subscriber from the active set.
func (s *Subscriber) Stop(ctx context.Context) error {
	return s.mgr.control.Send(ctx, controlMsg{kind: ctrlStop, sub: s})
}

// Receive blocks for the next record delivered to this subscriber.
func (s *Subscriber) Receive(ctx context.Context) (Message, error) {
	return s.delivery.Receive(ctx)
}

// Close releases the subscriber's delivery pipe. Idempotent.
func (s *Subscriber) Close() {
	s.delivery.Close()
}

// QueryManager runs one logical scan cursor over a Scannable and
// broadcasts each record to every active subscriber. It is not
// itself safe to construct concurrently with Run, but Run's internal
// loops coordinate their own state via the control pipe, the active
// set mutex, and the scan lock.
type QueryManager struct {
	db      Scannable
	control *MessagePipe[controlMsg]
	lock    *WorkerLock
	waiter  *EventWaiter

	mu     sync.Mutex
	active map[*Subscriber]struct{}

	pendingMu sync.Mutex
	pending   map[int64]Record
}

// NewQueryManager returns a manager that will scan db once Run is
// called and at least one subscriber has called Go.
func NewQueryManager(db Scannable) *QueryManager {
	return &QueryManager{
		db:      db,
		control: NewMessagePipe[controlMsg](64),
		lock:    NewWorkerLock(),
		waiter:  NewEventWaiter(),
		active:  make(map[*Subscriber]struct{}),
		pending: make(map[int64]Record),
	}
}

// Subscribe registers a new subscriber handle. Call Go on it to join
// the active set.
func (m *QueryManager) Subscribe() *Subscriber {
	return &Subscriber{mgr: m, delivery: NewMessagePipe[Message](64)}
}

// Run drives the listener and scanner loops until ctx is done. It
// returns ctx's error on cancellation, or the first non-cancellation
// error either loop encountered.
func (m *QueryManager) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- m.listen(ctx) }()
	go func() { errCh <- m.scan(ctx) }()

	first := <-errCh
	second := <-errCh
	if first != nil {
		return first
	}
	return second
}

// listen services control messages: Go/Stop mutate the active set
// (Go also wakes the scanner's waiter); Load acquires the scan lock,
// resolves the record's loader, and replies only to the requester.
func (m *QueryManager) listen(ctx context.Context) error {
	for {
		msg, err := m.control.Receive(ctx)
		if err != nil {
			return err
		}
		switch msg.kind {
		case ctrlGo:
			m.mu.Lock()
			m.active[msg.sub] = struct{}{}
			m.mu.Unlock()
			m.waiter.Broadcast()
		case ctrlStop:
			m.mu.Lock()
			delete(m.active, msg.sub)
			m.mu.Unlock()
		case ctrlLoad:
			m.handleLoad(ctx, msg)
		}
	}
}

func (m *QueryManager) handleLoad(ctx context.Context, msg controlMsg) {
	if err := m.lock.Acquire(ctx); err != nil {
		msg.reply <- loadReply{err: err}
		return
	}
	defer m.lock.Release()

	m.pendingMu.Lock()
	rec, ok := m.pending[msg.recordID]
	m.pendingMu.Unlock()
	if !ok {
		msg.reply <- loadReply{err: ErrNotFound}
		return
	}
	v, err := rec.Loader.Load()
	msg.reply <- loadReply{value: v, err: err}
}

func (m *QueryManager) hasActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active) > 0
}

// scan waits for subscribers, runs one pass, and repeats. A pass
// exits on iterator end, on the active set draining to empty, or on
// cancellation; in the first two cases the outer loop re-waits and
// the next pass starts a fresh iterator with ids reset to 0.
func (m *QueryManager) scan(ctx context.Context) error {
	for {
		if err := m.waiter.Wait(ctx, m.hasActive); err != nil {
			return err
		}
		if err := m.runScanPass(ctx); err != nil {
			return err
		}
	}
}

func (m *QueryManager) runScanPass(ctx context.Context) error {
	if err := m.lock.Acquire(ctx); err != nil {
		return err
	}
	locked := true
	defer func() {
		if locked {
			m.lock.Release()
		}
	}()

	m.pendingMu.Lock()
	clear(m.pending)
	m.pendingMu.Unlock()

	var id int64
	for rec, err := range m.db.Iter() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}

		m.mu.Lock()
		if len(m.active) == 0 {
			m.mu.Unlock()
			return nil
		}
		subs := make([]*Subscriber, 0, len(m.active))
		for s := range m.active {
			subs = append(subs, s)
		}
		m.mu.Unlock()

		m.pendingMu.Lock()
		m.pending[id] = rec
		m.pendingMu.Unlock()

		msg := Message{RecordID: id, Key: rec.Key, Request: &RequestHandle{mgr: m, recordID: id}}
		for _, s := range subs {
			if !m.deliver(ctx, s, msg) {
				m.mu.Lock()
				delete(m.active, s)
				m.mu.Unlock()
			}
		}

		id++

		if err := m.lock.Relinquish(ctx); err != nil {
			locked = false
			return err
		}
	}
	return nil
}

// deliver sends msg to s, treating a panicking or closed delivery
// pipe as a subscriber-local failure rather than letting it abort the
// whole scan (spec.md §7, §8 property 8).
func (m *QueryManager) deliver(ctx context.Context, s *Subscriber, msg Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return s.delivery.Send(ctx, msg) == nil
}
