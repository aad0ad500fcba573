package bidi

import "sync"

// QueuedResult is what a registered event future resolves to: either a
// ready-to-send payload or a failure to log and skip. Re-architected per
// the design notes as an explicit tagged result rather than a bare
// value-or-panic, so the queue consumer never needs to catch a
// cross-module exception to keep going.
type QueuedResult struct {
	Payload any
	Err     error
}

// Sink receives queue payloads in registration order. It is invoked
// synchronously from the queue's own goroutine; it must not block for
// long or it will stall every event registered after it.
type Sink func(payload any)

// EventQueue preserves the order in which Add was called, even when the
// futures added to it resolve out of order (C2). Internally it is an
// ordered list of pending slots; when the head slot resolves, its
// payload is flushed to the sink and the next slot becomes the new head
// candidate. A failed slot is logged via FailureLogger and skipped —
// queue draining never applies back-pressure to a failed producer.
type EventQueue struct {
	mu      sync.Mutex
	pending []*slot
	sink    Sink
	flush   chan *slot

	// FailureLogger receives (tag, err) for any future that resolved
	// with an error. Defaults to a no-op if nil.
	FailureLogger func(tag string, err error)
}

type slot struct {
	tag      string
	done     bool
	result   QueuedResult
	resolved chan struct{}
}

// NewEventQueue creates a queue that flushes resolved payloads, in
// registration order, to sink. sink is always invoked from a single
// dedicated consumer goroutine, never from a producer's own goroutine,
// so two payloads can never reach sink concurrently regardless of which
// order their futures resolve in.
func NewEventQueue(sink Sink) *EventQueue {
	q := &EventQueue{sink: sink, flush: make(chan *slot)}
	go q.consume()
	return q
}

// consume is the queue's sole sink-calling goroutine. It receives
// already-ordered slots from drain and invokes sink strictly one at a
// time, in the order drain pushed them.
func (q *EventQueue) consume() {
	for s := range q.flush {
		if s.result.Err != nil {
			if q.FailureLogger != nil {
				q.FailureLogger(s.tag, s.result.Err)
			}
			continue
		}
		q.sink(s.result.Payload)
	}
}

// Add registers a future (represented as a function that blocks until
// the event is ready) under tag for diagnostics. The future runs on its
// own goroutine; Add returns immediately. Order is determined by the
// order in which Add is called, not by how fast each future resolves.
func (q *EventQueue) Add(future func() QueuedResult, tag string) {
	s := &slot{tag: tag, resolved: make(chan struct{})}

	q.mu.Lock()
	q.pending = append(q.pending, s)
	q.mu.Unlock()

	go func() {
		s.result = future()
		s.done = true
		close(s.resolved)
		q.drain()
	}()
}

// AddReady registers an already-resolved payload, preserving its
// position relative to futures added before and after it.
func (q *EventQueue) AddReady(payload any, tag string) {
	q.Add(func() QueuedResult { return QueuedResult{Payload: payload} }, tag)
}

// drain flushes every contiguous resolved slot starting at the head of
// the pending list, stopping at the first slot that has not resolved
// yet (preserving registration order even though it resolved out of
// order). Each popped slot is handed to the consumer goroutine via
// flush while q.mu is still held, so the send order into that channel
// exactly matches pop order even when multiple goroutines race to call
// drain at once — without that, two goroutines could each pop their
// own slot under the lock but then race to call sink directly, letting
// a later slot's payload reach sink before an earlier one's.
func (q *EventQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 || !q.pending[0].done {
			q.mu.Unlock()
			return
		}
		head := q.pending[0]
		q.pending = q.pending[1:]
		q.flush <- head
		q.mu.Unlock()
	}
}

// Len returns the number of slots still pending (not yet flushed).
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
