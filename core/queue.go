package orchestration

import (
	"context"
	"sync"

	"github.com/koscakluka/ema-sonic/core/protocol"
)

type queuedEvent struct {
	seq   uint64
	event protocol.Event
}

// outboundQueue is an unbounded FIFO with a single consumer, the session's
// pump. Sequence numbers start at 1 and are assigned in enqueue order.
type outboundQueue struct {
	mu sync.Mutex

	items      []queuedEvent
	lastSeq    uint64
	flushedSeq uint64
	closed     bool

	// signal has one slot so enqueue never blocks and the pump never misses
	// a wakeup.
	signal chan struct{}
	// flushed is closed and replaced every time flushedSeq advances.
	flushed chan struct{}
	// stopped is closed once the pump will not flush anything else.
	stopped  chan struct{}
	stopOnce sync.Once
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{
		signal:  make(chan struct{}, 1),
		flushed: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// enqueue appends the events contiguously and returns the sequence number of
// the last one.
func (q *outboundQueue) enqueue(events ...protocol.Event) (uint64, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, ErrSessionClosed
	}
	for _, event := range events {
		q.lastSeq++
		q.items = append(q.items, queuedEvent{seq: q.lastSeq, event: event})
	}
	seq := q.lastSeq
	q.mu.Unlock()

	q.signalUpdate()
	return seq, nil
}

func (q *outboundQueue) signalUpdate() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// drain takes everything queued so far.
func (q *outboundQueue) drain() []queuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

func (q *outboundQueue) markFlushed(seq uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if seq <= q.flushedSeq {
		return
	}
	q.flushedSeq = seq
	close(q.flushed)
	q.flushed = make(chan struct{})
}

// waitFlushed blocks until the pump wrote the event with sequence number seq.
func (q *outboundQueue) waitFlushed(ctx context.Context, seq uint64) error {
	for {
		q.mu.Lock()
		if q.flushedSeq >= seq {
			q.mu.Unlock()
			return nil
		}
		flushed := q.flushed
		q.mu.Unlock()

		select {
		case <-flushed:
		case <-q.stopped:
			q.mu.Lock()
			done := q.flushedSeq >= seq
			q.mu.Unlock()
			if done {
				return nil
			}
			return ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// close stops accepting events and returns how many were never flushed.
func (q *outboundQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	discarded := len(q.items)
	q.items = nil
	return discarded
}

func (q *outboundQueue) markStopped() {
	q.stopOnce.Do(func() { close(q.stopped) })
}

func (q *outboundQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
