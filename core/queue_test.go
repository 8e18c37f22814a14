package orchestration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/koscakluka/ema-sonic/core/protocol"
)

func TestOutboundQueueKeepsBatchesContiguous(t *testing.T) {
	q := newOutboundQueue()

	first, err := q.enqueue(protocol.NewPromptEnd("a"))
	if err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	last, err := q.enqueue(
		protocol.NewTextInput("a", "b", "one"),
		protocol.NewTextInput("a", "b", "two"),
	)
	if err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if first != 1 || last != 3 {
		t.Fatalf("expected sequence numbers 1 and 3, got %d and %d", first, last)
	}

	items := q.drain()
	if len(items) != 3 {
		t.Fatalf("expected 3 queued events, got %d", len(items))
	}
	for i, item := range items {
		if item.seq != uint64(i+1) {
			t.Fatalf("expected item %d to have seq %d, got %d", i, i+1, item.seq)
		}
	}
	if items[1].event.TextInput.Content != "one" || items[2].event.TextInput.Content != "two" {
		t.Fatalf("expected batch order to be preserved")
	}
	if q.len() != 0 {
		t.Fatalf("expected drained queue to be empty, got %d", q.len())
	}
}

func TestOutboundQueueWaitFlushed(t *testing.T) {
	q := newOutboundQueue()
	seq, _ := q.enqueue(protocol.NewPromptEnd("a"), protocol.NewSessionEnd())

	done := make(chan error, 1)
	go func() {
		done <- q.waitFlushed(context.Background(), seq)
	}()

	q.markFlushed(seq - 1)
	select {
	case err := <-done:
		t.Fatalf("expected wait to block until seq %d, returned %v", seq, err)
	case <-time.After(50 * time.Millisecond):
	}

	q.markFlushed(seq)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected wait to succeed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for flush")
	}
}

func TestOutboundQueueWaitFlushedStopsWithPump(t *testing.T) {
	q := newOutboundQueue()
	seq, _ := q.enqueue(protocol.NewSessionEnd())

	q.markStopped()
	if err := q.waitFlushed(context.Background(), seq); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestOutboundQueueWaitFlushedHonorsContext(t *testing.T) {
	q := newOutboundQueue()
	seq, _ := q.enqueue(protocol.NewSessionEnd())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.waitFlushed(ctx, seq); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestOutboundQueueClose(t *testing.T) {
	q := newOutboundQueue()
	_, _ = q.enqueue(protocol.NewPromptEnd("a"), protocol.NewSessionEnd())

	if discarded := q.close(); discarded != 2 {
		t.Fatalf("expected 2 discarded events, got %d", discarded)
	}
	if _, err := q.enqueue(protocol.NewSessionEnd()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after close, got %v", err)
	}
}
