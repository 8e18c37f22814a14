package orchestration

import (
	"context"
	"encoding/base64"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-sonic/core/history"
	"github.com/koscakluka/ema-sonic/core/playback"
	"github.com/koscakluka/ema-sonic/core/protocol"
)

func TestBargeInClearsPlayer(t *testing.T) {
	interruptions := make(chan string, 1)
	m, dialer := newTestManager(t, WithInterruptionCallback(func(sessionID string) {
		interruptions <- sessionID
	}))

	player := playback.NewPlayer()
	s, err := m.Create(context.Background(), WithPlayer(player))
	if err != nil {
		t.Fatalf("expected session to be created, got %v", err)
	}
	tr := dialer.transport(0)

	speech := base64.StdEncoding.EncodeToString(make([]byte, 4800))
	tr.deliver(t, protocol.Event{AudioOutput: &protocol.AudioOutput{Content: speech}})
	waitForCondition(t, time.Second, "buffered speech", func() bool {
		return player.Buffered() > 0
	})

	tr.deliver(t, textContentStart("a1", protocol.RoleAssistant, protocol.GenerationStageFinal))
	tr.deliver(t, textOutput("a1", protocol.RoleAssistant, "The weather in"))
	tr.deliver(t, contentEnd("a1", protocol.ContentTypeText, protocol.StopReasonInterrupted))

	select {
	case sessionID := <-interruptions:
		if sessionID != s.ID() {
			t.Fatalf("expected interruption for %s, got %s", s.ID(), sessionID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for interruption")
	}
	if buffered := player.Buffered(); buffered != 0 {
		t.Fatalf("expected player to be cleared, got %s buffered", buffered)
	}

	turns := s.History()
	if len(turns) != 1 || !turns[0].Interrupted || turns[0].Text != "The weather in" {
		t.Fatalf("expected one interrupted turn, got %+v", turns)
	}
}

func TestDecodeErrorDoesNotStopInboundLoop(t *testing.T) {
	m, dialer := newTestManager(t)

	s, err := m.Create(context.Background())
	if err != nil {
		t.Fatalf("expected session to be created, got %v", err)
	}
	received := make(chan string, 1)
	s.OnEvent(protocol.TagTextOutput, func(event protocol.Event) {
		received <- event.TextOutput.Content
	})

	tr := dialer.transport(0)
	tr.deliverRaw("not json at all")
	tr.deliverRaw(`{"event":{"textOutput":null}}`)
	tr.deliver(t, textOutput("c1", protocol.RoleAssistant, "still here"))

	select {
	case content := <-received:
		if content != "still here" {
			t.Fatalf("expected %q, got %q", "still here", content)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event after decode errors")
	}
	if !s.IsActive() {
		t.Fatalf("expected session to stay active")
	}
}

func TestUnknownEventGoesToFallbackHandler(t *testing.T) {
	m, dialer := newTestManager(t)

	s, err := m.Create(context.Background())
	if err != nil {
		t.Fatalf("expected session to be created, got %v", err)
	}
	var anyCalls atomic.Int32
	s.OnAnyEvent(func(protocol.Event) { anyCalls.Add(1) })
	unknown := make(chan string, 1)
	s.OnUnknownEvent(func(event protocol.Event) {
		unknown <- event.Unknown.Tag
	})

	dialer.transport(0).deliverRaw(`{"event":{"futureEvent":{"value":1}}}`)

	select {
	case tag := <-unknown:
		if tag != "futureEvent" {
			t.Fatalf("expected futureEvent, got %q", tag)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for unknown event")
	}
	if anyCalls.Load() != 0 {
		t.Fatalf("expected unknown events to skip the any handler")
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	m, dialer := newTestManager(t)

	s, err := m.Create(context.Background())
	if err != nil {
		t.Fatalf("expected session to be created, got %v", err)
	}
	s.OnEvent(protocol.TagCompletionStart, func(protocol.Event) { panic("handler bug") })
	received := make(chan struct{}, 1)
	s.OnEvent(protocol.TagCompletionEnd, func(protocol.Event) { received <- struct{}{} })

	tr := dialer.transport(0)
	tr.deliver(t, protocol.Event{CompletionStart: &protocol.CompletionStart{CompletionID: "c"}})
	tr.deliver(t, protocol.Event{CompletionEnd: &protocol.CompletionEnd{CompletionID: "c"}})

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event after handler panic")
	}
}

func TestTurnsAreRecordedAndPersisted(t *testing.T) {
	store := history.NewMemoryStore()
	completed := make(chan history.Turn, 2)
	m, dialer := newTestManager(t,
		WithHistoryStore(store),
		WithTurnCallback(func(_ string, turn history.Turn) { completed <- turn }),
	)

	s, err := m.Create(context.Background())
	if err != nil {
		t.Fatalf("expected session to be created, got %v", err)
	}
	tr := dialer.transport(0)

	tr.deliver(t, textContentStart("u1", protocol.RoleUser, ""))
	tr.deliver(t, textOutput("u1", protocol.RoleUser, "What's the weather in Seattle?"))
	tr.deliver(t, contentEnd("u1", protocol.ContentTypeText, protocol.StopReasonEndTurn))
	tr.deliver(t, textContentStart("a1", protocol.RoleAssistant, protocol.GenerationStageSpeculative))
	tr.deliver(t, textOutput("a1", protocol.RoleAssistant, "draft"))
	tr.deliver(t, contentEnd("a1", protocol.ContentTypeText, protocol.StopReasonPartialTurn))
	tr.deliver(t, textContentStart("a2", protocol.RoleAssistant, protocol.GenerationStageFinal))
	tr.deliver(t, textOutput("a2", protocol.RoleAssistant, "It is 52 degrees."))
	tr.deliver(t, contentEnd("a2", protocol.ContentTypeText, protocol.StopReasonEndTurn))

	for i := 0; i < 2; i++ {
		select {
		case <-completed:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for turn %d", i)
		}
	}

	turns := s.History()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %+v", turns)
	}
	if turns[0].Role != protocol.RoleUser || turns[1].Role != protocol.RoleAssistant {
		t.Fatalf("expected user then assistant, got %s then %s", turns[0].Role, turns[1].Role)
	}
	if turns[1].Text != "It is 52 degrees." {
		t.Fatalf("expected final assistant text, got %q", turns[1].Text)
	}

	turns[0].Text = "changed"
	if s.History()[0].Text == "changed" {
		t.Fatalf("expected history to be returned as a copy")
	}

	waitForCondition(t, 2*time.Second, "persisted turns", func() bool {
		stored, err := store.Turns(context.Background(), s.ID())
		return err == nil && len(stored) == 2
	})
}

// gatedStore holds every Append until the gate is opened.
type gatedStore struct {
	*history.MemoryStore
	gate    chan struct{}
	pending atomic.Int32
}

func (g *gatedStore) Append(ctx context.Context, sessionID string, turn history.Turn) error {
	g.pending.Add(1)
	defer g.pending.Add(-1)
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.MemoryStore.Append(ctx, sessionID, turn)
}

func TestSlowHistoryStoreDoesNotDelayBargeIn(t *testing.T) {
	store := &gatedStore{MemoryStore: history.NewMemoryStore(), gate: make(chan struct{})}
	interruptions := make(chan struct{}, 1)
	m, dialer := newTestManager(t,
		WithHistoryStore(store),
		WithInterruptionCallback(func(string) { interruptions <- struct{}{} }),
	)

	player := playback.NewPlayer()
	s, err := m.Create(context.Background(), WithPlayer(player))
	if err != nil {
		t.Fatalf("expected session to be created, got %v", err)
	}
	tr := dialer.transport(0)

	tr.deliver(t, textContentStart("u1", protocol.RoleUser, ""))
	tr.deliver(t, textOutput("u1", protocol.RoleUser, "Tell me a story."))
	tr.deliver(t, contentEnd("u1", protocol.ContentTypeText, protocol.StopReasonEndTurn))
	waitForCondition(t, time.Second, "stuck append", func() bool {
		return store.pending.Load() == 1
	})

	speech := base64.StdEncoding.EncodeToString(make([]byte, 4800))
	tr.deliver(t, protocol.Event{AudioOutput: &protocol.AudioOutput{Content: speech}})
	tr.deliver(t, textContentStart("a1", protocol.RoleAssistant, protocol.GenerationStageFinal))
	tr.deliver(t, textOutput("a1", protocol.RoleAssistant, "Once upon"))
	tr.deliver(t, contentEnd("a1", protocol.ContentTypeText, protocol.StopReasonInterrupted))

	select {
	case <-interruptions:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("expected barge-in while the history store is stuck")
	}
	if buffered := player.Buffered(); buffered != 0 {
		t.Fatalf("expected player to be cleared, got %s buffered", buffered)
	}

	close(store.gate)
	waitForCondition(t, 2*time.Second, "persisted turns", func() bool {
		stored, err := store.Turns(context.Background(), s.ID())
		return err == nil && len(stored) == 2
	})
	stored, _ := store.Turns(context.Background(), s.ID())
	if stored[0].Text != "Tell me a story." || !stored[1].Interrupted {
		t.Fatalf("expected turns persisted in order, got %+v", stored)
	}
}

func TestInvalidAudioOutputIsDropped(t *testing.T) {
	m, dialer := newTestManager(t)

	player := playback.NewPlayer()
	s, err := m.Create(context.Background(), WithPlayer(player))
	if err != nil {
		t.Fatalf("expected session to be created, got %v", err)
	}
	tr := dialer.transport(0)

	var seen atomic.Int32
	s.OnEvent(protocol.TagAudioOutput, func(protocol.Event) { seen.Add(1) })
	tr.deliver(t, protocol.Event{AudioOutput: &protocol.AudioOutput{Content: "not base64!"}})
	tr.deliver(t, protocol.Event{AudioOutput: &protocol.AudioOutput{Content: base64.StdEncoding.EncodeToString(make([]byte, 480))}})

	waitForCondition(t, time.Second, "both audio events", func() bool {
		return seen.Load() == 2
	})
	if got := player.Buffered(); got != 10*time.Millisecond {
		t.Fatalf("expected only the valid chunk to be buffered, got %s", got)
	}
	if !s.IsActive() {
		t.Fatalf("expected session to stay active")
	}
}

func TestUsageIsTracked(t *testing.T) {
	m, dialer := newTestManager(t)

	s, err := m.Create(context.Background())
	if err != nil {
		t.Fatalf("expected session to be created, got %v", err)
	}
	dialer.transport(0).deliver(t, protocol.Event{UsageEvent: &protocol.UsageEvent{
		TotalInputTokens:  120,
		TotalOutputTokens: 30,
		TotalTokens:       150,
	}})

	waitForCondition(t, time.Second, "usage update", func() bool {
		return s.Usage().TotalTokens == 150
	})
	if usage := s.Usage(); usage.InputTokens != 120 || usage.OutputTokens != 30 {
		t.Fatalf("expected 120/30 tokens, got %+v", usage)
	}
}

func TestDispatchUnknownSession(t *testing.T) {
	m := NewManager(nil)

	frame, err := protocol.Encode(textOutput("c", protocol.RoleAssistant, "hi"))
	if err != nil {
		t.Fatalf("expected frame to encode, got %v", err)
	}
	if err := m.Dispatcher().Dispatch(context.Background(), "missing", frame); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
