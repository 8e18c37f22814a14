package orchestration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-sonic/core/protocol"
	"github.com/koscakluka/ema-sonic/core/transport"
)

// fakeTransport records what the session sends and replays inbound frames
// pushed by the test.
type fakeTransport struct {
	mu           sync.Mutex
	sent         []protocol.Event
	sendErr      error
	sendsBlock   bool
	closeRelease chan struct{}

	inbound     chan []byte
	receiveErrs chan error
	closed      chan struct{}
	closeOnce   sync.Once
	closeCount  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound:     make(chan []byte, 64),
		receiveErrs: make(chan error, 1),
		closed:      make(chan struct{}),
	}
}

func (f *fakeTransport) Send(_ context.Context, frame []byte) error {
	select {
	case <-f.closed:
		return transport.ErrClosed
	default:
	}

	event, err := protocol.Decode(frame)
	if err != nil {
		return err
	}

	f.mu.Lock()
	if f.sendsBlock {
		f.mu.Unlock()
		<-f.closed
		return transport.ErrClosed
	}
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, event)
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-f.inbound:
		return frame, nil
	case err := <-f.receiveErrs:
		return nil, err
	case <-f.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closeCount++
	release := f.closeRelease
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) failSends(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// blockSends makes every following Send wait until the transport is closed,
// like a peer that stopped reading.
func (f *fakeTransport) blockSends() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendsBlock = true
}

// hangClose makes Close block until the test ends.
func (f *fakeTransport) hangClose(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeRelease = release
}

func (f *fakeTransport) sentEvents() []protocol.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Event(nil), f.sent...)
}

func (f *fakeTransport) sentTags() []protocol.Tag {
	var tags []protocol.Tag
	for _, event := range f.sentEvents() {
		tags = append(tags, event.Tag())
	}
	return tags
}

func (f *fakeTransport) countSent(tag protocol.Tag) int {
	count := 0
	for _, event := range f.sentEvents() {
		if event.Tag() == tag {
			count++
		}
	}
	return count
}

func (f *fakeTransport) deliver(t *testing.T, event protocol.Event) {
	t.Helper()

	frame, err := protocol.Encode(event)
	if err != nil {
		t.Fatalf("failed to encode inbound %s: %v", event.Tag(), err)
	}
	f.inbound <- frame
}

func (f *fakeTransport) deliverRaw(frame string) {
	f.inbound <- []byte(frame)
}

// fakeDialer hands out a new fake transport per session.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (d *fakeDialer) dial(context.Context) (transport.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tr := newFakeTransport()
	d.transports = append(d.transports, tr)
	return tr, nil
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[i]
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

func newTestManager(t *testing.T, opts ...ManagerOption) (*Manager, *fakeDialer) {
	t.Helper()

	dialer := &fakeDialer{}
	opts = append([]ManagerOption{WithShutdownStepDelay(0), WithShutdownTimeout(2 * time.Second)}, opts...)
	m := NewManager(dialer.dial, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.CloseAll(ctx)
	})
	return m, dialer
}

// startStreaming brings a fresh session up to an open audio block.
func startStreaming(t *testing.T, s *Session) {
	t.Helper()

	if err := s.SetupPromptStart(); err != nil {
		t.Fatalf("expected promptStart to be accepted, got %v", err)
	}
	if err := s.SetupSystemPrompt("You are a helpful assistant."); err != nil {
		t.Fatalf("expected system prompt to be accepted, got %v", err)
	}
	if err := s.SetupStartAudio(nil); err != nil {
		t.Fatalf("expected audio start to be accepted, got %v", err)
	}
}

func textContentStart(contentID string, role protocol.Role, stage protocol.GenerationStage) protocol.Event {
	start := &protocol.ContentStart{Type: protocol.ContentTypeText, Role: role, ContentID: contentID}
	if stage != "" {
		start.AdditionalModelFields = `{"generationStage":"` + string(stage) + `"}`
	}
	return protocol.Event{ContentStart: start}
}

func textOutput(contentID string, role protocol.Role, content string) protocol.Event {
	return protocol.Event{TextOutput: &protocol.TextOutput{ContentID: contentID, Role: role, Content: content}}
}

func contentEnd(contentID string, contentType protocol.ContentType, reason protocol.StopReason) protocol.Event {
	return protocol.Event{ContentEnd: &protocol.ContentEnd{ContentID: contentID, Type: contentType, StopReason: reason}}
}
