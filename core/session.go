package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-sonic/core/history"
	"github.com/koscakluka/ema-sonic/core/protocol"
	"github.com/koscakluka/ema-sonic/core/transport"
)

// EventHandler receives inbound events. Handlers of one session are called
// from its inbound loop, one at a time and in arrival order.
type EventHandler func(event protocol.Event)

type toolScratch struct {
	toolUseID      string
	toolName       string
	toolUseContent string
}

// Usage holds the latest token totals the model reported.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Session is one conversation with the model over its own transport. It is
// created by [Manager.Create] and is safe for concurrent use.
type Session struct {
	id         string
	promptName string

	manager   *Manager
	transport transport.Transport
	options   SessionOptions
	queue     *outboundQueue

	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	pumpWorker    sync.WaitGroup
	inboundWorker sync.WaitGroup
	// dispatching is set while the inbound loop runs handlers for a frame.
	dispatching atomic.Bool

	persist       chan history.Turn
	persistStop   chan struct{}
	persistWorker sync.WaitGroup

	faultOnce sync.Once

	mu                      sync.Mutex
	guard                   protocolGuard
	audioContentID          string
	isActive                bool
	isPromptStartSent       bool
	isAudioContentStartSent bool
	isSystemPromptSent      bool
	closing                 bool
	closed                  bool
	scratch                 toolScratch
	turns                   turnAssembler
	history                 []history.Turn
	usage                   Usage

	handlersMu     sync.RWMutex
	handlers       map[protocol.Tag]EventHandler
	anyHandler     EventHandler
	unknownHandler EventHandler
	errorHandler   func(error)

	toolsMu       sync.Mutex
	toolsClosed   bool
	toolTasks     sync.WaitGroup
	toolsInFlight atomic.Int32
	toolCtx       context.Context
	toolCancel    context.CancelFunc
}

func newSession(ctx context.Context, manager *Manager, tr transport.Transport, options SessionOptions) *Session {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	toolCtx, toolCancel := context.WithCancel(ctx)

	return &Session{
		id:         uuid.NewString(),
		promptName: uuid.NewString(),
		manager:    manager,
		transport:  tr,
		options:    options,
		queue:      newOutboundQueue(),
		ctx:        ctx,
		cancel:     cancel,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		persist:     make(chan history.Turn, persistBufferSize),
		persistStop: make(chan struct{}),
		guard:      newProtocolGuard(),
		isActive:   true,
		turns:      newTurnAssembler(),
		handlers:   map[protocol.Tag]EventHandler{},
		toolCtx:    toolCtx,
		toolCancel: toolCancel,
	}
}

func (s *Session) start() {
	s.pumpWorker.Add(1)
	go s.runWorker("pump", &s.pumpWorker, s.pump)
	s.inboundWorker.Add(1)
	go s.runWorker("inbound", &s.inboundWorker, s.receiveLoop)
	if store := s.manager.options.historyStore; store != nil {
		s.persistWorker.Add(1)
		go s.persistTurns(store)
	}
}

func (s *Session) runWorker(name string, wg *sync.WaitGroup, run func(context.Context) error) {
	defer wg.Done()
	if err := panicSafeNamedWorker(name, run)(s.ctx); err != nil {
		s.fault(err)
	}
}

// pump writes queued events to the transport in enqueue order.
func (s *Session) pump(ctx context.Context) error {
	defer s.queue.markStopped()

	for {
		select {
		case <-s.queue.signal:
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return nil
		}

		for _, item := range s.queue.drain() {
			frame, err := protocol.Encode(item.event)
			if err != nil {
				logger.ErrorContext(ctx, "dropping unencodable event",
					"session_id", s.id,
					"tag", string(item.event.Tag()),
					"error", err)
				s.queue.markFlushed(item.seq)
				continue
			}

			if err := s.transport.Send(ctx, frame); err != nil {
				if ctx.Err() != nil || (s.isShuttingDown() && errors.Is(err, transport.ErrClosed)) {
					return nil
				}
				return fmt.Errorf("failed to send %s: %w", item.event.Tag(), err)
			}
			s.queue.markFlushed(item.seq)
		}
	}
}

// receiveLoop dispatches inbound frames in the order the transport delivers
// them.
func (s *Session) receiveLoop(ctx context.Context) error {
	for {
		frame, err := s.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || s.isShuttingDown() {
				return nil
			}
			return fmt.Errorf("failed to receive: %w", err)
		}

		event, err := s.manager.dispatcher.decode(ctx, s.id, frame)
		if err != nil {
			continue
		}
		s.dispatching.Store(true)
		s.handleInbound(ctx, event)
		s.dispatching.Store(false)
	}
}

// persistTurns appends finalized turns to the history store in the order
// they completed, off the inbound loop. Turns still queued when the session
// stops are written before it returns.
func (s *Session) persistTurns(store history.Store) {
	defer s.persistWorker.Done()

	ctx := context.WithoutCancel(s.ctx)
	appendTurn := func(turn history.Turn) {
		appendCtx, cancel := context.WithTimeout(ctx, defaultHistoryTimeout)
		defer cancel()
		if err := store.Append(appendCtx, s.id, turn); err != nil {
			logger.WarnContext(ctx, "failed to persist turn", "session_id", s.id, "error", err)
		}
	}

	for {
		select {
		case turn := <-s.persist:
			appendTurn(turn)
		case <-s.persistStop:
			for {
				select {
				case turn := <-s.persist:
					appendTurn(turn)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) fault(err error) {
	if s.isShuttingDown() {
		logger.DebugContext(s.ctx, "ignoring worker error during shutdown", "session_id", s.id, "error", err)
		return
	}
	s.faultOnce.Do(func() {
		go s.manager.handleFault(s, err)
	})
}

func (s *Session) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing || s.closed
}

func (s *Session) ID() string         { return s.id }
func (s *Session) PromptName() string { return s.promptName }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return StateClosed
	case s.closing:
		return StateClosing
	}
	return s.guard.state(int(s.toolsInFlight.Load()))
}

// IsActive reports whether the session accepts events. It turns false once
// closing starts and never turns back.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isActive
}

// Done is closed once the session is fully closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// History returns the finalized turns of this session, oldest first.
func (s *Session) History() []history.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	var turns []history.Turn
	if err := copier.CopyWithOption(&turns, s.history, copier.Option{DeepCopy: true}); err != nil {
		logger.Warn("failed to copy history", "session_id", s.id, "error", err)
		return nil
	}
	return turns
}

// OnEvent sets the handler for inbound events with the given tag, replacing
// any previous one.
func (s *Session) OnEvent(tag protocol.Tag, handler EventHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	if s.handlers != nil {
		s.handlers[tag] = handler
	}
}

// OnAnyEvent sets a handler called for every known inbound event after its
// tag handler.
func (s *Session) OnAnyEvent(handler EventHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.anyHandler = handler
}

// OnUnknownEvent sets the handler for inbound events with unrecognized tags.
func (s *Session) OnUnknownEvent(handler EventHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.unknownHandler = handler
}

// OnError sets the handler told about transport faults.
func (s *Session) OnError(handler func(error)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.errorHandler = handler
}

func (s *Session) send(batch ...protocol.Event) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing || s.closed {
		return 0, ErrSessionClosed
	}
	return s.sendLocked(batch...)
}

func (s *Session) sendLocked(batch ...protocol.Event) (uint64, error) {
	if err := s.guard.admit(batch...); err != nil {
		protocolRejectionCounter.Add(s.ctx, 1)
		logger.WarnContext(s.ctx, "refusing out of order event",
			"session_id", s.id,
			"tag", string(batch[0].Tag()),
			"error", err)
		return 0, err
	}
	return s.queue.enqueue(batch...)
}

func (s *Session) lockActive() error {
	s.mu.Lock()
	if s.closing || s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	return nil
}

// SetupSessionStart queues sessionStart with the session's inference
// configuration.
func (s *Session) SetupSessionStart() error {
	_, err := s.send(protocol.NewSessionStart(s.options.InferenceConfiguration))
	return err
}

// SetupPromptStart queues promptStart, declaring output formats and every
// registered tool. sessionStart is queued first if it was not sent yet.
func (s *Session) SetupPromptStart() error {
	if err := s.lockActive(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	batch := []protocol.Event{
		protocol.NewPromptStart(s.promptName, s.options.AudioOutputConfiguration, s.manager.toolSpecs()),
	}
	if !s.guard.sessionStarted {
		batch = append([]protocol.Event{protocol.NewSessionStart(s.options.InferenceConfiguration)}, batch...)
	}
	if _, err := s.sendLocked(batch...); err != nil {
		return err
	}
	s.isPromptStartSent = true
	return nil
}

// SetupSystemPrompt queues the system prompt as a complete text block. It has
// to be sent before audio streaming starts.
func (s *Session) SetupSystemPrompt(text string) error {
	if err := s.lockActive(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	contentName := uuid.NewString()
	if _, err := s.sendLocked(
		protocol.NewTextContentStart(s.promptName, contentName, protocol.RoleSystem, false),
		protocol.NewTextInput(s.promptName, contentName, text),
		protocol.NewContentEnd(s.promptName, contentName),
	); err != nil {
		return err
	}
	s.isSystemPromptSent = true
	return nil
}

// SetupStartAudio opens a new audio content block. A nil config uses the
// session's audio input configuration.
func (s *Session) SetupStartAudio(config *protocol.AudioConfiguration) error {
	audioConfig := s.options.AudioInputConfiguration
	if config != nil {
		audioConfig = *config
	}

	if err := s.lockActive(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	contentName := uuid.NewString()
	if _, err := s.sendLocked(protocol.NewAudioContentStart(s.promptName, contentName, audioConfig)); err != nil {
		return err
	}
	s.audioContentID = contentName
	s.isAudioContentStartSent = true
	return nil
}

// StreamAudio queues a chunk of 16-bit little-endian PCM for the open audio
// block.
func (s *Session) StreamAudio(pcm []byte) error {
	if err := s.lockActive(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if !s.isAudioContentStartSent {
		return orderError("audioInput before contentStart(AUDIO)")
	}
	_, err := s.sendLocked(protocol.NewAudioInput(s.promptName, s.audioContentID, pcm))
	return err
}

// SendText queues an interactive user text block, for typing to the model
// while audio streams.
func (s *Session) SendText(text string) error {
	if err := s.lockActive(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	contentName := uuid.NewString()
	_, err := s.sendLocked(
		protocol.NewTextContentStart(s.promptName, contentName, protocol.RoleUser, true),
		protocol.NewTextInput(s.promptName, contentName, text),
		protocol.NewContentEnd(s.promptName, contentName),
	)
	return err
}

// EndAudioContent closes the open audio block. Audio can be restarted with
// [Session.SetupStartAudio].
func (s *Session) EndAudioContent() error {
	if err := s.lockActive(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if !s.isAudioContentStartSent {
		return orderError("contentEnd without an open audio block")
	}
	if _, err := s.sendLocked(protocol.NewContentEnd(s.promptName, s.audioContentID)); err != nil {
		return err
	}
	s.isAudioContentStartSent = false
	return nil
}

func (s *Session) EndPrompt() error {
	if err := s.lockActive(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	_, err := s.sendLocked(protocol.NewPromptEnd(s.promptName))
	return err
}

// Close shuts the session down gracefully. It is safe to call more than
// once and from several goroutines.
func (s *Session) Close(ctx context.Context) error {
	return s.manager.closeSession(ctx, s)
}

// ForceClose drops the session without the shutdown sequence.
func (s *Session) ForceClose() {
	s.manager.forceCloseSession(s)
}

func (s *Session) awaitClosed(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) reportError(err error) {
	s.handlersMu.RLock()
	handler := s.errorHandler
	s.handlersMu.RUnlock()
	if handler == nil {
		return
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("error handler panicked", "session_id", s.id, "panic", recovered)
		}
	}()
	handler(err)
}
