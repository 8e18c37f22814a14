package orchestration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/koscakluka/ema-sonic/core/events"
	"github.com/koscakluka/ema-sonic/core/protocol"
	"github.com/koscakluka/ema-sonic/core/tools"
	"github.com/koscakluka/ema-sonic/core/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Manager owns every live session and is the only place sessions are closed.
// It is safe for concurrent use.
type Manager struct {
	dial    transport.Dialer
	options ManagerOptions

	emit       eventEmitter
	dispatcher *Dispatcher

	mu                sync.RWMutex
	sessions          map[string]*Session
	cleanupInProgress map[string]struct{}
}

// NewManager returns a manager that opens a new transport with dial for each
// session.
func NewManager(dial transport.Dialer, opts ...ManagerOption) *Manager {
	m := &Manager{
		dial: dial,
		options: ManagerOptions{
			shutdownTimeout:   DefaultShutdownTimeout,
			shutdownStepDelay: DefaultShutdownStepDelay,
		},
		sessions:          map[string]*Session{},
		cleanupInProgress: map[string]struct{}{},
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.options.orchestrator == nil {
		m.options.orchestrator = tools.NewOrchestrator(tools.NewRegistry())
	}
	if m.options.shutdownTimeout <= 0 {
		m.options.shutdownTimeout = DefaultShutdownTimeout
	}
	if m.options.shutdownStepDelay < 0 {
		m.options.shutdownStepDelay = 0
	}

	m.emit = newCallbackEventEmitter(m.options)
	m.dispatcher = &Dispatcher{manager: m}
	return m
}

func (m *Manager) Dispatcher() *Dispatcher { return m.dispatcher }

func (m *Manager) orchestrator() *tools.Orchestrator { return m.options.orchestrator }

func (m *Manager) toolSpecs() []protocol.ToolSpec {
	return m.options.orchestrator.Registry().Specs()
}

// Create dials a transport, registers a new session and starts its workers.
// Nothing is sent until one of the Setup methods is called.
func (m *Manager) Create(ctx context.Context, opts ...SessionOption) (*Session, error) {
	ctx, span := tracer.Start(ctx, "create session")
	defer span.End()

	if m.dial == nil {
		err := errors.New("manager has no transport dialer")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	tr, err := m.dial(ctx)
	if err != nil {
		err = fmt.Errorf("failed to open transport: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open transport")
		return nil, err
	}

	options := defaultSessionOptions()
	for _, opt := range m.options.sessionDefaults {
		opt(&options)
	}
	for _, opt := range opts {
		opt(&options)
	}

	s := newSession(ctx, m, tr, options)
	span.SetAttributes(attribute.String("session.id", s.id))

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	activeSessionsCounter.Add(ctx, 1)

	s.start()

	logger.InfoContext(ctx, "session created", "session_id", s.id, "prompt_name", s.promptName)
	m.emit(events.NewSessionStarted(s.id, s.promptName))
	return s, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove drops the session from the table without closing it. The session
// keeps running and can still be shut down through its own Close.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(id)
}

func (m *Manager) removeLocked(id string) bool {
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	activeSessionsCounter.Add(context.Background(), -1)
	return true
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the ids of all registered sessions, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Close shuts the session down gracefully and removes it. Closing an unknown
// or already closed session is a no-op. Concurrent calls for the same
// session run the shutdown once; the others wait for it or for ctx.
func (m *Manager) Close(ctx context.Context, id string) error {
	s, ok := m.Get(id)
	if !ok {
		return nil
	}
	return m.closeSession(ctx, s)
}

func (m *Manager) closeSession(ctx context.Context, s *Session) error {
	if !m.beginCleanup(s) {
		return s.awaitClosed(ctx)
	}

	graceful, err := s.shutdown(ctx, true)
	m.finishCleanup(s, graceful)
	return err
}

// ForceClose shuts the session down without the end sequence. If a graceful
// close is already running, it is cut short.
func (m *Manager) ForceClose(id string) {
	if s, ok := m.Get(id); ok {
		m.forceCloseSession(s)
	}
}

func (m *Manager) forceCloseSession(s *Session) {
	if !m.beginCleanup(s) {
		s.cancel()
		return
	}

	graceful, _ := s.shutdown(context.Background(), false)
	m.finishCleanup(s, graceful)
}

// CloseAll closes every session concurrently.
func (m *Manager) CloseAll(ctx context.Context) error {
	ids := m.IDs()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := m.Close(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// beginCleanup reports whether the caller is the one to shut s down.
func (m *Manager) beginCleanup(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-s.done:
		return false
	default:
	}
	if _, inProgress := m.cleanupInProgress[s.id]; inProgress {
		return false
	}
	m.cleanupInProgress[s.id] = struct{}{}
	return true
}

func (m *Manager) finishCleanup(s *Session, graceful bool) {
	m.mu.Lock()
	m.removeLocked(s.id)
	delete(m.cleanupInProgress, s.id)
	m.mu.Unlock()

	logger.Info("session closed", "session_id", s.id, "graceful", graceful)
	m.emit(events.NewSessionClosed(s.id, graceful))
}

// handleFault tells the session's error handler and listeners about a
// transport failure, then force closes the session.
func (m *Manager) handleFault(s *Session, err error) {
	logger.Error("session faulted", "session_id", s.id, "error", err)
	s.reportError(err)
	m.emit(events.NewSessionFaulted(s.id, err.Error()))
	m.forceCloseSession(s)
}
