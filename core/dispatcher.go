package orchestration

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-sonic/core/events"
	"github.com/koscakluka/ema-sonic/core/history"
	"github.com/koscakluka/ema-sonic/core/protocol"
)

// Dispatcher routes inbound frames to the session they belong to.
type Dispatcher struct {
	manager *Manager
}

// Dispatch decodes frame and hands it to the session's handlers. Frames that
// cannot be decoded are logged and dropped; the returned error is only
// informational.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, frame []byte) error {
	event, err := d.decode(ctx, sessionID, frame)
	if err != nil {
		return err
	}

	session, ok := d.manager.Get(sessionID)
	if !ok {
		logger.DebugContext(ctx, "dropping frame for unknown session",
			"session_id", sessionID,
			"tag", string(event.Tag()))
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	session.handleInbound(ctx, event)
	return nil
}

func (d *Dispatcher) decode(ctx context.Context, sessionID string, frame []byte) (protocol.Event, error) {
	event, err := protocol.Decode(frame)
	if err != nil {
		decodeErrorCounter.Add(ctx, 1)
		logger.WarnContext(ctx, "dropping undecodable frame", "session_id", sessionID, "error", err)
		return protocol.Event{}, err
	}
	return event, nil
}

func (s *Session) handleInbound(ctx context.Context, event protocol.Event) {
	if event.Unknown != nil {
		s.handlersMu.RLock()
		handler := s.unknownHandler
		s.handlersMu.RUnlock()
		if handler == nil {
			logger.DebugContext(ctx, "ignoring unknown event", "session_id", s.id, "tag", event.Unknown.Tag)
			return
		}
		s.invoke(ctx, event.Unknown.Tag, handler, event)
		return
	}

	switch {
	case event.ContentStart != nil:
		s.mu.Lock()
		s.turns.startBlock(event.ContentStart)
		s.mu.Unlock()

	case event.TextOutput != nil:
		s.mu.Lock()
		completed := s.turns.addText(event.TextOutput)
		s.mu.Unlock()
		if completed != nil {
			s.recordTurn(ctx, *completed)
		}

	case event.AudioOutput != nil:
		if player := s.options.Player; player != nil {
			if err := player.PushBase64(event.AudioOutput.Content); err != nil {
				logger.WarnContext(ctx, "dropping undecodable audio chunk", "session_id", s.id, "error", err)
			}
		}

	case event.ToolUse != nil:
		s.recordToolUse(event.ToolUse)

	case event.ContentEnd != nil:
		s.handleContentEnd(ctx, event.ContentEnd)

	case event.UsageEvent != nil:
		usage := Usage{
			InputTokens:  event.UsageEvent.TotalInputTokens,
			OutputTokens: event.UsageEvent.TotalOutputTokens,
			TotalTokens:  event.UsageEvent.TotalTokens,
		}
		s.mu.Lock()
		s.usage = usage
		s.mu.Unlock()
		s.manager.emit(events.NewUsageUpdated(s.id, usage.InputTokens, usage.OutputTokens, usage.TotalTokens))
	}

	tag := event.Tag()
	s.handlersMu.RLock()
	handler := s.handlers[tag]
	anyHandler := s.anyHandler
	s.handlersMu.RUnlock()

	s.invoke(ctx, string(tag), handler, event)
	s.invoke(ctx, string(tag), anyHandler, event)
}

func (s *Session) handleContentEnd(ctx context.Context, end *protocol.ContentEnd) {
	s.mu.Lock()
	contentType := end.Type
	if block, ok := s.turns.blocks[end.ContentID]; ok && contentType == "" {
		contentType = block.contentType
	}
	interrupted, completed := s.turns.endBlock(end)
	s.mu.Unlock()

	if contentType == protocol.ContentTypeTool {
		if invocation, ok := s.takeToolUse(); ok {
			s.startToolTask(ctx, invocation)
		}
	}

	if interrupted {
		// The user is talking over the assistant; drop its buffered speech
		// before anything else.
		if player := s.options.Player; player != nil {
			player.Clear()
		}
	}
	if completed != nil {
		s.recordTurn(ctx, *completed)
	}
	if interrupted {
		transcript := ""
		if completed != nil {
			transcript = completed.Text
		}
		logger.InfoContext(ctx, "assistant interrupted", "session_id", s.id)
		s.manager.emit(events.NewAssistantPlaybackInterrupted(s.id, transcript))
	}
}

func (s *Session) recordTurn(ctx context.Context, turn history.Turn) {
	s.mu.Lock()
	s.history = append(s.history, turn)
	s.mu.Unlock()

	if s.manager.options.historyStore != nil {
		select {
		case s.persist <- turn:
		default:
			logger.WarnContext(ctx, "history store is falling behind, dropping turn", "session_id", s.id)
		}
	}

	s.manager.emit(events.NewTurnCompleted(s.id, string(turn.Role), turn.Text, turn.Interrupted))
}

func (s *Session) invoke(ctx context.Context, tag string, handler EventHandler, event protocol.Event) {
	if handler == nil {
		return
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.ErrorContext(ctx, "event handler panicked",
				"session_id", s.id,
				"tag", tag,
				"panic", recovered)
		}
	}()
	handler(event)
}
