package orchestration

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-sonic/core/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// shutdown runs at most once per session; the manager makes sure of it. With
// graceful set, the open audio block, the prompt and the session are ended
// in that order, each flushed before the next. Anything that goes wrong on
// the way downgrades to a forced shutdown.
func (s *Session) shutdown(ctx context.Context, graceful bool) (closedGracefully bool, err error) {
	ctx, span := tracer.Start(ctx, "close session")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.id),
		attribute.Bool("session.graceful", graceful),
	)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, nil
	}
	s.closing = true
	s.isActive = false
	s.mu.Unlock()

	timeout := s.manager.options.shutdownTimeout
	boundedCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// ForceClose during a graceful close cancels s.ctx, which has to abort the
	// sequence as well.
	stopAbort := context.AfterFunc(s.ctx, cancel)
	defer stopAbort()

	if stopErr := s.stopTools(boundedCtx); stopErr != nil {
		logger.WarnContext(ctx, "tool tasks still running at shutdown", "session_id", s.id, "error", stopErr)
	}

	if graceful {
		if seqErr := s.sendShutdownSequence(boundedCtx); seqErr != nil {
			graceful = false
			err = fmt.Errorf("graceful close of session %s abandoned: %w", s.id, seqErr)
			span.RecordError(err)
			span.SetStatus(codes.Error, "graceful close abandoned")
			logger.WarnContext(ctx, "forcing session close", "session_id", s.id, "error", seqErr)
		}
	}

	if discarded := s.queue.close(); discarded > 0 {
		logger.InfoContext(ctx, "discarded queued events", "session_id", s.id, "count", discarded)
	}
	s.stopOnce.Do(func() { close(s.stop) })
	s.cancel()

	// Everything below shares one deadline so a stuck transport can not hold
	// the close up.
	hardCtx, cancelHard := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancelHard()

	if waitErr := waitContext(hardCtx, func() {
		if closeErr := s.transport.Close(); closeErr != nil {
			logger.DebugContext(ctx, "failed to close transport", "session_id", s.id, "error", closeErr)
		}
	}); waitErr != nil {
		logger.WarnContext(ctx, "transport did not close", "session_id", s.id, "error", waitErr)
	}

	if waitErr := waitContext(hardCtx, s.pumpWorker.Wait); waitErr != nil {
		logger.WarnContext(ctx, "session pump did not stop", "session_id", s.id, "error", waitErr)
	}
	// A handler that closes its own session runs on the inbound loop, which
	// only returns after the handler does.
	if s.dispatching.Load() {
		logger.DebugContext(ctx, "not waiting for the inbound loop of a dispatching session", "session_id", s.id)
	} else if waitErr := waitContext(hardCtx, s.inboundWorker.Wait); waitErr != nil {
		logger.WarnContext(ctx, "session inbound loop did not stop", "session_id", s.id, "error", waitErr)
	}

	close(s.persistStop)
	if waitErr := waitContext(hardCtx, s.persistWorker.Wait); waitErr != nil {
		logger.WarnContext(ctx, "turns were still being persisted", "session_id", s.id, "error", waitErr)
	}

	s.mu.Lock()
	s.closing = false
	s.closed = true
	s.scratch = toolScratch{}
	s.turns.reset()
	s.mu.Unlock()

	s.handlersMu.Lock()
	s.handlers = nil
	s.anyHandler = nil
	s.unknownHandler = nil
	s.errorHandler = nil
	s.handlersMu.Unlock()

	close(s.done)
	return graceful, err
}

// shutdownSteps lists the end events for whatever was started, in the order
// they have to be sent.
func (s *Session) shutdownSteps() []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var steps []protocol.Event
	if s.isAudioContentStartSent {
		steps = append(steps, protocol.NewContentEnd(s.promptName, s.audioContentID))
	}
	if s.isPromptStartSent && !s.guard.promptEnded {
		steps = append(steps, protocol.NewPromptEnd(s.promptName))
	}
	if s.guard.sessionStarted && !s.guard.sessionEnded {
		steps = append(steps, protocol.NewSessionEnd())
	}
	return steps
}

func (s *Session) sendShutdownSequence(ctx context.Context) error {
	for _, step := range s.shutdownSteps() {
		s.mu.Lock()
		seq, err := s.sendLocked(step)
		if err == nil && step.ContentEnd != nil {
			s.isAudioContentStartSent = false
		}
		s.mu.Unlock()
		if err != nil {
			return err
		}

		if err := s.queue.waitFlushed(ctx, seq); err != nil {
			return fmt.Errorf("%s was not flushed: %w", step.Tag(), err)
		}
		if err := sleepContext(ctx, s.manager.options.shutdownStepDelay); err != nil {
			return err
		}
	}
	return nil
}
