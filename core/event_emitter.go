package orchestration

import (
	"errors"

	"github.com/koscakluka/ema-sonic/core/events"
	"github.com/koscakluka/ema-sonic/core/history"
	"github.com/koscakluka/ema-sonic/core/protocol"
)

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

func newCallbackEventEmitter(opts ManagerOptions) eventEmitter {
	if opts.onEvent == nil && opts.onFault == nil && opts.onTurn == nil &&
		opts.onInterruption == nil && opts.onToolCall == nil {
		return noopEventEmitter
	}

	return func(event events.Event) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("event callback panicked", "kind", string(event.Kind()), "panic", recovered)
			}
		}()

		switch typedEvent := event.(type) {
		case events.SessionFaulted:
			if opts.onFault != nil {
				opts.onFault(typedEvent.SessionID(), errors.New(typedEvent.Error))
			}
		case events.TurnCompleted:
			if opts.onTurn != nil {
				opts.onTurn(typedEvent.SessionID(), history.Turn{
					Role:        protocol.Role(typedEvent.Role),
					Text:        typedEvent.Text,
					Interrupted: typedEvent.Interrupted,
					CompletedAt: typedEvent.Timestamp(),
				})
			}
		case events.AssistantPlaybackInterrupted:
			if opts.onInterruption != nil {
				opts.onInterruption(typedEvent.SessionID())
			}
		case events.ToolCallCompleted:
			if opts.onToolCall != nil {
				opts.onToolCall(typedEvent.SessionID(), typedEvent.Name, false)
			}
		case events.ToolCallFailed:
			if opts.onToolCall != nil {
				opts.onToolCall(typedEvent.SessionID(), typedEvent.Name, true)
			}
		}

		if opts.onEvent != nil {
			opts.onEvent(event)
		}
	}
}
