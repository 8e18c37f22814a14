package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyEvent = errors.New("event has no populated variant")

// DecodeError is returned for frames that cannot be parsed as an event
// envelope.
type DecodeError struct {
	Tag     string
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Tag != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Tag)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Frame is the wire envelope around every event.
type Frame struct {
	Event Event `json:"event"`
}

// Encode serializes e into a single wire frame.
func Encode(e Event) ([]byte, error) {
	switch tags := e.populated(); len(tags) {
	case 0:
		return nil, ErrEmptyEvent
	case 1:
	default:
		return nil, fmt.Errorf("event has %d populated variants: %v", len(tags), tags)
	}

	data, err := json.Marshal(Frame{Event: e})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", e.Tag(), err)
	}
	return data, nil
}

// Decode parses a single wire frame. Tags outside of [Tags] are returned as
// an [UnknownEvent] rather than an error.
func Decode(data []byte) (Event, error) {
	var envelope struct {
		Event map[string]json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Event{}, &DecodeError{Message: "invalid json frame", Err: err}
	}
	if envelope.Event == nil {
		return Event{}, &DecodeError{Message: "missing event envelope"}
	}
	if len(envelope.Event) != 1 {
		return Event{}, &DecodeError{Message: fmt.Sprintf("expected exactly one event tag, got %d", len(envelope.Event))}
	}

	var (
		tag     string
		payload json.RawMessage
	)
	for k, v := range envelope.Event {
		tag, payload = k, v
	}
	if strings.TrimSpace(tag) == "" {
		return Event{}, &DecodeError{Message: "empty event tag"}
	}
	if isNull(payload) {
		return Event{}, &DecodeError{Tag: tag, Message: "null event payload"}
	}

	var e Event
	var err error
	switch Tag(tag) {
	case TagSessionStart:
		e.SessionStart, err = decodeInto[SessionStart](payload)
	case TagPromptStart:
		e.PromptStart, err = decodeInto[PromptStart](payload)
	case TagContentStart:
		e.ContentStart, err = decodeInto[ContentStart](payload)
	case TagTextInput:
		e.TextInput, err = decodeInto[TextInput](payload)
	case TagAudioInput:
		e.AudioInput, err = decodeInto[AudioInput](payload)
	case TagToolResult:
		e.ToolResult, err = decodeInto[ToolResult](payload)
	case TagContentEnd:
		e.ContentEnd, err = decodeInto[ContentEnd](payload)
	case TagPromptEnd:
		e.PromptEnd, err = decodeInto[PromptEnd](payload)
	case TagSessionEnd:
		e.SessionEnd, err = decodeInto[SessionEnd](payload)
	case TagCompletionStart:
		e.CompletionStart, err = decodeInto[CompletionStart](payload)
	case TagTextOutput:
		e.TextOutput, err = decodeInto[TextOutput](payload)
	case TagAudioOutput:
		e.AudioOutput, err = decodeInto[AudioOutput](payload)
	case TagToolUse:
		e.ToolUse, err = decodeInto[ToolUse](payload)
	case TagCompletionEnd:
		e.CompletionEnd, err = decodeInto[CompletionEnd](payload)
	case TagUsageEvent:
		e.UsageEvent, err = decodeInto[UsageEvent](payload)
	default:
		return Event{Unknown: &UnknownEvent{Tag: tag, Payload: append([]byte(nil), payload...)}}, nil
	}
	if err != nil {
		return Event{}, &DecodeError{Tag: tag, Message: "invalid event payload", Err: err}
	}

	return e, nil
}

func decodeInto[T any](payload json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func isNull(payload json.RawMessage) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
