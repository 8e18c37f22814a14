package orchestration

import (
	"errors"
	"fmt"

	"github.com/koscakluka/ema-sonic/core/protocol"
)

var (
	// ErrProtocolOrder is returned when an outbound event would break the
	// ordering the model expects. The session stays usable.
	ErrProtocolOrder   = errors.New("protocol order violation")
	ErrSessionClosed   = errors.New("session closed")
	ErrSessionNotFound = errors.New("session not found")
)

type State int

const (
	StatePending State = iota
	StateSessionStarted
	StatePromptStarted
	StateSystemPromptSent
	StateAudioReady
	StateStreaming
	StateToolInFlight
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateSessionStarted:
		return "SESSION_STARTED"
	case StatePromptStarted:
		return "PROMPT_STARTED"
	case StateSystemPromptSent:
		return "SYSTEM_PROMPT_SENT"
	case StateAudioReady:
		return "AUDIO_READY"
	case StateStreaming:
		return "STREAMING"
	case StateToolInFlight:
		return "TOOL_IN_FLIGHT"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type openContent struct {
	contentType protocol.ContentType
	role        protocol.Role
}

// protocolGuard tracks what has been sent on a session and refuses outbound
// events that would break ordering. It is not safe for concurrent use.
type protocolGuard struct {
	sessionStarted   bool
	promptStarted    bool
	systemPromptSent bool
	audioStarted     bool
	audioChunks      int
	promptEnded      bool
	sessionEnded     bool

	open    map[string]openContent
	retired map[string]struct{}
}

func newProtocolGuard() protocolGuard {
	return protocolGuard{
		open:    map[string]openContent{},
		retired: map[string]struct{}{},
	}
}

func (g *protocolGuard) clone() protocolGuard {
	c := *g
	c.open = make(map[string]openContent, len(g.open))
	for name, content := range g.open {
		c.open[name] = content
	}
	c.retired = make(map[string]struct{}, len(g.retired))
	for name := range g.retired {
		c.retired[name] = struct{}{}
	}
	return c
}

// admit applies the whole batch or none of it.
func (g *protocolGuard) admit(batch ...protocol.Event) error {
	if len(batch) == 1 {
		return g.apply(batch[0])
	}

	next := g.clone()
	for _, event := range batch {
		if err := next.apply(event); err != nil {
			return err
		}
	}
	*g = next
	return nil
}

func orderError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolOrder, fmt.Sprintf(format, args...))
}

// apply validates a single event and records it. Nothing is recorded when an
// error is returned.
func (g *protocolGuard) apply(event protocol.Event) error {
	if g.sessionEnded {
		return orderError("%s after sessionEnd", event.Tag())
	}

	switch {
	case event.SessionStart != nil:
		if g.sessionStarted {
			return orderError("sessionStart already sent")
		}
		g.sessionStarted = true

	case event.PromptStart != nil:
		if !g.sessionStarted {
			return orderError("promptStart before sessionStart")
		}
		if g.promptStarted {
			return orderError("promptStart already sent")
		}
		g.promptStarted = true

	case event.ContentStart != nil:
		return g.applyContentStart(event.ContentStart)

	case event.TextInput != nil:
		return g.requireOpen("textInput", event.TextInput.ContentName, protocol.ContentTypeText)

	case event.AudioInput != nil:
		if err := g.requireOpen("audioInput", event.AudioInput.ContentName, protocol.ContentTypeAudio); err != nil {
			return err
		}
		g.audioChunks++

	case event.ToolResult != nil:
		return g.requireOpen("toolResult", event.ToolResult.ContentName, protocol.ContentTypeTool)

	case event.ContentEnd != nil:
		name := event.ContentEnd.ContentName
		content, ok := g.open[name]
		if !ok {
			return orderError("contentEnd for content %q that is not open", name)
		}
		delete(g.open, name)
		g.retired[name] = struct{}{}
		if content.contentType == protocol.ContentTypeText && content.role == protocol.RoleSystem {
			g.systemPromptSent = true
		}
		if content.contentType == protocol.ContentTypeAudio {
			g.audioChunks = 0
		}

	case event.PromptEnd != nil:
		if !g.promptStarted || g.promptEnded {
			return orderError("promptEnd without an open prompt")
		}
		if len(g.open) > 0 {
			return orderError("promptEnd with %d content blocks still open", len(g.open))
		}
		g.promptEnded = true

	case event.SessionEnd != nil:
		if !g.sessionStarted {
			return orderError("sessionEnd before sessionStart")
		}
		if g.promptStarted && !g.promptEnded {
			return orderError("sessionEnd before promptEnd")
		}
		g.sessionEnded = true

	default:
		return orderError("%q is not an outbound event", event.Tag())
	}

	return nil
}

func (g *protocolGuard) applyContentStart(start *protocol.ContentStart) error {
	name := start.ContentName
	switch {
	case !g.promptStarted || g.promptEnded:
		return orderError("contentStart outside of an open prompt")
	case name == "":
		return orderError("contentStart without a content name")
	case g.isOpen(name):
		return orderError("content %q is already open", name)
	case g.isRetired(name):
		return orderError("content name %q was already used", name)
	}

	switch start.Type {
	case protocol.ContentTypeText:
		if start.Role == protocol.RoleSystem {
			if g.audioStarted {
				return orderError("system prompt after audio started")
			}
		} else if !g.systemPromptSent {
			return orderError("text content before the system prompt completed")
		}
	case protocol.ContentTypeAudio:
		if !g.systemPromptSent {
			return orderError("audio content before the system prompt completed")
		}
		if g.hasOpen(protocol.ContentTypeAudio) {
			return orderError("an audio content block is already open")
		}
		g.audioStarted = true
	case protocol.ContentTypeTool:
	default:
		return orderError("unknown content type %q", start.Type)
	}

	g.open[name] = openContent{contentType: start.Type, role: start.Role}
	return nil
}

func (g *protocolGuard) requireOpen(tag, name string, contentType protocol.ContentType) error {
	content, ok := g.open[name]
	if !ok {
		return orderError("%s for content %q that is not open", tag, name)
	}
	if content.contentType != contentType {
		return orderError("%s for %s content %q", tag, content.contentType, name)
	}
	return nil
}

func (g *protocolGuard) isOpen(name string) bool {
	_, ok := g.open[name]
	return ok
}

func (g *protocolGuard) isRetired(name string) bool {
	_, ok := g.retired[name]
	return ok
}

func (g *protocolGuard) hasOpen(contentType protocol.ContentType) bool {
	for _, content := range g.open {
		if content.contentType == contentType {
			return true
		}
	}
	return false
}

// state derives the lifecycle state from what has been sent so far.
func (g *protocolGuard) state(toolsInFlight int) State {
	switch {
	case g.hasOpen(protocol.ContentTypeAudio) && toolsInFlight > 0:
		return StateToolInFlight
	case g.hasOpen(protocol.ContentTypeAudio) && g.audioChunks > 0:
		return StateStreaming
	case g.hasOpen(protocol.ContentTypeAudio):
		return StateAudioReady
	case g.systemPromptSent:
		return StateSystemPromptSent
	case g.promptStarted:
		return StatePromptStarted
	case g.sessionStarted:
		return StateSessionStarted
	}
	return StatePending
}
