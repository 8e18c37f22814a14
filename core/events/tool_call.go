package events

import "time"

const (
	// KindToolCallStarted identifies tool call execution start.
	KindToolCallStarted Kind = "tool_call.started"
	// KindToolCallCompleted identifies successful tool call completion.
	KindToolCallCompleted Kind = "tool_call.completed"
	// KindToolCallFailed identifies tool call failure.
	KindToolCallFailed Kind = "tool_call.failed"
)

// ToolCallStarted marks start of tool execution.
type ToolCallStarted struct {
	Base
	ToolUseID string
	Name      string
	Arguments string
}

// NewToolCallStarted creates a tool call started event.
func NewToolCallStarted(sessionID, toolUseID, name, arguments string) ToolCallStarted {
	return ToolCallStarted{Base: NewBase(KindToolCallStarted, sessionID), ToolUseID: toolUseID, Name: name, Arguments: arguments}
}

// ToolCallCompleted marks successful tool execution.
type ToolCallCompleted struct {
	Base
	ToolUseID string
	Name      string
	Result    string
	Duration  time.Duration
}

// NewToolCallCompleted creates a tool call completed event.
func NewToolCallCompleted(sessionID, toolUseID, name, result string, duration time.Duration) ToolCallCompleted {
	return ToolCallCompleted{Base: NewBase(KindToolCallCompleted, sessionID), ToolUseID: toolUseID, Name: name, Result: result, Duration: duration}
}

// ToolCallFailed marks failed tool execution.
type ToolCallFailed struct {
	Base
	ToolUseID string
	Name      string
	Error     string
	Duration  time.Duration
}

// NewToolCallFailed creates a tool call failed event.
func NewToolCallFailed(sessionID, toolUseID, name, err string, duration time.Duration) ToolCallFailed {
	return ToolCallFailed{Base: NewBase(KindToolCallFailed, sessionID), ToolUseID: toolUseID, Name: name, Error: err, Duration: duration}
}
