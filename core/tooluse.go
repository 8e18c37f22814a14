package orchestration

import (
	"context"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-sonic/core/events"
	"github.com/koscakluka/ema-sonic/core/protocol"
	"github.com/koscakluka/ema-sonic/core/tools"
	"go.opentelemetry.io/otel/attribute"
)

func (s *Session) recordToolUse(use *protocol.ToolUse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scratch.toolUseID != "" {
		logger.Warn("tool use replaced before its content ended",
			"session_id", s.id,
			"tool_use_id", s.scratch.toolUseID)
	}
	s.scratch = toolScratch{
		toolUseID:      use.ToolUseID,
		toolName:       use.ToolName,
		toolUseContent: use.Content,
	}
}

// takeToolUse returns the buffered tool request and clears it, so the next
// toolUse starts from scratch.
func (s *Session) takeToolUse() (tools.Invocation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scratch := s.scratch
	s.scratch = toolScratch{}
	if scratch.toolUseID == "" && scratch.toolName == "" {
		return tools.Invocation{}, false
	}
	return tools.Invocation{
		ToolUseID: scratch.toolUseID,
		Name:      scratch.toolName,
		Arguments: scratch.toolUseContent,
	}, true
}

// startToolTask runs the tool off the inbound loop so audio keeps flowing
// while it executes.
func (s *Session) startToolTask(ctx context.Context, invocation tools.Invocation) {
	s.toolsMu.Lock()
	if s.toolsClosed {
		s.toolsMu.Unlock()
		logger.InfoContext(ctx, "not starting tool on closing session",
			"session_id", s.id,
			"tool", invocation.Name)
		return
	}
	s.toolTasks.Add(1)
	s.toolsMu.Unlock()

	s.toolsInFlight.Add(1)
	go func() {
		defer s.toolTasks.Done()
		defer s.toolsInFlight.Add(-1)
		s.runTool(invocation)
	}()
}

func (s *Session) runTool(invocation tools.Invocation) {
	ctx, span := tracer.Start(s.toolCtx, "tool use")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.id),
		attribute.String("tool.name", invocation.Name),
	)

	s.manager.emit(events.NewToolCallStarted(s.id, invocation.ToolUseID, invocation.Name, invocation.Arguments))

	result := s.manager.orchestrator().Execute(ctx, invocation)
	if result.Failed() {
		logger.WarnContext(ctx, "tool call failed",
			"session_id", s.id,
			"tool", invocation.Name,
			"error", result.Err)
		s.manager.emit(events.NewToolCallFailed(s.id, result.ToolUseID, result.Name, result.Err.Error(), result.Duration))
	} else {
		s.manager.emit(events.NewToolCallCompleted(s.id, result.ToolUseID, result.Name, result.Content, result.Duration))
	}

	if err := s.sendToolResult(result); err != nil {
		logger.InfoContext(ctx, "dropping tool result",
			"session_id", s.id,
			"tool", invocation.Name,
			"error", err)
	}
}

func (s *Session) sendToolResult(result tools.Result) error {
	contentName := uuid.NewString()
	_, err := s.send(
		protocol.NewToolContentStart(s.promptName, contentName, result.ToolUseID),
		protocol.NewToolResult(s.promptName, contentName, result.Content),
		protocol.NewContentEnd(s.promptName, contentName),
	)
	return err
}

// stopTools refuses new tool tasks, cancels running ones and waits for them
// to return.
func (s *Session) stopTools(ctx context.Context) error {
	s.toolsMu.Lock()
	s.toolsClosed = true
	s.toolsMu.Unlock()

	s.toolCancel()
	return waitContext(ctx, s.toolTasks.Wait)
}
