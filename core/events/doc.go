// Package events defines the typed lifecycle notifications raised by the
// session engine.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - session.*
//   - tool_call.*
//   - assistant_playback.*
//   - turn_state.*
//   - usage.*
//
// session events
//
//   - SessionStarted (session.started): the transport is connected and the
//     session is registered with its manager.
//   - SessionClosed (session.closed): the session finished shutting down;
//     Graceful reports whether the end-of-stream events were flushed before the
//     transport was closed.
//   - SessionFaulted (session.faulted): the transport failed and the session was
//     force closed.
//
// tool_call events
//
//   - ToolCallStarted (tool_call.started): tool execution started.
//   - ToolCallCompleted (tool_call.completed): tool execution completed.
//   - ToolCallFailed (tool_call.failed): tool execution failed; the model still
//     receives an error result.
//
// assistant_playback events
//
//   - AssistantPlaybackInterrupted (assistant_playback.interrupted): the model
//     reported barge-in and the queued speech was discarded.
//
// turn_state events
//
//   - TurnCompleted (turn_state.completed): a text turn was finalized and
//     recorded in history.
//
// usage events
//
//   - UsageUpdated (usage.updated): token totals reported by the model changed.
package events
