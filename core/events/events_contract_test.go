package events

import (
	"testing"
	"time"
)

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "session started", event: NewSessionStarted("s", "p"), expected: KindSessionStarted},
		{name: "session closed", event: NewSessionClosed("s", true), expected: KindSessionClosed},
		{name: "session faulted", event: NewSessionFaulted("s", "boom"), expected: KindSessionFaulted},
		{name: "tool call started", event: NewToolCallStarted("s", "t", "getWeatherTool", "{}"), expected: KindToolCallStarted},
		{name: "tool call completed", event: NewToolCallCompleted("s", "t", "getWeatherTool", "{}", time.Second), expected: KindToolCallCompleted},
		{name: "tool call failed", event: NewToolCallFailed("s", "t", "getWeatherTool", "boom", time.Second), expected: KindToolCallFailed},
		{name: "assistant playback interrupted", event: NewAssistantPlaybackInterrupted("s", "text"), expected: KindAssistantPlaybackInterrupted},
		{name: "turn completed", event: NewTurnCompleted("s", "ASSISTANT", "text", false), expected: KindTurnCompleted},
		{name: "usage updated", event: NewUsageUpdated("s", 1, 2, 3), expected: KindUsageUpdated},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if got := testCase.event.SessionID(); got != "s" {
				t.Fatalf("expected session id %q, got %q", "s", got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected timestamp to be set")
			}
		})
	}
}

func TestSessionLifecycleKindsAreDistinct(t *testing.T) {
	kinds := map[Kind]bool{}
	for _, kind := range []Kind{KindSessionStarted, KindSessionClosed, KindSessionFaulted} {
		if kinds[kind] {
			t.Fatalf("expected session kinds to differ, %q repeated", kind)
		}
		kinds[kind] = true
	}
}
