package protocol

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func sampleEvents() map[Tag]Event {
	return map[Tag]Event{
		TagSessionStart: NewSessionStart(InferenceConfiguration{MaxTokens: 1024, TopP: 0.9, Temperature: 0.7}),
		TagPromptStart: NewPromptStart("prompt-1", DefaultAudioOutputConfiguration("tiffany"), []ToolSpec{{
			Name:        "getWeatherTool",
			Description: "weather lookup",
			InputSchema: InputSchema{JSON: `{"type":"object","properties":{"city":{"type":"string"}}}`},
		}}),
		TagContentStart: NewAudioContentStart("prompt-1", "audio-1", DefaultAudioInputConfiguration()),
		TagTextInput:    NewTextInput("prompt-1", "text-1", "You are a voice assistant"),
		TagAudioInput:   NewAudioInput("prompt-1", "audio-1", []byte{1, 2, 3, 4}),
		TagToolResult:   NewToolResult("prompt-1", "tool-1", `{"weather_data":{"temperature":52}}`),
		TagContentEnd: {ContentEnd: &ContentEnd{
			SessionID: "s", PromptName: "prompt-1", CompletionID: "c", ContentID: "content-7",
			StopReason: StopReasonInterrupted, Type: ContentTypeText,
		}},
		TagPromptEnd:  NewPromptEnd("prompt-1"),
		TagSessionEnd: NewSessionEnd(),
		TagCompletionStart: {CompletionStart: &CompletionStart{
			SessionID: "s", PromptName: "prompt-1", CompletionID: "c",
		}},
		TagTextOutput: {TextOutput: &TextOutput{
			SessionID: "s", PromptName: "prompt-1", CompletionID: "c", ContentID: "content-2",
			Content: "Hello there", Role: RoleAssistant,
		}},
		TagAudioOutput: {AudioOutput: &AudioOutput{
			SessionID: "s", PromptName: "prompt-1", CompletionID: "c", ContentID: "content-3",
			Content: "AAEC",
		}},
		TagToolUse: {ToolUse: &ToolUse{
			SessionID: "s", PromptName: "prompt-1", CompletionID: "c", ContentID: "content-4",
			ToolUseID: "tool-use-1", ToolName: "getWeatherTool", Content: `{"city":"Seattle"}`,
		}},
		TagCompletionEnd: {CompletionEnd: &CompletionEnd{
			SessionID: "s", PromptName: "prompt-1", CompletionID: "c", StopReason: StopReasonEndTurn,
		}},
		TagUsageEvent: {UsageEvent: &UsageEvent{
			SessionID: "s", PromptName: "prompt-1", CompletionID: "c",
			Details: &UsageDetails{
				Delta: &TokenUsage{Input: TokenCounts{SpeechTokens: 3}, Output: TokenCounts{TextTokens: 4}},
				Total: &TokenUsage{Input: TokenCounts{SpeechTokens: 30, TextTokens: 1}, Output: TokenCounts{SpeechTokens: 5, TextTokens: 40}},
			},
			TotalInputTokens: 31, TotalOutputTokens: 45, TotalTokens: 76,
		}},
	}
}

func TestRoundTripEveryTag(t *testing.T) {
	events := sampleEvents()
	for _, tag := range Tags {
		event, ok := events[tag]
		if !ok {
			t.Fatalf("expected a sample event for tag %q", tag)
		}

		t.Run(string(tag), func(t *testing.T) {
			if got := event.Tag(); got != tag {
				t.Fatalf("expected sample to carry tag %q, got %q", tag, got)
			}

			data, err := Encode(event)
			if err != nil {
				t.Fatalf("expected encode to succeed, got %v", err)
			}

			decoded, err := Decode(data)
			if err != nil {
				t.Fatalf("expected decode to succeed, got %v", err)
			}
			if !reflect.DeepEqual(decoded, event) {
				t.Fatalf("expected round trip to preserve event\nwant %+v\ngot  %+v", event, decoded)
			}
		})
	}
}

func TestEncodeWrapsEventEnvelope(t *testing.T) {
	data, err := Encode(NewPromptEnd("prompt-1"))
	if err != nil {
		t.Fatalf("expected encode to succeed, got %v", err)
	}
	if got, want := string(data), `{"event":{"promptEnd":{"promptName":"prompt-1"}}}`; got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestEncodeRejectsEmptyAndAmbiguousEvents(t *testing.T) {
	if _, err := Encode(Event{}); !errors.Is(err, ErrEmptyEvent) {
		t.Fatalf("expected ErrEmptyEvent, got %v", err)
	}

	ambiguous := Event{PromptEnd: &PromptEnd{}, SessionEnd: &SessionEnd{}}
	if _, err := Encode(ambiguous); err == nil {
		t.Fatalf("expected encoding a multi-variant event to fail")
	}
	if ambiguous.Tag() != TagUnknown {
		t.Fatalf("expected multi-variant event to report unknown tag, got %q", ambiguous.Tag())
	}
}

func TestDecodeUnknownTagIsNotAnError(t *testing.T) {
	event, err := Decode([]byte(`{"event":{"somethingNew":{"a":1}}}`))
	if err != nil {
		t.Fatalf("expected unknown tag to decode, got %v", err)
	}
	if event.Unknown == nil || event.Unknown.Tag != "somethingNew" {
		t.Fatalf("expected unknown event with tag somethingNew, got %+v", event.Unknown)
	}
	if event.Tag() != TagUnknown {
		t.Fatalf("expected unknown tag, got %q", event.Tag())
	}
	if _, err := Encode(event); !errors.Is(err, ErrEmptyEvent) {
		t.Fatalf("expected unknown event to be unencodable, got %v", err)
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	testCases := []struct {
		name  string
		frame string
	}{
		{name: "invalid json", frame: `{"event":`},
		{name: "missing envelope", frame: `{"other":{}}`},
		{name: "no tag", frame: `{"event":{}}`},
		{name: "two tags", frame: `{"event":{"promptEnd":{},"sessionEnd":{}}}`},
		{name: "null payload", frame: `{"event":{"textOutput":null}}`},
		{name: "wrong field type", frame: `{"event":{"textOutput":{"content":12}}}`},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := Decode([]byte(testCase.frame))
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("expected *DecodeError, got %T (%v)", err, err)
			}
		})
	}
}

func TestContentStartGenerationStage(t *testing.T) {
	testCases := []struct {
		fields   string
		expected GenerationStage
	}{
		{fields: "", expected: GenerationStageFinal},
		{fields: `{"generationStage":"SPECULATIVE"}`, expected: GenerationStageSpeculative},
		{fields: `{"generationStage":"FINAL"}`, expected: GenerationStageFinal},
		{fields: `not json`, expected: GenerationStageFinal},
	}

	for _, testCase := range testCases {
		contentStart := &ContentStart{AdditionalModelFields: testCase.fields}
		if got := contentStart.GenerationStage(); got != testCase.expected {
			t.Fatalf("expected stage %q for %q, got %q", testCase.expected, testCase.fields, got)
		}
	}
}

func TestPromptStartCarriesToolSchemasAsStrings(t *testing.T) {
	data, err := Encode(sampleEvents()[TagPromptStart])
	if err != nil {
		t.Fatalf("expected encode to succeed, got %v", err)
	}
	if !strings.Contains(string(data), `"inputSchema":{"json":"{\"type\":\"object\"`) {
		t.Fatalf("expected stringified schema in %s", data)
	}
	if !strings.Contains(string(data), `"sampleRateHertz":24000`) {
		t.Fatalf("expected 24 kHz output configuration in %s", data)
	}
}

func TestCorrelationIDs(t *testing.T) {
	prompt, content := NewAudioInput("p", "c", nil).CorrelationIDs()
	if prompt != "p" || content != "c" {
		t.Fatalf("expected p/c, got %s/%s", prompt, content)
	}

	prompt, content = sampleEvents()[TagToolUse].CorrelationIDs()
	if prompt != "prompt-1" || content != "content-4" {
		t.Fatalf("expected prompt-1/content-4, got %s/%s", prompt, content)
	}
}
