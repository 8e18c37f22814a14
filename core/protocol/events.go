package protocol

// Tag identifies the variant of an [Event] on the wire.
type Tag string

const (
	TagSessionStart Tag = "sessionStart"
	TagPromptStart  Tag = "promptStart"
	TagContentStart Tag = "contentStart"
	TagTextInput    Tag = "textInput"
	TagAudioInput   Tag = "audioInput"
	TagToolResult   Tag = "toolResult"
	TagContentEnd   Tag = "contentEnd"
	TagPromptEnd    Tag = "promptEnd"
	TagSessionEnd   Tag = "sessionEnd"

	TagCompletionStart Tag = "completionStart"
	TagTextOutput      Tag = "textOutput"
	TagAudioOutput     Tag = "audioOutput"
	TagToolUse         Tag = "toolUse"
	TagCompletionEnd   Tag = "completionEnd"
	TagUsageEvent      Tag = "usageEvent"

	// TagUnknown is reported for frames whose tag is not part of the protocol.
	TagUnknown Tag = ""
)

// Tags lists every tag the codec understands, outbound first.
var Tags = []Tag{
	TagSessionStart, TagPromptStart, TagContentStart, TagTextInput, TagAudioInput,
	TagToolResult, TagContentEnd, TagPromptEnd, TagSessionEnd,
	TagCompletionStart, TagTextOutput, TagAudioOutput, TagToolUse,
	TagCompletionEnd, TagUsageEvent,
}

type ContentType string

const (
	ContentTypeText  ContentType = "TEXT"
	ContentTypeAudio ContentType = "AUDIO"
	ContentTypeTool  ContentType = "TOOL"
)

type Role string

const (
	RoleSystem    Role = "SYSTEM"
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
	RoleTool      Role = "TOOL"
)

type StopReason string

const (
	StopReasonEndTurn     StopReason = "END_TURN"
	StopReasonInterrupted StopReason = "INTERRUPTED"
	StopReasonPartialTurn StopReason = "PARTIAL_TURN"
	StopReasonToolUse     StopReason = "TOOL_USE"
)

type GenerationStage string

const (
	GenerationStageSpeculative GenerationStage = "SPECULATIVE"
	GenerationStageFinal       GenerationStage = "FINAL"
)

// Event is a tagged union over every protocol event. Exactly one variant is
// populated on a valid event.
type Event struct {
	SessionStart    *SessionStart    `json:"sessionStart,omitempty"`
	PromptStart     *PromptStart     `json:"promptStart,omitempty"`
	ContentStart    *ContentStart    `json:"contentStart,omitempty"`
	TextInput       *TextInput       `json:"textInput,omitempty"`
	AudioInput      *AudioInput      `json:"audioInput,omitempty"`
	ToolResult      *ToolResult      `json:"toolResult,omitempty"`
	ContentEnd      *ContentEnd      `json:"contentEnd,omitempty"`
	PromptEnd       *PromptEnd       `json:"promptEnd,omitempty"`
	SessionEnd      *SessionEnd      `json:"sessionEnd,omitempty"`
	CompletionStart *CompletionStart `json:"completionStart,omitempty"`
	TextOutput      *TextOutput      `json:"textOutput,omitempty"`
	AudioOutput     *AudioOutput     `json:"audioOutput,omitempty"`
	ToolUse         *ToolUse         `json:"toolUse,omitempty"`
	CompletionEnd   *CompletionEnd   `json:"completionEnd,omitempty"`
	UsageEvent      *UsageEvent      `json:"usageEvent,omitempty"`

	// Unknown holds frames with a tag outside of [Tags]. It is never encoded.
	Unknown *UnknownEvent `json:"-"`
}

// Tag reports the populated variant, or [TagUnknown] if none (or an unknown
// one) is set.
func (e Event) Tag() Tag {
	tags := e.populated()
	if len(tags) != 1 {
		return TagUnknown
	}
	return tags[0]
}

func (e Event) populated() []Tag {
	var tags []Tag
	add := func(set bool, tag Tag) {
		if set {
			tags = append(tags, tag)
		}
	}
	add(e.SessionStart != nil, TagSessionStart)
	add(e.PromptStart != nil, TagPromptStart)
	add(e.ContentStart != nil, TagContentStart)
	add(e.TextInput != nil, TagTextInput)
	add(e.AudioInput != nil, TagAudioInput)
	add(e.ToolResult != nil, TagToolResult)
	add(e.ContentEnd != nil, TagContentEnd)
	add(e.PromptEnd != nil, TagPromptEnd)
	add(e.SessionEnd != nil, TagSessionEnd)
	add(e.CompletionStart != nil, TagCompletionStart)
	add(e.TextOutput != nil, TagTextOutput)
	add(e.AudioOutput != nil, TagAudioOutput)
	add(e.ToolUse != nil, TagToolUse)
	add(e.CompletionEnd != nil, TagCompletionEnd)
	add(e.UsageEvent != nil, TagUsageEvent)
	return tags
}

// CorrelationIDs returns the prompt name and the content name (or the inbound
// content id) carried by the event, whichever are present.
func (e Event) CorrelationIDs() (promptName, contentName string) {
	switch {
	case e.PromptStart != nil:
		return e.PromptStart.PromptName, ""
	case e.ContentStart != nil:
		return e.ContentStart.PromptName, firstNonEmpty(e.ContentStart.ContentName, e.ContentStart.ContentID)
	case e.TextInput != nil:
		return e.TextInput.PromptName, e.TextInput.ContentName
	case e.AudioInput != nil:
		return e.AudioInput.PromptName, e.AudioInput.ContentName
	case e.ToolResult != nil:
		return e.ToolResult.PromptName, e.ToolResult.ContentName
	case e.ContentEnd != nil:
		return e.ContentEnd.PromptName, firstNonEmpty(e.ContentEnd.ContentName, e.ContentEnd.ContentID)
	case e.PromptEnd != nil:
		return e.PromptEnd.PromptName, ""
	case e.CompletionStart != nil:
		return e.CompletionStart.PromptName, ""
	case e.TextOutput != nil:
		return e.TextOutput.PromptName, e.TextOutput.ContentID
	case e.AudioOutput != nil:
		return e.AudioOutput.PromptName, e.AudioOutput.ContentID
	case e.ToolUse != nil:
		return e.ToolUse.PromptName, e.ToolUse.ContentID
	case e.CompletionEnd != nil:
		return e.CompletionEnd.PromptName, ""
	case e.UsageEvent != nil:
		return e.UsageEvent.PromptName, ""
	}
	return "", ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type UnknownEvent struct {
	Tag     string
	Payload []byte
}

type SessionStart struct {
	InferenceConfiguration InferenceConfiguration `json:"inferenceConfiguration"`
}

type InferenceConfiguration struct {
	MaxTokens   int     `json:"maxTokens"`
	TopP        float64 `json:"topP"`
	Temperature float64 `json:"temperature"`
}

type PromptStart struct {
	PromptName                 string              `json:"promptName"`
	TextOutputConfiguration    *MediaConfiguration `json:"textOutputConfiguration,omitempty"`
	AudioOutputConfiguration   *AudioConfiguration `json:"audioOutputConfiguration,omitempty"`
	ToolUseOutputConfiguration *MediaConfiguration `json:"toolUseOutputConfiguration,omitempty"`
	ToolConfiguration          *ToolConfiguration  `json:"toolConfiguration,omitempty"`
}

type MediaConfiguration struct {
	MediaType string `json:"mediaType"`
}

// AudioConfiguration describes an audio stream in either direction. VoiceID is
// only meaningful for output.
type AudioConfiguration struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	VoiceID         string `json:"voiceId,omitempty"`
	Encoding        string `json:"encoding"`
	AudioType       string `json:"audioType"`
}

type ToolConfiguration struct {
	Tools []ToolDefinition `json:"tools"`
}

type ToolDefinition struct {
	ToolSpec ToolSpec `json:"toolSpec"`
}

type ToolSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema carries a JSON schema serialized into a string.
type InputSchema struct {
	JSON string `json:"json"`
}

// ContentStart opens a content block. Outbound blocks are addressed by
// ContentName, inbound blocks by ContentID.
type ContentStart struct {
	PromptName  string      `json:"promptName,omitempty"`
	ContentName string      `json:"contentName,omitempty"`
	Type        ContentType `json:"type"`
	Role        Role        `json:"role,omitempty"`
	Interactive *bool       `json:"interactive,omitempty"`

	TextInputConfiguration       *MediaConfiguration           `json:"textInputConfiguration,omitempty"`
	AudioInputConfiguration      *AudioConfiguration           `json:"audioInputConfiguration,omitempty"`
	ToolResultInputConfiguration *ToolResultInputConfiguration `json:"toolResultInputConfiguration,omitempty"`

	SessionID                  string              `json:"sessionId,omitempty"`
	CompletionID               string              `json:"completionId,omitempty"`
	ContentID                  string              `json:"contentId,omitempty"`
	AdditionalModelFields      string              `json:"additionalModelFields,omitempty"`
	TextOutputConfiguration    *MediaConfiguration `json:"textOutputConfiguration,omitempty"`
	AudioOutputConfiguration   *AudioConfiguration `json:"audioOutputConfiguration,omitempty"`
	ToolUseOutputConfiguration *MediaConfiguration `json:"toolUseOutputConfiguration,omitempty"`
}

type ToolResultInputConfiguration struct {
	ToolUseID              string              `json:"toolUseId"`
	Type                   ContentType         `json:"type"`
	TextInputConfiguration *MediaConfiguration `json:"textInputConfiguration,omitempty"`
}

type TextInput struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
	Role        Role   `json:"role,omitempty"`
}

type AudioInput struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	// Content is base64 encoded PCM.
	Content string `json:"content"`
	Role    Role   `json:"role,omitempty"`
}

type ToolResult struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	// Content is the stringified JSON result.
	Content string `json:"content"`
}

type ContentEnd struct {
	PromptName  string      `json:"promptName,omitempty"`
	ContentName string      `json:"contentName,omitempty"`
	StopReason  StopReason  `json:"stopReason,omitempty"`
	Type        ContentType `json:"type,omitempty"`

	SessionID    string `json:"sessionId,omitempty"`
	CompletionID string `json:"completionId,omitempty"`
	ContentID    string `json:"contentId,omitempty"`
}

type PromptEnd struct {
	PromptName string `json:"promptName"`
}

type SessionEnd struct{}

type CompletionStart struct {
	SessionID    string `json:"sessionId"`
	PromptName   string `json:"promptName"`
	CompletionID string `json:"completionId"`
}

type TextOutput struct {
	SessionID    string `json:"sessionId,omitempty"`
	PromptName   string `json:"promptName,omitempty"`
	CompletionID string `json:"completionId,omitempty"`
	ContentID    string `json:"contentId,omitempty"`
	Content      string `json:"content"`
	Role         Role   `json:"role,omitempty"`
}

type AudioOutput struct {
	SessionID    string `json:"sessionId,omitempty"`
	PromptName   string `json:"promptName,omitempty"`
	CompletionID string `json:"completionId,omitempty"`
	ContentID    string `json:"contentId,omitempty"`
	// Content is base64 encoded PCM.
	Content string `json:"content"`
}

type ToolUse struct {
	SessionID    string `json:"sessionId,omitempty"`
	PromptName   string `json:"promptName,omitempty"`
	CompletionID string `json:"completionId,omitempty"`
	ContentID    string `json:"contentId,omitempty"`
	ToolUseID    string `json:"toolUseId"`
	ToolName     string `json:"toolName"`
	// Content is the stringified JSON arguments.
	Content string `json:"content"`
}

type CompletionEnd struct {
	SessionID    string     `json:"sessionId"`
	PromptName   string     `json:"promptName"`
	CompletionID string     `json:"completionId"`
	StopReason   StopReason `json:"stopReason,omitempty"`
}

type UsageEvent struct {
	SessionID         string        `json:"sessionId,omitempty"`
	PromptName        string        `json:"promptName,omitempty"`
	CompletionID      string        `json:"completionId,omitempty"`
	Details           *UsageDetails `json:"details,omitempty"`
	TotalInputTokens  int           `json:"totalInputTokens"`
	TotalOutputTokens int           `json:"totalOutputTokens"`
	TotalTokens       int           `json:"totalTokens"`
}

type UsageDetails struct {
	Delta *TokenUsage `json:"delta,omitempty"`
	Total *TokenUsage `json:"total,omitempty"`
}

type TokenUsage struct {
	Input  TokenCounts `json:"input"`
	Output TokenCounts `json:"output"`
}

type TokenCounts struct {
	SpeechTokens int `json:"speechTokens"`
	TextTokens   int `json:"textTokens"`
}
