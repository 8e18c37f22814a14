package protocol

import (
	"encoding/base64"
	"encoding/json"
)

const (
	MediaTypeText  = "text/plain"
	MediaTypeAudio = "audio/lpcm"
	MediaTypeJSON  = "application/json"

	AudioEncodingBase64 = "base64"
	AudioTypeSpeech     = "SPEECH"
)

// DefaultInferenceConfiguration mirrors the values the model is usually
// started with.
func DefaultInferenceConfiguration() InferenceConfiguration {
	return InferenceConfiguration{MaxTokens: 1024, TopP: 0.9, Temperature: 0.7}
}

// DefaultAudioInputConfiguration is 16 kHz 16-bit mono PCM.
func DefaultAudioInputConfiguration() AudioConfiguration {
	return AudioConfiguration{
		MediaType:       MediaTypeAudio,
		SampleRateHertz: 16000,
		SampleSizeBits:  16,
		ChannelCount:    1,
		Encoding:        AudioEncodingBase64,
		AudioType:       AudioTypeSpeech,
	}
}

// DefaultAudioOutputConfiguration is 24 kHz 16-bit mono PCM spoken by voice.
func DefaultAudioOutputConfiguration(voice string) AudioConfiguration {
	if voice == "" {
		voice = "matthew"
	}
	return AudioConfiguration{
		MediaType:       MediaTypeAudio,
		SampleRateHertz: 24000,
		SampleSizeBits:  16,
		ChannelCount:    1,
		VoiceID:         voice,
		Encoding:        AudioEncodingBase64,
		AudioType:       AudioTypeSpeech,
	}
}

func NewSessionStart(config InferenceConfiguration) Event {
	return Event{SessionStart: &SessionStart{InferenceConfiguration: config}}
}

func NewPromptStart(promptName string, audioOutput AudioConfiguration, tools []ToolSpec) Event {
	promptStart := &PromptStart{
		PromptName:                 promptName,
		TextOutputConfiguration:    &MediaConfiguration{MediaType: MediaTypeText},
		AudioOutputConfiguration:   &audioOutput,
		ToolUseOutputConfiguration: &MediaConfiguration{MediaType: MediaTypeJSON},
	}
	if len(tools) > 0 {
		definitions := make([]ToolDefinition, 0, len(tools))
		for _, spec := range tools {
			definitions = append(definitions, ToolDefinition{ToolSpec: spec})
		}
		promptStart.ToolConfiguration = &ToolConfiguration{Tools: definitions}
	}
	return Event{PromptStart: promptStart}
}

func NewTextContentStart(promptName, contentName string, role Role, interactive bool) Event {
	return Event{ContentStart: &ContentStart{
		PromptName:             promptName,
		ContentName:            contentName,
		Type:                   ContentTypeText,
		Role:                   role,
		Interactive:            &interactive,
		TextInputConfiguration: &MediaConfiguration{MediaType: MediaTypeText},
	}}
}

func NewAudioContentStart(promptName, contentName string, config AudioConfiguration) Event {
	interactive := true
	return Event{ContentStart: &ContentStart{
		PromptName:              promptName,
		ContentName:             contentName,
		Type:                    ContentTypeAudio,
		Role:                    RoleUser,
		Interactive:             &interactive,
		AudioInputConfiguration: &config,
	}}
}

func NewToolContentStart(promptName, contentName, toolUseID string) Event {
	interactive := false
	return Event{ContentStart: &ContentStart{
		PromptName:  promptName,
		ContentName: contentName,
		Type:        ContentTypeTool,
		Role:        RoleTool,
		Interactive: &interactive,
		ToolResultInputConfiguration: &ToolResultInputConfiguration{
			ToolUseID:              toolUseID,
			Type:                   ContentTypeText,
			TextInputConfiguration: &MediaConfiguration{MediaType: MediaTypeText},
		},
	}}
}

func NewTextInput(promptName, contentName, text string) Event {
	return Event{TextInput: &TextInput{PromptName: promptName, ContentName: contentName, Content: text}}
}

// NewAudioInput base64 encodes pcm into an audioInput event.
func NewAudioInput(promptName, contentName string, pcm []byte) Event {
	return Event{AudioInput: &AudioInput{
		PromptName:  promptName,
		ContentName: contentName,
		Content:     base64.StdEncoding.EncodeToString(pcm),
	}}
}

func NewToolResult(promptName, contentName, resultJSON string) Event {
	return Event{ToolResult: &ToolResult{PromptName: promptName, ContentName: contentName, Content: resultJSON}}
}

func NewContentEnd(promptName, contentName string) Event {
	return Event{ContentEnd: &ContentEnd{PromptName: promptName, ContentName: contentName}}
}

func NewPromptEnd(promptName string) Event {
	return Event{PromptEnd: &PromptEnd{PromptName: promptName}}
}

func NewSessionEnd() Event {
	return Event{SessionEnd: &SessionEnd{}}
}

// GenerationStage reads the generation stage the model attaches to inbound
// content blocks. Blocks without one are treated as final.
func (c *ContentStart) GenerationStage() GenerationStage {
	if c == nil || c.AdditionalModelFields == "" {
		return GenerationStageFinal
	}

	var fields struct {
		GenerationStage GenerationStage `json:"generationStage"`
	}
	if err := json.Unmarshal([]byte(c.AdditionalModelFields), &fields); err != nil || fields.GenerationStage == "" {
		return GenerationStageFinal
	}
	return fields.GenerationStage
}

// DecodeAudio returns the raw PCM carried by an audioOutput event.
func (a *AudioOutput) DecodeAudio() ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(a.Content)
}
