package events

// KindAssistantPlaybackInterrupted identifies barge-in.
const KindAssistantPlaybackInterrupted Kind = "assistant_playback.interrupted"

// AssistantPlaybackInterrupted marks that queued assistant speech was
// discarded because the user spoke over it.
type AssistantPlaybackInterrupted struct {
	Base
	// Transcript is the assistant text that had been generated for the
	// interrupted turn.
	Transcript string
}

// NewAssistantPlaybackInterrupted creates an assistant playback interrupted event.
func NewAssistantPlaybackInterrupted(sessionID, transcript string) AssistantPlaybackInterrupted {
	return AssistantPlaybackInterrupted{Base: NewBase(KindAssistantPlaybackInterrupted, sessionID), Transcript: transcript}
}
