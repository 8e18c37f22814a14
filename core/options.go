package orchestration

import (
	"time"

	"github.com/koscakluka/ema-sonic/core/events"
	"github.com/koscakluka/ema-sonic/core/history"
	"github.com/koscakluka/ema-sonic/core/playback"
	"github.com/koscakluka/ema-sonic/core/protocol"
	"github.com/koscakluka/ema-sonic/core/tools"
)

const (
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultShutdownStepDelay = 100 * time.Millisecond
	defaultHistoryTimeout    = 2 * time.Second
	persistBufferSize        = 64
)

type ManagerOption func(*Manager)

type ManagerOptions struct {
	shutdownTimeout   time.Duration
	shutdownStepDelay time.Duration

	orchestrator *tools.Orchestrator
	historyStore history.Store

	sessionDefaults []SessionOption

	onEvent        func(events.Event)
	onFault        func(sessionID string, err error)
	onTurn         func(sessionID string, turn history.Turn)
	onInterruption func(sessionID string)
	onToolCall     func(sessionID, toolName string, failed bool)
}

// WithTools declares tools to the model in every session's promptStart and
// runs them with the default per-call timeout.
func WithTools(toolset ...tools.Tool) ManagerOption {
	return func(m *Manager) {
		m.options.orchestrator = tools.NewOrchestrator(tools.NewRegistry(toolset...))
	}
}

// WithToolOrchestrator replaces the orchestrator used to run tools, e.g. to
// change the per-call timeout.
func WithToolOrchestrator(orchestrator *tools.Orchestrator) ManagerOption {
	return func(m *Manager) {
		if orchestrator != nil {
			m.options.orchestrator = orchestrator
		}
	}
}

// WithShutdownTimeout bounds graceful close. Once it passes, cleanup is
// forced.
func WithShutdownTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.options.shutdownTimeout = timeout
	}
}

// WithShutdownStepDelay sets the pause after each shutdown event is flushed,
// giving the model time to acknowledge it.
func WithShutdownStepDelay(delay time.Duration) ManagerOption {
	return func(m *Manager) {
		m.options.shutdownStepDelay = delay
	}
}

// WithHistoryStore persists finalized turns in addition to keeping them on the
// session.
func WithHistoryStore(store history.Store) ManagerOption {
	return func(m *Manager) {
		m.options.historyStore = store
	}
}

// WithSessionDefaults applies opts to every session before the options passed
// to [Manager.Create].
func WithSessionDefaults(opts ...SessionOption) ManagerOption {
	return func(m *Manager) {
		m.options.sessionDefaults = append(m.options.sessionDefaults, opts...)
	}
}

// WithEventCallback receives every lifecycle notification.
func WithEventCallback(callback func(events.Event)) ManagerOption {
	return func(m *Manager) {
		m.options.onEvent = callback
	}
}

// WithFaultCallback is called when a session's transport fails and the session
// is force closed.
func WithFaultCallback(callback func(sessionID string, err error)) ManagerOption {
	return func(m *Manager) {
		m.options.onFault = callback
	}
}

func WithTurnCallback(callback func(sessionID string, turn history.Turn)) ManagerOption {
	return func(m *Manager) {
		m.options.onTurn = callback
	}
}

// WithInterruptionCallback is called on barge-in, after the session's player
// was cleared.
func WithInterruptionCallback(callback func(sessionID string)) ManagerOption {
	return func(m *Manager) {
		m.options.onInterruption = callback
	}
}

func WithToolCallCallback(callback func(sessionID, toolName string, failed bool)) ManagerOption {
	return func(m *Manager) {
		m.options.onToolCall = callback
	}
}

type SessionOption func(*SessionOptions)

type SessionOptions struct {
	InferenceConfiguration   protocol.InferenceConfiguration
	AudioInputConfiguration  protocol.AudioConfiguration
	AudioOutputConfiguration protocol.AudioConfiguration
	// Player receives the model's speech. Without one, audio output is only
	// delivered to handlers.
	Player *playback.Player
}

func defaultSessionOptions() SessionOptions {
	return SessionOptions{
		InferenceConfiguration:   protocol.DefaultInferenceConfiguration(),
		AudioInputConfiguration:  protocol.DefaultAudioInputConfiguration(),
		AudioOutputConfiguration: protocol.DefaultAudioOutputConfiguration(""),
	}
}

func WithInferenceConfiguration(config protocol.InferenceConfiguration) SessionOption {
	return func(o *SessionOptions) {
		o.InferenceConfiguration = config
	}
}

// WithVoice selects the voice the model speaks with.
func WithVoice(voiceID string) SessionOption {
	return func(o *SessionOptions) {
		o.AudioOutputConfiguration.VoiceID = voiceID
	}
}

func WithAudioInputConfiguration(config protocol.AudioConfiguration) SessionOption {
	return func(o *SessionOptions) {
		o.AudioInputConfiguration = config
	}
}

func WithAudioOutputConfiguration(config protocol.AudioConfiguration) SessionOption {
	return func(o *SessionOptions) {
		o.AudioOutputConfiguration = config
	}
}

func WithPlayer(player *playback.Player) SessionOption {
	return func(o *SessionOptions) {
		o.Player = player
	}
}
