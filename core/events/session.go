package events

const (
	// KindSessionStarted identifies a newly registered session.
	KindSessionStarted Kind = "session.started"
	// KindSessionClosed identifies the end of session shutdown.
	KindSessionClosed Kind = "session.closed"
	// KindSessionFaulted identifies a transport failure.
	KindSessionFaulted Kind = "session.faulted"
)

// SessionStarted marks a session that is connected and registered.
type SessionStarted struct {
	Base
	PromptName string
}

// NewSessionStarted creates a session started event.
func NewSessionStarted(sessionID, promptName string) SessionStarted {
	return SessionStarted{Base: NewBase(KindSessionStarted, sessionID), PromptName: promptName}
}

// SessionClosed marks the end of session shutdown.
type SessionClosed struct {
	Base
	Graceful bool
}

// NewSessionClosed creates a session closed event.
func NewSessionClosed(sessionID string, graceful bool) SessionClosed {
	return SessionClosed{Base: NewBase(KindSessionClosed, sessionID), Graceful: graceful}
}

// SessionFaulted marks a transport failure that force closed the session.
type SessionFaulted struct {
	Base
	Error string
}

// NewSessionFaulted creates a session faulted event.
func NewSessionFaulted(sessionID, err string) SessionFaulted {
	return SessionFaulted{Base: NewBase(KindSessionFaulted, sessionID), Error: err}
}
