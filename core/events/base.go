package events

import "time"

type Kind string

// Event is a lifecycle notification raised by the session engine. Every event
// is scoped to the session it happened in.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
	SessionID() string
}

type Base struct {
	kind      Kind
	timestamp time.Time
	sessionID string
}

func NewBase(kind Kind, sessionID string) Base {
	return Base{kind: kind, timestamp: time.Now(), sessionID: sessionID}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}

func (b Base) SessionID() string {
	return b.sessionID
}
