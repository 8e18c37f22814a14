package events

// KindTurnCompleted identifies a finalized text turn.
const KindTurnCompleted Kind = "turn_state.completed"

// TurnCompleted marks a finalized turn.
type TurnCompleted struct {
	Base
	Role        string
	Text        string
	Interrupted bool
}

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(sessionID, role, text string, interrupted bool) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted, sessionID), Role: role, Text: text, Interrupted: interrupted}
}
