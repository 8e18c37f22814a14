package events

// KindUsageUpdated identifies updated token totals.
const KindUsageUpdated Kind = "usage.updated"

// UsageUpdated carries the latest token totals reported for a session.
type UsageUpdated struct {
	Base
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// NewUsageUpdated creates a usage updated event.
func NewUsageUpdated(sessionID string, input, output, total int) UsageUpdated {
	return UsageUpdated{Base: NewBase(KindUsageUpdated, sessionID), InputTokens: input, OutputTokens: output, TotalTokens: total}
}
