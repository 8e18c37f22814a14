package orchestration

import (
	"strings"
	"time"

	"github.com/koscakluka/ema-sonic/core/history"
	"github.com/koscakluka/ema-sonic/core/protocol"
)

type inboundBlock struct {
	contentType protocol.ContentType
	role        protocol.Role
	stage       protocol.GenerationStage
}

// turnAssembler builds conversation turns out of inbound text blocks. Only
// final-stage text counts; speculative text is a preview of what the model is
// about to say and is superseded by the final block.
type turnAssembler struct {
	blocks map[string]inboundBlock

	pendingRole protocol.Role
	pending     strings.Builder
}

func newTurnAssembler() turnAssembler {
	return turnAssembler{blocks: map[string]inboundBlock{}}
}

func (a *turnAssembler) startBlock(start *protocol.ContentStart) {
	if start.ContentID == "" {
		return
	}
	a.blocks[start.ContentID] = inboundBlock{
		contentType: start.Type,
		role:        start.Role,
		stage:       start.GenerationStage(),
	}
}

// addText appends final-stage text. When the speaking role changes, the turn
// of the previous role is returned as completed.
func (a *turnAssembler) addText(output *protocol.TextOutput) (completed *history.Turn) {
	block, ok := a.blocks[output.ContentID]
	if ok && block.stage != protocol.GenerationStageFinal {
		return nil
	}

	role := output.Role
	if role == "" {
		role = block.role
	}
	if a.pending.Len() > 0 && a.pendingRole != role {
		completed = a.finish(false)
	}

	a.pendingRole = role
	if a.pending.Len() > 0 {
		a.pending.WriteByte(' ')
	}
	a.pending.WriteString(strings.TrimSpace(output.Content))
	return completed
}

// endBlock reports whether the block was an interrupted text block and
// returns the turn completed by it, if any.
func (a *turnAssembler) endBlock(end *protocol.ContentEnd) (interrupted bool, completed *history.Turn) {
	block, ok := a.blocks[end.ContentID]
	delete(a.blocks, end.ContentID)

	contentType := end.Type
	if contentType == "" && ok {
		contentType = block.contentType
	}
	if contentType != protocol.ContentTypeText {
		return false, nil
	}

	switch end.StopReason {
	case protocol.StopReasonInterrupted:
		return true, a.finish(true)
	case protocol.StopReasonEndTurn:
		return false, a.finish(false)
	}
	return false, nil
}

func (a *turnAssembler) pendingText() string {
	return a.pending.String()
}

func (a *turnAssembler) finish(interrupted bool) *history.Turn {
	text := strings.TrimSpace(a.pending.String())
	role := a.pendingRole
	a.pending.Reset()
	a.pendingRole = ""
	if text == "" {
		return nil
	}
	return &history.Turn{Role: role, Text: text, Interrupted: interrupted, CompletedAt: time.Now()}
}

func (a *turnAssembler) reset() {
	a.blocks = map[string]inboundBlock{}
	a.pending.Reset()
	a.pendingRole = ""
}
