package agent

import (
	"time"

	"gastobot/app/service/memory"
	"gastobot/app/service/tools"
)

// Request carries everything the reasoning model is allowed to see for
// one user message.
type Request struct {
	UserID    string
	Utterance string
	History   []memory.Turn
	// Degraded marks that the history read failed, as opposed to a
	// genuinely empty day.
	Degraded bool
	// Stale marks a long idle gap: the history is shown but flagged as
	// possibly outdated context.
	Stale bool
	// PendingField names the deferred field awaiting an answer, if any.
	PendingField string
	Now          time.Time
}

// Proposal is the model's structured plan: either tool invocations in
// user order, or a plain conversational reply when no tool applies.
type Proposal struct {
	Invocations []tools.Invocation
	Text        string
}
