package tools

import (
	"encoding/json"
	"errors"
	"time"

	"gastobot/app/service/memory"
)

const (
	ToolRegisterExpense = "register_expense"
	ToolEditExpense     = "edit_expense"
	ToolDeleteExpense   = "delete_expense"
	ToolListExpenses    = "list_expenses"
	ToolVerifyBudget    = "verify_budget"
	ToolGenerateReport  = "generate_report"
)

// Failure taxonomy. Validation and policy failures never touch the
// ledger; unavailability reports a transient failure with no retry at
// this layer.
var (
	ErrValidation  = errors.New("invalid tool arguments")
	ErrPolicy      = errors.New("policy violation")
	ErrUnavailable = errors.New("collaborator unavailable")
)

// Invocation is one typed action proposed by the reasoning step. The
// arguments are untrusted model output and must pass the schema gate
// before execution.
type Invocation struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Outcome is the per-invocation result surfaced to the user. A failed
// outcome for one invocation never rolls back earlier ones in the same
// message.
type Outcome struct {
	Tool                 string
	Text                 string
	Err                  error
	RequiresConfirmation bool
	FollowUp             string
	RecordID             string
	// Tag to attach to the assistant turn, read back by the policy
	// engine on the next message (delete confirmations).
	Tag string
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

// DispatchContext carries the per-message facts every invocation may
// need: identity, the raw utterance, the receipt timestamp ("today" for
// date resolution) and the borrowed history snapshot.
type DispatchContext struct {
	UserID    string
	Utterance string
	Now       time.Time
	History   []memory.Turn
}
