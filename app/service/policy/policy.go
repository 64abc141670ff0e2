package policy

import (
	"strings"
	"time"
	"unicode"

	"gastobot/app/service/memory"
)

// Engine is the stateless rule evaluator: confirmation thresholds,
// deferred-field follow-up and date resolution. Decisions are recomputed
// every turn and never persisted.
type Engine struct {
	threshold float64
}

func NewEngine(threshold float64) *Engine {
	return &Engine{threshold: threshold}
}

type Decision struct {
	RequiresConfirmation bool
	ResolvedDate         time.Time
	FollowUpNeeded       string
}

// ForRegistration evaluates a register_expense invocation. Registration is
// never blocked: a large amount only flags a notice for the reply, and a
// missing method defers the field instead of rejecting the expense.
func (e *Engine) ForRegistration(amount float64, method, dateExpr string, now time.Time) Decision {
	d := Decision{
		RequiresConfirmation: amount > e.threshold,
		ResolvedDate:         ResolveDate(dateExpr, now),
	}

	if method == "" {
		d.FollowUpNeeded = "method"
	}

	return d
}

// Fixed payment-method vocabulary: cash, card, transfer and the local
// wallet services, mapped to their canonical ledger spelling.
var methodVocabulary = map[string]string{
	"efectivo":      "Efectivo",
	"cash":          "Efectivo",
	"tarjeta":       "Tarjeta",
	"card":          "Tarjeta",
	"transferencia": "Transferencia",
	"transfer":      "Transferencia",
	"nequi":         "Nequi",
	"daviplata":     "Daviplata",
}

const methodTokenMaxWords = 4

// MethodToken classifies a free-text reply as a payment-method token.
// Only short answers qualify ("con tarjeta", "pagué en efectivo"); a full
// registration sentence that merely mentions a method goes through the
// reasoning step like any other message.
func MethodToken(text string) (string, bool) {
	tokens := words(strings.ToLower(text))
	if len(tokens) == 0 || len(tokens) > methodTokenMaxWords {
		return "", false
	}

	// "no fue con tarjeta" names a method but denies it.
	for _, token := range tokens {
		if token == "no" {
			return "", false
		}
	}

	for _, token := range tokens {
		if canonical, ok := methodVocabulary[token]; ok {
			return canonical, true
		}
	}

	return "", false
}

var affirmatives = map[string]bool{
	"sí": true, "si": true, "dale": true, "hazlo": true, "confirmo": true,
	"confirmado": true, "claro": true, "listo": true, "ok": true, "yes": true,
	"bórralo": true, "borralo": true, "elimínalo": true, "eliminalo": true,
}

func Affirmative(text string) bool {
	for _, token := range words(strings.ToLower(text)) {
		if affirmatives[token] {
			return true
		}
	}

	return false
}

// DeleteTag marks an assistant turn as a pending delete confirmation for
// one record.
func DeleteTag(recordID string) string {
	return "confirm_delete:" + recordID
}

// DeleteConfirmed reports whether history contains an explicit
// confirmation exchange for deleting recordID: the last assistant turn
// asked for it and the current utterance affirms. Anything else is a
// policy violation and the deletion must be re-confirmed.
func DeleteConfirmed(history []memory.Turn, utterance, recordID string) bool {
	if !Affirmative(utterance) {
		return false
	}

	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		if turn.Role != memory.RoleAssistant {
			continue
		}
		return turn.Tag == DeleteTag(recordID)
	}

	return false
}

func words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
