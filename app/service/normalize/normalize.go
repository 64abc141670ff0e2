package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

type Kind string

const (
	KindText  Kind = "text"
	KindVoice Kind = "voice"
	KindImage Kind = "image"
)

// Input is one inbound message after transport handling. For voice the
// transcript is already in Text; for images RawDraft holds the extracted
// receipt fields as produced by the media collaborator.
type Input struct {
	Kind     Kind
	Text     string
	Caption  string
	RawDraft json.RawMessage
}

// Draft is the canonical structured shape extracted upstream. All fields
// optional.
type Draft struct {
	Amount       float64 `json:"amount,omitempty"`
	Item         string  `json:"item,omitempty"`
	CategoryHint string  `json:"category_hint,omitempty"`
	Merchant     string  `json:"merchant,omitempty"`
}

// Normalize collapses any modality into one canonical utterance plus an
// optional draft. It performs no inference: a draft that does not
// deserialize into the expected shape is discarded, leaving the reasoning
// step to re-derive fields from text alone.
func Normalize(in Input) (string, *Draft) {
	draft := decodeDraft(in.RawDraft)

	switch in.Kind {
	case KindImage:
		return receiptUtterance(draft, in.Caption), draft
	default:
		return strings.TrimSpace(in.Text), draft
	}
}

func decodeDraft(raw json.RawMessage) *Draft {
	if len(raw) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var draft Draft
	if err := dec.Decode(&draft); err != nil {
		slog.Warn("Discarding malformed draft", "error", err)
		return nil
	}

	if draft.Amount == 0 && draft.Item == "" && draft.Merchant == "" {
		return nil
	}

	return &draft
}

// receiptUtterance renders an extracted receipt as a registration request,
// so the reasoning step sees the same phrasing a typed message would have.
func receiptUtterance(draft *Draft, caption string) string {
	if draft == nil {
		return strings.TrimSpace(caption)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Registrar gasto de %.0f", draft.Amount)

	if draft.CategoryHint != "" {
		fmt.Fprintf(&b, " en %s", strings.ToLower(draft.CategoryHint))
	}
	if draft.Merchant != "" {
		fmt.Fprintf(&b, " en %s", draft.Merchant)
	}
	if draft.Item != "" {
		fmt.Fprintf(&b, ". Descripción: %s", draft.Item)
	}
	if caption != "" {
		fmt.Fprintf(&b, ". %s", caption)
	}

	return b.String()
}
