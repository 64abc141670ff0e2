package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTextIsVerbatim(t *testing.T) {
	utterance, draft := Normalize(Input{Kind: KindText, Text: "  gasté 20000 en almuerzo  "})

	assert.Equal(t, "gasté 20000 en almuerzo", utterance)
	assert.Nil(t, draft)
}

func TestNormalizeVoiceUsesTranscript(t *testing.T) {
	utterance, _ := Normalize(Input{Kind: KindVoice, Text: "veinte mil en taxi"})

	assert.Equal(t, "veinte mil en taxi", utterance)
}

func TestNormalizeReceipt(t *testing.T) {
	raw, err := json.Marshal(Draft{Amount: 45000, Item: "Pizza familiar", CategoryHint: "Comida", Merchant: "Karens Pizza"})
	require.NoError(t, err)

	utterance, draft := Normalize(Input{Kind: KindImage, Caption: "cena de ayer", RawDraft: raw})

	require.NotNil(t, draft)
	assert.Equal(t, 45000.0, draft.Amount)
	assert.Contains(t, utterance, "45000")
	assert.Contains(t, utterance, "Karens Pizza")
	assert.Contains(t, utterance, "cena de ayer")
}

func TestNormalizeDiscardsMalformedDraft(t *testing.T) {
	utterance, draft := Normalize(Input{
		Kind:     KindImage,
		Caption:  "recibo",
		RawDraft: json.RawMessage(`{"amount": "mucho", "sorpresa": true}`),
	})

	assert.Nil(t, draft)
	assert.Equal(t, "recibo", utterance)
}

func TestNormalizeDiscardsEmptyDraft(t *testing.T) {
	_, draft := Normalize(Input{Kind: KindImage, RawDraft: json.RawMessage(`{}`)})

	assert.Nil(t, draft)
}
