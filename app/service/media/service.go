package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gastobot/app/config"
	"gastobot/app/service/normalize"

	"github.com/samber/do"
	"github.com/sashabaranov/go-openai"
)

const (
	maxExtractDuration = 60 * time.Second

	// Below this the receipt is treated as unreadable and the user is
	// asked for a clearer photo instead of guessing numbers.
	minConfidence = 0.4
	// Between min and this, data is used but flagged as doubtful.
	cautionConfidence = 0.7
)

// ErrUnreadable signals low-confidence extraction. Surfaced as a
// clarification request, never a crash.
var ErrUnreadable = errors.New("media unreadable")

const receiptPrompt = `Extrae los datos de este recibo y responde SOLO con JSON:
{"amount": <número total pagado>, "item": "<qué se compró>", "category_hint": "<Comida|Transporte|Mercado|Ocio|Salud|Otros>", "merchant": "<nombre del establecimiento o null>", "confidence": <0.0 a 1.0>}`

type Service struct {
	cfg    *config.Config
	client *openai.Client
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	clientConfig := openai.DefaultConfig(cfg.OpenAI.Token)
	clientConfig.BaseURL = cfg.OpenAI.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: maxExtractDuration,
	}

	return &Service{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Transcribe turns a voice note into text.
func (s *Service) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, maxExtractDuration)
	defer cancel()

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.cfg.OpenAI.TranscribeModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Language: "es",
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrUnreadable
	}

	return text, nil
}

type Extraction struct {
	Draft      json.RawMessage
	Confidence float64
	// Doubtful extractions get a caution note in the reply.
	Doubtful bool
}

type receiptFields struct {
	Amount       float64 `json:"amount"`
	Item         string  `json:"item"`
	CategoryHint string  `json:"category_hint"`
	Merchant     string  `json:"merchant"`
	Confidence   float64 `json:"confidence"`
}

// ExtractReceipt reads a receipt photo into the canonical draft shape.
func (s *Service) ExtractReceipt(ctx context.Context, image []byte) (*Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, maxExtractDuration)
	defer cancel()

	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.OpenAI.VisionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: receiptPrompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
					},
				},
			},
		},
		MaxCompletionTokens: 500,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract receipt: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrUnreadable
	}

	raw := resp.Choices[0].Message.Content
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "json")
	raw = strings.TrimSpace(raw)

	var fields receiptFields
	if err = json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: unparsable extraction", ErrUnreadable)
	}

	if fields.Amount <= 0 || fields.Confidence < minConfidence {
		return nil, ErrUnreadable
	}

	draft, err := json.Marshal(normalize.Draft{
		Amount:       fields.Amount,
		Item:         fields.Item,
		CategoryHint: fields.CategoryHint,
		Merchant:     fields.Merchant,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal draft: %w", err)
	}

	return &Extraction{
		Draft:      draft,
		Confidence: fields.Confidence,
		Doubtful:   fields.Confidence < cautionConfidence,
	}, nil
}
