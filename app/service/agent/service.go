package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gastobot/app/config"
	"gastobot/app/service/memory"
	"gastobot/app/service/tools"

	_ "embed"

	"github.com/samber/do"
	"github.com/sashabaranov/go-openai"
)

const maxReasonDuration = 30 * time.Second

//go:embed system_prompt.txt
var systemPromptTemplate string

type Service struct {
	cfg    *config.Config
	client *openai.Client

	replyAgent *ReplyAgent
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	client := createClient(cfg)

	return &Service{
		cfg:        cfg,
		client:     client,
		replyAgent: NewReplyAgent(cfg, client),
	}, nil
}

func createClient(cfg *config.Config) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.OpenAI.Token)

	clientConfig.BaseURL = cfg.OpenAI.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: maxReasonDuration,
	}

	return openai.NewClientWithConfig(clientConfig)
}

// Propose asks the reasoning model for a plan. Tool calls come back in
// the order the model emitted them, which mirrors the order the user
// asked for the actions.
func (s *Service) Propose(ctx context.Context, req Request) (*Proposal, error) {
	templateValues := map[string]any{
		"now":     req.Now.Format("2006-01-02 15:04 (Monday)"),
		"pending": pendingNote(req.PendingField),
		"stale":   staleNote(req.Stale, req.Degraded),
	}

	prompt := systemPromptTemplate
	for key, value := range templateValues {
		prompt = strings.ReplaceAll(prompt, "{"+key+"}", fmt.Sprint(value))
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: prompt,
	})

	for _, turn := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turnRole(turn.Role),
			Content: turnContent(turn),
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Utterance,
	})

	ctx, cancel := context.WithTimeout(ctx, maxReasonDuration)
	defer cancel()

	aiResponse, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:               s.cfg.OpenAI.Model,
			Messages:            messages,
			Tools:               tools.Definitions(),
			MaxCompletionTokens: 1000,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(aiResponse.Choices) == 0 {
		return nil, fmt.Errorf("no chat completion found")
	}

	message := aiResponse.Choices[0].Message

	if len(message.ToolCalls) > 0 {
		invocations := make([]tools.Invocation, 0, len(message.ToolCalls))
		for _, call := range message.ToolCalls {
			invocations = append(invocations, tools.Invocation{
				Name:      call.Function.Name,
				Arguments: json.RawMessage(call.Function.Arguments),
			})
		}

		return &Proposal{Invocations: invocations}, nil
	}

	return &Proposal{Text: strings.TrimSpace(message.Content)}, nil
}

// ComposeReply rephrases executed outcomes in the assistant's voice.
// Callers fall back to the raw outcome text when it fails.
func (s *Service) ComposeReply(ctx context.Context, utterance string, results []string) (string, error) {
	return s.replyAgent.Call(ctx, utterance, results)
}

func turnRole(role memory.Role) string {
	if role == memory.RoleUser {
		return openai.ChatMessageRoleUser
	}

	// Tool turns carry executed results; replayed as assistant context
	// because historic tool messages have no live call ids.
	return openai.ChatMessageRoleAssistant
}

func turnContent(turn memory.Turn) string {
	if turn.Role == memory.RoleToolResult {
		return "[resultado] " + turn.Text
	}

	return turn.Text
}

func pendingNote(field string) string {
	if field == "" {
		return ""
	}

	return fmt.Sprintf("IMPORTANTE: hay un gasto recién registrado al que le falta el campo %q. "+
		"Si el mensaje del usuario responde esa pregunta, usa edit_expense para completarlo.", field)
}

func staleNote(stale, degraded bool) string {
	switch {
	case degraded:
		return "NOTA: el historial de la conversación no está disponible en este momento. " +
			"Atiende el mensaje sin asumir contexto previo."
	case stale:
		return "NOTA: han pasado varias horas desde el último mensaje. " +
			"El historial puede estar desactualizado; trátalo con cautela."
	default:
		return ""
	}
}
