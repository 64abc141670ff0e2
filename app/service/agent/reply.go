package agent

import (
	"context"
	"fmt"
	"strings"

	"gastobot/app/config"

	_ "embed"

	"github.com/sashabaranov/go-openai"
)

const maxMessageLength = 3500

//go:embed reply_prompt.txt
var replyPromptTemplate string

// ReplyAgent turns executed tool results into a single message in the
// assistant's voice. It never sees the ledger, only the result texts.
type ReplyAgent struct {
	cfg    *config.Config
	client *openai.Client
}

func NewReplyAgent(cfg *config.Config, client *openai.Client) *ReplyAgent {
	return &ReplyAgent{cfg: cfg, client: client}
}

func (a *ReplyAgent) Call(ctx context.Context, utterance string, results []string) (string, error) {
	templateValues := map[string]any{
		"utterance": utterance,
		"results":   "- " + strings.Join(results, "\n- "),
	}

	prompt := replyPromptTemplate
	for key, value := range templateValues {
		prompt = strings.ReplaceAll(prompt, "{"+key+"}", fmt.Sprint(value))
	}

	ctx, cancel := context.WithTimeout(ctx, maxReasonDuration)
	defer cancel()

	aiResponse, err := a.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: a.cfg.OpenAI.Model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxCompletionTokens: 500,
			Temperature:         1,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(aiResponse.Choices) == 0 {
		return "", fmt.Errorf("no chat completion found")
	}

	result := strings.TrimSpace(aiResponse.Choices[0].Message.Content)
	if len(result) > maxMessageLength {
		return "", fmt.Errorf("response is too long (%d > %d)", len(result), maxMessageLength)
	}

	return result, nil
}
