package telegram

import (
	"context"
	"fmt"
	"time"

	"gastobot/app/config"

	"github.com/go-resty/resty/v2"
	"github.com/samber/do"
)

const apiBase = "https://api.telegram.org"

type Client struct {
	cfg  *config.Config
	http *resty.Client
	file *resty.Client
}

func New(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Client{
		cfg: cfg,
		http: resty.New().
			SetBaseURL(fmt.Sprintf("%s/bot%s", apiBase, cfg.Telegram.Token)).
			SetTimeout(65 * time.Second),
		file: resty.New().
			SetBaseURL(fmt.Sprintf("%s/file/bot%s", apiBase, cfg.Telegram.Token)).
			SetTimeout(65 * time.Second),
	}, nil
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text"`
	Caption   string      `json:"caption"`
	Voice     *Voice      `json:"voice"`
	Photo     []PhotoSize `json:"photo"`
	Document  *Document   `json:"document"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
	MimeType string `json:"mime_type"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size"`
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
}

type apiResponse[T any] struct {
	Ok          bool   `json:"ok"`
	Result      T      `json:"result"`
	Description string `json:"description"`
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	var out apiResponse[Message]

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id": chatID,
			"text":    text,
		}).
		SetResult(&out).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	if resp.IsError() || !out.Ok {
		return fmt.Errorf("sendMessage failed: %s (%s)", resp.Status(), out.Description)
	}

	return nil
}

// SendTyping shows the typing indicator while a message is processed.
func (c *Client) SendTyping(ctx context.Context, chatID int64) error {
	var out apiResponse[bool]

	_, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id": chatID,
			"action":  "typing",
		}).
		SetResult(&out).
		Post("/sendChatAction")
	if err != nil {
		return fmt.Errorf("failed to send chat action: %w", err)
	}

	return nil
}

// GetUpdates long-polls for new updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var out apiResponse[[]Update]

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"offset":  offset,
			"timeout": int(timeout.Seconds()),
		}).
		SetResult(&out).
		Post("/getUpdates")
	if err != nil {
		return nil, fmt.Errorf("failed to get updates: %w", err)
	}
	if resp.IsError() || !out.Ok {
		return nil, fmt.Errorf("getUpdates failed: %s (%s)", resp.Status(), out.Description)
	}

	return out.Result, nil
}

type fileInfo struct {
	FilePath string `json:"file_path"`
}

// DownloadFile fetches a file's bytes by its Telegram file id.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	var out apiResponse[fileInfo]

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"file_id": fileID}).
		SetResult(&out).
		Post("/getFile")
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve file: %w", err)
	}
	if resp.IsError() || !out.Ok || out.Result.FilePath == "" {
		return nil, "", fmt.Errorf("getFile failed: %s (%s)", resp.Status(), out.Description)
	}

	data, err := c.file.R().
		SetContext(ctx).
		Get("/" + out.Result.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download file: %w", err)
	}
	if data.IsError() {
		return nil, "", fmt.Errorf("file download failed: %s", data.Status())
	}

	return data.Body(), out.Result.FilePath, nil
}

// SetWebhook registers the public webhook URL with Telegram.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	var out apiResponse[bool]

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"url": url}).
		SetResult(&out).
		Post("/setWebhook")
	if err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	if resp.IsError() || !out.Ok {
		return fmt.Errorf("setWebhook failed: %s (%s)", resp.Status(), out.Description)
	}

	return nil
}

// DeleteWebhook removes a registered webhook before switching to polling.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	var out apiResponse[bool]

	_, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Post("/deleteWebhook")
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	return nil
}
