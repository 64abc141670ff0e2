package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"gastobot/app/client/telegram"
	"gastobot/app/config"
	"gastobot/app/service/conversation"
	"gastobot/app/service/media"
	"gastobot/app/service/normalize"
	"gastobot/app/service/queue"

	"github.com/samber/do"
	"golang.org/x/time/rate"
)

const (
	pollTimeout = 50 * time.Second

	unauthorizedReply = "Lo siento, no te conozco. Este bot es privado."
	helpReply         = "Cuéntame tus gastos y yo los anoto. También puedes mandarme una nota de voz o la foto de un recibo, o preguntarme cuánto has gastado."
	unreadableReply   = "No pude leer eso bien, mi amor. ¿Me mandas una foto más clara o me lo escribes?"
	cautionNote       = "La foto no se ve muy clara, revisa que los datos hayan quedado bien."
)

// Service is the transport-facing loop: it authorizes, rate-limits,
// buffers and classifies inbound updates, then hands each message to the
// per-user lane so replies come back in receipt order.
type Service struct {
	cfg             *config.Config
	tgClient        *telegram.Client
	mediaSvc        *media.Service
	conversationSvc *conversation.Service
	queueSvc        *queue.Service

	buffer *textBuffer

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

func New(di *do.Injector) (*Service, error) {
	s := &Service{
		cfg:             do.MustInvoke[*config.Config](di),
		tgClient:        do.MustInvoke[*telegram.Client](di),
		mediaSvc:        do.MustInvoke[*media.Service](di),
		conversationSvc: do.MustInvoke[*conversation.Service](di),
		queueSvc:        do.MustInvoke[*queue.Service](di),
		limiters:        make(map[int64]*rate.Limiter),
	}

	s.buffer = newTextBuffer(s.cfg.Telegram.BufferDelay, s.flushText)

	return s, nil
}

// HandleUpdate is the single entry point for both the webhook and the
// polling loop.
func (s *Service) HandleUpdate(ctx context.Context, update telegram.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !s.cfg.IsUserAllowed(userID) {
		slog.Info("Rejected message from unknown user", "user", userID)
		s.reply(ctx, chatID, unauthorizedReply)

		return
	}

	if !s.limiter(userID).Allow() {
		slog.Warn("Rate limit exceeded, dropping message", "user", userID)
		return
	}

	switch {
	case msg.Voice != nil:
		s.submitMedia(chatID, userID, func(ctx context.Context) (normalize.Input, error) {
			return s.voiceInput(ctx, msg)
		})
	case len(msg.Photo) > 0 || isImageDocument(msg.Document):
		s.submitMedia(chatID, userID, func(ctx context.Context) (normalize.Input, error) {
			return s.imageInput(ctx, msg)
		})
	case strings.TrimSpace(msg.Text) != "":
		s.buffer.Add(chatID, strings.TrimSpace(msg.Text))
	default:
		s.reply(ctx, chatID, helpReply)
	}
}

// RunPolling long-polls getUpdates until the context is canceled.
func (s *Service) RunPolling(ctx context.Context) error {
	if err := s.tgClient.DeleteWebhook(ctx); err != nil {
		slog.Warn("Failed to delete webhook before polling", "error", err)
	}

	var offset int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := s.tgClient.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}

			slog.Error("Failed to get updates", "error", err)
			time.Sleep(s.cfg.Telegram.PollingInterval)

			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			s.HandleUpdate(ctx, update)
		}
	}
}

// flushText receives debounced text; by now fragments are merged.
func (s *Service) flushText(chatID int64, text string) {
	s.queueSvc.Submit(laneKey(chatID), func(ctx context.Context) {
		s.process(ctx, chatID, normalize.Input{Kind: normalize.KindText, Text: text})
	})
}

// submitMedia drains any buffered text onto the lane first, so a photo
// sent right after a message cannot overtake it.
func (s *Service) submitMedia(chatID, userID int64, build func(ctx context.Context) (normalize.Input, error)) {
	if text := s.buffer.Drain(chatID); text != "" {
		s.flushText(chatID, text)
	}

	s.queueSvc.Submit(laneKey(chatID), func(ctx context.Context) {
		in, err := build(ctx)
		if err != nil {
			slog.Warn("Failed to prepare media message", "user", userID, "error", err)
			s.reply(ctx, chatID, unreadableReply)

			return
		}

		s.process(ctx, chatID, in)
	})
}

func (s *Service) process(ctx context.Context, chatID int64, in normalize.Input) {
	if err := s.tgClient.SendTyping(ctx, chatID); err != nil {
		slog.Debug("Failed to send typing action", "error", err)
	}

	start := time.Now()

	replyText, err := s.conversationSvc.Process(ctx, laneKey(chatID), in)
	if err != nil {
		slog.Error("Failed to process message", "chat", chatID, "error", err)
		return
	}

	slog.Info("Processed message",
		"chat", chatID,
		"kind", in.Kind,
		"duration", time.Since(start))

	s.reply(ctx, chatID, replyText)
}

func (s *Service) voiceInput(ctx context.Context, msg *telegram.Message) (normalize.Input, error) {
	data, filePath, err := s.tgClient.DownloadFile(ctx, msg.Voice.FileID)
	if err != nil {
		return normalize.Input{}, fmt.Errorf("failed to download voice note: %w", err)
	}

	text, err := s.mediaSvc.Transcribe(ctx, data, path.Base(filePath))
	if err != nil {
		return normalize.Input{}, fmt.Errorf("failed to transcribe voice note: %w", err)
	}

	return normalize.Input{Kind: normalize.KindVoice, Text: text}, nil
}

func (s *Service) imageInput(ctx context.Context, msg *telegram.Message) (normalize.Input, error) {
	fileID := ""
	switch {
	case len(msg.Photo) > 0:
		// Telegram orders photo sizes ascending; the last is the largest.
		fileID = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Document != nil:
		fileID = msg.Document.FileID
	}

	data, _, err := s.tgClient.DownloadFile(ctx, fileID)
	if err != nil {
		return normalize.Input{}, fmt.Errorf("failed to download image: %w", err)
	}

	extraction, err := s.mediaSvc.ExtractReceipt(ctx, data)
	if err != nil {
		return normalize.Input{}, fmt.Errorf("failed to read receipt: %w", err)
	}

	caption := strings.TrimSpace(msg.Caption)
	if extraction.Doubtful {
		caption = strings.TrimSpace(caption + " " + cautionNote)
	}

	return normalize.Input{
		Kind:     normalize.KindImage,
		Caption:  caption,
		RawDraft: extraction.Draft,
	}, nil
}

func (s *Service) reply(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}

	if err := s.tgClient.SendMessage(ctx, chatID, text); err != nil {
		slog.Error("Failed to send reply", "chat", chatID, "error", err)
	}
}

func (s *Service) limiter(userID int64) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[userID]
	if !ok {
		perMinute := s.cfg.Policy.RateLimitPerMinute
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		s.limiters[userID] = limiter
	}

	return limiter
}

func laneKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func isImageDocument(doc *telegram.Document) bool {
	return doc != nil && strings.HasPrefix(doc.MimeType, "image/")
}
