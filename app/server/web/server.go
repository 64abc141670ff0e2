package web

import (
	"log/slog"

	"gastobot/app/client/telegram"
	"gastobot/app/config"
	"gastobot/app/service/engine"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/do"
)

var _ do.Shutdownable = (*Server)(nil)

// Server exposes the Telegram webhook and a health probe. Webhook
// handling always returns 200 quickly; processing happens on the user
// lanes.
type Server struct {
	cfg       *config.Config
	engineSvc *engine.Service
	app       *fiber.App
}

func New(di *do.Injector) (*Server, error) {
	s := &Server{
		cfg:       do.MustInvoke[*config.Config](di),
		engineSvc: do.MustInvoke[*engine.Service](di),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	s.app.Post("/webhook", s.handleWebhook)

	return s, nil
}

func (s *Server) handleWebhook(c *fiber.Ctx) error {
	var update telegram.Update
	if err := c.BodyParser(&update); err != nil {
		slog.Warn("Failed to parse webhook update", "error", err)
		// 200 regardless: Telegram retries non-2xx responses forever.
		return c.SendStatus(fiber.StatusOK)
	}

	s.engineSvc.HandleUpdate(c.Context(), update)

	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) Run() error {
	slog.Info("Starting web server", "addr", s.cfg.Server.Addr)

	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
