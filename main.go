package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"gastobot/app/client/telegram"
	"gastobot/app/config"
	"gastobot/app/server/mcpsrv"
	"gastobot/app/server/web"
	"gastobot/app/service/agent"
	"gastobot/app/service/conversation"
	"gastobot/app/service/engine"
	"gastobot/app/service/media"
	"gastobot/app/service/memory"
	"gastobot/app/service/pending"
	"gastobot/app/service/queue"
	"gastobot/app/service/tools"
	"gastobot/app/store/budget"
	"gastobot/app/store/ledger"
	"gastobot/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, telegram.New)
	do.Provide(di, func(di *do.Injector) (ledger.Store, error) {
		return ledger.NewPostgresStore(di)
	})
	do.Provide(di, budget.New)
	do.Provide(di, memory.New)
	do.Provide(di, pending.New)
	do.Provide(di, tools.NewDispatcher)
	do.Provide(di, media.New)
	do.Provide(di, agent.New)
	do.Provide(di, conversation.New)
	do.Provide(di, queue.New)
	do.Provide(di, engine.New)
	do.Provide(di, web.New)
	do.Provide(di, mcpsrv.New)

	if cfg.MCP.Enabled {
		if err = do.MustInvoke[*mcpsrv.Server](di).Run(); err != nil {
			log.Fatalf("mcp server failed: %v", err)
		}

		return
	}

	slog.Info("Service started")

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	engineSvc := do.MustInvoke[*engine.Service](di)

	if cfg.Telegram.UsePolling {
		go func() {
			if err := engineSvc.RunPolling(appCtx); err != nil && appCtx.Err() == nil {
				slog.Error("Polling loop stopped", "error", err)
				cancel()
			}
		}()
	} else {
		tgClient := do.MustInvoke[*telegram.Client](di)
		if cfg.Telegram.WebhookURL != "" {
			if err = tgClient.SetWebhook(appCtx, cfg.Telegram.WebhookURL); err != nil {
				log.Fatalf("webhook registration failed: %v", err)
			}
		}

		go func() {
			if err := do.MustInvoke[*web.Server](di).Run(); err != nil {
				slog.Error("Web server stopped", "error", err)
				cancel()
			}
		}()
	}

	<-appCtx.Done()
}
