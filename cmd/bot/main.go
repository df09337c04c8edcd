package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillm/sniper-bot/internal/api"
	"github.com/kirillm/sniper-bot/internal/confidence"
	"github.com/kirillm/sniper-bot/internal/config"
	"github.com/kirillm/sniper-bot/internal/domain"
	"github.com/kirillm/sniper-bot/internal/engine"
	"github.com/kirillm/sniper-bot/internal/exchange"
	"github.com/kirillm/sniper-bot/internal/exits"
	"github.com/kirillm/sniper-bot/internal/gap"
	"github.com/kirillm/sniper-bot/internal/ledger"
	"github.com/kirillm/sniper-bot/internal/orders"
	"github.com/kirillm/sniper-bot/internal/rollover"
	signals "github.com/kirillm/sniper-bot/internal/signal"
	"github.com/kirillm/sniper-bot/internal/storage"
	"github.com/kirillm/sniper-bot/internal/telegram"
	"github.com/kirillm/sniper-bot/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(utils.ParseLevel(cfg.LogLevel))
	logger.Info("Sniper bot starting...")

	loc, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		logger.Error("FATAL: load timezone: %v", err)
		os.Exit(1)
	}

	led, err := ledger.Open(cfg.Engine.LedgerFile, cfg.Engine.Account,
		cfg.Trading.Thresholds.MaxDailyTrades, cfg.Trading.Thresholds.MaxSimultaneousPositions, logger)
	if err != nil {
		logger.Error("FATAL: open ledger: %v", err)
		os.Exit(1)
	}

	broker := exchange.NewKiteClient(
		cfg.Broker.APIKey,
		cfg.Broker.AccessToken,
		cfg.Broker.BaseURL,
		cfg.Broker.Timeout,
		cfg.Broker.MaxRetries,
		cfg.Broker.RateLimit,
		logger,
	)

	var notifier engine.Notifier = telegram.NopNotifier{}
	if cfg.Telegram.Enabled {
		tn, err := telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Error("FATAL: init telegram: %v", err)
			os.Exit(1)
		}
		notifier = tn
	} else {
		logger.Warn("Telegram disabled, notifications go to log only")
	}

	var journal domain.TradeRepository
	var pnlRepo domain.PnLRepository
	if cfg.Database.Enabled {
		db, err := storage.NewPostgresStorage(
			cfg.Database.Host, cfg.Database.Port,
			cfg.Database.User, cfg.Database.Password,
			cfg.Database.DBName, cfg.Database.SSLMode,
			cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			logger.Error("FATAL: init storage: %v", err)
			os.Exit(1)
		}
		defer db.Close()
		journal = db.Trades()
		pnlRepo = db.PnL()
		logger.Info("Trade journal enabled: postgres %s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
	} else {
		logger.Warn("Database disabled, trade journal is off")
	}

	th := cfg.Trading.Thresholds
	provider := confidence.NewHeuristic()
	eng := engine.New(
		cfg.Engine,
		cfg.Trading,
		broker,
		led,
		signals.NewEvaluator(provider, th.AISupportMin, logger),
		exits.NewEvaluator(th, provider, logger),
		gap.NewHandler(th, logger),
		rollover.NewManager(th, logger),
		orders.NewSelector(th),
		notifier,
		journal,
		pnlRepo,
		loc,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		logger.Error("FATAL: start engine: %v", err)
		os.Exit(1)
	}

	srv := api.NewServer(logger, led, journal, pnlRepo, cfg.Engine.APIPort)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped: %v", err)
		}
	}()

	logger.Info("Sniper bot is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutdown signal received, stopping...")
	cancel()
	eng.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown: %v", err)
	}
	logger.Info("Sniper bot stopped")
}
