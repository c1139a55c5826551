package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/channel-panel/internal/app/scheduler"
	"github.com/magabrotheeeer/channel-panel/internal/config"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := sl.New(cfg.Env)

	logger.Info("starting scheduler",
		slog.String("env", cfg.Env),
		slog.Duration("expire_interval", cfg.Scheduler.ExpireInterval),
		slog.Duration("payment_poll_interval", cfg.Scheduler.PaymentPollInterval),
		slog.Duration("broadcast_interval", cfg.Scheduler.BroadcastInterval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := scheduler.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize scheduler app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("scheduler app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("scheduler app stopped gracefully")
}
