package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/channel-panel/internal/app/sender"
	"github.com/magabrotheeeer/channel-panel/internal/config"
	"github.com/magabrotheeeer/channel-panel/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := sl.New(cfg.Env)

	queues := make([]string, 0, len(rabbitmq.GetPanelQueues()))
	for _, q := range rabbitmq.GetPanelQueues() {
		queues = append(queues, q.QueueName)
	}
	logger.Info("starting sender service", slog.String("env", cfg.Env), slog.Any("queues", queues))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := sender.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize sender app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("sender app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("sender app stopped gracefully")
}
