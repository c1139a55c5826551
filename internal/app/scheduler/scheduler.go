// Package scheduler содержит приложение планировщика: истечение доступов,
// опрос незавершённых платежей и запуск запланированных рассылок.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/channel-panel/internal/cache"
	"github.com/magabrotheeeer/channel-panel/internal/config"
	"github.com/magabrotheeeer/channel-panel/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/paymentprovider"
	"github.com/magabrotheeeer/channel-panel/internal/services/audience"
	broadcastservice "github.com/magabrotheeeer/channel-panel/internal/services/broadcast"
	"github.com/magabrotheeeer/channel-panel/internal/services/channelsync"
	paymentservice "github.com/magabrotheeeer/channel-panel/internal/services/payment"
	promoservice "github.com/magabrotheeeer/channel-panel/internal/services/promo"
	schedulerservice "github.com/magabrotheeeer/channel-panel/internal/services/scheduler"
	"github.com/magabrotheeeer/channel-panel/internal/storage/repository"
	"github.com/magabrotheeeer/channel-panel/internal/telegram"
)

const (
	dbReadyAttempts = 10
	dbReadyDelay    = 3 * time.Second
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.SchedulerService
	// closers закрываются в обратном порядке открытия.
	closers []namedCloser
	logger  *slog.Logger
}

type namedCloser struct {
	name string
	c    io.Closer
}

// New подключает брокер, хранилища и Bot API и собирает сервис планировщика.
// Схему применяет panel, поэтому планировщик ждёт её появления.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger}

	conn, err := rabbitmq.Connect(ctx, logger, cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	a.track("rabbitmq connection", conn)

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetPanelQueues())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	a.track("rabbitmq channel", ch)

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	a.track("database", db.DB)

	if err := waitForSchema(ctx, db, logger); err != nil {
		a.close()
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}
	a.track("redis", cacheRedis)

	tg, err := telegram.New(cfg.Telegram)
	if err != nil {
		a.close()
		return nil, err
	}

	publisher := rabbitmq.NewPublisher(ch)
	syncer := channelsync.New(tg, cacheRedis, db, logger)
	payments := paymentservice.New(db, paymentprovider.NewClient(cfg.PaymentProvider),
		promoservice.New(db, logger), syncer, tg, cfg.PaymentProvider, logger)
	broadcasts := broadcastservice.New(db, audience.New(db, logger), publisher, tg, logger)

	a.schedulerService = schedulerservice.NewSchedulerService(db, publisher, payments, broadcasts, cfg.Scheduler, logger)
	return a, nil
}

func waitForSchema(ctx context.Context, db *repository.Storage, logger *slog.Logger) error {
	var err error
	for attempt := 1; attempt <= dbReadyAttempts; attempt++ {
		if err = repository.CheckDatabaseReady(db); err == nil {
			return nil
		}
		logger.Warn("database schema not ready", slog.Int("attempt", attempt), sl.Err(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dbReadyDelay):
		}
	}
	return fmt.Errorf("database not ready after %d attempts: %w", dbReadyAttempts, err)
}

func (a *App) track(name string, c io.Closer) {
	a.closers = append(a.closers, namedCloser{name: name, c: c})
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].c.Close(); err != nil {
			a.logger.Error("failed to close resource", slog.String("resource", a.closers[i].name), sl.Err(err))
		}
	}
	a.closers = nil
}

// Run запускает планировщик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	a.schedulerService.Run(ctx)

	a.logger.Info("shutting down scheduler service")
	a.close()
	return nil
}
