// Package sender содержит приложение-потребитель очередей: доставку сообщений рассылок
// и синхронизацию доступа к каналам.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/channel-panel/internal/cache"
	"github.com/magabrotheeeer/channel-panel/internal/config"
	"github.com/magabrotheeeer/channel-panel/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/services/audience"
	broadcastservice "github.com/magabrotheeeer/channel-panel/internal/services/broadcast"
	"github.com/magabrotheeeer/channel-panel/internal/services/channelsync"
	senderservice "github.com/magabrotheeeer/channel-panel/internal/services/sender"
	"github.com/magabrotheeeer/channel-panel/internal/storage/repository"
	"github.com/magabrotheeeer/channel-panel/internal/telegram"
)

// App приложение sender.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	db            *repository.Storage
	cache         *cache.Cache
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

// New подключает хранилища, брокер и Bot API.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		db.DB.Close()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}
	tg, err := telegram.New(cfg.Telegram)
	if err != nil {
		cacheRedis.Close()
		db.DB.Close()
		return nil, err
	}
	conn, err := rabbitmq.Connect(ctx, logger, cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		cacheRedis.Close()
		db.DB.Close()
		return nil, err
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetPanelQueues())
	if err != nil {
		conn.Close()
		cacheRedis.Close()
		db.DB.Close()
		return nil, err
	}

	broadcasts := broadcastservice.New(db, audience.New(db, logger), rabbitmq.NewPublisher(ch), tg, logger)
	senderService := senderservice.NewSenderService(broadcasts, channelsync.New(tg, cacheRedis, db, logger), logger)

	return &App{
		conn:          conn,
		ch:            ch,
		db:            db,
		cache:         cacheRedis,
		senderService: senderService,
		logger:        logger,
	}, nil
}

// Run запускает потребителей и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	queues := rabbitmq.GetPanelQueues()
	handlers := map[string]rabbitmq.Handler{
		rabbitmq.RoutingBroadcastDeliver: a.senderService.HandleDelivery,
		rabbitmq.RoutingAccessSync:       a.senderService.HandleAccessSync,
	}
	for _, q := range queues {
		err := rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, q.QueueName, handlers[q.RoutingKey])
		if err != nil {
			a.logger.Error("failed to start consumer", slog.String("queue", q.QueueName), sl.Err(err))
			return err
		}
	}

	<-ctx.Done()
	a.logger.Info("Sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close redis", sl.Err(err))
	}
	if err := a.db.DB.Close(); err != nil {
		a.logger.Error("failed to close database", sl.Err(err))
	}

	return nil
}
