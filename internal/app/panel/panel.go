package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/channel-panel/internal/cache"
	"github.com/magabrotheeeer/channel-panel/internal/config"
	authhandler "github.com/magabrotheeeer/channel-panel/internal/http/handlers/auth"
	broadcasthandler "github.com/magabrotheeeer/channel-panel/internal/http/handlers/broadcast"
	channelhandler "github.com/magabrotheeeer/channel-panel/internal/http/handlers/channel"
	demohandler "github.com/magabrotheeeer/channel-panel/internal/http/handlers/demo"
	discounthandler "github.com/magabrotheeeer/channel-panel/internal/http/handlers/discount"
	"github.com/magabrotheeeer/channel-panel/internal/http/handlers/health"
	"github.com/magabrotheeeer/channel-panel/internal/http/handlers/miniapp"
	paymenthandler "github.com/magabrotheeeer/channel-panel/internal/http/handlers/payment"
	producthandler "github.com/magabrotheeeer/channel-panel/internal/http/handlers/product"
	promohandler "github.com/magabrotheeeer/channel-panel/internal/http/handlers/promo"
	subscriptionhandler "github.com/magabrotheeeer/channel-panel/internal/http/handlers/subscription"
	userhandler "github.com/magabrotheeeer/channel-panel/internal/http/handlers/user"
	"github.com/magabrotheeeer/channel-panel/internal/http/middlewarectx"
	"github.com/magabrotheeeer/channel-panel/internal/lib/jwt"
	"github.com/magabrotheeeer/channel-panel/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/migrations"
	"github.com/magabrotheeeer/channel-panel/internal/paymentprovider"
	"github.com/magabrotheeeer/channel-panel/internal/services/audience"
	broadcastservice "github.com/magabrotheeeer/channel-panel/internal/services/broadcast"
	channelservice "github.com/magabrotheeeer/channel-panel/internal/services/channel"
	"github.com/magabrotheeeer/channel-panel/internal/services/channelsync"
	demoservice "github.com/magabrotheeeer/channel-panel/internal/services/demo"
	discountservice "github.com/magabrotheeeer/channel-panel/internal/services/discount"
	"github.com/magabrotheeeer/channel-panel/internal/services/identity"
	paymentservice "github.com/magabrotheeeer/channel-panel/internal/services/payment"
	productservice "github.com/magabrotheeeer/channel-panel/internal/services/product"
	promoservice "github.com/magabrotheeeer/channel-panel/internal/services/promo"
	subscriptionservice "github.com/magabrotheeeer/channel-panel/internal/services/subscription"
	userservice "github.com/magabrotheeeer/channel-panel/internal/services/user"
	"github.com/magabrotheeeer/channel-panel/internal/storage/repository"
	"github.com/magabrotheeeer/channel-panel/internal/telegram"
)

// App HTTP-приложение панели.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New подключает хранилища и брокер, применяет миграции и собирает роутер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath, logger); err != nil {
		db.DB.Close()
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		db.DB.Close()
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	tg, err := telegram.New(cfg.Telegram)
	if err != nil {
		db.DB.Close()
		cacheRedis.Close()
		return nil, err
	}

	conn, err := rabbitmq.Connect(ctx, logger, cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		db.DB.Close()
		cacheRedis.Close()
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetPanelQueues())
	if err != nil {
		conn.Close()
		db.DB.Close()
		cacheRedis.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	publisher := rabbitmq.NewPublisher(ch)

	jwtMaker := jwt.NewMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	syncer := channelsync.New(tg, cacheRedis, db, logger)
	verifier := identity.NewVerifier(db, cfg.Telegram, cfg.Auth, logger)
	authority := identity.NewAuthority(db, cfg.Auth, logger)
	if err := authority.ProvisionBootstrap(ctx); err != nil {
		logger.Error("failed to provision bootstrap admins", sl.Err(err))
	}

	productService := productservice.New(db, cacheRedis, logger)
	channelService := channelservice.New(db, productService, logger)
	promoService := promoservice.New(db, logger)
	discountService := discountservice.New(db, logger)
	subscriptionService := subscriptionservice.New(db, syncer, logger)
	demoService := demoservice.New(db, syncer, logger)
	userService := userservice.New(db, syncer, logger)
	paymentService := paymentservice.New(db, paymentprovider.NewClient(cfg.PaymentProvider),
		promoService, syncer, tg, cfg.PaymentProvider, logger)
	broadcastService := broadcastservice.New(db, audience.New(db, logger), publisher, tg, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Handlers{
		Identity:  verifier,
		Tokens:    jwtMaker,
		Authority: authority,
		Limiter:   middlewarectx.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),

		Health: health.New(logger, map[string]health.Pinger{
			"postgres": db,
			"redis":    cacheRedis,
			"rabbitmq": health.PingFunc(func(context.Context) error {
				if conn.IsClosed() {
					return amqp.ErrClosed
				}
				return nil
			}),
		}),
		Auth:          authhandler.New(logger, verifier, authority, jwtMaker),
		IPN:           paymenthandler.NewIPN(logger, paymentService, cfg.PaymentProvider.IPNSecret),
		MiniApp:       miniapp.New(logger, authority, subscriptionService, demoService, paymentService),
		Products:      producthandler.New(logger, productService),
		Channels:      channelhandler.New(logger, channelService),
		Subscriptions: subscriptionhandler.New(logger, subscriptionService),
		Payments:      paymenthandler.New(logger, paymentService),
		Discounts:     discounthandler.New(logger, discountService),
		Promos:        promohandler.New(logger, promoService),
		Demos:         demohandler.New(logger, demoService),
		Users:         userhandler.New(logger, userService),
		Broadcasts:    broadcasthandler.New(logger, broadcastService),
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
		conn:   conn,
		ch:     ch,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его при отмене ctx.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
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
}
