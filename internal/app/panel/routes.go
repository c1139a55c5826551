// Package panel собирает HTTP API панели: административные маршруты,
// маршруты мини-приложения, webhook провайдера, метрики и документацию.
package panel

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/channel-panel/internal/http/handlers/auth"
	"github.com/magabrotheeeer/channel-panel/internal/http/handlers/broadcast"
	"github.com/magabrotheeeer/channel-panel/internal/http/handlers/channel"
	"github.com/magabrotheeeer/channel-panel/internal/http/handlers/demo"
	"github.com/magabrotheeeer/channel-panel/internal/http/handlers/discount"
	"github.com/magabrotheeeer/channel-panel/internal/http/handlers/health"
	"github.com/magabrotheeeer/channel-panel/internal/http/handlers/miniapp"
	"github.com/magabrotheeeer/channel-panel/internal/http/handlers/payment"
	"github.com/magabrotheeeer/channel-panel/internal/http/handlers/product"
	"github.com/magabrotheeeer/channel-panel/internal/http/handlers/promo"
	"github.com/magabrotheeeer/channel-panel/internal/http/handlers/subscription"
	"github.com/magabrotheeeer/channel-panel/internal/http/handlers/user"
	"github.com/magabrotheeeer/channel-panel/internal/http/middlewarectx"
)

// Handlers обработчики и зависимости middleware, из которых собирается роутер.
type Handlers struct {
	Identity  middlewarectx.Identity
	Tokens    middlewarectx.TokenParser
	Authority middlewarectx.AdminChecker
	Limiter   *middlewarectx.RateLimiter

	Health        *health.Handler
	Auth          *auth.Handler
	IPN           *payment.IPNHandler
	MiniApp       *miniapp.Handler
	Products      *product.Handler
	Channels      *channel.Handler
	Subscriptions *subscription.Handler
	Payments      *payment.Handler
	Discounts     *discount.Handler
	Promos        *promo.Handler
	Demos         *demo.Handler
	Users         *user.Handler
	Broadcasts    *broadcast.Handler
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, h Handlers) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health.ServeHTTP)

		// Открытые конечные точки с ограничением частоты
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(h.Limiter, logger))
			r.Post("/auth/telegram", h.Auth.ServeHTTP)
			r.Post("/payments/ipn", h.IPN.ServeHTTP)
		})

		// Мини-приложение
		r.Route("/app", func(r chi.Router) {
			r.Use(middlewarectx.Auth(h.Identity, h.Tokens, logger))
			r.Use(middlewarectx.RateLimitMiddleware(h.Limiter, logger))
			r.Get("/me", h.MiniApp.Me)
			r.Get("/products", h.Products.Catalog)
			r.Get("/subscriptions", h.MiniApp.Subscriptions)
			r.Post("/demo", h.MiniApp.RequestDemo)
			r.Post("/payments", h.MiniApp.Purchase)
			r.Get("/payments/{id}", h.MiniApp.Payment)
			r.Post("/promo/validate", h.Promos.Validate)
		})

		// Администрирование
		r.Route("/admin", func(r chi.Router) {
			r.Use(middlewarectx.Auth(h.Identity, h.Tokens, logger))
			r.Use(middlewarectx.AdminOnly(h.Authority, logger))

			r.Route("/products", func(r chi.Router) {
				r.Get("/", h.Products.List)
				r.Post("/", h.Products.Create)
				r.Get("/{id}", h.Products.Get)
				r.Put("/{id}", h.Products.Update)
				r.Delete("/{id}", h.Products.Delete)
			})
			r.Route("/channels", func(r chi.Router) {
				r.Get("/", h.Channels.List)
				r.Post("/", h.Channels.Create)
				r.Get("/{id}", h.Channels.Get)
				r.Put("/{id}", h.Channels.Update)
				r.Delete("/{id}", h.Channels.Delete)
			})
			r.Route("/subscriptions", func(r chi.Router) {
				r.Get("/", h.Subscriptions.List)
				r.Post("/", h.Subscriptions.Grant)
				r.Get("/{id}", h.Subscriptions.Get)
				r.Patch("/{id}/status", h.Subscriptions.UpdateStatus)
				r.Post("/{id}/extend", h.Subscriptions.Extend)
				r.Delete("/{id}", h.Subscriptions.Delete)
			})
			r.Route("/payments", func(r chi.Router) {
				r.Get("/", h.Payments.List)
				r.Get("/{id}", h.Payments.Get)
				r.Post("/{id}/confirm", h.Payments.Confirm)
				r.Post("/{id}/reject", h.Payments.Reject)
				r.Post("/{id}/reset", h.Payments.Reset)
				r.Post("/{id}/recheck", h.Payments.Recheck)
			})
			r.Route("/discounts", func(r chi.Router) {
				r.Get("/", h.Discounts.List)
				r.Post("/", h.Discounts.Create)
				r.Get("/{id}", h.Discounts.Get)
				r.Put("/{id}", h.Discounts.Update)
				r.Delete("/{id}", h.Discounts.Delete)
			})
			r.Route("/promo-codes", func(r chi.Router) {
				r.Get("/", h.Promos.List)
				r.Post("/", h.Promos.Create)
				r.Get("/{id}", h.Promos.Get)
				r.Put("/{id}", h.Promos.Update)
				r.Delete("/{id}", h.Promos.Delete)
			})
			r.Route("/demo-access", func(r chi.Router) {
				r.Get("/", h.Demos.List)
				r.Post("/", h.Demos.Grant)
				r.Delete("/{id}", h.Demos.Revoke)
			})
			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.Users.List)
				r.Get("/{id}", h.Users.Get)
				r.Delete("/{id}", h.Users.Delete)
			})
			r.Route("/admins", func(r chi.Router) {
				r.Get("/", h.Users.Admins)
				r.Post("/", h.Users.GrantAdmin)
				r.Delete("/{id}", h.Users.RevokeAdmin)
			})
			r.Route("/broadcasts", func(r chi.Router) {
				r.Get("/", h.Broadcasts.List)
				r.Post("/", h.Broadcasts.Create)
				r.Post("/preview", h.Broadcasts.PreviewAudience)
				r.Get("/{id}", h.Broadcasts.Get)
				r.Put("/{id}", h.Broadcasts.Update)
				r.Delete("/{id}", h.Broadcasts.Delete)
				r.Get("/{id}/preview", h.Broadcasts.Preview)
				r.Post("/{id}/send", h.Broadcasts.Send)
				r.Post("/{id}/schedule", h.Broadcasts.Schedule)
				r.Post("/{id}/cancel", h.Broadcasts.Cancel)
				r.Get("/{id}/stats", h.Broadcasts.Stats)
			})
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
