// Package miniapp реализует HTTP-обработчики мини-приложения Telegram для конечного пользователя:
// профиль, собственные подписки, запрос пробного доступа и покупка продукта.
// Пользователь берётся из контекста, его кладёт middlewarectx.Auth.
package miniapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/http/middlewarectx"
	"github.com/magabrotheeeer/channel-panel/internal/http/request"
	"github.com/magabrotheeeer/channel-panel/internal/http/response"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// AdminChecker определяет права администратора.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// SubscriptionService отдаёт подписки пользователя.
type SubscriptionService interface {
	ForUser(ctx context.Context, userID int64) ([]*models.Subscription, error)
}

// DemoService выдаёт пробный доступ по запросу пользователя.
type DemoService interface {
	Request(ctx context.Context, userID int64, req models.DummyDemoRequest) (*models.AccessChange[*models.DemoAccess], error)
}

// PaymentService создаёт платежи и отдаёт их владельцу.
type PaymentService interface {
	Create(ctx context.Context, userID int64, req models.DummyPurchase) (*models.Payment, error)
	GetForUser(ctx context.Context, userID int64, id string) (*models.Payment, error)
}

// Profile ответ /app/me.
type Profile struct {
	User    *models.User `json:"user"`
	IsAdmin bool         `json:"is_admin"`
}

// Handler обрабатывает запросы мини-приложения.
type Handler struct {
	log           *slog.Logger
	authority     AdminChecker
	subscriptions SubscriptionService
	demos         DemoService
	payments      PaymentService
	validate      *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, authority AdminChecker, subscriptions SubscriptionService, demos DemoService, payments PaymentService) *Handler {
	return &Handler{
		log:           log,
		authority:     authority,
		subscriptions: subscriptions,
		demos:         demos,
		payments:      payments,
		validate:      validator.New(),
	}
}

func caller(w http.ResponseWriter, r *http.Request, log *slog.Logger) (*models.User, bool) {
	u, ok := middlewarectx.UserFrom(r.Context())
	if !ok {
		log.Error("user not found in context")
		response.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
	}
	return u, ok
}

// Me godoc
// @Summary Текущий пользователь
// @Tags MiniApp
// @Produce json
// @Security TelegramInitData
// @Success 200 {object} response.Response{data=Profile}
// @Failure 401 {object} response.ErrorResponse "Не авторизован"
// @Router /app/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.miniapp.Me")

	u, ok := caller(w, r, log)
	if !ok {
		return
	}
	isAdmin, err := h.authority.IsAdmin(r.Context(), u.ID)
	if err != nil {
		log.Error("failed to check admin", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, Profile{User: u, IsAdmin: isAdmin})
}

// Subscriptions godoc
// @Summary Мои подписки
// @Tags MiniApp
// @Produce json
// @Security TelegramInitData
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse "Не авторизован"
// @Router /app/subscriptions [get]
func (h *Handler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.miniapp.Subscriptions")

	u, ok := caller(w, r, log)
	if !ok {
		return
	}
	subs, err := h.subscriptions.ForUser(r.Context(), u.ID)
	if err != nil {
		log.Error("failed to list subscriptions", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	if subs == nil {
		subs = []*models.Subscription{}
	}
	response.OK(w, r, map[string]any{"items": subs})
}

// RequestDemo godoc
// @Summary Запросить пробный доступ
// @Description Один активный пробный доступ на пользователя и один за всё время на продукт.
// @Tags MiniApp
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param request body models.DummyDemoRequest true "Продукт"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Продукт не поддерживает пробный доступ"
// @Failure 409 {object} response.ErrorResponse "Пробный доступ уже использован"
// @Router /app/demo [post]
func (h *Handler) RequestDemo(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.miniapp.RequestDemo")

	u, ok := caller(w, r, log)
	if !ok {
		return
	}
	var req models.DummyDemoRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	res, err := h.demos.Request(r.Context(), u.ID, req)
	if err != nil {
		log.Info("demo request refused", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("demo granted", slog.Int64("user_id", u.ID), slog.Int64("product_id", req.ProductID))
	response.Created(w, r, res)
}

// Purchase godoc
// @Summary Купить продукт
// @Description Создаёт платёж у провайдера и возвращает ссылку на оплату.
// @Tags MiniApp
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param request body models.DummyPurchase true "Продукт, валюта и промокод"
// @Success 201 {object} response.Response{data=models.Payment}
// @Failure 400 {object} response.ErrorResponse "Продукт недоступен или промокод недействителен"
// @Failure 502 {object} response.ErrorResponse "Провайдер недоступен"
// @Router /app/payments [post]
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.miniapp.Purchase")

	u, ok := caller(w, r, log)
	if !ok {
		return
	}
	var req models.DummyPurchase
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	p, err := h.payments.Create(r.Context(), u.ID, req)
	if err != nil {
		log.Error("failed to create payment", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("payment created", slog.String("payment_id", p.ID), slog.Int64("user_id", u.ID))
	response.Created(w, r, p)
}

// Payment godoc
// @Summary Статус моего платежа
// @Description Ожидающий платёж перед ответом сверяется с провайдером.
// @Tags MiniApp
// @Produce json
// @Security TelegramInitData
// @Param id path string true "ID платежа"
// @Success 200 {object} response.Response{data=models.Payment}
// @Failure 404 {object} response.ErrorResponse "Платёж не найден"
// @Router /app/payments/{id} [get]
func (h *Handler) Payment(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.miniapp.Payment")

	u, ok := caller(w, r, log)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		response.Fail(w, r, fmt.Errorf("%w: invalid payment id", apperr.ErrValidation))
		return
	}
	p, err := h.payments.GetForUser(r.Context(), u.ID, id)
	if err != nil {
		log.Error("failed to get payment", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, p)
}
