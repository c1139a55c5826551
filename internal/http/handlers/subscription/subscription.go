// Package subscription реализует административные HTTP-обработчики подписок.
//
// Изменение статуса, продление, выдача и удаление синхронизируют членство в канале,
// итог синхронизации возвращается в поле sync ответа.
package subscription

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/channel-panel/internal/http/request"
	"github.com/magabrotheeeer/channel-panel/internal/http/response"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

type change = models.AccessChange[*models.Subscription]

// Service описывает бизнес-логику подписок.
type Service interface {
	List(ctx context.Context, filter models.SubscriptionFilter) (*models.Page[*models.Subscription], error)
	Get(ctx context.Context, id int64) (*models.Subscription, error)
	Grant(ctx context.Context, req models.DummySubscription) (*change, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*change, error)
	Extend(ctx context.Context, id int64, days int) (*change, error)
	Delete(ctx context.Context, id int64) (*change, error)
}

// Handler обрабатывает запросы к подпискам.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// List godoc
// @Summary Список подписок
// @Tags Subscriptions
// @Produce json
// @Param status query string false "active, expired или cancelled"
// @Param user_id query string false "ID пользователя"
// @Param product_id query string false "ID продукта"
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response
// @Router /admin/subscriptions [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.subscription.List")

	userID, err := request.OptionalInt64(r, "user_id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	productID, err := request.OptionalInt64(r, "product_id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}

	page, err := h.service.List(r.Context(), models.SubscriptionFilter{
		Status:     r.URL.Query().Get("status"),
		UserID:     userID,
		ProductID:  productID,
		Pagination: request.Pagination(r),
	})
	if err != nil {
		log.Error("failed to list subscriptions", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, page)
}

// Get godoc
// @Summary Получить подписку
// @Tags Subscriptions
// @Produce json
// @Param id path string true "ID подписки"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Router /admin/subscriptions/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.subscription.Get")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	sub, err := h.service.Get(r.Context(), id)
	if err != nil {
		log.Error("failed to get subscription", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, sub)
}

// Grant godoc
// @Summary Выдать подписку вручную
// @Description Без days срок берётся из продукта. Пользователь создаётся, если ещё не заходил в мини-приложение.
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param request body models.DummySubscription true "Пользователь и продукт"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 404 {object} response.ErrorResponse "Продукт не найден"
// @Router /admin/subscriptions [post]
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.subscription.Grant")

	var req models.DummySubscription
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	res, err := h.service.Grant(r.Context(), req)
	if err != nil {
		log.Error("failed to grant subscription", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("subscription granted", slog.Int64("id", res.Item.ID), slog.Int64("user_id", req.UserID))
	response.Created(w, r, res)
}

// UpdateStatus godoc
// @Summary Сменить статус подписки
// @Description active выдаёт доступ к каналу, expired и cancelled удаляют из канала.
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "ID подписки"
// @Param request body models.DummySubscriptionStatus true "Новый статус"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Router /admin/subscriptions/{id}/status [patch]
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.subscription.UpdateStatus")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	var req models.DummySubscriptionStatus
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	res, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		log.Error("failed to update subscription status", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("subscription status updated", slog.Int64("id", id), slog.String("status", req.Status))
	response.OK(w, r, res)
}

// Extend godoc
// @Summary Продлить подписку
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "ID подписки"
// @Param request body models.DummyExtend true "Число дней"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Router /admin/subscriptions/{id}/extend [post]
func (h *Handler) Extend(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.subscription.Extend")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	var req models.DummyExtend
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	res, err := h.service.Extend(r.Context(), id, req.Days)
	if err != nil {
		log.Error("failed to extend subscription", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("subscription extended", slog.Int64("id", id), slog.Int("days", req.Days))
	response.OK(w, r, res)
}

// Delete godoc
// @Summary Удалить подписку
// @Description Активная подписка перед удалением снимает пользователя с канала.
// @Tags Subscriptions
// @Produce json
// @Param id path string true "ID подписки"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Router /admin/subscriptions/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.subscription.Delete")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	res, err := h.service.Delete(r.Context(), id)
	if err != nil {
		log.Error("failed to delete subscription", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("subscription deleted", slog.Int64("id", id))
	response.OK(w, r, res)
}
