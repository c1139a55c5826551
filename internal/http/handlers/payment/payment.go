// Package payment реализует HTTP-обработчики платежей: административную сверку
// (подтверждение, отклонение, сброс, перепроверка у провайдера) и приём IPN-уведомлений.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/http/request"
	"github.com/magabrotheeeer/channel-panel/internal/http/response"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Service описывает административную бизнес-логику платежей.
type Service interface {
	List(ctx context.Context, filter models.PaymentFilter) (*models.Page[*models.Payment], error)
	Get(ctx context.Context, id string) (*models.Payment, error)
	Confirm(ctx context.Context, id, txHash string) (*models.Payment, error)
	Reject(ctx context.Context, id, txHash string) (*models.Payment, error)
	Reset(ctx context.Context, id string) (*models.Payment, error)
	Recheck(ctx context.Context, id string) (*models.StatusChange, error)
}

// Handler обрабатывает административные запросы к платежам.
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

// paymentID разбирает uuid платежа из URL.
func paymentID(r *http.Request) (string, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return "", fmt.Errorf("%w: invalid payment id", apperr.ErrValidation)
	}
	return id.String(), nil
}

// List godoc
// @Summary Список платежей
// @Tags Payments
// @Produce json
// @Param status query string false "pending, success или failed"
// @Param user_id query string false "ID пользователя"
// @Param product_id query string false "ID продукта"
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response
// @Router /admin/payments [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.payment.List")

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

	page, err := h.service.List(r.Context(), models.PaymentFilter{
		Status:     r.URL.Query().Get("status"),
		UserID:     userID,
		ProductID:  productID,
		Pagination: request.Pagination(r),
	})
	if err != nil {
		log.Error("failed to list payments", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, page)
}

// Get godoc
// @Summary Получить платеж
// @Tags Payments
// @Produce json
// @Param id path string true "UUID платежа"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Платеж не найден"
// @Router /admin/payments/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.payment.Get")

	id, err := paymentID(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		log.Error("failed to get payment", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, p)
}

// Confirm godoc
// @Summary Подтвердить платеж
// @Description Переводит ожидающий платеж в success и выдаёт подписку. Повторное подтверждение возвращает 409.
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "UUID платежа"
// @Param request body models.DummyPaymentAction false "Хэш транзакции"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Платеж не найден"
// @Failure 409 {object} response.ErrorResponse "Платеж уже обработан"
// @Router /admin/payments/{id}/confirm [post]
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.payment.Confirm")

	id, err := paymentID(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	var req models.DummyPaymentAction
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	p, err := h.service.Confirm(r.Context(), id, req.TxHash)
	if err != nil {
		log.Error("failed to confirm payment", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("payment confirmed", slog.String("payment_id", id))
	response.OK(w, r, p)
}

// Reject godoc
// @Summary Отклонить платеж
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "UUID платежа"
// @Param request body models.DummyPaymentAction false "Хэш транзакции"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Платеж не найден"
// @Failure 409 {object} response.ErrorResponse "Платеж уже обработан"
// @Router /admin/payments/{id}/reject [post]
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.payment.Reject")

	id, err := paymentID(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	var req models.DummyPaymentAction
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	p, err := h.service.Reject(r.Context(), id, req.TxHash)
	if err != nil {
		log.Error("failed to reject payment", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("payment rejected", slog.String("payment_id", id))
	response.OK(w, r, p)
}

// Reset godoc
// @Summary Вернуть платеж в pending
// @Description Подписки, созданные подтверждением, не затрагиваются.
// @Tags Payments
// @Produce json
// @Param id path string true "UUID платежа"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Платеж не найден"
// @Failure 409 {object} response.ErrorResponse "Платеж ещё не обработан"
// @Router /admin/payments/{id}/reset [post]
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.payment.Reset")

	id, err := paymentID(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	p, err := h.service.Reset(r.Context(), id)
	if err != nil {
		log.Error("failed to reset payment", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("payment reset", slog.String("payment_id", id))
	response.OK(w, r, p)
}

// Recheck godoc
// @Summary Перепроверить платеж у провайдера
// @Tags Payments
// @Produce json
// @Param id path string true "UUID платежа"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Платеж не найден"
// @Failure 422 {object} response.ErrorResponse "Платеж не связан с провайдером"
// @Failure 502 {object} response.ErrorResponse "Провайдер недоступен"
// @Router /admin/payments/{id}/recheck [post]
func (h *Handler) Recheck(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.payment.Recheck")

	id, err := paymentID(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	change, err := h.service.Recheck(r.Context(), id)
	if err != nil {
		log.Error("failed to recheck payment", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("payment rechecked",
		slog.String("payment_id", id),
		slog.String("previous_status", change.PreviousStatus),
		slog.String("status", change.Payment.Status),
	)
	response.OK(w, r, change)
}
