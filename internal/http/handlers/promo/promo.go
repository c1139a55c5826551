// Package promo реализует HTTP-обработчики промокодов: административный CRUD
// и проверку кода из мини-приложения.
package promo

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

// Service описывает бизнес-логику промокодов.
type Service interface {
	Create(ctx context.Context, req models.DummyPromoCode) (*models.PromoCode, error)
	Get(ctx context.Context, id int64) (*models.PromoCode, error)
	List(ctx context.Context, filter models.PromoCodeFilter) (*models.Page[*models.PromoCode], error)
	Update(ctx context.Context, id int64, req models.DummyPromoCode) (*models.PromoCode, error)
	Delete(ctx context.Context, id int64) error
	Quote(ctx context.Context, productID int64, code string) (*models.Quote, error)
}

// Handler обрабатывает запросы к промокодам.
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

// Create godoc
// @Summary Создать промокод
// @Tags PromoCodes
// @Accept json
// @Produce json
// @Param request body models.DummyPromoCode true "Данные промокода"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 409 {object} response.ErrorResponse "Код уже существует"
// @Router /admin/promo-codes [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.promo.Create")

	var req models.DummyPromoCode
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	p, err := h.service.Create(r.Context(), req)
	if err != nil {
		log.Error("failed to create promo code", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("promo code created", slog.Int64("id", p.ID))
	response.Created(w, r, p)
}

// Get godoc
// @Summary Получить промокод
// @Tags PromoCodes
// @Produce json
// @Param id path string true "ID промокода"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Промокод не найден"
// @Router /admin/promo-codes/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.promo.Get")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		log.Error("failed to get promo code", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, p)
}

// List godoc
// @Summary Список промокодов
// @Tags PromoCodes
// @Produce json
// @Param product_id query string false "ID продукта"
// @Param is_active query bool false "Активность"
// @Param search query string false "Подстрока кода"
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response
// @Router /admin/promo-codes [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.promo.List")

	productID, err := request.OptionalInt64(r, "product_id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	isActive, err := request.OptionalBool(r, "is_active")
	if err != nil {
		response.Fail(w, r, err)
		return
	}

	page, err := h.service.List(r.Context(), models.PromoCodeFilter{
		ProductID:  productID,
		IsActive:   isActive,
		Search:     request.Search(r),
		Pagination: request.Pagination(r),
	})
	if err != nil {
		log.Error("failed to list promo codes", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, page)
}

// Update godoc
// @Summary Изменить промокод
// @Tags PromoCodes
// @Accept json
// @Produce json
// @Param id path string true "ID промокода"
// @Param request body models.DummyPromoCode true "Данные промокода"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Промокод не найден"
// @Router /admin/promo-codes/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.promo.Update")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	var req models.DummyPromoCode
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	p, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		log.Error("failed to update promo code", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, p)
}

// Delete godoc
// @Summary Удалить промокод
// @Tags PromoCodes
// @Produce json
// @Param id path string true "ID промокода"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Промокод не найден"
// @Router /admin/promo-codes/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.promo.Delete")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		log.Error("failed to delete promo code", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("promo code deleted", slog.Int64("id", id))
	response.OK(w, r, map[string]any{"deleted": true})
}

// Validate godoc
// @Summary Проверить промокод
// @Description Возвращает итоговую цену продукта с учётом скидки и промокода.
// @Tags MiniApp
// @Accept json
// @Produce json
// @Param request body models.DummyPromoValidate true "Код и продукт"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Код недействителен"
// @Failure 404 {object} response.ErrorResponse "Продукт не найден"
// @Router /app/promo/validate [post]
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.promo.Validate")

	var req models.DummyPromoValidate
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	q, err := h.service.Quote(r.Context(), req.ProductID, req.Code)
	if err != nil {
		log.Warn("promo code rejected", slog.String("code", req.Code), sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, q)
}
