// Package discount реализует административные HTTP-обработчики автоматических скидок.
package discount

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

// Service описывает бизнес-логику скидок.
type Service interface {
	Create(ctx context.Context, req models.DummyDiscount) (*models.Discount, error)
	Get(ctx context.Context, id int64) (*models.Discount, error)
	List(ctx context.Context, filter models.DiscountFilter) (*models.Page[*models.Discount], error)
	Update(ctx context.Context, id int64, req models.DummyDiscount) (*models.Discount, error)
	Delete(ctx context.Context, id int64) error
}

// Handler обрабатывает запросы к скидкам.
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
// @Summary Создать скидку
// @Description percent: 0 < value <= 100, fixed: value > 0. ends_at должен быть позже starts_at.
// @Tags Discounts
// @Accept json
// @Produce json
// @Param request body models.DummyDiscount true "Данные скидки"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректное значение или ошибка валидации"
// @Router /admin/discounts [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.discount.Create")

	var req models.DummyDiscount
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	d, err := h.service.Create(r.Context(), req)
	if err != nil {
		log.Error("failed to create discount", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("discount created", slog.Int64("id", d.ID))
	response.Created(w, r, d)
}

// Get godoc
// @Summary Получить скидку
// @Tags Discounts
// @Produce json
// @Param id path string true "ID скидки"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Скидка не найдена"
// @Router /admin/discounts/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.discount.Get")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		log.Error("failed to get discount", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, d)
}

// List godoc
// @Summary Список скидок
// @Tags Discounts
// @Produce json
// @Param product_id query string false "ID продукта"
// @Param is_active query bool false "Активность"
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response
// @Router /admin/discounts [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.discount.List")

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

	page, err := h.service.List(r.Context(), models.DiscountFilter{
		ProductID:  productID,
		IsActive:   isActive,
		Pagination: request.Pagination(r),
	})
	if err != nil {
		log.Error("failed to list discounts", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, page)
}

// Update godoc
// @Summary Изменить скидку
// @Tags Discounts
// @Accept json
// @Produce json
// @Param id path string true "ID скидки"
// @Param request body models.DummyDiscount true "Данные скидки"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Скидка не найдена"
// @Router /admin/discounts/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.discount.Update")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	var req models.DummyDiscount
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	d, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		log.Error("failed to update discount", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, d)
}

// Delete godoc
// @Summary Удалить скидку
// @Tags Discounts
// @Produce json
// @Param id path string true "ID скидки"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Скидка не найдена"
// @Router /admin/discounts/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.discount.Delete")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		log.Error("failed to delete discount", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("discount deleted", slog.Int64("id", id))
	response.OK(w, r, map[string]any{"deleted": true})
}
