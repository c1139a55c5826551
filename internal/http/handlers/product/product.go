// Package product реализует административные HTTP-обработчики каталога продуктов
// и публичный каталог мини-приложения.
package product

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

// Service описывает бизнес-логику продуктов.
type Service interface {
	Create(ctx context.Context, req models.DummyProduct) (*models.Product, error)
	Get(ctx context.Context, id int64) (*models.Product, error)
	List(ctx context.Context, filter models.ProductFilter) (*models.Page[*models.Product], error)
	Update(ctx context.Context, id int64, req models.DummyProduct) (*models.Product, error)
	Delete(ctx context.Context, id int64) error
	Catalog(ctx context.Context) ([]*models.Product, error)
}

// Handler обрабатывает запросы к продуктам.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис бизнес-логики продуктов
	validate *validator.Validate // Валидатор структуры входящих данных
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// Create godoc
// @Summary Создать продукт
// @Tags Products
// @Accept json
// @Produce json
// @Param request body models.DummyProduct true "Данные продукта"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON, цена или ошибка валидации"
// @Failure 409 {object} response.ErrorResponse "Канал не найден"
// @Router /admin/products [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.product.Create")

	var req models.DummyProduct
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}

	p, err := h.service.Create(r.Context(), req)
	if err != nil {
		log.Error("failed to create product", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("product created", slog.Int64("id", p.ID))
	response.Created(w, r, p)
}

// Get godoc
// @Summary Получить продукт
// @Tags Products
// @Produce json
// @Param id path string true "ID продукта"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Продукт не найден"
// @Router /admin/products/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.product.Get")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		log.Error("failed to get product", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, p)
}

// List godoc
// @Summary Список продуктов
// @Tags Products
// @Produce json
// @Param is_active query bool false "Только активные или неактивные"
// @Param channel_id query string false "ID канала"
// @Param search query string false "Подстрока названия"
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response
// @Router /admin/products [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.product.List")

	isActive, err := request.OptionalBool(r, "is_active")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	channelID, err := request.OptionalInt64(r, "channel_id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}

	page, err := h.service.List(r.Context(), models.ProductFilter{
		IsActive:   isActive,
		ChannelID:  channelID,
		Search:     request.Search(r),
		Pagination: request.Pagination(r),
	})
	if err != nil {
		log.Error("failed to list products", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, page)
}

// Update godoc
// @Summary Изменить продукт
// @Tags Products
// @Accept json
// @Produce json
// @Param id path string true "ID продукта"
// @Param request body models.DummyProduct true "Данные продукта"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 404 {object} response.ErrorResponse "Продукт не найден"
// @Router /admin/products/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.product.Update")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	var req models.DummyProduct
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}

	p, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		log.Error("failed to update product", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("product updated", slog.Int64("id", id))
	response.OK(w, r, p)
}

// Delete godoc
// @Summary Удалить продукт
// @Description Удаление запрещено, пока у продукта есть активные подписки.
// @Tags Products
// @Produce json
// @Param id path string true "ID продукта"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Продукт не найден"
// @Failure 409 {object} response.ErrorResponse "Есть активные подписки"
// @Router /admin/products/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.product.Delete")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		log.Error("failed to delete product", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("product deleted", slog.Int64("id", id))
	response.OK(w, r, map[string]any{"deleted": true})
}

// Catalog godoc
// @Summary Каталог активных продуктов
// @Tags MiniApp
// @Produce json
// @Success 200 {object} response.Response
// @Router /app/products [get]
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.product.Catalog")

	items, err := h.service.Catalog(r.Context())
	if err != nil {
		log.Error("failed to load catalog", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	if items == nil {
		items = []*models.Product{}
	}
	response.OK(w, r, map[string]any{"items": items})
}
