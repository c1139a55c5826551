// Package channel реализует административные HTTP-обработчики платных каналов.
package channel

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

// Service описывает бизнес-логику каналов.
type Service interface {
	Create(ctx context.Context, req models.DummyChannel) (*models.Channel, error)
	Get(ctx context.Context, id int64) (*models.Channel, error)
	List(ctx context.Context, p models.Pagination) (*models.Page[*models.Channel], error)
	Update(ctx context.Context, id int64, req models.DummyChannel) (*models.Channel, error)
	Delete(ctx context.Context, id int64) error
}

// Handler обрабатывает запросы к каналам.
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
// @Summary Добавить канал
// @Description id — chat id канала в Telegram, бот должен быть его администратором.
// @Tags Channels
// @Accept json
// @Produce json
// @Param request body models.DummyChannel true "Данные канала"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 409 {object} response.ErrorResponse "Канал уже добавлен"
// @Router /admin/channels [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.channel.Create")

	var req models.DummyChannel
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	c, err := h.service.Create(r.Context(), req)
	if err != nil {
		log.Error("failed to create channel", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("channel created", slog.Int64("id", c.ID))
	response.Created(w, r, c)
}

// Get godoc
// @Summary Получить канал
// @Tags Channels
// @Produce json
// @Param id path string true "ID канала"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Канал не найден"
// @Router /admin/channels/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.channel.Get")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		log.Error("failed to get channel", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, c)
}

// List godoc
// @Summary Список каналов
// @Tags Channels
// @Produce json
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response
// @Router /admin/channels [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.channel.List")

	page, err := h.service.List(r.Context(), request.Pagination(r))
	if err != nil {
		log.Error("failed to list channels", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, page)
}

// Update godoc
// @Summary Изменить канал
// @Tags Channels
// @Accept json
// @Produce json
// @Param id path string true "ID канала"
// @Param request body models.DummyChannel true "Данные канала"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Канал не найден"
// @Router /admin/channels/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.channel.Update")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	var req models.DummyChannel
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	c, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		log.Error("failed to update channel", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, c)
}

// Delete godoc
// @Summary Удалить канал
// @Description Удаление запрещено, пока на канал ссылаются продукты.
// @Tags Channels
// @Produce json
// @Param id path string true "ID канала"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse "Канал используется продуктами"
// @Router /admin/channels/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.channel.Delete")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		log.Error("failed to delete channel", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("channel deleted", slog.Int64("id", id))
	response.OK(w, r, map[string]any{"deleted": true})
}
