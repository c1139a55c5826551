// Package broadcast реализует административные HTTP-обработчики рассылок:
// управление черновиками, превью аудитории, запуск, планирование, отмену и статистику доставки.
package broadcast

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/channel-panel/internal/http/middlewarectx"
	"github.com/magabrotheeeer/channel-panel/internal/http/request"
	"github.com/magabrotheeeer/channel-panel/internal/http/response"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Service описывает бизнес-логику рассылок.
type Service interface {
	Create(ctx context.Context, actorID int64, req models.DummyBroadcast) (*models.Broadcast, error)
	Get(ctx context.Context, id int64) (*models.Broadcast, error)
	List(ctx context.Context, filter models.BroadcastFilterParams) (*models.Page[*models.Broadcast], error)
	Update(ctx context.Context, id int64, req models.DummyBroadcast) (*models.Broadcast, error)
	Delete(ctx context.Context, id int64) error
	PreviewAudience(ctx context.Context, req models.AudienceRequest) (*models.AudiencePreview, error)
	Preview(ctx context.Context, id int64, limit int) (*models.AudiencePreview, error)
	SendNow(ctx context.Context, id int64) (*models.Broadcast, error)
	Schedule(ctx context.Context, id int64, at time.Time) (*models.Broadcast, error)
	Cancel(ctx context.Context, id int64) (*models.Broadcast, error)
	Stats(ctx context.Context, id int64) (*models.BroadcastStats, error)
}

// Handler обрабатывает запросы к рассылкам.
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
// @Summary Список рассылок
// @Tags Broadcasts
// @Produce json
// @Param status query string false "Статус рассылки"
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response
// @Router /admin/broadcasts [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.broadcast.List")

	page, err := h.service.List(r.Context(), models.BroadcastFilterParams{
		Status:     r.URL.Query().Get("status"),
		Pagination: request.Pagination(r),
	})
	if err != nil {
		log.Error("failed to list broadcasts", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, page)
}

// Get godoc
// @Summary Получить рассылку
// @Tags Broadcasts
// @Produce json
// @Param id path string true "ID рассылки"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Рассылка не найдена"
// @Router /admin/broadcasts/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.broadcast.Get")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		log.Error("failed to get broadcast", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, b)
}

// Create godoc
// @Summary Создать рассылку
// @Description С scheduled_at рассылка сразу становится запланированной, иначе остаётся черновиком.
// @Tags Broadcasts
// @Accept json
// @Produce json
// @Param request body models.DummyBroadcast true "Текст и аудитория"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректная аудитория или ошибка валидации"
// @Router /admin/broadcasts [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.broadcast.Create")

	caller, ok := middlewarectx.UserFrom(r.Context())
	if !ok {
		log.Error("user not found in context")
		response.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req models.DummyBroadcast
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	b, err := h.service.Create(r.Context(), caller.ID, req)
	if err != nil {
		log.Error("failed to create broadcast", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("broadcast created", slog.Int64("id", b.ID), slog.String("status", b.Status))
	response.Created(w, r, b)
}

// Update godoc
// @Summary Изменить рассылку
// @Description Менять можно только черновик или запланированную рассылку.
// @Tags Broadcasts
// @Accept json
// @Produce json
// @Param id path string true "ID рассылки"
// @Param request body models.DummyBroadcast true "Текст и аудитория"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse "Рассылка уже запущена"
// @Router /admin/broadcasts/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.broadcast.Update")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	var req models.DummyBroadcast
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	b, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		log.Error("failed to update broadcast", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, b)
}

// Delete godoc
// @Summary Удалить рассылку
// @Tags Broadcasts
// @Produce json
// @Param id path string true "ID рассылки"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Рассылка не найдена"
// @Router /admin/broadcasts/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.broadcast.Delete")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		log.Error("failed to delete broadcast", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("broadcast deleted", slog.Int64("id", id))
	response.OK(w, r, map[string]any{"deleted": true})
}

// PreviewAudience godoc
// @Summary Превью аудитории
// @Description Получатели по целевой аудитории и фильтрам без сохранения рассылки.
// @Tags Broadcasts
// @Accept json
// @Produce json
// @Param request body models.AudienceRequest true "Аудитория"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректная аудитория"
// @Router /admin/broadcasts/preview [post]
func (h *Handler) PreviewAudience(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.broadcast.PreviewAudience")

	var req models.AudienceRequest
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	preview, err := h.service.PreviewAudience(r.Context(), req)
	if err != nil {
		log.Error("failed to preview audience", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, preview)
}

// Preview godoc
// @Summary Превью аудитории сохранённой рассылки
// @Tags Broadcasts
// @Produce json
// @Param id path string true "ID рассылки"
// @Param limit query int false "Число строк превью, до 500"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Рассылка не найдена"
// @Router /admin/broadcasts/{id}/preview [get]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.broadcast.Preview")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	preview, err := h.service.Preview(r.Context(), id, limit)
	if err != nil {
		log.Error("failed to preview broadcast", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, preview)
}

// Send godoc
// @Summary Запустить рассылку
// @Description Фиксирует получателей и ставит сообщения в очередь доставки.
// @Tags Broadcasts
// @Produce json
// @Param id path string true "ID рассылки"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse "Рассылка уже запущена"
// @Router /admin/broadcasts/{id}/send [post]
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.broadcast.Send")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	b, err := h.service.SendNow(r.Context(), id)
	if err != nil {
		log.Error("failed to send broadcast", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("broadcast started", slog.Int64("id", id), slog.Int("recipients", b.TotalRecipients))
	response.OK(w, r, b)
}

// Schedule godoc
// @Summary Запланировать рассылку
// @Tags Broadcasts
// @Accept json
// @Produce json
// @Param id path string true "ID рассылки"
// @Param request body models.DummySchedule true "Время запуска"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Время в прошлом"
// @Failure 409 {object} response.ErrorResponse "Рассылка уже запущена"
// @Router /admin/broadcasts/{id}/schedule [post]
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.broadcast.Schedule")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	var req models.DummySchedule
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	b, err := h.service.Schedule(r.Context(), id, req.ScheduledAt)
	if err != nil {
		log.Error("failed to schedule broadcast", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("broadcast scheduled", slog.Int64("id", id), slog.Time("at", req.ScheduledAt))
	response.OK(w, r, b)
}

// Cancel godoc
// @Summary Отменить рассылку
// @Description Недоставленные сообщения запущенной рассылки отмечаются как неуспешные.
// @Tags Broadcasts
// @Produce json
// @Param id path string true "ID рассылки"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.ErrorResponse "Рассылка уже завершена"
// @Router /admin/broadcasts/{id}/cancel [post]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.broadcast.Cancel")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	b, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		log.Error("failed to cancel broadcast", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("broadcast cancelled", slog.Int64("id", id))
	response.OK(w, r, b)
}

// Stats godoc
// @Summary Статистика доставки
// @Tags Broadcasts
// @Produce json
// @Param id path string true "ID рассылки"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Рассылка не найдена"
// @Router /admin/broadcasts/{id}/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.broadcast.Stats")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	stats, err := h.service.Stats(r.Context(), id)
	if err != nil {
		log.Error("failed to get broadcast stats", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, stats)
}
