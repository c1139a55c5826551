// Package user реализует административные HTTP-обработчики пользователей и администраторов.
package user

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/channel-panel/internal/http/middlewarectx"
	"github.com/magabrotheeeer/channel-panel/internal/http/request"
	"github.com/magabrotheeeer/channel-panel/internal/http/response"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Service описывает бизнес-логику пользователей.
type Service interface {
	List(ctx context.Context, filter models.UserFilter) (*models.Page[*models.User], error)
	Details(ctx context.Context, userID int64) (*models.UserDetails, error)
	Delete(ctx context.Context, actorID, userID int64) error
	Admins(ctx context.Context) ([]*models.Admin, error)
	GrantAdmin(ctx context.Context, userID int64) error
	RevokeAdmin(ctx context.Context, actorID, userID int64) error
}

// Handler обрабатывает запросы к пользователям.
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

// actor возвращает пользователя, выполняющего запрос.
func actor(w http.ResponseWriter, r *http.Request, log *slog.Logger) (*models.User, bool) {
	u, ok := middlewarectx.UserFrom(r.Context())
	if !ok {
		log.Error("user not found in context")
		response.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
	}
	return u, ok
}

// List godoc
// @Summary Список пользователей
// @Tags Users
// @Produce json
// @Param search query string false "Имя, handle или id"
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response
// @Router /admin/users [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.user.List")

	page, err := h.service.List(r.Context(), models.UserFilter{
		Search:     request.Search(r),
		Pagination: request.Pagination(r),
	})
	if err != nil {
		log.Error("failed to list users", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, page)
}

// Get godoc
// @Summary Карточка пользователя
// @Description Подписки, пробные доступы и число платежей пользователя.
// @Tags Users
// @Produce json
// @Param id path string true "Telegram id пользователя"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Router /admin/users/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.user.Get")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	details, err := h.service.Details(r.Context(), id)
	if err != nil {
		log.Error("failed to get user", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, details)
}

// Delete godoc
// @Summary Удалить пользователя
// @Description Перед удалением пользователь снимается со всех каналов с действующим доступом.
// @Tags Users
// @Produce json
// @Param id path string true "Telegram id пользователя"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Нельзя удалить себя"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Router /admin/users/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.user.Delete")

	caller, ok := actor(w, r, log)
	if !ok {
		return
	}
	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), caller.ID, id); err != nil {
		log.Error("failed to delete user", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("user deleted", slog.Int64("user_id", id), slog.Int64("actor_id", caller.ID))
	response.OK(w, r, map[string]any{"deleted": true})
}

// Admins godoc
// @Summary Список администраторов
// @Tags Admins
// @Produce json
// @Success 200 {object} response.Response
// @Router /admin/admins [get]
func (h *Handler) Admins(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.user.Admins")

	admins, err := h.service.Admins(r.Context())
	if err != nil {
		log.Error("failed to list admins", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	if admins == nil {
		admins = []*models.Admin{}
	}
	response.OK(w, r, map[string]any{"items": admins})
}

// GrantAdmin godoc
// @Summary Выдать права администратора
// @Tags Admins
// @Accept json
// @Produce json
// @Param request body models.DummyAdmin true "Telegram id пользователя"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Ошибка валидации"
// @Router /admin/admins [post]
func (h *Handler) GrantAdmin(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.user.GrantAdmin")

	var req models.DummyAdmin
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	if err := h.service.GrantAdmin(r.Context(), req.UserID); err != nil {
		log.Error("failed to grant admin", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("admin granted", slog.Int64("user_id", req.UserID))
	response.Created(w, r, map[string]any{"user_id": strconv.FormatInt(req.UserID, 10)})
}

// RevokeAdmin godoc
// @Summary Отозвать права администратора
// @Tags Admins
// @Produce json
// @Param id path string true "Telegram id пользователя"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Нельзя отозвать права у себя"
// @Failure 404 {object} response.ErrorResponse "Администратор не найден"
// @Router /admin/admins/{id} [delete]
func (h *Handler) RevokeAdmin(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.user.RevokeAdmin")

	caller, ok := actor(w, r, log)
	if !ok {
		return
	}
	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	if err := h.service.RevokeAdmin(r.Context(), caller.ID, id); err != nil {
		log.Error("failed to revoke admin", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("admin revoked", slog.Int64("user_id", id), slog.Int64("actor_id", caller.ID))
	response.OK(w, r, map[string]any{"revoked": true})
}
