// Package demo реализует административные HTTP-обработчики пробного доступа.
package demo

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

type change = models.AccessChange[*models.DemoAccess]

// Service описывает бизнес-логику пробного доступа.
type Service interface {
	List(ctx context.Context, filter models.DemoAccessFilter) (*models.Page[*models.DemoAccess], error)
	Grant(ctx context.Context, userID, productID int64) (*change, error)
	Revoke(ctx context.Context, id int64) (*change, error)
}

// Handler обрабатывает запросы к пробным доступам.
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
// @Summary Список пробных доступов
// @Tags Demo
// @Produce json
// @Param user_id query string false "ID пользователя"
// @Param product_id query string false "ID продукта"
// @Param is_active query bool false "Только действующие"
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response
// @Router /admin/demo-access [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.demo.List")

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
	isActive, err := request.OptionalBool(r, "is_active")
	if err != nil {
		response.Fail(w, r, err)
		return
	}

	page, err := h.service.List(r.Context(), models.DemoAccessFilter{
		UserID:     userID,
		ProductID:  productID,
		IsActive:   isActive,
		Pagination: request.Pagination(r),
	})
	if err != nil {
		log.Error("failed to list demo accesses", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	response.OK(w, r, page)
}

// Grant godoc
// @Summary Выдать пробный доступ
// @Description Пробный доступ выдаётся один раз на пару пользователь и продукт и только без действующего доступа.
// @Tags Demo
// @Accept json
// @Produce json
// @Param request body models.DummyDemoAccess true "Пользователь и продукт"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Продукт не поддерживает пробный доступ"
// @Failure 409 {object} response.ErrorResponse "Пробный доступ уже использован"
// @Router /admin/demo-access [post]
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.demo.Grant")

	var req models.DummyDemoAccess
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	res, err := h.service.Grant(r.Context(), req.UserID, req.ProductID)
	if err != nil {
		log.Error("failed to grant demo access", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("demo access granted", slog.Int64("user_id", req.UserID), slog.Int64("product_id", req.ProductID))
	response.Created(w, r, res)
}

// Revoke godoc
// @Summary Отозвать пробный доступ
// @Tags Demo
// @Produce json
// @Param id path string true "ID пробного доступа"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.ErrorResponse "Пробный доступ не найден"
// @Router /admin/demo-access/{id} [delete]
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.demo.Revoke")

	id, err := request.ID(r, "id")
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	res, err := h.service.Revoke(r.Context(), id)
	if err != nil {
		log.Error("failed to revoke demo access", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("demo access revoked", slog.Int64("id", id))
	response.OK(w, r, res)
}
