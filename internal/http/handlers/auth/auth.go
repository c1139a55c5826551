// Package auth реализует обмен подписанной init data мини-приложения на сессионный JWT.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/channel-panel/internal/http/middlewarectx"
	"github.com/magabrotheeeer/channel-panel/internal/http/request"
	"github.com/magabrotheeeer/channel-panel/internal/http/response"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Request тело запроса входа. Если init_data пуст, она берётся из заголовков.
type Request struct {
	InitData string `json:"init_data,omitempty"`
}

// Session ответ входа.
type Session struct {
	Token   string       `json:"token"`
	User    *models.User `json:"user"`
	IsAdmin bool         `json:"is_admin"`
}

// Identity проверяет init data.
type Identity interface {
	Authenticate(ctx context.Context, raw string) (*models.User, error)
}

// AdminChecker определяет права администратора.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// TokenIssuer выпускает сессионный токен.
type TokenIssuer interface {
	GenerateToken(userID int64, isAdmin bool) (string, error)
}

// Handler обрабатывает вход через Telegram.
type Handler struct {
	log       *slog.Logger
	identity  Identity
	authority AdminChecker
	tokens    TokenIssuer
	validate  *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, identity Identity, authority AdminChecker, tokens TokenIssuer) *Handler {
	return &Handler{
		log:       log,
		identity:  identity,
		authority: authority,
		tokens:    tokens,
		validate:  validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Вход через Telegram
// @Description Проверяет init data мини-приложения и выдаёт JWT для последующих запросов.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body Request false "Init data, если она не передана в заголовке"
// @Success 200 {object} response.Response{data=Session}
// @Failure 401 {object} response.ErrorResponse "Подпись init data неверна или устарела"
// @Router /auth/telegram [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.auth.telegram")

	var req Request
	if !request.Decode(w, r, log, h.validate, &req) {
		return
	}
	raw := req.InitData
	if raw == "" {
		raw = headerInitData(r)
	}
	if raw == "" {
		response.WriteError(w, r, http.StatusUnauthorized, "init data is required")
		return
	}

	user, err := h.identity.Authenticate(r.Context(), raw)
	if err != nil {
		log.Info("telegram login rejected", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	isAdmin, err := h.authority.IsAdmin(r.Context(), user.ID)
	if err != nil {
		log.Error("failed to check admin", sl.Err(err))
		response.Fail(w, r, err)
		return
	}
	token, err := h.tokens.GenerateToken(user.ID, isAdmin)
	if err != nil {
		log.Error("could not generate token", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("user logged in", slog.Int64("user_id", user.ID), slog.Bool("is_admin", isAdmin))
	response.OK(w, r, Session{Token: token, User: user, IsAdmin: isAdmin})
}

func headerInitData(r *http.Request) string {
	if v := r.Header.Get(middlewarectx.InitDataHeader); v != "" {
		return v
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "tma "); ok {
		return v
	}
	return ""
}
