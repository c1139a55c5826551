// Package middlewarectx содержит HTTP middleware панели: проверку личности пользователя
// мини-приложения, проверку прав администратора и ограничение частоты запросов.
//
// Auth принимает подписанную init data Telegram (заголовок Authorization со схемой tma
// или X-Telegram-Init-Data) либо сессионный JWT (схема Bearer) и кладёт пользователя
// в контекст запроса. В случае ошибки проверки возвращает HTTP 401 Unauthorized.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/channel-panel/internal/http/response"
	"github.com/magabrotheeeer/channel-panel/internal/lib/jwt"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// User — ключ для *models.User в контексте.
const User Key = "user"

// InitDataHeader альтернативный заголовок с init data мини-приложения.
const InitDataHeader = "X-Telegram-Init-Data"

// Identity проверяет init data и находит пользователя по id из токена.
type Identity interface {
	Authenticate(ctx context.Context, raw string) (*models.User, error)
	Lookup(ctx context.Context, userID int64) (*models.User, error)
}

// TokenParser разбирает сессионный JWT.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.Claims, error)
}

// WithUser возвращает контекст с пользователем.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, User, u)
}

// UserFrom достаёт пользователя, положенного Auth.
func UserFrom(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(User).(*models.User)
	return u, ok && u != nil
}

// credentials разбирает заголовки запроса: вторым значением возвращается true для JWT.
func credentials(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(authHeader, "tma "):
		return strings.TrimPrefix(authHeader, "tma "), false
	case strings.HasPrefix(authHeader, "Bearer "):
		return strings.TrimPrefix(authHeader, "Bearer "), true
	}
	return r.Header.Get(InitDataHeader), false
}

// Auth возвращает HTTP middleware, который устанавливает личность пользователя.
//
// Если init data или токен валидны, добавляет пользователя в контекст запроса,
// иначе возвращает ошибку с HTTP статусом 401 Unauthorized.
func Auth(identity Identity, tokens TokenParser, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.Auth"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			raw, isToken := credentials(r)
			if raw == "" {
				log.Warn("missing credentials")
				response.WriteError(w, r, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			var (
				user *models.User
				err  error
			)
			if isToken {
				var claims *jwt.Claims
				claims, err = tokens.ParseToken(raw)
				if err == nil {
					user, err = identity.Lookup(r.Context(), claims.UserID)
				}
			} else {
				user, err = identity.Authenticate(r.Context(), raw)
			}
			if err != nil {
				log.Warn("authentication failed", sl.Err(err))
				response.WriteError(w, r, http.StatusUnauthorized, "invalid or expired credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
