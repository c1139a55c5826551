package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/channel-panel/internal/http/response"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
)

// AdminChecker проверяет права администратора.
type AdminChecker interface {
	Require(ctx context.Context, userID int64) error
}

// AdminOnly создает middleware, пропускающий только администраторов.
// Должен стоять после Auth.
func AdminOnly(authority AdminChecker, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := log.With(
				slog.String("op", "middlewarectx.AdminOnly"),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
			user, ok := UserFrom(r.Context())
			if !ok {
				log.Error("user identification missing")
				response.WriteError(w, r, http.StatusUnauthorized, "user identification missing")
				return
			}
			if err := authority.Require(r.Context(), user.ID); err != nil {
				log.Warn("admin access denied", slog.Int64("user_id", user.ID), sl.Err(err))
				response.Fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
