// Package request содержит общие для обработчиков функции разбора запроса:
// идентификаторы из URL, параметры фильтров и пагинации, JSON-тело с валидацией.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/http/response"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Log возвращает логгер с op и request_id.
func Log(log *slog.Logger, r *http.Request, op string) *slog.Logger {
	return log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// ID разбирает целочисленный параметр пути.
func ID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s in url", apperr.ErrValidation, name)
	}
	return id, nil
}

// Pagination читает limit и offset из query.
func Pagination(r *http.Request) models.Pagination {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return models.Pagination{Limit: limit, Offset: offset}.Normalize()
}

// OptionalInt64 читает необязательный целочисленный query-параметр.
func OptionalInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s", apperr.ErrValidation, name)
	}
	return &v, nil
}

// OptionalBool читает необязательный логический query-параметр.
func OptionalBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s", apperr.ErrValidation, name)
	}
	return &v, nil
}

// Search возвращает обрезанную строку поиска.
func Search(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("search"))
}

// Decode читает JSON-тело в dst и проверяет его валидатором.
// Пустое тело допустимо, обязательные поля отсекает валидатор.
// При ошибке пишет ответ 400 и возвращает false.
func Decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, validate *validator.Validate, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request", sl.Err(err))
		response.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		log.Error("validation failed", sl.Err(err))
		response.Invalid(w, r, err)
		return false
	}
	return true
}
