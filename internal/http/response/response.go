// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков. Пакет упрощает возврат
// успешных ответов, ошибок и сообщений валидации в едином формате.
package response

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
)

// Response описывает стандартную структуру JSON‑ответа сервера.
// Поле Status — статус запроса ("OK" или "Error").
// Поле Error — текст ошибки (опционально, при неуспехе).
// Поле RequestID — идентификатор запроса для поиска в логах (при неуспехе).
// Поле Data — данные ответа (опционально, при успехе).
type Response struct {
	Status    string `json:"status"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// ErrorResponse — структура ошибки для Swagger-документации.
// Используется в аннотациях @Failure как возвращаемый тип ошибки.
type ErrorResponse struct {
	Status    string `json:"status" example:"Error"`
	Success   bool   `json:"success" example:"false"`
	Error     string `json:"error" example:"invalid request body"`
	RequestID string `json:"request_id,omitempty" example:"host/abcdef-000001"`
}

const (
	// StatusOK — значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError — значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// StatusOKWithData возвращает успешный Response с переданными данными.
func StatusOKWithData(data any) Response {
	return Response{
		Status:  StatusOK,
		Success: true,
		Data:    data,
	}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  msg,
	}
}

// OK пишет успешный ответ со статусом 200.
func OK(w http.ResponseWriter, r *http.Request, data any) {
	render.JSON(w, r, StatusOKWithData(data))
}

// Created пишет успешный ответ со статусом 201.
func Created(w http.ResponseWriter, r *http.Request, data any) {
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, StatusOKWithData(data))
}

// WriteError пишет ответ с ошибкой, заданным статусом и идентификатором запроса.
func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	resp := Error(msg)
	resp.RequestID = middleware.GetReqID(r.Context())
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// Fail пишет ответ по ошибке сервиса: статус берётся из apperr,
// текст внутренних ошибок заменяется на "internal error".
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	WriteError(w, r, apperr.HTTPStatus(err), apperr.Message(err))
}

// ValidationError формирует Response со статусом Error на основе ошибок валидации.
// Каждое нарушение формируется в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "oneof":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be one of [%s]", err.Field(), err.Param()))
		case "max":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at most %s long", err.Field(), err.Param()))
		case "len":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be %s characters long", err.Field(), err.Param()))
		case "gt", "gte":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is out of range", err.Field()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return Response{
		Status: StatusError,
		Error:  strings.Join(errsMsgs, ", "),
	}
}

// Invalid пишет ответ 400 по ошибке validator.Struct.
func Invalid(w http.ResponseWriter, r *http.Request, err error) {
	resp := Response{Status: StatusError, Error: err.Error()}
	if errs, ok := err.(validator.ValidationErrors); ok {
		resp = ValidationError(errs)
	}
	resp.RequestID = middleware.GetReqID(r.Context())
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, resp)
}
