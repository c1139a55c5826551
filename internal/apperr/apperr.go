// Package apperr содержит таксономию ошибок приложения и их отображение на HTTP-статусы.
//
// Сервисы оборачивают сентинельные ошибки через fmt.Errorf("%w: ...", apperr.ErrNotFound),
// HTTP-слой определяет статус через errors.Is.
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrUnauthenticated — подписанная init data отсутствует или не прошла проверку.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden — личность подтверждена, но прав администратора нет.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation — отсутствуют или некорректны обязательные поля.
	ErrValidation = errors.New("validation error")
	// ErrNotFound — сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyProcessed — платеж уже не в статусе pending.
	ErrAlreadyProcessed = errors.New("payment already processed")
	// ErrNotProcessed — платеж еще в статусе pending, сбрасывать нечего.
	ErrNotProcessed = errors.New("payment not processed")
	// ErrHasActiveDependents — удаление заблокировано активными зависимостями.
	ErrHasActiveDependents = errors.New("has active dependents")
	// ErrVendorUnavailable — платежный провайдер недоступен или ответил не 2xx.
	ErrVendorUnavailable = errors.New("payment vendor unavailable")
	// ErrMessagingUnavailable — Telegram Bot API недоступен или вернул ошибку.
	ErrMessagingUnavailable = errors.New("messaging platform unavailable")
	// ErrNotVendorLinked — у платежа нет идентификатора провайдера.
	ErrNotVendorLinked = errors.New("payment is not linked to vendor")
	// ErrAlreadyUsed — пробный доступ или промокод уже использован.
	ErrAlreadyUsed = errors.New("already used")
	// ErrConflict — нарушение уникальности или конкурентное изменение.
	ErrConflict = errors.New("conflict")
)

// HTTPStatus возвращает HTTP-статус для ошибки. Неизвестные ошибки дают 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyProcessed),
		errors.Is(err, ErrNotProcessed),
		errors.Is(err, ErrHasActiveDependents),
		errors.Is(err, ErrAlreadyUsed),
		errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotVendorLinked):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrVendorUnavailable),
		errors.Is(err, ErrMessagingUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Public сообщает, можно ли показывать текст ошибки клиенту.
func Public(err error) bool {
	return HTTPStatus(err) != http.StatusInternalServerError
}

var public = []error{
	ErrUnauthenticated, ErrForbidden, ErrValidation, ErrNotFound,
	ErrAlreadyProcessed, ErrNotProcessed, ErrHasActiveDependents,
	ErrVendorUnavailable, ErrMessagingUnavailable, ErrNotVendorLinked,
	ErrAlreadyUsed, ErrConflict,
}

// Message возвращает текст ошибки для клиента, начиная с сентинельной ошибки.
// Префиксы операций отбрасываются, неизвестные ошибки скрываются.
func Message(err error) string {
	if !Public(err) {
		return "internal error"
	}
	msg := err.Error()
	for _, target := range public {
		if !errors.Is(err, target) {
			continue
		}
		if i := strings.Index(msg, target.Error()); i >= 0 {
			return msg[i:]
		}
		return target.Error()
	}
	return msg
}
