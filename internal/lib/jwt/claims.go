// Package jwt выпускает и проверяет сессионные токены панели.
//
// Токен выдаётся в обмен на проверенную init data мини-приложения,
// чтобы интерфейс не передавал подписанные данные в каждом запросе.
package jwt

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer значение iss во всех токенах панели.
const Issuer = "channel-panel"

// Claims данные сессии. Subject дублирует UserID строкой, как того требует RFC 7519.
type Claims struct {
	UserID  int64 `json:"user_id,string"`
	IsAdmin bool  `json:"is_admin"` // на момент выдачи, права перепроверяются на admin-маршрутах
	jwt.RegisteredClaims
}

func subject(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
