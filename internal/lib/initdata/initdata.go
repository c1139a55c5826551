// Package initdata проверяет подписанные данные запуска Telegram Mini App.
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Ошибки проверки.
var (
	ErrEmpty       = errors.New("init data is empty")
	ErrMalformed   = errors.New("init data is malformed")
	ErrHashMissing = errors.New("init data hash is missing")
	ErrBadSign     = errors.New("init data signature mismatch")
	ErrExpired     = errors.New("init data is expired")
	ErrNoUser      = errors.New("init data has no user")
)

// TelegramUser поле user из init data.
type TelegramUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
}

// Data разобранные и проверенные данные запуска.
type Data struct {
	User     TelegramUser
	AuthDate time.Time
	QueryID  string
}

// Validate проверяет подпись init data токеном бота и возвращает пользователя.
// Если ttl > 0, данные старше ttl отклоняются.
func Validate(raw, botToken string, ttl time.Duration) (*Data, error) {
	return validate(raw, botToken, ttl, time.Now())
}

func validate(raw, botToken string, ttl time.Duration, now time.Time) (*Data, error) {
	if raw == "" {
		return nil, ErrEmpty
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrHashMissing
	}
	got, err := hex.DecodeString(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !hmac.Equal(got, Sign(values, botToken)) {
		return nil, ErrBadSign
	}

	res := &Data{QueryID: values.Get("query_id")}
	if ad := values.Get("auth_date"); ad != "" {
		sec, err := strconv.ParseInt(ad, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: auth_date: %v", ErrMalformed, err)
		}
		res.AuthDate = time.Unix(sec, 0)
	}
	if ttl > 0 && (res.AuthDate.IsZero() || now.Sub(res.AuthDate) > ttl) {
		return nil, ErrExpired
	}

	userRaw := values.Get("user")
	if userRaw == "" {
		return nil, ErrNoUser
	}
	if err := json.Unmarshal([]byte(userRaw), &res.User); err != nil {
		return nil, fmt.Errorf("%w: user: %v", ErrMalformed, err)
	}
	if res.User.ID == 0 {
		return nil, ErrNoUser
	}
	return res, nil
}

// Sign считает подпись init data: HMAC-SHA256 от data-check-string
// на ключе HMAC-SHA256("WebAppData", botToken). Поле hash не участвует.
func Sign(values url.Values, botToken string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return mac.Sum(nil)
}

// Build собирает подписанную строку init data. Используется в тестах и локальной отладке.
func Build(values url.Values, botToken string) string {
	signed := url.Values{}
	for k, v := range values {
		signed[k] = v
	}
	signed.Del("hash")
	signed.Set("hash", hex.EncodeToString(Sign(signed, botToken)))
	return signed.Encode()
}
