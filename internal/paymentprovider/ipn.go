package paymentprovider

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeader заголовок с подписью IPN-уведомления.
const SignatureHeader = "x-nowpayments-sig"

// ErrInvalidSignature подпись уведомления не совпала.
var ErrInvalidSignature = errors.New("invalid ipn signature")

// IPN тело уведомления об изменении статуса платежа.
type IPN struct {
	PaymentID     json.Number `json:"payment_id"`
	PaymentStatus string      `json:"payment_status"`
	OrderID       string      `json:"order_id"`
}

// canonicalJSON сериализует тело с ключами, отсортированными на всех уровнях.
// Числа сохраняются в исходной записи.
func canonicalJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Sign возвращает hex(HMAC-SHA512) канонического JSON тела.
func Sign(body []byte, secret string) (string, error) {
	canonical, err := canonicalJSON(body)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyIPN проверяет подпись и разбирает уведомление.
func VerifyIPN(body []byte, signature, secret string) (*IPN, error) {
	const op = "paymentprovider.VerifyIPN"
	if secret == "" || signature == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	}
	expected, err := Sign(body, secret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	}
	var ipn IPN
	if err := json.Unmarshal(body, &ipn); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &ipn, nil
}
