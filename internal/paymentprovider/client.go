// Package paymentprovider клиент крипто-процессинга NOWPayments:
// создание платежа, запрос статуса и проверка подписи IPN-уведомлений.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/config"
	"github.com/magabrotheeeer/channel-panel/internal/metrics"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Client HTTP-клиент API провайдера.
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт клиент с таймаутом из конфигурации.
func NewClient(cfg config.PaymentProvider) *Client {
	return &Client{
		apiKey:     cfg.APIKey,
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do выполняет запрос и декодирует ответ в out. Сетевые ошибки и ответы не 2xx
// возвращаются как ErrVendorUnavailable.
func (c *Client) do(req *http.Request, operation string, out any) (err error) {
	defer func() {
		metrics.VendorRequests.WithLabelValues(operation, metrics.Outcome(err)).Inc()
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrVendorUnavailable, err.Error())
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: unexpected status %s: %s", apperr.ErrVendorUnavailable, resp.Status, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %s", apperr.ErrVendorUnavailable, err.Error())
	}
	return nil
}

// GetPayment запрашивает текущий статус платежа.
func (c *Client) GetPayment(ctx context.Context, vendorID string) (*PaymentInfo, error) {
	const op = "paymentprovider.GetPayment"
	req, err := c.newRequest(ctx, http.MethodGet, "/payment/"+url.PathEscape(vendorID), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var info PaymentInfo
	if err := c.do(req, "get_payment", &info); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &info, nil
}

// CreatePayment создаёт платеж на стороне провайдера.
func (c *Client) CreatePayment(ctx context.Context, reqParams CreatePaymentRequest) (*CreatePaymentResponse, error) {
	const op = "paymentprovider.CreatePayment"
	req, err := c.newRequest(ctx, http.MethodPost, "/payment", reqParams)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var resp CreatePaymentResponse
	if err := c.do(req, "create_payment", &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.PaymentID == "" {
		return nil, fmt.Errorf("%s: %w: empty payment_id", op, apperr.ErrVendorUnavailable)
	}
	return &resp, nil
}

// MapStatus переводит статус провайдера в статус платежа панели.
// finished и confirmed означают успех, failed, expired и refunded означают отказ,
// остальные статусы считаются ожидающими.
func MapStatus(vendorStatus string) string {
	switch strings.ToLower(vendorStatus) {
	case VendorStatusFinished, VendorStatusConfirmed:
		return models.PaymentStatusSuccess
	case VendorStatusFailed, VendorStatusExpired, VendorStatusRefunded:
		return models.PaymentStatusFailed
	default:
		return models.PaymentStatusPending
	}
}
