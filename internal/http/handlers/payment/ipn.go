package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/magabrotheeeer/channel-panel/internal/http/request"
	"github.com/magabrotheeeer/channel-panel/internal/http/response"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/models"
	"github.com/magabrotheeeer/channel-panel/internal/paymentprovider"
	paymentservice "github.com/magabrotheeeer/channel-panel/internal/services/payment"
)

const maxIPNBody = 64 << 10

// Reconciler сверяет платеж по идентификатору провайдера.
type Reconciler interface {
	RecheckByVendorID(ctx context.Context, vendorID, source string) (*models.StatusChange, error)
}

// IPNHandler принимает уведомления провайдера о смене статуса платежа.
// Статус из уведомления не применяется напрямую: платеж перепроверяется запросом к провайдеру.
type IPNHandler struct {
	log     *slog.Logger
	service Reconciler
	secret  string
}

// NewIPN создает IPNHandler с секретом подписи уведомлений.
func NewIPN(log *slog.Logger, service Reconciler, secret string) *IPNHandler {
	return &IPNHandler{
		log:     log,
		service: service,
		secret:  secret,
	}
}

// ServeHTTP godoc
// @Summary IPN-уведомление провайдера
// @Description Подпись HMAC-SHA512 в заголовке x-nowpayments-sig.
// @Tags Payments
// @Accept json
// @Produce json
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse "Неверная подпись"
// @Failure 404 {object} response.ErrorResponse "Платеж не найден"
// @Failure 502 {object} response.ErrorResponse "Провайдер недоступен"
// @Router /payments/ipn [post]
func (h *IPNHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := request.Log(h.log, r, "handlers.payment.IPN")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIPNBody))
	if err != nil {
		log.Error("failed to read ipn body", sl.Err(err))
		response.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	ipn, err := paymentprovider.VerifyIPN(body, r.Header.Get(paymentprovider.SignatureHeader), h.secret)
	if err != nil {
		if errors.Is(err, paymentprovider.ErrInvalidSignature) {
			log.Warn("ipn signature rejected")
			response.WriteError(w, r, http.StatusUnauthorized, "invalid signature")
			return
		}
		log.Error("failed to parse ipn", sl.Err(err))
		response.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	log = log.With(slog.String("vendor_payment_id", ipn.PaymentID.String()), slog.String("vendor_status", ipn.PaymentStatus))

	change, err := h.service.RecheckByVendorID(r.Context(), ipn.PaymentID.String(), paymentservice.SourceIPN)
	if err != nil {
		log.Error("failed to reconcile payment from ipn", sl.Err(err))
		response.Fail(w, r, err)
		return
	}

	log.Info("ipn processed", slog.Bool("changed", change.Changed), slog.String("status", change.Payment.Status))
	response.OK(w, r, map[string]any{
		"payment_id": change.Payment.ID,
		"status":     change.Payment.Status,
		"changed":    change.Changed,
	})
}
