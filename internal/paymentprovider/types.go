package paymentprovider

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Статусы платежа на стороне провайдера.
const (
	VendorStatusWaiting    = "waiting"
	VendorStatusConfirming = "confirming"
	VendorStatusConfirmed  = "confirmed"
	VendorStatusSending    = "sending"
	VendorStatusPartPaid   = "partially_paid"
	VendorStatusFinished   = "finished"
	VendorStatusFailed     = "failed"
	VendorStatusRefunded   = "refunded"
	VendorStatusExpired    = "expired"
)

// PaymentInfo ответ GET /payment/{id}.
type PaymentInfo struct {
	PaymentID     json.Number      `json:"payment_id"`
	PaymentStatus string           `json:"payment_status"`
	PayAddress    string           `json:"pay_address"`
	PriceAmount   decimal.Decimal  `json:"price_amount"`
	PriceCurrency string           `json:"price_currency"`
	PayAmount     *decimal.Decimal `json:"pay_amount"`
	ActuallyPaid  *decimal.Decimal `json:"actually_paid"`
	PayCurrency   string           `json:"pay_currency"`
	OrderID       string           `json:"order_id"`
	PayinHash     *string          `json:"payin_hash"`
	PayoutHash    *string          `json:"payout_hash"`
	Network       string           `json:"network"`
}

// TxHash хеш транзакции, если провайдер его сообщил.
func (p *PaymentInfo) TxHash() *string {
	for _, h := range []*string{p.PayinHash, p.PayoutHash} {
		if h != nil && *h != "" {
			return h
		}
	}
	return nil
}

// CreatePaymentRequest тело POST /payment.
type CreatePaymentRequest struct {
	PriceAmount      json.Number `json:"price_amount"`
	PriceCurrency    string      `json:"price_currency"`
	PayCurrency      string      `json:"pay_currency"`
	OrderID          string      `json:"order_id"`
	OrderDescription string      `json:"order_description,omitempty"`
	IPNCallbackURL   string      `json:"ipn_callback_url,omitempty"`
}

// CreatePaymentResponse ответ POST /payment.
type CreatePaymentResponse struct {
	PaymentID     json.Number      `json:"payment_id"`
	PaymentStatus string           `json:"payment_status"`
	PayAddress    string           `json:"pay_address"`
	PayAmount     *decimal.Decimal `json:"pay_amount"`
	PayCurrency   string           `json:"pay_currency"`
	Network       string           `json:"network"`
}
