package models

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// Статусы платежа.
const (
	PaymentStatusPending = "pending"
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
)

// vendorMemoRe маркер идентификатора провайдера в старых записях, где он хранился в memo.
var vendorMemoRe = regexp.MustCompile(`NP:(\d+)`)

// Payment платеж пользователя за продукт.
type Payment struct {
	ID              string           `json:"id"` // uuid
	UserID          int64            `json:"user_id,string"`
	ProductID       *int64           `json:"product_id,string,omitempty"`
	Amount          decimal.Decimal  `json:"amount"`
	Currency        string           `json:"currency"`
	Status          string           `json:"status"`
	TxHash          *string          `json:"tx_hash,omitempty"`
	Memo            string           `json:"memo,omitempty"`
	VendorPaymentID *string          `json:"vendor_payment_id,omitempty"`
	PayAddress      string           `json:"pay_address,omitempty"`
	PayAmount       *decimal.Decimal `json:"pay_amount,omitempty"`
	PayCurrency     string           `json:"pay_currency,omitempty"`
	Network         string           `json:"network,omitempty"`
	PromoCodeID     *int64           `json:"promo_code_id,string,omitempty"`
	DiscountID      *int64           `json:"discount_id,string,omitempty"`
	ProductName     string           `json:"product_name,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// VendorID возвращает идентификатор платежа у провайдера.
// Типизированное поле приоритетно, memo разбирается только для старых записей.
func (p *Payment) VendorID() (string, bool) {
	if p.VendorPaymentID != nil && *p.VendorPaymentID != "" {
		return *p.VendorPaymentID, true
	}
	m := vendorMemoRe.FindStringSubmatch(p.Memo)
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}

// VendorMemo формирует memo с маркером идентификатора провайдера.
func VendorMemo(vendorID string) string {
	return "NP:" + vendorID
}

// PaymentFilter параметры выборки платежей.
type PaymentFilter struct {
	Status    string
	UserID    *int64
	ProductID *int64
	Pagination
}

// DummyPaymentAction тело запроса подтверждения или отклонения платежа.
type DummyPaymentAction struct {
	TxHash string `json:"tx_hash,omitempty" validate:"omitempty,max=255"`
}

// DummyPurchase тело запроса покупки из мини-приложения.
type DummyPurchase struct {
	ProductID   int64  `json:"product_id,string" validate:"required"`
	PayCurrency string `json:"pay_currency" validate:"required,max=20"`
	PromoCode   string `json:"promo_code,omitempty" validate:"omitempty,max=64"`
}

// StatusChange результат сверки платежа.
type StatusChange struct {
	Payment        *Payment `json:"payment"`
	PreviousStatus string   `json:"previous_status"`
	Changed        bool     `json:"changed"`
}
