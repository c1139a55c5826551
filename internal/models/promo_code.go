package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PromoCode код, который пользователь вводит при покупке.
type PromoCode struct {
	ID        int64           `json:"id,string"`
	Code      string          `json:"code"`
	Kind      string          `json:"kind"`
	Value     decimal.Decimal `json:"value"`
	ProductID *int64          `json:"product_id,string,omitempty"`
	StartsAt  *time.Time      `json:"starts_at,omitempty"`
	EndsAt    *time.Time      `json:"ends_at,omitempty"`
	MaxUses   *int            `json:"max_uses,omitempty"`
	UsedCount int             `json:"used_count"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}

// UsableFor сообщает, можно ли применить промокод к продукту в момент now.
func (p *PromoCode) UsableFor(productID int64, now time.Time) bool {
	return inWindow(p.IsActive, p.ProductID, productID, p.StartsAt, p.EndsAt, p.MaxUses, p.UsedCount, now)
}

// PromoCodeFilter параметры выборки промокодов.
type PromoCodeFilter struct {
	ProductID *int64
	IsActive  *bool
	Search    string
	Pagination
}

// DummyPromoCode тело запроса создания или изменения промокода.
type DummyPromoCode struct {
	Code      string     `json:"code" validate:"required,max=64"`
	Kind      string     `json:"kind" validate:"required,oneof=percent fixed"`
	Value     string     `json:"value" validate:"required"`
	ProductID *int64     `json:"product_id,string,omitempty"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	MaxUses   *int       `json:"max_uses,omitempty" validate:"omitempty,gt=0"`
	IsActive  *bool      `json:"is_active,omitempty"`
}

// DummyPromoValidate тело запроса проверки промокода из мини-приложения.
type DummyPromoValidate struct {
	Code      string `json:"code" validate:"required,max=64"`
	ProductID int64  `json:"product_id,string" validate:"required"`
}

// Quote итоговая цена продукта для пользователя.
type Quote struct {
	ProductID   int64           `json:"product_id,string"`
	BasePrice   decimal.Decimal `json:"base_price"`
	FinalPrice  decimal.Decimal `json:"final_price"`
	Currency    string          `json:"currency"`
	DiscountID  *int64          `json:"discount_id,string,omitempty"`
	PromoCodeID *int64          `json:"promo_code_id,string,omitempty"`
}
