package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product тарифный план с доступом к каналу.
type Product struct {
	ID              int64            `json:"id,string"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discounted_price,omitempty"`
	Currency        string           `json:"currency"`
	PeriodDays      int              `json:"period_days"` // Длительность оплаченного периода
	IsActive        bool             `json:"is_active"`
	AllowDemo       bool             `json:"allow_demo"`
	DemoDays        int              `json:"demo_days"`
	ChannelID       int64            `json:"channel_id,string"`
	ChannelName     string           `json:"channel_name,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// BasePrice цена до применения скидок и промокодов.
func (p *Product) BasePrice() decimal.Decimal {
	if p.DiscountedPrice != nil && p.DiscountedPrice.LessThan(p.Price) {
		return *p.DiscountedPrice
	}
	return p.Price
}

// ProductFilter параметры выборки продуктов.
type ProductFilter struct {
	IsActive  *bool
	ChannelID *int64
	Search    string
	Pagination
}

// DummyProduct используется для приёма данных продукта из JSON-запроса.
// Цены приходят строками и парсятся в decimal вручную.
type DummyProduct struct {
	Name            string `json:"name" validate:"required,max=255"`
	Description     string `json:"description"`
	Price           string `json:"price" validate:"required"`
	DiscountedPrice string `json:"discounted_price,omitempty"`
	Currency        string `json:"currency" validate:"omitempty,len=3"`
	PeriodDays      int    `json:"period_days" validate:"required,gt=0"`
	IsActive        *bool  `json:"is_active"`
	AllowDemo       bool   `json:"allow_demo"`
	DemoDays        int    `json:"demo_days" validate:"gte=0"`
	ChannelID       int64  `json:"channel_id,string" validate:"required"`
}
