package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Виды снижения цены для скидок и промокодов.
const (
	ReductionPercent = "percent"
	ReductionFixed   = "fixed"
)

var hundred = decimal.NewFromInt(100)

// ApplyReduction применяет снижение к цене. Цена не опускается ниже нуля.
func ApplyReduction(price decimal.Decimal, kind string, value decimal.Decimal) decimal.Decimal {
	var res decimal.Decimal
	switch kind {
	case ReductionPercent:
		res = price.Mul(hundred.Sub(value)).Div(hundred)
	case ReductionFixed:
		res = price.Sub(value)
	default:
		return price
	}
	if res.IsNegative() {
		return decimal.Zero
	}
	return res.Round(2)
}

// ValidateReduction проверяет вид, величину и период действия снижения.
func ValidateReduction(kind string, value decimal.Decimal, startsAt, endsAt *time.Time) error {
	switch kind {
	case ReductionPercent:
		if !value.IsPositive() || value.GreaterThan(hundred) {
			return errors.New("percent value must be in (0, 100]")
		}
	case ReductionFixed:
		if !value.IsPositive() {
			return errors.New("fixed value must be positive")
		}
	default:
		return errors.New("kind must be percent or fixed")
	}
	if startsAt != nil && endsAt != nil && !endsAt.After(*startsAt) {
		return errors.New("ends_at must be after starts_at")
	}
	return nil
}

// inWindow проверяет ограничения, общие для скидок и промокодов.
func inWindow(isActive bool, scope *int64, productID int64, startsAt, endsAt *time.Time,
	maxUses *int, usedCount int, now time.Time) bool {
	if !isActive {
		return false
	}
	if scope != nil && *scope != productID {
		return false
	}
	if startsAt != nil && now.Before(*startsAt) {
		return false
	}
	if endsAt != nil && !now.Before(*endsAt) {
		return false
	}
	if maxUses != nil && usedCount >= *maxUses {
		return false
	}
	return true
}

// Discount автоматическая скидка, опционально ограниченная одним продуктом.
type Discount struct {
	ID        int64           `json:"id,string"`
	Name      string          `json:"name"`
	Kind      string          `json:"kind"`
	Value     decimal.Decimal `json:"value"`
	ProductID *int64          `json:"product_id,string,omitempty"` // nil — на все продукты
	StartsAt  *time.Time      `json:"starts_at,omitempty"`
	EndsAt    *time.Time      `json:"ends_at,omitempty"`
	MaxUses   *int            `json:"max_uses,omitempty"`
	UsedCount int             `json:"used_count"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
}

// AppliesTo сообщает, действует ли скидка на продукт в момент now.
func (d *Discount) AppliesTo(productID int64, now time.Time) bool {
	return inWindow(d.IsActive, d.ProductID, productID, d.StartsAt, d.EndsAt, d.MaxUses, d.UsedCount, now)
}

// DiscountFilter параметры выборки скидок.
type DiscountFilter struct {
	ProductID *int64
	IsActive  *bool
	Pagination
}

// DummyDiscount тело запроса создания или изменения скидки.
type DummyDiscount struct {
	Name      string     `json:"name" validate:"required,max=255"`
	Kind      string     `json:"kind" validate:"required,oneof=percent fixed"`
	Value     string     `json:"value" validate:"required"`
	ProductID *int64     `json:"product_id,string,omitempty"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	MaxUses   *int       `json:"max_uses,omitempty" validate:"omitempty,gt=0"`
	IsActive  *bool      `json:"is_active,omitempty"`
}
