package models

import "time"

// Статусы подписки.
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription доступ пользователя к каналу продукта на оплаченный период.
// ChannelID копируется из продукта при создании.
type Subscription struct {
	ID          int64     `json:"id,string"`
	UserID      int64     `json:"user_id,string"`
	ProductID   int64     `json:"product_id,string"`
	ChannelID   int64     `json:"channel_id,string"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	PaymentID   *string   `json:"payment_id,omitempty"`
	ProductName string    `json:"product_name,omitempty"`
	ChannelName string    `json:"channel_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SubscriptionFilter параметры выборки подписок.
type SubscriptionFilter struct {
	Status    string
	UserID    *int64
	ProductID *int64
	Pagination
}

// DummySubscription тело запроса ручной выдачи подписки.
type DummySubscription struct {
	UserID    int64 `json:"user_id,string" validate:"required"`
	ProductID int64 `json:"product_id,string" validate:"required"`
	Days      int   `json:"days,omitempty" validate:"gte=0"`
}

// DummySubscriptionStatus тело запроса смены статуса подписки.
type DummySubscriptionStatus struct {
	Status string `json:"status" validate:"required,oneof=active expired cancelled"`
}

// DummyExtend тело запроса продления подписки.
type DummyExtend struct {
	Days int `json:"days" validate:"required,gt=0"`
}
