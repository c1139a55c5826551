package models

import "time"

// DemoAccess пробный доступ к продукту. Выдаётся не больше одного раза на пару (пользователь, продукт).
type DemoAccess struct {
	ID          int64     `json:"id,string"`
	UserID      int64     `json:"user_id,string"`
	ProductID   int64     `json:"product_id,string"`
	ChannelID   int64     `json:"channel_id,string"`
	StartedAt   time.Time `json:"started_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	IsActive    bool      `json:"is_active"`
	ProductName string    `json:"product_name,omitempty"`
	ChannelName string    `json:"channel_name,omitempty"`
}

// DemoAccessFilter параметры выборки пробных доступов.
type DemoAccessFilter struct {
	UserID    *int64
	ProductID *int64
	IsActive  *bool
	Pagination
}

// DummyDemoAccess тело запроса выдачи пробного доступа.
type DummyDemoAccess struct {
	UserID    int64 `json:"user_id,string" validate:"required"`
	ProductID int64 `json:"product_id,string" validate:"required"`
}

// DummyDemoRequest тело запроса пробного доступа из мини-приложения.
type DummyDemoRequest struct {
	ProductID int64 `json:"product_id,string" validate:"required"`
}
