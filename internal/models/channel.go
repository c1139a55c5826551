package models

import "time"

// Channel платный канал Telegram. Один канал может обслуживать несколько продуктов.
type Channel struct {
	ID        int64     `json:"id,string"` // chat id канала
	Title     string    `json:"title"`
	Username  *string   `json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DummyChannel используется для приёма данных канала из JSON-запроса.
type DummyChannel struct {
	ID       int64  `json:"id,string" validate:"required"`
	Title    string `json:"title" validate:"required,max=255"`
	Username string `json:"username,omitempty" validate:"omitempty,max=64"`
}
