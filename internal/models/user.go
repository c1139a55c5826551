// Package models содержит доменные структуры панели: пользователей, каналы, продукты,
// платежи, подписки, пробный доступ, скидки, промокоды и рассылки,
// а также типы для приёма данных из JSON-запросов.
//
// Все int64-идентификаторы сериализуются в JSON строками, так как идентификаторы
// Telegram не помещаются в безопасный диапазон чисел JSON.
package models

import (
	"strings"
	"time"
)

// User представляет пользователя Telegram, создаётся лениво при первом проверенном запросе.
type User struct {
	ID           int64     `json:"id,string"`               // Telegram id пользователя
	FirstName    string    `json:"first_name"`              // Имя
	LastName     string    `json:"last_name,omitempty"`     // Фамилия
	Username     *string   `json:"username,omitempty"`      // Handle без @, если есть
	LanguageCode *string   `json:"language_code,omitempty"` // Язык клиента
	CreatedAt    time.Time `json:"created_at"`              // Дата регистрации
}

// DisplayName возвращает имя для показа в панели.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.Username != nil {
		return *u.Username
	}
	return name
}

// UserDetails карточка пользователя в админке.
type UserDetails struct {
	User
	IsAdmin       bool            `json:"is_admin"`
	Subscriptions []*Subscription `json:"subscriptions"`
	DemoAccesses  []*DemoAccess   `json:"demo_accesses"`
	PaymentsCount int             `json:"payments_count"`
}

// UserFilter параметры выборки пользователей.
type UserFilter struct {
	Search string // Подстрока имени, handle или id
	Pagination
}

// Admin отмечает пользователя как администратора.
type Admin struct {
	UserID    int64     `json:"user_id,string"`
	CreatedAt time.Time `json:"created_at"`
	User      *User     `json:"user,omitempty"`
}

// DummyAdmin используется для приёма запроса на выдачу прав администратора.
type DummyAdmin struct {
	UserID int64 `json:"user_id,string" validate:"required"`
}
