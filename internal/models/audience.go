package models

import "time"

// Пределы превью аудитории.
const (
	DefaultPreviewLimit = 50
	MaxPreviewLimit     = 500
)

// AudienceRequest запрос на вычисление аудитории рассылки.
type AudienceRequest struct {
	TargetType      string            `json:"target_type" validate:"required"`
	Filters         []BroadcastFilter `json:"filters" validate:"dive"`
	ExcludedUserIDs IDList            `json:"excluded_user_ids"`
	Limit           int               `json:"limit,omitempty" validate:"gte=0"`
}

// AudienceMember строка превью аудитории.
type AudienceMember struct {
	UserID       int64     `json:"user_id,string"`
	DisplayName  string    `json:"display_name"`
	Username     *string   `json:"username,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	Status       string    `json:"status"` // active, trial, expired или none
	ProductName  *string   `json:"product_name,omitempty"`
	ChannelName  *string   `json:"channel_name,omitempty"`
}

// AudiencePreview ограниченный список получателей и их общее количество.
type AudiencePreview struct {
	Total      int              `json:"total"`
	Recipients []AudienceMember `json:"recipients"`
}

// AudiencePredicate проверенный предикат аудитории.
type AudiencePredicate struct {
	Type      string     // Один из Filter*
	From      *time.Time // REGISTRATION_DATE, включительно
	To        *time.Time // REGISTRATION_DATE, не включительно
	Status    string     // SUBSCRIPTION_STATUS
	ProductID int64      // PRODUCT
	ChannelID int64      // CHANNEL
}

// AudienceCriteria аудитория в виде, готовом для построения запроса.
// Предикаты объединяются через AND.
type AudienceCriteria struct {
	TargetType      string
	ProductID       int64 // PRODUCT_SPECIFIC
	ChannelID       int64 // CHANNEL_SPECIFIC
	Predicates      []AudiencePredicate
	ExcludedUserIDs []int64
}
