package models

import "time"

// Целевые аудитории рассылки.
const (
	TargetAllUsers             = "ALL_USERS"
	TargetActiveSubscriptions  = "ACTIVE_SUBSCRIPTIONS"
	TargetExpiredSubscriptions = "EXPIRED_SUBSCRIPTIONS"
	TargetTrialUsers           = "TRIAL_USERS"
	TargetProductSpecific      = "PRODUCT_SPECIFIC"
	TargetChannelSpecific      = "CHANNEL_SPECIFIC"
	TargetCustomFilter         = "CUSTOM_FILTER"
)

// Типы фильтров аудитории.
const (
	FilterRegistrationDate   = "REGISTRATION_DATE"
	FilterSubscriptionStatus = "SUBSCRIPTION_STATUS"
	FilterProduct            = "PRODUCT"
	FilterChannel            = "CHANNEL"
)

// Статусы рассылки.
const (
	BroadcastStatusDraft     = "draft"
	BroadcastStatusScheduled = "scheduled"
	BroadcastStatusSending   = "sending"
	BroadcastStatusCompleted = "completed"
	BroadcastStatusFailed    = "failed"
	BroadcastStatusCancelled = "cancelled"
)

// Статусы доставки одному получателю.
const (
	MessageStatusPending = "pending"
	MessageStatusSent    = "sent"
	MessageStatusFailed  = "failed"
)

// Broadcast кампания рассылки.
type Broadcast struct {
	ID              int64             `json:"id,string"`
	Title           string            `json:"title"`
	Body            string            `json:"body"`
	TargetType      string            `json:"target_type"`
	Status          string            `json:"status"`
	ScheduledAt     *time.Time        `json:"scheduled_at,omitempty"`
	TotalRecipients int               `json:"total_recipients"`
	SentCount       int               `json:"sent_count"`
	FailedCount     int               `json:"failed_count"`
	CreatedBy       int64             `json:"created_by,string"`
	CreatedAt       time.Time         `json:"created_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	FinishedAt      *time.Time        `json:"finished_at,omitempty"`
	Filters         []BroadcastFilter `json:"filters"`
	ExcludedUserIDs IDList            `json:"excluded_user_ids"`
}

// Editable сообщает, можно ли менять рассылку.
func (b *Broadcast) Editable() bool {
	return b.Status == BroadcastStatusDraft || b.Status == BroadcastStatusScheduled
}

// BroadcastFilter предикат аудитории.
type BroadcastFilter struct {
	Type  string `json:"type" validate:"required"`
	Value string `json:"value"`
}

// BroadcastMessage попытка доставки одному получателю.
type BroadcastMessage struct {
	ID          int64      `json:"id,string"`
	BroadcastID int64      `json:"broadcast_id,string"`
	UserID      int64      `json:"user_id,string"`
	Status      string     `json:"status"`
	Error       *string    `json:"error,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

// BroadcastStats счётчики доставки.
type BroadcastStats struct {
	BroadcastID int64  `json:"broadcast_id,string"`
	Status      string `json:"status"`
	Total       int    `json:"total"`
	Sent        int    `json:"sent"`
	Failed      int    `json:"failed"`
	Pending     int    `json:"pending"`
}

// BroadcastFilterParams параметры выборки рассылок.
type BroadcastFilterParams struct {
	Status string
	Pagination
}

// DummyBroadcast тело запроса создания или изменения рассылки.
type DummyBroadcast struct {
	Title           string            `json:"title" validate:"required,max=255"`
	Body            string            `json:"body" validate:"required,max=4096"`
	TargetType      string            `json:"target_type" validate:"required"`
	Filters         []BroadcastFilter `json:"filters" validate:"dive"`
	ExcludedUserIDs IDList            `json:"excluded_user_ids"`
	ScheduledAt     *time.Time        `json:"scheduled_at,omitempty"`
}

// DummySchedule тело запроса планирования рассылки.
type DummySchedule struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// DeliveryTask сообщение очереди доставки рассылки.
type DeliveryTask struct {
	BroadcastID int64 `json:"broadcast_id,string"`
	MessageID   int64 `json:"message_id,string"`
	UserID      int64 `json:"user_id,string"`
}
