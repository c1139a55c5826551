package models

import "time"

// Причины синхронизации доступа, определяют текст уведомления.
const (
	ReasonCreated = "created"
	ReasonUpdated = "updated"
	ReasonDeleted = "deleted"
	ReasonExpired = "expired"
)

// AccessDeleted желаемый статус для удалённой подписки или пользователя.
const AccessDeleted = "deleted"

// Действия синхронизатора.
const (
	ActionAlreadyMember = "already_member"
	ActionInviteSent    = "invite_sent"
	ActionInviteRaw     = "invite_sent_plain"
	ActionRemoved       = "removed"
	ActionKept          = "kept"
	ActionNone          = "none"
)

// AccessSync желаемое состояние членства пользователя в канале.
// Также является телом сообщения очереди access.sync.
type AccessSync struct {
	UserID        int64      `json:"user_id,string"`
	ChannelID     int64      `json:"channel_id,string"`
	DesiredStatus string     `json:"desired_status"` // active, expired, cancelled, deleted
	ProductName   string     `json:"product_name"`
	ChannelName   string     `json:"channel_name"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Reason        string     `json:"reason"`
	// Force удаляет из канала даже при оставшемся доступе, используется при удалении пользователя.
	Force bool `json:"force,omitempty"`
}

// SyncResult итог синхронизации.
type SyncResult struct {
	Success bool   `json:"success"`
	Action  string `json:"action"`
	Error   string `json:"error,omitempty"`
}

// SyncFor собирает запрос синхронизации для подписки.
// status задаётся отдельно, так как удалённая подписка синхронизируется со статусом deleted.
func SyncFor(sub *Subscription, status, reason string) AccessSync {
	expires := sub.ExpiresAt
	return AccessSync{
		UserID:        sub.UserID,
		ChannelID:     sub.ChannelID,
		DesiredStatus: status,
		ProductName:   sub.ProductName,
		ChannelName:   sub.ChannelName,
		ExpiresAt:     &expires,
		Reason:        reason,
	}
}

// SyncForDemo собирает запрос синхронизации для пробного доступа.
func SyncForDemo(d *DemoAccess, status, reason string) AccessSync {
	expires := d.ExpiresAt
	return AccessSync{
		UserID:        d.UserID,
		ChannelID:     d.ChannelID,
		DesiredStatus: status,
		ProductName:   d.ProductName,
		ChannelName:   d.ChannelName,
		ExpiresAt:     &expires,
		Reason:        reason,
	}
}

// AccessChange результат административного действия с доступом: запись и итог синхронизации канала.
type AccessChange[T any] struct {
	Item T           `json:"item"`
	Sync *SyncResult `json:"sync,omitempty"`
}
