// Package channelsync приводит членство пользователя в канале к статусу его подписки:
// выдаёт приглашение активным подписчикам и удаляет остальных, уведомляя пользователя.
package channelsync

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"time"

	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/metrics"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

const (
	// InviteLabel имя пригласительных ссылок, создаваемых панелью.
	InviteLabel = "sub-access"

	inviteTTL = 30 * 24 * time.Hour
	dedupTTL  = 24 * time.Hour
)

// Messenger операции Bot API, нужные синхронизатору.
type Messenger interface {
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
	CreateInviteLink(ctx context.Context, chatID int64, name string) (string, error)
	RevokeInviteLink(ctx context.Context, chatID int64, link string) error
	RemoveMember(ctx context.Context, chatID, userID int64) error
	SendMessage(ctx context.Context, userID int64, text string) error
	SendLinkButton(ctx context.Context, userID int64, text, buttonText, url string) error
}

// Cache хранит выданные ссылки и отметки отправленных уведомлений.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
	Invalidate(ctx context.Context, keys ...string) error
}

// AccessChecker проверяет, остался ли у пользователя другой действующий доступ к каналу.
type AccessChecker interface {
	HasChannelAccess(ctx context.Context, userID, channelID int64) (bool, error)
}

// Synchronizer синхронизирует доступ к каналам.
type Synchronizer struct {
	messenger Messenger
	cache     Cache
	access    AccessChecker
	log       *slog.Logger
	now       func() time.Time
}

// New создаёт Synchronizer.
func New(messenger Messenger, cache Cache, access AccessChecker, log *slog.Logger) *Synchronizer {
	return &Synchronizer{
		messenger: messenger,
		cache:     cache,
		access:    access,
		log:       log,
		now:       time.Now,
	}
}

func inviteKey(channelID, userID int64) string {
	return "invite:" + strconv.FormatInt(channelID, 10) + ":" + strconv.FormatInt(userID, 10)
}

func (s *Synchronizer) notifyKey(req models.AccessSync) string {
	return fmt.Sprintf("notify:%d:%d:%s:%s", req.UserID, req.ChannelID, req.DesiredStatus,
		s.now().UTC().Format(time.DateOnly))
}

// Sync приводит членство к желаемому статусу. Ошибки уведомлений не влияют на результат.
func (s *Synchronizer) Sync(ctx context.Context, req models.AccessSync) models.SyncResult {
	const op = "channelsync.Sync"
	log := s.log.With(
		slog.String("op", op),
		slog.Int64("user_id", req.UserID),
		slog.Int64("channel_id", req.ChannelID),
		slog.String("desired_status", req.DesiredStatus),
	)

	var res models.SyncResult
	if req.DesiredStatus == models.SubscriptionStatusActive {
		res = s.grant(ctx, log, req)
	} else {
		res = s.revoke(ctx, log, req)
	}

	metrics.ChannelSyncs.WithLabelValues(res.Action, strconv.FormatBool(res.Success)).Inc()
	if res.Success {
		log.Info("channel access synced", slog.String("action", res.Action))
	} else {
		log.Error("channel access sync failed", slog.String("action", res.Action), slog.String("error", res.Error))
	}
	return res
}

func (s *Synchronizer) grant(ctx context.Context, log *slog.Logger, req models.AccessSync) models.SyncResult {
	member, err := s.messenger.IsMember(ctx, req.ChannelID, req.UserID)
	if err != nil {
		log.Warn("membership check failed, sending invite", sl.Err(err))
	}
	if member {
		// Ссылка одноразовая: после вступления она использована.
		s.forgetInvite(ctx, log, req)
		s.notify(ctx, log, req, activeText(req))
		return models.SyncResult{Success: true, Action: models.ActionAlreadyMember}
	}

	link, err := s.inviteLink(ctx, log, req)
	if err != nil {
		return models.SyncResult{Action: models.ActionNone, Error: err.Error()}
	}

	text := inviteText(req)
	err = s.messenger.SendLinkButton(ctx, req.UserID, text, "Join channel", link)
	if err == nil {
		return models.SyncResult{Success: true, Action: models.ActionInviteSent}
	}
	log.Warn("invite button not delivered, falling back to plain text", sl.Err(err))

	if err := s.messenger.SendMessage(ctx, req.UserID, text+"\n\n"+html.EscapeString(link)); err != nil {
		return models.SyncResult{Action: models.ActionNone, Error: "invite not delivered: " + err.Error()}
	}
	return models.SyncResult{Success: true, Action: models.ActionInviteRaw}
}

// inviteLink возвращает ранее выданную ссылку или создаёт новую одноразовую.
func (s *Synchronizer) inviteLink(ctx context.Context, log *slog.Logger, req models.AccessSync) (string, error) {
	key := inviteKey(req.ChannelID, req.UserID)

	var link string
	found, err := s.cache.Get(ctx, key, &link)
	if err != nil {
		log.Warn("invite cache read failed", sl.Err(err))
	}
	if found && link != "" {
		log.Debug("reusing invite link")
		return link, nil
	}

	link, err = s.messenger.CreateInviteLink(ctx, req.ChannelID, InviteLabel)
	if err != nil {
		return "", fmt.Errorf("create invite link: %w", err)
	}
	if err := s.cache.Set(ctx, key, link, inviteTTL); err != nil {
		log.Warn("invite cache write failed", sl.Err(err))
	}
	return link, nil
}

// revoke удаляет пользователя из канала, если канал не оплачен другой подпиской или пробным доступом.
// Ошибка проверки оставляет пользователя в канале.
func (s *Synchronizer) revoke(ctx context.Context, log *slog.Logger, req models.AccessSync) models.SyncResult {
	if !req.Force {
		keep, err := s.access.HasChannelAccess(ctx, req.UserID, req.ChannelID)
		if err != nil {
			return models.SyncResult{Action: models.ActionNone, Error: "access check failed: " + err.Error()}
		}
		if keep {
			log.Info("removal skipped, user keeps access through another grant")
			return models.SyncResult{Success: true, Action: models.ActionKept}
		}
	}
	if err := s.messenger.RemoveMember(ctx, req.ChannelID, req.UserID); err != nil {
		return models.SyncResult{Action: models.ActionNone, Error: err.Error()}
	}
	s.dropInvite(ctx, log, req)
	s.notify(ctx, log, req, removalText(req))
	return models.SyncResult{Success: true, Action: models.ActionRemoved}
}

// dropInvite отзывает сохранённую ссылку, чтобы ей нельзя было воспользоваться после удаления.
func (s *Synchronizer) dropInvite(ctx context.Context, log *slog.Logger, req models.AccessSync) {
	key := inviteKey(req.ChannelID, req.UserID)
	var link string
	found, err := s.cache.Get(ctx, key, &link)
	if err != nil || !found {
		return
	}
	if err := s.messenger.RevokeInviteLink(ctx, req.ChannelID, link); err != nil {
		log.Warn("failed to revoke invite link", sl.Err(err))
	}
	s.forgetInvite(ctx, log, req)
}

func (s *Synchronizer) forgetInvite(ctx context.Context, log *slog.Logger, req models.AccessSync) {
	if err := s.cache.Invalidate(ctx, inviteKey(req.ChannelID, req.UserID)); err != nil {
		log.Warn("invite cache invalidate failed", sl.Err(err))
	}
}

// notify отправляет уведомление не чаще раза в день на пару (пользователь, канал, статус).
func (s *Synchronizer) notify(ctx context.Context, log *slog.Logger, req models.AccessSync, text string) {
	first, err := s.cache.SetNX(ctx, s.notifyKey(req), 1, dedupTTL)
	if err != nil {
		log.Warn("notification dedup unavailable", sl.Err(err))
	} else if !first {
		log.Debug("duplicate notification skipped")
		return
	}
	if err := s.messenger.SendMessage(ctx, req.UserID, text); err != nil {
		log.Warn("notification not delivered", sl.Err(err))
	}
}

func channelName(req models.AccessSync) string {
	if req.ChannelName != "" {
		return html.EscapeString(req.ChannelName)
	}
	return "the channel"
}

func expiresSuffix(req models.AccessSync) string {
	if req.ExpiresAt == nil {
		return ""
	}
	return "\nValid until " + req.ExpiresAt.UTC().Format("02.01.2006 15:04") + " UTC."
}

func activeText(req models.AccessSync) string {
	return fmt.Sprintf("Your subscription <b>%s</b> is active. You already have access to %s.%s",
		html.EscapeString(req.ProductName), channelName(req), expiresSuffix(req))
}

func inviteText(req models.AccessSync) string {
	return fmt.Sprintf("Your subscription <b>%s</b> is active. Use the link below to join %s.%s",
		html.EscapeString(req.ProductName), channelName(req), expiresSuffix(req))
}

func removalText(req models.AccessSync) string {
	product := html.EscapeString(req.ProductName)
	switch req.Reason {
	case models.ReasonExpired:
		return fmt.Sprintf("Your subscription <b>%s</b> has expired. Access to %s was closed. Renew it in the app.",
			product, channelName(req))
	case models.ReasonDeleted:
		return fmt.Sprintf("Your subscription <b>%s</b> was removed. Access to %s was closed.", product, channelName(req))
	case models.ReasonCreated:
		return fmt.Sprintf("Your subscription <b>%s</b> is not active. Access to %s is unavailable.", product, channelName(req))
	default:
		return fmt.Sprintf("Your subscription <b>%s</b> is now %s. Access to %s was closed.",
			product, req.DesiredStatus, channelName(req))
	}
}
