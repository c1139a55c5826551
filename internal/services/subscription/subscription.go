// Package subscription реализует административное управление подписками.
// Любое изменение статуса сразу синхронизирует членство пользователя в канале.
package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Repository хранилище подписок.
type Repository interface {
	EnsureUser(ctx context.Context, userID int64) error
	CreateSubscription(ctx context.Context, userID, productID int64, days int) (*models.Subscription, error)
	GetSubscription(ctx context.Context, id int64) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, filter models.SubscriptionFilter) ([]*models.Subscription, int, error)
	ListUserSubscriptions(ctx context.Context, userID int64, status string) ([]*models.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, id int64, status string) (*models.Subscription, error)
	ExtendSubscription(ctx context.Context, id int64, days int) (*models.Subscription, error)
	DeleteSubscription(ctx context.Context, id int64) (*models.Subscription, error)
}

// Syncer синхронизирует доступ к каналу.
type Syncer interface {
	Sync(ctx context.Context, req models.AccessSync) models.SyncResult
}

// Service бизнес-логика подписок.
type Service struct {
	repo   Repository
	syncer Syncer
	log    *slog.Logger
}

// New создаёт Service.
func New(repo Repository, syncer Syncer, log *slog.Logger) *Service {
	return &Service{repo: repo, syncer: syncer, log: log}
}

type change = models.AccessChange[*models.Subscription]

func (s *Service) sync(ctx context.Context, op string, sub *models.Subscription, status, reason string) *change {
	res := s.syncer.Sync(ctx, models.SyncFor(sub, status, reason))
	if !res.Success {
		s.log.Warn("channel sync failed",
			slog.String("op", op),
			slog.Int64("subscription_id", sub.ID),
			slog.String("desired_status", status),
			slog.String("error", res.Error),
		)
	}
	return &change{Item: sub, Sync: &res}
}

// List возвращает страницу подписок.
func (s *Service) List(ctx context.Context, filter models.SubscriptionFilter) (*models.Page[*models.Subscription], error) {
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, fmt.Errorf("subscription.List: %w: unknown status %q", apperr.ErrValidation, filter.Status)
	}
	filter.Pagination = filter.Pagination.Normalize()
	items, total, err := s.repo.ListSubscriptions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("subscription.List: %w", err)
	}
	if items == nil {
		items = []*models.Subscription{}
	}
	return &models.Page[*models.Subscription]{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Get возвращает подписку.
func (s *Service) Get(ctx context.Context, id int64) (*models.Subscription, error) {
	res, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("subscription.Get: %w", err)
	}
	return res, nil
}

// ForUser возвращает подписки пользователя для мини-приложения.
func (s *Service) ForUser(ctx context.Context, userID int64) ([]*models.Subscription, error) {
	res, err := s.repo.ListUserSubscriptions(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("subscription.ForUser: %w", err)
	}
	if res == nil {
		res = []*models.Subscription{}
	}
	return res, nil
}

// Grant выдаёт подписку вручную и отправляет приглашение в канал.
// Days = 0 означает период продукта.
func (s *Service) Grant(ctx context.Context, req models.DummySubscription) (*change, error) {
	const op = "subscription.Grant"
	if err := s.repo.EnsureUser(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub, err := s.repo.CreateSubscription(ctx, req.UserID, req.ProductID, req.Days)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscription granted",
		slog.String("op", op),
		slog.Int64("subscription_id", sub.ID),
		slog.Int64("user_id", sub.UserID),
	)
	return s.sync(ctx, op, sub, models.SubscriptionStatusActive, models.ReasonCreated), nil
}

// UpdateStatus меняет статус подписки и приводит членство в канале к новому статусу.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) (*change, error) {
	const op = "subscription.UpdateStatus"
	if !validStatus(status) {
		return nil, fmt.Errorf("%s: %w: unknown status %q", op, apperr.ErrValidation, status)
	}
	sub, err := s.repo.UpdateSubscriptionStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.sync(ctx, op, sub, status, models.ReasonUpdated), nil
}

// Extend продлевает подписку и возвращает доступ к каналу.
func (s *Service) Extend(ctx context.Context, id int64, days int) (*change, error) {
	const op = "subscription.Extend"
	if days <= 0 {
		return nil, fmt.Errorf("%s: %w: days must be positive", op, apperr.ErrValidation)
	}
	sub, err := s.repo.ExtendSubscription(ctx, id, days)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.sync(ctx, op, sub, models.SubscriptionStatusActive, models.ReasonUpdated), nil
}

// Delete удаляет подписку. Если она была активной, пользователь удаляется из канала.
func (s *Service) Delete(ctx context.Context, id int64) (*change, error) {
	const op = "subscription.Delete"
	sub, err := s.repo.DeleteSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("subscription deleted", slog.String("op", op), slog.Int64("subscription_id", id))
	if sub.Status != models.SubscriptionStatusActive {
		return &change{Item: sub}, nil
	}
	return s.sync(ctx, op, sub, models.AccessDeleted, models.ReasonDeleted), nil
}

func validStatus(status string) bool {
	switch status {
	case models.SubscriptionStatusActive, models.SubscriptionStatusExpired, models.SubscriptionStatusCancelled:
		return true
	}
	return false
}
