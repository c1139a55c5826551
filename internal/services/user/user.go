// Package user реализует административное управление пользователями и администраторами.
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Repository хранилище пользователей.
type Repository interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error)
	DeleteUser(ctx context.Context, userID int64) error
	CountUserPayments(ctx context.Context, userID int64) (int, error)
	ListUserSubscriptions(ctx context.Context, userID int64, status string) ([]*models.Subscription, error)
	ListDemoAccesses(ctx context.Context, filter models.DemoAccessFilter) ([]*models.DemoAccess, int, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	AddAdmin(ctx context.Context, userID int64) error
	RemoveAdmin(ctx context.Context, userID int64) error
	ListAdmins(ctx context.Context) ([]*models.Admin, error)
}

// Syncer синхронизирует доступ к каналу.
type Syncer interface {
	Sync(ctx context.Context, req models.AccessSync) models.SyncResult
}

// Service бизнес-логика пользователей.
type Service struct {
	repo   Repository
	syncer Syncer
	log    *slog.Logger
}

// New создаёт Service.
func New(repo Repository, syncer Syncer, log *slog.Logger) *Service {
	return &Service{repo: repo, syncer: syncer, log: log}
}

// List возвращает страницу пользователей.
func (s *Service) List(ctx context.Context, filter models.UserFilter) (*models.Page[*models.User], error) {
	filter.Pagination = filter.Pagination.Normalize()
	items, total, err := s.repo.ListUsers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("user.List: %w", err)
	}
	if items == nil {
		items = []*models.User{}
	}
	return &models.Page[*models.User]{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (s *Service) activeDemos(ctx context.Context, userID int64) ([]*models.DemoAccess, error) {
	active := true
	demos, _, err := s.repo.ListDemoAccesses(ctx, models.DemoAccessFilter{
		UserID:     &userID,
		IsActive:   &active,
		Pagination: models.Pagination{Limit: models.MaxLimit},
	})
	return demos, err
}

// Details возвращает карточку пользователя: подписки, пробные доступы и число платежей.
func (s *Service) Details(ctx context.Context, userID int64) (*models.UserDetails, error) {
	const op = "user.Details"
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	isAdmin, err := s.repo.IsAdmin(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	subs, err := s.repo.ListUserSubscriptions(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	demos, _, err := s.repo.ListDemoAccesses(ctx, models.DemoAccessFilter{
		UserID:     &userID,
		Pagination: models.Pagination{Limit: models.MaxLimit},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	payments, err := s.repo.CountUserPayments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if subs == nil {
		subs = []*models.Subscription{}
	}
	if demos == nil {
		demos = []*models.DemoAccess{}
	}
	return &models.UserDetails{
		User:          *u,
		IsAdmin:       isAdmin,
		Subscriptions: subs,
		DemoAccesses:  demos,
		PaymentsCount: payments,
	}, nil
}

// Delete удаляет пользователя вместе с подписками и пробными доступами.
// Перед удалением пользователь исключается из каналов активных подписок.
// Администратор не может удалить сам себя.
func (s *Service) Delete(ctx context.Context, actorID, userID int64) error {
	const op = "user.Delete"
	log := s.log.With(slog.String("op", op), slog.Int64("user_id", userID))

	if actorID == userID {
		return fmt.Errorf("%s: %w: cannot delete yourself", op, apperr.ErrValidation)
	}
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	subs, err := s.repo.ListUserSubscriptions(ctx, userID, models.SubscriptionStatusActive)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	demos, err := s.activeDemos(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, sub := range subs {
		req := models.SyncFor(sub, models.AccessDeleted, models.ReasonDeleted)
		req.Force = true
		res := s.syncer.Sync(ctx, req)
		if !res.Success {
			log.Warn("channel removal failed", slog.Int64("channel_id", sub.ChannelID), slog.String("error", res.Error))
		}
	}
	for _, d := range demos {
		req := models.SyncForDemo(d, models.AccessDeleted, models.ReasonDeleted)
		req.Force = true
		res := s.syncer.Sync(ctx, req)
		if !res.Success {
			log.Warn("channel removal failed", slog.Int64("channel_id", d.ChannelID), slog.String("error", res.Error))
		}
	}

	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("user deleted", slog.Int("subscriptions", len(subs)), slog.Int("demo_accesses", len(demos)))
	return nil
}

// Admins возвращает список администраторов.
func (s *Service) Admins(ctx context.Context) ([]*models.Admin, error) {
	res, err := s.repo.ListAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("user.Admins: %w", err)
	}
	if res == nil {
		res = []*models.Admin{}
	}
	return res, nil
}

// GrantAdmin выдаёт права администратора.
func (s *Service) GrantAdmin(ctx context.Context, userID int64) error {
	const op = "user.GrantAdmin"
	if err := s.repo.AddAdmin(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("admin granted", slog.String("op", op), slog.Int64("user_id", userID))
	return nil
}

// RevokeAdmin отзывает права администратора. Отозвать права у самого себя нельзя.
func (s *Service) RevokeAdmin(ctx context.Context, actorID, userID int64) error {
	const op = "user.RevokeAdmin"
	if actorID == userID {
		return fmt.Errorf("%s: %w: cannot revoke your own admin rights", op, apperr.ErrValidation)
	}
	if err := s.repo.RemoveAdmin(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("admin revoked", slog.String("op", op), slog.Int64("user_id", userID))
	return nil
}
