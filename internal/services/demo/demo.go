// Package demo выдаёт и отзывает пробный доступ к продуктам.
//
// Пробный доступ выдаётся один раз на пару (пользователь, продукт). Все проверки
// выполняются до выдачи, и ошибка любой из них запрещает выдачу.
package demo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Repository хранилище пробных доступов.
type Repository interface {
	EnsureUser(ctx context.Context, userID int64) error
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	HasActiveDemo(ctx context.Context, userID int64) (bool, error)
	HasDemoAccess(ctx context.Context, userID, productID int64) (bool, error)
	HasActiveSubscription(ctx context.Context, userID, productID int64) (bool, error)
	CreateDemoAccess(ctx context.Context, userID, productID int64, days int) (*models.DemoAccess, error)
	ListDemoAccesses(ctx context.Context, filter models.DemoAccessFilter) ([]*models.DemoAccess, int, error)
	RevokeDemoAccess(ctx context.Context, id int64) (*models.DemoAccess, error)
}

// Syncer синхронизирует доступ к каналу.
type Syncer interface {
	Sync(ctx context.Context, req models.AccessSync) models.SyncResult
}

// Service бизнес-логика пробного доступа.
type Service struct {
	repo   Repository
	syncer Syncer
	log    *slog.Logger
}

// New создаёт Service.
func New(repo Repository, syncer Syncer, log *slog.Logger) *Service {
	return &Service{repo: repo, syncer: syncer, log: log}
}

type change = models.AccessChange[*models.DemoAccess]

// List возвращает страницу пробных доступов.
func (s *Service) List(ctx context.Context, filter models.DemoAccessFilter) (*models.Page[*models.DemoAccess], error) {
	filter.Pagination = filter.Pagination.Normalize()
	items, total, err := s.repo.ListDemoAccesses(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("demo.List: %w", err)
	}
	if items == nil {
		items = []*models.DemoAccess{}
	}
	return &models.Page[*models.DemoAccess]{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// checkEligibility проверяет условия выдачи. Ошибка чтения тоже запрещает выдачу.
func (s *Service) checkEligibility(ctx context.Context, userID int64, product *models.Product) error {
	if !product.IsActive || !product.AllowDemo || product.DemoDays <= 0 {
		return fmt.Errorf("%w: product %d does not offer demo access", apperr.ErrValidation, product.ID)
	}

	active, err := s.repo.HasActiveDemo(ctx, userID)
	if err != nil {
		return err
	}
	if active {
		return fmt.Errorf("%w: user already has an active demo", apperr.ErrAlreadyUsed)
	}

	used, err := s.repo.HasDemoAccess(ctx, userID, product.ID)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: demo for product %d was already granted", apperr.ErrAlreadyUsed, product.ID)
	}

	paid, err := s.repo.HasActiveSubscription(ctx, userID, product.ID)
	if err != nil {
		return err
	}
	if paid {
		return fmt.Errorf("%w: user already has an active subscription", apperr.ErrAlreadyUsed)
	}
	return nil
}

// Grant выдаёт пробный доступ и приглашает пользователя в канал продукта.
func (s *Service) Grant(ctx context.Context, userID, productID int64) (*change, error) {
	const op = "demo.Grant"
	log := s.log.With(
		slog.String("op", op),
		slog.Int64("user_id", userID),
		slog.Int64("product_id", productID),
	)

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.checkEligibility(ctx, userID, product); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.EnsureUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	d, err := s.repo.CreateDemoAccess(ctx, userID, productID, product.DemoDays)
	if errors.Is(err, apperr.ErrConflict) {
		return nil, fmt.Errorf("%s: %w: demo for product %d was already granted", op, apperr.ErrAlreadyUsed, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("demo access granted", slog.Int64("demo_id", d.ID))

	res := s.syncer.Sync(ctx, models.SyncForDemo(d, models.SubscriptionStatusActive, models.ReasonCreated))
	if !res.Success {
		log.Warn("channel sync failed", slog.String("error", res.Error))
	}
	return &change{Item: d, Sync: &res}, nil
}

// Request выдаёт пробный доступ по запросу пользователя из мини-приложения.
func (s *Service) Request(ctx context.Context, userID int64, req models.DummyDemoRequest) (*change, error) {
	return s.Grant(ctx, userID, req.ProductID)
}

// Revoke отключает пробный доступ и удаляет пользователя из канала.
func (s *Service) Revoke(ctx context.Context, id int64) (*change, error) {
	const op = "demo.Revoke"
	d, err := s.repo.RevokeDemoAccess(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res := s.syncer.Sync(ctx, models.SyncForDemo(d, models.SubscriptionStatusCancelled, models.ReasonDeleted))
	if !res.Success {
		s.log.Warn("channel sync failed", slog.String("op", op), slog.Int64("demo_id", id), slog.String("error", res.Error))
	}
	return &change{Item: d, Sync: &res}, nil
}
