// Package discount управляет автоматическими скидками на продукты.
package discount

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Repository хранилище скидок.
type Repository interface {
	CreateDiscount(ctx context.Context, d models.Discount) (*models.Discount, error)
	GetDiscount(ctx context.Context, id int64) (*models.Discount, error)
	ListDiscounts(ctx context.Context, filter models.DiscountFilter) ([]*models.Discount, int, error)
	UpdateDiscount(ctx context.Context, d models.Discount) (*models.Discount, error)
	DeleteDiscount(ctx context.Context, id int64) error
}

// Service бизнес-логика скидок.
type Service struct {
	repo Repository
	log  *slog.Logger
}

// New создаёт Service.
func New(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

func fromDummy(req models.DummyDiscount) (models.Discount, error) {
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		return models.Discount{}, fmt.Errorf("%w: invalid value %q", apperr.ErrValidation, req.Value)
	}
	if err := models.ValidateReduction(req.Kind, value, req.StartsAt, req.EndsAt); err != nil {
		return models.Discount{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	return models.Discount{
		Name:      req.Name,
		Kind:      req.Kind,
		Value:     value,
		ProductID: req.ProductID,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		MaxUses:   req.MaxUses,
		IsActive:  isActive,
	}, nil
}

// Create создаёт скидку.
func (s *Service) Create(ctx context.Context, req models.DummyDiscount) (*models.Discount, error) {
	const op = "discount.Create"
	d, err := fromDummy(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.repo.CreateDiscount(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("discount created", slog.String("op", op), slog.Int64("id", res.ID))
	return res, nil
}

// Get возвращает скидку по id.
func (s *Service) Get(ctx context.Context, id int64) (*models.Discount, error) {
	res, err := s.repo.GetDiscount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("discount.Get: %w", err)
	}
	return res, nil
}

// List возвращает страницу скидок.
func (s *Service) List(ctx context.Context, filter models.DiscountFilter) (*models.Page[*models.Discount], error) {
	filter.Pagination = filter.Pagination.Normalize()
	items, total, err := s.repo.ListDiscounts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("discount.List: %w", err)
	}
	if items == nil {
		items = []*models.Discount{}
	}
	return &models.Page[*models.Discount]{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Update заменяет параметры скидки.
func (s *Service) Update(ctx context.Context, id int64, req models.DummyDiscount) (*models.Discount, error) {
	const op = "discount.Update"
	d, err := fromDummy(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	d.ID = id
	res, err := s.repo.UpdateDiscount(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// Delete удаляет скидку.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteDiscount(ctx, id); err != nil {
		return fmt.Errorf("discount.Delete: %w", err)
	}
	s.log.Info("discount deleted", slog.String("op", "discount.Delete"), slog.Int64("id", id))
	return nil
}
