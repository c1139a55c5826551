// Package promo управляет промокодами и рассчитывает итоговую цену продукта
// с учётом скидки продукта, лучшей автоматической скидки и промокода.
package promo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Repository хранилище промокодов и данных для расчёта цены.
type Repository interface {
	CreatePromoCode(ctx context.Context, p models.PromoCode) (*models.PromoCode, error)
	GetPromoCode(ctx context.Context, id int64) (*models.PromoCode, error)
	GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error)
	ListPromoCodes(ctx context.Context, filter models.PromoCodeFilter) ([]*models.PromoCode, int, error)
	UpdatePromoCode(ctx context.Context, p models.PromoCode) (*models.PromoCode, error)
	DeletePromoCode(ctx context.Context, id int64) error
	ListApplicableDiscounts(ctx context.Context, productID int64) ([]*models.Discount, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
}

// Service бизнес-логика промокодов.
type Service struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time
}

// New создаёт Service.
func New(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log, now: time.Now}
}

func fromDummy(req models.DummyPromoCode) (models.PromoCode, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return models.PromoCode{}, fmt.Errorf("%w: code is empty", apperr.ErrValidation)
	}
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		return models.PromoCode{}, fmt.Errorf("%w: invalid value %q", apperr.ErrValidation, req.Value)
	}
	if err := models.ValidateReduction(req.Kind, value, req.StartsAt, req.EndsAt); err != nil {
		return models.PromoCode{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	return models.PromoCode{
		Code:      code,
		Kind:      req.Kind,
		Value:     value,
		ProductID: req.ProductID,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		MaxUses:   req.MaxUses,
		IsActive:  isActive,
	}, nil
}

// Create создаёт промокод. Код хранится в верхнем регистре.
func (s *Service) Create(ctx context.Context, req models.DummyPromoCode) (*models.PromoCode, error) {
	const op = "promo.Create"
	p, err := fromDummy(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.repo.CreatePromoCode(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("promo code created", slog.String("op", op), slog.String("code", res.Code))
	return res, nil
}

// Get возвращает промокод по id.
func (s *Service) Get(ctx context.Context, id int64) (*models.PromoCode, error) {
	res, err := s.repo.GetPromoCode(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("promo.Get: %w", err)
	}
	return res, nil
}

// List возвращает страницу промокодов.
func (s *Service) List(ctx context.Context, filter models.PromoCodeFilter) (*models.Page[*models.PromoCode], error) {
	filter.Pagination = filter.Pagination.Normalize()
	items, total, err := s.repo.ListPromoCodes(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("promo.List: %w", err)
	}
	if items == nil {
		items = []*models.PromoCode{}
	}
	return &models.Page[*models.PromoCode]{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Update заменяет параметры промокода.
func (s *Service) Update(ctx context.Context, id int64, req models.DummyPromoCode) (*models.PromoCode, error) {
	const op = "promo.Update"
	p, err := fromDummy(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.ID = id
	res, err := s.repo.UpdatePromoCode(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// Delete удаляет промокод.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeletePromoCode(ctx, id); err != nil {
		return fmt.Errorf("promo.Delete: %w", err)
	}
	return nil
}

// Quote рассчитывает цену продукта. Пустой code означает покупку без промокода.
// Из автоматических скидок выбирается дающая наименьшую цену, промокод применяется после неё.
func (s *Service) Quote(ctx context.Context, productID int64, code string) (*models.Quote, error) {
	const op = "promo.Quote"
	now := s.now()

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !product.IsActive {
		return nil, fmt.Errorf("%s: %w: product is not available", op, apperr.ErrValidation)
	}

	q := &models.Quote{
		ProductID:  product.ID,
		BasePrice:  product.BasePrice(),
		FinalPrice: product.BasePrice(),
		Currency:   product.Currency,
	}

	discounts, err := s.repo.ListApplicableDiscounts(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, d := range discounts {
		if !d.AppliesTo(productID, now) {
			continue
		}
		price := models.ApplyReduction(q.BasePrice, d.Kind, d.Value)
		if price.LessThan(q.FinalPrice) {
			id := d.ID
			q.FinalPrice = price
			q.DiscountID = &id
		}
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return q, nil
	}
	pc, err := s.repo.GetPromoCodeByCode(ctx, code)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w: unknown promo code", op, apperr.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if pc.MaxUses != nil && pc.UsedCount >= *pc.MaxUses {
		return nil, fmt.Errorf("%s: %w: promo code usage limit reached", op, apperr.ErrAlreadyUsed)
	}
	if !pc.UsableFor(productID, now) {
		return nil, fmt.Errorf("%s: %w: promo code is not applicable", op, apperr.ErrValidation)
	}
	id := pc.ID
	q.FinalPrice = models.ApplyReduction(q.FinalPrice, pc.Kind, pc.Value)
	q.PromoCodeID = &id
	return q, nil
}
