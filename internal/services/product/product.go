// Package product управляет тарифными планами и кэширует витрину активных продуктов
// для мини-приложения.
package product

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// CatalogKey ключ кэша витрины активных продуктов.
const CatalogKey = "products:active"

const (
	catalogTTL      = 5 * time.Minute
	defaultCurrency = "USD"
)

// Repository хранилище продуктов.
type Repository interface {
	CreateProduct(ctx context.Context, p models.Product) (*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]*models.Product, int, error)
	UpdateProduct(ctx context.Context, p models.Product) (*models.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// Cache кэш витрины.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// Service бизнес-логика продуктов.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
}

// New создаёт Service.
func New(repo Repository, cache Cache, log *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, log: log}
}

func fromDummy(req models.DummyProduct) (models.Product, error) {
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return models.Product{}, fmt.Errorf("%w: invalid price %q", apperr.ErrValidation, req.Price)
	}
	p := models.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       price,
		Currency:    strings.ToUpper(req.Currency),
		PeriodDays:  req.PeriodDays,
		IsActive:    true,
		AllowDemo:   req.AllowDemo,
		DemoDays:    req.DemoDays,
		ChannelID:   req.ChannelID,
	}
	if p.Name == "" {
		return p, fmt.Errorf("%w: name is empty", apperr.ErrValidation)
	}
	if p.Currency == "" {
		p.Currency = defaultCurrency
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if req.DiscountedPrice != "" {
		dp, err := decimal.NewFromString(req.DiscountedPrice)
		if err != nil || dp.IsNegative() {
			return p, fmt.Errorf("%w: invalid discounted price %q", apperr.ErrValidation, req.DiscountedPrice)
		}
		if !dp.LessThan(price) {
			return p, fmt.Errorf("%w: discounted price must be lower than price", apperr.ErrValidation)
		}
		p.DiscountedPrice = &dp
	}
	if p.AllowDemo && p.DemoDays <= 0 {
		return p, fmt.Errorf("%w: demo_days must be positive when demo is allowed", apperr.ErrValidation)
	}
	return p, nil
}

func (s *Service) invalidateCatalog(ctx context.Context, op string) {
	if err := s.cache.Invalidate(ctx, CatalogKey); err != nil {
		s.log.Warn("failed to invalidate product catalog", slog.String("op", op), sl.Err(err))
	}
}

// Create создаёт продукт.
func (s *Service) Create(ctx context.Context, req models.DummyProduct) (*models.Product, error) {
	const op = "product.Create"
	p, err := fromDummy(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateCatalog(ctx, op)
	s.log.Info("product created", slog.String("op", op), slog.Int64("id", res.ID))
	return res, nil
}

// Get возвращает продукт по id.
func (s *Service) Get(ctx context.Context, id int64) (*models.Product, error) {
	res, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("product.Get: %w", err)
	}
	return res, nil
}

// List возвращает страницу продуктов.
func (s *Service) List(ctx context.Context, filter models.ProductFilter) (*models.Page[*models.Product], error) {
	filter.Pagination = filter.Pagination.Normalize()
	items, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("product.List: %w", err)
	}
	if items == nil {
		items = []*models.Product{}
	}
	return &models.Page[*models.Product]{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Update заменяет параметры продукта.
func (s *Service) Update(ctx context.Context, id int64, req models.DummyProduct) (*models.Product, error) {
	const op = "product.Update"
	p, err := fromDummy(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.ID = id
	res, err := s.repo.UpdateProduct(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateCatalog(ctx, op)
	return res, nil
}

// Delete удаляет продукт, если у него нет активных подписок.
func (s *Service) Delete(ctx context.Context, id int64) error {
	const op = "product.Delete"
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateCatalog(ctx, op)
	s.log.Info("product deleted", slog.String("op", op), slog.Int64("id", id))
	return nil
}

// Catalog возвращает активные продукты для мини-приложения. Результат кэшируется.
func (s *Service) Catalog(ctx context.Context) ([]*models.Product, error) {
	const op = "product.Catalog"
	log := s.log.With(slog.String("op", op))

	var cached []*models.Product
	found, err := s.cache.Get(ctx, CatalogKey, &cached)
	if err != nil {
		log.Warn("catalog cache read failed", sl.Err(err))
	}
	if found && err == nil {
		return cached, nil
	}

	active := true
	items, _, err := s.repo.ListProducts(ctx, models.ProductFilter{
		IsActive:   &active,
		Pagination: models.Pagination{Limit: models.MaxLimit},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if items == nil {
		items = []*models.Product{}
	}
	if err := s.cache.Set(ctx, CatalogKey, items, catalogTTL); err != nil {
		log.Warn("catalog cache write failed", sl.Err(err))
	}
	return items, nil
}

// InvalidateCatalog сбрасывает кэш витрины, например после переименования канала.
func (s *Service) InvalidateCatalog(ctx context.Context) {
	s.invalidateCatalog(ctx, "product.InvalidateCatalog")
}
