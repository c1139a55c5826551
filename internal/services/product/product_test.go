package product

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/cache"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreateProduct(ctx context.Context, p models.Product) (*models.Product, error) {
	args := m.Called(ctx, p)
	res, _ := args.Get(0).(*models.Product)
	return res, args.Error(1)
}

func (m *RepoMock) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.Product)
	return res, args.Error(1)
}

func (m *RepoMock) ListProducts(ctx context.Context, filter models.ProductFilter) ([]*models.Product, int, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).([]*models.Product)
	return res, args.Int(1), args.Error(2)
}

func (m *RepoMock) UpdateProduct(ctx context.Context, p models.Product) (*models.Product, error) {
	args := m.Called(ctx, p)
	res, _ := args.Get(0).(*models.Product)
	return res, args.Error(1)
}

func (m *RepoMock) DeleteProduct(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newTestCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return &cache.Cache{Db: redis.NewClient(&redis.Options{Addr: mr.Addr()})}, mr
}

func TestService_Create(t *testing.T) {
	inactive := false

	tests := []struct {
		name       string
		req        models.DummyProduct
		setupMocks func(r *RepoMock)
		wantErr    error
	}{
		{
			name: "success with defaults",
			req:  models.DummyProduct{Name: " Pro ", Price: "10.50", PeriodDays: 30, ChannelID: -100},
			setupMocks: func(r *RepoMock) {
				r.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p models.Product) bool {
					return p.Name == "Pro" && p.Currency == "USD" && p.IsActive &&
						p.Price.Equal(decimal.RequireFromString("10.5"))
				})).Return(&models.Product{ID: 1}, nil).Once()
			},
		},
		{
			name: "explicit inactive with sale price",
			req: models.DummyProduct{Name: "Pro", Price: "10", DiscountedPrice: "8", Currency: "eur",
				PeriodDays: 30, ChannelID: -100, IsActive: &inactive},
			setupMocks: func(r *RepoMock) {
				r.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p models.Product) bool {
					return !p.IsActive && p.Currency == "EUR" && p.DiscountedPrice != nil
				})).Return(&models.Product{ID: 2}, nil).Once()
			},
		},
		{
			name:       "bad price",
			req:        models.DummyProduct{Name: "Pro", Price: "ten", PeriodDays: 30},
			setupMocks: func(r *RepoMock) {},
			wantErr:    apperr.ErrValidation,
		},
		{
			name:       "sale price not lower",
			req:        models.DummyProduct{Name: "Pro", Price: "10", DiscountedPrice: "10", PeriodDays: 30},
			setupMocks: func(r *RepoMock) {},
			wantErr:    apperr.ErrValidation,
		},
		{
			name:       "demo without days",
			req:        models.DummyProduct{Name: "Pro", Price: "10", PeriodDays: 30, AllowDemo: true},
			setupMocks: func(r *RepoMock) {},
			wantErr:    apperr.ErrValidation,
		},
		{
			name: "unknown channel",
			req:  models.DummyProduct{Name: "Pro", Price: "10", PeriodDays: 30, ChannelID: 5},
			setupMocks: func(r *RepoMock) {
				r.On("CreateProduct", mock.Anything, mock.Anything).Return(nil, apperr.ErrNotFound).Once()
			},
			wantErr: apperr.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)
			c, _ := newTestCache(t)
			svc := New(repo, c, newNoopLogger())

			_, err := svc.Create(context.Background(), tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_Catalog(t *testing.T) {
	ctx := context.Background()
	repo := new(RepoMock)
	c, mr := newTestCache(t)
	svc := New(repo, c, newNoopLogger())

	products := []*models.Product{{ID: 1, Name: "Pro", Price: decimal.NewFromInt(5), IsActive: true}}
	repo.On("ListProducts", mock.Anything, mock.MatchedBy(func(f models.ProductFilter) bool {
		return f.IsActive != nil && *f.IsActive && f.Limit == models.MaxLimit
	})).Return(products, 1, nil).Twice()

	first, err := svc.Catalog(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.True(t, mr.Exists(CatalogKey))

	// второй вызов читается из кэша
	second, err := svc.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Pro", second[0].Name)
	repo.AssertNumberOfCalls(t, "ListProducts", 1)

	// запись сбрасывает кэш
	repo.On("DeleteProduct", mock.Anything, int64(1)).Return(nil).Once()
	require.NoError(t, svc.Delete(ctx, 1))
	assert.False(t, mr.Exists(CatalogKey))

	_, err = svc.Catalog(ctx)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "ListProducts", 2)
}

func TestService_Catalog_CacheUnavailable(t *testing.T) {
	repo := new(RepoMock)
	c, mr := newTestCache(t)
	mr.Close()
	svc := New(repo, c, newNoopLogger())

	repo.On("ListProducts", mock.Anything, mock.Anything).Return(nil, 0, nil).Once()
	items, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)

	repo2 := new(RepoMock)
	repo2.On("ListProducts", mock.Anything, mock.Anything).Return(nil, 0, errors.New("db down")).Once()
	_, err = New(repo2, c, newNoopLogger()).Catalog(context.Background())
	assert.Error(t, err)
}

func TestService_UpdateDelete(t *testing.T) {
	ctx := context.Background()
	repo := new(RepoMock)
	c, mr := newTestCache(t)
	svc := New(repo, c, newNoopLogger())
	require.NoError(t, c.Set(ctx, CatalogKey, []int{1}, time.Minute))

	repo.On("UpdateProduct", mock.Anything, mock.MatchedBy(func(p models.Product) bool { return p.ID == 7 })).
		Return(&models.Product{ID: 7}, nil).Once()
	_, err := svc.Update(ctx, 7, models.DummyProduct{Name: "X", Price: "1", PeriodDays: 1, ChannelID: 1})
	require.NoError(t, err)
	assert.False(t, mr.Exists(CatalogKey))

	repo.On("DeleteProduct", mock.Anything, int64(7)).Return(apperr.ErrHasActiveDependents).Once()
	assert.ErrorIs(t, svc.Delete(ctx, 7), apperr.ErrHasActiveDependents)

	repo.On("ListProducts", mock.Anything, mock.MatchedBy(func(f models.ProductFilter) bool {
		return f.Limit == models.DefaultLimit
	})).Return(nil, 0, nil).Once()
	page, err := svc.List(ctx, models.ProductFilter{})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	repo.AssertExpectations(t)
}
