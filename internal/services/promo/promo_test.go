package promo

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreatePromoCode(ctx context.Context, p models.PromoCode) (*models.PromoCode, error) {
	args := m.Called(ctx, p)
	res, _ := args.Get(0).(*models.PromoCode)
	return res, args.Error(1)
}

func (m *RepoMock) GetPromoCode(ctx context.Context, id int64) (*models.PromoCode, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.PromoCode)
	return res, args.Error(1)
}

func (m *RepoMock) GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	args := m.Called(ctx, code)
	res, _ := args.Get(0).(*models.PromoCode)
	return res, args.Error(1)
}

func (m *RepoMock) ListPromoCodes(ctx context.Context, filter models.PromoCodeFilter) ([]*models.PromoCode, int, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).([]*models.PromoCode)
	return res, args.Int(1), args.Error(2)
}

func (m *RepoMock) UpdatePromoCode(ctx context.Context, p models.PromoCode) (*models.PromoCode, error) {
	args := m.Called(ctx, p)
	res, _ := args.Get(0).(*models.PromoCode)
	return res, args.Error(1)
}

func (m *RepoMock) DeletePromoCode(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *RepoMock) ListApplicableDiscounts(ctx context.Context, productID int64) ([]*models.Discount, error) {
	args := m.Called(ctx, productID)
	res, _ := args.Get(0).([]*models.Discount)
	return res, args.Error(1)
}

func (m *RepoMock) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.Product)
	return res, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestService_Quote(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	discounted := dec("80")
	product := &models.Product{ID: 1, Price: dec("100"), Currency: "USD", IsActive: true}
	productWithSale := &models.Product{ID: 1, Price: dec("100"), DiscountedPrice: &discounted, Currency: "USD", IsActive: true}
	maxOne := 1
	otherProduct := int64(2)

	tests := []struct {
		name         string
		code         string
		setupMocks   func(r *RepoMock)
		wantPrice    string
		wantDiscount *int64
		wantPromo    *int64
		wantErr      error
	}{
		{
			name: "base price",
			setupMocks: func(r *RepoMock) {
				r.On("GetProduct", mock.Anything, int64(1)).Return(product, nil).Once()
				r.On("ListApplicableDiscounts", mock.Anything, int64(1)).Return(nil, nil).Once()
			},
			wantPrice: "100",
		},
		{
			name: "product sale price",
			setupMocks: func(r *RepoMock) {
				r.On("GetProduct", mock.Anything, int64(1)).Return(productWithSale, nil).Once()
				r.On("ListApplicableDiscounts", mock.Anything, int64(1)).Return(nil, nil).Once()
			},
			wantPrice: "80",
		},
		{
			name: "best discount wins",
			setupMocks: func(r *RepoMock) {
				r.On("GetProduct", mock.Anything, int64(1)).Return(product, nil).Once()
				r.On("ListApplicableDiscounts", mock.Anything, int64(1)).Return([]*models.Discount{
					{ID: 5, Kind: models.ReductionPercent, Value: dec("10"), IsActive: true},
					{ID: 6, Kind: models.ReductionFixed, Value: dec("25"), IsActive: true},
				}, nil).Once()
			},
			wantPrice:    "75",
			wantDiscount: ptr(int64(6)),
		},
		{
			name: "discount then promo",
			code: " spring ",
			setupMocks: func(r *RepoMock) {
				r.On("GetProduct", mock.Anything, int64(1)).Return(product, nil).Once()
				r.On("ListApplicableDiscounts", mock.Anything, int64(1)).Return([]*models.Discount{
					{ID: 5, Kind: models.ReductionPercent, Value: dec("10"), IsActive: true},
				}, nil).Once()
				r.On("GetPromoCodeByCode", mock.Anything, "spring").Return(&models.PromoCode{
					ID: 7, Code: "SPRING", Kind: models.ReductionPercent, Value: dec("50"), IsActive: true,
				}, nil).Once()
			},
			wantPrice:    "45",
			wantDiscount: ptr(int64(5)),
			wantPromo:    ptr(int64(7)),
		},
		{
			name: "fixed promo never below zero",
			code: "FREE",
			setupMocks: func(r *RepoMock) {
				r.On("GetProduct", mock.Anything, int64(1)).Return(product, nil).Once()
				r.On("ListApplicableDiscounts", mock.Anything, int64(1)).Return(nil, nil).Once()
				r.On("GetPromoCodeByCode", mock.Anything, "FREE").Return(&models.PromoCode{
					ID: 8, Kind: models.ReductionFixed, Value: dec("500"), IsActive: true,
				}, nil).Once()
			},
			wantPrice: "0",
			wantPromo: ptr(int64(8)),
		},
		{
			name: "unknown promo",
			code: "NOPE",
			setupMocks: func(r *RepoMock) {
				r.On("GetProduct", mock.Anything, int64(1)).Return(product, nil).Once()
				r.On("ListApplicableDiscounts", mock.Anything, int64(1)).Return(nil, nil).Once()
				r.On("GetPromoCodeByCode", mock.Anything, "NOPE").Return(nil, apperr.ErrNotFound).Once()
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "exhausted promo",
			code: "ONCE",
			setupMocks: func(r *RepoMock) {
				r.On("GetProduct", mock.Anything, int64(1)).Return(product, nil).Once()
				r.On("ListApplicableDiscounts", mock.Anything, int64(1)).Return(nil, nil).Once()
				r.On("GetPromoCodeByCode", mock.Anything, "ONCE").Return(&models.PromoCode{
					ID: 9, Kind: models.ReductionFixed, Value: dec("1"), IsActive: true, MaxUses: &maxOne, UsedCount: 1,
				}, nil).Once()
			},
			wantErr: apperr.ErrAlreadyUsed,
		},
		{
			name: "promo for another product",
			code: "OTHER",
			setupMocks: func(r *RepoMock) {
				r.On("GetProduct", mock.Anything, int64(1)).Return(product, nil).Once()
				r.On("ListApplicableDiscounts", mock.Anything, int64(1)).Return(nil, nil).Once()
				r.On("GetPromoCodeByCode", mock.Anything, "OTHER").Return(&models.PromoCode{
					ID: 10, Kind: models.ReductionFixed, Value: dec("1"), IsActive: true, ProductID: &otherProduct,
				}, nil).Once()
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "inactive product",
			setupMocks: func(r *RepoMock) {
				r.On("GetProduct", mock.Anything, int64(1)).Return(&models.Product{ID: 1, Price: dec("1")}, nil).Once()
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "missing product",
			setupMocks: func(r *RepoMock) {
				r.On("GetProduct", mock.Anything, int64(1)).Return(nil, apperr.ErrNotFound).Once()
			},
			wantErr: apperr.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)
			svc := New(repo, newNoopLogger())
			svc.now = func() time.Time { return now }

			q, err := svc.Quote(context.Background(), 1, tt.code)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.True(t, q.FinalPrice.Equal(dec(tt.wantPrice)), "got %s", q.FinalPrice)
				assert.Equal(t, tt.wantDiscount, q.DiscountID)
				assert.Equal(t, tt.wantPromo, q.PromoCodeID)
				assert.Equal(t, "USD", q.Currency)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_Create(t *testing.T) {
	repo := new(RepoMock)
	repo.On("CreatePromoCode", mock.Anything, mock.MatchedBy(func(p models.PromoCode) bool {
		return p.Code == "WELCOME" && p.IsActive
	})).Return(&models.PromoCode{ID: 1, Code: "WELCOME"}, nil).Once()
	svc := New(repo, newNoopLogger())

	res, err := svc.Create(context.Background(), models.DummyPromoCode{Code: " welcome", Kind: models.ReductionPercent, Value: "20"})
	require.NoError(t, err)
	assert.Equal(t, "WELCOME", res.Code)

	_, err = svc.Create(context.Background(), models.DummyPromoCode{Code: "   ", Kind: models.ReductionPercent, Value: "20"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Create(context.Background(), models.DummyPromoCode{Code: "X", Kind: models.ReductionPercent, Value: "0"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	repo.AssertExpectations(t)
}

func TestService_ListUpdateDelete(t *testing.T) {
	repo := new(RepoMock)
	repo.On("ListPromoCodes", mock.Anything, mock.MatchedBy(func(f models.PromoCodeFilter) bool {
		return f.Search == "SPR" && f.Limit == models.DefaultLimit
	})).Return([]*models.PromoCode{{ID: 1}}, 1, nil).Once()
	repo.On("UpdatePromoCode", mock.Anything, mock.MatchedBy(func(p models.PromoCode) bool { return p.ID == 3 })).
		Return(&models.PromoCode{ID: 3}, nil).Once()
	repo.On("DeletePromoCode", mock.Anything, int64(3)).Return(nil).Once()
	svc := New(repo, newNoopLogger())

	page, err := svc.List(context.Background(), models.PromoCodeFilter{Search: "SPR"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	_, err = svc.Update(context.Background(), 3, models.DummyPromoCode{Code: "A", Kind: models.ReductionFixed, Value: "1"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), 3))
	repo.AssertExpectations(t)
}

func ptr[T any](v T) *T {
	return &v
}
