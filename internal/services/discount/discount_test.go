package discount

import (
	"context"
	"errors"
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

func (m *RepoMock) CreateDiscount(ctx context.Context, d models.Discount) (*models.Discount, error) {
	args := m.Called(ctx, d)
	res, _ := args.Get(0).(*models.Discount)
	return res, args.Error(1)
}

func (m *RepoMock) GetDiscount(ctx context.Context, id int64) (*models.Discount, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.Discount)
	return res, args.Error(1)
}

func (m *RepoMock) ListDiscounts(ctx context.Context, filter models.DiscountFilter) ([]*models.Discount, int, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).([]*models.Discount)
	return res, args.Int(1), args.Error(2)
}

func (m *RepoMock) UpdateDiscount(ctx context.Context, d models.Discount) (*models.Discount, error) {
	args := m.Called(ctx, d)
	res, _ := args.Get(0).(*models.Discount)
	return res, args.Error(1)
}

func (m *RepoMock) DeleteDiscount(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestService_Create(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	before := start.Add(-time.Hour)
	inactive := false

	tests := []struct {
		name       string
		req        models.DummyDiscount
		setupMocks func(r *RepoMock)
		wantErr    error
	}{
		{
			name: "percent discount",
			req:  models.DummyDiscount{Name: "Spring", Kind: models.ReductionPercent, Value: "15"},
			setupMocks: func(r *RepoMock) {
				r.On("CreateDiscount", mock.Anything, mock.MatchedBy(func(d models.Discount) bool {
					return d.Value.Equal(decimal.NewFromInt(15)) && d.IsActive
				})).Return(&models.Discount{ID: 1}, nil).Once()
			},
		},
		{
			name: "inactive flag respected",
			req:  models.DummyDiscount{Name: "Off", Kind: models.ReductionFixed, Value: "2.50", IsActive: &inactive},
			setupMocks: func(r *RepoMock) {
				r.On("CreateDiscount", mock.Anything, mock.MatchedBy(func(d models.Discount) bool {
					return !d.IsActive
				})).Return(&models.Discount{ID: 2}, nil).Once()
			},
		},
		{
			name:       "percent above hundred",
			req:        models.DummyDiscount{Name: "Bad", Kind: models.ReductionPercent, Value: "101"},
			setupMocks: func(_ *RepoMock) {},
			wantErr:    apperr.ErrValidation,
		},
		{
			name:       "fixed zero",
			req:        models.DummyDiscount{Name: "Bad", Kind: models.ReductionFixed, Value: "0"},
			setupMocks: func(_ *RepoMock) {},
			wantErr:    apperr.ErrValidation,
		},
		{
			name:       "not a number",
			req:        models.DummyDiscount{Name: "Bad", Kind: models.ReductionFixed, Value: "ten"},
			setupMocks: func(_ *RepoMock) {},
			wantErr:    apperr.ErrValidation,
		},
		{
			name: "ends before start",
			req: models.DummyDiscount{Name: "Bad", Kind: models.ReductionFixed, Value: "1",
				StartsAt: &start, EndsAt: &before},
			setupMocks: func(_ *RepoMock) {},
			wantErr:    apperr.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)
			svc := New(repo, newNoopLogger())

			res, err := svc.Create(context.Background(), tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				repo.AssertNotCalled(t, "CreateDiscount", mock.Anything, mock.Anything)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, res)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_List(t *testing.T) {
	repo := new(RepoMock)
	repo.On("ListDiscounts", mock.Anything, mock.MatchedBy(func(f models.DiscountFilter) bool {
		return f.Limit == models.MaxLimit && f.Offset == 0
	})).Return(nil, 0, nil).Once()

	page, err := New(repo, newNoopLogger()).List(context.Background(),
		models.DiscountFilter{Pagination: models.Pagination{Limit: 1000, Offset: -5}})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Equal(t, models.MaxLimit, page.Limit)
	repo.AssertExpectations(t)
}

func TestService_UpdateDelete(t *testing.T) {
	repo := new(RepoMock)
	repo.On("UpdateDiscount", mock.Anything, mock.MatchedBy(func(d models.Discount) bool { return d.ID == 9 })).
		Return(&models.Discount{ID: 9}, nil).Once()
	repo.On("DeleteDiscount", mock.Anything, int64(9)).Return(nil).Once()
	repo.On("DeleteDiscount", mock.Anything, int64(10)).Return(apperr.ErrNotFound).Once()
	repo.On("GetDiscount", mock.Anything, int64(11)).Return(nil, errors.New("db down")).Once()
	svc := New(repo, newNoopLogger())

	res, err := svc.Update(context.Background(), 9, models.DummyDiscount{Name: "x", Kind: models.ReductionFixed, Value: "1"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), res.ID)
	assert.NoError(t, svc.Delete(context.Background(), 9))
	assert.ErrorIs(t, svc.Delete(context.Background(), 10), apperr.ErrNotFound)
	_, err = svc.Get(context.Background(), 11)
	assert.Error(t, err)
	repo.AssertExpectations(t)
}
