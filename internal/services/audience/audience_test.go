package audience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) PreviewAudience(ctx context.Context, c models.AudienceCriteria, limit int) ([]models.AudienceMember, int, error) {
	args := m.Called(ctx, c, limit)
	members, _ := args.Get(0).([]models.AudienceMember)
	return members, args.Int(1), args.Error(2)
}

func (m *RepoMock) AudienceRecipients(ctx context.Context, c models.AudienceCriteria) ([]int64, error) {
	args := m.Called(ctx, c)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestResolver_Criteria(t *testing.T) {
	r := New(new(RepoMock), newNoopLogger())
	day := func(s string) *time.Time {
		t, _ := time.Parse(time.DateOnly, s)
		return &t
	}

	tests := []struct {
		name    string
		req     models.AudienceRequest
		check   func(t *testing.T, c models.AudienceCriteria)
		wantErr error
	}{
		{
			name: "all users without filters",
			req:  models.AudienceRequest{TargetType: models.TargetAllUsers},
			check: func(t *testing.T, c models.AudienceCriteria) {
				assert.Empty(t, c.Predicates)
			},
		},
		{
			name:    "unknown target",
			req:     models.AudienceRequest{TargetType: "EVERYONE"},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "product specific takes first product filter",
			req: models.AudienceRequest{
				TargetType: models.TargetProductSpecific,
				Filters: []models.BroadcastFilter{
					{Type: models.FilterProduct, Value: "7"},
					{Type: models.FilterProduct, Value: "8"},
				},
			},
			check: func(t *testing.T, c models.AudienceCriteria) {
				assert.Equal(t, int64(7), c.ProductID)
				assert.Len(t, c.Predicates, 2)
			},
		},
		{
			name:    "product specific without product filter",
			req:     models.AudienceRequest{TargetType: models.TargetProductSpecific},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "channel specific with big id",
			req: models.AudienceRequest{
				TargetType: models.TargetChannelSpecific,
				Filters:    []models.BroadcastFilter{{Type: models.FilterChannel, Value: "-1001234567890"}},
			},
			check: func(t *testing.T, c models.AudienceCriteria) {
				assert.Equal(t, int64(-1001234567890), c.ChannelID)
			},
		},
		{
			name:    "channel specific without channel filter",
			req:     models.AudienceRequest{TargetType: models.TargetChannelSpecific},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "unknown filter type ignored",
			req: models.AudienceRequest{
				TargetType: models.TargetCustomFilter,
				Filters:    []models.BroadcastFilter{{Type: "LANGUAGE", Value: "ru"}},
			},
			check: func(t *testing.T, c models.AudienceCriteria) {
				assert.Empty(t, c.Predicates)
			},
		},
		{
			name: "registration date range with inclusive end day",
			req: models.AudienceRequest{
				TargetType: models.TargetCustomFilter,
				Filters:    []models.BroadcastFilter{{Type: models.FilterRegistrationDate, Value: "2024-01-01..2024-01-31"}},
			},
			check: func(t *testing.T, c models.AudienceCriteria) {
				require.Len(t, c.Predicates, 1)
				assert.Equal(t, day("2024-01-01"), c.Predicates[0].From)
				assert.Equal(t, day("2024-02-01"), c.Predicates[0].To)
			},
		},
		{
			name: "registration date open start",
			req: models.AudienceRequest{
				TargetType: models.TargetCustomFilter,
				Filters:    []models.BroadcastFilter{{Type: models.FilterRegistrationDate, Value: "..2024-03-01T00:00:00Z"}},
			},
			check: func(t *testing.T, c models.AudienceCriteria) {
				require.Len(t, c.Predicates, 1)
				assert.Nil(t, c.Predicates[0].From)
				require.NotNil(t, c.Predicates[0].To)
			},
		},
		{
			name: "registration date without separator",
			req: models.AudienceRequest{
				TargetType: models.TargetCustomFilter,
				Filters:    []models.BroadcastFilter{{Type: models.FilterRegistrationDate, Value: "2024-01-01"}},
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "subscription status normalized",
			req: models.AudienceRequest{
				TargetType: models.TargetCustomFilter,
				Filters:    []models.BroadcastFilter{{Type: models.FilterSubscriptionStatus, Value: "Trial"}},
			},
			check: func(t *testing.T, c models.AudienceCriteria) {
				require.Len(t, c.Predicates, 1)
				assert.Equal(t, "trial", c.Predicates[0].Status)
			},
		},
		{
			name: "unknown subscription status",
			req: models.AudienceRequest{
				TargetType: models.TargetCustomFilter,
				Filters:    []models.BroadcastFilter{{Type: models.FilterSubscriptionStatus, Value: "paused"}},
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "exclusions copied",
			req: models.AudienceRequest{
				TargetType:      models.TargetAllUsers,
				ExcludedUserIDs: models.IDList{1, 2},
			},
			check: func(t *testing.T, c models.AudienceCriteria) {
				assert.Equal(t, []int64{1, 2}, c.ExcludedUserIDs)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := r.Criteria(tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestResolver_Preview(t *testing.T) {
	members := []models.AudienceMember{{UserID: 1}, {UserID: 2}}

	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{name: "default limit", limit: 0, wantLimit: models.DefaultPreviewLimit},
		{name: "custom limit", limit: 10, wantLimit: 10},
		{name: "capped limit", limit: 10000, wantLimit: models.MaxPreviewLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			repo.On("PreviewAudience", mock.Anything, mock.Anything, tt.wantLimit).Return(members, 120, nil).Once()
			r := New(repo, newNoopLogger())

			p, err := r.Preview(context.Background(), models.AudienceRequest{TargetType: models.TargetAllUsers, Limit: tt.limit})
			require.NoError(t, err)
			assert.Equal(t, 120, p.Total)
			assert.Len(t, p.Recipients, 2)
			repo.AssertExpectations(t)
		})
	}

	t.Run("empty audience renders empty list", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("PreviewAudience", mock.Anything, mock.Anything, mock.Anything).Return(nil, 0, nil).Once()
		p, err := New(repo, newNoopLogger()).Preview(context.Background(), models.AudienceRequest{TargetType: models.TargetTrialUsers})
		require.NoError(t, err)
		assert.NotNil(t, p.Recipients)
		assert.Zero(t, p.Total)
	})

	t.Run("validation error skips repository", func(t *testing.T) {
		repo := new(RepoMock)
		_, err := New(repo, newNoopLogger()).Preview(context.Background(), models.AudienceRequest{TargetType: "BAD"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
		repo.AssertNotCalled(t, "PreviewAudience", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestResolver_Recipients(t *testing.T) {
	repo := new(RepoMock)
	repo.On("AudienceRecipients", mock.Anything, mock.MatchedBy(func(c models.AudienceCriteria) bool {
		return c.TargetType == models.TargetActiveSubscriptions
	})).Return([]int64{3, 2, 1}, nil).Once()
	repo.On("AudienceRecipients", mock.Anything, mock.MatchedBy(func(c models.AudienceCriteria) bool {
		return c.TargetType == models.TargetTrialUsers
	})).Return(nil, errors.New("db down")).Once()
	r := New(repo, newNoopLogger())

	ids, err := r.Recipients(context.Background(), models.AudienceRequest{TargetType: models.TargetActiveSubscriptions})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, ids)

	_, err = r.Recipients(context.Background(), models.AudienceRequest{TargetType: models.TargetTrialUsers})
	assert.Error(t, err)
	repo.AssertExpectations(t)
}
