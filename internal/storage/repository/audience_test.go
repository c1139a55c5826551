package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

func TestStorage_PreviewAudience(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	factory.CreateUserAt(t, 101, "Active", base)
	factory.CreateUserAt(t, 102, "Expired", base.Add(24*time.Hour))
	factory.CreateUserAt(t, 103, "Trial", base.Add(48*time.Hour))
	factory.CreateUserAt(t, 104, "Nobody", base.Add(72*time.Hour))
	factory.CreateChannel(t, -300, "Alpha")
	factory.CreateChannel(t, -301, "Beta")
	alpha := factory.CreateProduct(t, -300, "Alpha monthly", 30)
	beta := factory.CreateProduct(t, -301, "Beta monthly", 30)

	factory.CreateSubscription(t, 101, alpha, models.SubscriptionStatusActive, time.Now().Add(time.Hour))
	factory.CreateSubscription(t, 102, beta, models.SubscriptionStatusExpired, time.Now().Add(-time.Hour))
	_, err := storage.CreateDemoAccess(ctx, 103, beta, 3)
	require.NoError(t, err)

	from := base.Add(24 * time.Hour)

	tests := []struct {
		name       string
		criteria   models.AudienceCriteria
		wantIDs    []int64
		wantStatus map[int64]string
	}{
		{
			name:     "all users newest first",
			criteria: models.AudienceCriteria{TargetType: models.TargetAllUsers},
			wantIDs:  []int64{104, 103, 102, 101},
			wantStatus: map[int64]string{
				101: "active", 102: "expired", 103: "trial", 104: "none",
			},
		},
		{
			name:     "active subscriptions",
			criteria: models.AudienceCriteria{TargetType: models.TargetActiveSubscriptions},
			wantIDs:  []int64{101},
		},
		{
			name:     "expired subscriptions",
			criteria: models.AudienceCriteria{TargetType: models.TargetExpiredSubscriptions},
			wantIDs:  []int64{102},
		},
		{
			name:     "trial users",
			criteria: models.AudienceCriteria{TargetType: models.TargetTrialUsers},
			wantIDs:  []int64{103},
		},
		{
			name:     "channel specific",
			criteria: models.AudienceCriteria{TargetType: models.TargetChannelSpecific, ChannelID: -300},
			wantIDs:  []int64{101},
		},
		{
			name: "custom filter with registration date",
			criteria: models.AudienceCriteria{
				TargetType: models.TargetCustomFilter,
				Predicates: []models.AudiencePredicate{{Type: models.FilterRegistrationDate, From: &from}},
			},
			wantIDs: []int64{104, 103, 102},
		},
		{
			name: "custom filter with no subscription",
			criteria: models.AudienceCriteria{
				TargetType: models.TargetCustomFilter,
				Predicates: []models.AudiencePredicate{{Type: models.FilterSubscriptionStatus, Status: "none"}},
			},
			wantIDs: []int64{104},
		},
		{
			name: "exclusions applied",
			criteria: models.AudienceCriteria{
				TargetType:      models.TargetAllUsers,
				ExcludedUserIDs: []int64{104, 102},
			},
			wantIDs: []int64{103, 101},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members, total, err := storage.PreviewAudience(ctx, tt.criteria, models.DefaultPreviewLimit)
			require.NoError(t, err)
			assert.Equal(t, len(tt.wantIDs), total)

			got := make([]int64, 0, len(members))
			for _, m := range members {
				got = append(got, m.UserID)
				if want, ok := tt.wantStatus[m.UserID]; ok {
					assert.Equal(t, want, m.Status, "user %d", m.UserID)
				}
			}
			assert.Equal(t, tt.wantIDs, got)

			recipients, err := storage.AudienceRecipients(ctx, tt.criteria)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.wantIDs, recipients)
		})
	}

	t.Run("limit bounds preview but not total", func(t *testing.T) {
		members, total, err := storage.PreviewAudience(ctx, models.AudienceCriteria{TargetType: models.TargetAllUsers}, 2)
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Len(t, members, 2)
	})

	t.Run("unknown subscription status", func(t *testing.T) {
		_, _, err := storage.PreviewAudience(ctx, models.AudienceCriteria{
			TargetType: models.TargetCustomFilter,
			Predicates: []models.AudiencePredicate{{Type: models.FilterSubscriptionStatus, Status: "gold"}},
		}, 10)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}
