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

func newDraft(title string) models.Broadcast {
	return models.Broadcast{
		Title:           title,
		Body:            "<b>hello</b>",
		TargetType:      models.TargetCustomFilter,
		Status:          models.BroadcastStatusDraft,
		CreatedBy:       1,
		Filters:         []models.BroadcastFilter{{Type: models.FilterSubscriptionStatus, Value: "active"}},
		ExcludedUserIDs: models.IDList{9007199254740993},
	}
}

func TestStorage_BroadcastLifecycle(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()

	b, err := storage.CreateBroadcast(ctx, newDraft("News"))
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastStatusDraft, b.Status)
	require.Len(t, b.Filters, 1)
	assert.Equal(t, models.IDList{9007199254740993}, b.ExcludedUserIDs)

	b.Title = "News v2"
	b.Filters = nil
	b.ExcludedUserIDs = nil
	b, err = storage.UpdateBroadcast(ctx, *b)
	require.NoError(t, err)
	assert.Equal(t, "News v2", b.Title)
	assert.Empty(t, b.Filters)
	assert.Empty(t, b.ExcludedUserIDs)

	b, err = storage.ScheduleBroadcast(ctx, b.ID, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastStatusScheduled, b.Status)

	due, err := storage.DueBroadcasts(ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, b.ID, due[0].ID)

	messages, err := storage.StartBroadcast(ctx, b.ID, []int64{11, 12, 13})
	require.NoError(t, err)
	require.Len(t, messages, 3)

	_, err = storage.StartBroadcast(ctx, b.ID, []int64{11})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	b.Title = "late edit"
	_, err = storage.UpdateBroadcast(ctx, *b)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	recorded, err := storage.RecordDelivery(ctx, messages[0].ID, true, "")
	require.NoError(t, err)
	assert.True(t, recorded)

	recorded, err = storage.RecordDelivery(ctx, messages[0].ID, false, "again")
	require.NoError(t, err)
	assert.False(t, recorded)

	_, err = storage.RecordDelivery(ctx, messages[1].ID, false, "Forbidden: bot was blocked by the user")
	require.NoError(t, err)

	stats, err := storage.BroadcastStats(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastStats{
		BroadcastID: b.ID, Status: models.BroadcastStatusSending, Total: 3, Sent: 1, Failed: 1, Pending: 1,
	}, *stats)

	_, err = storage.RecordDelivery(ctx, messages[2].ID, true, "")
	require.NoError(t, err)

	stats, err = storage.BroadcastStats(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastStatusCompleted, stats.Status)
	assert.Equal(t, 0, stats.Pending)

	msg, err := storage.GetBroadcastMessage(ctx, messages[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusFailed, msg.Status)
	require.NotNil(t, msg.Error)
}

func TestStorage_StartBroadcast_EmptyAudience(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	b, err := storage.CreateBroadcast(ctx, newDraft("Empty"))
	require.NoError(t, err)

	messages, err := storage.StartBroadcast(ctx, b.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, messages)

	got, err := storage.GetBroadcast(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastStatusCompleted, got.Status)
	assert.NotNil(t, got.FinishedAt)
}

func TestStorage_CancelBroadcast(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	b, err := storage.CreateBroadcast(ctx, newDraft("Cancel me"))
	require.NoError(t, err)
	messages, err := storage.StartBroadcast(ctx, b.ID, []int64{1, 2})
	require.NoError(t, err)

	cancellable := []string{models.BroadcastStatusDraft, models.BroadcastStatusScheduled, models.BroadcastStatusSending}
	cancelled, err := storage.TransitionBroadcast(ctx, b.ID, cancellable, models.BroadcastStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastStatusCancelled, cancelled.Status)

	_, err = storage.RecordDelivery(ctx, messages[0].ID, true, "")
	require.NoError(t, err)
	_, err = storage.RecordDelivery(ctx, messages[1].ID, false, "broadcast cancelled")
	require.NoError(t, err)

	got, err := storage.GetBroadcast(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastStatusCancelled, got.Status)

	_, err = storage.TransitionBroadcast(ctx, b.ID, cancellable, models.BroadcastStatusCancelled)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	assert.ErrorIs(t, storage.DeleteBroadcast(ctx, 424242), apperr.ErrNotFound)
	require.NoError(t, storage.DeleteBroadcast(ctx, b.ID))
}
