package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

func TestStorage_DeleteProduct(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	verification := NewTestVerification(storage)

	factory.CreateUser(t, 1, "Alice")
	factory.CreateUser(t, 2, "Bob")
	factory.CreateChannel(t, -10, "Main")

	t.Run("active subscription blocks deletion", func(t *testing.T) {
		productID := factory.CreateProduct(t, -10, "Blocked", 30)
		factory.CreateSubscription(t, 1, productID, models.SubscriptionStatusActive, time.Now().Add(24*time.Hour))

		err := storage.DeleteProduct(ctx, productID)
		assert.ErrorIs(t, err, apperr.ErrHasActiveDependents)
		assert.Equal(t, 1, verification.CountRows(t, "products", "id = $1", productID))
	})

	t.Run("dependents removed and payments kept", func(t *testing.T) {
		productID := factory.CreateProduct(t, -10, "Removable", 30)
		factory.CreateSubscription(t, 2, productID, models.SubscriptionStatusExpired, time.Now().Add(-time.Hour))
		_, err := storage.CreateDemoAccess(ctx, 2, productID, 3)
		require.NoError(t, err)
		_, err = storage.CreateDiscount(ctx, models.Discount{
			Name: "Spring", Kind: models.ReductionPercent, Value: decimal.NewFromInt(10),
			ProductID: &productID, IsActive: true,
		})
		require.NoError(t, err)
		_, err = storage.CreatePromoCode(ctx, models.PromoCode{
			Code: "spring", Kind: models.ReductionFixed, Value: decimal.NewFromInt(2),
			ProductID: &productID, IsActive: true,
		})
		require.NoError(t, err)
		paymentID := factory.CreatePendingPayment(t, 2, &productID)

		require.NoError(t, storage.DeleteProduct(ctx, productID))

		assert.Equal(t, 0, verification.CountRows(t, "products", "id = $1", productID))
		assert.Equal(t, 0, verification.CountRows(t, "subscriptions", "product_id = $1", productID))
		assert.Equal(t, 0, verification.CountRows(t, "demo_accesses", "product_id = $1", productID))
		assert.Equal(t, 0, verification.CountRows(t, "discounts", "product_id = $1", productID))
		assert.Equal(t, 0, verification.CountRows(t, "promo_codes", "product_id = $1", productID))
		assert.Equal(t, 1, verification.CountRows(t, "payments", "id = $1 AND product_id IS NULL", paymentID))
	})

	t.Run("unknown product", func(t *testing.T) {
		assert.ErrorIs(t, storage.DeleteProduct(ctx, 987654), apperr.ErrNotFound)
	})
}

func TestStorage_ProductCRUD(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateChannel(t, -20, "Premium")

	discounted := decimal.RequireFromString("7.50")
	created, err := storage.CreateProduct(ctx, models.Product{
		Name: "Quarter", Price: decimal.RequireFromString("20.00"), DiscountedPrice: &discounted,
		Currency: "USD", PeriodDays: 90, IsActive: true, ChannelID: -20,
	})
	require.NoError(t, err)
	assert.Equal(t, "Premium", created.ChannelName)
	assert.True(t, created.BasePrice().Equal(discounted))

	_, err = storage.CreateProduct(ctx, models.Product{
		Name: "Orphan", Price: decimal.NewFromInt(1), Currency: "USD", PeriodDays: 1, ChannelID: -999,
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	created.IsActive = false
	created.Name = "Quarter v2"
	updated, err := storage.UpdateProduct(ctx, *created)
	require.NoError(t, err)
	assert.Equal(t, "Quarter v2", updated.Name)
	assert.False(t, updated.IsActive)

	active := true
	items, total, err := storage.ListProducts(ctx, models.ProductFilter{IsActive: &active, Pagination: models.Pagination{Limit: 10}})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)

	err = storage.DeleteChannel(ctx, -20)
	assert.ErrorIs(t, err, apperr.ErrHasActiveDependents)
}

func TestStorage_DemoAccess(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, 5, "Demo")
	factory.CreateChannel(t, -50, "Demo channel")
	productID := factory.CreateProduct(t, -50, "Demo product", 30)

	demo, err := storage.CreateDemoAccess(ctx, 5, productID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(-50), demo.ChannelID)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 3), demo.ExpiresAt, time.Minute)

	_, err = storage.CreateDemoAccess(ctx, 5, productID, 3)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	hasActive, err := storage.HasActiveDemo(ctx, 5)
	require.NoError(t, err)
	assert.True(t, hasActive)

	revoked, err := storage.RevokeDemoAccess(ctx, demo.ID)
	require.NoError(t, err)
	assert.False(t, revoked.IsActive)

	hasActive, err = storage.HasActiveDemo(ctx, 5)
	require.NoError(t, err)
	assert.False(t, hasActive)

	used, err := storage.HasDemoAccess(ctx, 5, productID)
	require.NoError(t, err)
	assert.True(t, used)
}

func TestStorage_ExpireDueSubscriptions(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, 8, "Due")
	factory.CreateChannel(t, -80, "Due channel")
	productID := factory.CreateProduct(t, -80, "Due product", 30)

	overdue := factory.CreateSubscription(t, 8, productID, models.SubscriptionStatusActive, time.Now().Add(-time.Minute))
	factory.CreateSubscription(t, 8, productID, models.SubscriptionStatusActive, time.Now().Add(time.Hour))

	expired, err := storage.ExpireDueSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, overdue, expired[0].ID)
	assert.Equal(t, int64(-80), expired[0].ChannelID)

	expired, err = storage.ExpireDueSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)

	extended, err := storage.ExtendSubscription(ctx, overdue, 10)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, extended.Status)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 10), extended.ExpiresAt, time.Minute)
}

func TestStorage_HasChannelAccess(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, 9, "Renewer")
	factory.CreateUser(t, 10, "Trial")
	factory.CreateChannel(t, -90, "Shared channel")
	factory.CreateChannel(t, -91, "Other channel")
	monthly := factory.CreateProduct(t, -90, "Monthly", 30)
	yearly := factory.CreateProduct(t, -90, "Yearly", 365)
	other := factory.CreateProduct(t, -91, "Other", 30)

	// Продление до истечения: старая подписка истекает, новая ещё действует.
	old := factory.CreateSubscription(t, 9, monthly, models.SubscriptionStatusActive, time.Now().Add(-time.Minute))
	factory.CreateSubscription(t, 9, yearly, models.SubscriptionStatusActive, time.Now().AddDate(0, 0, 30))

	expired, err := storage.ExpireDueSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old, expired[0].ID)

	ok, err := storage.HasChannelAccess(ctx, 9, -90)
	require.NoError(t, err)
	assert.True(t, ok, "renewed subscription keeps access")

	ok, err = storage.HasChannelAccess(ctx, 9, -91)
	require.NoError(t, err)
	assert.False(t, ok)

	// Подписка на другой канал не даёт доступа к этому.
	factory.CreateSubscription(t, 10, other, models.SubscriptionStatusActive, time.Now().Add(time.Hour))
	ok, err = storage.HasChannelAccess(ctx, 10, -90)
	require.NoError(t, err)
	assert.False(t, ok)

	demo, err := storage.CreateDemoAccess(ctx, 10, monthly, 3)
	require.NoError(t, err)
	ok, err = storage.HasChannelAccess(ctx, 10, -90)
	require.NoError(t, err)
	assert.True(t, ok, "active demo keeps access")

	_, err = storage.RevokeDemoAccess(ctx, demo.ID)
	require.NoError(t, err)
	ok, err = storage.HasChannelAccess(ctx, 10, -90)
	require.NoError(t, err)
	assert.False(t, ok)

	// Отменённая подписка доступа не даёт.
	factory.CreateSubscription(t, 10, yearly, models.SubscriptionStatusCancelled, time.Now().Add(time.Hour))
	ok, err = storage.HasChannelAccess(ctx, 10, -90)
	require.NoError(t, err)
	assert.False(t, ok)
}
