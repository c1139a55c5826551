package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/migrations"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateUser создает тестового пользователя
func (f *TestDataFactory) CreateUser(t *testing.T, id int64, firstName string) {
	t.Helper()
	_, err := f.storage.DB.Exec(`INSERT INTO users (id, first_name) VALUES ($1, $2)`, id, firstName)
	require.NoError(t, err)
}

// CreateUserAt создает пользователя с заданной датой регистрации
func (f *TestDataFactory) CreateUserAt(t *testing.T, id int64, firstName string, createdAt time.Time) {
	t.Helper()
	_, err := f.storage.DB.Exec(`INSERT INTO users (id, first_name, created_at) VALUES ($1, $2, $3)`,
		id, firstName, createdAt)
	require.NoError(t, err)
}

// CreateChannel создает тестовый канал
func (f *TestDataFactory) CreateChannel(t *testing.T, id int64, title string) {
	t.Helper()
	_, err := f.storage.DB.Exec(`INSERT INTO channels (id, title) VALUES ($1, $2)`, id, title)
	require.NoError(t, err)
}

// CreateProduct создает активный продукт с пробным доступом
func (f *TestDataFactory) CreateProduct(t *testing.T, channelID int64, name string, periodDays int) int64 {
	t.Helper()
	var id int64
	err := f.storage.DB.QueryRow(`INSERT INTO products
		(name, description, price, currency, period_days, is_active, allow_demo, demo_days, channel_id)
		VALUES ($1, '', 10.00, 'USD', $2, true, true, 3, $3) RETURNING id`,
		name, periodDays, channelID).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreatePendingPayment создает платеж в статусе pending
func (f *TestDataFactory) CreatePendingPayment(t *testing.T, userID int64, productID *int64) string {
	t.Helper()
	p, err := f.storage.CreatePayment(context.Background(), models.Payment{
		ID:        uuid.New().String(),
		UserID:    userID,
		ProductID: productID,
		Amount:    decimal.RequireFromString("10.00"),
		Currency:  "USD",
		Status:    models.PaymentStatusPending,
	})
	require.NoError(t, err)
	return p.ID
}

// CreateSubscription создает подписку с заданным статусом
func (f *TestDataFactory) CreateSubscription(t *testing.T, userID, productID int64, status string, expiresAt time.Time) int64 {
	t.Helper()
	var id int64
	err := f.storage.DB.QueryRow(`INSERT INTO subscriptions
		(user_id, product_id, channel_id, status, started_at, expires_at)
		SELECT $1, id, channel_id, $3, NOW() - INTERVAL '1 day', $4 FROM products WHERE id = $2
		RETURNING id`, userID, productID, status, expiresAt).Scan(&id)
	require.NoError(t, err)
	return id
}

func mustDecimal(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// TestVerification содержит общие функции для проверки результатов тестов
type TestVerification struct {
	storage *Storage
}

// NewTestVerification создает новый объект для проверки результатов
func NewTestVerification(storage *Storage) *TestVerification {
	return &TestVerification{storage: storage}
}

// CountRows возвращает число строк таблицы, удовлетворяющих условию
func (v *TestVerification) CountRows(t *testing.T, table, where string, args ...any) int {
	t.Helper()
	var count int
	err := v.storage.DB.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE "+where, args...).Scan(&count)
	require.NoError(t, err)
	return count
}

// VerifyPaymentStatus проверяет статус платежа
func (v *TestVerification) VerifyPaymentStatus(t *testing.T, paymentID, expected string) {
	t.Helper()
	var status string
	err := v.storage.DB.QueryRow("SELECT status FROM payments WHERE id = $1", paymentID).Scan(&status)
	require.NoError(t, err)
	require.Equal(t, expected, status)
}

// setupTestDatabase создает тестовую БД с контейнером PostgreSQL и применяет миграции
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgPort := nat.Port("5432/tcp")
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{string(pgPort)},
		Env: map[string]string{
			"POSTGRES_DB":       "testdb",
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(pgPort),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(3 * time.Minute),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start container")

	host, err := postgresContainer.Host(ctx)
	require.NoError(t, err)
	port, err := postgresContainer.MappedPort(ctx, pgPort)
	require.NoError(t, err, "Failed to get port")

	connStr := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	// Пробуем подключиться несколько раз с ретраями
	var storage *Storage
	for range 10 {
		storage, err = New(connStr)
		if err == nil {
			break
		}
		time.Sleep(1 * time.Second)
	}
	require.NoError(t, err, "Failed to create storage after retries")

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath, sl.Discard()))

	cleanup := func() {
		_ = storage.DB.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return storage, cleanup
}
