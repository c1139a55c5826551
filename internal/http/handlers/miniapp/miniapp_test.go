package miniapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/http/middlewarectx"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

type AuthorityMock struct {
	mock.Mock
}

func (m *AuthorityMock) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type SubscriptionMock struct {
	mock.Mock
}

func (m *SubscriptionMock) ForUser(ctx context.Context, userID int64) ([]*models.Subscription, error) {
	args := m.Called(ctx, userID)
	res, _ := args.Get(0).([]*models.Subscription)
	return res, args.Error(1)
}

type DemoMock struct {
	mock.Mock
}

func (m *DemoMock) Request(ctx context.Context, userID int64, req models.DummyDemoRequest) (*models.AccessChange[*models.DemoAccess], error) {
	args := m.Called(ctx, userID, req)
	res, _ := args.Get(0).(*models.AccessChange[*models.DemoAccess])
	return res, args.Error(1)
}

type PaymentMock struct {
	mock.Mock
}

func (m *PaymentMock) Create(ctx context.Context, userID int64, req models.DummyPurchase) (*models.Payment, error) {
	args := m.Called(ctx, userID, req)
	res, _ := args.Get(0).(*models.Payment)
	return res, args.Error(1)
}

func (m *PaymentMock) GetForUser(ctx context.Context, userID int64, id string) (*models.Payment, error) {
	args := m.Called(ctx, userID, id)
	res, _ := args.Get(0).(*models.Payment)
	return res, args.Error(1)
}

type mocks struct {
	authority *AuthorityMock
	subs      *SubscriptionMock
	demos     *DemoMock
	payments  *PaymentMock
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

const (
	userID    int64 = 9007199254740993
	paymentID       = "0b6f1a52-3c1e-4a7c-9d43-1f0b7f3c2a10"
)

func TestHandler(t *testing.T) {
	payment := &models.Payment{ID: paymentID, UserID: userID, Amount: decimal.RequireFromString("9.99"), Currency: "usd", Status: models.PaymentStatusPending}

	tests := []struct {
		name       string
		method     string
		url        string
		body       string
		anonymous  bool
		setupMocks func(m mocks)
		wantStatus int
		wantBody   string
	}{
		{
			name:   "me as admin",
			method: http.MethodGet,
			url:    "/app/me",
			setupMocks: func(m mocks) {
				m.authority.On("IsAdmin", mock.Anything, userID).Return(true, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantBody:   `"is_admin":true`,
		},
		{
			name:       "me anonymous",
			method:     http.MethodGet,
			url:        "/app/me",
			anonymous:  true,
			setupMocks: func(_ mocks) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "no subscriptions",
			method: http.MethodGet,
			url:    "/app/subscriptions",
			setupMocks: func(m mocks) {
				m.subs.On("ForUser", mock.Anything, userID).Return(nil, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantBody:   `"items":[]`,
		},
		{
			name:   "demo granted",
			method: http.MethodPost,
			url:    "/app/demo",
			body:   `{"product_id":"2"}`,
			setupMocks: func(m mocks) {
				m.demos.On("Request", mock.Anything, userID, models.DummyDemoRequest{ProductID: 2}).
					Return(&models.AccessChange[*models.DemoAccess]{
						Item: &models.DemoAccess{ID: 1, UserID: userID, ProductID: 2, IsActive: true},
						Sync: &models.SyncResult{Success: true, Action: models.ActionInviteSent},
					}, nil).Once()
			},
			wantStatus: http.StatusCreated,
			wantBody:   `"action":"invite_sent"`,
		},
		{
			name:   "demo already used",
			method: http.MethodPost,
			url:    "/app/demo",
			body:   `{"product_id":"2"}`,
			setupMocks: func(m mocks) {
				m.demos.On("Request", mock.Anything, userID, mock.Anything).
					Return(nil, fmt.Errorf("demo.Grant: %w: demo for product 2 was already granted", apperr.ErrAlreadyUsed)).Once()
			},
			wantStatus: http.StatusConflict,
			wantBody:   "already granted",
		},
		{
			name:   "purchase",
			method: http.MethodPost,
			url:    "/app/payments",
			body:   `{"product_id":"2","pay_currency":"usdttrc20","promo_code":"SPRING"}`,
			setupMocks: func(m mocks) {
				m.payments.On("Create", mock.Anything, userID, models.DummyPurchase{ProductID: 2, PayCurrency: "usdttrc20", PromoCode: "SPRING"}).
					Return(payment, nil).Once()
			},
			wantStatus: http.StatusCreated,
			wantBody:   `"amount":"9.99"`,
		},
		{
			name:       "purchase without currency",
			method:     http.MethodPost,
			url:        "/app/payments",
			body:       `{"product_id":"2"}`,
			setupMocks: func(_ mocks) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "purchase vendor down",
			method: http.MethodPost,
			url:    "/app/payments",
			body:   `{"product_id":"2","pay_currency":"btc"}`,
			setupMocks: func(m mocks) {
				m.payments.On("Create", mock.Anything, userID, mock.Anything).
					Return(nil, fmt.Errorf("payment.Create: %w", apperr.ErrVendorUnavailable)).Once()
			},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:   "own payment",
			method: http.MethodGet,
			url:    "/app/payments/" + paymentID,
			setupMocks: func(m mocks) {
				m.payments.On("GetForUser", mock.Anything, userID, paymentID).Return(payment, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantBody:   `"user_id":"9007199254740993"`,
		},
		{
			name:   "foreign payment",
			method: http.MethodGet,
			url:    "/app/payments/" + paymentID,
			setupMocks: func(m mocks) {
				m.payments.On("GetForUser", mock.Anything, userID, paymentID).
					Return(nil, fmt.Errorf("payment.GetForUser: %w", apperr.ErrNotFound)).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "malformed payment id",
			method:     http.MethodGet,
			url:        "/app/payments/42",
			setupMocks: func(_ mocks) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "admin check failure",
			method: http.MethodGet,
			url:    "/app/me",
			setupMocks: func(m mocks) {
				m.authority.On("IsAdmin", mock.Anything, userID).Return(false, errors.New("db down")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mocks{new(AuthorityMock), new(SubscriptionMock), new(DemoMock), new(PaymentMock)}
			tt.setupMocks(m)
			h := New(newNoopLogger(), m.authority, m.subs, m.demos, m.payments)

			r := chi.NewRouter()
			r.Get("/app/me", h.Me)
			r.Get("/app/subscriptions", h.Subscriptions)
			r.Post("/app/demo", h.RequestDemo)
			r.Post("/app/payments", h.Purchase)
			r.Get("/app/payments/{id}", h.Payment)

			req := httptest.NewRequest(tt.method, tt.url, strings.NewReader(tt.body))
			if !tt.anonymous {
				req = req.WithContext(middlewarectx.WithUser(req.Context(), &models.User{ID: userID, FirstName: "Ann"}))
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rr.Body.String(), tt.wantBody)
			}
			m.authority.AssertExpectations(t)
			m.subs.AssertExpectations(t)
			m.demos.AssertExpectations(t)
			m.payments.AssertExpectations(t)
		})
	}
}
