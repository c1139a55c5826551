package middlewarectx_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/http/middlewarectx"
	"github.com/magabrotheeeer/channel-panel/internal/lib/jwt"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

type IdentityMock struct {
	mock.Mock
}

func (m *IdentityMock) Authenticate(ctx context.Context, raw string) (*models.User, error) {
	args := m.Called(ctx, raw)
	res, _ := args.Get(0).(*models.User)
	return res, args.Error(1)
}

func (m *IdentityMock) Lookup(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	res, _ := args.Get(0).(*models.User)
	return res, args.Error(1)
}

type AuthorityMock struct {
	mock.Mock
}

func (m *AuthorityMock) Require(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

const bigID int64 = 9007199254740993

func TestAuth(t *testing.T) {
	maker := jwt.NewMaker("secret", time.Hour)
	user := &models.User{ID: bigID, FirstName: "Ann"}

	validToken, err := jwt.NewMaker("secret", time.Hour).GenerateToken(bigID, false)
	assert.NoError(t, err)

	tests := []struct {
		name       string
		headers    map[string]string
		setupMocks func(m *IdentityMock)
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "missing credentials",
			setupMocks: func(_ *IdentityMock) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:    "tma init data",
			headers: map[string]string{"Authorization": "tma query_id=1&hash=abc"},
			setupMocks: func(m *IdentityMock) {
				m.On("Authenticate", mock.Anything, "query_id=1&hash=abc").Return(user, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:    "init data header",
			headers: map[string]string{middlewarectx.InitDataHeader: "dev"},
			setupMocks: func(m *IdentityMock) {
				m.On("Authenticate", mock.Anything, "dev").Return(user, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:    "bad init data",
			headers: map[string]string{"Authorization": "tma forged"},
			setupMocks: func(m *IdentityMock) {
				m.On("Authenticate", mock.Anything, "forged").
					Return(nil, fmt.Errorf("identity.Authenticate: %w", apperr.ErrUnauthenticated)).Once()
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:    "bearer token",
			headers: map[string]string{"Authorization": "Bearer " + validToken},
			setupMocks: func(m *IdentityMock) {
				m.On("Lookup", mock.Anything, bigID).Return(user, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "expired or foreign token",
			headers:    map[string]string{"Authorization": "Bearer not-a-jwt"},
			setupMocks: func(_ *IdentityMock) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:    "token for deleted user",
			headers: map[string]string{"Authorization": "Bearer " + validToken},
			setupMocks: func(m *IdentityMock) {
				m.On("Lookup", mock.Anything, bigID).Return(nil, errors.New("not found")).Once()
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := new(IdentityMock)
			tt.setupMocks(identity)

			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				got, ok := middlewarectx.UserFrom(r.Context())
				assert.True(t, ok)
				assert.Equal(t, bigID, got.ID)
				w.WriteHeader(http.StatusOK)
			})
			h := middlewarectx.Auth(identity, maker, newNoopLogger())(next)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/app/me", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantCalled, called)
			identity.AssertExpectations(t)
		})
	}
}

func TestAdminOnly(t *testing.T) {
	tests := []struct {
		name       string
		user       *models.User
		setupMocks func(m *AuthorityMock)
		wantStatus int
	}{
		{
			name: "admin passes",
			user: &models.User{ID: 1},
			setupMocks: func(m *AuthorityMock) {
				m.On("Require", mock.Anything, int64(1)).Return(nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "non admin forbidden",
			user: &models.User{ID: 2},
			setupMocks: func(m *AuthorityMock) {
				m.On("Require", mock.Anything, int64(2)).Return(fmt.Errorf("identity.Require: %w", apperr.ErrForbidden)).Once()
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name: "lookup failure",
			user: &models.User{ID: 3},
			setupMocks: func(m *AuthorityMock) {
				m.On("Require", mock.Anything, int64(3)).Return(errors.New("db down")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "no user in context",
			setupMocks: func(_ *AuthorityMock) {},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authority := new(AuthorityMock)
			tt.setupMocks(authority)
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			h := middlewarectx.AdminOnly(authority, newNoopLogger())(next)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/products", nil)
			if tt.user != nil {
				req = req.WithContext(middlewarectx.WithUser(req.Context(), tt.user))
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			authority.AssertExpectations(t)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := middlewarectx.NewRateLimiter(1, 2)
	h := middlewarectx.RateLimitMiddleware(limiter, newNoopLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/ipn", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1002"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000"), "other address has its own bucket")
}
