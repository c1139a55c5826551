package user

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/http/middlewarectx"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) List(ctx context.Context, filter models.UserFilter) (*models.Page[*models.User], error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).(*models.Page[*models.User])
	return res, args.Error(1)
}

func (m *ServiceMock) Details(ctx context.Context, userID int64) (*models.UserDetails, error) {
	args := m.Called(ctx, userID)
	res, _ := args.Get(0).(*models.UserDetails)
	return res, args.Error(1)
}

func (m *ServiceMock) Delete(ctx context.Context, actorID, userID int64) error {
	return m.Called(ctx, actorID, userID).Error(0)
}

func (m *ServiceMock) Admins(ctx context.Context) ([]*models.Admin, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]*models.Admin)
	return res, args.Error(1)
}

func (m *ServiceMock) GrantAdmin(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *ServiceMock) RevokeAdmin(ctx context.Context, actorID, userID int64) error {
	return m.Called(ctx, actorID, userID).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

const adminID int64 = 1

func TestHandler(t *testing.T) {
	details := &models.UserDetails{
		User:          models.User{ID: 9007199254740993, FirstName: "Ann"},
		Subscriptions: []*models.Subscription{},
		DemoAccesses:  []*models.DemoAccess{},
		PaymentsCount: 2,
	}

	tests := []struct {
		name       string
		method     string
		url        string
		body       string
		anonymous  bool
		setupMocks func(m *ServiceMock)
		wantStatus int
		wantBody   string
	}{
		{
			name:   "details keep large id exact",
			method: http.MethodGet,
			url:    "/admin/users/9007199254740993",
			setupMocks: func(m *ServiceMock) {
				m.On("Details", mock.Anything, int64(9007199254740993)).Return(details, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantBody:   `"id":"9007199254740993"`,
		},
		{
			name:   "search",
			method: http.MethodGet,
			url:    "/admin/users?search=ann&limit=500",
			setupMocks: func(m *ServiceMock) {
				m.On("List", mock.Anything, models.UserFilter{Search: "ann", Pagination: models.Pagination{Limit: models.MaxLimit}}).
					Return(&models.Page[*models.User]{Items: []*models.User{&details.User}, Total: 1}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "delete by admin",
			method: http.MethodDelete,
			url:    "/admin/users/9007199254740993",
			setupMocks: func(m *ServiceMock) {
				m.On("Delete", mock.Anything, adminID, int64(9007199254740993)).Return(nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "delete self refused",
			method: http.MethodDelete,
			url:    "/admin/users/1",
			setupMocks: func(m *ServiceMock) {
				m.On("Delete", mock.Anything, adminID, adminID).
					Return(fmt.Errorf("user.Delete: %w: cannot delete yourself", apperr.ErrValidation)).Once()
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "delete without identity",
			method:     http.MethodDelete,
			url:        "/admin/users/5",
			anonymous:  true,
			setupMocks: func(_ *ServiceMock) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "empty admin list",
			method: http.MethodGet,
			url:    "/admin/admins",
			setupMocks: func(m *ServiceMock) {
				m.On("Admins", mock.Anything).Return(nil, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantBody:   `"items":[]`,
		},
		{
			name:   "grant admin",
			method: http.MethodPost,
			url:    "/admin/admins",
			body:   `{"user_id":"42"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("GrantAdmin", mock.Anything, int64(42)).Return(nil).Once()
			},
			wantStatus: http.StatusCreated,
			wantBody:   `"user_id":"42"`,
		},
		{
			name:   "revoke admin",
			method: http.MethodDelete,
			url:    "/admin/admins/42",
			setupMocks: func(m *ServiceMock) {
				m.On("RevokeAdmin", mock.Anything, adminID, int64(42)).Return(nil).Once()
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(ServiceMock)
			tt.setupMocks(svc)
			h := New(newNoopLogger(), svc)

			r := chi.NewRouter()
			r.Get("/admin/users", h.List)
			r.Get("/admin/users/{id}", h.Get)
			r.Delete("/admin/users/{id}", h.Delete)
			r.Get("/admin/admins", h.Admins)
			r.Post("/admin/admins", h.GrantAdmin)
			r.Delete("/admin/admins/{id}", h.RevokeAdmin)

			req := httptest.NewRequest(tt.method, tt.url, strings.NewReader(tt.body))
			if !tt.anonymous {
				req = req.WithContext(middlewarectx.WithUser(req.Context(), &models.User{ID: adminID}))
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rr.Body.String(), tt.wantBody)
			}
			svc.AssertExpectations(t)
		})
	}
}
