package broadcast

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
	"github.com/magabrotheeeer/channel-panel/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreateBroadcast(ctx context.Context, b models.Broadcast) (*models.Broadcast, error) {
	args := m.Called(ctx, b)
	res, _ := args.Get(0).(*models.Broadcast)
	return res, args.Error(1)
}

func (m *RepoMock) GetBroadcast(ctx context.Context, id int64) (*models.Broadcast, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.Broadcast)
	return res, args.Error(1)
}

func (m *RepoMock) ListBroadcasts(ctx context.Context, filter models.BroadcastFilterParams) ([]*models.Broadcast, int, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).([]*models.Broadcast)
	return res, args.Int(1), args.Error(2)
}

func (m *RepoMock) UpdateBroadcast(ctx context.Context, b models.Broadcast) (*models.Broadcast, error) {
	args := m.Called(ctx, b)
	res, _ := args.Get(0).(*models.Broadcast)
	return res, args.Error(1)
}

func (m *RepoMock) DeleteBroadcast(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *RepoMock) TransitionBroadcast(ctx context.Context, id int64, from []string, to string) (*models.Broadcast, error) {
	args := m.Called(ctx, id, from, to)
	res, _ := args.Get(0).(*models.Broadcast)
	return res, args.Error(1)
}

func (m *RepoMock) ScheduleBroadcast(ctx context.Context, id int64, at time.Time) (*models.Broadcast, error) {
	args := m.Called(ctx, id, at)
	res, _ := args.Get(0).(*models.Broadcast)
	return res, args.Error(1)
}

func (m *RepoMock) StartBroadcast(ctx context.Context, id int64, recipients []int64) ([]*models.BroadcastMessage, error) {
	args := m.Called(ctx, id, recipients)
	res, _ := args.Get(0).([]*models.BroadcastMessage)
	return res, args.Error(1)
}

func (m *RepoMock) RecordDelivery(ctx context.Context, messageID int64, sent bool, errText string) (bool, error) {
	args := m.Called(ctx, messageID, sent, errText)
	return args.Bool(0), args.Error(1)
}

func (m *RepoMock) GetBroadcastMessage(ctx context.Context, id int64) (*models.BroadcastMessage, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.BroadcastMessage)
	return res, args.Error(1)
}

func (m *RepoMock) BroadcastStats(ctx context.Context, id int64) (*models.BroadcastStats, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.BroadcastStats)
	return res, args.Error(1)
}

func (m *RepoMock) DueBroadcasts(ctx context.Context) ([]*models.Broadcast, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]*models.Broadcast)
	return res, args.Error(1)
}

type AudienceMock struct{ mock.Mock }

func (m *AudienceMock) Criteria(req models.AudienceRequest) (models.AudienceCriteria, error) {
	args := m.Called(req)
	return models.AudienceCriteria{TargetType: req.TargetType}, args.Error(0)
}

func (m *AudienceMock) Preview(ctx context.Context, req models.AudienceRequest) (*models.AudiencePreview, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*models.AudiencePreview)
	return res, args.Error(1)
}

func (m *AudienceMock) Recipients(ctx context.Context, req models.AudienceRequest) ([]int64, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).([]int64)
	return res, args.Error(1)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, message any) error {
	return m.Called(ctx, routingKey, message).Error(0)
}

type MessengerMock struct{ mock.Mock }

func (m *MessengerMock) SendMessage(ctx context.Context, userID int64, text string) error {
	return m.Called(ctx, userID, text).Error(0)
}

type mocks struct {
	repo      *RepoMock
	audience  *AudienceMock
	publisher *PublisherMock
	messenger *MessengerMock
}

func (m mocks) assert(t *testing.T) {
	m.repo.AssertExpectations(t)
	m.audience.AssertExpectations(t)
	m.publisher.AssertExpectations(t)
	m.messenger.AssertExpectations(t)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newService() (*Service, mocks) {
	m := mocks{
		repo:      new(RepoMock),
		audience:  new(AudienceMock),
		publisher: new(PublisherMock),
		messenger: new(MessengerMock),
	}
	svc := New(m.repo, m.audience, m.publisher, m.messenger, newNoopLogger())
	svc.now = func() time.Time { return testNow }
	return svc, m
}

func TestService_Create(t *testing.T) {
	future := testNow.Add(time.Hour)
	past := testNow.Add(-time.Hour)

	tests := []struct {
		name       string
		req        models.DummyBroadcast
		setupMocks func(m mocks)
		wantStatus string
		wantErr    error
	}{
		{
			name: "draft",
			req:  models.DummyBroadcast{Title: "Hi", Body: "Hello", TargetType: models.TargetAllUsers},
			setupMocks: func(m mocks) {
				m.audience.On("Criteria", mock.Anything).Return(nil).Once()
				m.repo.On("CreateBroadcast", mock.Anything, mock.MatchedBy(func(b models.Broadcast) bool {
					return b.Status == models.BroadcastStatusDraft && b.CreatedBy == 1
				})).Return(&models.Broadcast{ID: 3, Status: models.BroadcastStatusDraft}, nil).Once()
			},
			wantStatus: models.BroadcastStatusDraft,
		},
		{
			name: "scheduled",
			req:  models.DummyBroadcast{Title: "Hi", Body: "Hello", TargetType: models.TargetAllUsers, ScheduledAt: &future},
			setupMocks: func(m mocks) {
				m.audience.On("Criteria", mock.Anything).Return(nil).Once()
				m.repo.On("CreateBroadcast", mock.Anything, mock.MatchedBy(func(b models.Broadcast) bool {
					return b.Status == models.BroadcastStatusScheduled && b.ScheduledAt.Equal(future)
				})).Return(&models.Broadcast{ID: 3, Status: models.BroadcastStatusScheduled}, nil).Once()
			},
			wantStatus: models.BroadcastStatusScheduled,
		},
		{
			name: "schedule in the past",
			req:  models.DummyBroadcast{Title: "Hi", Body: "Hello", TargetType: models.TargetAllUsers, ScheduledAt: &past},
			setupMocks: func(m mocks) {
				m.audience.On("Criteria", mock.Anything).Return(nil).Once()
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "bad audience",
			req:  models.DummyBroadcast{Title: "Hi", Body: "Hello", TargetType: models.TargetProductSpecific},
			setupMocks: func(m mocks) {
				m.audience.On("Criteria", mock.Anything).Return(apperr.ErrValidation).Once()
			},
			wantErr: apperr.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newService()
			tt.setupMocks(m)

			res, err := svc.Create(context.Background(), 1, tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				m.repo.AssertNotCalled(t, "CreateBroadcast", mock.Anything, mock.Anything)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantStatus, res.Status)
			}
			m.assert(t)
		})
	}
}

func TestService_Update(t *testing.T) {
	svc, m := newService()
	m.repo.On("GetBroadcast", mock.Anything, int64(3)).
		Return(&models.Broadcast{ID: 3, Status: models.BroadcastStatusCompleted}, nil).Once()

	_, err := svc.Update(context.Background(), 3, models.DummyBroadcast{Title: "x", Body: "y", TargetType: models.TargetAllUsers})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	m.repo.On("GetBroadcast", mock.Anything, int64(4)).
		Return(&models.Broadcast{ID: 4, Status: models.BroadcastStatusDraft}, nil).Once()
	m.audience.On("Criteria", mock.Anything).Return(nil).Once()
	m.repo.On("UpdateBroadcast", mock.Anything, mock.MatchedBy(func(b models.Broadcast) bool {
		return b.ID == 4 && b.Title == "x"
	})).Return(&models.Broadcast{ID: 4}, nil).Once()

	_, err = svc.Update(context.Background(), 4, models.DummyBroadcast{Title: "x", Body: "y", TargetType: models.TargetAllUsers})
	require.NoError(t, err)
	m.assert(t)
}

func TestService_SendNow(t *testing.T) {
	draft := &models.Broadcast{ID: 3, Status: models.BroadcastStatusDraft, TargetType: models.TargetAllUsers,
		ExcludedUserIDs: models.IDList{9}}
	messages := []*models.BroadcastMessage{
		{ID: 11, BroadcastID: 3, UserID: 1, Status: models.MessageStatusPending},
		{ID: 12, BroadcastID: 3, UserID: 2, Status: models.MessageStatusPending},
	}

	tests := []struct {
		name       string
		setupMocks func(m mocks)
		wantErr    error
	}{
		{
			name: "publishes one task per recipient",
			setupMocks: func(m mocks) {
				m.repo.On("GetBroadcast", mock.Anything, int64(3)).Return(draft, nil).Once()
				m.audience.On("Recipients", mock.Anything, mock.MatchedBy(func(req models.AudienceRequest) bool {
					return len(req.ExcludedUserIDs) == 1
				})).Return([]int64{1, 2}, nil).Once()
				m.repo.On("StartBroadcast", mock.Anything, int64(3), []int64{1, 2}).Return(messages, nil).Once()
				m.publisher.On("Publish", mock.Anything, rabbitmq.RoutingBroadcastDeliver,
					models.DeliveryTask{BroadcastID: 3, MessageID: 11, UserID: 1}).Return(nil).Once()
				m.publisher.On("Publish", mock.Anything, rabbitmq.RoutingBroadcastDeliver,
					models.DeliveryTask{BroadcastID: 3, MessageID: 12, UserID: 2}).Return(nil).Once()
				m.repo.On("GetBroadcast", mock.Anything, int64(3)).
					Return(&models.Broadcast{ID: 3, Status: models.BroadcastStatusSending, TotalRecipients: 2}, nil).Once()
			},
		},
		{
			name: "publish failure is recorded as failed delivery",
			setupMocks: func(m mocks) {
				m.repo.On("GetBroadcast", mock.Anything, int64(3)).Return(draft, nil).Once()
				m.audience.On("Recipients", mock.Anything, mock.Anything).Return([]int64{1, 2}, nil).Once()
				m.repo.On("StartBroadcast", mock.Anything, int64(3), []int64{1, 2}).Return(messages, nil).Once()
				m.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("channel closed")).Twice()
				m.repo.On("RecordDelivery", mock.Anything, mock.Anything, false, "enqueue failed: channel closed").Return(true, nil).Twice()
				m.repo.On("GetBroadcast", mock.Anything, int64(3)).
					Return(&models.Broadcast{ID: 3, Status: models.BroadcastStatusCompleted}, nil).Once()
			},
		},
		{
			name: "already sending",
			setupMocks: func(m mocks) {
				m.repo.On("GetBroadcast", mock.Anything, int64(3)).
					Return(&models.Broadcast{ID: 3, Status: models.BroadcastStatusSending}, nil).Once()
			},
			wantErr: apperr.ErrConflict,
		},
		{
			name: "lost race with another sender",
			setupMocks: func(m mocks) {
				m.repo.On("GetBroadcast", mock.Anything, int64(3)).Return(draft, nil).Once()
				m.audience.On("Recipients", mock.Anything, mock.Anything).Return([]int64{1}, nil).Once()
				m.repo.On("StartBroadcast", mock.Anything, int64(3), []int64{1}).Return(nil, apperr.ErrConflict).Once()
			},
			wantErr: apperr.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newService()
			tt.setupMocks(m)

			_, err := svc.SendNow(context.Background(), 3)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				m.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
			} else {
				require.NoError(t, err)
			}
			m.assert(t)
		})
	}
}

func TestService_Deliver(t *testing.T) {
	task := models.DeliveryTask{BroadcastID: 3, MessageID: 11, UserID: 1}
	pending := &models.BroadcastMessage{ID: 11, Status: models.MessageStatusPending}

	tests := []struct {
		name       string
		setupMocks func(m mocks)
		wantErr    bool
	}{
		{
			name: "sent",
			setupMocks: func(m mocks) {
				m.repo.On("GetBroadcastMessage", mock.Anything, int64(11)).Return(pending, nil).Once()
				m.repo.On("GetBroadcast", mock.Anything, int64(3)).
					Return(&models.Broadcast{ID: 3, Body: "Hello", Status: models.BroadcastStatusSending}, nil).Once()
				m.messenger.On("SendMessage", mock.Anything, int64(1), "Hello").Return(nil).Once()
				m.repo.On("RecordDelivery", mock.Anything, int64(11), true, "").Return(true, nil).Once()
			},
		},
		{
			name: "send failure recorded",
			setupMocks: func(m mocks) {
				m.repo.On("GetBroadcastMessage", mock.Anything, int64(11)).Return(pending, nil).Once()
				m.repo.On("GetBroadcast", mock.Anything, int64(3)).
					Return(&models.Broadcast{ID: 3, Body: "Hello", Status: models.BroadcastStatusSending}, nil).Once()
				m.messenger.On("SendMessage", mock.Anything, int64(1), "Hello").Return(errors.New("bot was blocked")).Once()
				m.repo.On("RecordDelivery", mock.Anything, int64(11), false, "bot was blocked").Return(true, nil).Once()
			},
		},
		{
			name: "cancelled broadcast skips send",
			setupMocks: func(m mocks) {
				m.repo.On("GetBroadcastMessage", mock.Anything, int64(11)).Return(pending, nil).Once()
				m.repo.On("GetBroadcast", mock.Anything, int64(3)).
					Return(&models.Broadcast{ID: 3, Status: models.BroadcastStatusCancelled}, nil).Once()
				m.repo.On("RecordDelivery", mock.Anything, int64(11), false, CancelledError).Return(true, nil).Once()
			},
		},
		{
			name: "redelivered message is ignored",
			setupMocks: func(m mocks) {
				m.repo.On("GetBroadcastMessage", mock.Anything, int64(11)).
					Return(&models.BroadcastMessage{ID: 11, Status: models.MessageStatusSent}, nil).Once()
			},
		},
		{
			name: "record failure is returned for retry",
			setupMocks: func(m mocks) {
				m.repo.On("GetBroadcastMessage", mock.Anything, int64(11)).Return(pending, nil).Once()
				m.repo.On("GetBroadcast", mock.Anything, int64(3)).
					Return(&models.Broadcast{ID: 3, Body: "Hello", Status: models.BroadcastStatusSending}, nil).Once()
				m.messenger.On("SendMessage", mock.Anything, int64(1), "Hello").Return(nil).Once()
				m.repo.On("RecordDelivery", mock.Anything, int64(11), true, "").Return(false, errors.New("db down")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newService()
			tt.setupMocks(m)

			err := svc.Deliver(context.Background(), task)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			m.assert(t)
		})
	}
}

func TestService_ScheduleCancelStats(t *testing.T) {
	svc, m := newService()
	ctx := context.Background()

	_, err := svc.Schedule(ctx, 3, testNow.Add(-time.Minute))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	at := testNow.Add(time.Hour)
	m.repo.On("ScheduleBroadcast", mock.Anything, int64(3), at).
		Return(&models.Broadcast{ID: 3, Status: models.BroadcastStatusScheduled}, nil).Once()
	res, err := svc.Schedule(ctx, 3, at)
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastStatusScheduled, res.Status)

	m.repo.On("TransitionBroadcast", mock.Anything, int64(3),
		[]string{models.BroadcastStatusDraft, models.BroadcastStatusScheduled, models.BroadcastStatusSending},
		models.BroadcastStatusCancelled).Return(&models.Broadcast{ID: 3, Status: models.BroadcastStatusCancelled}, nil).Once()
	res, err = svc.Cancel(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, models.BroadcastStatusCancelled, res.Status)

	m.repo.On("BroadcastStats", mock.Anything, int64(3)).
		Return(&models.BroadcastStats{BroadcastID: 3, Total: 2, Sent: 1, Failed: 1}, nil).Once()
	stats, err := svc.Stats(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Sent+stats.Failed)
	m.assert(t)
}

func TestService_DispatchDue(t *testing.T) {
	svc, m := newService()
	m.repo.On("DueBroadcasts", mock.Anything).Return([]*models.Broadcast{{ID: 3}, {ID: 4}}, nil).Once()

	m.repo.On("GetBroadcast", mock.Anything, int64(3)).
		Return(&models.Broadcast{ID: 3, Status: models.BroadcastStatusScheduled, TargetType: models.TargetAllUsers}, nil).Once()
	m.audience.On("Recipients", mock.Anything, mock.Anything).Return([]int64{}, nil).Once()
	m.repo.On("StartBroadcast", mock.Anything, int64(3), []int64{}).Return(nil, nil).Once()
	m.repo.On("GetBroadcast", mock.Anything, int64(3)).
		Return(&models.Broadcast{ID: 3, Status: models.BroadcastStatusCompleted}, nil).Once()

	m.repo.On("GetBroadcast", mock.Anything, int64(4)).Return(nil, apperr.ErrNotFound).Once()

	started, err := svc.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	m.assert(t)
}
