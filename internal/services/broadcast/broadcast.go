// Package broadcast управляет рассылками: черновики, планирование, запуск и доставка.
//
// Запуск фиксирует список получателей и публикует по одной задаче доставки на получателя
// в очередь broadcast.deliver. Доставку выполняет sender через Deliver.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/metrics"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// CancelledError текст ошибки доставки для отменённой рассылки.
const CancelledError = "broadcast cancelled"

// Repository хранилище рассылок.
type Repository interface {
	CreateBroadcast(ctx context.Context, b models.Broadcast) (*models.Broadcast, error)
	GetBroadcast(ctx context.Context, id int64) (*models.Broadcast, error)
	ListBroadcasts(ctx context.Context, filter models.BroadcastFilterParams) ([]*models.Broadcast, int, error)
	UpdateBroadcast(ctx context.Context, b models.Broadcast) (*models.Broadcast, error)
	DeleteBroadcast(ctx context.Context, id int64) error
	TransitionBroadcast(ctx context.Context, id int64, from []string, to string) (*models.Broadcast, error)
	ScheduleBroadcast(ctx context.Context, id int64, at time.Time) (*models.Broadcast, error)
	StartBroadcast(ctx context.Context, id int64, recipients []int64) ([]*models.BroadcastMessage, error)
	RecordDelivery(ctx context.Context, messageID int64, sent bool, errText string) (bool, error)
	GetBroadcastMessage(ctx context.Context, id int64) (*models.BroadcastMessage, error)
	BroadcastStats(ctx context.Context, id int64) (*models.BroadcastStats, error)
	DueBroadcasts(ctx context.Context) ([]*models.Broadcast, error)
}

// Audience вычисляет получателей рассылки.
type Audience interface {
	Criteria(req models.AudienceRequest) (models.AudienceCriteria, error)
	Preview(ctx context.Context, req models.AudienceRequest) (*models.AudiencePreview, error)
	Recipients(ctx context.Context, req models.AudienceRequest) ([]int64, error)
}

// Publisher публикует задачи в очередь.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Messenger отправляет сообщение пользователю.
type Messenger interface {
	SendMessage(ctx context.Context, userID int64, text string) error
}

// Service бизнес-логика рассылок.
type Service struct {
	repo      Repository
	audience  Audience
	publisher Publisher
	messenger Messenger
	log       *slog.Logger
	now       func() time.Time
}

// New создаёт Service. messenger нужен только процессу, который выполняет доставку.
func New(repo Repository, audience Audience, publisher Publisher, messenger Messenger, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		audience:  audience,
		publisher: publisher,
		messenger: messenger,
		log:       log,
		now:       time.Now,
	}
}

func audienceOf(b *models.Broadcast) models.AudienceRequest {
	return models.AudienceRequest{
		TargetType:      b.TargetType,
		Filters:         b.Filters,
		ExcludedUserIDs: b.ExcludedUserIDs,
	}
}

func (s *Service) fromDummy(req models.DummyBroadcast) (models.Broadcast, error) {
	b := models.Broadcast{
		Title:           req.Title,
		Body:            req.Body,
		TargetType:      req.TargetType,
		Status:          models.BroadcastStatusDraft,
		Filters:         req.Filters,
		ExcludedUserIDs: req.ExcludedUserIDs,
	}
	if _, err := s.audience.Criteria(audienceOf(&b)); err != nil {
		return b, err
	}
	if req.ScheduledAt != nil {
		if !req.ScheduledAt.After(s.now()) {
			return b, fmt.Errorf("%w: scheduled_at must be in the future", apperr.ErrValidation)
		}
		at := req.ScheduledAt.UTC()
		b.ScheduledAt = &at
		b.Status = models.BroadcastStatusScheduled
	}
	return b, nil
}

// Create сохраняет рассылку как черновик или запланированную, если указано время.
func (s *Service) Create(ctx context.Context, actorID int64, req models.DummyBroadcast) (*models.Broadcast, error) {
	const op = "broadcast.Create"
	b, err := s.fromDummy(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	b.CreatedBy = actorID
	res, err := s.repo.CreateBroadcast(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("broadcast created", slog.String("op", op), slog.Int64("broadcast_id", res.ID), slog.String("status", res.Status))
	return res, nil
}

// Get возвращает рассылку.
func (s *Service) Get(ctx context.Context, id int64) (*models.Broadcast, error) {
	res, err := s.repo.GetBroadcast(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("broadcast.Get: %w", err)
	}
	return res, nil
}

// List возвращает страницу рассылок.
func (s *Service) List(ctx context.Context, filter models.BroadcastFilterParams) (*models.Page[*models.Broadcast], error) {
	filter.Pagination = filter.Pagination.Normalize()
	items, total, err := s.repo.ListBroadcasts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("broadcast.List: %w", err)
	}
	if items == nil {
		items = []*models.Broadcast{}
	}
	return &models.Page[*models.Broadcast]{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Update заменяет содержимое и аудиторию рассылки в статусе draft или scheduled.
func (s *Service) Update(ctx context.Context, id int64, req models.DummyBroadcast) (*models.Broadcast, error) {
	const op = "broadcast.Update"
	current, err := s.repo.GetBroadcast(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !current.Editable() {
		return nil, fmt.Errorf("%s: %w: broadcast is %s", op, apperr.ErrConflict, current.Status)
	}
	b, err := s.fromDummy(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	b.ID = id
	res, err := s.repo.UpdateBroadcast(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// Delete удаляет рассылку, если она не находится в отправке.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteBroadcast(ctx, id); err != nil {
		return fmt.Errorf("broadcast.Delete: %w", err)
	}
	return nil
}

// PreviewAudience показывает аудиторию произвольного запроса до создания рассылки.
func (s *Service) PreviewAudience(ctx context.Context, req models.AudienceRequest) (*models.AudiencePreview, error) {
	res, err := s.audience.Preview(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("broadcast.PreviewAudience: %w", err)
	}
	return res, nil
}

// Preview показывает аудиторию сохранённой рассылки.
func (s *Service) Preview(ctx context.Context, id int64, limit int) (*models.AudiencePreview, error) {
	const op = "broadcast.Preview"
	b, err := s.repo.GetBroadcast(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req := audienceOf(b)
	req.Limit = limit
	res, err := s.audience.Preview(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// SendNow фиксирует получателей и ставит доставку в очередь.
// Задачи, которые не удалось опубликовать, сразу отмечаются как неудачные,
// чтобы счётчики рассылки сошлись.
func (s *Service) SendNow(ctx context.Context, id int64) (*models.Broadcast, error) {
	const op = "broadcast.SendNow"
	log := s.log.With(slog.String("op", op), slog.Int64("broadcast_id", id))

	b, err := s.repo.GetBroadcast(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !b.Editable() {
		return nil, fmt.Errorf("%s: %w: broadcast is %s", op, apperr.ErrConflict, b.Status)
	}
	recipients, err := s.audience.Recipients(ctx, audienceOf(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	messages, err := s.repo.StartBroadcast(ctx, id, recipients)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	failed := 0
	for _, m := range messages {
		task := models.DeliveryTask{BroadcastID: id, MessageID: m.ID, UserID: m.UserID}
		if err := s.publisher.Publish(ctx, rabbitmq.RoutingBroadcastDeliver, task); err != nil {
			failed++
			if _, recErr := s.repo.RecordDelivery(ctx, m.ID, false, "enqueue failed: "+err.Error()); recErr != nil {
				log.Error("failed to record enqueue failure", slog.Int64("message_id", m.ID), sl.Err(recErr))
			}
		}
	}
	if failed > 0 {
		log.Warn("some deliveries were not enqueued", slog.Int("failed", failed))
	}
	log.Info("broadcast started", slog.Int("recipients", len(recipients)))

	res, err := s.repo.GetBroadcast(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// Schedule назначает отправку рассылки на время at.
func (s *Service) Schedule(ctx context.Context, id int64, at time.Time) (*models.Broadcast, error) {
	const op = "broadcast.Schedule"
	if !at.After(s.now()) {
		return nil, fmt.Errorf("%s: %w: scheduled_at must be in the future", op, apperr.ErrValidation)
	}
	res, err := s.repo.ScheduleBroadcast(ctx, id, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// Cancel отменяет рассылку. Оставшиеся доставки будут пропущены.
func (s *Service) Cancel(ctx context.Context, id int64) (*models.Broadcast, error) {
	const op = "broadcast.Cancel"
	res, err := s.repo.TransitionBroadcast(ctx, id, []string{
		models.BroadcastStatusDraft,
		models.BroadcastStatusScheduled,
		models.BroadcastStatusSending,
	}, models.BroadcastStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("broadcast cancelled", slog.String("op", op), slog.Int64("broadcast_id", id))
	return res, nil
}

// Stats возвращает счётчики доставки.
func (s *Service) Stats(ctx context.Context, id int64) (*models.BroadcastStats, error) {
	res, err := s.repo.BroadcastStats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("broadcast.Stats: %w", err)
	}
	return res, nil
}

// DispatchDue запускает запланированные рассылки, время которых наступило.
// Возвращает число запущенных.
func (s *Service) DispatchDue(ctx context.Context) (int, error) {
	const op = "broadcast.DispatchDue"
	due, err := s.repo.DueBroadcasts(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	started := 0
	for _, b := range due {
		if _, err := s.SendNow(ctx, b.ID); err != nil {
			s.log.Error("failed to start scheduled broadcast", slog.String("op", op), slog.Int64("broadcast_id", b.ID), sl.Err(err))
			continue
		}
		started++
	}
	return started, nil
}

// Deliver отправляет сообщение рассылки одному получателю и фиксирует результат.
// Ошибка возвращается, только если результат не удалось сохранить.
func (s *Service) Deliver(ctx context.Context, task models.DeliveryTask) error {
	const op = "broadcast.Deliver"
	log := s.log.With(
		slog.String("op", op),
		slog.Int64("broadcast_id", task.BroadcastID),
		slog.Int64("message_id", task.MessageID),
	)

	msg, err := s.repo.GetBroadcastMessage(ctx, task.MessageID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if msg.Status != models.MessageStatusPending {
		log.Debug("delivery already recorded")
		return nil
	}
	b, err := s.repo.GetBroadcast(ctx, task.BroadcastID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sent, errText := false, CancelledError
	if b.Status != models.BroadcastStatusCancelled {
		if sendErr := s.messenger.SendMessage(ctx, task.UserID, b.Body); sendErr != nil {
			errText = sendErr.Error()
			log.Warn("delivery failed", slog.Int64("user_id", task.UserID), sl.Err(sendErr))
		} else {
			sent, errText = true, ""
		}
	}

	recorded, err := s.repo.RecordDelivery(ctx, task.MessageID, sent, errText)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !recorded {
		log.Debug("delivery already recorded")
		return nil
	}
	result := models.MessageStatusSent
	if !sent {
		result = models.MessageStatusFailed
	}
	metrics.BroadcastDeliveries.WithLabelValues(result).Inc()
	return nil
}
