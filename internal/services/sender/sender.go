// Package sender обрабатывает сообщения очередей: доставку рассылок и синхронизацию доступа к каналам.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Deliverer доставляет одно сообщение рассылки.
type Deliverer interface {
	Deliver(ctx context.Context, task models.DeliveryTask) error
}

// Syncer синхронизирует доступ к каналу.
type Syncer interface {
	Sync(ctx context.Context, req models.AccessSync) models.SyncResult
}

// SenderService обработчики сообщений для rabbitmq.ConsumerMessage.
type SenderService struct {
	deliverer Deliverer
	syncer    Syncer
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(deliverer Deliverer, syncer Syncer, log *slog.Logger) *SenderService {
	return &SenderService{
		deliverer: deliverer,
		syncer:    syncer,
		log:       log,
	}
}

// HandleDelivery обрабатывает задачу из очереди broadcast.deliver.
func (s *SenderService) HandleDelivery(ctx context.Context, body []byte) error {
	const op = "sender.HandleDelivery"
	var task models.DeliveryTask
	if err := json.Unmarshal(body, &task); err != nil {
		s.log.Error("failed to unmarshal message body", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.deliverer.Deliver(ctx, task); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// HandleAccessSync обрабатывает задачу из очереди access.sync.
// Неуспешная синхронизация только логируется: повтор той же задачи не меняет её исход.
func (s *SenderService) HandleAccessSync(ctx context.Context, body []byte) error {
	const op = "sender.HandleAccessSync"
	var req models.AccessSync
	if err := json.Unmarshal(body, &req); err != nil {
		s.log.Error("failed to unmarshal message body", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	res := s.syncer.Sync(ctx, req)
	log := s.log.With(
		slog.String("op", op),
		slog.Int64("user_id", req.UserID),
		slog.Int64("channel_id", req.ChannelID),
		slog.String("action", res.Action),
	)
	if !res.Success {
		log.Warn("access sync failed", slog.String("error", res.Error))
		return nil
	}
	log.Info("access synced")
	return nil
}
