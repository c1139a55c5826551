// Package scheduler содержит фоновые задачи: истечение подписок и пробных доступов,
// опрос незавершённых платежей у провайдера и запуск запланированных рассылок.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/channel-panel/internal/config"
	"github.com/magabrotheeeer/channel-panel/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/metrics"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// AccessRepository находит и переводит в expired просроченные доступы.
type AccessRepository interface {
	ExpireDueSubscriptions(ctx context.Context) ([]*models.Subscription, error)
	ExpireDueDemoAccesses(ctx context.Context) ([]*models.DemoAccess, error)
}

// Publisher публикует задачи в очередь.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// PaymentPoller сверяет незавершённые платежи с провайдером.
type PaymentPoller interface {
	RecheckPending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// BroadcastDispatcher запускает рассылки, время которых наступило.
type BroadcastDispatcher interface {
	DispatchDue(ctx context.Context) (int, error)
}

// SchedulerService выполняет фоновые задачи по таймеру.
type SchedulerService struct {
	repo       AccessRepository
	publisher  Publisher
	payments   PaymentPoller
	broadcasts BroadcastDispatcher
	cfg        config.Scheduler
	log        *slog.Logger
}

// NewSchedulerService создает новый экземпляр SchedulerService.
func NewSchedulerService(repo AccessRepository, publisher Publisher, payments PaymentPoller,
	broadcasts BroadcastDispatcher, cfg config.Scheduler, log *slog.Logger) *SchedulerService {
	return &SchedulerService{
		repo:       repo,
		publisher:  publisher,
		payments:   payments,
		broadcasts: broadcasts,
		cfg:        cfg,
		log:        log,
	}
}

// Run запускает все задачи и блокируется до отмены ctx.
func (s *SchedulerService) Run(ctx context.Context) {
	done := make(chan struct{}, 3)
	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{"expire_access", s.cfg.ExpireInterval, s.ExpireAccess},
		{"poll_payments", s.cfg.PaymentPollInterval, s.PollPayments},
		{"dispatch_broadcasts", s.cfg.BroadcastInterval, s.DispatchBroadcasts},
	}
	for _, job := range jobs {
		go func() {
			s.every(ctx, job.name, job.interval, job.run)
			done <- struct{}{}
		}()
	}
	for range jobs {
		<-done
	}
}

// every выполняет job сразу и затем с периодом interval до отмены ctx.
func (s *SchedulerService) every(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) {
	if interval <= 0 {
		s.log.Warn("job disabled", slog.String("job", name))
		return
	}
	s.runJob(ctx, name, job)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runJob(ctx, name, job)
		}
	}
}

func (s *SchedulerService) runJob(ctx context.Context, name string, job func(context.Context) error) {
	err := job(ctx)
	metrics.SchedulerRuns.WithLabelValues(name, metrics.Outcome(err)).Inc()
	if err != nil {
		s.log.Error("job failed", slog.String("job", name), sl.Err(err))
	}
}

// ExpireAccess переводит просроченные подписки и пробные доступы в expired
// и ставит удаление из канала в очередь access.sync.
func (s *SchedulerService) ExpireAccess(ctx context.Context) error {
	const op = "scheduler.ExpireAccess"
	log := s.log.With(slog.String("op", op))

	subs, err := s.repo.ExpireDueSubscriptions(ctx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		s.publishSync(ctx, log, models.SyncFor(sub, models.SubscriptionStatusExpired, models.ReasonExpired))
	}

	demos, err := s.repo.ExpireDueDemoAccesses(ctx)
	if err != nil {
		return err
	}
	for _, d := range demos {
		s.publishSync(ctx, log, models.SyncForDemo(d, models.SubscriptionStatusExpired, models.ReasonExpired))
	}

	if len(subs)+len(demos) > 0 {
		log.Info("access expired", slog.Int("subscriptions", len(subs)), slog.Int("demo_accesses", len(demos)))
	}
	return nil
}

func (s *SchedulerService) publishSync(ctx context.Context, log *slog.Logger, req models.AccessSync) {
	if err := s.publisher.Publish(ctx, rabbitmq.RoutingAccessSync, req); err != nil {
		log.Error("failed to publish access sync",
			slog.Int64("user_id", req.UserID),
			slog.Int64("channel_id", req.ChannelID),
			sl.Err(err),
		)
	}
}

// PollPayments сверяет с провайдером платежи, которые дольше PaymentPollAge остаются pending.
func (s *SchedulerService) PollPayments(ctx context.Context) error {
	changed, err := s.payments.RecheckPending(ctx, s.cfg.PaymentPollAge, s.cfg.PaymentPollBatch)
	if err != nil {
		return err
	}
	if changed > 0 {
		s.log.Info("pending payments reconciled", slog.String("op", "scheduler.PollPayments"), slog.Int("changed", changed))
	}
	return nil
}

// DispatchBroadcasts запускает запланированные рассылки.
func (s *SchedulerService) DispatchBroadcasts(ctx context.Context) error {
	started, err := s.broadcasts.DispatchDue(ctx)
	if err != nil {
		return err
	}
	if started > 0 {
		s.log.Info("scheduled broadcasts started", slog.String("op", "scheduler.DispatchBroadcasts"), slog.Int("count", started))
	}
	return nil
}
