// Package payment реализует жизненный цикл платежей: покупку через провайдера,
// ручное подтверждение и отклонение, сброс и сверку статуса с провайдером.
//
// Переходы статуса выполняются условным UPDATE в хранилище, поэтому одновременные
// подтверждения одного платежа создают не больше одной подписки. Синхронизация доступа
// к каналу и уведомления выполняются после фиксации и на результат операции не влияют.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/config"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/metrics"
	"github.com/magabrotheeeer/channel-panel/internal/models"
	"github.com/magabrotheeeer/channel-panel/internal/paymentprovider"
)

// Источники переходов статуса для метрик и логов.
const (
	SourceAdmin   = "admin"
	SourceRecheck = "recheck"
	SourceIPN     = "ipn"
	SourcePoller  = "poller"
	SourceUser    = "user"
)

var vendorIDRe = regexp.MustCompile(`^\d+$`)

// Repository хранилище платежей и связанных подписок.
type Repository interface {
	CreatePayment(ctx context.Context, p models.Payment) (*models.Payment, error)
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentByVendorID(ctx context.Context, vendorID string) (*models.Payment, error)
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, int, error)
	ListPendingVendorPayments(ctx context.Context, before time.Time, limit int) ([]*models.Payment, error)
	ConfirmPayment(ctx context.Context, id string, txHash *string) (*models.Payment, *models.Subscription, error)
	RejectPayment(ctx context.Context, id string, txHash *string) (*models.Payment, error)
	ResetPayment(ctx context.Context, id string) (*models.Payment, error)
	ApplyVendorStatus(ctx context.Context, id, expected, status string, txHash *string) (*models.Payment, *models.Subscription, error)
	TouchPayment(ctx context.Context, id string) error
	CountOtherSuccessPayments(ctx context.Context, userID, productID int64, excludeID string) (int, error)
	ExpireSubscriptionByPayment(ctx context.Context, paymentID string) (*models.Subscription, error)
}

// Vendor клиент платежного провайдера.
type Vendor interface {
	GetPayment(ctx context.Context, vendorID string) (*paymentprovider.PaymentInfo, error)
	CreatePayment(ctx context.Context, req paymentprovider.CreatePaymentRequest) (*paymentprovider.CreatePaymentResponse, error)
}

// Quoter рассчитывает цену покупки.
type Quoter interface {
	Quote(ctx context.Context, productID int64, code string) (*models.Quote, error)
}

// Syncer синхронизирует доступ к каналу.
type Syncer interface {
	Sync(ctx context.Context, req models.AccessSync) models.SyncResult
}

// Notifier отправляет личные сообщения пользователю.
type Notifier interface {
	SendMessage(ctx context.Context, userID int64, text string) error
}

// Service бизнес-логика платежей.
type Service struct {
	repo     Repository
	vendor   Vendor
	quoter   Quoter
	syncer   Syncer
	notifier Notifier
	cfg      config.PaymentProvider
	log      *slog.Logger
	now      func() time.Time
}

// New создаёт Service.
func New(repo Repository, vendor Vendor, quoter Quoter, syncer Syncer, notifier Notifier,
	cfg config.PaymentProvider, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		vendor:   vendor,
		quoter:   quoter,
		syncer:   syncer,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Confirm подтверждает ожидающий платеж и выдаёт доступ к каналу.
func (s *Service) Confirm(ctx context.Context, id, txHash string) (*models.Payment, error) {
	const op = "payment.Confirm"
	log := s.log.With(slog.String("op", op), slog.String("payment_id", id))

	p, sub, err := s.repo.ConfirmPayment(ctx, id, optional(txHash))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.PaymentTransitions.WithLabelValues(SourceAdmin, models.PaymentStatusPending, models.PaymentStatusSuccess).Inc()
	log.Info("payment confirmed", slog.Bool("subscription_created", sub != nil))

	if sub != nil {
		s.grantAccess(ctx, log, sub)
	}
	return p, nil
}

// Reject отклоняет ожидающий платеж и уведомляет пользователя.
func (s *Service) Reject(ctx context.Context, id, txHash string) (*models.Payment, error) {
	const op = "payment.Reject"
	log := s.log.With(slog.String("op", op), slog.String("payment_id", id))

	p, err := s.repo.RejectPayment(ctx, id, optional(txHash))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.PaymentTransitions.WithLabelValues(SourceAdmin, models.PaymentStatusPending, models.PaymentStatusFailed).Inc()
	log.Info("payment rejected")

	s.notifyRejected(ctx, log, p)
	return p, nil
}

// Reset возвращает обработанный платеж в pending. Подписки не меняются.
func (s *Service) Reset(ctx context.Context, id string) (*models.Payment, error) {
	const op = "payment.Reset"

	p, err := s.repo.ResetPayment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.PaymentTransitions.WithLabelValues(SourceAdmin, "processed", models.PaymentStatusPending).Inc()
	s.log.Info("payment reset", slog.String("op", op), slog.String("payment_id", id))
	return p, nil
}

// Recheck сверяет статус платежа с провайдером.
func (s *Service) Recheck(ctx context.Context, id string) (*models.StatusChange, error) {
	const op = "payment.Recheck"

	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	change, err := s.reconcile(ctx, p, SourceRecheck)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return change, nil
}

// RecheckByVendorID сверяет платеж, найденный по идентификатору провайдера.
func (s *Service) RecheckByVendorID(ctx context.Context, vendorID, source string) (*models.StatusChange, error) {
	const op = "payment.RecheckByVendorID"

	if !vendorIDRe.MatchString(vendorID) {
		return nil, fmt.Errorf("%s: %w: invalid vendor payment id %q", op, apperr.ErrValidation, vendorID)
	}
	p, err := s.repo.GetPaymentByVendorID(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	change, err := s.reconcile(ctx, p, source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return change, nil
}

// RecheckPending сверяет ожидающие платежи, не обновлявшиеся дольше olderThan.
// Возвращает количество платежей, сменивших статус. Ошибки отдельных платежей логируются.
func (s *Service) RecheckPending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	const op = "payment.RecheckPending"
	log := s.log.With(slog.String("op", op))

	list, err := s.repo.ListPendingVendorPayments(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	changed := 0
	for _, p := range list {
		if ctx.Err() != nil {
			return changed, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		change, err := s.reconcile(ctx, p, SourcePoller)
		if err != nil {
			log.Warn("pending payment recheck failed", slog.String("payment_id", p.ID), sl.Err(err))
			continue
		}
		if change.Changed {
			changed++
		}
	}
	log.Info("pending payments rechecked", slog.Int("checked", len(list)), slog.Int("changed", changed))
	return changed, nil
}

// reconcile применяет статус провайдера к платежу.
func (s *Service) reconcile(ctx context.Context, p *models.Payment, source string) (*models.StatusChange, error) {
	log := s.log.With(slog.String("op", "payment.reconcile"), slog.String("payment_id", p.ID),
		slog.String("source", source))

	vendorID, ok := p.VendorID()
	if !ok {
		return nil, apperr.ErrNotVendorLinked
	}
	info, err := s.vendor.GetPayment(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	mapped := paymentprovider.MapStatus(info.PaymentStatus)
	change := &models.StatusChange{Payment: p, PreviousStatus: p.Status}
	// Промежуточный статус провайдера не откатывает завершённый платёж.
	if mapped == models.PaymentStatusPending && p.Status != models.PaymentStatusPending {
		log.Warn("vendor reports intermediate status for final payment, ignored",
			slog.String("status", p.Status), slog.String("vendor_status", info.PaymentStatus))
		mapped = p.Status
	}
	if mapped == p.Status {
		if err := s.repo.TouchPayment(ctx, p.ID); err != nil {
			log.Warn("failed to touch payment", sl.Err(err))
		}
		return change, nil
	}

	updated, sub, err := s.repo.ApplyVendorStatus(ctx, p.ID, p.Status, mapped, info.TxHash())
	if err != nil {
		return nil, err
	}
	change.Payment = updated
	change.Changed = true
	metrics.PaymentTransitions.WithLabelValues(source, p.Status, mapped).Inc()
	log.Info("payment status reconciled",
		slog.String("from", p.Status),
		slog.String("to", mapped),
		slog.String("vendor_status", info.PaymentStatus))

	switch mapped {
	case models.PaymentStatusSuccess:
		if sub != nil {
			s.grantAccess(ctx, log, sub)
		}
	case models.PaymentStatusFailed:
		s.revokeAfterFailure(ctx, log, updated)
		s.notifyRejected(ctx, log, updated)
	}
	return change, nil
}

// revokeAfterFailure закрывает доступ, если у пользователя нет других успешных платежей за продукт.
func (s *Service) revokeAfterFailure(ctx context.Context, log *slog.Logger, p *models.Payment) {
	if p.ProductID == nil {
		return
	}
	others, err := s.repo.CountOtherSuccessPayments(ctx, p.UserID, *p.ProductID, p.ID)
	if err != nil {
		log.Error("failed to count other payments", sl.Err(err))
		return
	}
	if others > 0 {
		log.Info("subscription kept, user has other successful payments", slog.Int("others", others))
		return
	}
	sub, err := s.repo.ExpireSubscriptionByPayment(ctx, p.ID)
	if err != nil {
		log.Error("failed to expire subscription", sl.Err(err))
		return
	}
	if sub == nil {
		return
	}
	res := s.syncer.Sync(ctx, models.SyncFor(sub, models.SubscriptionStatusExpired, models.ReasonUpdated))
	if !res.Success {
		log.Warn("channel removal failed", slog.String("error", res.Error))
	}
}

func (s *Service) grantAccess(ctx context.Context, log *slog.Logger, sub *models.Subscription) {
	res := s.syncer.Sync(ctx, models.SyncFor(sub, models.SubscriptionStatusActive, models.ReasonCreated))
	if !res.Success {
		log.Warn("channel access not granted", slog.Int64("subscription_id", sub.ID), slog.String("error", res.Error))
	}
}

func (s *Service) notifyRejected(ctx context.Context, log *slog.Logger, p *models.Payment) {
	product := p.ProductName
	if product == "" {
		product = "your order"
	}
	text := fmt.Sprintf("Payment for <b>%s</b> (%s %s) was not confirmed. Contact support if you believe this is a mistake.",
		html.EscapeString(product), p.Amount.StringFixed(2), html.EscapeString(p.Currency))
	if err := s.notifier.SendMessage(ctx, p.UserID, text); err != nil {
		log.Warn("rejection notice not delivered", sl.Err(err))
	}
}

// Create оформляет покупку продукта: рассчитывает цену, создаёт платеж у провайдера
// и сохраняет его в статусе pending. Бесплатная покупка подтверждается сразу.
func (s *Service) Create(ctx context.Context, userID int64, req models.DummyPurchase) (*models.Payment, error) {
	const op = "payment.Create"
	log := s.log.With(slog.String("op", op), slog.Int64("user_id", userID), slog.Int64("product_id", req.ProductID))

	quote, err := s.quoter.Quote(ctx, req.ProductID, req.PromoCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	productID := req.ProductID
	p := models.Payment{
		ID:          uuid.NewString(),
		UserID:      userID,
		ProductID:   &productID,
		Amount:      quote.FinalPrice,
		Currency:    quote.Currency,
		Status:      models.PaymentStatusPending,
		PromoCodeID: quote.PromoCodeID,
		DiscountID:  quote.DiscountID,
	}

	if !quote.FinalPrice.IsPositive() {
		created, err := s.repo.CreatePayment(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("free purchase, confirming immediately", slog.String("payment_id", created.ID))
		return s.Confirm(ctx, created.ID, "")
	}

	priceCurrency := strings.ToLower(quote.Currency)
	if priceCurrency == "" {
		priceCurrency = s.cfg.PriceCurrency
	}
	resp, err := s.vendor.CreatePayment(ctx, paymentprovider.CreatePaymentRequest{
		PriceAmount:      json.Number(quote.FinalPrice.StringFixed(2)),
		PriceCurrency:    priceCurrency,
		PayCurrency:      strings.ToLower(req.PayCurrency),
		OrderID:          p.ID,
		OrderDescription: "product " + strconv.FormatInt(productID, 10),
		IPNCallbackURL:   s.cfg.IPNURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	vendorID := resp.PaymentID.String()
	p.VendorPaymentID = &vendorID
	p.Memo = models.VendorMemo(vendorID)
	p.PayAddress = resp.PayAddress
	p.PayAmount = resp.PayAmount
	p.PayCurrency = resp.PayCurrency
	p.Network = resp.Network

	created, err := s.repo.CreatePayment(ctx, p)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyUsed) {
			log.Warn("usage limit reached after vendor payment was created", slog.String("vendor_id", vendorID))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("payment created", slog.String("payment_id", created.ID), slog.String("vendor_id", vendorID))
	return created, nil
}

// List возвращает страницу платежей.
func (s *Service) List(ctx context.Context, filter models.PaymentFilter) (*models.Page[*models.Payment], error) {
	filter.Pagination = filter.Pagination.Normalize()
	items, total, err := s.repo.ListPayments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("payment.List: %w", err)
	}
	if items == nil {
		items = []*models.Payment{}
	}
	return &models.Page[*models.Payment]{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Get возвращает платеж по id.
func (s *Service) Get(ctx context.Context, id string) (*models.Payment, error) {
	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("payment.Get: %w", err)
	}
	return p, nil
}

// GetForUser возвращает платеж владельцу. Ожидающий платеж предварительно сверяется с провайдером,
// ошибка сверки не мешает вернуть сохранённое состояние.
func (s *Service) GetForUser(ctx context.Context, userID int64, id string) (*models.Payment, error) {
	const op = "payment.GetForUser"

	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	if p.Status != models.PaymentStatusPending {
		return p, nil
	}
	if _, linked := p.VendorID(); !linked {
		return p, nil
	}
	change, err := s.reconcile(ctx, p, SourceUser)
	if err != nil {
		s.log.Warn("user payment recheck failed", slog.String("op", op), slog.String("payment_id", id), sl.Err(err))
		return p, nil
	}
	return change.Payment, nil
}
