package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

const paymentColumns = `pm.id, pm.user_id, pm.product_id, pm.amount, pm.currency, pm.status, pm.tx_hash, pm.memo,
	pm.vendor_payment_id, pm.pay_address, pm.pay_amount, pm.pay_currency, pm.network,
	pm.promo_code_id, pm.discount_id, pm.created_at, pm.updated_at`

// Продукт подтягивается отдельным подзапросом, чтобы колонки работали и в RETURNING.
const paymentSelect = paymentColumns + `,
	COALESCE((SELECT name FROM products WHERE id = pm.product_id), '')`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var productID, promoID, discountID sql.NullInt64
	var txHash, vendorID sql.NullString
	var payAmount decimal.NullDecimal
	if err := row.Scan(&p.ID, &p.UserID, &productID, &p.Amount, &p.Currency, &p.Status, &txHash, &p.Memo,
		&vendorID, &p.PayAddress, &payAmount, &p.PayCurrency, &p.Network,
		&promoID, &discountID, &p.CreatedAt, &p.UpdatedAt, &p.ProductName); err != nil {
		return nil, err
	}
	p.ProductID = int64Ptr(productID)
	p.PromoCodeID = int64Ptr(promoID)
	p.DiscountID = int64Ptr(discountID)
	p.TxHash = stringPtr(txHash)
	p.VendorPaymentID = stringPtr(vendorID)
	if payAmount.Valid {
		p.PayAmount = &payAmount.Decimal
	}
	return &p, nil
}

// CreatePayment сохраняет платеж. Если задан промокод или скидка, их счётчик использования
// увеличивается в той же транзакции с проверкой лимита.
func (s *Storage) CreatePayment(ctx context.Context, p models.Payment) (*models.Payment, error) {
	const op = "storage.CreatePayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var res *models.Payment
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if p.PromoCodeID != nil {
			if err := consumeUsage(ctx, tx, "promo_codes", *p.PromoCodeID); err != nil {
				return err
			}
		}
		if p.DiscountID != nil {
			if err := consumeUsage(ctx, tx, "discounts", *p.DiscountID); err != nil {
				return err
			}
		}

		query := `INSERT INTO payments AS pm (id, user_id, product_id, amount, currency, status, tx_hash, memo,
				      vendor_payment_id, pay_address, pay_amount, pay_currency, network, promo_code_id, discount_id)
				  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
				  RETURNING ` + paymentSelect
		var err error
		res, err = scanPayment(tx.QueryRowContext(ctx, query,
			p.ID, p.UserID, nullInt64(p.ProductID), p.Amount, p.Currency, p.Status, nullString(p.TxHash), p.Memo,
			nullString(p.VendorPaymentID), p.PayAddress, nullDecimal(p.PayAmount), p.PayCurrency, p.Network,
			nullInt64(p.PromoCodeID), nullInt64(p.DiscountID)))
		if err != nil {
			return err
		}

		if p.PromoCodeID != nil {
			if _, err := tx.ExecContext(ctx, `INSERT INTO promo_code_usages (promo_code_id, user_id, payment_id)
				VALUES ($1, $2, $3)`, *p.PromoCodeID, p.UserID, res.ID); err != nil {
				return err
			}
		}
		if p.DiscountID != nil {
			if _, err := tx.ExecContext(ctx, `INSERT INTO discount_usages (discount_id, user_id, payment_id)
				VALUES ($1, $2, $3)`, *p.DiscountID, p.UserID, res.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// consumeUsage атомарно увеличивает used_count, если лимит не исчерпан.
func consumeUsage(ctx context.Context, tx *sql.Tx, table string, id int64) error {
	query := `UPDATE ` + table + `
			  SET used_count = used_count + 1
			  WHERE id = $1 AND is_active
			    AND (max_uses IS NULL OR used_count < max_uses)`
	res, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d usage limit reached", apperr.ErrAlreadyUsed, table, id)
	}
	return nil
}

// GetPayment возвращает платеж по id.
func (s *Storage) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	const op = "storage.GetPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := scanPayment(s.DB.QueryRowContext(ctx, `SELECT `+paymentSelect+` FROM payments pm WHERE pm.id = $1`, id))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// GetPaymentByVendorID ищет платеж по идентификатору провайдера, включая старые записи с маркером в memo.
func (s *Storage) GetPaymentByVendorID(ctx context.Context, vendorID string) (*models.Payment, error) {
	const op = "storage.GetPaymentByVendorID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentSelect + `
			  FROM payments pm
			  WHERE pm.vendor_payment_id = $1
			     OR (pm.vendor_payment_id IS NULL AND pm.memo ~ ('NP:' || $1 || '([^0-9]|$)'))
			  ORDER BY pm.created_at DESC
			  LIMIT 1`
	res, err := scanPayment(s.DB.QueryRowContext(ctx, query, vendorID))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// ListPayments возвращает страницу платежей по фильтру, новые первыми.
func (s *Storage) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]*models.Payment, int, error) {
	const op = "storage.ListPayments"
	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	where := `WHERE ($1::text = '' OR pm.status = $1)
			    AND ($2::bigint IS NULL OR pm.user_id = $2)
			    AND ($3::bigint IS NULL OR pm.product_id = $3)`
	args := []any{filter.Status, nullInt64(filter.UserID), nullInt64(filter.ProductID)}

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments pm `+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr(op, err)
	}

	query := `SELECT ` + paymentSelect + ` FROM payments pm ` + where + `
			  ORDER BY pm.created_at DESC, pm.id
			  LIMIT $4 OFFSET $5`
	res, err := s.queryPayments(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, wrapErr(op, err)
	}
	return res, total, nil
}

// ListPendingVendorPayments возвращает ожидающие платежи, связанные с провайдером и созданные раньше before.
func (s *Storage) ListPendingVendorPayments(ctx context.Context, before time.Time, limit int) ([]*models.Payment, error) {
	const op = "storage.ListPendingVendorPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentSelect + `
			  FROM payments pm
			  WHERE pm.status = 'pending'
			    AND (pm.vendor_payment_id IS NOT NULL OR pm.memo ~ 'NP:[0-9]+')
			    AND pm.created_at < $1
			  ORDER BY pm.updated_at
			  LIMIT $2`
	res, err := s.queryPayments(ctx, query, before, limit)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

func (s *Storage) queryPayments(ctx context.Context, query string, args ...any) ([]*models.Payment, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// casPayment выполняет условный UPDATE платежа. Если ни одна строка не изменилась,
// различает отсутствие платежа и нарушение условия по статусу.
func casPayment(ctx context.Context, tx *sql.Tx, query string, guardErr error, args ...any) (*models.Payment, error) {
	p, err := scanPayment(tx.QueryRowContext(ctx, query, args...))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, args[0]).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.ErrNotFound
	}
	return nil, guardErr
}

// activateSubscription создаёт подписку по успешному платежу, если её ещё нет.
// Канал и срок берутся из продукта. Возвращает nil, если продукта нет или подписка уже создана.
func activateSubscription(ctx context.Context, tx *sql.Tx, p *models.Payment) (*models.Subscription, error) {
	if p.ProductID == nil {
		return nil, nil
	}
	query := `WITH ins AS (
			      INSERT INTO subscriptions (user_id, product_id, channel_id, status, started_at, expires_at, payment_id)
			      SELECT $1, pr.id, pr.channel_id, 'active', NOW(), NOW() + make_interval(days => pr.period_days), $3
			      FROM products pr
			      WHERE pr.id = $2
			      ON CONFLICT (payment_id) WHERE payment_id IS NOT NULL DO NOTHING
			      RETURNING *
			  )
			  SELECT ` + subscriptionColumns + `
			  FROM ins s
			  JOIN products p ON p.id = s.product_id
			  JOIN channels c ON c.id = s.channel_id`
	sub, err := scanSubscription(tx.QueryRowContext(ctx, query, p.UserID, *p.ProductID, p.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ConfirmPayment переводит платеж pending → success и создаёт подписку в одной транзакции.
// Переход выполняется условным UPDATE, повторное подтверждение возвращает ErrAlreadyProcessed.
func (s *Storage) ConfirmPayment(ctx context.Context, id string, txHash *string) (*models.Payment, *models.Subscription, error) {
	const op = "storage.ConfirmPayment"
	select {
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var p *models.Payment
	var sub *models.Subscription
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE payments pm
				  SET status = 'success', tx_hash = COALESCE($2, pm.tx_hash), updated_at = NOW()
				  WHERE pm.id = $1 AND pm.status = 'pending'
				  RETURNING ` + paymentSelect
		var err error
		p, err = casPayment(ctx, tx, query, apperr.ErrAlreadyProcessed, id, nullString(txHash))
		if err != nil {
			return err
		}
		sub, err = activateSubscription(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, nil, wrapErr(op, err)
	}
	return p, sub, nil
}

// RejectPayment переводит платеж pending → failed.
func (s *Storage) RejectPayment(ctx context.Context, id string, txHash *string) (*models.Payment, error) {
	const op = "storage.RejectPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var p *models.Payment
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE payments pm
				  SET status = 'failed', tx_hash = COALESCE($2, pm.tx_hash), updated_at = NOW()
				  WHERE pm.id = $1 AND pm.status = 'pending'
				  RETURNING ` + paymentSelect
		var err error
		p, err = casPayment(ctx, tx, query, apperr.ErrAlreadyProcessed, id, nullString(txHash))
		return err
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return p, nil
}

// ResetPayment возвращает обработанный платеж в pending и очищает tx_hash.
// Созданные подписки не трогает.
func (s *Storage) ResetPayment(ctx context.Context, id string) (*models.Payment, error) {
	const op = "storage.ResetPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var p *models.Payment
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE payments pm
				  SET status = 'pending', tx_hash = NULL, updated_at = NOW()
				  WHERE pm.id = $1 AND pm.status <> 'pending'
				  RETURNING ` + paymentSelect
		var err error
		p, err = casPayment(ctx, tx, query, apperr.ErrNotProcessed, id)
		return err
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return p, nil
}

// ApplyVendorStatus меняет статус платежа по данным провайдера, если он всё ещё равен expected.
// При переходе в success создаёт подписку, если у платежа её нет.
// Если статус успели изменить, возвращает ErrConflict.
func (s *Storage) ApplyVendorStatus(ctx context.Context, id, expected, status string,
	txHash *string) (*models.Payment, *models.Subscription, error) {
	const op = "storage.ApplyVendorStatus"
	select {
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var p *models.Payment
	var sub *models.Subscription
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE payments pm
				  SET status = $3, tx_hash = COALESCE($4, pm.tx_hash), updated_at = NOW()
				  WHERE pm.id = $1 AND pm.status = $2
				  RETURNING ` + paymentSelect
		var err error
		p, err = casPayment(ctx, tx, query, apperr.ErrConflict, id, expected, status, nullString(txHash))
		if err != nil {
			return err
		}
		if status == models.PaymentStatusSuccess {
			sub, err = activateSubscription(ctx, tx, p)
		}
		return err
	})
	if err != nil {
		return nil, nil, wrapErr(op, err)
	}
	return p, sub, nil
}

// TouchPayment обновляет updated_at, чтобы опрос провайдера шёл по кругу.
func (s *Storage) TouchPayment(ctx context.Context, id string) error {
	const op = "storage.TouchPayment"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if _, err := s.DB.ExecContext(ctx, `UPDATE payments SET updated_at = NOW() WHERE id = $1`, id); err != nil {
		return wrapErr(op, err)
	}
	return nil
}

// CountOtherSuccessPayments считает успешные платежи пользователя за продукт, кроме excludeID.
func (s *Storage) CountOtherSuccessPayments(ctx context.Context, userID, productID int64, excludeID string) (int, error) {
	const op = "storage.CountOtherSuccessPayments"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*)
			  FROM payments
			  WHERE user_id = $1 AND product_id = $2 AND status = 'success' AND id <> $3`
	var n int
	if err := s.DB.QueryRowContext(ctx, query, userID, productID, excludeID).Scan(&n); err != nil {
		return 0, wrapErr(op, err)
	}
	return n, nil
}
