package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/channel-panel/internal/models"
)

const subscriptionColumns = `s.id, s.user_id, s.product_id, s.channel_id, s.status, s.started_at, s.expires_at,
	s.payment_id, p.name, c.title, s.created_at, s.updated_at`

const subscriptionFrom = `FROM subscriptions s
	JOIN products p ON p.id = s.product_id
	JOIN channels c ON c.id = s.channel_id`

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	var paymentID sql.NullString
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.ProductID, &sub.ChannelID, &sub.Status, &sub.StartedAt,
		&sub.ExpiresAt, &paymentID, &sub.ProductName, &sub.ChannelName, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.PaymentID = stringPtr(paymentID)
	return &sub, nil
}

func (s *Storage) querySubscriptions(ctx context.Context, query string, args ...any) ([]*models.Subscription, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

// CreateSubscription выдаёт подписку на продукт. Канал копируется из продукта,
// срок равен days или периоду продукта, если days = 0.
func (s *Storage) CreateSubscription(ctx context.Context, userID, productID int64, days int) (*models.Subscription, error) {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `WITH ins AS (
			      INSERT INTO subscriptions (user_id, product_id, channel_id, status, started_at, expires_at)
			      SELECT $1, pr.id, pr.channel_id, 'active', NOW(),
			          NOW() + make_interval(days => COALESCE(NULLIF($3::int, 0), pr.period_days))
			      FROM products pr
			      WHERE pr.id = $2
			      RETURNING *
			  )
			  SELECT ` + subscriptionColumns + `
			  FROM ins s
			  JOIN products p ON p.id = s.product_id
			  JOIN channels c ON c.id = s.channel_id`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userID, productID, days))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return sub, nil
}

// GetSubscription возвращает подписку по id.
func (s *Storage) GetSubscription(ctx context.Context, id int64) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	sub, err := scanSubscription(s.DB.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` `+subscriptionFrom+` WHERE s.id = $1`, id))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return sub, nil
}

// GetSubscriptionByPayment возвращает подписку, созданную по платежу.
func (s *Storage) GetSubscriptionByPayment(ctx context.Context, paymentID string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	sub, err := scanSubscription(s.DB.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` `+subscriptionFrom+` WHERE s.payment_id = $1`, paymentID))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return sub, nil
}

// ListSubscriptions возвращает страницу подписок по фильтру.
func (s *Storage) ListSubscriptions(ctx context.Context, filter models.SubscriptionFilter) ([]*models.Subscription, int, error) {
	const op = "storage.ListSubscriptions"
	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	where := `WHERE ($1::text = '' OR s.status = $1)
			    AND ($2::bigint IS NULL OR s.user_id = $2)
			    AND ($3::bigint IS NULL OR s.product_id = $3)`
	args := []any{filter.Status, nullInt64(filter.UserID), nullInt64(filter.ProductID)}

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions s `+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr(op, err)
	}
	query := `SELECT ` + subscriptionColumns + ` ` + subscriptionFrom + ` ` + where + `
			  ORDER BY s.created_at DESC, s.id DESC
			  LIMIT $4 OFFSET $5`
	res, err := s.querySubscriptions(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, wrapErr(op, err)
	}
	return res, total, nil
}

// ListUserSubscriptions возвращает все подписки пользователя, опционально только с указанным статусом.
func (s *Storage) ListUserSubscriptions(ctx context.Context, userID int64, status string) ([]*models.Subscription, error) {
	const op = "storage.ListUserSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + ` ` + subscriptionFrom + `
			  WHERE s.user_id = $1 AND ($2::text = '' OR s.status = $2)
			  ORDER BY s.expires_at DESC`
	res, err := s.querySubscriptions(ctx, query, userID, status)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// HasActiveSubscription проверяет наличие активной подписки пользователя на продукт.
func (s *Storage) HasActiveSubscription(ctx context.Context, userID, productID int64) (bool, error) {
	const op = "storage.HasActiveSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var exists bool
	query := `SELECT EXISTS (
			      SELECT 1 FROM subscriptions
			      WHERE user_id = $1 AND product_id = $2 AND status = 'active'
			  )`
	if err := s.DB.QueryRowContext(ctx, query, userID, productID).Scan(&exists); err != nil {
		return false, wrapErr(op, err)
	}
	return exists, nil
}

// UpdateSubscriptionStatus меняет статус подписки.
func (s *Storage) UpdateSubscriptionStatus(ctx context.Context, id int64, status string) (*models.Subscription, error) {
	const op = "storage.UpdateSubscriptionStatus"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `WITH upd AS (
			      UPDATE subscriptions SET status = $2, updated_at = NOW()
			      WHERE id = $1
			      RETURNING *
			  )
			  SELECT ` + subscriptionColumns + `
			  FROM upd s
			  JOIN products p ON p.id = s.product_id
			  JOIN channels c ON c.id = s.channel_id`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, id, status))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return sub, nil
}

// ExtendSubscription продлевает подписку на days дней от большей из дат: текущего срока или сейчас.
// Подписка становится активной.
func (s *Storage) ExtendSubscription(ctx context.Context, id int64, days int) (*models.Subscription, error) {
	const op = "storage.ExtendSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `WITH upd AS (
			      UPDATE subscriptions
			      SET expires_at = GREATEST(expires_at, NOW()) + make_interval(days => $2::int),
			          status = 'active', updated_at = NOW()
			      WHERE id = $1
			      RETURNING *
			  )
			  SELECT ` + subscriptionColumns + `
			  FROM upd s
			  JOIN products p ON p.id = s.product_id
			  JOIN channels c ON c.id = s.channel_id`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, id, days))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return sub, nil
}

// ExpireSubscriptionByPayment переводит активную подписку платежа в expired.
// Возвращает nil, если активной подписки нет.
func (s *Storage) ExpireSubscriptionByPayment(ctx context.Context, paymentID string) (*models.Subscription, error) {
	const op = "storage.ExpireSubscriptionByPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `WITH upd AS (
			      UPDATE subscriptions SET status = 'expired', updated_at = NOW()
			      WHERE payment_id = $1 AND status = 'active'
			      RETURNING *
			  )
			  SELECT ` + subscriptionColumns + `
			  FROM upd s
			  JOIN products p ON p.id = s.product_id
			  JOIN channels c ON c.id = s.channel_id`
	res, err := s.querySubscriptions(ctx, query, paymentID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return res[0], nil
}

// ExpireDueSubscriptions переводит в expired активные подписки с истёкшим сроком.
func (s *Storage) ExpireDueSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	const op = "storage.ExpireDueSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `WITH upd AS (
			      UPDATE subscriptions SET status = 'expired', updated_at = NOW()
			      WHERE status = 'active' AND expires_at <= NOW()
			      RETURNING *
			  )
			  SELECT ` + subscriptionColumns + `
			  FROM upd s
			  JOIN products p ON p.id = s.product_id
			  JOIN channels c ON c.id = s.channel_id`
	res, err := s.querySubscriptions(ctx, query)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// DeleteSubscription удаляет подписку и возвращает удалённую запись.
func (s *Storage) DeleteSubscription(ctx context.Context, id int64) (*models.Subscription, error) {
	const op = "storage.DeleteSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `WITH del AS (
			      DELETE FROM subscriptions WHERE id = $1
			      RETURNING *
			  )
			  SELECT ` + subscriptionColumns + `
			  FROM del s
			  JOIN products p ON p.id = s.product_id
			  JOIN channels c ON c.id = s.channel_id`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return sub, nil
}

// HasChannelAccess сообщает, остался ли у пользователя действующий доступ к каналу:
// активная неистекшая подписка или пробный доступ к любому продукту этого канала.
func (s *Storage) HasChannelAccess(ctx context.Context, userID, channelID int64) (bool, error) {
	const op = "storage.HasChannelAccess"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (
			      SELECT 1 FROM subscriptions
			      WHERE user_id = $1 AND channel_id = $2 AND status = 'active' AND expires_at > NOW()
			  ) OR EXISTS (
			      SELECT 1 FROM demo_accesses d
			      JOIN products p ON p.id = d.product_id
			      WHERE d.user_id = $1 AND p.channel_id = $2 AND d.is_active AND d.expires_at > NOW()
			  )`
	var ok bool
	if err := s.DB.QueryRowContext(ctx, query, userID, channelID).Scan(&ok); err != nil {
		return false, wrapErr(op, err)
	}
	return ok, nil
}
