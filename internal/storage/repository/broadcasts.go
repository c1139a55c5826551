package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

const broadcastColumns = `id, title, body, target_type, status, scheduled_at, total_recipients, sent_count,
	failed_count, created_by, created_at, started_at, finished_at`

func scanBroadcast(row rowScanner) (*models.Broadcast, error) {
	var b models.Broadcast
	var scheduledAt, startedAt, finishedAt sql.NullTime
	if err := row.Scan(&b.ID, &b.Title, &b.Body, &b.TargetType, &b.Status, &scheduledAt, &b.TotalRecipients,
		&b.SentCount, &b.FailedCount, &b.CreatedBy, &b.CreatedAt, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	b.ScheduledAt = timePtr(scheduledAt)
	b.StartedAt = timePtr(startedAt)
	b.FinishedAt = timePtr(finishedAt)
	b.Filters = []models.BroadcastFilter{}
	b.ExcludedUserIDs = models.IDList{}
	return &b, nil
}

func writeBroadcastTargets(ctx context.Context, tx *sql.Tx, b *models.Broadcast) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM broadcast_filters WHERE broadcast_id = $1`, b.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM broadcast_exclusions WHERE broadcast_id = $1`, b.ID); err != nil {
		return err
	}
	for _, f := range b.Filters {
		if _, err := tx.ExecContext(ctx, `INSERT INTO broadcast_filters (broadcast_id, filter_type, value)
			VALUES ($1, $2, $3)`, b.ID, f.Type, f.Value); err != nil {
			return err
		}
	}
	if len(b.ExcludedUserIDs) > 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO broadcast_exclusions (broadcast_id, user_id)
			SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`, b.ID, []int64(b.ExcludedUserIDs)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) loadBroadcastTargets(ctx context.Context, b *models.Broadcast) error {
	rows, err := s.DB.QueryContext(ctx, `SELECT filter_type, value FROM broadcast_filters
		WHERE broadcast_id = $1 ORDER BY id`, b.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var f models.BroadcastFilter
		if err := rows.Scan(&f.Type, &f.Value); err != nil {
			_ = rows.Close()
			return err
		}
		b.Filters = append(b.Filters, f)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	rows, err = s.DB.QueryContext(ctx, `SELECT user_id FROM broadcast_exclusions
		WHERE broadcast_id = $1 ORDER BY user_id`, b.ID)
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		b.ExcludedUserIDs = append(b.ExcludedUserIDs, id)
	}
	return rows.Err()
}

// CreateBroadcast сохраняет рассылку с фильтрами и списком исключений.
func (s *Storage) CreateBroadcast(ctx context.Context, b models.Broadcast) (*models.Broadcast, error) {
	const op = "storage.CreateBroadcast"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO broadcasts (title, body, target_type, status, scheduled_at, created_by)
				  VALUES ($1, $2, $3, $4, $5, $6)
				  RETURNING id`
		if err := tx.QueryRowContext(ctx, query, b.Title, b.Body, b.TargetType, b.Status,
			nullTime(b.ScheduledAt), b.CreatedBy).Scan(&b.ID); err != nil {
			return err
		}
		return writeBroadcastTargets(ctx, tx, &b)
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return s.GetBroadcast(ctx, b.ID)
}

// GetBroadcast возвращает рассылку с фильтрами и исключениями.
func (s *Storage) GetBroadcast(ctx context.Context, id int64) (*models.Broadcast, error) {
	const op = "storage.GetBroadcast"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	b, err := scanBroadcast(s.DB.QueryRowContext(ctx, `SELECT `+broadcastColumns+` FROM broadcasts WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	if err := s.loadBroadcastTargets(ctx, b); err != nil {
		return nil, wrapErr(op, err)
	}
	return b, nil
}

// ListBroadcasts возвращает страницу рассылок без фильтров и исключений.
func (s *Storage) ListBroadcasts(ctx context.Context, filter models.BroadcastFilterParams) ([]*models.Broadcast, int, error) {
	const op = "storage.ListBroadcasts"
	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	where := `WHERE ($1::text = '' OR status = $1)`
	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM broadcasts `+where, filter.Status).Scan(&total); err != nil {
		return nil, 0, wrapErr(op, err)
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+broadcastColumns+` FROM broadcasts `+where+`
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, filter.Status, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, wrapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, 0, wrapErr(op, err)
		}
		result = append(result, b)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, wrapErr(op, err)
	}
	return result, total, nil
}

// UpdateBroadcast изменяет рассылку в статусе draft или scheduled.
func (s *Storage) UpdateBroadcast(ctx context.Context, b models.Broadcast) (*models.Broadcast, error) {
	const op = "storage.UpdateBroadcast"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE broadcasts
				  SET title = $2, body = $3, target_type = $4, status = $5, scheduled_at = $6
				  WHERE id = $1 AND status IN ('draft', 'scheduled')`
		res, err := tx.ExecContext(ctx, query, b.ID, b.Title, b.Body, b.TargetType, b.Status, nullTime(b.ScheduledAt))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return broadcastGuardErr(ctx, tx, b.ID)
		}
		return writeBroadcastTargets(ctx, tx, &b)
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return s.GetBroadcast(ctx, b.ID)
}

func broadcastGuardErr(ctx context.Context, tx *sql.Tx, id int64) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM broadcasts WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: broadcast is %s", apperr.ErrConflict, status)
}

// DeleteBroadcast удаляет рассылку, кроме находящейся в отправке.
func (s *Storage) DeleteBroadcast(ctx context.Context, id int64) error {
	const op = "storage.DeleteBroadcast"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM broadcasts WHERE id = $1 AND status <> 'sending'`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return broadcastGuardErr(ctx, tx, id)
		}
		return nil
	})
	if err != nil {
		return wrapErr(op, err)
	}
	return nil
}

// TransitionBroadcast меняет статус рассылки, если текущий входит в from.
func (s *Storage) TransitionBroadcast(ctx context.Context, id int64, from []string, to string) (*models.Broadcast, error) {
	const op = "storage.TransitionBroadcast"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE broadcasts
				  SET status = $3,
				      finished_at = CASE WHEN $3 IN ('completed', 'failed', 'cancelled') THEN NOW() ELSE finished_at END
				  WHERE id = $1 AND status = ANY($2::text[])`
		res, err := tx.ExecContext(ctx, query, id, from, to)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return broadcastGuardErr(ctx, tx, id)
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return s.GetBroadcast(ctx, id)
}

// ScheduleBroadcast назначает время отправки рассылки.
func (s *Storage) ScheduleBroadcast(ctx context.Context, id int64, at time.Time) (*models.Broadcast, error) {
	const op = "storage.ScheduleBroadcast"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE broadcasts SET status = 'scheduled', scheduled_at = $2
			WHERE id = $1 AND status IN ('draft', 'scheduled')`, id, at)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return broadcastGuardErr(ctx, tx, id)
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return s.GetBroadcast(ctx, id)
}

// StartBroadcast переводит рассылку в sending, фиксирует число получателей
// и создаёт записи доставки. Пустая аудитория сразу завершает рассылку.
func (s *Storage) StartBroadcast(ctx context.Context, id int64, recipients []int64) ([]*models.BroadcastMessage, error) {
	const op = "storage.StartBroadcast"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var messages []*models.BroadcastMessage
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		status := models.BroadcastStatusSending
		if len(recipients) == 0 {
			status = models.BroadcastStatusCompleted
		}
		query := `UPDATE broadcasts
				  SET status = $2, total_recipients = $3, sent_count = 0, failed_count = 0, started_at = NOW(),
				      finished_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE NULL END
				  WHERE id = $1 AND status IN ('draft', 'scheduled')`
		res, err := tx.ExecContext(ctx, query, id, status, len(recipients))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return broadcastGuardErr(ctx, tx, id)
		}
		if len(recipients) == 0 {
			return nil
		}

		rows, err := tx.QueryContext(ctx, `INSERT INTO broadcast_messages (broadcast_id, user_id, status)
			SELECT $1, unnest($2::bigint[]), 'pending'
			RETURNING id, broadcast_id, user_id, status`, id, recipients)
		if err != nil {
			return err
		}
		defer func() {
			_ = rows.Close()
		}()
		for rows.Next() {
			var m models.BroadcastMessage
			if err := rows.Scan(&m.ID, &m.BroadcastID, &m.UserID, &m.Status); err != nil {
				return err
			}
			messages = append(messages, &m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return messages, nil
}

// RecordDelivery фиксирует результат доставки одному получателю и обновляет счётчики.
// Повторная обработка того же сообщения игнорируется (возвращает false).
// Счётчики не превышают total_recipients. Когда все получатели обработаны,
// рассылка в статусе sending становится completed.
func (s *Storage) RecordDelivery(ctx context.Context, messageID int64, sent bool, errText string) (bool, error) {
	const op = "storage.RecordDelivery"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	status := models.MessageStatusFailed
	var errVal sql.NullString
	if sent {
		status = models.MessageStatusSent
	} else {
		errVal = sql.NullString{String: errText, Valid: true}
	}

	var recorded bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var broadcastID int64
		err := tx.QueryRowContext(ctx, `UPDATE broadcast_messages
			SET status = $2, error = $3, sent_at = CASE WHEN $2 = 'sent' THEN NOW() ELSE NULL END
			WHERE id = $1 AND status = 'pending'
			RETURNING broadcast_id`, messageID, status, errVal).Scan(&broadcastID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		var sentCount, failedCount, total int
		err = tx.QueryRowContext(ctx, `UPDATE broadcasts
			SET sent_count = sent_count + CASE WHEN $2 THEN 1 ELSE 0 END,
			    failed_count = failed_count + CASE WHEN $2 THEN 0 ELSE 1 END
			WHERE id = $1 AND sent_count + failed_count < total_recipients
			RETURNING sent_count, failed_count, total_recipients`, broadcastID, sent).Scan(&sentCount, &failedCount, &total)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		recorded = true

		if sentCount+failedCount == total {
			_, err = tx.ExecContext(ctx, `UPDATE broadcasts SET status = 'completed', finished_at = NOW()
				WHERE id = $1 AND status = 'sending'`, broadcastID)
		}
		return err
	})
	if err != nil {
		return false, wrapErr(op, err)
	}
	return recorded, nil
}

// GetBroadcastMessage возвращает запись доставки.
func (s *Storage) GetBroadcastMessage(ctx context.Context, id int64) (*models.BroadcastMessage, error) {
	const op = "storage.GetBroadcastMessage"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var m models.BroadcastMessage
	var errText sql.NullString
	var sentAt sql.NullTime
	err := s.DB.QueryRowContext(ctx, `SELECT id, broadcast_id, user_id, status, error, sent_at
		FROM broadcast_messages WHERE id = $1`, id).Scan(&m.ID, &m.BroadcastID, &m.UserID, &m.Status, &errText, &sentAt)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	m.Error = stringPtr(errText)
	m.SentAt = timePtr(sentAt)
	return &m, nil
}

// BroadcastStats возвращает счётчики доставки.
func (s *Storage) BroadcastStats(ctx context.Context, id int64) (*models.BroadcastStats, error) {
	const op = "storage.BroadcastStats"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	st := models.BroadcastStats{BroadcastID: id}
	err := s.DB.QueryRowContext(ctx, `SELECT status, total_recipients, sent_count, failed_count
		FROM broadcasts WHERE id = $1`, id).Scan(&st.Status, &st.Total, &st.Sent, &st.Failed)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	st.Pending = st.Total - st.Sent - st.Failed
	return &st, nil
}

// DueBroadcasts возвращает запланированные рассылки, время которых наступило.
func (s *Storage) DueBroadcasts(ctx context.Context) ([]*models.Broadcast, error) {
	const op = "storage.DueBroadcasts"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT `+broadcastColumns+` FROM broadcasts
		WHERE status = 'scheduled' AND scheduled_at <= NOW() ORDER BY scheduled_at`)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	var result []*models.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			_ = rows.Close()
			return nil, wrapErr(op, err)
		}
		result = append(result, b)
	}
	if err := rows.Close(); err != nil {
		return nil, wrapErr(op, err)
	}
	for _, b := range result {
		if err := s.loadBroadcastTargets(ctx, b); err != nil {
			return nil, wrapErr(op, err)
		}
	}
	return result, nil
}
