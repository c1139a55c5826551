package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/channel-panel/internal/models"
)

const demoColumns = `d.id, d.user_id, d.product_id, p.channel_id, d.started_at, d.expires_at, d.is_active,
	p.name, c.title`

const demoFrom = `FROM demo_accesses d
	JOIN products p ON p.id = d.product_id
	JOIN channels c ON c.id = p.channel_id`

func scanDemo(row rowScanner) (*models.DemoAccess, error) {
	var d models.DemoAccess
	if err := row.Scan(&d.ID, &d.UserID, &d.ProductID, &d.ChannelID, &d.StartedAt, &d.ExpiresAt, &d.IsActive,
		&d.ProductName, &d.ChannelName); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Storage) queryDemos(ctx context.Context, query string, args ...any) ([]*models.DemoAccess, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.DemoAccess
	for rows.Next() {
		d, err := scanDemo(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// GetDemoAccess возвращает пробный доступ по id.
func (s *Storage) GetDemoAccess(ctx context.Context, id int64) (*models.DemoAccess, error) {
	const op = "storage.GetDemoAccess"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	d, err := scanDemo(s.DB.QueryRowContext(ctx, `SELECT `+demoColumns+` `+demoFrom+` WHERE d.id = $1`, id))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return d, nil
}

// HasDemoAccess проверяет, выдавался ли пользователю пробный доступ к продукту, активный или нет.
func (s *Storage) HasDemoAccess(ctx context.Context, userID, productID int64) (bool, error) {
	const op = "storage.HasDemoAccess"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM demo_accesses WHERE user_id = $1 AND product_id = $2)`
	if err := s.DB.QueryRowContext(ctx, query, userID, productID).Scan(&exists); err != nil {
		return false, wrapErr(op, err)
	}
	return exists, nil
}

// HasActiveDemo проверяет наличие у пользователя любого активного пробного доступа.
func (s *Storage) HasActiveDemo(ctx context.Context, userID int64) (bool, error) {
	const op = "storage.HasActiveDemo"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var exists bool
	query := `SELECT EXISTS (
			      SELECT 1 FROM demo_accesses
			      WHERE user_id = $1 AND is_active AND expires_at > NOW()
			  )`
	if err := s.DB.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, wrapErr(op, err)
	}
	return exists, nil
}

// CreateDemoAccess выдаёт пробный доступ на days дней.
// Повторная выдача для той же пары отклоняется уникальным индексом (ErrConflict).
func (s *Storage) CreateDemoAccess(ctx context.Context, userID, productID int64, days int) (*models.DemoAccess, error) {
	const op = "storage.CreateDemoAccess"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var id int64
	query := `INSERT INTO demo_accesses (user_id, product_id, started_at, expires_at, is_active)
			  VALUES ($1, $2, NOW(), NOW() + make_interval(days => $3::int), TRUE)
			  RETURNING id`
	if err := s.DB.QueryRowContext(ctx, query, userID, productID, days).Scan(&id); err != nil {
		return nil, wrapErr(op, err)
	}
	return s.GetDemoAccess(ctx, id)
}

// ListDemoAccesses возвращает страницу пробных доступов.
func (s *Storage) ListDemoAccesses(ctx context.Context, filter models.DemoAccessFilter) ([]*models.DemoAccess, int, error) {
	const op = "storage.ListDemoAccesses"
	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var isActive sql.NullBool
	if filter.IsActive != nil {
		isActive = sql.NullBool{Bool: *filter.IsActive, Valid: true}
	}
	where := `WHERE ($1::bigint IS NULL OR d.user_id = $1)
			    AND ($2::bigint IS NULL OR d.product_id = $2)
			    AND ($3::boolean IS NULL OR d.is_active = $3)`
	args := []any{nullInt64(filter.UserID), nullInt64(filter.ProductID), isActive}

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM demo_accesses d `+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr(op, err)
	}
	query := `SELECT ` + demoColumns + ` ` + demoFrom + ` ` + where + `
			  ORDER BY d.started_at DESC, d.id DESC
			  LIMIT $4 OFFSET $5`
	res, err := s.queryDemos(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, wrapErr(op, err)
	}
	return res, total, nil
}

// RevokeDemoAccess деактивирует пробный доступ. Запись сохраняется и продолжает блокировать повторную выдачу.
func (s *Storage) RevokeDemoAccess(ctx context.Context, id int64) (*models.DemoAccess, error) {
	const op = "storage.RevokeDemoAccess"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var revoked int64
	query := `UPDATE demo_accesses SET is_active = FALSE, expires_at = LEAST(expires_at, NOW())
			  WHERE id = $1 RETURNING id`
	if err := s.DB.QueryRowContext(ctx, query, id).Scan(&revoked); err != nil {
		return nil, wrapErr(op, err)
	}
	return s.GetDemoAccess(ctx, revoked)
}

// ExpireDueDemoAccesses деактивирует пробные доступы с истёкшим сроком.
func (s *Storage) ExpireDueDemoAccesses(ctx context.Context) ([]*models.DemoAccess, error) {
	const op = "storage.ExpireDueDemoAccesses"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `WITH upd AS (
			      UPDATE demo_accesses SET is_active = FALSE
			      WHERE is_active AND expires_at <= NOW()
			      RETURNING *
			  )
			  SELECT ` + demoColumns + `
			  FROM upd d
			  JOIN products p ON p.id = d.product_id
			  JOIN channels c ON c.id = p.channel_id`
	res, err := s.queryDemos(ctx, query)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}
