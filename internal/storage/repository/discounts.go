package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

const discountColumns = `id, name, kind, value, product_id, starts_at, ends_at, max_uses, used_count, is_active, created_at`

func scanDiscount(row rowScanner) (*models.Discount, error) {
	var d models.Discount
	var productID sql.NullInt64
	var startsAt, endsAt sql.NullTime
	var maxUses sql.NullInt32
	if err := row.Scan(&d.ID, &d.Name, &d.Kind, &d.Value, &productID, &startsAt, &endsAt, &maxUses,
		&d.UsedCount, &d.IsActive, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.ProductID = int64Ptr(productID)
	d.StartsAt = timePtr(startsAt)
	d.EndsAt = timePtr(endsAt)
	d.MaxUses = intPtr(maxUses)
	return &d, nil
}

func (s *Storage) queryDiscounts(ctx context.Context, query string, args ...any) ([]*models.Discount, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Discount
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// CreateDiscount создаёт скидку.
func (s *Storage) CreateDiscount(ctx context.Context, d models.Discount) (*models.Discount, error) {
	const op = "storage.CreateDiscount"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO discounts (name, kind, value, product_id, starts_at, ends_at, max_uses, is_active)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  RETURNING ` + discountColumns
	res, err := scanDiscount(s.DB.QueryRowContext(ctx, query, d.Name, d.Kind, d.Value, nullInt64(d.ProductID),
		nullTime(d.StartsAt), nullTime(d.EndsAt), nullInt(d.MaxUses), d.IsActive))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// GetDiscount возвращает скидку по id.
func (s *Storage) GetDiscount(ctx context.Context, id int64) (*models.Discount, error) {
	const op = "storage.GetDiscount"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := scanDiscount(s.DB.QueryRowContext(ctx, `SELECT `+discountColumns+` FROM discounts WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// ListDiscounts возвращает страницу скидок.
func (s *Storage) ListDiscounts(ctx context.Context, filter models.DiscountFilter) ([]*models.Discount, int, error) {
	const op = "storage.ListDiscounts"
	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var isActive sql.NullBool
	if filter.IsActive != nil {
		isActive = sql.NullBool{Bool: *filter.IsActive, Valid: true}
	}
	where := `WHERE ($1::bigint IS NULL OR product_id = $1)
			    AND ($2::boolean IS NULL OR is_active = $2)`
	args := []any{nullInt64(filter.ProductID), isActive}

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM discounts `+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr(op, err)
	}
	query := `SELECT ` + discountColumns + ` FROM discounts ` + where + `
			  ORDER BY id DESC LIMIT $3 OFFSET $4`
	res, err := s.queryDiscounts(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, wrapErr(op, err)
	}
	return res, total, nil
}

// ListApplicableDiscounts возвращает действующие сейчас скидки для продукта,
// включая скидки без привязки к продукту.
func (s *Storage) ListApplicableDiscounts(ctx context.Context, productID int64) ([]*models.Discount, error) {
	const op = "storage.ListApplicableDiscounts"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + discountColumns + `
			  FROM discounts
			  WHERE is_active
			    AND (product_id IS NULL OR product_id = $1)
			    AND (starts_at IS NULL OR starts_at <= NOW())
			    AND (ends_at IS NULL OR ends_at > NOW())
			    AND (max_uses IS NULL OR used_count < max_uses)`
	res, err := s.queryDiscounts(ctx, query, productID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// UpdateDiscount обновляет скидку. Счётчик использования не меняется.
func (s *Storage) UpdateDiscount(ctx context.Context, d models.Discount) (*models.Discount, error) {
	const op = "storage.UpdateDiscount"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE discounts
			  SET name = $2, kind = $3, value = $4, product_id = $5, starts_at = $6, ends_at = $7,
			      max_uses = $8, is_active = $9
			  WHERE id = $1
			  RETURNING ` + discountColumns
	res, err := scanDiscount(s.DB.QueryRowContext(ctx, query, d.ID, d.Name, d.Kind, d.Value, nullInt64(d.ProductID),
		nullTime(d.StartsAt), nullTime(d.EndsAt), nullInt(d.MaxUses), d.IsActive))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// DeleteDiscount удаляет скидку вместе с историей использования.
func (s *Storage) DeleteDiscount(ctx context.Context, id int64) error {
	const op = "storage.DeleteDiscount"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM discounts WHERE id = $1`, id)
	if err != nil {
		return wrapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return nil
}
