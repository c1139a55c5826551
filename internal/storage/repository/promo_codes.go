package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

const promoCodeColumns = `id, code, kind, value, product_id, starts_at, ends_at, max_uses, used_count, is_active, created_at`

func scanPromoCode(row rowScanner) (*models.PromoCode, error) {
	var p models.PromoCode
	var productID sql.NullInt64
	var startsAt, endsAt sql.NullTime
	var maxUses sql.NullInt32
	if err := row.Scan(&p.ID, &p.Code, &p.Kind, &p.Value, &productID, &startsAt, &endsAt, &maxUses,
		&p.UsedCount, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ProductID = int64Ptr(productID)
	p.StartsAt = timePtr(startsAt)
	p.EndsAt = timePtr(endsAt)
	p.MaxUses = intPtr(maxUses)
	return &p, nil
}

// CreatePromoCode создаёт промокод. Код хранится в верхнем регистре.
func (s *Storage) CreatePromoCode(ctx context.Context, p models.PromoCode) (*models.PromoCode, error) {
	const op = "storage.CreatePromoCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO promo_codes (code, kind, value, product_id, starts_at, ends_at, max_uses, is_active)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  RETURNING ` + promoCodeColumns
	res, err := scanPromoCode(s.DB.QueryRowContext(ctx, query, strings.ToUpper(p.Code), p.Kind, p.Value,
		nullInt64(p.ProductID), nullTime(p.StartsAt), nullTime(p.EndsAt), nullInt(p.MaxUses), p.IsActive))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// GetPromoCode возвращает промокод по id.
func (s *Storage) GetPromoCode(ctx context.Context, id int64) (*models.PromoCode, error) {
	const op = "storage.GetPromoCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := scanPromoCode(s.DB.QueryRowContext(ctx, `SELECT `+promoCodeColumns+` FROM promo_codes WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// GetPromoCodeByCode ищет промокод без учёта регистра.
func (s *Storage) GetPromoCodeByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	const op = "storage.GetPromoCodeByCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := scanPromoCode(s.DB.QueryRowContext(ctx,
		`SELECT `+promoCodeColumns+` FROM promo_codes WHERE code = $1`, strings.ToUpper(strings.TrimSpace(code))))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// ListPromoCodes возвращает страницу промокодов.
func (s *Storage) ListPromoCodes(ctx context.Context, filter models.PromoCodeFilter) ([]*models.PromoCode, int, error) {
	const op = "storage.ListPromoCodes"
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
			    AND ($2::boolean IS NULL OR is_active = $2)
			    AND ($3::text = '' OR code ILIKE '%' || $3 || '%')`
	args := []any{nullInt64(filter.ProductID), isActive, filter.Search}

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM promo_codes `+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr(op, err)
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+promoCodeColumns+` FROM promo_codes `+where+`
		ORDER BY id DESC LIMIT $4 OFFSET $5`, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, wrapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.PromoCode
	for rows.Next() {
		p, err := scanPromoCode(rows)
		if err != nil {
			return nil, 0, wrapErr(op, err)
		}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, wrapErr(op, err)
	}
	return result, total, nil
}

// UpdatePromoCode обновляет промокод. Счётчик использования не меняется.
func (s *Storage) UpdatePromoCode(ctx context.Context, p models.PromoCode) (*models.PromoCode, error) {
	const op = "storage.UpdatePromoCode"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE promo_codes
			  SET code = $2, kind = $3, value = $4, product_id = $5, starts_at = $6, ends_at = $7,
			      max_uses = $8, is_active = $9
			  WHERE id = $1
			  RETURNING ` + promoCodeColumns
	res, err := scanPromoCode(s.DB.QueryRowContext(ctx, query, p.ID, strings.ToUpper(p.Code), p.Kind, p.Value,
		nullInt64(p.ProductID), nullTime(p.StartsAt), nullTime(p.EndsAt), nullInt(p.MaxUses), p.IsActive))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// DeletePromoCode удаляет промокод вместе с историей использования.
func (s *Storage) DeletePromoCode(ctx context.Context, id int64) error {
	const op = "storage.DeletePromoCode"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM promo_codes WHERE id = $1`, id)
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
