package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

const productColumns = `p.id, p.name, p.description, p.price, p.discounted_price, p.currency, p.period_days,
	p.is_active, p.allow_demo, p.demo_days, p.channel_id, COALESCE(c.title, ''), p.created_at, p.updated_at`

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	var discounted decimal.NullDecimal
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &discounted, &p.Currency, &p.PeriodDays,
		&p.IsActive, &p.AllowDemo, &p.DemoDays, &p.ChannelID, &p.ChannelName, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if discounted.Valid {
		p.DiscountedPrice = &discounted.Decimal
	}
	return &p, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// CreateProduct создаёт продукт.
func (s *Storage) CreateProduct(ctx context.Context, p models.Product) (*models.Product, error) {
	const op = "storage.CreateProduct"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var id int64
	query := `INSERT INTO products (name, description, price, discounted_price, currency, period_days,
			      is_active, allow_demo, demo_days, channel_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  RETURNING id`
	if err := s.DB.QueryRowContext(ctx, query,
		p.Name, p.Description, p.Price, nullDecimal(p.DiscountedPrice), p.Currency, p.PeriodDays,
		p.IsActive, p.AllowDemo, p.DemoDays, p.ChannelID).Scan(&id); err != nil {
		return nil, wrapErr(op, err)
	}
	return s.GetProduct(ctx, id)
}

// GetProduct возвращает продукт с названием канала.
func (s *Storage) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	const op = "storage.GetProduct"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + productColumns + `
			  FROM products p
			  LEFT JOIN channels c ON c.id = p.channel_id
			  WHERE p.id = $1`
	res, err := scanProduct(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// ListProducts возвращает страницу продуктов по фильтру.
func (s *Storage) ListProducts(ctx context.Context, filter models.ProductFilter) ([]*models.Product, int, error) {
	const op = "storage.ListProducts"
	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var isActive sql.NullBool
	if filter.IsActive != nil {
		isActive = sql.NullBool{Bool: *filter.IsActive, Valid: true}
	}
	where := `WHERE ($1::boolean IS NULL OR p.is_active = $1)
			    AND ($2::bigint IS NULL OR p.channel_id = $2)
			    AND ($3::text = '' OR p.name ILIKE '%' || $3 || '%')`
	args := []any{isActive, nullInt64(filter.ChannelID), filter.Search}

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM products p `+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapErr(op, err)
	}

	query := `SELECT ` + productColumns + `
			  FROM products p
			  LEFT JOIN channels c ON c.id = p.channel_id
			  ` + where + `
			  ORDER BY p.id
			  LIMIT $4 OFFSET $5`
	rows, err := s.DB.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, wrapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
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

// UpdateProduct обновляет продукт целиком.
func (s *Storage) UpdateProduct(ctx context.Context, p models.Product) (*models.Product, error) {
	const op = "storage.UpdateProduct"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE products
			  SET name = $2, description = $3, price = $4, discounted_price = $5, currency = $6,
			      period_days = $7, is_active = $8, allow_demo = $9, demo_days = $10, channel_id = $11,
			      updated_at = NOW()
			  WHERE id = $1`
	res, err := s.DB.ExecContext(ctx, query, p.ID,
		p.Name, p.Description, p.Price, nullDecimal(p.DiscountedPrice), p.Currency,
		p.PeriodDays, p.IsActive, p.AllowDemo, p.DemoDays, p.ChannelID)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, wrapErr(op, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return s.GetProduct(ctx, p.ID)
}

// DeleteProduct удаляет продукт вместе со скидками, промокодами, пробными доступами
// и неактивными подписками. При наличии активных подписок возвращает ErrHasActiveDependents.
// Платежи сохраняются, ссылка на продукт обнуляется.
func (s *Storage) DeleteProduct(ctx context.Context, id int64) error {
	const op = "storage.DeleteProduct"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var locked int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			return err
		}
		var active int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM subscriptions WHERE product_id = $1 AND status = 'active'`, id).Scan(&active); err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("%w: %d active subscriptions", apperr.ErrHasActiveDependents, active)
		}
		for _, q := range []string{
			`DELETE FROM discounts WHERE product_id = $1`,
			`DELETE FROM promo_codes WHERE product_id = $1`,
			`DELETE FROM demo_accesses WHERE product_id = $1`,
			`DELETE FROM subscriptions WHERE product_id = $1 AND status <> 'active'`,
			`DELETE FROM products WHERE id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapErr(op, err)
	}
	return nil
}
