package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

const channelColumns = `id, title, username, created_at`

func scanChannel(row rowScanner) (*models.Channel, error) {
	var c models.Channel
	var username sql.NullString
	if err := row.Scan(&c.ID, &c.Title, &username, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Username = stringPtr(username)
	return &c, nil
}

// CreateChannel добавляет канал.
func (s *Storage) CreateChannel(ctx context.Context, ch models.Channel) (*models.Channel, error) {
	const op = "storage.CreateChannel"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO channels (id, title, username) VALUES ($1, $2, $3)
			  RETURNING ` + channelColumns
	res, err := scanChannel(s.DB.QueryRowContext(ctx, query, ch.ID, ch.Title, nullString(ch.Username)))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// GetChannel возвращает канал по chat id.
func (s *Storage) GetChannel(ctx context.Context, id int64) (*models.Channel, error) {
	const op = "storage.GetChannel"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := scanChannel(s.DB.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// ListChannels возвращает страницу каналов.
func (s *Storage) ListChannels(ctx context.Context, p models.Pagination) ([]*models.Channel, int, error) {
	const op = "storage.ListChannels"
	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels`).Scan(&total); err != nil {
		return nil, 0, wrapErr(op, err)
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+channelColumns+` FROM channels
		ORDER BY title, id LIMIT $1 OFFSET $2`, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, wrapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, 0, wrapErr(op, err)
		}
		result = append(result, c)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, wrapErr(op, err)
	}
	return result, total, nil
}

// UpdateChannel обновляет название и handle канала.
func (s *Storage) UpdateChannel(ctx context.Context, ch models.Channel) (*models.Channel, error) {
	const op = "storage.UpdateChannel"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE channels SET title = $2, username = $3 WHERE id = $1 RETURNING ` + channelColumns
	res, err := scanChannel(s.DB.QueryRowContext(ctx, query, ch.ID, ch.Title, nullString(ch.Username)))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return res, nil
}

// DeleteChannel удаляет канал, если на него не ссылаются продукты.
func (s *Storage) DeleteChannel(ctx context.Context, id int64) error {
	const op = "storage.DeleteChannel"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var locked int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM channels WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			return err
		}
		var products int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE channel_id = $1`, id).Scan(&products); err != nil {
			return err
		}
		if products > 0 {
			return fmt.Errorf("%w: channel is used by %d products", apperr.ErrHasActiveDependents, products)
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return wrapErr(op, err)
	}
	return nil
}
