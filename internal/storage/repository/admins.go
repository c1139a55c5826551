package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// IsAdmin проверяет наличие записи администратора.
func (s *Storage) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	const op = "storage.IsAdmin"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM admins WHERE user_id = $1)`
	if err := s.DB.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, wrapErr(op, err)
	}
	return exists, nil
}

// AddAdmin выдаёт права администратора, создавая пользователя при необходимости.
func (s *Storage) AddAdmin(ctx context.Context, userID int64) error {
	const op = "storage.AddAdmin"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO admins (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
		return err
	})
	if err != nil {
		return wrapErr(op, err)
	}
	return nil
}

// ProvisionFirstAdmin делает пользователя администратором, только если администраторов ещё нет.
// Возвращает true, если запись создана.
func (s *Storage) ProvisionFirstAdmin(ctx context.Context, userID int64) (bool, error) {
	const op = "storage.ProvisionFirstAdmin"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var created bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `LOCK TABLE admins IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO admins (user_id)
			SELECT $1 WHERE NOT EXISTS (SELECT 1 FROM admins)`, userID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n == 1
		return nil
	})
	if err != nil {
		return false, wrapErr(op, err)
	}
	return created, nil
}

// RemoveAdmin отзывает права администратора.
func (s *Storage) RemoveAdmin(ctx context.Context, userID int64) error {
	const op = "storage.RemoveAdmin"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM admins WHERE user_id = $1`, userID)
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

// ListAdmins возвращает всех администраторов с профилями.
func (s *Storage) ListAdmins(ctx context.Context) ([]*models.Admin, error) {
	const op = "storage.ListAdmins"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT a.created_at, ` + userColumns + `
			  FROM admins a
			  JOIN users u ON u.id = a.user_id
			  ORDER BY a.created_at`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Admin
	for rows.Next() {
		var a models.Admin
		var u models.User
		var username, lang sql.NullString
		if err := rows.Scan(&a.CreatedAt, &u.ID, &u.FirstName, &u.LastName, &username, &lang, &u.CreatedAt); err != nil {
			return nil, wrapErr(op, err)
		}
		u.Username = stringPtr(username)
		u.LanguageCode = stringPtr(lang)
		a.UserID = u.ID
		a.User = &u
		result = append(result, &a)
	}
	if err = rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return result, nil
}
