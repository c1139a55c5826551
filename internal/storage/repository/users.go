package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

const userColumns = `u.id, u.first_name, u.last_name, u.username, u.language_code, u.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var username, lang sql.NullString
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &username, &lang, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Username = stringPtr(username)
	u.LanguageCode = stringPtr(lang)
	return &u, nil
}

// UpsertUser создаёт пользователя или обновляет его профиль. Дата регистрации не меняется.
func (s *Storage) UpsertUser(ctx context.Context, user models.User) (*models.User, error) {
	const op = "storage.UpsertUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users AS u (id, first_name, last_name, username, language_code)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (id) DO UPDATE
			  SET first_name = EXCLUDED.first_name,
			      last_name = EXCLUDED.last_name,
			      username = EXCLUDED.username,
			      language_code = EXCLUDED.language_code
			  RETURNING ` + userColumns
	u, err := scanUser(s.DB.QueryRowContext(ctx, query,
		user.ID, user.FirstName, user.LastName, nullString(user.Username), nullString(user.LanguageCode)))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return u, nil
}

// EnsureUser создаёт пустую запись пользователя, если её нет.
func (s *Storage) EnsureUser(ctx context.Context, userID int64) error {
	const op = "storage.EnsureUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`
	if _, err := s.DB.ExecContext(ctx, query, userID); err != nil {
		return wrapErr(op, err)
	}
	return nil
}

// GetUser возвращает пользователя по Telegram id.
func (s *Storage) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users u WHERE u.id = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return u, nil
}

// ListUsers возвращает страницу пользователей, новые первыми.
func (s *Storage) ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error) {
	const op = "storage.ListUsers"
	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	where := `WHERE ($1::text = '' OR u.first_name ILIKE '%' || $1 || '%'
			      OR u.last_name ILIKE '%' || $1 || '%'
			      OR u.username ILIKE '%' || $1 || '%'
			      OR u.id::text = $1)`

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users u `+where, filter.Search).Scan(&total); err != nil {
		return nil, 0, wrapErr(op, err)
	}

	query := `SELECT ` + userColumns + ` FROM users u ` + where + `
			  ORDER BY u.created_at DESC, u.id DESC
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, filter.Search, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, wrapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, wrapErr(op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, wrapErr(op, err)
	}
	return result, total, nil
}

// DeleteUser удаляет пользователя. Подписки, пробные доступы и платежи удаляются каскадно.
func (s *Storage) DeleteUser(ctx context.Context, userID int64) error {
	const op = "storage.DeleteUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
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

// CountUserPayments возвращает количество платежей пользователя.
func (s *Storage) CountUserPayments(ctx context.Context, userID int64) (int, error) {
	const op = "storage.CountUserPayments"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, wrapErr(op, err)
	}
	return n, nil
}
