package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

const (
	condActiveSub = `EXISTS (SELECT 1 FROM subscriptions s WHERE s.user_id = u.id AND s.status = 'active')`
	condNoActive  = `NOT ` + condActiveSub
	condTrial     = `EXISTS (SELECT 1 FROM demo_accesses d WHERE d.user_id = u.id AND d.is_active AND d.expires_at > NOW())`
)

// whereBuilder собирает условия WHERE с позиционными параметрами.
type whereBuilder struct {
	conds []string
	args  []any
}

func (b *whereBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *whereBuilder) add(cond string) {
	b.conds = append(b.conds, cond)
}

func (b *whereBuilder) String() string {
	if len(b.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(b.conds, "\n  AND ")
}

// audienceWhere переводит критерии аудитории в условия над таблицей users u.
func audienceWhere(c models.AudienceCriteria) (*whereBuilder, error) {
	b := &whereBuilder{}

	switch c.TargetType {
	case models.TargetAllUsers, models.TargetCustomFilter:
	case models.TargetActiveSubscriptions:
		b.add(condActiveSub)
	case models.TargetExpiredSubscriptions:
		b.add(`EXISTS (SELECT 1 FROM subscriptions s WHERE s.user_id = u.id AND s.status = 'expired')`)
		b.add(condNoActive)
	case models.TargetTrialUsers:
		b.add(condTrial)
	case models.TargetProductSpecific:
		b.add(`EXISTS (SELECT 1 FROM subscriptions s WHERE s.user_id = u.id AND s.status = 'active' AND s.product_id = ` +
			b.arg(c.ProductID) + `)`)
	case models.TargetChannelSpecific:
		b.add(`EXISTS (SELECT 1 FROM subscriptions s WHERE s.user_id = u.id AND s.status = 'active' AND s.channel_id = ` +
			b.arg(c.ChannelID) + `)`)
	default:
		return nil, fmt.Errorf("%w: unknown target type %q", apperr.ErrValidation, c.TargetType)
	}

	for _, p := range c.Predicates {
		switch p.Type {
		case models.FilterRegistrationDate:
			if p.From != nil {
				b.add(`u.created_at >= ` + b.arg(*p.From))
			}
			if p.To != nil {
				b.add(`u.created_at < ` + b.arg(*p.To))
			}
		case models.FilterSubscriptionStatus:
			switch p.Status {
			case models.SubscriptionStatusActive:
				b.add(condActiveSub)
			case models.SubscriptionStatusExpired, models.SubscriptionStatusCancelled:
				b.add(`EXISTS (SELECT 1 FROM subscriptions s WHERE s.user_id = u.id AND s.status = ` + b.arg(p.Status) + `)`)
				b.add(condNoActive)
			case "trial":
				b.add(condTrial)
			case "none":
				b.add(`NOT EXISTS (SELECT 1 FROM subscriptions s WHERE s.user_id = u.id)`)
				b.add(`NOT ` + condTrial)
			default:
				return nil, fmt.Errorf("%w: unknown subscription status %q", apperr.ErrValidation, p.Status)
			}
		case models.FilterProduct:
			b.add(`EXISTS (SELECT 1 FROM subscriptions s WHERE s.user_id = u.id AND s.product_id = ` + b.arg(p.ProductID) + `)`)
		case models.FilterChannel:
			b.add(`EXISTS (SELECT 1 FROM subscriptions s WHERE s.user_id = u.id AND s.channel_id = ` + b.arg(p.ChannelID) + `)`)
		}
	}

	if len(c.ExcludedUserIDs) > 0 {
		b.add(`u.id <> ALL(` + b.arg(c.ExcludedUserIDs) + `::bigint[])`)
	}
	return b, nil
}

// PreviewAudience возвращает до limit получателей, новые первыми, и общее количество.
// Для каждого получателя определяется лучший известный статус:
// активная подписка, затем активный пробный доступ, затем истёкшая подписка.
func (s *Storage) PreviewAudience(ctx context.Context, c models.AudienceCriteria, limit int) ([]models.AudienceMember, int, error) {
	const op = "storage.PreviewAudience"
	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	b, err := audienceWhere(c)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users u `+b.String(), b.args...).Scan(&total); err != nil {
		return nil, 0, wrapErr(op, err)
	}

	query := `SELECT u.id, u.first_name, u.last_name, u.username, u.created_at,
			      CASE WHEN a.id IS NOT NULL THEN 'active'
			           WHEN d.id IS NOT NULL THEN 'trial'
			           WHEN e.id IS NOT NULL THEN 'expired'
			           ELSE 'none' END,
			      COALESCE(a.product_name, d.product_name, e.product_name),
			      COALESCE(a.channel_name, d.channel_name, e.channel_name)
			  FROM users u
			  LEFT JOIN LATERAL (
			      SELECT s.id, p.name AS product_name, c.title AS channel_name
			      FROM subscriptions s
			      JOIN products p ON p.id = s.product_id
			      JOIN channels c ON c.id = s.channel_id
			      WHERE s.user_id = u.id AND s.status = 'active'
			      ORDER BY s.expires_at DESC LIMIT 1
			  ) a ON TRUE
			  LEFT JOIN LATERAL (
			      SELECT da.id, p.name AS product_name, c.title AS channel_name
			      FROM demo_accesses da
			      JOIN products p ON p.id = da.product_id
			      JOIN channels c ON c.id = p.channel_id
			      WHERE da.user_id = u.id AND da.is_active AND da.expires_at > NOW()
			      ORDER BY da.expires_at DESC LIMIT 1
			  ) d ON TRUE
			  LEFT JOIN LATERAL (
			      SELECT s.id, p.name AS product_name, c.title AS channel_name
			      FROM subscriptions s
			      JOIN products p ON p.id = s.product_id
			      JOIN channels c ON c.id = s.channel_id
			      WHERE s.user_id = u.id AND s.status <> 'active'
			      ORDER BY s.expires_at DESC LIMIT 1
			  ) e ON TRUE
			  ` + b.String() + `
			  ORDER BY u.created_at DESC, u.id DESC
			  LIMIT ` + b.arg(limit)
	rows, err := s.DB.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, 0, wrapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]models.AudienceMember, 0, limit)
	for rows.Next() {
		var m models.AudienceMember
		var firstName, lastName string
		var username, productName, channelName sql.NullString
		if err := rows.Scan(&m.UserID, &firstName, &lastName, &username, &m.RegisteredAt,
			&m.Status, &productName, &channelName); err != nil {
			return nil, 0, wrapErr(op, err)
		}
		u := models.User{FirstName: firstName, LastName: lastName, Username: stringPtr(username)}
		m.DisplayName = u.DisplayName()
		m.Username = u.Username
		m.ProductName = stringPtr(productName)
		m.ChannelName = stringPtr(channelName)
		result = append(result, m)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, wrapErr(op, err)
	}
	return result, total, nil
}

// AudienceRecipients возвращает идентификаторы всех получателей.
func (s *Storage) AudienceRecipients(ctx context.Context, c models.AudienceCriteria) ([]int64, error) {
	const op = "storage.AudienceRecipients"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	b, err := audienceWhere(c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT u.id FROM users u `+b.String()+`
		ORDER BY u.created_at DESC, u.id DESC`, b.args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr(op, err)
		}
		result = append(result, id)
	}
	if err = rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return result, nil
}
