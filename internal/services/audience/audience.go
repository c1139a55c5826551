// Package audience переводит целевую аудиторию рассылки в критерии выборки
// и возвращает превью или полный список получателей.
package audience

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Repository выполняет выборку пользователей по критериям.
type Repository interface {
	PreviewAudience(ctx context.Context, c models.AudienceCriteria, limit int) ([]models.AudienceMember, int, error)
	AudienceRecipients(ctx context.Context, c models.AudienceCriteria) ([]int64, error)
}

// Resolver вычисляет аудиторию рассылки.
type Resolver struct {
	repo Repository
	log  *slog.Logger
}

// New создаёт Resolver.
func New(repo Repository, log *slog.Logger) *Resolver {
	return &Resolver{repo: repo, log: log}
}

// Criteria проверяет запрос и собирает критерии. Фильтры неизвестных типов пропускаются.
func (r *Resolver) Criteria(req models.AudienceRequest) (models.AudienceCriteria, error) {
	const op = "audience.Criteria"

	c := models.AudienceCriteria{
		TargetType:      req.TargetType,
		ExcludedUserIDs: []int64(req.ExcludedUserIDs),
	}

	switch req.TargetType {
	case models.TargetAllUsers, models.TargetActiveSubscriptions, models.TargetExpiredSubscriptions,
		models.TargetTrialUsers, models.TargetCustomFilter, models.TargetProductSpecific, models.TargetChannelSpecific:
	default:
		return c, fmt.Errorf("%s: %w: unknown target type %q", op, apperr.ErrValidation, req.TargetType)
	}

	var productSeen, channelSeen bool
	for _, f := range req.Filters {
		p, ok, err := parseFilter(f)
		if err != nil {
			return c, fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			r.log.Warn("unknown audience filter ignored", slog.String("op", op), slog.String("type", f.Type))
			continue
		}
		if p.Type == models.FilterProduct && !productSeen {
			productSeen = true
			c.ProductID = p.ProductID
		}
		if p.Type == models.FilterChannel && !channelSeen {
			channelSeen = true
			c.ChannelID = p.ChannelID
		}
		c.Predicates = append(c.Predicates, p)
	}

	if req.TargetType == models.TargetProductSpecific && !productSeen {
		return c, fmt.Errorf("%s: %w: %s requires a PRODUCT filter", op, apperr.ErrValidation, req.TargetType)
	}
	if req.TargetType == models.TargetChannelSpecific && !channelSeen {
		return c, fmt.Errorf("%s: %w: %s requires a CHANNEL filter", op, apperr.ErrValidation, req.TargetType)
	}
	return c, nil
}

// parseFilter разбирает значение фильтра. ok=false для неизвестного типа.
func parseFilter(f models.BroadcastFilter) (models.AudiencePredicate, bool, error) {
	p := models.AudiencePredicate{Type: f.Type}
	value := strings.TrimSpace(f.Value)

	switch f.Type {
	case models.FilterRegistrationDate:
		from, to, err := parseRange(value)
		if err != nil {
			return p, false, err
		}
		p.From, p.To = from, to
	case models.FilterSubscriptionStatus:
		p.Status = strings.ToLower(value)
		switch p.Status {
		case models.SubscriptionStatusActive, models.SubscriptionStatusExpired, models.SubscriptionStatusCancelled,
			"trial", "none":
		default:
			return p, false, fmt.Errorf("%w: unknown subscription status %q", apperr.ErrValidation, f.Value)
		}
	case models.FilterProduct:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return p, false, fmt.Errorf("%w: invalid product id %q", apperr.ErrValidation, f.Value)
		}
		p.ProductID = id
	case models.FilterChannel:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return p, false, fmt.Errorf("%w: invalid channel id %q", apperr.ErrValidation, f.Value)
		}
		p.ChannelID = id
	default:
		return p, false, nil
	}
	return p, true, nil
}

// parseRange разбирает "from..to". Любая из границ может отсутствовать.
// Дата без времени в правой границе включает весь день.
func parseRange(value string) (*time.Time, *time.Time, error) {
	fromStr, toStr, found := strings.Cut(value, "..")
	if !found {
		return nil, nil, fmt.Errorf("%w: registration date must be from..to, got %q", apperr.ErrValidation, value)
	}

	var from, to *time.Time
	if s := strings.TrimSpace(fromStr); s != "" {
		t, _, err := parseDate(s)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if s := strings.TrimSpace(toStr); s != "" {
		t, dateOnly, err := parseDate(s)
		if err != nil {
			return nil, nil, err
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		to = &t
	}
	if from != nil && to != nil && !to.After(*from) {
		return nil, nil, fmt.Errorf("%w: registration date range is empty", apperr.ErrValidation)
	}
	return from, to, nil
}

func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: invalid date %q", apperr.ErrValidation, s)
	}
	return t, true, nil
}

// Preview возвращает ограниченный список получателей и общее количество.
func (r *Resolver) Preview(ctx context.Context, req models.AudienceRequest) (*models.AudiencePreview, error) {
	const op = "audience.Preview"

	c, err := r.Criteria(req)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = models.DefaultPreviewLimit
	}
	if limit > models.MaxPreviewLimit {
		limit = models.MaxPreviewLimit
	}

	members, total, err := r.repo.PreviewAudience(ctx, c, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if members == nil {
		members = []models.AudienceMember{}
	}
	return &models.AudiencePreview{Total: total, Recipients: members}, nil
}

// Recipients возвращает всех получателей аудитории.
func (r *Resolver) Recipients(ctx context.Context, req models.AudienceRequest) ([]int64, error) {
	const op = "audience.Recipients"

	c, err := r.Criteria(req)
	if err != nil {
		return nil, err
	}
	ids, err := r.repo.AudienceRecipients(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}
