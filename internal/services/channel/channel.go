// Package channel управляет платными каналами Telegram.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// Repository хранилище каналов.
type Repository interface {
	CreateChannel(ctx context.Context, ch models.Channel) (*models.Channel, error)
	GetChannel(ctx context.Context, id int64) (*models.Channel, error)
	ListChannels(ctx context.Context, p models.Pagination) ([]*models.Channel, int, error)
	UpdateChannel(ctx context.Context, ch models.Channel) (*models.Channel, error)
	DeleteChannel(ctx context.Context, id int64) error
}

// CatalogInvalidator сбрасывает кэш витрины, где показываются названия каналов.
type CatalogInvalidator interface {
	InvalidateCatalog(ctx context.Context)
}

// Service бизнес-логика каналов.
type Service struct {
	repo    Repository
	catalog CatalogInvalidator
	log     *slog.Logger
}

// New создаёт Service.
func New(repo Repository, catalog CatalogInvalidator, log *slog.Logger) *Service {
	return &Service{repo: repo, catalog: catalog, log: log}
}

func fromDummy(req models.DummyChannel) models.Channel {
	ch := models.Channel{ID: req.ID, Title: strings.TrimSpace(req.Title)}
	if u := strings.TrimPrefix(strings.TrimSpace(req.Username), "@"); u != "" {
		ch.Username = &u
	}
	return ch
}

// Create регистрирует канал. id совпадает с chat id в Telegram.
func (s *Service) Create(ctx context.Context, req models.DummyChannel) (*models.Channel, error) {
	const op = "channel.Create"
	res, err := s.repo.CreateChannel(ctx, fromDummy(req))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("channel created", slog.String("op", op), slog.Int64("id", res.ID))
	return res, nil
}

// Get возвращает канал.
func (s *Service) Get(ctx context.Context, id int64) (*models.Channel, error) {
	res, err := s.repo.GetChannel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("channel.Get: %w", err)
	}
	return res, nil
}

// List возвращает страницу каналов.
func (s *Service) List(ctx context.Context, p models.Pagination) (*models.Page[*models.Channel], error) {
	p = p.Normalize()
	items, total, err := s.repo.ListChannels(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("channel.List: %w", err)
	}
	if items == nil {
		items = []*models.Channel{}
	}
	return &models.Page[*models.Channel]{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}, nil
}

// Update меняет название и handle канала. id из тела запроса игнорируется.
func (s *Service) Update(ctx context.Context, id int64, req models.DummyChannel) (*models.Channel, error) {
	const op = "channel.Update"
	ch := fromDummy(req)
	ch.ID = id
	res, err := s.repo.UpdateChannel(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.catalog.InvalidateCatalog(ctx)
	return res, nil
}

// Delete удаляет канал, если на него не ссылаются продукты.
func (s *Service) Delete(ctx context.Context, id int64) error {
	const op = "channel.Delete"
	if err := s.repo.DeleteChannel(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("channel deleted", slog.String("op", op), slog.Int64("id", id))
	return nil
}
