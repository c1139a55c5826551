package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/config"
)

// AdminRepository хранилище записей администраторов.
type AdminRepository interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	AddAdmin(ctx context.Context, userID int64) error
	ProvisionFirstAdmin(ctx context.Context, userID int64) (bool, error)
}

// Authority решает, есть ли у пользователя права администратора.
type Authority struct {
	repo         AdminRepository
	mode         string
	bootstrapIDs map[int64]struct{}
	log          *slog.Logger
}

// NewAuthority создаёт Authority с режимом из конфигурации.
func NewAuthority(repo AdminRepository, cfg config.Auth, log *slog.Logger) *Authority {
	ids := make(map[int64]struct{}, len(cfg.BootstrapAdminIDs))
	for _, id := range cfg.BootstrapAdminIDs {
		ids[id] = struct{}{}
	}
	mode := cfg.Mode
	if mode == "" {
		mode = config.AuthModeStrict
	}
	return &Authority{
		repo:         repo,
		mode:         mode,
		bootstrapIDs: ids,
		log:          log,
	}
}

// IsAdmin проверяет права. В режиме bootstrap_first_caller первый вызывающий при пустой
// таблице администраторов становится администратором. Идентификаторы из bootstrap_admin_ids
// получают права в любом режиме.
func (a *Authority) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	const op = "identity.IsAdmin"
	log := a.log.With(slog.String("op", op), slog.Int64("user_id", userID))

	ok, err := a.repo.IsAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		return true, nil
	}

	if _, known := a.bootstrapIDs[userID]; known {
		if err := a.repo.AddAdmin(ctx, userID); err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		log.Warn("bootstrap admin provisioned from config")
		return true, nil
	}

	if a.mode != config.AuthModeBootstrapFirstCaller {
		return false, nil
	}
	created, err := a.repo.ProvisionFirstAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if created {
		log.Warn("first caller provisioned as admin", slog.String("mode", a.mode))
	}
	return created, nil
}

// Require возвращает apperr.ErrForbidden, если пользователь не администратор.
func (a *Authority) Require(ctx context.Context, userID int64) error {
	ok, err := a.IsAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("identity.Require: %w", apperr.ErrForbidden)
	}
	return nil
}

// ProvisionBootstrap выдаёт права всем bootstrap_admin_ids. Вызывается при старте.
func (a *Authority) ProvisionBootstrap(ctx context.Context) error {
	const op = "identity.ProvisionBootstrap"
	for id := range a.bootstrapIDs {
		if err := a.repo.AddAdmin(ctx, id); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if len(a.bootstrapIDs) > 0 {
		a.log.Info("bootstrap admins ensured", slog.String("op", op), slog.Int("count", len(a.bootstrapIDs)))
	}
	return nil
}
