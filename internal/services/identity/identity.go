// Package identity проверяет личность вызывающего по init data мини-приложения
// и определяет, является ли он администратором.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/config"
	"github.com/magabrotheeeer/channel-panel/internal/lib/initdata"
	"github.com/magabrotheeeer/channel-panel/internal/lib/sl"
	"github.com/magabrotheeeer/channel-panel/internal/models"
)

// DevSentinel литерал, который принимается вместо init data при включённом dev_bypass.
const DevSentinel = "dev"

// UserRepository сохраняет профиль проверенного пользователя.
type UserRepository interface {
	UpsertUser(ctx context.Context, user models.User) (*models.User, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
}

// Verifier проверяет подписанную init data и лениво создаёт пользователя.
type Verifier struct {
	repo      UserRepository
	botToken  string
	ttl       time.Duration
	devBypass bool
	devUserID int64
	log       *slog.Logger
}

// NewVerifier создаёт Verifier. Настройки читаются один раз при старте.
func NewVerifier(repo UserRepository, tg config.Telegram, auth config.Auth, log *slog.Logger) *Verifier {
	return &Verifier{
		repo:      repo,
		botToken:  tg.BotToken,
		ttl:       tg.InitDataTTL,
		devBypass: auth.DevBypass,
		devUserID: auth.DevUserID,
		log:       log,
	}
}

// Authenticate проверяет init data и возвращает пользователя, обновив его профиль.
// Любая ошибка проверки приводит к apperr.ErrUnauthenticated.
func (v *Verifier) Authenticate(ctx context.Context, raw string) (*models.User, error) {
	const op = "identity.Authenticate"

	if v.devBypass && raw == DevSentinel {
		v.log.Warn("dev bypass used", slog.String("op", op), slog.Int64("user_id", v.devUserID))
		u, err := v.repo.UpsertUser(ctx, models.User{ID: v.devUserID, FirstName: "Developer"})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return u, nil
	}

	data, err := initdata.Validate(raw, v.botToken, v.ttl)
	if err != nil {
		v.log.Debug("init data rejected", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w: %v", op, apperr.ErrUnauthenticated, err)
	}

	user := models.User{
		ID:        data.User.ID,
		FirstName: data.User.FirstName,
		LastName:  data.User.LastName,
	}
	if data.User.Username != "" {
		user.Username = &data.User.Username
	}
	if data.User.LanguageCode != "" {
		user.LanguageCode = &data.User.LanguageCode
	}
	u, err := v.repo.UpsertUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// Lookup возвращает уже известного пользователя по id из сессионного токена.
func (v *Verifier) Lookup(ctx context.Context, userID int64) (*models.User, error) {
	const op = "identity.Lookup"
	u, err := v.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, apperr.ErrUnauthenticated, err)
	}
	return u, nil
}
