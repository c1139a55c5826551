// Package telegram обертка над Telegram Bot API для управления участниками канала и личных сообщений.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/magabrotheeeer/channel-panel/internal/apperr"
	"github.com/magabrotheeeer/channel-panel/internal/config"
)

// botAPI методы Bot API, которыми пользуется панель. Реализуется *bot.Bot.
type botAPI interface {
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
	CreateChatInviteLink(ctx context.Context, params *bot.CreateChatInviteLinkParams) (*models.ChatInviteLink, error)
	RevokeChatInviteLink(ctx context.Context, params *bot.RevokeChatInviteLinkParams) (*models.ChatInviteLink, error)
	BanChatMember(ctx context.Context, params *bot.BanChatMemberParams) (bool, error)
	UnbanChatMember(ctx context.Context, params *bot.UnbanChatMemberParams) (bool, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

var createBot = func(token string, options ...bot.Option) (botAPI, error) {
	return bot.New(token, options...)
}

// Client выполняет вызовы Bot API с таймаутом.
// Любая ошибка платформы возвращается как apperr.ErrMessagingUnavailable.
type Client struct {
	api     botAPI
	timeout time.Duration
}

// New создаёт клиента. Запрос getMe при старте не выполняется.
func New(cfg config.Telegram) (*Client, error) {
	const op = "telegram.New"
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, fmt.Errorf("%s: bot token is required", op)
	}
	opts := []bot.Option{bot.WithSkipGetMe()}
	if cfg.APIURL != "" {
		opts = append(opts, bot.WithServerURL(strings.TrimRight(cfg.APIURL, "/")))
	}
	api, err := createBot(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return newClient(api, cfg.Timeout), nil
}

func newClient(api botAPI, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{api: api, timeout: timeout}
}

func unavailable(op string, err error) error {
	if errors.Is(err, apperr.ErrMessagingUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %s", op, apperr.ErrMessagingUnavailable, err.Error())
}

// IsMember сообщает, состоит ли пользователь в канале.
// Создатель, администратор, участник и ограниченный участник с флагом is_member считаются участниками.
func (c *Client) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	const op = "telegram.IsMember"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	member, err := c.api.GetChatMember(ctx, &bot.GetChatMemberParams{ChatID: chatID, UserID: userID})
	if err != nil {
		return false, unavailable(op, err)
	}
	switch member.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true, nil
	case models.ChatMemberTypeRestricted:
		return member.Restricted != nil && member.Restricted.IsMember, nil
	default:
		return false, nil
	}
}

// CreateInviteLink создаёт одноразовую ссылку-приглашение без срока действия.
func (c *Client) CreateInviteLink(ctx context.Context, chatID int64, name string) (string, error) {
	const op = "telegram.CreateInviteLink"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	link, err := c.api.CreateChatInviteLink(ctx, &bot.CreateChatInviteLinkParams{
		ChatID:      chatID,
		Name:        name,
		MemberLimit: 1,
	})
	if err != nil {
		return "", unavailable(op, err)
	}
	if link == nil || link.InviteLink == "" {
		return "", fmt.Errorf("%s: %w: empty invite link", op, apperr.ErrMessagingUnavailable)
	}
	return link.InviteLink, nil
}

// RevokeInviteLink отзывает ссылку-приглашение.
func (c *Client) RevokeInviteLink(ctx context.Context, chatID int64, link string) error {
	const op = "telegram.RevokeInviteLink"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.api.RevokeChatInviteLink(ctx, &bot.RevokeChatInviteLinkParams{ChatID: chatID, InviteLink: link}); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// RemoveMember исключает пользователя из канала без постоянной блокировки:
// бан и сразу разбан, чтобы пользователь мог вернуться после новой покупки.
func (c *Client) RemoveMember(ctx context.Context, chatID, userID int64) error {
	const op = "telegram.RemoveMember"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.api.BanChatMember(ctx, &bot.BanChatMemberParams{ChatID: chatID, UserID: userID}); err != nil {
		return unavailable(op, err)
	}
	if _, err := c.api.UnbanChatMember(ctx, &bot.UnbanChatMemberParams{ChatID: chatID, UserID: userID, OnlyIfBanned: true}); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// SendMessage отправляет пользователю HTML-сообщение.
func (c *Client) SendMessage(ctx context.Context, userID int64, text string) error {
	return c.send(ctx, "telegram.SendMessage", &bot.SendMessageParams{
		ChatID:    userID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
}

// SendLinkButton отправляет сообщение с inline-кнопкой, ведущей на url.
func (c *Client) SendLinkButton(ctx context.Context, userID int64, text, buttonText, url string) error {
	return c.send(ctx, "telegram.SendLinkButton", &bot.SendMessageParams{
		ChatID:    userID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		ReplyMarkup: &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: buttonText, URL: url}},
			},
		},
	})
}

func (c *Client) send(ctx context.Context, op string, params *bot.SendMessageParams) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.api.SendMessage(ctx, params); err != nil {
		return unavailable(op, err)
	}
	return nil
}
