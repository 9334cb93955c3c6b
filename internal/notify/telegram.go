package notify

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends owner notices to a single chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

type TelegramOptions struct {
	// Endpoint overrides tgbotapi.APIEndpoint, e.g. for a test server.
	Endpoint   string
	HTTPClient *http.Client
}

// NewTelegram authenticates the bot (one getMe call).
func NewTelegram(token string, chatID int64, opts TelegramOptions) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram: token and chat id are required")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) ReservationCreated(ctx context.Context, n Notice) error {
	return t.send(ctx, FormatCreated(n))
}

func (t *Telegram) ReservationCancelled(ctx context.Context, n Notice) error {
	return t.send(ctx, FormatCancelled(n))
}

// Send posts a plain text message; it is also used by cmd/notify.
func (t *Telegram) Send(ctx context.Context, text string) error {
	return t.send(ctx, text)
}

func (t *Telegram) send(ctx context.Context, text string) error {
	// the bot API client takes no context
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

var _ Notifier = (*Telegram)(nil)
