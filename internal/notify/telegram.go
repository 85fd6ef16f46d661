package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Telegram отправляет уведомления в личный чат пользователя.
// События не публикует.
type Telegram struct {
	sender messageSender
}

// NewTelegram создаёт бота без запуска polling: нужен только для отправки
func NewTelegram(token string) (*Telegram, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{sender: b}, nil
}

func (t *Telegram) Notify(ctx context.Context, to Recipient, subject, body string) error {
	if to.TelegramChatID == nil {
		return nil
	}

	_, err := t.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    *to.TelegramChatID,
		Text:      fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(subject), html.EscapeString(body)),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send telegram message to %d: %w", to.UserID, err)
	}

	return nil
}

func (t *Telegram) Emit(context.Context, string, any) error { return nil }
