package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// sender is the part of *tgbotapi.BotAPI the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends messages and documents to the chat with the user's id.
type Telegram struct {
	bot sender
}

func NewTelegram(bot sender) *Telegram {
	return &Telegram{bot: bot}
}

func (t *Telegram) Notify(ctx context.Context, userID int64, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(userID, message)); err != nil {
		return fmt.Errorf("telegram send message: %w", err)
	}
	return nil
}

func (t *Telegram) SendProgress(ctx context.Context, userID int64, message string) error {
	return t.Notify(ctx, userID, message)
}

func (t *Telegram) SendDocument(ctx context.Context, userID int64, data []byte, filename, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(userID, tgbotapi.FileBytes{Name: filename, Bytes: data})
	doc.Caption = caption
	if _, err := t.bot.Send(doc); err != nil {
		return fmt.Errorf("telegram send document: %w", err)
	}
	slog.Info("document delivered", "user_id", userID, "filename", filename, "bytes", len(data))
	return nil
}
