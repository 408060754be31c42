// Package notify sends short admin alerts to a Telegram chat.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot    sender
	chatID int64
	log    *zap.Logger
}

// NewTelegram connects the bot. An empty token or a zero chat id yields a
// notifier that skips every message.
func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return &Telegram{log: log}, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID, log: log}, nil
}

// NotifyAdmins sends an HTML-formatted message. Callers escape user input.
func (t *Telegram) NotifyAdmins(ctx context.Context, text string) error {
	if t == nil || t.bot == nil || t.chatID == 0 {
		if t != nil && t.log != nil {
			t.log.Debug("telegram skip: bot not configured")
		}
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(msg)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
