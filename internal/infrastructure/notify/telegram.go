package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"safe-eye-console/internal/domain/port"
	"safe-eye-console/internal/logger"
)

// Sender часть tgbotapi.BotAPI, нужная для отправки
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier отправляет тревоги в дежурный чат
type TelegramNotifier struct {
	sender Sender
	chatID int64
}

func NewTelegramNotifier(sender Sender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, chatID: chatID}
}

func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.chatID == 0 {
		return fmt.Errorf("alert chat is not configured")
	}

	msg := tgbotapi.NewMessage(n.chatID, "🚨 "+text)
	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("send alert to chat %d: %w", n.chatID, err)
	}
	logger.Debug("Notify", "Alert sent to chat %d", n.chatID)
	return nil
}

var _ port.Notifier = (*TelegramNotifier)(nil)
