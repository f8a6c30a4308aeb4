package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender is a MessageSender backed by the Telegram Bot API.
type TelegramSender struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramSender authenticates a bot with the given token.
func NewTelegramSender(token string) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}
	slog.Info("telegram bot initialized", "username", bot.Self.UserName)
	return &TelegramSender{bot: bot}, nil
}

// SendMessage sends one message and returns its message ID. The context
// is unused; the underlying client carries its own request timeout.
func (s *TelegramSender) SendMessage(ctx context.Context, chatID int64, text string, html bool) (int64, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if html {
		msg.ParseMode = tgbotapi.ModeHTML
	}

	sent, err := s.bot.Send(msg)
	if err != nil {
		slog.Warn("failed to send message", "chat_id", chatID, "error", err)
		return 0, err
	}
	return int64(sent.MessageID), nil
}
