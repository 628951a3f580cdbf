package services

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramService шлёт алерты в админский чат. nil-сервис молча ничего не делает.
type TelegramService struct {
	bot         *tgbotapi.BotAPI
	adminChatID int64
	logger      *zap.Logger
}

// NewTelegramService returns nil, nil when the bot is not configured.
func NewTelegramService(botToken string, adminChatID int64, logger *zap.Logger) (*TelegramService, error) {
	if botToken == "" || adminChatID == 0 {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("bot", bot.Self.UserName))
	return &TelegramService{bot: bot, adminChatID: adminChatID, logger: logger}, nil
}

func (t *TelegramService) NotifyAdmins(_ context.Context, text string) error {
	if t == nil || t.bot == nil {
		return nil
	}
	return t.SendMessage(t.adminChatID, text)
}

func (t *TelegramService) SendMessage(chatID int64, text string) error {
	if t == nil || t.bot == nil || chatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return nil
}
