package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillm/sniper-bot/internal/domain"
	"github.com/kirillm/sniper-bot/pkg/utils"
)

// Notifier отправляет события движка в Telegram-чат.
// Канал только исходящий: команды управления бот не принимает.
type Notifier struct {
	api       *tgbotapi.BotAPI
	chatID    int64
	formatter *Formatter
	logger    *utils.Logger
}

// NewNotifier создает уведомитель и проверяет авторизацию бота
func NewNotifier(token string, chatID int64, logger *utils.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("Telegram bot authorized: @%s", bot.Self.UserName)

	return &Notifier{
		api:       bot,
		chatID:    chatID,
		formatter: NewFormatter(),
		logger:    logger,
	}, nil
}

// Notify форматирует и отправляет событие. Ошибка доставки логируется,
// но не возвращается: торговый цикл не должен зависеть от Telegram.
func (n *Notifier) Notify(event domain.Event) {
	text := n.formatter.Format(event)
	if text == "" {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.api.Send(msg); err != nil {
		n.logger.Error("Failed to send telegram notification: %v", err)
	}
}

// NopNotifier заглушка для запуска без Telegram
type NopNotifier struct{}

// Notify ничего не делает
func (NopNotifier) Notify(domain.Event) {}
