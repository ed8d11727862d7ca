package infrastructure

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"botfactory/internal/entities"
	"botfactory/internal/interfaces"
)

const pollTimeoutSeconds = 60

// TelegramDialer opens long-poll sessions against the Telegram Bot API.
type TelegramDialer struct{}

func NewTelegramDialer() interfaces.PlatformDialer {
	return &TelegramDialer{}
}

// Validate checks a token by asking Telegram who it belongs to.
func (d *TelegramDialer) Validate(ctx context.Context, token string) (string, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	return bot.Self.UserName, nil
}

func (d *TelegramDialer) Dial(ctx context.Context, token string) (interfaces.PlatformSession, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	s := &TelegramSession{
		bot:    bot,
		events: make(chan entities.InboundEvent),
		done:   make(chan struct{}),
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeoutSeconds
	updates := bot.GetUpdatesChan(u)

	go s.forward(updates)

	return s, nil
}

// TelegramSession adapts the tgbotapi update channel to platform events.
type TelegramSession struct {
	bot    *tgbotapi.BotAPI
	events chan entities.InboundEvent
	done   chan struct{}
}

func (s *TelegramSession) BotUsername() string {
	return s.bot.Self.UserName
}

func (s *TelegramSession) Updates() <-chan entities.InboundEvent {
	return s.events
}

// forward converts text updates into inbound events. Non-text updates
// (stickers, joins, edits) are dropped.
func (s *TelegramSession) forward(updates tgbotapi.UpdatesChannel) {
	defer close(s.events)
	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}
		ev := entities.InboundEvent{
			ChatID:         update.Message.Chat.ID,
			ExternalUserID: strconv.FormatInt(update.Message.Chat.ID, 10),
			Text:           update.Message.Text,
			ReceivedAt:     update.Message.Time(),
		}
		if update.Message.From != nil {
			ev.ExternalUsername = update.Message.From.UserName
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *TelegramSession) Send(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := s.bot.Send(msg)
	return err
}

func (s *TelegramSession) Close() {
	close(s.done)
	s.bot.StopReceivingUpdates()
}
