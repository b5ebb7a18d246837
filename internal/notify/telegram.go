package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"clientpulse/internal/httpx"
)

const (
	defaultTelegramRetries    = 3
	defaultTelegramRetryDelay = time.Second
)

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramNotifier struct {
	bot            telegramSender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegramNotifier connects to the bot API at endpoint, which uses the
// tgbotapi.APIEndpoint format. An empty endpoint selects the public API.
func NewTelegramNotifier(botToken, chatID, endpoint string) (*TelegramNotifier, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, httpx.ExternalHTTPClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	return &TelegramNotifier{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     defaultTelegramRetries,
		retryDelayBase: defaultTelegramRetryDelay,
	}, nil
}

func (n *TelegramNotifier) Name() string { return "telegram" }

// Notify sends text as a plain message, retrying with a linear delay.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)

	var lastErr error
	for i := 0; i < n.maxRetries; i++ {
		_, err := n.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == n.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("telegram send cancelled: %w", ctx.Err())
		case <-time.After(n.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed to send message after %d retries: %w", n.maxRetries, lastErr)
}
