package mfa

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/models"
)

const telegramCodeDigits = 6

// TelegramChannel sends passcodes through a Telegram bot. The bot token is
// part of the request URL, so errors from this channel never include the
// URL verbatim.
type TelegramChannel struct {
	config     config.TelegramConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func NewTelegramChannel(cfg config.TelegramConfig, logger *slog.Logger) *TelegramChannel {
	return &TelegramChannel{
		config:     cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (ch *TelegramChannel) Name() models.MFAChannel {
	return models.ChannelTelegram
}

func (ch *TelegramChannel) Configured() bool {
	return ch.config.BotToken != "" && ch.config.ChatID != ""
}

func (ch *TelegramChannel) Issue() (string, error) {
	return generateDigits(telegramCodeDigits)
}

// Dispatch sends the passcode to the configured chat via the bot API.
func (ch *TelegramChannel) Dispatch(ctx context.Context, code string) error {
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", ch.config.BotToken)

	form := url.Values{}
	form.Set("chat_id", ch.config.ChatID)
	form.Set("text", fmt.Sprintf("Warden one-time passcode: %s", code))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", maskBotToken(err, ch.config.BotToken))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ch.httpClient.Do(req)
	if err != nil {
		maskedErr := maskBotToken(err, ch.config.BotToken)
		ch.logger.Error("failed to send passcode via telegram", slog.Any("error", maskedErr))
		return fmt.Errorf("failed to send telegram message: %w", maskedErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		ch.logger.Error("telegram rejected passcode message", slog.Int("status", resp.StatusCode))
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	ch.logger.Info("passcode sent via telegram", slog.String("chat_id", ch.config.ChatID))
	return nil
}

// maskBotToken redacts the bot token from transport errors, which embed the
// full request URL.
func maskBotToken(err error, token string) error {
	if token == "" {
		return err
	}
	masked := strings.ReplaceAll(err.Error(), token, "[redacted]")
	return fmt.Errorf("%s", masked)
}
