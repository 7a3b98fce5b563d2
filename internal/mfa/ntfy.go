package mfa

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/models"
)

const ntfyCodeLength = 8

// NtfyChannel publishes passcodes to an ntfy topic. The topic URL is the
// only secret, so codes for this channel are longer than the digit codes
// sent over email or telegram.
type NtfyChannel struct {
	config     config.NtfyConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func NewNtfyChannel(cfg config.NtfyConfig, logger *slog.Logger) *NtfyChannel {
	return &NtfyChannel{
		config:     cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (ch *NtfyChannel) Name() models.MFAChannel {
	return models.ChannelNtfy
}

func (ch *NtfyChannel) Configured() bool {
	return ch.config.URL != "" && ch.config.Topic != ""
}

func (ch *NtfyChannel) Issue() (string, error) {
	return generateAlphanumeric(ntfyCodeLength)
}

// Dispatch publishes the passcode to the configured topic.
func (ch *NtfyChannel) Dispatch(ctx context.Context, code string) error {
	url := strings.TrimSuffix(ch.config.URL, "/") + "/" + ch.config.Topic

	body := fmt.Sprintf("One-time passcode: %s", code)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build ntfy request: %w", err)
	}
	req.Header.Set("X-Title", "Warden MFA")
	req.Header.Set("X-Priority", "high")
	req.Header.Set("X-Tags", "lock")
	if ch.config.Username != "" {
		req.SetBasicAuth(ch.config.Username, ch.config.Password)
	}

	resp, err := ch.httpClient.Do(req)
	if err != nil {
		ch.logger.Error("failed to publish passcode to ntfy", slog.Any("error", err))
		return fmt.Errorf("failed to publish to ntfy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ch.logger.Error("ntfy rejected passcode publish", slog.Int("status", resp.StatusCode))
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}

	ch.logger.Info("passcode published via ntfy", slog.String("topic", ch.config.Topic))
	return nil
}
