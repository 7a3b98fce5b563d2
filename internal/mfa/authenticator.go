package mfa

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/models"
)

const (
	totpPeriodSeconds = 30
	totpSkewPeriods   = 1
)

// AuthenticatorChannel validates TOTP codes against a pre-shared secret.
// Nothing is dispatched: the user's authenticator app derives the same code
// from the secret and the clock.
type AuthenticatorChannel struct {
	config config.AuthenticatorConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewAuthenticatorChannel(cfg config.AuthenticatorConfig, logger *slog.Logger) *AuthenticatorChannel {
	return &AuthenticatorChannel{config: cfg, logger: logger, now: time.Now}
}

func (ch *AuthenticatorChannel) Name() models.MFAChannel {
	return models.ChannelAuthenticator
}

func (ch *AuthenticatorChannel) Configured() bool {
	return ch.config.Secret != ""
}

// Issue returns the current TOTP code so the orchestrator can store it like
// any other channel's passcode. Validation still falls back to ValidateCode
// to tolerate the code rolling over between issue and submit.
func (ch *AuthenticatorChannel) Issue() (string, error) {
	code, err := totp.GenerateCode(ch.config.Secret, ch.now())
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP code: %w", err)
	}
	return code, nil
}

// Dispatch is a no-op; the secret is pre-shared with the user's app.
func (ch *AuthenticatorChannel) Dispatch(ctx context.Context, code string) error {
	return nil
}

// ValidateCode checks a submitted code against the shared secret, allowing
// one period of clock skew in either direction.
func (ch *AuthenticatorChannel) ValidateCode(code string) bool {
	valid, err := totp.ValidateCustom(code, ch.config.Secret, ch.now(), totp.ValidateOpts{
		Period:    totpPeriodSeconds,
		Skew:      totpSkewPeriods,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		ch.logger.Error("TOTP validation failed", slog.Any("error", err))
		return false
	}
	return valid
}

// ReplayWindow covers a code's own period plus the accepted skew on each
// side, so a spent code stays blocked for as long as ValidateCode would
// still accept it.
func (ch *AuthenticatorChannel) ReplayWindow() time.Duration {
	return time.Duration(totpPeriodSeconds*(1+2*totpSkewPeriods)) * time.Second
}

// ProvisioningURI returns the otpauth:// URI an authenticator app enrolls
// with.
func (ch *AuthenticatorChannel) ProvisioningURI() string {
	label := url.PathEscape(fmt.Sprintf("%s:%s", ch.config.Issuer, ch.config.Account))
	params := url.Values{}
	params.Set("secret", ch.config.Secret)
	params.Set("issuer", ch.config.Issuer)
	return fmt.Sprintf("otpauth://totp/%s?%s", label, params.Encode())
}

// QRCodeDataURL renders the provisioning URI as a PNG data URL for the
// enrolment page.
func (ch *AuthenticatorChannel) QRCodeDataURL() (string, error) {
	png, err := qrcode.Encode(ch.ProvisioningURI(), qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("failed to generate QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// SetClock overrides the channel's time source. Test hook.
func (ch *AuthenticatorChannel) SetClock(now func() time.Time) {
	ch.now = now
}
