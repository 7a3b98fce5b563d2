package mfa

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/wardenhq/warden/internal/models"
)

// Channel is one delivery/validation mechanism for one-time passcodes.
// Issue generates a fresh code; Dispatch delivers it out of band. The
// authenticator channel's Dispatch is a no-op because the secret is
// pre-shared with the user's app.
type Channel interface {
	Name() models.MFAChannel
	Configured() bool
	Issue() (string, error)
	Dispatch(ctx context.Context, code string) error
}

// codeValidator is implemented by channels that can validate a submitted
// code statelessly (the TOTP authenticator, which tolerates clock skew).
// ReplayWindow is how long a validated code must stay on record: the span
// over which the channel would still accept that same code.
type codeValidator interface {
	ValidateCode(code string) bool
	ReplayWindow() time.Duration
}

// Excludes ambiguous characters (0/O, 1/I/L) for codes read by humans.
const codeCharset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// generateDigits returns n cryptographically random decimal digits.
func generateDigits(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate passcode: %w", err)
	}
	code := make([]byte, n)
	for i, b := range buf {
		code[i] = '0' + b%10
	}
	return string(code), nil
}

// generateAlphanumeric returns an n-character code from the unambiguous
// charset.
func generateAlphanumeric(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate passcode: %w", err)
	}
	code := make([]byte, n)
	for i, b := range buf {
		code[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(code), nil
}
