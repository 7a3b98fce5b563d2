package models

import "time"

// MFAChannel identifies one delivery/validation mechanism for one-time passcodes.
type MFAChannel string

const (
	ChannelEmail         MFAChannel = "email"
	ChannelNtfy          MFAChannel = "ntfy"
	ChannelTelegram      MFAChannel = "telegram"
	ChannelAuthenticator MFAChannel = "authenticator"
)

// Channels lists every supported MFA channel.
var Channels = []MFAChannel{ChannelEmail, ChannelNtfy, ChannelTelegram, ChannelAuthenticator}

// ParseMFAChannel validates a channel name from the request path.
func ParseMFAChannel(s string) (MFAChannel, bool) {
	for _, c := range Channels {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// FailureCounter tracks failed authentication attempts for a client identity.
// BlockedUntil is nil unless the guard has imposed a lockout.
type FailureCounter struct {
	Key          string
	AttemptCount int
	BlockedUntil *time.Time
}

// MFAToken is a stored one-time passcode. The code itself is kept encrypted
// at rest; only the orchestrator ever sees the plaintext.
type MFAToken struct {
	ID           string
	Channel      MFAChannel
	CodeCipher   []byte
	CodeNonce    []byte
	IssuedAt     time.Time
	ExpiresAt    time.Time
	LastResendAt time.Time
	Consumed     bool
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *MFAToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Session is a monitoring-page session. Validity window is
// [CreatedAt, CreatedAt+Lease); validation never extends the lease.
type Session struct {
	ID           string
	Username     string
	CreatedAt    time.Time
	Lease        time.Duration
	ClientOrigin string
}

// ExpiresAt returns the end of the session's validity window.
func (s *Session) ExpiresAt() time.Time {
	return s.CreatedAt.Add(s.Lease)
}

// Expired reports whether the session lease has run out at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt())
}
