package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/internal/models"
	pkgauth "github.com/wardenhq/warden/pkg/auth"
)

const testMonitorPassword = "Sup3rvisor-pass"

func newTestSessionManager(t *testing.T) (*SessionManager, *time.Time) {
	t.Helper()

	hash, err := pkgauth.HashPassword(testMonitorPassword)
	require.NoError(t, err)

	m := NewSessionManager(SessionConfig{
		MonitorUsername:     "operator",
		MonitorPasswordHash: hash,
		Secret:              "test-session-secret-0123456789ab",
		Lease:               time.Hour,
	}, testLogger())

	current := time.Now().Truncate(time.Second)
	m.SetClock(func() time.Time { return current })
	return m, &current
}

func TestLoginAndValidate(t *testing.T) {
	m, _ := newTestSessionManager(t)

	session, cookie, err := m.Login("operator", testMonitorPassword, "192.0.2.1")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.NotEmpty(t, cookie)
	assert.Equal(t, "operator", session.Username)

	got, err := m.Validate(cookie)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	m, _ := newTestSessionManager(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong username", "admin", testMonitorPassword},
		{"wrong password", "operator", "not-the-password"},
		{"both wrong", "admin", "nope"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := m.Login(tt.username, tt.password, "192.0.2.1")
			assert.ErrorIs(t, err, models.ErrAuthFailed)
		})
	}
}

func TestLoginDisabledWithoutCredentials(t *testing.T) {
	m := NewSessionManager(SessionConfig{
		Secret: "test-session-secret-0123456789ab",
		Lease:  time.Hour,
	}, testLogger())

	_, _, err := m.Login("operator", "anything", "")
	assert.ErrorIs(t, err, models.ErrAuthFailed)
}

func TestValidateRejectsGarbageCookie(t *testing.T) {
	m, _ := newTestSessionManager(t)

	_, err := m.Validate("not-a-jwt")
	assert.ErrorIs(t, err, models.ErrSessionInvalid)
}

func TestValidateRejectsForgedCookie(t *testing.T) {
	m, _ := newTestSessionManager(t)
	other, _ := newTestSessionManager(t)

	// Both managers share the signing secret but not the session store: a
	// structurally valid token for an unknown id must fail.
	_, cookie, err := other.Login("operator", testMonitorPassword, "")
	require.NoError(t, err)

	_, err = m.Validate(cookie)
	assert.ErrorIs(t, err, models.ErrSessionInvalid)
}

func TestSessionExpiresAfterLease(t *testing.T) {
	m, current := newTestSessionManager(t)

	_, cookie, err := m.Login("operator", testMonitorPassword, "")
	require.NoError(t, err)

	*current = current.Add(59 * time.Minute)
	_, err = m.Validate(cookie)
	require.NoError(t, err)

	*current = current.Add(2 * time.Minute)
	_, err = m.Validate(cookie)
	assert.Error(t, err)
}

func TestValidateNeverExtendsLease(t *testing.T) {
	m, current := newTestSessionManager(t)

	_, cookie, err := m.Login("operator", testMonitorPassword, "")
	require.NoError(t, err)

	// Steady polling must not push the expiry out.
	for i := 0; i < 70; i++ {
		*current = current.Add(time.Minute)
		if _, err := m.Validate(cookie); err != nil {
			assert.Greater(t, i, 57)
			return
		}
	}
	t.Fatal("session never expired")
}

func TestLogoutDestroysSession(t *testing.T) {
	m, _ := newTestSessionManager(t)

	_, cookie, err := m.Login("operator", testMonitorPassword, "")
	require.NoError(t, err)

	m.Logout(cookie)
	_, err = m.Validate(cookie)
	assert.ErrorIs(t, err, models.ErrSessionInvalid)

	// Logout with a garbage cookie is a no-op.
	m.Logout("junk")
}

func TestSweepExpired(t *testing.T) {
	m, current := newTestSessionManager(t)

	_, _, err := m.Login("operator", testMonitorPassword, "")
	require.NoError(t, err)
	_, liveCookie, err := m.Login("operator", testMonitorPassword, "")
	require.NoError(t, err)

	assert.Equal(t, 0, m.SweepExpired())

	*current = current.Add(2 * time.Hour)
	assert.Equal(t, 2, m.SweepExpired())

	_, err = m.Validate(liveCookie)
	assert.Error(t, err)
}
