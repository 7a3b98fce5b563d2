package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wardenhq/warden/internal/models"
	pkgauth "github.com/wardenhq/warden/pkg/auth"
)

const sessionIDBytes = 32 // 256 bits

// SessionConfig holds the monitoring-page credentials and lease settings.
type SessionConfig struct {
	MonitorUsername     string
	MonitorPasswordHash string
	Secret              string
	Lease               time.Duration
}

// SessionManager owns monitoring-page sessions. The cookie value is an
// HS256 JWT wrapping an opaque session id; the server-side record is
// authoritative, so a valid signature alone is never enough.
type SessionManager struct {
	config SessionConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*models.Session
}

// NewSessionManager creates a session manager.
func NewSessionManager(cfg SessionConfig, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		config:   cfg,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*models.Session),
	}
}

// Login verifies the monitor credentials and mints a new session. The
// returned string is the signed cookie value. Bad credentials yield
// ErrAuthFailed with no detail about which part was wrong.
func (m *SessionManager) Login(username, password, origin string) (*models.Session, string, error) {
	if m.config.MonitorUsername == "" || m.config.MonitorPasswordHash == "" {
		return nil, "", models.ErrAuthFailed
	}
	// The bcrypt compare runs on both paths so a wrong username costs the
	// same as a wrong password.
	usernameOK := secureCompare(username, m.config.MonitorUsername)
	passwordErr := pkgauth.ComparePassword(m.config.MonitorPasswordHash, password)
	if !usernameOK || passwordErr != nil {
		return nil, "", models.ErrAuthFailed
	}

	id, err := GenerateKey(sessionIDBytes)
	if err != nil {
		return nil, "", err
	}

	session := &models.Session{
		ID:           id,
		Username:     username,
		CreatedAt:    m.now(),
		Lease:        m.config.Lease,
		ClientOrigin: origin,
	}

	cookie, err := m.sign(session)
	if err != nil {
		return nil, "", err
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	m.logger.Info("monitor session created",
		slog.String("username", username),
		slog.Time("expires_at", session.ExpiresAt()))
	return session, cookie, nil
}

// Validate checks a cookie value against the session store. It is a pure
// read apart from lazily evicting an expired session, and it never extends
// the lease.
func (m *SessionManager) Validate(cookieValue string) (*models.Session, error) {
	id, err := m.parse(cookieValue)
	if err != nil {
		return nil, models.ErrSessionInvalid
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrSessionInvalid
	}
	if session.Expired(m.now()) {
		delete(m.sessions, id)
		return nil, models.ErrSessionExpired
	}
	return session, nil
}

// Logout destroys the session referenced by the cookie, if any.
func (m *SessionManager) Logout(cookieValue string) {
	id, err := m.parse(cookieValue)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		delete(m.sessions, id)
		m.logger.Info("monitor session destroyed")
	}
}

// SweepExpired evicts expired sessions and returns how many were removed.
func (m *SessionManager) SweepExpired() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, session := range m.sessions {
		if session.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *SessionManager) sign(session *models.Session) (string, error) {
	claims := &jwt.RegisteredClaims{
		ID:        session.ID,
		Subject:   session.Username,
		IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// parse verifies the cookie signature and returns the embedded session id.
func (m *SessionManager) parse(cookieValue string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(cookieValue, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.Secret), nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.ID == "" {
		return "", errors.New("invalid session token")
	}
	return claims.ID, nil
}

// SetClock overrides the manager's time source. Test hook.
func (m *SessionManager) SetClock(now func() time.Time) {
	m.now = now
}
