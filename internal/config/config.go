package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	MFA      MFAConfig
}

type ServerConfig struct {
	Port     string `validate:"required"`
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	// Path is the sqlite file backing the counter and MFA token tables.
	// The schema is rebuildable from empty, which is what makes the
	// breaker's drop-and-recreate recovery safe.
	Path             string `validate:"required"`
	BreakerThreshold int    `validate:"min=1"`
	WatchInterval    time.Duration
}

type AuthConfig struct {
	APIKey              string `validate:"required,min=16"`
	APISecret           string
	RemoteExecution     bool
	ExecTimeout         time.Duration
	ExecMaxTimeout      time.Duration
	StreamTokenTTL      time.Duration
	MonitorUsername     string
	MonitorPasswordHash string
	SessionSecret       string `validate:"required,min=16"`
	SessionLease        time.Duration
	CleanupInterval     time.Duration
	RateLimits          []RateRule
	Lockout             LockoutConfig
}

// RateRule is one sliding-window admission rule. A request must satisfy
// every configured rule to be admitted.
type RateRule struct {
	MaxRequests int
	Window      time.Duration
}

// LockoutConfig shapes the brute-force lockout curve: after FreeAttempts
// failures the lockout starts at BaseLockout and doubles per failure up to
// MaxLockout; at LongBlockAfter failures the key is blocked for LongBlock.
type LockoutConfig struct {
	FreeAttempts   int
	BaseLockout    time.Duration
	MaxLockout     time.Duration
	LongBlockAfter int
	LongBlock      time.Duration
}

type MFAConfig struct {
	// EncryptionKey is the process-wide AES-256 key for passcodes at rest,
	// supplied base64-encoded and never persisted alongside the data.
	EncryptionKey []byte `validate:"omitempty,len=32"`
	Timeout       time.Duration
	ResendDelay   time.Duration

	Email         EmailConfig
	Ntfy          NtfyConfig
	Telegram      TelegramConfig
	Authenticator AuthenticatorConfig
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
	Recipient   string
}

type NtfyConfig struct {
	URL      string
	Topic    string
	Username string
	Password string
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
}

type AuthenticatorConfig struct {
	// Secret is the pre-shared base32 TOTP secret; the agent never
	// dispatches codes for this channel.
	Secret  string
	Issuer  string
	Account string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	apiKey := getEnv("WARDEN_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("WARDEN_API_KEY is required")
	}

	encryptionKey, err := parseEncryptionKey(getEnv("WARDEN_MFA_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnv("WARDEN_PORT", "8000"),
			Env:      getEnv("WARDEN_ENV", "development"),
			LogLevel: getEnv("WARDEN_LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Path:             getEnv("WARDEN_DATABASE_PATH", "warden.db"),
			BreakerThreshold: getEnvAsInt("WARDEN_BREAKER_THRESHOLD", 3),
			WatchInterval:    getEnvAsDuration("WARDEN_STORE_WATCH_INTERVAL", 1*time.Minute),
		},
		Auth: AuthConfig{
			APIKey:              apiKey,
			APISecret:           getEnv("WARDEN_API_SECRET", ""),
			RemoteExecution:     getEnvAsBool("WARDEN_REMOTE_EXECUTION", false),
			ExecTimeout:         getEnvAsDuration("WARDEN_EXEC_TIMEOUT", 30*time.Second),
			ExecMaxTimeout:      getEnvAsDuration("WARDEN_EXEC_MAX_TIMEOUT", 10*time.Minute),
			StreamTokenTTL:      getEnvAsDuration("WARDEN_STREAM_TOKEN_TTL", 2*time.Minute),
			MonitorUsername:     getEnv("WARDEN_MONITOR_USERNAME", ""),
			MonitorPasswordHash: getEnv("WARDEN_MONITOR_PASSWORD_HASH", ""),
			SessionSecret:       getEnv("WARDEN_SESSION_SECRET", ""),
			SessionLease:        getEnvAsDuration("WARDEN_SESSION_LEASE", 1*time.Hour),
			CleanupInterval:     getEnvAsDuration("WARDEN_CLEANUP_INTERVAL", 5*time.Minute),
			RateLimits:          parseRateRules(getEnv("WARDEN_RATE_LIMITS", "5/2,10/30")),
			Lockout: LockoutConfig{
				FreeAttempts:   getEnvAsInt("WARDEN_LOCKOUT_FREE_ATTEMPTS", 3),
				BaseLockout:    getEnvAsDuration("WARDEN_LOCKOUT_BASE", 5*time.Minute),
				MaxLockout:     getEnvAsDuration("WARDEN_LOCKOUT_MAX", 24*time.Hour),
				LongBlockAfter: getEnvAsInt("WARDEN_LOCKOUT_LONG_BLOCK_AFTER", 10),
				LongBlock:      getEnvAsDuration("WARDEN_LOCKOUT_LONG_BLOCK", 720*time.Hour),
			},
		},
		MFA: MFAConfig{
			EncryptionKey: encryptionKey,
			Timeout:       getEnvAsDuration("WARDEN_MFA_TIMEOUT", 5*time.Minute),
			ResendDelay:   getEnvAsDuration("WARDEN_MFA_RESEND_DELAY", 2*time.Minute),
			Email: EmailConfig{
				AWSRegion:   getEnv("WARDEN_SES_REGION", ""),
				FromAddress: getEnv("WARDEN_SES_FROM", ""),
				Recipient:   getEnv("WARDEN_SES_RECIPIENT", ""),
			},
			Ntfy: NtfyConfig{
				URL:      getEnv("WARDEN_NTFY_URL", ""),
				Topic:    getEnv("WARDEN_NTFY_TOPIC", ""),
				Username: getEnv("WARDEN_NTFY_USERNAME", ""),
				Password: getEnv("WARDEN_NTFY_PASSWORD", ""),
			},
			Telegram: TelegramConfig{
				BotToken: getEnv("WARDEN_TELEGRAM_BOT_TOKEN", ""),
				ChatID:   getEnv("WARDEN_TELEGRAM_CHAT_ID", ""),
			},
			Authenticator: AuthenticatorConfig{
				Secret:  getEnv("WARDEN_AUTHENTICATOR_SECRET", ""),
				Issuer:  getEnv("WARDEN_AUTHENTICATOR_ISSUER", "Warden"),
				Account: getEnv("WARDEN_AUTHENTICATOR_ACCOUNT", "warden"),
			},
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := validateSecret("WARDEN_API_KEY", cfg.Auth.APIKey, cfg.Server.Env); err != nil {
		return nil, err
	}
	if err := validateSecret("WARDEN_SESSION_SECRET", cfg.Auth.SessionSecret, cfg.Server.Env); err != nil {
		return nil, err
	}

	if cfg.Auth.RemoteExecution && cfg.Auth.APISecret == "" {
		return nil, fmt.Errorf("WARDEN_API_SECRET is required when remote execution is enabled")
	}
	if len(cfg.MFA.EnabledChannels()) > 0 && len(cfg.MFA.EncryptionKey) == 0 {
		return nil, fmt.Errorf("WARDEN_MFA_ENCRYPTION_KEY is required when an MFA channel is configured")
	}

	return cfg, nil
}

// EnabledChannels returns the names of MFA channels that have enough
// configuration to operate.
func (m *MFAConfig) EnabledChannels() []string {
	var enabled []string
	if m.Email.AWSRegion != "" && m.Email.FromAddress != "" {
		enabled = append(enabled, "email")
	}
	if m.Ntfy.URL != "" && m.Ntfy.Topic != "" {
		enabled = append(enabled, "ntfy")
	}
	if m.Telegram.BotToken != "" && m.Telegram.ChatID != "" {
		enabled = append(enabled, "telegram")
	}
	if m.Authenticator.Secret != "" {
		enabled = append(enabled, "authenticator")
	}
	return enabled
}

// validateSecret enforces minimum strength for configured secrets
func validateSecret(name, secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}
	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

func parseEncryptionKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("WARDEN_MFA_ENCRYPTION_KEY must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("WARDEN_MFA_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// parseRateRules parses "max/seconds" pairs, e.g. "5/2,100/60".
// Malformed entries are dropped rather than failing startup.
func parseRateRules(raw string) []RateRule {
	var rules []RateRule
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), "/")
		if len(parts) != 2 {
			continue
		}
		maxRequests, err1 := strconv.Atoi(parts[0])
		seconds, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || maxRequests <= 0 || seconds <= 0 {
			continue
		}
		rules = append(rules, RateRule{
			MaxRequests: maxRequests,
			Window:      time.Duration(seconds) * time.Second,
		})
	}
	return rules
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
