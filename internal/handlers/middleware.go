package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/wardenhq/warden/internal/auth"
	pkghttp "github.com/wardenhq/warden/pkg/http"
)

type contextKey string

const clientIPKey contextKey = "client_ip"

// ClientIP returns the extracted client IP stored by the auth middleware.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey).(string); ok {
		return ip
	}
	return pkghttp.ExtractClientIP(r, nil)
}

// AuthMiddleware wraps handlers with the layered credential checks. Level 1
// guards every API endpoint; level 2 additionally checks the out-of-band
// secret on elevated endpoints.
type AuthMiddleware struct {
	validator *auth.Validator
	ipConfig  *pkghttp.IPConfig
	logger    *slog.Logger
}

func NewAuthMiddleware(validator *auth.Validator, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		ipConfig:  ipConfig,
		logger:    logger,
	}
}

// RequireLevel1 validates the bearer API key before the handler runs.
func (m *AuthMiddleware) RequireLevel1(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := pkghttp.ExtractClientIP(r, m.ipConfig)
		rateKey := ip + ":" + r.URL.Path

		if err := m.validator.Level1(r.Context(), ip, rateKey, pkghttp.BearerToken(r)); err != nil {
			m.logger.Warn("level-1 auth rejected",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path))
			pkghttp.WriteDomainError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), clientIPKey, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireLevel2 validates the bearer API key plus the X-API-Secret header.
// Only the remote-execution endpoints use it.
func (m *AuthMiddleware) RequireLevel2(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := pkghttp.ExtractClientIP(r, m.ipConfig)
		rateKey := ip + ":" + r.URL.Path

		err := m.validator.Level2(r.Context(), ip, rateKey,
			pkghttp.BearerToken(r), r.Header.Get("X-API-Secret"))
		if err != nil {
			m.logger.Warn("level-2 auth rejected",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path))
			pkghttp.WriteDomainError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), clientIPKey, ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
