package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/wardenhq/warden/internal/handlers"
	"github.com/wardenhq/warden/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authMw *handlers.AuthMiddleware,
	systemHandler *handlers.SystemHandler,
	mfaHandler *handlers.MFAHandler,
	execHandler *handlers.ExecHandler,
	monitorHandler *handlers.MonitorHandler,
) {
	// Rate limiting config for the cookie-login and MFA endpoints
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes - no authentication required
	router.Get("/health", systemHandler.Health)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/login", monitorHandler.Login)
	router.Post("/logout", monitorHandler.Logout)

	// Stream socket authenticates itself via the single-use token
	router.Get("/ws/run", execHandler.StreamSocket)

	// Monitor pages - session cookie required
	router.Group(func(r chi.Router) {
		r.Use(monitorHandler.RequireSession)
		r.Get("/monitor", monitorHandler.MonitorPage)
	})
	router.Get("/ws/system", monitorHandler.SystemSocket)

	// Level-1 routes - bearer API key
	router.Group(func(r chi.Router) {
		r.Use(authMw.RequireLevel1)

		r.Get("/get-all", systemHandler.GetAll)
		r.Get("/get-cpu", systemHandler.GetCPU)
		r.Get("/get-memory", systemHandler.GetMemory)
		r.Get("/get-all-disks", systemHandler.GetDisks)
		r.Get("/get-process-status", systemHandler.GetProcesses)

		r.Get("/mfa/channels", mfaHandler.ListChannels)
		r.Get("/mfa/authenticator/setup", mfaHandler.AuthenticatorSetup)
		r.With(middleware.RateLimitByIP(rateLimitConfig)).
			Post("/mfa/{channel}/request", mfaHandler.RequestCode)
		r.With(middleware.RateLimitByIP(rateLimitConfig)).
			Post("/mfa/{channel}/submit", mfaHandler.SubmitCode)
	})

	// Level-2 routes - API key + out-of-band secret + MFA grant
	router.Group(func(r chi.Router) {
		r.Use(authMw.RequireLevel2)

		r.Post("/run-command", execHandler.RunCommand)
		r.Post("/run-command/stream", execHandler.RunCommandStream)
	})
}
