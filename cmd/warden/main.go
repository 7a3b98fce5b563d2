package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/background"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/database"
	"github.com/wardenhq/warden/internal/handlers"
	"github.com/wardenhq/warden/internal/mfa"
	middlewareCustom "github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/ratelimit"
	"github.com/wardenhq/warden/internal/routes"
	"github.com/wardenhq/warden/internal/runner"
	"github.com/wardenhq/warden/internal/storage"
	"github.com/wardenhq/warden/internal/sysinfo"
	pkghttp "github.com/wardenhq/warden/pkg/http"
	pkglogger "github.com/wardenhq/warden/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).
			Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		pkglogger.RedactedAttr("api_key", pkglogger.MaskSecret(cfg.Auth.APIKey), cfg.Server.Env))

	// Initialize database and counter store
	db, err := database.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	store, err := storage.New(db, cfg.Database.BreakerThreshold, logger)
	if err != nil {
		logger.Error("failed to initialize counter store", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize guard and limiter
	guard := auth.NewGuard(store, cfg.Auth.Lockout, logger)
	limiter := ratelimit.New(cfg.Auth.RateLimits)

	// Initialize MFA channels
	emailChannel, err := mfa.NewEmailChannel(cfg.MFA.Email, cfg.MFA.Timeout, logger)
	if err != nil {
		logger.Error("failed to initialize email channel", slog.Any("error", err))
		os.Exit(1)
	}
	channels := []mfa.Channel{
		emailChannel,
		mfa.NewNtfyChannel(cfg.MFA.Ntfy, logger),
		mfa.NewTelegramChannel(cfg.MFA.Telegram, logger),
		mfa.NewAuthenticatorChannel(cfg.MFA.Authenticator, logger),
	}

	var orchestrator *mfa.Orchestrator
	enabledChannels := cfg.MFA.EnabledChannels()
	if len(enabledChannels) > 0 {
		orchestrator, err = mfa.NewOrchestrator(store, cfg.MFA.EncryptionKey, channels, mfa.OrchestratorConfig{
			Timeout:     cfg.MFA.Timeout,
			ResendDelay: cfg.MFA.ResendDelay,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize MFA orchestrator", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("MFA channels configured", slog.String("channels", strings.Join(enabledChannels, ",")))
	} else {
		// An orchestrator with no channels rejects everything, which in
		// turn keeps remote execution disabled.
		orchestrator, err = mfa.NewOrchestrator(store, make([]byte, 32), nil, mfa.OrchestratorConfig{
			Timeout:     cfg.MFA.Timeout,
			ResendDelay: cfg.MFA.ResendDelay,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize MFA orchestrator", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Warn("no MFA channel configured")
	}

	// Initialize validator
	validator := auth.NewValidator(guard, limiter, auth.ValidatorConfig{
		APIKey:          cfg.Auth.APIKey,
		APISecret:       cfg.Auth.APISecret,
		RemoteExecution: cfg.Auth.RemoteExecution,
		MFAChannels:     len(enabledChannels),
	}, logger)

	// Initialize sessions and stream tokens
	sessions := auth.NewSessionManager(auth.SessionConfig{
		MonitorUsername:     cfg.Auth.MonitorUsername,
		MonitorPasswordHash: cfg.Auth.MonitorPasswordHash,
		Secret:              cfg.Auth.SessionSecret,
		Lease:               cfg.Auth.SessionLease,
	}, logger)
	streamTokens := auth.NewStreamTokenManager(cfg.Auth.StreamTokenTTL, logger)

	// Initialize collectors and runner
	collector := sysinfo.NewCollector(logger)
	cmdRunner := runner.New(cfg.Auth.ExecTimeout, cfg.Auth.ExecMaxTimeout, logger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{}
	authMw := handlers.NewAuthMiddleware(validator, ipConfig, logger)
	systemHandler := handlers.NewSystemHandler(collector, store, logger)
	mfaHandler := handlers.NewMFAHandler(orchestrator, logger)
	execHandler := handlers.NewExecHandler(cmdRunner, orchestrator, streamTokens, logger)
	monitorHandler := handlers.NewMonitorHandler(sessions, collector, cfg.Auth.SessionLease,
		cfg.Server.Env == "production", logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)

	routes.RegisterRoutes(router, authMw, systemHandler, mfaHandler, execHandler, monitorHandler)

	// Create server
	server := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start background tasks
	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	cleanupManager := background.NewCleanupManager(orchestrator, sessions, streamTokens, execHandler, logger, cfg.Auth.CleanupInterval)
	go cleanupManager.Start(backgroundCtx)

	fatalCh := make(chan error, 1)
	watcher := background.NewStoreWatcher(store, cfg.Database.WatchInterval, func(err error) {
		select {
		case fatalCh <- err:
		default:
		}
	}, logger)
	go watcher.Start(backgroundCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-fatalCh:
		logger.Error("counter store unreachable after rebuild, shutting down",
			slog.Any("error", err))
		exitCode = 1
	}

	backgroundCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
	os.Exit(exitCode)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
