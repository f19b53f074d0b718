package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/hostpanel/internal/auth"
	"github.com/BradenHooton/hostpanel/internal/background"
	"github.com/BradenHooton/hostpanel/internal/collector"
	"github.com/BradenHooton/hostpanel/internal/config"
	"github.com/BradenHooton/hostpanel/internal/database"
	"github.com/BradenHooton/hostpanel/internal/handlers"
	middlewareCustom "github.com/BradenHooton/hostpanel/internal/middleware"
	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/notify"
	"github.com/BradenHooton/hostpanel/internal/osctl"
	"github.com/BradenHooton/hostpanel/internal/repositories"
	"github.com/BradenHooton/hostpanel/internal/routes"
	"github.com/BradenHooton/hostpanel/internal/services"
	"github.com/BradenHooton/hostpanel/internal/telemetry"
	pkgauth "github.com/BradenHooton/hostpanel/pkg/auth"
	pkghttp "github.com/BradenHooton/hostpanel/pkg/http"
	pkglogger "github.com/BradenHooton/hostpanel/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.MigratePool(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize repositories
	adminRepo := repositories.NewAdminUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	systemUserRepo := repositories.NewSystemUserRepository(db)
	systemServiceRepo := repositories.NewSystemServiceRepository(db)
	metricRepo := repositories.NewMetricRepository(db)
	serverInfoRepo := repositories.NewServerInfoRepository(db)
	alertRepo := repositories.NewAlertRepository(db)

	// Initialize security components
	metrics := telemetry.NewMetrics()
	auditLogger := pkglogger.NewAuditLogger(logger)
	hasher := pkgauth.NewHasher(cfg.Auth.BcryptCost)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})
	challenges := auth.NewChallengeManager(cfg.Auth.ChallengeSecret, cfg.Auth.ChallengeTTL)
	csrfSigner := auth.NewCSRFSigner(cfg.Auth.CSRFSecret)
	totpManager, err := auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, cfg.Auth.TOTPIssuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	notifier := newNotifier(cfg, logger)
	controller := osctl.NewExecController(cfg.OS.CommandTimeout, cfg.OS.DryRun, logger, metrics)
	if cfg.OS.DryRun {
		logger.Warn("OS dry-run enabled, no host commands will be executed")
	}

	// Initialize services
	auditService := services.NewAuditService(auditRepo, auditLogger, metrics, logger)
	runner := services.NewPrivilegedRunner(auditService, metrics, logger)
	sessionService := services.NewSessionService(services.SessionDeps{
		Users:       adminRepo,
		Sessions:    sessionRepo,
		Runner:      runner,
		Hasher:      hasher,
		Timing:      timingDelay,
		Challenges:  challenges,
		TOTP:        totpManager,
		CSRF:        csrfSigner,
		Notifier:    notifier,
		Metrics:     metrics,
		AuditLogger: auditLogger,
		Logger:      logger,
	}, services.SessionConfig{
		SessionDuration:    cfg.Auth.SessionDuration,
		RememberMeDuration: cfg.Auth.RememberMeDuration,
		Lockout: models.LockoutPolicy{
			Threshold: cfg.Auth.LockoutThreshold,
			Duration:  cfg.Auth.LockoutDuration,
		},
	})
	adminService := services.NewAdminService(adminRepo, sessionService, runner, hasher, totpManager, logger)
	systemUserService := services.NewSystemUserService(systemUserRepo, controller, runner, logger)
	serviceControl := services.NewServiceControlService(systemServiceRepo, controller, runner, logger)
	alertService := services.NewAlertService(alertRepo, notifier, logger)
	metricsService := services.NewMetricsService(metricRepo, serverInfoRepo, alertService, services.Thresholds{
		CPU:    cfg.Metrics.CPUThreshold,
		Memory: cfg.Metrics.MemoryThreshold,
		Disk:   cfg.Metrics.DiskThreshold,
	}, logger)
	dashboardService := services.NewDashboardService(metricsService, alertService, auditService, systemServiceRepo, systemUserRepo, sessionRepo, logger)

	// Bootstrap first superuser if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := adminService.Bootstrap(ctx, cfg.Auth.BootstrapUsername, cfg.Auth.BootstrapEmail, cfg.Auth.BootstrapPassword); err != nil {
		logger.Error("failed to bootstrap admin user", slog.Any("error", err))
	}
	cancel()

	// Initialize handlers
	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	cookies := auth.CookieConfig{
		Domain:   cfg.Auth.CookieDomain,
		Secure:   cfg.Auth.CookieSecure,
		SameSite: "strict",
	}
	h := routes.Handlers{
		Auth:        handlers.NewAuthHandler(sessionService, ipConfig, cookies, logger),
		Admins:      handlers.NewAdminHandler(adminService, ipConfig, logger),
		SystemUsers: handlers.NewSystemUserHandler(systemUserService, ipConfig, logger),
		Services:    handlers.NewServiceHandler(serviceControl, ipConfig, logger),
		Monitoring:  handlers.NewMonitoringHandler(metricsService, alertService, dashboardService, ipConfig, logger),
		Audit:       handlers.NewAuditHandler(auditService, logger),
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.RequestLogger(logger, metrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	router.Route("/api/v1", func(r chi.Router) {
		routes.RegisterRoutes(r, h, routes.Security{
			Sessions:  sessionService,
			CSRF:      csrfSigner,
			IPConfig:  ipConfig,
			LoginRate: middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.LoginRateLimit},
			Logger:    logger,
		})
	})

	router.Handle("/metrics", metrics.Handler())

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "up"})
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start background tasks
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	cleanupManager := background.NewCleanupManager(sessionService, metricsService, cfg.Metrics.Retention, logger, cfg.Auth.SweepInterval)
	go cleanupManager.Start(bgCtx)

	var metricsCollector *background.MetricsCollector
	if cfg.Metrics.CollectorEnabled {
		metricsCollector = background.NewMetricsCollector(
			collector.NewHostSampler(cfg.Metrics.DiskPath),
			metricsService,
			serviceControl,
			logger,
			cfg.Metrics.CollectInterval,
		)
		go metricsCollector.Start(bgCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	bgCancel()
	cleanupManager.Stop()
	if metricsCollector != nil {
		metricsCollector.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// newNotifier sends through SES when configured and falls back to logging.
func newNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	if !cfg.Email.Enabled() {
		logger.Info("email notifications not configured, logging only")
		return notify.NewLogNotifier(logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ses, err := notify.NewSESNotifier(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Email.AlertRecipients, logger)
	if err != nil {
		logger.Error("failed to initialize SES notifier, logging only", slog.Any("error", err))
		return notify.NewLogNotifier(logger)
	}
	return ses
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
