package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/hostpanel/internal/auth"
	"github.com/BradenHooton/hostpanel/internal/handlers"
	"github.com/BradenHooton/hostpanel/internal/middleware"
	pkghttp "github.com/BradenHooton/hostpanel/pkg/http"
)

// Handlers groups every HTTP handler the API mounts
type Handlers struct {
	Auth        *handlers.AuthHandler
	Admins      *handlers.AdminHandler
	SystemUsers *handlers.SystemUserHandler
	Services    *handlers.ServiceHandler
	Monitoring  *handlers.MonitoringHandler
	Audit       *handlers.AuditHandler
}

// Security holds what the route guards need
type Security struct {
	Sessions  auth.SessionValidator
	CSRF      *auth.CSRFSigner
	IPConfig  *pkghttp.IPConfig
	LoginRate middleware.RateLimitConfig
	Logger    *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, sec Security) {
	loginLimit := middleware.RateLimitByIP(sec.LoginRate, sec.IPConfig)

	// Public routes - no session required
	router.With(loginLimit).Post("/auth/login", h.Auth.Login)
	router.With(loginLimit).Post("/auth/2fa/verify", h.Auth.VerifyTwoFactor)

	// Protected routes - session and, for cookie clients, CSRF required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(sec.Sessions, sec.Logger))
		r.Use(auth.RequireCSRF(sec.CSRF))

		r.Post("/auth/logout", h.Auth.Logout)
		r.Get("/auth/me", h.Auth.Me)
		r.Get("/auth/sessions", h.Auth.ListSessions)
		r.Delete("/auth/sessions/{sessionID}", h.Auth.RevokeSession)
		r.Post("/auth/2fa/setup", h.Admins.SetupTwoFactor)
		r.Post("/auth/2fa/enable", h.Admins.EnableTwoFactor)

		// self or superuser, checked by the service
		r.Post("/admins/{id}/password", h.Admins.ResetPassword)
		r.Post("/admins/{id}/2fa/disable", h.Admins.DisableTwoFactor)

		r.Get("/dashboard", h.Monitoring.Dashboard)
		r.Get("/server-info", h.Monitoring.ServerInfo)
		r.Route("/metrics", func(r chi.Router) {
			r.Post("/samples", h.Monitoring.IngestMetric)
			r.Get("/latest", h.Monitoring.LatestMetric)
			r.Get("/history", h.Monitoring.MetricHistory)
		})
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.Monitoring.ListAlerts)
			r.Post("/", h.Monitoring.CreateAlert)
			r.Get("/{id}", h.Monitoring.GetAlert)
			r.Post("/{id}/acknowledge", h.Monitoring.AcknowledgeAlert)
			r.Post("/{id}/resolve", h.Monitoring.ResolveAlert)
		})

		r.Route("/services", func(r chi.Router) {
			r.Get("/", h.Services.List)
			r.Post("/", h.Services.Register)
			r.Post("/actions", h.Services.PerformAction)
			r.Get("/{name}", h.Services.Get)
			r.Post("/{name}/refresh", h.Services.Refresh)
			r.Post("/{name}/{action}", h.Services.Manage)
		})

		r.Route("/system-users", func(r chi.Router) {
			r.Get("/", h.SystemUsers.List)
			r.Post("/", h.SystemUsers.Create)
			r.Get("/{id}", h.SystemUsers.Get)
			r.Patch("/{id}", h.SystemUsers.Update)
			r.Delete("/{id}", h.SystemUsers.Delete)
			r.Post("/{id}/password", h.SystemUsers.ResetPassword)
			r.Post("/{id}/lock", h.SystemUsers.Lock)
			r.Post("/{id}/unlock", h.SystemUsers.Unlock)
		})

		// Superuser-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSuperuser)

			r.Get("/admins", h.Admins.ListAdmins)
			r.Post("/admins", h.Admins.CreateAdmin)
			r.Get("/admins/{id}", h.Admins.GetAdmin)
			r.Post("/admins/{id}/disable", h.Admins.DisableAdmin)
			r.Post("/admins/{id}/unlock", h.Admins.UnlockAdmin)

			r.Get("/audit-logs", h.Audit.List)
			r.Get("/audit-logs/admins/{id}", h.Audit.ForAdmin)
			r.Get("/audit-logs/system-users/{id}", h.Audit.ForSystemUser)
		})
	})
}
