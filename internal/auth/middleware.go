package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/hostpanel/internal/models"
	pkghttp "github.com/BradenHooton/hostpanel/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	adminContextKey   contextKey = "admin"
	sessionContextKey contextKey = "session"
	viaCookieKey      contextKey = "via_cookie"
)

// SessionValidator resolves a client token to its live session and owner.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*models.AdminUser, *models.AdminSession, error)
}

// RequireSession rejects requests without a usable session and stores the
// admin and session in the request context.
func RequireSession(validator SessionValidator, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fromCookie := TokenFromRequest(r)
			if token == "" {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			admin, session, err := validator.Validate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, models.ErrUnauthenticated):
					pkghttp.WriteUnauthorized(w, "Authentication required")
				case errors.Is(err, models.ErrStoreUnavailable):
					pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable", 5)
				default:
					logger.Error("session validation failed", slog.String("error", err.Error()))
					pkghttp.WriteInternalError(w, "Internal server error")
				}
				return
			}

			ctx := context.WithValue(r.Context(), adminContextKey, admin)
			ctx = context.WithValue(ctx, sessionContextKey, session)
			ctx = context.WithValue(ctx, viaCookieKey, fromCookie)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCSRF checks the X-CSRF-Token header on state-changing requests
// authenticated by cookie. Bearer clients are not exposed to CSRF and skip it.
// Must run after RequireSession.
func RequireCSRF(signer *CSRFSigner) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			viaCookie, _ := r.Context().Value(viaCookieKey).(bool)
			if !viaCookie {
				next.ServeHTTP(w, r)
				return
			}

			session := SessionFromContext(r.Context())
			if session == nil || !signer.Verify(session.SessionID, r.Header.Get(CSRFHeaderName)) {
				pkghttp.WriteForbidden(w, "Invalid or missing CSRF token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperuser allows only superusers through. Must run after RequireSession.
func RequireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin := AdminFromContext(r.Context())
		if admin == nil {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}
		if !admin.IsSuperuser {
			pkghttp.WriteForbidden(w, "Superuser privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminFromContext returns the authenticated admin, or nil.
func AdminFromContext(ctx context.Context) *models.AdminUser {
	admin, _ := ctx.Value(adminContextKey).(*models.AdminUser)
	return admin
}

// SessionFromContext returns the current session, or nil.
func SessionFromContext(ctx context.Context) *models.AdminSession {
	session, _ := ctx.Value(sessionContextKey).(*models.AdminSession)
	return session
}

// WithAdmin stores admin and session in ctx. Used by tests and background callers.
func WithAdmin(ctx context.Context, admin *models.AdminUser, session *models.AdminSession) context.Context {
	ctx = context.WithValue(ctx, adminContextKey, admin)
	return context.WithValue(ctx, sessionContextKey, session)
}
