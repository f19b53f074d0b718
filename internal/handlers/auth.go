package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/hostpanel/internal/auth"
	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/services"
	"github.com/BradenHooton/hostpanel/internal/validation"
	pkghttp "github.com/BradenHooton/hostpanel/pkg/http"
)

// SessionServiceInterface defines the session operations the auth handler needs
type SessionServiceInterface interface {
	Authenticate(ctx context.Context, username, password string, client services.Actor, rememberMe bool) (*services.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, challenge, code string, client services.Actor) (*services.LoginResult, error)
	Revoke(ctx context.Context, actor services.Actor, token string) error
	RevokeByID(ctx context.Context, actor services.Actor, adminID, sessionID uuid.UUID) error
	ListSessions(ctx context.Context, adminID uuid.UUID) ([]*models.AdminSession, error)
}

// AuthHandler handles login, logout and session listing
type AuthHandler struct {
	service  SessionServiceInterface
	ipConfig *pkghttp.IPConfig
	cookies  auth.CookieConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service SessionServiceInterface, ipConfig *pkghttp.IPConfig, cookies auth.CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		cookies:  cookies,
		logger:   logger,
	}
}

// LoginResponse is returned by a completed login. When a second factor is
// required only the challenge fields are set.
type LoginResponse struct {
	Admin              *models.AdminUser `json:"admin,omitempty"`
	SessionToken       string            `json:"session_token,omitempty"`
	CSRFToken          string            `json:"csrf_token,omitempty"`
	ExpiresAt          *time.Time        `json:"expires_at,omitempty"`
	TwoFactorRequired  bool              `json:"two_factor_required"`
	ChallengeToken     string            `json:"challenge_token,omitempty"`
	ChallengeExpiresAt *time.Time        `json:"challenge_expires_at,omitempty"`
}

// MeResponse describes the caller and the session in use.
type MeResponse struct {
	Admin   *models.AdminUser    `json:"admin"`
	Session *models.AdminSession `json:"session"`
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.AdminLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req, err := validation.ValidateAdminLogin(req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	result, err := h.service.Authenticate(r.Context(), req.Username, req.Password, h.client(r), req.RememberMe)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if result.TwoFactorRequired {
		expires := result.ChallengeExpiresAt
		pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
			TwoFactorRequired:  true,
			ChallengeToken:     result.ChallengeToken,
			ChallengeExpiresAt: &expires,
		})
		return
	}
	h.writeSession(w, result)
}

// VerifyTwoFactor handles POST /auth/2fa/verify
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req models.TwoFactorVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req, err := validation.ValidateTwoFactorVerify(req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	result, err := h.service.VerifyTwoFactor(r.Context(), req.ChallengeToken, req.Code, h.client(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.writeSession(w, result)
}

// Logout handles POST /auth/logout. The cookies are cleared even when the
// session was already gone.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromRequest(r)
	if err := h.service.Revoke(r.Context(), actorFrom(r, h.ipConfig), token); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	auth.ClearSessionCookies(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, MeResponse{
		Admin:   auth.AdminFromContext(r.Context()),
		Session: auth.SessionFromContext(r.Context()),
	})
}

// ListSessions handles GET /auth/sessions
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	admin := auth.AdminFromContext(r.Context())
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), admin.ID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// RevokeSession handles DELETE /auth/sessions/{sessionID}. Superusers may
// pass ?admin_id= to end another admin's session.
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "sessionID")
	if !ok {
		return
	}

	admin := auth.AdminFromContext(r.Context())
	if admin == nil {
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}
	owner := admin.ID
	if raw := r.URL.Query().Get("admin_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid admin_id")
			return
		}
		owner = parsed
	}

	if err := h.service.RevokeByID(r.Context(), actorFrom(r, h.ipConfig), owner, sessionID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) client(r *http.Request) services.Actor {
	info := pkghttp.ExtractClientInfo(r, h.ipConfig)
	return services.Actor{IPAddress: info.IPAddress, UserAgent: info.UserAgent}
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, result *services.LoginResult) {
	expires := result.Session.ExpiresAt
	auth.SetSessionCookie(w, result.Token, expires, h.cookies)
	auth.SetCSRFCookie(w, result.CSRFToken, expires, h.cookies)

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Admin:        result.Admin,
		SessionToken: result.Token,
		CSRFToken:    result.CSRFToken,
		ExpiresAt:    &expires,
	})
}
