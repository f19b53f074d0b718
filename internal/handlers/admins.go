package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/BradenHooton/hostpanel/internal/auth"
	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/services"
	pkghttp "github.com/BradenHooton/hostpanel/pkg/http"
)

// AdminServiceInterface defines the admin account operations
type AdminServiceInterface interface {
	CreateAdmin(ctx context.Context, actor services.Actor, req models.AdminUserCreateRequest) (*models.AdminUser, error)
	ListAdmins(ctx context.Context, limit, offset int) ([]*models.AdminUser, int, error)
	GetAdmin(ctx context.Context, id uuid.UUID) (*models.AdminUser, error)
	DisableAdmin(ctx context.Context, actor services.Actor, id uuid.UUID) error
	UnlockAdmin(ctx context.Context, actor services.Actor, id uuid.UUID) error
	ResetAdminPassword(ctx context.Context, actor services.Actor, id uuid.UUID, req models.PasswordResetRequest) error
	SetupTwoFactor(ctx context.Context, actor services.Actor) (*auth.Enrollment, error)
	EnableTwoFactor(ctx context.Context, actor services.Actor, code string) error
	DisableTwoFactor(ctx context.Context, actor services.Actor, id uuid.UUID, code string) error
}

// AdminHandler handles admin account management and 2FA enrollment
type AdminHandler struct {
	service  AdminServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(service AdminServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// TwoFactorCodeRequest carries a TOTP code.
type TwoFactorCodeRequest struct {
	Code string `json:"code"`
}

// TwoFactorSetupResponse is shown once, right after enrollment.
type TwoFactorSetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURL string `json:"provisioning_url"`
	QRCode          string `json:"qr_code"`
}

// ListAdmins handles GET /admins
func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	admins, total, err := h.service.ListAdmins(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeList(w, admins, total, limit, offset)
}

// GetAdmin handles GET /admins/{id}
func (h *AdminHandler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	admin, err := h.service.GetAdmin(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, admin)
}

// CreateAdmin handles POST /admins
func (h *AdminHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req models.AdminUserCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	admin, err := h.service.CreateAdmin(r.Context(), actorFrom(r, h.ipConfig), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, admin)
}

// DisableAdmin handles POST /admins/{id}/disable
func (h *AdminHandler) DisableAdmin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DisableAdmin(r.Context(), actorFrom(r, h.ipConfig), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnlockAdmin handles POST /admins/{id}/unlock
func (h *AdminHandler) UnlockAdmin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.UnlockAdmin(r.Context(), actorFrom(r, h.ipConfig), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetPassword handles POST /admins/{id}/password. Any admin may call it
// for their own id.
func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req models.PasswordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ResetAdminPassword(r.Context(), actorFrom(r, h.ipConfig), id, req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetupTwoFactor handles POST /auth/2fa/setup
func (h *AdminHandler) SetupTwoFactor(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.service.SetupTwoFactor(r.Context(), actorFrom(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TwoFactorSetupResponse{
		Secret:          enrollment.Secret,
		ProvisioningURL: enrollment.ProvisioningURL,
		QRCode:          enrollment.QRCodeDataURL,
	})
}

// EnableTwoFactor handles POST /auth/2fa/enable
func (h *AdminHandler) EnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req TwoFactorCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.service.EnableTwoFactor(r.Context(), actorFrom(r, h.ipConfig), req.Code)
	if err != nil {
		h.writeTwoFactorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DisableTwoFactor handles POST /admins/{id}/2fa/disable
func (h *AdminHandler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req TwoFactorCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.service.DisableTwoFactor(r.Context(), actorFrom(r, h.ipConfig), id, req.Code)
	if err != nil {
		h.writeTwoFactorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeTwoFactorError reports a wrong code as bad input: the caller is
// already authenticated and must not be sent back to the login page.
func (h *AdminHandler) writeTwoFactorError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrTwoFactorInvalid) {
		pkghttp.WriteBadRequest(w, "Invalid two-factor code")
		return
	}
	writeServiceError(w, h.logger, err)
}
