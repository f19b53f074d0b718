package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/services"
	pkghttp "github.com/BradenHooton/hostpanel/pkg/http"
)

// SystemUserServiceInterface defines the OS account operations
type SystemUserServiceInterface interface {
	Create(ctx context.Context, actor services.Actor, req models.SystemUserCreateRequest) (*models.SystemUser, error)
	Get(ctx context.Context, id uuid.UUID) (*models.SystemUser, error)
	List(ctx context.Context, limit, offset int) ([]*models.SystemUser, int, error)
	Update(ctx context.Context, actor services.Actor, id uuid.UUID, req models.SystemUserUpdateRequest) (*models.SystemUser, error)
	Delete(ctx context.Context, actor services.Actor, id uuid.UUID, removeHome bool) error
	ResetPassword(ctx context.Context, actor services.Actor, id uuid.UUID, req models.PasswordResetRequest) error
	Lock(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.SystemUser, error)
	Unlock(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.SystemUser, error)
}

// SystemUserHandler handles Linux account management
type SystemUserHandler struct {
	service  SystemUserServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewSystemUserHandler creates a new SystemUserHandler
func NewSystemUserHandler(service SystemUserServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *SystemUserHandler {
	return &SystemUserHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// List handles GET /system-users
func (h *SystemUserHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	users, total, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeList(w, users, total, limit, offset)
}

// Get handles GET /system-users/{id}
func (h *SystemUserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, user)
}

// Create handles POST /system-users
func (h *SystemUserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.SystemUserCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Create(r.Context(), actorFrom(r, h.ipConfig), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, user)
}

// Update handles PATCH /system-users/{id}
func (h *SystemUserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req models.SystemUserUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Update(r.Context(), actorFrom(r, h.ipConfig), id, req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, user)
}

// Delete handles DELETE /system-users/{id}?remove_home=true
func (h *SystemUserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	removeHome := false
	if raw := r.URL.Query().Get("remove_home"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid remove_home")
			return
		}
		removeHome = parsed
	}

	if err := h.service.Delete(r.Context(), actorFrom(r, h.ipConfig), id, removeHome); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetPassword handles POST /system-users/{id}/password
func (h *SystemUserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req models.PasswordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), actorFrom(r, h.ipConfig), id, req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Lock handles POST /system-users/{id}/lock
func (h *SystemUserHandler) Lock(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, true)
}

// Unlock handles POST /system-users/{id}/unlock
func (h *SystemUserHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	h.setLocked(w, r, false)
}

func (h *SystemUserHandler) setLocked(w http.ResponseWriter, r *http.Request, lock bool) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	op := h.service.Unlock
	if lock {
		op = h.service.Lock
	}
	user, err := op(r.Context(), actorFrom(r, h.ipConfig), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, user)
}
