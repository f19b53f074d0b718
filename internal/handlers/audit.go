package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/hostpanel/internal/models"
	pkghttp "github.com/BradenHooton/hostpanel/pkg/http"
)

// AuditServiceInterface defines the audit trail queries
type AuditServiceInterface interface {
	List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int, error)
	ForAdmin(ctx context.Context, adminID uuid.UUID, limit, offset int) ([]*models.AuditLog, int, error)
	ForSystemUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, int, error)
}

// AuditHandler handles audit log HTTP requests
type AuditHandler struct {
	service AuditServiceInterface
	logger  *slog.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(service AuditServiceInterface, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		service: service,
		logger:  logger,
	}
}

// List handles GET /audit-logs. Filters: action_type, action_status,
// admin_user_id, target_user_id, resource_name, since, until (RFC 3339).
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	filter, msg := parseAuditFilter(r.URL.Query())
	if msg != "" {
		pkghttp.WriteBadRequest(w, msg)
		return
	}
	filter.Limit, filter.Offset = limit, offset

	logs, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeList(w, logs, total, limit, offset)
}

// ForAdmin handles GET /audit-logs/admins/{id}
func (h *AuditHandler) ForAdmin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	limit, offset := pagination(r)
	logs, total, err := h.service.ForAdmin(r.Context(), id, limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeList(w, logs, total, limit, offset)
}

// ForSystemUser handles GET /audit-logs/system-users/{id}
func (h *AuditHandler) ForSystemUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	limit, offset := pagination(r)
	logs, total, err := h.service.ForSystemUser(r.Context(), id, limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeList(w, logs, total, limit, offset)
}

// parseAuditFilter returns a non-empty message naming the first bad parameter.
func parseAuditFilter(q url.Values) (models.AuditFilter, string) {
	var f models.AuditFilter

	if raw := q.Get("action_type"); raw != "" {
		at := models.ActionType(raw)
		if !at.Valid() {
			return f, "Invalid action_type"
		}
		f.ActionType = &at
	}
	if raw := q.Get("action_status"); raw != "" {
		st := models.ActionStatus(raw)
		if !st.Valid() {
			return f, "Invalid action_status"
		}
		f.ActionStatus = &st
	}
	for _, p := range []struct {
		name string
		dst  **uuid.UUID
	}{
		{"admin_user_id", &f.AdminUserID},
		{"target_user_id", &f.TargetUserID},
	} {
		if raw := q.Get(p.name); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return f, "Invalid " + p.name
			}
			*p.dst = &id
		}
	}
	if raw := q.Get("resource_name"); raw != "" {
		f.ResourceName = &raw
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"since", &f.Since},
		{"until", &f.Until},
	} {
		if raw := q.Get(p.name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return f, "Invalid " + p.name
			}
			*p.dst = &t
		}
	}
	return f, ""
}
