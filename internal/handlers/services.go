package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/services"
	pkghttp "github.com/BradenHooton/hostpanel/pkg/http"
)

// ServiceControlInterface defines the systemd unit operations
type ServiceControlInterface interface {
	Register(ctx context.Context, actor services.Actor, req models.ServiceRegisterRequest) (*models.SystemService, error)
	PerformAction(ctx context.Context, actor services.Actor, req models.ServiceActionRequest, variant models.ServiceActionVariant) (*models.SystemService, error)
	RefreshStatus(ctx context.Context, name string) (*models.SystemService, error)
	Get(ctx context.Context, name string) (*models.SystemService, error)
	List(ctx context.Context, limit, offset int) ([]*models.SystemService, error)
}

// ServiceHandler handles registered systemd units
type ServiceHandler struct {
	service  ServiceControlInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewServiceHandler creates a new ServiceHandler
func NewServiceHandler(service ServiceControlInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *ServiceHandler {
	return &ServiceHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// List handles GET /services
func (h *ServiceHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	units, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeList(w, units, len(units), limit, offset)
}

// Get handles GET /services/{name}
func (h *ServiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	unit, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, unit)
}

// Register handles POST /services
func (h *ServiceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.ServiceRegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	unit, err := h.service.Register(r.Context(), actorFrom(r, h.ipConfig), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, unit)
}

// PerformAction handles POST /services/actions with a
// {"service_name", "action"} body: start, stop, restart, enable, disable.
func (h *ServiceHandler) PerformAction(w http.ResponseWriter, r *http.Request) {
	var req models.ServiceActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.perform(w, r, req, models.ServiceActionStandard)
}

// Manage handles POST /services/{name}/{action}: start, stop, restart, reload.
func (h *ServiceHandler) Manage(w http.ResponseWriter, r *http.Request) {
	req := models.ServiceActionRequest{
		ServiceName: chi.URLParam(r, "name"),
		Action:      chi.URLParam(r, "action"),
	}
	h.perform(w, r, req, models.ServiceActionManagement)
}

func (h *ServiceHandler) perform(w http.ResponseWriter, r *http.Request, req models.ServiceActionRequest, variant models.ServiceActionVariant) {
	unit, err := h.service.PerformAction(r.Context(), actorFrom(r, h.ipConfig), req, variant)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, unit)
}

// Refresh handles POST /services/{name}/refresh
func (h *ServiceHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	unit, err := h.service.RefreshStatus(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, unit)
}
