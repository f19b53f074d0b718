package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/services"
	pkghttp "github.com/BradenHooton/hostpanel/pkg/http"
)

const maxHistoryWindow = 7 * 24 * time.Hour

// MetricsServiceInterface defines host sample operations
type MetricsServiceInterface interface {
	Ingest(ctx context.Context, req models.SystemMetricCreateRequest) (*models.SystemMetric, error)
	Latest(ctx context.Context) (*models.SystemMetric, error)
	History(ctx context.Context, window time.Duration) ([]*models.SystemMetric, error)
	ServerInfo(ctx context.Context) (*models.ServerInfo, error)
}

// AlertServiceInterface defines alert operations
type AlertServiceInterface interface {
	CreateAlert(ctx context.Context, req models.AlertCreateRequest) (*models.SystemAlert, error)
	Get(ctx context.Context, id uuid.UUID) (*models.SystemAlert, error)
	List(ctx context.Context, f models.AlertFilter) ([]*models.SystemAlert, error)
	Acknowledge(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.SystemAlert, error)
	Resolve(ctx context.Context, id uuid.UUID) (*models.SystemAlert, error)
}

// DashboardServiceInterface builds the landing page overview
type DashboardServiceInterface interface {
	Dashboard(ctx context.Context) (*services.DashboardResponse, error)
}

// MonitoringHandler serves metrics, alerts and the dashboard
type MonitoringHandler struct {
	metrics   MetricsServiceInterface
	alerts    AlertServiceInterface
	dashboard DashboardServiceInterface
	ipConfig  *pkghttp.IPConfig
	logger    *slog.Logger
}

// NewMonitoringHandler creates a new MonitoringHandler
func NewMonitoringHandler(
	metrics MetricsServiceInterface,
	alerts AlertServiceInterface,
	dashboard DashboardServiceInterface,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) *MonitoringHandler {
	return &MonitoringHandler{
		metrics:   metrics,
		alerts:    alerts,
		dashboard: dashboard,
		ipConfig:  ipConfig,
		logger:    logger,
	}
}

// Dashboard handles GET /dashboard
func (h *MonitoringHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	resp, err := h.dashboard.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// IngestMetric handles POST /metrics/samples
func (h *MonitoringHandler) IngestMetric(w http.ResponseWriter, r *http.Request) {
	var req models.SystemMetricCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sample, err := h.metrics.Ingest(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, sample)
}

// LatestMetric handles GET /metrics/latest
func (h *MonitoringHandler) LatestMetric(w http.ResponseWriter, r *http.Request) {
	sample, err := h.metrics.Latest(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, sample)
}

// MetricHistory handles GET /metrics/history?window=6h
func (h *MonitoringHandler) MetricHistory(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 || parsed > maxHistoryWindow {
			pkghttp.WriteBadRequest(w, "window must be a positive duration of at most 168h")
			return
		}
		window = parsed
	}

	samples, err := h.metrics.History(r.Context(), window)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"samples": samples})
}

// ServerInfo handles GET /server-info
func (h *MonitoringHandler) ServerInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.metrics.ServerInfo(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, info)
}

// ListAlerts handles GET /alerts?severity=&alert_type=&unresolved=&acknowledged=
func (h *MonitoringHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pagination(r)
	filter := models.AlertFilter{Limit: limit, Offset: offset}

	if raw := q.Get("severity"); raw != "" {
		severity := models.AlertSeverity(raw)
		if !severity.Valid() {
			pkghttp.WriteBadRequest(w, "Invalid severity")
			return
		}
		filter.Severity = &severity
	}
	if raw := q.Get("alert_type"); raw != "" {
		filter.AlertType = &raw
	}
	if raw := q.Get("unresolved"); raw != "" {
		unresolved, err := strconv.ParseBool(raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid unresolved")
			return
		}
		filter.Unresolved = unresolved
	}
	if raw := q.Get("acknowledged"); raw != "" {
		acknowledged, err := strconv.ParseBool(raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "Invalid acknowledged")
			return
		}
		filter.Acknowledged = &acknowledged
	}

	alerts, err := h.alerts.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeList(w, alerts, len(alerts), limit, offset)
}

// GetAlert handles GET /alerts/{id}
func (h *MonitoringHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	alert, err := h.alerts.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, alert)
}

// CreateAlert handles POST /alerts
func (h *MonitoringHandler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req models.AlertCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	alert, err := h.alerts.CreateAlert(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, alert)
}

// AcknowledgeAlert handles POST /alerts/{id}/acknowledge
func (h *MonitoringHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	alert, err := h.alerts.Acknowledge(r.Context(), actorFrom(r, h.ipConfig), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, alert)
}

// ResolveAlert handles POST /alerts/{id}/resolve
func (h *MonitoringHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	alert, err := h.alerts.Resolve(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, alert)
}
