package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/hostpanel/internal/models"
)

const (
	dashboardRecentAudit   = 10
	dashboardActiveAlerts  = 20
	dashboardHistoryWindow = 24 * time.Hour
)

// HistoryPoint is one cpu/memory sample for the dashboard chart.
type HistoryPoint struct {
	Timestamp          time.Time `json:"timestamp"`
	CPUUsagePercent    float64   `json:"cpu_usage_percent"`
	MemoryUsagePercent float64   `json:"memory_usage_percent"`
}

// DashboardResponse is the overview shown on the panel's landing page.
type DashboardResponse struct {
	CurrentMetrics  *models.SystemMetric         `json:"current_metrics"`
	ServerInfo      *models.ServerInfo           `json:"server_info"`
	ServiceCounts   map[models.ServiceStatus]int `json:"service_counts"`
	TotalServices   int                          `json:"total_services"`
	SystemUserCount int                          `json:"system_user_count"`
	ActiveAlerts    []*models.SystemAlert        `json:"active_alerts"`
	AlertCounts     map[models.AlertSeverity]int `json:"alert_counts"`
	RecentAuditLogs []*models.AuditLog           `json:"recent_audit_logs"`
	History         []HistoryPoint               `json:"history"`
	ActiveSessions  int                          `json:"active_session_count"`
}

// ActiveSessionCounter is the session store method the dashboard needs.
type ActiveSessionCounter interface {
	CountActive(ctx context.Context, now time.Time) (int, error)
}

// DashboardService aggregates read-only views from the other services.
type DashboardService struct {
	metrics  *MetricsService
	alerts   *AlertService
	audit    *AuditService
	services SystemServiceRepository
	users    SystemUserRepository
	sessions ActiveSessionCounter
	logger   *slog.Logger
	now      func() time.Time
}

func NewDashboardService(metrics *MetricsService, alerts *AlertService, audit *AuditService, services SystemServiceRepository, users SystemUserRepository, sessions ActiveSessionCounter, logger *slog.Logger) *DashboardService {
	return &DashboardService{
		metrics:  metrics,
		alerts:   alerts,
		audit:    audit,
		services: services,
		users:    users,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// Dashboard builds the overview. A missing metric sample or server info row
// is not an error; the fields are left empty.
func (s *DashboardService) Dashboard(ctx context.Context) (*DashboardResponse, error) {
	resp := &DashboardResponse{}

	latest, err := s.metrics.Latest(ctx)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("dashboard: latest metric: %w", err)
	}
	resp.CurrentMetrics = latest

	info, err := s.metrics.ServerInfo(ctx)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("dashboard: server info: %w", err)
	}
	resp.ServerInfo = info

	if resp.ServiceCounts, err = s.services.CountByStatus(ctx); err != nil {
		return nil, fmt.Errorf("dashboard: service counts: %w", err)
	}
	for _, n := range resp.ServiceCounts {
		resp.TotalServices += n
	}

	if resp.SystemUserCount, err = s.users.Count(ctx); err != nil {
		return nil, fmt.Errorf("dashboard: system users: %w", err)
	}

	if resp.ActiveAlerts, err = s.alerts.List(ctx, models.AlertFilter{Unresolved: true, Limit: dashboardActiveAlerts}); err != nil {
		return nil, fmt.Errorf("dashboard: alerts: %w", err)
	}
	if resp.AlertCounts, err = s.alerts.CountOpenBySeverity(ctx); err != nil {
		return nil, fmt.Errorf("dashboard: alert counts: %w", err)
	}

	if resp.RecentAuditLogs, err = s.audit.Recent(ctx, dashboardRecentAudit); err != nil {
		return nil, fmt.Errorf("dashboard: audit: %w", err)
	}

	samples, err := s.metrics.History(ctx, dashboardHistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("dashboard: history: %w", err)
	}
	resp.History = make([]HistoryPoint, 0, len(samples))
	for _, m := range samples {
		resp.History = append(resp.History, HistoryPoint{
			Timestamp:          m.Timestamp,
			CPUUsagePercent:    m.CPUUsagePercent,
			MemoryUsagePercent: m.MemoryUsagePercent,
		})
	}

	if resp.ActiveSessions, err = s.sessions.CountActive(ctx, s.now()); err != nil {
		s.logger.WarnContext(ctx, "dashboard: failed to count sessions", slog.Any("error", err))
	}

	return resp, nil
}
