package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/validation"
)

// Alert types raised by threshold evaluation.
const (
	AlertTypeCPUHigh    = "cpu_high"
	AlertTypeMemoryHigh = "memory_high"
	AlertTypeDiskFull   = "disk_full"

	maxHistoryPoints = 1440
)

// MetricRepository defines the metric sample store.
type MetricRepository interface {
	Create(ctx context.Context, m *models.SystemMetric) (*models.SystemMetric, error)
	Latest(ctx context.Context) (*models.SystemMetric, error)
	History(ctx context.Context, since time.Time, limit int) ([]*models.SystemMetric, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ServerInfoRepository defines the single-row host description store.
type ServerInfoRepository interface {
	Get(ctx context.Context) (*models.ServerInfo, error)
	Upsert(ctx context.Context, s *models.ServerInfo) (*models.ServerInfo, error)
}

// Thresholds are the usage percentages that open alerts.
type Thresholds struct {
	CPU    float64
	Memory float64
	Disk   float64
}

// MetricsService stores samples and turns threshold crossings into alerts.
type MetricsService struct {
	metrics    MetricRepository
	serverInfo ServerInfoRepository
	alerts     *AlertService
	thresholds Thresholds
	logger     *slog.Logger
	now        func() time.Time
}

func NewMetricsService(metrics MetricRepository, serverInfo ServerInfoRepository, alerts *AlertService, thresholds Thresholds, logger *slog.Logger) *MetricsService {
	return &MetricsService{
		metrics:    metrics,
		serverInfo: serverInfo,
		alerts:     alerts,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
	}
}

// Ingest validates and stores one sample, then evaluates thresholds.
// Alert bookkeeping failures are logged and do not reject the sample.
func (s *MetricsService) Ingest(ctx context.Context, req models.SystemMetricCreateRequest) (*models.SystemMetric, error) {
	req, err := validation.ValidateSystemMetricCreate(req)
	if err != nil {
		return nil, err
	}

	metric, err := s.metrics.Create(ctx, &models.SystemMetric{
		Timestamp:          s.now().UTC(),
		CPUUsagePercent:    req.CPUUsagePercent,
		MemoryUsagePercent: req.MemoryUsagePercent,
		DiskUsagePercent:   req.DiskUsagePercent,
		MemoryTotalGB:      req.MemoryTotalGB,
		MemoryUsedGB:       req.MemoryUsedGB,
		DiskTotalGB:        req.DiskTotalGB,
		DiskUsedGB:         req.DiskUsedGB,
		LoadAverage1m:      req.LoadAverage1m,
		LoadAverage5m:      req.LoadAverage5m,
		LoadAverage15m:     req.LoadAverage15m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store metric: %w", err)
	}

	s.evaluate(ctx, metric)
	return metric, nil
}

type thresholdCheck struct {
	alertType string
	severity  models.AlertSeverity
	label     string
	value     float64
	threshold float64
}

func (s *MetricsService) evaluate(ctx context.Context, m *models.SystemMetric) {
	checks := []thresholdCheck{
		{AlertTypeCPUHigh, models.SeverityWarning, "CPU usage", m.CPUUsagePercent, s.thresholds.CPU},
		{AlertTypeMemoryHigh, models.SeverityWarning, "Memory usage", m.MemoryUsagePercent, s.thresholds.Memory},
		{AlertTypeDiskFull, models.SeverityCritical, "Disk usage", m.DiskUsagePercent, s.thresholds.Disk},
	}

	for _, c := range checks {
		if c.threshold <= 0 {
			continue
		}
		if err := s.apply(ctx, c); err != nil {
			s.logger.ErrorContext(ctx, "threshold evaluation failed",
				slog.String("alert_type", c.alertType),
				slog.Any("error", err))
		}
	}
}

// apply opens an alert on the first crossing and resolves it once the value
// drops back below the threshold. At most one unresolved alert per type.
func (s *MetricsService) apply(ctx context.Context, c thresholdCheck) error {
	open, err := s.alerts.FindOpen(ctx, c.alertType)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}

	if c.value >= c.threshold {
		if open != nil {
			return nil
		}
		value, threshold := c.value, c.threshold
		_, err := s.alerts.raise(ctx, &models.SystemAlert{
			AlertType:      c.alertType,
			Severity:       c.severity,
			Title:          fmt.Sprintf("%s above %.0f%%", c.label, c.threshold),
			Message:        fmt.Sprintf("%s is at %.1f%%, threshold is %.1f%%", c.label, c.value, c.threshold),
			ThresholdValue: &threshold,
			CurrentValue:   &value,
			AlertData:      models.JSONMap{"source": "threshold"},
		})
		return err
	}

	if open != nil {
		_, err := s.alerts.Resolve(ctx, open.ID)
		return err
	}
	return nil
}

func (s *MetricsService) Latest(ctx context.Context) (*models.SystemMetric, error) {
	return s.metrics.Latest(ctx)
}

// History returns samples from the last window, oldest first.
func (s *MetricsService) History(ctx context.Context, window time.Duration) ([]*models.SystemMetric, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	samples, err := s.metrics.History(ctx, s.now().Add(-window), maxHistoryPoints)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric history: %w", err)
	}
	return samples, nil
}

// Prune deletes samples older than retention.
func (s *MetricsService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.metrics.DeleteOlderThan(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune metrics: %w", err)
	}
	return n, nil
}

func (s *MetricsService) ServerInfo(ctx context.Context) (*models.ServerInfo, error) {
	return s.serverInfo.Get(ctx)
}

func (s *MetricsService) UpdateServerInfo(ctx context.Context, info *models.ServerInfo) (*models.ServerInfo, error) {
	info.UpdatedAt = s.now().UTC()
	saved, err := s.serverInfo.Upsert(ctx, info)
	if err != nil {
		return nil, fmt.Errorf("failed to store server info: %w", err)
	}
	return saved, nil
}
