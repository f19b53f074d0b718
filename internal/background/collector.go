package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/hostpanel/internal/collector"
	"github.com/BradenHooton/hostpanel/internal/models"
)

// MetricIngester stores a sample and evaluates alert thresholds.
type MetricIngester interface {
	Ingest(ctx context.Context, req models.SystemMetricCreateRequest) (*models.SystemMetric, error)
	UpdateServerInfo(ctx context.Context, info *models.ServerInfo) (*models.ServerInfo, error)
}

// ServiceRefresher re-reads the state of every registered unit.
type ServiceRefresher interface {
	RefreshAll(ctx context.Context) (int, error)
}

// MetricsCollector samples the host on an interval, feeds the samples to
// the metrics service and refreshes registered service states.
type MetricsCollector struct {
	sampler  collector.Sampler
	metrics  MetricIngester
	services ServiceRefresher
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

func NewMetricsCollector(
	sampler collector.Sampler,
	metrics MetricIngester,
	services ServiceRefresher,
	logger *slog.Logger,
	interval time.Duration,
) *MetricsCollector {
	return &MetricsCollector{
		sampler:  sampler,
		metrics:  metrics,
		services: services,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start records the host description once, then collects until stopped.
func (mc *MetricsCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.recordHostInfo(ctx)
	mc.collect(ctx)

	for {
		select {
		case <-ticker.C:
			mc.collect(ctx)
		case <-mc.stopCh:
			mc.logger.Info("metrics collector stopped")
			return
		case <-ctx.Done():
			mc.logger.Info("metrics collector context cancelled")
			return
		}
	}
}

func (mc *MetricsCollector) recordHostInfo(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	info, err := mc.sampler.HostInfo(jobCtx)
	if err != nil {
		mc.logger.Warn("failed to read host info", slog.Any("error", err))
		return
	}
	if _, err := mc.metrics.UpdateServerInfo(jobCtx, info); err != nil {
		mc.logger.Error("failed to store host info", slog.Any("error", err))
	}
}

func (mc *MetricsCollector) collect(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	sample, err := mc.sampler.Sample(jobCtx)
	if err != nil {
		mc.logger.Warn("failed to sample host", slog.Any("error", err))
	} else if _, err := mc.metrics.Ingest(jobCtx, *sample); err != nil {
		mc.logger.Error("failed to ingest host sample", slog.Any("error", err))
	}

	if mc.services == nil {
		return
	}
	if _, err := mc.services.RefreshAll(jobCtx); err != nil {
		mc.logger.Error("failed to refresh services", slog.Any("error", err))
	}
}

// Stop signals the collector to stop
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
}
