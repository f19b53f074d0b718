package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/hostpanel/internal/models"
)

var testThresholds = Thresholds{CPU: 90, Memory: 90, Disk: 95}

func sample(cpu, mem, disk float64) models.SystemMetricCreateRequest {
	return models.SystemMetricCreateRequest{
		CPUUsagePercent:    cpu,
		MemoryUsagePercent: mem,
		DiskUsagePercent:   disk,
		MemoryTotalGB:      16,
		MemoryUsedGB:       16 * mem / 100,
		DiskTotalGB:        100,
		DiskUsedGB:         disk,
		LoadAverage1m:      0.5,
	}
}

func newMetricsFixture() (*MetricsService, *MockMetricRepository, *memAlerts, *MockNotifier) {
	metrics := &MockMetricRepository{}
	alerts := &memAlerts{}
	notifier := &MockNotifier{}
	alertSvc := NewAlertService(alerts, notifier, discardLogger())
	return NewMetricsService(metrics, &MockServerInfoRepository{}, alertSvc, testThresholds, discardLogger()), metrics, alerts, notifier
}

func TestIngest_StoresSample(t *testing.T) {
	svc, metrics, _, _ := newMetricsFixture()
	var stored *models.SystemMetric
	metrics.CreateFunc = func(ctx context.Context, m *models.SystemMetric) (*models.SystemMetric, error) {
		m.ID = uuid.New()
		stored = m
		return m, nil
	}

	got, err := svc.Ingest(context.Background(), sample(12.5, 40, 50))
	require.NoError(t, err)
	assert.Equal(t, stored, got)
	assert.Equal(t, 12.5, got.CPUUsagePercent)
	assert.WithinDuration(t, time.Now(), got.Timestamp, 5*time.Second)
}

func TestIngest_RejectsInvalidSample(t *testing.T) {
	svc, metrics, _, _ := newMetricsFixture()
	called := false
	metrics.CreateFunc = func(ctx context.Context, m *models.SystemMetric) (*models.SystemMetric, error) {
		called = true
		return m, nil
	}

	bad := sample(10, 10, 10)
	bad.DiskUsedGB = 150
	_, err := svc.Ingest(context.Background(), bad)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.Ingest(context.Background(), sample(101, 10, 10))
	assert.ErrorIs(t, err, models.ErrBadRequest)
	assert.False(t, called)
}

func TestIngest_ThresholdAlertLifecycle(t *testing.T) {
	svc, _, alerts, _ := newMetricsFixture()
	ctx := context.Background()

	_, err := svc.Ingest(ctx, sample(95, 40, 50))
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, sample(97, 40, 50))
	require.NoError(t, err)

	open, err := alerts.List(ctx, models.AlertFilter{Unresolved: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, AlertTypeCPUHigh, open[0].AlertType)
	assert.Equal(t, models.SeverityWarning, open[0].Severity)
	assert.Equal(t, 95.0, *open[0].CurrentValue)
	assert.Equal(t, 90.0, *open[0].ThresholdValue)

	_, err = svc.Ingest(ctx, sample(20, 40, 50))
	require.NoError(t, err)

	open, err = alerts.List(ctx, models.AlertFilter{Unresolved: true})
	require.NoError(t, err)
	assert.Empty(t, open)

	all, err := alerts.List(ctx, models.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].ResolvedAt)
}

func TestIngest_DiskFullIsCriticalAndNotified(t *testing.T) {
	svc, _, alerts, notifier := newMetricsFixture()

	_, err := svc.Ingest(context.Background(), sample(10, 10, 99))
	require.NoError(t, err)

	counts, err := alerts.CountOpenBySeverity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.SeverityCritical])
	assert.Equal(t, []string{AlertTypeDiskFull}, notifier.Critical)
}

func TestPrune(t *testing.T) {
	svc, metrics, _, _ := newMetricsFixture()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	var cutoff time.Time
	metrics.DeleteOlderThanFunc = func(ctx context.Context, c time.Time) (int64, error) {
		cutoff = c
		return 42, nil
	}

	n, err := svc.Prune(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, now.Add(-30*24*time.Hour), cutoff)
}

func TestAlertService_AcknowledgeAndCreate(t *testing.T) {
	alerts := &memAlerts{}
	notifier := &MockNotifier{}
	svc := NewAlertService(alerts, notifier, discardLogger())
	ctx := context.Background()

	created, err := svc.CreateAlert(ctx, models.AlertCreateRequest{
		AlertType: "backup_failed",
		Severity:  "CRITICAL",
		Title:     "Nightly backup failed",
		Message:   "rsync exited with status 23",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, created.Severity)
	assert.Equal(t, []string{"backup_failed"}, notifier.Critical)

	acked, err := svc.Acknowledge(ctx, testActor(), created.ID)
	require.NoError(t, err)
	assert.True(t, acked.IsAcknowledged)
	assert.Equal(t, "alice", *acked.AcknowledgedBy)

	again, err := svc.Acknowledge(ctx, Actor{}, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", *again.AcknowledgedBy)

	_, err = svc.Acknowledge(ctx, testActor(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDashboard_ToleratesEmptyStore(t *testing.T) {
	metricsSvc, _, alerts, _ := newMetricsFixture()
	alertSvc := NewAlertService(alerts, nil, discardLogger())
	_, audit := newTestRunner(&MockAuditLogRepository{})
	services := &MockSystemServiceRepository{
		CountByStatusFunc: func(ctx context.Context) (map[models.ServiceStatus]int, error) {
			return map[models.ServiceStatus]int{models.ServiceStatusActive: 3, models.ServiceStatusFailed: 1}, nil
		},
	}
	users := &MockSystemUserRepository{CountFunc: func(ctx context.Context) (int, error) { return 4, nil }}

	dash := NewDashboardService(metricsSvc, alertSvc, audit, services, users, sessionCounter(2), discardLogger())
	resp, err := dash.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Nil(t, resp.CurrentMetrics)
	assert.Nil(t, resp.ServerInfo)
	assert.Equal(t, 4, resp.TotalServices)
	assert.Equal(t, 4, resp.SystemUserCount)
	assert.Equal(t, 2, resp.ActiveSessions)
	assert.Empty(t, resp.History)
}

type sessionCounter int

func (c sessionCounter) CountActive(ctx context.Context, now time.Time) (int, error) {
	return int(c), nil
}
