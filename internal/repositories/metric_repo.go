package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/hostpanel/internal/database"
	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type MetricRepository struct {
	db *database.DB
}

func NewMetricRepository(db *database.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

const metricColumns = `id, timestamp, cpu_usage_percent, memory_usage_percent, disk_usage_percent,
	memory_total_gb, memory_used_gb, disk_total_gb, disk_used_gb,
	load_average_1m, load_average_5m, load_average_15m`

func scanMetricRow(scanner rowScanner) (*models.SystemMetric, error) {
	var m models.SystemMetric

	err := scanner.Scan(
		&m.ID, &m.Timestamp, &m.CPUUsagePercent, &m.MemoryUsagePercent, &m.DiskUsagePercent,
		&m.MemoryTotalGB, &m.MemoryUsedGB, &m.DiskTotalGB, &m.DiskUsedGB,
		&m.LoadAverage1m, &m.LoadAverage5m, &m.LoadAverage15m,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &m, nil
}

func scanMetricRows(rows pgx.Rows) ([]*models.SystemMetric, error) {
	defer rows.Close()

	metrics := make([]*models.SystemMetric, 0)

	for rows.Next() {
		m, err := scanMetricRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metric rows: %w", database.MapPostgresError(err))
	}

	return metrics, nil
}

func (r *MetricRepository) Create(ctx context.Context, m *models.SystemMetric) (*models.SystemMetric, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO system_metrics (id, timestamp, cpu_usage_percent, memory_usage_percent, disk_usage_percent,
			memory_total_gb, memory_used_gb, disk_total_gb, disk_used_gb,
			load_average_1m, load_average_5m, load_average_15m)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + metricColumns

	return scanMetricRow(r.db.Pool.QueryRow(ctx, query,
		m.ID, m.Timestamp, m.CPUUsagePercent, m.MemoryUsagePercent, m.DiskUsagePercent,
		m.MemoryTotalGB, m.MemoryUsedGB, m.DiskTotalGB, m.DiskUsedGB,
		m.LoadAverage1m, m.LoadAverage5m, m.LoadAverage15m,
	))
}

func (r *MetricRepository) Latest(ctx context.Context) (*models.SystemMetric, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + metricColumns + ` FROM system_metrics ORDER BY timestamp DESC LIMIT 1`
	return scanMetricRow(r.db.Pool.QueryRow(ctx, query))
}

// History returns samples taken at or after since, oldest first.
func (r *MetricRepository) History(ctx context.Context, since time.Time, limit int) ([]*models.SystemMetric, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + metricColumns + ` FROM system_metrics
		WHERE timestamp >= $1 ORDER BY timestamp ASC LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", database.MapPostgresError(err))
	}
	return scanMetricRows(rows)
}

// DeleteOlderThan prunes samples past the retention window.
func (r *MetricRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.Pool.Exec(ctx, `DELETE FROM system_metrics WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
