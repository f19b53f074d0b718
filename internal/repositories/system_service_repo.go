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

type SystemServiceRepository struct {
	db *database.DB
}

func NewSystemServiceRepository(db *database.DB) *SystemServiceRepository {
	return &SystemServiceRepository{db: db}
}

const systemServiceColumns = `id, service_name, display_name, description, status, is_enabled, is_active,
	main_pid, memory_usage_bytes, cpu_usage_percent, last_started, last_updated, restart_count,
	unit_file_path, service_config`

func scanSystemServiceRow(scanner rowScanner) (*models.SystemService, error) {
	var s models.SystemService

	err := scanner.Scan(
		&s.ID, &s.ServiceName, &s.DisplayName, &s.Description, &s.Status, &s.IsEnabled, &s.IsActive,
		&s.MainPID, &s.MemoryUsageBytes, &s.CPUUsagePercent, &s.LastStarted, &s.LastUpdated, &s.RestartCount,
		&s.UnitFilePath, &s.ServiceConfig,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &s, nil
}

func scanSystemServiceRows(rows pgx.Rows) ([]*models.SystemService, error) {
	defer rows.Close()

	services := make([]*models.SystemService, 0)

	for rows.Next() {
		s, err := scanSystemServiceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating service rows: %w", database.MapPostgresError(err))
	}

	return services, nil
}

func (r *SystemServiceRepository) Create(ctx context.Context, s *models.SystemService) (*models.SystemService, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = models.ServiceStatusUnknown
	}
	s.LastUpdated = time.Now().UTC()

	query := `
		INSERT INTO system_services (id, service_name, display_name, description, status, is_enabled, is_active,
			unit_file_path, service_config, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + systemServiceColumns

	return scanSystemServiceRow(r.db.Pool.QueryRow(ctx, query,
		s.ID, s.ServiceName, s.DisplayName, s.Description, s.Status, s.IsEnabled, s.IsActive,
		s.UnitFilePath, s.ServiceConfig, s.LastUpdated,
	))
}

func (r *SystemServiceRepository) GetByName(ctx context.Context, name string) (*models.SystemService, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + systemServiceColumns + ` FROM system_services WHERE service_name = $1`
	return scanSystemServiceRow(r.db.Pool.QueryRow(ctx, query, name))
}

func (r *SystemServiceRepository) List(ctx context.Context, limit, offset int) ([]*models.SystemService, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + systemServiceColumns + ` FROM system_services ORDER BY service_name LIMIT $1 OFFSET $2`
	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", database.MapPostgresError(err))
	}
	return scanSystemServiceRows(rows)
}

// UpdateState records the unit state observed after an action.
// restarted bumps restart_count and last_started.
func (r *SystemServiceRepository) UpdateState(ctx context.Context, name string, st models.ServiceState, restarted bool, now time.Time) (*models.SystemService, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		UPDATE system_services SET
			status = $2, is_active = $3, is_enabled = $4, main_pid = $5, memory_usage_bytes = $6,
			last_updated = $7,
			last_started = CASE WHEN $8 THEN $7 ELSE last_started END,
			restart_count = restart_count + CASE WHEN $8 THEN 1 ELSE 0 END
		WHERE service_name = $1
		RETURNING ` + systemServiceColumns

	return scanSystemServiceRow(r.db.Pool.QueryRow(ctx, query,
		name, st.Status, st.IsActive, st.IsEnabled, st.MainPID, st.MemoryBytes, now, restarted,
	))
}

// CountByStatus returns the number of registered services per status.
func (r *SystemServiceRepository) CountByStatus(ctx context.Context) (map[models.ServiceStatus]int, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, `SELECT status, COUNT(*) FROM system_services GROUP BY status`)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	counts := make(map[models.ServiceStatus]int)
	for rows.Next() {
		var status models.ServiceStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, database.MapPostgresError(err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return counts, nil
}
