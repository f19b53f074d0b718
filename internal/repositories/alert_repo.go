package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/hostpanel/internal/database"
	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type AlertRepository struct {
	db *database.DB
}

func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, alert_type, severity, title, message, resource_name, threshold_value, current_value,
	created_at, resolved_at, is_acknowledged, acknowledged_by, acknowledged_at, alert_data`

func scanAlertRow(scanner rowScanner) (*models.SystemAlert, error) {
	var a models.SystemAlert

	err := scanner.Scan(
		&a.ID, &a.AlertType, &a.Severity, &a.Title, &a.Message, &a.ResourceName, &a.ThresholdValue, &a.CurrentValue,
		&a.CreatedAt, &a.ResolvedAt, &a.IsAcknowledged, &a.AcknowledgedBy, &a.AcknowledgedAt, &a.AlertData,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &a, nil
}

func scanAlertRows(rows pgx.Rows) ([]*models.SystemAlert, error) {
	defer rows.Close()

	alerts := make([]*models.SystemAlert, 0)

	for rows.Next() {
		a, err := scanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", database.MapPostgresError(err))
	}

	return alerts, nil
}

func (r *AlertRepository) Create(ctx context.Context, a *models.SystemAlert) (*models.SystemAlert, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO system_alerts (id, alert_type, severity, title, message, resource_name,
			threshold_value, current_value, created_at, alert_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + alertColumns

	return scanAlertRow(r.db.Pool.QueryRow(ctx, query,
		a.ID, a.AlertType, a.Severity, a.Title, a.Message, a.ResourceName,
		a.ThresholdValue, a.CurrentValue, a.CreatedAt, a.AlertData,
	))
}

func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SystemAlert, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + alertColumns + ` FROM system_alerts WHERE id = $1`
	return scanAlertRow(r.db.Pool.QueryRow(ctx, query, id))
}

// FindOpenByType returns the newest unresolved alert of alertType, or ErrNotFound.
func (r *AlertRepository) FindOpenByType(ctx context.Context, alertType string) (*models.SystemAlert, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + alertColumns + ` FROM system_alerts
		WHERE alert_type = $1 AND resolved_at IS NULL ORDER BY created_at DESC LIMIT 1`
	return scanAlertRow(r.db.Pool.QueryRow(ctx, query, alertType))
}

func alertWhere(f models.AlertFilter) (string, []interface{}) {
	conds := make([]string, 0, 4)
	args := make([]interface{}, 0, 5)

	if f.Severity != nil {
		args = append(args, *f.Severity)
		conds = append(conds, fmt.Sprintf("severity = $%d", len(args)))
	}
	if f.AlertType != nil {
		args = append(args, *f.AlertType)
		conds = append(conds, fmt.Sprintf("alert_type = $%d", len(args)))
	}
	if f.Acknowledged != nil {
		args = append(args, *f.Acknowledged)
		conds = append(conds, fmt.Sprintf("is_acknowledged = $%d", len(args)))
	}
	if f.Unresolved {
		conds = append(conds, "resolved_at IS NULL")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *AlertRepository) List(ctx context.Context, f models.AlertFilter) ([]*models.SystemAlert, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	where, args := alertWhere(f)
	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM system_alerts%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		alertColumns, where, len(args)-1, len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", database.MapPostgresError(err))
	}
	return scanAlertRows(rows)
}

// CountOpenBySeverity counts unresolved alerts per severity.
func (r *AlertRepository) CountOpenBySeverity(ctx context.Context) (map[models.AlertSeverity]int, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx,
		`SELECT severity, COUNT(*) FROM system_alerts WHERE resolved_at IS NULL GROUP BY severity`)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	counts := make(map[models.AlertSeverity]int)
	for rows.Next() {
		var sev models.AlertSeverity
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, database.MapPostgresError(err)
		}
		counts[sev] = n
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return counts, nil
}

// Acknowledge marks an alert as seen by username. Acknowledging twice keeps
// the first acknowledgement.
func (r *AlertRepository) Acknowledge(ctx context.Context, id uuid.UUID, username string, now time.Time) (*models.SystemAlert, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		UPDATE system_alerts SET
			is_acknowledged = TRUE,
			acknowledged_by = COALESCE(acknowledged_by, $2),
			acknowledged_at = COALESCE(acknowledged_at, $3)
		WHERE id = $1
		RETURNING ` + alertColumns

	return scanAlertRow(r.db.Pool.QueryRow(ctx, query, id, username, now))
}

func (r *AlertRepository) Resolve(ctx context.Context, id uuid.UUID, now time.Time) (*models.SystemAlert, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `
		UPDATE system_alerts SET resolved_at = COALESCE(resolved_at, $2)
		WHERE id = $1
		RETURNING ` + alertColumns

	return scanAlertRow(r.db.Pool.QueryRow(ctx, query, id, now))
}
