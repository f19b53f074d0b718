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

// AuditLogRepository appends and reads audit rows. There is no update or
// delete path; the table trigger rejects both.
type AuditLogRepository struct {
	db *database.DB
}

func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

const auditLogColumns = `id, timestamp, admin_user_id, target_user_id, action_type, action_status,
	resource_name, ip_address, user_agent, command_executed, error_message, execution_time_ms, context_data`

func scanAuditLogRow(row rowScanner) (*models.AuditLog, error) {
	var l models.AuditLog

	err := row.Scan(
		&l.ID, &l.Timestamp, &l.AdminUserID, &l.TargetUserID, &l.ActionType, &l.ActionStatus,
		&l.ResourceName, &l.IPAddress, &l.UserAgent, &l.CommandExecuted, &l.ErrorMessage,
		&l.ExecutionTimeMs, &l.ContextData,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &l, nil
}

func scanAuditLogRows(rows pgx.Rows) ([]*models.AuditLog, error) {
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)

	for rows.Next() {
		l, err := scanAuditLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", database.MapPostgresError(err))
	}

	return logs, nil
}

func (r *AuditLogRepository) Create(ctx context.Context, l *models.AuditLog) (*models.AuditLog, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_logs (id, timestamp, admin_user_id, target_user_id, action_type, action_status,
			resource_name, ip_address, user_agent, command_executed, error_message, execution_time_ms, context_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + auditLogColumns

	created, err := scanAuditLogRow(r.db.Pool.QueryRow(ctx, query,
		l.ID, l.Timestamp, l.AdminUserID, l.TargetUserID, l.ActionType, l.ActionStatus,
		l.ResourceName, l.IPAddress, l.UserAgent, l.CommandExecuted, l.ErrorMessage,
		l.ExecutionTimeMs, l.ContextData,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", err)
	}

	return created, nil
}

// auditWhere turns a filter into a WHERE clause and its positional args.
func auditWhere(f models.AuditFilter) (string, []interface{}) {
	conds := make([]string, 0, 7)
	args := make([]interface{}, 0, 9)

	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ActionType != nil {
		add("action_type = $%d", *f.ActionType)
	}
	if f.ActionStatus != nil {
		add("action_status = $%d", *f.ActionStatus)
	}
	if f.AdminUserID != nil {
		add("admin_user_id = $%d", *f.AdminUserID)
	}
	if f.TargetUserID != nil {
		add("target_user_id = $%d", *f.TargetUserID)
	}
	if f.ResourceName != nil {
		add("resource_name = $%d", *f.ResourceName)
	}
	if f.Since != nil {
		add("timestamp >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("timestamp < $%d", *f.Until)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns matching rows, newest first.
func (r *AuditLogRepository) List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	where, args := auditWhere(f)
	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY timestamp DESC, id LIMIT $%d OFFSET $%d`,
		auditLogColumns, where, len(args)-1, len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", database.MapPostgresError(err))
	}

	return scanAuditLogRows(rows)
}

func (r *AuditLogRepository) Count(ctx context.Context, f models.AuditFilter) (int, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	where, args := auditWhere(f)

	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&n); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}
