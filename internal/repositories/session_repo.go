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

// SessionRepository stores admin sessions keyed by the hash of the client token.
type SessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, session_id, admin_user_id, ip_address, user_agent, created_at,
	last_activity, expires_at, is_active, ended_at, end_reason`

func scanSessionRow(scanner rowScanner) (*models.AdminSession, error) {
	var s models.AdminSession

	err := scanner.Scan(
		&s.ID, &s.SessionID, &s.AdminUserID, &s.IPAddress, &s.UserAgent, &s.CreatedAt,
		&s.LastActivity, &s.ExpiresAt, &s.IsActive, &s.EndedAt, &s.EndReason,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &s, nil
}

func scanSessionRows(rows pgx.Rows) ([]*models.AdminSession, error) {
	defer rows.Close()

	sessions := make([]*models.AdminSession, 0)

	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", database.MapPostgresError(err))
	}

	return sessions, nil
}

func (r *SessionRepository) Create(ctx context.Context, s *models.AdminSession) (*models.AdminSession, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	query := `
		INSERT INTO admin_sessions (id, session_id, admin_user_id, ip_address, user_agent,
			created_at, last_activity, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		RETURNING ` + sessionColumns

	return scanSessionRow(r.db.Pool.QueryRow(ctx, query,
		s.ID, s.SessionID, s.AdminUserID, s.IPAddress, s.UserAgent,
		s.CreatedAt, s.LastActivity, s.ExpiresAt,
	))
}

func (r *SessionRepository) GetBySessionID(ctx context.Context, sessionHash string) (*models.AdminSession, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + sessionColumns + ` FROM admin_sessions WHERE session_id = $1`
	return scanSessionRow(r.db.Pool.QueryRow(ctx, query, sessionHash))
}

// Touch bumps last_activity only while the session is still usable. It
// reports false when a concurrent logout, revoke or expiry got there first.
func (r *SessionRepository) Touch(ctx context.Context, sessionHash string, now time.Time) (bool, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.Pool.Exec(ctx, `
		UPDATE admin_sessions SET last_activity = $2
		WHERE session_id = $1 AND is_active AND expires_at > $2`, sessionHash, now)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() == 1, nil
}

// Deactivate ends one session. Ending an already ended session is a no-op
// and reports false.
func (r *SessionRepository) Deactivate(ctx context.Context, sessionHash string, reason models.SessionEndReason, now time.Time) (bool, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.Pool.Exec(ctx, `
		UPDATE admin_sessions SET is_active = FALSE, ended_at = $3, end_reason = $2
		WHERE session_id = $1 AND is_active`, sessionHash, reason, now)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() == 1, nil
}

// DeactivateByID ends a session owned by adminID, addressed by its row id.
func (r *SessionRepository) DeactivateByID(ctx context.Context, adminID, id uuid.UUID, reason models.SessionEndReason, now time.Time) (bool, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.Pool.Exec(ctx, `
		UPDATE admin_sessions SET is_active = FALSE, ended_at = $4, end_reason = $3
		WHERE id = $1 AND admin_user_id = $2 AND is_active`, id, adminID, reason, now)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *SessionRepository) DeactivateAllForAdmin(ctx context.Context, adminID uuid.UUID, reason models.SessionEndReason, now time.Time) (int64, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.Pool.Exec(ctx, `
		UPDATE admin_sessions SET is_active = FALSE, ended_at = $3, end_reason = $2
		WHERE admin_user_id = $1 AND is_active`, adminID, reason, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// SweepExpired marks every active session past its expiry as ended.
func (r *SessionRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.Pool.Exec(ctx, `
		UPDATE admin_sessions SET is_active = FALSE, ended_at = $1, end_reason = 'expired'
		WHERE is_active AND expires_at <= $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

func (r *SessionRepository) ListActiveForAdmin(ctx context.Context, adminID uuid.UUID, now time.Time) ([]*models.AdminSession, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + sessionColumns + ` FROM admin_sessions
		WHERE admin_user_id = $1 AND is_active AND expires_at > $2
		ORDER BY last_activity DESC`
	rows, err := r.db.Pool.Query(ctx, query, adminID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", database.MapPostgresError(err))
	}
	return scanSessionRows(rows)
}

func (r *SessionRepository) CountActive(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM admin_sessions WHERE is_active AND expires_at > $1`, now).Scan(&n)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}
