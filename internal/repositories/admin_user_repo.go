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

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

type AdminUserRepository struct {
	db *database.DB
}

func NewAdminUserRepository(db *database.DB) *AdminUserRepository {
	return &AdminUserRepository{db: db}
}

const adminUserColumns = `id, username, email, password_hash, is_active, is_superuser, last_login,
	failed_login_attempts, account_locked_until, created_at, updated_at,
	require_password_change, password_changed_at, two_factor_enabled, two_factor_secret, two_factor_nonce`

// scanAdminUserRow populates an AdminUser model from a database row
func scanAdminUserRow(scanner rowScanner) (*models.AdminUser, error) {
	var u models.AdminUser

	err := scanner.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsSuperuser, &u.LastLogin,
		&u.FailedLoginAttempts, &u.AccountLockedUntil, &u.CreatedAt, &u.UpdatedAt,
		&u.RequirePasswordChange, &u.PasswordChangedAt, &u.TwoFactorEnabled, &u.TwoFactorSecret, &u.TwoFactorNonce,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &u, nil
}

func scanAdminUserRows(rows pgx.Rows) ([]*models.AdminUser, error) {
	defer rows.Close()

	users := make([]*models.AdminUser, 0)

	for rows.Next() {
		u, err := scanAdminUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating admin user rows: %w", database.MapPostgresError(err))
	}

	return users, nil
}

func (r *AdminUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AdminUser, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + adminUserColumns + ` FROM admin_users WHERE id = $1`
	return scanAdminUserRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *AdminUserRepository) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + adminUserColumns + ` FROM admin_users WHERE username = $1`
	return scanAdminUserRow(r.db.Pool.QueryRow(ctx, query, username))
}

func (r *AdminUserRepository) List(ctx context.Context, limit, offset int) ([]*models.AdminUser, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + adminUserColumns + ` FROM admin_users ORDER BY created_at ASC LIMIT $1 OFFSET $2`
	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin users: %w", database.MapPostgresError(err))
	}

	return scanAdminUserRows(rows)
}

func (r *AdminUserRepository) Count(ctx context.Context) (int, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&n); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}

func (r *AdminUserRepository) Create(ctx context.Context, u *models.AdminUser) (*models.AdminUser, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	query := `
		INSERT INTO admin_users (id, username, email, password_hash, is_active, is_superuser,
			require_password_change, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + adminUserColumns

	created, err := scanAdminUserRow(r.db.Pool.QueryRow(ctx, query,
		u.ID, u.Username, u.Email, u.PasswordHash, u.IsActive, u.IsSuperuser,
		u.RequirePasswordChange, now, u.CreatedAt, u.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}

	return created, nil
}

// RecordFailedLogin counts one failed attempt under a row lock so that
// concurrent failures for the same account are never lost.
func (r *AdminUserRepository) RecordFailedLogin(ctx context.Context, id uuid.UUID, policy models.LockoutPolicy, now time.Time) (*models.LoginOutcome, error) {
	var outcome models.LoginOutcome

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var attempts int
		var lockedUntil *time.Time

		err := tx.QueryRow(ctx,
			`SELECT failed_login_attempts, account_locked_until FROM admin_users WHERE id = $1 FOR UPDATE`,
			id,
		).Scan(&attempts, &lockedUntil)
		if err != nil {
			return database.MapPostgresError(err)
		}

		outcome = policy.NextFailure(attempts, lockedUntil, now)
		if outcome.Attempts == attempts && outcome.LockedUntil == lockedUntil {
			return nil
		}

		_, err = tx.Exec(ctx,
			`UPDATE admin_users SET failed_login_attempts = $2, account_locked_until = $3, updated_at = $4 WHERE id = $1`,
			id, outcome.Attempts, outcome.LockedUntil, now,
		)
		return database.MapPostgresError(err)
	})
	if err != nil {
		return nil, err
	}

	return &outcome, nil
}

// RecordSuccessfulLogin clears the failure counter and any expired lock. The
// reset only applies while the account is unlocked at now, so a lock set by
// concurrent failures after the caller's read survives and ErrAccountLocked
// is returned.
func (r *AdminUserRepository) RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, now time.Time) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.Pool.Exec(ctx, `
		UPDATE admin_users
		SET failed_login_attempts = 0, account_locked_until = NULL, last_login = $2, updated_at = $2
		WHERE id = $1 AND (account_locked_until IS NULL OR account_locked_until <= $2)`, id, now)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM admin_users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if !exists {
		return models.ErrNotFound
	}
	return models.ErrAccountLocked
}

func (r *AdminUserRepository) Unlock(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.Pool.Exec(ctx, `
		UPDATE admin_users
		SET failed_login_attempts = 0, account_locked_until = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DisableUnlessLastSuperuser deactivates id unless it is the only active
// superuser, in which case it reports false and changes nothing. Every active
// superuser row is locked first, so two superusers disabling each other
// serialize and the second one sees a single remaining superuser.
func (r *AdminUserRepository) DisableUnlessLastSuperuser(ctx context.Context, id uuid.UUID) (bool, error) {
	disabled := false

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id FROM admin_users WHERE is_superuser AND is_active ORDER BY id FOR UPDATE`)
		if err != nil {
			return database.MapPostgresError(err)
		}
		superusers, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return database.MapPostgresError(err)
		}
		if len(superusers) == 1 && superusers[0] == id {
			return nil
		}

		result, err := tx.Exec(ctx,
			`UPDATE admin_users SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		disabled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return disabled, nil
}

func (r *AdminUserRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.Pool.Exec(ctx,
		`UPDATE admin_users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AdminUserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, requireChange bool) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.Pool.Exec(ctx, `
		UPDATE admin_users
		SET password_hash = $2, require_password_change = $3, password_changed_at = NOW(), updated_at = NOW()
		WHERE id = $1`, id, hash, requireChange)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetTwoFactor stores the encrypted TOTP secret; nil secret disables 2FA.
func (r *AdminUserRepository) SetTwoFactor(ctx context.Context, id uuid.UUID, enabled bool, secret, nonce []byte) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.Pool.Exec(ctx, `
		UPDATE admin_users
		SET two_factor_enabled = $2, two_factor_secret = $3, two_factor_nonce = $4, updated_at = NOW()
		WHERE id = $1`, id, enabled, secret, nonce)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
