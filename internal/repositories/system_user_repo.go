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

// SystemUserRepository mirrors managed OS accounts. Deleting an account
// soft-deletes the row so audit entries keep a valid target.
type SystemUserRepository struct {
	db *database.DB
}

func NewSystemUserRepository(db *database.DB) *SystemUserRepository {
	return &SystemUserRepository{db: db}
}

const systemUserColumns = `id, username, uid, gid, home_directory, shell, full_name,
	is_system_user, is_locked, groups, created_at, last_login, deleted_at`

func scanSystemUserRow(scanner rowScanner) (*models.SystemUser, error) {
	var u models.SystemUser

	err := scanner.Scan(
		&u.ID, &u.Username, &u.UID, &u.GID, &u.HomeDirectory, &u.Shell, &u.FullName,
		&u.IsSystemUser, &u.IsLocked, &u.Groups, &u.CreatedAt, &u.LastLogin, &u.DeletedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if u.Groups == nil {
		u.Groups = []string{}
	}

	return &u, nil
}

func scanSystemUserRows(rows pgx.Rows) ([]*models.SystemUser, error) {
	defer rows.Close()

	users := make([]*models.SystemUser, 0)

	for rows.Next() {
		u, err := scanSystemUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan system user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating system user rows: %w", database.MapPostgresError(err))
	}

	return users, nil
}

func (r *SystemUserRepository) Create(ctx context.Context, u *models.SystemUser) (*models.SystemUser, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Groups == nil {
		u.Groups = []string{}
	}

	query := `
		INSERT INTO system_users (id, username, uid, gid, home_directory, shell, full_name,
			is_system_user, is_locked, groups, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + systemUserColumns

	return scanSystemUserRow(r.db.Pool.QueryRow(ctx, query,
		u.ID, u.Username, u.UID, u.GID, u.HomeDirectory, u.Shell, u.FullName,
		u.IsSystemUser, u.IsLocked, u.Groups, u.CreatedAt,
	))
}

func (r *SystemUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SystemUser, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + systemUserColumns + ` FROM system_users WHERE id = $1 AND deleted_at IS NULL`
	return scanSystemUserRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *SystemUserRepository) GetByUsername(ctx context.Context, username string) (*models.SystemUser, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + systemUserColumns + ` FROM system_users WHERE username = $1 AND deleted_at IS NULL`
	return scanSystemUserRow(r.db.Pool.QueryRow(ctx, query, username))
}

func (r *SystemUserRepository) List(ctx context.Context, limit, offset int) ([]*models.SystemUser, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + systemUserColumns + ` FROM system_users
		WHERE deleted_at IS NULL ORDER BY username LIMIT $1 OFFSET $2`
	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query system users: %w", database.MapPostgresError(err))
	}
	return scanSystemUserRows(rows)
}

func (r *SystemUserRepository) Count(ctx context.Context) (int, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM system_users WHERE deleted_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return n, nil
}

// Update writes the mutable profile fields of a live account.
func (r *SystemUserRepository) Update(ctx context.Context, u *models.SystemUser) (*models.SystemUser, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if u.Groups == nil {
		u.Groups = []string{}
	}

	query := `
		UPDATE system_users SET full_name = $2, shell = $3, is_locked = $4, groups = $5
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + systemUserColumns

	return scanSystemUserRow(r.db.Pool.QueryRow(ctx, query, u.ID, u.FullName, u.Shell, u.IsLocked, u.Groups))
}

func (r *SystemUserRepository) SoftDelete(ctx context.Context, id uuid.UUID, now time.Time) error {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.Pool.Exec(ctx,
		`UPDATE system_users SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, now)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
