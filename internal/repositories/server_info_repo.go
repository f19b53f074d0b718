package repositories

import (
	"context"

	"github.com/BradenHooton/hostpanel/internal/database"
	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/google/uuid"
)

type ServerInfoRepository struct {
	db *database.DB
}

func NewServerInfoRepository(db *database.DB) *ServerInfoRepository {
	return &ServerInfoRepository{db: db}
}

const serverInfoColumns = `id, hostname, os_name, os_version, kernel_version, architecture,
	boot_time, updated_at, additional_info`

func scanServerInfoRow(scanner rowScanner) (*models.ServerInfo, error) {
	var s models.ServerInfo

	err := scanner.Scan(
		&s.ID, &s.Hostname, &s.OSName, &s.OSVersion, &s.KernelVersion, &s.Architecture,
		&s.BootTime, &s.UpdatedAt, &s.AdditionalInfo,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &s, nil
}

func (r *ServerInfoRepository) Get(ctx context.Context) (*models.ServerInfo, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	query := `SELECT ` + serverInfoColumns + ` FROM server_info WHERE singleton`
	return scanServerInfoRow(r.db.Pool.QueryRow(ctx, query))
}

// Upsert replaces the single server_info row.
func (r *ServerInfoRepository) Upsert(ctx context.Context, s *models.ServerInfo) (*models.ServerInfo, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	query := `
		INSERT INTO server_info (id, singleton, hostname, os_name, os_version, kernel_version,
			architecture, boot_time, updated_at, additional_info)
		VALUES ($1, TRUE, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (singleton) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			os_name = EXCLUDED.os_name,
			os_version = EXCLUDED.os_version,
			kernel_version = EXCLUDED.kernel_version,
			architecture = EXCLUDED.architecture,
			boot_time = EXCLUDED.boot_time,
			updated_at = EXCLUDED.updated_at,
			additional_info = EXCLUDED.additional_info
		RETURNING ` + serverInfoColumns

	return scanServerInfoRow(r.db.Pool.QueryRow(ctx, query,
		s.ID, s.Hostname, s.OSName, s.OSVersion, s.KernelVersion,
		s.Architecture, s.BootTime, s.UpdatedAt, s.AdditionalInfo,
	))
}
