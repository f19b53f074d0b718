//go:build integration

// Package testutil starts a throwaway PostgreSQL for integration tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/hostpanel/internal/database"
	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/pkg/auth"
)

// TestDB manages a PostgreSQL testcontainer with the schema applied.
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	DB         *database.DB
}

// SetupTestDatabase starts postgres:16-alpine and runs the embedded migrations.
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("hostpanel"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	db := database.New(pool, logger, 5*time.Second)

	if err := db.MigratePool(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{Container: container, ConnString: connStr, DB: db}, nil
}

// MustSetup is SetupTestDatabase for a single test, with cleanup registered.
func MustSetup(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	tdb, err := SetupTestDatabase(ctx)
	if err != nil {
		t.Fatalf("setup test database: %v", err)
	}
	t.Cleanup(func() { _ = tdb.Teardown(context.Background()) })
	return tdb
}

func (db *TestDB) Teardown(ctx context.Context) error {
	if db.DB != nil {
		db.DB.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// SeedAdmin inserts an active admin with the given password.
func SeedAdmin(ctx context.Context, db *database.DB, username, password string, superuser bool) (*models.AdminUser, error) {
	hash, err := auth.NewHasher(4).Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var u models.AdminUser
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO admin_users (id, username, email, password_hash, is_active, is_superuser)
		VALUES (gen_random_uuid(), $1, $2, $3, TRUE, $4)
		RETURNING id, username, email, password_hash, is_active, is_superuser`,
		username, username+"@example.com", hash, superuser,
	).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsSuperuser)
	if err != nil {
		return nil, fmt.Errorf("failed to insert admin: %w", err)
	}
	return &u, nil
}
