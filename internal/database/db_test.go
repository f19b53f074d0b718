package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapPostgresError(t *testing.T) {
	plain := errors.New("something else")

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, models.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("get: %w", pgx.ErrNoRows), models.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "idx_admin_users_username"}, models.ErrConflict},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), models.ErrConflict},
		{"foreign key", &pgconn.PgError{Code: "23503"}, models.ErrBadRequest},
		{"check violation", &pgconn.PgError{Code: "23514"}, models.ErrBadRequest},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, models.ErrStoreUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, models.ErrStoreUnavailable},
		{"too many connections", &pgconn.PgError{Code: "53300"}, models.ErrStoreUnavailable},
		{"deadline", context.DeadlineExceeded, models.ErrStoreUnavailable},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), models.ErrStoreUnavailable},
		{"other", plain, plain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapPostgresError(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}
