package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/telemetry"
	pkglogger "github.com/BradenHooton/hostpanel/pkg/logger"
)

func testActor() Actor {
	id := uuid.New()
	return Actor{AdminID: &id, Username: "alice", IsSuperuser: true, IPAddress: "198.51.100.4", UserAgent: "curl/8"}
}

func TestPrivilegedRunner_RecordsSuccess(t *testing.T) {
	repo := &MockAuditLogRepository{}
	runner, _ := newTestRunner(repo)
	actor := testActor()

	err := runner.Run(context.Background(), Operation{Action: models.ActionServiceRestart, Actor: actor, ResourceName: "nginx"},
		func(ctx context.Context, rec *OperationRecord) error {
			rec.AddCommand("systemctl restart nginx")
			rec.AddCommand("")
			rec.AddCommand("systemctl show nginx")
			rec.Set("status", "active")
			return nil
		})
	require.NoError(t, err)

	logs := repo.Recorded()
	require.Len(t, logs, 1)
	log := logs[0]
	assert.Equal(t, models.ActionServiceRestart, log.ActionType)
	assert.Equal(t, models.ActionStatusSuccess, log.ActionStatus)
	assert.Equal(t, actor.AdminID, log.AdminUserID)
	assert.Equal(t, "nginx", *log.ResourceName)
	assert.Equal(t, "198.51.100.4", *log.IPAddress)
	assert.Equal(t, "systemctl restart nginx && systemctl show nginx", *log.CommandExecuted)
	assert.Nil(t, log.ErrorMessage)
	assert.Equal(t, "active", log.ContextData["status"])
	require.NotNil(t, log.ExecutionTimeMs)
	assert.GreaterOrEqual(t, *log.ExecutionTimeMs, int64(0))
}

func TestPrivilegedRunner_RecordsFailure(t *testing.T) {
	repo := &MockAuditLogRepository{}
	runner, _ := newTestRunner(repo)
	boom := errors.New("unit not loaded")

	err := runner.Run(context.Background(), Operation{Action: models.ActionServiceStop, Actor: testActor(), ResourceName: "nginx"},
		func(ctx context.Context, rec *OperationRecord) error { return boom })
	assert.ErrorIs(t, err, boom)

	logs := repo.Recorded()
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionStatusFailed, logs[0].ActionStatus)
	require.NotNil(t, logs[0].ErrorMessage)
	assert.Equal(t, "unit not loaded", *logs[0].ErrorMessage)
}

func TestPrivilegedRunner_MarksValidationFailures(t *testing.T) {
	repo := &MockAuditLogRepository{}
	runner, _ := newTestRunner(repo)

	err := runner.Run(context.Background(), Operation{Action: models.ActionUserCreate, Actor: testActor()},
		func(ctx context.Context, rec *OperationRecord) error { return invalid("username", "is required") })
	assert.ErrorIs(t, err, models.ErrBadRequest)

	logs := repo.Recorded()
	require.Len(t, logs, 1)
	assert.Equal(t, true, logs[0].ContextData["validation_failed"])
}

func TestPrivilegedRunner_RecordsPanicThenRepanics(t *testing.T) {
	repo := &MockAuditLogRepository{}
	runner, _ := newTestRunner(repo)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = runner.Run(context.Background(), Operation{Action: models.ActionUserDelete, Actor: testActor()},
			func(ctx context.Context, rec *OperationRecord) error { panic("kaboom") })
	})

	logs := repo.Recorded()
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionStatusFailed, logs[0].ActionStatus)
	assert.Contains(t, *logs[0].ErrorMessage, "kaboom")
}

func TestPrivilegedRunner_WritesAfterCancellation(t *testing.T) {
	var writeCtxErr error
	repo := &MockAuditLogRepository{
		CreateFunc: func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
			writeCtxErr = ctx.Err()
			return log, nil
		},
	}
	runner, _ := newTestRunner(repo)

	ctx, cancel := context.WithCancel(context.Background())
	err := runner.Run(ctx, Operation{Action: models.ActionLogout, Actor: testActor()},
		func(ctx context.Context, rec *OperationRecord) error {
			cancel()
			return nil
		})
	require.NoError(t, err)
	assert.NoError(t, writeCtxErr)
}

func TestPrivilegedRunner_AuditFailureDoesNotChangeOutcome(t *testing.T) {
	repo := &MockAuditLogRepository{
		CreateFunc: func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
			return nil, models.ErrStoreUnavailable
		},
	}
	runner, _ := newTestRunner(repo)

	err := runner.Run(context.Background(), Operation{Action: models.ActionAdminUnlock, Actor: testActor()},
		func(ctx context.Context, rec *OperationRecord) error { return nil })
	assert.NoError(t, err)
}

func TestAuditService_Record(t *testing.T) {
	t.Run("rejects unknown action type", func(t *testing.T) {
		repo := &MockAuditLogRepository{}
		_, audit := newTestRunner(repo)

		_, err := audit.Record(context.Background(), AuditEntry{ActionType: "reboot", ActionStatus: models.ActionStatusSuccess})
		assert.ErrorIs(t, err, models.ErrBadRequest)
		assert.Empty(t, repo.Recorded())
	})

	t.Run("truncates long fields", func(t *testing.T) {
		repo := &MockAuditLogRepository{}
		_, audit := newTestRunner(repo)

		log, err := audit.Record(context.Background(), AuditEntry{
			ActionType:      models.ActionUserCreate,
			ActionStatus:    models.ActionStatusFailed,
			ResourceName:    strings.Repeat("r", 400),
			UserAgent:       strings.Repeat("u", 900),
			CommandExecuted: strings.Repeat("c", 5000),
		})
		require.NoError(t, err)
		assert.Len(t, *log.ResourceName, models.AuditResourceNameMax)
		assert.Len(t, *log.UserAgent, models.AuditUserAgentMax)
		assert.Len(t, *log.CommandExecuted, models.AuditCommandMax)
		assert.Nil(t, log.IPAddress)
		assert.NotNil(t, log.ContextData)
	})

	t.Run("store failure goes to fallback and counter", func(t *testing.T) {
		repo := &MockAuditLogRepository{
			CreateFunc: func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
				return nil, models.ErrStoreUnavailable
			},
		}
		metrics := telemetry.NewMetrics()
		logger := discardLogger()
		audit := NewAuditService(repo, pkglogger.NewAuditLogger(logger), metrics, logger)

		log, err := audit.Record(context.Background(), AuditEntry{ActionType: models.ActionLogin, ActionStatus: models.ActionStatusFailed})
		assert.ErrorIs(t, err, models.ErrStoreUnavailable)
		require.NotNil(t, log)
		assert.Equal(t, models.ActionLogin, log.ActionType)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuditWriteFailures))
	})
}

func TestAuditService_ListClampsPage(t *testing.T) {
	var got models.AuditFilter
	repo := &MockAuditLogRepository{
		ListFunc: func(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, error) {
			got = f
			return []*models.AuditLog{}, nil
		},
		CountFunc: func(ctx context.Context, f models.AuditFilter) (int, error) { return 7, nil },
	}
	_, audit := newTestRunner(repo)

	_, total, err := audit.List(context.Background(), models.AuditFilter{Limit: 10000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Equal(t, 500, got.Limit)
	assert.Equal(t, 0, got.Offset)

	_, _, err = audit.List(context.Background(), models.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 50, got.Limit)
}
