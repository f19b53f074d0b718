package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/osctl"
)

func newSystemUserService(repo *MockSystemUserRepository, os *MockController) (*SystemUserService, *MockAuditLogRepository) {
	audit := &MockAuditLogRepository{}
	runner, _ := newTestRunner(audit)
	return NewSystemUserService(repo, os, runner, discardLogger()), audit
}

func TestSystemUserService_Create(t *testing.T) {
	var stored *models.SystemUser
	repo := &MockSystemUserRepository{
		CreateFunc: func(ctx context.Context, u *models.SystemUser) (*models.SystemUser, error) {
			u.ID = uuid.New()
			stored = u
			return u, nil
		},
	}
	os := &MockController{
		LookupUserFunc: func(ctx context.Context, username string) (*osctl.Account, error) {
			return &osctl.Account{Username: username, UID: 1005, GID: 1005, Groups: []string{"deploy", "www-data"}}, nil
		},
	}
	svc, audit := newSystemUserService(repo, os)

	user, err := svc.Create(context.Background(), testActor(), models.SystemUserCreateRequest{
		Username: "deploy",
		FullName: "Deploy Bot",
		Password: "s3cret-password",
		Groups:   []string{"www-data"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1005, user.UID)
	assert.Equal(t, "/home/deploy", user.HomeDirectory)
	assert.Equal(t, "/bin/bash", user.Shell)
	assert.False(t, user.IsSystemUser)
	assert.Equal(t, []string{"deploy", "www-data"}, stored.Groups)
	assert.Equal(t, []string{"CreateUser", "SetPassword", "LookupUser"}, os.Calls)

	logs := audit.Recorded()
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionUserCreate, logs[0].ActionType)
	assert.Equal(t, models.ActionStatusSuccess, logs[0].ActionStatus)
	assert.Equal(t, "useradd deploy && chpasswd (deploy)", *logs[0].CommandExecuted)
	require.NotNil(t, logs[0].TargetUserID)
	assert.Equal(t, user.ID, *logs[0].TargetUserID)
	assert.NotContains(t, *logs[0].CommandExecuted, "s3cret-password")
}

func TestSystemUserService_Create_Conflict(t *testing.T) {
	repo := &MockSystemUserRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.SystemUser, error) {
			return &models.SystemUser{ID: uuid.New(), Username: username}, nil
		},
	}
	os := &MockController{}
	svc, audit := newSystemUserService(repo, os)

	_, err := svc.Create(context.Background(), testActor(), models.SystemUserCreateRequest{Username: "deploy"})
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Empty(t, os.Calls)
	assert.Len(t, audit.Recorded(), 1)
}

func TestSystemUserService_Create_InvalidNeverReachesOS(t *testing.T) {
	os := &MockController{}
	svc, audit := newSystemUserService(&MockSystemUserRepository{}, os)

	_, err := svc.Create(context.Background(), testActor(), models.SystemUserCreateRequest{Username: "Bad;Name"})
	assert.ErrorIs(t, err, models.ErrBadRequest)
	assert.Empty(t, os.Calls)

	logs := audit.Recorded()
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionStatusFailed, logs[0].ActionStatus)
}

func TestSystemUserService_Create_OSFailure(t *testing.T) {
	created := false
	repo := &MockSystemUserRepository{
		CreateFunc: func(ctx context.Context, u *models.SystemUser) (*models.SystemUser, error) {
			created = true
			return u, nil
		},
	}
	os := &MockController{
		CreateUserFunc: func(ctx context.Context, spec osctl.UserSpec) (*osctl.Result, error) {
			return &osctl.Result{Command: "useradd deploy"}, fmt.Errorf("%w: useradd deploy: exit status 9", models.ErrOSCommandFailed)
		},
	}
	svc, audit := newSystemUserService(repo, os)

	_, err := svc.Create(context.Background(), testActor(), models.SystemUserCreateRequest{Username: "deploy"})
	assert.ErrorIs(t, err, models.ErrOSCommandFailed)
	assert.False(t, created)

	logs := audit.Recorded()
	require.Len(t, logs, 1)
	assert.Equal(t, "useradd deploy", *logs[0].CommandExecuted)
	assert.Nil(t, logs[0].TargetUserID)
}

func TestSystemUserService_Create_RollsBackWhenStoreFails(t *testing.T) {
	repo := &MockSystemUserRepository{
		CreateFunc: func(ctx context.Context, u *models.SystemUser) (*models.SystemUser, error) {
			return nil, models.ErrStoreUnavailable
		},
	}
	var removedHome bool
	os := &MockController{
		DeleteUserFunc: func(ctx context.Context, username string, removeHome bool) (*osctl.Result, error) {
			removedHome = removeHome
			return &osctl.Result{Command: "userdel -r " + username}, nil
		},
	}
	svc, audit := newSystemUserService(repo, os)

	_, err := svc.Create(context.Background(), testActor(), models.SystemUserCreateRequest{Username: "deploy"})
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.Equal(t, []string{"CreateUser", "LookupUser", "DeleteUser"}, os.Calls)
	assert.True(t, removedHome)

	logs := audit.Recorded()
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionStatusFailed, logs[0].ActionStatus)
	assert.Equal(t, true, logs[0].ContextData["rolled_back"])
	assert.Equal(t, "useradd deploy && userdel -r deploy", *logs[0].CommandExecuted)
}

func existingUser(system bool) *models.SystemUser {
	uid := 1001
	if system {
		uid = 33
	}
	return &models.SystemUser{
		ID:            uuid.New(),
		Username:      "deploy",
		UID:           uid,
		GID:           uid,
		HomeDirectory: "/home/deploy",
		Shell:         "/bin/bash",
		IsSystemUser:  system,
		CreatedAt:     time.Now(),
	}
}

func TestSystemUserService_Delete(t *testing.T) {
	t.Run("removes account and soft deletes row", func(t *testing.T) {
		user := existingUser(false)
		var softDeleted uuid.UUID
		repo := &MockSystemUserRepository{
			GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.SystemUser, error) { return user, nil },
			SoftDeleteFunc: func(ctx context.Context, id uuid.UUID, now time.Time) error {
				softDeleted = id
				return nil
			},
		}
		os := &MockController{}
		svc, audit := newSystemUserService(repo, os)

		require.NoError(t, svc.Delete(context.Background(), testActor(), user.ID, true))
		assert.Equal(t, user.ID, softDeleted)
		assert.Equal(t, []string{"DeleteUser"}, os.Calls)

		logs := audit.Recorded()
		require.Len(t, logs, 1)
		assert.Equal(t, models.ActionUserDelete, logs[0].ActionType)
		assert.Equal(t, "deploy", *logs[0].ResourceName)
		assert.Equal(t, user.ID, *logs[0].TargetUserID)
	})

	t.Run("refuses distribution accounts", func(t *testing.T) {
		user := existingUser(true)
		repo := &MockSystemUserRepository{
			GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.SystemUser, error) { return user, nil },
		}
		os := &MockController{}
		svc, _ := newSystemUserService(repo, os)

		err := svc.Delete(context.Background(), testActor(), user.ID, false)
		assert.ErrorIs(t, err, models.ErrForbidden)
		assert.Empty(t, os.Calls)
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, audit := newSystemUserService(&MockSystemUserRepository{}, &MockController{})

		err := svc.Delete(context.Background(), testActor(), uuid.New(), false)
		assert.ErrorIs(t, err, models.ErrNotFound)

		logs := audit.Recorded()
		require.Len(t, logs, 1)
		assert.Nil(t, logs[0].TargetUserID)
	})
}

func TestSystemUserService_ResetPassword(t *testing.T) {
	user := existingUser(false)
	repo := &MockSystemUserRepository{
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.SystemUser, error) { return user, nil },
	}

	t.Run("mismatch", func(t *testing.T) {
		os := &MockController{}
		svc, audit := newSystemUserService(repo, os)

		err := svc.ResetPassword(context.Background(), testActor(), user.ID, models.PasswordResetRequest{
			NewPassword:     "first-password",
			ConfirmPassword: "second-password",
		})
		assert.ErrorIs(t, err, models.ErrPasswordMismatch)
		assert.Empty(t, os.Calls)
		assert.Equal(t, models.ActionPasswordReset, audit.Recorded()[0].ActionType)
	})

	t.Run("success", func(t *testing.T) {
		var gotPassword string
		os := &MockController{
			SetPasswordFunc: func(ctx context.Context, username, password string) (*osctl.Result, error) {
				gotPassword = password
				return &osctl.Result{Command: "chpasswd (" + username + ")"}, nil
			},
		}
		svc, audit := newSystemUserService(repo, os)

		err := svc.ResetPassword(context.Background(), testActor(), user.ID, models.PasswordResetRequest{
			NewPassword:     "fresh-password",
			ConfirmPassword: "fresh-password",
		})
		require.NoError(t, err)
		assert.Equal(t, "fresh-password", gotPassword)
		assert.NotContains(t, *audit.Recorded()[0].CommandExecuted, "fresh-password")
	})
}

func TestSystemUserService_LockAndUpdate(t *testing.T) {
	user := existingUser(false)
	repo := &MockSystemUserRepository{
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*models.SystemUser, error) {
			cp := *user
			return &cp, nil
		},
	}
	os := &MockController{}
	svc, audit := newSystemUserService(repo, os)
	ctx := context.Background()

	locked, err := svc.Lock(ctx, testActor(), user.ID)
	require.NoError(t, err)
	assert.True(t, locked.IsLocked)
	assert.Equal(t, models.ActionUserLock, audit.Recorded()[0].ActionType)

	shell := "/bin/zsh"
	lock := true
	updated, err := svc.Update(ctx, testActor(), user.ID, models.SystemUserUpdateRequest{Shell: &shell, IsLocked: &lock})
	require.NoError(t, err)
	assert.Equal(t, "/bin/zsh", updated.Shell)
	assert.True(t, updated.IsLocked)
	assert.Equal(t, []string{"LockUser", "ModifyUser", "LockUser"}, os.Calls)

	logs := audit.Recorded()
	require.Len(t, logs, 2)
	assert.Equal(t, []string{"shell", "is_locked"}, logs[1].ContextData["changed_fields"])
}

func TestSystemUserService_UpdateRequiresAField(t *testing.T) {
	os := &MockController{}
	svc, _ := newSystemUserService(&MockSystemUserRepository{}, os)

	_, err := svc.Update(context.Background(), testActor(), uuid.New(), models.SystemUserUpdateRequest{})
	var verr *models.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Empty(t, os.Calls)
}
