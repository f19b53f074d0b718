package services

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/hostpanel/internal/auth"
	"github.com/BradenHooton/hostpanel/internal/models"
	pkgauth "github.com/BradenHooton/hostpanel/pkg/auth"
	pkglogger "github.com/BradenHooton/hostpanel/pkg/logger"
)

const testPassword = "correct-horse-battery"

var testSessionConfig = SessionConfig{
	SessionDuration:    8 * time.Hour,
	RememberMeDuration: 30 * 24 * time.Hour,
	Lockout:            models.LockoutPolicy{Threshold: 5, Duration: 15 * time.Minute},
}

type sessionFixture struct {
	svc      *SessionService
	users    *memAdminUsers
	sessions *memSessions
	audit    *MockAuditLogRepository
	notifier *MockNotifier
	hasher   *pkgauth.Hasher
	totp     *auth.TOTPManager
	runner   *PrivilegedRunner
}

func newSessionFixture(t *testing.T, admins ...*models.AdminUser) *sessionFixture {
	t.Helper()

	totpMgr, err := auth.NewTOTPManager(bytes.Repeat([]byte{7}, 32), "hostpanel-test")
	require.NoError(t, err)

	f := &sessionFixture{
		users:    newMemAdminUsers(admins...),
		sessions: newMemSessions(),
		audit:    &MockAuditLogRepository{},
		notifier: &MockNotifier{},
		hasher:   pkgauth.NewHasher(4),
		totp:     totpMgr,
	}
	f.runner, _ = newTestRunner(f.audit)

	logger := discardLogger()
	f.svc = NewSessionService(SessionDeps{
		Users:       f.users,
		Sessions:    f.sessions,
		Runner:      f.runner,
		Hasher:      f.hasher,
		Challenges:  auth.NewChallengeManager("challenge-secret-for-tests-0123456789", 5*time.Minute),
		TOTP:        totpMgr,
		CSRF:        auth.NewCSRFSigner("csrf-secret-for-tests"),
		Notifier:    f.notifier,
		AuditLogger: pkglogger.NewAuditLogger(logger),
		Logger:      logger,
	}, testSessionConfig)
	return f
}

func (f *sessionFixture) admin(t *testing.T, username string, superuser bool) *models.AdminUser {
	t.Helper()
	hash, err := f.hasher.Hash(testPassword)
	require.NoError(t, err)
	a := NewTestAdmin(username, hash, superuser)
	_, err = f.users.Create(context.Background(), a)
	require.NoError(t, err)
	return a
}

func (f *sessionFixture) setNow(now time.Time) {
	clock := func() time.Time { return now }
	f.svc.now = clock
	f.runner.now = clock
}

var testClient = Actor{IPAddress: "203.0.113.7", UserAgent: "test-agent"}

func TestAuthenticate_Success(t *testing.T) {
	f := newSessionFixture(t)
	admin := f.admin(t, "alice", true)
	now := time.Now()
	f.setNow(now)

	result, err := f.svc.Authenticate(context.Background(), "alice", testPassword, testClient, false)
	require.NoError(t, err)
	require.NotNil(t, result.Session)

	assert.False(t, result.TwoFactorRequired)
	assert.NotEmpty(t, result.Token)
	assert.NotEmpty(t, result.CSRFToken)
	assert.Equal(t, admin.ID, result.Session.AdminUserID)
	assert.WithinDuration(t, now.Add(8*time.Hour), result.Session.ExpiresAt, time.Second)
	assert.Equal(t, pkgauth.HashSessionToken(result.Token), result.Session.SessionID)

	logs := f.audit.Recorded()
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionLogin, logs[0].ActionType)
	assert.Equal(t, models.ActionStatusSuccess, logs[0].ActionStatus)
	require.NotNil(t, logs[0].AdminUserID)
	assert.Equal(t, admin.ID, *logs[0].AdminUserID)

	stored := f.users.snapshot(admin.ID)
	require.NotNil(t, stored.LastLogin)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
}

func TestAuthenticate_RememberMeExtendsLifetime(t *testing.T) {
	f := newSessionFixture(t)
	f.admin(t, "alice", false)
	now := time.Now()
	f.setNow(now)

	result, err := f.svc.Authenticate(context.Background(), "alice", testPassword, testClient, true)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(30*24*time.Hour), result.Session.ExpiresAt, time.Second)
}

func TestAuthenticate_UniformFailures(t *testing.T) {
	f := newSessionFixture(t)
	f.admin(t, "alice", false)
	disabled := f.admin(t, "bob", false)
	require.NoError(t, f.users.SetActive(context.Background(), disabled.ID, false))

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"unknown user", "mallory", testPassword},
		{"wrong password", "alice", "not-the-password"},
		{"disabled account", "bob", testPassword},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.svc.Authenticate(context.Background(), tt.username, tt.password, testClient, false)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, models.ErrInvalidCredentials)
			assert.Equal(t, models.ErrInvalidCredentials.Error(), err.Error())

			logs := f.audit.Recorded()
			require.Len(t, logs, i+1)
			assert.Equal(t, models.ActionStatusFailed, logs[i].ActionStatus)
			assert.Equal(t, models.ActionLogin, logs[i].ActionType)
		})
	}
}

func TestAuthenticate_LocksAtThreshold(t *testing.T) {
	f := newSessionFixture(t)
	admin := f.admin(t, "alice", false)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, err := f.svc.Authenticate(ctx, "alice", "wrong-password", testClient, false)
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
		stored := f.users.snapshot(admin.ID)
		assert.Equal(t, i, stored.FailedLoginAttempts)
		assert.Nil(t, stored.AccountLockedUntil)
	}

	_, err := f.svc.Authenticate(ctx, "alice", "wrong-password", testClient, false)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	stored := f.users.snapshot(admin.ID)
	assert.Equal(t, 5, stored.FailedLoginAttempts)
	require.NotNil(t, stored.AccountLockedUntil)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), *stored.AccountLockedUntil, 5*time.Second)
	assert.Equal(t, []string{"alice"}, f.notifier.Locked)

	lockRow := f.audit.Recorded()[4]
	assert.Equal(t, true, lockRow.ContextData["locked"])

	// the right password does not help while locked
	_, err = f.svc.Authenticate(ctx, "alice", testPassword, testClient, false)
	assert.ErrorIs(t, err, models.ErrAccountLocked)

	_, err = f.svc.Authenticate(ctx, "alice", "wrong-password", testClient, false)
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Equal(t, 5, f.users.snapshot(admin.ID).FailedLoginAttempts)
	assert.Len(t, f.notifier.Locked, 1)
}

func TestAuthenticate_SuccessResetsCounter(t *testing.T) {
	f := newSessionFixture(t)
	admin := f.admin(t, "alice", false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Authenticate(ctx, "alice", "wrong-password", testClient, false)
		require.ErrorIs(t, err, models.ErrInvalidCredentials)
	}
	require.Equal(t, 3, f.users.snapshot(admin.ID).FailedLoginAttempts)

	_, err := f.svc.Authenticate(ctx, "alice", testPassword, testClient, false)
	require.NoError(t, err)
	assert.Equal(t, 0, f.users.snapshot(admin.ID).FailedLoginAttempts)
}

func TestAuthenticate_ExpiredLockAllowsLogin(t *testing.T) {
	f := newSessionFixture(t)
	admin := f.admin(t, "alice", false)
	past := time.Now().Add(-time.Minute)
	f.users.users[admin.ID].FailedLoginAttempts = 5
	f.users.users[admin.ID].AccountLockedUntil = &past

	_, err := f.svc.Authenticate(context.Background(), "alice", testPassword, testClient, false)
	require.NoError(t, err)

	stored := f.users.snapshot(admin.ID)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
	assert.Nil(t, stored.AccountLockedUntil)
}

func TestAuthenticate_ConcurrentFailuresAllCounted(t *testing.T) {
	f := newSessionFixture(t)
	admin := f.admin(t, "alice", false)
	f.svc.cfg.Lockout.Threshold = 100

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Authenticate(context.Background(), "alice", "wrong-password", testClient, false)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, f.users.snapshot(admin.ID).FailedLoginAttempts)
	assert.Len(t, f.audit.Recorded(), 10)
}

func TestAuthenticate_LockSetDuringLoginIsKept(t *testing.T) {
	f := newSessionFixture(t)
	admin := f.admin(t, "alice", false)
	ctx := context.Background()

	// five failures land between the login's read and its counter reset
	var once sync.Once
	f.users.AfterRead = func(id uuid.UUID) {
		once.Do(func() {
			for i := 0; i < 5; i++ {
				_, err := f.users.RecordFailedLogin(ctx, id, testSessionConfig.Lockout, time.Now())
				require.NoError(t, err)
			}
		})
	}

	result, err := f.svc.Authenticate(ctx, "alice", testPassword, testClient, false)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, models.ErrAccountLocked)

	stored := f.users.snapshot(admin.ID)
	assert.Equal(t, 5, stored.FailedLoginAttempts)
	require.NotNil(t, stored.AccountLockedUntil)
	assert.True(t, stored.IsLocked(time.Now()))
	assert.Nil(t, stored.LastLogin)
	assert.Empty(t, f.sessions.sessions)

	logs := f.audit.Recorded()
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionStatusFailed, logs[0].ActionStatus)
	assert.Equal(t, "account_locked", logs[0].ContextData["reason"])
}

func enableTwoFactor(t *testing.T, f *sessionFixture, admin *models.AdminUser) string {
	t.Helper()
	enrollment, err := f.totp.Enroll(admin.Username)
	require.NoError(t, err)
	require.NoError(t, f.users.SetTwoFactor(context.Background(), admin.ID, true, enrollment.EncryptedSecret, enrollment.Nonce))
	return enrollment.Secret
}

func TestTwoFactorLogin(t *testing.T) {
	f := newSessionFixture(t)
	admin := f.admin(t, "alice", false)
	secret := enableTwoFactor(t, f, admin)
	ctx := context.Background()

	pending, err := f.svc.Authenticate(ctx, "alice", testPassword, testClient, false)
	require.NoError(t, err)
	assert.True(t, pending.TwoFactorRequired)
	assert.NotEmpty(t, pending.ChallengeToken)
	assert.Nil(t, pending.Session)
	assert.Nil(t, f.users.snapshot(admin.ID).LastLogin)

	_, err = f.svc.VerifyTwoFactor(ctx, pending.ChallengeToken, "000000", testClient)
	assert.ErrorIs(t, err, models.ErrTwoFactorInvalid)
	assert.Equal(t, 1, f.users.snapshot(admin.ID).FailedLoginAttempts)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	result, err := f.svc.VerifyTwoFactor(ctx, pending.ChallengeToken, code, testClient)
	require.NoError(t, err)
	require.NotNil(t, result.Session)
	assert.NotEmpty(t, result.Token)

	stored := f.users.snapshot(admin.ID)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
	assert.NotNil(t, stored.LastLogin)
	assert.Len(t, f.audit.Recorded(), 3)
}

func TestVerifyTwoFactor_BadChallenge(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.svc.VerifyTwoFactor(context.Background(), "not-a-token", "123456", testClient)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	logs := f.audit.Recorded()
	require.Len(t, logs, 1)
	assert.Equal(t, "invalid_challenge", logs[0].ContextData["reason"])
}

func login(t *testing.T, f *sessionFixture, username string) *LoginResult {
	t.Helper()
	result, err := f.svc.Authenticate(context.Background(), username, testPassword, testClient, false)
	require.NoError(t, err)
	return result
}

func TestValidate(t *testing.T) {
	f := newSessionFixture(t)
	admin := f.admin(t, "alice", false)
	now := time.Now()
	f.setNow(now)
	result := login(t, f, "alice")
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		f.setNow(now.Add(time.Minute))
		got, session, err := f.svc.Validate(ctx, result.Token)
		require.NoError(t, err)
		assert.Equal(t, admin.ID, got.ID)
		assert.Equal(t, now.Add(time.Minute), session.LastActivity)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, _, err := f.svc.Validate(ctx, "bogus")
		assert.ErrorIs(t, err, models.ErrSessionNotFound)
		assert.ErrorIs(t, err, models.ErrUnauthenticated)
	})

	t.Run("empty token", func(t *testing.T) {
		_, _, err := f.svc.Validate(ctx, "")
		assert.ErrorIs(t, err, models.ErrUnauthenticated)
	})

	t.Run("one second before expiry", func(t *testing.T) {
		f.setNow(result.Session.ExpiresAt.Add(-time.Second))
		_, session, err := f.svc.Validate(ctx, result.Token)
		require.NoError(t, err)
		// activity never extends the lifetime
		assert.Equal(t, result.Session.ExpiresAt, session.ExpiresAt)
		stored, err := f.sessions.GetBySessionID(ctx, result.Session.SessionID)
		require.NoError(t, err)
		assert.Equal(t, result.Session.ExpiresAt, stored.ExpiresAt)
		f.setNow(now)
	})

	t.Run("one second after expiry", func(t *testing.T) {
		f.setNow(result.Session.ExpiresAt.Add(time.Second))
		_, _, err := f.svc.Validate(ctx, result.Token)
		assert.ErrorIs(t, err, models.ErrSessionExpired)
		f.setNow(now)
	})

	t.Run("expired", func(t *testing.T) {
		f.setNow(now.Add(8 * time.Hour))
		_, _, err := f.svc.Validate(ctx, result.Token)
		assert.ErrorIs(t, err, models.ErrSessionExpired)
		assert.ErrorIs(t, err, models.ErrUnauthenticated)
		f.setNow(now)
	})
}

func TestValidate_DisabledAdmin(t *testing.T) {
	f := newSessionFixture(t)
	admin := f.admin(t, "alice", false)
	result := login(t, f, "alice")

	require.NoError(t, f.users.SetActive(context.Background(), admin.ID, false))

	_, _, err := f.svc.Validate(context.Background(), result.Token)
	assert.ErrorIs(t, err, models.ErrSessionRevoked)
}

func TestValidate_StoreOutage(t *testing.T) {
	f := newSessionFixture(t)
	f.admin(t, "alice", false)
	result := login(t, f, "alice")
	f.users.GetErr = models.ErrStoreUnavailable

	_, _, err := f.svc.Validate(context.Background(), result.Token)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, models.ErrUnauthenticated)
}

func TestRevoke_Idempotent(t *testing.T) {
	f := newSessionFixture(t)
	admin := f.admin(t, "alice", false)
	result := login(t, f, "alice")
	actor := ActorFromAdmin(admin, testClient.IPAddress, testClient.UserAgent)
	ctx := context.Background()

	require.NoError(t, f.svc.Revoke(ctx, actor, result.Token))
	require.NoError(t, f.svc.Revoke(ctx, actor, result.Token))

	_, _, err := f.svc.Validate(ctx, result.Token)
	assert.ErrorIs(t, err, models.ErrSessionRevoked)

	logs := f.audit.Recorded()
	require.Len(t, logs, 3)
	assert.Equal(t, models.ActionLogout, logs[1].ActionType)
	assert.Equal(t, false, logs[1].ContextData["already_inactive"])
	assert.Equal(t, true, logs[2].ContextData["already_inactive"])
	assert.Equal(t, models.ActionStatusSuccess, logs[2].ActionStatus)
}

func TestRevokeByID(t *testing.T) {
	f := newSessionFixture(t)
	alice := f.admin(t, "alice", false)
	bob := f.admin(t, "bob", false)
	root := f.admin(t, "root", true)
	result := login(t, f, "alice")
	ctx := context.Background()

	err := f.svc.RevokeByID(ctx, ActorFromAdmin(bob, "", ""), alice.ID, result.Session.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, _, err = f.svc.Validate(ctx, result.Token)
	require.NoError(t, err)

	require.NoError(t, f.svc.RevokeByID(ctx, ActorFromAdmin(root, "", ""), alice.ID, result.Session.ID))

	_, _, err = f.svc.Validate(ctx, result.Token)
	assert.ErrorIs(t, err, models.ErrSessionRevoked)
}

func TestSweepExpired(t *testing.T) {
	f := newSessionFixture(t)
	f.admin(t, "alice", false)
	now := time.Now()
	f.setNow(now)
	login(t, f, "alice")
	login(t, f, "alice")

	f.setNow(now.Add(time.Hour))
	n, err := f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	f.setNow(now.Add(9 * time.Hour))
	n, err = f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
