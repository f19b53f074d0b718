package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/hostpanel/internal/auth"
	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/notify"
	"github.com/BradenHooton/hostpanel/internal/telemetry"
	pkgauth "github.com/BradenHooton/hostpanel/pkg/auth"
	pkglogger "github.com/BradenHooton/hostpanel/pkg/logger"
)

const notifyTimeout = 10 * time.Second

// AdminUserRepository defines the admin account store used by the session
// and admin services.
type AdminUserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.AdminUser, error)
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	List(ctx context.Context, limit, offset int) ([]*models.AdminUser, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, u *models.AdminUser) (*models.AdminUser, error)
	RecordFailedLogin(ctx context.Context, id uuid.UUID, policy models.LockoutPolicy, now time.Time) (*models.LoginOutcome, error)
	RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, now time.Time) error
	Unlock(ctx context.Context, id uuid.UUID) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	DisableUnlessLastSuperuser(ctx context.Context, id uuid.UUID) (bool, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, requireChange bool) error
	SetTwoFactor(ctx context.Context, id uuid.UUID, enabled bool, secret, nonce []byte) error
}

// SessionRepository defines the session store.
type SessionRepository interface {
	Create(ctx context.Context, s *models.AdminSession) (*models.AdminSession, error)
	GetBySessionID(ctx context.Context, sessionHash string) (*models.AdminSession, error)
	Touch(ctx context.Context, sessionHash string, now time.Time) (bool, error)
	Deactivate(ctx context.Context, sessionHash string, reason models.SessionEndReason, now time.Time) (bool, error)
	DeactivateByID(ctx context.Context, adminID, id uuid.UUID, reason models.SessionEndReason, now time.Time) (bool, error)
	DeactivateAllForAdmin(ctx context.Context, adminID uuid.UUID, reason models.SessionEndReason, now time.Time) (int64, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	ListActiveForAdmin(ctx context.Context, adminID uuid.UUID, now time.Time) ([]*models.AdminSession, error)
}

// SessionConfig holds session lifetimes and the lockout policy.
type SessionConfig struct {
	SessionDuration    time.Duration
	RememberMeDuration time.Duration
	Lockout            models.LockoutPolicy
}

// LoginResult is returned by a successful password or 2FA step. Either
// Session/Token are set, or TwoFactorRequired with a ChallengeToken.
type LoginResult struct {
	Admin              *models.AdminUser
	Session            *models.AdminSession
	Token              string
	CSRFToken          string
	TwoFactorRequired  bool
	ChallengeToken     string
	ChallengeExpiresAt time.Time
}

// SessionService authenticates admins and manages their sessions.
type SessionService struct {
	users       AdminUserRepository
	sessions    SessionRepository
	runner      *PrivilegedRunner
	hasher      *pkgauth.Hasher
	timing      *auth.TimingDelay
	challenges  *auth.ChallengeManager
	totp        *auth.TOTPManager
	csrf        *auth.CSRFSigner
	notifier    notify.Notifier
	metrics     *telemetry.Metrics
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
	cfg         SessionConfig
	now         func() time.Time
}

// SessionDeps groups the collaborators of SessionService.
type SessionDeps struct {
	Users       AdminUserRepository
	Sessions    SessionRepository
	Runner      *PrivilegedRunner
	Hasher      *pkgauth.Hasher
	Timing      *auth.TimingDelay
	Challenges  *auth.ChallengeManager
	TOTP        *auth.TOTPManager
	CSRF        *auth.CSRFSigner
	Notifier    notify.Notifier
	Metrics     *telemetry.Metrics
	AuditLogger *pkglogger.AuditLogger
	Logger      *slog.Logger
}

func NewSessionService(deps SessionDeps, cfg SessionConfig) *SessionService {
	return &SessionService{
		users:       deps.Users,
		sessions:    deps.Sessions,
		runner:      deps.Runner,
		hasher:      deps.Hasher,
		timing:      deps.Timing,
		challenges:  deps.Challenges,
		totp:        deps.TOTP,
		csrf:        deps.CSRF,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		auditLogger: deps.AuditLogger,
		logger:      deps.Logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Authenticate checks a username and password. Unknown users, disabled
// accounts and wrong passwords all yield ErrInvalidCredentials after the
// same padded delay; a lock in force yields ErrAccountLocked.
func (s *SessionService) Authenticate(ctx context.Context, username, password string, client Actor, rememberMe bool) (*LoginResult, error) {
	start := time.Now()
	var result *LoginResult

	err := s.runner.Run(ctx, Operation{Action: models.ActionLogin, Actor: client, ResourceName: username},
		func(ctx context.Context, rec *OperationRecord) error {
			rec.Set("stage", "password")
			r, err := s.authenticate(ctx, username, password, client, rememberMe, rec)
			result = r
			return err
		})

	s.timing.WaitFrom(ctx, start, err == nil)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SessionService) authenticate(ctx context.Context, username, password string, client Actor, rememberMe bool, rec *OperationRecord) (*LoginResult, error) {
	admin, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.hasher.CompareDummy(password)
			rec.Set("reason", "unknown_user")
			s.metrics.LoginAttempt("invalid")
			s.logger.InfoContext(ctx, "login failed: invalid credentials",
				slog.String("username", pkglogger.SanitizedUsername(username)))
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}
	rec.AdminUserID = &admin.ID

	if !admin.IsActive {
		s.hasher.CompareDummy(password)
		rec.Set("reason", "account_disabled")
		s.metrics.LoginAttempt("invalid")
		return nil, models.ErrInvalidCredentials
	}

	now := s.now()
	if admin.IsLocked(now) {
		rec.Set("reason", "account_locked")
		rec.Set("locked_until", admin.AccountLockedUntil.UTC().Format(time.RFC3339))
		s.metrics.LoginAttempt("locked")
		return nil, models.ErrAccountLocked
	}

	if !s.hasher.Compare(admin.PasswordHash, password) {
		return nil, s.recordFailure(ctx, admin, client, rec, "bad_password", models.ErrInvalidCredentials)
	}

	if admin.TwoFactorEnabled {
		token, expiresAt, err := s.challenges.Issue(admin.ID, rememberMe)
		if err != nil {
			return nil, err
		}
		rec.Set("two_factor_pending", true)
		s.metrics.LoginAttempt("two_factor_pending")
		return &LoginResult{
			Admin:              admin,
			TwoFactorRequired:  true,
			ChallengeToken:     token,
			ChallengeExpiresAt: expiresAt,
		}, nil
	}

	return s.startSession(ctx, admin, client, rememberMe, rec)
}

// VerifyTwoFactor completes a login started by Authenticate. A wrong code
// counts as a failed login for lockout.
func (s *SessionService) VerifyTwoFactor(ctx context.Context, challenge, code string, client Actor) (*LoginResult, error) {
	start := time.Now()
	var result *LoginResult

	err := s.runner.Run(ctx, Operation{Action: models.ActionLogin, Actor: client},
		func(ctx context.Context, rec *OperationRecord) error {
			rec.Set("stage", "two_factor")
			r, err := s.verifyTwoFactor(ctx, challenge, code, client, rec)
			result = r
			return err
		})

	s.timing.WaitFrom(ctx, start, err == nil)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SessionService) verifyTwoFactor(ctx context.Context, challenge, code string, client Actor, rec *OperationRecord) (*LoginResult, error) {
	claims, adminID, err := s.challenges.Verify(challenge)
	if err != nil {
		rec.Set("reason", "invalid_challenge")
		return nil, models.ErrInvalidCredentials
	}
	rec.AdminUserID = &adminID

	admin, err := s.users.GetByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			rec.AdminUserID = nil
			rec.Set("reason", "unknown_user")
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}
	rec.ResourceName = admin.Username

	if !admin.IsActive || !admin.TwoFactorEnabled {
		rec.Set("reason", "account_state")
		return nil, models.ErrInvalidCredentials
	}

	now := s.now()
	if admin.IsLocked(now) {
		rec.Set("reason", "account_locked")
		s.metrics.LoginAttempt("locked")
		return nil, models.ErrAccountLocked
	}

	ok, err := s.totp.ValidateCode(admin.TwoFactorSecret, admin.TwoFactorNonce, code, now)
	if err != nil {
		return nil, fmt.Errorf("failed to check two-factor code: %w", err)
	}
	if !ok {
		return nil, s.recordFailure(ctx, admin, client, rec, "bad_totp", models.ErrTwoFactorInvalid)
	}

	return s.startSession(ctx, admin, client, claims.RememberMe, rec)
}

// recordFailure bumps the failure counter and locks the account at the
// threshold. It returns the error the caller should surface.
func (s *SessionService) recordFailure(ctx context.Context, admin *models.AdminUser, client Actor, rec *OperationRecord, reason string, failure error) error {
	rec.Set("reason", reason)

	outcome, err := s.users.RecordFailedLogin(ctx, admin.ID, s.cfg.Lockout, s.now())
	if err != nil {
		return fmt.Errorf("failed to record failed login: %w", err)
	}
	rec.Set("failed_attempts", outcome.Attempts)

	if outcome.JustLocked {
		rec.Set("locked", true)
		s.metrics.AccountLocked()
		s.metrics.LoginAttempt("invalid")
		s.logger.WarnContext(ctx, "admin account locked",
			slog.String("admin_id", admin.ID.String()),
			slog.Int("failed_attempts", outcome.Attempts))
		s.notifyLocked(ctx, admin, *outcome.LockedUntil, client.IPAddress)
		return failure
	}

	// another request locked the account between our read and the update
	if outcome.LockedUntil != nil {
		s.metrics.LoginAttempt("locked")
		return models.ErrAccountLocked
	}

	s.metrics.LoginAttempt("invalid")
	return failure
}

func (s *SessionService) notifyLocked(ctx context.Context, admin *models.AdminUser, until time.Time, ip string) {
	if s.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := s.notifier.AccountLocked(nctx, admin, until); err != nil {
		s.auditLogger.LogSecurityEvent(ctx, "lockout_notification_failed", admin.Username, ip,
			map[string]string{"error": err.Error()})
	}
}

func (s *SessionService) startSession(ctx context.Context, admin *models.AdminUser, client Actor, rememberMe bool, rec *OperationRecord) (*LoginResult, error) {
	now := s.now()
	if err := s.users.RecordSuccessfulLogin(ctx, admin.ID, now); err != nil {
		if errors.Is(err, models.ErrAccountLocked) {
			// locked by concurrent failures after our read
			rec.Set("reason", "account_locked")
			s.metrics.LoginAttempt("locked")
			return nil, models.ErrAccountLocked
		}
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	token, err := pkgauth.GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	lifetime := s.cfg.SessionDuration
	if rememberMe {
		lifetime = s.cfg.RememberMeDuration
	}

	session, err := s.sessions.Create(ctx, &models.AdminSession{
		SessionID:    pkgauth.HashSessionToken(token),
		AdminUserID:  admin.ID,
		IPAddress:    models.Truncate(client.IPAddress, models.AuditIPAddressMax),
		UserAgent:    models.Truncate(client.UserAgent, models.AuditUserAgentMax),
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(lifetime),
		IsActive:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	rec.Set("session_id", session.ID.String())
	rec.Set("remember_me", rememberMe)
	s.metrics.LoginAttempt("success")

	admin.FailedLoginAttempts = 0
	admin.AccountLockedUntil = nil
	admin.LastLogin = &now

	s.logger.InfoContext(ctx, "admin logged in", slog.String("admin_id", admin.ID.String()))
	return &LoginResult{
		Admin:     admin,
		Session:   session,
		Token:     token,
		CSRFToken: s.csrf.Token(session.SessionID),
	}, nil
}

// Validate resolves a session token to its admin. Failures wrap
// ErrUnauthenticated; store outages surface as ErrStoreUnavailable.
func (s *SessionService) Validate(ctx context.Context, token string) (*models.AdminUser, *models.AdminSession, error) {
	if token == "" {
		return nil, nil, models.ErrSessionNotFound
	}
	hash := pkgauth.HashSessionToken(token)

	session, err := s.sessions.GetBySessionID(ctx, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, models.ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}

	now := s.now()
	if err := sessionState(session, now); err != nil {
		return nil, nil, err
	}

	admin, err := s.users.GetByID(ctx, session.AdminUserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, models.ErrSessionRevoked
		}
		return nil, nil, fmt.Errorf("failed to load session owner: %w", err)
	}
	if !admin.IsActive {
		return nil, nil, models.ErrSessionRevoked
	}

	touched, err := s.sessions.Touch(ctx, hash, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to touch session: %w", err)
	}
	if !touched {
		// lost a race with revoke or sweep; report what the store now says
		current, err := s.sessions.GetBySessionID(ctx, hash)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, nil, models.ErrSessionNotFound
			}
			return nil, nil, fmt.Errorf("failed to reload session: %w", err)
		}
		if err := sessionState(current, now); err != nil {
			return nil, nil, err
		}
		return nil, nil, models.ErrSessionRevoked
	}

	session.LastActivity = now
	return admin, session, nil
}

// sessionState checks expiry before the active flag, so an expired session
// reports ErrSessionExpired even after the sweeper deactivated it.
func sessionState(session *models.AdminSession, now time.Time) error {
	if !now.Before(session.ExpiresAt) {
		return models.ErrSessionExpired
	}
	if !session.IsActive {
		return models.ErrSessionRevoked
	}
	return nil
}

// Revoke ends the session behind token (logout). Revoking an unknown or
// already inactive session succeeds.
func (s *SessionService) Revoke(ctx context.Context, actor Actor, token string) error {
	return s.runner.Run(ctx, Operation{Action: models.ActionLogout, Actor: actor},
		func(ctx context.Context, rec *OperationRecord) error {
			changed, err := s.sessions.Deactivate(ctx, pkgauth.HashSessionToken(token), models.SessionEndLogout, s.now())
			if err != nil {
				return fmt.Errorf("failed to end session: %w", err)
			}
			rec.Set("already_inactive", !changed)
			return nil
		})
}

// RevokeByID ends one of adminID's sessions. Idempotent.
func (s *SessionService) RevokeByID(ctx context.Context, actor Actor, adminID, sessionID uuid.UUID) error {
	return s.runner.Run(ctx, Operation{Action: models.ActionSessionRevoke, Actor: actor, ResourceName: sessionID.String()},
		func(ctx context.Context, rec *OperationRecord) error {
			if !actor.Is(adminID) && !actor.IsSuperuser {
				return models.ErrForbidden
			}
			rec.Set("session_owner", adminID.String())

			changed, err := s.sessions.DeactivateByID(ctx, adminID, sessionID, models.SessionEndRevoked, s.now())
			if err != nil {
				return fmt.Errorf("failed to revoke session: %w", err)
			}
			rec.Set("already_inactive", !changed)
			return nil
		})
}

// RevokeAllForAdmin ends every active session of adminID. It is called from
// inside other audited operations and records nothing itself.
func (s *SessionService) RevokeAllForAdmin(ctx context.Context, adminID uuid.UUID, reason models.SessionEndReason) (int64, error) {
	n, err := s.sessions.DeactivateAllForAdmin(ctx, adminID, reason, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return n, nil
}

// SweepExpired marks every active session past its expiry as expired.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.sessions.SweepExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	s.metrics.Swept(n)
	return n, nil
}

// ListSessions returns the admin's usable sessions, newest first.
func (s *SessionService) ListSessions(ctx context.Context, adminID uuid.UUID) ([]*models.AdminSession, error) {
	sessions, err := s.sessions.ListActiveForAdmin(ctx, adminID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}
