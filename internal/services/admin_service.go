package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/BradenHooton/hostpanel/internal/auth"
	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/validation"
	pkgauth "github.com/BradenHooton/hostpanel/pkg/auth"
)

const (
	defaultAdminPageSize = 50
	maxAdminPageSize     = 200
)

// AdminService manages panel operator accounts.
type AdminService struct {
	users    AdminUserRepository
	sessions *SessionService
	runner   *PrivilegedRunner
	hasher   *pkgauth.Hasher
	totp     *auth.TOTPManager
	logger   *slog.Logger
}

func NewAdminService(users AdminUserRepository, sessions *SessionService, runner *PrivilegedRunner, hasher *pkgauth.Hasher, totp *auth.TOTPManager, logger *slog.Logger) *AdminService {
	return &AdminService{
		users:    users,
		sessions: sessions,
		runner:   runner,
		hasher:   hasher,
		totp:     totp,
		logger:   logger,
	}
}

// Bootstrap creates the first superuser when no admin exists yet.
// It is a no-op on a populated store or when username is empty.
func (s *AdminService) Bootstrap(ctx context.Context, username, email, password string) error {
	if username == "" {
		return nil
	}
	count, err := s.users.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if count > 0 {
		return nil
	}

	admin, err := s.CreateAdmin(ctx, Actor{}, models.AdminUserCreateRequest{
		Username:    username,
		Email:       email,
		Password:    password,
		IsSuperuser: true,
	})
	if err != nil {
		return fmt.Errorf("failed to bootstrap admin: %w", err)
	}
	s.logger.InfoContext(ctx, "bootstrap superuser created", slog.String("admin_id", admin.ID.String()))
	return nil
}

func (s *AdminService) CreateAdmin(ctx context.Context, actor Actor, req models.AdminUserCreateRequest) (*models.AdminUser, error) {
	var created *models.AdminUser

	err := s.runner.Run(ctx, Operation{Action: models.ActionAdminCreate, Actor: actor, ResourceName: req.Username},
		func(ctx context.Context, rec *OperationRecord) error {
			req, err := validation.ValidateAdminUserCreate(req)
			if err != nil {
				return err
			}
			rec.ResourceName = req.Username
			rec.Set("is_superuser", req.IsSuperuser)
			if actor.AdminID == nil {
				rec.Set("bootstrap", true)
			}

			hash, err := s.hashPassword("password", req.Password)
			if err != nil {
				return err
			}

			created, err = s.users.Create(ctx, &models.AdminUser{
				Username:     req.Username,
				Email:        req.Email,
				PasswordHash: hash,
				IsActive:     true,
				IsSuperuser:  req.IsSuperuser,
			})
			if err != nil {
				return fmt.Errorf("failed to create admin: %w", err)
			}
			rec.Set("created_admin_id", created.ID.String())
			return nil
		})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *AdminService) ListAdmins(ctx context.Context, limit, offset int) ([]*models.AdminUser, int, error) {
	limit, offset = clampPage(limit, offset, defaultAdminPageSize, maxAdminPageSize)

	admins, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list admins: %w", err)
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return admins, total, nil
}

func (s *AdminService) GetAdmin(ctx context.Context, id uuid.UUID) (*models.AdminUser, error) {
	return s.users.GetByID(ctx, id)
}

// DisableAdmin deactivates an account and ends its sessions. The last active
// superuser cannot be disabled, nor can an admin disable themself.
func (s *AdminService) DisableAdmin(ctx context.Context, actor Actor, id uuid.UUID) error {
	return s.runner.Run(ctx, Operation{Action: models.ActionAdminDisable, Actor: actor, ResourceName: id.String()},
		func(ctx context.Context, rec *OperationRecord) error {
			if actor.Is(id) {
				return invalid("id", "you cannot disable your own account")
			}

			target, err := s.users.GetByID(ctx, id)
			if err != nil {
				return err
			}
			rec.ResourceName = target.Username

			disabled, err := s.users.DisableUnlessLastSuperuser(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to disable admin: %w", err)
			}
			if !disabled {
				return invalid("id", "the last active superuser cannot be disabled")
			}

			revoked, err := s.sessions.RevokeAllForAdmin(ctx, id, models.SessionEndAdminDisabled)
			if err != nil {
				return err
			}
			rec.Set("sessions_revoked", revoked)
			return nil
		})
}

// UnlockAdmin clears a lockout and the failure counter.
func (s *AdminService) UnlockAdmin(ctx context.Context, actor Actor, id uuid.UUID) error {
	return s.runner.Run(ctx, Operation{Action: models.ActionAdminUnlock, Actor: actor, ResourceName: id.String()},
		func(ctx context.Context, rec *OperationRecord) error {
			target, err := s.users.GetByID(ctx, id)
			if err != nil {
				return err
			}
			rec.ResourceName = target.Username
			rec.Set("failed_attempts", target.FailedLoginAttempts)

			if err := s.users.Unlock(ctx, id); err != nil {
				return fmt.Errorf("failed to unlock admin: %w", err)
			}
			return nil
		})
}

// ResetAdminPassword sets a new password. Superusers may reset anyone and
// force a change at next login; other admins may only change their own.
// Resetting another admin's password ends that admin's sessions.
func (s *AdminService) ResetAdminPassword(ctx context.Context, actor Actor, id uuid.UUID, req models.PasswordResetRequest) error {
	return s.runner.Run(ctx, Operation{Action: models.ActionAdminPasswordReset, Actor: actor, ResourceName: id.String()},
		func(ctx context.Context, rec *OperationRecord) error {
			self := actor.Is(id)
			if !self && !actor.IsSuperuser {
				return models.ErrForbidden
			}

			req, err := validation.ValidatePasswordReset(req)
			if err != nil {
				return err
			}

			target, err := s.users.GetByID(ctx, id)
			if err != nil {
				return err
			}
			rec.ResourceName = target.Username

			hash, err := s.hashPassword("new_password", req.NewPassword)
			if err != nil {
				return err
			}
			if err := s.users.UpdatePassword(ctx, id, hash, !self); err != nil {
				return fmt.Errorf("failed to update password: %w", err)
			}
			rec.Set("self_service", self)

			if !self {
				revoked, err := s.sessions.RevokeAllForAdmin(ctx, id, models.SessionEndRevoked)
				if err != nil {
					return err
				}
				rec.Set("sessions_revoked", revoked)
			}
			return nil
		})
}

// SetupTwoFactor generates and stores a new, not yet enabled secret for the
// actor and returns the enrollment material to show once. The audit row uses
// the enable action with stage=setup.
func (s *AdminService) SetupTwoFactor(ctx context.Context, actor Actor) (*auth.Enrollment, error) {
	var enrollment *auth.Enrollment

	err := s.runner.Run(ctx, Operation{Action: models.ActionTwoFactorEnable, Actor: actor, ResourceName: actor.Username},
		func(ctx context.Context, rec *OperationRecord) error {
			rec.Set("stage", "setup")
			if actor.AdminID == nil {
				return models.ErrUnauthorized
			}

			admin, err := s.users.GetByID(ctx, *actor.AdminID)
			if err != nil {
				return err
			}
			rec.ResourceName = admin.Username
			if admin.TwoFactorEnabled {
				return models.ErrTwoFactorState
			}

			enrollment, err = s.totp.Enroll(admin.Username)
			if err != nil {
				return err
			}
			if err := s.users.SetTwoFactor(ctx, admin.ID, false, enrollment.EncryptedSecret, enrollment.Nonce); err != nil {
				return fmt.Errorf("failed to store two-factor secret: %w", err)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

// EnableTwoFactor turns on 2FA once the actor proves the pending secret works.
func (s *AdminService) EnableTwoFactor(ctx context.Context, actor Actor, code string) error {
	return s.runner.Run(ctx, Operation{Action: models.ActionTwoFactorEnable, Actor: actor, ResourceName: actor.Username},
		func(ctx context.Context, rec *OperationRecord) error {
			rec.Set("stage", "confirm")
			if actor.AdminID == nil {
				return models.ErrUnauthorized
			}

			admin, err := s.users.GetByID(ctx, *actor.AdminID)
			if err != nil {
				return err
			}
			if admin.TwoFactorEnabled || len(admin.TwoFactorSecret) == 0 {
				return models.ErrTwoFactorState
			}

			ok, err := s.totp.ValidateCode(admin.TwoFactorSecret, admin.TwoFactorNonce, code, s.runner.now())
			if err != nil {
				return err
			}
			if !ok {
				return models.ErrTwoFactorInvalid
			}

			if err := s.users.SetTwoFactor(ctx, admin.ID, true, admin.TwoFactorSecret, admin.TwoFactorNonce); err != nil {
				return fmt.Errorf("failed to enable two-factor: %w", err)
			}
			return nil
		})
}

// DisableTwoFactor removes 2FA from id. Admins disabling their own must
// present a current code; superusers may clear another admin's without one.
func (s *AdminService) DisableTwoFactor(ctx context.Context, actor Actor, id uuid.UUID, code string) error {
	return s.runner.Run(ctx, Operation{Action: models.ActionTwoFactorDisable, Actor: actor, ResourceName: id.String()},
		func(ctx context.Context, rec *OperationRecord) error {
			self := actor.Is(id)
			if !self && !actor.IsSuperuser {
				return models.ErrForbidden
			}

			admin, err := s.users.GetByID(ctx, id)
			if err != nil {
				return err
			}
			rec.ResourceName = admin.Username
			if !admin.TwoFactorEnabled {
				return models.ErrTwoFactorState
			}

			if self {
				ok, err := s.totp.ValidateCode(admin.TwoFactorSecret, admin.TwoFactorNonce, code, s.runner.now())
				if err != nil {
					return err
				}
				if !ok {
					return models.ErrTwoFactorInvalid
				}
			}
			rec.Set("self_service", self)

			if err := s.users.SetTwoFactor(ctx, id, false, nil, nil); err != nil {
				return fmt.Errorf("failed to disable two-factor: %w", err)
			}
			return nil
		})
}

// hashPassword reports a password the hasher refuses as a violation on field.
func (s *AdminService) hashPassword(field, password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if errors.Is(err, pkgauth.ErrPasswordLength) {
		return "", invalid(field, err.Error())
	}
	return hash, err
}

// invalid builds a single-violation ValidationError.
func invalid(field, message string) error {
	verr := &models.ValidationError{}
	verr.Add(field, message, nil)
	return verr
}

// isClientError reports whether err is the caller's fault rather than the
// system's, used to pick log levels.
func isClientError(err error) bool {
	return errors.Is(err, models.ErrBadRequest) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrConflict) ||
		errors.Is(err, models.ErrForbidden) ||
		errors.Is(err, models.ErrUnauthenticated) ||
		errors.Is(err, models.ErrInvalidCredentials) ||
		errors.Is(err, models.ErrAccountLocked) ||
		errors.Is(err, models.ErrTwoFactorInvalid) ||
		errors.Is(err, models.ErrTwoFactorState)
}
