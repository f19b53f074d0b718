package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/osctl"
	"github.com/BradenHooton/hostpanel/internal/validation"
)

const (
	defaultUserPageSize = 50
	maxUserPageSize     = 500

	// accounts below this uid belong to the distribution
	firstRegularUID = 1000
)

// SystemUserRepository defines the OS account mirror store.
type SystemUserRepository interface {
	Create(ctx context.Context, u *models.SystemUser) (*models.SystemUser, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.SystemUser, error)
	GetByUsername(ctx context.Context, username string) (*models.SystemUser, error)
	List(ctx context.Context, limit, offset int) ([]*models.SystemUser, error)
	Count(ctx context.Context) (int, error)
	Update(ctx context.Context, u *models.SystemUser) (*models.SystemUser, error)
	SoftDelete(ctx context.Context, id uuid.UUID, now time.Time) error
}

// SystemUserService provisions Linux accounts and keeps their mirror rows.
type SystemUserService struct {
	repo   SystemUserRepository
	os     osctl.Controller
	runner *PrivilegedRunner
	logger *slog.Logger
	now    func() time.Time
}

func NewSystemUserService(repo SystemUserRepository, os osctl.Controller, runner *PrivilegedRunner, logger *slog.Logger) *SystemUserService {
	return &SystemUserService{repo: repo, os: os, runner: runner, logger: logger, now: time.Now}
}

// Create adds the OS account, sets its password when given, reads back the
// assigned uid/gid and stores the mirror row.
func (s *SystemUserService) Create(ctx context.Context, actor Actor, req models.SystemUserCreateRequest) (*models.SystemUser, error) {
	var created *models.SystemUser

	err := s.runner.Run(ctx, Operation{Action: models.ActionUserCreate, Actor: actor, ResourceName: req.Username},
		func(ctx context.Context, rec *OperationRecord) error {
			req, err := validation.ValidateSystemUserCreate(req)
			if err != nil {
				return err
			}
			rec.ResourceName = req.Username

			if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
				return fmt.Errorf("%w: system user %q", models.ErrConflict, req.Username)
			} else if !errors.Is(err, models.ErrNotFound) {
				return err
			}

			res, err := s.os.CreateUser(ctx, osctl.UserSpec{
				Username:      req.Username,
				FullName:      req.FullName,
				Shell:         req.Shell,
				HomeDirectory: req.HomeDirectory,
				CreateHome:    *req.CreateHome,
				Groups:        req.Groups,
			})
			rec.AddCommand(commandOf(res))
			if err != nil {
				return err
			}

			if req.Password != "" {
				res, err := s.os.SetPassword(ctx, req.Username, req.Password)
				rec.AddCommand(commandOf(res))
				if err != nil {
					s.rollbackCreate(ctx, req.Username, rec)
					return err
				}
			}

			acct, err := s.os.LookupUser(ctx, req.Username)
			if err != nil {
				s.rollbackCreate(ctx, req.Username, rec)
				return err
			}

			groups := acct.Groups
			if groups == nil {
				groups = req.Groups
			}
			created, err = s.repo.Create(ctx, &models.SystemUser{
				Username:      req.Username,
				UID:           acct.UID,
				GID:           acct.GID,
				HomeDirectory: req.HomeDirectory,
				Shell:         req.Shell,
				FullName:      req.FullName,
				IsSystemUser:  acct.UID < firstRegularUID,
				Groups:        groups,
				CreatedAt:     s.now(),
			})
			if err != nil {
				s.rollbackCreate(ctx, req.Username, rec)
				return fmt.Errorf("failed to store system user: %w", err)
			}

			rec.TargetUserID = &created.ID
			rec.Set("uid", created.UID)
			rec.Set("home_created", *req.CreateHome)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// rollbackCreate removes an OS account whose mirror row could not be stored.
func (s *SystemUserService) rollbackCreate(ctx context.Context, username string, rec *OperationRecord) {
	res, err := s.os.DeleteUser(context.WithoutCancel(ctx), username, true)
	rec.AddCommand(commandOf(res))
	rec.Set("rolled_back", err == nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to roll back os account",
			slog.String("username", username),
			slog.Any("error", err))
	}
}

func (s *SystemUserService) Get(ctx context.Context, id uuid.UUID) (*models.SystemUser, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *SystemUserService) List(ctx context.Context, limit, offset int) ([]*models.SystemUser, int, error) {
	limit, offset = clampPage(limit, offset, defaultUserPageSize, maxUserPageSize)

	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list system users: %w", err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count system users: %w", err)
	}
	return users, total, nil
}

// Update applies full_name, shell, groups and lock changes to the OS
// account, then to the mirror row.
func (s *SystemUserService) Update(ctx context.Context, actor Actor, id uuid.UUID, req models.SystemUserUpdateRequest) (*models.SystemUser, error) {
	var updated *models.SystemUser

	err := s.runner.Run(ctx, Operation{Action: models.ActionUserUpdate, Actor: actor, ResourceName: id.String()},
		func(ctx context.Context, rec *OperationRecord) error {
			req, err := validation.ValidateSystemUserUpdate(req)
			if err != nil {
				return err
			}

			user, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			rec.ResourceName = user.Username
			rec.TargetUserID = &user.ID

			res, err := s.os.ModifyUser(ctx, user.Username, osctl.UserChange{
				FullName: req.FullName,
				Shell:    req.Shell,
				Groups:   req.Groups,
			})
			rec.AddCommand(commandOf(res))
			if err != nil {
				return err
			}

			changed := []string{}
			if req.FullName != nil {
				user.FullName = *req.FullName
				changed = append(changed, "full_name")
			}
			if req.Shell != nil {
				user.Shell = *req.Shell
				changed = append(changed, "shell")
			}
			if req.Groups != nil {
				user.Groups = req.Groups
				changed = append(changed, "groups")
			}
			if req.IsLocked != nil && *req.IsLocked != user.IsLocked {
				res, err := s.setLocked(ctx, user.Username, *req.IsLocked)
				rec.AddCommand(commandOf(res))
				if err != nil {
					return err
				}
				user.IsLocked = *req.IsLocked
				changed = append(changed, "is_locked")
			}
			rec.Set("changed_fields", changed)

			updated, err = s.repo.Update(ctx, user)
			if err != nil {
				return fmt.Errorf("failed to update system user: %w", err)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the OS account and soft-deletes the mirror row so the
// audit history keeps its target.
func (s *SystemUserService) Delete(ctx context.Context, actor Actor, id uuid.UUID, removeHome bool) error {
	return s.runner.Run(ctx, Operation{Action: models.ActionUserDelete, Actor: actor, ResourceName: id.String()},
		func(ctx context.Context, rec *OperationRecord) error {
			user, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			rec.ResourceName = user.Username
			rec.TargetUserID = &user.ID
			rec.Set("remove_home", removeHome)

			if user.IsSystemUser {
				return fmt.Errorf("%w: %q is a system account", models.ErrForbidden, user.Username)
			}

			res, err := s.os.DeleteUser(ctx, user.Username, removeHome)
			rec.AddCommand(commandOf(res))
			if err != nil {
				return err
			}

			if err := s.repo.SoftDelete(ctx, id, s.now()); err != nil {
				return fmt.Errorf("failed to delete system user: %w", err)
			}
			return nil
		})
}

// ResetPassword sets a new OS password through chpasswd.
func (s *SystemUserService) ResetPassword(ctx context.Context, actor Actor, id uuid.UUID, req models.PasswordResetRequest) error {
	return s.runner.Run(ctx, Operation{Action: models.ActionPasswordReset, Actor: actor, ResourceName: id.String()},
		func(ctx context.Context, rec *OperationRecord) error {
			req, err := validation.ValidatePasswordReset(req)
			if err != nil {
				return err
			}

			user, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			rec.ResourceName = user.Username
			rec.TargetUserID = &user.ID

			res, err := s.os.SetPassword(ctx, user.Username, req.NewPassword)
			rec.AddCommand(commandOf(res))
			return err
		})
}

func (s *SystemUserService) Lock(ctx context.Context, actor Actor, id uuid.UUID) (*models.SystemUser, error) {
	return s.lockOp(ctx, actor, id, true)
}

func (s *SystemUserService) Unlock(ctx context.Context, actor Actor, id uuid.UUID) (*models.SystemUser, error) {
	return s.lockOp(ctx, actor, id, false)
}

func (s *SystemUserService) lockOp(ctx context.Context, actor Actor, id uuid.UUID, lock bool) (*models.SystemUser, error) {
	action := models.ActionUserUnlock
	if lock {
		action = models.ActionUserLock
	}

	var updated *models.SystemUser
	err := s.runner.Run(ctx, Operation{Action: action, Actor: actor, ResourceName: id.String()},
		func(ctx context.Context, rec *OperationRecord) error {
			user, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			rec.ResourceName = user.Username
			rec.TargetUserID = &user.ID

			res, err := s.setLocked(ctx, user.Username, lock)
			rec.AddCommand(commandOf(res))
			if err != nil {
				return err
			}

			user.IsLocked = lock
			updated, err = s.repo.Update(ctx, user)
			if err != nil {
				return fmt.Errorf("failed to update system user: %w", err)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SystemUserService) setLocked(ctx context.Context, username string, lock bool) (*osctl.Result, error) {
	if lock {
		return s.os.LockUser(ctx, username)
	}
	return s.os.UnlockUser(ctx, username)
}

func commandOf(res *osctl.Result) string {
	if res == nil {
		return ""
	}
	return res.Command
}
