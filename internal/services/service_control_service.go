package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/osctl"
	"github.com/BradenHooton/hostpanel/internal/validation"
)

const (
	defaultServicePageSize = 100
	maxServicePageSize     = 500
)

// SystemServiceRepository defines the managed unit store.
type SystemServiceRepository interface {
	Create(ctx context.Context, s *models.SystemService) (*models.SystemService, error)
	GetByName(ctx context.Context, name string) (*models.SystemService, error)
	List(ctx context.Context, limit, offset int) ([]*models.SystemService, error)
	UpdateState(ctx context.Context, name string, st models.ServiceState, restarted bool, now time.Time) (*models.SystemService, error)
	CountByStatus(ctx context.Context) (map[models.ServiceStatus]int, error)
}

// ServiceControlService starts, stops and observes registered systemd units.
type ServiceControlService struct {
	repo   SystemServiceRepository
	os     osctl.Controller
	runner *PrivilegedRunner
	logger *slog.Logger
	now    func() time.Time
}

func NewServiceControlService(repo SystemServiceRepository, os osctl.Controller, runner *PrivilegedRunner, logger *slog.Logger) *ServiceControlService {
	return &ServiceControlService{repo: repo, os: os, runner: runner, logger: logger, now: time.Now}
}

// Register puts a unit under management after confirming the OS knows it.
func (s *ServiceControlService) Register(ctx context.Context, actor Actor, req models.ServiceRegisterRequest) (*models.SystemService, error) {
	var created *models.SystemService

	err := s.runner.Run(ctx, Operation{Action: models.ActionServiceRegister, Actor: actor, ResourceName: req.ServiceName},
		func(ctx context.Context, rec *OperationRecord) error {
			req, err := validation.ValidateServiceRegister(req)
			if err != nil {
				return err
			}
			rec.ResourceName = req.ServiceName

			if _, err := s.repo.GetByName(ctx, req.ServiceName); err == nil {
				return fmt.Errorf("%w: service %q", models.ErrConflict, req.ServiceName)
			} else if !errors.Is(err, models.ErrNotFound) {
				return err
			}

			st, err := s.os.ServiceStatus(ctx, req.ServiceName)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return invalid("service_name", "no such unit on this host")
				}
				return err
			}

			description := req.Description
			if description == "" {
				description = st.Description
			}

			created, err = s.repo.Create(ctx, &models.SystemService{
				ServiceName:      req.ServiceName,
				DisplayName:      req.DisplayName,
				Description:      description,
				Status:           st.Status,
				IsEnabled:        st.IsEnabled,
				IsActive:         st.IsActive,
				MainPID:          st.MainPID,
				MemoryUsageBytes: st.MemoryBytes,
				LastUpdated:      s.now(),
				ServiceConfig:    models.JSONMap{},
			})
			if err != nil {
				return fmt.Errorf("failed to register service: %w", err)
			}
			rec.Set("status", string(created.Status))
			return nil
		})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// PerformAction runs a verb against a registered unit and stores the
// refreshed state. variant selects which verbs are accepted.
func (s *ServiceControlService) PerformAction(ctx context.Context, actor Actor, req models.ServiceActionRequest, variant models.ServiceActionVariant) (*models.SystemService, error) {
	var updated *models.SystemService

	// without a valid verb there is no action type to audit under
	name, action, err := validation.ValidateServiceAction(req, variant)
	if err != nil {
		return nil, err
	}

	err = s.runner.Run(ctx, Operation{Action: action.AuditAction(), Actor: actor, ResourceName: name},
		func(ctx context.Context, rec *OperationRecord) error {
			svc, err := s.repo.GetByName(ctx, name)
			if err != nil {
				return err
			}

			res, actionErr := s.os.ServiceAction(ctx, name, action)
			rec.AddCommand(commandOf(res))
			if res != nil && res.Output != "" {
				rec.Set("output", models.Truncate(res.Output, models.AuditErrorMessageMax))
			}

			// refresh even after a failed action; the unit may be in a new state
			st, err := s.os.ServiceStatus(ctx, name)
			if err != nil {
				s.logger.WarnContext(ctx, "failed to read service status",
					slog.String("service", name),
					slog.Any("error", err))
				if actionErr != nil {
					return actionErr
				}
				updated = svc
				return nil
			}

			restarted := actionErr == nil && st.IsActive &&
				(action == models.ServiceActionStart || action == models.ServiceActionRestart)

			updated, err = s.repo.UpdateState(ctx, name, *st, restarted, s.now())
			if err != nil {
				if actionErr != nil {
					return actionErr
				}
				return fmt.Errorf("failed to store service state: %w", err)
			}

			rec.Set("status", string(updated.Status))
			if updated.MainPID != nil {
				rec.Set("main_pid", *updated.MainPID)
			}
			return actionErr
		})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RefreshStatus reads a unit's state from the OS and stores it. It is an
// observation, not a privileged action, and is not audited. Only
// registered units are read.
func (s *ServiceControlService) RefreshStatus(ctx context.Context, name string) (*models.SystemService, error) {
	if _, err := s.repo.GetByName(ctx, name); err != nil {
		return nil, err
	}
	st, err := s.os.ServiceStatus(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.repo.UpdateState(ctx, name, *st, false, s.now())
}

// RefreshAll refreshes every registered unit and returns how many succeeded.
func (s *ServiceControlService) RefreshAll(ctx context.Context) (int, error) {
	services, err := s.repo.List(ctx, maxServicePageSize, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list services: %w", err)
	}

	refreshed := 0
	for _, svc := range services {
		if _, err := s.RefreshStatus(ctx, svc.ServiceName); err != nil {
			s.logger.WarnContext(ctx, "service refresh failed",
				slog.String("service", svc.ServiceName),
				slog.Any("error", err))
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

func (s *ServiceControlService) Get(ctx context.Context, name string) (*models.SystemService, error) {
	return s.repo.GetByName(ctx, name)
}

func (s *ServiceControlService) List(ctx context.Context, limit, offset int) ([]*models.SystemService, error) {
	limit, offset = clampPage(limit, offset, defaultServicePageSize, maxServicePageSize)

	services, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}
