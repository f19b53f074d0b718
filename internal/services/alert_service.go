package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/notify"
	"github.com/BradenHooton/hostpanel/internal/validation"
)

const (
	defaultAlertPageSize = 50
	maxAlertPageSize     = 500
)

// AlertRepository defines the alert store.
type AlertRepository interface {
	Create(ctx context.Context, a *models.SystemAlert) (*models.SystemAlert, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.SystemAlert, error)
	FindOpenByType(ctx context.Context, alertType string) (*models.SystemAlert, error)
	List(ctx context.Context, f models.AlertFilter) ([]*models.SystemAlert, error)
	CountOpenBySeverity(ctx context.Context) (map[models.AlertSeverity]int, error)
	Acknowledge(ctx context.Context, id uuid.UUID, username string, now time.Time) (*models.SystemAlert, error)
	Resolve(ctx context.Context, id uuid.UUID, now time.Time) (*models.SystemAlert, error)
}

// AlertService owns the alert lifecycle. Alerts are operational signals,
// not privileged actions, so nothing here writes the audit trail.
type AlertService struct {
	repo     AlertRepository
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewAlertService(repo AlertRepository, notifier notify.Notifier, logger *slog.Logger) *AlertService {
	return &AlertService{repo: repo, notifier: notifier, logger: logger, now: time.Now}
}

// CreateAlert records an alert pushed by an external collector.
func (s *AlertService) CreateAlert(ctx context.Context, req models.AlertCreateRequest) (*models.SystemAlert, error) {
	req, err := validation.ValidateAlertCreate(req)
	if err != nil {
		return nil, err
	}

	data := req.AlertData
	if data == nil {
		data = models.JSONMap{}
	}
	return s.raise(ctx, &models.SystemAlert{
		AlertType:      req.AlertType,
		Severity:       models.AlertSeverity(req.Severity),
		Title:          req.Title,
		Message:        req.Message,
		ResourceName:   models.OptionalString(req.ResourceName),
		ThresholdValue: req.ThresholdValue,
		CurrentValue:   req.CurrentValue,
		AlertData:      data,
	})
}

// raise stores an alert and mails it when critical.
func (s *AlertService) raise(ctx context.Context, a *models.SystemAlert) (*models.SystemAlert, error) {
	a.CreatedAt = s.now().UTC()
	created, err := s.repo.Create(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	s.logger.WarnContext(ctx, "alert raised",
		slog.String("alert_type", created.AlertType),
		slog.String("severity", string(created.Severity)))

	if created.Severity == models.SeverityCritical && s.notifier != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := s.notifier.CriticalAlert(nctx, created); err != nil {
			s.logger.ErrorContext(ctx, "critical alert notification failed",
				slog.String("alert_id", created.ID.String()),
				slog.Any("error", err))
		}
	}
	return created, nil
}

// FindOpen returns the unresolved alert of alertType, or ErrNotFound.
func (s *AlertService) FindOpen(ctx context.Context, alertType string) (*models.SystemAlert, error) {
	return s.repo.FindOpenByType(ctx, alertType)
}

func (s *AlertService) Get(ctx context.Context, id uuid.UUID) (*models.SystemAlert, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *AlertService) List(ctx context.Context, f models.AlertFilter) ([]*models.SystemAlert, error) {
	f.Limit, f.Offset = clampPage(f.Limit, f.Offset, defaultAlertPageSize, maxAlertPageSize)
	alerts, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// Acknowledge marks an alert as seen. The first acknowledgement wins.
func (s *AlertService) Acknowledge(ctx context.Context, actor Actor, id uuid.UUID) (*models.SystemAlert, error) {
	username := actor.Username
	if username == "" {
		username = "system"
	}
	return s.repo.Acknowledge(ctx, id, username, s.now().UTC())
}

// Resolve closes an alert. Resolving twice keeps the first timestamp.
func (s *AlertService) Resolve(ctx context.Context, id uuid.UUID) (*models.SystemAlert, error) {
	return s.repo.Resolve(ctx, id, s.now().UTC())
}

func (s *AlertService) CountOpenBySeverity(ctx context.Context) (map[models.AlertSeverity]int, error) {
	return s.repo.CountOpenBySeverity(ctx)
}
