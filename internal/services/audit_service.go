package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/telemetry"
	pkglogger "github.com/BradenHooton/hostpanel/pkg/logger"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 500
)

// AuditLogRepository is the append-only store behind AuditService.
type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, error)
	Count(ctx context.Context, f models.AuditFilter) (int, error)
}

// AuditEntry is the input of Record.
type AuditEntry struct {
	AdminUserID     *uuid.UUID
	TargetUserID    *uuid.UUID
	ActionType      models.ActionType
	ActionStatus    models.ActionStatus
	ResourceName    string
	IPAddress       string
	UserAgent       string
	CommandExecuted string
	ErrorMessage    string
	ExecutionTime   time.Duration
	ContextData     models.JSONMap
}

// AuditService writes the audit trail: slog first, then the database.
// A failed database write is preserved in the fallback log stream.
type AuditService struct {
	repo        AuditLogRepository
	auditLogger *pkglogger.AuditLogger
	metrics     *telemetry.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

func NewAuditService(repo AuditLogRepository, auditLogger *pkglogger.AuditLogger, metrics *telemetry.Metrics, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:        repo,
		auditLogger: auditLogger,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Record persists one audit row. The returned error is non-nil when the
// entry was invalid or the store rejected it; in the latter case the record
// has already been written to the fallback log.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) (*models.AuditLog, error) {
	if !entry.ActionType.Valid() {
		return nil, fmt.Errorf("%w: unknown action type %q", models.ErrBadRequest, entry.ActionType)
	}
	if !entry.ActionStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown action status %q", models.ErrBadRequest, entry.ActionStatus)
	}

	log := buildAuditLog(entry, s.now().UTC())
	rec := toAuditRecord(log)

	saved, err := s.repo.Create(ctx, log)
	if err != nil {
		s.metrics.AuditWriteFailed()
		s.auditLogger.LogFallback(ctx, rec, err)
		return log, fmt.Errorf("failed to persist audit log: %w", err)
	}

	s.auditLogger.LogRecorded(ctx, rec)
	return saved, nil
}

func buildAuditLog(entry AuditEntry, ts time.Time) *models.AuditLog {
	log := &models.AuditLog{
		ID:              uuid.New(),
		Timestamp:       ts,
		AdminUserID:     entry.AdminUserID,
		TargetUserID:    entry.TargetUserID,
		ActionType:      entry.ActionType,
		ActionStatus:    entry.ActionStatus,
		ResourceName:    models.OptionalString(models.Truncate(entry.ResourceName, models.AuditResourceNameMax)),
		IPAddress:       models.OptionalString(models.Truncate(entry.IPAddress, models.AuditIPAddressMax)),
		UserAgent:       models.OptionalString(models.Truncate(entry.UserAgent, models.AuditUserAgentMax)),
		CommandExecuted: models.OptionalString(models.Truncate(entry.CommandExecuted, models.AuditCommandMax)),
		ErrorMessage:    models.OptionalString(models.Truncate(entry.ErrorMessage, models.AuditErrorMessageMax)),
		ContextData:     entry.ContextData,
	}
	if log.ContextData == nil {
		log.ContextData = models.JSONMap{}
	}
	ms := entry.ExecutionTime.Milliseconds()
	log.ExecutionTimeMs = &ms
	return log
}

func toAuditRecord(log *models.AuditLog) pkglogger.AuditRecord {
	rec := pkglogger.AuditRecord{
		Timestamp:    log.Timestamp,
		ActionType:   string(log.ActionType),
		ActionStatus: string(log.ActionStatus),
		ContextData:  log.ContextData,
	}
	if log.AdminUserID != nil {
		rec.AdminUserID = log.AdminUserID.String()
	}
	if log.TargetUserID != nil {
		rec.TargetUserID = log.TargetUserID.String()
	}
	rec.ResourceName = deref(log.ResourceName)
	rec.IPAddress = deref(log.IPAddress)
	rec.UserAgent = deref(log.UserAgent)
	rec.CommandExecuted = deref(log.CommandExecuted)
	rec.ErrorMessage = deref(log.ErrorMessage)
	if log.ExecutionTimeMs != nil {
		rec.ExecutionTimeMs = *log.ExecutionTimeMs
	}
	return rec
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// List returns one page of the trail, newest first, plus the total match count.
func (s *AuditService) List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int, error) {
	f.Limit, f.Offset = clampPage(f.Limit, f.Offset, defaultAuditPageSize, maxAuditPageSize)

	logs, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return logs, total, nil
}

// ForAdmin lists what one admin did.
func (s *AuditService) ForAdmin(ctx context.Context, adminID uuid.UUID, limit, offset int) ([]*models.AuditLog, int, error) {
	return s.List(ctx, models.AuditFilter{AdminUserID: &adminID, Limit: limit, Offset: offset})
}

// ForSystemUser lists every action that targeted one OS account.
func (s *AuditService) ForSystemUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, int, error) {
	return s.List(ctx, models.AuditFilter{TargetUserID: &userID, Limit: limit, Offset: offset})
}

// Recent returns the latest n entries.
func (s *AuditService) Recent(ctx context.Context, n int) ([]*models.AuditLog, error) {
	logs, err := s.repo.List(ctx, models.AuditFilter{Limit: n})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent audit logs: %w", err)
	}
	return logs, nil
}

func clampPage(limit, offset, def, max int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
