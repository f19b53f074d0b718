package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/telemetry"
)

// Actor identifies who asked for an operation and from where.
// A zero Actor stands for the panel itself (bootstrap, background jobs).
type Actor struct {
	AdminID     *uuid.UUID
	Username    string
	IsSuperuser bool
	IPAddress   string
	UserAgent   string
}

// ActorFromAdmin builds an Actor for an authenticated admin.
func ActorFromAdmin(admin *models.AdminUser, ipAddress, userAgent string) Actor {
	a := Actor{IPAddress: ipAddress, UserAgent: userAgent}
	if admin != nil {
		id := admin.ID
		a.AdminID = &id
		a.Username = admin.Username
		a.IsSuperuser = admin.IsSuperuser
	}
	return a
}

// Is reports whether the actor is the admin with the given id.
func (a Actor) Is(id uuid.UUID) bool {
	return a.AdminID != nil && *a.AdminID == id
}

// Operation describes a privileged action before it runs.
type Operation struct {
	Action       models.ActionType
	Actor        Actor
	ResourceName string
	TargetUserID *uuid.UUID
}

// OperationRecord collects what the operation did, for the audit row.
type OperationRecord struct {
	AdminUserID  *uuid.UUID
	TargetUserID *uuid.UUID
	ResourceName string
	Commands     []string
	Context      models.JSONMap
}

// AddCommand appends an executed command line.
func (r *OperationRecord) AddCommand(cmd string) {
	if cmd != "" {
		r.Commands = append(r.Commands, cmd)
	}
}

// Set stores one context_data key.
func (r *OperationRecord) Set(key string, value interface{}) {
	r.Context[key] = value
}

// PrivilegedRunner is the only way mutating operations reach the store or
// the OS. Each Run produces exactly one audit row.
type PrivilegedRunner struct {
	audit   *AuditService
	metrics *telemetry.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewPrivilegedRunner(audit *AuditService, metrics *telemetry.Metrics, logger *slog.Logger) *PrivilegedRunner {
	return &PrivilegedRunner{audit: audit, metrics: metrics, logger: logger, now: time.Now}
}

// Run executes fn and records its outcome: success iff fn returned nil.
// A panic in fn is recorded as a failure and then re-raised.
func (p *PrivilegedRunner) Run(ctx context.Context, op Operation, fn func(ctx context.Context, rec *OperationRecord) error) (err error) {
	start := p.now()
	rec := &OperationRecord{
		AdminUserID:  op.Actor.AdminID,
		TargetUserID: op.TargetUserID,
		ResourceName: op.ResourceName,
		Context:      models.JSONMap{},
	}

	defer func() {
		if r := recover(); r != nil {
			p.record(ctx, op, rec, start, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	err = fn(ctx, rec)
	p.record(ctx, op, rec, start, err)
	return err
}

func (p *PrivilegedRunner) record(ctx context.Context, op Operation, rec *OperationRecord, start time.Time, opErr error) {
	status := models.ActionStatusSuccess
	var errMsg string
	if opErr != nil {
		status = models.ActionStatusFailed
		errMsg = opErr.Error()
		var verr *models.ValidationError
		if errors.As(opErr, &verr) {
			rec.Set("validation_failed", true)
		}

		level := slog.LevelError
		if isClientError(opErr) {
			level = slog.LevelInfo
		}
		p.logger.Log(ctx, level, "privileged action failed",
			slog.String("action_type", string(op.Action)),
			slog.String("resource", rec.ResourceName),
			slog.Any("error", opErr))
	}
	p.metrics.PrivilegedAction(string(op.Action), string(status))

	entry := AuditEntry{
		AdminUserID:     rec.AdminUserID,
		TargetUserID:    rec.TargetUserID,
		ActionType:      op.Action,
		ActionStatus:    status,
		ResourceName:    rec.ResourceName,
		IPAddress:       op.Actor.IPAddress,
		UserAgent:       op.Actor.UserAgent,
		CommandExecuted: strings.Join(rec.Commands, " && "),
		ErrorMessage:    errMsg,
		ExecutionTime:   p.now().Sub(start),
		ContextData:     rec.Context,
	}

	// the trail must survive a cancelled request
	writeCtx := context.WithoutCancel(ctx)
	if _, err := p.audit.Record(writeCtx, entry); err != nil {
		p.logger.ErrorContext(ctx, "audit record not persisted",
			slog.String("action_type", string(op.Action)),
			slog.Any("error", err))
	}
}
