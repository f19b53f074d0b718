package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditRecord is the flattened form of an audit entry written to the log
// stream. It mirrors every column so the trail can be rebuilt from logs.
type AuditRecord struct {
	Timestamp       time.Time
	AdminUserID     string
	TargetUserID    string
	ActionType      string
	ActionStatus    string
	ResourceName    string
	IPAddress       string
	UserAgent       string
	CommandExecuted string
	ErrorMessage    string
	ExecutionTimeMs int64
	ContextData     map[string]interface{}
}

// AuditLogger writes audit records to the structured log.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogRecorded mirrors an audit row that was persisted.
func (al *AuditLogger) LogRecorded(ctx context.Context, rec AuditRecord) {
	level := slog.LevelInfo
	if rec.ActionStatus != "success" {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", recordAttrs("recorded", rec)...)
}

// LogFallback writes the complete record when the store rejected it.
// This stream is the durable copy of last resort.
func (al *AuditLogger) LogFallback(ctx context.Context, rec AuditRecord, storeErr error) {
	attrs := recordAttrs("fallback", rec)
	attrs = append(attrs, slog.String("store_error", storeErr.Error()))
	al.logger.LogAttrs(ctx, slog.LevelError, "audit write failed, record preserved in log", attrs...)
}

// LogSecurityEvent records auth events that have no audit row of their own,
// such as a lockout notification failing to send.
func (al *AuditLogger) LogSecurityEvent(ctx context.Context, eventType, username, ipAddress string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_type", eventType),
		slog.String("username", SanitizedUsername(username)),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}
	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}
	al.logger.LogAttrs(ctx, slog.LevelWarn, "audit", attrs...)
}

func recordAttrs(auditType string, rec AuditRecord) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("action_type", rec.ActionType),
		slog.String("action_status", rec.ActionStatus),
		slog.String("timestamp", rec.Timestamp.UTC().Format(time.RFC3339Nano)),
		slog.Int64("execution_time_ms", rec.ExecutionTimeMs),
	}

	optional := []struct{ key, val string }{
		{"admin_user_id", rec.AdminUserID},
		{"target_user_id", rec.TargetUserID},
		{"resource_name", rec.ResourceName},
		{"ip_address", rec.IPAddress},
		{"user_agent", rec.UserAgent},
		{"command_executed", rec.CommandExecuted},
		{"error_message", rec.ErrorMessage},
	}
	for _, o := range optional {
		if o.val != "" {
			attrs = append(attrs, slog.String(o.key, o.val))
		}
	}
	if len(rec.ContextData) > 0 {
		attrs = append(attrs, slog.Any("context_data", rec.ContextData))
	}
	return attrs
}
