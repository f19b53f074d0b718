package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Text limits of the audit_logs columns
const (
	AuditResourceNameMax = 255
	AuditIPAddressMax    = 45
	AuditUserAgentMax    = 500
	AuditCommandMax      = 2000
	AuditErrorMessageMax = 2000
)

// AuditLog is an immutable record of one privileged action.
type AuditLog struct {
	ID              uuid.UUID    `json:"id"`
	Timestamp       time.Time    `json:"timestamp"`
	AdminUserID     *uuid.UUID   `json:"admin_user_id,omitempty"`
	TargetUserID    *uuid.UUID   `json:"target_user_id,omitempty"`
	ActionType      ActionType   `json:"action_type"`
	ActionStatus    ActionStatus `json:"action_status"`
	ResourceName    *string      `json:"resource_name,omitempty"`
	IPAddress       *string      `json:"ip_address,omitempty"`
	UserAgent       *string      `json:"user_agent,omitempty"`
	CommandExecuted *string      `json:"command_executed,omitempty"`
	ErrorMessage    *string      `json:"error_message,omitempty"`
	ExecutionTimeMs *int64       `json:"execution_time_ms,omitempty"`
	ContextData     JSONMap      `json:"context_data"`
}

// AuditFilter narrows audit log queries. Zero values mean "any".
type AuditFilter struct {
	ActionType   *ActionType
	ActionStatus *ActionStatus
	AdminUserID  *uuid.UUID
	TargetUserID *uuid.UUID
	ResourceName *string
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}

// Truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
// Invalid UTF-8 is replaced and NUL bytes are dropped first, since Postgres
// text columns accept neither.
func Truncate(s string, max int) string {
	s = strings.ReplaceAll(strings.ToValidUTF8(s, "\uFFFD"), "\x00", "")
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// OptionalString returns nil for an empty string.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
