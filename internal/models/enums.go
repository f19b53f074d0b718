package models

// ServiceStatus is the observed state of a managed service unit.
type ServiceStatus string

const (
	ServiceStatusActive   ServiceStatus = "active"
	ServiceStatusInactive ServiceStatus = "inactive"
	ServiceStatusFailed   ServiceStatus = "failed"
	ServiceStatusDisabled ServiceStatus = "disabled"
	ServiceStatusUnknown  ServiceStatus = "unknown"
)

func (s ServiceStatus) Valid() bool {
	switch s {
	case ServiceStatusActive, ServiceStatusInactive, ServiceStatusFailed,
		ServiceStatusDisabled, ServiceStatusUnknown:
		return true
	}
	return false
}

// ParseServiceStatus maps an arbitrary systemctl state to a known status.
func ParseServiceStatus(raw string) ServiceStatus {
	s := ServiceStatus(raw)
	if s.Valid() {
		return s
	}
	switch raw {
	case "activating", "reloading", "deactivating":
		return ServiceStatusActive
	case "dead":
		return ServiceStatusInactive
	}
	return ServiceStatusUnknown
}

// ActionType enumerates every privileged action recorded in the audit log.
type ActionType string

const (
	ActionLogin              ActionType = "login"
	ActionLogout             ActionType = "logout"
	ActionServiceStart       ActionType = "service_start"
	ActionServiceStop        ActionType = "service_stop"
	ActionServiceRestart     ActionType = "service_restart"
	ActionServiceReload      ActionType = "service_reload"
	ActionServiceEnable      ActionType = "service_enable"
	ActionServiceDisable     ActionType = "service_disable"
	ActionServiceRegister    ActionType = "service_register"
	ActionUserCreate         ActionType = "user_create"
	ActionUserUpdate         ActionType = "user_update"
	ActionUserDelete         ActionType = "user_delete"
	ActionUserLock           ActionType = "user_lock"
	ActionUserUnlock         ActionType = "user_unlock"
	ActionPasswordReset      ActionType = "password_reset"
	ActionAdminCreate        ActionType = "admin_create"
	ActionAdminDisable       ActionType = "admin_disable"
	ActionAdminUnlock        ActionType = "admin_unlock"
	ActionAdminPasswordReset ActionType = "admin_password_reset"
	ActionSessionRevoke      ActionType = "session_revoke"
	ActionTwoFactorEnable    ActionType = "two_factor_enable"
	ActionTwoFactorDisable   ActionType = "two_factor_disable"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionLogin, ActionLogout,
		ActionServiceStart, ActionServiceStop, ActionServiceRestart, ActionServiceReload,
		ActionServiceEnable, ActionServiceDisable, ActionServiceRegister,
		ActionUserCreate, ActionUserUpdate, ActionUserDelete, ActionUserLock, ActionUserUnlock,
		ActionPasswordReset,
		ActionAdminCreate, ActionAdminDisable, ActionAdminUnlock, ActionAdminPasswordReset,
		ActionSessionRevoke, ActionTwoFactorEnable, ActionTwoFactorDisable:
		return true
	}
	return false
}

// ActionStatus is the outcome stored with an audit record.
type ActionStatus string

const (
	ActionStatusSuccess    ActionStatus = "success"
	ActionStatusFailed     ActionStatus = "failed"
	ActionStatusInProgress ActionStatus = "in_progress"
)

func (s ActionStatus) Valid() bool {
	switch s {
	case ActionStatusSuccess, ActionStatusFailed, ActionStatusInProgress:
		return true
	}
	return false
}

// AlertSeverity grades a SystemAlert.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityWarning  AlertSeverity = "warning"
	SeverityInfo     AlertSeverity = "info"
)

func (s AlertSeverity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// SessionEndReason records why a session stopped being active.
type SessionEndReason string

const (
	SessionEndLogout        SessionEndReason = "logout"
	SessionEndRevoked       SessionEndReason = "revoked"
	SessionEndExpired       SessionEndReason = "expired"
	SessionEndAdminDisabled SessionEndReason = "admin_disabled"
)

func (r SessionEndReason) Valid() bool {
	switch r {
	case SessionEndLogout, SessionEndRevoked, SessionEndExpired, SessionEndAdminDisabled:
		return true
	}
	return false
}
