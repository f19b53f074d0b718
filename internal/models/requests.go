package models

// Request shapes accepted by the validation layer. Tags are read by the
// validator; the json names are used in violation reports.

type AdminLoginRequest struct {
	Username   string `json:"username" validate:"required,max=50"`
	Password   string `json:"password" validate:"required,max=128"`
	RememberMe bool   `json:"remember_me"`
}

type TwoFactorVerifyRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	Code           string `json:"code" validate:"required,numeric,len=6"`
}

type AdminUserCreateRequest struct {
	Username    string `json:"username" validate:"required,max=50,panel_username"`
	Email       string `json:"email" validate:"required,max=255,panel_email"`
	Password    string `json:"password" validate:"required,min=8,password_bytes,password_text"`
	IsSuperuser bool   `json:"is_superuser"`
}

type SystemUserCreateRequest struct {
	Username      string   `json:"username" validate:"required,max=32,os_username"`
	FullName      string   `json:"full_name" validate:"max=200"`
	Shell         string   `json:"shell" validate:"max=100"`
	HomeDirectory string   `json:"home_directory" validate:"max=500"`
	CreateHome    *bool    `json:"create_home"`
	Password      string   `json:"password" validate:"omitempty,min=8,password_bytes,password_text"`
	Groups        []string `json:"groups" validate:"max=32,dive,required,max=32,os_username"`
}

type SystemUserUpdateRequest struct {
	FullName *string  `json:"full_name" validate:"omitempty,max=200"`
	Shell    *string  `json:"shell" validate:"omitempty,max=100"`
	Groups   []string `json:"groups" validate:"omitempty,max=32,dive,required,max=32,os_username"`
	IsLocked *bool    `json:"is_locked"`
}

type PasswordResetRequest struct {
	NewPassword     string `json:"new_password" validate:"required,min=8,password_bytes,password_text"`
	ConfirmPassword string `json:"confirm_password" validate:"required,min=8,password_bytes,password_text"`
}

// ServiceActionVariant selects which action set applies.
type ServiceActionVariant int

const (
	// ServiceActionStandard accepts start, stop, restart, enable and disable.
	ServiceActionStandard ServiceActionVariant = iota
	// ServiceActionManagement accepts start, stop, restart and reload.
	ServiceActionManagement
)

type ServiceActionRequest struct {
	ServiceName string `json:"service_name" validate:"required,max=255,service_name"`
	Action      string `json:"action" validate:"required"`
}

// ServiceAction is a validated, normalized action verb.
type ServiceAction string

const (
	ServiceActionStart   ServiceAction = "start"
	ServiceActionStop    ServiceAction = "stop"
	ServiceActionRestart ServiceAction = "restart"
	ServiceActionReload  ServiceAction = "reload"
	ServiceActionEnable  ServiceAction = "enable"
	ServiceActionDisable ServiceAction = "disable"
)

// AuditAction maps a service verb to its audit action type.
func (a ServiceAction) AuditAction() ActionType {
	switch a {
	case ServiceActionStart:
		return ActionServiceStart
	case ServiceActionStop:
		return ActionServiceStop
	case ServiceActionRestart:
		return ActionServiceRestart
	case ServiceActionReload:
		return ActionServiceReload
	case ServiceActionEnable:
		return ActionServiceEnable
	case ServiceActionDisable:
		return ActionServiceDisable
	}
	return ""
}

type ServiceRegisterRequest struct {
	ServiceName string `json:"service_name" validate:"required,max=255,service_name"`
	DisplayName string `json:"display_name" validate:"max=255"`
	Description string `json:"description" validate:"max=1000"`
}

type SystemMetricCreateRequest struct {
	CPUUsagePercent    float64 `json:"cpu_usage_percent" validate:"gte=0,lte=100"`
	MemoryUsagePercent float64 `json:"memory_usage_percent" validate:"gte=0,lte=100"`
	DiskUsagePercent   float64 `json:"disk_usage_percent" validate:"gte=0,lte=100"`
	MemoryTotalGB      float64 `json:"memory_total_gb" validate:"gte=0"`
	MemoryUsedGB       float64 `json:"memory_used_gb" validate:"gte=0"`
	DiskTotalGB        float64 `json:"disk_total_gb" validate:"gte=0"`
	DiskUsedGB         float64 `json:"disk_used_gb" validate:"gte=0"`
	LoadAverage1m      float64 `json:"load_average_1m" validate:"gte=0"`
	LoadAverage5m      float64 `json:"load_average_5m" validate:"gte=0"`
	LoadAverage15m     float64 `json:"load_average_15m" validate:"gte=0"`
}

type AlertCreateRequest struct {
	AlertType      string   `json:"alert_type" validate:"required,max=50"`
	Severity       string   `json:"severity" validate:"required,oneof=critical warning info"`
	Title          string   `json:"title" validate:"required,max=200"`
	Message        string   `json:"message" validate:"required,max=1000"`
	ResourceName   string   `json:"resource_name" validate:"max=255"`
	ThresholdValue *float64 `json:"threshold_value"`
	CurrentValue   *float64 `json:"current_value"`
	AlertData      JSONMap  `json:"alert_data"`
}
