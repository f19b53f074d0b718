package models

import (
	"time"

	"github.com/google/uuid"
)

// SystemUser mirrors a Linux account managed through the panel.
type SystemUser struct {
	ID            uuid.UUID  `json:"id"`
	Username      string     `json:"username"`
	UID           int        `json:"uid"`
	GID           int        `json:"gid"`
	HomeDirectory string     `json:"home_directory"`
	Shell         string     `json:"shell"`
	FullName      string     `json:"full_name"`
	IsSystemUser  bool       `json:"is_system_user"`
	IsLocked      bool       `json:"is_locked"`
	Groups        []string   `json:"groups"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// SystemService is a managed systemd unit and its last observed state.
type SystemService struct {
	ID               uuid.UUID     `json:"id"`
	ServiceName      string        `json:"service_name"`
	DisplayName      string        `json:"display_name"`
	Description      string        `json:"description"`
	Status           ServiceStatus `json:"status"`
	IsEnabled        bool          `json:"is_enabled"`
	IsActive         bool          `json:"is_active"`
	MainPID          *int          `json:"main_pid,omitempty"`
	MemoryUsageBytes *int64        `json:"memory_usage_bytes,omitempty"`
	CPUUsagePercent  *float64      `json:"cpu_usage_percent,omitempty"`
	LastStarted      *time.Time    `json:"last_started,omitempty"`
	LastUpdated      time.Time     `json:"last_updated"`
	RestartCount     int           `json:"restart_count"`
	UnitFilePath     string        `json:"unit_file_path"`
	ServiceConfig    JSONMap       `json:"service_config"`
}

// SystemMetric is one host resource sample.
type SystemMetric struct {
	ID                 uuid.UUID `json:"id"`
	Timestamp          time.Time `json:"timestamp"`
	CPUUsagePercent    float64   `json:"cpu_usage_percent"`
	MemoryUsagePercent float64   `json:"memory_usage_percent"`
	DiskUsagePercent   float64   `json:"disk_usage_percent"`
	MemoryTotalGB      float64   `json:"memory_total_gb"`
	MemoryUsedGB       float64   `json:"memory_used_gb"`
	DiskTotalGB        float64   `json:"disk_total_gb"`
	DiskUsedGB         float64   `json:"disk_used_gb"`
	LoadAverage1m      float64   `json:"load_average_1m"`
	LoadAverage5m      float64   `json:"load_average_5m"`
	LoadAverage15m     float64   `json:"load_average_15m"`
}

// ServerInfo is the single row describing the managed host.
type ServerInfo struct {
	ID             uuid.UUID `json:"id"`
	Hostname       string    `json:"hostname"`
	OSName         string    `json:"os_name"`
	OSVersion      string    `json:"os_version"`
	KernelVersion  string    `json:"kernel_version"`
	Architecture   string    `json:"architecture"`
	BootTime       time.Time `json:"boot_time"`
	UpdatedAt      time.Time `json:"updated_at"`
	AdditionalInfo JSONMap   `json:"additional_info"`
}

// SystemAlert is raised by metric thresholds or external collectors.
type SystemAlert struct {
	ID             uuid.UUID     `json:"id"`
	AlertType      string        `json:"alert_type"`
	Severity       AlertSeverity `json:"severity"`
	Title          string        `json:"title"`
	Message        string        `json:"message"`
	ResourceName   *string       `json:"resource_name,omitempty"`
	ThresholdValue *float64      `json:"threshold_value,omitempty"`
	CurrentValue   *float64      `json:"current_value,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	IsAcknowledged bool          `json:"is_acknowledged"`
	AcknowledgedBy *string       `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	AlertData      JSONMap       `json:"alert_data"`
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	Severity     *AlertSeverity
	AlertType    *string
	Unresolved   bool
	Acknowledged *bool
	Limit        int
	Offset       int
}

// ServiceState is what the OS reports about a unit.
type ServiceState struct {
	Status      ServiceStatus
	IsActive    bool
	IsEnabled   bool
	MainPID     *int
	MemoryBytes *int64
	Description string
}
