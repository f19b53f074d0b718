package validation

import (
	"fmt"
	"path"
	"strings"

	"github.com/BradenHooton/hostpanel/internal/models"
)

const (
	DefaultShell = "/bin/bash"

	// usedTolerance absorbs rounding when collectors report GB values.
	usedTolerance = 0.01
)

var (
	standardActions = map[string]models.ServiceAction{
		"start":   models.ServiceActionStart,
		"stop":    models.ServiceActionStop,
		"restart": models.ServiceActionRestart,
		"enable":  models.ServiceActionEnable,
		"disable": models.ServiceActionDisable,
	}
	managementActions = map[string]models.ServiceAction{
		"start":   models.ServiceActionStart,
		"stop":    models.ServiceActionStop,
		"restart": models.ServiceActionRestart,
		"reload":  models.ServiceActionReload,
	}
)

// OSUsername reports whether name is acceptable as a Linux account name.
func OSUsername(name string) bool {
	return len(name) > 0 && len(name) <= 32 && osUsernamePattern.MatchString(name)
}

// ValidateAdminLogin trims the username and checks field lengths.
func ValidateAdminLogin(req models.AdminLoginRequest) (models.AdminLoginRequest, error) {
	req.Username = strings.TrimSpace(req.Username)
	return req, checkStruct(req).OrNil()
}

// ValidateTwoFactorVerify checks the challenge completion payload.
func ValidateTwoFactorVerify(req models.TwoFactorVerifyRequest) (models.TwoFactorVerifyRequest, error) {
	req.Code = strings.TrimSpace(req.Code)
	return req, checkStruct(req).OrNil()
}

// ValidateAdminUserCreate normalizes the email to lower case.
func ValidateAdminUserCreate(req models.AdminUserCreateRequest) (models.AdminUserCreateRequest, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	return req, checkStruct(req).OrNil()
}

// ValidateSystemUserCreate applies defaults for shell, home directory and create_home.
func ValidateSystemUserCreate(req models.SystemUserCreateRequest) (models.SystemUserCreateRequest, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Shell == "" {
		req.Shell = DefaultShell
	}
	if req.HomeDirectory == "" && req.Username != "" {
		req.HomeDirectory = "/home/" + req.Username
	}
	if req.CreateHome == nil {
		createHome := true
		req.CreateHome = &createHome
	}

	result := checkStruct(req)
	checkAbsolutePath(result, "shell", req.Shell)
	checkAbsolutePath(result, "home_directory", req.HomeDirectory)
	checkFieldText(result, "full_name", req.FullName)
	return req, result.OrNil()
}

// ValidateSystemUserUpdate requires at least one field to change.
func ValidateSystemUserUpdate(req models.SystemUserUpdateRequest) (models.SystemUserUpdateRequest, error) {
	if req.FullName != nil {
		trimmed := strings.TrimSpace(*req.FullName)
		req.FullName = &trimmed
	}

	result := checkStruct(req)
	if req.FullName == nil && req.Shell == nil && req.Groups == nil && req.IsLocked == nil {
		result.Add("body", "at least one field must be provided", nil)
	}
	if req.Shell != nil {
		checkAbsolutePath(result, "shell", *req.Shell)
	}
	if req.FullName != nil {
		checkFieldText(result, "full_name", *req.FullName)
	}
	return req, result.OrNil()
}

// ValidatePasswordReset enforces length on both fields and their equality.
func ValidatePasswordReset(req models.PasswordResetRequest) (models.PasswordResetRequest, error) {
	result := checkStruct(req)
	if req.NewPassword != req.ConfirmPassword {
		result.Add("confirm_password", "passwords do not match", models.ErrPasswordMismatch)
	}
	return req, result.OrNil()
}

// ValidateServiceAction checks the unit name and resolves the action verb
// against the set selected by variant.
func ValidateServiceAction(req models.ServiceActionRequest, variant models.ServiceActionVariant) (string, models.ServiceAction, error) {
	req.ServiceName = strings.TrimSpace(req.ServiceName)
	req.Action = strings.TrimSpace(req.Action)

	result := checkStruct(req)

	allowed := standardActions
	if variant == models.ServiceActionManagement {
		allowed = managementActions
	}

	action, ok := allowed[req.Action]
	if !ok && req.Action != "" {
		result.Add("action", fmt.Sprintf("action must be one of: %s", actionList(variant)), models.ErrUnknownAction)
	}

	return req.ServiceName, action, result.OrNil()
}

// ValidateServiceRegister checks a new managed unit.
func ValidateServiceRegister(req models.ServiceRegisterRequest) (models.ServiceRegisterRequest, error) {
	req.ServiceName = strings.TrimSpace(req.ServiceName)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		req.DisplayName = strings.TrimSuffix(req.ServiceName, ".service")
	}
	return req, checkStruct(req).OrNil()
}

// ValidateSystemMetricCreate checks ranges and that used never exceeds total.
func ValidateSystemMetricCreate(req models.SystemMetricCreateRequest) (models.SystemMetricCreateRequest, error) {
	result := checkStruct(req)
	if req.MemoryUsedGB > req.MemoryTotalGB+usedTolerance {
		result.Add("memory_used_gb", "memory_used_gb must not exceed memory_total_gb", nil)
	}
	if req.DiskUsedGB > req.DiskTotalGB+usedTolerance {
		result.Add("disk_used_gb", "disk_used_gb must not exceed disk_total_gb", nil)
	}
	return req, result.OrNil()
}

// ValidateAlertCreate lower-cases the severity before checking it.
func ValidateAlertCreate(req models.AlertCreateRequest) (models.AlertCreateRequest, error) {
	req.AlertType = strings.TrimSpace(req.AlertType)
	req.Severity = strings.ToLower(strings.TrimSpace(req.Severity))
	req.Title = strings.TrimSpace(req.Title)
	return req, checkStruct(req).OrNil()
}

func checkAbsolutePath(result *models.ValidationError, field, value string) {
	if value == "" {
		return
	}
	if !path.IsAbs(value) || path.Clean(value) != value {
		result.Add(field, field+" must be a clean absolute path", nil)
		return
	}
	checkFieldText(result, field, value)
}

// checkFieldText rejects characters that would corrupt /etc/passwd.
func checkFieldText(result *models.ValidationError, field, value string) {
	if strings.ContainsAny(value, ":\n\r\x00") {
		result.Add(field, field+" contains forbidden characters", nil)
	}
}

func actionList(variant models.ServiceActionVariant) string {
	if variant == models.ServiceActionManagement {
		return "start, stop, restart, reload"
	}
	return "start, stop, restart, enable, disable"
}
