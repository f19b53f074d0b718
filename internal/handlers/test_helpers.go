package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/hostpanel/internal/auth"
	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/services"
	pkghttp "github.com/BradenHooton/hostpanel/pkg/http"
)

// DiscardLogger returns a logger that drops everything
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithURLParams attaches chi route parameters, as the router would
func WithURLParams(req *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// WithAdminContext stores an authenticated admin and session in the request
func WithAdminContext(req *http.Request, admin *models.AdminUser) *http.Request {
	session := &models.AdminSession{
		ID:          uuid.New(),
		AdminUserID: admin.ID,
		IsActive:    true,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithAdmin(req.Context(), admin, session))
}

// NewTestAdmin returns an active admin for handler tests
func NewTestAdmin(username string, superuser bool) *models.AdminUser {
	return &models.AdminUser{
		ID:          uuid.New(),
		Username:    username,
		Email:       username + "@example.com",
		IsActive:    true,
		IsSuperuser: superuser,
	}
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	AuthenticateFunc    func(ctx context.Context, username, password string, client services.Actor, rememberMe bool) (*services.LoginResult, error)
	VerifyTwoFactorFunc func(ctx context.Context, challenge, code string, client services.Actor) (*services.LoginResult, error)
	RevokeFunc          func(ctx context.Context, actor services.Actor, token string) error
	RevokeByIDFunc      func(ctx context.Context, actor services.Actor, adminID, sessionID uuid.UUID) error
	ListSessionsFunc    func(ctx context.Context, adminID uuid.UUID) ([]*models.AdminSession, error)
}

func (m *MockSessionService) Authenticate(ctx context.Context, username, password string, client services.Actor, rememberMe bool) (*services.LoginResult, error) {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, username, password, client, rememberMe)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockSessionService) VerifyTwoFactor(ctx context.Context, challenge, code string, client services.Actor) (*services.LoginResult, error) {
	if m.VerifyTwoFactorFunc != nil {
		return m.VerifyTwoFactorFunc(ctx, challenge, code, client)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockSessionService) Revoke(ctx context.Context, actor services.Actor, token string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, actor, token)
	}
	return nil
}

func (m *MockSessionService) RevokeByID(ctx context.Context, actor services.Actor, adminID, sessionID uuid.UUID) error {
	if m.RevokeByIDFunc != nil {
		return m.RevokeByIDFunc(ctx, actor, adminID, sessionID)
	}
	return nil
}

func (m *MockSessionService) ListSessions(ctx context.Context, adminID uuid.UUID) ([]*models.AdminSession, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx, adminID)
	}
	return []*models.AdminSession{}, nil
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	CreateAdminFunc        func(ctx context.Context, actor services.Actor, req models.AdminUserCreateRequest) (*models.AdminUser, error)
	ListAdminsFunc         func(ctx context.Context, limit, offset int) ([]*models.AdminUser, int, error)
	GetAdminFunc           func(ctx context.Context, id uuid.UUID) (*models.AdminUser, error)
	DisableAdminFunc       func(ctx context.Context, actor services.Actor, id uuid.UUID) error
	UnlockAdminFunc        func(ctx context.Context, actor services.Actor, id uuid.UUID) error
	ResetAdminPasswordFunc func(ctx context.Context, actor services.Actor, id uuid.UUID, req models.PasswordResetRequest) error
	SetupTwoFactorFunc     func(ctx context.Context, actor services.Actor) (*auth.Enrollment, error)
	EnableTwoFactorFunc    func(ctx context.Context, actor services.Actor, code string) error
	DisableTwoFactorFunc   func(ctx context.Context, actor services.Actor, id uuid.UUID, code string) error
}

func (m *MockAdminService) CreateAdmin(ctx context.Context, actor services.Actor, req models.AdminUserCreateRequest) (*models.AdminUser, error) {
	if m.CreateAdminFunc != nil {
		return m.CreateAdminFunc(ctx, actor, req)
	}
	return &models.AdminUser{ID: uuid.New(), Username: req.Username, Email: req.Email, IsActive: true}, nil
}

func (m *MockAdminService) ListAdmins(ctx context.Context, limit, offset int) ([]*models.AdminUser, int, error) {
	if m.ListAdminsFunc != nil {
		return m.ListAdminsFunc(ctx, limit, offset)
	}
	return []*models.AdminUser{}, 0, nil
}

func (m *MockAdminService) GetAdmin(ctx context.Context, id uuid.UUID) (*models.AdminUser, error) {
	if m.GetAdminFunc != nil {
		return m.GetAdminFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAdminService) DisableAdmin(ctx context.Context, actor services.Actor, id uuid.UUID) error {
	if m.DisableAdminFunc != nil {
		return m.DisableAdminFunc(ctx, actor, id)
	}
	return nil
}

func (m *MockAdminService) UnlockAdmin(ctx context.Context, actor services.Actor, id uuid.UUID) error {
	if m.UnlockAdminFunc != nil {
		return m.UnlockAdminFunc(ctx, actor, id)
	}
	return nil
}

func (m *MockAdminService) ResetAdminPassword(ctx context.Context, actor services.Actor, id uuid.UUID, req models.PasswordResetRequest) error {
	if m.ResetAdminPasswordFunc != nil {
		return m.ResetAdminPasswordFunc(ctx, actor, id, req)
	}
	return nil
}

func (m *MockAdminService) SetupTwoFactor(ctx context.Context, actor services.Actor) (*auth.Enrollment, error) {
	if m.SetupTwoFactorFunc != nil {
		return m.SetupTwoFactorFunc(ctx, actor)
	}
	return &auth.Enrollment{Secret: "JBSWY3DPEHPK3PXP"}, nil
}

func (m *MockAdminService) EnableTwoFactor(ctx context.Context, actor services.Actor, code string) error {
	if m.EnableTwoFactorFunc != nil {
		return m.EnableTwoFactorFunc(ctx, actor, code)
	}
	return nil
}

func (m *MockAdminService) DisableTwoFactor(ctx context.Context, actor services.Actor, id uuid.UUID, code string) error {
	if m.DisableTwoFactorFunc != nil {
		return m.DisableTwoFactorFunc(ctx, actor, id, code)
	}
	return nil
}

// MockSystemUserService implements SystemUserServiceInterface for testing
type MockSystemUserService struct {
	CreateFunc        func(ctx context.Context, actor services.Actor, req models.SystemUserCreateRequest) (*models.SystemUser, error)
	GetFunc           func(ctx context.Context, id uuid.UUID) (*models.SystemUser, error)
	ListFunc          func(ctx context.Context, limit, offset int) ([]*models.SystemUser, int, error)
	UpdateFunc        func(ctx context.Context, actor services.Actor, id uuid.UUID, req models.SystemUserUpdateRequest) (*models.SystemUser, error)
	DeleteFunc        func(ctx context.Context, actor services.Actor, id uuid.UUID, removeHome bool) error
	ResetPasswordFunc func(ctx context.Context, actor services.Actor, id uuid.UUID, req models.PasswordResetRequest) error
	LockFunc          func(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.SystemUser, error)
	UnlockFunc        func(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.SystemUser, error)
}

func (m *MockSystemUserService) Create(ctx context.Context, actor services.Actor, req models.SystemUserCreateRequest) (*models.SystemUser, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, actor, req)
	}
	return &models.SystemUser{ID: uuid.New(), Username: req.Username}, nil
}

func (m *MockSystemUserService) Get(ctx context.Context, id uuid.UUID) (*models.SystemUser, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockSystemUserService) List(ctx context.Context, limit, offset int) ([]*models.SystemUser, int, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.SystemUser{}, 0, nil
}

func (m *MockSystemUserService) Update(ctx context.Context, actor services.Actor, id uuid.UUID, req models.SystemUserUpdateRequest) (*models.SystemUser, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, actor, id, req)
	}
	return &models.SystemUser{ID: id}, nil
}

func (m *MockSystemUserService) Delete(ctx context.Context, actor services.Actor, id uuid.UUID, removeHome bool) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, actor, id, removeHome)
	}
	return nil
}

func (m *MockSystemUserService) ResetPassword(ctx context.Context, actor services.Actor, id uuid.UUID, req models.PasswordResetRequest) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, actor, id, req)
	}
	return nil
}

func (m *MockSystemUserService) Lock(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.SystemUser, error) {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, actor, id)
	}
	return &models.SystemUser{ID: id, IsLocked: true}, nil
}

func (m *MockSystemUserService) Unlock(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.SystemUser, error) {
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, actor, id)
	}
	return &models.SystemUser{ID: id}, nil
}

// MockServiceControl implements ServiceControlInterface for testing
type MockServiceControl struct {
	RegisterFunc      func(ctx context.Context, actor services.Actor, req models.ServiceRegisterRequest) (*models.SystemService, error)
	PerformActionFunc func(ctx context.Context, actor services.Actor, req models.ServiceActionRequest, variant models.ServiceActionVariant) (*models.SystemService, error)
	RefreshStatusFunc func(ctx context.Context, name string) (*models.SystemService, error)
	GetFunc           func(ctx context.Context, name string) (*models.SystemService, error)
	ListFunc          func(ctx context.Context, limit, offset int) ([]*models.SystemService, error)
}

func (m *MockServiceControl) Register(ctx context.Context, actor services.Actor, req models.ServiceRegisterRequest) (*models.SystemService, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, actor, req)
	}
	return &models.SystemService{ID: uuid.New(), ServiceName: req.ServiceName}, nil
}

func (m *MockServiceControl) PerformAction(ctx context.Context, actor services.Actor, req models.ServiceActionRequest, variant models.ServiceActionVariant) (*models.SystemService, error) {
	if m.PerformActionFunc != nil {
		return m.PerformActionFunc(ctx, actor, req, variant)
	}
	return &models.SystemService{ServiceName: req.ServiceName, Status: models.ServiceStatusActive}, nil
}

func (m *MockServiceControl) RefreshStatus(ctx context.Context, name string) (*models.SystemService, error) {
	if m.RefreshStatusFunc != nil {
		return m.RefreshStatusFunc(ctx, name)
	}
	return &models.SystemService{ServiceName: name}, nil
}

func (m *MockServiceControl) Get(ctx context.Context, name string) (*models.SystemService, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, name)
	}
	return nil, models.ErrNotFound
}

func (m *MockServiceControl) List(ctx context.Context, limit, offset int) ([]*models.SystemService, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.SystemService{}, nil
}

// MockMetricsService implements MetricsServiceInterface for testing
type MockMetricsService struct {
	IngestFunc     func(ctx context.Context, req models.SystemMetricCreateRequest) (*models.SystemMetric, error)
	LatestFunc     func(ctx context.Context) (*models.SystemMetric, error)
	HistoryFunc    func(ctx context.Context, window time.Duration) ([]*models.SystemMetric, error)
	ServerInfoFunc func(ctx context.Context) (*models.ServerInfo, error)
}

func (m *MockMetricsService) Ingest(ctx context.Context, req models.SystemMetricCreateRequest) (*models.SystemMetric, error) {
	if m.IngestFunc != nil {
		return m.IngestFunc(ctx, req)
	}
	return &models.SystemMetric{ID: uuid.New(), CPUUsagePercent: req.CPUUsagePercent}, nil
}

func (m *MockMetricsService) Latest(ctx context.Context) (*models.SystemMetric, error) {
	if m.LatestFunc != nil {
		return m.LatestFunc(ctx)
	}
	return nil, models.ErrNotFound
}

func (m *MockMetricsService) History(ctx context.Context, window time.Duration) ([]*models.SystemMetric, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, window)
	}
	return []*models.SystemMetric{}, nil
}

func (m *MockMetricsService) ServerInfo(ctx context.Context) (*models.ServerInfo, error) {
	if m.ServerInfoFunc != nil {
		return m.ServerInfoFunc(ctx)
	}
	return nil, models.ErrNotFound
}

// MockAlertService implements AlertServiceInterface for testing
type MockAlertService struct {
	CreateAlertFunc func(ctx context.Context, req models.AlertCreateRequest) (*models.SystemAlert, error)
	GetFunc         func(ctx context.Context, id uuid.UUID) (*models.SystemAlert, error)
	ListFunc        func(ctx context.Context, f models.AlertFilter) ([]*models.SystemAlert, error)
	AcknowledgeFunc func(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.SystemAlert, error)
	ResolveFunc     func(ctx context.Context, id uuid.UUID) (*models.SystemAlert, error)
}

func (m *MockAlertService) CreateAlert(ctx context.Context, req models.AlertCreateRequest) (*models.SystemAlert, error) {
	if m.CreateAlertFunc != nil {
		return m.CreateAlertFunc(ctx, req)
	}
	return &models.SystemAlert{ID: uuid.New(), AlertType: req.AlertType}, nil
}

func (m *MockAlertService) Get(ctx context.Context, id uuid.UUID) (*models.SystemAlert, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAlertService) List(ctx context.Context, f models.AlertFilter) ([]*models.SystemAlert, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, f)
	}
	return []*models.SystemAlert{}, nil
}

func (m *MockAlertService) Acknowledge(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.SystemAlert, error) {
	if m.AcknowledgeFunc != nil {
		return m.AcknowledgeFunc(ctx, actor, id)
	}
	return &models.SystemAlert{ID: id, IsAcknowledged: true}, nil
}

func (m *MockAlertService) Resolve(ctx context.Context, id uuid.UUID) (*models.SystemAlert, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, id)
	}
	return &models.SystemAlert{ID: id}, nil
}

// MockDashboardService implements DashboardServiceInterface for testing
type MockDashboardService struct {
	DashboardFunc func(ctx context.Context) (*services.DashboardResponse, error)
}

func (m *MockDashboardService) Dashboard(ctx context.Context) (*services.DashboardResponse, error) {
	if m.DashboardFunc != nil {
		return m.DashboardFunc(ctx)
	}
	return &services.DashboardResponse{}, nil
}

// MockAuditService implements AuditServiceInterface for testing
type MockAuditService struct {
	ListFunc          func(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int, error)
	ForAdminFunc      func(ctx context.Context, adminID uuid.UUID, limit, offset int) ([]*models.AuditLog, int, error)
	ForSystemUserFunc func(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, int, error)
}

func (m *MockAuditService) List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, f)
	}
	return []*models.AuditLog{}, 0, nil
}

func (m *MockAuditService) ForAdmin(ctx context.Context, adminID uuid.UUID, limit, offset int) ([]*models.AuditLog, int, error) {
	if m.ForAdminFunc != nil {
		return m.ForAdminFunc(ctx, adminID, limit, offset)
	}
	return []*models.AuditLog{}, 0, nil
}

func (m *MockAuditService) ForSystemUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, int, error) {
	if m.ForSystemUserFunc != nil {
		return m.ForSystemUserFunc(ctx, userID, limit, offset)
	}
	return []*models.AuditLog{}, 0, nil
}
