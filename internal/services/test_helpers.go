package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/osctl"
	pkglogger "github.com/BradenHooton/hostpanel/pkg/logger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// MockAuditLogRepository records every created row unless CreateFunc is set.
type MockAuditLogRepository struct {
	CreateFunc func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	ListFunc   func(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, error)
	CountFunc  func(ctx context.Context, f models.AuditFilter) (int, error)

	mu   sync.Mutex
	Logs []*models.AuditLog
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, log)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, log)
	return log, nil
}

func (m *MockAuditLogRepository) List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, f)
	}
	return []*models.AuditLog{}, nil
}

func (m *MockAuditLogRepository) Count(ctx context.Context, f models.AuditFilter) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, f)
	}
	return 0, nil
}

// Recorded returns a snapshot of the stored rows.
func (m *MockAuditLogRepository) Recorded() []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditLog(nil), m.Logs...)
}

// newTestRunner wires an AuditService and PrivilegedRunner over repo.
func newTestRunner(repo AuditLogRepository) (*PrivilegedRunner, *AuditService) {
	logger := discardLogger()
	audit := NewAuditService(repo, pkglogger.NewAuditLogger(logger), nil, logger)
	return NewPrivilegedRunner(audit, nil, logger), audit
}

// memAdminUsers is an in-memory AdminUserRepository. RecordFailedLogin is
// serialized by a mutex the way the real store serializes by row lock.
type memAdminUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.AdminUser

	GetErr error
	// AfterRead runs after GetByUsername has taken its snapshot, to
	// interleave writes between a login's read and its update.
	AfterRead func(id uuid.UUID)
}

func newMemAdminUsers(users ...*models.AdminUser) *memAdminUsers {
	m := &memAdminUsers{users: make(map[uuid.UUID]*models.AdminUser)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memAdminUsers) snapshot(id uuid.UUID) *models.AdminUser {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (m *memAdminUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.AdminUser, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if u := m.snapshot(id); u != nil {
		return u, nil
	}
	return nil, models.ErrNotFound
}

func (m *memAdminUsers) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	var found *models.AdminUser
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			found = &cp
			break
		}
	}
	m.mu.Unlock()

	if found == nil {
		return nil, models.ErrNotFound
	}
	if m.AfterRead != nil {
		m.AfterRead(found.ID)
	}
	return found, nil
}

func (m *memAdminUsers) List(ctx context.Context, limit, offset int) ([]*models.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AdminUser, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memAdminUsers) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *memAdminUsers) Create(ctx context.Context, u *models.AdminUser) (*models.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return nil, models.ErrConflict
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	m.users[u.ID] = &cp
	return u, nil
}

func (m *memAdminUsers) RecordFailedLogin(ctx context.Context, id uuid.UUID, policy models.LockoutPolicy, now time.Time) (*models.LoginOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	outcome := policy.NextFailure(u.FailedLoginAttempts, u.AccountLockedUntil, now)
	u.FailedLoginAttempts = outcome.Attempts
	u.AccountLockedUntil = outcome.LockedUntil
	return &outcome, nil
}

func (m *memAdminUsers) RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrNotFound
	}
	if u.IsLocked(now) {
		return models.ErrAccountLocked
	}
	u.FailedLoginAttempts = 0
	u.AccountLockedUntil = nil
	u.LastLogin = &now
	return nil
}

func (m *memAdminUsers) Unlock(ctx context.Context, id uuid.UUID) error {
	return m.mutate(id, func(u *models.AdminUser) {
		u.FailedLoginAttempts = 0
		u.AccountLockedUntil = nil
	})
}

func (m *memAdminUsers) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return m.mutate(id, func(u *models.AdminUser) { u.IsActive = active })
}

func (m *memAdminUsers) DisableUnlessLastSuperuser(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.users[id]
	if !ok {
		return false, models.ErrNotFound
	}
	if target.IsSuperuser && target.IsActive {
		others := 0
		for _, u := range m.users {
			if u.ID != id && u.IsSuperuser && u.IsActive {
				others++
			}
		}
		if others == 0 {
			return false, nil
		}
	}
	target.IsActive = false
	return true, nil
}

func (m *memAdminUsers) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, requireChange bool) error {
	return m.mutate(id, func(u *models.AdminUser) {
		u.PasswordHash = hash
		u.RequirePasswordChange = requireChange
	})
}

func (m *memAdminUsers) SetTwoFactor(ctx context.Context, id uuid.UUID, enabled bool, secret, nonce []byte) error {
	return m.mutate(id, func(u *models.AdminUser) {
		u.TwoFactorEnabled = enabled
		u.TwoFactorSecret = secret
		u.TwoFactorNonce = nonce
	})
}

func (m *memAdminUsers) mutate(id uuid.UUID, fn func(u *models.AdminUser)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrNotFound
	}
	fn(u)
	return nil
}

// memSessions is an in-memory SessionRepository keyed by session hash.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*models.AdminSession
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*models.AdminSession)}
}

func (m *memSessions) Create(ctx context.Context, s *models.AdminSession) (*models.AdminSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	m.sessions[s.SessionID] = &cp
	return s, nil
}

func (m *memSessions) GetBySessionID(ctx context.Context, hash string) (*models.AdminSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[hash]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) Touch(ctx context.Context, hash string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[hash]
	if !ok || !s.UsableAt(now) {
		return false, nil
	}
	s.LastActivity = now
	return true, nil
}

func (m *memSessions) end(s *models.AdminSession, reason models.SessionEndReason, now time.Time) bool {
	if !s.IsActive {
		return false
	}
	s.IsActive = false
	s.EndedAt = &now
	s.EndReason = &reason
	return true
}

func (m *memSessions) Deactivate(ctx context.Context, hash string, reason models.SessionEndReason, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[hash]
	if !ok {
		return false, nil
	}
	return m.end(s, reason, now), nil
}

func (m *memSessions) DeactivateByID(ctx context.Context, adminID, id uuid.UUID, reason models.SessionEndReason, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id && s.AdminUserID == adminID {
			return m.end(s, reason, now), nil
		}
	}
	return false, nil
}

func (m *memSessions) DeactivateAllForAdmin(ctx context.Context, adminID uuid.UUID, reason models.SessionEndReason, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.AdminUserID == adminID && m.end(s, reason, now) {
			n++
		}
	}
	return n, nil
}

func (m *memSessions) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.IsActive && !now.Before(s.ExpiresAt) && m.end(s, models.SessionEndExpired, now) {
			n++
		}
	}
	return n, nil
}

func (m *memSessions) ListActiveForAdmin(ctx context.Context, adminID uuid.UUID, now time.Time) ([]*models.AdminSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AdminSession
	for _, s := range m.sessions {
		if s.AdminUserID == adminID && s.UsableAt(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MockSystemUserRepository implements SystemUserRepository for testing
type MockSystemUserRepository struct {
	CreateFunc        func(ctx context.Context, u *models.SystemUser) (*models.SystemUser, error)
	GetByIDFunc       func(ctx context.Context, id uuid.UUID) (*models.SystemUser, error)
	GetByUsernameFunc func(ctx context.Context, username string) (*models.SystemUser, error)
	ListFunc          func(ctx context.Context, limit, offset int) ([]*models.SystemUser, error)
	CountFunc         func(ctx context.Context) (int, error)
	UpdateFunc        func(ctx context.Context, u *models.SystemUser) (*models.SystemUser, error)
	SoftDeleteFunc    func(ctx context.Context, id uuid.UUID, now time.Time) error
}

func (m *MockSystemUserRepository) Create(ctx context.Context, u *models.SystemUser) (*models.SystemUser, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, u)
	}
	u.ID = uuid.New()
	return u, nil
}

func (m *MockSystemUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SystemUser, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockSystemUserRepository) GetByUsername(ctx context.Context, username string) (*models.SystemUser, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockSystemUserRepository) List(ctx context.Context, limit, offset int) ([]*models.SystemUser, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.SystemUser{}, nil
}

func (m *MockSystemUserRepository) Count(ctx context.Context) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, nil
}

func (m *MockSystemUserRepository) Update(ctx context.Context, u *models.SystemUser) (*models.SystemUser, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, u)
	}
	return u, nil
}

func (m *MockSystemUserRepository) SoftDelete(ctx context.Context, id uuid.UUID, now time.Time) error {
	if m.SoftDeleteFunc != nil {
		return m.SoftDeleteFunc(ctx, id, now)
	}
	return nil
}

// MockSystemServiceRepository implements SystemServiceRepository for testing
type MockSystemServiceRepository struct {
	CreateFunc        func(ctx context.Context, s *models.SystemService) (*models.SystemService, error)
	GetByNameFunc     func(ctx context.Context, name string) (*models.SystemService, error)
	ListFunc          func(ctx context.Context, limit, offset int) ([]*models.SystemService, error)
	UpdateStateFunc   func(ctx context.Context, name string, st models.ServiceState, restarted bool, now time.Time) (*models.SystemService, error)
	CountByStatusFunc func(ctx context.Context) (map[models.ServiceStatus]int, error)
}

func (m *MockSystemServiceRepository) Create(ctx context.Context, s *models.SystemService) (*models.SystemService, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, s)
	}
	s.ID = uuid.New()
	return s, nil
}

func (m *MockSystemServiceRepository) GetByName(ctx context.Context, name string) (*models.SystemService, error) {
	if m.GetByNameFunc != nil {
		return m.GetByNameFunc(ctx, name)
	}
	return nil, models.ErrNotFound
}

func (m *MockSystemServiceRepository) List(ctx context.Context, limit, offset int) ([]*models.SystemService, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.SystemService{}, nil
}

func (m *MockSystemServiceRepository) UpdateState(ctx context.Context, name string, st models.ServiceState, restarted bool, now time.Time) (*models.SystemService, error) {
	if m.UpdateStateFunc != nil {
		return m.UpdateStateFunc(ctx, name, st, restarted, now)
	}
	return &models.SystemService{ServiceName: name, Status: st.Status, IsActive: st.IsActive, IsEnabled: st.IsEnabled, MainPID: st.MainPID}, nil
}

func (m *MockSystemServiceRepository) CountByStatus(ctx context.Context) (map[models.ServiceStatus]int, error) {
	if m.CountByStatusFunc != nil {
		return m.CountByStatusFunc(ctx)
	}
	return map[models.ServiceStatus]int{}, nil
}

// MockMetricRepository implements MetricRepository for testing
type MockMetricRepository struct {
	CreateFunc          func(ctx context.Context, m *models.SystemMetric) (*models.SystemMetric, error)
	LatestFunc          func(ctx context.Context) (*models.SystemMetric, error)
	HistoryFunc         func(ctx context.Context, since time.Time, limit int) ([]*models.SystemMetric, error)
	DeleteOlderThanFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockMetricRepository) Create(ctx context.Context, metric *models.SystemMetric) (*models.SystemMetric, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, metric)
	}
	metric.ID = uuid.New()
	return metric, nil
}

func (m *MockMetricRepository) Latest(ctx context.Context) (*models.SystemMetric, error) {
	if m.LatestFunc != nil {
		return m.LatestFunc(ctx)
	}
	return nil, models.ErrNotFound
}

func (m *MockMetricRepository) History(ctx context.Context, since time.Time, limit int) ([]*models.SystemMetric, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, since, limit)
	}
	return []*models.SystemMetric{}, nil
}

func (m *MockMetricRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

// memAlerts is an in-memory AlertRepository.
type memAlerts struct {
	mu     sync.Mutex
	alerts []*models.SystemAlert
}

func (m *memAlerts) Create(ctx context.Context, a *models.SystemAlert) (*models.SystemAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	cp := *a
	m.alerts = append(m.alerts, &cp)
	return a, nil
}

func (m *memAlerts) find(id uuid.UUID) *models.SystemAlert {
	for _, a := range m.alerts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (m *memAlerts) GetByID(ctx context.Context, id uuid.UUID) (*models.SystemAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.find(id); a != nil {
		cp := *a
		return &cp, nil
	}
	return nil, models.ErrNotFound
}

func (m *memAlerts) FindOpenByType(ctx context.Context, alertType string) (*models.SystemAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.AlertType == alertType && a.ResolvedAt == nil {
			cp := *a
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memAlerts) List(ctx context.Context, f models.AlertFilter) ([]*models.SystemAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SystemAlert
	for _, a := range m.alerts {
		if f.Unresolved && a.ResolvedAt != nil {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memAlerts) CountOpenBySeverity(ctx context.Context) (map[models.AlertSeverity]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[models.AlertSeverity]int{}
	for _, a := range m.alerts {
		if a.ResolvedAt == nil {
			counts[a.Severity]++
		}
	}
	return counts, nil
}

func (m *memAlerts) Acknowledge(ctx context.Context, id uuid.UUID, username string, now time.Time) (*models.SystemAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.find(id)
	if a == nil {
		return nil, models.ErrNotFound
	}
	a.IsAcknowledged = true
	if a.AcknowledgedBy == nil {
		a.AcknowledgedBy = &username
		a.AcknowledgedAt = &now
	}
	cp := *a
	return &cp, nil
}

func (m *memAlerts) Resolve(ctx context.Context, id uuid.UUID, now time.Time) (*models.SystemAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.find(id)
	if a == nil {
		return nil, models.ErrNotFound
	}
	if a.ResolvedAt == nil {
		a.ResolvedAt = &now
	}
	cp := *a
	return &cp, nil
}

// MockServerInfoRepository implements ServerInfoRepository for testing
type MockServerInfoRepository struct {
	GetFunc    func(ctx context.Context) (*models.ServerInfo, error)
	UpsertFunc func(ctx context.Context, s *models.ServerInfo) (*models.ServerInfo, error)
}

func (m *MockServerInfoRepository) Get(ctx context.Context) (*models.ServerInfo, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx)
	}
	return nil, models.ErrNotFound
}

func (m *MockServerInfoRepository) Upsert(ctx context.Context, s *models.ServerInfo) (*models.ServerInfo, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, s)
	}
	return s, nil
}

// MockController implements osctl.Controller and records command names.
type MockController struct {
	ServiceActionFunc func(ctx context.Context, name string, action models.ServiceAction) (*osctl.Result, error)
	ServiceStatusFunc func(ctx context.Context, name string) (*models.ServiceState, error)
	CreateUserFunc    func(ctx context.Context, spec osctl.UserSpec) (*osctl.Result, error)
	ModifyUserFunc    func(ctx context.Context, username string, change osctl.UserChange) (*osctl.Result, error)
	DeleteUserFunc    func(ctx context.Context, username string, removeHome bool) (*osctl.Result, error)
	SetPasswordFunc   func(ctx context.Context, username, password string) (*osctl.Result, error)
	LockUserFunc      func(ctx context.Context, username string) (*osctl.Result, error)
	UnlockUserFunc    func(ctx context.Context, username string) (*osctl.Result, error)
	LookupUserFunc    func(ctx context.Context, username string) (*osctl.Account, error)

	mu    sync.Mutex
	Calls []string
}

func (m *MockController) called(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, name)
}

func (m *MockController) ServiceAction(ctx context.Context, name string, action models.ServiceAction) (*osctl.Result, error) {
	m.called("ServiceAction")
	if m.ServiceActionFunc != nil {
		return m.ServiceActionFunc(ctx, name, action)
	}
	return &osctl.Result{Command: "systemctl " + string(action) + " " + name}, nil
}

func (m *MockController) ServiceStatus(ctx context.Context, name string) (*models.ServiceState, error) {
	m.called("ServiceStatus")
	if m.ServiceStatusFunc != nil {
		return m.ServiceStatusFunc(ctx, name)
	}
	return &models.ServiceState{Status: models.ServiceStatusActive, IsActive: true, IsEnabled: true}, nil
}

func (m *MockController) CreateUser(ctx context.Context, spec osctl.UserSpec) (*osctl.Result, error) {
	m.called("CreateUser")
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(ctx, spec)
	}
	return &osctl.Result{Command: "useradd " + spec.Username}, nil
}

func (m *MockController) ModifyUser(ctx context.Context, username string, change osctl.UserChange) (*osctl.Result, error) {
	m.called("ModifyUser")
	if m.ModifyUserFunc != nil {
		return m.ModifyUserFunc(ctx, username, change)
	}
	return &osctl.Result{Command: "usermod " + username}, nil
}

func (m *MockController) DeleteUser(ctx context.Context, username string, removeHome bool) (*osctl.Result, error) {
	m.called("DeleteUser")
	if m.DeleteUserFunc != nil {
		return m.DeleteUserFunc(ctx, username, removeHome)
	}
	return &osctl.Result{Command: "userdel " + username}, nil
}

func (m *MockController) SetPassword(ctx context.Context, username, password string) (*osctl.Result, error) {
	m.called("SetPassword")
	if m.SetPasswordFunc != nil {
		return m.SetPasswordFunc(ctx, username, password)
	}
	return &osctl.Result{Command: "chpasswd (" + username + ")"}, nil
}

func (m *MockController) LockUser(ctx context.Context, username string) (*osctl.Result, error) {
	m.called("LockUser")
	if m.LockUserFunc != nil {
		return m.LockUserFunc(ctx, username)
	}
	return &osctl.Result{Command: "usermod -L " + username}, nil
}

func (m *MockController) UnlockUser(ctx context.Context, username string) (*osctl.Result, error) {
	m.called("UnlockUser")
	if m.UnlockUserFunc != nil {
		return m.UnlockUserFunc(ctx, username)
	}
	return &osctl.Result{Command: "usermod -U " + username}, nil
}

func (m *MockController) LookupUser(ctx context.Context, username string) (*osctl.Account, error) {
	m.called("LookupUser")
	if m.LookupUserFunc != nil {
		return m.LookupUserFunc(ctx, username)
	}
	return &osctl.Account{Username: username, UID: 1001, GID: 1001}, nil
}

// MockNotifier implements notify.Notifier for testing
type MockNotifier struct {
	AccountLockedFunc func(ctx context.Context, admin *models.AdminUser, until time.Time) error
	CriticalAlertFunc func(ctx context.Context, alert *models.SystemAlert) error

	mu       sync.Mutex
	Locked   []string
	Critical []string
}

func (m *MockNotifier) AccountLocked(ctx context.Context, admin *models.AdminUser, until time.Time) error {
	m.mu.Lock()
	m.Locked = append(m.Locked, admin.Username)
	m.mu.Unlock()
	if m.AccountLockedFunc != nil {
		return m.AccountLockedFunc(ctx, admin, until)
	}
	return nil
}

func (m *MockNotifier) CriticalAlert(ctx context.Context, alert *models.SystemAlert) error {
	m.mu.Lock()
	m.Critical = append(m.Critical, alert.AlertType)
	m.mu.Unlock()
	if m.CriticalAlertFunc != nil {
		return m.CriticalAlertFunc(ctx, alert)
	}
	return nil
}

// NewTestAdmin builds an active admin with the given bcrypt hash.
func NewTestAdmin(username, passwordHash string, superuser bool) *models.AdminUser {
	now := time.Now()
	return &models.AdminUser{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: passwordHash,
		IsActive:     true,
		IsSuperuser:  superuser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
