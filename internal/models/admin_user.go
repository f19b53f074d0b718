package models

import (
	"time"

	"github.com/google/uuid"
)

// AdminUser is an operator account of the panel itself.
type AdminUser struct {
	ID                    uuid.UUID  `json:"id"`
	Username              string     `json:"username"`
	Email                 string     `json:"email"`
	PasswordHash          string     `json:"-"`
	IsActive              bool       `json:"is_active"`
	IsSuperuser           bool       `json:"is_superuser"`
	LastLogin             *time.Time `json:"last_login,omitempty"`
	FailedLoginAttempts   int        `json:"failed_login_attempts"`
	AccountLockedUntil    *time.Time `json:"account_locked_until,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	RequirePasswordChange bool       `json:"require_password_change"`
	PasswordChangedAt     *time.Time `json:"password_changed_at,omitempty"`
	TwoFactorEnabled      bool       `json:"two_factor_enabled"`
	TwoFactorSecret       []byte     `json:"-"` // AES-GCM ciphertext
	TwoFactorNonce        []byte     `json:"-"`
}

// IsLocked reports whether a lockout is in force at now.
func (u *AdminUser) IsLocked(now time.Time) bool {
	return u.AccountLockedUntil != nil && now.Before(*u.AccountLockedUntil)
}

// LoginOutcome is what the store returns after recording a failed attempt.
type LoginOutcome struct {
	Attempts    int
	LockedUntil *time.Time
	JustLocked  bool
}

// LockoutPolicy decides when repeated failures lock an account.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// NextFailure computes the counter state after one more failed attempt.
// A lock still in force is left untouched; an expired lock restarts the count.
func (p LockoutPolicy) NextFailure(attempts int, lockedUntil *time.Time, now time.Time) LoginOutcome {
	if lockedUntil != nil && now.Before(*lockedUntil) {
		return LoginOutcome{Attempts: attempts, LockedUntil: lockedUntil}
	}
	if lockedUntil != nil {
		attempts = 0
	}

	attempts++
	if attempts >= p.Threshold {
		until := now.Add(p.Duration)
		return LoginOutcome{Attempts: attempts, LockedUntil: &until, JustLocked: true}
	}
	return LoginOutcome{Attempts: attempts}
}

// AdminSession is one authenticated panel session. SessionID holds the
// SHA-256 of the client token, never the token itself.
type AdminSession struct {
	ID           uuid.UUID         `json:"id"`
	SessionID    string            `json:"-"`
	AdminUserID  uuid.UUID         `json:"admin_user_id"`
	IPAddress    string            `json:"ip_address"`
	UserAgent    string            `json:"user_agent"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
	ExpiresAt    time.Time         `json:"expires_at"`
	IsActive     bool              `json:"is_active"`
	EndedAt      *time.Time        `json:"ended_at,omitempty"`
	EndReason    *SessionEndReason `json:"end_reason,omitempty"`
}

// UsableAt reports whether the session grants access at now.
func (s *AdminSession) UsableAt(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}
