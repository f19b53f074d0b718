package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const challengePurpose = "2fa_challenge"

// ChallengeClaims identify an admin who passed the password step and still
// owes a TOTP code.
type ChallengeClaims struct {
	Purpose    string `json:"purpose"`
	RememberMe bool   `json:"remember_me,omitempty"`
	jwt.RegisteredClaims
}

// ChallengeManager signs and checks short-lived 2FA challenge tokens.
type ChallengeManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewChallengeManager(secret string, ttl time.Duration) *ChallengeManager {
	return &ChallengeManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed challenge for adminID and its expiry.
func (cm *ChallengeManager) Issue(adminID uuid.UUID, rememberMe bool) (string, time.Time, error) {
	now := cm.now()
	expiresAt := now.Add(cm.ttl)

	claims := &ChallengeClaims{
		Purpose:    challengePurpose,
		RememberMe: rememberMe,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   adminID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign challenge: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify returns the claims of a valid, unexpired challenge. Every failure
// maps to ErrTwoFactorState.
func (cm *ChallengeManager) Verify(token string) (*ChallengeClaims, uuid.UUID, error) {
	claims := &ChallengeClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return cm.secret, nil
	}, jwt.WithTimeFunc(cm.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || claims.Purpose != challengePurpose {
		return nil, uuid.Nil, models.ErrTwoFactorState
	}

	adminID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, uuid.Nil, models.ErrTwoFactorState
	}
	return claims, adminID, nil
}
