package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/hostpanel/internal/auth"
	"github.com/BradenHooton/hostpanel/internal/handlers"
	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/services"
	pkghttp "github.com/BradenHooton/hostpanel/pkg/http"
)

func newAuthHandler(svc handlers.SessionServiceInterface) *handlers.AuthHandler {
	return handlers.NewAuthHandler(svc, pkghttp.NewIPConfig(nil), auth.CookieConfig{Secure: true, SameSite: "strict"}, handlers.DiscardLogger())
}

func cookieByName(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLogin_Success(t *testing.T) {
	admin := handlers.NewTestAdmin("alice", false)
	expires := time.Now().Add(8 * time.Hour)
	var gotClient services.Actor

	mock := &handlers.MockSessionService{
		AuthenticateFunc: func(ctx context.Context, username, password string, client services.Actor, rememberMe bool) (*services.LoginResult, error) {
			gotClient = client
			assert.Equal(t, "alice", username)
			assert.Equal(t, "correct-horse-battery", password)
			assert.True(t, rememberMe)
			return &services.LoginResult{
				Admin:     admin,
				Session:   &models.AdminSession{ID: uuid.New(), ExpiresAt: expires, IsActive: true},
				Token:     "session-token",
				CSRFToken: "csrf-token",
			}, nil
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", models.AdminLoginRequest{
		Username:   "alice",
		Password:   "correct-horse-battery",
		RememberMe: true,
	})
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("User-Agent", "curl/8.5")
	w := httptest.NewRecorder()
	newAuthHandler(mock).Login(w, req)

	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "session-token", resp.SessionToken)
	assert.Equal(t, "csrf-token", resp.CSRFToken)
	assert.False(t, resp.TwoFactorRequired)
	assert.Equal(t, "alice", resp.Admin.Username)

	assert.Equal(t, "203.0.113.7", gotClient.IPAddress)
	assert.Equal(t, "curl/8.5", gotClient.UserAgent)
	assert.Nil(t, gotClient.AdminID)

	session := cookieByName(w, auth.SessionCookieName)
	require.NotNil(t, session)
	assert.Equal(t, "session-token", session.Value)
	assert.True(t, session.HttpOnly)
	assert.True(t, session.Secure)
	assert.Equal(t, http.SameSiteStrictMode, session.SameSite)

	csrf := cookieByName(w, auth.CSRFCookieName)
	require.NotNil(t, csrf)
	assert.Equal(t, "csrf-token", csrf.Value)
	assert.False(t, csrf.HttpOnly)
}

func TestLogin_TwoFactorChallenge(t *testing.T) {
	mock := &handlers.MockSessionService{
		AuthenticateFunc: func(ctx context.Context, username, password string, client services.Actor, rememberMe bool) (*services.LoginResult, error) {
			return &services.LoginResult{
				TwoFactorRequired:  true,
				ChallengeToken:     "challenge",
				ChallengeExpiresAt: time.Now().Add(5 * time.Minute),
			}, nil
		},
	}

	req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", models.AdminLoginRequest{Username: "alice", Password: "pw"})
	w := httptest.NewRecorder()
	newAuthHandler(mock).Login(w, req)

	var resp handlers.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.TwoFactorRequired)
	assert.Equal(t, "challenge", resp.ChallengeToken)
	assert.Empty(t, resp.SessionToken)
	assert.Nil(t, cookieByName(w, auth.SessionCookieName))
}

func TestLogin_FailuresAreUniform(t *testing.T) {
	var bodies []string
	for _, failure := range []error{models.ErrInvalidCredentials, models.ErrAccountLocked} {
		mock := &handlers.MockSessionService{
			AuthenticateFunc: func(ctx context.Context, username, password string, client services.Actor, rememberMe bool) (*services.LoginResult, error) {
				return nil, failure
			},
		}

		req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", models.AdminLoginRequest{Username: "alice", Password: "wrong"})
		w := httptest.NewRecorder()
		newAuthHandler(mock).Login(w, req)

		handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
		assert.Nil(t, cookieByName(w, auth.SessionCookieName))
		bodies = append(bodies, w.Body.String())
	}
	assert.Equal(t, bodies[0], bodies[1])
}

func TestLogin_InvalidInput(t *testing.T) {
	called := false
	mock := &handlers.MockSessionService{
		AuthenticateFunc: func(ctx context.Context, username, password string, client services.Actor, rememberMe bool) (*services.LoginResult, error) {
			called = true
			return nil, nil
		},
	}
	h := newAuthHandler(mock)

	t.Run("missing username", func(t *testing.T) {
		req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/login", models.AdminLoginRequest{Password: "pw"})
		w := httptest.NewRecorder()
		h.Login(w, req)

		resp := handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "validation_failed")
		require.NotEmpty(t, resp.Violations)
		assert.Equal(t, "username", resp.Violations[0].Field)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		w := httptest.NewRecorder()
		h.Login(w, req)

		handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	})

	assert.False(t, called)
}

func TestVerifyTwoFactor(t *testing.T) {
	t.Run("success sets cookies", func(t *testing.T) {
		mock := &handlers.MockSessionService{
			VerifyTwoFactorFunc: func(ctx context.Context, challenge, code string, client services.Actor) (*services.LoginResult, error) {
				assert.Equal(t, "challenge", challenge)
				assert.Equal(t, "123456", code)
				return &services.LoginResult{
					Admin:     handlers.NewTestAdmin("alice", false),
					Session:   &models.AdminSession{ExpiresAt: time.Now().Add(time.Hour)},
					Token:     "session-token",
					CSRFToken: "csrf-token",
				}, nil
			},
		}

		req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/2fa/verify", models.TwoFactorVerifyRequest{ChallengeToken: "challenge", Code: "123456"})
		w := httptest.NewRecorder()
		newAuthHandler(mock).VerifyTwoFactor(w, req)

		handlers.AssertJSONResponse(t, w, http.StatusOK, nil)
		assert.NotNil(t, cookieByName(w, auth.SessionCookieName))
	})

	t.Run("wrong code", func(t *testing.T) {
		mock := &handlers.MockSessionService{
			VerifyTwoFactorFunc: func(ctx context.Context, challenge, code string, client services.Actor) (*services.LoginResult, error) {
				return nil, models.ErrTwoFactorInvalid
			},
		}

		req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/2fa/verify", models.TwoFactorVerifyRequest{ChallengeToken: "challenge", Code: "000000"})
		w := httptest.NewRecorder()
		newAuthHandler(mock).VerifyTwoFactor(w, req)

		handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("code must be six digits", func(t *testing.T) {
		req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/auth/2fa/verify", models.TwoFactorVerifyRequest{ChallengeToken: "challenge", Code: "12ab"})
		w := httptest.NewRecorder()
		newAuthHandler(&handlers.MockSessionService{}).VerifyTwoFactor(w, req)

		handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "validation_failed")
	})
}

func TestLogout(t *testing.T) {
	admin := handlers.NewTestAdmin("alice", false)
	var gotToken string
	var gotActor services.Actor
	mock := &handlers.MockSessionService{
		RevokeFunc: func(ctx context.Context, actor services.Actor, token string) error {
			gotToken = token
			gotActor = actor
			return nil
		},
	}

	req := handlers.WithAdminContext(httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil), admin)
	req.Header.Set("Authorization", "Bearer abc123")
	w := httptest.NewRecorder()
	newAuthHandler(mock).Logout(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "abc123", gotToken)
	require.NotNil(t, gotActor.AdminID)
	assert.Equal(t, admin.ID, *gotActor.AdminID)

	cleared := cookieByName(w, auth.SessionCookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestLogout_StoreUnavailable(t *testing.T) {
	mock := &handlers.MockSessionService{
		RevokeFunc: func(ctx context.Context, actor services.Actor, token string) error {
			return models.ErrStoreUnavailable
		},
	}

	req := handlers.WithAdminContext(httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil), handlers.NewTestAdmin("alice", false))
	w := httptest.NewRecorder()
	newAuthHandler(mock).Logout(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusServiceUnavailable, "service_unavailable")
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

func TestMe(t *testing.T) {
	admin := handlers.NewTestAdmin("alice", true)
	req := handlers.WithAdminContext(httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil), admin)
	w := httptest.NewRecorder()
	newAuthHandler(&handlers.MockSessionService{}).Me(w, req)

	var resp handlers.MeResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, admin.ID, resp.Admin.ID)
	assert.True(t, resp.Admin.IsSuperuser)
	require.NotNil(t, resp.Session)
	assert.Equal(t, admin.ID, resp.Session.AdminUserID)
}

func TestListSessions(t *testing.T) {
	admin := handlers.NewTestAdmin("alice", false)
	mock := &handlers.MockSessionService{
		ListSessionsFunc: func(ctx context.Context, adminID uuid.UUID) ([]*models.AdminSession, error) {
			assert.Equal(t, admin.ID, adminID)
			return []*models.AdminSession{{ID: uuid.New(), AdminUserID: adminID, IsActive: true}}, nil
		},
	}

	t.Run("own sessions", func(t *testing.T) {
		req := handlers.WithAdminContext(httptest.NewRequest(http.MethodGet, "/api/v1/auth/sessions", nil), admin)
		w := httptest.NewRecorder()
		newAuthHandler(mock).ListSessions(w, req)

		var resp struct {
			Sessions []*models.AdminSession `json:"sessions"`
		}
		handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
		assert.Len(t, resp.Sessions, 1)
	})

	t.Run("no admin in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/sessions", nil)
		w := httptest.NewRecorder()
		newAuthHandler(mock).ListSessions(w, req)

		handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
	})
}

func TestRevokeSession(t *testing.T) {
	admin := handlers.NewTestAdmin("alice", false)
	sessionID := uuid.New()

	t.Run("own session", func(t *testing.T) {
		var gotOwner, gotSession uuid.UUID
		mock := &handlers.MockSessionService{
			RevokeByIDFunc: func(ctx context.Context, actor services.Actor, adminID, sid uuid.UUID) error {
				gotOwner, gotSession = adminID, sid
				return nil
			},
		}

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/auth/sessions/"+sessionID.String(), nil)
		req = handlers.WithAdminContext(handlers.WithURLParams(req, "sessionID", sessionID.String()), admin)
		w := httptest.NewRecorder()
		newAuthHandler(mock).RevokeSession(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, admin.ID, gotOwner)
		assert.Equal(t, sessionID, gotSession)
	})

	t.Run("another admin's session is forbidden", func(t *testing.T) {
		other := uuid.New()
		mock := &handlers.MockSessionService{
			RevokeByIDFunc: func(ctx context.Context, actor services.Actor, adminID, sid uuid.UUID) error {
				assert.Equal(t, other, adminID)
				return models.ErrForbidden
			},
		}

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/auth/sessions/"+sessionID.String()+"?admin_id="+other.String(), nil)
		req = handlers.WithAdminContext(handlers.WithURLParams(req, "sessionID", sessionID.String()), admin)
		w := httptest.NewRecorder()
		newAuthHandler(mock).RevokeSession(w, req)

		handlers.AssertErrorResponse(t, w, http.StatusForbidden, "forbidden")
	})

	t.Run("malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/auth/sessions/nope", nil)
		req = handlers.WithAdminContext(handlers.WithURLParams(req, "sessionID", "nope"), admin)
		w := httptest.NewRecorder()
		newAuthHandler(&handlers.MockSessionService{}).RevokeSession(w, req)

		handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	})
}
