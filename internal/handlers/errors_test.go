package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/hostpanel/internal/models"
	pkghttp "github.com/BradenHooton/hostpanel/pkg/http"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid credentials", models.ErrInvalidCredentials, http.StatusUnauthorized, "unauthorized"},
		{"account locked", models.ErrAccountLocked, http.StatusUnauthorized, "unauthorized"},
		{"bad totp", models.ErrTwoFactorInvalid, http.StatusUnauthorized, "unauthorized"},
		{"session expired", fmt.Errorf("validate: %w", models.ErrSessionExpired), http.StatusUnauthorized, "unauthorized"},
		{"forbidden", models.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"not found", fmt.Errorf("failed to load user: %w", models.ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", models.ErrConflict, http.StatusConflict, "conflict"},
		{"two-factor state", models.ErrTwoFactorState, http.StatusConflict, "conflict"},
		{"bad request", fmt.Errorf("%w: unit is not known to the host", models.ErrBadRequest), http.StatusBadRequest, "bad_request"},
		{"os failure", fmt.Errorf("%w: useradd: exit status 9", models.ErrOSCommandFailed), http.StatusBadGateway, "os_command_failed"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeServiceError(w, DiscardLogger(), tt.err)

			resp := AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
			if tt.wantStatus == http.StatusInternalServerError {
				assert.NotContains(t, resp.Message, "boom")
			}
		})
	}
}

func TestWriteServiceError_AuthFailuresAreIdentical(t *testing.T) {
	bodies := map[string]bool{}
	for _, err := range []error{models.ErrInvalidCredentials, models.ErrAccountLocked, models.ErrSessionRevoked} {
		w := httptest.NewRecorder()
		writeServiceError(w, DiscardLogger(), err)
		bodies[w.Body.String()] = true
	}
	assert.Len(t, bodies, 1)
}

func TestWriteServiceError_Validation(t *testing.T) {
	verr := &models.ValidationError{}
	verr.Add("username", "username is a required field", nil)
	verr.Add("confirm_password", "passwords do not match", models.ErrPasswordMismatch)

	w := httptest.NewRecorder()
	writeServiceError(w, DiscardLogger(), fmt.Errorf("create: %w", verr))

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "validation_failed", resp.Error)
	assert.Equal(t, []pkghttp.Violation{
		{Field: "username", Message: "username is a required field"},
		{Field: "confirm_password", Message: "passwords do not match"},
	}, resp.Violations)
}

func TestWriteServiceError_StoreUnavailable(t *testing.T) {
	w := httptest.NewRecorder()
	writeServiceError(w, DiscardLogger(), fmt.Errorf("list: %w", models.ErrStoreUnavailable))

	AssertErrorResponse(t, w, http.StatusServiceUnavailable, "service_unavailable")
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 50, 0},
		{"?limit=10&offset=20", 10, 20},
		{"?limit=500", 50, 0},
		{"?limit=-1&offset=-5", 50, 0},
		{"?limit=abc", 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
			limit, offset := pagination(r)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"username":"a","role":"root"}`))
	w := httptest.NewRecorder()

	var req models.AdminLoginRequest
	assert.False(t, decodeJSON(w, r, &req))
	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}
