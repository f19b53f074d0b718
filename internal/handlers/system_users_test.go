package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/hostpanel/internal/handlers"
	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/services"
)

func newSystemUserHandler(svc handlers.SystemUserServiceInterface) *handlers.SystemUserHandler {
	return handlers.NewSystemUserHandler(svc, nil, handlers.DiscardLogger())
}

func TestCreateSystemUser(t *testing.T) {
	admin := handlers.NewTestAdmin("alice", true)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"created", nil, http.StatusCreated, ""},
		{"username taken", models.ErrConflict, http.StatusConflict, "conflict"},
		{"useradd failed", fmt.Errorf("%w: useradd deploy: exit status 9", models.ErrOSCommandFailed), http.StatusBadGateway, "os_command_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &handlers.MockSystemUserService{
				CreateFunc: func(ctx context.Context, actor services.Actor, req models.SystemUserCreateRequest) (*models.SystemUser, error) {
					assert.Equal(t, "deploy", req.Username)
					assert.Equal(t, []string{"www-data"}, req.Groups)
					if tt.err != nil {
						return nil, tt.err
					}
					return &models.SystemUser{ID: uuid.New(), Username: req.Username, UID: 1001}, nil
				},
			}

			req := handlers.NewTestRequest(t, http.MethodPost, "/api/v1/system-users", models.SystemUserCreateRequest{
				Username: "deploy",
				Groups:   []string{"www-data"},
			})
			w := httptest.NewRecorder()
			newSystemUserHandler(mock).Create(w, handlers.WithAdminContext(req, admin))

			if tt.err != nil {
				handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
				return
			}
			var resp models.SystemUser
			handlers.AssertJSONResponse(t, w, tt.wantStatus, &resp)
			assert.Equal(t, 1001, resp.UID)
		})
	}
}

func TestDeleteSystemUser_RemoveHome(t *testing.T) {
	id := uuid.New()

	t.Run("flag forwarded", func(t *testing.T) {
		var gotRemove bool
		mock := &handlers.MockSystemUserService{
			DeleteFunc: func(ctx context.Context, actor services.Actor, uid uuid.UUID, removeHome bool) error {
				gotRemove = removeHome
				return nil
			},
		}

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/system-users/"+id.String()+"?remove_home=true", nil)
		w := httptest.NewRecorder()
		newSystemUserHandler(mock).Delete(w, handlers.WithURLParams(req, "id", id.String()))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.True(t, gotRemove)
	})

	t.Run("bad flag", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/system-users/"+id.String()+"?remove_home=maybe", nil)
		w := httptest.NewRecorder()
		newSystemUserHandler(&handlers.MockSystemUserService{}).Delete(w, handlers.WithURLParams(req, "id", id.String()))

		handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	})
}

func TestLockAndUnlockSystemUser(t *testing.T) {
	id := uuid.New()
	var calls []string
	mock := &handlers.MockSystemUserService{
		LockFunc: func(ctx context.Context, actor services.Actor, uid uuid.UUID) (*models.SystemUser, error) {
			calls = append(calls, "lock")
			return &models.SystemUser{ID: uid, IsLocked: true}, nil
		},
		UnlockFunc: func(ctx context.Context, actor services.Actor, uid uuid.UUID) (*models.SystemUser, error) {
			calls = append(calls, "unlock")
			return &models.SystemUser{ID: uid}, nil
		},
	}
	h := newSystemUserHandler(mock)

	w := httptest.NewRecorder()
	h.Lock(w, handlers.WithURLParams(httptest.NewRequest(http.MethodPost, "/", nil), "id", id.String()))
	var locked models.SystemUser
	handlers.AssertJSONResponse(t, w, http.StatusOK, &locked)
	assert.True(t, locked.IsLocked)

	w = httptest.NewRecorder()
	h.Unlock(w, handlers.WithURLParams(httptest.NewRequest(http.MethodPost, "/", nil), "id", id.String()))
	var unlocked models.SystemUser
	handlers.AssertJSONResponse(t, w, http.StatusOK, &unlocked)
	assert.False(t, unlocked.IsLocked)

	assert.Equal(t, []string{"lock", "unlock"}, calls)
}

func TestUpdateSystemUser_Validation(t *testing.T) {
	id := uuid.New()
	mock := &handlers.MockSystemUserService{
		UpdateFunc: func(ctx context.Context, actor services.Actor, uid uuid.UUID, req models.SystemUserUpdateRequest) (*models.SystemUser, error) {
			verr := &models.ValidationError{}
			verr.Add("shell", "shell must be an absolute path", nil)
			return nil, verr
		},
	}

	shell := "bash"
	req := handlers.NewTestRequest(t, http.MethodPatch, "/", models.SystemUserUpdateRequest{Shell: &shell})
	w := httptest.NewRecorder()
	newSystemUserHandler(mock).Update(w, handlers.WithURLParams(req, "id", id.String()))

	resp := handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "validation_failed")
	assert.Equal(t, "shell", resp.Violations[0].Field)
}
