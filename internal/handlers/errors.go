package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/BradenHooton/hostpanel/internal/auth"
	"github.com/BradenHooton/hostpanel/internal/models"
	"github.com/BradenHooton/hostpanel/internal/services"
	pkghttp "github.com/BradenHooton/hostpanel/pkg/http"
)

const (
	maxBodyBytes      = 1 << 20
	retryAfterSeconds = 5
	defaultPageSize   = 50
	maxPageSize       = 100
)

// writeServiceError maps an error returned by a service to its response.
// Every authentication failure gets the same body so callers cannot tell
// an unknown user from a wrong password or a locked account.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		violations := make([]pkghttp.Violation, 0, len(verr.Violations))
		for _, v := range verr.Violations {
			violations = append(violations, pkghttp.Violation{Field: v.Field, Message: v.Message})
		}
		pkghttp.WriteValidationError(w, violations)
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrAccountLocked),
		errors.Is(err, models.ErrTwoFactorInvalid),
		errors.Is(err, models.ErrUnauthenticated),
		errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "You are not allowed to perform this action")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Resource already exists")
	case errors.Is(err, models.ErrTwoFactorState):
		pkghttp.WriteConflict(w, "Two-factor authentication is not in the required state")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "bad_request", "Invalid request", err.Error())
	case errors.Is(err, models.ErrStoreUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable", retryAfterSeconds)
	case errors.Is(err, models.ErrOSCommandFailed):
		pkghttp.WriteBadGateway(w, "Operating system command failed")
	default:
		logger.Error("request failed", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// decodeJSON reads a size-capped JSON body into v, rejecting unknown fields.
// It writes the 400 itself and reports false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// pathUUID parses a UUID URL parameter, writing a 400 when it is malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads limit/offset query parameters; bad values fall back to
// the defaults.
func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= maxPageSize {
		limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}
	return limit, offset
}

// actorFrom builds the audit actor for the authenticated request.
func actorFrom(r *http.Request, ipConfig *pkghttp.IPConfig) services.Actor {
	client := pkghttp.ExtractClientInfo(r, ipConfig)
	return services.ActorFromAdmin(auth.AdminFromContext(r.Context()), client.IPAddress, client.UserAgent)
}

// listResponse is the envelope of every paged listing.
type listResponse struct {
	Items  interface{} `json:"items"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

func writeList(w http.ResponseWriter, items interface{}, total, limit, offset int) {
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	pkghttp.WriteJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}
