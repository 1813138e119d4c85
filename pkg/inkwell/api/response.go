package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/inkwell-cms/inkwell/pkg/inkwell"
	"github.com/inkwell-cms/inkwell/pkg/inkwell/authz"
)

// Response is the envelope every endpoint returns.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	render.Status(r, status)
	render.JSON(w, r, Response{Success: false, Message: message, Code: code, Details: details})
}

// mapError translates the service error taxonomy into HTTP status codes and
// the structured error body. Unrecognized errors become a generic 500.
func mapError(err error) (status int, code, message string, details interface{}) {
	switch {
	case errors.Is(err, inkwell.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "content not found", nil
	case errors.Is(err, inkwell.ErrHistoryNotFound):
		return http.StatusNotFound, "NOT_FOUND", "history revision not found", nil
	}

	var conflict *inkwell.ConflictError
	if errors.As(err, &conflict) {
		var d interface{}
		if conflict.Expected != "" || conflict.Actual != "" {
			d = map[string]string{
				"expected_etag": conflict.Expected,
				"actual_etag":   conflict.Actual,
			}
		}
		return http.StatusConflict, "CONFLICT", conflict.Error(), d
	}

	var locked *inkwell.LockedError
	if errors.As(err, &locked) {
		return http.StatusLocked, "LOCKED", locked.Error(), map[string]interface{}{
			"locked_by": locked.HeldBy,
			"locked_at": locked.LockedAt.Format(time.RFC3339),
		}
	}

	var invalid *inkwell.ValidationError
	if errors.As(err, &invalid) {
		return http.StatusBadRequest, "VALIDATION", invalid.Message, invalid.Fields
	}

	var unauthenticated *authz.AuthenticationError
	if errors.As(err, &unauthenticated) {
		return http.StatusUnauthorized, "UNAUTHENTICATED", unauthenticated.Error(), nil
	}

	var forbidden *authz.AuthorizationError
	if errors.As(err, &forbidden) {
		return http.StatusForbidden, "FORBIDDEN", forbidden.Error(), nil
	}

	return http.StatusInternalServerError, "INTERNAL", "internal error", nil
}
