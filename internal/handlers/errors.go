package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/paintcrew/fieldtime/internal/apperr"
)

// WriteError maps an apperr.Error onto an HTTP status and a stable JSON
// error body; any other error is reported as an opaque internal error.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = &apperr.Error{Code: apperr.Internal, Message: "internal error"}
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperr.Unauthenticated:
		status = http.StatusUnauthorized
	case apperr.PermissionDenied:
		status = http.StatusForbidden
	case apperr.InvalidArgument:
		status = http.StatusBadRequest
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.FailedPrecondition:
		status = http.StatusConflict
	case apperr.ResourceExhausted:
		status = http.StatusTooManyRequests
	case apperr.DeadlineExceeded:
		status = http.StatusGatewayTimeout
	case apperr.Internal:
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    string(appErr.Code),
		"reason":  appErr.Reason,
		"message": appErr.Message,
	})
}

// WriteJSON writes a 200 OK JSON response.
func WriteJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
