// Package httpserver contains the ingress and operations HTTP handlers:
// job submission, DLQ inspection/retry, and health/metrics endpoints.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/juanqu261/bots-brokerwiz/internal/domain"
)

// apiResponse is the success envelope every ingress endpoint writes:
// {success, message, data, timestamp}.
type apiResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// apiErrorResponse is the failure envelope: {success:false, error, detail?, timestamp}.
type apiErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, apiResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// writeError maps a sentinel domain error to an HTTP status via errors.Is,
// never by inspecting error strings.
func writeError(w http.ResponseWriter, err error, detail string) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, domain.ErrInvalidVendor):
		status, msg = http.StatusBadRequest, "unknown vendor"
	case errors.Is(err, domain.ErrVendorDisabled):
		status, msg = http.StatusBadRequest, "vendor disabled"
	case errors.Is(err, domain.ErrSchemaInvalid):
		status, msg = http.StatusUnprocessableEntity, "payload schema invalid"
	case errors.Is(err, domain.ErrUnauthorized):
		status, msg = http.StatusForbidden, "missing bearer token"
	case errors.Is(err, domain.ErrForbidden):
		status, msg = http.StatusUnauthorized, "token inválido"
	case errors.Is(err, domain.ErrPublishFailed):
		status, msg = http.StatusServiceUnavailable, "broker publish failed"
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	}
	writeJSON(w, status, apiErrorResponse{
		Success:   false,
		Error:     msg,
		Detail:    detail,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
