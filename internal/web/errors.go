package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with full technical detail and the request ID, then
// returned to the client as a user message with a support code taken from
// core.MapError. Clients never see raw database or parser errors.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/xlimport/internal/core"
	"github.com/JonMunkholm/xlimport/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err server-side and writes its user-friendly mapping.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	writeJSONStatus(w, statusCode, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// writeError writes a JSON error that does not come from a Go error value.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSONStatus(w, status, ErrorResponse{Error: message, Message: message, Code: code})
}

// statusFor picks the HTTP status for an import service error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownProfile), errors.Is(err, core.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusTooManyRequests
	case core.IsRunFatal(err), errors.Is(err, errNoFile), errors.Is(err, errBadOption):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON and writes it with status.
// Logs encoding errors since headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
