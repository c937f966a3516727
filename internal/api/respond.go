package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/gridrank/internal/gridrank"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps an error class to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gridrank.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, gridrank.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gridrank.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, gridrank.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, gridrank.ErrGeocodeFailed), errors.Is(err, gridrank.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server-side failures are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
	}
	msg := err.Error()
	if status == http.StatusNotFound {
		msg = "scan not found"
	}
	writeError(w, status, msg)
}
