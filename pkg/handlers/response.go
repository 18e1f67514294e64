package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/apperrors"
)

// ApiResponse is the envelope for every successful JSON response.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeOK wraps data in a success envelope.
func writeOK(w http.ResponseWriter, statusCode int, data any, logger *zap.Logger) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeError writes an error response and logs the write failure, if any.
func writeError(w http.ResponseWriter, statusCode int, errorCode, message string, logger *zap.Logger) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeServiceError maps domain errors to HTTP status codes. Anything
// unrecognised is logged and reported as an internal error.
func writeServiceError(w http.ResponseWriter, err error, action string, logger *zap.Logger) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), logger)
	case errors.Is(err, apperrors.ErrCriticalPending), errors.Is(err, apperrors.ErrSessionComplete):
		writeError(w, http.StatusConflict, "conflict", err.Error(), logger)
	case errors.Is(err, apperrors.ErrUnsupportedFormat), errors.Is(err, apperrors.ErrEmptyGrid):
		writeError(w, http.StatusUnprocessableEntity, "unprocessable_file", err.Error(), logger)
	case errors.Is(err, apperrors.ErrExtractorUnavailable):
		writeError(w, http.StatusServiceUnavailable, "extractor_unavailable", err.Error(), logger)
	default:
		logger.Error("Failed to "+action, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to "+action, logger)
	}
}
