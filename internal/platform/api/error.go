package api

import (
	"net/http"
)

// WriteError writes an error envelope.
func WriteError(w http.ResponseWriter, status int, code, message, requestID string) {
	WriteJSON(w, status, Envelope{Status: StatusError, Message: message, Code: code, RequestID: requestID})
}

// Convenience helpers
func BadRequest(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusBadRequest, code, message, requestID)
}

func Unauthorized(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusUnauthorized, code, message, requestID)
}

func Forbidden(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusForbidden, code, message, requestID)
}

func NotFound(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusNotFound, code, message, requestID)
}

func Conflict(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusConflict, code, message, requestID)
}

func Internal(w http.ResponseWriter, requestID string) {
	WriteError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error", requestID)
}

func RateLimited(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusTooManyRequests, code, message, requestID)
}
