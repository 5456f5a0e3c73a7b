package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/gray-logic-identity/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeValidation         = "validation_error"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeInvalidToken       = "invalid_token"
	ErrCodeTokenExpired       = "token_expired"
	ErrCodeMissingToken       = "missing_token"
	ErrCodeForbidden          = "forbidden"
	ErrCodeNotFound           = "not_found"
	ErrCodeAlreadyExists      = "already_exists"
	ErrCodeMethodNotAllow     = "method_not_allowed"
	ErrCodeNotImplemented     = "not_implemented"
	ErrCodeInternal           = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAuthError maps an auth error to its HTTP status and code.
// Unrecognised errors are logged and reported as a generic 500.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrMalformedRequest):
		writeBadRequest(w, err.Error())
	case errors.Is(err, auth.ErrValidation):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid credentials")
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenExpired, "token has expired")
	case errors.Is(err, auth.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidToken, "invalid token")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "only the account owner may do this")
	case errors.Is(err, auth.ErrAccountNotFound):
		writeNotFound(w, "account not found")
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, http.StatusConflict, ErrCodeAlreadyExists, "an account with this email already exists")
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w, "internal server error")
	}
}

// decodeJSON decodes the request body into v.
// Any decoding failure is reported as auth.ErrMalformedRequest.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", auth.ErrMalformedRequest)
	}
	return nil
}
