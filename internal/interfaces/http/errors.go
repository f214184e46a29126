package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"budgetlink/internal/domain/institution"
	"budgetlink/internal/domain/openfinance"
	"budgetlink/internal/shared/middleware"
)

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeBadGateway    = "BAD_GATEWAY"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

const internalErrorMessage = "An internal error occurred"

const maxBodyBytes = 1 << 20

// respondError sends an error response.
func respondError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	middleware.WriteError(w, r, statusCode, code, message)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Error encoding response: %v", err)
		}
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// mapServiceError maps service errors to HTTP status, code and a message
// safe to show the caller.
func mapServiceError(err error) (int, string, string) {
	switch {
	case errors.Is(err, institution.ErrInvalidInput):
		return http.StatusBadRequest, ErrCodeInvalidInput, err.Error()
	case errors.Is(err, institution.ErrInstitutionNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Institution not found"
	case errors.Is(err, institution.ErrItemLimitReached):
		return http.StatusConflict, ErrCodeConflict, "Institution limit reached"
	case errors.Is(err, institution.ErrDuplicateItem):
		return http.StatusConflict, ErrCodeConflict, "Institution already linked"
	case errors.Is(err, openfinance.ErrExchangeFailed),
		errors.Is(err, openfinance.ErrMetadataFailed),
		errors.Is(err, openfinance.ErrAccountsFailed):
		return http.StatusBadGateway, ErrCodeBadGateway, "Bank connection failed, please try again"
	default:
		return http.StatusInternalServerError, ErrCodeInternalError, internalErrorMessage
	}
}

// respondServiceError logs unexpected failures and writes the mapped response.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, logFormat string, args ...any) {
	status, code, message := mapServiceError(err)
	if status >= http.StatusInternalServerError {
		log.Printf(logFormat+": %v", append(args, err)...)
	}
	respondError(w, r, status, code, message)
}
