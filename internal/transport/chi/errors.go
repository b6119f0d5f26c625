package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
	logpkg "github.com/kira-labs/kira/internal/logger"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeRequestTooLarge  = "REQUEST_TOO_LARGE"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeValidation       = "REQUEST_VALIDATION_ERROR"
	CodePromptInjection  = "PROMPT_INJECTION_DETECTED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodePolicyNotFound   = "POLICY_NOT_FOUND"
	CodeNotFound         = "NOT_FOUND"
	CodeInternal         = "INTERNAL_SERVER_ERROR"
	msgValidation        = "Request validation failed"
	msgInternal          = "Internal server error"
	msgPromptInjection   = "Prompt contains unsafe instruction patterns"
	msgInsufficientRoles = "Insufficient role permissions"
)

// ErrorResponse is the body of every failed API request.
type ErrorResponse struct {
	Error         bool   `json:"error"`
	Message       string `json:"message"`
	Code          string `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, r *http.Request, err error) bool

func sentinelHandler(target error, status int, code, message string) errorHandler {
	return func(w http.ResponseWriter, r *http.Request, err error) bool {
		if !errors.Is(err, target) {
			return false
		}
		writeError(w, r, status, code, message)
		return true
	}
}

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		sentinelHandler(domain.ErrPromptInjection, http.StatusUnprocessableEntity, CodePromptInjection, msgPromptInjection),
		sentinelHandler(domain.ErrInvalidInput, http.StatusUnprocessableEntity, CodeValidation, msgValidation),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound, "Resource not found"),
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized"),
		sentinelHandler(domain.ErrForbidden, http.StatusForbidden, CodeForbidden, msgInsufficientRoles),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded"),
	}
}

// handleDomainError maps err onto an HTTP response. Unmapped errors are logged and become 500.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, h := range s.errorHandlers {
		if h(w, r, err) {
			return
		}
	}
	logpkg.FromContext(r.Context()).Error("unhandled_exception", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, CodeInternal, msgInternal)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:         true,
		Message:       message,
		Code:          code,
		CorrelationID: logpkg.CorrelationID(r.Context()),
	})
}
