package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	activationdomain "github.com/keyforge/keyforge/internal/activation/domain"
	coupondomain "github.com/keyforge/keyforge/internal/coupon/domain"
	ledgerdomain "github.com/keyforge/keyforge/internal/ledger/domain"
	licensedomain "github.com/keyforge/keyforge/internal/license/domain"
	tokendomain "github.com/keyforge/keyforge/internal/token/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not_found")
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrTooManyRequests = errors.New("too_many_requests")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case isUnauthorizedError(err):
		// Signature failures stay opaque: no reason, no token echo.
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, licensedomain.ErrInvalidProject),
		errors.Is(err, licensedomain.ErrInvalidType),
		errors.Is(err, licensedomain.ErrInvalidDuration),
		errors.Is(err, licensedomain.ErrInvalidSeats),
		errors.Is(err, licensedomain.ErrInvalidID),
		errors.Is(err, coupondomain.ErrInvalidMaxUses),
		errors.Is(err, coupondomain.ErrInvalidExpiry),
		errors.Is(err, coupondomain.ErrInvalidCode),
		errors.Is(err, coupondomain.ErrInvalidDuration),
		errors.Is(err, ledgerdomain.ErrInvalidBucket),
		errors.Is(err, ledgerdomain.ErrInvalidCost),
		errors.Is(err, ledgerdomain.ErrInvalidCertificate):
		return true
	default:
		return false
	}
}

func isUnauthorizedError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, tokendomain.ErrVerificationFailed),
		errors.Is(err, licensedomain.ErrRevoked),
		errors.Is(err, licensedomain.ErrExpired),
		errors.Is(err, activationdomain.ErrAttestationFailed),
		errors.Is(err, activationdomain.ErrProjectMismatch):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, coupondomain.ErrExhausted),
		errors.Is(err, coupondomain.ErrExpired),
		errors.Is(err, activationdomain.ErrSessionConsumed),
		errors.Is(err, activationdomain.ErrAlreadyBound):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, coupondomain.ErrExhausted):
		return "coupon exhausted"
	case errors.Is(err, coupondomain.ErrExpired):
		return "coupon expired"
	case errors.Is(err, activationdomain.ErrSessionConsumed):
		return "session already consumed"
	case errors.Is(err, activationdomain.ErrAlreadyBound):
		return "license already bound to another device"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, licensedomain.ErrNotFound),
		errors.Is(err, coupondomain.ErrNotFound),
		errors.Is(err, activationdomain.ErrNotFound),
		errors.Is(err, activationdomain.ErrSessionNotFound),
		errors.Is(err, activationdomain.ErrSessionExpired),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
