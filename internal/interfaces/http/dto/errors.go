package dto

import (
	"errors"
	"net/http"

	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/domain/shared"
)

// Billing error codes mirror billing.RejectionKind
const (
	ErrCodeInvalidUsage        = string(billing.RejectInvalidUsage)
	ErrCodeTierNotEligible     = string(billing.RejectTierNotEligible)
	ErrCodeRequiresCustomQuote = string(billing.RejectRequiresCustomQuote)
	ErrCodePersistence         = string(billing.RejectPersistence)
	ErrCodeProvider            = string(billing.RejectProvider)
	ErrCodeInvalidSignature    = string(billing.RejectInvalidSignature)
	ErrCodeReconciliationMiss  = string(billing.RejectReconciliationMiss)
)

// Transport error codes
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeTokenExpired    = "TOKEN_EXPIRED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInvalidUsage:        http.StatusBadRequest,
	ErrCodeTierNotEligible:     http.StatusUnprocessableEntity,
	ErrCodeRequiresCustomQuote: http.StatusUnprocessableEntity,
	ErrCodePersistence:         http.StatusInternalServerError,
	ErrCodeProvider:            http.StatusBadGateway,
	ErrCodeInvalidSignature:    http.StatusUnauthorized,
	// A miss is acknowledged so the provider stops redelivering.
	ErrCodeReconciliationMiss: http.StatusOK,

	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeTokenExpired:    http.StatusUnauthorized,
	ErrCodeForbidden:       http.StatusForbidden,
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodePayloadTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorCodeOf classifies err into a response code and a client-safe message.
// Causes of persistence and unknown errors are never exposed.
func ErrorCodeOf(err error) (code, message string) {
	var rej *billing.Rejection
	if errors.As(err, &rej) {
		switch rej.Kind {
		case billing.RejectPersistence:
			return ErrCodePersistence, "payment could not be recorded, retry later"
		case billing.RejectProvider:
			return ErrCodeProvider, "payment provider unavailable"
		}
		return string(rej.Kind), rej.Message
	}

	var de *shared.DomainError
	if errors.As(err, &de) {
		switch de.Code {
		case shared.ErrNotFound.Code:
			return ErrCodeNotFound, de.Message
		case shared.ErrInvalidInput.Code:
			return ErrCodeInvalidInput, de.Message
		case shared.ErrUnauthorized.Code:
			return ErrCodeUnauthorized, de.Message
		case shared.ErrForbidden.Code:
			return ErrCodeForbidden, de.Message
		}
	}
	return ErrCodeInternal, "an unexpected error occurred"
}
