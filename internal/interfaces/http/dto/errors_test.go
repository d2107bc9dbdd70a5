package dto

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeInvalidUsage, http.StatusBadRequest},
		{ErrCodeTierNotEligible, http.StatusUnprocessableEntity},
		{ErrCodeRequiresCustomQuote, http.StatusUnprocessableEntity},
		{ErrCodeProvider, http.StatusBadGateway},
		{ErrCodePersistence, http.StatusInternalServerError},
		{ErrCodeInvalidSignature, http.StatusUnauthorized},
		{ErrCodeReconciliationMiss, http.StatusOK},
		{ErrCodePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    string
		message string
	}{
		{
			name:    "tier not eligible keeps its message",
			err:     billing.Reject(billing.RejectTierNotEligible, "usage 10 is within the free allowance (below 1001)", nil),
			code:    ErrCodeTierNotEligible,
			message: "usage 10 is within the free allowance (below 1001)",
		},
		{
			name:    "wrapped custom quote",
			err:     fmt.Errorf("checkout: %w", billing.Reject(billing.RejectRequiresCustomQuote, "tier Enterprise requires a custom quote", nil)),
			code:    ErrCodeRequiresCustomQuote,
			message: "tier Enterprise requires a custom quote",
		},
		{
			name:    "persistence cause is hidden",
			err:     billing.Reject(billing.RejectPersistence, "failed to record pending payment", errors.New("pq: connection refused")),
			code:    ErrCodePersistence,
			message: "payment could not be recorded, retry later",
		},
		{
			name:    "provider cause is hidden",
			err:     billing.Reject(billing.RejectProvider, "failed to create checkout session", errors.New("api key sk_live_x invalid")),
			code:    ErrCodeProvider,
			message: "payment provider unavailable",
		},
		{
			name:    "domain not found",
			err:     shared.ErrNotFound.WithCause(errors.New("record not found")),
			code:    ErrCodeNotFound,
			message: "Resource not found",
		},
		{
			name:    "unknown error",
			err:     errors.New("boom"),
			code:    ErrCodeInternal,
			message: "an unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message := ErrorCodeOf(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.message, message)
		})
	}
}

func TestNewSuccessResponseWithMeta(t *testing.T) {
	resp := NewSuccessResponseWithMeta([]int{1, 2}, 41, 2, 20)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Meta.TotalPages)

	resp = NewSuccessResponseWithMeta(nil, 5, 1, 0)
	assert.Equal(t, 0, resp.Meta.TotalPages)
}

func TestNewErrorResponseWithRequestID(t *testing.T) {
	resp := NewErrorResponseWithRequestID(ErrCodeNotFound, "payment not found", "req-1")
	assert.False(t, resp.Success)
	assert.Nil(t, resp.Data)
	assert.Equal(t, "req-1", resp.Error.RequestID)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}
