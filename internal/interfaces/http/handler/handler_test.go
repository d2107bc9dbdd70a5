package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/meterpay/backend/internal/application/billing"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/domain/shared"
	"github.com/meterpay/backend/internal/interfaces/http/dto"
	"github.com/meterpay/backend/internal/interfaces/http/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

type mockCheckout struct{ mock.Mock }

func (m *mockCheckout) CreateCheckout(ctx context.Context, userID uuid.UUID) (*billingapp.CheckoutResult, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.CheckoutResult), args.Error(1)
}

type mockQueries struct{ mock.Mock }

func (m *mockQueries) GetUsageStats(ctx context.Context, userID uuid.UUID) (*billingapp.UsageStatsDTO, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.UsageStatsDTO), args.Error(1)
}

func (m *mockQueries) ListPayments(ctx context.Context, userID uuid.UUID, page, pageSize int) (*billingapp.PaymentListDTO, error) {
	args := m.Called(ctx, userID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.PaymentListDTO), args.Error(1)
}

func (m *mockQueries) GetCreditBalance(ctx context.Context, userID uuid.UUID) (*billingapp.CreditBalanceDTO, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.CreditBalanceDTO), args.Error(1)
}

func (m *mockQueries) ListTiers() []billingapp.TierDTO {
	return m.Called().Get(0).([]billingapp.TierDTO)
}

func (m *mockQueries) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]billingapp.PaymentDTO, error) {
	args := m.Called(ctx, olderThan, limit)
	return args.Get(0).([]billingapp.PaymentDTO), args.Error(1)
}

type mockProcessor struct{ mock.Mock }

func (m *mockProcessor) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*billingapp.WebhookResult, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.WebhookResult), args.Error(1)
}

// asUser stands in for JWTAuth
func asUser(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.JWTUserIDKey, userID)
		c.Next()
	}
}

func newBillingRouter(h *BillingHandler, userID uuid.UUID) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/billing/tiers", h.ListTiers)
	authed := r.Group("/billing", asUser(userID))
	authed.POST("/checkout", h.CreateCheckout)
	authed.GET("/usage", h.GetUsage)
	authed.GET("/payments", h.ListPayments)
	authed.GET("/credits", h.GetCredits)
	r.GET("/anon/checkout", h.CreateCheckout)
	r.GET("/admin/stale", h.ListStalePending)
	return r
}

func perform(r http.Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBillingHandler_CreateCheckout(t *testing.T) {
	userID := uuid.New()

	t.Run("created", func(t *testing.T) {
		checkout := new(mockCheckout)
		paymentID := uuid.New()
		checkout.On("CreateCheckout", mock.Anything, userID).Return(&billingapp.CheckoutResult{
			URL:          "https://checkout.stripe.com/c/pay/cs_test_1",
			PaymentID:    paymentID,
			Tier:         "Growth",
			Amount:       decimal.NewFromInt(9),
			Currency:     "EUR",
			CreditsAdded: 99000,
		}, nil)

		w := perform(newBillingRouter(NewBillingHandler(checkout, new(mockQueries)), userID), http.MethodPost, "/billing/checkout", nil, nil)

		require.Equal(t, http.StatusCreated, w.Code)
		resp := decode(t, w)
		assert.True(t, resp.Success)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", data["url"])
		assert.Equal(t, paymentID.String(), data["payment_id"])
		assert.Equal(t, "Growth", data["tier"])
		assert.Equal(t, "9.00", data["amount"])
		checkout.AssertExpectations(t)
	})

	rejections := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"free allowance", billing.Reject(billing.RejectTierNotEligible, "usage 500 is within the free allowance (below 1001)", nil), http.StatusUnprocessableEntity, dto.ErrCodeTierNotEligible},
		{"custom quote", billing.Reject(billing.RejectRequiresCustomQuote, "tier Enterprise requires a custom quote", nil), http.StatusUnprocessableEntity, dto.ErrCodeRequiresCustomQuote},
		{"provider down", billing.Reject(billing.RejectProvider, "failed to create checkout session", errors.New("timeout")), http.StatusBadGateway, dto.ErrCodeProvider},
		{"ledger down", billing.Reject(billing.RejectPersistence, "failed to record pending payment", errors.New("conn reset")), http.StatusInternalServerError, dto.ErrCodePersistence},
		{"usage lookup", errors.New("failed to read usage for period 2026-03: boom"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}
	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			checkout := new(mockCheckout)
			checkout.On("CreateCheckout", mock.Anything, userID).Return(nil, tt.err)

			w := perform(newBillingRouter(NewBillingHandler(checkout, new(mockQueries)), userID), http.MethodPost, "/billing/checkout", nil, nil)

			require.Equal(t, tt.wantStatus, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
			assert.NotContains(t, resp.Error.Message, "conn reset")
		})
	}

	t.Run("unauthenticated", func(t *testing.T) {
		checkout := new(mockCheckout)
		w := perform(newBillingRouter(NewBillingHandler(checkout, new(mockQueries)), userID), http.MethodGet, "/anon/checkout", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		checkout.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
	})
}

func TestBillingHandler_Queries(t *testing.T) {
	userID := uuid.New()
	queries := new(mockQueries)
	h := NewBillingHandler(new(mockCheckout), queries)
	r := newBillingRouter(h, userID)

	t.Run("usage", func(t *testing.T) {
		queries.On("GetUsageStats", mock.Anything, userID).Return(&billingapp.UsageStatsDTO{
			CurrentUsage: 2500, Period: "2026-03", Tier: "Growth", FreeAllowance: 1001,
		}, nil).Once()

		w := perform(r, http.MethodGet, "/billing/usage", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w).Data.(map[string]any)
		assert.Equal(t, float64(2500), data["current_usage"])
		assert.Equal(t, "Growth", data["tier"])
	})

	t.Run("tiers are public", func(t *testing.T) {
		queries.On("ListTiers").Return([]billingapp.TierDTO{{Name: "Growth", MinUsage: 1001}}).Once()
		w := perform(r, http.MethodGet, "/billing/tiers", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode(t, w).Data, 1)
	})

	t.Run("payments default paging", func(t *testing.T) {
		queries.On("ListPayments", mock.Anything, userID, 1, defaultPageSize).Return(&billingapp.PaymentListDTO{
			Items: []billingapp.PaymentDTO{{ID: uuid.New(), Status: "pending"}}, Total: 41, Page: 1, PageSize: defaultPageSize,
		}, nil).Once()

		w := perform(r, http.MethodGet, "/billing/payments", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(41), resp.Meta.Total)
		assert.Equal(t, 3, resp.Meta.TotalPages)
	})

	t.Run("payments invalid page size", func(t *testing.T) {
		w := perform(r, http.MethodGet, "/billing/payments?page_size=500", nil, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidInput, decode(t, w).Error.Code)
	})

	t.Run("credits", func(t *testing.T) {
		queries.On("GetCreditBalance", mock.Anything, userID).Return(&billingapp.CreditBalanceDTO{UserID: userID, Credits: 99000}, nil).Once()
		w := perform(r, http.MethodGet, "/billing/credits", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(99000), decode(t, w).Data.(map[string]any)["credits"])
	})

	t.Run("credits store failure", func(t *testing.T) {
		queries.On("GetCreditBalance", mock.Anything, userID).Return(nil, errors.New("db down")).Once()
		w := perform(r, http.MethodGet, "/billing/credits", nil, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("stale pending", func(t *testing.T) {
		queries.On("ListStalePending", mock.Anything, 2*time.Hour, 0).Return([]billingapp.PaymentDTO{}, nil).Once()
		w := perform(r, http.MethodGet, "/admin/stale?older_than=2h", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = perform(r, http.MethodGet, "/admin/stale?older_than=soon", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	queries.AssertExpectations(t)
}

func TestStripeWebhookHandler(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	sig := map[string]string{stripeSignatureHeader: "t=1,v1=abc"}
	paymentID := uuid.New()

	tests := []struct {
		name       string
		body       []byte
		headers    map[string]string
		result     *billingapp.WebhookResult
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "completed",
			body:       payload,
			headers:    sig,
			result:     &billingapp.WebhookResult{EventID: "evt_1", Outcome: billingapp.OutcomeCompleted, PaymentID: &paymentID},
			wantStatus: http.StatusOK,
		},
		{
			name:       "duplicate",
			body:       payload,
			headers:    sig,
			result:     &billingapp.WebhookResult{EventID: "evt_1", Outcome: billingapp.OutcomeDuplicate},
			wantStatus: http.StatusOK,
		},
		{
			name:       "reconciliation miss is acknowledged",
			body:       payload,
			headers:    sig,
			result:     &billingapp.WebhookResult{EventID: "evt_1", Outcome: billingapp.OutcomeMiss},
			err:        billing.Reject(billing.RejectReconciliationMiss, "no payment for provider reference cs_1", nil),
			wantStatus: http.StatusOK,
		},
		{
			name:       "ledger failure is retried",
			body:       payload,
			headers:    sig,
			result:     &billingapp.WebhookResult{EventID: "evt_1", Outcome: billingapp.OutcomeError},
			err:        billing.Reject(billing.RejectPersistence, "failed to update payment status", errors.New("deadlock")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   dto.ErrCodePersistence,
		},
		{
			name:       "invalid signature",
			body:       payload,
			headers:    sig,
			err:        billing.ErrInvalidSignature,
			wantStatus: http.StatusUnauthorized,
			wantCode:   dto.ErrCodeInvalidSignature,
		},
		{
			name:       "missing signature",
			body:       payload,
			wantStatus: http.StatusUnauthorized,
			wantCode:   dto.ErrCodeInvalidSignature,
		},
		{
			name:       "oversized payload",
			body:       bytes.Repeat([]byte("a"), DefaultWebhookMaxBody+1),
			headers:    sig,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   dto.ErrCodePayloadTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := new(mockProcessor)
			if tt.result != nil || tt.err != nil {
				processor.On("ProcessWebhook", mock.Anything, tt.body, "t=1,v1=abc").Return(tt.result, tt.err)
			}

			r := gin.New()
			r.Use(middleware.RequestID())
			r.POST("/webhooks/stripe", NewStripeWebhookHandler(processor, 0).HandleStripeWebhook)

			w := perform(r, http.MethodPost, "/webhooks/stripe", tt.body, tt.headers)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decode(t, w).Error.Code)
			} else {
				var ack dto.WebhookAck
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
				assert.True(t, ack.Received)
				assert.Equal(t, string(tt.result.Outcome), ack.Outcome)
			}
			processor.AssertExpectations(t)
		})
	}
}

func TestHealthHandler(t *testing.T) {
	r := gin.New()
	r.GET("/ok", NewHealthHandler(map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	}).Health)
	r.GET("/down", NewHealthHandler(map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return shared.ErrNotFound },
	}).Health)

	w := perform(r, http.MethodGet, "/ok", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)

	w = perform(r, http.MethodGet, "/down", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decode(t, w)
	assert.False(t, resp.Success)
	checks := resp.Data.(map[string]any)["checks"].(map[string]any)
	assert.Equal(t, "up", checks["database"])
	assert.Equal(t, "down", checks["redis"])
}
