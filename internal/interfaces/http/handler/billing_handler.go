package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/meterpay/backend/internal/application/billing"
	"github.com/meterpay/backend/internal/interfaces/http/dto"
	"github.com/meterpay/backend/internal/interfaces/http/middleware"
)

const defaultPageSize = 20

// CheckoutCreator opens checkout sessions
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, userID uuid.UUID) (*billingapp.CheckoutResult, error)
}

// BillingQueries serves the read side of billing
type BillingQueries interface {
	GetUsageStats(ctx context.Context, userID uuid.UUID) (*billingapp.UsageStatsDTO, error)
	ListPayments(ctx context.Context, userID uuid.UUID, page, pageSize int) (*billingapp.PaymentListDTO, error)
	GetCreditBalance(ctx context.Context, userID uuid.UUID) (*billingapp.CreditBalanceDTO, error)
	ListTiers() []billingapp.TierDTO
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]billingapp.PaymentDTO, error)
}

// BillingHandler handles checkout and billing read endpoints
type BillingHandler struct {
	BaseHandler
	checkout CheckoutCreator
	queries  BillingQueries
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(checkout CheckoutCreator, queries BillingQueries) *BillingHandler {
	return &BillingHandler{checkout: checkout, queries: queries}
}

// CreateCheckout handles POST /billing/checkout. The tier comes from the
// caller's usage, so the request has no body.
func (h *BillingHandler) CreateCheckout(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	result, err := h.checkout.CreateCheckout(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, dto.CheckoutResponse{
		URL:       result.URL,
		PaymentID: result.PaymentID.String(),
		Tier:      result.Tier,
		Amount:    result.Amount.StringFixed(2),
		Currency:  result.Currency,
		Credits:   result.CreditsAdded,
	})
}

// GetUsage handles GET /billing/usage
func (h *BillingHandler) GetUsage(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	stats, err := h.queries.GetUsageStats(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// ListTiers handles GET /billing/tiers
func (h *BillingHandler) ListTiers(c *gin.Context) {
	h.Success(c, h.queries.ListTiers())
}

// ListPayments handles GET /billing/payments
func (h *BillingHandler) ListPayments(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req dto.PaymentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = defaultPageSize
	}

	list, err := h.queries.ListPayments(c.Request.Context(), userID, req.Page, req.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, list.Items, list.Total, list.Page, list.PageSize)
}

// GetCredits handles GET /billing/credits
func (h *BillingHandler) GetCredits(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	balance, err := h.queries.GetCreditBalance(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, balance)
}

// ListStalePending handles GET /admin/billing/payments/stale
func (h *BillingHandler) ListStalePending(c *gin.Context) {
	var req dto.StalePendingRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	var olderThan time.Duration
	if req.OlderThan != "" {
		d, err := time.ParseDuration(req.OlderThan)
		if err != nil || d <= 0 {
			h.Error(c, dto.ErrCodeInvalidInput, "older_than must be a positive duration such as 30m or 2h")
			return
		}
		olderThan = d
	}

	payments, err := h.queries.ListStalePending(c.Request.Context(), olderThan, req.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payments)
}
