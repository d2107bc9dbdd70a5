package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	billingapp "github.com/meterpay/backend/internal/application/billing"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/infrastructure/logger"
	"github.com/meterpay/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// DefaultWebhookMaxBody bounds provider deliveries, which are small JSON documents.
const DefaultWebhookMaxBody = 64 << 10

const stripeSignatureHeader = "Stripe-Signature"

// WebhookProcessor verifies and applies one provider delivery
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, payload []byte, signature string) (*billingapp.WebhookResult, error)
}

// StripeWebhookHandler receives provider deliveries. It is authenticated by
// the payload signature, not by JWT.
type StripeWebhookHandler struct {
	BaseHandler
	processor WebhookProcessor
	maxBody   int64
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler. maxBody <= 0
// uses DefaultWebhookMaxBody.
func NewStripeWebhookHandler(processor WebhookProcessor, maxBody int64) *StripeWebhookHandler {
	if maxBody <= 0 {
		maxBody = DefaultWebhookMaxBody
	}
	return &StripeWebhookHandler{processor: processor, maxBody: maxBody}
}

// HandleStripeWebhook handles POST /webhooks/stripe.
//
// Only failures a redelivery can fix answer 5xx. Deliveries that match no
// payment are acknowledged so the provider stops retrying them.
func (h *StripeWebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// signature verification needs the raw bytes
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBody+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.Error(c, dto.ErrCodePayloadTooLarge, "Payload too large")
			return
		}
		h.Error(c, dto.ErrCodeBadRequest, "Failed to read request body")
		return
	}
	if int64(len(payload)) > h.maxBody {
		h.Error(c, dto.ErrCodePayloadTooLarge, "Payload too large")
		return
	}

	signature := c.GetHeader(stripeSignatureHeader)
	if signature == "" {
		h.Error(c, dto.ErrCodeInvalidSignature, "Missing Stripe-Signature header")
		return
	}

	ctx := c.Request.Context()
	result, err := h.processor.ProcessWebhook(ctx, payload, signature)
	if err == nil {
		c.JSON(http.StatusOK, dto.WebhookAck{Received: true, Outcome: string(result.Outcome)})
		return
	}

	if result == nil {
		h.Error(c, dto.ErrCodeInvalidSignature, "Webhook signature verification failed")
		return
	}

	log := logger.L(ctx).With(
		zap.String("event_id", result.EventID),
		zap.String("event_type", result.EventType))

	if kind, ok := billing.RejectionKindOf(err); ok && kind == billing.RejectReconciliationMiss {
		log.Warn("Webhook acknowledged without a matching payment", zap.Error(err))
		c.JSON(http.StatusOK, dto.WebhookAck{Received: true, Outcome: string(result.Outcome)})
		return
	}

	log.Error("Webhook processing failed, provider will redeliver", zap.Error(err))
	_ = c.Error(err)
	h.Error(c, dto.ErrCodePersistence, "Webhook could not be applied")
}
