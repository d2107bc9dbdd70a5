package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Session metadata keys written at checkout and read back from webhooks
const (
	MetadataPaymentID = "payment_id"
	MetadataUserID    = "user_id"
	MetadataTier      = "tier"
)

// StripeGateway implements billing.PaymentGateway with Stripe Checkout
type StripeGateway struct {
	config *StripeConfig
	logger *zap.Logger
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeConfig, logger *zap.Logger) (*StripeGateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.InitStripeClient()
	logger.Info("Stripe gateway initialized", zap.Bool("test_mode", config.TestMode()))

	return &StripeGateway{
		config: config,
		logger: logger,
	}, nil
}

// CreateSession opens a one-off payment Checkout Session. The session id is
// the provider reference that webhooks carry back.
func (g *StripeGateway) CreateSession(ctx context.Context, req billing.CheckoutSessionRequest) (_ *billing.CheckoutSession, err error) {
	ctx, span := telemetry.StartSpan(ctx, "stripe.checkout.create", trace.SpanKindClient,
		telemetry.AttrPaymentID.String(req.CorrelationID),
		telemetry.AttrUserID.String(req.UserID.String()),
		telemetry.AttrTier.String(req.TierName),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	g.logger.Debug("Creating Stripe checkout session",
		zap.String("user_id", req.UserID.String()),
		zap.String("tier", req.TierName),
		zap.String("payment_id", req.CorrelationID))

	lineItem, err := checkoutLineItem(req)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{lineItem},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID.String()),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataPaymentID: req.CorrelationID},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataPaymentID, req.CorrelationID)
	params.AddMetadata(MetadataUserID, req.UserID.String())
	params.AddMetadata(MetadataTier, req.TierName)
	if req.CorrelationID != "" {
		// a retried request for the same payment must not open a second session
		params.SetIdempotencyKey("checkout-" + req.CorrelationID)
	}

	sess, err := session.New(params)
	if err != nil {
		g.logger.Error("Failed to create Stripe checkout session",
			zap.String("user_id", req.UserID.String()),
			zap.String("payment_id", req.CorrelationID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create checkout session: %w", err)
	}

	g.logger.Info("Created Stripe checkout session",
		zap.String("session_id", sess.ID),
		zap.String("payment_id", req.CorrelationID))

	return &billing.CheckoutSession{
		SessionURL:        sess.URL,
		ProviderReference: sess.ID,
	}, nil
}

func checkoutLineItem(req billing.CheckoutSessionRequest) (*stripe.CheckoutSessionLineItemParams, error) {
	if req.PlanID != "" {
		return &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(req.PlanID),
			Quantity: stripe.Int64(1),
		}, nil
	}

	// ad-hoc price from the tier amount
	if req.Currency == "" {
		return nil, fmt.Errorf("stripe: currency is required without a price id")
	}
	cents := req.Amount.Mul(decimal.NewFromInt(100))
	if !cents.IsInteger() || !cents.IsPositive() {
		return nil, fmt.Errorf("stripe: invalid amount %s", req.Amount.String())
	}
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(strings.ToLower(req.Currency)),
			UnitAmount: stripe.Int64(cents.IntPart()),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(req.TierName + " usage tier"),
			},
		},
		Quantity: stripe.Int64(1),
	}, nil
}

// VerifyAndParse checks the Stripe-Signature header and maps the event onto
// the billing core's closed event set.
func (g *StripeGateway) VerifyAndParse(payload []byte, signature string) (billing.ProviderEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.config.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                g.config.WebhookTolerance,
		IgnoreAPIVersionMismatch: g.config.IgnoreAPIVersionMismatch,
	})
	if err != nil {
		return nil, billing.Reject(billing.RejectInvalidSignature, "webhook signature verification failed", err)
	}
	return mapEvent(event, g.logger)
}

func mapEvent(event stripe.Event, logger *zap.Logger) (billing.ProviderEvent, error) {
	eventType := string(event.Type)
	other := billing.OtherEvent{ID: event.ID, Type: eventType}

	var failureReason string
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		failureReason = "async_payment_failed"
	case stripe.EventTypeCheckoutSessionExpired:
		failureReason = "expired"
	default:
		return other, nil
	}

	if event.Data == nil {
		return nil, fmt.Errorf("stripe: event %s has no data", event.ID)
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("stripe: failed to unmarshal checkout session: %w", err)
	}

	userID := sessionUserID(&sess)

	if failureReason != "" {
		return billing.CheckoutFailed{
			ID:                event.ID,
			Type:              eventType,
			ProviderReference: sess.ID,
			UserID:            userID,
			Reason:            failureReason,
		}, nil
	}

	// completed with a delayed method (bank debit) stays pending until
	// async_payment_succeeded arrives
	if event.Type == stripe.EventTypeCheckoutSessionCompleted &&
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		logger.Info("Checkout completed without payment yet",
			zap.String("event_id", event.ID),
			zap.String("session_id", sess.ID))
		return other, nil
	}

	var paymentID uuid.UUID
	if raw, ok := sess.Metadata[MetadataPaymentID]; ok {
		paymentID, _ = uuid.Parse(raw)
	}

	return billing.CheckoutCompleted{
		ID:                event.ID,
		Type:              eventType,
		ProviderReference: sess.ID,
		UserID:            userID,
		PaymentID:         paymentID,
	}, nil
}

// sessionUserID prefers client_reference_id and falls back to metadata.
// Malformed values yield uuid.Nil, which skips the owner check.
func sessionUserID(sess *stripe.CheckoutSession) uuid.UUID {
	raw := sess.ClientReferenceID
	if raw == "" {
		raw = sess.Metadata[MetadataUserID]
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}

var _ billing.PaymentGateway = (*StripeGateway)(nil)
