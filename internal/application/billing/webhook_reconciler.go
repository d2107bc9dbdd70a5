package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// WebhookReconciler settles pending payments from provider webhook deliveries.
// Deliveries are at-least-once; every path is safe to repeat.
type WebhookReconciler struct {
	gateway     billing.PaymentGateway
	ledger      billing.PaymentLedger
	notifier    billing.EntitlementNotifier
	publisher   shared.EventPublisher
	deliveries  shared.IdempotencyStore
	deliveryTTL time.Duration
	recorder    Recorder
	now         func() time.Time
	logger      *zap.Logger
}

// WebhookReconcilerConfig contains configuration for WebhookReconciler
type WebhookReconcilerConfig struct {
	Gateway  billing.PaymentGateway
	Ledger   billing.PaymentLedger
	Notifier billing.EntitlementNotifier
	// Publisher receives PaymentFailed events. Optional.
	Publisher shared.EventPublisher
	// Deliveries short-circuits redelivered events. Optional; the ledger's
	// conditional write is what guarantees a single transition.
	Deliveries  shared.IdempotencyStore
	DeliveryTTL time.Duration
	Recorder    Recorder
	Clock       func() time.Time
	Logger      *zap.Logger
}

// NewWebhookReconciler creates a new WebhookReconciler
func NewWebhookReconciler(cfg WebhookReconcilerConfig) *WebhookReconciler {
	r := &WebhookReconciler{
		gateway:     cfg.Gateway,
		ledger:      cfg.Ledger,
		notifier:    cfg.Notifier,
		publisher:   cfg.Publisher,
		deliveries:  cfg.Deliveries,
		deliveryTTL: cfg.DeliveryTTL,
		recorder:    cfg.Recorder,
		now:         cfg.Clock,
		logger:      cfg.Logger,
	}
	if r.deliveryTTL <= 0 {
		r.deliveryTTL = shared.DefaultIdempotencyTTL
	}
	if r.recorder == nil {
		r.recorder = nopRecorder{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// ProcessWebhook verifies a delivery and applies it to the ledger.
//
// A nil result means the delivery was rejected before the ledger was touched
// (invalid signature). A non-nil result with an error means the delivery was
// authentic but could not be applied; the error's RejectionKind tells the
// caller whether a redelivery can help (PERSISTENCE_ERROR) or not
// (RECONCILIATION_MISS).
func (r *WebhookReconciler) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := r.gateway.VerifyAndParse(payload, signature)
	if err != nil {
		r.logger.Warn("Rejected webhook delivery", zap.Error(err))
		r.recorder.WebhookOutcome(ctx, OutcomeInvalidSignature)
		if errors.Is(err, billing.ErrInvalidSignature) {
			return nil, err
		}
		return nil, billing.Reject(billing.RejectInvalidSignature, "webhook signature verification failed", err)
	}

	r.recorder.WebhookReceived(ctx, event.EventType())
	result := &WebhookResult{
		EventID:   event.EventID(),
		EventType: event.EventType(),
	}

	if r.alreadyDelivered(ctx, event.EventID()) {
		result.Outcome = OutcomeDuplicate
		result.Message = "Event already processed"
		r.recorder.WebhookOutcome(ctx, result.Outcome)
		return result, nil
	}

	switch ev := event.(type) {
	case billing.CheckoutCompleted:
		err = r.settle(ctx, result, ev.ProviderReference, ev.UserID, billing.PaymentStatusCompleted, "")
	case billing.CheckoutFailed:
		err = r.settle(ctx, result, ev.ProviderReference, ev.UserID, billing.PaymentStatusFailed, ev.Reason)
	default:
		result.Outcome = OutcomeIgnored
		result.Message = "Event type not handled"
		r.logger.Debug("Ignoring webhook event",
			zap.String("event_id", event.EventID()),
			zap.String("event_type", event.EventType()))
	}

	r.recorder.WebhookOutcome(ctx, result.Outcome)
	if err != nil {
		return result, err
	}

	r.rememberDelivery(ctx, event.EventID())
	return result, nil
}

// settle moves the payment behind ref from pending to target at most once.
func (r *WebhookReconciler) settle(ctx context.Context, result *WebhookResult, ref string, userID uuid.UUID, target billing.PaymentStatus, reason string) error {
	log := r.logger.With(
		zap.String("event_id", result.EventID),
		zap.String("event_type", result.EventType),
		zap.String("provider_reference", ref),
	)

	payment, err := r.ledger.FindByProviderReference(ctx, ref)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			log.Warn("No payment matches provider reference")
			result.Outcome = OutcomeMiss
			result.Message = "No pending payment for provider reference"
			return billing.Reject(billing.RejectReconciliationMiss, "no payment for provider reference "+ref, nil)
		}
		log.Error("Failed to look up payment", zap.Error(err))
		result.Outcome = OutcomeError
		return billing.Reject(billing.RejectPersistence, "failed to look up payment", err)
	}

	paymentID := payment.ID
	result.PaymentID = &paymentID
	log = log.With(zap.String("payment_id", payment.ID.String()))

	if userID != uuid.Nil && userID != payment.UserID {
		log.Warn("Webhook user does not match payment owner",
			zap.String("event_user_id", userID.String()),
			zap.String("payment_user_id", payment.UserID.String()))
		result.Outcome = OutcomeMiss
		result.Message = "Payment owner mismatch"
		return billing.Reject(billing.RejectReconciliationMiss, "payment owner does not match event", nil)
	}

	if payment.Status.IsTerminal() {
		log.Info("Payment already settled, ignoring delivery", zap.String("status", string(payment.Status)))
		result.Outcome = OutcomeDuplicate
		result.Message = "Payment already " + string(payment.Status)
		return nil
	}

	now := r.now()
	updated, err := r.ledger.UpdateStatusIf(ctx, payment.ID, billing.PaymentStatusPending, target, now)
	if err != nil {
		log.Error("Failed to update payment status", zap.Error(err))
		result.Outcome = OutcomeError
		return billing.Reject(billing.RejectPersistence, "failed to update payment status", err)
	}
	if !updated {
		// a concurrent delivery won the conditional write
		log.Info("Payment settled concurrently, ignoring delivery")
		result.Outcome = OutcomeDuplicate
		result.Message = "Payment settled by a concurrent delivery"
		return nil
	}

	if err := payment.Settle(target, now); err != nil {
		return err
	}

	if target == billing.PaymentStatusCompleted {
		result.Outcome = OutcomeCompleted
		result.Message = "Payment completed"
		log.Info("Payment completed", zap.Int64("credits_added", payment.CreditsAdded))
		if r.notifier != nil {
			if err := r.notifier.OnPaymentCompleted(ctx, payment); err != nil {
				log.Error("Entitlement notification failed", zap.Error(err))
			}
		}
		return nil
	}

	result.Outcome = OutcomeFailed
	result.Message = "Payment failed"
	log.Info("Payment failed", zap.String("reason", reason))
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, billing.NewPaymentFailedEvent(payment, reason, now)); err != nil {
			log.Error("Failed to publish payment failed event", zap.Error(err))
		}
	}
	return nil
}

func (r *WebhookReconciler) alreadyDelivered(ctx context.Context, eventID string) bool {
	if r.deliveries == nil || eventID == "" {
		return false
	}
	seen, err := r.deliveries.IsProcessed(ctx, eventID)
	if err != nil {
		r.logger.Warn("Delivery store lookup failed, falling back to ledger state",
			zap.String("event_id", eventID), zap.Error(err))
		return false
	}
	return seen
}

func (r *WebhookReconciler) rememberDelivery(ctx context.Context, eventID string) {
	if r.deliveries == nil || eventID == "" {
		return
	}
	if _, err := r.deliveries.MarkProcessed(ctx, eventID, r.deliveryTTL); err != nil {
		r.logger.Warn("Failed to record delivery", zap.String("event_id", eventID), zap.Error(err))
	}
}
