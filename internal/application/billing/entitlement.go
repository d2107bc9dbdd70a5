package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// EventBusEntitlementNotifier publishes PaymentCompleted on the event bus so
// entitlement handlers can react without the reconciler knowing about them.
type EventBusEntitlementNotifier struct {
	publisher shared.EventPublisher
	now       func() time.Time
}

// NewEventBusEntitlementNotifier creates a notifier publishing to publisher
func NewEventBusEntitlementNotifier(publisher shared.EventPublisher) *EventBusEntitlementNotifier {
	return &EventBusEntitlementNotifier{publisher: publisher, now: time.Now}
}

// OnPaymentCompleted implements billing.EntitlementNotifier
func (n *EventBusEntitlementNotifier) OnPaymentCompleted(ctx context.Context, payment *billing.Payment) error {
	return n.publisher.Publish(ctx, billing.NewPaymentCompletedEvent(payment, n.now()))
}

var _ billing.EntitlementNotifier = (*EventBusEntitlementNotifier)(nil)

// CreditGrantHandler applies purchased credits when a payment completes.
// Grants are keyed by payment, so a replayed event cannot credit twice.
type CreditGrantHandler struct {
	credits billing.CreditBalanceRepository
	logger  *zap.Logger
}

// NewCreditGrantHandler creates a new CreditGrantHandler
func NewCreditGrantHandler(credits billing.CreditBalanceRepository, logger *zap.Logger) *CreditGrantHandler {
	return &CreditGrantHandler{credits: credits, logger: logger}
}

// EventTypes implements shared.EventHandler
func (h *CreditGrantHandler) EventTypes() []string {
	return []string{billing.EventTypePaymentCompleted}
}

// Handle implements shared.EventHandler
func (h *CreditGrantHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	completed, ok := event.(*billing.PaymentCompletedEvent)
	if !ok {
		return fmt.Errorf("credit grant: unexpected event %T", event)
	}

	granted, err := h.credits.Grant(ctx, completed.UserID, completed.PaymentID, completed.CreditsAdded, completed.OccurredAt())
	if err != nil {
		return fmt.Errorf("credit grant for payment %s: %w", completed.PaymentID, err)
	}
	if !granted {
		h.logger.Info("Credits already granted for payment",
			zap.String("payment_id", completed.PaymentID.String()))
		return nil
	}

	h.logger.Info("Credits granted",
		zap.String("user_id", completed.UserID.String()),
		zap.String("payment_id", completed.PaymentID.String()),
		zap.Int64("credits", completed.CreditsAdded))
	return nil
}

var _ shared.EventHandler = (*CreditGrantHandler)(nil)
