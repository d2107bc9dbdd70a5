package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypePaymentCompleted = "billing.payment.completed"
	EventTypePaymentFailed    = "billing.payment.failed"

	AggregateTypePayment = "Payment"
)

// PaymentCompletedEvent is published once per payment that reaches completed
type PaymentCompletedEvent struct {
	shared.BaseDomainEvent
	PaymentID         uuid.UUID       `json:"payment_id"`
	UserID            uuid.UUID       `json:"user_id"`
	CreditsAdded      int64           `json:"credits_added"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	ProviderReference string          `json:"provider_reference"`
}

// NewPaymentCompletedEvent builds the event for a settled payment
func NewPaymentCompletedEvent(p *Payment, at time.Time) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypePaymentCompleted, AggregateTypePayment, p.ID, at),
		PaymentID:         p.ID,
		UserID:            p.UserID,
		CreditsAdded:      p.CreditsAdded,
		Amount:            p.Amount,
		Currency:          p.Currency,
		ProviderReference: p.ProviderReference,
	}
}

// PaymentFailedEvent is published once per payment that reaches failed
type PaymentFailedEvent struct {
	shared.BaseDomainEvent
	PaymentID         uuid.UUID `json:"payment_id"`
	UserID            uuid.UUID `json:"user_id"`
	ProviderReference string    `json:"provider_reference"`
	Reason            string    `json:"reason"`
}

// NewPaymentFailedEvent builds the event for a failed payment
func NewPaymentFailedEvent(p *Payment, reason string, at time.Time) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypePaymentFailed, AggregateTypePayment, p.ID, at),
		PaymentID:         p.ID,
		UserID:            p.UserID,
		ProviderReference: p.ProviderReference,
		Reason:            reason,
	}
}
