package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a Payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// IsValid reports whether s is a known status
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// CanTransitionTo allows only pending -> completed and pending -> failed.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentStatusPending && next.IsTerminal()
}

// Payment is one billing transaction. It is created pending during checkout,
// settled once by webhook reconciliation, and never deleted.
type Payment struct {
	shared.BaseEntity
	UserID            uuid.UUID
	TierName          string
	Amount            decimal.Decimal
	Currency          string
	CreditsAdded      int64
	Status            PaymentStatus
	ProviderReference string
	SettledAt         *time.Time
}

// NewPendingPayment creates a pending payment for tier. The ID is generated
// up front so it can be handed to the provider as a correlation id.
func NewPendingPayment(userID uuid.UUID, tier UsageTier, credits int64, now time.Time) (*Payment, error) {
	if userID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_USER", "User ID cannot be empty")
	}
	if credits < 0 {
		return nil, shared.NewDomainError("INVALID_CREDITS", "Credits cannot be negative")
	}
	if tier.Price.IsNegative() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Amount cannot be negative")
	}

	return &Payment{
		BaseEntity:   shared.NewBaseEntityAt(now),
		UserID:       userID,
		TierName:     tier.Name,
		Amount:       tier.Price,
		Currency:     strings.ToUpper(tier.Currency),
		CreditsAdded: credits,
		Status:       PaymentStatusPending,
	}, nil
}

// AttachProviderReference records the provider's correlation id.
// It can only be set once, while the payment is pending.
func (p *Payment) AttachProviderReference(ref string, at time.Time) error {
	if strings.TrimSpace(ref) == "" {
		return shared.NewDomainError("INVALID_PROVIDER_REFERENCE", "Provider reference cannot be empty")
	}
	if p.Status != PaymentStatusPending {
		return shared.ErrInvalidState
	}
	if p.ProviderReference != "" && p.ProviderReference != ref {
		return shared.NewDomainError("PROVIDER_REFERENCE_SET", "Provider reference is already set")
	}
	p.ProviderReference = ref
	p.Touch(at)
	return nil
}

// Settle moves the payment to a terminal status in memory. Persistence must
// use a conditional write keyed on the pending status.
func (p *Payment) Settle(next PaymentStatus, at time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return shared.ErrInvalidState
	}
	p.Status = next
	p.SettledAt = &at
	p.Touch(at)
	return nil
}

// IsStalePending reports whether the payment has been pending for longer than after.
func (p *Payment) IsStalePending(now time.Time, after time.Duration) bool {
	return p.Status == PaymentStatusPending && now.Sub(p.CreatedAt) > after
}
