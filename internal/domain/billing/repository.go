package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentLedger persists Payment records
type PaymentLedger interface {
	// Put creates a payment. Returns shared.ErrAlreadyExists if the ID is taken.
	Put(ctx context.Context, payment *Payment) error
	// FindByID returns shared.ErrNotFound if absent
	FindByID(ctx context.Context, paymentID uuid.UUID) (*Payment, error)
	// FindByProviderReference returns shared.ErrNotFound if absent
	FindByProviderReference(ctx context.Context, ref string) (*Payment, error)
	// UpdateStatusIf moves paymentID from expected to next. It returns false,
	// without error, when the current status is not expected.
	UpdateStatusIf(ctx context.Context, paymentID uuid.UUID, expected, next PaymentStatus, at time.Time) (bool, error)
	// ListByUser returns the user's payments newest first, and the total count
	ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Payment, int64, error)
	// ListPendingBefore returns pending payments created before cutoff, oldest first
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Payment, error)
}

// UsageAggregator supplies total metered usage for a user and period
type UsageAggregator interface {
	GetUsage(ctx context.Context, userID uuid.UUID, period BillingPeriod) (int64, error)
}

// UsageRecordRepository stores raw usage samples
type UsageRecordRepository interface {
	UsageAggregator
	Save(ctx context.Context, record *UsageRecord) error
}

// CreditBalanceRepository stores purchased entitlement
type CreditBalanceRepository interface {
	// Grant adds credits for paymentID. A second grant for the same payment is
	// a no-op and returns false.
	Grant(ctx context.Context, userID, paymentID uuid.UUID, credits int64, at time.Time) (bool, error)
	// Get returns a zero balance when the user has none
	Get(ctx context.Context, userID uuid.UUID) (*CreditBalance, error)
}

// EntitlementNotifier is told about every payment that completes, once.
type EntitlementNotifier interface {
	OnPaymentCompleted(ctx context.Context, payment *Payment) error
}
