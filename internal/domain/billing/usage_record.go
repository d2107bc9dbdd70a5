package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/shared"
)

// UsageRecord is one metered usage sample written by the external meter.
// Records are immutable; corrections are new records.
type UsageRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Quantity   int64
	RecordedAt time.Time
}

// NewUsageRecord creates a usage record with validation
func NewUsageRecord(userID uuid.UUID, quantity int64, recordedAt time.Time) (*UsageRecord, error) {
	if userID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_USER", "User ID cannot be empty")
	}
	if quantity < 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity cannot be negative")
	}
	if recordedAt.IsZero() {
		return nil, shared.NewDomainError("INVALID_RECORDED_AT", "Recorded time is required")
	}
	return &UsageRecord{
		ID:         uuid.New(),
		UserID:     userID,
		Quantity:   quantity,
		RecordedAt: recordedAt.UTC(),
	}, nil
}
