package billing

import (
	"time"

	"github.com/google/uuid"
)

// CreditBalance is the entitlement a user has bought
type CreditBalance struct {
	UserID    uuid.UUID
	Credits   int64
	UpdatedAt time.Time
}

// Remaining is the balance left after usage, floored at zero
func (b CreditBalance) Remaining(usage int64) int64 {
	if usage >= b.Credits {
		return 0
	}
	return b.Credits - usage
}
