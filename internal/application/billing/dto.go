package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// CheckoutResult is returned once a checkout session is open and its pending payment recorded
type CheckoutResult struct {
	URL               string          `json:"url"`
	PaymentID         uuid.UUID       `json:"payment_id"`
	Tier              string          `json:"tier"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	CreditsAdded      int64           `json:"credits_added"`
	ProviderReference string          `json:"provider_reference"`
}

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Outcome   WebhookOutcome `json:"outcome"`
	PaymentID *uuid.UUID     `json:"payment_id,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// UsageStatsDTO summarizes usage for the current billing period
type UsageStatsDTO struct {
	CurrentUsage     int64     `json:"current_usage"`
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
	Period           string    `json:"period"`
	RemainingCredits int64     `json:"remaining_credits"`
	Tier             string    `json:"tier,omitempty"`
	FreeAllowance    int64     `json:"free_allowance"`
}

// PaymentDTO is the external view of a Payment
type PaymentDTO struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	Tier              string          `json:"tier"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	CreditsAdded      int64           `json:"credits_added"`
	ProviderReference string          `json:"provider_reference,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	SettledAt         *time.Time      `json:"settled_at,omitempty"`
}

// PaymentListDTO is one page of payment history
type PaymentListDTO struct {
	Items    []PaymentDTO `json:"items"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// CreditBalanceDTO is the user's purchased entitlement
type CreditBalanceDTO struct {
	UserID    uuid.UUID  `json:"user_id"`
	Credits   int64      `json:"credits"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TierDTO is one entry of the public price list
type TierDTO struct {
	Name      string          `json:"name"`
	MinUsage  int64           `json:"min_usage"`
	MaxUsage  *int64          `json:"max_usage"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	PlanID    string          `json:"plan_id"`
	SelfServe bool            `json:"self_serve"`
	Credits   int64           `json:"credits"`
}

// ToPaymentDTO converts a domain payment
func ToPaymentDTO(p *billing.Payment) PaymentDTO {
	return PaymentDTO{
		ID:                p.ID,
		UserID:            p.UserID,
		Tier:              p.TierName,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Status:            string(p.Status),
		CreditsAdded:      p.CreditsAdded,
		ProviderReference: p.ProviderReference,
		CreatedAt:         p.CreatedAt,
		SettledAt:         p.SettledAt,
	}
}
