package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckoutSessionRequest describes the hosted checkout to open with the provider
type CheckoutSessionRequest struct {
	PlanID        string
	Amount        decimal.Decimal
	Currency      string
	SuccessURL    string
	CancelURL     string
	CorrelationID string // our payment id
	UserID        uuid.UUID
	TierName      string
}

// CheckoutSession is the provider's answer to a session request
type CheckoutSession struct {
	SessionURL        string
	ProviderReference string
}

// PaymentGateway is the payment provider as seen by the billing core
type PaymentGateway interface {
	// CreateSession opens a hosted checkout session
	CreateSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
	// VerifyAndParse authenticates a webhook delivery and parses it once.
	// It returns ErrInvalidSignature (possibly wrapped) when verification fails.
	VerifyAndParse(payload []byte, signature string) (ProviderEvent, error)
}

// ProviderEvent is a verified provider notification. The set of
// implementations is closed: CheckoutCompleted, CheckoutFailed, OtherEvent.
type ProviderEvent interface {
	EventID() string
	EventType() string
	providerEvent()
}

// CheckoutCompleted reports that the customer paid for a checkout session
type CheckoutCompleted struct {
	ID                string
	Type              string
	ProviderReference string
	UserID            uuid.UUID // from client_reference_id, Nil if absent or malformed
	PaymentID         uuid.UUID // from session metadata, Nil if absent
}

func (e CheckoutCompleted) EventID() string   { return e.ID }
func (e CheckoutCompleted) EventType() string { return e.Type }
func (CheckoutCompleted) providerEvent()      {}

// CheckoutFailed reports that a checkout session will never be paid
type CheckoutFailed struct {
	ID                string
	Type              string
	ProviderReference string
	UserID            uuid.UUID
	Reason            string
}

func (e CheckoutFailed) EventID() string   { return e.ID }
func (e CheckoutFailed) EventType() string { return e.Type }
func (CheckoutFailed) providerEvent()      {}

// OtherEvent is any notification the billing core does not act on
type OtherEvent struct {
	ID   string
	Type string
}

func (e OtherEvent) EventID() string   { return e.ID }
func (e OtherEvent) EventType() string { return e.Type }
func (OtherEvent) providerEvent()      {}
