package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/domain/shared"
	"github.com/meterpay/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/require"
)

// DefaultTiers builds the standard price list used by the service.
func DefaultTiers(t *testing.T) *billing.TierTable {
	t.Helper()

	table, err := config.BillingConfig{
		Tiers:           config.DefaultTierConfigs(),
		CustomQuoteTier: "Enterprise",
	}.TierTable()
	require.NoError(t, err)
	return table
}

// FakeGateway is an in-memory billing.PaymentGateway. Sessions get
// sequential references; deliveries are registered per signature.
type FakeGateway struct {
	mu         sync.Mutex
	requests   []billing.CheckoutSessionRequest
	events     map[string]billing.ProviderEvent
	sessionErr error
	seq        int
}

// NewFakeGateway creates an empty gateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{events: make(map[string]billing.ProviderEvent)}
}

// FailSessions makes every following CreateSession return err.
func (g *FakeGateway) FailSessions(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionErr = err
}

// CreateSession implements billing.PaymentGateway
func (g *FakeGateway) CreateSession(_ context.Context, req billing.CheckoutSessionRequest) (*billing.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, req)
	if g.sessionErr != nil {
		return nil, g.sessionErr
	}
	g.seq++
	ref := fmt.Sprintf("cs_test_%04d", g.seq)
	return &billing.CheckoutSession{
		SessionURL:        "https://checkout.example.test/pay/" + ref,
		ProviderReference: ref,
	}, nil
}

// Deliver registers ev so that a payload signed with signature parses to it.
func (g *FakeGateway) Deliver(signature string, ev billing.ProviderEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[signature] = ev
}

// VerifyAndParse implements billing.PaymentGateway. Unknown signatures fail
// verification.
func (g *FakeGateway) VerifyAndParse(_ []byte, signature string) (billing.ProviderEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ev, ok := g.events[signature]
	if !ok {
		return nil, billing.ErrInvalidSignature
	}
	return ev, nil
}

// Requests returns a copy of every session request seen so far.
func (g *FakeGateway) Requests() []billing.CheckoutSessionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]billing.CheckoutSessionRequest(nil), g.requests...)
}

// StaticUsage is a billing.UsageAggregator with fixed per-user totals.
type StaticUsage map[uuid.UUID]int64

// GetUsage implements billing.UsageAggregator
func (u StaticUsage) GetUsage(_ context.Context, userID uuid.UUID, _ billing.BillingPeriod) (int64, error) {
	return u[userID], nil
}

// RecordingHandler is a shared.EventHandler that keeps what it receives.
type RecordingHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
}

// NewRecordingHandler subscribes to eventTypes.
func NewRecordingHandler(eventTypes ...string) *RecordingHandler {
	return &RecordingHandler{eventTypes: eventTypes}
}

// EventTypes implements shared.EventHandler
func (h *RecordingHandler) EventTypes() []string {
	return h.eventTypes
}

// Handle implements shared.EventHandler
func (h *RecordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

// SetError makes Handle return err after recording.
func (h *RecordingHandler) SetError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

// Handled returns a copy of the recorded events.
func (h *RecordingHandler) Handled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

var (
	_ billing.PaymentGateway  = (*FakeGateway)(nil)
	_ billing.UsageAggregator = StaticUsage(nil)
	_ shared.EventHandler     = (*RecordingHandler)(nil)
)
