package telemetry

import (
	"context"
	"time"

	appbilling "github.com/meterpay/backend/internal/application/billing"
	"github.com/meterpay/backend/internal/domain/billing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const billingMeterName = "github.com/meterpay/backend/billing"

// Metric attribute keys.
var (
	attrTier      = attribute.Key("tier")
	attrReason    = attribute.Key("reason")
	attrEventType = attribute.Key("event_type")
	attrOutcome   = attribute.Key("outcome")
	attrResult    = attribute.Key("result")
)

// BillingMetrics records checkout and webhook measurements.
type BillingMetrics struct {
	checkoutCreated  *Counter
	checkoutRejected *Counter
	checkoutDuration *Histogram
	webhookReceived  *Counter
	webhookOutcome   *Counter
}

// NewBillingMetrics registers the billing instruments on a meter from mp.
func NewBillingMetrics(mp metric.MeterProvider) (*BillingMetrics, error) {
	meter := mp.Meter(billingMeterName)

	var (
		m   BillingMetrics
		err error
	)
	if m.checkoutCreated, err = NewCounter(meter, "billing.checkout.created", "Checkout sessions opened", "{session}"); err != nil {
		return nil, err
	}
	if m.checkoutRejected, err = NewCounter(meter, "billing.checkout.rejected", "Checkout requests rejected", "{request}"); err != nil {
		return nil, err
	}
	if m.checkoutDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "billing.checkout.duration",
		Description: "Time to resolve a tier and open a checkout session",
		Unit:        "s",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}); err != nil {
		return nil, err
	}
	if m.webhookReceived, err = NewCounter(meter, "billing.webhook.received", "Verified webhook events by type", "{event}"); err != nil {
		return nil, err
	}
	if m.webhookOutcome, err = NewCounter(meter, "billing.webhook.outcome", "Webhook reconciliation outcomes", "{event}"); err != nil {
		return nil, err
	}
	return &m, nil
}

// CheckoutCreated implements appbilling.Recorder
func (m *BillingMetrics) CheckoutCreated(ctx context.Context, tier string, elapsed time.Duration) {
	m.checkoutCreated.Inc(ctx, attrTier.String(tier))
	m.checkoutDuration.RecordDuration(ctx, elapsed, attrResult.String("created"))
}

// CheckoutRejected implements appbilling.Recorder
func (m *BillingMetrics) CheckoutRejected(ctx context.Context, kind billing.RejectionKind, elapsed time.Duration) {
	m.checkoutRejected.Inc(ctx, attrReason.String(string(kind)))
	m.checkoutDuration.RecordDuration(ctx, elapsed, attrResult.String("rejected"))
}

// WebhookReceived implements appbilling.Recorder
func (m *BillingMetrics) WebhookReceived(ctx context.Context, eventType string) {
	m.webhookReceived.Inc(ctx, attrEventType.String(eventType))
}

// WebhookOutcome implements appbilling.Recorder
func (m *BillingMetrics) WebhookOutcome(ctx context.Context, outcome appbilling.WebhookOutcome) {
	m.webhookOutcome.Inc(ctx, attrOutcome.String(string(outcome)))
}

var _ appbilling.Recorder = (*BillingMetrics)(nil)
