package telemetry

import (
	"context"
	"testing"
	"time"

	appbilling "github.com/meterpay/backend/internal/application/billing"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestBillingMetrics(t *testing.T) (*BillingMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewBillingMetrics(provider)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, key attribute.Key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(key); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestBillingMetrics_Checkout(t *testing.T) {
	m, reader := newTestBillingMetrics(t)
	ctx := context.Background()

	m.CheckoutCreated(ctx, "Growth", 120*time.Millisecond)
	m.CheckoutCreated(ctx, "Growth", 80*time.Millisecond)
	m.CheckoutCreated(ctx, "Scale", 300*time.Millisecond)
	m.CheckoutRejected(ctx, billing.RejectTierNotEligible, 10*time.Millisecond)

	metrics := collect(t, reader)

	assert.Equal(t, int64(2), sumFor(t, metrics["billing.checkout.created"], attrTier, "Growth"))
	assert.Equal(t, int64(1), sumFor(t, metrics["billing.checkout.created"], attrTier, "Scale"))
	assert.Equal(t, int64(1), sumFor(t, metrics["billing.checkout.rejected"], attrReason, "TIER_NOT_ELIGIBLE"))

	hist, ok := metrics["billing.checkout.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	assert.Equal(t, uint64(4), total)
}

func TestBillingMetrics_Webhook(t *testing.T) {
	m, reader := newTestBillingMetrics(t)
	ctx := context.Background()

	m.WebhookReceived(ctx, "checkout.session.completed")
	m.WebhookOutcome(ctx, appbilling.OutcomeCompleted)
	m.WebhookOutcome(ctx, appbilling.OutcomeDuplicate)
	m.WebhookOutcome(ctx, appbilling.OutcomeDuplicate)

	metrics := collect(t, reader)

	assert.Equal(t, int64(1), sumFor(t, metrics["billing.webhook.received"], attrEventType, "checkout.session.completed"))
	assert.Equal(t, int64(1), sumFor(t, metrics["billing.webhook.outcome"], attrOutcome, "completed"))
	assert.Equal(t, int64(2), sumFor(t, metrics["billing.webhook.outcome"], attrOutcome, "duplicate"))
	assert.Equal(t, int64(0), sumFor(t, metrics["billing.webhook.outcome"], attrOutcome, "miss"))
}
