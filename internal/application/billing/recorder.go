package billing

import (
	"context"
	"time"

	"github.com/meterpay/backend/internal/domain/billing"
)

// WebhookOutcome classifies what a webhook delivery did
type WebhookOutcome string

const (
	OutcomeCompleted        WebhookOutcome = "completed"
	OutcomeFailed           WebhookOutcome = "failed"
	OutcomeDuplicate        WebhookOutcome = "duplicate"
	OutcomeIgnored          WebhookOutcome = "ignored"
	OutcomeMiss             WebhookOutcome = "miss"
	OutcomeInvalidSignature WebhookOutcome = "invalid_signature"
	OutcomeError            WebhookOutcome = "error"
)

// Recorder receives billing measurements. telemetry.BillingMetrics implements it.
type Recorder interface {
	CheckoutCreated(ctx context.Context, tier string, elapsed time.Duration)
	CheckoutRejected(ctx context.Context, kind billing.RejectionKind, elapsed time.Duration)
	WebhookReceived(ctx context.Context, eventType string)
	WebhookOutcome(ctx context.Context, outcome WebhookOutcome)
}

type nopRecorder struct{}

func (nopRecorder) CheckoutCreated(context.Context, string, time.Duration)                 {}
func (nopRecorder) CheckoutRejected(context.Context, billing.RejectionKind, time.Duration) {}
func (nopRecorder) WebhookReceived(context.Context, string)                                {}
func (nopRecorder) WebhookOutcome(context.Context, WebhookOutcome)                         {}
