package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/billing"
	"go.uber.org/zap"
)

const defaultLedgerWriteTimeout = 5 * time.Second

// CheckoutService turns a user's current usage into a provider checkout session
type CheckoutService struct {
	tiers        *billing.TierTable
	usage        billing.UsageAggregator
	ledger       billing.PaymentLedger
	gateway      billing.PaymentGateway
	successURL   string
	cancelURL    string
	writeTimeout time.Duration
	recorder     Recorder
	now          func() time.Time
	logger       *zap.Logger
}

// CheckoutServiceConfig contains configuration for CheckoutService
type CheckoutServiceConfig struct {
	Tiers      *billing.TierTable
	Usage      billing.UsageAggregator
	Ledger     billing.PaymentLedger
	Gateway    billing.PaymentGateway
	SuccessURL string
	CancelURL  string
	// LedgerWriteTimeout bounds the pending-payment write, which runs even if
	// the caller's context is cancelled after the session was opened.
	LedgerWriteTimeout time.Duration
	Recorder           Recorder
	Clock              func() time.Time
	Logger             *zap.Logger
}

// NewCheckoutService creates a new CheckoutService
func NewCheckoutService(cfg CheckoutServiceConfig) *CheckoutService {
	s := &CheckoutService{
		tiers:        cfg.Tiers,
		usage:        cfg.Usage,
		ledger:       cfg.Ledger,
		gateway:      cfg.Gateway,
		successURL:   cfg.SuccessURL,
		cancelURL:    cfg.CancelURL,
		writeTimeout: cfg.LedgerWriteTimeout,
		recorder:     cfg.Recorder,
		now:          cfg.Clock,
		logger:       cfg.Logger,
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = defaultLedgerWriteTimeout
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreateCheckout resolves the user's tier and opens a checkout session for it.
// A pending payment carrying the provider reference is durably recorded
// before the redirect URL is returned.
func (s *CheckoutService) CreateCheckout(ctx context.Context, userID uuid.UUID) (*CheckoutResult, error) {
	start := s.now()

	result, err := s.createCheckout(ctx, userID)
	if err != nil {
		if kind, ok := billing.RejectionKindOf(err); ok {
			s.recorder.CheckoutRejected(ctx, kind, s.now().Sub(start))
		}
		return nil, err
	}

	s.recorder.CheckoutCreated(ctx, result.Tier, s.now().Sub(start))
	return result, nil
}

func (s *CheckoutService) createCheckout(ctx context.Context, userID uuid.UUID) (*CheckoutResult, error) {
	now := s.now()
	period := billing.MonthlyPeriod(now)

	usage, err := s.usage.GetUsage(ctx, userID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage for period %s: %w", period.Key(), err)
	}

	tier, ok, err := s.tiers.Resolve(usage)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Info("Checkout rejected, usage within free allowance",
			zap.String("user_id", userID.String()),
			zap.Int64("usage", usage))
		return nil, billing.Reject(billing.RejectTierNotEligible,
			fmt.Sprintf("usage %d is within the free allowance (below %d)", usage, s.tiers.FreeAllowance()), nil)
	}
	if !s.tiers.IsSelfServe(tier) {
		s.logger.Info("Checkout rejected, tier requires custom quote",
			zap.String("user_id", userID.String()),
			zap.String("tier", tier.Name),
			zap.Int64("usage", usage))
		return nil, billing.Reject(billing.RejectRequiresCustomQuote,
			fmt.Sprintf("tier %s requires a custom quote", tier.Name), nil)
	}

	payment, err := billing.NewPendingPayment(userID, tier, s.tiers.CreditsFor(tier), now)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateSession(ctx, billing.CheckoutSessionRequest{
		PlanID:        tier.ProviderPlanID,
		Amount:        tier.Price,
		Currency:      tier.Currency,
		SuccessURL:    s.successURL,
		CancelURL:     s.cancelURL,
		CorrelationID: payment.ID.String(),
		UserID:        userID,
		TierName:      tier.Name,
	})
	if err != nil {
		s.logger.Error("Failed to create checkout session",
			zap.String("user_id", userID.String()),
			zap.String("tier", tier.Name),
			zap.Error(err))
		return nil, billing.Reject(billing.RejectProvider, "failed to create checkout session", err)
	}
	if session == nil || session.SessionURL == "" {
		return nil, billing.Reject(billing.RejectProvider, "provider returned a session without a redirect URL", nil)
	}
	if err := payment.AttachProviderReference(session.ProviderReference, s.now()); err != nil {
		return nil, billing.Reject(billing.RejectProvider, "provider returned a session without a reference", err)
	}

	// Once the session exists the record must be written even if the caller has gone away.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	if err := s.ledger.Put(writeCtx, payment); err != nil {
		s.logger.Error("Pending payment not recorded, provider session is orphaned",
			zap.String("user_id", userID.String()),
			zap.String("payment_id", payment.ID.String()),
			zap.String("provider_reference", session.ProviderReference),
			zap.Error(err))
		return nil, billing.Reject(billing.RejectPersistence, "failed to record pending payment", err)
	}

	s.logger.Info("Checkout session created",
		zap.String("user_id", userID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("tier", tier.Name),
		zap.Int64("usage", usage),
		zap.String("provider_reference", session.ProviderReference))

	return &CheckoutResult{
		URL:               session.SessionURL,
		PaymentID:         payment.ID,
		Tier:              tier.Name,
		Amount:            payment.Amount,
		Currency:          payment.Currency,
		CreditsAdded:      payment.CreditsAdded,
		ProviderReference: payment.ProviderReference,
	}, nil
}
