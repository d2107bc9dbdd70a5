package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/meterpay/backend/internal/domain/shared"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxPageSize       = 100
	defaultStaleAfter = 30 * time.Minute
	maxStaleListing   = 500
)

// QueryService serves read-only billing views: usage, history, credits, tiers.
type QueryService struct {
	tiers      *billing.TierTable
	usage      billing.UsageAggregator
	ledger     billing.PaymentLedger
	credits    billing.CreditBalanceRepository
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// QueryServiceConfig contains configuration for QueryService
type QueryServiceConfig struct {
	Tiers      *billing.TierTable
	Usage      billing.UsageAggregator
	Ledger     billing.PaymentLedger
	Credits    billing.CreditBalanceRepository
	StaleAfter time.Duration
	Clock      func() time.Time
	Logger     *zap.Logger
}

// NewQueryService creates a new QueryService
func NewQueryService(cfg QueryServiceConfig) *QueryService {
	s := &QueryService{
		tiers:      cfg.Tiers,
		usage:      cfg.Usage,
		ledger:     cfg.Ledger,
		credits:    cfg.Credits,
		staleAfter: cfg.StaleAfter,
		now:        cfg.Clock,
		logger:     cfg.Logger,
	}
	if s.staleAfter <= 0 {
		s.staleAfter = defaultStaleAfter
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// GetUsageStats returns usage, resolved tier and remaining credits for the current period
func (s *QueryService) GetUsageStats(ctx context.Context, userID uuid.UUID) (*UsageStatsDTO, error) {
	period := billing.MonthlyPeriod(s.now())

	var (
		usage   int64
		balance *billing.CreditBalance
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		usage, err = s.usage.GetUsage(gctx, userID, period)
		return err
	})
	g.Go(func() error {
		var err error
		balance, err = s.credits.Get(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load usage stats: %w", err)
	}

	tier, ok, err := s.tiers.Resolve(usage)
	if err != nil {
		return nil, err
	}

	stats := &UsageStatsDTO{
		CurrentUsage:     usage,
		PeriodStart:      period.Start,
		PeriodEnd:        period.End,
		Period:           period.Key(),
		RemainingCredits: balance.Remaining(usage),
		FreeAllowance:    s.tiers.FreeAllowance(),
	}
	if ok {
		stats.Tier = tier.Name
	}
	return stats, nil
}

// ListPayments returns the user's payment history, newest first
func (s *QueryService) ListPayments(ctx context.Context, userID uuid.UUID, page, pageSize int) (*PaymentListDTO, error) {
	if page < 1 {
		return nil, shared.ErrInvalidInput.WithCause(fmt.Errorf("page must be at least 1"))
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return nil, shared.ErrInvalidInput.WithCause(fmt.Errorf("page_size must be between 1 and %d", maxPageSize))
	}

	payments, total, err := s.ledger.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	items := make([]PaymentDTO, 0, len(payments))
	for i := range payments {
		items = append(items, ToPaymentDTO(&payments[i]))
	}
	return &PaymentListDTO{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// GetCreditBalance returns the user's purchased credits
func (s *QueryService) GetCreditBalance(ctx context.Context, userID uuid.UUID) (*CreditBalanceDTO, error) {
	balance, err := s.credits.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credit balance: %w", err)
	}
	dto := &CreditBalanceDTO{UserID: userID, Credits: balance.Credits}
	if !balance.UpdatedAt.IsZero() {
		updated := balance.UpdatedAt
		dto.UpdatedAt = &updated
	}
	return dto, nil
}

// ListTiers returns the public price list
func (s *QueryService) ListTiers() []TierDTO {
	tiers := s.tiers.Tiers()
	out := make([]TierDTO, 0, len(tiers))
	for _, t := range tiers {
		dto := TierDTO{
			Name:      t.Name,
			MinUsage:  t.MinUsage,
			Price:     t.Price,
			Currency:  t.Currency,
			PlanID:    t.ProviderPlanID,
			SelfServe: s.tiers.IsSelfServe(t),
			Credits:   s.tiers.CreditsFor(t),
		}
		if !t.IsUnbounded() {
			maxUsage := t.MaxUsage
			dto.MaxUsage = &maxUsage
		}
		out = append(out, dto)
	}
	return out
}

// ListStalePending returns payments still pending after olderThan, for an
// operator or sweep to resolve against the provider. olderThan <= 0 uses the
// configured default.
func (s *QueryService) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]PaymentDTO, error) {
	if olderThan <= 0 {
		olderThan = s.staleAfter
	}
	if limit <= 0 || limit > maxStaleListing {
		limit = maxStaleListing
	}

	cutoff := s.now().Add(-olderThan)
	payments, err := s.ledger.ListPendingBefore(ctx, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending payments: %w", err)
	}

	out := make([]PaymentDTO, 0, len(payments))
	for i := range payments {
		out = append(out, ToPaymentDTO(&payments[i]))
	}
	if len(out) > 0 {
		s.logger.Info("Stale pending payments found",
			zap.Int("count", len(out)),
			zap.Duration("older_than", olderThan))
	}
	return out, nil
}
