package config

import (
	"fmt"

	"github.com/meterpay/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// TierTable builds the validated price list. Overlaps, gaps and bad prices
// are reported here so a broken config fails at startup.
func (b BillingConfig) TierTable() (*billing.TierTable, error) {
	tiers := make([]billing.UsageTier, 0, len(b.Tiers))
	for _, tc := range b.Tiers {
		price, err := decimal.NewFromString(tc.Price)
		if err != nil {
			return nil, fmt.Errorf("billing.tiers[%s]: invalid price %q: %w", tc.Name, tc.Price, err)
		}
		maxUsage := tc.MaxUsage
		if maxUsage == 0 {
			maxUsage = billing.Unbounded
		}
		tiers = append(tiers, billing.UsageTier{
			Name:           tc.Name,
			MinUsage:       tc.MinUsage,
			MaxUsage:       maxUsage,
			Price:          price,
			Currency:       tc.Currency,
			ProviderPlanID: tc.ProviderPlanID,
		})
	}

	var opts []billing.TierTableOption
	if b.CustomQuoteTier != "" {
		opts = append(opts, billing.WithCustomQuoteTier(b.CustomQuoteTier))
	}
	if b.UnboundedCreditGrant > 0 {
		opts = append(opts, billing.WithUnboundedCreditGrant(b.UnboundedCreditGrant))
	}

	table, err := billing.NewTierTable(tiers, opts...)
	if err != nil {
		return nil, fmt.Errorf("billing.tiers: %w", err)
	}
	return table, nil
}
