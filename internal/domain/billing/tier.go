package billing

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/meterpay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Unbounded marks a tier with no upper usage limit.
const Unbounded int64 = math.MaxInt64

// UsageTier is a priced band of usage covering [MinUsage, MaxUsage).
type UsageTier struct {
	Name           string
	MinUsage       int64
	MaxUsage       int64
	Price          decimal.Decimal
	Currency       string
	ProviderPlanID string
}

// IsUnbounded reports whether the tier has no upper limit
func (t UsageTier) IsUnbounded() bool {
	return t.MaxUsage == Unbounded
}

// Contains reports whether usage falls inside the tier's half-open range
func (t UsageTier) Contains(usage int64) bool {
	if usage < t.MinUsage {
		return false
	}
	return t.IsUnbounded() || usage < t.MaxUsage
}

// Span returns the width of the range. ok is false for unbounded tiers.
func (t UsageTier) Span() (span int64, ok bool) {
	if t.IsUnbounded() {
		return 0, false
	}
	return t.MaxUsage - t.MinUsage, true
}

// TierTable is an ordered, immutable partition of usage into tiers.
// Usage below the first tier's MinUsage is the free allowance and matches no tier.
type TierTable struct {
	tiers            []UsageTier
	customQuoteTier  string
	unboundedCredits int64
}

// TierTableOption configures a TierTable
type TierTableOption func(*TierTable)

// WithCustomQuoteTier names the tier that is never sold through self-serve checkout.
// Defaults to the unbounded top tier.
func WithCustomQuoteTier(name string) TierTableOption {
	return func(t *TierTable) {
		t.customQuoteTier = name
	}
}

// WithUnboundedCreditGrant sets the credits granted when an unbounded tier is purchased.
func WithUnboundedCreditGrant(credits int64) TierTableOption {
	return func(t *TierTable) {
		t.unboundedCredits = credits
	}
}

// NewTierTable validates tiers and returns an immutable table.
// Tiers are sorted by MinUsage; consecutive tiers must meet exactly
// (MaxUsage of one equals MinUsage of the next) and only the last may be unbounded.
func NewTierTable(tiers []UsageTier, opts ...TierTableOption) (*TierTable, error) {
	if len(tiers) == 0 {
		return nil, shared.NewDomainError("INVALID_TIER_TABLE", "tier table cannot be empty")
	}

	sorted := make([]UsageTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinUsage < sorted[j].MinUsage })

	seen := make(map[string]struct{}, len(sorted))
	for i, tier := range sorted {
		if err := validateTier(tier); err != nil {
			return nil, err
		}
		if _, dup := seen[tier.Name]; dup {
			return nil, invalidTable(fmt.Sprintf("duplicate tier name %q", tier.Name))
		}
		seen[tier.Name] = struct{}{}

		last := i == len(sorted)-1
		if !last && tier.IsUnbounded() {
			return nil, invalidTable(fmt.Sprintf("only the top tier may be unbounded, %q is not the top tier", tier.Name))
		}
		if last && !tier.IsUnbounded() {
			return nil, invalidTable(fmt.Sprintf("top tier %q must be unbounded", tier.Name))
		}
		if !last && tier.MaxUsage != sorted[i+1].MinUsage {
			return nil, invalidTable(fmt.Sprintf("tiers %q and %q must meet at a single boundary, got %d and %d",
				tier.Name, sorted[i+1].Name, tier.MaxUsage, sorted[i+1].MinUsage))
		}
	}

	table := &TierTable{
		tiers:           sorted,
		customQuoteTier: sorted[len(sorted)-1].Name,
	}
	for _, opt := range opts {
		opt(table)
	}

	if _, ok := seen[table.customQuoteTier]; !ok {
		return nil, invalidTable(fmt.Sprintf("custom quote tier %q is not in the table", table.customQuoteTier))
	}
	if table.unboundedCredits < 0 {
		return nil, invalidTable("unbounded credit grant cannot be negative")
	}
	top := sorted[len(sorted)-1]
	if top.Name != table.customQuoteTier && table.unboundedCredits == 0 {
		return nil, invalidTable(fmt.Sprintf("self-serve unbounded tier %q needs a credit grant", top.Name))
	}

	return table, nil
}

func validateTier(t UsageTier) error {
	switch {
	case strings.TrimSpace(t.Name) == "":
		return invalidTable("tier name cannot be empty")
	case t.MinUsage < 0:
		return invalidTable(fmt.Sprintf("tier %q has negative min usage", t.Name))
	case t.MaxUsage <= t.MinUsage:
		return invalidTable(fmt.Sprintf("tier %q has an empty range", t.Name))
	case t.Price.IsNegative():
		return invalidTable(fmt.Sprintf("tier %q has a negative price", t.Name))
	case len(t.Currency) != 3:
		return invalidTable(fmt.Sprintf("tier %q has invalid currency %q", t.Name, t.Currency))
	case strings.TrimSpace(t.ProviderPlanID) == "":
		return invalidTable(fmt.Sprintf("tier %q has no provider plan id", t.Name))
	}
	return nil
}

func invalidTable(msg string) error {
	return shared.NewDomainError("INVALID_TIER_TABLE", msg)
}

// Resolve maps usage to its tier. ok is false when usage lies in the free
// allowance below the first tier.
func (t *TierTable) Resolve(usage int64) (tier UsageTier, ok bool, err error) {
	if usage < 0 {
		return UsageTier{}, false, ErrInvalidUsage
	}
	// first tier whose range ends above usage
	i := sort.Search(len(t.tiers), func(i int) bool {
		return t.tiers[i].IsUnbounded() || t.tiers[i].MaxUsage > usage
	})
	if i == len(t.tiers) || !t.tiers[i].Contains(usage) {
		return UsageTier{}, false, nil
	}
	return t.tiers[i], true, nil
}

// IsSelfServe reports whether tier can be bought through checkout
func (t *TierTable) IsSelfServe(tier UsageTier) bool {
	return tier.Name != t.customQuoteTier
}

// CreditsFor returns the entitlement granted when tier is purchased
func (t *TierTable) CreditsFor(tier UsageTier) int64 {
	if span, ok := tier.Span(); ok {
		return span
	}
	return t.unboundedCredits
}

// FreeAllowance returns the exclusive upper bound of usage that matches no tier
func (t *TierTable) FreeAllowance() int64 {
	return t.tiers[0].MinUsage
}

// Tiers returns a copy of the tiers in ascending order
func (t *TierTable) Tiers() []UsageTier {
	out := make([]UsageTier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// DefaultTiers is the standard EUR price list. Usage up to and including 1000
// is free; Enterprise is quoted individually.
func DefaultTiers() []UsageTier {
	return []UsageTier{
		{Name: "Growth", MinUsage: 1001, MaxUsage: 100001, Price: decimal.NewFromInt(9), Currency: "EUR", ProviderPlanID: "price_growth_tier"},
		{Name: "Scale", MinUsage: 100001, MaxUsage: 1000001, Price: decimal.NewFromInt(79), Currency: "EUR", ProviderPlanID: "price_scale_tier"},
		{Name: "Enterprise", MinUsage: 1000001, MaxUsage: Unbounded, Price: decimal.Zero, Currency: "EUR", ProviderPlanID: "price_enterprise_tier"},
	}
}
