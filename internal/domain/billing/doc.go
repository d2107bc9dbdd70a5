// Package billing provides the domain model for usage-tier billing.
//
// Metered usage for a billing period is mapped onto an ordered table of
// half-open usage tiers. Paid tiers are bought through a provider-hosted
// checkout: a pending Payment is recorded before the customer is redirected,
// and the provider's asynchronous completion notification later moves that
// Payment to a terminal state exactly once.
//
// Key types:
//   - TierTable / UsageTier: immutable, validated tier partition
//   - Payment: one billing transaction and its status state machine
//   - ProviderEvent: closed set of provider notifications (CheckoutCompleted,
//     CheckoutFailed, OtherEvent)
//   - Rejection: typed business and infrastructure failures
//
// Collaborators are declared as interfaces (PaymentLedger, UsageAggregator,
// PaymentGateway, EntitlementNotifier, CreditBalanceRepository) and
// implemented in the infrastructure layer.
package billing
