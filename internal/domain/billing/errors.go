package billing

import "errors"

// RejectionKind is the closed set of reasons a billing operation can fail.
type RejectionKind string

const (
	RejectInvalidUsage        RejectionKind = "INVALID_USAGE"
	RejectTierNotEligible     RejectionKind = "TIER_NOT_ELIGIBLE"
	RejectRequiresCustomQuote RejectionKind = "REQUIRES_CUSTOM_QUOTE"
	RejectPersistence         RejectionKind = "PERSISTENCE_ERROR"
	RejectProvider            RejectionKind = "PROVIDER_ERROR"
	RejectInvalidSignature    RejectionKind = "INVALID_SIGNATURE"
	RejectReconciliationMiss  RejectionKind = "RECONCILIATION_MISS"
)

// Rejection is the error returned by checkout and webhook operations.
// Callers switch on Kind; Err carries the underlying cause when there is one.
type Rejection struct {
	Kind    RejectionKind
	Message string
	Err     error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return r.Message + ": " + r.Err.Error()
	}
	return r.Message
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// Is matches any Rejection of the same kind, so the sentinels below work with errors.Is.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Kind == r.Kind
}

// Sentinels for errors.Is comparisons
var (
	ErrInvalidUsage        = &Rejection{Kind: RejectInvalidUsage, Message: "usage must be a non-negative integer"}
	ErrTierNotEligible     = &Rejection{Kind: RejectTierNotEligible, Message: "usage is within the free allowance"}
	ErrRequiresCustomQuote = &Rejection{Kind: RejectRequiresCustomQuote, Message: "tier requires a custom quote"}
	ErrPersistence         = &Rejection{Kind: RejectPersistence, Message: "payment ledger write failed"}
	ErrProvider            = &Rejection{Kind: RejectProvider, Message: "payment provider request failed"}
	ErrInvalidSignature    = &Rejection{Kind: RejectInvalidSignature, Message: "webhook signature verification failed"}
	ErrReconciliationMiss  = &Rejection{Kind: RejectReconciliationMiss, Message: "no pending payment matches provider reference"}
)

// Reject builds a Rejection of the given kind.
func Reject(kind RejectionKind, message string, cause error) *Rejection {
	return &Rejection{Kind: kind, Message: message, Err: cause}
}

// RejectionKindOf returns the kind of the first Rejection in err's chain.
func RejectionKindOf(err error) (RejectionKind, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Kind, true
	}
	return "", false
}
