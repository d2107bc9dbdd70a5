package billing

import "time"

// BillingPeriod is the half-open interval [Start, End) usage is aggregated over.
type BillingPeriod struct {
	Start time.Time
	End   time.Time
}

// MonthlyPeriod returns the calendar month in UTC containing t.
func MonthlyPeriod(t time.Time) BillingPeriod {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	return BillingPeriod{Start: start, End: start.AddDate(0, 1, 0)}
}

// Contains reports whether t falls inside the period
func (p BillingPeriod) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Key is the year-month label, e.g. "2026-10"
func (p BillingPeriod) Key() string {
	return p.Start.Format("2006-01")
}
