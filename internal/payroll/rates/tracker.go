package rates

import "github.com/shopspring/decimal"

// Tracker carries the cumulative-hours baseline across the days of one run
// so each day is priced on top of the hours before it.
type Tracker struct {
	baseline decimal.Decimal
}

// NewTracker starts a tracker at the given baseline
func NewTracker(baseline decimal.Decimal) *Tracker {
	return &Tracker{baseline: baseline}
}

// Baseline is the hours worked before the next day
func (t *Tracker) Baseline() decimal.Decimal {
	return t.baseline
}

// Advance adds a processed day's worked hours
func (t *Tracker) Advance(hours decimal.Decimal) {
	if hours.IsPositive() {
		t.baseline = t.baseline.Add(hours)
	}
}
