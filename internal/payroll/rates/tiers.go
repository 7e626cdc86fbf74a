// Package rates prices one day of timesheet hours against a tiered pay
// schedule. Everything here is pure: no I/O, no clocks, no rounding.
package rates

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
)

// Schedule is a pay configuration resolved for calculation
type Schedule struct {
	Tiers    []domain.PayBandTier
	Overtime domain.OvertimePolicy
}

// NewSchedule sorts tiers by their lower bound
func NewSchedule(tiers []domain.PayBandTier, overtime domain.OvertimePolicy) Schedule {
	sorted := make([]domain.PayBandTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].From.LessThan(sorted[j].From)
	})
	return Schedule{Tiers: sorted, Overtime: overtime}
}

// WithOvertime returns a copy of the schedule priced with another overtime policy
func (s Schedule) WithOvertime(p domain.OvertimePolicy) Schedule {
	s.Overtime = p
	return s
}

// TierOverlap is the number of hours of a range that fall inside one tier
type TierOverlap struct {
	Tier  domain.PayBandTier
	Hours decimal.Decimal
}

// MatchTiers intersects [baseline, baseline+hours) with every tier and
// returns the non-empty overlaps in tier order.
func MatchTiers(tiers []domain.PayBandTier, baseline, hours decimal.Decimal) []TierOverlap {
	if !hours.IsPositive() {
		return nil
	}
	end := baseline.Add(hours)

	var out []TierOverlap
	for _, tier := range tiers {
		lo := domain.MaxDecimal(baseline, tier.From)
		hi := end
		if tier.To != nil {
			hi = domain.MinDecimal(end, *tier.To)
		}
		if overlap := hi.Sub(lo); overlap.IsPositive() {
			out = append(out, TierOverlap{Tier: tier, Hours: overlap})
		}
	}
	return out
}

// TierAt returns the tier containing cumulative hour h
func TierAt(tiers []domain.PayBandTier, h decimal.Decimal) (domain.PayBandTier, bool) {
	for _, tier := range tiers {
		if tier.Contains(h) {
			return tier, true
		}
	}
	return domain.PayBandTier{}, false
}
