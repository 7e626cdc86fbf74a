package rates

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
)

var hundred = decimal.NewFromInt(100)

// DayInput is one timesheet day to be priced
type DayInput struct {
	Date          time.Time
	BillableHours decimal.Decimal
	OTHours       decimal.Decimal
	BillRate      domain.BillRate
}

// DayResult is the priced day
type DayResult struct {
	Segments           []domain.TierSegment
	TotalPay           decimal.Decimal
	TotalHours         decimal.Decimal
	TotalOTHours       decimal.Decimal
	TotalOTPay         decimal.Decimal
	TotalBillableHours decimal.Decimal
	TotalBillablePay   decimal.Decimal

	// Unmatched is billable time no tier covered; UnmatchedOT is overtime
	// that could not be priced because no tier was found for it.
	Unmatched   decimal.Decimal
	UnmatchedOT decimal.Decimal
}

// NeedsReview reports whether some of the day's hours went unpriced
func (r DayResult) NeedsReview() bool {
	return r.Unmatched.IsPositive() || r.UnmatchedOT.IsPositive()
}

// EffectiveRate is what one billable hour in tier pays given the bill rate
func EffectiveRate(tier domain.PayBandTier, bill domain.BillRate) decimal.Decimal {
	if tier.Basis == domain.BasisPercentage {
		return tier.Rate.Mul(bill.Discounted()).Div(hundred)
	}
	return tier.Rate
}

// OvertimeRate prices one overtime hour against the tier the day's
// overtime is charged on
func OvertimeRate(policy domain.OvertimePolicy, tier domain.PayBandTier, bill domain.BillRate) decimal.Decimal {
	return bill.ApplyDiscount(policy.Rate(EffectiveRate(tier, bill)))
}

// Calculate prices one day starting at the cumulative-hours baseline.
//
// Billable hours are split across every tier they overlap. Overtime is
// priced once per day, on the first tier touched; a day with only overtime
// uses the tier containing the baseline.
func Calculate(in DayInput, sched Schedule, baseline decimal.Decimal) DayResult {
	res := DayResult{}

	overlaps := MatchTiers(sched.Tiers, baseline, in.BillableHours)
	covered := decimal.Zero
	for i, ov := range overlaps {
		seg := billableSegment(in, ov)
		if i == 0 && in.OTHours.IsPositive() {
			addOvertime(&seg, in, sched.Overtime, ov.Tier)
		}
		res.add(seg)
		covered = covered.Add(ov.Hours)
	}
	if in.BillableHours.IsPositive() {
		res.Unmatched = in.BillableHours.Sub(covered)
	}

	if len(overlaps) == 0 && in.OTHours.IsPositive() {
		tier, ok := TierAt(sched.Tiers, baseline)
		if !ok {
			res.UnmatchedOT = in.OTHours
			return res
		}
		seg := domain.TierSegment{
			Date:         in.Date,
			TierFrom:     tier.From,
			TierTo:       tier.To,
			Basis:        tier.Basis,
			BillableRate: EffectiveRate(tier, in.BillRate),
		}
		addOvertime(&seg, in, sched.Overtime, tier)
		res.add(seg)
	}

	return res
}

func billableSegment(in DayInput, ov TierOverlap) domain.TierSegment {
	rate := EffectiveRate(ov.Tier, in.BillRate)
	amount := ov.Hours.Mul(rate)
	return domain.TierSegment{
		Date:           in.Date,
		TierFrom:       ov.Tier.From,
		TierTo:         ov.Tier.To,
		Basis:          ov.Tier.Basis,
		BillableRate:   rate,
		BillableHours:  ov.Hours,
		BillableAmount: amount,
		TotalHours:     ov.Hours,
		TotalAmount:    amount,
	}
}

func addOvertime(seg *domain.TierSegment, in DayInput, policy domain.OvertimePolicy, tier domain.PayBandTier) {
	rate := OvertimeRate(policy, tier, in.BillRate)
	amount := in.OTHours.Mul(rate)
	seg.OTRate = rate
	seg.OTHours = in.OTHours
	seg.OTAmount = amount
	seg.TotalHours = seg.TotalHours.Add(in.OTHours)
	seg.TotalAmount = seg.TotalAmount.Add(amount)
}

func (r *DayResult) add(seg domain.TierSegment) {
	r.Segments = append(r.Segments, seg)
	r.TotalPay = r.TotalPay.Add(seg.TotalAmount)
	r.TotalHours = r.TotalHours.Add(seg.TotalHours)
	r.TotalOTHours = r.TotalOTHours.Add(seg.OTHours)
	r.TotalOTPay = r.TotalOTPay.Add(seg.OTAmount)
	r.TotalBillableHours = r.TotalBillableHours.Add(seg.BillableHours)
	r.TotalBillablePay = r.TotalBillablePay.Add(seg.BillableAmount)
}
