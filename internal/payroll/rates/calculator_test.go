package rates

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func fixedTier(from string, to *decimal.Decimal, rate string) domain.PayBandTier {
	return domain.PayBandTier{From: dec(from), To: to, Rate: dec(rate), Basis: domain.BasisFixed}
}

// two bands: 0-40h at 20, 40h+ at 30
func twoBands(ot domain.OvertimePolicy) Schedule {
	return NewSchedule([]domain.PayBandTier{
		fixedTier("40", nil, "30"),
		fixedTier("0", ptr(dec("40")), "20"),
	}, ot)
}

func TestCalculate_SplitsAcrossTierBoundary(t *testing.T) {
	in := DayInput{Date: domain.Date(2024, 3, 4), BillableHours: dec("10")}

	res := Calculate(in, twoBands(domain.SameAsBase()), dec("35"))

	require.Len(t, res.Segments, 2)
	assert.True(t, dec("5").Equal(res.Segments[0].BillableHours))
	assert.True(t, dec("100").Equal(res.Segments[0].BillableAmount))
	assert.True(t, dec("5").Equal(res.Segments[1].BillableHours))
	assert.True(t, dec("150").Equal(res.Segments[1].BillableAmount))
	assert.True(t, dec("250").Equal(res.TotalPay))
	assert.True(t, res.Unmatched.IsZero())
	assert.False(t, res.NeedsReview())
}

func TestCalculate_OvertimeChargedOnceOnFirstTier(t *testing.T) {
	sched := NewSchedule([]domain.PayBandTier{
		fixedTier("0", ptr(dec("40")), "25"),
		fixedTier("40", nil, "35"),
	}, domain.Multiplier(dec("1.5")))
	in := DayInput{Date: domain.Date(2024, 3, 4), BillableHours: dec("8"), OTHours: dec("4")}

	// the billable hours straddle both tiers
	res := Calculate(in, sched, dec("36"))

	require.Len(t, res.Segments, 2)
	assert.True(t, dec("37.5").Equal(res.Segments[0].OTRate))
	assert.True(t, dec("150").Equal(res.Segments[0].OTAmount))
	assert.True(t, res.Segments[1].OTHours.IsZero())
	assert.True(t, dec("150").Equal(res.TotalOTPay))
	assert.True(t, dec("4").Equal(res.TotalOTHours))
	// 4h*25 + 4h*35 + 150
	assert.True(t, dec("390").Equal(res.TotalPay))
	assert.True(t, dec("12").Equal(res.TotalHours))
}

func TestCalculate_OvertimeOnlyDayUsesBaselineTier(t *testing.T) {
	in := DayInput{Date: domain.Date(2024, 3, 9), OTHours: dec("4")}

	res := Calculate(in, twoBands(domain.Multiplier(dec("1.5"))), dec("45"))

	require.Len(t, res.Segments, 1)
	assert.True(t, res.Segments[0].BillableHours.IsZero())
	assert.True(t, dec("45").Equal(res.Segments[0].OTRate))
	assert.True(t, dec("180").Equal(res.TotalPay))
	assert.True(t, res.UnmatchedOT.IsZero())
}

func TestCalculate_OvertimePolicies(t *testing.T) {
	bill := domain.BillRate{Rate: dec("50"), Discount: dec("10"), DiscountType: domain.DiscountPercentage}
	tier := domain.PayBandTier{From: dec("0"), Rate: dec("50"), Basis: domain.BasisPercentage}
	in := DayInput{BillableHours: dec("1"), OTHours: dec("2"), BillRate: bill}

	tests := []struct {
		name     string
		policy   domain.OvertimePolicy
		wantRate string
	}{
		// effective = 50% of (50 * 0.9) = 22.5; discount applied again
		{"same as base", domain.SameAsBase(), "20.25"},
		{"fixed rate", domain.FixedRate(dec("30")), "27"},
		{"multiplier", domain.Multiplier(dec("2")), "40.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Calculate(in, NewSchedule([]domain.PayBandTier{tier}, tt.policy), decimal.Zero)
			require.Len(t, res.Segments, 1)
			assert.True(t, dec("22.5").Equal(res.Segments[0].BillableRate))
			assert.True(t, dec(tt.wantRate).Equal(res.Segments[0].OTRate), "got %s", res.Segments[0].OTRate)
		})
	}
}

func TestCalculate_FixedDiscountOnPercentageTier(t *testing.T) {
	bill := domain.BillRate{Rate: dec("60"), Discount: dec("10"), DiscountType: domain.DiscountFixed}
	sched := NewSchedule([]domain.PayBandTier{{From: dec("0"), Rate: dec("40"), Basis: domain.BasisPercentage}}, domain.SameAsBase())

	res := Calculate(DayInput{BillableHours: dec("5"), BillRate: bill}, sched, decimal.Zero)

	// 40% of (60 - 10) = 20/h
	assert.True(t, dec("100").Equal(res.TotalPay))
}

func TestCalculate_UncoveredHoursAreSurfaced(t *testing.T) {
	// the schedule stops at 40h
	sched := NewSchedule([]domain.PayBandTier{fixedTier("0", ptr(dec("40")), "20")}, domain.SameAsBase())

	res := Calculate(DayInput{BillableHours: dec("8"), OTHours: dec("1")}, sched, dec("38"))

	assert.True(t, dec("2").Equal(res.TotalBillableHours))
	assert.True(t, dec("6").Equal(res.Unmatched))
	assert.True(t, res.NeedsReview())

	res = Calculate(DayInput{OTHours: dec("3")}, sched, dec("41"))
	assert.Empty(t, res.Segments)
	assert.True(t, dec("3").Equal(res.UnmatchedOT))
	assert.True(t, res.TotalPay.IsZero())
}

func TestCalculate_ZeroHoursProducesNoSegments(t *testing.T) {
	res := Calculate(DayInput{}, twoBands(domain.SameAsBase()), dec("10"))
	assert.Empty(t, res.Segments)
	assert.True(t, res.TotalPay.IsZero())
	assert.False(t, res.NeedsReview())
}

func TestCalculate_HoursAreConserved(t *testing.T) {
	sched := NewSchedule([]domain.PayBandTier{
		fixedTier("0", ptr(dec("20")), "18"),
		fixedTier("20", ptr(dec("35.5")), "21"),
		fixedTier("40", ptr(dec("80")), "27"), // gap between 35.5 and 40
		fixedTier("80", nil, "33"),
	}, domain.SameAsBase())

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		baseline := decimal.New(int64(rng.Intn(10000)), -2)
		hours := decimal.New(int64(rng.Intn(1600)), -2)

		res := Calculate(DayInput{BillableHours: hours}, sched, baseline)

		sum := decimal.Zero
		for _, s := range res.Segments {
			sum = sum.Add(s.BillableHours)
			assert.True(t, s.BillableHours.IsPositive(), "empty segment emitted")
		}
		assert.True(t, hours.Equal(sum.Add(res.Unmatched)),
			"baseline %s hours %s: segments %s + unmatched %s", baseline, hours, sum, res.Unmatched)
	}
}

func TestMatchTiers(t *testing.T) {
	tiers := twoBands(domain.SameAsBase()).Tiers

	overlaps := MatchTiers(tiers, dec("40"), dec("3"))
	require.Len(t, overlaps, 1)
	assert.True(t, dec("40").Equal(overlaps[0].Tier.From))

	assert.Nil(t, MatchTiers(tiers, dec("0"), decimal.Zero))
}

func TestTracker(t *testing.T) {
	tr := NewTracker(dec("35"))
	tr.Advance(dec("10"))
	tr.Advance(dec("-3"))
	assert.True(t, dec("45").Equal(tr.Baseline()))
}
