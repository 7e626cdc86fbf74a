package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/staffline/backoffice/internal/payroll/rates"
	"github.com/staffline/backoffice/pkg/logger"
)

// LineBuilderConfig holds the line building switches
type LineBuilderConfig struct {
	// SalaryRemainderOnLastDay lets the last day of a salary placement
	// absorb the rounding remainder so the days add up to the salary.
	SalaryRemainderOnLastDay bool
}

// BuildRequest is one (employee, placement, period) to price
type BuildRequest struct {
	Ledger    *domain.EmployeeLedger
	Placement *domain.Placement
	Period    *domain.PayPeriod

	// Offset is added on top of the placement's baseline. The coordinator
	// uses it to carry the hours of global placements already built in the
	// same run.
	Offset decimal.Decimal
}

// LineBuilder turns a placement's timesheet hours for a period into a payroll line
type LineBuilder struct {
	timesheets TimesheetProvider
	placements PlacementProvider
	bands      *BandResolver
	baselines  map[domain.PayrollConfigType]BaselineSource
	cfg        LineBuilderConfig
	logger     *logger.Logger
}

// NewLineBuilder creates a new line builder
func NewLineBuilder(
	timesheets TimesheetProvider,
	placements PlacementProvider,
	bands *BandResolver,
	baselines map[domain.PayrollConfigType]BaselineSource,
	cfg LineBuilderConfig,
	log *logger.Logger,
) *LineBuilder {
	return &LineBuilder{
		timesheets: timesheets,
		placements: placements,
		bands:      bands,
		baselines:  baselines,
		cfg:        cfg,
		logger:     log.WithComponent("line-builder"),
	}
}

// Build prices one placement. The returned line is not persisted.
//
// Pricing problems (missing configuration, missing bill rates, hours no
// tier covers) flag the line for review instead of failing; only provider
// errors are returned.
func (b *LineBuilder) Build(ctx context.Context, req BuildRequest) (*domain.PayrollLine, error) {
	placement, period := req.Placement, req.Period
	placementID := placement.ID

	entries, err := b.timesheets.HoursForPlacement(ctx, placement.ID, period.StartDate, period.EndDate)
	if err != nil {
		return nil, fmt.Errorf("load hours for placement %s: %w", placement.ID, err)
	}

	if err := checkApproval(entries); err != nil {
		b.logger.Debug().
			Str("placement_id", placement.ID.String()).
			Str("period_id", period.ID.String()).
			Msg("timesheets awaiting approval, line left pending")
		return domain.NewPendingLine(placement.EmployeeID, &placementID, period.ID), nil
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].WorkDate.Before(entries[j].WorkDate)
	})

	line := &domain.PayrollLine{
		EmployeeID:  placement.EmployeeID,
		PlacementID: &placementID,
		PeriodID:    period.ID,
		Status:      domain.LineComputed,
	}
	for _, e := range entries {
		line.BillableHours = line.BillableHours.Add(e.BillableHours)
		line.OTHours = line.OTHours.Add(e.OTHours)
		line.WorkedHours = line.WorkedHours.Add(e.WorkedHours())
	}

	switch placement.PayType {
	case domain.PayTypeSalary:
		b.computeSalary(line, placement, entries)
	default:
		if err := b.computeHourly(ctx, line, req, entries); err != nil {
			return nil, err
		}
	}

	if line.Status == domain.LineNeedsReview {
		b.logger.Warn().
			Str("placement_id", placement.ID.String()).
			Str("period_id", period.ID.String()).
			Str("reason", line.ReviewReason).
			Msg("payroll line needs review")
	}
	return line, nil
}

func checkApproval(entries []domain.TimesheetHourEntry) error {
	for i := range entries {
		if !entries[i].Approved() {
			return domain.ErrApprovalIncomplete
		}
	}
	return nil
}

func (b *LineBuilder) computeHourly(ctx context.Context, line *domain.PayrollLine, req BuildRequest, entries []domain.TimesheetHourEntry) error {
	placement := req.Placement
	if len(entries) == 0 {
		return nil
	}

	sched, err := b.bands.Resolve(ctx, placement.PayConfigID)
	if errors.Is(err, domain.ErrConfigurationMissing) {
		line.FlagForReview(err.Error())
		return nil
	}
	if err != nil {
		return err
	}

	source, ok := b.baselines[placement.PayrollConfigType]
	if !ok {
		line.FlagForReview(fmt.Sprintf("unknown payroll configuration type %q", placement.PayrollConfigType))
		return nil
	}
	baseline, err := source.Baseline(ctx, req.Ledger, placement)
	if err != nil {
		return err
	}
	tracker := rates.NewTracker(baseline.Add(req.Offset))

	for _, e := range entries {
		day := domain.DayBreakdown{
			EntryID:       e.ID,
			Date:          e.WorkDate,
			BillableHours: e.BillableHours,
			OTHours:       e.OTHours,
		}

		bill, err := b.placements.BillRateOn(ctx, placement.ID, e.WorkDate)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			day.UnmatchedHours = e.WorkedHours()
			day.Note = "no bill rate in effect"
			line.FlagForReview("no bill rate in effect on " + e.WorkDate.Format("2006-01-02"))
			line.Breakdown = append(line.Breakdown, day)
			tracker.Advance(e.WorkedHours())
			continue
		case err != nil:
			return fmt.Errorf("bill rate for placement %s: %w", placement.ID, err)
		}

		daySched := sched
		if bill.OTOverride != nil {
			if err := bill.OTOverride.Validate(); err != nil {
				line.FlagForReview("bill rate overtime override: " + err.Error())
			} else {
				daySched = sched.WithOvertime(*bill.OTOverride)
			}
		}

		res := rates.Calculate(rates.DayInput{
			Date:          e.WorkDate,
			BillableHours: e.BillableHours,
			OTHours:       e.OTHours,
			BillRate:      *bill,
		}, daySched, tracker.Baseline())

		day.BillRate = bill.Rate
		day.Segments = res.Segments
		day.Amount = res.TotalPay
		day.UnmatchedHours = res.Unmatched.Add(res.UnmatchedOT)
		if res.NeedsReview() {
			day.Note = "hours outside every pay tier"
			line.FlagForReview("hours outside every pay tier on " + e.WorkDate.Format("2006-01-02"))
		}

		line.TotalAmount = line.TotalAmount.Add(res.TotalPay)
		line.Breakdown = append(line.Breakdown, day)
		tracker.Advance(e.WorkedHours())
	}
	return nil
}

// computeSalary carries the fixed salary and spreads it over the
// timesheet days for audit. The line total is always the salary.
func (b *LineBuilder) computeSalary(line *domain.PayrollLine, placement *domain.Placement, entries []domain.TimesheetHourEntry) {
	pay := placement.PayrollPay
	line.TotalAmount = pay

	n := len(entries)
	if n == 0 {
		return
	}

	perDay := domain.Round2(pay.Div(decimal.NewFromInt(int64(n))))
	allocated := decimal.Zero
	for i, e := range entries {
		amount := perDay
		if b.cfg.SalaryRemainderOnLastDay && i == n-1 {
			amount = pay.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		line.Breakdown = append(line.Breakdown, domain.DayBreakdown{
			EntryID:       e.ID,
			Date:          e.WorkDate,
			BillableHours: e.BillableHours,
			OTHours:       e.OTHours,
			Amount:        amount,
		})
	}
}
