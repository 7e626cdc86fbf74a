package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
)

// BaselineSource yields the cumulative hours an employee has already worked
// before a run, which selects the starting pay tier.
type BaselineSource interface {
	Baseline(ctx context.Context, ledger *domain.EmployeeLedger, placement *domain.Placement) (decimal.Decimal, error)
}

// GlobalBaseline reads the employee's lifetime hours counter
type GlobalBaseline struct{}

func (GlobalBaseline) Baseline(_ context.Context, ledger *domain.EmployeeLedger, _ *domain.Placement) (decimal.Decimal, error) {
	return ledger.HoursWorked, nil
}

// CustomBaseline recomputes the placement's settled hours on every run
type CustomBaseline struct {
	Timesheets TimesheetProvider
}

func (b CustomBaseline) Baseline(ctx context.Context, _ *domain.EmployeeLedger, placement *domain.Placement) (decimal.Decimal, error) {
	hours, err := b.Timesheets.RaisedHours(ctx, placement.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("raised hours for placement %s: %w", placement.ID, err)
	}
	return hours, nil
}

// DefaultBaselines maps each payroll configuration type to its source
func DefaultBaselines(timesheets TimesheetProvider) map[domain.PayrollConfigType]BaselineSource {
	return map[domain.PayrollConfigType]BaselineSource{
		domain.PayrollConfigGlobal: GlobalBaseline{},
		domain.PayrollConfigCustom: CustomBaseline{Timesheets: timesheets},
	}
}
