package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
)

// TimesheetProvider exposes timesheet hour entries to the engine
type TimesheetProvider interface {
	// HoursForPlacement returns the placement's entries in [from, to] that
	// have not been raised for payroll, whatever their approval status.
	HoursForPlacement(ctx context.Context, placementID uuid.UUID, from, to time.Time) ([]domain.TimesheetHourEntry, error)
	// RaisedHours sums billable and overtime hours already raised for payroll.
	RaisedHours(ctx context.Context, placementID uuid.UUID) (decimal.Decimal, error)
	// MarkRaised flips the payroll flag of the given entries.
	MarkRaised(ctx context.Context, entryIDs []uuid.UUID) (int64, error)
}

// PlacementProvider exposes placements and their bill rates
type PlacementProvider interface {
	ActivePlacements(ctx context.Context, employeeID uuid.UUID, periodStart, periodEnd time.Time) ([]domain.Placement, error)
	// BillRateOn returns domain.ErrNotFound when no rate is in effect on date.
	BillRateOn(ctx context.Context, placementID uuid.UUID, date time.Time) (*domain.BillRate, error)
}

// PayConfigProvider exposes pay configurations
type PayConfigProvider interface {
	Tiers(ctx context.Context, payConfigID uuid.UUID) ([]domain.PayBandTier, error)
	// OvertimePolicy returns domain.ErrNotFound when the configuration has none.
	OvertimePolicy(ctx context.Context, payConfigID uuid.UUID) (domain.OvertimePolicy, error)
}

// ExpenseLedger exposes employee expense transactions and their audit trail
type ExpenseLedger interface {
	EligibleExpenses(ctx context.Context, employeeID uuid.UUID, cutoff time.Time) ([]domain.ExpenseTransaction, error)
	// TrackedAmount sums everything ever applied for an expense.
	TrackedAmount(ctx context.Context, expenseID uuid.UUID) (decimal.Decimal, error)
	TracksForPeriod(ctx context.Context, employeeID, periodID uuid.UUID) ([]domain.ExpenseTrack, error)
	// RecordApplication returns domain.ErrAlreadyApplied when the
	// (expense, period) pair already has a track row.
	RecordApplication(ctx context.Context, track *domain.ExpenseTrack) error
	UpdateExpense(ctx context.Context, expense *domain.ExpenseTransaction) error
}

// PayrollStore persists periods, lines, payment details and employee ledgers
type PayrollStore interface {
	GetPeriod(ctx context.Context, id uuid.UUID) (*domain.PayPeriod, error)
	// LockPeriod reads the period with a row lock held until the transaction ends.
	LockPeriod(ctx context.Context, id uuid.UUID) (*domain.PayPeriod, error)
	UpdatePeriodStatus(ctx context.Context, period *domain.PayPeriod) error
	PeriodsCovering(ctx context.Context, payScheduleID uuid.UUID, from, to time.Time) ([]domain.PayPeriod, error)

	EligibleEmployees(ctx context.Context, payScheduleID uuid.UUID) ([]domain.EmployeeLedger, error)
	GetLedger(ctx context.Context, employeeID uuid.UUID) (*domain.EmployeeLedger, error)
	// UpdateLedger writes the counters if Version still matches and bumps it;
	// otherwise it returns domain.ErrConcurrentModification.
	UpdateLedger(ctx context.Context, ledger *domain.EmployeeLedger) error

	ListLines(ctx context.Context, periodID uuid.UUID, employeeID *uuid.UUID) ([]domain.PayrollLine, error)
	// UpsertLine inserts or updates by (employee, placement, period) and sets line.ID.
	UpsertLine(ctx context.Context, line *domain.PayrollLine) error
	DeleteStaleLines(ctx context.Context, periodID, employeeID uuid.UUID, keep []uuid.UUID) (int64, error)

	GetDetail(ctx context.Context, periodID, employeeID uuid.UUID) (*domain.PaymentDetail, error)
	ListDetails(ctx context.Context, periodID uuid.UUID) ([]domain.PaymentDetail, error)
	// UpsertDetail inserts or updates by (employee, period) and sets detail.ID.
	UpsertDetail(ctx context.Context, detail *domain.PaymentDetail) error
}

// UnitOfWork runs fn in one all-or-nothing transaction carried by ctx
type UnitOfWork interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier announces committed state changes
type Notifier interface {
	PeriodStatusChanged(ctx context.Context, period *domain.PayPeriod, summary domain.RunSummary)
	PaymentStateChanged(ctx context.Context, detail *domain.PaymentDetail)
}
