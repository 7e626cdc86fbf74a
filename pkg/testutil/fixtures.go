package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// FixtureFactory inserts payroll test data with sensible defaults.
// Amounts and hours are passed as decimal strings.
type FixtureFactory struct {
	db *sqlx.DB
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory(db *sqlx.DB) *FixtureFactory {
	return &FixtureFactory{db: db}
}

func (f *FixtureFactory) exec(t *testing.T, ctx context.Context, query string, args ...interface{}) {
	t.Helper()
	if _, err := f.db.ExecContext(ctx, query, args...); err != nil {
		t.Fatalf("fixture insert failed: %v\n%s", err, query)
	}
}

// PaySchedule inserts a biweekly pay schedule
func (f *FixtureFactory) PaySchedule(t *testing.T, ctx context.Context) uuid.UUID {
	id := uuid.New()
	f.exec(t, ctx, `INSERT INTO pay_schedules (id, name, frequency) VALUES ($1, $2, 'biweekly')`,
		id, "schedule-"+id.String()[:8])
	return id
}

// PayPeriod inserts a scheduled period on the schedule
func (f *FixtureFactory) PayPeriod(t *testing.T, ctx context.Context, scheduleID uuid.UUID, start, end time.Time) uuid.UUID {
	id := uuid.New()
	f.exec(t, ctx, `
		INSERT INTO pay_periods (id, pay_schedule_id, start_date, end_date, check_date, status)
		VALUES ($1, $2, $3, $4, $5, 'scheduled')`,
		id, scheduleID, start, end, end.AddDate(0, 0, 5))
	return id
}

// Ledger inserts an active employee on the schedule and returns the employee ID
func (f *FixtureFactory) Ledger(t *testing.T, ctx context.Context, scheduleID uuid.UUID, hoursWorked string) uuid.UUID {
	id := uuid.New()
	f.exec(t, ctx, `
		INSERT INTO employee_ledgers (employee_id, pay_schedule_id, hours_worked)
		VALUES ($1, $2, $3)`,
		id, scheduleID, hoursWorked)
	return id
}

// Tier describes one pay band
type Tier struct {
	From  string
	To    *string
	Rate  string
	Basis string
}

// PayConfig inserts a pay configuration with its tiers. An empty otType
// leaves the configuration without an overtime policy; an empty otValue
// stores no value.
func (f *FixtureFactory) PayConfig(t *testing.T, ctx context.Context, otType, otValue string, tiers ...Tier) uuid.UUID {
	id := uuid.New()
	var typ, value interface{}
	if otType != "" {
		typ = otType
	}
	if otValue != "" {
		value = otValue
	}
	f.exec(t, ctx, `INSERT INTO pay_configs (id, name, ot_type, ot_value) VALUES ($1, $2, $3, $4)`,
		id, "config-"+id.String()[:8], typ, value)

	for _, tier := range tiers {
		basis := tier.Basis
		if basis == "" {
			basis = "fixed"
		}
		f.exec(t, ctx, `
			INSERT INTO pay_band_tiers (id, pay_config_id, from_hour, to_hour, rate, rate_basis)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), id, tier.From, tier.To, tier.Rate, basis)
	}
	return id
}

// Placement inserts an hourly placement with one open-ended bill rate
func (f *FixtureFactory) Placement(t *testing.T, ctx context.Context, employeeID, payConfigID uuid.UUID, configType, billRate string, start time.Time) uuid.UUID {
	id := uuid.New()
	f.exec(t, ctx, `
		INSERT INTO placements (id, employee_id, pay_type, pay_config_id, payroll_config_type, start_date)
		VALUES ($1, $2, 'hourly', $3, $4, $5)`,
		id, employeeID, payConfigID, configType, start)
	f.exec(t, ctx, `
		INSERT INTO bill_rates (id, placement_id, rate, effective_from)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(), id, billRate, start)
	return id
}

// Timesheet inserts a timesheet in the given status
func (f *FixtureFactory) Timesheet(t *testing.T, ctx context.Context, employeeID, placementID uuid.UUID, status string) uuid.UUID {
	id := uuid.New()
	f.exec(t, ctx, `INSERT INTO timesheets (id, employee_id, placement_id, status) VALUES ($1, $2, $3, $4)`,
		id, employeeID, placementID, status)
	return id
}

// Hours inserts one day of hours on a timesheet
func (f *FixtureFactory) Hours(t *testing.T, ctx context.Context, timesheetID, employeeID, placementID uuid.UUID, day time.Time, billable, ot string) uuid.UUID {
	id := uuid.New()
	f.exec(t, ctx, `
		INSERT INTO timesheet_hours (id, timesheet_id, placement_id, employee_id, work_date, billable_hours, ot_hours)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, timesheetID, placementID, employeeID, day, billable, ot)
	return id
}

// Expense inserts an approved payroll expense
func (f *FixtureFactory) Expense(t *testing.T, ctx context.Context, employeeID uuid.UUID, typ, amount string, raised time.Time) uuid.UUID {
	id := uuid.New()
	f.exec(t, ctx, `
		INSERT INTO expense_transactions (id, employee_id, type, amount, due_amount, raised_date)
		VALUES ($1, $2, $3, $4, $4, $5)`,
		id, employeeID, typ, amount, raised)
	return id
}
