//go:build integration

package repository_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/staffline/backoffice/internal/payroll/events"
	"github.com/staffline/backoffice/internal/payroll/repository"
	"github.com/staffline/backoffice/internal/payroll/service"
	"github.com/staffline/backoffice/pkg/config"
	"github.com/staffline/backoffice/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

var payrollTables = []string{
	"expense_tracks", "expense_transactions", "payment_details", "payroll_lines",
	"timesheet_hours", "timesheets", "bill_rates", "placements", "pay_band_tiers",
	"pay_configs", "employee_ledgers", "pay_periods", "pay_schedules",
}

func TestMain(m *testing.M) {
	ctx := context.Background()
	var err error
	suite, err = testutil.NewIntegrationSuite(ctx, repository.Migrate)
	if err != nil {
		log.Fatal(err)
	}
	code := m.Run()
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

func newPayrollService() (*service.PayrollService, *repository.PayrollRepository) {
	db := suite.DB
	timesheets := repository.NewTimesheetRepository(db)
	placements := repository.NewPlacementRepository(db)
	payroll := repository.NewPayrollRepository(db)

	builder := service.NewLineBuilder(
		timesheets,
		placements,
		service.NewBandResolver(repository.NewPayConfigRepository(db)),
		service.DefaultBaselines(timesheets),
		service.LineBuilderConfig{SalaryRemainderOnLastDay: true},
		suite.Logger,
	)
	netter := service.NewExpenseNetter(repository.NewExpenseRepository(db), suite.Logger)

	svc := service.NewPayrollService(db, payroll, timesheets, placements, builder, netter, events.Nop{},
		config.PayrollConfig{DefaultAmountPaid: config.AmountPaidNetPayable}, suite.Logger)
	return svc, payroll
}

func TestPayrollRun_EndToEnd(t *testing.T) {
	ctx := context.Background()
	suite.Reset(t, ctx, payrollTables...)
	f := suite.Fixtures
	svc, payroll := newPayrollService()

	start, end := domain.Date(2024, 3, 4), domain.Date(2024, 3, 17)
	schedule := f.PaySchedule(t, ctx)
	periodID := f.PayPeriod(t, ctx, schedule, start, end)

	forty := "40"
	payConfig := f.PayConfig(t, ctx, "same_as_base", "",
		testutil.Tier{From: "0", To: &forty, Rate: "20"},
		testutil.Tier{From: "40", Rate: "30"},
	)

	// approved employee crossing the 40 hour tier boundary
	paid := f.Ledger(t, ctx, schedule, "35")
	paidPlacement := f.Placement(t, ctx, paid, payConfig, "global", "40", domain.Date(2024, 1, 1))
	approved := f.Timesheet(t, ctx, paid, paidPlacement, "approved")
	f.Hours(t, ctx, approved, paid, paidPlacement, domain.Date(2024, 3, 5), "10", "0")
	f.Expense(t, ctx, paid, "debit", "100", domain.Date(2024, 3, 1))

	// employee whose timesheet is still waiting for approval
	waiting := f.Ledger(t, ctx, schedule, "0")
	waitingPlacement := f.Placement(t, ctx, waiting, payConfig, "global", "40", domain.Date(2024, 1, 1))
	submitted := f.Timesheet(t, ctx, waiting, waitingPlacement, "submitted")
	waitingHours := f.Hours(t, ctx, submitted, waiting, waitingPlacement, domain.Date(2024, 3, 5), "8", "0")

	summary, err := svc.Generate(ctx, periodID, service.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Employees)
	assert.Equal(t, 1, summary.PendingLines)

	lines, err := svc.Lines(ctx, periodID, paid)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, decimal.NewFromInt(250).Equal(lines[0].TotalAmount), "got %s", lines[0].TotalAmount)
	require.Len(t, lines[0].Breakdown, 1)
	assert.Len(t, lines[0].Breakdown[0].Segments, 2)

	// regenerating replaces the draft instead of duplicating it
	_, err = svc.Generate(ctx, periodID, service.GenerateOptions{})
	require.NoError(t, err)
	lines, err = svc.Lines(ctx, periodID, paid)
	require.NoError(t, err)
	assert.Len(t, lines, 1)

	summary, err = svc.Submit(ctx, periodID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RaisedEntries)

	var raised bool
	require.NoError(t, suite.RawDB.GetContext(ctx, &raised,
		`SELECT payroll_raised FROM timesheet_hours WHERE id = $1`, waitingHours))
	assert.False(t, raised, "pending hours must stay available for a later period")

	settled, err := svc.Settle(ctx, periodID, nil)
	require.NoError(t, err)
	assert.Len(t, settled, 2)

	detail, err := payroll.GetDetail(ctx, periodID, paid)
	require.NoError(t, err)
	assert.Equal(t, domain.DetailSettled, detail.State)
	assert.True(t, decimal.NewFromInt(100).Equal(detail.DebitedExpense))
	assert.True(t, decimal.NewFromInt(150).Equal(detail.AmountPaid))
	assert.True(t, detail.TotalAmount.Add(detail.CreditedExpense).Sub(detail.DebitedExpense).Sub(detail.AmountPaid).Equal(detail.BalanceAmount))

	ledger, err := payroll.GetLedger(ctx, paid)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(45).Equal(ledger.HoursWorked), "got %s", ledger.HoursWorked)

	var expenseStatus string
	require.NoError(t, suite.RawDB.GetContext(ctx, &expenseStatus,
		`SELECT status FROM expense_transactions WHERE employee_id = $1`, paid))
	assert.Equal(t, string(domain.ExpenseProcessed), expenseStatus)

	// settling again changes nothing
	_, err = svc.Settle(ctx, periodID, nil)
	require.NoError(t, err)
	again, err := payroll.GetLedger(ctx, paid)
	require.NoError(t, err)
	assert.True(t, ledger.HoursWorked.Equal(again.HoursWorked))
	assert.Equal(t, ledger.Version, again.Version)

	var tracks int
	require.NoError(t, suite.RawDB.GetContext(ctx, &tracks,
		`SELECT COUNT(*) FROM expense_tracks WHERE employee_id = $1`, paid))
	assert.Equal(t, 1, tracks)

	finalized, err := svc.Finalize(ctx, periodID, []uuid.UUID{paid})
	require.NoError(t, err)
	require.Len(t, finalized, 1)
	assert.Equal(t, domain.DetailFinalized, finalized[0].State)
}

func TestPayrollRepository_UpdateLedgerVersionConflict(t *testing.T) {
	ctx := context.Background()
	suite.Reset(t, ctx, payrollTables...)
	_, payroll := newPayrollService()

	schedule := suite.Fixtures.PaySchedule(t, ctx)
	emp := suite.Fixtures.Ledger(t, ctx, schedule, "0")

	first, err := payroll.GetLedger(ctx, emp)
	require.NoError(t, err)
	second, err := payroll.GetLedger(ctx, emp)
	require.NoError(t, err)

	first.Roll(decimal.NewFromInt(10), decimal.NewFromInt(8))
	require.NoError(t, payroll.UpdateLedger(ctx, first))

	second.Roll(decimal.NewFromInt(5), decimal.NewFromInt(4))
	err = payroll.UpdateLedger(ctx, second)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
}

func TestExpenseRepository_RecordApplicationOncePerPeriod(t *testing.T) {
	ctx := context.Background()
	suite.Reset(t, ctx, payrollTables...)
	repo := repository.NewExpenseRepository(suite.DB)

	schedule := suite.Fixtures.PaySchedule(t, ctx)
	periodID := suite.Fixtures.PayPeriod(t, ctx, schedule, domain.Date(2024, 3, 4), domain.Date(2024, 3, 17))
	emp := suite.Fixtures.Ledger(t, ctx, schedule, "0")
	expenseID := suite.Fixtures.Expense(t, ctx, emp, "credit", "75", domain.Date(2024, 3, 1))

	track := func() *domain.ExpenseTrack {
		return &domain.ExpenseTrack{
			ExpenseID:  expenseID,
			EmployeeID: emp,
			PeriodID:   periodID,
			Type:       domain.ExpenseCredit,
			Amount:     decimal.NewFromInt(75),
		}
	}

	err := suite.DB.Transaction(ctx, func(ctx context.Context) error {
		if err := repo.RecordApplication(ctx, track()); err != nil {
			return err
		}
		// the duplicate is refused without aborting the transaction
		if err := repo.RecordApplication(ctx, track()); !assert.ErrorIs(t, err, domain.ErrAlreadyApplied) {
			return err
		}
		total, err := repo.TrackedAmount(ctx, expenseID)
		if err != nil {
			return err
		}
		assert.True(t, decimal.NewFromInt(75).Equal(total))
		return nil
	})
	require.NoError(t, err)
}
