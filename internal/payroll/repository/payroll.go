package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/staffline/backoffice/pkg/database"
)

const periodColumns = `id, pay_schedule_id, start_date, end_date, check_date, status, created_at, updated_at`

const ledgerColumns = `employee_id, pay_schedule_id, standard_pay, hours_worked, balance_amount, active, version`

const lineColumns = `id, employee_id, placement_id, period_id, worked_hours, billable_hours, ot_hours,
	total_amount, breakdown, status, timesheet_approval_pending, review_reason, created_at, updated_at`

const detailColumns = `id, employee_id, period_id, worked_hours, total_amount, amount_paid, amount_paid_manual,
	credited_expense, debited_expense, balance_amount, state, rolled_balance, rolled_hours,
	settled_at, finalized_at, created_at, updated_at`

// PayrollRepository persists pay periods, payroll lines, payment details
// and employee ledgers
type PayrollRepository struct {
	db *database.DB
}

// NewPayrollRepository creates a new payroll repository
func NewPayrollRepository(db *database.DB) *PayrollRepository {
	return &PayrollRepository{db: db}
}

// ============================================================================
// PAY PERIODS
// ============================================================================

// GetPeriod gets a pay period by ID
func (r *PayrollRepository) GetPeriod(ctx context.Context, id uuid.UUID) (*domain.PayPeriod, error) {
	var p domain.PayPeriod
	query := `SELECT ` + periodColumns + ` FROM pay_periods WHERE id = $1`
	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &p, query, id); err != nil {
		return nil, notFound(err, "pay period", id)
	}
	return &p, nil
}

// LockPeriod reads a pay period and holds its row lock until the
// surrounding transaction ends
func (r *PayrollRepository) LockPeriod(ctx context.Context, id uuid.UUID) (*domain.PayPeriod, error) {
	var p domain.PayPeriod
	query := `SELECT ` + periodColumns + ` FROM pay_periods WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &p, query, id); err != nil {
		return nil, notFound(err, "pay period", id)
	}
	return &p, nil
}

// UpdatePeriodStatus writes the period's status
func (r *PayrollRepository) UpdatePeriodStatus(ctx context.Context, p *domain.PayPeriod) error {
	query := `UPDATE pay_periods SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`
	if err := r.db.Querier(ctx).QueryRowxContext(ctx, query, p.ID, p.Status).Scan(&p.UpdatedAt); err != nil {
		return notFound(err, "pay period", p.ID)
	}
	return nil
}

// PeriodsCovering lists the schedule's periods overlapping [from, to]
func (r *PayrollRepository) PeriodsCovering(ctx context.Context, payScheduleID uuid.UUID, from, to time.Time) ([]domain.PayPeriod, error) {
	var periods []domain.PayPeriod
	query := `
		SELECT ` + periodColumns + `
		FROM pay_periods
		WHERE pay_schedule_id = $1 AND start_date <= $3 AND end_date >= $2
		ORDER BY start_date
	`
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &periods, query, payScheduleID, from, to); err != nil {
		return nil, err
	}
	return periods, nil
}

// ============================================================================
// EMPLOYEE LEDGERS
// ============================================================================

// EligibleEmployees lists the active employees paid on a schedule
func (r *PayrollRepository) EligibleEmployees(ctx context.Context, payScheduleID uuid.UUID) ([]domain.EmployeeLedger, error) {
	var ledgers []domain.EmployeeLedger
	query := `
		SELECT ` + ledgerColumns + `
		FROM employee_ledgers
		WHERE pay_schedule_id = $1 AND active
		ORDER BY employee_id
	`
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &ledgers, query, payScheduleID); err != nil {
		return nil, err
	}
	return ledgers, nil
}

// GetLedger gets an employee's ledger
func (r *PayrollRepository) GetLedger(ctx context.Context, employeeID uuid.UUID) (*domain.EmployeeLedger, error) {
	var l domain.EmployeeLedger
	query := `SELECT ` + ledgerColumns + ` FROM employee_ledgers WHERE employee_id = $1`
	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &l, query, employeeID); err != nil {
		return nil, notFound(err, "employee ledger", employeeID)
	}
	return &l, nil
}

// UpdateLedger writes the running counters when the version still matches
func (r *PayrollRepository) UpdateLedger(ctx context.Context, l *domain.EmployeeLedger) error {
	query := `
		UPDATE employee_ledgers
		SET hours_worked = $2, balance_amount = $3, version = version + 1, updated_at = NOW()
		WHERE employee_id = $1 AND version = $4
	`
	res, err := r.db.Querier(ctx).ExecContext(ctx, query, l.EmployeeID, l.HoursWorked, l.BalanceAmount, l.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("employee ledger %s at version %d: %w", l.EmployeeID, l.Version, domain.ErrConcurrentModification)
	}
	l.Version++
	return nil
}

// ============================================================================
// PAYROLL LINES
// ============================================================================

// ListLines lists a period's lines, optionally for one employee
func (r *PayrollRepository) ListLines(ctx context.Context, periodID uuid.UUID, employeeID *uuid.UUID) ([]domain.PayrollLine, error) {
	var lines []domain.PayrollLine
	query := `
		SELECT ` + lineColumns + `
		FROM payroll_lines
		WHERE period_id = $1 AND ($2::uuid IS NULL OR employee_id = $2)
		ORDER BY employee_id, created_at, id
	`
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &lines, query, periodID, employeeID); err != nil {
		return nil, err
	}
	return lines, nil
}

// UpsertLine inserts the line or replaces the one with the same
// employee, placement and period
func (r *PayrollRepository) UpsertLine(ctx context.Context, line *domain.PayrollLine) error {
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}

	q := r.db.Querier(ctx)
	query, args, err := q.BindNamed(`
		INSERT INTO payroll_lines (
			id, employee_id, placement_id, period_id, worked_hours, billable_hours, ot_hours,
			total_amount, breakdown, status, timesheet_approval_pending, review_reason
		) VALUES (
			:id, :employee_id, :placement_id, :period_id, :worked_hours, :billable_hours, :ot_hours,
			:total_amount, :breakdown, :status, :timesheet_approval_pending, :review_reason
		)
		ON CONFLICT (employee_id, period_id, COALESCE(placement_id, '00000000-0000-0000-0000-000000000000'::uuid))
		DO UPDATE SET
			worked_hours = EXCLUDED.worked_hours,
			billable_hours = EXCLUDED.billable_hours,
			ot_hours = EXCLUDED.ot_hours,
			total_amount = EXCLUDED.total_amount,
			breakdown = EXCLUDED.breakdown,
			status = EXCLUDED.status,
			timesheet_approval_pending = EXCLUDED.timesheet_approval_pending,
			review_reason = EXCLUDED.review_reason,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, line)
	if err != nil {
		return err
	}
	return q.QueryRowxContext(ctx, query, args...).Scan(&line.ID, &line.CreatedAt, &line.UpdatedAt)
}

// DeleteStaleLines removes an employee's lines for the period other than keep
func (r *PayrollRepository) DeleteStaleLines(ctx context.Context, periodID, employeeID uuid.UUID, keep []uuid.UUID) (int64, error) {
	query := `
		DELETE FROM payroll_lines
		WHERE period_id = $1 AND employee_id = $2 AND NOT (id = ANY($3::uuid[]))
	`
	res, err := r.db.Querier(ctx).ExecContext(ctx, query, periodID, employeeID, uuidArray(keep))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ============================================================================
// PAYMENT DETAILS
// ============================================================================

// GetDetail gets an employee's payment detail for a period
func (r *PayrollRepository) GetDetail(ctx context.Context, periodID, employeeID uuid.UUID) (*domain.PaymentDetail, error) {
	var d domain.PaymentDetail
	query := `SELECT ` + detailColumns + ` FROM payment_details WHERE period_id = $1 AND employee_id = $2`
	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &d, query, periodID, employeeID); err != nil {
		return nil, notFound(err, "payment detail of employee", employeeID)
	}
	return &d, nil
}

// ListDetails lists a period's payment details
func (r *PayrollRepository) ListDetails(ctx context.Context, periodID uuid.UUID) ([]domain.PaymentDetail, error) {
	var details []domain.PaymentDetail
	query := `SELECT ` + detailColumns + ` FROM payment_details WHERE period_id = $1 ORDER BY employee_id`
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &details, query, periodID); err != nil {
		return nil, err
	}
	return details, nil
}

// UpsertDetail inserts the detail or replaces the employee's detail for the period
func (r *PayrollRepository) UpsertDetail(ctx context.Context, d *domain.PaymentDetail) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	q := r.db.Querier(ctx)
	query, args, err := q.BindNamed(`
		INSERT INTO payment_details (
			id, employee_id, period_id, worked_hours, total_amount, amount_paid, amount_paid_manual,
			credited_expense, debited_expense, balance_amount, state, rolled_balance, rolled_hours,
			settled_at, finalized_at
		) VALUES (
			:id, :employee_id, :period_id, :worked_hours, :total_amount, :amount_paid, :amount_paid_manual,
			:credited_expense, :debited_expense, :balance_amount, :state, :rolled_balance, :rolled_hours,
			:settled_at, :finalized_at
		)
		ON CONFLICT ON CONSTRAINT payment_details_employee_period
		DO UPDATE SET
			worked_hours = EXCLUDED.worked_hours,
			total_amount = EXCLUDED.total_amount,
			amount_paid = EXCLUDED.amount_paid,
			amount_paid_manual = EXCLUDED.amount_paid_manual,
			credited_expense = EXCLUDED.credited_expense,
			debited_expense = EXCLUDED.debited_expense,
			balance_amount = EXCLUDED.balance_amount,
			state = EXCLUDED.state,
			rolled_balance = EXCLUDED.rolled_balance,
			rolled_hours = EXCLUDED.rolled_hours,
			settled_at = EXCLUDED.settled_at,
			finalized_at = EXCLUDED.finalized_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, d)
	if err != nil {
		return err
	}
	return q.QueryRowxContext(ctx, query, args...).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}
