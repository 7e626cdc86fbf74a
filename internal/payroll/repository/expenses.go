package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/staffline/backoffice/pkg/database"
)

// ExpenseRepository persists expense transactions and their application trail
type ExpenseRepository struct {
	db *database.DB
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *database.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

// EligibleExpenses locks and lists the employee's payroll expenses raised
// on or before cutoff that are still open
func (r *ExpenseRepository) EligibleExpenses(ctx context.Context, employeeID uuid.UUID, cutoff time.Time) ([]domain.ExpenseTransaction, error) {
	statuses := make(pq.StringArray, len(domain.EligibleExpenseStatuses))
	for i, s := range domain.EligibleExpenseStatuses {
		statuses[i] = string(s)
	}

	var expenses []domain.ExpenseTransaction
	query := `
		SELECT id, employee_id, type, effect_on, status, amount, due_amount, goal_amount,
		       recurring_count, raised_date, updated_at
		FROM expense_transactions
		WHERE employee_id = $1 AND effect_on = $2 AND status = ANY($3) AND raised_date <= $4
		ORDER BY raised_date, id
		FOR UPDATE
	`
	err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &expenses, query,
		employeeID, domain.EffectPayroll, statuses, cutoff)
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

// TrackedAmount sums everything ever applied for the expense
func (r *ExpenseRepository) TrackedAmount(ctx context.Context, expenseID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `SELECT COALESCE(SUM(amount), 0) FROM expense_tracks WHERE expense_id = $1`
	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &total, query, expenseID); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// TracksForPeriod lists the expenses already applied to the employee's period
func (r *ExpenseRepository) TracksForPeriod(ctx context.Context, employeeID, periodID uuid.UUID) ([]domain.ExpenseTrack, error) {
	var tracks []domain.ExpenseTrack
	query := `
		SELECT id, expense_id, employee_id, period_id, type, amount, created_at
		FROM expense_tracks
		WHERE employee_id = $1 AND period_id = $2
		ORDER BY created_at, id
	`
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &tracks, query, employeeID, periodID); err != nil {
		return nil, err
	}
	return tracks, nil
}

// RecordApplication appends a track row. A second row for the same
// expense and period is refused with domain.ErrAlreadyApplied without
// aborting the surrounding transaction.
func (r *ExpenseRepository) RecordApplication(ctx context.Context, track *domain.ExpenseTrack) error {
	if track.ID == uuid.Nil {
		track.ID = uuid.New()
	}
	if track.CreatedAt.IsZero() {
		track.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO expense_tracks (id, expense_id, employee_id, period_id, type, amount, created_at)
		VALUES (:id, :expense_id, :employee_id, :period_id, :type, :amount, :created_at)
		ON CONFLICT ON CONSTRAINT expense_tracks_expense_period DO NOTHING
	`
	res, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, track)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("expense %s, period %s: %w", track.ExpenseID, track.PeriodID, domain.ErrAlreadyApplied)
	}
	return nil
}

// UpdateExpense writes the expense's progress
func (r *ExpenseRepository) UpdateExpense(ctx context.Context, e *domain.ExpenseTransaction) error {
	query := `
		UPDATE expense_transactions
		SET status = :status, due_amount = :due_amount, recurring_count = :recurring_count, updated_at = NOW()
		WHERE id = :id
	`
	res, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, e)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", e.ID, domain.ErrNotFound)
	}
	return nil
}
