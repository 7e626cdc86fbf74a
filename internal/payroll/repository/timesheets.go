package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/staffline/backoffice/pkg/database"
)

// TimesheetRepository reads timesheet hours and flips their payroll flag
type TimesheetRepository struct {
	db *database.DB
}

// NewTimesheetRepository creates a new timesheet repository
func NewTimesheetRepository(db *database.DB) *TimesheetRepository {
	return &TimesheetRepository{db: db}
}

// hourRow carries the raise flags as stored
type hourRow struct {
	domain.TimesheetHourEntry
	PayrollRaised bool `db:"payroll_raised"`
	InvoiceRaised bool `db:"invoice_raised"`
}

func raiseState(raised bool) domain.RaiseState {
	if raised {
		return domain.RaiseRaised
	}
	return domain.RaiseOpen
}

func (r hourRow) toDomain() domain.TimesheetHourEntry {
	e := r.TimesheetHourEntry
	e.PayrollState = raiseState(r.PayrollRaised)
	e.InvoiceState = raiseState(r.InvoiceRaised)
	return e
}

// HoursForPlacement lists the placement's entries in [from, to] not yet raised for payroll
func (r *TimesheetRepository) HoursForPlacement(ctx context.Context, placementID uuid.UUID, from, to time.Time) ([]domain.TimesheetHourEntry, error) {
	var rows []hourRow
	query := `
		SELECT h.id, h.timesheet_id, h.placement_id, h.employee_id, h.work_date,
		       h.billable_hours, h.ot_hours, t.status AS timesheet_status,
		       h.payroll_raised, h.invoice_raised
		FROM timesheet_hours h
		JOIN timesheets t ON t.id = h.timesheet_id
		WHERE h.placement_id = $1 AND h.work_date BETWEEN $2 AND $3 AND NOT h.payroll_raised
		ORDER BY h.work_date, h.id
	`
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &rows, query, placementID, from, to); err != nil {
		return nil, err
	}

	entries := make([]domain.TimesheetHourEntry, len(rows))
	for i, row := range rows {
		entries[i] = row.toDomain()
	}
	return entries, nil
}

// RaisedHours sums the hours of the placement already consumed by payroll
func (r *TimesheetRepository) RaisedHours(ctx context.Context, placementID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `
		SELECT COALESCE(SUM(billable_hours + ot_hours), 0)
		FROM timesheet_hours
		WHERE placement_id = $1 AND payroll_raised
	`
	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &total, query, placementID); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// MarkRaised flags the entries as consumed by payroll. Entries already
// raised are left alone and not counted.
func (r *TimesheetRepository) MarkRaised(ctx context.Context, entryIDs []uuid.UUID) (int64, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}
	query := `UPDATE timesheet_hours SET payroll_raised = TRUE WHERE id = ANY($1::uuid[]) AND NOT payroll_raised`
	res, err := r.db.Querier(ctx).ExecContext(ctx, query, uuidArray(entryIDs))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkApproved records a timesheet approval received from the staff service
func (r *TimesheetRepository) MarkApproved(ctx context.Context, timesheetID, approvedBy uuid.UUID, at time.Time) error {
	query := `
		UPDATE timesheets
		SET status = $2, approved_by = $3, approved_at = $4
		WHERE id = $1
	`
	res, err := r.db.Querier(ctx).ExecContext(ctx, query, timesheetID, domain.TimesheetApproved, approvedBy, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(sql.ErrNoRows, "timesheet", timesheetID)
	}
	return nil
}
