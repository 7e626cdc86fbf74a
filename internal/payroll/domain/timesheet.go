package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TimesheetStatus is the approval state of the timesheet an entry belongs to
type TimesheetStatus string

const (
	TimesheetDraft     TimesheetStatus = "draft"
	TimesheetSubmitted TimesheetStatus = "submitted"
	TimesheetApproved  TimesheetStatus = "approved"
	TimesheetRejected  TimesheetStatus = "rejected"
)

// RaiseState tracks whether an hour entry was consumed by a payroll run or
// an invoice. It only ever moves open -> raised.
type RaiseState string

const (
	RaiseOpen   RaiseState = "open"
	RaiseRaised RaiseState = "raised"
)

// TimesheetHourEntry is one day of hours for one placement
type TimesheetHourEntry struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	TimesheetID     uuid.UUID       `db:"timesheet_id" json:"timesheet_id"`
	PlacementID     uuid.UUID       `db:"placement_id" json:"placement_id"`
	EmployeeID      uuid.UUID       `db:"employee_id" json:"employee_id"`
	WorkDate        time.Time       `db:"work_date" json:"work_date"`
	BillableHours   decimal.Decimal `db:"billable_hours" json:"billable_hours"`
	OTHours         decimal.Decimal `db:"ot_hours" json:"ot_hours"`
	TimesheetStatus TimesheetStatus `db:"timesheet_status" json:"timesheet_status"`
	PayrollState    RaiseState      `db:"-" json:"payroll_state"`
	InvoiceState    RaiseState      `db:"-" json:"invoice_state"`
}

// Approved reports whether the parent timesheet is approved
func (e *TimesheetHourEntry) Approved() bool {
	return e.TimesheetStatus == TimesheetApproved
}

// WorkedHours is billable plus overtime hours
func (e *TimesheetHourEntry) WorkedHours() decimal.Decimal {
	return e.BillableHours.Add(e.OTHours)
}

// MarkPayrollRaised consumes the entry for payroll
func (e *TimesheetHourEntry) MarkPayrollRaised() error {
	if e.PayrollState == RaiseRaised {
		return fmt.Errorf("hour entry %s already raised for payroll: %w", e.ID, ErrInvalidTransition)
	}
	if !e.Approved() {
		return fmt.Errorf("hour entry %s is not approved: %w", e.ID, ErrInvalidTransition)
	}
	e.PayrollState = RaiseRaised
	return nil
}
