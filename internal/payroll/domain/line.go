package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineStatus is the outcome of building one payroll line
type LineStatus string

const (
	LineComputed        LineStatus = "computed"
	LineApprovalPending LineStatus = "approval_pending"
	LineNeedsReview     LineStatus = "needs_review"
)

// TierSegment is the part of one day's pay that fell into one tier
type TierSegment struct {
	Date           time.Time        `json:"date"`
	TierFrom       decimal.Decimal  `json:"tier_from"`
	TierTo         *decimal.Decimal `json:"tier_to,omitempty"`
	Basis          RateBasis        `json:"basis"`
	BillableRate   decimal.Decimal  `json:"billable_rate"`
	BillableHours  decimal.Decimal  `json:"billable_hours"`
	BillableAmount decimal.Decimal  `json:"billable_amount"`
	OTRate         decimal.Decimal  `json:"ot_rate"`
	OTHours        decimal.Decimal  `json:"ot_hours"`
	OTAmount       decimal.Decimal  `json:"ot_amount"`
	TotalHours     decimal.Decimal  `json:"total_hours"`
	TotalAmount    decimal.Decimal  `json:"total_amount"`
}

func (s TierSegment) rounded() TierSegment {
	s.BillableRate = Round2(s.BillableRate)
	s.BillableHours = Round2(s.BillableHours)
	s.BillableAmount = Round2(s.BillableAmount)
	s.OTRate = Round2(s.OTRate)
	s.OTHours = Round2(s.OTHours)
	s.OTAmount = Round2(s.OTAmount)
	s.TotalHours = Round2(s.TotalHours)
	s.TotalAmount = Round2(s.TotalAmount)
	return s
}

// DayBreakdown is the audit record of one timesheet day
type DayBreakdown struct {
	EntryID        uuid.UUID       `json:"entry_id"`
	Date           time.Time       `json:"date"`
	BillRate       decimal.Decimal `json:"bill_rate"`
	BillableHours  decimal.Decimal `json:"billable_hours"`
	OTHours        decimal.Decimal `json:"ot_hours"`
	Amount         decimal.Decimal `json:"amount"`
	Segments       []TierSegment   `json:"segments,omitempty"`
	UnmatchedHours decimal.Decimal `json:"unmatched_hours"`
	Note           string          `json:"note,omitempty"`
}

// Breakdown is the per-day audit trail stored with a line as JSONB
type Breakdown []DayBreakdown

// Value implements driver.Valuer
func (b Breakdown) Value() (driver.Value, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(b)
}

// Scan implements sql.Scanner
func (b *Breakdown) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*b = nil
		return nil
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	default:
		return fmt.Errorf("breakdown: unsupported scan type %T", src)
	}
}

// PayrollLine is the pay of one employee on one placement for one period.
// A nil PlacementID marks the zero line of an employee without placements.
type PayrollLine struct {
	ID                       uuid.UUID       `db:"id" json:"id"`
	EmployeeID               uuid.UUID       `db:"employee_id" json:"employee_id"`
	PlacementID              *uuid.UUID      `db:"placement_id" json:"placement_id,omitempty"`
	PeriodID                 uuid.UUID       `db:"period_id" json:"period_id"`
	WorkedHours              decimal.Decimal `db:"worked_hours" json:"worked_hours"`
	BillableHours            decimal.Decimal `db:"billable_hours" json:"billable_hours"`
	OTHours                  decimal.Decimal `db:"ot_hours" json:"ot_hours"`
	TotalAmount              decimal.Decimal `db:"total_amount" json:"total_amount"`
	Breakdown                Breakdown       `db:"breakdown" json:"breakdown"`
	Status                   LineStatus      `db:"status" json:"status"`
	TimesheetApprovalPending bool            `db:"timesheet_approval_pending" json:"timesheet_approval_pending"`
	ReviewReason             string          `db:"review_reason" json:"review_reason,omitempty"`
	CreatedAt                time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time       `db:"updated_at" json:"updated_at"`
}

// NewPendingLine is the zero line persisted while timesheets await approval
func NewPendingLine(employeeID uuid.UUID, placementID *uuid.UUID, periodID uuid.UUID) *PayrollLine {
	return &PayrollLine{
		EmployeeID:               employeeID,
		PlacementID:              placementID,
		PeriodID:                 periodID,
		Status:                   LineApprovalPending,
		TimesheetApprovalPending: true,
	}
}

// NewEmptyLine is the placement-less zero line of an employee with no active placement
func NewEmptyLine(employeeID, periodID uuid.UUID) *PayrollLine {
	return &PayrollLine{
		EmployeeID: employeeID,
		PeriodID:   periodID,
		Status:     LineComputed,
	}
}

// FlagForReview marks the line for manual review, keeping the first reason
func (l *PayrollLine) FlagForReview(reason string) {
	if l.Status == LineApprovalPending {
		return
	}
	l.Status = LineNeedsReview
	if l.ReviewReason == "" {
		l.ReviewReason = reason
	}
}

// Consumes reports whether submitting the period consumes this line's hours.
// Pending and review lines keep their hours open for a later run.
func (l *PayrollLine) Consumes() bool {
	return l.PlacementID != nil && l.Status == LineComputed
}

// ConsumedEntries is the set of hour entries the line was priced from.
// It is empty for lines that do not consume their hours.
func (l *PayrollLine) ConsumedEntries() map[uuid.UUID]bool {
	if !l.Consumes() {
		return nil
	}
	ids := make(map[uuid.UUID]bool, len(l.Breakdown))
	for _, d := range l.Breakdown {
		if d.EntryID != uuid.Nil {
			ids[d.EntryID] = true
		}
	}
	return ids
}

// Rounded returns a copy with every amount and hour rounded for storage
func (l PayrollLine) Rounded() PayrollLine {
	l.WorkedHours = Round2(l.WorkedHours)
	l.BillableHours = Round2(l.BillableHours)
	l.OTHours = Round2(l.OTHours)
	l.TotalAmount = Round2(l.TotalAmount)

	days := make(Breakdown, len(l.Breakdown))
	for i, d := range l.Breakdown {
		d.BillRate = Round2(d.BillRate)
		d.BillableHours = Round2(d.BillableHours)
		d.OTHours = Round2(d.OTHours)
		d.Amount = Round2(d.Amount)
		d.UnmatchedHours = Round2(d.UnmatchedHours)
		segs := make([]TierSegment, len(d.Segments))
		for j, s := range d.Segments {
			segs[j] = s.rounded()
		}
		if d.Segments == nil {
			segs = nil
		}
		d.Segments = segs
		days[i] = d
	}
	if l.Breakdown == nil {
		days = nil
	}
	l.Breakdown = days
	return l
}
