package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	// Payroll events (published by payroll-service)
	EventPayrollPeriodDrafted   = "payroll.period.drafted"
	EventPayrollPeriodSubmitted = "payroll.period.submitted"
	EventPayrollPeriodSkipped   = "payroll.period.skipped"
	EventPayrollPaymentSettled  = "payroll.payment.settled"
	EventPayrollPaymentFinalize = "payroll.payment.finalized"

	// Timesheet events (consumed by payroll-service)
	EventTimesheetApproved = "staff.timesheet.approved"
)

// Exchange names
const (
	ExchangePayrollEvents = "payroll.events"
	ExchangeStaffEvents   = "staff.events"
	ExchangeDeadLetter    = "dlx.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Payroll Events

// PayrollPeriodEvent is published when a pay period changes status
type PayrollPeriodEvent struct {
	PeriodID      string    `json:"period_id"`
	PayScheduleID string    `json:"pay_schedule_id"`
	Status        string    `json:"status"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	Employees     int       `json:"employees,omitempty"`
	PendingLines  int       `json:"pending_lines,omitempty"`
	ReviewLines   int       `json:"review_lines,omitempty"`
	RaisedEntries int       `json:"raised_entries,omitempty"`
}

// PayrollPaymentEvent is published when an employee payment detail is
// settled or finalized
type PayrollPaymentEvent struct {
	PeriodID        string          `json:"period_id"`
	EmployeeID      string          `json:"employee_id"`
	State           string          `json:"state"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	CreditedExpense decimal.Decimal `json:"credited_expense"`
	DebitedExpense  decimal.Decimal `json:"debited_expense"`
	BalanceAmount   decimal.Decimal `json:"balance_amount"`
}

// Timesheet Events

// TimesheetApprovedEvent is published by the staff service when a
// timesheet is approved
type TimesheetApprovedEvent struct {
	TimesheetID string      `json:"timesheet_id"`
	EmployeeID  string      `json:"employee_id"`
	PlacementID string      `json:"placement_id"`
	WorkDates   []time.Time `json:"work_dates"`
	ApprovedBy  string      `json:"approved_by,omitempty"`
}
