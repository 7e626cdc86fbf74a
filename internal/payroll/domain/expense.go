package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExpenseType separates reimbursements from deductions
type ExpenseType string

const (
	ExpenseCredit ExpenseType = "credit"
	ExpenseDebit  ExpenseType = "debit"
)

// ExpenseEffect says whether an expense is settled through payroll or invoicing
type ExpenseEffect string

const (
	EffectPayroll ExpenseEffect = "payroll"
	EffectInvoice ExpenseEffect = "invoice"
)

// ExpenseStatus is the lifecycle state of an expense transaction
type ExpenseStatus string

const (
	ExpenseApproved            ExpenseStatus = "approved"
	ExpenseInProgress          ExpenseStatus = "in_progress"
	ExpenseDeductionInProgress ExpenseStatus = "deduction_in_progress"
	ExpenseProcessed           ExpenseStatus = "processed"
	ExpenseCancelled           ExpenseStatus = "cancelled"
)

// EligibleExpenseStatuses are the statuses netted at settlement
var EligibleExpenseStatuses = []ExpenseStatus{
	ExpenseApproved,
	ExpenseInProgress,
	ExpenseDeductionInProgress,
}

// ExpenseTransaction is an employee reimbursement (credit) or deduction (debit)
type ExpenseTransaction struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	EmployeeID     uuid.UUID        `db:"employee_id" json:"employee_id"`
	Type           ExpenseType      `db:"type" json:"type"`
	EffectOn       ExpenseEffect    `db:"effect_on" json:"effect_on"`
	Status         ExpenseStatus    `db:"status" json:"status"`
	Amount         decimal.Decimal  `db:"amount" json:"amount"`
	DueAmount      decimal.Decimal  `db:"due_amount" json:"due_amount"`
	GoalAmount     *decimal.Decimal `db:"goal_amount" json:"goal_amount,omitempty"`
	RecurringCount *int             `db:"recurring_count" json:"recurring_count,omitempty"`
	RaisedDate     time.Time        `db:"raised_date" json:"raised_date"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// Recurring reports whether the expense repeats over several cycles
func (e *ExpenseTransaction) Recurring() bool {
	return e.RecurringCount != nil
}

// HasGoal reports whether deductions are capped by a goal amount
func (e *ExpenseTransaction) HasGoal() bool {
	return e.GoalAmount != nil
}

// Eligible reports whether the expense takes part in a settlement with the given cutoff
func (e *ExpenseTransaction) Eligible(cutoff time.Time) bool {
	if e.EffectOn != EffectPayroll || DateOf(e.RaisedDate).After(DateOf(cutoff)) {
		return false
	}
	for _, s := range EligibleExpenseStatuses {
		if e.Status == s {
			return true
		}
	}
	return false
}

// ConsumeCycle decrements the recurrence count and reports whether it is exhausted
func (e *ExpenseTransaction) ConsumeCycle() (exhausted bool) {
	if e.RecurringCount == nil {
		return false
	}
	n := *e.RecurringCount - 1
	if n < 0 {
		n = 0
	}
	e.RecurringCount = &n
	return n == 0
}

// ExpenseTrack is the append-only record of an expense applied to a period.
// At most one exists per (expense, period).
type ExpenseTrack struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	ExpenseID  uuid.UUID       `db:"expense_id" json:"expense_id"`
	EmployeeID uuid.UUID       `db:"employee_id" json:"employee_id"`
	PeriodID   uuid.UUID       `db:"period_id" json:"period_id"`
	Type       ExpenseType     `db:"type" json:"type"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
