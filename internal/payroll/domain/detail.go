package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DetailState is the lifecycle of an employee's payment for one period
type DetailState string

const (
	DetailDraft     DetailState = "draft"
	DetailSettled   DetailState = "settled"
	DetailFinalized DetailState = "finalized"
)

// PaymentDetail aggregates an employee's lines for one period and carries
// the settlement outcome.
//
// RolledBalance and RolledHours record what has already been added to the
// employee ledger so a re-settlement only rolls the difference.
type PaymentDetail struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	EmployeeID       uuid.UUID       `db:"employee_id" json:"employee_id"`
	PeriodID         uuid.UUID       `db:"period_id" json:"period_id"`
	WorkedHours      decimal.Decimal `db:"worked_hours" json:"worked_hours"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"total_amount"`
	AmountPaid       decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	AmountPaidManual bool            `db:"amount_paid_manual" json:"amount_paid_manual"`
	CreditedExpense  decimal.Decimal `db:"credited_expense" json:"credited_expense"`
	DebitedExpense   decimal.Decimal `db:"debited_expense" json:"debited_expense"`
	BalanceAmount    decimal.Decimal `db:"balance_amount" json:"balance_amount"`
	State            DetailState     `db:"state" json:"state"`
	RolledBalance    decimal.Decimal `db:"rolled_balance" json:"-"`
	RolledHours      decimal.Decimal `db:"rolled_hours" json:"-"`
	SettledAt        *time.Time      `db:"settled_at" json:"settled_at,omitempty"`
	FinalizedAt      *time.Time      `db:"finalized_at" json:"finalized_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// NewDraftDetail starts a draft detail for an employee and period
func NewDraftDetail(employeeID, periodID uuid.UUID) *PaymentDetail {
	return &PaymentDetail{
		EmployeeID: employeeID,
		PeriodID:   periodID,
		State:      DetailDraft,
	}
}

// IsFinalized reports the terminal lock
func (d *PaymentDetail) IsFinalized() bool {
	return d.State == DetailFinalized
}

// Balance computes total + credited - debited - paid
func (d *PaymentDetail) Balance() decimal.Decimal {
	return d.TotalAmount.Add(d.CreditedExpense).Sub(d.DebitedExpense).Sub(d.AmountPaid)
}

// NetPayable is what the employee is owed before anything is paid
func (d *PaymentDetail) NetPayable() decimal.Decimal {
	return d.TotalAmount.Add(d.CreditedExpense).Sub(d.DebitedExpense)
}

// Redraft replaces the generated totals. Only draft details can be regenerated.
func (d *PaymentDetail) Redraft(lines []*PayrollLine) error {
	if d.State != DetailDraft {
		return fmt.Errorf("payment detail %s is %s: %w", d.ID, d.State, ErrInvalidTransition)
	}
	total, worked := decimal.Zero, decimal.Zero
	for _, l := range lines {
		total = total.Add(Round2(l.TotalAmount))
		worked = worked.Add(Round2(l.WorkedHours))
	}
	d.TotalAmount = total
	d.WorkedHours = worked
	d.BalanceAmount = d.Balance()
	return nil
}

// Settle records the expense netting and amount paid, recomputes the
// balance and moves the detail to settled. Settling a settled detail again
// is allowed; finalized details are locked.
func (d *PaymentDetail) Settle(credited, debited, amountPaid decimal.Decimal, at time.Time) error {
	if d.State == DetailFinalized {
		return fmt.Errorf("payment detail %s is finalized: %w", d.ID, ErrInvalidTransition)
	}
	d.CreditedExpense = Round2(credited)
	d.DebitedExpense = Round2(debited)
	d.AmountPaid = Round2(amountPaid)
	d.BalanceAmount = d.Balance()
	d.State = DetailSettled
	d.SettledAt = &at
	return nil
}

// AmendAmountPaid changes the amount paid before finalize. A settled
// detail gets its balance recomputed.
func (d *PaymentDetail) AmendAmountPaid(amount decimal.Decimal) error {
	if d.State == DetailFinalized {
		return fmt.Errorf("payment detail %s is finalized: %w", d.ID, ErrInvalidTransition)
	}
	d.AmountPaid = Round2(amount)
	d.AmountPaidManual = true
	d.BalanceAmount = d.Balance()
	return nil
}

// Finalize locks a settled detail
func (d *PaymentDetail) Finalize(at time.Time) error {
	if d.State != DetailSettled {
		return fmt.Errorf("payment detail %s is %s, only settled details can be finalized: %w",
			d.ID, d.State, ErrInvalidTransition)
	}
	d.State = DetailFinalized
	d.FinalizedAt = &at
	return nil
}

// TakeRollDelta returns what still has to be rolled into the employee
// ledger and marks it as rolled.
func (d *PaymentDetail) TakeRollDelta() (balance, hours decimal.Decimal) {
	balance = d.BalanceAmount.Sub(d.RolledBalance)
	hours = d.WorkedHours.Sub(d.RolledHours)
	d.RolledBalance = d.BalanceAmount
	d.RolledHours = d.WorkedHours
	return balance, hours
}
