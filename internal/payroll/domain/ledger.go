package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EmployeeLedger holds an employee's lifetime payroll counters. It is
// written only during settlement, guarded by Version.
type EmployeeLedger struct {
	EmployeeID    uuid.UUID        `db:"employee_id" json:"employee_id"`
	PayScheduleID uuid.UUID        `db:"pay_schedule_id" json:"pay_schedule_id"`
	StandardPay   *decimal.Decimal `db:"standard_pay" json:"standard_pay,omitempty"`
	HoursWorked   decimal.Decimal  `db:"hours_worked" json:"hours_worked"`
	BalanceAmount decimal.Decimal  `db:"balance_amount" json:"balance_amount"`
	Active        bool             `db:"active" json:"active"`
	Version       int64            `db:"version" json:"version"`
}

// Roll adds a settlement delta to the running counters
func (l *EmployeeLedger) Roll(balance, hours decimal.Decimal) {
	l.BalanceAmount = Round2(l.BalanceAmount.Add(balance))
	l.HoursWorked = Round2(l.HoursWorked.Add(hours))
}
