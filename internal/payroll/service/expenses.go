package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/staffline/backoffice/pkg/logger"
)

// AppliedExpense is one expense netted into a settlement
type AppliedExpense struct {
	ExpenseID uuid.UUID            `json:"expense_id"`
	Type      domain.ExpenseType   `json:"type"`
	Amount    decimal.Decimal      `json:"amount"`
	Status    domain.ExpenseStatus `json:"status"`
	// Previously is set when the expense was applied by an earlier
	// settlement of the same period and only counted here.
	Previously bool `json:"previously"`
}

// NetResult is the expense adjustment of one employee for one period
type NetResult struct {
	Credited decimal.Decimal
	Debited  decimal.Decimal
	Applied  []AppliedExpense
}

// ExpenseNetter applies eligible reimbursements and deductions at settlement
type ExpenseNetter struct {
	ledger ExpenseLedger
	now    func() time.Time
	logger *logger.Logger
}

func NewExpenseNetter(ledger ExpenseLedger, log *logger.Logger) *ExpenseNetter {
	return &ExpenseNetter{
		ledger: ledger,
		now:    time.Now,
		logger: log.WithComponent("expense-netter"),
	}
}

// Apply nets the employee's eligible expenses against the period.
//
// Expenses that already have a track row for the period are not applied
// again, but their tracked amounts still count towards the totals so a
// repeated settlement yields the same result.
func (n *ExpenseNetter) Apply(ctx context.Context, employeeID uuid.UUID, period *domain.PayPeriod) (*NetResult, error) {
	res := &NetResult{}

	tracks, err := n.ledger.TracksForPeriod(ctx, employeeID, period.ID)
	if err != nil {
		return nil, fmt.Errorf("load expense tracks: %w", err)
	}
	tracked := make(map[uuid.UUID]bool, len(tracks))
	for _, t := range tracks {
		tracked[t.ExpenseID] = true
		res.add(AppliedExpense{ExpenseID: t.ExpenseID, Type: t.Type, Amount: t.Amount, Previously: true})
	}

	expenses, err := n.ledger.EligibleExpenses(ctx, employeeID, period.Cutoff())
	if err != nil {
		return nil, fmt.Errorf("load eligible expenses: %w", err)
	}

	for i := range expenses {
		e := &expenses[i]
		if tracked[e.ID] || !e.Eligible(period.Cutoff()) {
			continue
		}

		var amount decimal.Decimal
		switch e.Type {
		case domain.ExpenseCredit:
			amount = applyCredit(e)
		case domain.ExpenseDebit:
			previous := decimal.Zero
			if e.HasGoal() {
				if previous, err = n.ledger.TrackedAmount(ctx, e.ID); err != nil {
					return nil, fmt.Errorf("tracked amount of expense %s: %w", e.ID, err)
				}
			}
			amount = applyDebit(e, previous)
		default:
			n.logger.Warn().Str("expense_id", e.ID.String()).Str("type", string(e.Type)).Msg("unknown expense type skipped")
			continue
		}

		// zero applications are tracked too, so a retry never consumes
		// another recurrence
		track := &domain.ExpenseTrack{
			ID:         uuid.New(),
			ExpenseID:  e.ID,
			EmployeeID: employeeID,
			PeriodID:   period.ID,
			Type:       e.Type,
			Amount:     domain.Round2(amount),
			CreatedAt:  n.now(),
		}
		err := n.ledger.RecordApplication(ctx, track)
		if errors.Is(err, domain.ErrAlreadyApplied) {
			n.logger.Debug().Str("expense_id", e.ID.String()).Msg("expense already applied to period")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("record expense %s: %w", e.ID, err)
		}

		if e.Type == domain.ExpenseDebit && e.HasGoal() && amount.IsZero() && e.Status == domain.ExpenseDeductionInProgress {
			n.logger.Warn().
				Str("expense_id", e.ID.String()).
				Str("due_amount", e.DueAmount.String()).
				Msg("deduction goal reached with an amount still due, close it manually")
		}

		if err := n.ledger.UpdateExpense(ctx, e); err != nil {
			return nil, fmt.Errorf("update expense %s: %w", e.ID, err)
		}
		res.add(AppliedExpense{ExpenseID: e.ID, Type: e.Type, Amount: amount, Status: e.Status})
	}

	return res, nil
}

func (r *NetResult) add(a AppliedExpense) {
	switch a.Type {
	case domain.ExpenseCredit:
		r.Credited = r.Credited.Add(a.Amount)
	case domain.ExpenseDebit:
		r.Debited = r.Debited.Add(a.Amount)
	}
	r.Applied = append(r.Applied, a)
}

// applyCredit credits a reimbursement. A recurring credit pays its full
// configured amount every cycle until the count runs out; a one-off pays
// what is due.
func applyCredit(e *domain.ExpenseTransaction) decimal.Decimal {
	if e.Recurring() {
		if e.ConsumeCycle() {
			e.Status = domain.ExpenseProcessed
			e.DueAmount = decimal.Zero
		} else {
			e.Status = domain.ExpenseInProgress
		}
		return e.Amount
	}

	amount := e.DueAmount
	e.DueAmount = decimal.Zero
	e.Status = domain.ExpenseProcessed
	return amount
}

// applyDebit deducts one cycle, capped by what is left of the goal amount.
func applyDebit(e *domain.ExpenseTransaction, previouslyTracked decimal.Decimal) decimal.Decimal {
	cycle := e.DueAmount
	exhausted := false
	if e.Recurring() {
		if e.Amount.IsPositive() {
			cycle = domain.MinDecimal(e.Amount, e.DueAmount)
		}
		exhausted = e.ConsumeCycle()
	}

	if e.HasGoal() {
		remaining := domain.MaxDecimal(e.GoalAmount.Sub(previouslyTracked), decimal.Zero)
		cycle = domain.MinDecimal(cycle, remaining)
	}
	cycle = domain.MaxDecimal(cycle, decimal.Zero)

	e.DueAmount = e.DueAmount.Sub(cycle)
	if !e.DueAmount.IsPositive() || exhausted {
		e.Status = domain.ExpenseProcessed
	} else {
		e.Status = domain.ExpenseDeductionInProgress
	}
	return cycle
}
