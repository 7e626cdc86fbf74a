package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/staffline/backoffice/pkg/actor"
	"github.com/staffline/backoffice/pkg/config"
	"github.com/staffline/backoffice/pkg/logger"
)

// GenerateOptions narrows a generation run
type GenerateOptions struct {
	// EmployeeIDs limits the run to these employees. Empty means everyone
	// active on the period's pay schedule.
	EmployeeIDs []uuid.UUID
}

// SettleRequest is the settlement input for one employee
type SettleRequest struct {
	EmployeeID uuid.UUID        `json:"employee_id" validate:"required"`
	AmountPaid *decimal.Decimal `json:"amount_paid,omitempty" validate:"omitempty,gte=0"`
}

// PayrollService coordinates generation, submission, settlement and
// finalization of pay periods. Every mutating call runs in one transaction.
type PayrollService struct {
	uow        UnitOfWork
	store      PayrollStore
	timesheets TimesheetProvider
	placements PlacementProvider
	builder    *LineBuilder
	netter     *ExpenseNetter
	notifier   Notifier
	cfg        config.PayrollConfig
	now        func() time.Time
	logger     *logger.Logger
}

// NewPayrollService creates a new payroll service
func NewPayrollService(
	uow UnitOfWork,
	store PayrollStore,
	timesheets TimesheetProvider,
	placements PlacementProvider,
	builder *LineBuilder,
	netter *ExpenseNetter,
	notifier Notifier,
	cfg config.PayrollConfig,
	log *logger.Logger,
) *PayrollService {
	return &PayrollService{
		uow:        uow,
		store:      store,
		timesheets: timesheets,
		placements: placements,
		builder:    builder,
		netter:     netter,
		notifier:   notifier,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     log.WithComponent("payroll-service"),
	}
}

// Generate builds lines and draft payment details for a scheduled or
// drafted period and moves it to drafted. Re-running it replaces the
// previous draft; settled and finalized details are left alone.
func (s *PayrollService) Generate(ctx context.Context, periodID uuid.UUID, opts GenerateOptions) (*domain.RunSummary, error) {
	started := time.Now()
	var (
		period  *domain.PayPeriod
		summary domain.RunSummary
	)

	err := s.transaction(ctx, func(ctx context.Context) error {
		var err error
		period, err = s.store.LockPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if !period.Generatable() {
			return fmt.Errorf("cannot generate pay period %s in status %s: %w", period.ID, period.Status, domain.ErrInvalidTransition)
		}

		ledgers, err := s.store.EligibleEmployees(ctx, period.PayScheduleID)
		if err != nil {
			return fmt.Errorf("load eligible employees: %w", err)
		}
		only := make(map[uuid.UUID]bool, len(opts.EmployeeIDs))
		for _, id := range opts.EmployeeIDs {
			only[id] = true
		}

		for i := range ledgers {
			ledger := &ledgers[i]
			if len(only) > 0 && !only[ledger.EmployeeID] {
				continue
			}
			if err := s.generateEmployee(ctx, period, ledger, &summary); err != nil {
				return fmt.Errorf("employee %s: %w", ledger.EmployeeID, err)
			}
		}

		if err := period.Transition(domain.PeriodDrafted); err != nil {
			return err
		}
		return s.store.UpdatePeriodStatus(ctx, period)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithPeriodID(period.ID.String()).Info().
		Str("actor", actor.FromContext(ctx).String()).
		Int("employees", summary.Employees).
		Int("skipped", summary.Skipped).
		Int("pending_lines", summary.PendingLines).
		Int("review_lines", summary.ReviewLines).
		Dur("duration", time.Since(started)).
		Msg("payroll generated")

	s.notifier.PeriodStatusChanged(ctx, period, summary)
	return &summary, nil
}

func (s *PayrollService) generateEmployee(ctx context.Context, period *domain.PayPeriod, ledger *domain.EmployeeLedger, summary *domain.RunSummary) error {
	log := s.logger.WithEmployeeID(ledger.EmployeeID.String())

	detail, err := s.store.GetDetail(ctx, period.ID, ledger.EmployeeID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		detail = domain.NewDraftDetail(ledger.EmployeeID, period.ID)
	case err != nil:
		return err
	}
	if detail.State != domain.DetailDraft {
		log.Debug().Str("state", string(detail.State)).Msg("payment detail past draft, not regenerated")
		summary.Skipped++
		return nil
	}

	placements, err := s.placements.ActivePlacements(ctx, ledger.EmployeeID, period.StartDate, period.EndDate)
	if err != nil {
		return fmt.Errorf("load placements: %w", err)
	}

	var lines []*domain.PayrollLine
	if len(placements) == 0 {
		lines = append(lines, domain.NewEmptyLine(ledger.EmployeeID, period.ID))
	}

	// Global placements share one cumulative counter, so each one starts
	// where the previous one in this run left off.
	offset := decimal.Zero
	for i := range placements {
		placement := &placements[i]
		line, err := s.builder.Build(ctx, BuildRequest{
			Ledger:    ledger,
			Placement: placement,
			Period:    period,
			Offset:    offset,
		})
		if err != nil {
			return err
		}
		if placement.PayrollConfigType == domain.PayrollConfigGlobal {
			offset = offset.Add(line.WorkedHours)
		}
		lines = append(lines, line)
	}

	keep := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		stored := line.Rounded()
		if err := s.store.UpsertLine(ctx, &stored); err != nil {
			return fmt.Errorf("save payroll line: %w", err)
		}
		line.ID = stored.ID
		keep = append(keep, stored.ID)

		switch line.Status {
		case domain.LineApprovalPending:
			summary.PendingLines++
		case domain.LineNeedsReview:
			summary.ReviewLines++
		}
	}

	removed, err := s.store.DeleteStaleLines(ctx, period.ID, ledger.EmployeeID, keep)
	if err != nil {
		return fmt.Errorf("delete stale lines: %w", err)
	}
	if removed > 0 {
		log.Debug().Int64("removed", removed).Msg("stale payroll lines removed")
	}

	if err := detail.Redraft(lines); err != nil {
		return err
	}
	if err := s.store.UpsertDetail(ctx, detail); err != nil {
		return fmt.Errorf("save payment detail: %w", err)
	}

	summary.Employees++
	return nil
}

// Submit moves a drafted period to submitted and consumes the timesheet
// hours every computed line was priced from so they are never paid twice.
func (s *PayrollService) Submit(ctx context.Context, periodID uuid.UUID) (*domain.RunSummary, error) {
	var (
		period  *domain.PayPeriod
		summary domain.RunSummary
	)

	err := s.transaction(ctx, func(ctx context.Context) error {
		var err error
		period, err = s.store.LockPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Status != domain.PeriodDrafted {
			return fmt.Errorf("cannot submit pay period %s in status %s: %w", period.ID, period.Status, domain.ErrInvalidTransition)
		}

		lines, err := s.store.ListLines(ctx, period.ID, nil)
		if err != nil {
			return fmt.Errorf("load payroll lines: %w", err)
		}

		employees := map[uuid.UUID]bool{}
		var ids []uuid.UUID
		for i := range lines {
			line := &lines[i]
			employees[line.EmployeeID] = true
			switch line.Status {
			case domain.LineApprovalPending:
				summary.PendingLines++
			case domain.LineNeedsReview:
				summary.ReviewLines++
			}
			consumed := line.ConsumedEntries()
			if len(consumed) == 0 {
				continue
			}

			// entries approved after the line was priced stay open
			entries, err := s.timesheets.HoursForPlacement(ctx, *line.PlacementID, period.StartDate, period.EndDate)
			if err != nil {
				return fmt.Errorf("load hours for placement %s: %w", *line.PlacementID, err)
			}
			for j := range entries {
				if !consumed[entries[j].ID] {
					continue
				}
				if err := entries[j].MarkPayrollRaised(); err != nil {
					s.logger.Warn().Err(err).Str("entry_id", entries[j].ID.String()).Msg("hour entry not consumed")
					continue
				}
				ids = append(ids, entries[j].ID)
			}
		}
		summary.Employees = len(employees)

		if len(ids) > 0 {
			raised, err := s.timesheets.MarkRaised(ctx, ids)
			if err != nil {
				return fmt.Errorf("mark hours raised: %w", err)
			}
			summary.RaisedEntries = int(raised)
		}

		if err := period.Transition(domain.PeriodSubmitted); err != nil {
			return err
		}
		return s.store.UpdatePeriodStatus(ctx, period)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithPeriodID(period.ID.String()).Info().
		Str("actor", actor.FromContext(ctx).String()).
		Int("employees", summary.Employees).
		Int("raised_entries", summary.RaisedEntries).
		Int("pending_lines", summary.PendingLines).
		Msg("payroll submitted")

	s.notifier.PeriodStatusChanged(ctx, period, summary)
	return &summary, nil
}

// Settle nets expenses, records the amount paid and rolls the balance
// into each employee's ledger. An empty request list settles every
// payment detail of the period. Settling again with the same input
// changes nothing.
func (s *PayrollService) Settle(ctx context.Context, periodID uuid.UUID, reqs []SettleRequest) ([]domain.PaymentDetail, error) {
	var settled []domain.PaymentDetail
	skipped := 0

	err := s.transaction(ctx, func(ctx context.Context) error {
		settled, skipped = nil, 0

		period, err := s.store.LockPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Status != domain.PeriodSubmitted {
			return fmt.Errorf("cannot settle pay period %s in status %s: %w", period.ID, period.Status, domain.ErrInvalidTransition)
		}

		details, byEmployee, err := s.detailsFor(ctx, period.ID, reqs)
		if err != nil {
			return err
		}

		for i := range details {
			detail := &details[i]
			if detail.IsFinalized() {
				skipped++
				continue
			}
			if err := s.settleDetail(ctx, period, detail, byEmployee[detail.EmployeeID]); err != nil {
				return fmt.Errorf("employee %s: %w", detail.EmployeeID, err)
			}
			settled = append(settled, *detail)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithPeriodID(periodID.String()).Info().
		Str("actor", actor.FromContext(ctx).String()).
		Int("settled", len(settled)).
		Int("skipped", skipped).
		Msg("payroll settled")

	for i := range settled {
		s.notifier.PaymentStateChanged(ctx, &settled[i])
	}
	return settled, nil
}

func (s *PayrollService) detailsFor(ctx context.Context, periodID uuid.UUID, reqs []SettleRequest) ([]domain.PaymentDetail, map[uuid.UUID]*SettleRequest, error) {
	byEmployee := make(map[uuid.UUID]*SettleRequest, len(reqs))
	if len(reqs) == 0 {
		details, err := s.store.ListDetails(ctx, periodID)
		if err != nil {
			return nil, nil, fmt.Errorf("load payment details: %w", err)
		}
		return details, byEmployee, nil
	}

	details := make([]domain.PaymentDetail, 0, len(reqs))
	for i := range reqs {
		req := &reqs[i]
		if _, dup := byEmployee[req.EmployeeID]; dup {
			return nil, nil, fmt.Errorf("employee %s listed twice: %w", req.EmployeeID, domain.ErrInvalidInput)
		}
		byEmployee[req.EmployeeID] = req

		detail, err := s.store.GetDetail(ctx, periodID, req.EmployeeID)
		if err != nil {
			return nil, nil, fmt.Errorf("payment detail of employee %s: %w", req.EmployeeID, err)
		}
		details = append(details, *detail)
	}
	return details, byEmployee, nil
}

func (s *PayrollService) settleDetail(ctx context.Context, period *domain.PayPeriod, detail *domain.PaymentDetail, req *SettleRequest) error {
	ledger, err := s.store.GetLedger(ctx, detail.EmployeeID)
	if err != nil {
		return fmt.Errorf("load employee ledger: %w", err)
	}

	net, err := s.netter.Apply(ctx, detail.EmployeeID, period)
	if err != nil {
		return err
	}

	paid := s.amountPaid(detail, req, ledger, net)
	if err := detail.Settle(net.Credited, net.Debited, paid, s.now()); err != nil {
		return err
	}
	if err := s.rollLedger(ctx, ledger, detail); err != nil {
		return err
	}
	if err := s.store.UpsertDetail(ctx, detail); err != nil {
		return fmt.Errorf("save payment detail: %w", err)
	}

	s.logger.WithEmployeeID(detail.EmployeeID.String()).Debug().
		Str("total", detail.TotalAmount.StringFixed(2)).
		Str("credited", detail.CreditedExpense.StringFixed(2)).
		Str("debited", detail.DebitedExpense.StringFixed(2)).
		Str("paid", detail.AmountPaid.StringFixed(2)).
		Str("balance", detail.BalanceAmount.StringFixed(2)).
		Msg("payment detail settled")
	return nil
}

// amountPaid picks the explicit request value, then an amount already on
// the detail, then the employee's standard pay, then the net payable.
func (s *PayrollService) amountPaid(detail *domain.PaymentDetail, req *SettleRequest, ledger *domain.EmployeeLedger, net *NetResult) decimal.Decimal {
	if req != nil && req.AmountPaid != nil {
		return *req.AmountPaid
	}
	if detail.AmountPaidManual || detail.State == domain.DetailSettled {
		return detail.AmountPaid
	}
	if s.cfg.DefaultAmountPaid == config.AmountPaidStandardPay && ledger.StandardPay != nil {
		return *ledger.StandardPay
	}
	payable := detail.TotalAmount.Add(net.Credited).Sub(net.Debited)
	return domain.MaxDecimal(payable, decimal.Zero)
}

func (s *PayrollService) rollLedger(ctx context.Context, ledger *domain.EmployeeLedger, detail *domain.PaymentDetail) error {
	balance, hours := detail.TakeRollDelta()
	if balance.IsZero() && hours.IsZero() {
		return nil
	}
	ledger.Roll(balance, hours)
	if err := s.store.UpdateLedger(ctx, ledger); err != nil {
		return fmt.Errorf("update employee ledger: %w", err)
	}
	return nil
}

// Finalize locks settled payment details. An empty employee list
// finalizes every settled detail of the period. Finalized details are
// skipped; draft details cannot be finalized.
func (s *PayrollService) Finalize(ctx context.Context, periodID uuid.UUID, employeeIDs []uuid.UUID) ([]domain.PaymentDetail, error) {
	var finalized []domain.PaymentDetail

	err := s.transaction(ctx, func(ctx context.Context) error {
		finalized = nil

		period, err := s.store.LockPeriod(ctx, periodID)
		if err != nil {
			return err
		}

		var details []domain.PaymentDetail
		if len(employeeIDs) == 0 {
			all, err := s.store.ListDetails(ctx, period.ID)
			if err != nil {
				return fmt.Errorf("load payment details: %w", err)
			}
			for _, d := range all {
				if d.State == domain.DetailSettled {
					details = append(details, d)
				}
			}
		} else {
			for _, id := range employeeIDs {
				d, err := s.store.GetDetail(ctx, period.ID, id)
				if err != nil {
					return fmt.Errorf("payment detail of employee %s: %w", id, err)
				}
				details = append(details, *d)
			}
		}

		now := s.now()
		for i := range details {
			detail := &details[i]
			if detail.IsFinalized() {
				continue
			}
			if err := detail.Finalize(now); err != nil {
				return err
			}
			if err := s.store.UpsertDetail(ctx, detail); err != nil {
				return fmt.Errorf("save payment detail: %w", err)
			}
			finalized = append(finalized, *detail)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithPeriodID(periodID.String()).Info().
		Str("actor", actor.FromContext(ctx).String()).
		Int("finalized", len(finalized)).
		Msg("payroll finalized")

	for i := range finalized {
		s.notifier.PaymentStateChanged(ctx, &finalized[i])
	}
	return finalized, nil
}

// Skip marks a scheduled or drafted period as skipped. Nothing is paid
// and no hours are consumed.
func (s *PayrollService) Skip(ctx context.Context, periodID uuid.UUID) (*domain.PayPeriod, error) {
	var period *domain.PayPeriod

	err := s.transaction(ctx, func(ctx context.Context) error {
		var err error
		period, err = s.store.LockPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if err := period.Transition(domain.PeriodSkipped); err != nil {
			return err
		}
		return s.store.UpdatePeriodStatus(ctx, period)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithPeriodID(period.ID.String()).Info().
		Str("actor", actor.FromContext(ctx).String()).
		Msg("pay period skipped")
	s.notifier.PeriodStatusChanged(ctx, period, domain.RunSummary{})
	return period, nil
}

// AmendAmountPaid overrides the amount paid of a payment detail that is
// not finalized yet. On a settled detail the balance change is rolled
// into the employee ledger straight away.
func (s *PayrollService) AmendAmountPaid(ctx context.Context, periodID, employeeID uuid.UUID, amount decimal.Decimal) (*domain.PaymentDetail, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount paid must not be negative: %w", domain.ErrInvalidInput)
	}

	var detail *domain.PaymentDetail
	err := s.transaction(ctx, func(ctx context.Context) error {
		if _, err := s.store.LockPeriod(ctx, periodID); err != nil {
			return err
		}

		var err error
		detail, err = s.store.GetDetail(ctx, periodID, employeeID)
		if err != nil {
			return err
		}
		if err := detail.AmendAmountPaid(amount); err != nil {
			return err
		}

		if detail.State == domain.DetailSettled {
			ledger, err := s.store.GetLedger(ctx, employeeID)
			if err != nil {
				return fmt.Errorf("load employee ledger: %w", err)
			}
			if err := s.rollLedger(ctx, ledger, detail); err != nil {
				return err
			}
		}
		return s.store.UpsertDetail(ctx, detail)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithPeriodID(periodID.String()).Info().
		Str("actor", actor.FromContext(ctx).String()).
		Str("employee_id", employeeID.String()).
		Str("amount_paid", detail.AmountPaid.StringFixed(2)).
		Msg("amount paid amended")

	if detail.State == domain.DetailSettled {
		s.notifier.PaymentStateChanged(ctx, detail)
	}
	return detail, nil
}

// RefreshEmployee regenerates the employee on every drafted period of
// their pay schedule that covers one of the dates. It returns how many
// periods were regenerated.
func (s *PayrollService) RefreshEmployee(ctx context.Context, employeeID uuid.UUID, dates []time.Time) (int, error) {
	if len(dates) == 0 {
		return 0, nil
	}

	ledger, err := s.store.GetLedger(ctx, employeeID)
	if err != nil {
		return 0, err
	}

	from, to := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(from) {
			from = d
		}
		if d.After(to) {
			to = d
		}
	}

	periods, err := s.store.PeriodsCovering(ctx, ledger.PayScheduleID, domain.DateOf(from), domain.DateOf(to))
	if err != nil {
		return 0, fmt.Errorf("load periods: %w", err)
	}

	refreshed := 0
	for _, p := range periods {
		if p.Status != domain.PeriodDrafted {
			continue
		}
		if _, err := s.Generate(ctx, p.ID, GenerateOptions{EmployeeIDs: []uuid.UUID{employeeID}}); err != nil {
			return refreshed, err
		}
		refreshed++
	}
	return refreshed, nil
}

// Period returns a pay period
func (s *PayrollService) Period(ctx context.Context, periodID uuid.UUID) (*domain.PayPeriod, error) {
	return s.store.GetPeriod(ctx, periodID)
}

// Details returns the payment details of a period
func (s *PayrollService) Details(ctx context.Context, periodID uuid.UUID) ([]domain.PaymentDetail, error) {
	return s.store.ListDetails(ctx, periodID)
}

// Lines returns an employee's payroll lines for a period
func (s *PayrollService) Lines(ctx context.Context, periodID, employeeID uuid.UUID) ([]domain.PayrollLine, error) {
	return s.store.ListLines(ctx, periodID, &employeeID)
}

// transaction runs fn in one unit of work. Rule violations come back as
// they are; anything else is reported as a failed transaction wrapping
// its cause.
func (s *PayrollService) transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.uow.Transaction(ctx, fn)
	if err == nil {
		return nil
	}
	for _, rule := range []error{domain.ErrNotFound, domain.ErrInvalidTransition, domain.ErrInvalidInput} {
		if errors.Is(err, rule) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrTransactionFailed, err)
}
