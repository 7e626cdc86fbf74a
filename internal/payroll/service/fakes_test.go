package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
)

// memStore is an in-memory implementation of every port the service
// depends on. Transaction snapshots the state and restores it when fn
// fails, which is enough to observe rollbacks.
type memStore struct {
	state memState

	// conflictOnLedger makes UpdateLedger lose the version race.
	conflictOnLedger bool

	periodEvents  []domain.PeriodStatus
	paymentEvents []domain.DetailState
}

type memState struct {
	periods    map[uuid.UUID]domain.PayPeriod
	ledgers    map[uuid.UUID]domain.EmployeeLedger
	lines      map[uuid.UUID]domain.PayrollLine
	details    map[uuid.UUID]domain.PaymentDetail
	entries    map[uuid.UUID]domain.TimesheetHourEntry
	raised     map[uuid.UUID]bool
	expenses   map[uuid.UUID]domain.ExpenseTransaction
	tracks     []domain.ExpenseTrack
	placements []domain.Placement
	billRates  []domain.BillRate
	tiers      map[uuid.UUID][]domain.PayBandTier
	policies   map[uuid.UUID]domain.OvertimePolicy
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		periods:  map[uuid.UUID]domain.PayPeriod{},
		ledgers:  map[uuid.UUID]domain.EmployeeLedger{},
		lines:    map[uuid.UUID]domain.PayrollLine{},
		details:  map[uuid.UUID]domain.PaymentDetail{},
		entries:  map[uuid.UUID]domain.TimesheetHourEntry{},
		raised:   map[uuid.UUID]bool{},
		expenses: map[uuid.UUID]domain.ExpenseTransaction{},
		tiers:    map[uuid.UUID][]domain.PayBandTier{},
		policies: map[uuid.UUID]domain.OvertimePolicy{},
	}}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s memState) clone() memState {
	return memState{
		periods:    cloneMap(s.periods),
		ledgers:    cloneMap(s.ledgers),
		lines:      cloneMap(s.lines),
		details:    cloneMap(s.details),
		entries:    cloneMap(s.entries),
		raised:     cloneMap(s.raised),
		expenses:   cloneMap(s.expenses),
		tracks:     append([]domain.ExpenseTrack(nil), s.tracks...),
		placements: append([]domain.Placement(nil), s.placements...),
		billRates:  append([]domain.BillRate(nil), s.billRates...),
		tiers:      cloneMap(s.tiers),
		policies:   cloneMap(s.policies),
	}
}

// UnitOfWork

func (m *memStore) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := m.state.clone()
	if err := fn(ctx); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// Notifier

func (m *memStore) PeriodStatusChanged(_ context.Context, p *domain.PayPeriod, _ domain.RunSummary) {
	m.periodEvents = append(m.periodEvents, p.Status)
}

func (m *memStore) PaymentStateChanged(_ context.Context, d *domain.PaymentDetail) {
	m.paymentEvents = append(m.paymentEvents, d.State)
}

// TimesheetProvider

func (m *memStore) HoursForPlacement(_ context.Context, placementID uuid.UUID, from, to time.Time) ([]domain.TimesheetHourEntry, error) {
	var out []domain.TimesheetHourEntry
	for id, e := range m.state.entries {
		if e.PlacementID != placementID || m.state.raised[id] {
			continue
		}
		if e.WorkDate.Before(from) || e.WorkDate.After(to) {
			continue
		}
		e.PayrollState = domain.RaiseOpen
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *memStore) RaisedHours(_ context.Context, placementID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for id, e := range m.state.entries {
		if e.PlacementID == placementID && m.state.raised[id] {
			total = total.Add(e.WorkedHours())
		}
	}
	return total, nil
}

func (m *memStore) MarkRaised(_ context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		if !m.state.raised[id] {
			m.state.raised[id] = true
			n++
		}
	}
	return n, nil
}

// PlacementProvider

func (m *memStore) ActivePlacements(_ context.Context, employeeID uuid.UUID, start, end time.Time) ([]domain.Placement, error) {
	var out []domain.Placement
	for _, p := range m.state.placements {
		if p.EmployeeID == employeeID && p.ActiveDuring(start, end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) BillRateOn(_ context.Context, placementID uuid.UUID, date time.Time) (*domain.BillRate, error) {
	for _, b := range m.state.billRates {
		if b.PlacementID == placementID && b.EffectiveOn(date) {
			rate := b
			return &rate, nil
		}
	}
	return nil, domain.ErrNotFound
}

// PayConfigProvider

func (m *memStore) Tiers(_ context.Context, payConfigID uuid.UUID) ([]domain.PayBandTier, error) {
	return m.state.tiers[payConfigID], nil
}

func (m *memStore) OvertimePolicy(_ context.Context, payConfigID uuid.UUID) (domain.OvertimePolicy, error) {
	p, ok := m.state.policies[payConfigID]
	if !ok {
		return domain.OvertimePolicy{}, domain.ErrNotFound
	}
	return p, nil
}

// ExpenseLedger

func (m *memStore) EligibleExpenses(_ context.Context, employeeID uuid.UUID, cutoff time.Time) ([]domain.ExpenseTransaction, error) {
	var out []domain.ExpenseTransaction
	for _, e := range m.state.expenses {
		if e.EmployeeID == employeeID && e.Eligible(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RaisedDate.Before(out[j].RaisedDate) })
	return out, nil
}

func (m *memStore) TrackedAmount(_ context.Context, expenseID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, t := range m.state.tracks {
		if t.ExpenseID == expenseID {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

func (m *memStore) TracksForPeriod(_ context.Context, employeeID, periodID uuid.UUID) ([]domain.ExpenseTrack, error) {
	var out []domain.ExpenseTrack
	for _, t := range m.state.tracks {
		if t.EmployeeID == employeeID && t.PeriodID == periodID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) RecordApplication(_ context.Context, track *domain.ExpenseTrack) error {
	for _, t := range m.state.tracks {
		if t.ExpenseID == track.ExpenseID && t.PeriodID == track.PeriodID {
			return domain.ErrAlreadyApplied
		}
	}
	m.state.tracks = append(m.state.tracks, *track)
	return nil
}

func (m *memStore) UpdateExpense(_ context.Context, e *domain.ExpenseTransaction) error {
	m.state.expenses[e.ID] = *e
	return nil
}

// PayrollStore

func (m *memStore) GetPeriod(_ context.Context, id uuid.UUID) (*domain.PayPeriod, error) {
	p, ok := m.state.periods[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) LockPeriod(ctx context.Context, id uuid.UUID) (*domain.PayPeriod, error) {
	return m.GetPeriod(ctx, id)
}

func (m *memStore) UpdatePeriodStatus(_ context.Context, p *domain.PayPeriod) error {
	m.state.periods[p.ID] = *p
	return nil
}

func (m *memStore) PeriodsCovering(_ context.Context, scheduleID uuid.UUID, from, to time.Time) ([]domain.PayPeriod, error) {
	var out []domain.PayPeriod
	for _, p := range m.state.periods {
		if p.PayScheduleID == scheduleID && !p.StartDate.After(to) && !p.EndDate.Before(from) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) EligibleEmployees(_ context.Context, scheduleID uuid.UUID) ([]domain.EmployeeLedger, error) {
	var out []domain.EmployeeLedger
	for _, l := range m.state.ledgers {
		if l.PayScheduleID == scheduleID && l.Active {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID.String() < out[j].EmployeeID.String() })
	return out, nil
}

func (m *memStore) GetLedger(_ context.Context, employeeID uuid.UUID) (*domain.EmployeeLedger, error) {
	l, ok := m.state.ledgers[employeeID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &l, nil
}

func (m *memStore) UpdateLedger(_ context.Context, l *domain.EmployeeLedger) error {
	stored := m.state.ledgers[l.EmployeeID]
	if m.conflictOnLedger || stored.Version != l.Version {
		return domain.ErrConcurrentModification
	}
	l.Version++
	m.state.ledgers[l.EmployeeID] = *l
	return nil
}

func samePlacement(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memStore) ListLines(_ context.Context, periodID uuid.UUID, employeeID *uuid.UUID) ([]domain.PayrollLine, error) {
	var out []domain.PayrollLine
	for _, l := range m.state.lines {
		if l.PeriodID != periodID || (employeeID != nil && l.EmployeeID != *employeeID) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *memStore) UpsertLine(_ context.Context, line *domain.PayrollLine) error {
	for id, l := range m.state.lines {
		if l.EmployeeID == line.EmployeeID && l.PeriodID == line.PeriodID && samePlacement(l.PlacementID, line.PlacementID) {
			line.ID = id
			line.CreatedAt = l.CreatedAt
			m.state.lines[id] = *line
			return nil
		}
	}
	line.ID = uuid.New()
	m.state.lines[line.ID] = *line
	return nil
}

func (m *memStore) DeleteStaleLines(_ context.Context, periodID, employeeID uuid.UUID, keep []uuid.UUID) (int64, error) {
	kept := map[uuid.UUID]bool{}
	for _, id := range keep {
		kept[id] = true
	}
	var n int64
	for id, l := range m.state.lines {
		if l.PeriodID == periodID && l.EmployeeID == employeeID && !kept[id] {
			delete(m.state.lines, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetDetail(_ context.Context, periodID, employeeID uuid.UUID) (*domain.PaymentDetail, error) {
	for _, d := range m.state.details {
		if d.PeriodID == periodID && d.EmployeeID == employeeID {
			return &d, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) ListDetails(_ context.Context, periodID uuid.UUID) ([]domain.PaymentDetail, error) {
	var out []domain.PaymentDetail
	for _, d := range m.state.details {
		if d.PeriodID == periodID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID.String() < out[j].EmployeeID.String() })
	return out, nil
}

func (m *memStore) UpsertDetail(_ context.Context, d *domain.PaymentDetail) error {
	for id, existing := range m.state.details {
		if existing.PeriodID == d.PeriodID && existing.EmployeeID == d.EmployeeID {
			d.ID = id
			m.state.details[id] = *d
			return nil
		}
	}
	d.ID = uuid.New()
	m.state.details[d.ID] = *d
	return nil
}
