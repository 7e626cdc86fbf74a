package events

import (
	"context"

	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/staffline/backoffice/pkg/logger"
	"github.com/staffline/backoffice/pkg/messaging"
)

// PayrollEventPublisher announces committed period and payment changes on
// the payroll exchange. Publish failures are logged and never undo the
// state change that triggered them.
type PayrollEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewPayrollEventPublisher declares the payroll exchange and returns a publisher on it
func NewPayrollEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*PayrollEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePayrollEvents, "payroll-service", log)
	if err != nil {
		return nil, err
	}
	return NewPublisherWith(publisher, log), nil
}

// NewPublisherWith builds a payroll publisher over any event publisher
func NewPublisherWith(publisher messaging.EventPublisher, log *logger.Logger) *PayrollEventPublisher {
	return &PayrollEventPublisher{
		publisher: publisher,
		logger:    log.WithComponent("payroll-events"),
	}
}

var periodEventTypes = map[domain.PeriodStatus]string{
	domain.PeriodDrafted:   messaging.EventPayrollPeriodDrafted,
	domain.PeriodSubmitted: messaging.EventPayrollPeriodSubmitted,
	domain.PeriodSkipped:   messaging.EventPayrollPeriodSkipped,
}

var paymentEventTypes = map[domain.DetailState]string{
	domain.DetailSettled:   messaging.EventPayrollPaymentSettled,
	domain.DetailFinalized: messaging.EventPayrollPaymentFinalize,
}

// PeriodStatusChanged publishes the period's new status with the run counters
func (p *PayrollEventPublisher) PeriodStatusChanged(ctx context.Context, period *domain.PayPeriod, summary domain.RunSummary) {
	eventType, ok := periodEventTypes[period.Status]
	if !ok {
		return
	}

	data := messaging.PayrollPeriodEvent{
		PeriodID:      period.ID.String(),
		PayScheduleID: period.PayScheduleID.String(),
		Status:        string(period.Status),
		StartDate:     period.StartDate,
		EndDate:       period.EndDate,
		Employees:     summary.Employees,
		PendingLines:  summary.PendingLines,
		ReviewLines:   summary.ReviewLines,
		RaisedEntries: summary.RaisedEntries,
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("period_id", data.PeriodID).Msg("failed to publish pay period event")
	}
}

// PaymentStateChanged publishes a settled or finalized payment detail
func (p *PayrollEventPublisher) PaymentStateChanged(ctx context.Context, detail *domain.PaymentDetail) {
	eventType, ok := paymentEventTypes[detail.State]
	if !ok {
		return
	}

	data := messaging.PayrollPaymentEvent{
		PeriodID:        detail.PeriodID.String(),
		EmployeeID:      detail.EmployeeID.String(),
		State:           string(detail.State),
		TotalAmount:     detail.TotalAmount,
		AmountPaid:      detail.AmountPaid,
		CreditedExpense: detail.CreditedExpense,
		DebitedExpense:  detail.DebitedExpense,
		BalanceAmount:   detail.BalanceAmount,
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).
			Str("period_id", data.PeriodID).
			Str("employee_id", data.EmployeeID).
			Msg("failed to publish payment event")
	}
}

// Nop drops every notification. Used when event publishing is switched off.
type Nop struct{}

// PeriodStatusChanged does nothing
func (Nop) PeriodStatusChanged(context.Context, *domain.PayPeriod, domain.RunSummary) {}

// PaymentStateChanged does nothing
func (Nop) PaymentStateChanged(context.Context, *domain.PaymentDetail) {}
