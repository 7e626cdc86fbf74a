package consumers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/staffline/backoffice/pkg/actor"
	"github.com/staffline/backoffice/pkg/logger"
	"github.com/staffline/backoffice/pkg/messaging"
)

// ApprovalRecorder keeps the local timesheet projection in step with the staff service
type ApprovalRecorder interface {
	MarkApproved(ctx context.Context, timesheetID, approvedBy uuid.UUID, at time.Time) error
}

// DraftRefresher recomputes an employee's drafted pay periods
type DraftRefresher interface {
	RefreshEmployee(ctx context.Context, employeeID uuid.UUID, dates []time.Time) (int, error)
}

// TimesheetEventConsumer consumes timesheet events from the staff service
type TimesheetEventConsumer struct {
	consumer   *messaging.Consumer
	timesheets ApprovalRecorder
	payroll    DraftRefresher
	logger     *logger.Logger
}

const serviceName = "payroll-service"

// NewTimesheetEventConsumer creates a new timesheet event consumer
func NewTimesheetEventConsumer(
	rmq *messaging.RabbitMQ,
	timesheets ApprovalRecorder,
	payroll DraftRefresher,
	log *logger.Logger,
) (*TimesheetEventConsumer, error) {
	// messages that exhaust their retries are parked in dlq.payroll-service
	if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
		return nil, err
	}

	consumer, err := messaging.NewConsumer(rmq, serviceName+".timesheet-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeStaffEvents, "staff.timesheet.#"); err != nil {
		return nil, err
	}

	c := &TimesheetEventConsumer{
		consumer:   consumer,
		timesheets: timesheets,
		payroll:    payroll,
		logger:     log.WithComponent("timesheet-consumer"),
	}

	consumer.RegisterHandler(messaging.EventTimesheetApproved, c.handleTimesheetApproved)

	return c, nil
}

// Start starts consuming messages
func (c *TimesheetEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *TimesheetEventConsumer) handleTimesheetApproved(ctx context.Context, event *messaging.Event) error {
	var data messaging.TimesheetApprovedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	timesheetID, err := uuid.Parse(data.TimesheetID)
	if err != nil {
		return fmt.Errorf("timesheet id: %w", err)
	}
	employeeID, err := uuid.Parse(data.EmployeeID)
	if err != nil {
		return fmt.Errorf("employee id: %w", err)
	}
	// approved_by is informational; a missing one is stored as the nil UUID
	approvedBy, _ := uuid.Parse(data.ApprovedBy)

	ctx = actor.WithActor(ctx, actor.SystemActor())
	log := c.logger.WithCorrelationID(messaging.CorrelationID(ctx)).WithEmployeeID(data.EmployeeID)
	log.Info().
		Str("timesheet_id", data.TimesheetID).
		Int("days", len(data.WorkDates)).
		Msg("received timesheet approved event")

	if err := c.timesheets.MarkApproved(ctx, timesheetID, approvedBy, event.Timestamp); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Str("timesheet_id", data.TimesheetID).Msg("approved timesheet unknown to payroll, ignoring")
			return nil
		}
		return err
	}

	refreshed, err := c.payroll.RefreshEmployee(ctx, employeeID, data.WorkDates)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Debug().Msg("employee not on payroll, nothing to refresh")
			return nil
		}
		return err
	}

	if refreshed > 0 {
		log.Info().Int("periods", refreshed).Msg("drafted pay periods recomputed")
	}
	return nil
}
