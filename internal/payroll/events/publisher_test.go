package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/staffline/backoffice/internal/payroll/domain"
	"github.com/staffline/backoffice/internal/payroll/events"
	"github.com/staffline/backoffice/pkg/logger"
	"github.com/staffline/backoffice/pkg/messaging"
	"github.com/staffline/backoffice/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodStatusChanged(t *testing.T) {
	mock := testutil.NewMockPublisher()
	pub := events.NewPublisherWith(mock, logger.Nop())

	period := &domain.PayPeriod{
		ID:            uuid.New(),
		PayScheduleID: uuid.New(),
		Status:        domain.PeriodSubmitted,
		StartDate:     domain.Date(2024, 3, 4),
		EndDate:       domain.Date(2024, 3, 17),
	}
	pub.PeriodStatusChanged(context.Background(), period, domain.RunSummary{Employees: 3, RaisedEntries: 12})

	published := mock.Events()
	require.Len(t, published, 1)
	assert.Equal(t, messaging.EventPayrollPeriodSubmitted, published[0].Type)

	data, ok := published[0].Payload.(messaging.PayrollPeriodEvent)
	require.True(t, ok)
	assert.Equal(t, period.ID.String(), data.PeriodID)
	assert.Equal(t, "submitted", data.Status)
	assert.Equal(t, 3, data.Employees)
	assert.Equal(t, 12, data.RaisedEntries)
}

func TestPeriodStatusChanged_IgnoresScheduled(t *testing.T) {
	mock := testutil.NewMockPublisher()
	pub := events.NewPublisherWith(mock, logger.Nop())

	pub.PeriodStatusChanged(context.Background(), &domain.PayPeriod{Status: domain.PeriodScheduled}, domain.RunSummary{})

	mock.AssertNoEventsPublished(t)
}

func TestPaymentStateChanged(t *testing.T) {
	mock := testutil.NewMockPublisher()
	pub := events.NewPublisherWith(mock, logger.Nop())

	detail := domain.NewDraftDetail(uuid.New(), uuid.New())
	detail.State = domain.DetailFinalized
	detail.TotalAmount = decimal.NewFromInt(1000)
	detail.AmountPaid = decimal.NewFromInt(900)
	pub.PaymentStateChanged(context.Background(), detail)

	mock.AssertEventPublished(t, messaging.EventPayrollPaymentFinalize)
	data := mock.Events()[0].Payload.(messaging.PayrollPaymentEvent)
	assert.Equal(t, detail.EmployeeID.String(), data.EmployeeID)
	assert.True(t, decimal.NewFromInt(900).Equal(data.AmountPaid))

	mock.Reset()
	pub.PaymentStateChanged(context.Background(), domain.NewDraftDetail(uuid.New(), uuid.New()))
	mock.AssertNoEventsPublished(t)
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	mock := testutil.NewMockPublisher()
	mock.Err = errors.New("channel closed")
	pub := events.NewPublisherWith(mock, logger.Nop())

	detail := domain.NewDraftDetail(uuid.New(), uuid.New())
	detail.State = domain.DetailSettled

	assert.NotPanics(t, func() {
		pub.PaymentStateChanged(context.Background(), detail)
	})
	mock.AssertNoEventsPublished(t)
}
