package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PeriodStatus is the lifecycle state of a pay period
type PeriodStatus string

const (
	PeriodScheduled PeriodStatus = "scheduled"
	PeriodDrafted   PeriodStatus = "drafted"
	PeriodSubmitted PeriodStatus = "submitted"
	PeriodSkipped   PeriodStatus = "skipped"
)

var periodTransitions = map[PeriodStatus][]PeriodStatus{
	PeriodScheduled: {PeriodDrafted, PeriodSkipped},
	PeriodDrafted:   {PeriodDrafted, PeriodSubmitted, PeriodSkipped},
}

// PayPeriod is one pay cycle of a pay schedule. Periods are created by the
// scheduler; this service only moves them through their lifecycle.
type PayPeriod struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	PayScheduleID uuid.UUID    `db:"pay_schedule_id" json:"pay_schedule_id"`
	StartDate     time.Time    `db:"start_date" json:"start_date"`
	EndDate       time.Time    `db:"end_date" json:"end_date"`
	CheckDate     time.Time    `db:"check_date" json:"check_date"`
	Status        PeriodStatus `db:"status" json:"status"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// CanTransition reports whether the period may move to the given status
func (p *PayPeriod) CanTransition(to PeriodStatus) bool {
	for _, allowed := range periodTransitions[p.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves the period to a new status or fails with ErrInvalidTransition
func (p *PayPeriod) Transition(to PeriodStatus) error {
	if !p.CanTransition(to) {
		return fmt.Errorf("pay period %s: %s -> %s: %w", p.ID, p.Status, to, ErrInvalidTransition)
	}
	p.Status = to
	return nil
}

// Generatable reports whether lines may be (re)generated for the period
func (p *PayPeriod) Generatable() bool {
	return p.CanTransition(PeriodDrafted)
}

// Cutoff is the last day whose expenses are eligible for settlement
func (p *PayPeriod) Cutoff() time.Time {
	return p.EndDate
}

// Covers reports whether d falls inside the period, both ends inclusive
func (p *PayPeriod) Covers(d time.Time) bool {
	d = DateOf(d)
	return !d.Before(DateOf(p.StartDate)) && !d.After(DateOf(p.EndDate))
}
