package domain

import "errors"

var (
	// ErrConfigurationMissing means a pay configuration has no tiers or no
	// overtime policy. The affected line is flagged for review; the run continues.
	ErrConfigurationMissing = errors.New("pay configuration missing")

	// ErrApprovalIncomplete marks a placement whose period timesheets are not
	// all approved. It never surfaces to callers; the line is left pending.
	ErrApprovalIncomplete = errors.New("timesheet approval incomplete")

	// ErrTransactionFailed wraps any persistence failure that rolled back an
	// invocation.
	ErrTransactionFailed = errors.New("payroll transaction failed")

	// ErrAlreadyApplied is returned when an expense already has a track row
	// for the period.
	ErrAlreadyApplied = errors.New("expense already applied to period")

	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
)
