package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/staffline/backoffice/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// Serialization failure (40001) / deadlock (40P01): safe to retry the whole run
	case "40001", "40P01":
		return errors.Conflict("concurrent payroll run detected, retry the operation")

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "period_status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: scheduled, drafted, submitted, skipped",
		})

	case strings.Contains(constraint, "detail_state_valid"):
		return errors.Validation(map[string]string{
			"state": "must be one of: draft, settled, finalized",
		})

	case strings.Contains(constraint, "period_dates_valid"):
		return errors.Validation(map[string]string{
			"end_date": "must not be before start_date",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "expense_tracks_expense_period"):
		return "expense has already been applied to this period"
	case strings.Contains(constraint, "payment_details_employee_period"):
		return "a payment detail for this employee and period already exists"
	default:
		return "a record with these values already exists"
	}
}
