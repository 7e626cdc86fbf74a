package repository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/staffline/backoffice/pkg/database"
)

//go:embed schema.sql
var schema string

// Migrate applies the payroll schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *database.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply payroll schema: %w", err)
	}
	return nil
}
