package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/staffline/backoffice/pkg/database"
	"github.com/staffline/backoffice/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransaction(t *testing.T) {
	t.Run("commits and exposes the transaction through the context", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		db := mockDB.Database()

		mockDB.ExpectBegin()
		mockDB.ExpectExec("DELETE FROM payroll_lines").
			WithArgs(testutil.AnyUUID{}).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectCommit()

		err := db.Transaction(context.Background(), func(ctx context.Context) error {
			assert.True(t, database.InTransaction(ctx))
			_, err := db.Querier(ctx).ExecContext(ctx, "DELETE FROM payroll_lines WHERE id = $1", uuid.NewString())
			return err
		})

		require.NoError(t, err)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		db := mockDB.Database()
		boom := errors.New("boom")

		mockDB.ExpectBegin()
		mockDB.ExpectRollback()

		err := db.Transaction(context.Background(), func(ctx context.Context) error {
			return boom
		})

		assert.ErrorIs(t, err, boom)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("nested call joins the open transaction", func(t *testing.T) {
		mockDB := testutil.NewMockDB(t)
		defer mockDB.Close()
		db := mockDB.Database()

		mockDB.ExpectBegin()
		mockDB.ExpectCommit()

		err := db.Transaction(context.Background(), func(ctx context.Context) error {
			return db.Transaction(ctx, func(inner context.Context) error {
				assert.True(t, database.InTransaction(inner))
				return nil
			})
		})

		require.NoError(t, err)
		mockDB.ExpectationsWereMet(t)
	})

	t.Run("outside a transaction", func(t *testing.T) {
		assert.False(t, database.InTransaction(context.Background()))
	})
}
