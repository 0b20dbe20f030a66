package postgres_test

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/honeynil/CampusGigService/internal/repository"
	"github.com/honeynil/CampusGigService/internal/repository/postgres"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RunInTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := postgres.NewStore(db)
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET deliveries_completed`)).
			WithArgs("user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			return tx.Users().IncrementDeliveries(ctx, "user-1")
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		delta := decimal.RequireFromString("-500")
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users`)).
			WithArgs(delta, "user-1").
			WillReturnError(fmt.Errorf("database error"))
		mock.ExpectRollback()

		err := store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.Users().ChangeBalance(ctx, "user-1", delta)
			return err
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "database error")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackKeepsSentinel", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			return pkgerrors.ErrInsufficientFunds
		})
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackError", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback().WillReturnError(fmt.Errorf("rollback error"))

		err := store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			return pkgerrors.ErrInvalidState
		})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)
		assert.Contains(t, err.Error(), "rollback failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("BeginError", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(fmt.Errorf("connection refused"))

		err := store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			t.Fatal("fn must not run without a transaction")
			return nil
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to begin transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CommitError", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(fmt.Errorf("serialization failure"))

		err := store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error { return nil })
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to commit transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
