// Package ledger pairs every wallet balance change with exactly one
// transaction record inside the caller's unit of work.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/honeynil/CampusGigService/internal/models"
	"github.com/honeynil/CampusGigService/internal/repository"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"github.com/shopspring/decimal"
)

type Entry struct {
	UserID       string
	Type         models.TransactionType
	Amount       decimal.Decimal
	Description  string
	RelatedGigID string
}

// Credit adds e.Amount to the user's wallet and logs the entry. A zero amount
// is a no-op that records nothing; the returned record is nil in that case.
func Credit(ctx context.Context, tx repository.Tx, e Entry) (*models.Transaction, error) {
	if e.Type.IsDebit() || !e.Type.Valid() {
		return nil, fmt.Errorf("%w: %s is not a credit type", pkgerrors.ErrInvalidTransactionType, e.Type)
	}
	return apply(ctx, tx, e, e.Amount)
}

// Debit removes e.Amount from the user's wallet and logs the entry. The
// balance check and the mutation are made against the same locked read of
// the user, so concurrent debits cannot overdraw the wallet.
func Debit(ctx context.Context, tx repository.Tx, e Entry) (*models.Transaction, error) {
	if !e.Type.IsDebit() {
		return nil, fmt.Errorf("%w: %s is not a debit type", pkgerrors.ErrInvalidTransactionType, e.Type)
	}
	if e.Amount.IsPositive() {
		user, err := tx.Users().GetByIDForUpdate(ctx, e.UserID)
		if err != nil {
			return nil, err
		}
		if e.Amount.GreaterThan(user.WalletBalance) {
			slog.Warn("debit exceeds balance", "method", "Debit", "user_id", e.UserID,
				"amount", e.Amount.String(), "balance", user.WalletBalance.String())
			return nil, pkgerrors.ErrInsufficientFunds
		}
	}
	return apply(ctx, tx, e, e.Amount.Neg())
}

func apply(ctx context.Context, tx repository.Tx, e Entry, delta decimal.Decimal) (*models.Transaction, error) {
	if e.Amount.IsNegative() {
		return nil, pkgerrors.ErrInvalidAmount
	}
	if e.Amount.IsZero() {
		return nil, nil
	}
	if _, err := tx.Users().ChangeBalance(ctx, e.UserID, delta); err != nil {
		return nil, err
	}
	record := &models.Transaction{
		UserID:       e.UserID,
		Type:         e.Type,
		Amount:       e.Amount,
		Description:  e.Description,
		RelatedGigID: e.RelatedGigID,
	}
	if err := tx.Transactions().Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to log %s transaction: %w", e.Type, err)
	}
	return record, nil
}
