package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/honeynil/CampusGigService/internal/models"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"github.com/shopspring/decimal"
)

type transactionRepo struct{ t *tx }

func (r *transactionRepo) Create(_ context.Context, txn *models.Transaction) error {
	if txn == nil {
		return pkgerrors.ErrNilTransaction
	}
	if !txn.Type.Valid() {
		return pkgerrors.ErrInvalidTransactionType
	}
	if !txn.Amount.IsPositive() {
		return pkgerrors.ErrInvalidAmount
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	txn.CreatedAt = r.t.now()
	r.t.st.transactions = append(r.t.st.transactions, *txn)
	return nil
}

// Transactions are appended in commit order, so reversing gives newest first.
func (r *transactionRepo) ListByUser(_ context.Context, userID string) ([]models.Transaction, error) {
	var out []models.Transaction
	for i := len(r.t.st.transactions) - 1; i >= 0; i-- {
		if r.t.st.transactions[i].UserID == userID {
			out = append(out, r.t.st.transactions[i])
		}
	}
	return out, nil
}

func (r *transactionRepo) ListByGig(_ context.Context, gigID string) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, txn := range r.t.st.transactions {
		if txn.RelatedGigID == gigID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (r *transactionRepo) SumSigned(_ context.Context, userID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, txn := range r.t.st.transactions {
		if txn.UserID == userID {
			total = total.Add(txn.Signed())
		}
	}
	return total, nil
}
