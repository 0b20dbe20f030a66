package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/CampusGigService/internal/models"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const transactionColumns = `id, user_id, type, amount, description, related_gig_id, created_at`

type TransactionRepository struct {
	q Queryer
}

func NewTransactionRepository(q Queryer) *TransactionRepository {
	return &TransactionRepository{q: q}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) (err error) {
	ctx, span, start := startCall(ctx, "transaction-repository", "CreateTransaction")
	defer func() { finishCall(span, "CreateTransaction", start, err) }()

	if tx == nil {
		err = pkgerrors.ErrNilTransaction
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return err
	}
	if !tx.Type.Valid() {
		err = pkgerrors.ErrInvalidTransactionType
		slog.Error("invalid transaction type", "method", "Create", "type", tx.Type, "error", err)
		return err
	}
	if !tx.Amount.IsPositive() {
		err = pkgerrors.ErrInvalidAmount
		slog.Error("amount must be positive", "method", "Create", "amount", tx.Amount.String(), "error", err)
		return err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	span.SetAttributes(
		attribute.String("user_id", tx.UserID),
		attribute.String("type", string(tx.Type)),
		attribute.String("amount", tx.Amount.String()),
	)

	query := `INSERT INTO transactions (id, user_id, type, amount, description, related_gig_id) VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`
	err = r.q.QueryRowContext(ctx, query,
		tx.ID, tx.UserID, tx.Type, tx.Amount, tx.Description, nullString(tx.RelatedGigID),
	).Scan(&tx.CreatedAt)
	if err != nil {
		slog.Error("failed to create transaction", "method", "Create", "user_id", tx.UserID, "type", tx.Type, "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	slog.Info("transaction created", "method", "Create", "id", tx.ID, "user_id", tx.UserID, "type", tx.Type, "amount", tx.Amount.String())
	return nil
}

func (r *TransactionRepository) list(ctx context.Context, method, query string, arg string) (txs []models.Transaction, err error) {
	ctx, span, start := startCall(ctx, "transaction-repository", method)
	defer func() { finishCall(span, method, start, err) }()

	rows, err := r.q.QueryContext(ctx, query, arg)
	if err != nil {
		slog.Error("failed to list transactions", "method", method, "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tx     models.Transaction
			gigRef sql.NullString
		)
		if err = rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Amount, &tx.Description, &gigRef, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.RelatedGigID = gigRef.String
		txs = append(txs, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	return r.list(ctx, "ListTransactionsByUser",
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *TransactionRepository) ListByGig(ctx context.Context, gigID string) ([]models.Transaction, error) {
	return r.list(ctx, "ListTransactionsByGig",
		`SELECT `+transactionColumns+` FROM transactions WHERE related_gig_id = $1 ORDER BY created_at`, gigID)
}

func (r *TransactionRepository) SumSigned(ctx context.Context, userID string) (balance decimal.Decimal, err error) {
	ctx, span, start := startCall(ctx, "transaction-repository", "SumSigned")
	span.SetAttributes(attribute.String("user_id", userID))
	defer func() { finishCall(span, "SumSigned", start, err) }()

	query := `
		SELECT COALESCE(SUM(
			CASE
				WHEN type IN ('DEBIT', 'WITHDRAWAL') THEN -amount
				ELSE amount
			END
		), 0) AS balance
		FROM transactions
		WHERE user_id = $1`
	err = r.q.QueryRowContext(ctx, query, userID).Scan(&balance)
	if err != nil {
		slog.Error("failed to sum transactions", "method", "SumSigned", "user_id", userID, "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return balance, nil
}
