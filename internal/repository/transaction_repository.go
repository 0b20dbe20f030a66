package repository

import (
	"context"

	"github.com/honeynil/CampusGigService/internal/models"
	"github.com/shopspring/decimal"
)

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	ListByUser(ctx context.Context, userID string) ([]models.Transaction, error)
	ListByGig(ctx context.Context, gigID string) ([]models.Transaction, error)
	// SumSigned recomputes a balance from the ledger alone.
	SumSigned(ctx context.Context, userID string) (decimal.Decimal, error)
}
