package repository

import (
	"context"
	"time"

	"github.com/honeynil/CampusGigService/internal/models"
)

type WalletLoadRepository interface {
	Create(ctx context.Context, req *models.WalletLoadRequest) error
	GetByIDForUpdate(ctx context.Context, id string) (*models.WalletLoadRequest, error)
	ListByStatus(ctx context.Context, status models.WalletRequestStatus) ([]models.WalletLoadRequest, error)
	ListByUser(ctx context.Context, userID string) ([]models.WalletLoadRequest, error)
	UpdateStatus(ctx context.Context, id string, from, to models.WalletRequestStatus, at time.Time) error
	CountPendingByUser(ctx context.Context, userID string) (int, error)
}

type WithdrawalRepository interface {
	Create(ctx context.Context, req *models.WithdrawalRequest) error
	GetByIDForUpdate(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error)
	ListByUser(ctx context.Context, userID string) ([]models.WithdrawalRequest, error)
	UpdateStatus(ctx context.Context, id string, from, to models.WithdrawalStatus, at time.Time) error
	CountPendingByUser(ctx context.Context, userID string) (int, error)
}
