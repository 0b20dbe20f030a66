package repository

import (
	"context"

	"github.com/honeynil/CampusGigService/internal/models"
	"github.com/shopspring/decimal"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByIDForUpdate reads the user and holds its row until the enclosing transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByReferralCode(ctx context.Context, code string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	// ChangeBalance applies delta and returns the new balance. It fails with
	// ErrInsufficientFunds instead of letting the balance go negative.
	ChangeBalance(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error)
	IncrementDeliveries(ctx context.Context, userID string) error
	UpdateBonusState(ctx context.Context, userID string, usedCoupons map[string]int, firstRechargeCompleted bool) error
	Delete(ctx context.Context, id string) error
}
