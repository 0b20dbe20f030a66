package repository

import (
	"context"

	"github.com/honeynil/CampusGigService/internal/models"
)

type CouponRepository interface {
	Create(ctx context.Context, coupon *models.Coupon) error
	GetByID(ctx context.Context, id string) (*models.Coupon, error)
	// GetByCode matches the normalised code regardless of IsActive.
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	Update(ctx context.Context, coupon *models.Coupon) error
	Delete(ctx context.Context, id string) error
}

type PlatformConfigRepository interface {
	Get(ctx context.Context) (*models.PlatformConfig, error)
	Update(ctx context.Context, cfg *models.PlatformConfig) error
}
