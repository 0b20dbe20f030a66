package repository

import (
	"context"
	"time"

	"github.com/honeynil/CampusGigService/internal/models"
	"github.com/shopspring/decimal"
)

type GigRepository interface {
	Create(ctx context.Context, gig *models.Gig) error
	GetByID(ctx context.Context, id string) (*models.Gig, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Gig, error)
	ListByStatus(ctx context.Context, status models.GigStatus) ([]models.Gig, error)
	ListByUser(ctx context.Context, userID string) ([]models.Gig, error)
	// ListOverdueForUpdate locks every OPEN gig whose deadline is strictly before now.
	ListOverdueForUpdate(ctx context.Context, now time.Time) ([]models.Gig, error)
	// UpdateStatus persists gig's status and lifecycle fields only if the stored
	// status still equals from; otherwise it returns ErrInvalidState.
	UpdateStatus(ctx context.Context, gig *models.Gig, from models.GigStatus) error
	// DeleteOpen removes the gig only while it is OPEN; otherwise ErrInvalidState.
	DeleteOpen(ctx context.Context, id string) error
	SaveFeedback(ctx context.Context, gig *models.Gig) error
	SumPlatformFees(ctx context.Context) (decimal.Decimal, error)
	CountOpenByRequester(ctx context.Context, userID string) (int, error)
}
