package service

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/CampusGigService/internal/bonus"
	"github.com/honeynil/CampusGigService/internal/infrastructure/kafka"
	"github.com/honeynil/CampusGigService/internal/infrastructure/observability"
	"github.com/honeynil/CampusGigService/internal/infrastructure/redis"
	"github.com/honeynil/CampusGigService/internal/ledger"
	"github.com/honeynil/CampusGigService/internal/models"
	"github.com/honeynil/CampusGigService/internal/repository"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type GigService interface {
	AddGig(ctx context.Context, actor Actor, in NewGig) (*models.Gig, error)
	UpdateGig(ctx context.Context, actor Actor, gigID string, in GigUpdate) (*models.Gig, error)
	DeleteGig(ctx context.Context, actor Actor, gigID string) error
	AcceptGig(ctx context.Context, actor Actor, gigID, selfieURL string) (*models.Gig, error)
	CompleteGig(ctx context.Context, actor Actor, gigID string) (*models.Gig, error)
	SubmitFeedback(ctx context.Context, actor Actor, gigID string, in Feedback) (*models.Gig, error)
	ExpireOverdueGigs(ctx context.Context, now time.Time) (int, error)
	GetGig(ctx context.Context, actor Actor, gigID string) (*models.Gig, error)
	ListOpenGigs(ctx context.Context, actor Actor) ([]models.Gig, error)
	ListMyGigs(ctx context.Context, actor Actor) ([]models.Gig, error)
}

type NewGig struct {
	ParcelInfo       string          `json:"parcel_info"`
	PickupBlock      string          `json:"pickup_block"`
	DestinationBlock string          `json:"destination_block"`
	Note             string          `json:"note"`
	Size             models.GigSize  `json:"size"`
	IsUrgent         bool            `json:"is_urgent"`
	Price            decimal.Decimal `json:"price"`
	DeliveryDeadline time.Time       `json:"delivery_deadline"`
}

// GigUpdate is the partial update accepted by UpdateGig. Exactly one kind of
// change is applied: a status transition or feedback.
type GigUpdate struct {
	Status              models.GigStatus `json:"status,omitempty"`
	AcceptanceSelfieURL string           `json:"acceptance_selfie_url,omitempty"`
	Rating              *int32           `json:"rating,omitempty"`
	Comments            string           `json:"comments,omitempty"`
}

type Feedback struct {
	Rating   int32  `json:"rating"`
	Comments string `json:"comments"`
}

type gigService struct {
	store  repository.Store
	notify notifier
	now    func() time.Time
}

func NewGigService(store repository.Store, redisClient redis.RedisClient, publisher EventPublisher) *gigService {
	return &gigService{
		store:  store,
		notify: notifier{cache: redisClient, publisher: publisher},
		now:    time.Now,
	}
}

func (s *gigService) AddGig(ctx context.Context, actor Actor, in NewGig) (gig *models.Gig, err error) {
	ctx, span := startSpan(ctx, "gig-service", "AddGig")
	defer func() { endSpan(span, err) }()

	if err = actor.check(); err != nil {
		return nil, err
	}
	if err = s.validateNewGig(&in); err != nil {
		slog.Warn("invalid gig", "method", "AddGig", "user_id", actor.UserID, "error", err)
		return nil, err
	}
	otp, err := generateOTP()
	if err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		requester, err := tx.Users().GetByIDForUpdate(ctx, actor.UserID)
		if err != nil {
			return err
		}
		gig = &models.Gig{
			ID:               uuid.NewString(),
			Requester:        requester.Summary(),
			ParcelInfo:       in.ParcelInfo,
			PickupBlock:      in.PickupBlock,
			DestinationBlock: in.DestinationBlock,
			Note:             in.Note,
			Size:             in.Size,
			IsUrgent:         in.IsUrgent,
			Price:            in.Price,
			Status:           models.GigOpen,
			OTP:              otp,
			DeliveryDeadline: in.DeliveryDeadline,
			PostedAt:         s.now(),
			PlatformFee:      decimal.Zero,
		}
		if _, err := ledger.Debit(ctx, tx, ledger.Entry{
			UserID:       requester.ID,
			Type:         models.TypeDebit,
			Amount:       gig.Price,
			Description:  "Gig created: " + gig.ParcelInfo,
			RelatedGigID: gig.ID,
		}); err != nil {
			return err
		}
		return tx.Gigs().Create(ctx, gig)
	})
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrInsufficientFunds) {
			slog.Warn("gig declined", "method", "AddGig", "user_id", actor.UserID, "price", in.Price.String())
		} else {
			slog.Error("failed to add gig", "method", "AddGig", "user_id", actor.UserID, "error", err)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("gig_id", gig.ID))
	observability.GigTransitions.WithLabelValues(string(models.GigOpen)).Inc()
	s.notify.committed(ctx, kafka.TopicGigs, kafka.Event{
		Type:     "gig.created",
		EntityID: gig.ID,
		UserIDs:  []string{actor.UserID},
		Payload:  publicGig(*gig),
	})
	slog.Info("gig created", "method", "AddGig", "gig_id", gig.ID, "user_id", actor.UserID, "price", gig.Price.String())
	return gig, nil
}

func (s *gigService) validateNewGig(in *NewGig) error {
	in.ParcelInfo = strings.TrimSpace(in.ParcelInfo)
	if in.ParcelInfo == "" {
		return fmt.Errorf("%w: parcel info is required", pkgerrors.ErrInvalidInput)
	}
	if !in.Size.Valid() {
		return fmt.Errorf("%w: unknown size %q", pkgerrors.ErrInvalidInput, in.Size)
	}
	in.Price = bonus.Round(in.Price)
	if !in.Price.IsPositive() {
		return pkgerrors.ErrInvalidAmount
	}
	if !in.DeliveryDeadline.After(s.now()) {
		return fmt.Errorf("%w: delivery deadline must be in the future", pkgerrors.ErrInvalidInput)
	}
	return nil
}

func (s *gigService) DeleteGig(ctx context.Context, actor Actor, gigID string) (err error) {
	ctx, span := startSpan(ctx, "gig-service", "DeleteGig")
	span.SetAttributes(attribute.String("gig_id", gigID))
	defer func() { endSpan(span, err) }()

	if err = actor.check(); err != nil {
		return err
	}

	var gig *models.Gig
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		gig, err = tx.Gigs().GetByIDForUpdate(ctx, gigID)
		if err != nil {
			return err
		}
		if gig.Requester.ID != actor.UserID && !actor.IsAdmin {
			return pkgerrors.ErrForbidden
		}
		if gig.Status != models.GigOpen {
			slog.Warn("attempted to delete a non-open gig", "method", "DeleteGig", "gig_id", gigID, "status", gig.Status)
			return fmt.Errorf("%w: gig is %s", pkgerrors.ErrInvalidState, gig.Status)
		}
		if err := tx.Gigs().DeleteOpen(ctx, gigID); err != nil {
			return err
		}
		_, err = ledger.Credit(ctx, tx, ledger.Entry{
			UserID:       gig.Requester.ID,
			Type:         models.TypeCredit,
			Amount:       gig.Price,
			Description:  "Refund for deleted gig: " + gig.ParcelInfo,
			RelatedGigID: gig.ID,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.notify.committed(ctx, kafka.TopicGigs, kafka.Event{
		Type:     "gig.deleted",
		EntityID: gigID,
		UserIDs:  []string{gig.Requester.ID},
	})
	slog.Info("gig deleted", "method", "DeleteGig", "gig_id", gigID, "user_id", actor.UserID, "refund", gig.Price.String())
	return nil
}

func (s *gigService) AcceptGig(ctx context.Context, actor Actor, gigID, selfieURL string) (gig *models.Gig, err error) {
	ctx, span := startSpan(ctx, "gig-service", "AcceptGig")
	span.SetAttributes(attribute.String("gig_id", gigID))
	defer func() { endSpan(span, err) }()

	if err = actor.check(); err != nil {
		return nil, err
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		gig, err = tx.Gigs().GetByIDForUpdate(ctx, gigID)
		if err != nil {
			return err
		}
		if !gig.Status.CanTransitionTo(models.GigAccepted) {
			return fmt.Errorf("%w: gig is %s", pkgerrors.ErrInvalidState, gig.Status)
		}
		if gig.Requester.ID == actor.UserID {
			return fmt.Errorf("%w: requesters cannot accept their own gig", pkgerrors.ErrForbidden)
		}
		deliverer, err := tx.Users().GetByID(ctx, actor.UserID)
		if err != nil {
			return err
		}
		summary := deliverer.Summary()
		gig.Deliverer = &summary
		gig.AcceptanceSelfieURL = selfieURL
		gig.Status = models.GigAccepted
		return tx.Gigs().UpdateStatus(ctx, gig, models.GigOpen)
	})
	if err != nil {
		slog.Warn("failed to accept gig", "method", "AcceptGig", "gig_id", gigID, "user_id", actor.UserID, "error", err)
		return nil, err
	}

	observability.GigTransitions.WithLabelValues(string(models.GigAccepted)).Inc()
	s.notify.committed(ctx, kafka.TopicGigs, kafka.Event{
		Type:     "gig.accepted",
		EntityID: gig.ID,
		Payload:  publicGig(*gig),
	})
	slog.Info("gig accepted", "method", "AcceptGig", "gig_id", gig.ID, "user_id", actor.UserID)
	return publicGig(*gig), nil
}

func (s *gigService) CompleteGig(ctx context.Context, actor Actor, gigID string) (gig *models.Gig, err error) {
	ctx, span := startSpan(ctx, "gig-service", "CompleteGig")
	span.SetAttributes(attribute.String("gig_id", gigID))
	defer func() { endSpan(span, err) }()

	if err = actor.check(); err != nil {
		return nil, err
	}

	alreadyCompleted := false
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		gig, err = tx.Gigs().GetByIDForUpdate(ctx, gigID)
		if err != nil {
			return err
		}
		if gig.Requester.ID != actor.UserID && !actor.IsAdmin {
			return pkgerrors.ErrForbidden
		}
		if gig.Status == models.GigCompleted {
			alreadyCompleted = true
			return nil
		}
		if !gig.Status.CanTransitionTo(models.GigCompleted) || gig.Deliverer == nil {
			return fmt.Errorf("%w: gig is %s", pkgerrors.ErrInvalidState, gig.Status)
		}

		cfg, err := tx.Platform().Get(ctx)
		if err != nil {
			return err
		}
		payout := bonus.Round(gig.Price.Mul(decimal.NewFromInt(1).Sub(cfg.Fee)))
		completedAt := s.now()
		gig.Status = models.GigCompleted
		gig.PlatformFee = gig.Price.Sub(payout)
		gig.CompletedAt = &completedAt
		if err := tx.Gigs().UpdateStatus(ctx, gig, models.GigAccepted); err != nil {
			return err
		}
		if _, err := ledger.Credit(ctx, tx, ledger.Entry{
			UserID:       gig.Deliverer.ID,
			Type:         models.TypePayout,
			Amount:       payout,
			Description:  "Payout for gig: " + gig.ParcelInfo,
			RelatedGigID: gig.ID,
		}); err != nil {
			return err
		}
		return tx.Users().IncrementDeliveries(ctx, gig.Deliverer.ID)
	})
	if err != nil {
		slog.Warn("failed to complete gig", "method", "CompleteGig", "gig_id", gigID, "user_id", actor.UserID, "error", err)
		return nil, err
	}
	if alreadyCompleted {
		slog.Warn("gig already completed", "method", "CompleteGig", "gig_id", gigID, "user_id", actor.UserID)
		return gig, nil
	}

	observability.GigTransitions.WithLabelValues(string(models.GigCompleted)).Inc()
	s.notify.committed(ctx, kafka.TopicGigs, kafka.Event{
		Type:     "gig.completed",
		EntityID: gig.ID,
		UserIDs:  []string{gig.Deliverer.ID},
		Payload:  publicGig(*gig),
	})
	slog.Info("gig completed", "method", "CompleteGig", "gig_id", gig.ID,
		"deliverer_id", gig.Deliverer.ID, "payout", gig.Payout().String(), "platform_fee", gig.PlatformFee.String())
	return gig, nil
}

func (s *gigService) SubmitFeedback(ctx context.Context, actor Actor, gigID string, in Feedback) (gig *models.Gig, err error) {
	ctx, span := startSpan(ctx, "gig-service", "SubmitFeedback")
	span.SetAttributes(attribute.String("gig_id", gigID))
	defer func() { endSpan(span, err) }()

	if err = actor.check(); err != nil {
		return nil, err
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", pkgerrors.ErrInvalidInput)
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		gig, err = tx.Gigs().GetByIDForUpdate(ctx, gigID)
		if err != nil {
			return err
		}
		if gig.Status != models.GigCompleted {
			return fmt.Errorf("%w: feedback is accepted only for completed gigs", pkgerrors.ErrInvalidState)
		}
		rating := in.Rating
		switch {
		case gig.Requester.ID == actor.UserID:
			if gig.RequesterRating != nil {
				return fmt.Errorf("%w: feedback already submitted", pkgerrors.ErrInvalidState)
			}
			gig.RequesterRating, gig.RequesterComments = &rating, in.Comments
		case gig.Deliverer != nil && gig.Deliverer.ID == actor.UserID:
			if gig.DelivererRating != nil {
				return fmt.Errorf("%w: feedback already submitted", pkgerrors.ErrInvalidState)
			}
			gig.DelivererRating, gig.DelivererComments = &rating, in.Comments
		default:
			return pkgerrors.ErrForbidden
		}
		return tx.Gigs().SaveFeedback(ctx, gig)
	})
	if err != nil {
		return nil, err
	}

	s.notify.committed(ctx, kafka.TopicGigs, kafka.Event{Type: "gig.feedback", EntityID: gig.ID})
	slog.Info("feedback submitted", "method", "SubmitFeedback", "gig_id", gig.ID, "user_id", actor.UserID)
	return publicGig(*gig), nil
}

func (s *gigService) UpdateGig(ctx context.Context, actor Actor, gigID string, in GigUpdate) (*models.Gig, error) {
	switch {
	case in.Status == models.GigAccepted:
		return s.AcceptGig(ctx, actor, gigID, in.AcceptanceSelfieURL)
	case in.Status == models.GigCompleted:
		return s.CompleteGig(ctx, actor, gigID)
	case in.Status == "" && in.Rating != nil:
		return s.SubmitFeedback(ctx, actor, gigID, Feedback{Rating: *in.Rating, Comments: in.Comments})
	case in.Status != "":
		return nil, fmt.Errorf("%w: gigs cannot be moved to %s directly", pkgerrors.ErrInvalidState, in.Status)
	default:
		return nil, fmt.Errorf("%w: nothing to update", pkgerrors.ErrInvalidInput)
	}
}

// ExpireOverdueGigs moves every OPEN gig whose deadline is before now to
// EXPIRED and refunds its requester, all in one unit of work. Gigs whose
// requester has been deleted expire without a refund.
func (s *gigService) ExpireOverdueGigs(ctx context.Context, now time.Time) (n int, err error) {
	ctx, span := startSpan(ctx, "gig-service", "ExpireOverdueGigs")
	defer func() { endSpan(span, err) }()

	var expired []models.Gig
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		overdue, err := tx.Gigs().ListOverdueForUpdate(ctx, now)
		if err != nil {
			return err
		}
		expired = expired[:0]
		for i := range overdue {
			gig := overdue[i]
			gig.Status = models.GigExpired
			if err := tx.Gigs().UpdateStatus(ctx, &gig, models.GigOpen); err != nil {
				return fmt.Errorf("failed to expire gig %s: %w", gig.ID, err)
			}
			if _, err := ledger.Credit(ctx, tx, ledger.Entry{
				UserID:       gig.Requester.ID,
				Type:         models.TypeCredit,
				Amount:       gig.Price,
				Description:  "Refund for expired gig: " + gig.ParcelInfo,
				RelatedGigID: gig.ID,
			}); err != nil {
				if !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
					return fmt.Errorf("failed to refund gig %s: %w", gig.ID, err)
				}
				// Deleted accounts are not reconciled; the gig still expires.
				slog.Warn("expired gig of deleted requester left unrefunded", "method", "ExpireOverdueGigs",
					"gig_id", gig.ID, "user_id", gig.Requester.ID, "amount", gig.Price.String())
			}
			expired = append(expired, gig)
		}
		return nil
	})
	if err != nil {
		slog.Error("expiry sweep failed", "method", "ExpireOverdueGigs", "error", err)
		return 0, err
	}

	span.SetAttributes(attribute.Int("expired", len(expired)))
	if len(expired) == 0 {
		return 0, nil
	}
	observability.GigTransitions.WithLabelValues(string(models.GigExpired)).Add(float64(len(expired)))
	observability.ExpiredGigs.Add(float64(len(expired)))
	for _, gig := range expired {
		s.notify.committed(ctx, kafka.TopicGigs, kafka.Event{
			Type:     "gig.expired",
			EntityID: gig.ID,
			UserIDs:  []string{gig.Requester.ID},
		})
	}
	slog.Info("overdue gigs expired", "method", "ExpireOverdueGigs", "count", len(expired))
	return len(expired), nil
}

func (s *gigService) GetGig(ctx context.Context, actor Actor, gigID string) (gig *models.Gig, err error) {
	ctx, span := startSpan(ctx, "gig-service", "GetGig")
	defer func() { endSpan(span, err) }()

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		gig, err = tx.Gigs().GetByID(ctx, gigID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return visibleTo(actor, *gig), nil
}

func (s *gigService) ListOpenGigs(ctx context.Context, actor Actor) (gigs []models.Gig, err error) {
	ctx, span := startSpan(ctx, "gig-service", "ListOpenGigs")
	defer func() { endSpan(span, err) }()

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		gigs, err = tx.Gigs().ListByStatus(ctx, models.GigOpen)
		return err
	})
	for i := range gigs {
		gigs[i] = *visibleTo(actor, gigs[i])
	}
	return gigs, err
}

func (s *gigService) ListMyGigs(ctx context.Context, actor Actor) (gigs []models.Gig, err error) {
	ctx, span := startSpan(ctx, "gig-service", "ListMyGigs")
	defer func() { endSpan(span, err) }()

	if err = actor.check(); err != nil {
		return nil, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		gigs, err = tx.Gigs().ListByUser(ctx, actor.UserID)
		return err
	})
	for i := range gigs {
		gigs[i] = *visibleTo(actor, gigs[i])
	}
	return gigs, err
}

// The OTP is shown only to the requester, who hands it over at delivery.
func visibleTo(actor Actor, gig models.Gig) *models.Gig {
	if actor.IsAdmin || gig.Requester.ID == actor.UserID {
		return &gig
	}
	return publicGig(gig)
}

func publicGig(gig models.Gig) *models.Gig {
	gig.OTP = ""
	return &gig
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
