package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/CampusGigService/internal/models"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"github.com/shopspring/decimal"
)

type gigRepo struct{ t *tx }

func (r *gigRepo) Create(_ context.Context, gig *models.Gig) error {
	if gig == nil {
		return pkgerrors.ErrNilGig
	}
	if !gig.Price.IsPositive() {
		return pkgerrors.ErrInvalidAmount
	}
	if gig.ID == "" {
		gig.ID = uuid.NewString()
	}
	if gig.PostedAt.IsZero() {
		gig.PostedAt = r.t.now()
	}
	r.t.st.gigs[gig.ID] = cloneGig(*gig)
	r.t.touch(gig.ID)
	return nil
}

func (r *gigRepo) GetByID(_ context.Context, id string) (*models.Gig, error) {
	g, ok := r.t.st.gigs[id]
	if !ok {
		return nil, pkgerrors.ErrGigNotFound
	}
	c := cloneGig(g)
	return &c, nil
}

func (r *gigRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Gig, error) {
	return r.GetByID(ctx, id)
}

func (r *gigRepo) filter(keep func(g models.Gig) bool) []models.Gig {
	ids := make([]string, 0)
	for id, g := range r.t.st.gigs {
		if keep(g) {
			ids = append(ids, id)
		}
	}
	r.t.newerFirst(ids, func(id string) time.Time { return r.t.st.gigs[id].PostedAt })
	out := make([]models.Gig, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneGig(r.t.st.gigs[id]))
	}
	return out
}

func (r *gigRepo) ListByStatus(_ context.Context, status models.GigStatus) ([]models.Gig, error) {
	return r.filter(func(g models.Gig) bool { return g.Status == status }), nil
}

func (r *gigRepo) ListByUser(_ context.Context, userID string) ([]models.Gig, error) {
	return r.filter(func(g models.Gig) bool {
		return g.Requester.ID == userID || (g.Deliverer != nil && g.Deliverer.ID == userID)
	}), nil
}

func (r *gigRepo) ListOverdueForUpdate(_ context.Context, now time.Time) ([]models.Gig, error) {
	gigs := r.filter(func(g models.Gig) bool { return g.IsOverdue(now) })
	sort.SliceStable(gigs, func(i, j int) bool { return gigs[i].DeliveryDeadline.Before(gigs[j].DeliveryDeadline) })
	return gigs, nil
}

func (r *gigRepo) UpdateStatus(_ context.Context, gig *models.Gig, from models.GigStatus) error {
	if gig == nil {
		return pkgerrors.ErrNilGig
	}
	stored, ok := r.t.st.gigs[gig.ID]
	if !ok || stored.Status != from {
		return pkgerrors.ErrInvalidState
	}
	stored.Status = gig.Status
	stored.Deliverer = gig.Deliverer
	stored.AcceptanceSelfieURL = gig.AcceptanceSelfieURL
	stored.PlatformFee = gig.PlatformFee
	stored.CompletedAt = gig.CompletedAt
	r.t.st.gigs[gig.ID] = cloneGig(stored)
	return nil
}

func (r *gigRepo) DeleteOpen(_ context.Context, id string) error {
	g, ok := r.t.st.gigs[id]
	if !ok || g.Status != models.GigOpen {
		return pkgerrors.ErrInvalidState
	}
	delete(r.t.st.gigs, id)
	return nil
}

func (r *gigRepo) SaveFeedback(_ context.Context, gig *models.Gig) error {
	if gig == nil {
		return pkgerrors.ErrNilGig
	}
	stored, ok := r.t.st.gigs[gig.ID]
	if !ok || stored.Status != models.GigCompleted {
		return pkgerrors.ErrInvalidState
	}
	stored.RequesterRating = gig.RequesterRating
	stored.RequesterComments = gig.RequesterComments
	stored.DelivererRating = gig.DelivererRating
	stored.DelivererComments = gig.DelivererComments
	r.t.st.gigs[gig.ID] = cloneGig(stored)
	return nil
}

func (r *gigRepo) SumPlatformFees(_ context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, g := range r.t.st.gigs {
		if g.Status == models.GigCompleted {
			total = total.Add(g.PlatformFee)
		}
	}
	return total, nil
}

func (r *gigRepo) CountOpenByRequester(_ context.Context, userID string) (int, error) {
	n := 0
	for _, g := range r.t.st.gigs {
		if g.Requester.ID == userID && g.Status == models.GigOpen {
			n++
		}
	}
	return n, nil
}
