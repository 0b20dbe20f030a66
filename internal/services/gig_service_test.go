package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/honeynil/CampusGigService/internal/infrastructure/redis"
	"github.com/honeynil/CampusGigService/internal/models"
	"github.com/honeynil/CampusGigService/internal/repository"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGigService_AddGig(t *testing.T) {
	ctx := context.Background()

	t.Run("escrows the price", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha Rao", "250")
		require.NoError(t, e.cache.Set(ctx, redis.BalanceKey(a.ID), "250.00", time.Minute))

		gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Amazon parcel", "75"))
		require.NoError(t, err)

		assert.Equal(t, models.GigOpen, gig.Status)
		assert.Len(t, gig.OTP, 6)
		assert.Equal(t, a.ID, gig.Requester.ID)
		assert.True(t, e.user(t, a.ID).WalletBalance.Equal(dec("175")))

		txs := e.transactions(t, a.ID)
		require.Len(t, txs, 1)
		assert.Equal(t, models.TypeDebit, txs[0].Type)
		assert.True(t, txs[0].Amount.Equal(dec("75")))
		assert.Equal(t, gig.ID, txs[0].RelatedGigID)
		assert.Equal(t, "Gig created: Amazon parcel", txs[0].Description)

		assert.False(t, e.cache.has(redis.BalanceKey(a.ID)))
		assert.Contains(t, e.publisher.types(), "gig.created")
	})

	t.Run("insufficient funds leaves no trace", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "50")

		_, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Books", "75"))
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)

		assert.True(t, e.user(t, a.ID).WalletBalance.Equal(dec("50")))
		assert.Empty(t, e.transactions(t, a.ID))
		gigs, err := e.gigs.ListMyGigs(ctx, actorOf(a))
		require.NoError(t, err)
		assert.Empty(t, gigs)
	})

	t.Run("requires an actor", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.gigs.AddGig(ctx, Actor{}, newGigInput("Books", "10"))
		assert.ErrorIs(t, err, pkgerrors.ErrUnauthenticated)
	})

	t.Run("validates input", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "100")

		in := newGigInput("Books", "0")
		_, err := e.gigs.AddGig(ctx, actorOf(a), in)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)

		in = newGigInput("Books", "10")
		in.DeliveryDeadline = testNow.Add(-time.Minute)
		_, err = e.gigs.AddGig(ctx, actorOf(a), in)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

		in = newGigInput("  ", "10")
		_, err = e.gigs.AddGig(ctx, actorOf(a), in)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

		in = newGigInput("Books", "10")
		in.Size = "Huge"
		_, err = e.gigs.AddGig(ctx, actorOf(a), in)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

		assert.True(t, e.user(t, a.ID).WalletBalance.Equal(dec("100")))
	})
}

func TestGigService_DeleteGig(t *testing.T) {
	ctx := context.Background()

	t.Run("refunds an open gig", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "250")
		gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Amazon parcel", "75"))
		require.NoError(t, err)

		require.NoError(t, e.gigs.DeleteGig(ctx, actorOf(a), gig.ID))

		assert.True(t, e.user(t, a.ID).WalletBalance.Equal(dec("250")))
		txs := e.transactions(t, a.ID)
		require.Len(t, txs, 2)
		assert.Equal(t, models.TypeCredit, txs[0].Type)
		assert.True(t, txs[0].Amount.Equal(dec("75")))
		assert.Equal(t, "Refund for deleted gig: Amazon parcel", txs[0].Description)

		_, err = e.gig(t, gig.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrGigNotFound)
	})

	t.Run("admin may delete", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "20")
		gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Letter", "20"))
		require.NoError(t, err)

		require.NoError(t, e.gigs.DeleteGig(ctx, adminActor, gig.ID))
		assert.True(t, e.user(t, a.ID).WalletBalance.Equal(dec("20")))
	})

	t.Run("other users are forbidden", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "20")
		b := e.seedUser(t, "Bala", "0")
		gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Letter", "20"))
		require.NoError(t, err)

		assert.ErrorIs(t, e.gigs.DeleteGig(ctx, actorOf(b), gig.ID), pkgerrors.ErrForbidden)
	})

	t.Run("accepted gigs are not deletable", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "20")
		d := e.seedUser(t, "Dev", "0")
		gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Letter", "20"))
		require.NoError(t, err)
		_, err = e.gigs.AcceptGig(ctx, actorOf(d), gig.ID, "selfie.jpg")
		require.NoError(t, err)

		assert.ErrorIs(t, e.gigs.DeleteGig(ctx, actorOf(a), gig.ID), pkgerrors.ErrInvalidState)
		assert.True(t, e.user(t, a.ID).WalletBalance.IsZero())
		stored, err := e.gig(t, gig.ID)
		require.NoError(t, err)
		assert.Equal(t, models.GigAccepted, stored.Status)
	})

	t.Run("unknown gig", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "20")
		assert.ErrorIs(t, e.gigs.DeleteGig(ctx, actorOf(a), "missing"), pkgerrors.ErrNotFound)
	})
}

func TestGigService_AcceptAndComplete(t *testing.T) {
	ctx := context.Background()

	t.Run("pays the deliverer net of the fee", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "250")
		d := e.seedUser(t, "Dev", "0")
		gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Amazon parcel", "75"))
		require.NoError(t, err)

		accepted, err := e.gigs.AcceptGig(ctx, actorOf(d), gig.ID, "selfie.jpg")
		require.NoError(t, err)
		assert.Equal(t, models.GigAccepted, accepted.Status)
		require.NotNil(t, accepted.Deliverer)
		assert.Equal(t, d.ID, accepted.Deliverer.ID)
		assert.Empty(t, accepted.OTP)
		assert.True(t, e.user(t, d.ID).WalletBalance.IsZero())

		completed, err := e.gigs.CompleteGig(ctx, actorOf(a), gig.ID)
		require.NoError(t, err)
		assert.Equal(t, models.GigCompleted, completed.Status)
		assert.True(t, completed.PlatformFee.Equal(dec("15")))
		assert.True(t, completed.Payout().Add(completed.PlatformFee).Equal(completed.Price))
		require.NotNil(t, completed.CompletedAt)

		deliverer := e.user(t, d.ID)
		assert.True(t, deliverer.WalletBalance.Equal(dec("60")))
		assert.Equal(t, int32(1), deliverer.DeliveriesCompleted)

		txs := e.transactions(t, d.ID)
		require.Len(t, txs, 1)
		assert.Equal(t, models.TypePayout, txs[0].Type)
		assert.True(t, txs[0].Amount.Equal(dec("60")))
		assert.Equal(t, gig.ID, txs[0].RelatedGigID)
	})

	t.Run("second completion is a no-op", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "75")
		d := e.seedUser(t, "Dev", "0")
		gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Parcel", "75"))
		require.NoError(t, err)
		_, err = e.gigs.AcceptGig(ctx, actorOf(d), gig.ID, "")
		require.NoError(t, err)
		_, err = e.gigs.CompleteGig(ctx, actorOf(a), gig.ID)
		require.NoError(t, err)

		again, err := e.gigs.CompleteGig(ctx, adminActor, gig.ID)
		require.NoError(t, err)
		assert.Equal(t, models.GigCompleted, again.Status)

		deliverer := e.user(t, d.ID)
		assert.True(t, deliverer.WalletBalance.Equal(dec("60")))
		assert.Equal(t, int32(1), deliverer.DeliveriesCompleted)
		assert.Len(t, e.transactions(t, d.ID), 1)
	})

	t.Run("deliverer cannot complete", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "75")
		d := e.seedUser(t, "Dev", "0")
		gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Parcel", "75"))
		require.NoError(t, err)
		_, err = e.gigs.AcceptGig(ctx, actorOf(d), gig.ID, "")
		require.NoError(t, err)

		_, err = e.gigs.CompleteGig(ctx, actorOf(d), gig.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrForbidden)
		assert.True(t, e.user(t, d.ID).WalletBalance.IsZero())
	})

	t.Run("open gig cannot be completed", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "75")
		gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Parcel", "75"))
		require.NoError(t, err)

		_, err = e.gigs.CompleteGig(ctx, actorOf(a), gig.ID)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)
	})

	t.Run("requester cannot accept own gig", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "75")
		gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Parcel", "75"))
		require.NoError(t, err)

		_, err = e.gigs.AcceptGig(ctx, actorOf(a), gig.ID, "")
		assert.ErrorIs(t, err, pkgerrors.ErrForbidden)
	})

	t.Run("accepted gig cannot be accepted again", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "75")
		d := e.seedUser(t, "Dev", "0")
		other := e.seedUser(t, "Oli", "0")
		gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Parcel", "75"))
		require.NoError(t, err)
		_, err = e.gigs.AcceptGig(ctx, actorOf(d), gig.ID, "")
		require.NoError(t, err)

		_, err = e.gigs.AcceptGig(ctx, actorOf(other), gig.ID, "")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)
	})

	t.Run("payout rounds to cents and keeps the sum", func(t *testing.T) {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "100")
		d := e.seedUser(t, "Dev", "0")
		gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Parcel", "33.33"))
		require.NoError(t, err)
		_, err = e.gigs.AcceptGig(ctx, actorOf(d), gig.ID, "")
		require.NoError(t, err)

		completed, err := e.gigs.CompleteGig(ctx, actorOf(a), gig.ID)
		require.NoError(t, err)
		assert.True(t, completed.Payout().Equal(dec("26.66")), completed.Payout().String())
		assert.True(t, completed.PlatformFee.Equal(dec("6.67")), completed.PlatformFee.String())

		revenue, err := e.admin.PlatformRevenue(ctx, adminActor)
		require.NoError(t, err)
		assert.True(t, revenue.Equal(dec("6.67")))
	})
}

func TestGigService_ConcurrentAcceptAndDelete(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		e := newEnv(t)
		a := e.seedUser(t, "Asha", "250")
		d := e.seedUser(t, "Dev", "0")
		gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Parcel", "75"))
		require.NoError(t, err)

		var (
			wg                   sync.WaitGroup
			acceptErr, deleteErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, acceptErr = e.gigs.AcceptGig(ctx, actorOf(d), gig.ID, "")
		}()
		go func() {
			defer wg.Done()
			deleteErr = e.gigs.DeleteGig(ctx, actorOf(a), gig.ID)
		}()
		wg.Wait()

		require.True(t, (acceptErr == nil) != (deleteErr == nil), "accept=%v delete=%v", acceptErr, deleteErr)
		balance := e.user(t, a.ID).WalletBalance
		if deleteErr == nil {
			assert.ErrorIs(t, acceptErr, pkgerrors.ErrNotFound)
			assert.True(t, balance.Equal(dec("250")))
		} else {
			assert.ErrorIs(t, deleteErr, pkgerrors.ErrInvalidState)
			assert.True(t, balance.Equal(dec("175")))
		}
	}
}

func TestGigService_ExpireOverdueGigs(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.seedUser(t, "Asha", "100")

	early := newGigInput("Early", "30")
	early.DeliveryDeadline = testNow.Add(time.Hour)
	late := newGigInput("Late", "20")
	late.DeliveryDeadline = testNow.Add(2 * time.Hour)

	earlyGig, err := e.gigs.AddGig(ctx, actorOf(a), early)
	require.NoError(t, err)
	lateGig, err := e.gigs.AddGig(ctx, actorOf(a), late)
	require.NoError(t, err)
	assert.True(t, e.user(t, a.ID).WalletBalance.Equal(dec("50")))

	n, err := e.gigs.ExpireOverdueGigs(ctx, late.DeliveryDeadline)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := e.gig(t, earlyGig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GigExpired, stored.Status)

	stored, err = e.gig(t, lateGig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GigOpen, stored.Status, "a gig at its deadline is not yet overdue")

	assert.True(t, e.user(t, a.ID).WalletBalance.Equal(dec("80")))
	txs := e.transactions(t, a.ID)
	assert.Equal(t, "Refund for expired gig: Early", txs[0].Description)
	assert.Equal(t, earlyGig.ID, txs[0].RelatedGigID)

	n, err = e.gigs.ExpireOverdueGigs(ctx, late.DeliveryDeadline)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, e.user(t, a.ID).WalletBalance.Equal(dec("80")))
	assert.Contains(t, e.publisher.types(), "gig.expired")
}

func TestGigService_ExpireOverdueGigs_DeletedRequester(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.seedUser(t, "Asha", "100")
	b := e.seedUser(t, "Bala", "100")

	gigA, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Parcel A", "40"))
	require.NoError(t, err)
	gigB, err := e.gigs.AddGig(ctx, actorOf(b), newGigInput("Parcel B", "40"))
	require.NoError(t, err)
	require.NoError(t, e.admin.DeleteUser(ctx, adminActor, a.ID))

	n, err := e.gigs.ExpireOverdueGigs(ctx, testNow.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err := e.gig(t, gigB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GigExpired, stored.Status)
	assert.True(t, e.user(t, b.ID).WalletBalance.Equal(dec("100")))
	assert.Equal(t, "Refund for expired gig: Parcel B", e.transactions(t, b.ID)[0].Description)

	stored, err = e.gig(t, gigA.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GigExpired, stored.Status)
	assert.Len(t, e.transactions(t, a.ID), 1, "no refund is logged for a deleted account")

	n, err = e.gigs.ExpireOverdueGigs(ctx, testNow.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGigService_Feedback(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.seedUser(t, "Asha", "75")
	d := e.seedUser(t, "Dev", "0")
	stranger := e.seedUser(t, "Sam", "0")
	gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Parcel", "75"))
	require.NoError(t, err)

	_, err = e.gigs.SubmitFeedback(ctx, actorOf(a), gig.ID, Feedback{Rating: 5})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)

	_, err = e.gigs.AcceptGig(ctx, actorOf(d), gig.ID, "")
	require.NoError(t, err)
	_, err = e.gigs.CompleteGig(ctx, actorOf(a), gig.ID)
	require.NoError(t, err)

	_, err = e.gigs.SubmitFeedback(ctx, actorOf(a), gig.ID, Feedback{Rating: 6})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	rated, err := e.gigs.SubmitFeedback(ctx, actorOf(a), gig.ID, Feedback{Rating: 4, Comments: "quick"})
	require.NoError(t, err)
	require.NotNil(t, rated.RequesterRating)
	assert.Equal(t, int32(4), *rated.RequesterRating)

	_, err = e.gigs.SubmitFeedback(ctx, actorOf(a), gig.ID, Feedback{Rating: 1})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)

	rating := int32(5)
	rated, err = e.gigs.UpdateGig(ctx, actorOf(d), gig.ID, GigUpdate{Rating: &rating, Comments: "polite"})
	require.NoError(t, err)
	require.NotNil(t, rated.DelivererRating)
	assert.Equal(t, "polite", rated.DelivererComments)

	_, err = e.gigs.SubmitFeedback(ctx, actorOf(stranger), gig.ID, Feedback{Rating: 3})
	assert.ErrorIs(t, err, pkgerrors.ErrForbidden)

	assert.True(t, e.user(t, d.ID).WalletBalance.Equal(dec("60")))
}

func TestGigService_UpdateGig(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.seedUser(t, "Asha", "75")
	d := e.seedUser(t, "Dev", "0")
	gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Parcel", "75"))
	require.NoError(t, err)

	_, err = e.gigs.UpdateGig(ctx, actorOf(a), gig.ID, GigUpdate{Status: models.GigExpired})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)

	_, err = e.gigs.UpdateGig(ctx, actorOf(a), gig.ID, GigUpdate{})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	updated, err := e.gigs.UpdateGig(ctx, actorOf(d), gig.ID, GigUpdate{Status: models.GigAccepted, AcceptanceSelfieURL: "s.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "s.jpg", updated.AcceptanceSelfieURL)

	updated, err = e.gigs.UpdateGig(ctx, actorOf(a), gig.ID, GigUpdate{Status: models.GigCompleted})
	require.NoError(t, err)
	assert.Equal(t, models.GigCompleted, updated.Status)
}

func TestGigService_OTPVisibility(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.seedUser(t, "Asha", "75")
	d := e.seedUser(t, "Dev", "0")
	gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Parcel", "75"))
	require.NoError(t, err)

	own, err := e.gigs.GetGig(ctx, actorOf(a), gig.ID)
	require.NoError(t, err)
	assert.Equal(t, gig.OTP, own.OTP)

	open, err := e.gigs.ListOpenGigs(ctx, actorOf(d))
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Empty(t, open[0].OTP)

	stored, err := e.gig(t, gig.ID)
	require.NoError(t, err)
	assert.Equal(t, gig.OTP, stored.OTP)
}

// Summing every ledger entry tied to a gig nets to the platform's retained share.
func TestGigService_EscrowBalances(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.seedUser(t, "Asha", "75")
	d := e.seedUser(t, "Dev", "0")
	gig, err := e.gigs.AddGig(ctx, actorOf(a), newGigInput("Parcel", "75"))
	require.NoError(t, err)
	_, err = e.gigs.AcceptGig(ctx, actorOf(d), gig.ID, "")
	require.NoError(t, err)
	completed, err := e.gigs.CompleteGig(ctx, actorOf(a), gig.ID)
	require.NoError(t, err)

	var related []models.Transaction
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		related, err = tx.Transactions().ListByGig(ctx, gig.ID)
		return err
	})
	require.NoError(t, err)
	require.Len(t, related, 2)

	net := completed.PlatformFee
	for _, tx := range related {
		net = net.Add(tx.Signed())
	}
	assert.True(t, net.IsZero(), net.String())
}
