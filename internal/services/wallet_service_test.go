package service

import (
	"context"
	"testing"

	"github.com/honeynil/CampusGigService/internal/infrastructure/redis"
	"github.com/honeynil/CampusGigService/internal/models"
	"github.com/honeynil/CampusGigService/internal/repository"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) seedReferredUser(t *testing.T, name, balance, referredBy string) *models.User {
	t.Helper()
	user := e.seedUser(t, name, balance)
	user.ReferredByCode = referredBy
	err := e.store.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Users().Delete(ctx, user.ID); err != nil {
			return err
		}
		return tx.Users().Create(ctx, user)
	})
	require.NoError(t, err)
	return user
}

func (e *env) addCoupon(t *testing.T, code, pct string, maxUses int) *models.Coupon {
	t.Helper()
	coupon, err := e.admin.AddCoupon(context.Background(), adminActor, models.Coupon{
		Code:            code,
		BonusPercentage: dec(pct),
		IsActive:        true,
		MaxUsesPerUser:  maxUses,
	})
	require.NoError(t, err)
	return coupon
}

func (e *env) walletLoad(t *testing.T, user *models.User, amount, coupon string) *models.WalletLoadRequest {
	t.Helper()
	req, err := e.wallet.RequestWalletLoad(context.Background(), actorOf(user), WalletLoadInput{
		Amount:        dec(amount),
		UTR:           "UTR123456",
		ScreenshotURL: "proof.png",
		CouponCode:    coupon,
	})
	require.NoError(t, err)
	return req
}

func TestWalletService_ApproveWalletLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("coupon and referral bonus on first recharge", func(t *testing.T) {
		e := newEnv(t)
		referrer := e.seedUser(t, "Ravi", "0")
		u := e.seedReferredUser(t, "Uma", "40", referrer.ReferralCode)
		e.addCoupon(t, "WELCOME10", "0.1", 1)

		req := e.walletLoad(t, u, "200", " welcome10 ")
		assert.Equal(t, "WELCOME10", req.CouponCode)
		assert.Equal(t, models.WalletRequestPending, req.Status)
		assert.True(t, e.user(t, u.ID).WalletBalance.Equal(dec("40")), "a pending top-up has no wallet effect")

		require.NoError(t, e.wallet.ApproveWalletLoad(ctx, adminActor, req.ID))

		user := e.user(t, u.ID)
		assert.True(t, user.WalletBalance.Equal(dec("270")), user.WalletBalance.String())
		assert.True(t, user.FirstRechargeCompleted)
		assert.Equal(t, 1, user.CouponUses("WELCOME10"))

		txs := e.transactions(t, u.ID)
		require.Len(t, txs, 2)
		assert.Equal(t, models.TypeCredit, txs[0].Type)
		assert.True(t, txs[0].Amount.Equal(dec("30")))
		assert.Equal(t, "10% bonus from WELCOME10 & 5% First Recharge Referral Bonus", txs[0].Description)
		assert.Equal(t, models.TypeTopUp, txs[1].Type)
		assert.True(t, txs[1].Amount.Equal(dec("200")))
		assert.Equal(t, "Wallet load approved (UTR: UTR123456)", txs[1].Description)

		ref := e.user(t, referrer.ID)
		assert.True(t, ref.WalletBalance.Equal(dec("10")))
		refTxs := e.transactions(t, referrer.ID)
		require.Len(t, refTxs, 1)
		assert.Equal(t, models.TypeCredit, refTxs[0].Type)
		assert.Equal(t, "Referral reward for Uma", refTxs[0].Description)

		assert.Contains(t, e.publisher.types(), "wallet_load.approved")
	})

	t.Run("approving twice changes nothing", func(t *testing.T) {
		e := newEnv(t)
		referrer := e.seedUser(t, "Ravi", "0")
		u := e.seedReferredUser(t, "Uma", "40", referrer.ReferralCode)
		e.addCoupon(t, "WELCOME10", "0.1", 1)
		req := e.walletLoad(t, u, "200", "WELCOME10")

		require.NoError(t, e.wallet.ApproveWalletLoad(ctx, adminActor, req.ID))
		require.NoError(t, e.wallet.ApproveWalletLoad(ctx, adminActor, req.ID))

		assert.True(t, e.user(t, u.ID).WalletBalance.Equal(dec("270")))
		assert.Len(t, e.transactions(t, u.ID), 2)
		assert.True(t, e.user(t, referrer.ID).WalletBalance.Equal(dec("10")))
	})

	t.Run("exhausted coupon and completed first recharge add nothing", func(t *testing.T) {
		e := newEnv(t)
		referrer := e.seedUser(t, "Ravi", "0")
		u := e.seedReferredUser(t, "Uma", "0", referrer.ReferralCode)
		e.addCoupon(t, "WELCOME10", "0.1", 1)

		first := e.walletLoad(t, u, "100", "WELCOME10")
		require.NoError(t, e.wallet.ApproveWalletLoad(ctx, adminActor, first.ID))
		assert.True(t, e.user(t, u.ID).WalletBalance.Equal(dec("115")))

		second := e.walletLoad(t, u, "150", "WELCOME10")
		require.NoError(t, e.wallet.ApproveWalletLoad(ctx, adminActor, second.ID))

		user := e.user(t, u.ID)
		assert.True(t, user.WalletBalance.Equal(dec("265")), user.WalletBalance.String())
		assert.Equal(t, 1, user.CouponUses("WELCOME10"))
		assert.Len(t, e.transactions(t, u.ID), 3)
		assert.True(t, e.user(t, referrer.ID).WalletBalance.Equal(dec("10")))
	})

	t.Run("referral needs the minimum amount", func(t *testing.T) {
		e := newEnv(t)
		referrer := e.seedUser(t, "Ravi", "0")
		u := e.seedReferredUser(t, "Uma", "0", referrer.ReferralCode)

		small := e.walletLoad(t, u, "99.99", "")
		require.NoError(t, e.wallet.ApproveWalletLoad(ctx, adminActor, small.ID))
		user := e.user(t, u.ID)
		assert.True(t, user.WalletBalance.Equal(dec("99.99")))
		assert.False(t, user.FirstRechargeCompleted)
		assert.Len(t, e.transactions(t, u.ID), 1, "a zero bonus is not logged")

		qualifying := e.walletLoad(t, u, "100", "")
		require.NoError(t, e.wallet.ApproveWalletLoad(ctx, adminActor, qualifying.ID))
		user = e.user(t, u.ID)
		assert.True(t, user.WalletBalance.Equal(dec("204.99")))
		assert.True(t, user.FirstRechargeCompleted)
		assert.True(t, e.user(t, referrer.ID).WalletBalance.Equal(dec("10")))
	})

	t.Run("unknown coupon and referrer are ignored", func(t *testing.T) {
		e := newEnv(t)
		u := e.seedReferredUser(t, "Uma", "0", "NOBODY0000")
		req := e.walletLoad(t, u, "120", "NOPE")

		require.NoError(t, e.wallet.ApproveWalletLoad(ctx, adminActor, req.ID))
		user := e.user(t, u.ID)
		assert.True(t, user.WalletBalance.Equal(dec("120")))
		assert.False(t, user.FirstRechargeCompleted)
	})

	t.Run("inactive coupon is ignored", func(t *testing.T) {
		e := newEnv(t)
		u := e.seedUser(t, "Uma", "0")
		coupon := e.addCoupon(t, "FEST", "0.5", 3)
		inactive := false
		_, err := e.admin.UpdateCoupon(ctx, adminActor, coupon.ID, CouponUpdate{IsActive: &inactive})
		require.NoError(t, err)

		req := e.walletLoad(t, u, "100", "fest")
		require.NoError(t, e.wallet.ApproveWalletLoad(ctx, adminActor, req.ID))
		assert.True(t, e.user(t, u.ID).WalletBalance.Equal(dec("100")))
	})

	t.Run("only admins approve", func(t *testing.T) {
		e := newEnv(t)
		u := e.seedUser(t, "Uma", "0")
		req := e.walletLoad(t, u, "100", "")

		assert.ErrorIs(t, e.wallet.ApproveWalletLoad(ctx, actorOf(u), req.ID), pkgerrors.ErrForbidden)
		assert.ErrorIs(t, e.wallet.ApproveWalletLoad(ctx, adminActor, "missing"), pkgerrors.ErrNotFound)
		assert.True(t, e.user(t, u.ID).WalletBalance.IsZero())
	})
}

func TestWalletService_RejectWalletLoad(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.seedUser(t, "Uma", "5")
	req := e.walletLoad(t, u, "100", "")

	require.NoError(t, e.wallet.RejectWalletLoad(ctx, adminActor, req.ID))
	require.NoError(t, e.wallet.ApproveWalletLoad(ctx, adminActor, req.ID))

	assert.True(t, e.user(t, u.ID).WalletBalance.Equal(dec("5")))
	assert.Empty(t, e.transactions(t, u.ID))

	loads, err := e.wallet.MyWalletLoads(ctx, actorOf(u))
	require.NoError(t, err)
	require.Len(t, loads, 1)
	assert.Equal(t, models.WalletRequestRejected, loads[0].Status)
	assert.NotNil(t, loads[0].ResolvedAt)

	pending, err := e.wallet.PendingWalletLoads(ctx, adminActor)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWalletService_RequestWalletLoad(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.seedUser(t, "Uma", "0")

	_, err := e.wallet.RequestWalletLoad(ctx, actorOf(u), WalletLoadInput{Amount: dec("0"), UTR: "x"})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)

	_, err = e.wallet.RequestWalletLoad(ctx, actorOf(u), WalletLoadInput{Amount: dec("10")})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	_, err = e.wallet.RequestWalletLoad(ctx, Actor{}, WalletLoadInput{Amount: dec("10"), UTR: "x"})
	assert.ErrorIs(t, err, pkgerrors.ErrUnauthenticated)
}

func TestWalletService_Withdrawals(t *testing.T) {
	ctx := context.Background()

	t.Run("below minimum is rejected before creation", func(t *testing.T) {
		e := newEnv(t)
		u := e.seedUser(t, "Uma", "500")

		_, err := e.wallet.RequestWithdrawal(ctx, actorOf(u), dec("50"), "uma@upi")
		assert.ErrorIs(t, err, pkgerrors.ErrBelowMinimum)

		assert.True(t, e.user(t, u.ID).WalletBalance.Equal(dec("500")))
		reqs, err := e.wallet.MyWithdrawals(ctx, actorOf(u))
		require.NoError(t, err)
		assert.Empty(t, reqs)
		assert.Empty(t, e.transactions(t, u.ID))
	})

	t.Run("insufficient funds", func(t *testing.T) {
		e := newEnv(t)
		u := e.seedUser(t, "Uma", "100")

		_, err := e.wallet.RequestWithdrawal(ctx, actorOf(u), dec("150"), "uma@upi")
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
		assert.True(t, e.user(t, u.ID).WalletBalance.Equal(dec("100")))
	})

	t.Run("debits at request and refunds on rejection", func(t *testing.T) {
		e := newEnv(t)
		u := e.seedUser(t, "Uma", "250")

		req, err := e.wallet.RequestWithdrawal(ctx, actorOf(u), dec("100"), "uma@upi")
		require.NoError(t, err)
		assert.Equal(t, models.WithdrawalPending, req.Status)
		assert.True(t, e.user(t, u.ID).WalletBalance.Equal(dec("150")))
		txs := e.transactions(t, u.ID)
		require.Len(t, txs, 1)
		assert.Equal(t, models.TypeWithdrawal, txs[0].Type)
		assert.Equal(t, "Withdrawal to UPI: uma@upi", txs[0].Description)

		require.NoError(t, e.wallet.RejectWithdrawal(ctx, adminActor, req.ID))
		assert.True(t, e.user(t, u.ID).WalletBalance.Equal(dec("250")))
		txs = e.transactions(t, u.ID)
		require.Len(t, txs, 2)
		assert.Equal(t, models.TypeCredit, txs[0].Type)
		assert.Equal(t, "Refund for rejected withdrawal request.", txs[0].Description)

		require.NoError(t, e.wallet.ApproveWithdrawal(ctx, adminActor, req.ID))
		require.NoError(t, e.wallet.RejectWithdrawal(ctx, adminActor, req.ID))
		assert.True(t, e.user(t, u.ID).WalletBalance.Equal(dec("250")))
		assert.Len(t, e.transactions(t, u.ID), 2)
	})

	t.Run("approval settles without wallet effect", func(t *testing.T) {
		e := newEnv(t)
		u := e.seedUser(t, "Uma", "250")
		req, err := e.wallet.RequestWithdrawal(ctx, actorOf(u), dec("200"), "uma@upi")
		require.NoError(t, err)

		pending, err := e.wallet.PendingWithdrawals(ctx, adminActor)
		require.NoError(t, err)
		require.Len(t, pending, 1)

		require.NoError(t, e.wallet.ApproveWithdrawal(ctx, adminActor, req.ID))
		assert.True(t, e.user(t, u.ID).WalletBalance.Equal(dec("50")))

		reqs, err := e.wallet.MyWithdrawals(ctx, actorOf(u))
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Equal(t, models.WithdrawalProcessed, reqs[0].Status)

		assert.ErrorIs(t, e.wallet.ApproveWithdrawal(ctx, actorOf(u), req.ID), pkgerrors.ErrForbidden)
	})
}

func TestWalletService_Balance(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	u := e.seedUser(t, "Uma", "250")

	balance, err := e.wallet.Balance(ctx, actorOf(u))
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("250")))

	cached, err := e.cache.Get(ctx, redis.BalanceKey(u.ID))
	require.NoError(t, err)
	assert.Equal(t, "250.00", cached)

	_, err = e.gigs.AddGig(ctx, actorOf(u), newGigInput("Parcel", "75"))
	require.NoError(t, err)
	assert.False(t, e.cache.has(redis.BalanceKey(u.ID)))

	balance, err = e.wallet.Balance(ctx, actorOf(u))
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("175")))

	_, err = e.wallet.Balance(ctx, Actor{})
	assert.ErrorIs(t, err, pkgerrors.ErrUnauthenticated)
}
