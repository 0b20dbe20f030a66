package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

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

// MinimumWithdrawal is the smallest amount a withdrawal request may ask for.
var MinimumWithdrawal = decimal.NewFromInt(100)

const balanceCacheTTL = 5 * time.Minute

type WalletService interface {
	RequestWalletLoad(ctx context.Context, actor Actor, in WalletLoadInput) (*models.WalletLoadRequest, error)
	ApproveWalletLoad(ctx context.Context, actor Actor, requestID string) error
	RejectWalletLoad(ctx context.Context, actor Actor, requestID string) error
	RequestWithdrawal(ctx context.Context, actor Actor, amount decimal.Decimal, upiID string) (*models.WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, actor Actor, requestID string) error
	RejectWithdrawal(ctx context.Context, actor Actor, requestID string) error
	Balance(ctx context.Context, actor Actor) (decimal.Decimal, error)
	Transactions(ctx context.Context, actor Actor) ([]models.Transaction, error)
	MyWalletLoads(ctx context.Context, actor Actor) ([]models.WalletLoadRequest, error)
	MyWithdrawals(ctx context.Context, actor Actor) ([]models.WithdrawalRequest, error)
	PendingWalletLoads(ctx context.Context, actor Actor) ([]models.WalletLoadRequest, error)
	PendingWithdrawals(ctx context.Context, actor Actor) ([]models.WithdrawalRequest, error)
}

type WalletLoadInput struct {
	Amount        decimal.Decimal `json:"amount"`
	UTR           string          `json:"utr"`
	ScreenshotURL string          `json:"screenshot_url"`
	CouponCode    string          `json:"coupon_code"`
}

type walletService struct {
	store       repository.Store
	redisClient redis.RedisClient
	notify      notifier
	now         func() time.Time
}

func NewWalletService(store repository.Store, redisClient redis.RedisClient, publisher EventPublisher) *walletService {
	return &walletService{
		store:       store,
		redisClient: redisClient,
		notify:      notifier{cache: redisClient, publisher: publisher},
		now:         time.Now,
	}
}

func (s *walletService) RequestWalletLoad(ctx context.Context, actor Actor, in WalletLoadInput) (req *models.WalletLoadRequest, err error) {
	ctx, span := startSpan(ctx, "wallet-service", "RequestWalletLoad")
	defer func() { endSpan(span, err) }()

	if err = actor.check(); err != nil {
		return nil, err
	}
	in.Amount = bonus.Round(in.Amount)
	if !in.Amount.IsPositive() {
		return nil, pkgerrors.ErrInvalidAmount
	}
	in.UTR = strings.TrimSpace(in.UTR)
	if in.UTR == "" {
		return nil, fmt.Errorf("%w: utr is required", pkgerrors.ErrInvalidInput)
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		user, err := tx.Users().GetByID(ctx, actor.UserID)
		if err != nil {
			return err
		}
		req = &models.WalletLoadRequest{
			UserID:        user.ID,
			UserName:      user.Name,
			Amount:        in.Amount,
			UTR:           in.UTR,
			ScreenshotURL: in.ScreenshotURL,
			Status:        models.WalletRequestPending,
			CouponCode:    models.NormalizeCouponCode(in.CouponCode),
			RequestedAt:   s.now(),
		}
		return tx.WalletLoads().Create(ctx, req)
	})
	if err != nil {
		slog.Error("failed to request wallet load", "method", "RequestWalletLoad", "user_id", actor.UserID, "error", err)
		return nil, err
	}

	s.notify.committed(ctx, kafka.TopicWallet, kafka.Event{Type: "wallet_load.requested", EntityID: req.ID, Payload: req})
	slog.Info("wallet load requested", "method", "RequestWalletLoad", "request_id", req.ID,
		"user_id", actor.UserID, "amount", req.Amount.String(), "coupon", req.CouponCode)
	return req, nil
}

// ApproveWalletLoad credits the requested amount and any coupon or referral
// bonus. Approving a request that is no longer PENDING changes nothing.
func (s *walletService) ApproveWalletLoad(ctx context.Context, actor Actor, requestID string) (err error) {
	ctx, span := startSpan(ctx, "wallet-service", "ApproveWalletLoad")
	span.SetAttributes(attribute.String("request_id", requestID))
	defer func() { endSpan(span, err) }()

	if err = requireAdmin(actor); err != nil {
		return err
	}

	var (
		req      *models.WalletLoadRequest
		result   bonus.Result
		resolved bool
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		req, err = tx.WalletLoads().GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if !req.Status.CanTransitionTo(models.WalletRequestApproved) {
			return nil
		}
		user, err := tx.Users().GetByIDForUpdate(ctx, req.UserID)
		if err != nil {
			return err
		}

		in := bonus.Input{
			Amount:                 req.Amount,
			UsedCouponCodes:        user.UsedCouponCodes,
			FirstRechargeCompleted: user.FirstRechargeCompleted,
			ReferredByCode:         user.ReferredByCode,
		}
		if in.Coupon, err = lookupCoupon(ctx, tx, req.CouponCode); err != nil {
			return err
		}
		if in.Referrer, err = lookupReferrer(ctx, tx, user); err != nil {
			return err
		}
		result = bonus.Compute(in)

		if _, err := ledger.Credit(ctx, tx, ledger.Entry{
			UserID:      user.ID,
			Type:        models.TypeTopUp,
			Amount:      req.Amount,
			Description: fmt.Sprintf("Wallet load approved (UTR: %s)", req.UTR),
		}); err != nil {
			return err
		}
		if _, err := ledger.Credit(ctx, tx, ledger.Entry{
			UserID:      user.ID,
			Type:        models.TypeCredit,
			Amount:      result.Bonus,
			Description: result.Description(),
		}); err != nil {
			return err
		}
		if err := tx.Users().UpdateBonusState(ctx, user.ID, result.UsedCouponCodes, result.FirstRechargeCompleted); err != nil {
			return err
		}
		if ref := result.Referrer; ref != nil {
			if _, err := ledger.Credit(ctx, tx, ledger.Entry{
				UserID:      ref.UserID,
				Type:        models.TypeCredit,
				Amount:      ref.Amount,
				Description: "Referral reward for " + user.Name,
			}); err != nil {
				return err
			}
		}
		resolved = true
		return tx.WalletLoads().UpdateStatus(ctx, req.ID, models.WalletRequestPending, models.WalletRequestApproved, s.now())
	})
	if err != nil {
		slog.Error("failed to approve wallet load", "method", "ApproveWalletLoad", "request_id", requestID, "error", err)
		return err
	}
	if !resolved {
		slog.Warn("wallet load already resolved", "method", "ApproveWalletLoad", "request_id", requestID, "status", req.Status)
		return nil
	}

	affected := []string{req.UserID}
	if result.Referrer != nil {
		affected = append(affected, result.Referrer.UserID)
	}
	observability.WalletRequests.WithLabelValues("load", "approved").Inc()
	s.notify.committed(ctx, kafka.TopicWallet, kafka.Event{
		Type:     "wallet_load.approved",
		EntityID: req.ID,
		UserIDs:  affected,
	})
	slog.Info("wallet load approved", "method", "ApproveWalletLoad", "request_id", req.ID, "user_id", req.UserID,
		"amount", req.Amount.String(), "bonus", result.Bonus.String())
	return nil
}

func lookupCoupon(ctx context.Context, tx repository.Tx, code string) (*models.Coupon, error) {
	if code == "" {
		return nil, nil
	}
	coupon, err := tx.Coupons().GetByCode(ctx, code)
	if stderrors.Is(err, pkgerrors.ErrNotFound) {
		slog.Warn("coupon not found", "method", "ApproveWalletLoad", "code", code)
		return nil, nil
	}
	return coupon, err
}

func lookupReferrer(ctx context.Context, tx repository.Tx, user *models.User) (*models.User, error) {
	if user.ReferredByCode == "" || user.FirstRechargeCompleted {
		return nil, nil
	}
	referrer, err := tx.Users().GetByReferralCode(ctx, user.ReferredByCode)
	if stderrors.Is(err, pkgerrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if referrer.ID == user.ID {
		return nil, nil
	}
	return referrer, nil
}

func (s *walletService) RejectWalletLoad(ctx context.Context, actor Actor, requestID string) (err error) {
	ctx, span := startSpan(ctx, "wallet-service", "RejectWalletLoad")
	span.SetAttributes(attribute.String("request_id", requestID))
	defer func() { endSpan(span, err) }()

	if err = requireAdmin(actor); err != nil {
		return err
	}

	var req *models.WalletLoadRequest
	resolved := false
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		req, err = tx.WalletLoads().GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if !req.Status.CanTransitionTo(models.WalletRequestRejected) {
			return nil
		}
		resolved = true
		return tx.WalletLoads().UpdateStatus(ctx, req.ID, models.WalletRequestPending, models.WalletRequestRejected, s.now())
	})
	if err != nil {
		return err
	}
	if !resolved {
		slog.Warn("wallet load already resolved", "method", "RejectWalletLoad", "request_id", requestID, "status", req.Status)
		return nil
	}

	observability.WalletRequests.WithLabelValues("load", "rejected").Inc()
	s.notify.committed(ctx, kafka.TopicWallet, kafka.Event{Type: "wallet_load.rejected", EntityID: req.ID})
	slog.Info("wallet load rejected", "method", "RejectWalletLoad", "request_id", req.ID, "user_id", req.UserID)
	return nil
}

// RequestWithdrawal takes the amount out of the wallet immediately; an
// administrator later settles or refunds it.
func (s *walletService) RequestWithdrawal(ctx context.Context, actor Actor, amount decimal.Decimal, upiID string) (req *models.WithdrawalRequest, err error) {
	ctx, span := startSpan(ctx, "wallet-service", "RequestWithdrawal")
	defer func() { endSpan(span, err) }()

	if err = actor.check(); err != nil {
		return nil, err
	}
	amount = bonus.Round(amount)
	if amount.LessThan(MinimumWithdrawal) {
		slog.Warn("withdrawal below minimum", "method", "RequestWithdrawal", "user_id", actor.UserID, "amount", amount.String())
		return nil, fmt.Errorf("%w: minimum withdrawal is %s", pkgerrors.ErrBelowMinimum, MinimumWithdrawal.String())
	}
	upiID = strings.TrimSpace(upiID)
	if upiID == "" {
		return nil, fmt.Errorf("%w: upi id is required", pkgerrors.ErrInvalidInput)
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if _, err := ledger.Debit(ctx, tx, ledger.Entry{
			UserID:      user.ID,
			Type:        models.TypeWithdrawal,
			Amount:      amount,
			Description: "Withdrawal to UPI: " + upiID,
		}); err != nil {
			return err
		}
		req = &models.WithdrawalRequest{
			UserID:      user.ID,
			UserName:    user.Name,
			Amount:      amount,
			UPIID:       upiID,
			Status:      models.WithdrawalPending,
			RequestedAt: s.now(),
		}
		return tx.Withdrawals().Create(ctx, req)
	})
	if err != nil {
		slog.Warn("withdrawal declined", "method", "RequestWithdrawal", "user_id", actor.UserID, "error", err)
		return nil, err
	}

	s.notify.committed(ctx, kafka.TopicWallet, kafka.Event{
		Type:     "withdrawal.requested",
		EntityID: req.ID,
		UserIDs:  []string{req.UserID},
		Payload:  req,
	})
	slog.Info("withdrawal requested", "method", "RequestWithdrawal", "request_id", req.ID, "user_id", req.UserID, "amount", amount.String())
	return req, nil
}

func (s *walletService) ApproveWithdrawal(ctx context.Context, actor Actor, requestID string) error {
	return s.resolveWithdrawal(ctx, actor, requestID, models.WithdrawalProcessed)
}

// RejectWithdrawal refunds the escrowed amount to the requester.
func (s *walletService) RejectWithdrawal(ctx context.Context, actor Actor, requestID string) error {
	return s.resolveWithdrawal(ctx, actor, requestID, models.WithdrawalRejected)
}

func (s *walletService) resolveWithdrawal(ctx context.Context, actor Actor, requestID string, to models.WithdrawalStatus) (err error) {
	ctx, span := startSpan(ctx, "wallet-service", "ResolveWithdrawal")
	span.SetAttributes(attribute.String("request_id", requestID), attribute.String("to", string(to)))
	defer func() { endSpan(span, err) }()

	if err = requireAdmin(actor); err != nil {
		return err
	}

	var req *models.WithdrawalRequest
	resolved := false
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		req, err = tx.Withdrawals().GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if !req.Status.CanTransitionTo(to) {
			return nil
		}
		if to == models.WithdrawalRejected {
			if _, err := ledger.Credit(ctx, tx, ledger.Entry{
				UserID:      req.UserID,
				Type:        models.TypeCredit,
				Amount:      req.Amount,
				Description: "Refund for rejected withdrawal request.",
			}); err != nil {
				return err
			}
		}
		resolved = true
		return tx.Withdrawals().UpdateStatus(ctx, req.ID, models.WithdrawalPending, to, s.now())
	})
	if err != nil {
		slog.Error("failed to resolve withdrawal", "method", "ResolveWithdrawal", "request_id", requestID, "error", err)
		return err
	}
	if !resolved {
		slog.Warn("withdrawal already resolved", "method", "ResolveWithdrawal", "request_id", requestID, "status", req.Status)
		return nil
	}

	decision := strings.ToLower(string(to))
	observability.WalletRequests.WithLabelValues("withdrawal", decision).Inc()
	s.notify.committed(ctx, kafka.TopicWallet, kafka.Event{
		Type:     "withdrawal." + decision,
		EntityID: req.ID,
		UserIDs:  []string{req.UserID},
	})
	slog.Info("withdrawal resolved", "method", "ResolveWithdrawal", "request_id", req.ID, "user_id", req.UserID, "status", to)
	return nil
}

// Balance serves the wallet balance from the cache when present. The cache
// is only a read path: every debit re-reads the locked user row.
func (s *walletService) Balance(ctx context.Context, actor Actor) (balance decimal.Decimal, err error) {
	ctx, span := startSpan(ctx, "wallet-service", "Balance")
	defer func() { endSpan(span, err) }()

	if err = actor.check(); err != nil {
		return decimal.Zero, err
	}
	key := redis.BalanceKey(actor.UserID)
	if s.redisClient != nil {
		if cached, cacheErr := s.redisClient.Get(ctx, key); cacheErr == nil {
			if balance, err = decimal.NewFromString(cached); err == nil {
				return balance, nil
			}
			slog.Warn("corrupt cached balance", "method", "Balance", "user_id", actor.UserID, "value", cached)
		} else if !stderrors.Is(cacheErr, redis.ErrKeyNotFound) {
			slog.Warn("balance cache unavailable", "method", "Balance", "user_id", actor.UserID, "error", cacheErr)
		}
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		user, err := tx.Users().GetByID(ctx, actor.UserID)
		if err != nil {
			return err
		}
		balance = user.WalletBalance
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	if s.redisClient != nil {
		if err := s.redisClient.Set(ctx, key, balance.StringFixed(2), balanceCacheTTL); err != nil {
			slog.Warn("failed to cache balance", "method", "Balance", "user_id", actor.UserID, "error", err)
		}
	}
	return balance, nil
}

func (s *walletService) Transactions(ctx context.Context, actor Actor) (txs []models.Transaction, err error) {
	if err = actor.check(); err != nil {
		return nil, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		txs, err = tx.Transactions().ListByUser(ctx, actor.UserID)
		return err
	})
	return txs, err
}

func (s *walletService) MyWalletLoads(ctx context.Context, actor Actor) (reqs []models.WalletLoadRequest, err error) {
	if err = actor.check(); err != nil {
		return nil, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		reqs, err = tx.WalletLoads().ListByUser(ctx, actor.UserID)
		return err
	})
	return reqs, err
}

func (s *walletService) MyWithdrawals(ctx context.Context, actor Actor) (reqs []models.WithdrawalRequest, err error) {
	if err = actor.check(); err != nil {
		return nil, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		reqs, err = tx.Withdrawals().ListByUser(ctx, actor.UserID)
		return err
	})
	return reqs, err
}

func (s *walletService) PendingWalletLoads(ctx context.Context, actor Actor) (reqs []models.WalletLoadRequest, err error) {
	if err = requireAdmin(actor); err != nil {
		return nil, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		reqs, err = tx.WalletLoads().ListByStatus(ctx, models.WalletRequestPending)
		return err
	})
	return reqs, err
}

func (s *walletService) PendingWithdrawals(ctx context.Context, actor Actor) (reqs []models.WithdrawalRequest, err error) {
	if err = requireAdmin(actor); err != nil {
		return nil, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		reqs, err = tx.Withdrawals().ListByStatus(ctx, models.WithdrawalPending)
		return err
	})
	return reqs, err
}

func requireAdmin(actor Actor) error {
	if err := actor.check(); err != nil {
		return err
	}
	if !actor.IsAdmin {
		return pkgerrors.ErrForbidden
	}
	return nil
}
