package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/honeynil/CampusGigService/internal/infrastructure/kafka"
	"github.com/honeynil/CampusGigService/internal/infrastructure/redis"
	"github.com/honeynil/CampusGigService/internal/models"
	"github.com/honeynil/CampusGigService/internal/repository"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type AdminService interface {
	PlatformConfig(ctx context.Context) (*models.PlatformConfig, error)
	SetPlatformFee(ctx context.Context, actor Actor, fee decimal.Decimal) error
	SetOfferBarText(ctx context.Context, actor Actor, text string) error
	ListUsers(ctx context.Context, actor Actor) ([]models.User, error)
	DeleteUser(ctx context.Context, actor Actor, userID string) error
	ListCoupons(ctx context.Context, actor Actor) ([]models.Coupon, error)
	AddCoupon(ctx context.Context, actor Actor, coupon models.Coupon) (*models.Coupon, error)
	UpdateCoupon(ctx context.Context, actor Actor, couponID string, in CouponUpdate) (*models.Coupon, error)
	DeleteCoupon(ctx context.Context, actor Actor, couponID string) error
	PlatformRevenue(ctx context.Context, actor Actor) (decimal.Decimal, error)
	ReconcileUser(ctx context.Context, actor Actor, userID string) (*Reconciliation, error)
}

// CouponUpdate carries the fields to change; nil fields are left as they are.
type CouponUpdate struct {
	Code            *string          `json:"code,omitempty"`
	BonusPercentage *decimal.Decimal `json:"bonus_percentage,omitempty"`
	IsActive        *bool            `json:"is_active,omitempty"`
	MaxUsesPerUser  *int             `json:"max_uses_per_user,omitempty"`
}

// Reconciliation compares a stored wallet balance with the signed sum of the
// user's ledger.
type Reconciliation struct {
	UserID        string          `json:"user_id"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
	Consistent    bool            `json:"consistent"`
}

type adminService struct {
	store       repository.Store
	redisClient redis.RedisClient
	notify      notifier
}

func NewAdminService(store repository.Store, redisClient redis.RedisClient, publisher EventPublisher) *adminService {
	return &adminService{
		store:       store,
		redisClient: redisClient,
		notify:      notifier{cache: redisClient, publisher: publisher},
	}
}

func (s *adminService) PlatformConfig(ctx context.Context) (cfg *models.PlatformConfig, err error) {
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		cfg, err = tx.Platform().Get(ctx)
		return err
	})
	return cfg, err
}

func (s *adminService) updatePlatform(ctx context.Context, method string, apply func(cfg *models.PlatformConfig)) (cfg *models.PlatformConfig, err error) {
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		cfg, err = tx.Platform().Get(ctx)
		if err != nil {
			return err
		}
		apply(cfg)
		return tx.Platform().Update(ctx, cfg)
	})
	if err != nil {
		slog.Error("failed to update platform config", "method", method, "error", err)
		return nil, err
	}
	s.notify.committed(ctx, kafka.TopicPlatform, kafka.Event{Type: "platform.updated", EntityID: "platform", Payload: cfg})
	return cfg, nil
}

// SetPlatformFee changes the fee applied to gigs completed from now on.
func (s *adminService) SetPlatformFee(ctx context.Context, actor Actor, fee decimal.Decimal) (err error) {
	ctx, span := startSpan(ctx, "admin-service", "SetPlatformFee")
	defer func() { endSpan(span, err) }()

	if err = requireAdmin(actor); err != nil {
		return err
	}
	if fee.IsNegative() || fee.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: fee must be between 0 and 1", pkgerrors.ErrInvalidInput)
	}
	if _, err = s.updatePlatform(ctx, "SetPlatformFee", func(cfg *models.PlatformConfig) { cfg.Fee = fee }); err != nil {
		return err
	}
	slog.Info("platform fee updated", "method", "SetPlatformFee", "fee", fee.String(), "user_id", actor.UserID)
	return nil
}

func (s *adminService) SetOfferBarText(ctx context.Context, actor Actor, text string) (err error) {
	ctx, span := startSpan(ctx, "admin-service", "SetOfferBarText")
	defer func() { endSpan(span, err) }()

	if err = requireAdmin(actor); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if _, err = s.updatePlatform(ctx, "SetOfferBarText", func(cfg *models.PlatformConfig) { cfg.OfferBarText = text }); err != nil {
		return err
	}
	slog.Info("offer bar text updated", "method", "SetOfferBarText", "user_id", actor.UserID)
	return nil
}

func (s *adminService) ListUsers(ctx context.Context, actor Actor) (users []models.User, err error) {
	if err = requireAdmin(actor); err != nil {
		return nil, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		users, err = tx.Users().List(ctx)
		return err
	})
	return users, err
}

// DeleteUser removes the account only. Its balance, open gigs and pending
// requests are left as they are and reported in the log.
func (s *adminService) DeleteUser(ctx context.Context, actor Actor, userID string) (err error) {
	ctx, span := startSpan(ctx, "admin-service", "DeleteUser")
	span.SetAttributes(attribute.String("user_id", userID))
	defer func() { endSpan(span, err) }()

	if err = requireAdmin(actor); err != nil {
		return err
	}

	var (
		user                                    *models.User
		openGigs, pendingLoads, pendingWithdraw int
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if user, err = tx.Users().GetByIDForUpdate(ctx, userID); err != nil {
			return err
		}
		if openGigs, err = tx.Gigs().CountOpenByRequester(ctx, userID); err != nil {
			return err
		}
		if pendingLoads, err = tx.WalletLoads().CountPendingByUser(ctx, userID); err != nil {
			return err
		}
		if pendingWithdraw, err = tx.Withdrawals().CountPendingByUser(ctx, userID); err != nil {
			return err
		}
		return tx.Users().Delete(ctx, userID)
	})
	if err != nil {
		slog.Error("failed to delete user", "method", "DeleteUser", "user_id", userID, "error", err)
		return err
	}

	if !user.WalletBalance.IsZero() || openGigs > 0 || pendingLoads > 0 || pendingWithdraw > 0 {
		slog.Warn("deleted user left unreconciled state", "method", "DeleteUser", "user_id", userID,
			"wallet_balance", user.WalletBalance.String(), "open_gigs", openGigs,
			"pending_wallet_loads", pendingLoads, "pending_withdrawals", pendingWithdraw)
	}
	if s.redisClient != nil {
		if err := s.redisClient.Del(ctx, redis.TokenKey(userID)); err != nil {
			slog.Error("failed to revoke session", "method", "DeleteUser", "user_id", userID, "error", err)
		}
	}
	s.notify.committed(ctx, kafka.TopicUsers, kafka.Event{Type: "user.deleted", EntityID: userID, UserIDs: []string{userID}})
	slog.Info("user deleted", "method", "DeleteUser", "user_id", userID, "admin_id", actor.UserID)
	return nil
}

func (s *adminService) ListCoupons(ctx context.Context, actor Actor) (coupons []models.Coupon, err error) {
	if err = requireAdmin(actor); err != nil {
		return nil, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		coupons, err = tx.Coupons().List(ctx)
		return err
	})
	return coupons, err
}

func (s *adminService) AddCoupon(ctx context.Context, actor Actor, coupon models.Coupon) (created *models.Coupon, err error) {
	ctx, span := startSpan(ctx, "admin-service", "AddCoupon")
	defer func() { endSpan(span, err) }()

	if err = requireAdmin(actor); err != nil {
		return nil, err
	}
	coupon.ID = ""
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Coupons().Create(ctx, &coupon)
	})
	if err != nil {
		return nil, err
	}
	s.notify.committed(ctx, kafka.TopicCoupons, kafka.Event{Type: "coupon.created", EntityID: coupon.ID, Payload: coupon})
	slog.Info("coupon added", "method", "AddCoupon", "code", coupon.Code, "user_id", actor.UserID)
	return &coupon, nil
}

func (s *adminService) UpdateCoupon(ctx context.Context, actor Actor, couponID string, in CouponUpdate) (coupon *models.Coupon, err error) {
	ctx, span := startSpan(ctx, "admin-service", "UpdateCoupon")
	span.SetAttributes(attribute.String("coupon_id", couponID))
	defer func() { endSpan(span, err) }()

	if err = requireAdmin(actor); err != nil {
		return nil, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		if coupon, err = tx.Coupons().GetByID(ctx, couponID); err != nil {
			return err
		}
		if in.Code != nil {
			coupon.Code = *in.Code
		}
		if in.BonusPercentage != nil {
			coupon.BonusPercentage = *in.BonusPercentage
		}
		if in.IsActive != nil {
			coupon.IsActive = *in.IsActive
		}
		if in.MaxUsesPerUser != nil {
			coupon.MaxUsesPerUser = *in.MaxUsesPerUser
		}
		return tx.Coupons().Update(ctx, coupon)
	})
	if err != nil {
		return nil, err
	}
	s.notify.committed(ctx, kafka.TopicCoupons, kafka.Event{Type: "coupon.updated", EntityID: coupon.ID, Payload: coupon})
	slog.Info("coupon updated", "method", "UpdateCoupon", "code", coupon.Code, "user_id", actor.UserID)
	return coupon, nil
}

func (s *adminService) DeleteCoupon(ctx context.Context, actor Actor, couponID string) (err error) {
	ctx, span := startSpan(ctx, "admin-service", "DeleteCoupon")
	span.SetAttributes(attribute.String("coupon_id", couponID))
	defer func() { endSpan(span, err) }()

	if err = requireAdmin(actor); err != nil {
		return err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Coupons().Delete(ctx, couponID)
	})
	if err != nil {
		return err
	}
	s.notify.committed(ctx, kafka.TopicCoupons, kafka.Event{Type: "coupon.deleted", EntityID: couponID})
	slog.Info("coupon deleted", "method", "DeleteCoupon", "coupon_id", couponID, "user_id", actor.UserID)
	return nil
}

// PlatformRevenue is the fee share retained over all completed gigs.
func (s *adminService) PlatformRevenue(ctx context.Context, actor Actor) (total decimal.Decimal, err error) {
	if err = requireAdmin(actor); err != nil {
		return decimal.Zero, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		total, err = tx.Gigs().SumPlatformFees(ctx)
		return err
	})
	return total, err
}

func (s *adminService) ReconcileUser(ctx context.Context, actor Actor, userID string) (rec *Reconciliation, err error) {
	ctx, span := startSpan(ctx, "admin-service", "ReconcileUser")
	span.SetAttributes(attribute.String("user_id", userID))
	defer func() { endSpan(span, err) }()

	if err = requireAdmin(actor); err != nil {
		return nil, err
	}
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		sum, err := tx.Transactions().SumSigned(ctx, userID)
		if err != nil {
			return err
		}
		rec = &Reconciliation{
			UserID:        userID,
			WalletBalance: user.WalletBalance,
			LedgerBalance: sum,
			Consistent:    user.WalletBalance.Equal(sum),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !rec.Consistent {
		slog.Warn("wallet balance does not match ledger", "method", "ReconcileUser", "user_id", userID,
			"wallet_balance", rec.WalletBalance.String(), "ledger_balance", rec.LedgerBalance.String())
	}
	return rec, nil
}
