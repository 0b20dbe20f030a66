package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/CampusGigService/internal/models"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"github.com/shopspring/decimal"
)

type userRepo struct{ t *tx }

func (r *userRepo) Create(_ context.Context, user *models.User) error {
	if user == nil {
		return pkgerrors.ErrNilUser
	}
	if user.Email == "" || user.Name == "" || user.PasswordHash == "" || user.ReferralCode == "" {
		return fmt.Errorf("%w: name, email, password_hash and referral_code are required", pkgerrors.ErrInvalidInput)
	}
	for _, existing := range r.t.st.users {
		if existing.Email == user.Email {
			return pkgerrors.ErrEmailExists
		}
		if existing.ReferralCode == user.ReferralCode {
			return pkgerrors.ErrReferralCodeTaken
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.UsedCouponCodes == nil {
		user.UsedCouponCodes = map[string]int{}
	}
	user.CreatedAt = r.t.now()
	r.t.st.users[user.ID] = cloneUser(*user)
	r.t.touch(user.ID)
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	u, ok := r.t.st.users[id]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	c := cloneUser(u)
	return &c, nil
}

func (r *userRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email cannot be empty", pkgerrors.ErrInvalidInput)
	}
	for _, u := range r.t.st.users {
		if u.Email == email {
			c := cloneUser(u)
			return &c, nil
		}
	}
	return nil, pkgerrors.ErrUserNotFound
}

func (r *userRepo) GetByReferralCode(_ context.Context, code string) (*models.User, error) {
	for _, u := range r.t.st.users {
		if u.ReferralCode == code {
			c := cloneUser(u)
			return &c, nil
		}
	}
	return nil, pkgerrors.ErrUserNotFound
}

func (r *userRepo) List(_ context.Context) ([]models.User, error) {
	ids := make([]string, 0, len(r.t.st.users))
	for id := range r.t.st.users {
		ids = append(ids, id)
	}
	r.t.newerFirst(ids, func(id string) time.Time { return r.t.st.users[id].CreatedAt })
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneUser(r.t.st.users[id]))
	}
	return out, nil
}

func (r *userRepo) ChangeBalance(_ context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	u, ok := r.t.st.users[userID]
	if !ok {
		return decimal.Zero, pkgerrors.ErrUserNotFound
	}
	next := u.WalletBalance.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, pkgerrors.ErrInsufficientFunds
	}
	u.WalletBalance = next
	r.t.st.users[userID] = u
	return next, nil
}

func (r *userRepo) IncrementDeliveries(_ context.Context, userID string) error {
	u, ok := r.t.st.users[userID]
	if !ok {
		return pkgerrors.ErrUserNotFound
	}
	u.DeliveriesCompleted++
	r.t.st.users[userID] = u
	return nil
}

func (r *userRepo) UpdateBonusState(_ context.Context, userID string, usedCoupons map[string]int, firstRechargeCompleted bool) error {
	u, ok := r.t.st.users[userID]
	if !ok {
		return pkgerrors.ErrUserNotFound
	}
	u.UsedCouponCodes = usedCoupons
	u.FirstRechargeCompleted = u.FirstRechargeCompleted || firstRechargeCompleted
	r.t.st.users[userID] = cloneUser(u)
	return nil
}

func (r *userRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.t.st.users[id]; !ok {
		return pkgerrors.ErrUserNotFound
	}
	delete(r.t.st.users, id)
	return nil
}
