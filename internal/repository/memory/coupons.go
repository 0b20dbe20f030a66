package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/honeynil/CampusGigService/internal/models"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
)

type couponRepo struct{ t *tx }

func (r *couponRepo) validate(c *models.Coupon) error {
	if c == nil {
		return fmt.Errorf("%w: coupon is nil", pkgerrors.ErrInvalidInput)
	}
	c.Code = models.NormalizeCouponCode(c.Code)
	if c.Code == "" || c.BonusPercentage.IsNegative() || c.MaxUsesPerUser < 1 {
		return fmt.Errorf("%w: invalid coupon", pkgerrors.ErrInvalidInput)
	}
	for id, existing := range r.t.st.coupons {
		if existing.Code == c.Code && id != c.ID {
			return pkgerrors.ErrCouponExists
		}
	}
	return nil
}

func (r *couponRepo) Create(_ context.Context, coupon *models.Coupon) error {
	if err := r.validate(coupon); err != nil {
		return err
	}
	if coupon.ID == "" {
		coupon.ID = uuid.NewString()
	}
	r.t.st.coupons[coupon.ID] = *coupon
	return nil
}

func (r *couponRepo) GetByID(_ context.Context, id string) (*models.Coupon, error) {
	c, ok := r.t.st.coupons[id]
	if !ok {
		return nil, pkgerrors.ErrCouponNotFound
	}
	return &c, nil
}

func (r *couponRepo) GetByCode(_ context.Context, code string) (*models.Coupon, error) {
	code = models.NormalizeCouponCode(code)
	for _, c := range r.t.st.coupons {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, pkgerrors.ErrCouponNotFound
}

func (r *couponRepo) List(_ context.Context) ([]models.Coupon, error) {
	out := make([]models.Coupon, 0, len(r.t.st.coupons))
	for _, c := range r.t.st.coupons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *couponRepo) Update(_ context.Context, coupon *models.Coupon) error {
	if err := r.validate(coupon); err != nil {
		return err
	}
	if _, ok := r.t.st.coupons[coupon.ID]; !ok {
		return pkgerrors.ErrCouponNotFound
	}
	r.t.st.coupons[coupon.ID] = *coupon
	return nil
}

func (r *couponRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.t.st.coupons[id]; !ok {
		return pkgerrors.ErrCouponNotFound
	}
	delete(r.t.st.coupons, id)
	return nil
}

type platformRepo struct{ t *tx }

func (r *platformRepo) Get(_ context.Context) (*models.PlatformConfig, error) {
	cfg := r.t.st.platform
	return &cfg, nil
}

func (r *platformRepo) Update(_ context.Context, cfg *models.PlatformConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: platform config is nil", pkgerrors.ErrInvalidInput)
	}
	r.t.st.platform = *cfg
	return nil
}
