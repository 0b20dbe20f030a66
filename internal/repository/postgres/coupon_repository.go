package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/CampusGigService/internal/models"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

const couponColumns = `id, code, bonus_percentage, is_active, max_uses_per_user`

type CouponRepository struct {
	q Queryer
}

func NewCouponRepository(q Queryer) *CouponRepository {
	return &CouponRepository{q: q}
}

func scanCoupon(row rowScanner) (*models.Coupon, error) {
	var c models.Coupon
	if err := row.Scan(&c.ID, &c.Code, &c.BonusPercentage, &c.IsActive, &c.MaxUsesPerUser); err != nil {
		return nil, err
	}
	return &c, nil
}

func validateCoupon(c *models.Coupon) error {
	if c == nil {
		return fmt.Errorf("%w: coupon is nil", pkgerrors.ErrInvalidInput)
	}
	c.Code = models.NormalizeCouponCode(c.Code)
	if c.Code == "" {
		return fmt.Errorf("%w: coupon code is required", pkgerrors.ErrInvalidInput)
	}
	if c.BonusPercentage.IsNegative() {
		return fmt.Errorf("%w: bonus percentage cannot be negative", pkgerrors.ErrInvalidInput)
	}
	if c.MaxUsesPerUser < 1 {
		return fmt.Errorf("%w: max uses per user must be at least 1", pkgerrors.ErrInvalidInput)
	}
	return nil
}

func couponWriteError(method string, c *models.Coupon, err error) error {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == "23505" {
		slog.Warn("coupon code already exists", "method", method, "code", c.Code)
		return pkgerrors.ErrCouponExists
	}
	slog.Error("failed to write coupon", "method", method, "code", c.Code, "error", err)
	return fmt.Errorf("failed to write coupon: %w", err)
}

func (r *CouponRepository) Create(ctx context.Context, coupon *models.Coupon) (err error) {
	ctx, span, start := startCall(ctx, "coupon-repository", "CreateCoupon")
	defer func() { finishCall(span, "CreateCoupon", start, err) }()

	if err = validateCoupon(coupon); err != nil {
		return err
	}
	if coupon.ID == "" {
		coupon.ID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("code", coupon.Code))

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO coupons (id, code, bonus_percentage, is_active, max_uses_per_user) VALUES ($1, $2, $3, $4, $5)`,
		coupon.ID, coupon.Code, coupon.BonusPercentage, coupon.IsActive, coupon.MaxUsesPerUser)
	if err != nil {
		err = couponWriteError("Create", coupon, err)
		return err
	}
	slog.Info("coupon created", "method", "Create", "code", coupon.Code)
	return nil
}

func (r *CouponRepository) getOne(ctx context.Context, method, query, arg string) (coupon *models.Coupon, err error) {
	ctx, span, start := startCall(ctx, "coupon-repository", method)
	defer func() {
		if stderrors.Is(err, pkgerrors.ErrCouponNotFound) {
			finishCall(span, method, start, nil)
			return
		}
		finishCall(span, method, start, err)
	}()

	coupon, err = scanCoupon(r.q.QueryRowContext(ctx, query, arg))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return coupon, nil
}

func (r *CouponRepository) GetByID(ctx context.Context, id string) (*models.Coupon, error) {
	return r.getOne(ctx, "GetCouponByID", `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id)
}

func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return r.getOne(ctx, "GetCouponByCode", `SELECT `+couponColumns+` FROM coupons WHERE code = $1`,
		models.NormalizeCouponCode(code))
}

func (r *CouponRepository) List(ctx context.Context) (coupons []models.Coupon, err error) {
	ctx, span, start := startCall(ctx, "coupon-repository", "ListCoupons")
	defer func() { finishCall(span, "ListCoupons", start, err) }()

	rows, err := r.q.QueryContext(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, scanErr := scanCoupon(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan coupon: %w", scanErr)
			return nil, err
		}
		coupons = append(coupons, *c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate coupons: %w", err)
	}
	return coupons, nil
}

func (r *CouponRepository) Update(ctx context.Context, coupon *models.Coupon) (err error) {
	ctx, span, start := startCall(ctx, "coupon-repository", "UpdateCoupon")
	defer func() { finishCall(span, "UpdateCoupon", start, err) }()

	if err = validateCoupon(coupon); err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx,
		`UPDATE coupons SET code = $1, bonus_percentage = $2, is_active = $3, max_uses_per_user = $4 WHERE id = $5`,
		coupon.Code, coupon.BonusPercentage, coupon.IsActive, coupon.MaxUsesPerUser, coupon.ID)
	if err != nil {
		err = couponWriteError("Update", coupon, err)
		return err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return pkgerrors.ErrCouponNotFound
	}
	slog.Info("coupon updated", "method", "Update", "code", coupon.Code)
	return nil
}

func (r *CouponRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, span, start := startCall(ctx, "coupon-repository", "DeleteCoupon")
	defer func() { finishCall(span, "DeleteCoupon", start, err) }()

	res, err := r.q.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return pkgerrors.ErrCouponNotFound
	}
	slog.Info("coupon deleted", "method", "Delete", "coupon_id", id)
	return nil
}
