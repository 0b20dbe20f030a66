package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/CampusGigService/internal/models"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const userColumns = `id, name, phone, email, block, profile_photo_url, college_id_url, password_hash, rating,
	deliveries_completed, wallet_balance, is_admin, referral_code, referred_by_code,
	first_recharge_completed, used_coupon_codes, created_at`

type UserRepository struct {
	q Queryer
}

func NewUserRepository(q Queryer) *UserRepository {
	return &UserRepository{q: q}
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user       models.User
		referredBy sql.NullString
		usedRaw    []byte
	)
	err := row.Scan(
		&user.ID, &user.Name, &user.Phone, &user.Email, &user.Block, &user.ProfilePhotoURL,
		&user.CollegeIDURL, &user.PasswordHash, &user.Rating, &user.DeliveriesCompleted,
		&user.WalletBalance, &user.IsAdmin, &user.ReferralCode, &referredBy,
		&user.FirstRechargeCompleted, &usedRaw, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.ReferredByCode = referredBy.String
	user.UsedCouponCodes = map[string]int{}
	if len(usedRaw) > 0 {
		if err := json.Unmarshal(usedRaw, &user.UsedCouponCodes); err != nil {
			return nil, fmt.Errorf("failed to decode used_coupon_codes: %w", err)
		}
	}
	return &user, nil
}

func validateUser(user *models.User) error {
	if user.Email == "" {
		return fmt.Errorf("%w: email is required", pkgerrors.ErrInvalidInput)
	}
	if user.Name == "" {
		return fmt.Errorf("%w: name is required", pkgerrors.ErrInvalidInput)
	}
	if user.PasswordHash == "" {
		return fmt.Errorf("%w: password_hash is required", pkgerrors.ErrInvalidInput)
	}
	if user.ReferralCode == "" {
		return fmt.Errorf("%w: referral_code is required", pkgerrors.ErrInvalidInput)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (err error) {
	ctx, span, start := startCall(ctx, "user-repository", "CreateUser")
	defer func() { finishCall(span, "CreateUser", start, err) }()

	if user == nil {
		err = pkgerrors.ErrNilUser
		slog.Error("failed to create user", "method", "Create", "error", err)
		return err
	}
	if err = validateUser(user); err != nil {
		slog.Error("invalid user", "method", "Create", "email", user.Email, "error", err)
		return err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	used, err := json.Marshal(user.UsedCouponCodes)
	if err != nil {
		return fmt.Errorf("failed to encode used_coupon_codes: %w", err)
	}
	span.SetAttributes(attribute.String("user_id", user.ID))

	query := `INSERT INTO users (id, name, phone, email, block, profile_photo_url, college_id_url, password_hash,
		rating, deliveries_completed, wallet_balance, is_admin, referral_code, referred_by_code,
		first_recharge_completed, used_coupon_codes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16) RETURNING created_at`
	err = r.q.QueryRowContext(ctx, query,
		user.ID, user.Name, user.Phone, user.Email, user.Block, user.ProfilePhotoURL, user.CollegeIDURL,
		user.PasswordHash, user.Rating, user.DeliveriesCompleted, user.WalletBalance, user.IsAdmin,
		user.ReferralCode, nullString(user.ReferredByCode), user.FirstRechargeCompleted, used,
	).Scan(&user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == "23505" {
			if pqErr.Constraint == "users_referral_code_key" {
				err = pkgerrors.ErrReferralCodeTaken
			} else {
				err = pkgerrors.ErrEmailExists
			}
			slog.Warn("user already exists", "method", "Create", "email", user.Email, "constraint", pqErr.Constraint)
			return err
		}
		slog.Error("failed to create user", "method", "Create", "email", user.Email, "error", err)
		return fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created", "method", "Create", "user_id", user.ID)
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, method, query string, arg any) (user *models.User, err error) {
	ctx, span, start := startCall(ctx, "user-repository", method)
	defer func() {
		if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			finishCall(span, method, start, nil)
			return
		}
		finishCall(span, method, start, err)
	}()

	user, err = scanUser(r.q.QueryRowContext(ctx, query, arg))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrUserNotFound
	}
	if err != nil {
		slog.Error("failed to get user", "method", method, "error", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "GetUserByID", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "GetUserByIDForUpdate", `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email cannot be empty", pkgerrors.ErrInvalidInput)
	}
	return r.getOne(ctx, "GetUserByEmail", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UserRepository) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return r.getOne(ctx, "GetUserByReferralCode", `SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code)
}

func (r *UserRepository) List(ctx context.Context) (users []models.User, err error) {
	ctx, span, start := startCall(ctx, "user-repository", "ListUsers")
	defer func() { finishCall(span, "ListUsers", start, err) }()

	rows, err := r.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		slog.Error("failed to list users", "method", "List", "error", err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, scanErr := scanUser(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan user: %w", scanErr)
			return nil, err
		}
		users = append(users, *user)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) ChangeBalance(ctx context.Context, userID string, delta decimal.Decimal) (newBalance decimal.Decimal, err error) {
	ctx, span, start := startCall(ctx, "user-repository", "ChangeBalance")
	span.SetAttributes(attribute.String("user_id", userID), attribute.String("delta", delta.String()))
	defer func() { finishCall(span, "ChangeBalance", start, err) }()

	query := `
		UPDATE users
		SET wallet_balance = wallet_balance + $1
		WHERE id = $2
		AND (wallet_balance + $1) >= 0
		RETURNING wallet_balance`
	err = r.q.QueryRowContext(ctx, query, delta, userID).Scan(&newBalance)
	if stderrors.Is(err, sql.ErrNoRows) {
		var exists bool
		if existsErr := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); existsErr != nil {
			err = fmt.Errorf("failed to check user existence: %w", existsErr)
			return decimal.Zero, err
		}
		if !exists {
			err = pkgerrors.ErrUserNotFound
			return decimal.Zero, err
		}
		err = pkgerrors.ErrInsufficientFunds
		slog.Warn("balance change rejected", "method", "ChangeBalance", "user_id", userID, "delta", delta.String())
		return decimal.Zero, err
	}
	if err != nil {
		slog.Error("failed to change balance", "method", "ChangeBalance", "user_id", userID, "error", err)
		return decimal.Zero, fmt.Errorf("failed to change balance: %w", err)
	}

	slog.Info("balance changed", "method", "ChangeBalance", "user_id", userID, "delta", delta.String(), "balance", newBalance.String())
	return newBalance, nil
}

func (r *UserRepository) exec(ctx context.Context, method, query string, args ...any) (err error) {
	ctx, span, start := startCall(ctx, "user-repository", method)
	defer func() { finishCall(span, method, start, err) }()

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Error("user update failed", "method", method, "error", err)
		return fmt.Errorf("failed to %s: %w", method, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return pkgerrors.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) IncrementDeliveries(ctx context.Context, userID string) error {
	return r.exec(ctx, "IncrementDeliveries",
		`UPDATE users SET deliveries_completed = deliveries_completed + 1 WHERE id = $1`, userID)
}

func (r *UserRepository) UpdateBonusState(ctx context.Context, userID string, usedCoupons map[string]int, firstRechargeCompleted bool) error {
	used, err := json.Marshal(usedCoupons)
	if err != nil {
		return fmt.Errorf("failed to encode used_coupon_codes: %w", err)
	}
	return r.exec(ctx, "UpdateBonusState",
		`UPDATE users SET used_coupon_codes = $1, first_recharge_completed = first_recharge_completed OR $2 WHERE id = $3`,
		used, firstRechargeCompleted, userID)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "DeleteUser", `DELETE FROM users WHERE id = $1`, id)
}
