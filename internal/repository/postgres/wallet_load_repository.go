package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/CampusGigService/internal/models"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const walletLoadColumns = `id, user_id, user_name, amount, utr, screenshot_url, status, coupon_code, requested_at, resolved_at`

type WalletLoadRepository struct {
	q Queryer
}

func NewWalletLoadRepository(q Queryer) *WalletLoadRepository {
	return &WalletLoadRepository{q: q}
}

func scanWalletLoad(row rowScanner) (*models.WalletLoadRequest, error) {
	var (
		req        models.WalletLoadRequest
		coupon     sql.NullString
		resolvedAt sql.NullTime
	)
	err := row.Scan(&req.ID, &req.UserID, &req.UserName, &req.Amount, &req.UTR, &req.ScreenshotURL,
		&req.Status, &coupon, &req.RequestedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	req.CouponCode = coupon.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		req.ResolvedAt = &t
	}
	return &req, nil
}

func (r *WalletLoadRepository) Create(ctx context.Context, req *models.WalletLoadRequest) (err error) {
	ctx, span, start := startCall(ctx, "wallet-load-repository", "CreateWalletLoad")
	defer func() { finishCall(span, "CreateWalletLoad", start, err) }()

	if req == nil {
		err = fmt.Errorf("%w: wallet load request is nil", pkgerrors.ErrInvalidInput)
		return err
	}
	if !req.Amount.IsPositive() {
		err = pkgerrors.ErrInvalidAmount
		return err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("request_id", req.ID), attribute.String("user_id", req.UserID))

	query := `INSERT INTO wallet_load_requests (id, user_id, user_name, amount, utr, screenshot_url, status, coupon_code, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.q.ExecContext(ctx, query, req.ID, req.UserID, req.UserName, req.Amount, req.UTR,
		req.ScreenshotURL, req.Status, nullString(req.CouponCode), req.RequestedAt)
	if err != nil {
		slog.Error("failed to create wallet load request", "method", "Create", "user_id", req.UserID, "error", err)
		return fmt.Errorf("failed to create wallet load request: %w", err)
	}

	slog.Info("wallet load request created", "method", "Create", "request_id", req.ID, "user_id", req.UserID)
	return nil
}

func (r *WalletLoadRepository) GetByIDForUpdate(ctx context.Context, id string) (req *models.WalletLoadRequest, err error) {
	ctx, span, start := startCall(ctx, "wallet-load-repository", "GetWalletLoadForUpdate")
	span.SetAttributes(attribute.String("request_id", id))
	defer func() { finishCall(span, "GetWalletLoadForUpdate", start, err) }()

	req, err = scanWalletLoad(r.q.QueryRowContext(ctx,
		`SELECT `+walletLoadColumns+` FROM wallet_load_requests WHERE id = $1 FOR UPDATE`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrRequestNotFound
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet load request: %w", err)
	}
	return req, nil
}

func (r *WalletLoadRepository) list(ctx context.Context, method, query string, arg any) (reqs []models.WalletLoadRequest, err error) {
	ctx, span, start := startCall(ctx, "wallet-load-repository", method)
	defer func() { finishCall(span, method, start, err) }()

	rows, err := r.q.QueryContext(ctx, query, arg)
	if err != nil {
		slog.Error("failed to list wallet load requests", "method", method, "error", err)
		return nil, fmt.Errorf("failed to list wallet load requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		req, scanErr := scanWalletLoad(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan wallet load request: %w", scanErr)
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wallet load requests: %w", err)
	}
	return reqs, nil
}

func (r *WalletLoadRepository) ListByStatus(ctx context.Context, status models.WalletRequestStatus) ([]models.WalletLoadRequest, error) {
	return r.list(ctx, "ListWalletLoadsByStatus",
		`SELECT `+walletLoadColumns+` FROM wallet_load_requests WHERE status = $1 ORDER BY requested_at DESC`, status)
}

func (r *WalletLoadRepository) ListByUser(ctx context.Context, userID string) ([]models.WalletLoadRequest, error) {
	return r.list(ctx, "ListWalletLoadsByUser",
		`SELECT `+walletLoadColumns+` FROM wallet_load_requests WHERE user_id = $1 ORDER BY requested_at DESC`, userID)
}

func (r *WalletLoadRepository) UpdateStatus(ctx context.Context, id string, from, to models.WalletRequestStatus, at time.Time) (err error) {
	ctx, span, start := startCall(ctx, "wallet-load-repository", "UpdateWalletLoadStatus")
	span.SetAttributes(attribute.String("request_id", id), attribute.String("to", string(to)))
	defer func() { finishCall(span, "UpdateWalletLoadStatus", start, err) }()

	res, err := r.q.ExecContext(ctx,
		`UPDATE wallet_load_requests SET status = $1, resolved_at = $2 WHERE id = $3 AND status = $4`,
		to, at, id, from)
	if err != nil {
		slog.Error("failed to update wallet load request", "method", "UpdateStatus", "request_id", id, "error", err)
		return fmt.Errorf("failed to update wallet load request: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		err = pkgerrors.ErrInvalidState
		return err
	}
	slog.Info("wallet load request resolved", "method", "UpdateStatus", "request_id", id, "status", to)
	return nil
}

func (r *WalletLoadRepository) CountPendingByUser(ctx context.Context, userID string) (count int, err error) {
	ctx, span, start := startCall(ctx, "wallet-load-repository", "CountPendingWalletLoads")
	defer func() { finishCall(span, "CountPendingWalletLoads", start, err) }()

	err = r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wallet_load_requests WHERE user_id = $1 AND status = 'PENDING'`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending wallet loads: %w", err)
	}
	return count, nil
}
