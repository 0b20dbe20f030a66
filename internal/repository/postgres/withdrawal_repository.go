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

const withdrawalColumns = `id, user_id, user_name, amount, upi_id, status, requested_at, resolved_at`

type WithdrawalRepository struct {
	q Queryer
}

func NewWithdrawalRepository(q Queryer) *WithdrawalRepository {
	return &WithdrawalRepository{q: q}
}

func scanWithdrawal(row rowScanner) (*models.WithdrawalRequest, error) {
	var (
		req        models.WithdrawalRequest
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&req.ID, &req.UserID, &req.UserName, &req.Amount, &req.UPIID, &req.Status,
		&req.RequestedAt, &resolvedAt); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		req.ResolvedAt = &t
	}
	return &req, nil
}

func (r *WithdrawalRepository) Create(ctx context.Context, req *models.WithdrawalRequest) (err error) {
	ctx, span, start := startCall(ctx, "withdrawal-repository", "CreateWithdrawal")
	defer func() { finishCall(span, "CreateWithdrawal", start, err) }()

	if req == nil {
		err = fmt.Errorf("%w: withdrawal request is nil", pkgerrors.ErrInvalidInput)
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

	query := `INSERT INTO withdrawal_requests (id, user_id, user_name, amount, upi_id, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.q.ExecContext(ctx, query, req.ID, req.UserID, req.UserName, req.Amount, req.UPIID, req.Status, req.RequestedAt)
	if err != nil {
		slog.Error("failed to create withdrawal request", "method", "Create", "user_id", req.UserID, "error", err)
		return fmt.Errorf("failed to create withdrawal request: %w", err)
	}

	slog.Info("withdrawal request created", "method", "Create", "request_id", req.ID, "user_id", req.UserID)
	return nil
}

func (r *WithdrawalRepository) GetByIDForUpdate(ctx context.Context, id string) (req *models.WithdrawalRequest, err error) {
	ctx, span, start := startCall(ctx, "withdrawal-repository", "GetWithdrawalForUpdate")
	span.SetAttributes(attribute.String("request_id", id))
	defer func() { finishCall(span, "GetWithdrawalForUpdate", start, err) }()

	req, err = scanWithdrawal(r.q.QueryRowContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrRequestNotFound
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal request: %w", err)
	}
	return req, nil
}

func (r *WithdrawalRepository) list(ctx context.Context, method, query string, arg any) (reqs []models.WithdrawalRequest, err error) {
	ctx, span, start := startCall(ctx, "withdrawal-repository", method)
	defer func() { finishCall(span, method, start, err) }()

	rows, err := r.q.QueryContext(ctx, query, arg)
	if err != nil {
		slog.Error("failed to list withdrawal requests", "method", method, "error", err)
		return nil, fmt.Errorf("failed to list withdrawal requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		req, scanErr := scanWithdrawal(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan withdrawal request: %w", scanErr)
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate withdrawal requests: %w", err)
	}
	return reqs, nil
}

func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error) {
	return r.list(ctx, "ListWithdrawalsByStatus",
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE status = $1 ORDER BY requested_at DESC`, status)
}

func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID string) ([]models.WithdrawalRequest, error) {
	return r.list(ctx, "ListWithdrawalsByUser",
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE user_id = $1 ORDER BY requested_at DESC`, userID)
}

func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, id string, from, to models.WithdrawalStatus, at time.Time) (err error) {
	ctx, span, start := startCall(ctx, "withdrawal-repository", "UpdateWithdrawalStatus")
	span.SetAttributes(attribute.String("request_id", id), attribute.String("to", string(to)))
	defer func() { finishCall(span, "UpdateWithdrawalStatus", start, err) }()

	res, err := r.q.ExecContext(ctx,
		`UPDATE withdrawal_requests SET status = $1, resolved_at = $2 WHERE id = $3 AND status = $4`,
		to, at, id, from)
	if err != nil {
		slog.Error("failed to update withdrawal request", "method", "UpdateStatus", "request_id", id, "error", err)
		return fmt.Errorf("failed to update withdrawal request: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		err = pkgerrors.ErrInvalidState
		return err
	}
	slog.Info("withdrawal request resolved", "method", "UpdateStatus", "request_id", id, "status", to)
	return nil
}

func (r *WithdrawalRepository) CountPendingByUser(ctx context.Context, userID string) (count int, err error) {
	ctx, span, start := startCall(ctx, "withdrawal-repository", "CountPendingWithdrawals")
	defer func() { finishCall(span, "CountPendingWithdrawals", start, err) }()

	err = r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM withdrawal_requests WHERE user_id = $1 AND status = 'PENDING'`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending withdrawals: %w", err)
	}
	return count, nil
}
