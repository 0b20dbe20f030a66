package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/CampusGigService/internal/models"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
)

type walletLoadRepo struct{ t *tx }

func (r *walletLoadRepo) Create(_ context.Context, req *models.WalletLoadRequest) error {
	if req == nil {
		return fmt.Errorf("%w: wallet load request is nil", pkgerrors.ErrInvalidInput)
	}
	if !req.Amount.IsPositive() {
		return pkgerrors.ErrInvalidAmount
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = r.t.now()
	}
	r.t.st.walletLoads[req.ID] = cloneWalletLoad(*req)
	r.t.touch(req.ID)
	return nil
}

func (r *walletLoadRepo) GetByIDForUpdate(_ context.Context, id string) (*models.WalletLoadRequest, error) {
	req, ok := r.t.st.walletLoads[id]
	if !ok {
		return nil, pkgerrors.ErrRequestNotFound
	}
	c := cloneWalletLoad(req)
	return &c, nil
}

func (r *walletLoadRepo) filter(keep func(models.WalletLoadRequest) bool) []models.WalletLoadRequest {
	var ids []string
	for id, req := range r.t.st.walletLoads {
		if keep(req) {
			ids = append(ids, id)
		}
	}
	r.t.newerFirst(ids, func(id string) time.Time { return r.t.st.walletLoads[id].RequestedAt })
	out := make([]models.WalletLoadRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneWalletLoad(r.t.st.walletLoads[id]))
	}
	return out
}

func (r *walletLoadRepo) ListByStatus(_ context.Context, status models.WalletRequestStatus) ([]models.WalletLoadRequest, error) {
	return r.filter(func(req models.WalletLoadRequest) bool { return req.Status == status }), nil
}

func (r *walletLoadRepo) ListByUser(_ context.Context, userID string) ([]models.WalletLoadRequest, error) {
	return r.filter(func(req models.WalletLoadRequest) bool { return req.UserID == userID }), nil
}

func (r *walletLoadRepo) UpdateStatus(_ context.Context, id string, from, to models.WalletRequestStatus, at time.Time) error {
	req, ok := r.t.st.walletLoads[id]
	if !ok || req.Status != from {
		return pkgerrors.ErrInvalidState
	}
	req.Status = to
	req.ResolvedAt = &at
	r.t.st.walletLoads[id] = cloneWalletLoad(req)
	return nil
}

func (r *walletLoadRepo) CountPendingByUser(_ context.Context, userID string) (int, error) {
	n := 0
	for _, req := range r.t.st.walletLoads {
		if req.UserID == userID && req.Status == models.WalletRequestPending {
			n++
		}
	}
	return n, nil
}

type withdrawalRepo struct{ t *tx }

func (r *withdrawalRepo) Create(_ context.Context, req *models.WithdrawalRequest) error {
	if req == nil {
		return fmt.Errorf("%w: withdrawal request is nil", pkgerrors.ErrInvalidInput)
	}
	if !req.Amount.IsPositive() {
		return pkgerrors.ErrInvalidAmount
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = r.t.now()
	}
	r.t.st.withdrawals[req.ID] = cloneWithdrawal(*req)
	r.t.touch(req.ID)
	return nil
}

func (r *withdrawalRepo) GetByIDForUpdate(_ context.Context, id string) (*models.WithdrawalRequest, error) {
	req, ok := r.t.st.withdrawals[id]
	if !ok {
		return nil, pkgerrors.ErrRequestNotFound
	}
	c := cloneWithdrawal(req)
	return &c, nil
}

func (r *withdrawalRepo) filter(keep func(models.WithdrawalRequest) bool) []models.WithdrawalRequest {
	var ids []string
	for id, req := range r.t.st.withdrawals {
		if keep(req) {
			ids = append(ids, id)
		}
	}
	r.t.newerFirst(ids, func(id string) time.Time { return r.t.st.withdrawals[id].RequestedAt })
	out := make([]models.WithdrawalRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneWithdrawal(r.t.st.withdrawals[id]))
	}
	return out
}

func (r *withdrawalRepo) ListByStatus(_ context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error) {
	return r.filter(func(req models.WithdrawalRequest) bool { return req.Status == status }), nil
}

func (r *withdrawalRepo) ListByUser(_ context.Context, userID string) ([]models.WithdrawalRequest, error) {
	return r.filter(func(req models.WithdrawalRequest) bool { return req.UserID == userID }), nil
}

func (r *withdrawalRepo) UpdateStatus(_ context.Context, id string, from, to models.WithdrawalStatus, at time.Time) error {
	req, ok := r.t.st.withdrawals[id]
	if !ok || req.Status != from {
		return pkgerrors.ErrInvalidState
	}
	req.Status = to
	req.ResolvedAt = &at
	r.t.st.withdrawals[id] = cloneWithdrawal(req)
	return nil
}

func (r *withdrawalRepo) CountPendingByUser(_ context.Context, userID string) (int, error) {
	n := 0
	for _, req := range r.t.st.withdrawals {
		if req.UserID == userID && req.Status == models.WithdrawalPending {
			n++
		}
	}
	return n, nil
}
