package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	service "github.com/honeynil/CampusGigService/internal/services"
	"github.com/shopspring/decimal"
)

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.wallet.Balance(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": balance})
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.wallet.Transactions(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

func (h *Handler) RequestWalletLoad(w http.ResponseWriter, r *http.Request) {
	var req service.WalletLoadInput
	if !h.decode(w, r, &req) {
		return
	}
	load, err := h.wallet.RequestWalletLoad(r.Context(), actor(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, load)
}

func (h *Handler) MyWalletLoads(w http.ResponseWriter, r *http.Request) {
	loads, err := h.wallet.MyWalletLoads(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loads)
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		UPIID  string          `json:"upi_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	withdrawal, err := h.wallet.RequestWithdrawal(r.Context(), actor(r), req.Amount, req.UPIID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, withdrawal)
}

func (h *Handler) MyWithdrawals(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.wallet.MyWithdrawals(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reqs)
}

func (h *Handler) PendingWalletLoads(w http.ResponseWriter, r *http.Request) {
	loads, err := h.wallet.PendingWalletLoads(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loads)
}

func (h *Handler) PendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.wallet.PendingWithdrawals(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reqs)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, fn func(service.Actor, string) error) {
	if err := fn(actor(r), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ApproveWalletLoad(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, func(a service.Actor, id string) error { return h.wallet.ApproveWalletLoad(r.Context(), a, id) })
}

func (h *Handler) RejectWalletLoad(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, func(a service.Actor, id string) error { return h.wallet.RejectWalletLoad(r.Context(), a, id) })
}

func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, func(a service.Actor, id string) error { return h.wallet.ApproveWithdrawal(r.Context(), a, id) })
}

func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, func(a service.Actor, id string) error { return h.wallet.RejectWithdrawal(r.Context(), a, id) })
}
