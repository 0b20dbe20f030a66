package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/honeynil/CampusGigService/internal/models"
	service "github.com/honeynil/CampusGigService/internal/services"
	"github.com/shopspring/decimal"
)

func (h *Handler) GetPlatformConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.admin.PlatformConfig(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) SetPlatformFee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fee decimal.Decimal `json:"fee"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.admin.SetPlatformFee(r.Context(), actor(r), req.Fee); err != nil {
		h.fail(w, r, err)
		return
	}
	h.GetPlatformConfig(w, r)
}

func (h *Handler) SetOfferBarText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"offer_bar_text"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.admin.SetOfferBarText(r.Context(), actor(r), req.Text); err != nil {
		h.fail(w, r, err)
		return
	}
	h.GetPlatformConfig(w, r)
}

func (h *Handler) PlatformRevenue(w http.ResponseWriter, r *http.Request) {
	total, err := h.admin.PlatformRevenue(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"revenue": total})
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.ListUsers(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteUser(r.Context(), actor(r), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ReconcileUser(w http.ResponseWriter, r *http.Request) {
	rec, err := h.admin.ReconcileUser(r.Context(), actor(r), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.admin.ListCoupons(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, coupons)
}

func (h *Handler) AddCoupon(w http.ResponseWriter, r *http.Request) {
	var req models.Coupon
	if !h.decode(w, r, &req) {
		return
	}
	coupon, err := h.admin.AddCoupon(r.Context(), actor(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, coupon)
}

func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req service.CouponUpdate
	if !h.decode(w, r, &req) {
		return
	}
	coupon, err := h.admin.UpdateCoupon(r.Context(), actor(r), mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, coupon)
}

func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteCoupon(r.Context(), actor(r), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
