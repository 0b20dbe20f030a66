package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/honeynil/CampusGigService/internal/infrastructure/auth"
	service "github.com/honeynil/CampusGigService/internal/services"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
)

type Handler struct {
	auth   service.AuthService
	gigs   service.GigService
	wallet service.WalletService
	admin  service.AdminService
}

func NewHandler(a service.AuthService, g service.GigService, w service.WalletService, ad service.AdminService) *Handler {
	return &Handler{auth: a, gigs: g, wallet: w, admin: ad}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// fail maps a service error onto its HTTP status.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	h.writeError(w, status, err)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, pkgerrors.ErrBelowMinimum),
		errors.Is(err, pkgerrors.ErrInvalidInput),
		errors.Is(err, pkgerrors.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pkgerrors.ErrInvalidState),
		errors.Is(err, pkgerrors.ErrEmailExists),
		errors.Is(err, pkgerrors.ErrCouponExists):
		return http.StatusConflict
	case errors.Is(err, pkgerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrUnauthenticated),
		errors.Is(err, pkgerrors.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, pkgerrors.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func actor(r *http.Request) service.Actor {
	return service.Actor{
		UserID:  auth.UserIDFromContext(r.Context()),
		IsAdmin: auth.IsAdmin(r.Context()),
	}
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/signup", h.Signup).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/platform", h.GetPlatformConfig).Methods("GET")
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/logout", h.Logout).Methods("POST")
	r.HandleFunc("/me", h.Me).Methods("GET")

	r.HandleFunc("/gigs", h.ListOpenGigs).Methods("GET")
	r.HandleFunc("/gigs", h.AddGig).Methods("POST")
	r.HandleFunc("/gigs/mine", h.ListMyGigs).Methods("GET")
	r.HandleFunc("/gigs/{id}", h.GetGig).Methods("GET")
	r.HandleFunc("/gigs/{id}", h.UpdateGig).Methods("PATCH")
	r.HandleFunc("/gigs/{id}", h.DeleteGig).Methods("DELETE")
	r.HandleFunc("/gigs/{id}/accept", h.AcceptGig).Methods("POST")
	r.HandleFunc("/gigs/{id}/complete", h.CompleteGig).Methods("POST")
	r.HandleFunc("/gigs/{id}/feedback", h.SubmitFeedback).Methods("POST")

	r.HandleFunc("/wallet/balance", h.GetBalance).Methods("GET")
	r.HandleFunc("/wallet/transactions", h.GetTransactions).Methods("GET")
	r.HandleFunc("/wallet/loads", h.RequestWalletLoad).Methods("POST")
	r.HandleFunc("/wallet/loads", h.MyWalletLoads).Methods("GET")
	r.HandleFunc("/wallet/withdrawals", h.RequestWithdrawal).Methods("POST")
	r.HandleFunc("/wallet/withdrawals", h.MyWithdrawals).Methods("GET")
}

// RegisterAdminRoutes expects r to be wrapped by auth.AdminOnly.
func (h *Handler) RegisterAdminRoutes(r *mux.Router) {
	r.HandleFunc("/wallet/loads", h.PendingWalletLoads).Methods("GET")
	r.HandleFunc("/wallet/loads/{id}/approve", h.ApproveWalletLoad).Methods("POST")
	r.HandleFunc("/wallet/loads/{id}/reject", h.RejectWalletLoad).Methods("POST")
	r.HandleFunc("/withdrawals", h.PendingWithdrawals).Methods("GET")
	r.HandleFunc("/withdrawals/{id}/approve", h.ApproveWithdrawal).Methods("POST")
	r.HandleFunc("/withdrawals/{id}/reject", h.RejectWithdrawal).Methods("POST")

	r.HandleFunc("/platform/fee", h.SetPlatformFee).Methods("PUT")
	r.HandleFunc("/platform/offer", h.SetOfferBarText).Methods("PUT")
	r.HandleFunc("/revenue", h.PlatformRevenue).Methods("GET")
	r.HandleFunc("/gigs/expire", h.ExpireOverdueGigs).Methods("POST")

	r.HandleFunc("/users", h.ListUsers).Methods("GET")
	r.HandleFunc("/users/{id}", h.DeleteUser).Methods("DELETE")
	r.HandleFunc("/users/{id}/reconcile", h.ReconcileUser).Methods("GET")

	r.HandleFunc("/coupons", h.ListCoupons).Methods("GET")
	r.HandleFunc("/coupons", h.AddCoupon).Methods("POST")
	r.HandleFunc("/coupons/{id}", h.UpdateCoupon).Methods("PATCH")
	r.HandleFunc("/coupons/{id}", h.DeleteCoupon).Methods("DELETE")
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupInput
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.auth.Signup(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), actor(r).UserID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), actor(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}
