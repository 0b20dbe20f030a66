package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	service "github.com/honeynil/CampusGigService/internal/services"
)

func (h *Handler) AddGig(w http.ResponseWriter, r *http.Request) {
	var req service.NewGig
	if !h.decode(w, r, &req) {
		return
	}
	gig, err := h.gigs.AddGig(r.Context(), actor(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, gig)
}

func (h *Handler) GetGig(w http.ResponseWriter, r *http.Request) {
	gig, err := h.gigs.GetGig(r.Context(), actor(r), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, gig)
}

func (h *Handler) ListOpenGigs(w http.ResponseWriter, r *http.Request) {
	gigs, err := h.gigs.ListOpenGigs(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, gigs)
}

func (h *Handler) ListMyGigs(w http.ResponseWriter, r *http.Request) {
	gigs, err := h.gigs.ListMyGigs(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, gigs)
}

func (h *Handler) UpdateGig(w http.ResponseWriter, r *http.Request) {
	var req service.GigUpdate
	if !h.decode(w, r, &req) {
		return
	}
	gig, err := h.gigs.UpdateGig(r.Context(), actor(r), mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, gig)
}

func (h *Handler) DeleteGig(w http.ResponseWriter, r *http.Request) {
	if err := h.gigs.DeleteGig(r.Context(), actor(r), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AcceptGig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SelfieURL string `json:"acceptance_selfie_url"`
	}
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	gig, err := h.gigs.AcceptGig(r.Context(), actor(r), mux.Vars(r)["id"], req.SelfieURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, gig)
}

func (h *Handler) CompleteGig(w http.ResponseWriter, r *http.Request) {
	gig, err := h.gigs.CompleteGig(r.Context(), actor(r), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, gig)
}

func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req service.Feedback
	if !h.decode(w, r, &req) {
		return
	}
	gig, err := h.gigs.SubmitFeedback(r.Context(), actor(r), mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, gig)
}

func (h *Handler) ExpireOverdueGigs(w http.ResponseWriter, r *http.Request) {
	n, err := h.gigs.ExpireOverdueGigs(r.Context(), time.Now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"expired": n})
}
