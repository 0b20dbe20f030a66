package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type GigStatus string

const (
	GigOpen      GigStatus = "OPEN"
	GigAccepted  GigStatus = "ACCEPTED"
	GigCompleted GigStatus = "COMPLETED"
	GigExpired   GigStatus = "EXPIRED"
)

// Deletion is not a status: an OPEN gig is removed outright.
var gigTransitions = map[GigStatus][]GigStatus{
	GigOpen:     {GigAccepted, GigExpired},
	GigAccepted: {GigCompleted},
}

func (s GigStatus) Valid() bool {
	switch s {
	case GigOpen, GigAccepted, GigCompleted, GigExpired:
		return true
	}
	return false
}

func (s GigStatus) IsTerminal() bool {
	return s == GigCompleted || s == GigExpired
}

func (s GigStatus) CanTransitionTo(next GigStatus) bool {
	for _, allowed := range gigTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type GigSize string

const (
	SizeSmall  GigSize = "Small"
	SizeMedium GigSize = "Medium"
	SizeLarge  GigSize = "Large"
)

func (s GigSize) Valid() bool {
	switch s {
	case "", SizeSmall, SizeMedium, SizeLarge:
		return true
	}
	return false
}

type Gig struct {
	ID                  string          `json:"id"`
	Requester           GigUser         `json:"requester"`
	Deliverer           *GigUser        `json:"deliverer,omitempty"`
	ParcelInfo          string          `json:"parcel_info"`
	PickupBlock         string          `json:"pickup_block"`
	DestinationBlock    string          `json:"destination_block"`
	Note                string          `json:"note,omitempty"`
	Size                GigSize         `json:"size,omitempty"`
	IsUrgent            bool            `json:"is_urgent"`
	Price               decimal.Decimal `json:"price"`
	Status              GigStatus       `json:"status"`
	OTP                 string          `json:"otp,omitempty"`
	AcceptanceSelfieURL string          `json:"acceptance_selfie_url,omitempty"`
	DeliveryDeadline    time.Time       `json:"delivery_deadline"`
	PostedAt            time.Time       `json:"posted_at"`
	// PlatformFee is the share retained on completion; zero until then.
	PlatformFee       decimal.Decimal `json:"platform_fee"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	RequesterRating   *int32          `json:"requester_rating,omitempty"`
	RequesterComments string          `json:"requester_comments,omitempty"`
	DelivererRating   *int32          `json:"deliverer_rating,omitempty"`
	DelivererComments string          `json:"deliverer_comments,omitempty"`
}

// IsOverdue reports whether an OPEN gig's deadline is strictly before now.
func (g *Gig) IsOverdue(now time.Time) bool {
	return g.Status == GigOpen && g.DeliveryDeadline.Before(now)
}

// Payout is the amount credited to the deliverer of a completed gig.
func (g *Gig) Payout() decimal.Decimal {
	return g.Price.Sub(g.PlatformFee)
}
