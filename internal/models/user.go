package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID                     string          `json:"id"`
	Name                   string          `json:"name"`
	Phone                  string          `json:"phone"`
	Email                  string          `json:"email"`
	Block                  string          `json:"block"`
	ProfilePhotoURL        string          `json:"profile_photo_url"`
	CollegeIDURL           string          `json:"college_id_url"`
	PasswordHash           string          `json:"-"`
	Rating                 float64         `json:"rating"`
	DeliveriesCompleted    int32           `json:"deliveries_completed"`
	WalletBalance          decimal.Decimal `json:"wallet_balance"`
	IsAdmin                bool            `json:"is_admin"`
	ReferralCode           string          `json:"referral_code"`
	ReferredByCode         string          `json:"referred_by_code,omitempty"`
	FirstRechargeCompleted bool            `json:"first_recharge_completed"`
	UsedCouponCodes        map[string]int  `json:"used_coupon_codes"`
	CreatedAt              time.Time       `json:"created_at"`
}

// GigUser is the denormalised snapshot of a user stored on a gig.
type GigUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

func (u *User) Summary() GigUser {
	return GigUser{ID: u.ID, Name: u.Name, Phone: u.Phone, Email: u.Email}
}

// CouponUses returns how many times the user redeemed code.
func (u *User) CouponUses(code string) int {
	if u.UsedCouponCodes == nil {
		return 0
	}
	return u.UsedCouponCodes[code]
}
