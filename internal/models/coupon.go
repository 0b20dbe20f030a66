package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Coupon struct {
	ID              string          `json:"id"`
	Code            string          `json:"code"`
	BonusPercentage decimal.Decimal `json:"bonus_percentage"` // 0.1 == 10%
	IsActive        bool            `json:"is_active"`
	MaxUsesPerUser  int             `json:"max_uses_per_user"`
}

func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type PlatformConfig struct {
	Fee          decimal.Decimal `json:"fee"`
	OfferBarText string          `json:"offer_bar_text"`
}
