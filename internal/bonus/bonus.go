// Package bonus computes the coupon and first-recharge referral bonuses
// granted when a wallet top-up is approved. It performs no I/O: the caller
// resolves the coupon and the referrer and applies the result.
package bonus

import (
	"fmt"
	"strings"

	"github.com/honeynil/CampusGigService/internal/models"
	"github.com/shopspring/decimal"
)

var (
	// ReferralMinimum is the smallest top-up that qualifies for the referral bonus.
	ReferralMinimum = decimal.NewFromInt(100)
	// RefereeRate is the referee's bonus share of a qualifying first recharge.
	RefereeRate = decimal.RequireFromString("0.05")
	// ReferrerReward is the fixed credit paid to the referrer.
	ReferrerReward = decimal.NewFromInt(10)
)

const (
	referralLabel  = "5% First Recharge Referral Bonus"
	labelSeparator = " & "
)

type Input struct {
	Amount decimal.Decimal
	// Coupon is the coupon matching the request's code, or nil.
	Coupon *models.Coupon
	// UsedCouponCodes, FirstRechargeCompleted and ReferredByCode describe the referee.
	UsedCouponCodes        map[string]int
	FirstRechargeCompleted bool
	ReferredByCode         string
	// Referrer is the user whose referral code equals ReferredByCode, or nil.
	Referrer *models.User
}

type ReferrerCredit struct {
	UserID string
	Amount decimal.Decimal
}

type Result struct {
	Bonus                  decimal.Decimal
	Labels                 []string
	UsedCouponCodes        map[string]int
	FirstRechargeCompleted bool
	Referrer               *ReferrerCredit
}

// Description joins the contributing labels into one transaction description.
func (r Result) Description() string {
	return strings.Join(r.Labels, labelSeparator)
}

// Compute applies the coupon rule and then the referral rule. Both may
// contribute to the same top-up. A missing, inactive or exhausted coupon adds
// nothing and is not an error.
func Compute(in Input) Result {
	res := Result{
		Bonus:                  decimal.Zero,
		UsedCouponCodes:        copyUses(in.UsedCouponCodes),
		FirstRechargeCompleted: in.FirstRechargeCompleted,
	}

	if c := in.Coupon; c != nil && c.IsActive {
		code := models.NormalizeCouponCode(c.Code)
		if used := res.UsedCouponCodes[code]; used < c.MaxUsesPerUser {
			amount := Round(in.Amount.Mul(c.BonusPercentage))
			res.Bonus = res.Bonus.Add(amount)
			res.Labels = append(res.Labels, fmt.Sprintf("%s%% bonus from %s", c.BonusPercentage.Shift(2).String(), code))
			res.UsedCouponCodes[code] = used + 1
		}
	}

	if qualifiesForReferral(in) {
		res.Bonus = res.Bonus.Add(Round(in.Amount.Mul(RefereeRate)))
		res.Labels = append(res.Labels, referralLabel)
		res.FirstRechargeCompleted = true
		res.Referrer = &ReferrerCredit{UserID: in.Referrer.ID, Amount: ReferrerReward}
	}

	return res
}

func qualifiesForReferral(in Input) bool {
	if in.FirstRechargeCompleted || in.ReferredByCode == "" || in.Referrer == nil {
		return false
	}
	if in.Referrer.ReferralCode != in.ReferredByCode {
		return false
	}
	return in.Amount.GreaterThanOrEqual(ReferralMinimum)
}

// Round rounds half away from zero to two decimal places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func copyUses(in map[string]int) map[string]int {
	out := make(map[string]int, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
