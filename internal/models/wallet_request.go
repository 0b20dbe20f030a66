package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WalletRequestStatus string

const (
	WalletRequestPending  WalletRequestStatus = "PENDING"
	WalletRequestApproved WalletRequestStatus = "APPROVED"
	WalletRequestRejected WalletRequestStatus = "REJECTED"
)

func (s WalletRequestStatus) CanTransitionTo(next WalletRequestStatus) bool {
	return s == WalletRequestPending && (next == WalletRequestApproved || next == WalletRequestRejected)
}

type WalletLoadRequest struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id"`
	UserName      string              `json:"user_name"`
	Amount        decimal.Decimal     `json:"amount"`
	UTR           string              `json:"utr"`
	ScreenshotURL string              `json:"screenshot_url"`
	Status        WalletRequestStatus `json:"status"`
	CouponCode    string              `json:"coupon_code,omitempty"`
	RequestedAt   time.Time           `json:"requested_at"`
	ResolvedAt    *time.Time          `json:"resolved_at,omitempty"`
}

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalProcessed WithdrawalStatus = "PROCESSED"
	WithdrawalRejected  WithdrawalStatus = "REJECTED"
)

func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	return s == WithdrawalPending && (next == WithdrawalProcessed || next == WithdrawalRejected)
}

type WithdrawalRequest struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	UserName    string           `json:"user_name"`
	Amount      decimal.Decimal  `json:"amount"`
	UPIID       string           `json:"upi_id"`
	Status      WithdrawalStatus `json:"status"`
	RequestedAt time.Time        `json:"requested_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
}
