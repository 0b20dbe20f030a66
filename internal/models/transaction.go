package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	RelatedGigID string          `json:"related_gig_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type TransactionType string

const (
	TypeCredit     TransactionType = "CREDIT"
	TypeDebit      TransactionType = "DEBIT"
	TypeTopUp      TransactionType = "TOPUP"
	TypePayout     TransactionType = "PAYOUT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeCredit, TypeDebit, TypeTopUp, TypePayout, TypeWithdrawal:
		return true
	}
	return false
}

// IsDebit reports whether the type reduces a wallet balance.
func (t TransactionType) IsDebit() bool {
	return t == TypeDebit || t == TypeWithdrawal
}

// Signed returns the amount with the sign it has on the wallet balance.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Type.IsDebit() {
		return t.Amount.Neg()
	}
	return t.Amount
}
