package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrBelowMinimum       = errors.New("amount below minimum")
	ErrInvalidState       = errors.New("invalid state for operation")
	ErrNotFound           = errors.New("not found")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrEmailExists        = errors.New("email already registered")
	ErrCouponExists       = errors.New("coupon code already exists")
	ErrReferralCodeTaken  = errors.New("referral code already taken")
	ErrNilUser            = errors.New("user is nil")
	ErrNilGig             = errors.New("gig is nil")
	ErrNilTransaction     = errors.New("transaction is nil")

	ErrInvalidTransactionType = errors.New("invalid transaction type")

	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrGigNotFound     = fmt.Errorf("gig %w", ErrNotFound)
	ErrRequestNotFound = fmt.Errorf("request %w", ErrNotFound)
	ErrCouponNotFound  = fmt.Errorf("coupon %w", ErrNotFound)
)
