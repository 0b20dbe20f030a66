package repository

import "context"

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Users() UserRepository
	Gigs() GigRepository
	Transactions() TransactionRepository
	WalletLoads() WalletLoadRepository
	Withdrawals() WithdrawalRepository
	Coupons() CouponRepository
	Platform() PlatformConfigRepository
}

// Store runs fn atomically: every write made through tx is committed together
// when fn returns nil and discarded otherwise.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
