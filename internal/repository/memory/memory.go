// Package memory is an in-memory implementation of the repository
// interfaces. Transactions are serialised by a single mutex and rolled back
// by restoring a snapshot, so it is meant for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/honeynil/CampusGigService/internal/models"
	"github.com/honeynil/CampusGigService/internal/repository"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu    sync.Mutex
	now   func() time.Time
	state *state
}

var _ repository.Store = (*Store)(nil)

type state struct {
	seq          int64
	users        map[string]models.User
	gigs         map[string]models.Gig
	transactions []models.Transaction
	walletLoads  map[string]models.WalletLoadRequest
	withdrawals  map[string]models.WithdrawalRequest
	coupons      map[string]models.Coupon
	platform     models.PlatformConfig
	order        map[string]int64
}

// DefaultPlatformFee matches the seeded postgres configuration.
var DefaultPlatformFee = decimal.RequireFromString("0.2")

func New() *Store {
	return &Store{
		now: time.Now,
		state: &state{
			users:       make(map[string]models.User),
			gigs:        make(map[string]models.Gig),
			walletLoads: make(map[string]models.WalletLoadRequest),
			withdrawals: make(map[string]models.WithdrawalRequest),
			coupons:     make(map[string]models.Coupon),
			platform:    models.PlatformConfig{Fee: DefaultPlatformFee},
			order:       make(map[string]int64),
		},
	}
}

// WithClock overrides the timestamp source used for created_at values.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(ctx, &tx{st: s.state, now: s.now}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) Users() repository.UserRepository               { return &userRepo{t} }
func (t *tx) Gigs() repository.GigRepository                 { return &gigRepo{t} }
func (t *tx) Transactions() repository.TransactionRepository { return &transactionRepo{t} }
func (t *tx) WalletLoads() repository.WalletLoadRepository   { return &walletLoadRepo{t} }
func (t *tx) Withdrawals() repository.WithdrawalRepository   { return &withdrawalRepo{t} }
func (t *tx) Coupons() repository.CouponRepository           { return &couponRepo{t} }
func (t *tx) Platform() repository.PlatformConfigRepository  { return &platformRepo{t} }

// touch records insertion order so that equal timestamps still sort stably.
func (t *tx) touch(id string) {
	t.st.seq++
	t.st.order[id] = t.st.seq
}

func (t *tx) newerFirst(ids []string, at func(id string) time.Time) {
	sort.SliceStable(ids, func(i, j int) bool {
		ti, tj := at(ids[i]), at(ids[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return t.st.order[ids[i]] > t.st.order[ids[j]]
	})
}

func (s *state) clone() *state {
	c := &state{
		seq:          s.seq,
		users:        make(map[string]models.User, len(s.users)),
		gigs:         make(map[string]models.Gig, len(s.gigs)),
		transactions: append([]models.Transaction(nil), s.transactions...),
		walletLoads:  make(map[string]models.WalletLoadRequest, len(s.walletLoads)),
		withdrawals:  make(map[string]models.WithdrawalRequest, len(s.withdrawals)),
		coupons:      make(map[string]models.Coupon, len(s.coupons)),
		platform:     s.platform,
		order:        make(map[string]int64, len(s.order)),
	}
	for k, v := range s.users {
		c.users[k] = cloneUser(v)
	}
	for k, v := range s.gigs {
		c.gigs[k] = cloneGig(v)
	}
	for k, v := range s.walletLoads {
		c.walletLoads[k] = cloneWalletLoad(v)
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = cloneWithdrawal(v)
	}
	for k, v := range s.coupons {
		c.coupons[k] = v
	}
	for k, v := range s.order {
		c.order[k] = v
	}
	return c
}

func cloneUser(u models.User) models.User {
	used := make(map[string]int, len(u.UsedCouponCodes))
	for k, v := range u.UsedCouponCodes {
		used[k] = v
	}
	u.UsedCouponCodes = used
	return u
}

func cloneGig(g models.Gig) models.Gig {
	if g.Deliverer != nil {
		d := *g.Deliverer
		g.Deliverer = &d
	}
	g.CompletedAt = cloneTime(g.CompletedAt)
	if g.RequesterRating != nil {
		v := *g.RequesterRating
		g.RequesterRating = &v
	}
	if g.DelivererRating != nil {
		v := *g.DelivererRating
		g.DelivererRating = &v
	}
	return g
}

func cloneWalletLoad(r models.WalletLoadRequest) models.WalletLoadRequest {
	r.ResolvedAt = cloneTime(r.ResolvedAt)
	return r
}

func cloneWithdrawal(r models.WithdrawalRequest) models.WithdrawalRequest {
	r.ResolvedAt = cloneTime(r.ResolvedAt)
	return r
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
