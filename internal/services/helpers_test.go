package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/honeynil/CampusGigService/internal/infrastructure/auth"
	"github.com/honeynil/CampusGigService/internal/infrastructure/kafka"
	"github.com/honeynil/CampusGigService/internal/infrastructure/redis"
	"github.com/honeynil/CampusGigService/internal/models"
	"github.com/honeynil/CampusGigService/internal/repository"
	"github.com/honeynil/CampusGigService/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case string:
		f.data[key] = v
	default:
		f.data[key] = ""
	}
	return nil
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if _, err := f.Get(ctx, key); err == nil {
		return false, nil
	}
	return true, f.Set(ctx, key, value, ttl)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRedis) Close() error { return nil }

func (f *fakeRedis) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

type env struct {
	store     *memory.Store
	cache     *fakeRedis
	publisher *recordingPublisher
	auth      *authService
	gigs      *gigService
	wallet    *walletService
	admin     *adminService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clock := func() time.Time { return testNow }
	e := &env{
		store:     memory.New().WithClock(clock),
		cache:     newFakeRedis(),
		publisher: &recordingPublisher{},
	}
	e.auth = NewAuthService(e.store, e.cache, e.publisher, auth.NewJWTManager("test-secret", time.Hour), []string{"admin@campus.edu"})
	e.gigs = NewGigService(e.store, e.cache, e.publisher)
	e.gigs.now = clock
	e.wallet = NewWalletService(e.store, e.cache, e.publisher)
	e.wallet.now = clock
	e.admin = NewAdminService(e.store, e.cache, e.publisher)
	return e
}

var adminActor = Actor{UserID: "admin", IsAdmin: true}

func (e *env) seedUser(t *testing.T, name, balance string) *models.User {
	t.Helper()
	code, err := GenerateReferralCode(name)
	require.NoError(t, err)
	user := &models.User{
		Name:            name,
		Email:           code + "@campus.edu",
		PasswordHash:    "hash",
		ReferralCode:    code,
		Rating:          5,
		WalletBalance:   decimal.RequireFromString(balance),
		UsedCouponCodes: map[string]int{},
	}
	err = e.store.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Users().Create(ctx, user)
	})
	require.NoError(t, err)
	return user
}

func (e *env) user(t *testing.T, id string) *models.User {
	t.Helper()
	var user *models.User
	err := e.store.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		user, err = tx.Users().GetByID(ctx, id)
		return err
	})
	require.NoError(t, err)
	return user
}

func (e *env) transactions(t *testing.T, userID string) []models.Transaction {
	t.Helper()
	var txs []models.Transaction
	err := e.store.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		txs, err = tx.Transactions().ListByUser(ctx, userID)
		return err
	})
	require.NoError(t, err)
	return txs
}

func (e *env) gig(t *testing.T, id string) (*models.Gig, error) {
	t.Helper()
	var gig *models.Gig
	err := e.store.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		gig, err = tx.Gigs().GetByID(ctx, id)
		return err
	})
	return gig, err
}

func actorOf(u *models.User) Actor {
	return Actor{UserID: u.ID, IsAdmin: u.IsAdmin}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newGigInput(parcel, price string) NewGig {
	return NewGig{
		ParcelInfo:       parcel,
		PickupBlock:      "Gate 2",
		DestinationBlock: "Hostel B",
		Size:             models.SizeSmall,
		Price:            dec(price),
		DeliveryDeadline: testNow.Add(2 * time.Hour),
	}
}
