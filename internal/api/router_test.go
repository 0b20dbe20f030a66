package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/honeynil/CampusGigService/internal/handler"
	"github.com/honeynil/CampusGigService/internal/infrastructure/auth"
	"github.com/honeynil/CampusGigService/internal/infrastructure/redis"
	"github.com/honeynil/CampusGigService/internal/models"
	"github.com/honeynil/CampusGigService/internal/repository/memory"
	service "github.com/honeynil/CampusGigService/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.ErrKeyNotFound
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
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

func newRouter(t *testing.T, limiter *RateLimiter) http.Handler {
	t.Helper()
	store := memory.New()
	cache := &fakeRedis{data: map[string]string{}}
	jwt := auth.NewJWTManager("test-secret", time.Hour)
	publisher := service.NopPublisher{}
	h := handler.NewHandler(
		service.NewAuthService(store, cache, publisher, jwt, []string{"root@campus.edu"}),
		service.NewGigService(store, cache, publisher),
		service.NewWalletService(store, cache, publisher),
		service.NewAdminService(store, cache, publisher),
	)
	return SetupRouter(RouterConfig{
		Handler:      h,
		Redis:        cache,
		JWT:          jwt,
		Limiter:      limiter,
		ServeMetrics: true,
	})
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func signup(t *testing.T, h http.Handler, name, email string) string {
	t.Helper()
	rec := call(t, h, "POST", "/signup", "", map[string]string{
		"name": name, "email": email, "password": "pw123456",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session models.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
	require.NotEmpty(t, session.Token)
	return session.Token
}

func TestRouter_Healthz(t *testing.T) {
	h := newRouter(t, nil)
	rec := call(t, h, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	h := newRouter(t, nil)
	call(t, h, "GET", "/healthz", "", nil)

	rec := call(t, h, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRouter_ProtectedRequiresToken(t *testing.T) {
	h := newRouter(t, nil)

	rec := call(t, h, "GET", "/wallet/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, h, "GET", "/wallet/balance", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_SessionFlow(t *testing.T) {
	h := newRouter(t, nil)
	token := signup(t, h, "Asha", "asha@campus.edu")

	rec := call(t, h, "GET", "/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me models.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, "asha@campus.edu", me.Email)

	rec = call(t, h, "GET", "/wallet/balance", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, h, "POST", "/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(t, h, "GET", "/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_AdminRoutes(t *testing.T) {
	h := newRouter(t, nil)
	userToken := signup(t, h, "Asha", "asha@campus.edu")
	adminToken := signup(t, h, "Root", "root@campus.edu")

	rec := call(t, h, "GET", "/admin/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, h, "GET", "/admin/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, h, "GET", "/admin/users", adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRouter_RateLimit(t *testing.T) {
	h := newRouter(t, NewRateLimiter(1, 2))

	assert.Equal(t, http.StatusOK, call(t, h, "GET", "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, call(t, h, "GET", "/healthz", "", nil).Code)

	rec := call(t, h, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.getLimiter("a")
	now = now.Add(5 * time.Minute)
	rl.getLimiter("b")
	now = now.Add(6 * time.Minute)

	assert.Equal(t, 1, rl.Cleanup())
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "b")
}
