package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/honeynil/CampusGigService/internal/infrastructure/redis"
)

type contextKey string

const (
	userIDKey  contextKey = "user_id"
	isAdminKey contextKey = "is_admin"
)

// WithUser stores the authenticated actor on ctx.
func WithUser(ctx context.Context, userID string, isAdmin bool) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, isAdminKey, isAdmin)
}

// UserIDFromContext returns the authenticated user id, or "" when absent.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(isAdminKey).(bool)
	return admin
}

func AuthMiddleware(redisClient redis.RedisClient, jwt *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "authorization header missing")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w, "invalid authorization header")
				return
			}

			tokenStr := parts[1]
			claims, err := jwt.ValidateJWT(tokenStr)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			// Check token in Redis
			storedToken, err := redisClient.Get(r.Context(), redis.TokenKey(claims.UserID))
			if err != nil || storedToken != tokenStr {
				slog.Warn("invalid or revoked token", "user_id", claims.UserID, "error", err)
				unauthorized(w, "invalid or revoked token")
				return
			}

			ctx := WithUser(r.Context(), claims.UserID, claims.IsAdmin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly must run after AuthMiddleware.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			slog.Warn("admin route denied", "user_id", UserIDFromContext(r.Context()), "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
