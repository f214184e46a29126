package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"budgetlink/internal/shared/auth"
)

type ContextKey string

const (
	UserIDKey    ContextKey = "user_id"
	EmailKey     ContextKey = "email"
	RequestIDKey ContextKey = "request_id"
)

const codeUnauthorized = "UNAUTHORIZED"

// Auth requires a valid bearer token and stores its subject under UserIDKey.
func Auth(jwt *auth.JWT) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				WriteError(w, r, http.StatusUnauthorized, codeUnauthorized, "Authentication required")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				WriteError(w, r, http.StatusUnauthorized, codeUnauthorized, "Invalid authorization header format")
				return
			}

			claims, err := jwt.Validate(parts[1])
			if err != nil {
				message := "Invalid token"
				if errors.Is(err, auth.ErrTokenExpired) {
					message = "Token expired"
				}
				WriteError(w, r, http.StatusUnauthorized, codeUnauthorized, message)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID())
			ctx = context.WithValue(ctx, EmailKey, claims.Email)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID returns the authenticated user id stored by Auth.
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
