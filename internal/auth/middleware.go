package auth

import (
	"context"
	stderr "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"takeoffs/internal/errors"

	"github.com/golang-jwt/jwt/v5"
)

type UserContextKey string

const userContextKey UserContextKey = "user_info"

// Authenticator verifies bearer tokens against a shared HMAC secret. There is
// no session state: every request re-verifies the token independently.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Middleware is the standard Go/Chi middleware function
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Extract Header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			errors.RespondError(w, r, errors.New(errors.ErrUnauthenticated, "Missing Authorization header", nil))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			errors.RespondError(w, r, errors.New(errors.ErrUnauthenticated, "Invalid Authorization header format", nil))
			return
		}

		// 2. Verify Token (Signature + Exp). The parser rejects any token whose
		// alg is not HMAC before touching the secret.
		claims := &TokenClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			slog.WarnContext(r.Context(), "Token verification failed", "error", err)
			errors.RespondError(w, r, errors.New(errors.ErrInvalidToken, "Invalid or expired token", err))
			return
		}

		// 3. Construct Clean UserInfo and inject into Context
		userInfo := UserInfo{
			ID:        claims.Subject,
			Email:     claims.Email,
			FirstName: claims.FirstName,
			LastName:  claims.LastName,
			Role:      claims.Role,
		}

		ctx := context.WithValue(r.Context(), userContextKey, userInfo)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after Middleware. It rejects any request whose verified
// claims do not carry the admin role.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := GetUserInfo(r.Context())
		if err != nil {
			errors.RespondError(w, r, errors.New(errors.ErrForbidden, "Admin access only", err))
			return
		}
		if user.Role != RoleAdmin {
			errors.RespondError(w, r, errors.New(errors.ErrForbidden, "Admin access only", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Helper Functions for Handlers ---

// GetUserInfo retrieves the user data from context
func GetUserInfo(ctx context.Context) (UserInfo, error) {
	val := ctx.Value(userContextKey)
	if user, ok := val.(UserInfo); ok {
		return user, nil
	}
	return UserInfo{}, stderr.New("no user found in context")
}

// WithUser injects a UserInfo into the context. Used by tests that bypass the
// HTTP middleware.
func WithUser(ctx context.Context, user UserInfo) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
