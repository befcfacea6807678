// Package auth resolves the authenticated user from bearer tokens.
//
// Token issuance and refresh are handled by the identity provider; this
// package only validates the signature and extracts the stable user ID that
// scopes the per-user mirror. The raw token is kept in the request context so
// it can be forwarded to the remote store.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	claimsKey contextKey = "claims"
	tokenKey  contextKey = "token"
)

// Claims holds the authenticated user's identity.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Auth validates bearer tokens.
type Auth struct {
	secret []byte
}

// New creates an Auth with the given HMAC secret.
func New(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// ParseToken validates a token string and returns its claims.
func (a *Auth) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.UserID == "" {
		// Fall back to the registered subject claim.
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token has no user identity")
	}
	return claims, nil
}

// Middleware authenticates requests and stores claims in the context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := TokenFromRequest(r)
		if tokenString == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		claims, err := a.ParseToken(tokenString)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, tokenKey, tokenString)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TokenFromRequest extracts the bearer token from the Authorization header.
func TokenFromRequest(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// GetClaims returns the claims stored in the context, or nil.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// GetToken returns the raw bearer token stored in the context.
func GetToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}
