package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tradebot/backoffice/internal/contextkeys"
	"github.com/tradebot/backoffice/internal/domain"
	"github.com/tradebot/backoffice/internal/handler"
)

// TokenVerifier turns a bearer token into claims.
type TokenVerifier interface {
	VerifyToken(token string) (*domain.JWTClaims, error)
}

// Auth creates a JWT authentication middleware.
func Auth(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				handler.Error(w, domain.ErrUnauthorized("no token provided"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				handler.Error(w, domain.ErrUnauthorized("invalid authorization header"))
				return
			}

			claims, err := verifier.VerifyToken(parts[1])
			if err != nil {
				handler.Error(w, domain.ErrUnauthorized("invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims stores the authenticated user in ctx.
func WithClaims(ctx context.Context, claims *domain.JWTClaims) context.Context {
	ctx = context.WithValue(ctx, contextkeys.UserID, claims.Sub)
	ctx = context.WithValue(ctx, contextkeys.UserEmail, claims.Email)
	return context.WithValue(ctx, contextkeys.UserRole, claims.Role)
}
