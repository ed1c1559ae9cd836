package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/perkhub/perkhub-api/internal/pkg/jwt"
	"github.com/perkhub/perkhub-api/internal/pkg/response"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	RoleKey      contextKey = "role"
	PartnerIDKey contextKey = "partner_id"
)

// Auth returns middleware that validates JWT and requires a signed-in user
func Auth(jwtService *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, errMsg := claimsFromRequest(jwtService, r)
			if claims == nil {
				response.Unauthorized(w, errMsg)
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth parses a token when one is supplied but lets anonymous
// requests through. Verification accepts attempts without a member identity.
func OptionalAuth(jwtService *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, errMsg := claimsFromRequest(jwtService, r)
			if claims == nil {
				response.Unauthorized(w, errMsg)
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithClaims(r.Context(), claims)))
		})
	}
}

// RequirePartner returns middleware that checks for a partner-role token
func RequirePartner() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetRole(r.Context()) != jwt.RolePartner || GetPartnerID(r.Context()) == uuid.Nil {
				response.Forbidden(w, "Partner access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func claimsFromRequest(jwtService *jwt.Service, r *http.Request) (*jwt.Claims, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, "Missing authorization header"
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return nil, "Invalid authorization header format"
	}

	claims, err := jwtService.ValidateAccessToken(parts[1])
	if err != nil {
		if err == jwt.ErrExpiredToken {
			return nil, "Token expired"
		}
		return nil, "Invalid token"
	}

	return claims, ""
}

func contextWithClaims(ctx context.Context, claims *jwt.Claims) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
	ctx = context.WithValue(ctx, RoleKey, claims.Role)
	if claims.PartnerID != uuid.Nil {
		ctx = context.WithValue(ctx, PartnerIDKey, claims.PartnerID)
	}
	return ctx
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(UserIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// GetRole extracts role from context
func GetRole(ctx context.Context) string {
	if role, ok := ctx.Value(RoleKey).(string); ok {
		return role
	}
	return ""
}

// GetPartnerID extracts partner ID from context
func GetPartnerID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(PartnerIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
