// Package authz extracts the caller's identity. The platform's identity
// provider is a separate system; this service trusts what it is handed —
// either an HS256 bearer token minted upstream or, behind the internal
// gateway, a plain X-User-ID header.
package authz

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	obsmw "tunelock/internal/observability/middleware"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type userIDKey struct{}

func contextWithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserIDFrom returns the authenticated caller, if any.
func UserIDFrom(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return v, ok
}

type Identity struct {
	secret []byte
	issuer string
}

// New builds the identity middleware. An empty secret selects trusted-header
// mode (X-User-ID from the gateway); otherwise bearer tokens are required.
func New(secret, issuer string) *Identity {
	var s []byte
	if secret != "" {
		s = []byte(secret)
	}
	return &Identity{secret: s, issuer: issuer}
}

func (i *Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := obsmw.RequestIDFromContext(r.Context())

		var sub string
		if i.secret == nil {
			sub = strings.TrimSpace(r.Header.Get("X-User-ID"))
			if sub == "" {
				http.Error(w, "missing user identity", http.StatusUnauthorized)
				return
			}
		} else {
			raw := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				slog.Warn("auth missing bearer", "request_id", reqID)
				return
			}
			tokStr := strings.TrimSpace(raw[len("Bearer "):])

			token, err := jwt.Parse(tokStr, func(token *jwt.Token) (interface{}, error) {
				// Ensure HS* (HMAC) only
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %T", token.Method)
				}
				return i.secret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				slog.Warn("auth invalid token", "error", err, "request_id", reqID)
				return
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}
			if iss, _ := claims["iss"].(string); iss != "" && i.issuer != "" && iss != i.issuer {
				http.Error(w, "issuer mismatch", http.StatusUnauthorized)
				slog.Warn("auth issuer mismatch", "issuer", iss, "request_id", reqID)
				return
			}
			sub, _ = claims["sub"].(string)
		}

		userID, err := uuid.Parse(sub)
		if err != nil {
			http.Error(w, "invalid user identity", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(contextWithUserID(r.Context(), userID)))
	})
}
