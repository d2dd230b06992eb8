package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/kinna/kinna-backend/internal/http/response"
	"github.com/kinna/kinna-backend/pkg/auth"
	"github.com/kinna/kinna-backend/pkg/logger"
)

type ctxKey string

const ctxIdentity ctxKey = "identity"

// TokenValidator turns a raw bearer token into an identity.
type TokenValidator interface {
	Validate(token string) (*auth.Identity, error)
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.Validate(auth.BearerToken(r.Header.Get("Authorization")))
			if errors.Is(err, auth.ErrUnauthenticated) {
				response.Unauthorized(w, "Authentication required")
				return
			}
			if err != nil {
				response.InvalidToken(w, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth attaches the identity when the token is valid and otherwise
// lets the request through anonymously.
func OptionalAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := auth.BearerToken(r.Header.Get("Authorization")); tok != "" {
				if id, err := v.Validate(tok); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	ctx = logger.WithUserID(ctx, id.ID.String())
	return context.WithValue(ctx, ctxIdentity, id)
}

// Identity returns the authenticated caller, or nil for anonymous requests.
func Identity(ctx context.Context) *auth.Identity {
	if id, ok := ctx.Value(ctxIdentity).(*auth.Identity); ok {
		return id
	}
	return nil
}
