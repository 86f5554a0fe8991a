package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/sakif/pixelboard/internal/model"
)

// CookieName is the HttpOnly cookie that carries the session token.
const CookieName = "token"

// QueryParam lets non-browser websocket clients pass the token in the URL.
const QueryParam = "token"

// contextKey is unexported so no other package can read or shadow our values.
type contextKey string

const identityKey contextKey = "identity"

// RequireAuth rejects requests without a valid token with 401 and stores the
// identity in the request context otherwise.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := FromRequest(r, tokens)
			if err != nil {
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth attaches the identity when a valid token is present and lets
// anonymous requests through untouched. The websocket route uses it: an
// anonymous socket is a read-only observer, not an error.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, err := FromRequest(r, tokens); err == nil {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller's identity, or nil for anonymous requests.
func IdentityFromContext(ctx context.Context) *model.Identity {
	id, _ := ctx.Value(identityKey).(*model.Identity)
	return id
}

var errNoToken = errors.New("auth: no token")

// FromRequest reads the token from the cookie, falling back to the query
// parameter, and validates it.
func FromRequest(r *http.Request, tokens *TokenService) (*model.Identity, error) {
	raw := ""
	if c, err := r.Cookie(CookieName); err == nil {
		raw = c.Value
	}
	if raw == "" {
		raw = r.URL.Query().Get(QueryParam)
	}
	if raw == "" {
		return nil, errNoToken
	}
	return tokens.Validate(raw)
}
