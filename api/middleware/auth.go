package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/openalpha/spot-exchange/exchange/types"
)

// authScheme is the expected Authorization header scheme
const authScheme = "TOKEN"

type contextKey struct{}

// UserResolver maps an API key to its user
type UserResolver func(apiKey uuid.UUID) (*types.User, bool)

// Authenticator resolves the Authorization header to a user and puts it
// on the request context.
type Authenticator struct {
	resolve UserResolver
}

// NewAuthenticator creates an authenticator over a user resolver
func NewAuthenticator(resolve UserResolver) *Authenticator {
	return &Authenticator{resolve: resolve}
}

// RequireUser rejects requests without a valid API key with 401
func (a *Authenticator) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := a.authenticate(r)
		if !ok {
			unauthorized(w, "A valid Authorization: TOKEN <api_key> header is required")
			return
		}
		next(w, r.WithContext(withUser(r.Context(), user)))
	}
}

// RequireAdmin additionally rejects non-ADMIN users with 403
func (a *Authenticator) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := a.authenticate(r)
		if !ok {
			unauthorized(w, "A valid Authorization: TOKEN <api_key> header is required")
			return
		}
		if user.Role != types.RoleAdmin {
			forbidden(w, "Admin privileges required")
			return
		}
		next(w, r.WithContext(withUser(r.Context(), user)))
	}
}

func (a *Authenticator) authenticate(r *http.Request) (*types.User, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], authScheme) {
		return nil, false
	}
	key, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, false
	}
	return a.resolve(key)
}

func withUser(ctx context.Context, user *types.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFrom returns the authenticated user stored on the context
func UserFrom(ctx context.Context) (*types.User, bool) {
	user, ok := ctx.Value(contextKey{}).(*types.User)
	return user, ok
}

func unauthorized(w http.ResponseWriter, message string) {
	writeAuthError(w, http.StatusUnauthorized, "unauthorized", message)
}

func forbidden(w http.ResponseWriter, message string) {
	writeAuthError(w, http.StatusForbidden, "forbidden", message)
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
	})
}
