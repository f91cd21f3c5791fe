// Package identity carries the authenticated caller through a request.
package identity

import (
	"context"
	"net/http"
	"strings"

	"trpc.group/trpc-go/trpc-a2a-go/auth"

	"github.com/tuannvm/workitem-qa/internal/common"
)

type contextKey struct{}

// Caller is the resolved identity of whoever asked.
type Caller struct {
	ID     string
	Claims map[string]interface{}
}

// WithCaller returns a copy of ctx carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the caller stored in ctx, if any.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(contextKey{}).(Caller)
	if !ok || c.ID == "" {
		return Caller{}, false
	}
	return c, true
}

// Resolve picks the user id for a request: the authenticated caller wins
// over what the payload claims, and fallback is used only when nobody
// authenticated.
func Resolve(ctx context.Context, fallback string) string {
	if c, ok := FromContext(ctx); ok {
		return c.ID
	}
	return strings.TrimSpace(fallback)
}

// FromUser converts an auth provider result.
func FromUser(u *auth.User) Caller {
	if u == nil {
		return Caller{}
	}
	c := Caller{ID: u.ID, Claims: u.Claims}
	// JWTs usually carry the user in sub or email.
	for _, key := range []string{"email", "sub", "preferred_username"} {
		if c.ID != "" {
			break
		}
		if s, ok := common.GetStringValue(u.Claims, key); ok {
			c.ID = s
		}
	}
	return c
}

// Middleware authenticates every request with provider and stores the
// caller in the request context. A nil provider lets everything through
// unauthenticated.
func Middleware(provider auth.Provider, next http.Handler) http.Handler {
	if provider == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := provider.Authenticate(r)
		if err != nil {
			common.ReturnJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := WithCaller(r.Context(), FromUser(user))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
