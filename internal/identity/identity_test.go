package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"trpc.group/trpc-go/trpc-a2a-go/auth"
)

func TestResolve(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "bob", Resolve(ctx, " bob "))

	ctx = WithCaller(ctx, Caller{ID: "alice"})
	assert.Equal(t, "alice", Resolve(ctx, "bob"))

	_, ok := FromContext(WithCaller(context.Background(), Caller{}))
	assert.False(t, ok, "an empty caller is no caller")
}

func TestFromUserUsesClaims(t *testing.T) {
	c := FromUser(&auth.User{Claims: map[string]interface{}{"sub": "u-1", "email": "a@example.com"}})
	assert.Equal(t, "a@example.com", c.ID)
	assert.Equal(t, Caller{}, FromUser(nil))
}

func TestMiddleware(t *testing.T) {
	provider := auth.NewAPIKeyAuthProvider(map[string]string{"k1": "carol"}, "X-API-Key")
	var seen string
	h := Middleware(provider, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, _ := FromContext(r.Context())
		seen = c.ID
	}))

	req := httptest.NewRequest(http.MethodPost, "/ask", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("X-API-Key", "k1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "carol", seen)
}
