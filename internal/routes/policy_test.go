package routes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPubliclyExempt(t *testing.T) {
	tests := []struct {
		name   string
		uri    string
		route  string
		custom []string
		want   bool
	}{
		{"login path", "/login", "", nil, true},
		{"register name", "/signup-form", "auth.register", nil, true},
		{"password reset", "/reset-password/{token}", "", nil, true},
		{"health", "/api/health", "", nil, true},
		{"up segment", "/up", "", nil, true},
		{"up is not update", "/posts/update", "", nil, false},
		{"users", "/users", "users.store", nil, false},
		{"custom substring", "/stripe/events", "", []string{"stripe"}, true},
		{"custom glob", "/api/public/items", "", []string{"/api/public/*"}, true},
		{"custom glob on name", "/x", "public.feed", []string{"public.*"}, true},
		{"custom glob miss", "/api/private/items", "", []string{"/api/public/*"}, false},
		{"case insensitive", "/LOGIN", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPubliclyExempt(tt.uri, tt.route, tt.custom))
		})
	}
}

func TestIsMutating(t *testing.T) {
	for _, m := range []string{"POST", "put", "PATCH", "DELETE", "ANY"} {
		assert.True(t, IsMutating(m), m)
	}
	for _, m := range []string{"GET", "HEAD", "OPTIONS"} {
		assert.False(t, IsMutating(m), m)
	}
}

func TestPolicyIsAuthenticated(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, p.IsAuthenticated([]string{"web", "auth"}))
	assert.True(t, p.IsAuthenticated([]string{"auth:sanctum"}))
	assert.True(t, p.IsAuthenticated([]string{`App\Http\Middleware\Authenticate`}))
	assert.False(t, p.IsAuthenticated([]string{"web", "verified", "guest"}))
	assert.False(t, p.IsAuthenticated(nil))

	custom := Policy{AuthMiddleware: []string{"jwt.auth"}}
	assert.True(t, custom.IsAuthenticated([]string{"jwt.auth"}))
	assert.False(t, custom.IsAuthenticated([]string{"auth"}))
}

func TestPolicyUnprotected(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, p.Unprotected(Route{Methods: []string{"POST"}, URI: "/users"}))
	assert.False(t, p.Unprotected(Route{Methods: []string{"GET", "HEAD"}, URI: "/users"}))
	assert.False(t, p.Unprotected(Route{Methods: []string{"POST"}, URI: "/login"}))
	assert.False(t, p.Unprotected(Route{Methods: []string{"DELETE"}, URI: "/posts/{id}", Middleware: []string{"auth"}}))
}
