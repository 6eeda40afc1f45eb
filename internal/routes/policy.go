package routes

import (
	"path"
	"slices"
	"strings"

	"github.com/julianshen/larashield/internal/ast"
)

// DefaultAuthMiddleware are the middleware names that authenticate a
// request. Guard parameters are ignored: "auth:sanctum" counts as "auth".
var DefaultAuthMiddleware = []string{
	"auth", "auth.basic", "auth.session", "Authenticate", "AuthenticateWithBasicAuth",
}

// DefaultPublicPatterns match endpoints that are public on purpose.
var DefaultPublicPatterns = []string{
	"login", "register", "signup", "password", "forgot", "reset",
	"health", "/up", "/ping", "sanctum/csrf-cookie", "webhook",
}

// Policy decides whether a route is protected.
type Policy struct {
	AuthMiddleware []string
	PublicPatterns []string // user patterns, checked after DefaultPublicPatterns
}

// DefaultPolicy returns the policy with built-in tables only.
func DefaultPolicy() Policy {
	return Policy{AuthMiddleware: DefaultAuthMiddleware}
}

// IsAuthenticated reports whether the effective set contains an
// authentication middleware.
func (p Policy) IsAuthenticated(middleware []string) bool {
	names := p.AuthMiddleware
	if len(names) == 0 {
		names = DefaultAuthMiddleware
	}
	for _, m := range middleware {
		base := ast.ShortName(BaseName(m))
		for _, a := range names {
			if strings.EqualFold(base, a) {
				return true
			}
		}
	}
	return false
}

// Unprotected reports whether r is a state-changing route with no
// authentication middleware that is not intentionally public.
func (p Policy) Unprotected(r Route) bool {
	if !r.Mutating() {
		return false
	}
	if p.IsAuthenticated(r.Middleware) {
		return false
	}
	return !IsPubliclyExempt(r.URI, r.Name, p.PublicPatterns)
}

// IsPubliclyExempt reports whether a route path or name matches a public
// pattern. Patterns containing '*' are globs matched against the whole
// path and name; patterns starting with '/' match a leading path segment;
// anything else matches as a case-insensitive substring.
func IsPubliclyExempt(uri, name string, custom []string) bool {
	uri = "/" + strings.Trim(strings.ToLower(uri), "/")
	name = strings.ToLower(name)
	for _, pattern := range slices.Concat(DefaultPublicPatterns, custom) {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		switch {
		case strings.Contains(pattern, "*"):
			if ok, _ := path.Match(pattern, uri); ok {
				return true
			}
			if ok, _ := path.Match("/"+strings.TrimPrefix(pattern, "/"), uri); ok {
				return true
			}
			if name != "" {
				if ok, _ := path.Match(pattern, name); ok {
					return true
				}
			}
		case strings.HasPrefix(pattern, "/"):
			if uri == pattern || strings.HasPrefix(uri, pattern+"/") {
				return true
			}
		default:
			if strings.Contains(uri, pattern) || strings.Contains(name, pattern) {
				return true
			}
		}
	}
	return false
}

// mutatingMethods change server state. GET, HEAD and OPTIONS are treated
// as read-only.
var mutatingMethods = map[string]bool{
	"POST": true, "PUT": true, "PATCH": true, "DELETE": true, "ANY": true,
}

// IsMutating reports whether an HTTP method changes state.
func IsMutating(method string) bool {
	return mutatingMethods[strings.ToUpper(method)]
}
