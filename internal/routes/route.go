package routes

import (
	"slices"
	"strings"
)

// Route is one leaf route registration with its effective middleware.
type Route struct {
	Methods    []string // upper case; ANY for Route::any
	URI        string   // always starts with '/'
	Name       string
	Controller string // short class name, empty for closures
	Action     string // controller method, "__invoke" for invokable controllers
	Middleware []string
	File       string
	Line       int
	Column     int
}

// Method returns the registered methods joined with '|'.
func (r Route) Method() string {
	return strings.Join(r.Methods, "|")
}

// Mutating reports whether any registered method changes state.
func (r Route) Mutating() bool {
	return slices.ContainsFunc(r.Methods, IsMutating)
}

// Handler describes the route action: "Controller@method" or "Closure".
func (r Route) Handler() string {
	if r.Controller == "" {
		return "Closure"
	}
	if r.Action == "" || r.Action == "__invoke" {
		return r.Controller
	}
	return r.Controller + "@" + r.Action
}

// ActionKey identifies a controller action.
type ActionKey struct {
	Controller string
	Action     string
}

// Coverage records, for each controller action some route maps to, whether
// every such route is protected.
type Coverage map[ActionKey]bool

// BuildCoverage evaluates routes against policy. A route protects its
// action when it authenticates or is intentionally public.
func BuildCoverage(routes []Route, policy Policy) Coverage {
	cov := make(Coverage)
	for _, r := range routes {
		if r.Controller == "" {
			continue
		}
		key := ActionKey{Controller: strings.ToLower(r.Controller), Action: strings.ToLower(r.Action)}
		protected := policy.IsAuthenticated(r.Middleware) || IsPubliclyExempt(r.URI, r.Name, policy.PublicPatterns)
		if prev, seen := cov[key]; seen {
			cov[key] = prev && protected
			continue
		}
		cov[key] = protected
	}
	return cov
}

// Covered reports whether routes map to the action and all of them are
// protected.
func (c Coverage) Covered(controller, action string) bool {
	return c[ActionKey{Controller: strings.ToLower(controller), Action: strings.ToLower(action)}]
}
