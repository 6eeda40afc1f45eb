// Package routes models how middleware propagates through Laravel route
// files: nested groups push and pop middleware scopes, route-local
// middleware and removals apply to one registration only, and the effective
// set of every leaf route is evaluated against an authentication policy.
package routes

import (
	"slices"
	"strings"
)

// Scope is one level of group nesting.
type Scope struct {
	// Effective is the set in force inside the group: the parent's
	// effective set plus the group's own middleware minus its removals.
	Effective []string
	// Removed is what this group removed with withoutMiddleware.
	Removed []string
}

// Stack is the middleware scope stack for one route file traversal. The
// zero value is an empty stack whose effective set is empty.
type Stack struct {
	scopes []Scope
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Effective returns the effective middleware set at the top of the stack.
func (s *Stack) Effective() []string {
	if len(s.scopes) == 0 {
		return nil
	}
	return slices.Clone(s.scopes[len(s.scopes)-1].Effective)
}

// Push enters a group carrying middleware and removals.
func (s *Stack) Push(middleware, removed []string) {
	s.scopes = append(s.scopes, Scope{
		Effective: apply(s.Effective(), middleware, removed),
		Removed:   normalize(removed),
	})
}

// Pop leaves the innermost group. Popping an empty stack is a no-op.
func (s *Stack) Pop() {
	if len(s.scopes) > 0 {
		s.scopes = s.scopes[:len(s.scopes)-1]
	}
}

// Resolve returns the effective set for a single registration carrying
// local middleware and removals. The stack is not modified.
func (s *Stack) Resolve(local, removed []string) []string {
	return apply(s.Effective(), local, removed)
}

// apply computes (base ∪ add) − remove as a sorted, de-duplicated set.
// Removing a bare name also removes its parameterised forms, so removing
// "auth" drops "auth:sanctum".
func apply(base, add, remove []string) []string {
	out := make([]string, 0, len(base)+len(add))
	for _, m := range slices.Concat(base, normalize(add)) {
		if !removedBy(m, remove) {
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func removedBy(m string, remove []string) bool {
	for _, r := range normalize(remove) {
		if m == r {
			return true
		}
		if !strings.Contains(r, ":") && BaseName(m) == r {
			return true
		}
	}
	return false
}

func normalize(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// BaseName strips the parameter list from a middleware name:
// "auth:sanctum" → "auth", "throttle:60,1" → "throttle".
func BaseName(middleware string) string {
	if i := strings.IndexByte(middleware, ':'); i >= 0 {
		return middleware[:i]
	}
	return middleware
}
