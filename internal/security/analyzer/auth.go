package analyzer

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/julianshen/larashield/internal/ast"
	"github.com/julianshen/larashield/internal/routes"
	"github.com/julianshen/larashield/internal/security"
)

// DefaultSensitiveActions are controller actions that change state and
// must not be reachable without authentication.
var DefaultSensitiveActions = []string{
	"store", "update", "destroy", "delete", "remove", "edit", "create", "save", "restore",
}

var authDescriptor = security.Descriptor{
	ID:          "authentication",
	Name:        "Authentication",
	Description: "Finds state-changing routes and controller actions without authentication middleware, and nullable auth()->user() dereferences.",
	Category:    security.CategoryAuthentication,
	DocsURL:     "https://laravel.com/docs/authentication#protecting-routes",
	RunInCI:     true,
	CountsInfo:  true,
}

// Authentication checks route files and controllers for missing
// authentication.
type Authentication struct {
	base
	policy    routes.Policy
	sensitive []string
}

// NewAuthentication creates the authentication analyzer.
func NewAuthentication(opts Options) *Authentication {
	a := &Authentication{base: newBase(authDescriptor, opts, "routes", "app/Http/Controllers")}
	a.policy = routes.Policy{
		AuthMiddleware: slices.Concat(routes.DefaultAuthMiddleware,
			a.settings.StringSlice("security.authentication.auth_middleware", nil)),
		PublicPatterns: a.settings.StringSlice("security.authentication.public_routes", nil),
	}
	a.sensitive = a.settings.StringSlice("security.authentication.sensitive_actions", DefaultSensitiveActions)
	return a
}

// ShouldRun reports whether a route or controller directory exists.
func (a *Authentication) ShouldRun() bool { return a.anyRootExists() }

// SkipReason explains a skipped run.
func (a *Authentication) SkipReason() string {
	return "No route files or controllers found."
}

type parsedController struct {
	routes.Controller
	root    *ast.Node
	imports ast.Imports
}

// Analyze runs the route pass, then the controller pass against the
// coverage the routes establish.
func (a *Authentication) Analyze(ctx context.Context) ([]security.Issue, error) {
	files, err := a.phpFiles(ctx, a.roots())
	if err != nil {
		return nil, err
	}

	var (
		issues      []security.Issue
		allRoutes   []routes.Route
		controllers []parsedController
	)
	err = a.parseEach(ctx, files, func(file string, root *ast.Node, imports ast.Imports) {
		if isRouteFile(file) {
			for _, r := range routes.Extract(root, file) {
				allRoutes = append(allRoutes, r)
				if a.policy.Unprotected(r) && !suppressed(root, r.Line) {
					issues = append(issues, a.routeIssue(r))
				}
			}
			return
		}
		for _, c := range routes.ExtractControllers(root, file) {
			if isController(file, c.Name) {
				controllers = append(controllers, parsedController{Controller: c, root: root, imports: imports})
			}
		}
	})
	if err != nil {
		return nil, err
	}

	coverage := routes.BuildCoverage(allRoutes, a.policy)
	authed := a.authenticatedActions(allRoutes)
	for _, c := range controllers {
		exempt := routes.IsPubliclyExempt("", c.Name, a.policy.PublicPatterns)
		for _, act := range c.Actions {
			controllerAuth := a.policy.IsAuthenticated(c.MiddlewareFor(act.Name))
			if !exempt && a.isSensitive(act.Name) && !controllerAuth &&
				!coverage.Covered(c.Name, act.Name) && !suppressed(c.root, act.Line) {
				issues = append(issues, a.controllerIssue(c.Controller, act))
			}
			if controllerAuth || authed[routes.ActionKey{Controller: strings.ToLower(c.Name), Action: strings.ToLower(act.Name)}] {
				continue
			}
			issues = append(issues, a.nullableDerefs(c, act)...)
		}
	}
	return issues, nil
}

func (a *Authentication) isSensitive(action string) bool {
	return slices.ContainsFunc(a.sensitive, func(s string) bool { return strings.EqualFold(s, action) })
}

// authenticatedActions returns the actions every mapped route
// authenticates. Public exemptions do not count here: a public route
// still has no user.
func (a *Authentication) authenticatedActions(all []routes.Route) map[routes.ActionKey]bool {
	out := make(map[routes.ActionKey]bool)
	for _, r := range all {
		if r.Controller == "" {
			continue
		}
		key := routes.ActionKey{Controller: strings.ToLower(r.Controller), Action: strings.ToLower(r.Action)}
		ok := a.policy.IsAuthenticated(r.Middleware)
		if prev, seen := out[key]; seen {
			ok = ok && prev
		}
		out[key] = ok
	}
	return out
}

func (a *Authentication) routeIssue(r routes.Route) security.Issue {
	return security.Issue{
		Message:  fmt.Sprintf("Route %s %s has no authentication middleware.", r.Method(), r.URI),
		Severity: security.SeverityHigh,
		Location: security.Location{File: r.File, Line: r.Line, Column: r.Column},
		Recommendation: "Protect the route with the auth middleware, directly or through its group, " +
			"or add its path to security.authentication.public_routes if it is public on purpose.",
		Metadata: security.Meta(
			"issue_type", "unprotected_route",
			"method", r.Method(),
			"uri", r.URI,
			"name", r.Name,
			"action", r.Handler(),
			"middleware", nonNil(r.Middleware),
			"file", r.File,
		),
	}
}

func (a *Authentication) controllerIssue(c routes.Controller, act routes.Action) security.Issue {
	return security.Issue{
		Message:  fmt.Sprintf("Controller action %s@%s is not protected by authentication middleware.", c.Name, act.Name),
		Severity: security.SeverityHigh,
		Location: security.Location{File: c.File, Line: act.Line, Column: act.Column},
		Recommendation: "Map the action only through routes that use the auth middleware, or register it in the " +
			"controller's constructor or middleware() method.",
		Metadata: security.Meta(
			"issue_type", "unprotected_controller_action",
			"controller", c.Name,
			"method", act.Name,
			"file", c.File,
		),
	}
}

// nullableDerefs reports property reads and method calls on the result of
// a user() lookup in an action that never checks for a guest.
func (a *Authentication) nullableDerefs(pc parsedController, act routes.Action) []security.Issue {
	root, c, im := pc.root, pc.Controller, pc.imports
	if act.Node == nil || authGuarded(act.Node, im) {
		return nil
	}
	var issues []security.Issue
	seen := map[string]bool{}
	for n := range act.Node.Descendants() {
		if !n.Is(ast.KindMemberAccess, ast.KindMemberCall) {
			continue
		}
		obj := memberObject(n)
		if !isUserSource(obj, im) && !isUserVariable(obj, im) {
			continue
		}
		key := fmt.Sprintf("%d:%s", n.Line(), obj.Text())
		if seen[key] || suppressed(root, n.Line()) {
			continue
		}
		seen[key] = true
		issues = append(issues, security.Issue{
			Message:  fmt.Sprintf("%s can be null for unauthenticated requests and is dereferenced without a check.", obj.Text()),
			Severity: security.SeverityMedium,
			Location: at(c.File, n),
			Recommendation: "Use the nullsafe operator (?->), check auth()->check() first, " +
				"or protect the action with the auth middleware.",
			Metadata: security.Meta(
				"issue_type", "nullable_auth_dereference",
				"expression", obj.Text(),
				"controller", c.Name,
				"method", act.Name,
			),
		})
	}
	return issues
}

var guardCalls = ast.Or(
	ast.Method("check", "guest", "hasUser", "authorize"),
	ast.OnFacade([]string{"Auth"}, "check", "guest", "hasUser"),
	ast.Function("abort_unless", "abort_if"),
)

// authGuarded reports whether fn checks for an authenticated user before
// using it: a check()/guest() style call, or an if whose condition reads a
// user() lookup or a variable assigned from one.
func authGuarded(fn *ast.Node, im ast.Imports) bool {
	for range ast.FindCalls(fn, im.Match(guardCalls)) {
		return true
	}
	for n := range fn.Descendants() {
		if !n.Is(ast.KindIf) {
			continue
		}
		cond := n.Field("condition")
		if cond == nil {
			cond = n.Child(0)
		}
		for c := range cond.Descendants() {
			if isUserSource(c, im) || isUserVariable(c, im) {
				return true
			}
		}
	}
	return false
}

// isUserSource matches auth()->user(), Auth::user(), Auth::guard()->user(),
// $request->user() and request()->user().
func isUserSource(n *ast.Node, im ast.Imports) bool {
	c, ok := ast.AsCall(ast.Unwrap(n))
	if !ok || !c.Is("user") {
		return false
	}
	c = im.Normalize(c)
	switch c.Kind {
	case ast.StaticCall:
		return strings.EqualFold(c.Class, "Auth")
	case ast.MethodCall:
		recv := ast.Unwrap(c.Receiver)
		if rc, ok := ast.AsCall(recv); ok {
			switch rc.Kind {
			case ast.FunctionCall:
				return rc.Is("auth", "request")
			case ast.StaticCall:
				return strings.EqualFold(im.Canonical(rc.Class), "Auth")
			case ast.MethodCall:
				return rc.Is("guard")
			}
			return false
		}
		if name, ok := ast.VariableName(recv); ok {
			return strings.HasSuffix(strings.ToLower(name), "request")
		}
	}
	return false
}

// isUserVariable matches a variable last assigned from a user() lookup.
func isUserVariable(n *ast.Node, im ast.Imports) bool {
	name, ok := ast.VariableName(n)
	if !ok || name == "this" {
		return false
	}
	rhs, ok := ast.ResolveLocalAssignment(ast.EnclosingScope(n), name, n)
	return ok && isUserSource(rhs, im)
}

func isRouteFile(file string) bool {
	return strings.HasPrefix(file, "routes/") || strings.Contains(file, "/routes/")
}

func isController(file, class string) bool {
	if class == "" || class == "Controller" {
		return false
	}
	return strings.HasSuffix(class, "Controller") || strings.Contains(file, "/Controllers/")
}
