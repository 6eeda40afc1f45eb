package routes

import (
	"slices"
	"strings"

	"github.com/julianshen/larashield/internal/ast"
)

var verbs = map[string][]string{
	"get":     {"GET", "HEAD"},
	"post":    {"POST"},
	"put":     {"PUT"},
	"patch":   {"PATCH"},
	"delete":  {"DELETE"},
	"options": {"OPTIONS"},
	"any":     {"ANY"},
}

// groupAttrs are the non-middleware attributes a group passes down.
type groupAttrs struct {
	prefix     string
	name       string
	controller string
}

// extractor walks one route file. Every file gets a fresh extractor.
type extractor struct {
	file   string
	stack  *Stack
	attrs  []groupAttrs
	routes []Route
}

// Extract returns every leaf route registered in a route file, including
// routes nested in groups and resource registrations expanded into their
// actions. Registrations whose arguments cannot be read statically are
// skipped.
func Extract(root *ast.Node, file string) []Route {
	e := &extractor{file: file, stack: NewStack()}
	e.walk(root)
	return e.routes
}

func (e *extractor) walk(n *ast.Node) {
	ast.Inspect(n, func(node *ast.Node) bool {
		if _, ok := ast.AsCall(node); !ok || !ast.IsChainHead(node) {
			return true
		}
		chain := ast.Chain(node)
		if !isRouterChain(chain) {
			return true
		}
		e.register(node, chain)
		return false
	})
}

// isRouterChain reports whether a chain starts at the Route facade or a
// $router variable.
func isRouterChain(chain []ast.Call) bool {
	if len(chain) == 0 {
		return false
	}
	first := chain[0]
	switch first.Kind {
	case ast.StaticCall:
		return strings.EqualFold(first.Class, "Route")
	case ast.MethodCall:
		base := ast.Unwrap(first.Receiver)
		if name, ok := ast.VariableName(base); ok {
			return strings.EqualFold(name, "router")
		}
		if base.Is(ast.KindMemberAccess) {
			return strings.EqualFold(base.Text(), "$this->router")
		}
	}
	return false
}

func (e *extractor) top() groupAttrs {
	if len(e.attrs) == 0 {
		return groupAttrs{}
	}
	return e.attrs[len(e.attrs)-1]
}

// registration collects everything a single chain says.
type registration struct {
	middleware []string
	without    []string
	prefix     string
	name       string
	controller string
	only       []string
	except     []string
	creatable  bool
	actionMW   map[string][]string
	actionNoMW map[string][]string
	group      *ast.Call
	verb       *ast.Call
	match      *ast.Call
	resource   *ast.Call
	resources  *ast.Call
}

func (e *extractor) register(head *ast.Node, chain []ast.Call) {
	reg := registration{actionMW: map[string][]string{}, actionNoMW: map[string][]string{}}
	for i := range chain {
		c := chain[i]
		switch name := strings.ToLower(c.Name); name {
		case "middleware":
			reg.middleware = append(reg.middleware, argStrings(c)...)
		case "withoutmiddleware":
			reg.without = append(reg.without, argStrings(c)...)
		case "prefix":
			reg.prefix, _ = ast.LiteralString(c.Arg(0))
		case "name", "as":
			reg.name, _ = ast.LiteralString(c.Arg(0))
		case "controller":
			if cls, ok := ast.ClassReference(c.Arg(0)); ok {
				reg.controller = cls
			} else if s, ok := ast.LiteralString(c.Arg(0)); ok {
				reg.controller = ast.ShortName(s)
			}
		case "only":
			reg.only = argStrings(c)
		case "except":
			reg.except = argStrings(c)
		case "creatable":
			reg.creatable = true
		case "middlewarefor", "withoutmiddlewarefor":
			target := reg.actionMW
			if name == "withoutmiddlewarefor" {
				target = reg.actionNoMW
			}
			mw := ast.StringList(c.Arg(1))
			for _, action := range ast.StringList(c.Arg(0)) {
				target[action] = append(target[action], mw...)
			}
		case "group":
			reg.group = &chain[i]
		case "match":
			reg.match = &chain[i]
		case "resource", "apiresource", "singleton", "apisingleton":
			reg.resource = &chain[i]
		case "resources", "apiresources":
			reg.resources = &chain[i]
		default:
			if _, ok := verbs[name]; ok {
				reg.verb = &chain[i]
			}
		}
	}

	switch {
	case reg.group != nil:
		e.group(reg)
	case reg.verb != nil:
		methods := verbs[strings.ToLower(reg.verb.Name)]
		e.leaf(head, reg, methods, reg.verb.Arg(0), reg.verb.Arg(1))
	case reg.match != nil:
		var methods []string
		for _, m := range ast.StringList(reg.match.Arg(0)) {
			methods = append(methods, strings.ToUpper(m))
		}
		if len(methods) > 0 {
			e.leaf(head, reg, methods, reg.match.Arg(1), reg.match.Arg(2))
		}
	case reg.resource != nil:
		name, ok := ast.LiteralString(reg.resource.Arg(0))
		ctrl, okc := ast.ClassReference(reg.resource.Arg(1))
		if ok && okc {
			e.resource(head, reg, strings.ToLower(reg.resource.Name), name, ctrl, reg.resource.Arg(2))
		}
	case reg.resources != nil:
		kind := "resource"
		if strings.EqualFold(reg.resources.Name, "apiResources") {
			kind = "apiresource"
		}
		for _, entry := range ast.ArrayEntries(reg.resources.Arg(0)) {
			name, ok := entry.KeyString()
			ctrl, okc := ast.ClassReference(entry.Value)
			if ok && okc {
				e.resource(head, reg, kind, name, ctrl, reg.resources.Arg(1))
			}
		}
	}
}

func (e *extractor) group(reg registration) {
	g := reg.group
	var body *ast.Node
	for _, a := range g.Args {
		v := ast.Unwrap(a.Value)
		if ast.IsFunctionLike(v) {
			body = v
			continue
		}
		// Route::group(['middleware' => 'auth', 'prefix' => 'admin'], fn)
		entries := ast.ArrayEntries(v)
		if v, ok := ast.Lookup(entries, "middleware"); ok {
			reg.middleware = append(reg.middleware, ast.StringList(v)...)
		}
		for _, key := range []string{"excluded_middleware", "withoutMiddleware", "without_middleware"} {
			if v, ok := ast.Lookup(entries, key); ok {
				reg.without = append(reg.without, ast.StringList(v)...)
			}
		}
		if v, ok := ast.Lookup(entries, "prefix"); ok {
			reg.prefix, _ = ast.LiteralString(v)
		}
		if v, ok := ast.Lookup(entries, "as"); ok {
			reg.name, _ = ast.LiteralString(v)
		}
		if v, ok := ast.Lookup(entries, "controller"); ok {
			if cls, ok := ast.ClassReference(v); ok {
				reg.controller = cls
			}
		}
	}
	if body == nil {
		// group(base_path('routes/admin.php')) and the like.
		return
	}

	parent := e.top()
	attrs := groupAttrs{
		prefix:     joinURI(parent.prefix, reg.prefix),
		name:       parent.name + reg.name,
		controller: parent.controller,
	}
	if reg.controller != "" {
		attrs.controller = reg.controller
	}

	e.stack.Push(reg.middleware, reg.without)
	e.attrs = append(e.attrs, attrs)
	defer func() {
		e.stack.Pop()
		e.attrs = e.attrs[:len(e.attrs)-1]
	}()

	inner := body.Field("body")
	if inner == nil {
		inner = body.Last()
	}
	e.walk(inner)
}

func (e *extractor) leaf(head *ast.Node, reg registration, methods []string, uriNode, actionNode *ast.Node) {
	uri, ok := ast.LiteralString(uriNode)
	if !ok {
		return
	}
	attrs := e.top()
	controller := attrs.controller
	if reg.controller != "" {
		controller = reg.controller
	}
	ctrl, action := parseAction(actionNode, controller)
	e.routes = append(e.routes, Route{
		Methods:    slices.Clone(methods),
		URI:        joinURI(attrs.prefix, uri),
		Name:       joinName(attrs.name, reg.name),
		Controller: ctrl,
		Action:     action,
		Middleware: e.stack.Resolve(reg.middleware, reg.without),
		File:       e.file,
		Line:       head.Line(),
		Column:     head.Column(),
	})
}

// joinName applies the group name prefix to a route name. Unnamed routes
// stay unnamed.
func joinName(prefix, name string) string {
	if name == "" {
		return ""
	}
	return prefix + name
}

// parseAction reads a route action: [Controller::class, 'method'],
// 'Controller@method', an invokable Controller::class, a bare method name
// inside a controller group, or a closure.
func parseAction(n *ast.Node, groupController string) (controller, action string) {
	n = ast.Unwrap(n)
	if n == nil || ast.IsFunctionLike(n) {
		return "", ""
	}
	if cls, ok := ast.ClassReference(n); ok {
		return cls, "__invoke"
	}
	if n.Is(ast.KindArray) {
		entries := ast.ArrayEntries(n)
		if len(entries) == 0 {
			return "", ""
		}
		cls, ok := ast.ClassReference(entries[0].Value)
		if !ok {
			s, lit := ast.LiteralString(entries[0].Value)
			if !lit {
				return "", ""
			}
			cls = ast.ShortName(s)
		}
		if len(entries) < 2 {
			return cls, "__invoke"
		}
		method, _ := ast.LiteralString(entries[1].Value)
		return cls, method
	}
	s, ok := ast.LiteralString(n)
	if !ok {
		return "", ""
	}
	if ctrl, method, found := strings.Cut(s, "@"); found {
		return ast.ShortName(ctrl), method
	}
	if groupController != "" && !strings.Contains(s, `\`) {
		return groupController, s
	}
	return ast.ShortName(s), "__invoke"
}

// argStrings collects the string arguments of a variadic call such as
// middleware('auth', 'verified') or middleware(['auth', 'verified']).
func argStrings(c ast.Call) []string {
	var out []string
	for _, a := range c.Args {
		out = append(out, ast.StringList(a.Value)...)
	}
	return out
}

func joinURI(parts ...string) string {
	var segs []string
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			segs = append(segs, p)
		}
	}
	return "/" + strings.Join(segs, "/")
}
