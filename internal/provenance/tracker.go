// Package provenance classifies where a value came from: raw request input,
// an allow-listed hashing or filtering call, or somewhere the analysis
// cannot see. Classification stays inside one function body; variables are
// followed through same-scope assignments only.
package provenance

import (
	"strings"

	"github.com/julianshen/larashield/internal/ast"
)

// Origin is the provenance of an expression.
type Origin int

const (
	Unknown Origin = iota
	Safe           // passed through a hashing or filtering call
	Unsafe         // raw request input
)

func (o Origin) String() string {
	switch o {
	case Safe:
		return "safe"
	case Unsafe:
		return "unsafe"
	default:
		return "unknown"
	}
}

// MaxHops bounds how many variable assignments a classification follows.
const MaxHops = 5

// Tracker classifies expressions within a single function body. A Tracker
// holds no state between calls and must not be shared across files.
type Tracker struct {
	rules      Rules
	classifier Classifier
	scope      *ast.Node
}

// New returns a tracker for the function-like node scope (or a file root).
func New(scope *ast.Node, rules Rules) *Tracker {
	return &Tracker{rules: rules, classifier: DefaultClassifier(), scope: scope}
}

// WithImports makes the tracker resolve class aliases through im, so
// `use Illuminate\Support\Facades\Hash as Hasher;` lets Hasher::make hash.
func (t *Tracker) WithImports(im ast.Imports) *Tracker {
	t.classifier = t.classifier.WithImports(im)
	return t
}

// ForNode returns a tracker for the scope enclosing n.
func ForNode(n *ast.Node, rules Rules) *Tracker {
	return New(ast.EnclosingScope(n), rules)
}

// Classify returns the origin of expr.
func (t *Tracker) Classify(expr *ast.Node) Origin {
	return t.classify(expr, 0)
}

func (t *Tracker) classify(n *ast.Node, hops int) Origin {
	n = ast.Unwrap(n)
	if n == nil {
		return Unknown
	}

	switch n.Kind() {
	case ast.KindVariable:
		name, ok := ast.VariableName(n)
		if !ok {
			return Unknown
		}
		if contains(t.rules.Superglobals, name) {
			return Unsafe
		}
		if hops >= MaxHops {
			return Unknown
		}
		rhs, ok := ast.ResolveLocalAssignment(t.scope, name, n)
		if !ok {
			return Unknown
		}
		return t.classify(rhs, hops+1)

	case ast.KindCast:
		return t.classify(n.Last(), hops)

	case ast.KindConditional:
		return t.branches(conditionalBranches(n), hops)

	case ast.KindBinary:
		if n.Operator() == "??" {
			l, r := ast.BinaryOperands(n)
			return t.branches([]*ast.Node{l, r}, hops)
		}
		return Unknown

	case ast.KindMemberAccess, ast.KindNullsafeMemberAccess:
		// $request->password reads input through the magic accessor.
		obj := n.Field("object")
		if obj == nil {
			obj = n.Child(0)
		}
		if t.isRequest(obj) {
			return Unsafe
		}
		return Unknown

	case ast.KindSubscript:
		return t.subscript(n, hops)

	case ast.KindArray:
		return t.array(ast.ArrayEntries(n), hops)
	}

	if call, ok := ast.AsCall(n); ok {
		return t.call(call, hops)
	}
	return Unknown
}

// branches combines the origins of alternative values. Empty or default
// literals are ignored; any Unsafe branch wins, then any Safe one.
func (t *Tracker) branches(nodes []*ast.Node, hops int) Origin {
	out := Unknown
	for _, b := range nodes {
		if b == nil || ast.IsTrivialLiteral(b) {
			continue
		}
		switch t.classify(b, hops) {
		case Unsafe:
			return Unsafe
		case Safe:
			out = Safe
		}
	}
	return out
}

// conditionalBranches returns the value branches of a ternary. The short
// form `a ?: b` yields its condition as the first branch.
func conditionalBranches(n *ast.Node) []*ast.Node {
	body, alt := n.Field("body"), n.Field("alternative")
	if alt == nil {
		alt = n.Last()
	}
	if body == nil {
		exec := n.Exec()
		switch len(exec) {
		case 3:
			body = exec[1]
		case 2:
			body = exec[0]
		}
	}
	return []*ast.Node{body, alt}
}

func (t *Tracker) subscript(n *ast.Node, hops int) Origin {
	base := ast.Unwrap(n.Child(0))
	if key, ok := ast.LiteralString(n.Child(1)); ok && base.Is(ast.KindVariable) && hops < MaxHops {
		if entries, ok := ast.ArrayEntriesInScope(t.scope, base); ok {
			if v, ok := ast.Lookup(entries, key); ok {
				return t.classify(v, hops+1)
			}
		}
	}
	if t.isRequest(base) {
		return Unsafe
	}
	return t.classify(base, hops)
}

// array is Unsafe when a spread element is; explicit keyed values are
// judged one by one by the analyzers.
func (t *Tracker) array(entries []ast.Entry, hops int) Origin {
	for _, e := range entries {
		if e.Spread && t.classify(e.Value, hops) == Unsafe {
			return Unsafe
		}
	}
	return Unknown
}

func (t *Tracker) call(c ast.Call, hops int) Origin {
	r := t.rules
	switch c.Kind {
	case ast.FunctionCall:
		switch {
		case contains(r.SafeFunctions, c.Name):
			return Safe
		case strings.EqualFold(c.Name, "request"):
			if len(c.Args) > 0 {
				return Unsafe
			}
			return Unknown
		case contains(r.PassThroughFunctions, c.Name):
			return t.classify(c.Arg(0), hops)
		case contains(r.Mergers, c.Name):
			out := Unknown
			for _, a := range c.Args {
				switch t.classify(a.Value, hops) {
				case Unsafe:
					return Unsafe
				case Safe:
					out = Safe
				}
			}
			return out
		}

	case ast.StaticCall:
		class := t.classifier.Canonical(c.Class)
		switch {
		case staticContains(r.SafeStatic, class, c.Name):
			return Safe
		case staticContains(r.PassThroughStatic, class, c.Name):
			return t.classify(c.Arg(0), hops)
		case t.classifier.Classify(c.Class) == RequestAccessor:
			if contains(r.FilteringMethods, c.Name) || contains(r.RequestFilteringMethods, c.Name) {
				return Safe
			}
			if contains(r.RawAccessors, c.Name) {
				return Unsafe
			}
		}

	case ast.MethodCall:
		recv := ast.Unwrap(c.Receiver)
		switch {
		case contains(r.FilteringMethods, c.Name):
			return Safe
		case contains(r.HasherMethods, c.Name) && t.isHasher(recv):
			return Safe
		case t.isRequest(recv):
			if contains(r.RequestFilteringMethods, c.Name) {
				return Safe
			}
			if contains(r.RawAccessors, c.Name) {
				return Unsafe
			}
		}
		// Methods on a classified call keep its origin:
		// $request->safe()->except('x'), $request->collect()->toArray().
		if _, ok := ast.AsCall(recv); ok {
			return t.classify(recv, hops)
		}
	}
	return Unknown
}

// isRequest reports whether n denotes the current HTTP request: a
// $request-like variable, $this->request, request() or the Request facade.
func (t *Tracker) isRequest(n *ast.Node) bool {
	n = ast.Unwrap(n)
	switch n.Kind() {
	case ast.KindVariable:
		name, ok := ast.VariableName(n)
		if !ok {
			return false
		}
		lower := strings.ToLower(name)
		return lower == "req" || strings.HasSuffix(lower, "request")
	case ast.KindMemberAccess, ast.KindNullsafeMemberAccess:
		name := n.Field("name")
		if name == nil {
			name = n.Last()
		}
		return strings.EqualFold(name.Text(), "request")
	}
	c, ok := ast.AsCall(n)
	if !ok {
		return false
	}
	switch c.Kind {
	case ast.FunctionCall:
		return strings.EqualFold(c.Name, "request") && len(c.Args) == 0
	case ast.StaticCall:
		// Request::instance()
		return t.classifier.Classify(c.Class) == RequestAccessor
	}
	return false
}

// isHasher matches $hasher, $this->hasher, Hash::driver('x') and app('hash').
func (t *Tracker) isHasher(n *ast.Node) bool {
	if c, ok := ast.AsCall(n); ok {
		switch c.Kind {
		case ast.FunctionCall:
			s, _ := ast.LiteralString(c.Arg(0))
			return (strings.EqualFold(c.Name, "app") || strings.EqualFold(c.Name, "resolve")) &&
				strings.Contains(strings.ToLower(s), "hash")
		case ast.StaticCall:
			return strings.EqualFold(t.classifier.Canonical(c.Class), "Hash")
		}
		return false
	}
	return strings.Contains(strings.ToLower(n.Text()), "hash")
}

func equalFold(a, b string) bool { return strings.EqualFold(a, b) }
