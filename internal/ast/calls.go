package ast

import (
	"iter"
	"regexp"
	"strings"
)

// CallKind distinguishes the syntactic shapes a call can take.
type CallKind int

const (
	FunctionCall CallKind = iota + 1 // foo()
	MethodCall                       // $x->foo()
	StaticCall                       // Foo::bar()
	NewCall                          // new Foo()
)

// Arg is one call argument.
type Arg struct {
	Name   string // named argument label, empty when positional
	Value  *Node
	Spread bool
}

// Call is the normalised view of a call node.
type Call struct {
	Node     *Node
	Kind     CallKind
	Name     string // function, method or class (for NewCall) name
	Class    string // short class name for StaticCall and NewCall
	Receiver *Node  // object of a MethodCall
	Nullsafe bool
	Args     []Arg
}

// Arg returns the i-th positional argument value, or nil.
func (c Call) Arg(i int) *Node {
	pos := 0
	for _, a := range c.Args {
		if a.Name != "" {
			continue
		}
		if pos == i {
			return a.Value
		}
		pos++
	}
	return nil
}

// NamedArg returns the value of a named argument, or nil.
func (c Call) NamedArg(name string) *Node {
	for _, a := range c.Args {
		if strings.EqualFold(a.Name, name) {
			return a.Value
		}
	}
	return nil
}

// Is reports whether the call's name matches one of names, ignoring case.
func (c Call) Is(names ...string) bool {
	for _, n := range names {
		if strings.EqualFold(c.Name, n) {
			return true
		}
	}
	return false
}

// AsCall returns the call view of n when n is a call or object creation.
func AsCall(n *Node) (Call, bool) {
	switch n.Kind() {
	case KindFunctionCall:
		fn := n.Field("function")
		if fn == nil {
			fn = n.Child(0)
		}
		name := ""
		if fn.Is(KindName, KindQualifiedName) {
			name = ShortName(fn.Text())
		}
		return Call{Node: n, Kind: FunctionCall, Name: name, Args: argsOf(n)}, true

	case KindMemberCall, KindNullsafeMemberCall:
		obj := n.Field("object")
		if obj == nil {
			obj = n.Child(0)
		}
		return Call{
			Node:     n,
			Kind:     MethodCall,
			Name:     memberName(n),
			Receiver: obj,
			Nullsafe: n.Kind() == KindNullsafeMemberCall,
			Args:     argsOf(n),
		}, true

	case KindScopedCall:
		scope := n.Field("scope")
		if scope == nil {
			scope = n.Child(0)
		}
		class := ""
		if scope.Is(KindName, KindQualifiedName, KindRelativeScope) {
			class = ShortName(scope.Text())
		}
		return Call{Node: n, Kind: StaticCall, Name: memberName(n), Class: class, Args: argsOf(n)}, true

	case KindObjectCreation:
		cls := n.FirstOf(KindName, KindQualifiedName)
		if cls == nil {
			return Call{}, false
		}
		short := ShortName(cls.Text())
		return Call{Node: n, Kind: NewCall, Name: short, Class: short, Args: argsOf(n)}, true
	}
	return Call{}, false
}

func memberName(n *Node) string {
	name := n.Field("name")
	if name == nil {
		exec := n.Exec()
		for i := len(exec) - 1; i >= 1; i-- {
			if exec[i].Is(KindName) {
				name = exec[i]
				break
			}
		}
	}
	if name.Is(KindName) {
		return name.Text()
	}
	return ""
}

func argsOf(n *Node) []Arg {
	list := n.Field("arguments")
	if list == nil {
		list = n.FirstOf(KindArguments)
	}
	if list == nil {
		return nil
	}
	var args []Arg
	for _, a := range list.Exec() {
		if !a.Is(KindArgument) {
			// Some grammar versions place expressions directly under
			// arguments.
			args = append(args, Arg{Value: a})
			continue
		}
		arg := Arg{}
		if label := a.Field("name"); label != nil {
			arg.Name = label.Text()
		}
		val := a.Last()
		if val.Is(KindVariadicUnpacking) {
			arg.Spread = true
			val = val.Child(0)
		} else if arg.Name != "" && val == a.Field("name") {
			val = nil
		}
		arg.Value = val
		args = append(args, arg)
	}
	return args
}

// CallMatcher selects calls.
type CallMatcher func(Call) bool

// AnyCall matches every call.
func AnyCall(Call) bool { return true }

// Named matches functions, methods and static methods by name.
func Named(names ...string) CallMatcher {
	return func(c Call) bool {
		return c.Kind != NewCall && c.Is(names...)
	}
}

// Function matches plain function calls by name.
func Function(names ...string) CallMatcher {
	return func(c Call) bool {
		return c.Kind == FunctionCall && c.Is(names...)
	}
}

// Method matches instance method calls by name.
func Method(names ...string) CallMatcher {
	return func(c Call) bool {
		return c.Kind == MethodCall && c.Is(names...)
	}
}

// OnFacade matches static calls on one of the given class aliases. With no
// method names, any method on the facade matches.
func OnFacade(aliases []string, methods ...string) CallMatcher {
	return func(c Call) bool {
		if c.Kind != StaticCall {
			return false
		}
		hit := false
		for _, a := range aliases {
			if strings.EqualFold(c.Class, ShortName(a)) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
		return len(methods) == 0 || c.Is(methods...)
	}
}

// OnClassMatching matches static calls whose class name matches pattern.
func OnClassMatching(pattern *regexp.Regexp, methods ...string) CallMatcher {
	return func(c Call) bool {
		if c.Kind != StaticCall || c.Class == "" || !pattern.MatchString(c.Class) {
			return false
		}
		return len(methods) == 0 || c.Is(methods...)
	}
}

// Or matches when any matcher does.
func Or(matchers ...CallMatcher) CallMatcher {
	return func(c Call) bool {
		for _, m := range matchers {
			if m(c) {
				return true
			}
		}
		return false
	}
}

// FindCalls lazily yields every call beneath root that match selects, depth
// first in source order. Comments are never searched.
func FindCalls(root *Node, match CallMatcher) iter.Seq[Call] {
	return func(yield func(Call) bool) {
		for n := range root.Descendants() {
			c, ok := AsCall(n)
			if !ok || !match(c) {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

// Chain returns the calls of a fluent chain ending at n, innermost first.
// For `Route::middleware('a')->prefix('b')->group(...)` it yields the
// middleware, prefix and group calls. The chain stops at the first
// receiver that is not itself a call.
func Chain(n *Node) []Call {
	var rev []Call
	cur := n
	for {
		c, ok := AsCall(cur)
		if !ok {
			break
		}
		rev = append(rev, c)
		if c.Kind != MethodCall {
			break
		}
		cur = Unwrap(c.Receiver)
	}
	out := make([]Call, len(rev))
	for i, c := range rev {
		out[len(rev)-1-i] = c
	}
	return out
}

// IsChainHead reports whether n is the outermost call of its fluent chain.
func IsChainHead(n *Node) bool {
	p := n.Parent()
	if !p.Is(KindMemberCall, KindNullsafeMemberCall) {
		return true
	}
	c, _ := AsCall(p)
	return Unwrap(c.Receiver) != n
}

// LeadingComment returns the text of the comment block that ends on the
// line directly above line, joining consecutive comment lines. It returns
// an empty string when no comment precedes the line.
func LeadingComment(root *Node, line int) string {
	comments := make(map[int]*Node)
	var collect func(*Node)
	collect = func(n *Node) {
		for _, c := range n.Children() {
			if c.Kind() == KindComment {
				comments[c.Span().End.Line] = c
				continue
			}
			collect(c)
		}
	}
	collect(root)

	var parts []string
	next := line - 1
	for {
		c, ok := comments[next]
		if !ok {
			break
		}
		parts = append([]string{c.Text()}, parts...)
		next = c.Span().Start.Line - 1
	}
	return strings.Join(parts, "\n")
}
