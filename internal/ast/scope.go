package ast

import "strconv"

// Entry is one direct element of an array literal.
type Entry struct {
	Key    *Node // nil for positional entries
	Value  *Node
	Spread bool
}

// KeyString returns the entry key when it is a string or integer literal.
func (e Entry) KeyString() (string, bool) {
	if e.Key == nil {
		return "", false
	}
	if s, ok := LiteralString(e.Key); ok {
		return s, true
	}
	if i, ok := LiteralInt(e.Key); ok {
		return strconv.FormatInt(i, 10), true
	}
	return "", false
}

// ArrayEntries flattens the direct entries of an array literal. Nested
// arrays are returned as values, never descended into.
func ArrayEntries(n *Node) []Entry {
	n = Unwrap(n)
	if !n.Is(KindArray) {
		return nil
	}
	var out []Entry
	for _, el := range n.Exec() {
		if !el.Is(KindArrayElement) {
			continue
		}
		parts := el.Exec()
		switch {
		case len(parts) == 1 && parts[0].Is(KindVariadicUnpacking):
			out = append(out, Entry{Value: parts[0].Child(0), Spread: true})
		case len(parts) == 1:
			out = append(out, Entry{Value: parts[0]})
		case len(parts) >= 2:
			out = append(out, Entry{Key: parts[0], Value: parts[len(parts)-1]})
		}
	}
	return out
}

// Lookup returns the value stored under a literal key.
func Lookup(entries []Entry, key string) (*Node, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if k, ok := entries[i].KeyString(); ok && k == key {
			return entries[i].Value, true
		}
	}
	return nil, false
}

// Assignment is a `$left = right` expression.
type Assignment struct {
	Node  *Node
	Left  *Node
	Right *Node
}

// AsAssignment returns the assignment view of n.
func AsAssignment(n *Node) (Assignment, bool) {
	if !n.Is(KindAssignment) {
		return Assignment{}, false
	}
	left, right := n.Field("left"), n.Field("right")
	if left == nil {
		left = n.Child(0)
	}
	if right == nil {
		right = n.Last()
	}
	if left == nil || right == nil || left == right {
		return Assignment{}, false
	}
	return Assignment{Node: n, Left: Unwrap(left), Right: right}, true
}

// ScopeNodes yields the executable nodes that belong to scope itself:
// nested closures, functions and classes are not entered.
func ScopeNodes(scope *Node) []*Node {
	var out []*Node
	Inspect(scope, func(n *Node) bool {
		if n != scope && (IsFunctionLike(n) || n.Is(KindClassDeclaration, KindTraitDeclaration)) {
			return false
		}
		out = append(out, n)
		return true
	})
	return out
}

// ResolveLocalAssignment finds the last assignment to variable name inside
// scope that completes before use and returns its right-hand side. It does
// not look into nested closures. It reports false when the variable is
// never assigned in scope, e.g. when it is a parameter.
func ResolveLocalAssignment(scope *Node, name string, use *Node) (*Node, bool) {
	var best *Node
	usePos := use.Span().Start
	for _, n := range ScopeNodes(scope) {
		a, ok := AsAssignment(n)
		if !ok {
			continue
		}
		if v, ok := VariableName(a.Left); !ok || v != name {
			continue
		}
		if usePos.Before(a.Node.Span().End) {
			continue // after use, or use sits inside the assignment
		}
		if best == nil || best.Span().Start.Before(a.Node.Span().Start) {
			best = a.Node
		}
	}
	if best == nil {
		return nil, false
	}
	a, _ := AsAssignment(best)
	return a.Right, true
}

// ArrayEntriesInScope returns the entries of n when it is an array literal
// or a variable built up as one: an initial `$v = [...]` (or no
// initialisation at all) followed by `$v['key'] = value` and `$v[] = value`
// statements before use. Later writes to a key replace earlier ones.
func ArrayEntriesInScope(scope, n *Node) ([]Entry, bool) {
	n = Unwrap(n)
	if n.Is(KindArray) {
		return ArrayEntries(n), true
	}
	name, ok := VariableName(n)
	if !ok {
		return nil, false
	}
	usePos := n.Span().Start

	var entries []Entry
	built := false
	for _, node := range ScopeNodes(scope) {
		a, ok := AsAssignment(node)
		if !ok || usePos.Before(a.Node.Span().End) {
			continue
		}
		if v, ok := VariableName(a.Left); ok && v == name {
			rhs := Unwrap(a.Right)
			if rhs.Is(KindArray) {
				entries = ArrayEntries(rhs)
				built = true
				continue
			}
			// Reassigned to something that is not an array literal.
			entries = nil
			built = false
			continue
		}
		if !a.Left.Is(KindSubscript) {
			continue
		}
		target := Unwrap(a.Left.Child(0))
		if v, ok := VariableName(target); !ok || v != name {
			continue
		}
		built = true
		key := a.Left.Child(1)
		entry := Entry{Key: key, Value: a.Right}
		if ks, ok := entry.KeyString(); ok {
			replaced := false
			for i := range entries {
				if existing, ok := entries[i].KeyString(); ok && existing == ks {
					entries[i] = entry
					replaced = true
					break
				}
			}
			if replaced {
				continue
			}
		}
		entries = append(entries, entry)
	}
	return entries, built
}
