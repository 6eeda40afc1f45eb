// Package ast holds the immutable syntax tree the analyzers query and the
// query utilities built on top of it: call matching, literal folding, array
// flattening and same-scope assignment resolution.
//
// Nodes are produced by internal/parser from tree-sitter-php output. Node
// kinds are the grammar's node type names, normalised across grammar
// versions by the parser.
package ast

import (
	"iter"
	"strings"
)

// Node kinds used by the query layer and the analyzers.
const (
	KindProgram              = "program"
	KindComment              = "comment"
	KindExpressionStatement  = "expression_statement"
	KindCompoundStatement    = "compound_statement"
	KindReturn               = "return_statement"
	KindAssignment           = "assignment_expression"
	KindAugmentedAssignment  = "augmented_assignment_expression"
	KindFunctionCall         = "function_call_expression"
	KindMemberCall           = "member_call_expression"
	KindNullsafeMemberCall   = "nullsafe_member_call_expression"
	KindScopedCall           = "scoped_call_expression"
	KindObjectCreation       = "object_creation_expression"
	KindMemberAccess         = "member_access_expression"
	KindNullsafeMemberAccess = "nullsafe_member_access_expression"
	KindScopedPropertyAccess = "scoped_property_access_expression"
	KindClassConstantAccess  = "class_constant_access_expression"
	KindSubscript            = "subscript_expression"
	KindArguments            = "arguments"
	KindArgument             = "argument"
	KindArray                = "array_creation_expression"
	KindArrayElement         = "array_element_initializer"
	KindVariadicUnpacking    = "variadic_unpacking"
	KindString               = "string"
	KindEncapsedString       = "encapsed_string"
	KindStringContent        = "string_content"
	KindEscapeSequence       = "escape_sequence"
	KindInteger              = "integer"
	KindFloat                = "float"
	KindBoolean              = "boolean"
	KindNull                 = "null"
	KindVariable             = "variable_name"
	KindName                 = "name"
	KindQualifiedName        = "qualified_name"
	KindRelativeScope        = "relative_scope"
	KindClosure              = "anonymous_function"
	KindArrowFunction        = "arrow_function"
	KindFunctionDefinition   = "function_definition"
	KindMethodDeclaration    = "method_declaration"
	KindClassDeclaration     = "class_declaration"
	KindTraitDeclaration     = "trait_declaration"
	KindDeclarationList      = "declaration_list"
	KindPropertyDeclaration  = "property_declaration"
	KindPropertyElement      = "property_element"
	KindBaseClause           = "base_clause"
	KindConditional          = "conditional_expression"
	KindBinary               = "binary_expression"
	KindUnary                = "unary_op_expression"
	KindCast                 = "cast_expression"
	KindParenthesized        = "parenthesized_expression"
	KindIf                   = "if_statement"
	KindVisibilityModifier   = "visibility_modifier"
	KindStaticModifier       = "static_modifier"
	KindNamespaceUse         = "namespace_use_declaration"
)

// Position is a 1-based line and column.
type Position struct {
	Line   int
	Column int
}

// Before reports whether p is strictly before o.
func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Column < o.Column
}

// Span is the source range covered by a node.
type Span struct {
	Start Position
	End   Position
}

// Contains reports whether s fully encloses o.
func (s Span) Contains(o Span) bool {
	return !o.Start.Before(s.Start) && !s.End.Before(o.End)
}

// Child pairs a child node with the grammar field it was attached under.
// Field is empty for positional children.
type Child struct {
	Field string
	Node  *Node
}

// Node is an immutable syntax tree node. Only named grammar nodes are kept;
// anonymous tokens are folded into Operator where they carry meaning.
type Node struct {
	kind     string
	span     Span
	text     string
	operator string
	children []*Node
	fields   map[string]*Node
	parent   *Node
}

// NewNode builds a node and adopts its children. The children must not be
// shared with another parent.
func NewNode(kind string, span Span, text, operator string, children []Child) *Node {
	n := &Node{
		kind:     kind,
		span:     span,
		text:     text,
		operator: operator,
	}
	if len(children) > 0 {
		n.children = make([]*Node, 0, len(children))
	}
	for _, c := range children {
		if c.Node == nil {
			continue
		}
		c.Node.parent = n
		n.children = append(n.children, c.Node)
		if c.Field != "" {
			if n.fields == nil {
				n.fields = make(map[string]*Node)
			}
			if _, taken := n.fields[c.Field]; !taken {
				n.fields[c.Field] = c.Node
			}
		}
	}
	return n
}

// Kind returns the node's grammar type.
func (n *Node) Kind() string {
	if n == nil {
		return ""
	}
	return n.kind
}

// Is reports whether the node has one of the given kinds.
func (n *Node) Is(kinds ...string) bool {
	if n == nil {
		return false
	}
	for _, k := range kinds {
		if n.kind == k {
			return true
		}
	}
	return false
}

// Span returns the node's source range.
func (n *Node) Span() Span {
	if n == nil {
		return Span{}
	}
	return n.span
}

// Line returns the 1-based line the node starts on.
func (n *Node) Line() int { return n.Span().Start.Line }

// Column returns the 1-based column the node starts at.
func (n *Node) Column() int { return n.Span().Start.Column }

// Text returns the source text the node covers.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	return n.text
}

// Operator returns the operator token of binary, unary and augmented
// assignment nodes.
func (n *Node) Operator() string {
	if n == nil {
		return ""
	}
	return n.operator
}

// Parent returns the enclosing node, or nil at the root.
func (n *Node) Parent() *Node {
	if n == nil {
		return nil
	}
	return n.parent
}

// Children returns all named children, comments included.
func (n *Node) Children() []*Node {
	if n == nil {
		return nil
	}
	return n.children
}

// Exec returns the executable children: everything except comments.
func (n *Node) Exec() []*Node {
	if n == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.children))
	for _, c := range n.children {
		if c.kind != KindComment {
			out = append(out, c)
		}
	}
	return out
}

// Child returns the i-th executable child, or nil.
func (n *Node) Child(i int) *Node {
	exec := n.Exec()
	if i < 0 || i >= len(exec) {
		return nil
	}
	return exec[i]
}

// Last returns the last executable child, or nil.
func (n *Node) Last() *Node {
	exec := n.Exec()
	if len(exec) == 0 {
		return nil
	}
	return exec[len(exec)-1]
}

// Field returns the child attached under the given grammar field, or nil.
func (n *Node) Field(name string) *Node {
	if n == nil || n.fields == nil {
		return nil
	}
	return n.fields[name]
}

// FirstOf returns the first executable child with one of the given kinds.
func (n *Node) FirstOf(kinds ...string) *Node {
	for _, c := range n.Exec() {
		if c.Is(kinds...) {
			return c
		}
	}
	return nil
}

// Descendants yields n and every executable node beneath it, depth first,
// in source order. Comment nodes are never yielded.
func (n *Node) Descendants() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		walk(n, yield)
	}
}

func walk(n *Node, yield func(*Node) bool) bool {
	if n == nil || n.kind == KindComment {
		return true
	}
	if !yield(n) {
		return false
	}
	for _, c := range n.children {
		if !walk(c, yield) {
			return false
		}
	}
	return true
}

// Inspect calls fn for n and its executable descendants depth first. When fn
// returns false the node's children are skipped.
func Inspect(n *Node, fn func(*Node) bool) {
	if n == nil || n.kind == KindComment {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		Inspect(c, fn)
	}
}

// IsFunctionLike reports whether the node opens a new variable scope.
func IsFunctionLike(n *Node) bool {
	return n.Is(KindFunctionDefinition, KindMethodDeclaration, KindClosure, KindArrowFunction)
}

// EnclosingScope returns the nearest function-like ancestor of n, or the
// root when n sits at file level.
func EnclosingScope(n *Node) *Node {
	cur := n.Parent()
	last := n
	for cur != nil {
		if IsFunctionLike(cur) {
			return cur
		}
		last = cur
		cur = cur.Parent()
	}
	return last
}

// Enclosing returns the nearest ancestor with one of the given kinds.
func Enclosing(n *Node, kinds ...string) *Node {
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		if cur.Is(kinds...) {
			return cur
		}
	}
	return nil
}

// Unwrap strips parentheses around an expression.
func Unwrap(n *Node) *Node {
	for n.Is(KindParenthesized) {
		inner := n.Child(0)
		if inner == nil {
			return n
		}
		n = inner
	}
	return n
}

// VariableName returns the name of a `$var` node without the sigil.
func VariableName(n *Node) (string, bool) {
	if !n.Is(KindVariable) {
		return "", false
	}
	name := strings.TrimPrefix(n.Text(), "$")
	if name == "" || strings.ContainsAny(name, "{$") {
		return "", false
	}
	return name, true
}

// ShortName returns the last segment of a possibly qualified class name.
func ShortName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "\\")
	if i := strings.LastIndex(name, "\\"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// ClassReference returns the class named by `Foo::class`, a bare name or a
// qualified name.
func ClassReference(n *Node) (string, bool) {
	n = Unwrap(n)
	switch n.Kind() {
	case KindName, KindQualifiedName:
		return ShortName(n.Text()), true
	case KindClassConstantAccess:
		// The `class` keyword is a named child in some grammar versions
		// and an anonymous token in others, so match on text.
		text := strings.TrimSpace(n.Text())
		idx := strings.LastIndex(text, "::")
		if idx <= 0 || !strings.EqualFold(strings.TrimSpace(text[idx+2:]), "class") {
			return "", false
		}
		cls := n.Child(0)
		if cls.Is(KindName, KindQualifiedName) {
			return ShortName(cls.Text()), true
		}
	}
	return "", false
}
