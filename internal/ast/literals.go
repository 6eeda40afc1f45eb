package ast

import (
	"strconv"
	"strings"
)

// LiteralString returns the value of a compile-time constant string. A
// concatenation is folded only when every operand is itself constant.
func LiteralString(n *Node) (string, bool) {
	n = Unwrap(n)
	switch n.Kind() {
	case KindString:
		return singleQuoted(n.Text())
	case KindEncapsedString:
		for _, c := range n.Exec() {
			if !c.Is(KindStringContent, KindEscapeSequence) {
				return "", false // interpolation
			}
		}
		return doubleQuoted(n.Text())
	case KindBinary:
		if n.Operator() != "." {
			return "", false
		}
		lhs, rhs := BinaryOperands(n)
		left, ok := LiteralString(lhs)
		if !ok {
			return "", false
		}
		right, ok := LiteralString(rhs)
		if !ok {
			return "", false
		}
		return left + right, true
	}
	return "", false
}

func singleQuoted(raw string) (string, bool) {
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "b"), "B")
	if len(raw) < 2 || raw[0] != '\'' || raw[len(raw)-1] != '\'' {
		return "", false
	}
	body := raw[1 : len(raw)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) && (body[i+1] == '\'' || body[i+1] == '\\') {
			i++
		}
		b.WriteByte(body[i])
	}
	return b.String(), true
}

var doubleQuoteEscapes = map[byte]string{
	'n': "\n", 't': "\t", 'r': "\r", 'v': "\v", 'f': "\f", 'e': "\x1b",
	'0': "\x00", '\\': "\\", '"': "\"", '$': "$",
}

func doubleQuoted(raw string) (string, bool) {
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "b"), "B")
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return "", false
	}
	body := raw[1 : len(raw)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			if rep, ok := doubleQuoteEscapes[body[i+1]]; ok {
				b.WriteString(rep)
				i++
				continue
			}
		}
		b.WriteByte(body[i])
	}
	return b.String(), true
}

// BinaryOperands returns the left and right operands of a binary node.
func BinaryOperands(n *Node) (*Node, *Node) {
	left, right := n.Field("left"), n.Field("right")
	if left == nil {
		left = n.Child(0)
	}
	if right == nil {
		right = n.Last()
	}
	return left, right
}

// LiteralInt returns the value of an integer literal, honouring a leading
// unary minus.
func LiteralInt(n *Node) (int64, bool) {
	n = Unwrap(n)
	switch n.Kind() {
	case KindInteger:
		v, err := strconv.ParseInt(strings.ReplaceAll(n.Text(), "_", ""), 0, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	case KindUnary:
		if n.Operator() != "-" && n.Operator() != "+" {
			return 0, false
		}
		v, ok := LiteralInt(n.Last())
		if !ok {
			return 0, false
		}
		if n.Operator() == "-" {
			v = -v
		}
		return v, true
	}
	return 0, false
}

// LiteralBool returns the value of a true/false literal.
func LiteralBool(n *Node) (bool, bool) {
	n = Unwrap(n)
	if !n.Is(KindBoolean) {
		return false, false
	}
	switch strings.ToLower(n.Text()) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// IsTrivialLiteral reports whether n is an empty or default value: null,
// false, an empty string, zero or an empty array.
func IsTrivialLiteral(n *Node) bool {
	n = Unwrap(n)
	switch n.Kind() {
	case KindNull:
		return true
	case KindBoolean:
		v, _ := LiteralBool(n)
		return !v
	case KindString, KindEncapsedString:
		s, ok := LiteralString(n)
		return ok && s == ""
	case KindInteger:
		v, ok := LiteralInt(n)
		return ok && v == 0
	case KindArray:
		return len(n.Exec()) == 0
	}
	return false
}

// StringList returns the strings named by a string literal, a `Foo::class`
// reference, or an array of those. Non-literal elements are skipped.
func StringList(n *Node) []string {
	n = Unwrap(n)
	if s, ok := LiteralString(n); ok {
		return []string{s}
	}
	if cls, ok := ClassReference(n); ok {
		return []string{cls}
	}
	if !n.Is(KindArray) {
		return nil
	}
	var out []string
	for _, e := range ArrayEntries(n) {
		if s, ok := LiteralString(e.Value); ok {
			out = append(out, s)
		} else if cls, ok := ClassReference(e.Value); ok {
			out = append(out, cls)
		}
	}
	return out
}
