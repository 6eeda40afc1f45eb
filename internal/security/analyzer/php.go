package analyzer

import (
	"regexp"
	"strings"

	"github.com/julianshen/larashield/internal/ast"
)

// returnedArray returns the array literal a config file returns at top
// level: `return [...];`.
func returnedArray(root *ast.Node) *ast.Node {
	for _, stmt := range root.Exec() {
		if !stmt.Is(ast.KindReturn) {
			continue
		}
		if arr := ast.Unwrap(stmt.Child(0)); arr.Is(ast.KindArray) {
			return arr
		}
	}
	return nil
}

// configLookup follows literal keys through nested config arrays.
func configLookup(arr *ast.Node, keys ...string) (*ast.Node, bool) {
	cur := arr
	for _, k := range keys {
		v, ok := ast.Lookup(ast.ArrayEntries(cur), k)
		if !ok {
			return nil, false
		}
		cur = ast.Unwrap(v)
	}
	return cur, cur != nil
}

// configValue strips casts and resolves env('KEY', default) to its
// default. It reports whether the value came from env() and the variable
// it reads.
func configValue(n *ast.Node) (value *ast.Node, envVar string) {
	n = ast.Unwrap(n)
	for n.Is(ast.KindCast) {
		n = ast.Unwrap(n.Last())
	}
	c, ok := ast.AsCall(n)
	if !ok || c.Kind != ast.FunctionCall || !c.Is("env") {
		return n, ""
	}
	envVar, _ = ast.LiteralString(c.Arg(0))
	return ast.Unwrap(c.Arg(1)), envVar
}

func configString(n *ast.Node) (string, bool) {
	v, _ := configValue(n)
	return ast.LiteralString(v)
}

func configInt(n *ast.Node) (int, bool) {
	v, _ := configValue(n)
	if i, ok := ast.LiteralInt(v); ok {
		return int(i), true
	}
	return 0, false
}

// classProperty returns the initializer of a property declared in class,
// e.g. $guarded or $fillable, and the declaring node.
func classProperty(class *ast.Node, name string) (value, decl *ast.Node) {
	body := class.Field("body")
	if body == nil {
		body = class.FirstOf(ast.KindDeclarationList)
	}
	for _, d := range body.Exec() {
		if !d.Is(ast.KindPropertyDeclaration) {
			continue
		}
		for _, el := range d.Exec() {
			if !el.Is(ast.KindPropertyElement) {
				continue
			}
			v, ok := ast.VariableName(el.FirstOf(ast.KindVariable))
			if !ok || v != name {
				continue
			}
			return propertyInitializer(el), el
		}
	}
	return nil, nil
}

// propertyInitializer handles both grammar shapes: a default_value field
// and a property_initializer wrapper node.
func propertyInitializer(el *ast.Node) *ast.Node {
	if v := el.Field("default_value"); v != nil {
		return v
	}
	if init := el.FirstOf("property_initializer"); init != nil {
		return init.Child(0)
	}
	if last := el.Last(); last != nil && !last.Is(ast.KindVariable) {
		return last
	}
	return nil
}

// className returns the declared name of a class node.
func className(class *ast.Node) string {
	name := class.Field("name")
	if name == nil {
		name = class.FirstOf(ast.KindName)
	}
	return name.Text()
}

// parentClass returns the short name in a class's extends clause.
func parentClass(class *ast.Node) string {
	bc := class.FirstOf(ast.KindBaseClause)
	if bc == nil {
		return ""
	}
	if n := bc.FirstOf(ast.KindName, ast.KindQualifiedName); n != nil {
		return ast.ShortName(n.Text())
	}
	return ""
}

// memberName returns the property name of $obj->name.
func memberName(n *ast.Node) string {
	name := n.Field("name")
	if name == nil {
		name = n.Last()
	}
	if !name.Is(ast.KindName) {
		return ""
	}
	return name.Text()
}

// memberObject returns the object of a member access or call.
func memberObject(n *ast.Node) *ast.Node {
	obj := n.Field("object")
	if obj == nil {
		obj = n.Child(0)
	}
	return ast.Unwrap(obj)
}

var passwordName = regexp.MustCompile(`(?i)(^|_)(password|passwd|pwd|passcode)($|_)|password$`)

var notPasswordValue = regexp.MustCompile(`(?i)(_at$|confirm|reset|token|expir|changed|hint|rule|policy|length|strength|required)`)

// isPasswordField reports whether a field name holds a password value,
// excluding timestamps, confirmations and settings named after it.
func isPasswordField(name string) bool {
	name = strings.TrimPrefix(name, "$")
	return passwordName.MatchString(name) && !notPasswordValue.MatchString(name)
}

// mentionsPassword reports whether an expression's text refers to a
// password value.
func mentionsPassword(n *ast.Node) bool {
	return strings.Contains(strings.ToLower(n.Text()), "password") ||
		strings.Contains(strings.ToLower(n.Text()), "passwd")
}
