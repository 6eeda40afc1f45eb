package routes

import (
	"slices"
	"strings"

	"github.com/julianshen/larashield/internal/ast"
)

// ControllerMiddleware is one middleware a controller registers for its
// own actions, optionally limited with only/except.
type ControllerMiddleware struct {
	Name   string
	Only   []string
	Except []string
}

// Applies reports whether the middleware runs for action.
func (m ControllerMiddleware) Applies(action string) bool {
	if len(m.Only) > 0 && !containsFold(m.Only, action) {
		return false
	}
	return !containsFold(m.Except, action)
}

// Action is a public controller method.
type Action struct {
	Name   string
	Line   int
	Column int
	Node   *ast.Node
}

// Controller is a controller class with its public actions and the
// middleware it registers itself.
type Controller struct {
	Name       string
	File       string
	Line       int
	Actions    []Action
	Middleware []ControllerMiddleware
}

// MiddlewareFor returns the controller-registered middleware that runs
// for action.
func (c Controller) MiddlewareFor(action string) []string {
	var out []string
	for _, m := range c.Middleware {
		if m.Applies(action) {
			out = append(out, m.Name)
		}
	}
	return out
}

// ExtractControllers returns every class declared in a file with its
// public, non-magic, non-static methods and its middleware registrations:
// $this->middleware(...) in the constructor, with chained only/except, and
// a static middleware() method returning names or Middleware objects.
func ExtractControllers(root *ast.Node, file string) []Controller {
	var out []Controller
	for n := range root.Descendants() {
		if !n.Is(ast.KindClassDeclaration) {
			continue
		}
		name := n.Field("name")
		if name == nil {
			name = n.FirstOf(ast.KindName)
		}
		if name == nil {
			continue
		}
		c := Controller{Name: name.Text(), File: file, Line: n.Line()}
		for _, m := range classMethods(n) {
			mname := methodName(m)
			switch {
			case strings.EqualFold(mname, "__construct"):
				c.Middleware = append(c.Middleware, constructorMiddleware(m)...)
			case strings.EqualFold(mname, "middleware") && hasModifier(m, ast.KindStaticModifier):
				c.Middleware = append(c.Middleware, staticMiddleware(m)...)
			case mname == "" || strings.HasPrefix(mname, "__"):
			case !isPublic(m) || hasModifier(m, ast.KindStaticModifier):
			default:
				c.Actions = append(c.Actions, Action{Name: mname, Line: m.Line(), Column: m.Column(), Node: m})
			}
		}
		out = append(out, c)
	}
	return out
}

func classMethods(class *ast.Node) []*ast.Node {
	body := class.Field("body")
	if body == nil {
		body = class.FirstOf(ast.KindDeclarationList)
	}
	var out []*ast.Node
	for _, d := range body.Exec() {
		if d.Is(ast.KindMethodDeclaration) {
			out = append(out, d)
		}
	}
	return out
}

func methodName(m *ast.Node) string {
	name := m.Field("name")
	if name == nil {
		name = m.FirstOf(ast.KindName)
	}
	return name.Text()
}

func hasModifier(m *ast.Node, kind string) bool {
	return m.FirstOf(kind) != nil
}

func isPublic(m *ast.Node) bool {
	vis := m.FirstOf(ast.KindVisibilityModifier)
	return vis == nil || strings.EqualFold(strings.TrimSpace(vis.Text()), "public")
}

// constructorMiddleware reads $this->middleware('auth')->only([...]).
func constructorMiddleware(ctor *ast.Node) []ControllerMiddleware {
	var out []ControllerMiddleware
	for c := range ast.FindCalls(ctor, ast.Method("middleware")) {
		if strings.TrimSpace(ast.Unwrap(c.Receiver).Text()) != "$this" {
			continue
		}
		var only, except []string
		cur := c.Node
		for p := cur.Parent(); p.Is(ast.KindMemberCall, ast.KindNullsafeMemberCall); p = p.Parent() {
			pc, _ := ast.AsCall(p)
			if ast.Unwrap(pc.Receiver) != cur {
				break
			}
			switch {
			case pc.Is("only"):
				only = append(only, argStrings(pc)...)
			case pc.Is("except"):
				except = append(except, argStrings(pc)...)
			}
			cur = p
		}
		for _, name := range argStrings(c) {
			out = append(out, ControllerMiddleware{Name: name, Only: only, Except: except})
		}
	}
	return out
}

// staticMiddleware reads the array returned by a static middleware()
// method: plain names and new Middleware('auth', only: [...]).
func staticMiddleware(m *ast.Node) []ControllerMiddleware {
	var out []ControllerMiddleware
	ast.Inspect(m, func(n *ast.Node) bool {
		if n != m && ast.IsFunctionLike(n) {
			return false
		}
		if !n.Is(ast.KindReturn) {
			return true
		}
		for _, e := range ast.ArrayEntries(n.Last()) {
			if names := ast.StringList(e.Value); len(names) > 0 {
				for _, name := range names {
					out = append(out, ControllerMiddleware{Name: name})
				}
				continue
			}
			c, ok := ast.AsCall(ast.Unwrap(e.Value))
			if !ok || c.Kind != ast.NewCall || !strings.EqualFold(c.Class, "Middleware") {
				continue
			}
			name, ok := ast.LiteralString(c.Arg(0))
			if !ok {
				continue
			}
			only := c.NamedArg("only")
			if only == nil {
				only = c.Arg(1)
			}
			except := c.NamedArg("except")
			if except == nil {
				except = c.Arg(2)
			}
			out = append(out, ControllerMiddleware{
				Name:   name,
				Only:   ast.StringList(only),
				Except: ast.StringList(except),
			})
		}
		return false
	})
	return out
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(v string) bool { return strings.EqualFold(v, s) })
}
