package routes

import (
	"slices"
	"strings"

	"github.com/julianshen/larashield/internal/ast"
)

type resourceAction struct {
	action  string
	methods []string
	suffix  string // appended to the resource URI; {param} is the member placeholder
}

var resourceActions = []resourceAction{
	{"index", []string{"GET", "HEAD"}, ""},
	{"create", []string{"GET", "HEAD"}, "/create"},
	{"store", []string{"POST"}, ""},
	{"show", []string{"GET", "HEAD"}, "/{param}"},
	{"edit", []string{"GET", "HEAD"}, "/{param}/edit"},
	{"update", []string{"PUT", "PATCH"}, "/{param}"},
	{"destroy", []string{"DELETE"}, "/{param}"},
}

var singletonActions = []resourceAction{
	{"create", []string{"GET", "HEAD"}, "/create"},
	{"store", []string{"POST"}, ""},
	{"show", []string{"GET", "HEAD"}, ""},
	{"edit", []string{"GET", "HEAD"}, "/edit"},
	{"update", []string{"PUT", "PATCH"}, ""},
	{"destroy", []string{"DELETE"}, ""},
}

// resourceActionNames returns the actions a resource kind registers before
// only/except filtering.
func resourceActionNames(kind string, creatable bool) []string {
	switch kind {
	case "apiresource":
		return []string{"index", "store", "show", "update", "destroy"}
	case "singleton":
		if creatable {
			return []string{"create", "store", "show", "edit", "update", "destroy"}
		}
		return []string{"show", "edit", "update"}
	case "apisingleton":
		if creatable {
			return []string{"store", "show", "update", "destroy"}
		}
		return []string{"show", "update"}
	default:
		return []string{"index", "create", "store", "show", "edit", "update", "destroy"}
	}
}

// resource expands a resource registration into its leaf routes.
// Options may come from the third argument or from chained only/except.
func (e *extractor) resource(head *ast.Node, reg registration, kind, name, controller string, options *ast.Node) {
	entries := ast.ArrayEntries(options)
	only, except := reg.only, reg.except
	if v, ok := ast.Lookup(entries, "only"); ok {
		only = ast.StringList(v)
	}
	if v, ok := ast.Lookup(entries, "except"); ok {
		except = ast.StringList(v)
	}
	middleware := slices.Clone(reg.middleware)
	if v, ok := ast.Lookup(entries, "middleware"); ok {
		middleware = append(middleware, ast.StringList(v)...)
	}

	table := resourceActions
	if strings.Contains(kind, "singleton") {
		table = singletonActions
	}
	base := resourceURI(name)
	attrs := e.top()

	for _, action := range resourceActionNames(kind, reg.creatable) {
		if len(only) > 0 && !slices.Contains(only, action) {
			continue
		}
		if slices.Contains(except, action) {
			continue
		}
		idx := slices.IndexFunc(table, func(a resourceAction) bool { return a.action == action })
		if idx < 0 {
			continue
		}
		ra := table[idx]
		uri := base + strings.ReplaceAll(ra.suffix, "{param}", "{"+resourceParam(name)+"}")
		e.routes = append(e.routes, Route{
			Methods:    slices.Clone(ra.methods),
			URI:        joinURI(attrs.prefix, uri),
			Name:       attrs.name + name + "." + action,
			Controller: controller,
			Action:     action,
			Middleware: e.stack.Resolve(
				slices.Concat(middleware, reg.actionMW[action]),
				slices.Concat(reg.without, reg.actionNoMW[action]),
			),
			File:   e.file,
			Line:   head.Line(),
			Column: head.Column(),
		})
	}
}

// resourceURI turns a dotted nested resource name into its URI:
// "photos.comments" → "/photos/{photo}/comments".
func resourceURI(name string) string {
	parts := strings.Split(name, ".")
	var b strings.Builder
	for i, p := range parts {
		b.WriteString("/" + p)
		if i < len(parts)-1 {
			b.WriteString("/{" + singular(p) + "}")
		}
	}
	return b.String()
}

func resourceParam(name string) string {
	parts := strings.Split(name, ".")
	return singular(parts[len(parts)-1])
}

// singular is the naive English singular Laravel falls back to for
// common resource names.
func singular(s string) string {
	s = strings.ReplaceAll(s, "-", "_")
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "ses"), strings.HasSuffix(s, "xes"):
		return strings.TrimSuffix(s, "es")
	case strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}
