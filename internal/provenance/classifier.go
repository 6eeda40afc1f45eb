package provenance

import (
	"strings"
	"unicode"

	"github.com/julianshen/larashield/internal/ast"
)

// ClassKind is what a class name refers to, judged by naming alone.
type ClassKind int

const (
	UnknownClass ClassKind = iota
	EloquentModel
	QueryBuilderFacade
	RequestAccessor
)

func (k ClassKind) String() string {
	switch k {
	case EloquentModel:
		return "eloquent_model"
	case QueryBuilderFacade:
		return "query_builder_facade"
	case RequestAccessor:
		return "request_accessor"
	default:
		return "unknown"
	}
}

// Classifier maps class names to a ClassKind using facade tables and
// suffix exclusions. It never resolves types; aliases are followed only
// through the file's use statements.
type Classifier struct {
	QueryBuilders    []string
	RequestClasses   []string
	RequestSuffixes  []string
	NonModelClasses  []string
	NonModelSuffixes []string
	// ModelNamespaces mark a resolved class as a model regardless of its
	// short name.
	ModelNamespaces []string

	imports ast.Imports
}

// DefaultClassifier returns the Laravel naming rules.
func DefaultClassifier() Classifier {
	return Classifier{
		QueryBuilders:   []string{"DB"},
		RequestClasses:  []string{"Request", "Input"},
		RequestSuffixes: []string{"Request"},
		NonModelClasses: []string{
			"App", "Arr", "Artisan", "Auth", "Blade", "Broadcast", "Bus", "Cache",
			"Carbon", "Config", "Context", "Cookie", "Crypt", "Date", "Event",
			"File", "Gate", "Hash", "Http", "Lang", "Log", "Mail", "Notification",
			"Password", "Process", "Queue", "RateLimiter", "Redirect", "Redis",
			"Response", "Route", "Schema", "Session", "Storage", "Str", "URL",
			"Validator", "View", "Vite", "Model", "Collection",
		},
		NonModelSuffixes: []string{
			"Controller", "Service", "Repository", "Helper", "Factory", "Seeder",
			"Policy", "Job", "Event", "Listener", "Mail", "Notification",
			"Resource", "Provider", "Middleware", "Facade", "Exception",
			"Command", "Rule", "Observer", "Collection", "Manager", "Builder",
			"Test", "Interface", "Trait", "Handler", "Action", "Enum", "Support",
		},
		ModelNamespaces: []string{`App\Models\`},
	}
}

// WithImports returns a copy of c that resolves aliases through im.
func (c Classifier) WithImports(im ast.Imports) Classifier {
	c.imports = im
	return c
}

// Canonical returns the short class name a reference resolves to.
func (c Classifier) Canonical(name string) string {
	return c.imports.Canonical(name)
}

// Classify returns the kind of the (possibly qualified) class name.
func (c Classifier) Classify(name string) ClassKind {
	fqn := c.imports.Resolve(name)
	short := ast.ShortName(fqn)
	if short == "" {
		return UnknownClass
	}
	switch strings.ToLower(short) {
	case "self", "static", "parent":
		return UnknownClass
	}
	if contains(c.QueryBuilders, short) {
		return QueryBuilderFacade
	}
	if contains(c.RequestClasses, short) || hasSuffix(short, c.RequestSuffixes) {
		return RequestAccessor
	}
	for _, ns := range c.ModelNamespaces {
		if strings.HasPrefix(strings.ToLower(fqn), strings.ToLower(ns)) {
			return EloquentModel
		}
	}
	if strings.HasPrefix(fqn, `Illuminate\`) {
		return UnknownClass
	}
	if contains(c.NonModelClasses, short) || hasSuffix(short, c.NonModelSuffixes) {
		return UnknownClass
	}
	if !unicode.IsUpper([]rune(short)[0]) {
		return UnknownClass
	}
	return EloquentModel
}

func hasSuffix(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if len(name) > len(s) && strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
