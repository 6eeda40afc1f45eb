package analyzer

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/julianshen/larashield/internal/ast"
	"github.com/julianshen/larashield/internal/provenance"
	"github.com/julianshen/larashield/internal/security"
)

// DefaultSensitiveFields are attributes that grant privileges or bypass
// verification when mass assigned.
var DefaultSensitiveFields = []string{
	"is_admin", "admin", "is_super_admin", "is_superuser", "role", "role_id", "roles",
	"permissions", "email_verified_at", "api_token", "remember_token", "balance", "credits",
}

// modelBases are parent classes that make a class an Eloquent model.
var modelBases = []string{"Model", "Authenticatable", "Pivot", "MorphPivot", "User"}

// modelWriteStatics are the static model methods that take attributes.
var modelWriteStatics = []string{
	"create", "forceCreate", "insert", "make", "fill", "forceFill", "update",
	"updateOrCreate", "firstOrCreate", "firstOrNew",
}

// modelWriteMethods are instance or relation methods that take attributes.
var modelWriteMethods = []string{
	"create", "forceCreate", "fill", "forceFill", "update", "updateOrCreate",
	"firstOrCreate", "firstOrNew", "make",
}

var massAssignDescriptor = security.Descriptor{
	ID:          "mass-assignment",
	Name:        "Mass Assignment",
	Description: "Finds unguarded models, privileged attributes in $fillable and raw request input passed to model writes.",
	Category:    security.CategoryInputValidation,
	DocsURL:     "https://laravel.com/docs/eloquent#mass-assignment",
	RunInCI:     true,
	CountsInfo:  true,
}

// MassAssignment checks models and model writes.
type MassAssignment struct {
	base
	sensitive  []string
	rules      provenance.Rules
	classifier provenance.Classifier
}

// NewMassAssignment creates the mass-assignment analyzer.
func NewMassAssignment(opts Options) *MassAssignment {
	a := &MassAssignment{
		base:       newBase(massAssignDescriptor, opts, "app", "routes", "database/seeders"),
		rules:      provenance.DefaultRules(),
		classifier: provenance.DefaultClassifier(),
	}
	a.sensitive = a.settings.StringSlice("security.mass_assignment.sensitive_fields", DefaultSensitiveFields)
	return a
}

// ShouldRun reports whether there is application code to scan.
func (a *MassAssignment) ShouldRun() bool { return a.anyRootExists() }

// SkipReason explains a skipped run.
func (a *MassAssignment) SkipReason() string { return "No application code found." }

// Analyze checks model declarations and model writes in every file.
func (a *MassAssignment) Analyze(ctx context.Context) ([]security.Issue, error) {
	files, err := a.phpFiles(ctx, a.roots())
	if err != nil {
		return nil, err
	}
	var issues []security.Issue
	err = a.parseEach(ctx, files, func(file string, root *ast.Node, imports ast.Imports) {
		issues = append(issues, a.checkModels(file, root)...)
		issues = append(issues, a.checkWrites(file, root, imports)...)
	})
	if err != nil {
		return nil, err
	}
	return issues, nil
}

func (a *MassAssignment) isModel(file string, class *ast.Node) bool {
	parent := parentClass(class)
	if slices.Contains(modelBases, parent) {
		return true
	}
	return strings.Contains(file, "/Models/") && parent != ""
}

func (a *MassAssignment) checkModels(file string, root *ast.Node) []security.Issue {
	var issues []security.Issue
	for class := range root.Descendants() {
		if !class.Is(ast.KindClassDeclaration) || !a.isModel(file, class) {
			continue
		}
		model := className(class)

		if v, decl := classProperty(class, "guarded"); decl != nil && v != nil &&
			ast.Unwrap(v).Is(ast.KindArray) && len(ast.ArrayEntries(v)) == 0 && !suppressed(root, decl.Line()) {
			issues = append(issues, security.Issue{
				Message:        fmt.Sprintf("Model %s sets $guarded to an empty array, so every attribute is mass assignable.", model),
				Severity:       security.SeverityHigh,
				Location:       at(file, decl),
				Recommendation: "List the assignable attributes in $fillable instead of emptying $guarded.",
				Metadata:       security.Meta("issue_type", "unguarded_model", "model", model),
			})
		}

		v, decl := classProperty(class, "fillable")
		if decl == nil || suppressed(root, decl.Line()) {
			continue
		}
		for _, field := range ast.StringList(v) {
			if !slices.ContainsFunc(a.sensitive, func(s string) bool { return strings.EqualFold(s, field) }) {
				continue
			}
			issues = append(issues, security.Issue{
				Message:        fmt.Sprintf("Model %s allows mass assignment of the sensitive attribute %q.", model, field),
				Severity:       security.SeverityMedium,
				Location:       at(file, decl),
				Recommendation: "Remove the attribute from $fillable and set it explicitly where it is authorised.",
				Metadata:       security.Meta("issue_type", "sensitive_fillable", "model", model, "field", field),
			})
		}
	}
	return issues
}

func (a *MassAssignment) checkWrites(file string, root *ast.Node, im ast.Imports) []security.Issue {
	cl := a.classifier.WithImports(im)
	var issues []security.Issue
	for c := range ast.FindCalls(root, ast.AnyCall) {
		if suppressed(root, c.Node.Line()) {
			continue
		}
		if isGlobalUnguard(c, cl) {
			issues = append(issues, security.Issue{
				Message:        fmt.Sprintf("%s::unguard() disables mass-assignment protection for every model.", c.Class),
				Severity:       security.SeverityHigh,
				Location:       at(file, c.Node),
				Recommendation: "Remove the unguard() call, or limit it to seeders with Model::unguarded().",
				Metadata:       security.Meta("issue_type", "global_unguard"),
			})
			continue
		}
		target, ok := writeTarget(c, cl)
		if !ok {
			continue
		}
		tracker := provenance.ForNode(c.Node, a.rules).WithImports(im)
		for _, payload := range writePayloads(c) {
			if tracker.Classify(payload) != provenance.Unsafe {
				continue
			}
			issues = append(issues, security.Issue{
				Message:        fmt.Sprintf("Unvalidated request input passed to %s.", target),
				Severity:       security.SeverityHigh,
				Location:       at(file, c.Node),
				Recommendation: "Pass $request->validated() or $request->only([...]) instead of raw request input.",
				Metadata: security.Meta(
					"issue_type", "unsafe_mass_assignment",
					"call", target,
					"payload", payload.Text(),
				),
			})
			break
		}
	}
	return issues
}

func isGlobalUnguard(c ast.Call, cl provenance.Classifier) bool {
	if c.Kind != ast.StaticCall || !c.Is("unguard") {
		return false
	}
	class := cl.Canonical(c.Class)
	return slices.Contains(modelBases, class) || class == "Eloquent" ||
		cl.Classify(c.Class) == provenance.EloquentModel
}

// writeTarget describes a call that writes model attributes:
// User::create(), new User(), $user->update(), $user->posts()->create().
func writeTarget(c ast.Call, cl provenance.Classifier) (string, bool) {
	switch c.Kind {
	case ast.StaticCall:
		if c.Is(modelWriteStatics...) && cl.Classify(c.Class) == provenance.EloquentModel {
			return c.Class + "::" + c.Name + "()", true
		}
	case ast.NewCall:
		if cl.Classify(c.Class) == provenance.EloquentModel {
			return "new " + c.Class + "()", true
		}
	case ast.MethodCall:
		if !c.Is(modelWriteMethods...) {
			return "", false
		}
		// Writes on the request, validator or query builder are not model writes.
		recv := ast.Unwrap(c.Receiver)
		if rc, ok := ast.AsCall(recv); ok && rc.Kind == ast.StaticCall &&
			cl.Classify(rc.Class) != provenance.EloquentModel {
			return "", false
		}
		if name, ok := ast.VariableName(recv); ok && strings.HasSuffix(strings.ToLower(name), "request") {
			return "", false
		}
		return "->" + c.Name + "()", true
	}
	return "", false
}

// writePayloads returns the attribute arguments of a model write.
func writePayloads(c ast.Call) []*ast.Node {
	if c.Is("updateOrCreate", "firstOrCreate", "firstOrNew") {
		return slices.DeleteFunc([]*ast.Node{c.Arg(0), c.Arg(1)}, func(n *ast.Node) bool { return n == nil })
	}
	if p := c.Arg(0); p != nil {
		return []*ast.Node{p}
	}
	if p := c.NamedArg("attributes"); p != nil {
		return []*ast.Node{p}
	}
	return nil
}
