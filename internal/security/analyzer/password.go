package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/julianshen/larashield/internal/ast"
	"github.com/julianshen/larashield/internal/provenance"
	"github.com/julianshen/larashield/internal/security"
)

const hashingConfig = "config/hashing.php"

var passwordDescriptor = security.Descriptor{
	ID:          "password-security",
	Name:        "Password Security",
	Description: "Checks the hashing configuration and finds passwords stored in plain text or hashed with weak algorithms.",
	Category:    security.CategoryCryptography,
	DocsURL:     "https://laravel.com/docs/hashing",
	RunInCI:     true,
	CountsInfo:  true,
}

// weakDrivers are hashing drivers that do not produce password hashes.
var weakDrivers = map[string]bool{"md5": true, "sha1": true, "sha256": true, "plain": true, "none": true}

// weakHashAlgos are hash() algorithms unfit for passwords.
var weakHashAlgos = map[string]bool{"md5": true, "sha1": true, "crc32": true, "crc32b": true, "sha256": true}

// massWriteMethods take an attribute array.
var massWriteMethods = []string{
	"create", "update", "fill", "forceFill", "insert", "make", "updateOrCreate",
	"firstOrCreate", "firstOrNew", "forceCreate", "updateOrInsert",
}

// PasswordSecurity checks hashing configuration and password handling code.
type PasswordSecurity struct {
	base
	bcryptMin         int
	bcryptRecommended int
	argonMemory       int
	argonTime         int
	argonThreads      int
	rules             provenance.Rules
}

// NewPasswordSecurity creates the password analyzer.
func NewPasswordSecurity(opts Options) *PasswordSecurity {
	a := &PasswordSecurity{base: newBase(passwordDescriptor, opts, "app", "routes"), rules: provenance.DefaultRules()}
	s := a.settings
	a.bcryptMin = s.Int("security.password.bcrypt_min_rounds", 10)
	a.bcryptRecommended = s.Int("security.password.bcrypt_recommended_rounds", 12)
	a.argonMemory = s.Int("security.password.argon_min_memory", 65536)
	a.argonTime = s.Int("security.password.argon_min_time", 2)
	a.argonThreads = s.Int("security.password.argon_min_threads", 1)
	return a
}

// ShouldRun reports whether there is a hashing config or code to scan.
func (a *PasswordSecurity) ShouldRun() bool {
	return a.exists(hashingConfig) || a.anyRootExists()
}

// SkipReason explains a skipped run.
func (a *PasswordSecurity) SkipReason() string {
	return "No config/hashing.php and no application code found."
}

// Analyze checks config/hashing.php, then the application code.
func (a *PasswordSecurity) Analyze(ctx context.Context) ([]security.Issue, error) {
	var issues []security.Issue
	if root := a.parseOne(hashingConfig); root != nil {
		issues = append(issues, a.checkConfig(root)...)
	}

	files, err := a.phpFiles(ctx, a.roots())
	if err != nil {
		return nil, err
	}
	err = a.parseEach(ctx, files, func(file string, root *ast.Node, imports ast.Imports) {
		if file == hashingConfig {
			return
		}
		issues = append(issues, a.checkCode(file, root, imports)...)
	})
	if err != nil {
		return nil, err
	}
	return issues, nil
}

func (a *PasswordSecurity) checkConfig(root *ast.Node) []security.Issue {
	arr := returnedArray(root)
	if arr == nil {
		return nil
	}
	var issues []security.Issue
	add := func(n *ast.Node, sev security.Severity, msg, rec string, meta security.Metadata) {
		if suppressed(root, n.Line()) {
			return
		}
		issues = append(issues, security.Issue{
			Message: msg, Severity: sev, Location: at(hashingConfig, n), Recommendation: rec, Metadata: meta,
		})
	}

	if n, ok := configLookup(arr, "driver"); ok {
		if driver, ok := configString(n); ok && weakDrivers[strings.ToLower(driver)] {
			add(n, security.SeverityCritical,
				fmt.Sprintf("Hashing driver %q is not a password hashing algorithm.", driver),
				"Use the bcrypt, argon or argon2id driver.",
				security.Meta("issue_type", "weak_hash_driver", "driver", driver))
		}
	}

	if n, ok := configLookup(arr, "bcrypt", "rounds"); ok {
		if rounds, ok := configInt(n); ok {
			switch {
			case rounds < a.bcryptMin:
				add(n, security.SeverityCritical,
					fmt.Sprintf("Bcrypt rounds (%d) are below the minimum of %d.", rounds, a.bcryptMin),
					fmt.Sprintf("Set bcrypt rounds to at least %d.", a.bcryptRecommended),
					security.Meta("issue_type", "weak_bcrypt_rounds", "rounds", rounds, "minimum", a.bcryptMin))
			case rounds < a.bcryptRecommended:
				add(n, security.SeverityLow,
					fmt.Sprintf("Bcrypt rounds (%d) are below the recommended %d.", rounds, a.bcryptRecommended),
					fmt.Sprintf("Set bcrypt rounds to %d or more.", a.bcryptRecommended),
					security.Meta("issue_type", "weak_bcrypt_rounds", "rounds", rounds, "recommended", a.bcryptRecommended))
			}
		}
	}

	argon := []struct {
		key, label string
		min        int
		sev        security.Severity
	}{
		{"memory", "memory", a.argonMemory, security.SeverityHigh},
		{"time", "time cost", a.argonTime, security.SeverityMedium},
		{"threads", "threads", a.argonThreads, security.SeverityLow},
	}
	for _, p := range argon {
		n, ok := configLookup(arr, "argon", p.key)
		if !ok {
			continue
		}
		v, ok := configInt(n)
		if !ok || v >= p.min {
			continue
		}
		add(n, p.sev,
			fmt.Sprintf("Argon %s (%d) is below the minimum of %d.", p.label, v, p.min),
			fmt.Sprintf("Set argon %s to at least %d.", p.key, p.min),
			security.Meta("issue_type", "weak_argon_"+p.key, p.key, v, "minimum", p.min))
	}
	return issues
}

func (a *PasswordSecurity) checkCode(file string, root *ast.Node, im ast.Imports) []security.Issue {
	var issues []security.Issue
	seen := map[string]bool{}
	add := func(is security.Issue, n *ast.Node) {
		key := fmt.Sprintf("%d:%s:%s", n.Line(), is.Metadata.String("issue_type"), is.Metadata.String("field"))
		if seen[key] || suppressed(root, n.Line()) {
			return
		}
		seen[key] = true
		is.Location = at(file, n)
		issues = append(issues, is)
	}

	weak := map[*ast.Node]bool{}
	for c := range ast.FindCalls(root, ast.AnyCall) {
		c = im.Normalize(c)
		if algo, ok := a.weakPasswordHash(c); ok {
			weak[c.Node] = true
			add(security.Issue{
				Message:        fmt.Sprintf("Password hashed with %s, which is not a password hashing algorithm.", algo),
				Severity:       security.SeverityHigh,
				Recommendation: "Use Hash::make() or bcrypt().",
				Metadata:       security.Meta("issue_type", "weak_password_hash", "algorithm", algo),
			}, c.Node)
			continue
		}
		if rounds, ok := a.weakHashRounds(c); ok {
			add(security.Issue{
				Message:        fmt.Sprintf("Password hashed with %d bcrypt rounds, below the minimum of %d.", rounds, a.bcryptMin),
				Severity:       security.SeverityHigh,
				Recommendation: "Drop the rounds option or raise it to the configured minimum.",
				Metadata:       security.Meta("issue_type", "weak_hash_rounds", "rounds", rounds, "minimum", a.bcryptMin),
			}, c.Node)
			continue
		}
		if c.Is(massWriteMethods...) {
			for _, p := range a.unsafePayloadPasswords(c, im) {
				add(p.Issue, p.node)
			}
		}
	}

	for n := range root.Descendants() {
		asg, ok := ast.AsAssignment(n)
		if !ok {
			continue
		}
		field, ok := passwordTarget(asg.Left)
		if !ok {
			continue
		}
		rhs := ast.Unwrap(asg.Right)
		if ast.IsTrivialLiteral(rhs) || weak[rhs] {
			continue
		}
		origin := provenance.ForNode(n, a.rules).WithImports(im).Classify(rhs)
		if origin == provenance.Safe {
			continue
		}
		add(plainTextIssue(field, origin), n)
	}
	return issues
}

// weakPasswordHash matches md5($password), sha1(...), crypt(...) and
// hash('md5', ...) applied to a password value.
func (a *PasswordSecurity) weakPasswordHash(c ast.Call) (string, bool) {
	if c.Kind != ast.FunctionCall {
		return "", false
	}
	var algo string
	var subject *ast.Node
	switch {
	case c.Is("md5", "sha1", "crc32", "crypt"):
		algo, subject = strings.ToLower(c.Name), c.Arg(0)
	case c.Is("hash"):
		s, ok := ast.LiteralString(c.Arg(0))
		if !ok || !weakHashAlgos[strings.ToLower(s)] {
			return "", false
		}
		algo, subject = strings.ToLower(s), c.Arg(1)
	default:
		return "", false
	}
	if subject == nil {
		return "", false
	}
	if mentionsPassword(subject) || assignedToPassword(c.Node) {
		return algo, true
	}
	return "", false
}

// assignedToPassword reports whether n is the value written to a
// password field or array key.
func assignedToPassword(n *ast.Node) bool {
	p := n.Parent()
	for p.Is(ast.KindParenthesized) {
		p = p.Parent()
	}
	if asg, ok := ast.AsAssignment(p); ok && ast.Unwrap(asg.Right) == n {
		_, ok := passwordTarget(asg.Left)
		return ok
	}
	if p.Is(ast.KindArrayElement) {
		if k := p.Child(0); k != nil && k != n {
			if s, ok := ast.LiteralString(k); ok {
				return isPasswordField(s)
			}
		}
	}
	return false
}

// weakHashRounds matches Hash::make($p, ['rounds' => n]) and
// bcrypt($p, ['rounds' => n]) with n below the minimum.
func (a *PasswordSecurity) weakHashRounds(c ast.Call) (int, bool) {
	isHash := (c.Kind == ast.StaticCall && strings.EqualFold(c.Class, "Hash") && c.Is("make")) ||
		(c.Kind == ast.FunctionCall && c.Is("bcrypt"))
	if !isHash {
		return 0, false
	}
	opts := c.Arg(1)
	if opts == nil {
		opts = c.NamedArg("options")
	}
	entries, ok := ast.ArrayEntriesInScope(ast.EnclosingScope(c.Node), opts)
	if !ok {
		return 0, false
	}
	v, ok := ast.Lookup(entries, "rounds")
	if !ok {
		return 0, false
	}
	rounds, ok := configInt(v)
	if !ok || rounds >= a.bcryptMin {
		return 0, false
	}
	return rounds, true
}

type payloadIssue struct {
	security.Issue
	node *ast.Node
}

// unsafePayloadPasswords reports password keys in attribute arrays whose
// value is raw request input. Unknown values are not reported here.
func (a *PasswordSecurity) unsafePayloadPasswords(c ast.Call, im ast.Imports) []payloadIssue {
	var out []payloadIssue
	scope := ast.EnclosingScope(c.Node)
	tracker := provenance.New(scope, a.rules).WithImports(im)
	for _, arg := range c.Args {
		entries, ok := ast.ArrayEntriesInScope(scope, arg.Value)
		if !ok {
			continue
		}
		for _, e := range entries {
			key, ok := e.KeyString()
			if !ok || !isPasswordField(key) {
				continue
			}
			if tracker.Classify(e.Value) != provenance.Unsafe {
				continue
			}
			is := plainTextIssue(key, provenance.Unsafe)
			is.Metadata = is.Metadata.With("method", c.Name)
			out = append(out, payloadIssue{Issue: is, node: e.Value})
		}
	}
	return out
}

// passwordTarget matches $model->password, $data['password'] and
// $this->attributes['password'].
func passwordTarget(left *ast.Node) (string, bool) {
	switch left.Kind() {
	case ast.KindMemberAccess, ast.KindNullsafeMemberAccess:
		name := memberName(left)
		return name, isPasswordField(name)
	case ast.KindSubscript:
		key, ok := ast.LiteralString(left.Child(1))
		return key, ok && isPasswordField(key)
	}
	return "", false
}

func plainTextIssue(field string, origin provenance.Origin) security.Issue {
	return security.Issue{
		Message:        fmt.Sprintf("Value assigned to %q is not hashed.", field),
		Severity:       security.SeverityMedium,
		Recommendation: "Hash the password with Hash::make() before storing it, or cast the attribute as 'hashed'.",
		Metadata: security.Meta(
			"issue_type", "plain_text_password",
			"field", field,
			"origin", origin.String(),
		),
	}
}
