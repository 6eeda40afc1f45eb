package analyzer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/julianshen/larashield/internal/composer"
	"github.com/julianshen/larashield/internal/security"
)

const composerLock = "composer.lock"

// DefaultAllowedLicenses are the permissive SPDX identifiers accepted
// without review.
var DefaultAllowedLicenses = []string{
	"MIT", "MIT-0", "Apache-2.0", "BSD-2-Clause", "BSD-3-Clause", "ISC", "0BSD",
	"Unlicense", "CC0-1.0", "Zlib", "PHP-3.0", "PHP-3.01", "MPL-2.0",
	"LGPL-2.1", "LGPL-3.0", "BSL-1.0", "Artistic-2.0", "WTFPL", "Python-2.0",
}

// DefaultDeniedLicenses are identifier prefixes that impose obligations a
// closed-source application cannot meet.
var DefaultDeniedLicenses = []string{
	"GPL-", "AGPL-", "SSPL", "CC-BY-NC", "OSL-", "EUPL-",
}

var licenseDescriptor = security.Descriptor{
	ID:          "license",
	Name:        "License Compliance",
	Description: "Checks the licenses of locked composer packages against the allowed and denied lists.",
	Category:    security.CategoryLicenseCompliance,
	DocsURL:     "https://spdx.org/licenses/",
	RunInCI:     true,
	CountsInfo:  true,
}

// License checks composer.lock package licenses.
type License struct {
	base
	allowed    []string
	denied     []string
	includeDev bool
}

// NewLicense creates the license analyzer.
func NewLicense(opts Options) *License {
	a := &License{base: newBase(licenseDescriptor, opts)}
	a.allowed = a.settings.StringSlice("security.license.allowed", DefaultAllowedLicenses)
	a.denied = a.settings.StringSlice("security.license.denied", DefaultDeniedLicenses)
	a.includeDev = a.settings.Bool("security.license.include_dev", false)
	return a
}

// ShouldRun reports whether composer.lock exists.
func (a *License) ShouldRun() bool { return a.exists(composerLock) }

// SkipReason explains a skipped run.
func (a *License) SkipReason() string { return "No composer.lock found." }

// Analyze evaluates every locked package. An unreadable lock file is
// logged and produces no issues.
func (a *License) Analyze(ctx context.Context) ([]security.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := a.readOptional(composerLock)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	lock, err := composer.ParseLock(data, a.includeDev)
	if err != nil {
		a.logger.Warn("ignoring malformed lock file", zap.String("file", composerLock), zap.Error(err))
		return nil, nil
	}
	if lock.Skipped > 0 {
		a.logger.Debug("skipped undecodable lock entries", zap.Int("count", lock.Skipped))
	}

	lines := packageLines(data)
	var issues []security.Issue
	for _, pkg := range lock.Packages {
		if issue, ok := a.check(pkg); ok {
			issue.Location = security.Location{File: composerLock, Line: lines[pkg.Name]}
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

func (a *License) check(pkg composer.Package) (security.Issue, bool) {
	expr := strings.Join(pkg.License, " or ")
	meta := func(issueType string) security.Metadata {
		return security.Meta(
			"issue_type", issueType,
			"package", pkg.Name,
			"version", pkg.Version,
			"license", expr,
			"dev", pkg.Dev,
		)
	}

	if len(pkg.License) == 0 {
		return security.Issue{
			Message:        fmt.Sprintf("Package %s declares no license.", pkg.Name),
			Severity:       security.SeverityLow,
			Recommendation: "Confirm the package's licensing terms with its maintainers before shipping it.",
			Metadata:       meta("missing_license"),
		}, true
	}

	// A composer license array is a choice between its entries.
	terms := make([]*licenseExpr, 0, len(pkg.License))
	for _, l := range pkg.License {
		e, err := parseLicense(l)
		if err != nil {
			return a.unrecognised(pkg, expr, meta), true
		}
		terms = append(terms, e)
	}
	root := terms[0]
	if len(terms) > 1 {
		root = &licenseExpr{op: opOr, terms: terms}
	}

	switch a.evaluate(root) {
	case licenseAllowed:
		return security.Issue{}, false
	case licenseUnknown:
		return a.unrecognised(pkg, expr, meta), true
	}

	var msg string
	switch {
	case root.op == opAnd:
		msg = fmt.Sprintf("Package %s is licensed under the conjunctive expression %q; ALL apply and %s is denied.",
			pkg.Name, expr, strings.Join(a.deniedTerms(root), ", "))
	case root.op == opOr:
		msg = fmt.Sprintf("Package %s offers only denied licenses: %s.", pkg.Name, expr)
	default:
		msg = fmt.Sprintf("Package %s uses the denied license %s.", pkg.Name, expr)
	}
	return security.Issue{
		Message:        msg,
		Severity:       security.SeverityHigh,
		Recommendation: "Replace the package, obtain a commercial license, or add the license to security.license.allowed after legal review.",
		Metadata:       meta("denied_license"),
	}, true
}

func (a *License) unrecognised(pkg composer.Package, expr string, meta func(string) security.Metadata) security.Issue {
	return security.Issue{
		Message:        fmt.Sprintf("Package %s uses the unrecognised license %q.", pkg.Name, expr),
		Severity:       security.SeverityInfo,
		Recommendation: "Review the license and add it to security.license.allowed or security.license.denied.",
		Metadata:       meta("unrecognised_license"),
	}
}

type licenseStatus int

const (
	licenseUnknown licenseStatus = iota
	licenseAllowed
	licenseDenied
)

// evaluate resolves an expression: a disjunction is allowed when any
// term is, a conjunction is denied when any term is.
func (a *License) evaluate(e *licenseExpr) licenseStatus {
	switch e.op {
	case opOr:
		denied := 0
		for _, t := range e.terms {
			switch a.evaluate(t) {
			case licenseAllowed:
				return licenseAllowed
			case licenseDenied:
				denied++
			}
		}
		if denied == len(e.terms) {
			return licenseDenied
		}
		return licenseUnknown
	case opAnd:
		allowed := 0
		for _, t := range e.terms {
			switch a.evaluate(t) {
			case licenseDenied:
				return licenseDenied
			case licenseAllowed:
				allowed++
			}
		}
		if allowed == len(e.terms) {
			return licenseAllowed
		}
		return licenseUnknown
	}
	switch {
	case a.isDenied(e.id):
		return licenseDenied
	case a.isAllowed(e.id):
		return licenseAllowed
	}
	return licenseUnknown
}

// deniedTerms lists the leaf identifiers of e that are denied.
func (a *License) deniedTerms(e *licenseExpr) []string {
	if e.op == "" {
		if a.isDenied(e.id) {
			return []string{e.id}
		}
		return nil
	}
	var out []string
	for _, t := range e.terms {
		out = append(out, a.deniedTerms(t)...)
	}
	return out
}

func (a *License) isAllowed(id string) bool {
	id = normaliseLicense(id)
	return slices.ContainsFunc(a.allowed, func(s string) bool { return strings.EqualFold(normaliseLicense(s), id) })
}

// isDenied matches an identifier exactly or by a dash-delimited prefix, so
// "GPL-" denies GPL-3.0 and "SSPL" denies SSPL-1.0 but neither denies LGPL.
func (a *License) isDenied(id string) bool {
	id = strings.ToUpper(normaliseLicense(id))
	for _, d := range a.denied {
		d = strings.ToUpper(d)
		if id == d {
			return true
		}
		if strings.HasPrefix(id, d) && (strings.HasSuffix(d, "-") || id[len(d)] == '-') {
			return true
		}
	}
	return false
}

// normaliseLicense strips version qualifiers that do not change the
// license family.
func normaliseLicense(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimSuffix(id, "+")
	for _, suffix := range []string{"-only", "-or-later"} {
		if len(id) > len(suffix) && strings.EqualFold(id[len(id)-len(suffix):], suffix) {
			id = id[:len(id)-len(suffix)]
		}
	}
	return id
}

const (
	opOr  = "or"
	opAnd = "and"
)

// licenseExpr is a parsed SPDX expression: a leaf identifier or an
// operator over terms.
type licenseExpr struct {
	op    string
	id    string
	terms []*licenseExpr
}

// parseLicense parses an SPDX expression with AND, OR, WITH and
// parentheses. Operators are case-insensitive. A WITH exception is
// dropped; the license it qualifies is what gets evaluated.
func parseLicense(s string) (*licenseExpr, error) {
	p := &licenseParser{tokens: tokenizeLicense(s)}
	if len(p.tokens) == 0 {
		return nil, fmt.Errorf("empty license expression")
	}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("unexpected %q in license expression", p.tokens[p.pos])
	}
	return e, nil
}

func tokenizeLicense(s string) []string {
	s = strings.NewReplacer("(", " ( ", ")", " ) ").Replace(s)
	return strings.Fields(s)
}

type licenseParser struct {
	tokens []string
	pos    int
}

func (p *licenseParser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *licenseParser) parseOr() (*licenseExpr, error) {
	return p.parseBinary(opOr, p.parseAnd)
}

func (p *licenseParser) parseAnd() (*licenseExpr, error) {
	return p.parseBinary(opAnd, p.parseWith)
}

func (p *licenseParser) parseBinary(op string, next func() (*licenseExpr, error)) (*licenseExpr, error) {
	first, err := next()
	if err != nil {
		return nil, err
	}
	terms := []*licenseExpr{first}
	for strings.EqualFold(p.peek(), op) {
		p.pos++
		t, err := next()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &licenseExpr{op: op, terms: terms}, nil
}

func (p *licenseParser) parseWith() (*licenseExpr, error) {
	e, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(p.peek(), "with") {
		p.pos += 2
		if p.pos > len(p.tokens) {
			return nil, fmt.Errorf("WITH without an exception")
		}
	}
	return e, nil
}

func (p *licenseParser) parseAtom() (*licenseExpr, error) {
	tok := p.peek()
	switch {
	case tok == "":
		return nil, fmt.Errorf("unexpected end of license expression")
	case tok == "(":
		p.pos++
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("unbalanced parentheses in license expression")
		}
		p.pos++
		return e, nil
	case tok == ")", strings.EqualFold(tok, opAnd), strings.EqualFold(tok, opOr), strings.EqualFold(tok, "with"):
		return nil, fmt.Errorf("unexpected %q in license expression", tok)
	}
	p.pos++
	return &licenseExpr{id: tok}, nil
}

var lockName = regexp.MustCompile(`"name"\s*:\s*"([^"]+)"`)

// packageLines maps each package name to the composer.lock line that
// declares it.
func packageLines(data []byte) map[string]int {
	out := make(map[string]int)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if m := lockName.FindSubmatch(scanner.Bytes()); m != nil {
			if _, seen := out[string(m[1])]; !seen {
				out[string(m[1])] = line
			}
		}
	}
	return out
}
