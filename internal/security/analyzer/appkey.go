package analyzer

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"

	"github.com/julianshen/larashield/internal/ast"
	"github.com/julianshen/larashield/internal/config"
	"github.com/julianshen/larashield/internal/security"
)

const (
	dotenvFile    = ".env"
	appConfigFile = "config/app.php"
	defaultCipher = "AES-256-CBC"
)

// DefaultAllowedCiphers are the ciphers Laravel's encrypter supports.
var DefaultAllowedCiphers = []string{"AES-128-CBC", "AES-256-CBC", "AES-128-GCM", "AES-256-GCM"}

var appKeyDescriptor = security.Descriptor{
	ID:          "app-key",
	Name:        "Application Key",
	Description: "Checks that APP_KEY is set, well formed and not committed in config/app.php, and that the cipher is supported.",
	Category:    security.CategoryCryptography,
	DocsURL:     "https://laravel.com/docs/encryption#configuration",
	RunInCI:     true,
	CountsInfo:  true,
}

// AppKey checks the application encryption key and cipher.
type AppKey struct {
	base
	ciphers []string
}

// NewAppKey creates the app-key analyzer.
func NewAppKey(opts Options) *AppKey {
	a := &AppKey{base: newBase(appKeyDescriptor, opts)}
	a.ciphers = a.settings.StringSlice("security.app_key.allowed_ciphers", DefaultAllowedCiphers)
	return a
}

// ShouldRun reports whether .env or config/app.php exists.
func (a *AppKey) ShouldRun() bool { return a.exists(dotenvFile) || a.exists(appConfigFile) }

// SkipReason explains a skipped run.
func (a *AppKey) SkipReason() string { return "No .env or config/app.php found." }

// Analyze checks config/app.php first so the .env key length can be
// matched against the configured cipher.
func (a *AppKey) Analyze(ctx context.Context) ([]security.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cipher := defaultCipher
	var issues []security.Issue
	if root := a.parseOne(appConfigFile); root != nil {
		var configIssues []security.Issue
		cipher, configIssues = a.checkConfig(root)
		issues = append(issues, configIssues...)
	}

	env, err := config.LoadDotenv(a.abs(dotenvFile))
	if err != nil {
		return nil, err
	}
	if env != nil {
		issues = append(issues, a.checkDotenv(env, cipher)...)
	}
	return issues, nil
}

func (a *AppKey) checkConfig(root *ast.Node) (string, []security.Issue) {
	cipher := defaultCipher
	arr := returnedArray(root)
	if arr == nil {
		return cipher, nil
	}
	var issues []security.Issue

	if node, ok := configLookup(arr, "key"); ok && !suppressed(root, node.Line()) {
		value, envVar := configValue(node)
		if key, ok := ast.LiteralString(value); ok && key != "" {
			msg := "config/app.php hardcodes the application key."
			if envVar != "" {
				msg = fmt.Sprintf("config/app.php falls back to a hardcoded application key when %s is unset.", envVar)
			}
			issues = append(issues, security.Issue{
				Message:        msg,
				Severity:       security.SeverityHigh,
				Location:       at(appConfigFile, node),
				Recommendation: "Read the key with env('APP_KEY') and no default, then rotate the committed key.",
				Metadata:       security.Meta("issue_type", "hardcoded_app_key", "env", envVar),
			})
		}
	}

	if node, ok := configLookup(arr, "cipher"); ok {
		if c, ok := configString(node); ok {
			cipher = c
			if !a.cipherAllowed(c) && !suppressed(root, node.Line()) {
				issues = append(issues, security.Issue{
					Message:        fmt.Sprintf("Cipher %q is not an allowed encryption cipher.", c),
					Severity:       security.SeverityHigh,
					Location:       at(appConfigFile, node),
					Recommendation: fmt.Sprintf("Use one of %s.", strings.Join(a.ciphers, ", ")),
					Metadata:       security.Meta("issue_type", "weak_cipher", "cipher", c),
				})
			}
		}
	}
	return cipher, issues
}

func (a *AppKey) cipherAllowed(c string) bool {
	return slices.ContainsFunc(a.ciphers, func(s string) bool { return strings.EqualFold(s, c) })
}

func (a *AppKey) checkDotenv(env *config.Dotenv, cipher string) []security.Issue {
	loc := security.Location{File: dotenvFile, Line: env.Line("APP_KEY")}
	key, ok := env.Lookup("APP_KEY")
	if !ok || strings.TrimSpace(key) == "" {
		return []security.Issue{{
			Message:        "APP_KEY is missing or empty.",
			Severity:       security.SeverityCritical,
			Location:       loc,
			Recommendation: "Run php artisan key:generate.",
			Metadata:       security.Meta("issue_type", "missing_app_key"),
		}}
	}

	encoded, ok := strings.CutPrefix(key, "base64:")
	if !ok {
		return []security.Issue{{
			Message:        "APP_KEY is not base64 encoded.",
			Severity:       security.SeverityHigh,
			Location:       loc,
			Recommendation: "Generate a random key with php artisan key:generate.",
			Metadata:       security.Meta("issue_type", "invalid_app_key_format"),
		}}
	}

	want := keyLength(cipher)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(decoded) != want {
		got := len(decoded)
		if err != nil {
			got = 0
		}
		return []security.Issue{{
			Message:        fmt.Sprintf("APP_KEY decodes to %d bytes; %s needs %d.", got, cipher, want),
			Severity:       security.SeverityHigh,
			Location:       loc,
			Recommendation: "Generate a key for the configured cipher with php artisan key:generate.",
			Metadata:       security.Meta("issue_type", "invalid_app_key_length", "length", got, "cipher", cipher),
		}}
	}
	return nil
}

// keyLength returns the key size in bytes for an AES cipher name.
func keyLength(cipher string) int {
	if strings.Contains(strings.ToUpper(cipher), "128") {
		return 16
	}
	return 32
}
