package analyzer

import (
	"github.com/julianshen/larashield/internal/security"
)

// constructors lists the analyzers in report order.
var constructors = []func(Options) security.Analyzer{
	func(o Options) security.Analyzer { return NewAuthentication(o) },
	func(o Options) security.Analyzer { return NewPasswordSecurity(o) },
	func(o Options) security.Analyzer { return NewMassAssignment(o) },
	func(o Options) security.Analyzer { return NewLicense(o) },
	func(o Options) security.Analyzer { return NewStableDependencies(o) },
	func(o Options) security.Analyzer { return NewAppKey(o) },
}

// All returns a fresh instance of every analyzer.
func All(opts Options) []security.Analyzer {
	out := make([]security.Analyzer, 0, len(constructors))
	for _, c := range constructors {
		out = append(out, c(opts))
	}
	return out
}

// Descriptors returns the static description of every analyzer.
func Descriptors() []security.Descriptor {
	out := make([]security.Descriptor, 0, len(constructors))
	for _, a := range All(Options{}) {
		out = append(out, a.Descriptor())
	}
	return out
}

// ByID returns a fresh instance of the analyzer with the given ID.
func ByID(id string, opts Options) (security.Analyzer, bool) {
	for _, a := range All(opts) {
		if a.Descriptor().ID == id {
			return a, true
		}
	}
	return nil, false
}
