// Package output renders a security report as JSON, SARIF or Markdown.
package output

import (
	"fmt"

	"github.com/julianshen/larashield/internal/security"
)

// Formatter renders a report in one output format.
type Formatter interface {
	Name() string
	Format(report *security.Report) ([]byte, error)
}

// Formats lists the supported format names.
var Formats = []string{"json", "sarif", "markdown"}

// ForName returns the formatter for a format name. version and
// descriptors are used by the SARIF formatter only.
func ForName(name, version string, descriptors []security.Descriptor) (Formatter, error) {
	switch name {
	case "json":
		return NewJSONFormatter(), nil
	case "sarif":
		return NewSARIFFormatter(version, descriptors...), nil
	case "markdown", "md":
		return NewMarkdownFormatter(), nil
	}
	return nil, fmt.Errorf("unknown output format %q (want one of %v)", name, Formats)
}
