package ast

import "strings"

// Imports maps the aliases a file's `use` statements introduce to the fully
// qualified names they refer to. A nil Imports resolves nothing.
type Imports map[string]string

// Resolve returns the fully qualified name of a class reference as written
// in the file. Names whose first segment is not an imported alias are
// returned without a leading backslash.
func (im Imports) Resolve(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "\\") {
		return strings.TrimPrefix(name, "\\")
	}
	head, rest, qualified := strings.Cut(name, "\\")
	for alias, fqn := range im {
		if !strings.EqualFold(alias, head) {
			continue
		}
		if qualified {
			return fqn + "\\" + rest
		}
		return fqn
	}
	return name
}

// Canonical returns the short name a reference resolves to. With
// `use Illuminate\Support\Facades\Hash as Hasher;`, Hasher becomes Hash.
func (im Imports) Canonical(name string) string {
	return ShortName(im.Resolve(name))
}

// Normalize returns c with the class of a static call or object creation
// replaced by its canonical name.
func (im Imports) Normalize(c Call) Call {
	if len(im) == 0 || c.Class == "" {
		return c
	}
	switch c.Kind {
	case StaticCall:
		c.Class = im.Canonical(c.Class)
	case NewCall:
		c.Class = im.Canonical(c.Class)
		c.Name = c.Class
	}
	return c
}

// Match wraps m so that it sees calls with aliased classes resolved.
func (im Imports) Match(m CallMatcher) CallMatcher {
	if len(im) == 0 {
		return m
	}
	return func(c Call) bool { return m(im.Normalize(c)) }
}
