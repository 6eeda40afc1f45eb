package provenance

// Rules are the name tables the tracker classifies calls against. Function
// and method names are matched case-insensitively, as PHP does.
type Rules struct {
	// SafeFunctions hash or otherwise neutralise their first argument.
	SafeFunctions []string
	// SafeStatic maps a facade alias to the methods on it that hash.
	SafeStatic map[string][]string
	// HasherMethods hash when called on a receiver whose name mentions a
	// hasher, e.g. $hasher->make($p) or app('hash')->make($p).
	HasherMethods []string
	// FilteringMethods return validated or whitelisted input regardless of
	// the receiver: $request->validated(), $validator->safe().
	FilteringMethods []string
	// RequestFilteringMethods return whitelisted input only when called on
	// a request: $request->only('name').
	RequestFilteringMethods []string
	// RawAccessors return unfiltered request input when called on a
	// request. Arguments select fields; they do not filter them.
	RawAccessors []string
	// PassThroughFunctions transform their first argument without changing
	// where it came from.
	PassThroughFunctions []string
	// PassThroughStatic maps a helper class to its pass-through methods.
	PassThroughStatic map[string][]string
	// Mergers combine their array arguments.
	Mergers []string
	// Superglobals are raw input arrays.
	Superglobals []string
}

// DefaultRules returns the Laravel rule tables.
func DefaultRules() Rules {
	return Rules{
		SafeFunctions: []string{
			"bcrypt", "password_hash", "sodium_crypto_pwhash_str",
		},
		SafeStatic: map[string][]string{
			"Hash": {"make"},
		},
		HasherMethods: []string{"make"},
		FilteringMethods: []string{
			"validated", "safe", "validate", "validateWithBag",
		},
		RequestFilteringMethods: []string{"only"},
		RawAccessors: []string{
			"all", "input", "get", "post", "query", "json", "except",
			"collect", "string", "str", "getContent", "toArray",
		},
		PassThroughFunctions: []string{
			"trim", "ltrim", "rtrim", "strtolower", "strtoupper", "ucfirst",
			"lcfirst", "ucwords", "strval", "mb_strtolower", "mb_strtoupper",
			"stripslashes", "htmlspecialchars", "strip_tags", "e",
		},
		PassThroughStatic: map[string][]string{
			"Str": {"lower", "upper", "trim", "squish", "title", "ucfirst", "lcfirst"},
		},
		Mergers: []string{"array_merge", "array_replace", "array_merge_recursive"},
		Superglobals: []string{
			"_POST", "_GET", "_REQUEST", "_COOKIE", "_FILES",
		},
	}
}

func contains(list []string, name string) bool {
	for _, s := range list {
		if equalFold(s, name) {
			return true
		}
	}
	return false
}

func staticContains(table map[string][]string, class, method string) bool {
	for alias, methods := range table {
		if equalFold(alias, class) && contains(methods, method) {
			return true
		}
	}
	return false
}
