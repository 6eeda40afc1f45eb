// Package composer reads composer.json manifests and composer.lock files
// and wraps the composer CLI. Decoding is tolerant: entries with an
// unexpected shape are skipped instead of failing the whole file.
package composer

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
)

// Licenses is a composer license field. Composer accepts a single SPDX
// expression or an array of identifiers; both decode to a list.
type Licenses []string

// UnmarshalJSON accepts a string, an array of strings, or null.
func (l *Licenses) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			*l = nil
			return nil
		}
		*l = Licenses{single}
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("license must be a string or an array: %w", err)
	}
	out := Licenses{}
	for _, raw := range list {
		var s string
		if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// Manifest is the subset of composer.json the analyzers read.
type Manifest struct {
	Name             string
	License          Licenses
	MinimumStability string
	PreferStable     bool
	Require          map[string]string
	RequireDev       map[string]string
}

// ParseManifest decodes composer.json. Fields of the wrong type are left at
// their zero value.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing composer.json: %w", err)
	}
	m := &Manifest{}
	decodeField(raw, "name", &m.Name)
	decodeField(raw, "license", &m.License)
	decodeField(raw, "minimum-stability", &m.MinimumStability)
	decodeField(raw, "prefer-stable", &m.PreferStable)
	m.Require = stringMap(raw["require"])
	m.RequireDev = stringMap(raw["require-dev"])
	return m, nil
}

// Package is one locked package.
type Package struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	License Licenses `json:"license"`
	Dev     bool     `json:"-"`
}

// Lock is a decoded composer.lock.
type Lock struct {
	Packages []Package
	// Skipped counts entries that could not be decoded.
	Skipped int
}

// ParseLock decodes composer.lock. includeDev adds packages-dev entries,
// marked Dev.
func ParseLock(data []byte, includeDev bool) (*Lock, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing composer.lock: %w", err)
	}
	lock := &Lock{}
	lock.add(raw["packages"], false)
	if includeDev {
		lock.add(raw["packages-dev"], true)
	}
	return lock, nil
}

func (l *Lock) add(section json.RawMessage, dev bool) {
	if len(section) == 0 {
		return
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(section, &entries); err != nil {
		l.Skipped++
		return
	}
	for _, e := range entries {
		var p Package
		if err := json.Unmarshal(e, &p); err != nil || p.Name == "" {
			// A bad license field should not hide the package.
			var named struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			}
			if json.Unmarshal(e, &named) != nil || named.Name == "" {
				l.Skipped++
				continue
			}
			p = Package{Name: named.Name, Version: named.Version}
		}
		p.Dev = dev
		l.Packages = append(l.Packages, p)
	}
}

func decodeField(raw map[string]json.RawMessage, key string, dst any) {
	if v, ok := raw[key]; ok {
		_ = json.Unmarshal(v, dst)
	}
}

func stringMap(data json.RawMessage) map[string]string {
	out := make(map[string]string)
	if len(data) == 0 {
		return out
	}
	var raw map[string]json.RawMessage
	if json.Unmarshal(data, &raw) != nil {
		return out
	}
	for k, v := range raw {
		var s string
		if json.Unmarshal(v, &s) == nil {
			out[k] = s
		}
	}
	return out
}
