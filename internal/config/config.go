// Package config holds the layered settings analyzers read their
// thresholds and tables from. Settings come from built-in defaults, a
// project file (.larashield.yaml or .larashield.toml), LARASHIELD_*
// environment variables and bound CLI flags, lowest precedence first.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides: LARASHIELD_CI_FAIL_ON sets
// ci.fail_on.
const EnvPrefix = "LARASHIELD"

// ProjectFiles are the project config file names, in lookup order.
var ProjectFiles = []string{".larashield.yaml", ".larashield.yml", ".larashield.toml"}

// Settings wraps a viper instance with dotted-path lookups that fall back
// to a caller default.
type Settings struct {
	v *viper.Viper
}

// New returns settings with no defaults.
func New() *Settings {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Settings{v: v}
}

// FromMap returns settings holding the tree m.
func FromMap(m map[string]any) *Settings {
	s := New()
	_ = s.Merge(m)
	return s
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	s := New()
	s.v.SetDefault("security.password.bcrypt_min_rounds", 10)
	s.v.SetDefault("security.password.bcrypt_recommended_rounds", 12)
	s.v.SetDefault("security.password.argon_min_memory", 65536)
	s.v.SetDefault("security.password.argon_min_time", 2)
	s.v.SetDefault("security.password.argon_min_threads", 1)
	s.v.SetDefault("security.license.include_dev", false)
	s.v.SetDefault("security.stable_dependencies.dry_run", false)
	s.v.SetDefault("security.app_key.allowed_ciphers", []string{"AES-128-CBC", "AES-256-CBC", "AES-128-GCM", "AES-256-GCM"})
	s.v.SetDefault("ci.fail_on", "high")
	return s
}

// Load returns the defaults merged with the YAML or TOML file at path,
// chosen by extension.
func Load(path string) (*Settings, error) {
	tree, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	s := DefaultSettings()
	if err := s.Merge(tree); err != nil {
		return nil, fmt.Errorf("merging %s: %w", path, err)
	}
	return s, nil
}

// LoadProject returns the defaults merged with the first project file
// found in dir, and that file's path. A missing project file is not an
// error.
func LoadProject(dir string) (*Settings, string, error) {
	for _, name := range ProjectFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, "", fmt.Errorf("checking %s: %w", path, err)
		}
		s, err := Load(path)
		if err != nil {
			return nil, "", err
		}
		return s, path, nil
	}
	return DefaultSettings(), "", nil
}

func decodeFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	tree := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &tree); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return tree, nil
}

// Merge deep-merges m over the current values; values in m win.
func (s *Settings) Merge(m map[string]any) error {
	return s.v.MergeConfigMap(m)
}

// Set overrides the value at a dotted path.
func (s *Settings) Set(path string, value any) {
	s.v.Set(path, value)
}

// BindFlag makes a changed command-line flag override path.
func (s *Settings) BindFlag(path string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("binding %s: no such flag", path)
	}
	return s.v.BindPFlag(path, flag)
}

// Get returns the value at a dotted path, or def when absent.
func (s *Settings) Get(path string, def any) any {
	if !s.v.IsSet(path) {
		return def
	}
	return s.v.Get(path)
}

// String returns the string at path, or def.
func (s *Settings) String(path, def string) string {
	v := s.Get(path, nil)
	if v == nil {
		return def
	}
	return cast.ToString(v)
}

// Int returns the integer at path, or def when absent or not numeric.
func (s *Settings) Int(path string, def int) int {
	n, err := cast.ToIntE(s.Get(path, def))
	if err != nil {
		return def
	}
	return n
}

// Bool returns the boolean at path, or def.
func (s *Settings) Bool(path string, def bool) bool {
	b, err := cast.ToBoolE(s.Get(path, def))
	if err != nil {
		return def
	}
	return b
}

// StringSlice returns the list at path, or def. A single string becomes a
// one-element list and null entries are dropped.
func (s *Settings) StringSlice(path string, def []string) []string {
	switch v := s.Get(path, nil).(type) {
	case nil:
		return def
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if e != nil {
				out = append(out, cast.ToString(e))
			}
		}
		return out
	default:
		out, err := cast.ToStringSliceE(v)
		if err != nil {
			return def
		}
		return out
	}
}
