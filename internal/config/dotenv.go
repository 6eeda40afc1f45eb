package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/subosito/gotenv"
)

// Dotenv is a parsed .env file. Definition lines are kept so findings can
// point at them.
type Dotenv struct {
	values map[string]string
	lines  map[string]int
}

// Lookup returns the value of key and whether it is defined.
func (d *Dotenv) Lookup(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d.values[key]
	return v, ok
}

// Line returns the 1-based line key was last defined on, or 0.
func (d *Dotenv) Line(key string) int {
	if d == nil {
		return 0
	}
	return d.lines[key]
}

var assignment = regexp.MustCompile(`^\s*(?:export\s+)?([A-Za-z_][A-Za-z0-9_.]*)\s*=`)

// ParseDotenv parses a .env file with gotenv. Lines that are not
// assignments are dropped before parsing so one stray line does not hide
// the rest of the file. A later definition of a key wins.
func ParseDotenv(data []byte) *Dotenv {
	d := &Dotenv{lines: map[string]int{}}
	var kept []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		m := assignment.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		d.lines[m[1]] = lineNum
		kept = append(kept, line)
	}

	env, err := gotenv.StrictParse(strings.NewReader(strings.Join(kept, "\n")))
	if err != nil {
		// Fall back to line-at-a-time so a malformed value only loses its
		// own key.
		env = gotenv.Env{}
		for _, line := range kept {
			one, err := gotenv.StrictParse(strings.NewReader(line))
			if err != nil {
				continue
			}
			for k, v := range one {
				env[k] = v
			}
		}
	}
	d.values = env
	for key := range d.lines {
		if _, ok := env[key]; !ok {
			delete(d.lines, key)
		}
	}
	return d
}

// LoadDotenv reads a .env file. It returns nil and no error when the file
// does not exist.
func LoadDotenv(path string) (*Dotenv, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseDotenv(data), nil
}
