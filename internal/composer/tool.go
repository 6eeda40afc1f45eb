package composer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// ErrToolUnavailable is returned when the composer binary cannot be found.
var ErrToolUnavailable = errors.New("composer not available")

// DependencyTool runs a dry-run dependency update and returns its output.
type DependencyTool interface {
	DryRunUpdate(ctx context.Context) (string, error)
}

// CLI runs the composer binary in a project directory.
type CLI struct {
	Binary string // defaults to "composer"
	Dir    string
}

// NewCLI returns a CLI rooted at dir.
func NewCLI(dir string) *CLI {
	return &CLI{Binary: "composer", Dir: dir}
}

// DryRunArgs are the arguments passed to composer for the stability check.
var DryRunArgs = []string{
	"update", "--dry-run", "--prefer-stable", "--no-interaction", "--no-ansi", "--no-plugins", "--no-scripts",
}

// DryRunUpdate runs `composer update --dry-run --prefer-stable`. Output is
// returned even when composer exits non-zero, together with the error.
func (c *CLI) DryRunUpdate(ctx context.Context) (string, error) {
	bin := c.Binary
	if bin == "" {
		bin = "composer"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	}
	cmd := exec.CommandContext(ctx, path, DryRunArgs...)
	cmd.Dir = c.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("composer update --dry-run: %w", err)
	}
	return string(out), nil
}

// Change is one package operation reported by a dry run.
type Change struct {
	Operation string // Upgrading, Downgrading or Updating
	Package   string
	From      string
	To        string
}

var changeLine = regexp.MustCompile(`^\s*-\s+(Upgrading|Downgrading|Updating)\s+(\S+)\s+\(([^)]*?)\s+=>\s+([^)]*?)\)`)

// ParseDryRun extracts the version changes from dry-run output.
func ParseDryRun(output string) []Change {
	var changes []Change
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		m := changeLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		changes = append(changes, Change{
			Operation: m[1],
			Package:   m[2],
			From:      strings.TrimSpace(m[3]),
			To:        strings.TrimSpace(m[4]),
		})
	}
	return changes
}
