// Package analyzer provides the concrete Laravel checks. Each analyzer
// implements security.Analyzer, reads its thresholds and tables from the
// settings tree and builds its own parser, scope stacks and provenance
// trackers per run.
package analyzer

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/julianshen/larashield/internal/ast"
	"github.com/julianshen/larashield/internal/composer"
	"github.com/julianshen/larashield/internal/config"
	"github.com/julianshen/larashield/internal/logging"
	"github.com/julianshen/larashield/internal/parser"
	"github.com/julianshen/larashield/internal/security"
)

// IgnoreMarker in the comment directly above a line suppresses issues
// reported on that line.
const IgnoreMarker = "larashield:ignore"

// Options are shared by every analyzer constructor.
type Options struct {
	Settings *config.Settings
	Logger   *zap.Logger
	// Tool runs composer for the stable-dependencies dry run. When nil a
	// composer CLI rooted at the base path is used.
	Tool composer.DependencyTool
}

func (o Options) settings() *config.Settings {
	if o.Settings == nil {
		return config.DefaultSettings()
	}
	return o.Settings
}

// base carries the lifecycle state common to all analyzers.
type base struct {
	desc         security.Descriptor
	settings     *config.Settings
	logger       *zap.Logger
	basePath     string
	paths        []string
	defaultPaths []string
	exclude      []string
	excludeSet   bool
}

func newBase(desc security.Descriptor, opts Options, defaultPaths ...string) base {
	return base{
		desc:         desc,
		settings:     opts.settings(),
		logger:       logging.OrNop(opts.Logger).Named(desc.ID),
		defaultPaths: defaultPaths,
	}
}

var _ security.Excluder = (*base)(nil)

// Descriptor returns the analyzer's static description.
func (b *base) Descriptor() security.Descriptor { return b.desc }

// SetBasePath sets the project root every path is relative to.
func (b *base) SetBasePath(path string) { b.basePath = path }

// SetPaths replaces the default scan roots.
func (b *base) SetPaths(paths []string) { b.paths = slices.Clone(paths) }

// SetExclude replaces the excluded path globs read from paths.exclude.
func (b *base) SetExclude(globs []string) {
	b.exclude = slices.Clone(globs)
	b.excludeSet = true
}

func (b *base) excluded() []string {
	if b.excludeSet {
		return b.exclude
	}
	return b.settings.StringSlice("paths.exclude", nil)
}

func (b *base) roots() []string {
	if len(b.paths) > 0 {
		return b.paths
	}
	return b.defaultPaths
}

func (b *base) abs(rel string) string {
	return filepath.Join(b.basePath, filepath.FromSlash(rel))
}

func (b *base) exists(rel string) bool {
	_, err := os.Stat(b.abs(rel))
	return err == nil
}

// anyRootExists reports whether at least one scan root is present.
func (b *base) anyRootExists() bool {
	return slices.ContainsFunc(b.roots(), b.exists)
}

// readOptional returns a file's contents, or nil when it does not exist.
func (b *base) readOptional(rel string) ([]byte, error) {
	data, err := os.ReadFile(b.abs(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// phpFiles lists the parseable PHP files under roots, honouring the
// excluded globs.
func (b *base) phpFiles(ctx context.Context, roots []string) ([]string, error) {
	files, err := security.ListFiles(ctx, b.basePath, roots, []string{".php"}, b.excluded())
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(files, func(f string) bool { return !parser.Supported(f) }), nil
}

// parseEach parses files one at a time and calls fn with each tree and its
// use-statement imports. Files that fail to parse are logged and skipped.
// The context is checked between files.
func (b *base) parseEach(ctx context.Context, files []string, fn func(file string, root *ast.Node, imports ast.Imports)) error {
	p := parser.NewParser()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		tree, err := p.ParseFile(b.abs(f))
		if err != nil {
			b.logger.Debug("skipping file", zap.String("file", f), zap.Error(err))
			continue
		}
		fn(f, tree.Root(), tree.Imports())
		tree.Close()
	}
	return nil
}

// parseOne parses a single optional file. It returns nil when the file is
// missing or does not parse.
func (b *base) parseOne(rel string) *ast.Node {
	if !b.exists(rel) {
		return nil
	}
	tree, err := parser.NewParser().ParseFile(b.abs(rel))
	if err != nil {
		b.logger.Debug("skipping file", zap.String("file", rel), zap.Error(err))
		return nil
	}
	defer tree.Close()
	return tree.Root()
}

// suppressed reports whether the comment above line carries IgnoreMarker.
func suppressed(root *ast.Node, line int) bool {
	return strings.Contains(ast.LeadingComment(root, line), IgnoreMarker)
}

// at returns the location of n in file.
func at(file string, n *ast.Node) security.Location {
	return security.Location{File: file, Line: n.Line(), Column: n.Column()}
}

// nonNil keeps empty lists serialising as [] rather than null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
