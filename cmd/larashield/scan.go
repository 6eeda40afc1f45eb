package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/julianshen/larashield/internal/config"
	"github.com/julianshen/larashield/internal/logging"
	"github.com/julianshen/larashield/internal/security"
	"github.com/julianshen/larashield/internal/security/analyzer"
	"github.com/julianshen/larashield/internal/security/output"
)

type scanOptions struct {
	configPath  string
	format      string
	failOn      string
	only        []string
	paths       []string
	concurrency int
	dryRun      bool
	logLevel    string
	logFormat   string
	outputPath  string
}

func scanCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan a Laravel project",
		Long: `Run every enabled analyzer against the project at path (default: the
current directory) and print the report.

Settings are read from --config, or from .larashield.yaml, .larashield.yml
or .larashield.toml in the project root. The command exits 1 when an
analyzer errors or an issue meets the fail-on severity.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := "."
			if len(args) == 1 {
				base = args[0]
			}
			return runScan(cmd, base, opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to a YAML or TOML settings file")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "markdown", "output format: json, sarif, markdown")
	cmd.Flags().StringVar(&opts.failOn, "fail-on", "", "lowest severity that fails the scan, or none (default from ci.fail_on)")
	cmd.Flags().StringSliceVar(&opts.only, "only", nil, "comma-separated analyzer IDs to run")
	cmd.Flags().StringSliceVar(&opts.paths, "path", nil, "scan root relative to the project, repeatable (default: per analyzer)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", runtime.NumCPU(), "analyzers run in parallel")
	cmd.Flags().BoolVar(&opts.dryRun, "composer-dry-run", false, "run composer update --dry-run for the stable-dependencies analyzer")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "console", "log format: console, json")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "write the report to a file instead of stdout")
	return cmd
}

func runScan(cmd *cobra.Command, base string, opts *scanOptions) error {
	abs, err := filepath.Abs(base)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", base, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("project path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project path %s is not a directory", abs)
	}

	logger, err := logging.New(logging.Options{Level: opts.logLevel, Format: opts.logFormat, Output: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	settings, source, err := loadSettings(abs, opts.configPath)
	if err != nil {
		return err
	}
	if source != "" {
		logger.Info("loaded settings", zap.String("file", source))
	}
	if err := bindFlags(cmd, settings); err != nil {
		return err
	}

	project, err := security.ProjectConfigFromSettings(settings)
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	for _, id := range project.Only {
		if _, ok := analyzer.ByID(id, analyzer.Options{}); !ok {
			return fmt.Errorf("unknown analyzer %q (see larashield analyzers)", id)
		}
	}

	formatter, err := output.ForName(opts.format, version, analyzer.Descriptors())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runner := security.NewRunner(security.RunnerConfig{
		BasePath:    abs,
		Paths:       opts.paths,
		Concurrency: opts.concurrency,
		Project:     project,
		Logger:      logger,
	}, analyzer.All(analyzer.Options{Settings: settings, Logger: logger})...)

	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	data, err := formatter.Format(report)
	if err != nil {
		return fmt.Errorf("formatting report: %w", err)
	}
	if err := writeReport(cmd.OutOrStdout(), opts.outputPath, formatter.Name(), data); err != nil {
		return err
	}
	printStatus(cmd.ErrOrStderr(), report)

	if code := security.ExitCode(report, project.FailOn); code != 0 {
		return &security.ExitError{Code: code}
	}
	return nil
}

// loadSettings reads an explicit settings file, or the project file in
// dir, over the defaults.
func loadSettings(dir, path string) (*config.Settings, string, error) {
	if path != "" {
		s, err := config.Load(path)
		return s, path, err
	}
	return config.LoadProject(dir)
}

// bindFlags lets changed command-line flags win over the settings file
// and environment.
func bindFlags(cmd *cobra.Command, s *config.Settings) error {
	bindings := []struct{ path, flag string }{
		{"ci.fail_on", "fail-on"},
		{"analyzers.only", "only"},
		{"security.stable_dependencies.dry_run", "composer-dry-run"},
	}
	for _, b := range bindings {
		if err := s.BindFlag(b.path, cmd.Flags().Lookup(b.flag)); err != nil {
			return err
		}
	}
	return nil
}

// writeReport writes data to path, or to out. Markdown on a terminal is
// rendered for display.
func writeReport(out io.Writer, path, format string, data []byte) error {
	if path != "" {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		return nil
	}
	if width, ok := terminalWidth(out); ok && format == "markdown" {
		rendered, err := renderMarkdown(string(data), width)
		if err == nil {
			_, err = io.WriteString(out, rendered)
			return err
		}
	}
	_, err := out.Write(data)
	return err
}
