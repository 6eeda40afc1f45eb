package security

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/julianshen/larashield/internal/logging"
)

// RunnerConfig controls the behavior of the runner.
type RunnerConfig struct {
	BasePath    string
	Paths       []string // overrides every analyzer's default scan roots when set
	Concurrency int      // maximum analyzers running at once
	Project     *ProjectConfig
	Logger      *zap.Logger
}

// Runner executes a set of analyzers against one base path. Each analyzer
// writes into its own result slot, so analyzers share no mutable state.
type Runner struct {
	config    RunnerConfig
	analyzers []Analyzer
	logger    *zap.Logger
}

// NewRunner creates a runner for the given analyzers.
func NewRunner(config RunnerConfig, analyzers ...Analyzer) *Runner {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Runner{
		config:    config,
		analyzers: analyzers,
		logger:    logging.OrNop(config.Logger).Named("runner"),
	}
}

// Report is the result of running every enabled analyzer once.
type Report struct {
	RunID     string        `json:"run_id"`
	BasePath  string        `json:"base_path"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Results   []Result      `json:"results"`
}

// Summary holds aggregate counts of a report.
type Summary struct {
	Passed   int `json:"passed"`
	Warning  int `json:"warning"`
	Failed   int `json:"failed"`
	Errored  int `json:"error"`
	Skipped  int `json:"skipped"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
	Issues   int `json:"issues"`
}

// Summary computes aggregate counts from the report's results.
func (r *Report) Summary() Summary {
	var s Summary
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomePassed:
			s.Passed++
		case OutcomeWarning:
			s.Warning++
		case OutcomeFailed:
			s.Failed++
		case OutcomeError:
			s.Errored++
		case OutcomeSkipped:
			s.Skipped++
		}
		for _, is := range res.Issues {
			switch is.Severity {
			case SeverityCritical:
				s.Critical++
			case SeverityHigh:
				s.High++
			case SeverityMedium:
				s.Medium++
			case SeverityLow:
				s.Low++
			case SeverityInfo:
				s.Info++
			}
			s.Issues++
		}
	}
	return s
}

// Issues returns every issue in the report, in result order.
func (r *Report) Issues() []Issue {
	var out []Issue
	for _, res := range r.Results {
		out = append(out, res.Issues...)
	}
	return out
}

// Run executes the enabled analyzers concurrently and returns their
// results in registration order. A failing or panicking analyzer yields
// an error result and never affects the others.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("runner cancelled before start: %w", err)
	}

	var enabled []Analyzer
	for _, a := range r.analyzers {
		if r.config.Project.Enabled(a.Descriptor().ID) {
			enabled = append(enabled, a)
		}
	}

	results := make([]Result, len(enabled))
	p := pool.New().WithMaxGoroutines(r.config.Concurrency)
	for i, a := range enabled {
		p.Go(func() {
			a.SetBasePath(r.config.BasePath)
			if len(r.config.Paths) > 0 {
				a.SetPaths(r.config.Paths)
			}
			if ex, ok := a.(Excluder); ok && r.config.Project != nil {
				ex.SetExclude(r.config.Project.Exclude)
			}
			results[i] = r.execute(ctx, a)
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("runner cancelled: %w", err)
	}

	return &Report{
		RunID:     uuid.NewString(),
		BasePath:  r.config.BasePath,
		StartedAt: start,
		Duration:  time.Since(start),
		Results:   results,
	}, nil
}

func (r *Runner) execute(ctx context.Context, a Analyzer) Result {
	d := a.Descriptor()
	log := r.logger.With(zap.String("analyzer", d.ID))
	var overrides []Override
	if r.config.Project != nil {
		overrides = r.config.Project.Overrides
	}

	res := Execute(ctx, a, overrides, log)
	switch res.Outcome {
	case OutcomeError:
		log.Warn("analyzer failed", zap.String("error", res.Message))
	case OutcomeSkipped:
		log.Debug("analyzer skipped", zap.String("reason", res.Message))
	default:
		log.Debug("analyzer finished",
			zap.String("outcome", string(res.Outcome)),
			zap.Int("issues", len(res.Issues)))
	}
	return res
}

// Execute runs one analyzer through its lifecycle: the ShouldRun gate,
// Analyze, severity overrides and outcome reduction. Panics are recovered
// into an error result.
func Execute(ctx context.Context, a Analyzer, overrides []Override, logger *zap.Logger) Result {
	d := a.Descriptor()
	logger = logging.OrNop(logger)

	var (
		res Result
		pc  panics.Catcher
	)
	pc.Try(func() {
		if !a.ShouldRun() {
			res = SkippedResult(d, a.SkipReason())
			return
		}
		issues, err := a.Analyze(ctx)
		if err != nil {
			res = ErrorResult(d, &AnalyzerError{Analyzer: d.ID, Err: err})
			return
		}
		issues, n := ApplyOverrides(d.ID, issues, overrides)
		if n > 0 {
			logger.Debug("severity overrides applied", zap.Int("issues", n))
		}
		res = NewResult(d, issues)
	})
	if rec := pc.Recovered(); rec != nil {
		return ErrorResult(d, &AnalyzerError{Analyzer: d.ID, Err: fmt.Errorf("%v", rec.Value), Panic: true})
	}
	return res
}
