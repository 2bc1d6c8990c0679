// Package batch discovers patient cases, runs the conversion pipeline over them
// on a worker pool and reports the outcome.
package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"rtstructgen/pkg/config"
	"rtstructgen/pkg/logging"
)

// LockFileName guards an output root against concurrent runs.
const LockFileName = ".rtstructgen.lock"

// Orchestrator runs a whole batch.
type Orchestrator struct {
	cfg      *config.Config
	logger   *zap.Logger
	progress io.Writer
	process  CaseFunc
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithProgressWriter sets where progress is drawn. A non-terminal writer
// switches to log lines. Defaults to os.Stderr.
func WithProgressWriter(w io.Writer) Option {
	return func(o *Orchestrator) { o.progress = w }
}

// WithCaseFunc replaces the per-case pipeline.
func WithCaseFunc(fn CaseFunc) Option {
	return func(o *Orchestrator) { o.process = fn }
}

// NewOrchestrator builds an orchestrator from cfg.
func NewOrchestrator(cfg *config.Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		progress: os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.process == nil {
		o.process = NewPipeline(cfg, o.logger).Process
	}
	return o
}

// Run checks the output root, discovers cases and processes them. The returned
// error is non-nil only when the run could not start; per-case failures are in
// the report, which always holds exactly one result per discovered case.
func (o *Orchestrator) Run(ctx context.Context, roots Roots) (*Report, error) {
	started := time.Now()

	if err := CheckOutputSafety(roots.SliceRoot, roots.OutputRoot); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(roots.OutputRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create output root: %w", err)
	}

	lockPath := filepath.Join(roots.OutputRoot, LockFileName)
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("output root %s is in use by another run (%s)", roots.OutputRoot, lockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			o.logger.Warn("failed to release output lock", zap.Error(err))
		}
	}()

	cases, err := Discover(roots, LayoutFromConfig(o.cfg))
	if err != nil {
		return nil, err
	}
	o.logger.Info("batch started",
		zap.Int("cases", len(cases)),
		zap.Int("workers", o.cfg.Processing.NumWorkers),
		zap.String("structure", o.cfg.Structure.Name),
		zap.String("output", roots.OutputRoot))

	progress := NewProgress(o.progress, len(cases), "converting", o.logger)
	results, err := RunCases(ctx, cases, o.cfg.Processing.NumWorkers, o.process, progress.Advance)
	progress.Finish()
	if err != nil {
		return nil, err
	}
	if len(results) != len(cases) {
		return nil, fmt.Errorf("internal error: %d results for %d cases", len(results), len(cases))
	}

	report := NewReport(o.cfg.Structure.Name, roots, started, results)
	if o.cfg.Output.WriteReport {
		path := filepath.Join(roots.OutputRoot, ReportFileName)
		if err := report.Save(path); err != nil {
			o.logger.Warn("failed to save report", zap.String("path", path), zap.Error(err))
		}
	}

	o.logger.Info("batch finished",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("took", report.Duration))
	return report, nil
}
