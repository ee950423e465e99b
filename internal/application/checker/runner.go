package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/pkg/logger"
	"github.com/alem-hub/taskchecker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK RUNNER
// One run: optional plagiarism check, grading of every assigned student and
// delivery of the report.
// ══════════════════════════════════════════════════════════════════════════════

// RunnerConfig is the course and run configuration.
type RunnerConfig struct {
	Roster      grading.Roster
	Assignments []grading.Assignment
	Settings    grading.Settings

	// PlagiarismCandidates are student names or nicknames. The first one is
	// the base code. Empty disables the plagiarism check.
	PlagiarismCandidates []string

	// Workers overrides the worker count derived from Settings.RunInParallel.
	Workers int

	// DeliveryTimeout bounds publishing and delivering the report once
	// grading is over. Delivery outlives a cancelled run context.
	DeliveryTimeout time.Duration
}

// DefaultDeliveryTimeout is used when RunnerConfig.DeliveryTimeout is zero.
const DefaultDeliveryTimeout = 2 * time.Minute

// RunnerDeps are the collaborators of a Runner. Everything except Stages is
// optional.
type RunnerDeps struct {
	Stages     Stages
	Activity   ActivityQuery
	Plagiarism PlagiarismChecker
	Sink       ReportSink
	Progress   ProgressPublisher
	Clock      timeutil.Clock
	Logger     *slog.Logger
}

// Runner executes grading runs. A Runner may be reused for consecutive runs
// but never runs two at once.
type Runner struct {
	cfg             RunnerConfig
	items           []grading.WorkItem
	candidates      []grading.Student
	workers         int
	warnings        []string
	deliveryTimeout time.Duration

	pipeline   *Pipeline
	plagiarism PlagiarismChecker
	sync       RepositorySync
	sink       ReportSink
	progress   ProgressPublisher
	clock      timeutil.Clock
	logger     *slog.Logger

	running atomic.Bool
	lastRun atomic.Pointer[RunStats]
}

// RunStats describes the last completed run.
type RunStats struct {
	RunID        string
	StartedAt    time.Time
	Duration     time.Duration
	Students     int
	Degraded     int
	WorkerErrors int
	Workers      int
	Report       *grading.Report
}

// NewRunner validates the configuration and wires the pipeline. Every
// configuration error is reported here, before any student is graded.
//
// A wrong activity period is the exception: it is logged once, recorded as a
// report warning and grading continues without activity summaries.
func NewRunner(cfg RunnerConfig, deps RunnerDeps) (*Runner, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("check_runner"))

	if err := cfg.Roster.Validate(); err != nil {
		return nil, fmt.Errorf("invalid roster: %w", err)
	}
	if err := cfg.Settings.MarksMap.Validate(); err != nil {
		return nil, err
	}
	items, err := cfg.Roster.WorkItems(cfg.Assignments)
	if err != nil {
		return nil, fmt.Errorf("resolve assignments: %w", err)
	}

	r := &Runner{
		cfg:             cfg,
		items:           items,
		workers:         cfg.Workers,
		deliveryTimeout: cfg.DeliveryTimeout,
		plagiarism:      deps.Plagiarism,
		sync:            deps.Stages.Sync,
		sink:            deps.Sink,
		progress:        deps.Progress,
		clock:           deps.Clock,
		logger:          log,
	}
	if r.deliveryTimeout <= 0 {
		r.deliveryTimeout = DefaultDeliveryTimeout
	}
	if r.workers == 0 {
		r.workers = WorkerCount(cfg.Settings.RunInParallel)
	}
	if r.workers < 1 {
		return nil, grading.ErrInvalidWorkerCount.Withf("got %d", r.workers)
	}
	if r.clock == nil {
		r.clock = timeutil.SystemClock
	}

	var activity *ActivityCheck
	if deps.Activity != nil {
		activity, err = NewActivityCheck(deps.Activity, cfg.Settings.ControlPoints)
		if err != nil {
			log.Error("activity report disabled", logger.Err(err))
			r.warnings = append(r.warnings, err.Error())
			activity = nil
		}
	}

	r.pipeline, err = NewPipeline(deps.Stages, activity, PipelineConfig{CleanUp: cfg.Settings.CleanUp})
	if err != nil {
		return nil, err
	}

	if len(cfg.PlagiarismCandidates) > 0 {
		if r.plagiarism == nil {
			return nil, ErrMissingStage.Withf("plagiarism checker")
		}
		if len(cfg.PlagiarismCandidates) < 2 {
			return nil, grading.ErrNotEnoughPlagiarismCandidates.Withf("got %d", len(cfg.PlagiarismCandidates))
		}
		for _, name := range cfg.PlagiarismCandidates {
			s, err := cfg.Roster.StudentByName(name)
			if err != nil {
				return nil, fmt.Errorf("plagiarism candidate: %w", err)
			}
			r.candidates = append(r.candidates, s)
		}
	}

	return r, nil
}

// Items returns the work items of a run.
func (r *Runner) Items() []grading.WorkItem {
	out := make([]grading.WorkItem, len(r.items))
	copy(out, r.items)
	return out
}

// Workers returns the number of workers a run uses.
func (r *Runner) Workers() int { return r.workers }

// LastRun returns statistics of the last completed run, or nil.
func (r *Runner) LastRun() *RunStats { return r.lastRun.Load() }

// Run performs one grading run and returns its report.
//
// Worker errors and a failed plagiarism check do not fail the run; they are
// recorded in the report. An error is returned when workers could not start
// or when the report could not be delivered. In the latter case the report is
// returned as well.
//
// Cancelling ctx stops students that have not started yet. The report of the
// students graded so far is still published and delivered.
func (r *Runner) Run(ctx context.Context) (*grading.Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	runID := uuid.NewString()
	log := r.logger.With(logger.RunID(runID))
	ctx = logger.WithContext(ctx, log)

	report := grading.NewReport(runID, r.cfg.Roster, r.cfg.Settings, r.clock())
	report.Warnings = append(report.Warnings, r.warnings...)

	if len(r.candidates) > 0 {
		path, err := r.checkPlagiarism(ctx)
		if err != nil {
			log.Error("plagiarism check failed", logger.Err(err))
			report.Warnings = append(report.Warnings, fmt.Sprintf("plagiarism check: %v", err))
		} else {
			report.PlagiarismReport = path
			log.Info("plagiarism report created", slog.String("path", path))
		}
	}

	orchestrator := NewOrchestrator(r.pipeline, r.workers, log, WithResultHook(r.publishResult(runID)))
	result, err := orchestrator.Run(ctx, r.items)
	if result == nil {
		return nil, err
	}
	if err != nil {
		log.Error("some workers stopped early", logger.Err(err))
		for _, werr := range result.WorkerErrors {
			report.WorkerErrors = append(report.WorkerErrors, werr.Error())
		}
	}

	report.Complete(result.Results, r.clock())
	r.recordStats(report, result)

	if ctx.Err() != nil {
		log.Warn("run cancelled, delivering partial report", logger.Err(ctx.Err()))
	}
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.deliveryTimeout)
	defer cancel()

	if r.progress != nil {
		if err := r.progress.RunFinished(deliverCtx, report); err != nil {
			log.Warn("publish run finished", logger.Err(err))
		}
	}

	if r.sink != nil {
		if err := r.sink.Deliver(deliverCtx, report); err != nil {
			return report, fmt.Errorf("deliver report %s: %w", runID, err)
		}
	}

	log.Info("run completed",
		slog.Int("students", len(report.Results)),
		slog.Int("warnings", len(report.Warnings)),
	)
	return report, nil
}

func (r *Runner) checkPlagiarism(ctx context.Context) (string, error) {
	copies := make([]grading.WorkingCopy, 0, len(r.candidates))
	var errs []error
	for _, s := range r.candidates {
		wc, err := r.sync.Sync(ctx, s)
		if err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", s.ID(), err))
			continue
		}
		copies = append(copies, wc)
	}
	if err := errors.Join(errs...); err != nil {
		return "", err
	}
	return r.plagiarism.Check(ctx, copies)
}

func (r *Runner) publishResult(runID string) ResultHook {
	if r.progress == nil {
		return nil
	}
	return func(ctx context.Context, result grading.StudentResult) {
		if err := r.progress.StudentGraded(ctx, runID, result); err != nil {
			logger.FromContext(ctx).Warn("publish progress", logger.StudentID(result.Student.ID()), logger.Err(err))
		}
	}
}

func (r *Runner) recordStats(report *grading.Report, result *RunResult) {
	stats := &RunStats{
		RunID:        report.RunID,
		StartedAt:    report.StartedAt,
		Duration:     report.FinishedAt.Sub(report.StartedAt),
		Students:     len(report.Results),
		WorkerErrors: len(result.WorkerErrors),
		Workers:      result.Workers,
		Report:       report,
	}
	for _, res := range report.Results {
		if res.Degraded {
			stats.Degraded++
		}
	}
	r.lastRun.Store(stats)
}
