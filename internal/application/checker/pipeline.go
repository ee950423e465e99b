package checker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT PIPELINE
// Runs every stage for one student. Failures become outcome values so that a
// broken task never stops the student's other tasks and a broken student
// never stops the batch.
// ══════════════════════════════════════════════════════════════════════════════

// Stages groups the collaborators of a Pipeline. Cleaner is only needed when
// PipelineConfig.CleanUp is set.
type Stages struct {
	Sync      RepositorySync
	Build     BuildCheck
	Test      TestCheck
	Docs      DocCheck
	Deadlines DeadlineCheck
	Cleaner   WorkspaceCleaner
}

func (s Stages) validate(cleanUp bool) error {
	switch {
	case s.Sync == nil:
		return ErrMissingStage.Withf("repository sync")
	case s.Build == nil:
		return ErrMissingStage.Withf("build check")
	case s.Test == nil:
		return ErrMissingStage.Withf("test check")
	case s.Docs == nil:
		return ErrMissingStage.Withf("doc check")
	case s.Deadlines == nil:
		return ErrMissingStage.Withf("deadline check")
	case cleanUp && s.Cleaner == nil:
		return ErrMissingStage.Withf("workspace cleaner")
	}
	return nil
}

// PipelineConfig holds per-run switches of the pipeline.
type PipelineConfig struct {
	// CleanUp removes the working copy once the student is graded.
	CleanUp bool
}

// Pipeline grades one student at a time. It holds no per-student state, so a
// single Pipeline is shared by every worker.
type Pipeline struct {
	stages   Stages
	activity *ActivityCheck
	cleanUp  bool
}

// NewPipeline creates a pipeline. activity may be nil, in which case no
// activity summary is produced.
func NewPipeline(stages Stages, activity *ActivityCheck, cfg PipelineConfig) (*Pipeline, error) {
	if err := stages.validate(cfg.CleanUp); err != nil {
		return nil, err
	}
	return &Pipeline{
		stages:   stages,
		activity: activity,
		cleanUp:  cfg.CleanUp,
	}, nil
}

// Run grades every task of item in order. It always returns a result; the
// logger is taken from ctx.
func (p *Pipeline) Run(ctx context.Context, item grading.WorkItem) grading.StudentResult {
	log := logger.FromContext(ctx).With(logger.StudentID(item.Student.ID()))
	start := time.Now()

	wc, err := p.stages.Sync.Sync(ctx, item.Student)
	if err != nil {
		log.Warn("repository sync failed, student degraded", logger.Err(err))
		return grading.DegradedStudent(item, fmt.Errorf("sync repository: %w", err))
	}
	if p.cleanUp {
		defer p.cleanUpCopy(ctx, wc, log)
	}

	result := grading.StudentResult{
		Student:  item.Student,
		Outcomes: make([]grading.StageOutcome, 0, len(item.Tasks)),
	}

	if p.activity != nil {
		summary, err := p.activity.Check(ctx, item.Student)
		if err != nil {
			log.Warn("activity check failed", logger.Err(err))
		} else {
			result.Activity = &summary
		}
	}

	for _, task := range item.Tasks {
		result.Outcomes = append(result.Outcomes, p.gradeTask(ctx, wc, task, log.With(logger.Task(task.ID))))
	}

	log.Info("student graded",
		slog.Float64("points", result.TaskPoints()),
		logger.Latency(time.Since(start)),
	)
	return result
}

func (p *Pipeline) gradeTask(ctx context.Context, wc grading.WorkingCopy, task grading.Task, log *slog.Logger) grading.StageOutcome {
	built, err := p.stages.Build.Build(ctx, wc, task.ID)
	if err != nil {
		log.Warn("build check failed", logger.Err(err))
		return grading.DegradedOutcome(task, fmt.Errorf("build: %w", err))
	}
	if !built {
		log.Info("build failed")
		return grading.BuildFailedOutcome(task)
	}

	tests, err := p.stages.Test.Test(ctx, wc, task.ID)
	if err == nil {
		err = tests.Validate()
	}
	if err != nil {
		log.Warn("test check failed", logger.Err(err))
		return grading.DegradedOutcome(task, fmt.Errorf("test: %w", err))
	}

	docs, err := p.stages.Docs.Docs(ctx, wc, task.ID)
	if err != nil {
		log.Warn("doc check failed, documentation counted as missing", logger.Err(err))
		docs = false
	}

	deadlines, err := p.stages.Deadlines.Deadlines(ctx, task, wc)
	if err != nil {
		log.Warn("deadline check failed, deadlines counted as missed", logger.Err(err))
		deadlines = grading.DeadlineResult{}
	}

	outcome := grading.GradedOutcome(task, docs, tests, deadlines)
	log.Debug("task graded",
		slog.Int("failed_tests", tests.Failed),
		slog.Bool("soft_deadline", deadlines.SoftPass),
		slog.Bool("hard_deadline", deadlines.HardPass),
		slog.Float64("points", outcome.Points),
	)
	return outcome
}

func (p *Pipeline) cleanUpCopy(ctx context.Context, wc grading.WorkingCopy, log *slog.Logger) {
	if err := p.stages.Cleaner.CleanUp(ctx, wc); err != nil {
		log.Warn("clean up failed", slog.String("path", wc.Path), logger.Err(err))
	}
}
