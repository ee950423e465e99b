// Package jobs contains the scheduled jobs of watch mode.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/taskchecker/internal/application/checker"
	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADE COURSE JOB
// ══════════════════════════════════════════════════════════════════════════════

// CourseRunner runs one grading run over the whole course and keeps the
// statistics of the last completed run.
type CourseRunner interface {
	Run(ctx context.Context) (*grading.Report, error)
	LastRun() *checker.RunStats
}

// GradeCourseConfig contains configuration for the grading job.
type GradeCourseConfig struct {
	// Timeout is the maximum duration of one run. Zero means no limit.
	Timeout time.Duration

	// MaxDegradedRatio fails the job when a larger share of students could
	// not be graded, which usually points at an infrastructure outage
	// rather than at the students.
	MaxDegradedRatio float64
}

// DefaultGradeCourseConfig returns sensible defaults.
func DefaultGradeCourseConfig() GradeCourseConfig {
	return GradeCourseConfig{
		Timeout:          time.Hour,
		MaxDegradedRatio: 0.5,
	}
}

// GradeCourseJob regrades every assigned student.
type GradeCourseJob struct {
	runner CourseRunner
	logger *slog.Logger
	config GradeCourseConfig
}

// NewGradeCourseJob creates the job.
func NewGradeCourseJob(runner CourseRunner, log *slog.Logger, config GradeCourseConfig) *GradeCourseJob {
	if log == nil {
		log = slog.Default()
	}
	return &GradeCourseJob{runner: runner, logger: log, config: config}
}

// Name returns the job name.
func (j *GradeCourseJob) Name() string { return "grade_course" }

// Description returns a human-readable description.
func (j *GradeCourseJob) Description() string {
	return "Clones, builds, tests and grades every assigned student"
}

// LastStats returns the statistics of the last completed run, or nil.
func (j *GradeCourseJob) LastStats() *checker.RunStats { return j.runner.LastRun() }

// Run executes one grading run. A run that produced a report is logged and
// checked against MaxDegradedRatio even when its delivery failed.
func (j *GradeCourseJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}
	ctx = logger.WithContext(ctx, j.logger)

	report, runErr := j.runner.Run(ctx)
	if runErr != nil {
		runErr = fmt.Errorf("grading run: %w", runErr)
	}
	if report == nil {
		return runErr
	}

	stats := j.runner.LastRun()
	if stats == nil || stats.RunID != report.RunID {
		return runErr
	}

	j.logger.Info("grade_course job completed",
		logger.RunID(stats.RunID),
		"duration", stats.Duration.String(),
		"students", stats.Students,
		"degraded", stats.Degraded,
		"worker_errors", stats.WorkerErrors,
		"delivered", runErr == nil,
	)

	if stats.Students > 0 && j.config.MaxDegradedRatio > 0 {
		ratio := float64(stats.Degraded) / float64(stats.Students)
		if ratio > j.config.MaxDegradedRatio {
			return errors.Join(runErr, fmt.Errorf("grading degraded for more than %.0f%% of students (%d/%d)",
				j.config.MaxDegradedRatio*100, stats.Degraded, stats.Students))
		}
	}
	return runErr
}
