package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/taskchecker/internal/application/checker"
	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/pkg/logger"
)

// fakeRunner returns a fixed outcome and records stats the way
// checker.Runner does for every run that produced a report.
type fakeRunner struct {
	report *grading.Report
	err    error
	onRun  func(ctx context.Context)
	last   *checker.RunStats
}

func (f *fakeRunner) Run(ctx context.Context) (*grading.Report, error) {
	if f.onRun != nil {
		f.onRun(ctx)
	}
	if f.report != nil {
		stats := &checker.RunStats{RunID: f.report.RunID, Students: len(f.report.Results), Report: f.report}
		for _, r := range f.report.Results {
			if r.Degraded {
				stats.Degraded++
			}
		}
		f.last = stats
	}
	return f.report, f.err
}

func (f *fakeRunner) LastRun() *checker.RunStats { return f.last }

func reportWith(degraded, healthy int) *grading.Report {
	r := &grading.Report{RunID: "run-1"}
	for i := 0; i < degraded; i++ {
		r.Results = append(r.Results, grading.StudentResult{Degraded: true})
	}
	for i := 0; i < healthy; i++ {
		r.Results = append(r.Results, grading.StudentResult{})
	}
	return r
}

func TestGradeCourseJob_Run(t *testing.T) {
	var hadDeadline bool
	runner := &fakeRunner{
		report: reportWith(1, 3),
		onRun:  func(ctx context.Context) { _, hadDeadline = ctx.Deadline() },
	}
	job := NewGradeCourseJob(runner, logger.Discard(), DefaultGradeCourseConfig())

	require.NoError(t, job.Run(context.Background()))

	assert.True(t, hadDeadline)
	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, "run-1", stats.RunID)
	assert.Equal(t, 4, stats.Students)
	assert.Equal(t, 1, stats.Degraded)
	assert.Equal(t, "grade_course", job.Name())
}

func TestGradeCourseJob_FailsWhenMostStudentsDegraded(t *testing.T) {
	job := NewGradeCourseJob(&fakeRunner{report: reportWith(3, 1)}, logger.Discard(),
		GradeCourseConfig{MaxDegradedRatio: 0.5})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(3/4)")
	assert.NotNil(t, job.LastStats())
}

func TestGradeCourseJob_DeliveryErrorKeepsStats(t *testing.T) {
	deliver := errors.New("deliver report run-1: connection refused")
	job := NewGradeCourseJob(&fakeRunner{report: reportWith(3, 1), err: deliver}, logger.Discard(),
		GradeCourseConfig{MaxDegradedRatio: 0.5})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, deliver)
	assert.Contains(t, err.Error(), "(3/4)")

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, "run-1", stats.RunID)
	assert.Equal(t, 3, stats.Degraded)
}

func TestGradeCourseJob_RunError(t *testing.T) {
	boom := errors.New("invalid roster")
	job := NewGradeCourseJob(&fakeRunner{err: boom}, logger.Discard(), GradeCourseConfig{Timeout: time.Minute})

	assert.ErrorIs(t, job.Run(context.Background()), boom)
	assert.Nil(t, job.LastStats())
}
