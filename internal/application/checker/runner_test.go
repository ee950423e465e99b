package checker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/domain/shared"
	"github.com/alem-hub/taskchecker/pkg/logger"
	"github.com/alem-hub/taskchecker/pkg/timeutil"
)

type recordingSink struct {
	reports []*grading.Report
	err     error
}

func (s *recordingSink) Deliver(_ context.Context, r *grading.Report) error {
	s.reports = append(s.reports, r)
	return s.err
}

// ctxSink fails like a network sink once its context is done.
type ctxSink struct {
	ctxErr   error
	deadline bool
}

func (s *ctxSink) Deliver(ctx context.Context, _ *grading.Report) error {
	s.ctxErr = ctx.Err()
	_, s.deadline = ctx.Deadline()
	return s.ctxErr
}

// cancellingSync cancels the run while the first student is being synced.
type cancellingSync struct {
	*stubStages
	once   sync.Once
	cancel context.CancelFunc
}

func (s *cancellingSync) Sync(ctx context.Context, student grading.Student) (grading.WorkingCopy, error) {
	s.once.Do(s.cancel)
	return s.stubStages.Sync(ctx, student)
}

type recordingProgress struct {
	mu       sync.Mutex
	graded   []string
	finished int
}

func (p *recordingProgress) StudentGraded(_ context.Context, _ string, r grading.StudentResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.graded = append(p.graded, r.Student.Nickname)
	return nil
}

func (p *recordingProgress) RunFinished(context.Context, *grading.Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished++
	return nil
}

type stubPlagiarism struct {
	got  []string
	path string
	err  error
}

func (p *stubPlagiarism) Check(_ context.Context, copies []grading.WorkingCopy) (string, error) {
	for _, wc := range copies {
		p.got = append(p.got, wc.Student.Nickname)
	}
	return p.path, p.err
}

func runnerRoster() grading.Roster {
	r := grading.Roster{
		Tasks:  testTasks(),
		Groups: []grading.Group{{Name: "22213", Students: []string{"s00", "s01", "s02"}}},
	}
	for i := 0; i < 3; i++ {
		r.Students = append(r.Students, student(i))
	}
	return r
}

func runnerConfig() RunnerConfig {
	return RunnerConfig{
		Roster: runnerRoster(),
		Assignments: []grading.Assignment{
			{Group: "22213", Tasks: []string{"Heapsort", "Polynomial"}},
			{Student: "s02", Tasks: []string{"Graph"}},
		},
		Settings: grading.Settings{
			ControlPoints:            []shared.Date{shared.NewDate(2024, 9, 1), shared.NewDate(2024, 9, 28)},
			PointsForActivityPerWeek: 0.25,
			RunInParallel:            true,
			MarksMap:                 grading.MarksMap{Excellent: 1.5, Good: 1, Satisfactory: 0.5},
		},
	}
}

func TestRunner_FullRun(t *testing.T) {
	stages := newStubStages()
	sink := &recordingSink{}
	progress := &recordingProgress{}
	now := time.Date(2024, 12, 20, 9, 0, 0, 0, time.UTC)

	r, err := NewRunner(runnerConfig(), RunnerDeps{
		Stages:   stages.stages(),
		Activity: stubActivity{weeks: []grading.WeeklyCommits{{Commits: 1}, {Commits: 3}, {Commits: 0}, {Commits: 2}}},
		Sink:     sink,
		Progress: progress,
		Clock:    timeutil.Fixed(now),
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)
	assert.Len(t, r.Items(), 3)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)
	assert.Equal(t, now, report.StartedAt)
	assert.Equal(t, now, report.FinishedAt)
	assert.Len(t, report.Results, 3)
	assert.Len(t, report.Tasks, 3)
	assert.Empty(t, report.Warnings)
	assert.Empty(t, report.WorkerErrors)

	// s02 has three tasks at 0.5 each plus 3 active weeks at 0.25.
	s02, ok := report.Summary("s02")
	require.True(t, ok)
	assert.Equal(t, 1.5, s02.TaskPoints)
	assert.Equal(t, 0.75, s02.ActivityPoints)
	assert.Equal(t, grading.MarkExcellent, s02.Mark)

	s00, ok := report.Summary("s00")
	require.True(t, ok)
	assert.Equal(t, 1.0, s00.TaskPoints)

	require.Len(t, sink.reports, 1)
	assert.Same(t, report, sink.reports[0])
	assert.ElementsMatch(t, []string{"s00", "s01", "s02"}, progress.graded)
	assert.Equal(t, 1, progress.finished)

	stats := r.LastRun()
	require.NotNil(t, stats)
	assert.Equal(t, report.RunID, stats.RunID)
	assert.Equal(t, 3, stats.Students)
	assert.Zero(t, stats.Degraded)
}

func TestRunner_CancelledRunStillDeliversReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stages := newStubStages()
	cs := &cancellingSync{stubStages: stages, cancel: cancel}
	st := stages.stages()
	st.Sync = cs
	sink := &ctxSink{}
	progress := &recordingProgress{}

	cfg := runnerConfig()
	cfg.Workers = 1
	cfg.DeliveryTimeout = time.Minute
	r, err := NewRunner(cfg, RunnerDeps{Stages: st, Sink: sink, Progress: progress, Logger: logger.Discard()})
	require.NoError(t, err)

	report, err := r.Run(ctx)
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	assert.NoError(t, sink.ctxErr)
	assert.True(t, sink.deadline)
	assert.Equal(t, 1, progress.finished)

	require.Len(t, report.Results, 3)
	graded := byNickname(report.Results)
	assert.False(t, graded["s00"].Degraded)
	assert.True(t, graded["s01"].Degraded)
	assert.True(t, graded["s02"].Degraded)
	assert.Equal(t, 1, stages.syncedCount())

	stats := r.LastRun()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Degraded)
}

func TestRunner_WrongControlPointsBecomesWarning(t *testing.T) {
	cfg := runnerConfig()
	cfg.Settings.ControlPoints = cfg.Settings.ControlPoints[:1]

	r, err := NewRunner(cfg, RunnerDeps{
		Stages:   newStubStages().stages(),
		Activity: stubActivity{weeks: []grading.WeeklyCommits{{Commits: 1}}},
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "control points")
	for _, res := range report.Results {
		assert.Nil(t, res.Activity)
	}
}

func TestRunner_ConfigurationErrors(t *testing.T) {
	deps := RunnerDeps{Stages: newStubStages().stages(), Logger: logger.Discard()}

	cfg := runnerConfig()
	cfg.Assignments = []grading.Assignment{{Student: "s00", Tasks: []string{"Unknown"}}}
	_, err := NewRunner(cfg, deps)
	assert.ErrorIs(t, err, grading.ErrNoSuchTask)

	cfg = runnerConfig()
	cfg.PlagiarismCandidates = []string{"s00"}
	_, err = NewRunner(cfg, RunnerDeps{Stages: deps.Stages, Plagiarism: &stubPlagiarism{}, Logger: logger.Discard()})
	assert.ErrorIs(t, err, grading.ErrNotEnoughPlagiarismCandidates)
	assert.True(t, shared.IsConfiguration(err))

	cfg.PlagiarismCandidates = []string{"s00", "s01"}
	_, err = NewRunner(cfg, deps)
	assert.ErrorIs(t, err, ErrMissingStage)

	cfg = runnerConfig()
	cfg.Settings.MarksMap = grading.MarksMap{Excellent: 1, Good: 2}
	_, err = NewRunner(cfg, deps)
	assert.ErrorIs(t, err, grading.ErrInvalidMarksMap)

	cfg = runnerConfig()
	cfg.Workers = -1
	_, err = NewRunner(cfg, deps)
	assert.ErrorIs(t, err, grading.ErrInvalidWorkerCount)
}

func TestRunner_PlagiarismReport(t *testing.T) {
	cfg := runnerConfig()
	cfg.PlagiarismCandidates = []string{"s02", "Student s00"}
	plagiarism := &stubPlagiarism{path: "reports/2024-12-20T09-00-00_plagiarism_report.zip"}

	r, err := NewRunner(cfg, RunnerDeps{Stages: newStubStages().stages(), Plagiarism: plagiarism, Logger: logger.Discard()})
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"s02", "s00"}, plagiarism.got)
	assert.Equal(t, plagiarism.path, report.PlagiarismReport)
}

func TestRunner_PlagiarismFailureDoesNotStopGrading(t *testing.T) {
	cfg := runnerConfig()
	cfg.PlagiarismCandidates = []string{"s00", "s01"}
	plagiarism := &stubPlagiarism{err: errors.New("jplag exited with status 1")}

	r, err := NewRunner(cfg, RunnerDeps{Stages: newStubStages().stages(), Plagiarism: plagiarism, Logger: logger.Discard()})
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.PlagiarismReport)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "jplag exited")
	assert.Len(t, report.Results, 3)
}

func TestRunner_SinkErrorStillReturnsReport(t *testing.T) {
	sink := &recordingSink{err: errors.New("bucket does not exist")}
	r, err := NewRunner(runnerConfig(), RunnerDeps{Stages: newStubStages().stages(), Sink: sink, Logger: logger.Discard()})
	require.NoError(t, err)

	report, err := r.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket does not exist")
	require.NotNil(t, report)
	assert.Len(t, report.Results, 3)
}

func TestRunner_WorkerErrorsAreReported(t *testing.T) {
	stages := newStubStages()
	stages.panicOn = map[string]bool{"s01": true}
	cfg := runnerConfig()
	cfg.Workers = 1

	r, err := NewRunner(cfg, RunnerDeps{Stages: stages.stages(), Logger: logger.Discard()})
	require.NoError(t, err)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.WorkerErrors, 1)
	assert.Contains(t, report.WorkerErrors[0], "s01")
	assert.Len(t, report.Results, 3)
	assert.Equal(t, 2, r.LastRun().Degraded)
}
