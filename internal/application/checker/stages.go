// Package checker runs the grading of a course: it sequences the per-task
// stages for one student, fans students out over a bounded pool of workers
// and assembles the final report.
//
// Every external tool (git, the build tool, the commit history API, the
// plagiarism engine, report storage) is reached through the interfaces in
// this file. Adapters live under internal/infrastructure.
package checker

import (
	"context"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PIPELINE STAGES
// ══════════════════════════════════════════════════════════════════════════════

// RepositorySync prepares a student's working copy. It clones on first use
// and updates on later calls, so calling it once per student per run is safe.
type RepositorySync interface {
	Sync(ctx context.Context, student grading.Student) (grading.WorkingCopy, error)
}

// WorkspaceCleaner removes a working copy once the student is graded.
type WorkspaceCleaner interface {
	CleanUp(ctx context.Context, wc grading.WorkingCopy) error
}

// BuildCheck reports whether a task's project builds cleanly.
// An error means the check itself could not run.
type BuildCheck interface {
	Build(ctx context.Context, wc grading.WorkingCopy, taskID string) (bool, error)
}

// TestCheck runs a task's tests and returns the counts.
type TestCheck interface {
	Test(ctx context.Context, wc grading.WorkingCopy, taskID string) (grading.TestCounts, error)
}

// DocCheck reports whether documentation was generated for a task.
type DocCheck interface {
	Docs(ctx context.Context, wc grading.WorkingCopy, taskID string) (bool, error)
}

// DeadlineCheck judges a task's deadlines from the commits touching its
// directory. A task without commits meets neither deadline and is not an
// error.
type DeadlineCheck interface {
	Deadlines(ctx context.Context, task grading.Task, wc grading.WorkingCopy) (grading.DeadlineResult, error)
}

// ActivityQuery returns weekly commit counts between two dates, both
// inclusive.
type ActivityQuery interface {
	WeeklyCommits(ctx context.Context, student grading.Student, start, end shared.Date) ([]grading.WeeklyCommits, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// ReportSink receives the finished report.
type ReportSink interface {
	Deliver(ctx context.Context, report *grading.Report) error
}

// PlagiarismChecker compares submissions and returns the location of the
// generated report. The first working copy is the base code the others are
// compared against.
type PlagiarismChecker interface {
	Check(ctx context.Context, submissions []grading.WorkingCopy) (string, error)
}

// ProgressPublisher announces progress of a run to interested listeners.
// Publishing is best effort: errors are logged and never affect grading.
type ProgressPublisher interface {
	StudentGraded(ctx context.Context, runID string, result grading.StudentResult) error
	RunFinished(ctx context.Context, report *grading.Report) error
}
