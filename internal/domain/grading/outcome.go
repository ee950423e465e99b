package grading

import (
	"github.com/alem-hub/taskchecker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST COUNTS
// ══════════════════════════════════════════════════════════════════════════════

// TestCounts is the summary of one test run.
type TestCounts struct {
	Total   int `json:"totalTests"`
	Passed  int `json:"passedTests"`
	Failed  int `json:"failedTests"`
	Skipped int `json:"ignoredTests"`
}

// NewTestCounts derives Passed from the other counts, the same way a JUnit
// suite reports them.
func NewTestCounts(total, failed, skipped int) (TestCounts, error) {
	c := TestCounts{
		Total:   total,
		Failed:  failed,
		Skipped: skipped,
		Passed:  total - failed - skipped,
	}
	if err := c.Validate(); err != nil {
		return TestCounts{}, err
	}
	return c, nil
}

// Validate checks that every count is non-negative and that they add up.
func (c TestCounts) Validate() error {
	if c.Total < 0 || c.Passed < 0 || c.Failed < 0 || c.Skipped < 0 {
		return ErrInconsistentTestCounts.Withf("negative count in %+v", c)
	}
	if c.Passed+c.Failed+c.Skipped != c.Total {
		return ErrInconsistentTestCounts.Withf("%d + %d + %d != %d", c.Passed, c.Failed, c.Skipped, c.Total)
	}
	return nil
}

// Add sums two test runs.
func (c TestCounts) Add(other TestCounts) TestCounts {
	return TestCounts{
		Total:   c.Total + other.Total,
		Passed:  c.Passed + other.Passed,
		Failed:  c.Failed + other.Failed,
		Skipped: c.Skipped + other.Skipped,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEADLINES
// ══════════════════════════════════════════════════════════════════════════════

// DeadlineResult says whether a task met its deadlines.
// The zero value means neither deadline was met.
type DeadlineResult struct {
	SoftPass bool `json:"softDeadlinePass"`
	HardPass bool `json:"hardDeadlinePass"`
}

// EvaluateDeadlines judges the soft deadline by the first commit touching the
// task and the hard deadline by the last one. Both are false when the task
// was never committed.
func EvaluateDeadlines(task Task, first, last shared.Date) DeadlineResult {
	if first.IsZero() || last.IsZero() {
		return DeadlineResult{}
	}
	return DeadlineResult{
		SoftPass: !task.SoftDeadline.IsZero() && first.Before(task.SoftDeadline),
		HardPass: !task.HardDeadline.IsZero() && last.Before(task.HardDeadline),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STAGE OUTCOME
// ══════════════════════════════════════════════════════════════════════════════

// OutcomeStatus tells how far the pipeline got for one task.
type OutcomeStatus string

const (
	// StatusGraded means every stage ran and points were computed.
	StatusGraded OutcomeStatus = "graded"
	// StatusBuildFailed means the project did not build; later stages were skipped.
	StatusBuildFailed OutcomeStatus = "build_failed"
	// StatusDegraded means a stage could not run at all.
	StatusDegraded OutcomeStatus = "degraded"
)

// StageOutcome is the result of grading one task for one student.
type StageOutcome struct {
	Task      Task           `json:"task"`
	Status    OutcomeStatus  `json:"status"`
	Build     bool           `json:"build"`
	Docs      bool           `json:"javadoc"`
	Tests     TestCounts     `json:"tests"`
	Deadlines DeadlineResult `json:"deadlinesCheckResult"`
	Points    float64        `json:"points"`
	Error     string         `json:"error,omitempty"`
}

// GradedOutcome builds the outcome of a task whose stages all ran.
func GradedOutcome(task Task, docs bool, tests TestCounts, deadlines DeadlineResult) StageOutcome {
	return StageOutcome{
		Task:      task,
		Status:    StatusGraded,
		Build:     true,
		Docs:      docs,
		Tests:     tests,
		Deadlines: deadlines,
		Points:    Points(tests, deadlines),
	}
}

// BuildFailedOutcome records a task that did not build.
func BuildFailedOutcome(task Task) StageOutcome {
	return StageOutcome{Task: task, Status: StatusBuildFailed}
}

// DegradedOutcome records a task whose stages could not run: no build, zero
// counts, zero points and the cause.
func DegradedOutcome(task Task, cause error) StageOutcome {
	o := StageOutcome{Task: task, Status: StatusDegraded}
	if cause != nil {
		o.Error = cause.Error()
	}
	return o
}

// Degraded reports whether the outcome carries no grading information.
func (o StageOutcome) Degraded() bool {
	return o.Status == StatusDegraded
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

// WeeklyCommits is the number of commits in the week ending on WeekEnd.
type WeeklyCommits struct {
	WeekEnd shared.Date `json:"week"`
	Commits int         `json:"commits"`
}

// ActivitySummary describes how regularly a student committed between the two
// control points.
type ActivitySummary struct {
	Weeks        []WeeklyCommits `json:"commitsPerWeekList"`
	TotalCommits int             `json:"totalCommits"`
	TotalWeeks   int             `json:"totalWeeks"`
	ActiveWeeks  int             `json:"totalActiveWeeks"`
	MaxWeek      *WeeklyCommits  `json:"maximumCommitsPerWeek,omitempty"`
}

// SummarizeActivity folds weekly counts into a summary. A week is active when
// it has at least one commit. On ties the earliest week is the maximum.
func SummarizeActivity(weeks []WeeklyCommits) ActivitySummary {
	s := ActivitySummary{
		Weeks:      make([]WeeklyCommits, len(weeks)),
		TotalWeeks: len(weeks),
	}
	copy(s.Weeks, weeks)

	for i, w := range s.Weeks {
		s.TotalCommits += w.Commits
		if w.Commits > 0 {
			s.ActiveWeeks++
		}
		if s.MaxWeek == nil || w.Commits > s.MaxWeek.Commits {
			s.MaxWeek = &s.Weeks[i]
		}
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT RESULT
// ══════════════════════════════════════════════════════════════════════════════

// StudentResult is everything a run learned about one student. It is created
// by exactly one worker and not modified once handed to the aggregator.
type StudentResult struct {
	Student  Student          `json:"student"`
	Activity *ActivitySummary `json:"commitsCheckResult,omitempty"`
	Outcomes []StageOutcome   `json:"tasksResults"`

	// Degraded is set when the whole student could not be graded,
	// for example because the repository could not be synchronized.
	Degraded bool   `json:"degraded,omitempty"`
	Error    string `json:"error,omitempty"`

	// Worker is the index of the worker that produced the result.
	Worker int `json:"worker"`
}

// DegradedStudent records a student whose repository could not be prepared.
// Every task gets a degraded outcome so the report still lists them.
func DegradedStudent(item WorkItem, cause error) StudentResult {
	r := StudentResult{
		Student:  item.Student,
		Outcomes: make([]StageOutcome, 0, len(item.Tasks)),
		Degraded: true,
	}
	if cause != nil {
		r.Error = cause.Error()
	}
	for _, task := range item.Tasks {
		r.Outcomes = append(r.Outcomes, DegradedOutcome(task, cause))
	}
	return r
}

// TaskPoints sums the points of all outcomes.
func (r StudentResult) TaskPoints() float64 {
	var total float64
	for _, o := range r.Outcomes {
		total += o.Points
	}
	return total
}

// Outcome returns the outcome for a task id.
func (r StudentResult) Outcome(taskID string) (StageOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Task.ID == taskID {
			return o, true
		}
	}
	return StageOutcome{}, false
}
