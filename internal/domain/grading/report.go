package grading

import (
	"sort"
	"time"

	"github.com/alem-hub/taskchecker/internal/domain/shared"
)

// Settings are the run parameters copied into the report so it can be read
// without the configuration it was produced from. Credentials never go here.
type Settings struct {
	ControlPoints            []shared.Date `json:"controlPoints"`
	PointsForActivityPerWeek float64       `json:"pointsForActivenessPerWeek"`
	RunInParallel            bool          `json:"runInParallel"`
	CleanUp                  bool          `json:"cleanUp"`
	MarksMap                 MarksMap      `json:"marksMap"`
	RepositoriesPath         string        `json:"repositoriesPath"`
	PlagiarismReportFolder   string        `json:"plagiarismReportFolder"`
}

// StudentSummary is the per-student bottom line of a report.
type StudentSummary struct {
	Nickname       string  `json:"nickname"`
	TaskPoints     float64 `json:"taskPoints"`
	ActivityPoints float64 `json:"activityPoints"`
	Total          float64 `json:"totalPoints"`
	Mark           int     `json:"mark"`
	Degraded       bool    `json:"degraded,omitempty"`
}

// Report is the aggregate of one run. Results are in no particular order;
// each graded student appears exactly once.
type Report struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Results   []StudentResult  `json:"taskRunnerResults"`
	Summaries []StudentSummary `json:"summaries"`

	Tasks    []Task    `json:"tasks"`
	Groups   []Group   `json:"groups"`
	Students []Student `json:"students"`
	Settings Settings  `json:"additionalSettings"`

	PlagiarismReport string   `json:"plagiarismReportPath,omitempty"`
	WorkerErrors     []string `json:"workerErrors,omitempty"`

	// Warnings are problems that did not stop the run, such as a misconfigured
	// activity period or a failed plagiarism check.
	Warnings []string `json:"warnings,omitempty"`
}

// NewReport starts a report for a run over roster.
func NewReport(runID string, roster Roster, settings Settings, startedAt time.Time) *Report {
	return &Report{
		RunID:     runID,
		StartedAt: startedAt,
		Tasks:     roster.Tasks,
		Groups:    roster.Groups,
		Students:  roster.Students,
		Settings:  settings,
	}
}

// Complete attaches the results of a run and computes the summaries.
// Summaries are sorted by nickname so two reports over the same results are
// identical regardless of completion order.
func (r *Report) Complete(results []StudentResult, finishedAt time.Time) {
	r.Results = results
	r.FinishedAt = finishedAt

	r.Summaries = make([]StudentSummary, 0, len(results))
	for _, res := range results {
		taskPoints := res.TaskPoints()
		activity := ActivityPoints(res.Activity, r.Settings.PointsForActivityPerWeek)
		total := taskPoints + activity
		r.Summaries = append(r.Summaries, StudentSummary{
			Nickname:       res.Student.Nickname,
			TaskPoints:     taskPoints,
			ActivityPoints: activity,
			Total:          total,
			Mark:           r.Settings.MarksMap.Mark(total),
			Degraded:       res.Degraded,
		})
	}
	sort.Slice(r.Summaries, func(i, j int) bool {
		return r.Summaries[i].Nickname < r.Summaries[j].Nickname
	})
}

// Summary returns the summary for a nickname.
func (r *Report) Summary(nickname string) (StudentSummary, bool) {
	for _, s := range r.Summaries {
		if s.Nickname == nickname {
			return s, true
		}
	}
	return StudentSummary{}, false
}
