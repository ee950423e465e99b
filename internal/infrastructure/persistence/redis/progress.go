package redis

import (
	"context"
	"time"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/pkg/timeutil"
)

// Event types published on the progress channel.
const (
	EventStudentGraded = "student_graded"
	EventRunFinished   = "run_finished"
)

// ProgressEvent is the JSON message published for each step of a run.
type ProgressEvent struct {
	Type  string    `json:"type"`
	RunID string    `json:"runId"`
	At    time.Time `json:"at"`

	// Set for student_graded.
	Nickname string  `json:"nickname,omitempty"`
	Points   float64 `json:"points,omitempty"`
	Degraded bool    `json:"degraded,omitempty"`
	Worker   int     `json:"worker,omitempty"`

	// Set for run_finished.
	Students     int `json:"students,omitempty"`
	DegradedN    int `json:"degradedStudents,omitempty"`
	WorkerErrors int `json:"workerErrors,omitempty"`
}

// ProgressPublisher publishes run progress on a Redis channel.
type ProgressPublisher struct {
	cache   *Cache
	channel string
	clock   timeutil.Clock
}

// NewProgressPublisher publishes on channel, ChannelProgress when empty.
func NewProgressPublisher(cache *Cache, channel string, clock timeutil.Clock) *ProgressPublisher {
	if channel == "" {
		channel = ChannelProgress
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &ProgressPublisher{cache: cache, channel: channel, clock: clock}
}

// StudentGraded implements checker.ProgressPublisher.
func (p *ProgressPublisher) StudentGraded(ctx context.Context, runID string, result grading.StudentResult) error {
	return p.cache.Publish(ctx, p.channel, ProgressEvent{
		Type:     EventStudentGraded,
		RunID:    runID,
		At:       p.clock(),
		Nickname: result.Student.Nickname,
		Points:   result.TaskPoints(),
		Degraded: result.Degraded,
		Worker:   result.Worker,
	})
}

// RunFinished implements checker.ProgressPublisher.
func (p *ProgressPublisher) RunFinished(ctx context.Context, report *grading.Report) error {
	degraded := 0
	for _, r := range report.Results {
		if r.Degraded {
			degraded++
		}
	}
	return p.cache.Publish(ctx, p.channel, ProgressEvent{
		Type:         EventRunFinished,
		RunID:        report.RunID,
		At:           p.clock(),
		Students:     len(report.Results),
		DegradedN:    degraded,
		WorkerErrors: len(report.WorkerErrors),
	})
}
