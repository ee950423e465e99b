package checker

import (
	"context"
	"fmt"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/domain/shared"
)

// ActivityCheck summarizes how regularly a student committed between the two
// control points of the course.
type ActivityCheck struct {
	query ActivityQuery
	start shared.Date
	end   shared.Date
}

// NewActivityCheck validates the control points once. Exactly two are
// required and the second must not precede the first.
func NewActivityCheck(query ActivityQuery, controlPoints []shared.Date) (*ActivityCheck, error) {
	if query == nil {
		return nil, ErrMissingStage.Withf("activity query")
	}
	if len(controlPoints) != 2 {
		return nil, grading.ErrWrongControlPoints.Withf("got %d", len(controlPoints))
	}
	start, end := controlPoints[0], controlPoints[1]
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil, grading.ErrWrongControlPoints.Withf("invalid period %q..%q", start, end)
	}
	return &ActivityCheck{query: query, start: start, end: end}, nil
}

// Period returns the first and last day of the activity period.
func (a *ActivityCheck) Period() (shared.Date, shared.Date) {
	return a.start, a.end
}

// Check queries weekly commits and folds them into a summary.
func (a *ActivityCheck) Check(ctx context.Context, student grading.Student) (grading.ActivitySummary, error) {
	weeks, err := a.query.WeeklyCommits(ctx, student, a.start, a.end)
	if err != nil {
		return grading.ActivitySummary{}, fmt.Errorf("weekly commits for %s: %w", student.ID(), err)
	}
	return grading.SummarizeActivity(weeks), nil
}
