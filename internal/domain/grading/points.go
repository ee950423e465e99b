package grading

// ══════════════════════════════════════════════════════════════════════════════
// POINTS POLICY
// ══════════════════════════════════════════════════════════════════════════════

const (
	basePoints     = -0.5
	deadlineReward = 0.5
)

// Points scores one task. Any failed test gives 0; otherwise the score starts
// at -0.5 and each met deadline adds 0.5, so the result is one of
// -0.5, 0, 0.5 or 1.
func Points(tests TestCounts, deadlines DeadlineResult) float64 {
	if tests.Failed > 0 {
		return 0
	}

	points := basePoints
	if deadlines.HardPass {
		points += deadlineReward
	}
	if deadlines.SoftPass {
		points += deadlineReward
	}
	return points
}

// ══════════════════════════════════════════════════════════════════════════════
// MARKS
// ══════════════════════════════════════════════════════════════════════════════

// Marks on the five-point scale.
const (
	MarkExcellent    = 5
	MarkGood         = 4
	MarkSatisfactory = 3
	MarkFailed       = 2
)

// MarksMap holds the minimum total points for each passing mark.
type MarksMap struct {
	Excellent    float64 `json:"excellent" yaml:"excellent"`
	Good         float64 `json:"good" yaml:"good"`
	Satisfactory float64 `json:"satisfactory" yaml:"satisfactory"`
}

// Validate checks that thresholds do not overlap.
func (m MarksMap) Validate() error {
	if m.Excellent < m.Good || m.Good < m.Satisfactory {
		return ErrInvalidMarksMap.Withf("%v/%v/%v", m.Excellent, m.Good, m.Satisfactory)
	}
	return nil
}

// Mark converts total points into a mark.
func (m MarksMap) Mark(total float64) int {
	switch {
	case total >= m.Excellent:
		return MarkExcellent
	case total >= m.Good:
		return MarkGood
	case total >= m.Satisfactory:
		return MarkSatisfactory
	default:
		return MarkFailed
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY POINTS
// ══════════════════════════════════════════════════════════════════════════════

// ActivityPoints rewards every active week with perWeek points.
// A missing summary earns nothing.
func ActivityPoints(activity *ActivitySummary, perWeek float64) float64 {
	if activity == nil || perWeek <= 0 {
		return 0
	}
	return float64(activity.ActiveWeeks) * perWeek
}

// StudentTotal is the sum of task points and activity points.
func StudentTotal(result StudentResult, perWeek float64) float64 {
	return result.TaskPoints() + ActivityPoints(result.Activity, perWeek)
}
