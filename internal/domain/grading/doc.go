// Package grading contains the domain model of a grading run.
//
// A run takes a roster of students and tasks, turns it into work items (one
// per student with the ordered list of tasks to check) and produces one
// StudentResult per work item. The package defines:
//
//   - Entities: Task, Student, Group, WorkItem, Roster
//   - Outcomes: TestCounts, DeadlineResult, StageOutcome, StudentResult, Report
//   - Policies: Points, MarksMap, ActivityPoints
//   - Partition: deterministic balanced split of work items between workers
//
// # Scoring
//
// A task is scored from its test counts and deadline flags only:
//
//	points := grading.Points(tests, deadlines) // one of -0.5, 0, 0.5, 1
//
// Any failing test zeroes the task. Each passed deadline adds half a point to
// a base of -0.5.
//
// # Dependencies
//
// The package has no dependencies outside the standard library and the
// shared domain package. Stage implementations live in infrastructure.
package grading
