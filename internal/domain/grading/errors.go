package grading

import "github.com/alem-hub/taskchecker/internal/domain/shared"

// Roster errors
var (
	ErrNoSuchTask       = shared.NewDomainError("roster", "TaskByName", shared.ErrNotFound, "no such task")
	ErrNoSuchStudent    = shared.NewDomainError("roster", "StudentByName", shared.ErrNotFound, "no such student")
	ErrNoSuchGroup      = shared.NewDomainError("roster", "GroupByName", shared.ErrNotFound, "no such group")
	ErrDuplicateTask    = shared.NewDomainError("roster", "Validate", shared.ErrAlreadyExists, "duplicate task id")
	ErrDuplicateStudent = shared.NewDomainError("roster", "Validate", shared.ErrAlreadyExists, "duplicate student nickname")
	ErrInvalidTask      = shared.NewDomainError("roster", "Validate", shared.ErrInvalidInput, "invalid task")
	ErrInvalidStudent   = shared.NewDomainError("roster", "Validate", shared.ErrInvalidInput, "invalid student")
	ErrEmptyAssignment  = shared.NewDomainError("roster", "WorkItems", shared.ErrInvalidInput, "assignment names neither a student nor a group")
)

// Run configuration errors. All of them wrap shared.ErrConfiguration so a
// caller can tell them apart from runtime failures with shared.IsConfiguration.
var (
	ErrInvalidWorkerCount = shared.NewDomainError("grading", "Partition", shared.ErrConfiguration, "worker count must be at least 1")
	ErrWrongControlPoints = shared.NewDomainError("grading", "Activity", shared.ErrConfiguration, "exactly two control points are required for an activity report")
	ErrInvalidMarksMap    = shared.NewDomainError("grading", "Marks", shared.ErrConfiguration, "marks thresholds must satisfy excellent >= good >= satisfactory")

	ErrNotEnoughPlagiarismCandidates = shared.NewDomainError("grading", "Plagiarism", shared.ErrConfiguration, "at least two plagiarism candidates are required")
)

// Outcome errors
var (
	ErrInconsistentTestCounts = shared.NewDomainError("grading", "TestCounts", shared.ErrValueOutOfRange, "passed + failed + skipped must equal total")
)
