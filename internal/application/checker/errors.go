package checker

import (
	"fmt"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/domain/shared"
)

var (
	// ErrMissingStage is returned when a required collaborator is nil.
	ErrMissingStage = shared.NewDomainError("checker", "New", shared.ErrConfiguration, "missing pipeline collaborator")

	// ErrPoolStart wraps anything that prevents workers from starting.
	// No student has been graded when it is returned.
	ErrPoolStart = shared.NewDomainError("checker", "Orchestrate", shared.ErrInvalidState, "cannot start worker pool")

	// ErrAlreadyRunning is returned when Run is called on a busy orchestrator.
	ErrAlreadyRunning = shared.NewDomainError("checker", "Orchestrate", shared.ErrInvalidState, "orchestrator is already running")
)

// WorkerError describes a worker that stopped because a panic escaped the
// pipeline. Results the worker produced before the panic are kept.
type WorkerError struct {
	Worker  int
	Student string
	Panic   any
	Stack   []byte

	// Skipped lists the students of the batch that the worker never reached.
	Skipped []string

	pending []grading.WorkItem
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d stopped while grading %s: panic: %v (%d students skipped)",
		e.Worker, e.Student, e.Panic, len(e.Skipped))
}
