package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

// State is the phase of an orchestrator run.
type State int32

const (
	StateIdle State = iota
	StatePartitioning
	StateRunning
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePartitioning:
		return "partitioning"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// WorkerCount returns 1 for sequential runs and the number of CPUs otherwise.
func WorkerCount(parallel bool) int {
	if !parallel {
		return 1
	}
	return max(runtime.NumCPU(), 1)
}

// ══════════════════════════════════════════════════════════════════════════════
// ORCHESTRATOR
// ══════════════════════════════════════════════════════════════════════════════

// StudentGrader grades one work item. *Pipeline is the production grader.
type StudentGrader interface {
	Run(ctx context.Context, item grading.WorkItem) grading.StudentResult
}

// ResultHook is called by a worker after each result is collected.
type ResultHook func(ctx context.Context, result grading.StudentResult)

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithResultHook registers a hook called after every collected result.
// The hook runs on the worker goroutine and must be safe for concurrent use.
func WithResultHook(hook ResultHook) OrchestratorOption {
	return func(o *Orchestrator) {
		o.onResult = hook
	}
}

// RunResult is what an orchestrator run produced.
type RunResult struct {
	Results      []grading.StudentResult
	WorkerErrors []*WorkerError
	Workers      int
	Batches      int
	Elapsed      time.Duration
}

// Orchestrator spreads work items over a fixed number of workers. Each worker
// owns one contiguous batch and grades it sequentially, which bounds the
// number of concurrent build tool and network invocations to the worker count.
type Orchestrator struct {
	grader   StudentGrader
	workers  int
	logger   *slog.Logger
	onResult ResultHook
	state    atomic.Int32
}

// NewOrchestrator creates an orchestrator with the given worker count.
func NewOrchestrator(grader StudentGrader, workers int, log *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		grader:  grader,
		workers: workers,
		logger:  log.With(logger.Component("orchestrator")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current phase.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) transition(to State) {
	from := State(o.state.Swap(int32(to)))
	o.logger.Debug("state changed", slog.String("from", from.String()), slog.String("to", to.String()))
}

// Run grades every item and waits for all workers to finish.
//
// The returned error is ErrPoolStart when no work could be started. Otherwise
// the RunResult is always complete: every item appears exactly once, and
// students that a stopped worker never finished are recorded as degraded. The
// error then joins the WorkerErrors, which are not fatal to the run.
//
// Cancelling ctx does not interrupt a student being graded. Workers notice the
// cancellation between students and record the remaining ones as degraded.
func (o *Orchestrator) Run(ctx context.Context, items []grading.WorkItem) (*RunResult, error) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StatePartitioning)) &&
		!o.state.CompareAndSwap(int32(StateDone), int32(StatePartitioning)) {
		return nil, ErrAlreadyRunning
	}
	o.logger.Debug("state changed", slog.String("to", StatePartitioning.String()))
	start := time.Now()

	if o.grader == nil {
		o.transition(StateIdle)
		return nil, ErrPoolStart.Wrap(ErrMissingStage.Withf("student grader"))
	}
	batches, err := grading.Partition(items, o.workers)
	if err != nil {
		o.transition(StateIdle)
		return nil, ErrPoolStart.Wrap(err)
	}

	o.transition(StateRunning)
	o.logger.Info("grading started",
		slog.Int("students", len(items)),
		slog.Int("workers", o.workers),
		slog.Int("batches", len(batches)),
	)

	agg := NewAggregator(len(items))
	workerErrs := make([]*WorkerError, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(id int, batch []grading.WorkItem) {
			defer wg.Done()
			workerErrs[id] = o.work(ctx, id, batch, agg)
		}(i, batch)
	}

	o.transition(StateDraining)
	wg.Wait()

	result := &RunResult{
		Workers: o.workers,
		Batches: len(batches),
	}
	var errs []error
	for _, werr := range workerErrs {
		if werr == nil {
			continue
		}
		result.WorkerErrors = append(result.WorkerErrors, werr)
		errs = append(errs, werr)
		for _, item := range werr.pending {
			r := grading.DegradedStudent(item, werr)
			r.Worker = werr.Worker
			agg.Add(r)
		}
	}
	result.Results = agg.Results()
	result.Elapsed = time.Since(start)

	o.transition(StateDone)
	o.logger.Info("grading finished",
		slog.Int("results", len(result.Results)),
		slog.Int("worker_errors", len(result.WorkerErrors)),
		logger.Latency(result.Elapsed),
	)
	return result, errors.Join(errs...)
}

// work grades a batch in order. A panic stops this worker only.
func (o *Orchestrator) work(ctx context.Context, id int, batch []grading.WorkItem, agg *Aggregator) (werr *WorkerError) {
	log := o.logger.With(logger.Worker(id))
	wctx := logger.WithContext(ctx, log)
	// Students already started are finished even if ctx is cancelled.
	gradeCtx := context.WithoutCancel(wctx)

	// current is the item being processed, collected counts items with a result.
	current, collected := 0, 0
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		werr = &WorkerError{
			Worker:  id,
			Student: batch[current].Student.ID(),
			Panic:   r,
			Stack:   debug.Stack(),
			pending: batch[collected:],
		}
		for _, item := range batch[current+1:] {
			werr.Skipped = append(werr.Skipped, item.Student.ID())
		}
		log.Error("worker stopped by panic",
			logger.StudentID(werr.Student),
			slog.Any("panic", r),
			slog.Int("skipped", len(werr.Skipped)),
		)
	}()

	log.Debug("worker started", slog.Int("students", len(batch)))
	for current = range batch {
		item := batch[current]

		var res grading.StudentResult
		if err := ctx.Err(); err != nil {
			res = grading.DegradedStudent(item, fmt.Errorf("run cancelled: %w", err))
		} else {
			res = o.grader.Run(gradeCtx, item)
		}
		res.Worker = id
		agg.Add(res)
		collected++

		if o.onResult != nil {
			o.onResult(gradeCtx, res)
		}
	}
	log.Debug("worker finished")
	return nil
}
