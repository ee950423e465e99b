package toolchain

import (
	"context"
)

// ConcurrencyLimit bounds how many commands run at once across every caller
// sharing the decorated Runner.
type ConcurrencyLimit struct {
	runner    Runner
	semaphore chan struct{}
}

// NewConcurrencyLimit wraps runner. maxConcurrent below 1 is treated as 1.
func NewConcurrencyLimit(runner Runner, maxConcurrent int) *ConcurrencyLimit {
	return &ConcurrencyLimit{
		runner:    runner,
		semaphore: make(chan struct{}, max(maxConcurrent, 1)),
	}
}

func (d *ConcurrencyLimit) acquire(ctx context.Context) error {
	select {
	case d.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *ConcurrencyLimit) release() {
	<-d.semaphore
}

// Run implements Runner.
func (d *ConcurrencyLimit) Run(ctx context.Context, cmd Command) (Result, error) {
	if err := d.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer d.release()
	return d.runner.Run(ctx, cmd)
}
