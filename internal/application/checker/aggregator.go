package checker

import (
	"sync"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
)

// Aggregator collects student results from concurrent workers. The lock is
// held only for the append.
type Aggregator struct {
	mu      sync.Mutex
	results []grading.StudentResult
}

// NewAggregator creates an aggregator sized for the expected number of results.
func NewAggregator(capacity int) *Aggregator {
	return &Aggregator{results: make([]grading.StudentResult, 0, max(capacity, 0))}
}

// Add appends one result.
func (a *Aggregator) Add(result grading.StudentResult) {
	a.mu.Lock()
	a.results = append(a.results, result)
	a.mu.Unlock()
}

// Results returns a copy of everything added so far, in insertion order.
func (a *Aggregator) Results() []grading.StudentResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]grading.StudentResult, len(a.results))
	copy(out, a.results)
	return out
}

// Len returns the number of results added so far.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results)
}
