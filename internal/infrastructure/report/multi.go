package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/taskchecker/internal/application/checker"
	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/pkg/logger"
)

// Named gives a sink a name for logs and errors.
type Named struct {
	Name string
	Sink checker.ReportSink
}

// MultiSink delivers a report to every sink in turn. A failing sink does not
// stop delivery to the others.
type MultiSink struct {
	sinks []Named
}

// NewMultiSink creates a sink over sinks, delivered in the given order.
func NewMultiSink(sinks ...Named) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Deliver returns the joined errors of all failed sinks.
func (m *MultiSink) Deliver(ctx context.Context, r *grading.Report) error {
	var errs []error
	for _, n := range m.sinks {
		if err := n.Sink.Deliver(ctx, r); err != nil {
			logger.FromContext(ctx).Error("report delivery failed",
				logger.RunID(r.RunID),
				"sink", n.Name,
				logger.Err(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }
