package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/pkg/logger"
)

// FileTimeLayout names report files after the start of their run.
const FileTimeLayout = "2006-01-02T15-04-05"

// FileSink writes each report as a JSON file into a directory.
type FileSink struct {
	dir string
}

// NewFileSink creates the sink. The directory is created on first delivery.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Path returns where the report of a run is written.
func (s *FileSink) Path(r *grading.Report) string {
	name := fmt.Sprintf("%s_%s.json", r.StartedAt.Format(FileTimeLayout), r.RunID)
	return filepath.Join(s.dir, name)
}

// Deliver writes the report. The file appears atomically: readers never see a
// partially written report.
func (s *FileSink) Deliver(ctx context.Context, r *grading.Report) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".report-*.json")
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	path := s.Path(r)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	logger.FromContext(ctx).Info("report written",
		logger.RunID(r.RunID),
		"path", path,
		"digest", Digest(data),
	)
	return nil
}
