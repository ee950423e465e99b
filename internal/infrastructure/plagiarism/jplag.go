// Package plagiarism compares students' working copies with JPlag.
package plagiarism

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/domain/shared"
	"github.com/alem-hub/taskchecker/internal/infrastructure/toolchain"
	"github.com/alem-hub/taskchecker/pkg/logger"
	"github.com/alem-hub/taskchecker/pkg/timeutil"
)

// ErrJPlag is returned when JPlag did not produce a report.
var ErrJPlag = shared.NewDomainError("plagiarism", "Check", shared.ErrExternalService, "jplag failed")

// ReportTimeLayout names report files by the time the check started.
const ReportTimeLayout = "2006-01-02T15-04-05"

// Config configures JPlag.
type Config struct {
	Java     string
	Jar      string
	Language string
	// ReportFolder receives one zip archive per check.
	ReportFolder string
}

// DefaultConfig returns the settings for Java submissions.
func DefaultConfig() Config {
	return Config{
		Java:         "java",
		Jar:          "jplag.jar",
		Language:     "java",
		ReportFolder: "reports",
	}
}

// JPlag runs the JPlag command line tool. Paths are passed as absolute host
// paths, so the runner must execute on the host.
type JPlag struct {
	runner toolchain.Runner
	cfg    Config
	clock  timeutil.Clock
}

// New creates the checker. A nil clock uses the system clock.
func New(runner toolchain.Runner, cfg Config, clock timeutil.Clock) *JPlag {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &JPlag{runner: runner, cfg: cfg, clock: clock}
}

// Check compares the candidates. The first candidate is the base code that
// every other submission is allowed to share. It returns the report path.
func (j *JPlag) Check(ctx context.Context, candidates []grading.WorkingCopy) (string, error) {
	if len(candidates) < 2 {
		return "", grading.ErrNotEnoughPlagiarismCandidates.Withf("got %d", len(candidates))
	}

	folder, err := filepath.Abs(j.cfg.ReportFolder)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", fmt.Errorf("create report folder: %w", err)
	}
	report := filepath.Join(folder, j.clock().Format(ReportTimeLayout)+"_plagiarism_report.zip")

	base, err := filepath.Abs(candidates[0].Path)
	if err != nil {
		return "", err
	}
	args := []string{"-jar", j.cfg.Jar, "-l", j.cfg.Language, "-bc", base, "-r", report}
	for _, wc := range candidates[1:] {
		path, err := filepath.Abs(wc.Path)
		if err != nil {
			return "", err
		}
		args = append(args, path)
	}

	res, err := j.runner.Run(ctx, toolchain.Command{Dir: folder, Name: j.cfg.Java, Args: args})
	if err != nil {
		return "", ErrJPlag.Wrap(err)
	}
	if !res.Success() {
		return "", ErrJPlag.Withf("exit status %d: %s", res.ExitCode, res.Tail(5))
	}
	if _, err := os.Stat(report); err != nil {
		return "", ErrJPlag.Wrap(fmt.Errorf("report not written: %w", err))
	}

	logger.FromContext(ctx).Info("plagiarism report created",
		logger.Component("plagiarism"),
		"report", report,
		"submissions", len(candidates)-1,
		logger.Latency(res.Duration),
	)
	return report, nil
}
