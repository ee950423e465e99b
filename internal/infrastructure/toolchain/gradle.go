package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/domain/shared"
	"github.com/alem-hub/taskchecker/pkg/logger"
)

// Locations of Gradle outputs relative to a task directory.
var (
	TestResultsDir = filepath.Join("build", "test-results", "test")
	JavadocDir     = filepath.Join("build", "docs", "javadoc")
)

// ErrToolchain wraps failures to run the build tool itself.
var ErrToolchain = shared.NewDomainError("toolchain", "Run", shared.ErrExternalService, "build tool could not run")

// GradleConfig configures the Gradle checks.
type GradleConfig struct {
	// Executable is used when the task has no wrapper or UseWrapper is off.
	Executable string
	UseWrapper bool
	// Args are passed before the task names, e.g. --no-daemon.
	Args []string

	BuildTasks []string
	TestTasks  []string
	DocTasks   []string
}

// DefaultGradleConfig compiles without running tests in the build stage, so
// that failing tests cost points instead of failing the build.
func DefaultGradleConfig() GradleConfig {
	return GradleConfig{
		Executable: "gradle",
		UseWrapper: true,
		Args:       []string{"--no-daemon", "--console=plain"},
		BuildTasks: []string{"build", "-x", "test"},
		TestTasks:  []string{"test"},
		DocTasks:   []string{"javadoc"},
	}
}

// Gradle implements the build, test and documentation checks of a task.
type Gradle struct {
	runner Runner
	cfg    GradleConfig
}

// NewGradle creates the checks on top of runner.
func NewGradle(runner Runner, cfg GradleConfig) *Gradle {
	if cfg.Executable == "" {
		cfg.Executable = "gradle"
	}
	return &Gradle{runner: runner, cfg: cfg}
}

// Build reports whether the task compiles. A task directory that does not
// exist is a failed build.
func (g *Gradle) Build(ctx context.Context, wc grading.WorkingCopy, taskID string) (bool, error) {
	dir := wc.TaskDir(taskID)
	if !isDir(dir) {
		logger.FromContext(ctx).Debug("task directory missing", logger.Task(taskID))
		return false, nil
	}
	res, err := g.run(ctx, dir, g.cfg.BuildTasks)
	if err != nil {
		return false, err
	}
	if !res.Success() {
		logger.FromContext(ctx).Debug("build failed",
			logger.Task(taskID),
			"exit_code", res.ExitCode,
			"output", res.Tail(20),
		)
	}
	return res.Success(), nil
}

// Test runs the test suite and reads its JUnit reports. Failing tests make
// Gradle exit non-zero, so the exit code alone is not an error.
func (g *Gradle) Test(ctx context.Context, wc grading.WorkingCopy, taskID string) (grading.TestCounts, error) {
	dir := wc.TaskDir(taskID)
	reports := filepath.Join(dir, TestResultsDir)
	if err := os.RemoveAll(reports); err != nil {
		return grading.TestCounts{}, fmt.Errorf("clear stale reports: %w", err)
	}

	res, err := g.run(ctx, dir, g.cfg.TestTasks)
	if err != nil {
		return grading.TestCounts{}, err
	}

	counts, err := ParseJUnitDir(reports)
	switch {
	case err == nil:
		return counts, nil
	case shared.IsNotFound(err) && res.Success():
		// The task has no tests.
		return grading.TestCounts{}, nil
	default:
		return grading.TestCounts{}, err
	}
}

// Docs reports whether Javadoc was generated for the task.
func (g *Gradle) Docs(ctx context.Context, wc grading.WorkingCopy, taskID string) (bool, error) {
	dir := wc.TaskDir(taskID)
	out := filepath.Join(dir, JavadocDir)
	if err := os.RemoveAll(out); err != nil {
		return false, fmt.Errorf("clear stale javadoc: %w", err)
	}

	res, err := g.run(ctx, dir, g.cfg.DocTasks)
	if err != nil {
		return false, err
	}
	return res.Success() && isDir(out), nil
}

func (g *Gradle) run(ctx context.Context, dir string, tasks []string) (Result, error) {
	cmd := Command{
		Dir:  dir,
		Name: g.executable(dir),
		Args: append(append([]string{}, g.cfg.Args...), tasks...),
	}
	res, err := g.runner.Run(ctx, cmd)
	if err != nil {
		return res, ErrToolchain.Wrap(err)
	}
	logger.FromContext(ctx).Debug("gradle finished",
		logger.Operation(strings.Join(tasks, " ")),
		"exit_code", res.ExitCode,
		logger.Latency(res.Duration),
	)
	return res, nil
}

func (g *Gradle) executable(dir string) string {
	if g.cfg.UseWrapper {
		if info, err := os.Stat(filepath.Join(dir, "gradlew")); err == nil && !info.IsDir() {
			return "./gradlew"
		}
	}
	return g.cfg.Executable
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
