package plagiarism

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/infrastructure/toolchain"
	"github.com/alem-hub/taskchecker/pkg/timeutil"
)

type fakeRunner struct {
	cmd    toolchain.Command
	result toolchain.Result
	write  bool
}

func (f *fakeRunner) Run(_ context.Context, cmd toolchain.Command) (toolchain.Result, error) {
	f.cmd = cmd
	if f.write {
		report := cmd.Args[slices.Index(cmd.Args, "-r")+1]
		if err := os.WriteFile(report, []byte("PK"), 0o644); err != nil {
			return toolchain.Result{}, err
		}
	}
	return f.result, nil
}

func candidates(root string, nicks ...string) []grading.WorkingCopy {
	out := make([]grading.WorkingCopy, 0, len(nicks))
	for _, n := range nicks {
		out = append(out, grading.WorkingCopy{Student: grading.Student{Nickname: n}, Path: filepath.Join(root, n)})
	}
	return out
}

func newChecker(t *testing.T, runner toolchain.Runner) (*JPlag, string) {
	t.Helper()
	folder := filepath.Join(t.TempDir(), "reports")
	cfg := DefaultConfig()
	cfg.ReportFolder = folder
	clock := timeutil.Fixed(time.Date(2024, 12, 20, 9, 5, 7, 0, time.UTC))
	return New(runner, cfg, clock), folder
}

func TestJPlag_Check(t *testing.T) {
	runner := &fakeRunner{write: true}
	j, folder := newChecker(t, runner)
	root := t.TempDir()

	report, err := j.Check(context.Background(), candidates(root, "base", "s01", "s02"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(folder, "2024-12-20T09-05-07_plagiarism_report.zip"), report)
	assert.FileExists(t, report)
	assert.Equal(t, "java", runner.cmd.Name)
	assert.Equal(t, []string{
		"-jar", "jplag.jar", "-l", "java",
		"-bc", filepath.Join(root, "base"),
		"-r", report,
		filepath.Join(root, "s01"),
		filepath.Join(root, "s02"),
	}, runner.cmd.Args)
}

func TestJPlag_NeedsTwoCandidates(t *testing.T) {
	runner := &fakeRunner{}
	j, _ := newChecker(t, runner)

	_, err := j.Check(context.Background(), candidates(t.TempDir(), "only"))

	assert.ErrorIs(t, err, grading.ErrNotEnoughPlagiarismCandidates)
	assert.Empty(t, runner.cmd.Name)
}

func TestJPlag_Failures(t *testing.T) {
	j, _ := newChecker(t, &fakeRunner{result: toolchain.Result{ExitCode: 1, Output: "Exception in thread main"}})
	_, err := j.Check(context.Background(), candidates(t.TempDir(), "a", "b"))
	assert.ErrorIs(t, err, ErrJPlag)
	assert.ErrorContains(t, err, "exit status 1")

	j, _ = newChecker(t, &fakeRunner{})
	_, err = j.Check(context.Background(), candidates(t.TempDir(), "a", "b"))
	assert.ErrorIs(t, err, ErrJPlag)
	assert.ErrorContains(t, err, "report not written")
}
