// Package vcs keeps local working copies of students' repositories and reads
// their history.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/domain/shared"
	"github.com/alem-hub/taskchecker/pkg/logger"
)

// Errors
var (
	ErrSync    = shared.NewDomainError("vcs", "Sync", shared.ErrExternalService, "repository sync failed")
	ErrHistory = shared.NewDomainError("vcs", "Deadlines", shared.ErrExternalService, "cannot read commit history")
)

// Config configures Git.
type Config struct {
	// Root holds one working copy per student, named by nickname.
	Root string
	// Token is sent as basic-auth password when set.
	Token string
	// Location decides which calendar day a commit belongs to.
	Location *time.Location
}

// Git clones or updates working copies and reads deadlines from their history.
type Git struct {
	root string
	auth transport.AuthMethod
	loc  *time.Location
}

// New creates a Git adapter. The root directory is created if needed.
func New(cfg Config) (*Git, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("vcs: empty repositories root")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("vcs: create %s: %w", cfg.Root, err)
	}
	g := &Git{root: cfg.Root, loc: cfg.Location}
	if g.loc == nil {
		g.loc = time.UTC
	}
	if cfg.Token != "" {
		g.auth = &githttp.BasicAuth{Username: "x-access-token", Password: cfg.Token}
	}
	return g, nil
}

// Path returns where a student's working copy lives.
func (g *Git) Path(student grading.Student) string {
	return filepath.Join(g.root, student.Nickname)
}

// Sync clones the repository on first use and pulls it afterwards.
func (g *Git) Sync(ctx context.Context, student grading.Student) (grading.WorkingCopy, error) {
	log := logger.FromContext(ctx).With(logger.Component("vcs"))
	wc := grading.WorkingCopy{Student: student, Path: g.Path(student)}

	repo, err := git.PlainOpen(wc.Path)
	switch {
	case errors.Is(err, git.ErrRepositoryNotExists):
		// A leftover directory without .git would make the clone fail.
		if err := os.RemoveAll(wc.Path); err != nil {
			return wc, ErrSync.Wrap(err)
		}
		start := time.Now()
		_, err = git.PlainCloneContext(ctx, wc.Path, false, &git.CloneOptions{
			URL:  student.Repository,
			Auth: g.auth,
		})
		if err != nil {
			return wc, ErrSync.Wrap(fmt.Errorf("clone %s: %w", student.Repository, err))
		}
		log.Debug("repository cloned", logger.StudentID(student.ID()), logger.Latency(time.Since(start)))
		return wc, nil
	case err != nil:
		return wc, ErrSync.Wrap(fmt.Errorf("open %s: %w", wc.Path, err))
	}

	wt, err := repo.Worktree()
	if err != nil {
		return wc, ErrSync.Wrap(err)
	}
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: git.DefaultRemoteName, Auth: g.auth})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return wc, ErrSync.Wrap(fmt.Errorf("pull %s: %w", student.Repository, err))
	}
	log.Debug("repository updated", logger.StudentID(student.ID()))
	return wc, nil
}

// CleanUp removes the working copy.
func (g *Git) CleanUp(_ context.Context, wc grading.WorkingCopy) error {
	if err := os.RemoveAll(wc.Path); err != nil {
		return fmt.Errorf("vcs: remove %s: %w", wc.Path, err)
	}
	return nil
}

// Deadlines judges the task by the oldest and newest commits that touch its
// directory. A task that was never committed misses both deadlines.
func (g *Git) Deadlines(ctx context.Context, task grading.Task, wc grading.WorkingCopy) (grading.DeadlineResult, error) {
	first, last, err := g.commitRange(ctx, wc.Path, task.ID)
	if err != nil {
		return grading.DeadlineResult{}, ErrHistory.Wrap(fmt.Errorf("task %s: %w", task.ID, err))
	}
	if first.IsZero() {
		logger.FromContext(ctx).Debug("no commits for task", logger.Task(task.ID))
	}
	return grading.EvaluateDeadlines(task, first, last), nil
}

func (g *Git) commitRange(ctx context.Context, path, dir string) (first, last shared.Date, err error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return first, last, err
	}
	head, err := repo.Head()
	if err != nil {
		return first, last, err
	}

	prefix := strings.TrimSuffix(filepath.ToSlash(dir), "/") + "/"
	iter, err := repo.Log(&git.LogOptions{
		From:       head.Hash(),
		PathFilter: func(p string) bool { return strings.HasPrefix(p, prefix) },
	})
	if err != nil {
		return first, last, err
	}
	defer iter.Close()

	var oldest, newest time.Time
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		when := c.Committer.When
		if oldest.IsZero() || when.Before(oldest) {
			oldest = when
		}
		if newest.IsZero() || when.After(newest) {
			newest = when
		}
		return nil
	})
	if err != nil {
		return first, last, err
	}
	if oldest.IsZero() {
		return first, last, nil
	}
	return shared.DateOf(oldest.In(g.loc)), shared.DateOf(newest.In(g.loc)), nil
}
