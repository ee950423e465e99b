package grading

import (
	"path/filepath"
	"strings"

	"github.com/alem-hub/taskchecker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TASK
// ══════════════════════════════════════════════════════════════════════════════

// Task is one assignment. It is loaded once from configuration and shared
// read-only by every worker of a run. Points is the weight of the task in
// downstream reporting.
type Task struct {
	// ID is also the directory of the task inside a student's repository.
	ID     string  `json:"id" yaml:"id"`
	Title  string  `json:"title" yaml:"title"`
	Points float64 `json:"points" yaml:"points"`

	SoftDeadline shared.Date `json:"softDeadline" yaml:"softDeadline"`
	HardDeadline shared.Date `json:"hardDeadline" yaml:"hardDeadline"`
}

// Validate checks that the task can be graded.
func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrInvalidTask.Withf("empty id")
	}
	if t.Points < 0 {
		return ErrInvalidTask.Withf("task %s: negative points", t.ID)
	}
	if !t.SoftDeadline.IsZero() && !t.HardDeadline.IsZero() && t.SoftDeadline.After(t.HardDeadline) {
		return ErrInvalidTask.Withf("task %s: soft deadline %s is after hard deadline %s",
			t.ID, t.SoftDeadline, t.HardDeadline)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT & GROUP
// ══════════════════════════════════════════════════════════════════════════════

// Student identifies whose repository is graded.
type Student struct {
	Name       string `json:"studentName" yaml:"name"`
	Nickname   string `json:"nickname" yaml:"nickname"`
	Repository string `json:"repository" yaml:"repository"`
	Group      string `json:"groupName,omitempty" yaml:"group"`
}

// ID returns the stable identity of the student within a run.
func (s Student) ID() string {
	return s.Nickname
}

// Validate checks the fields every stage relies on.
func (s Student) Validate() error {
	if strings.TrimSpace(s.Nickname) == "" {
		return ErrInvalidStudent.Withf("empty nickname (name %q)", s.Name)
	}
	if strings.TrimSpace(s.Repository) == "" {
		return ErrInvalidStudent.Withf("student %s: empty repository", s.Nickname)
	}
	return nil
}

// Group is a named set of students referenced by nickname.
type Group struct {
	Name     string   `json:"name" yaml:"name"`
	Students []string `json:"students" yaml:"students"`
}

// ══════════════════════════════════════════════════════════════════════════════
// WORK ITEM
// ══════════════════════════════════════════════════════════════════════════════

// WorkItem is one student together with the ordered tasks to check for them.
// It is not modified after partitioning.
type WorkItem struct {
	Student Student
	Tasks   []Task
}

// NewWorkItem copies tasks so the item does not alias the caller's slice.
func NewWorkItem(student Student, tasks []Task) WorkItem {
	owned := make([]Task, len(tasks))
	copy(owned, tasks)
	return WorkItem{Student: student, Tasks: owned}
}

// WorkingCopy is a student's repository checked out on local disk. It is used
// by exactly one worker at a time.
type WorkingCopy struct {
	Student Student
	Path    string
}

// TaskDir returns the directory of a task inside the working copy.
func (w WorkingCopy) TaskDir(taskID string) string {
	return filepath.Join(w.Path, taskID)
}
