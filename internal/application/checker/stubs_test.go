package checker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/domain/shared"
)

// stubStages implements every pipeline stage with deterministic answers.
// Maps are read-only once a test starts.
type stubStages struct {
	syncErr   map[string]error // by nickname
	panicOn   map[string]bool  // by nickname
	buildFail map[string]bool  // by task id
	buildErr  map[string]error // by task id
	testErr   map[string]error // by task id
	tests     map[string]grading.TestCounts
	docErr    error
	deadlines grading.DeadlineResult
	deadErr   error

	mu      sync.Mutex
	synced  []string
	cleaned []string
}

func newStubStages() *stubStages {
	return &stubStages{
		deadlines: grading.DeadlineResult{SoftPass: true, HardPass: true},
	}
}

func (s *stubStages) stages() Stages {
	return Stages{Sync: s, Build: s, Test: s, Docs: s, Deadlines: s, Cleaner: s}
}

func (s *stubStages) Sync(_ context.Context, student grading.Student) (grading.WorkingCopy, error) {
	s.mu.Lock()
	s.synced = append(s.synced, student.Nickname)
	s.mu.Unlock()

	if s.panicOn[student.Nickname] {
		panic("corrupted working copy of " + student.Nickname)
	}
	if err := s.syncErr[student.Nickname]; err != nil {
		return grading.WorkingCopy{}, err
	}
	return grading.WorkingCopy{Student: student, Path: "/repos/" + student.Nickname}, nil
}

func (s *stubStages) CleanUp(_ context.Context, wc grading.WorkingCopy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleaned = append(s.cleaned, wc.Student.Nickname)
	return nil
}

func (s *stubStages) Build(_ context.Context, _ grading.WorkingCopy, taskID string) (bool, error) {
	if err := s.buildErr[taskID]; err != nil {
		return false, err
	}
	return !s.buildFail[taskID], nil
}

func (s *stubStages) Test(_ context.Context, _ grading.WorkingCopy, taskID string) (grading.TestCounts, error) {
	if err := s.testErr[taskID]; err != nil {
		return grading.TestCounts{}, err
	}
	if c, ok := s.tests[taskID]; ok {
		return c, nil
	}
	return grading.TestCounts{Total: 4, Passed: 4}, nil
}

func (s *stubStages) Docs(context.Context, grading.WorkingCopy, string) (bool, error) {
	if s.docErr != nil {
		return false, s.docErr
	}
	return true, nil
}

func (s *stubStages) Deadlines(context.Context, grading.Task, grading.WorkingCopy) (grading.DeadlineResult, error) {
	if s.deadErr != nil {
		return grading.DeadlineResult{}, s.deadErr
	}
	return s.deadlines, nil
}

func (s *stubStages) syncedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.synced)
}

// stubActivity returns the same weeks for everybody.
type stubActivity struct {
	weeks []grading.WeeklyCommits
	err   error
}

func (a stubActivity) WeeklyCommits(context.Context, grading.Student, shared.Date, shared.Date) ([]grading.WeeklyCommits, error) {
	return a.weeks, a.err
}

func testTasks() []grading.Task {
	return []grading.Task{
		{ID: "Task_1_1_1", Title: "Heapsort", Points: 1},
		{ID: "Task_1_1_2", Title: "Polynomial", Points: 1},
		{ID: "Task_1_1_3", Title: "Graph", Points: 1},
	}
}

func student(i int) grading.Student {
	nick := fmt.Sprintf("s%02d", i)
	return grading.Student{
		Name:       "Student " + nick,
		Nickname:   nick,
		Repository: "https://github.com/" + nick + "/OOP.git",
	}
}

func makeItems(n int) []grading.WorkItem {
	items := make([]grading.WorkItem, n)
	for i := range items {
		items[i] = grading.NewWorkItem(student(i), testTasks())
	}
	return items
}

func nicknames(results []grading.StudentResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Student.Nickname
	}
	sort.Strings(out)
	return out
}

func byNickname(results []grading.StudentResult) map[string]grading.StudentResult {
	out := make(map[string]grading.StudentResult, len(results))
	for _, r := range results {
		out[r.Student.Nickname] = r
	}
	return out
}
