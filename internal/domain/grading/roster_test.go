package grading

import (
	"testing"
	"time"

	"github.com/alem-hub/taskchecker/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoster() Roster {
	return Roster{
		Tasks: []Task{
			{ID: "Task_1_1_1", Title: "Heapsort", Points: 1},
			{ID: "Task_1_1_2", Title: "Polynomial", Points: 1},
			{ID: "Task_1_2_1", Title: "Tree", Points: 2},
		},
		Groups: []Group{
			{Name: "22213", Students: []string{"alice", "bob"}},
		},
		Students: []Student{
			{Name: "Alice A.", Nickname: "alice", Repository: "https://github.com/alice/OOP.git"},
			{Name: "Bob B.", Nickname: "bob", Repository: "https://github.com/bob/OOP.git"},
			{Name: "Carol C.", Nickname: "carol", Repository: "https://github.com/carol/OOP.git", Group: "22214"},
		},
	}
}

func TestRoster_Lookups(t *testing.T) {
	r := testRoster()

	task, err := r.TaskByName("Polynomial")
	require.NoError(t, err)
	assert.Equal(t, "Task_1_1_2", task.ID)

	task, err = r.TaskByName("Task_1_2_1")
	require.NoError(t, err)
	assert.Equal(t, "Tree", task.Title)

	s, err := r.StudentByName("Bob B.")
	require.NoError(t, err)
	assert.Equal(t, "bob", s.Nickname)

	g, err := r.GroupByName("22213")
	require.NoError(t, err)
	assert.Len(t, g.Students, 2)

	_, err = r.TaskByName("missing")
	assert.ErrorIs(t, err, ErrNoSuchTask)
	assert.True(t, shared.IsNotFound(err))

	_, err = r.StudentByName("missing")
	assert.ErrorIs(t, err, ErrNoSuchStudent)

	_, err = r.GroupByName("missing")
	assert.ErrorIs(t, err, ErrNoSuchGroup)
}

func TestRoster_AddStudentsDeduplicates(t *testing.T) {
	r := testRoster()

	added := r.AddStudents(
		Student{Nickname: "alice", Repository: "other"},
		Student{Nickname: "dave", Repository: "https://github.com/dave/OOP.git"},
		Student{Nickname: "dave", Repository: "dup"},
	)

	assert.Equal(t, 1, added)
	assert.Len(t, r.Students, 4)
	s, err := r.StudentByName("alice")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/alice/OOP.git", s.Repository)
}

func TestRoster_Validate(t *testing.T) {
	r := testRoster()
	require.NoError(t, r.Validate())

	r.Tasks = append(r.Tasks, Task{ID: "Task_1_1_1"})
	r.Students = append(r.Students, Student{Nickname: "eve"})
	r.Groups = append(r.Groups, Group{Name: "x", Students: []string{"ghost"}})

	err := r.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateTask)
	assert.ErrorIs(t, err, ErrInvalidStudent)
	assert.ErrorIs(t, err, ErrNoSuchStudent)
}

func TestTask_ValidateDeadlineOrder(t *testing.T) {
	task := Task{
		ID:           "Task_1",
		SoftDeadline: shared.NewDate(2024, time.October, 20),
		HardDeadline: shared.NewDate(2024, time.October, 10),
	}
	assert.ErrorIs(t, task.Validate(), ErrInvalidTask)
}

func TestRoster_WorkItems(t *testing.T) {
	r := testRoster()

	items, err := r.WorkItems([]Assignment{
		{Group: "22213", Tasks: []string{"Task_1_1_1"}},
		{Student: "carol", Tasks: []string{"Tree"}},
		{Student: "alice", Tasks: []string{"Heapsort", "Polynomial"}},
	})
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "alice", items[0].Student.Nickname)
	assert.Equal(t, "22213", items[0].Student.Group)
	require.Len(t, items[0].Tasks, 2)
	assert.Equal(t, "Task_1_1_1", items[0].Tasks[0].ID)
	assert.Equal(t, "Task_1_1_2", items[0].Tasks[1].ID)

	assert.Equal(t, "bob", items[1].Student.Nickname)
	assert.Len(t, items[1].Tasks, 1)

	assert.Equal(t, "carol", items[2].Student.Nickname)
	assert.Equal(t, "Task_1_2_1", items[2].Tasks[0].ID)
}

func TestRoster_WorkItemsErrors(t *testing.T) {
	r := testRoster()

	_, err := r.WorkItems([]Assignment{{Student: "alice", Tasks: []string{"nope"}}})
	assert.ErrorIs(t, err, ErrNoSuchTask)

	_, err = r.WorkItems([]Assignment{{Group: "nope", Tasks: []string{"Tree"}}})
	assert.ErrorIs(t, err, ErrNoSuchGroup)

	_, err = r.WorkItems([]Assignment{{Tasks: []string{"Tree"}}})
	assert.ErrorIs(t, err, ErrEmptyAssignment)
}

func TestReport_Complete(t *testing.T) {
	r := testRoster()
	settings := Settings{
		PointsForActivityPerWeek: 0.5,
		MarksMap:                 MarksMap{Excellent: 2, Good: 1, Satisfactory: 0.5},
	}
	started := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)
	report := NewReport("run-1", r, settings, started)

	activity := SummarizeActivity([]WeeklyCommits{{Commits: 1}, {Commits: 2}})
	results := []StudentResult{
		{Student: r.Students[1], Outcomes: []StageOutcome{{Points: 0.5}}},
		{Student: r.Students[0], Activity: &activity, Outcomes: []StageOutcome{{Points: 1}, {Points: 0.5}}},
	}
	report.Complete(results, started.Add(time.Minute))

	require.Len(t, report.Summaries, 2)
	assert.Equal(t, "alice", report.Summaries[0].Nickname)

	alice, ok := report.Summary("alice")
	require.True(t, ok)
	assert.Equal(t, 1.5, alice.TaskPoints)
	assert.Equal(t, 1.0, alice.ActivityPoints)
	assert.Equal(t, 2.5, alice.Total)
	assert.Equal(t, MarkExcellent, alice.Mark)

	bob, ok := report.Summary("bob")
	require.True(t, ok)
	assert.Equal(t, MarkSatisfactory, bob.Mark)
	assert.Len(t, report.Tasks, 3)
}
