package grading

import (
	"errors"
	"strings"
)

// Roster is the read-only description of a course: its tasks, groups and
// students.
type Roster struct {
	Tasks    []Task    `json:"tasks" yaml:"tasks"`
	Groups   []Group   `json:"groups" yaml:"groups"`
	Students []Student `json:"students" yaml:"students"`
}

// Assignment asks for a set of tasks to be checked for a student or for every
// student of a group. Tasks are referenced by id or title.
type Assignment struct {
	Student string   `yaml:"student"`
	Group   string   `yaml:"group"`
	Tasks   []string `yaml:"tasks"`
}

// Validate checks every task and student and rejects duplicates.
func (r *Roster) Validate() error {
	var errs []error

	taskIDs := make(map[string]struct{}, len(r.Tasks))
	for _, t := range r.Tasks {
		if err := t.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := taskIDs[t.ID]; dup {
			errs = append(errs, ErrDuplicateTask.Withf("%s", t.ID))
		}
		taskIDs[t.ID] = struct{}{}
	}

	nicknames := make(map[string]struct{}, len(r.Students))
	for _, s := range r.Students {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := nicknames[s.Nickname]; dup {
			errs = append(errs, ErrDuplicateStudent.Withf("%s", s.Nickname))
		}
		nicknames[s.Nickname] = struct{}{}
	}

	for _, g := range r.Groups {
		for _, nick := range g.Students {
			if _, ok := nicknames[nick]; !ok {
				errs = append(errs, ErrNoSuchStudent.Withf("%q in group %q", nick, g.Name))
			}
		}
	}

	return errors.Join(errs...)
}

// TaskByName finds a task by id or title.
func (r *Roster) TaskByName(name string) (Task, error) {
	for _, t := range r.Tasks {
		if t.ID == name || t.Title == name {
			return t, nil
		}
	}
	return Task{}, ErrNoSuchTask.Withf("%q", name)
}

// StudentByName finds a student by full name or nickname.
func (r *Roster) StudentByName(name string) (Student, error) {
	for _, s := range r.Students {
		if s.Name == name || s.Nickname == name {
			return s, nil
		}
	}
	return Student{}, ErrNoSuchStudent.Withf("%q", name)
}

// GroupByName finds a group by its name.
func (r *Roster) GroupByName(name string) (Group, error) {
	for _, g := range r.Groups {
		if g.Name == name {
			return g, nil
		}
	}
	return Group{}, ErrNoSuchGroup.Withf("%q", name)
}

// GroupStudents resolves the members of a group.
func (r *Roster) GroupStudents(name string) ([]Student, error) {
	g, err := r.GroupByName(name)
	if err != nil {
		return nil, err
	}
	students := make([]Student, 0, len(g.Students))
	for _, nick := range g.Students {
		s, err := r.StudentByName(nick)
		if err != nil {
			return nil, err
		}
		if s.Group == "" {
			s.Group = g.Name
		}
		students = append(students, s)
	}
	return students, nil
}

// AddStudents appends students whose nickname is not in the roster yet and
// returns how many were added.
func (r *Roster) AddStudents(students ...Student) int {
	known := make(map[string]struct{}, len(r.Students))
	for _, s := range r.Students {
		known[s.Nickname] = struct{}{}
	}

	added := 0
	for _, s := range students {
		if _, ok := known[s.Nickname]; ok {
			continue
		}
		known[s.Nickname] = struct{}{}
		r.Students = append(r.Students, s)
		added++
	}
	return added
}

// WorkItems resolves assignments into one work item per student.
//
// A student named by several assignments (directly or through groups) gets
// the union of their tasks. Students keep the order in which they were first
// named, tasks the order in which they were first requested.
func (r *Roster) WorkItems(assignments []Assignment) ([]WorkItem, error) {
	type entry struct {
		student Student
		tasks   []Task
		seen    map[string]struct{}
	}

	var (
		order   []string
		entries = make(map[string]*entry)
	)

	for _, a := range assignments {
		tasks := make([]Task, 0, len(a.Tasks))
		for _, name := range a.Tasks {
			t, err := r.TaskByName(name)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}

		var students []Student
		switch {
		case strings.TrimSpace(a.Student) != "":
			s, err := r.StudentByName(a.Student)
			if err != nil {
				return nil, err
			}
			students = []Student{s}
		case strings.TrimSpace(a.Group) != "":
			gs, err := r.GroupStudents(a.Group)
			if err != nil {
				return nil, err
			}
			students = gs
		default:
			return nil, ErrEmptyAssignment
		}

		for _, s := range students {
			e, ok := entries[s.Nickname]
			if !ok {
				e = &entry{student: s, seen: make(map[string]struct{})}
				entries[s.Nickname] = e
				order = append(order, s.Nickname)
			}
			for _, t := range tasks {
				if _, dup := e.seen[t.ID]; dup {
					continue
				}
				e.seen[t.ID] = struct{}{}
				e.tasks = append(e.tasks, t)
			}
		}
	}

	items := make([]WorkItem, 0, len(order))
	for _, nick := range order {
		e := entries[nick]
		items = append(items, NewWorkItem(e.student, e.tasks))
	}
	return items, nil
}
