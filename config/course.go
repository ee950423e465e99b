package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/domain/shared"
)

// ErrCourseFile wraps failures to read or decode the course file.
var ErrCourseFile = shared.NewDomainError("config", "LoadCourse", shared.ErrConfiguration, "invalid course file")

// Course is the content of the course file: the roster and what to check.
//
//	tasks:
//	  - {id: Task_1_1_1, title: HeapSort, points: 1, softDeadline: 2024-09-17, hardDeadline: 2024-09-24}
//	groups:
//	  - {name: "23213", students: [alice]}
//	students:
//	  - {name: Alice, nickname: alice, repository: https://github.com/alice/OOP.git, group: "23213"}
//	additionalSettings:
//	  controlPoints: [2024-09-01, 2024-12-20]
//	  pointsForActivenessPerWeek: 0.5
//	  runInParallel: true
//	  marksMap: {excellent: 10, good: 7, satisfactory: 4}
//	  toCheck:
//	    - {group: "23213", tasks: [Task_1_1_1]}
type Course struct {
	Roster               grading.Roster
	Assignments          []grading.Assignment
	Settings             grading.Settings
	PlagiarismCandidates []string

	// GitHubToken is read for compatibility with older course files. The
	// GITHUB_TOKEN environment variable takes precedence.
	GitHubToken string
}

type courseFile struct {
	Tasks    []grading.Task    `yaml:"tasks"`
	Groups   []grading.Group   `yaml:"groups"`
	Students []grading.Student `yaml:"students"`
	Settings settingsFile      `yaml:"additionalSettings"`
}

type settingsFile struct {
	ControlPoints          []shared.Date        `yaml:"controlPoints"`
	PointsPerActiveWeek    float64              `yaml:"pointsForActivenessPerWeek"`
	RunInParallel          bool                 `yaml:"runInParallel"`
	CleanUp                bool                 `yaml:"cleanUp"`
	MarksMap               grading.MarksMap     `yaml:"marksMap"`
	RepositoriesPath       string               `yaml:"repositoriesPath"`
	PlagiarismReportFolder string               `yaml:"plagiarismReportFolder"`
	PlagiarismCandidates   []string             `yaml:"plagiarismCandidates"`
	GitHubToken            string               `yaml:"githubToken"`
	ToCheck                []grading.Assignment `yaml:"toCheck"`
}

// Defaults of the course settings.
const (
	DefaultRepositoriesPath       = "repositories"
	DefaultPlagiarismReportFolder = "reports"
)

// LoadCourse reads and decodes the course file at path.
func LoadCourse(path string) (*Course, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ErrCourseFile.Wrap(err)
	}
	defer f.Close()
	return ParseCourse(f)
}

// ParseCourse decodes a course description. Unknown keys are rejected so a
// misspelled setting does not silently fall back to its default. Checking
// that names resolve is left to the check runner.
func ParseCourse(r io.Reader) (*Course, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrCourseFile.Wrap(err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file courseFile
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, ErrCourseFile.Withf("empty")
		}
		return nil, ErrCourseFile.Wrap(err)
	}

	s := file.Settings
	if s.RepositoriesPath == "" {
		s.RepositoriesPath = DefaultRepositoriesPath
	}
	if s.PlagiarismReportFolder == "" {
		s.PlagiarismReportFolder = DefaultPlagiarismReportFolder
	}

	if len(s.ToCheck) == 0 {
		return nil, ErrCourseFile.Withf("additionalSettings.toCheck is empty")
	}
	for i, a := range s.ToCheck {
		if (a.Student == "") == (a.Group == "") {
			return nil, ErrCourseFile.Withf("toCheck[%d]: exactly one of student and group is required", i)
		}
	}

	return &Course{
		Roster: grading.Roster{
			Tasks:    file.Tasks,
			Groups:   file.Groups,
			Students: file.Students,
		},
		Assignments: s.ToCheck,
		Settings: grading.Settings{
			ControlPoints:            s.ControlPoints,
			PointsForActivityPerWeek: s.PointsPerActiveWeek,
			RunInParallel:            s.RunInParallel,
			CleanUp:                  s.CleanUp,
			MarksMap:                 s.MarksMap,
			RepositoriesPath:         s.RepositoriesPath,
			PlagiarismReportFolder:   s.PlagiarismReportFolder,
		},
		PlagiarismCandidates: s.PlagiarismCandidates,
		GitHubToken:          s.GitHubToken,
	}, nil
}

// Token returns the GitHub token to use: the environment's when set,
// otherwise the course file's.
func (c *Course) Token(env GitHubConfig) string {
	if env.Token != "" {
		return env.Token
	}
	return c.GitHubToken
}

// String summarizes the course for logs.
func (c *Course) String() string {
	return fmt.Sprintf("%d tasks, %d groups, %d students, %d assignments",
		len(c.Roster.Tasks), len(c.Roster.Groups), len(c.Roster.Students), len(c.Assignments))
}
