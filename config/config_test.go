package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/domain/shared"
)

const sampleCourse = `
tasks:
  - id: Task_1_1_1
    title: HeapSort
    points: 1
    softDeadline: 2024-09-17
    hardDeadline: 2024-09-24
  - {id: Task_1_1_2, title: Polynomial, points: 2}
groups:
  - name: "23213"
    students: [alice, bob]
students:
  - {name: Alice, nickname: alice, repository: https://github.com/alice/OOP.git, group: "23213"}
  - {name: Bob, nickname: bob, repository: https://github.com/bob/OOP.git, group: "23213"}
additionalSettings:
  controlPoints: [2024-09-01, 2024-12-20]
  pointsForActivenessPerWeek: 0.5
  runInParallel: true
  marksMap: {excellent: 10, good: 7, satisfactory: 4}
  plagiarismCandidates: [alice, bob]
  githubToken: from-file
  toCheck:
    - {group: "23213", tasks: [Task_1_1_1]}
    - {student: Bob, tasks: [Polynomial]}
`

func TestParseCourse(t *testing.T) {
	course, err := ParseCourse(strings.NewReader(sampleCourse))
	require.NoError(t, err)

	require.Len(t, course.Roster.Tasks, 2)
	assert.Equal(t, shared.NewDate(2024, 9, 17), course.Roster.Tasks[0].SoftDeadline)
	assert.True(t, course.Roster.Tasks[1].HardDeadline.IsZero())
	assert.Equal(t, []grading.Group{{Name: "23213", Students: []string{"alice", "bob"}}}, course.Roster.Groups)
	assert.Equal(t, "https://github.com/bob/OOP.git", course.Roster.Students[1].Repository)

	assert.Equal(t, []grading.Assignment{
		{Group: "23213", Tasks: []string{"Task_1_1_1"}},
		{Student: "Bob", Tasks: []string{"Polynomial"}},
	}, course.Assignments)

	s := course.Settings
	assert.Equal(t, []shared.Date{shared.NewDate(2024, 9, 1), shared.NewDate(2024, 12, 20)}, s.ControlPoints)
	assert.Equal(t, 0.5, s.PointsForActivityPerWeek)
	assert.True(t, s.RunInParallel)
	assert.False(t, s.CleanUp)
	assert.Equal(t, grading.MarksMap{Excellent: 10, Good: 7, Satisfactory: 4}, s.MarksMap)
	assert.Equal(t, DefaultRepositoriesPath, s.RepositoriesPath)
	assert.Equal(t, DefaultPlagiarismReportFolder, s.PlagiarismReportFolder)
	assert.Equal(t, []string{"alice", "bob"}, course.PlagiarismCandidates)

	assert.Equal(t, "from-file", course.Token(GitHubConfig{}))
	assert.Equal(t, "from-env", course.Token(GitHubConfig{Token: "from-env"}))
	assert.Equal(t, "2 tasks, 1 groups, 2 students, 2 assignments", course.String())

	_, err = course.Roster.WorkItems(course.Assignments)
	assert.NoError(t, err)
}

func TestParseCourse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "", "empty"},
		{"unknown key", "tasks: []\nadditionalSettings:\n  runInParalel: true\n", "runInParalel"},
		{"bad date", "additionalSettings:\n  controlPoints: [2024-13-01]\n", "2024-13-01"},
		{"nothing to check", "tasks: []\n", "toCheck is empty"},
		{"student and group", "additionalSettings:\n  toCheck:\n    - {student: a, group: g, tasks: [t]}\n", "exactly one"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCourse(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.True(t, shared.IsConfiguration(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadCourse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "course.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCourse), 0o644))

	course, err := LoadCourse(path)
	require.NoError(t, err)
	assert.Len(t, course.Roster.Students, 2)

	_, err = LoadCourse(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, shared.IsConfiguration(err))
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "course.yaml", cfg.Run.CourseFile)
	assert.Equal(t, DriverLocal, cfg.Toolchain.Driver)
	assert.Equal(t, 6*time.Hour, cfg.Run.WatchInterval)
	assert.Equal(t, 2*time.Minute, cfg.Run.DeliveryTimeout)
	assert.Equal(t, "OOP", cfg.GitHub.DefaultRepository)
	assert.True(t, cfg.Redis.Disabled)
	assert.Empty(t, cfg.Storage.Endpoint)
	assert.True(t, cfg.IsDevelopment())
	assert.NotNil(t, cfg.App.Location)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("RUN_WORKERS", "3")
	t.Setenv("TOOLCHAIN_DRIVER", "docker")
	t.Setenv("DOCKER_CPUS", "1.5")
	t.Setenv("RUN_WATCH_INTERVAL", "90m")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "grader")
	t.Setenv("DB_PASSWORD", "pw")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Run.Workers)
	assert.Equal(t, DriverDocker, cfg.Toolchain.Driver)
	assert.Equal(t, 1.5, cfg.Toolchain.DockerCPUs)
	assert.Equal(t, 90*time.Minute, cfg.Run.WatchInterval)
	assert.Equal(t, "postgres://grader:pw@db:5432/taskchecker?sslmode=disable", cfg.Database.URL)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("TOOLCHAIN_DRIVER", "podman")
	t.Setenv("S3_ENDPOINT", "minio:9000")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "TOOLCHAIN_DRIVER")
	assert.Contains(t, msg, "S3_ACCESS_KEY")
	assert.Contains(t, msg, "GITHUB_TOKEN is required in production")
}
