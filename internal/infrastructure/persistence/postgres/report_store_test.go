package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
)

func TestResultRows(t *testing.T) {
	r := &grading.Report{
		RunID: "run-1",
		Settings: grading.Settings{
			MarksMap: grading.MarksMap{Satisfactory: 1, Good: 2, Excellent: 3},
		},
	}
	r.Complete([]grading.StudentResult{
		{
			Student:  grading.Student{Name: "Ann", Nickname: "ann", Group: "g1"},
			Outcomes: []grading.StageOutcome{{Task: grading.Task{ID: "t1"}, Points: 2}},
		},
		{
			Student:  grading.Student{Nickname: "bob"},
			Degraded: true,
			Error:    "clone failed",
		},
	}, time.Now())

	rows, err := resultRows(r)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	ann := rows[0]
	assert.Equal(t, "ann", ann.Nickname)
	assert.Equal(t, "Ann", ann.StudentName)
	assert.Equal(t, "g1", ann.Group)
	assert.Equal(t, 2.0, ann.TaskPoints)
	assert.Equal(t, 2.0, ann.Total)
	assert.Equal(t, grading.MarkGood, ann.Mark)

	var decoded grading.StudentResult
	require.NoError(t, json.Unmarshal(ann.Result, &decoded))
	assert.Equal(t, "ann", decoded.Student.Nickname)
	require.Len(t, decoded.Outcomes, 1)
	assert.Equal(t, 2.0, decoded.Outcomes[0].Points)

	assert.True(t, rows[1].Degraded)
	assert.Equal(t, "clone failed", rows[1].Error)
	assert.Equal(t, 1, degradedCount(r))
}

func TestPending(t *testing.T) {
	all := Migrations()
	require.Len(t, all, 2)

	assert.Equal(t, all, pending(all, nil))
	assert.Equal(t, all[1:], pending(all, map[int]time.Time{1: time.Now()}))
	assert.Empty(t, pending(all, map[int]time.Time{1: time.Now(), 2: time.Now()}))
	assert.Empty(t, pending([]Migration{{Version: 9}}, nil))
}

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "pw"
	assert.Equal(t,
		"host=localhost port=5432 dbname=taskchecker user=postgres password=pw sslmode=disable connect_timeout=10",
		cfg.DSN())

	cfg.URL = "postgres://u:p@db:5432/grades"
	assert.Equal(t, cfg.URL, cfg.DSN())

	pool, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(4), pool.MaxConns)
	assert.Equal(t, "db", pool.ConnConfig.Host)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("syntax")))
	assert.True(t, IsTransient(fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40001"})))
	assert.False(t, IsTransient(&pgconn.PgError{Code: "23505"}))
}
