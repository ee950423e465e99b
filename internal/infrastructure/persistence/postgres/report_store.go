package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/pkg/logger"
	"github.com/alem-hub/taskchecker/pkg/retry"
)

// EncodeFunc renders a report and returns its digest.
type EncodeFunc func(*grading.Report) (data []byte, digest string, err error)

// ReportStore persists reports. Delivering the same run twice replaces the
// stored run and its results.
type ReportStore struct {
	conn    *Connection
	encode  EncodeFunc
	retrier *retry.Retrier
}

// NewReportStore creates the store. encode is shared with the other sinks so
// the digest stored here matches the one on the report file.
func NewReportStore(conn *Connection, encode EncodeFunc) *ReportStore {
	return &ReportStore{conn: conn, encode: encode, retrier: retry.DatabaseRetrier()}
}

// resultRow is one student_results row.
type resultRow struct {
	Nickname       string
	StudentName    string
	Group          string
	TaskPoints     float64
	ActivityPoints float64
	Total          float64
	Mark           int
	Degraded       bool
	Error          string
	Result         []byte
}

// resultRows joins each result with its summary.
func resultRows(r *grading.Report) ([]resultRow, error) {
	rows := make([]resultRow, 0, len(r.Results))
	for _, res := range r.Results {
		data, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("encode result of %s: %w", res.Student.Nickname, err)
		}
		row := resultRow{
			Nickname:    res.Student.Nickname,
			StudentName: res.Student.Name,
			Group:       res.Student.Group,
			Degraded:    res.Degraded,
			Error:       res.Error,
			Result:      data,
		}
		if s, ok := r.Summary(res.Student.Nickname); ok {
			row.TaskPoints = s.TaskPoints
			row.ActivityPoints = s.ActivityPoints
			row.Total = s.Total
			row.Mark = s.Mark
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func degradedCount(r *grading.Report) int {
	n := 0
	for _, res := range r.Results {
		if res.Degraded {
			n++
		}
	}
	return n
}

// Deliver stores the run and its per-student results in one transaction.
func (s *ReportStore) Deliver(ctx context.Context, r *grading.Report) error {
	data, digest, err := s.encode(r)
	if err != nil {
		return err
	}
	rows, err := resultRows(r)
	if err != nil {
		return err
	}
	workerErrors := r.WorkerErrors
	if workerErrors == nil {
		workerErrors = []string{}
	}

	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
			return s.write(ctx, tx, r, rows, workerErrors, digest, data)
		})
		if IsTransient(err) {
			return retry.Retryable(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("store run %s: %w", r.RunID, err)
	}

	logger.FromContext(ctx).Info("report stored",
		logger.RunID(r.RunID),
		"students", len(rows),
		"digest", digest,
	)
	return nil
}

func (s *ReportStore) write(ctx context.Context, q Querier, r *grading.Report, rows []resultRow, workerErrors []string, digest string, data []byte) error {
	_, err := q.Exec(ctx, `
		INSERT INTO grading_runs (run_id, started_at, finished_at, students, degraded, worker_errors, plagiarism_report, digest, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			students = EXCLUDED.students,
			degraded = EXCLUDED.degraded,
			worker_errors = EXCLUDED.worker_errors,
			plagiarism_report = EXCLUDED.plagiarism_report,
			digest = EXCLUDED.digest,
			report = EXCLUDED.report,
			stored_at = NOW()
	`, r.RunID, r.StartedAt, r.FinishedAt, len(rows), degradedCount(r), workerErrors, r.PlagiarismReport, digest, data)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	if _, err := q.Exec(ctx, `DELETE FROM student_results WHERE run_id = $1`, r.RunID); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO student_results
				(run_id, nickname, student_name, group_name, task_points, activity_points, total_points, mark, degraded, error, result)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, r.RunID, row.Nickname, row.StudentName, row.Group, row.TaskPoints, row.ActivityPoints, row.Total, row.Mark, row.Degraded, row.Error, row.Result)
	}
	if batch.Len() == 0 {
		return nil
	}

	results := q.SendBatch(ctx, batch)
	for _, row := range rows {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert result of %s: %w", row.Nickname, err)
		}
	}
	return results.Close()
}
