package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nathanielparke/cannoli/internal/pipe"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Partition runs finish concurrently; one connection serializes writers
	// and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, job *Job) error {
	s.logger.Debug("sql", "op", "insert", "table", "jobs", "id", job.ID)

	state := job.State
	if state == "" {
		state = JobRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, tool, command, strategy, input, output, partitions, state, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Tool, job.Command, job.Strategy, job.Input, job.Output, job.Partitions,
		string(state), job.Error, job.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*Job, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, tool, command, strategy, input, output, partitions, state, error, created_at, completed_at
		 FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "limit", limit)

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tool, command, strategy, input, output, partitions, state, error, created_at, completed_at
		 FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) FinishJob(ctx context.Context, id string, state JobState, errMsg string) error {
	s.logger.Debug("sql", "op", "update", "table", "jobs", "id", id, "state", state)

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(state), errMsg, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var job Job
	var state, createdAt string
	var completedAt sql.NullString
	if err := row.Scan(&job.ID, &job.Tool, &job.Command, &job.Strategy, &job.Input, &job.Output,
		&job.Partitions, &state, &job.Error, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	job.State = JobState(state)
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		job.CompletedAt = &t
	}
	return &job, nil
}

// --- Partition runs ---

func (s *SQLiteStore) AddPartition(ctx context.Context, rec *PartitionRecord) error {
	s.logger.Debug("sql", "op", "insert", "table", "partition_runs", "job_id", rec.JobID, "partition", rec.Partition)

	cmdJSON, err := json.Marshal(rec.Command)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO partition_runs
		 (job_id, part_index, worker, command, records_in, records_out, exit_code, stderr, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.Partition, rec.Worker, string(cmdJSON), rec.RecordsIn, rec.RecordsOut,
		rec.ExitCode, rec.Stderr, rec.Error,
		rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) ListPartitions(ctx context.Context, jobID string) ([]*PartitionRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "partition_runs", "job_id", jobID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, part_index, worker, command, records_in, records_out, exit_code, stderr, error, started_at, finished_at
		 FROM partition_runs WHERE job_id = ? ORDER BY part_index`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PartitionRecord
	for rows.Next() {
		var rec PartitionRecord
		var cmdJSON, startedAt, finishedAt string
		if err := rows.Scan(&rec.JobID, &rec.Partition, &rec.Worker, &cmdJSON, &rec.RecordsIn, &rec.RecordsOut,
			&rec.ExitCode, &rec.Stderr, &rec.Error, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cmdJSON), &rec.Command); err != nil {
			return nil, fmt.Errorf("unmarshal command: %w", err)
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Recorder adapts a Store to pipe.Recorder for one job.
type Recorder struct {
	store Store
	jobID string
}

// NewRecorder returns a pipe.Recorder writing partition runs of jobID.
func NewRecorder(st Store, jobID string) *Recorder {
	return &Recorder{store: st, jobID: jobID}
}

// RecordPartition implements pipe.Recorder.
func (r *Recorder) RecordPartition(ctx context.Context, run pipe.PartitionRun) error {
	rec := &PartitionRecord{
		JobID:      r.jobID,
		Partition:  run.Partition,
		Worker:     run.Worker,
		Command:    run.Command,
		RecordsIn:  run.RecordsIn,
		RecordsOut: run.RecordsOut,
		ExitCode:   run.ExitCode,
		Stderr:     run.Stderr,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if run.Err != nil {
		rec.Error = run.Err.Error()
	}
	return r.store.AddPartition(ctx, rec)
}

var _ pipe.Recorder = (*Recorder)(nil)
