// Package store keeps a ledger of piped jobs and their partition runs.
package store

import (
	"context"
	"time"
)

// JobState is the lifecycle state of a job.
type JobState string

const (
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
)

// Job is one invocation of a wrapped tool over a dataset.
type Job struct {
	ID          string     `json:"id"`
	Tool        string     `json:"tool"`
	Command     string     `json:"command"`
	Strategy    string     `json:"strategy"`
	Input       string     `json:"input"`
	Output      string     `json:"output"`
	Partitions  int        `json:"partitions"`
	State       JobState   `json:"state"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PartitionRecord is the ledger row for one partition run.
type PartitionRecord struct {
	JobID      string    `json:"job_id"`
	Partition  int       `json:"partition"`
	Worker     int       `json:"worker"`
	Command    []string  `json:"command"`
	RecordsIn  int       `json:"records_in"`
	RecordsOut int       `json:"records_out"`
	ExitCode   int       `json:"exit_code"`
	Stderr     string    `json:"stderr,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store defines the persistence layer for the run ledger.
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	FinishJob(ctx context.Context, id string, state JobState, errMsg string) error

	AddPartition(ctx context.Context, rec *PartitionRecord) error
	ListPartitions(ctx context.Context, jobID string) ([]*PartitionRecord, error)

	Close() error
	Migrate(ctx context.Context) error
}
