// Package cluster runs partitions on a fixed pool of local workers. Each
// worker owns a staging directory that holds its copies of staged files.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/nathanielparke/cannoli/internal/command"
	"github.com/nathanielparke/cannoli/internal/staging"
)

// Config configures a Cluster.
type Config struct {
	// Workers is the number of concurrent workers. Default: runtime.NumCPU().
	Workers int

	// WorkDir holds the per-job staging directories. Default: os.TempDir().
	WorkDir string

	// JobID names this job's directory under WorkDir. Default: a new UUID.
	JobID string

	// Stager copies staged files to workers. Default: a FileStager.
	Stager staging.Stager

	// Remote, when set, is the base URL of the file server workers fetch
	// staged files from.
	Remote string

	Logger *slog.Logger
}

// Cluster is a local worker pool.
type Cluster struct {
	jobID  string
	jobDir string
	roots  []string
	stager staging.Stager
	remote string
	base   *slog.Logger
	logger *slog.Logger
}

// New creates the job's worker directories and returns the cluster.
func New(cfg Config) (*Cluster, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.JobID == "" {
		cfg.JobID = uuid.NewString()
	}
	if cfg.Stager == nil {
		cfg.Stager = staging.NewFileStager()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	jobDir, err := filepath.Abs(filepath.Join(cfg.WorkDir, cfg.JobID))
	if err != nil {
		return nil, fmt.Errorf("job dir: %w", err)
	}
	roots := make([]string, cfg.Workers)
	for i := range roots {
		roots[i] = filepath.Join(jobDir, fmt.Sprintf("worker-%d", i), "files")
		if err := os.MkdirAll(roots[i], 0o755); err != nil {
			return nil, fmt.Errorf("create worker %d dir: %w", i, err)
		}
	}

	return &Cluster{
		jobID:  cfg.JobID,
		jobDir: jobDir,
		roots:  roots,
		stager: cfg.Stager,
		remote: cfg.Remote,
		base:   cfg.Logger,
		logger: cfg.Logger.With("component", "cluster", "job_id", cfg.JobID),
	}, nil
}

// JobID returns the job identifier.
func (c *Cluster) JobID() string { return c.jobID }

// Workers returns the worker count.
func (c *Cluster) Workers() int { return len(c.roots) }

// Root returns the staging directory of worker w.
func (c *Cluster) Root(w int) string { return c.roots[w] }

// Logger returns the logger the cluster was configured with.
func (c *Cluster) Logger() *slog.Logger { return c.base }

func (c *Cluster) manager() *staging.Manager {
	var opts []staging.Option
	if c.remote != "" {
		opts = append(opts, staging.WithRemote(c.remote))
	}
	return staging.NewManager(c.stager, c.roots, c.base.With("job_id", c.jobID), opts...)
}

// Broadcast copies the staged files among refs to every worker.
func (c *Cluster) Broadcast(ctx context.Context, refs []command.FileRef) error {
	return c.manager().Stage(ctx, refs)
}

// Substitution maps refs to worker w's local paths.
func (c *Cluster) Substitution(w int, refs []command.FileRef) staging.Substitution {
	return staging.SubstitutionFor(c.roots[w], refs)
}

// Cleanup removes the job's directories.
func (c *Cluster) Cleanup() error {
	return os.RemoveAll(c.jobDir)
}

// Func runs task i on worker.
type Func func(ctx context.Context, worker, i int) error

// TaskError tags a failure with the task that produced it.
type TaskError struct {
	Task   int
	Worker int
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("partition %d (worker %d): %v", e.Task, e.Worker, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Run executes tasks 0..n-1 on the worker pool. The first failure cancels
// the remaining tasks and is returned.
func (c *Cluster) Run(ctx context.Context, n int, fn Func) error {
	if n == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	numWorkers := len(c.roots)
	if numWorkers > n {
		numWorkers = n
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				c.logger.Debug("running partition", "partition", i, "worker", w)
				if err := fn(ctx, w, i); err != nil {
					once.Do(func() {
						firstErr = &TaskError{Task: i, Worker: w, Err: err}
						cancel()
					})
					return
				}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		c.logger.Error("partition failed", "error", firstErr)
		return firstErr
	}
	return ctx.Err()
}
