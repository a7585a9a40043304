// Package pipe streams partitions of records through an external process:
// records are serialized onto its stdin and its stdout is parsed back into
// records.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nathanielparke/cannoli/internal/command"
	"github.com/nathanielparke/cannoli/internal/dataset"
	"github.com/nathanielparke/cannoli/internal/formats"
	"github.com/nathanielparke/cannoli/internal/logging"
	"github.com/nathanielparke/cannoli/internal/staging"
)

const defaultStderrLimit = 64 * 1024

// PartitionRun describes one finished partition, for the run ledger.
type PartitionRun struct {
	Partition  int
	Worker     int
	Command    []string
	RecordsIn  int
	RecordsOut int
	ExitCode   int
	Stderr     string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Recorder receives a PartitionRun for every partition, failed or not.
type Recorder interface {
	RecordPartition(ctx context.Context, run PartitionRun) error
}

type options struct {
	jobID       string
	recorder    Recorder
	stderrLimit int
	logger      *slog.Logger
}

// Option configures an Executor.
type Option func(*options)

// WithRecorder attaches a run ledger.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithStderrLimit bounds how much trailing stderr is kept per partition.
func WithStderrLimit(n int) Option {
	return func(o *options) { o.stderrLimit = n }
}

// WithJobID tags log lines with the job they belong to.
func WithJobID(id string) Option {
	return func(o *options) { o.jobID = id }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Executor runs one built command over partitions of T, producing U.
type Executor[T, U any] struct {
	cmd  *command.Command
	ser  formats.Serializer[T]
	de   formats.Deserializer[U]
	opts options
}

// New returns an Executor. The command may carry placeholders, which are
// resolved per partition.
func New[T, U any](cmd *command.Command, ser formats.Serializer[T], de formats.Deserializer[U], opts ...Option) *Executor[T, U] {
	o := options{stderrLimit: defaultStderrLimit, logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	o.logger = o.logger.With("component", "pipe")
	return &Executor[T, U]{cmd: cmd, ser: ser, de: de, opts: o}
}

// RunPartition pipes p through the command with placeholders resolved by
// sub and returns the parsed output as the partition of the same index.
func (e *Executor[T, U]) RunPartition(ctx context.Context, sub staging.Substitution, p dataset.Partition[T]) (dataset.Partition[U], error) {
	return e.run(ctx, -1, sub, p)
}

func (e *Executor[T, U]) run(ctx context.Context, worker int, sub staging.Substitution, p dataset.Partition[T]) (dataset.Partition[U], error) {
	tokens := sub.Resolve(e.cmd.Tokens())
	logger := logging.ForPartition(e.opts.logger, e.opts.jobID, p.Index)
	if worker >= 0 {
		logger = logger.With("worker", worker)
	}
	if missing := sub.Unresolved(tokens); len(missing) > 0 {
		logger.Debug("tokens left as written", "placeholders", missing)
	}

	run := PartitionRun{Partition: p.Index, Worker: worker, Command: tokens, RecordsIn: len(p.Records), ExitCode: -1, StartedAt: time.Now()}
	out, err := e.exec(ctx, logger, tokens, p.Records, &run)
	run.FinishedAt = time.Now()
	run.RecordsOut = len(out)
	run.Err = err

	if e.opts.recorder != nil {
		if rerr := e.opts.recorder.RecordPartition(context.WithoutCancel(ctx), run); rerr != nil {
			logger.Warn("record partition", "error", rerr)
		}
	}
	if err != nil {
		return dataset.Partition[U]{}, err
	}
	logger.Debug("partition done", "in", run.RecordsIn, "out", run.RecordsOut, "duration", run.FinishedAt.Sub(run.StartedAt))
	return dataset.Partition[U]{Index: p.Index, Records: out}, nil
}

func (e *Executor[T, U]) exec(ctx context.Context, logger *slog.Logger, tokens []string, in []T, run *PartitionRun) ([]U, error) {
	if len(tokens) == 0 {
		return nil, &command.ConfigurationError{Option: "executable", Reason: "empty command"}
	}

	runCtx := ctx
	if d := e.cmd.Timeout(); d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	procCtx, abort := context.WithCancel(runCtx)
	defer abort()

	proc := exec.CommandContext(procCtx, tokens[0], tokens[1:]...)
	proc.SysProcAttr = procAttr()
	proc.Cancel = func() error {
		return syscall.Kill(-proc.Process.Pid, syscall.SIGKILL)
	}
	if env := e.cmd.ProcessEnv(); len(env) > 0 {
		proc.Env = append(os.Environ(), env...)
	}

	stderr := newTailBuffer(e.opts.stderrLimit)
	proc.Stderr = stderr
	stdin, err := proc.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := proc.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	logger.Debug("starting", "command", strings.Join(tokens, " "))
	if err := proc.Start(); err != nil {
		return nil, &SubprocessError{ExitCode: -1, Command: tokens, Err: err}
	}

	var (
		g        errgroup.Group
		writeErr error
		out      []U
	)
	g.Go(func() error {
		err := e.ser.Serialize(stdin, in)
		if cerr := stdin.Close(); err == nil {
			err = cerr
		}
		var ee *formats.EncodingError
		if errors.As(err, &ee) {
			abort()
			return err
		}
		writeErr = err
		return nil
	})
	g.Go(func() error {
		recs, err := e.de.Deserialize(stdout)
		if err != nil {
			abort()
			return err
		}
		// Drain what the decoder left so the tool never blocks on stdout.
		io.Copy(io.Discard, stdout)
		out = recs
		return nil
	})
	streamErr := g.Wait()
	waitErr := proc.Wait()

	run.Stderr = stderr.String()
	if proc.ProcessState != nil {
		run.ExitCode = proc.ProcessState.ExitCode()
	}

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if ctx.Err() == nil && errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, &SubprocessError{ExitCode: -1, Stderr: run.Stderr, Command: tokens,
				Err: fmt.Errorf("timed out after %s", e.cmd.Timeout())}
		}
		return nil, ctxErr
	}

	// Encoding and decoding errors depend only on the bytes exchanged, so
	// they win over the exit status, which may come from our own abort.
	var exitErr *exec.ExitError
	switch {
	case streamErr != nil:
		logger.Warn("tool output rejected", "exit_code", run.ExitCode, "stderr", lastLine(run.Stderr), "error", streamErr)
		return nil, streamErr
	case errors.As(waitErr, &exitErr) && exitErr.ExitCode() > 0:
		return nil, &SubprocessError{ExitCode: exitErr.ExitCode(), Stderr: run.Stderr, Command: tokens}
	case waitErr != nil:
		return nil, &SubprocessError{ExitCode: -1, Stderr: run.Stderr, Command: tokens, Err: waitErr}
	}

	if writeErr != nil && !brokenPipe(writeErr) {
		return nil, fmt.Errorf("write stdin: %w", writeErr)
	}
	if writeErr != nil {
		logger.Debug("tool closed stdin early", "error", writeErr)
	}
	return out, nil
}

// brokenPipe reports a write that failed because the tool stopped reading.
// That is benign when the tool then exits 0, as head does.
func brokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed)
}
