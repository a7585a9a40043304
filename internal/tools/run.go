package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nathanielparke/cannoli/internal/command"
	"github.com/nathanielparke/cannoli/internal/dataset"
	"github.com/nathanielparke/cannoli/internal/formats"
	"github.com/nathanielparke/cannoli/internal/pipe"
	"github.com/nathanielparke/cannoli/internal/store"
)

// job describes one pipe run from file to file.
type job[T, U any] struct {
	tool   string
	cmd    *command.Command
	input  string
	output string
	common *Common

	// in/out are the on-disk codecs; ser/de speak to the tool.
	in  formats.Codec[T]
	out formats.Codec[U]
	ser formats.Serializer[T]
	de  formats.Deserializer[U]
}

// detect picks the on-disk format of path, warning when the extension is
// not recognised.
func detect(logger *slog.Logger, path string) formats.Format {
	f, known := formats.Detect(path)
	if !known {
		logger.Warn("unrecognised extension, using native format", "path", path)
	}
	return f
}

// run loads the input, pipes it through the tool and saves the result,
// recording the job in the ledger when one is configured.
func run[T, U any](ctx context.Context, env *Env, j job[T, U]) (err error) {
	if env.Cluster == nil {
		return errors.New("no cluster configured")
	}
	if j.out.Serializer == nil {
		return &command.ConfigurationError{Option: "output", Reason: fmt.Sprintf("%s output is not supported", j.out.Format)}
	}
	logger := env.Logger.With("tool", j.tool, "job_id", env.Cluster.JobID())

	coll, err := dataset.Load(j.input, j.in, j.common.Partitions)
	if err != nil {
		return fmt.Errorf("load %s: %w", j.input, err)
	}
	logger.Info("input loaded", "path", j.input, "records", coll.Count(), "partitions", coll.NumPartitions())

	if env.Server != nil {
		for _, ref := range j.cmd.Files() {
			if ref.Mode != command.Staged || ref.Prefix {
				continue
			}
			if _, err := env.Server.Register(ref.Path); err != nil {
				return fmt.Errorf("serve %s: %w", ref.Path, err)
			}
		}
	}

	var opts []pipe.Option
	if env.Ledger != nil {
		rec := &store.Job{
			ID:         env.Cluster.JobID(),
			Tool:       j.tool,
			Command:    j.cmd.String(),
			Strategy:   j.cmd.Strategy().String(),
			Input:      j.input,
			Output:     j.output,
			Partitions: coll.NumPartitions(),
			State:      store.JobRunning,
			CreatedAt:  time.Now().UTC(),
		}
		if err := env.Ledger.CreateJob(ctx, rec); err != nil {
			return fmt.Errorf("record job: %w", err)
		}
		defer func() {
			state, msg := store.JobSucceeded, ""
			if err != nil {
				state, msg = store.JobFailed, err.Error()
			}
			if ferr := env.Ledger.FinishJob(context.WithoutCancel(ctx), rec.ID, state, msg); ferr != nil {
				logger.Warn("failed to record job result", "error", ferr)
			}
		}()
		opts = append(opts, pipe.WithRecorder(store.NewRecorder(env.Ledger, rec.ID)))
	}

	start := time.Now()
	result, err := pipe.Apply(ctx, env.Cluster, coll, j.cmd, j.ser, j.de, opts...)
	if err != nil {
		return err
	}
	if err := dataset.Save(j.output, j.out, result, j.common.SaveOptions()); err != nil {
		return fmt.Errorf("save %s: %w", j.output, err)
	}
	logger.Info("output saved", "path", j.output, "records", result.Count(), "duration", time.Since(start))
	return nil
}
