package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nathanielparke/cannoli/internal/cluster"
	"github.com/nathanielparke/cannoli/internal/fileserver"
	"github.com/nathanielparke/cannoli/internal/staging"
	"github.com/nathanielparke/cannoli/internal/store"
	"github.com/nathanielparke/cannoli/internal/tools"
)

func newToolCmd(a *app, registry *tools.Registry, name string) *cobra.Command {
	tool, _ := registry.Get(name)
	_, takesArgs := tool.(tools.ArgTaker)

	use := name + " <input> <output>"
	args := cobra.ExactArgs(2)
	if takesArgs {
		use += " -- <command> [args...]"
		args = cobra.MinimumNArgs(2)
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: tool.Short(),
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			if t, ok := tool.(tools.ArgTaker); ok {
				if err := t.TakeArgs(args[2:]); err != nil {
					return err
				}
			}
			if err := tool.Validate(); err != nil {
				return err
			}
			return a.run(cmd.Context(), tool, args[0], args[1])
		},
	}
	tool.Bind(cmd.Flags())
	return cmd
}

// run wires a cluster, the optional ledger and file server, and runs tool.
func (a *app) run(ctx context.Context, tool tools.Tool, input, output string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	env := a.env()
	stager := staging.NewCompositeStager(map[string]staging.Stager{
		"http":  staging.NewHTTPStager(a.httpStagerConfig()),
		"https": staging.NewHTTPStager(a.httpStagerConfig()),
	}, staging.NewFileStager())

	if a.cfg.Ledger != "" {
		st, err := openLedger(ctx, a.cfg.Ledger, a.logger)
		if err != nil {
			return err
		}
		defer st.Close()
		env.Ledger = st
	}

	var remote string
	if a.cfg.ServeFiles != "" {
		var opts []fileserver.Option
		if env.Ledger != nil {
			opts = append(opts, fileserver.WithLedger(env.Ledger))
		}
		srv := fileserver.New(a.logger, opts...)
		url, done, err := srv.Serve(ctx, a.cfg.ServeFiles)
		if err != nil {
			return err
		}
		defer func() {
			cancel()
			if err := <-done; err != nil {
				a.logger.Warn("file server stopped with error", "error", err)
			}
		}()
		env.Server = srv
		remote = url
	}

	cl, err := cluster.New(cluster.Config{
		Workers: a.cfg.Workers,
		WorkDir: a.cfg.WorkDir,
		Stager:  stager,
		Remote:  remote,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}
	if !a.cfg.KeepWorkDir {
		defer func() {
			if err := cl.Cleanup(); err != nil {
				a.logger.Warn("failed to remove work dir", "error", err)
			}
		}()
	}
	env.Cluster = cl

	a.logger.Info("job started", "tool", tool.Name(), "job_id", cl.JobID(), "workers", cl.Workers())
	if err := tool.Run(ctx, env, input, output); err != nil {
		return fmt.Errorf("%s: %w", tool.Name(), err)
	}
	a.logger.Info("job finished", "tool", tool.Name(), "job_id", cl.JobID())
	return nil
}

// env returns the tool environment without any runtime wiring.
func (a *app) env() *tools.Env {
	return &tools.Env{
		Config: a.cfg,
		Logger: a.logger,
		Files:  staging.NewManager(nil, nil, a.logger),
	}
}

func (a *app) httpStagerConfig() staging.HTTPStagerConfig {
	return staging.HTTPStagerConfig{
		Timeout:    a.cfg.Staging.Timeout,
		MaxRetries: a.cfg.Staging.MaxRetries,
		RetryDelay: a.cfg.Staging.RetryDelay,
	}
}

func openLedger(ctx context.Context, path string, logger *slog.Logger) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return st, nil
}
