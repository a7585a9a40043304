// Package cli implements the cannoli command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nathanielparke/cannoli/internal/config"
	"github.com/nathanielparke/cannoli/internal/logging"
	"github.com/nathanielparke/cannoli/internal/tools"
)

// app holds the state shared by every subcommand once flags are parsed.
type app struct {
	configPath  string
	logLevel    string
	logFormat   string
	workers     int
	workDir     string
	keepWorkDir bool
	ledger      string
	serveFiles  string

	cfg    config.Config
	logger *slog.Logger
}

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "cannoli",
		Short: "cannoli pipes genomic datasets through external tools",
		Long: "cannoli partitions a dataset, streams every partition through an external\n" +
			"executable (directly, or in a Docker or Singularity container) and collects\n" +
			"the parsed output.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&a.logFormat, "log-format", "text", "Log format (text, json)")
	pf.IntVar(&a.workers, "workers", 0, "Concurrent partitions (default: number of CPUs)")
	pf.StringVar(&a.workDir, "work-dir", "", "Directory for per-job staging dirs (default: system temp dir)")
	pf.BoolVar(&a.keepWorkDir, "keep-work-dir", false, "Leave the staging dirs in place after the job")
	pf.StringVar(&a.ledger, "ledger", "", "SQLite file recording jobs and partition runs")
	pf.StringVar(&a.serveFiles, "serve-files", "", "Serve staged files over HTTP on this address (e.g. 127.0.0.1:0)")

	registry := tools.DefaultRegistry(logging.Discard())
	for _, name := range registry.Names() {
		root.AddCommand(newToolCmd(a, registry, name))
	}
	root.AddCommand(newPrintCommandCmd(a, registry), newJobsCmd(a))
	return root
}

// setup loads the config file and applies the flags set on the command
// line on top of it.
func (a *app) setup(cmd *cobra.Command) error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") || cfg.LogLevel == "" {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("log-format") || cfg.LogFormat == "" {
		cfg.LogFormat = a.logFormat
	}
	if flags.Changed("workers") {
		cfg.Workers = a.workers
	}
	if flags.Changed("work-dir") {
		cfg.WorkDir = a.workDir
	}
	if flags.Changed("keep-work-dir") {
		cfg.KeepWorkDir = a.keepWorkDir
	}
	if flags.Changed("ledger") {
		cfg.Ledger = a.ledger
	}
	if flags.Changed("serve-files") {
		cfg.ServeFiles = a.serveFiles
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.NewLoggerWithWriter(level, cfg.LogFormat, cmd.ErrOrStderr())
	return nil
}
