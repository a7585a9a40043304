// Package tools wraps external bioinformatics executables as piped tools:
// each variant turns its flags into a command and pipes a dataset through it.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/nathanielparke/cannoli/internal/cluster"
	"github.com/nathanielparke/cannoli/internal/command"
	"github.com/nathanielparke/cannoli/internal/config"
	"github.com/nathanielparke/cannoli/internal/dataset"
	"github.com/nathanielparke/cannoli/internal/fileserver"
	"github.com/nathanielparke/cannoli/internal/staging"
	"github.com/nathanielparke/cannoli/internal/store"
)

// Tool is one wrapped executable.
type Tool interface {
	Name() string
	Short() string
	// Bind registers the tool's flags.
	Bind(fs *pflag.FlagSet)
	// Validate checks flag combinations before anything runs.
	Validate() error
	// Command builds the invocation. Auxiliary files are registered with
	// env.Files.
	Command(env *Env) (*command.Command, error)
	// Run pipes input through the tool into output.
	Run(ctx context.Context, env *Env, input, output string) error
}

// ArgTaker is implemented by tools that accept extra positional arguments.
type ArgTaker interface {
	TakeArgs(args []string) error
}

// Env is what the driver hands a tool.
type Env struct {
	Config config.Config
	Logger *slog.Logger
	Files  *staging.Manager

	// Set only when running.
	Cluster *cluster.Cluster
	Ledger  store.Store
	Server  *fileserver.Server
}

// Choice is a named flag value for ExactlyOne.
type Choice struct {
	Flag  string
	Value string
}

// ExactlyOne fails unless exactly one of the choices is set.
func ExactlyOne(choices ...Choice) error {
	var set, names []string
	for _, c := range choices {
		names = append(names, "--"+c.Flag)
		if c.Value != "" {
			set = append(set, "--"+c.Flag)
		}
	}
	if len(set) == 1 {
		return nil
	}
	reason := "exactly one must be given"
	if len(set) > 1 {
		reason = "are mutually exclusive"
	}
	return &command.ConfigurationError{Option: strings.Join(names, "/"), Reason: reason}
}

// Common holds the flags every tool shares.
type Common struct {
	Executable        string
	Image             string
	UseDocker         bool
	UseSingularity    bool
	Sudo              bool
	AddFiles          bool
	Partitions        int
	Single            bool
	DeferMerging      bool
	DisableFastConcat bool
	Env               []string
	Timeout           time.Duration
}

// BindCommon registers the shared flags with per-tool defaults.
func (c *Common) BindCommon(fs *pflag.FlagSet, executable, image string) {
	fs.StringVar(&c.Executable, "executable", executable, "Path to the executable")
	fs.StringVar(&c.Image, "image", image, "Container image")
	fs.BoolVar(&c.UseDocker, "use-docker", false, "Run the executable with docker run")
	fs.BoolVar(&c.UseSingularity, "use-singularity", false, "Run the executable with singularity exec")
	fs.BoolVar(&c.Sudo, "sudo", false, "Run the container runtime through sudo")
	fs.BoolVar(&c.AddFiles, "add-files", false, "Copy auxiliary files to every worker instead of reading them from a shared filesystem")
	fs.IntVar(&c.Partitions, "partitions", 0, "Number of partitions (default: one per input part file)")
	fs.BoolVar(&c.Single, "single", false, "Write the output as a single file")
	fs.BoolVar(&c.DeferMerging, "defer-merging", false, "With --single, leave the part files unmerged under <output>.parts")
	fs.BoolVar(&c.DisableFastConcat, "disable-fast-concat", false, "With --single, write partitions sequentially instead of concatenating parts")
	fs.StringArrayVar(&c.Env, "env", nil, "Environment variable for the executable, as KEY=VALUE (repeatable)")
	fs.DurationVar(&c.Timeout, "timeout", 0, "Per-partition time limit (0 disables)")
}

// ValidateCommon checks the shared flags.
func (c *Common) ValidateCommon() error {
	if c.UseDocker && c.UseSingularity {
		return &command.ConfigurationError{Option: "--use-docker/--use-singularity", Reason: "are mutually exclusive"}
	}
	if c.Sudo && !c.UseDocker && !c.UseSingularity {
		return &command.ConfigurationError{Option: "--sudo", Reason: "requires --use-docker or --use-singularity"}
	}
	if c.Partitions < 0 {
		return &command.ConfigurationError{Option: "--partitions", Reason: "must not be negative"}
	}
	if c.DeferMerging && !c.Single {
		return &command.ConfigurationError{Option: "--defer-merging", Reason: "requires --single"}
	}
	for _, kv := range c.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return &command.ConfigurationError{Option: "--env", Reason: fmt.Sprintf("%q is not KEY=VALUE", kv)}
		}
	}
	return nil
}

// Builder starts a command builder configured from the shared flags.
func (c *Common) Builder(env *Env) (*command.Builder, error) {
	b, err := command.NewBuilderFor(c.UseDocker, c.UseSingularity)
	if err != nil {
		return nil, err
	}
	b.SetExecutable(c.Executable)
	switch b.Strategy() {
	case command.Docker:
		b.SetImage(c.Image).SetSudo(c.Sudo)
		if env.Config.DockerBinary != "" {
			b.SetRuntimeBinary(env.Config.DockerBinary)
		}
	case command.Singularity:
		b.SetImage(c.Image).SetSudo(c.Sudo)
		if env.Config.SingularityBinary != "" {
			b.SetRuntimeBinary(env.Config.SingularityBinary)
		}
	}
	for _, kv := range c.Env {
		k, v, _ := strings.Cut(kv, "=")
		b.SetEnv(k, v)
	}
	b.SetTimeout(c.Timeout)
	return b, nil
}

// SaveOptions maps the output flags.
func (c *Common) SaveOptions() dataset.SaveOptions {
	return dataset.SaveOptions{
		Single:            c.Single,
		DeferMerging:      c.DeferMerging,
		DisableFastConcat: c.DisableFastConcat,
	}
}

// Factory creates a fresh, unbound tool.
type Factory func() Tool

// Registry maps tool names to their factories.
// Registration happens at startup before concurrent access, so no mutex is needed.
type Registry struct {
	factories map[string]Factory
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger.With("component", "tool-registry"),
	}
}

// DefaultRegistry returns a registry holding every built-in tool.
func DefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(func() Tool { return &Bedtools{} })
	r.Register(func() Tool { return &Bowtie2{} })
	r.Register(func() Tool { return &Bwa{} })
	r.Register(func() Tool { return &Pipe{} })
	return r
}

// Register adds a tool, keyed by its Name().
func (r *Registry) Register(f Factory) {
	name := f().Name()
	r.factories[name] = f
	r.logger.Debug("tool registered", "name", name)
}

// Get returns a new instance of the named tool.
func (r *Registry) Get(name string) (Tool, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("no tool registered with name %q", name)
	}
	return f(), nil
}

// Names lists the registered tools in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
