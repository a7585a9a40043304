package command

import (
	"errors"
	"slices"
	"strings"
	"time"
)

const (
	defaultDockerBinary      = "docker"
	defaultSingularityBinary = "singularity"
)

// Builder accumulates an invocation. Methods chain; misuse is recorded and
// reported by Build.
type Builder struct {
	strategy   Strategy
	runtimeBin string
	executable string
	args       []string
	files      []FileRef
	image      string
	sudo       bool
	mounts     []string
	env        []EnvVar
	timeout    time.Duration
	errs       []error
}

// NewBuilder returns a builder for the given strategy.
func NewBuilder(strategy Strategy) *Builder {
	return &Builder{strategy: strategy}
}

// NewBuilderFor picks the strategy from the usual pair of CLI flags.
func NewBuilderFor(useDocker, useSingularity bool) (*Builder, error) {
	switch {
	case useDocker && useSingularity:
		return nil, &ConfigurationError{Option: "use-docker/use-singularity", Reason: "at most one container runtime may be selected"}
	case useDocker:
		return NewBuilder(Docker), nil
	case useSingularity:
		return NewBuilder(Singularity), nil
	default:
		return NewBuilder(Direct), nil
	}
}

// Strategy returns the execution strategy chosen at construction.
func (b *Builder) Strategy() Strategy { return b.strategy }

// SetExecutable sets the program path or name.
func (b *Builder) SetExecutable(name string) *Builder {
	b.executable = name
	return b
}

// Add appends literal argument tokens. Order is preserved.
func (b *Builder) Add(tokens ...string) *Builder {
	b.args = append(b.args, tokens...)
	return b
}

// AddFile registers an auxiliary file and returns its placeholder index.
func (b *Builder) AddFile(ref FileRef) int {
	b.files = append(b.files, ref)
	return len(b.files) - 1
}

// AddFiles registers several files, returning their indices in order.
func (b *Builder) AddFiles(refs ...FileRef) []int {
	idx := make([]int, len(refs))
	for i, ref := range refs {
		idx[i] = b.AddFile(ref)
	}
	return idx
}

// Files returns the registered files in registration order.
func (b *Builder) Files() []FileRef {
	return append([]FileRef(nil), b.files...)
}

// SetEnv adds an environment variable for the wrapped executable.
func (b *Builder) SetEnv(key, value string) *Builder {
	if key == "" || strings.Contains(key, "=") {
		b.errs = append(b.errs, &ConfigurationError{Option: "env", Reason: "invalid variable name " + key})
		return b
	}
	b.env = append(b.env, EnvVar{Key: key, Value: value})
	return b
}

// SetTimeout bounds each partition's subprocess.
func (b *Builder) SetTimeout(d time.Duration) *Builder {
	b.timeout = d
	return b
}

// SetRuntimeBinary overrides the docker/singularity binary.
func (b *Builder) SetRuntimeBinary(path string) *Builder {
	if !b.requireContainer("runtime binary") {
		return b
	}
	b.runtimeBin = path
	return b
}

// SetImage sets the container image.
func (b *Builder) SetImage(name string) *Builder {
	if !b.requireContainer("image") {
		return b
	}
	b.image = name
	return b
}

// SetSudo runs the container runtime through sudo.
func (b *Builder) SetSudo(sudo bool) *Builder {
	if !b.requireContainer("sudo") {
		return b
	}
	b.sudo = sudo
	return b
}

// AddMount makes hostDir visible inside the container at the same path.
// Mounts form a set; repeated directories are mounted once.
func (b *Builder) AddMount(hostDir string) *Builder {
	if !b.requireContainer("mount") {
		return b
	}
	if hostDir != "" && !slices.Contains(b.mounts, hostDir) {
		b.mounts = append(b.mounts, hostDir)
	}
	return b
}

func (b *Builder) requireContainer(option string) bool {
	if b.strategy.Containerized() {
		return true
	}
	b.errs = append(b.errs, &ConfigurationError{Option: option, Reason: "only valid with a container strategy"})
	return false
}

// Build renders the final token sequence.
func (b *Builder) Build() (*Command, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if strings.TrimSpace(b.executable) == "" {
		return nil, &ConfigurationError{Option: "executable", Reason: "required"}
	}

	inner := append([]string{b.executable}, b.args...)

	var tokens []string
	if b.sudo {
		tokens = append(tokens, "sudo")
	}
	switch b.strategy {
	case Direct:
	case Docker:
		if b.image == "" {
			return nil, &ConfigurationError{Option: "image", Reason: "required with docker"}
		}
		tokens = append(tokens, b.binary(defaultDockerBinary), "run", "--rm", "-i")
		for _, e := range b.env {
			tokens = append(tokens, "-e", e.Key+"="+e.Value)
		}
		for _, m := range b.mounts {
			tokens = append(tokens, "-v", m+":"+m)
		}
		tokens = append(tokens, b.image)
	case Singularity:
		if b.image == "" {
			return nil, &ConfigurationError{Option: "image", Reason: "required with singularity"}
		}
		tokens = append(tokens, b.binary(defaultSingularityBinary), "exec")
		for _, e := range b.env {
			tokens = append(tokens, "--env", e.Key+"="+e.Value)
		}
		for _, m := range b.mounts {
			tokens = append(tokens, "--bind", m+":"+m)
		}
		tokens = append(tokens, b.image)
	default:
		return nil, &ConfigurationError{Option: "strategy", Reason: "unknown " + b.strategy.String()}
	}
	tokens = append(tokens, inner...)

	return &Command{
		strategy: b.strategy,
		tokens:   tokens,
		inner:    inner,
		image:    b.image,
		mounts:   slices.Clone(b.mounts),
		sudo:     b.sudo,
		env:      slices.Clone(b.env),
		files:    slices.Clone(b.files),
		timeout:  b.timeout,
	}, nil
}

func (b *Builder) binary(def string) string {
	if b.runtimeBin != "" {
		return b.runtimeBin
	}
	return def
}
