// Package command assembles the invocation of a wrapped executable, either
// directly on the host or inside a Docker or Singularity container.
//
// Built commands are templates: tokens may carry the placeholders $0, $1, …
// (auxiliary files by registration order) and $root (the staging directory).
// They are substituted per worker by the pipe executor, so one Command can
// be shared unmodified by every partition.
package command

import (
	"fmt"
	"strings"
	"time"
)

// Strategy selects how the executable is launched.
type Strategy int

const (
	// Direct runs the executable on the host.
	Direct Strategy = iota
	// Docker runs it with `docker run`.
	Docker
	// Singularity runs it with `singularity exec`.
	Singularity
)

func (s Strategy) String() string {
	switch s {
	case Direct:
		return "direct"
	case Docker:
		return "docker"
	case Singularity:
		return "singularity"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Containerized reports whether s launches a container runtime.
func (s Strategy) Containerized() bool {
	return s == Docker || s == Singularity
}

// Mode tells how an auxiliary file reaches the workers.
type Mode int

const (
	// Shared files are referenced by their absolute path, which every
	// worker sees identically.
	Shared Mode = iota
	// Staged files are copied to each worker's staging root first.
	Staged
)

func (m Mode) String() string {
	if m == Staged {
		return "staged"
	}
	return "shared"
}

// FileRef is an auxiliary file the wrapped tool reads.
type FileRef struct {
	Path string
	Mode Mode
	// Prefix marks a path prefix (an index base name such as ref/hg38) that
	// need not exist itself; only files matched alongside it are copied.
	Prefix bool
}

// Placeholder returns the textual token for the i-th registered file.
func Placeholder(i int) string {
	return fmt.Sprintf("$%d", i)
}

// RootPlaceholder stands for the worker's staging directory.
const RootPlaceholder = "$root"

// ConfigurationError reports contradictory or missing options.
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Option == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Option, e.Reason)
}

// Command is a built, immutable invocation.
type Command struct {
	strategy Strategy
	tokens   []string
	inner    []string
	image    string
	mounts   []string
	sudo     bool
	env      []EnvVar
	files    []FileRef
	timeout  time.Duration
}

// EnvVar is one environment assignment.
type EnvVar struct {
	Key   string
	Value string
}

// Tokens returns the full argument list, container prefix included.
func (c *Command) Tokens() []string {
	return append([]string(nil), c.tokens...)
}

// Inner returns the tokens of the wrapped executable without any prefix.
func (c *Command) Inner() []string {
	return append([]string(nil), c.inner...)
}

func (c *Command) Strategy() Strategy { return c.strategy }
func (c *Command) Image() string      { return c.image }
func (c *Command) Sudo() bool         { return c.sudo }

// Mounts returns the host directories mounted at the same container path.
func (c *Command) Mounts() []string {
	return append([]string(nil), c.mounts...)
}

// Files returns the registered auxiliary files in registration order.
func (c *Command) Files() []FileRef {
	return append([]FileRef(nil), c.files...)
}

// ProcessEnv returns the assignments to add to the spawned process's
// environment. Container strategies pass them on the command line instead.
func (c *Command) ProcessEnv() []string {
	if c.strategy.Containerized() {
		return nil
	}
	out := make([]string, 0, len(c.env))
	for _, e := range c.env {
		out = append(out, e.Key+"="+e.Value)
	}
	return out
}

// Timeout is the per-partition limit; zero means none.
func (c *Command) Timeout() time.Duration { return c.timeout }

// String renders the command for logs and `print-command`.
func (c *Command) String() string {
	quoted := make([]string, len(c.tokens))
	for i, t := range c.tokens {
		quoted[i] = shellQuote(t)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r == '-' || r == '_' || r == '.' || r == '/' || r == ':' || r == '=' || r == '$' || r == ',' || r == '+' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
