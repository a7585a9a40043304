// Package staging distributes the auxiliary files a wrapped tool reads (index
// shards, reference sequences, interval sets) to every worker, and maps the
// placeholders of a built command to each worker's local copies.
package staging

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nathanielparke/cannoli/internal/command"
	"github.com/nathanielparke/cannoli/internal/paths"
)

// StagingError reports a file that could not be made available on a worker.
type StagingError struct {
	Path   string
	Worker int
	Err    error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("stage %s on worker %d: %v", e.Path, e.Worker, e.Err)
}

func (e *StagingError) Unwrap() error { return e.Err }

// Manager registers auxiliary files on command builders and copies staged
// files into each worker's staging root.
type Manager struct {
	resolver paths.Resolver
	stager   Stager
	roots    []string
	remote   string
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithResolver sets the resolver used for user-supplied paths.
func WithResolver(r paths.Resolver) Option {
	return func(m *Manager) { m.resolver = r }
}

// WithRemote makes workers fetch staged files from the file server at
// baseURL instead of the shared filesystem.
func WithRemote(baseURL string) Option {
	return func(m *Manager) { m.remote = strings.TrimRight(baseURL, "/") }
}

// NewManager returns a Manager for workers whose staging roots are roots,
// indexed by worker number.
func NewManager(stager Stager, roots []string, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		stager: stager,
		roots:  roots,
		logger: logger.With("component", "staging"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Distribute makes path available to the command built by b and returns the
// token to place on its command line. Shared files are referenced by their
// absolute path and their directory is mounted when b is containerized.
// Staged files are registered and referenced by placeholder.
func (m *Manager) Distribute(b *command.Builder, path string, staged bool) (string, error) {
	abs, err := m.resolver.Exists(path)
	if err != nil {
		return "", err
	}
	if !staged {
		if b.Strategy().Containerized() {
			b.AddMount(filepath.Dir(abs))
		}
		return abs, nil
	}

	if err := checkBaseName(b, abs); err != nil {
		return "", err
	}
	idx := b.AddFile(command.FileRef{Path: abs, Mode: command.Staged})
	if b.Strategy().Containerized() {
		b.AddMount(command.RootPlaceholder)
	}
	return command.Placeholder(idx), nil
}

// DistributeIndex makes an index available: prefix names the index base
// (it need not exist) and siblingGlob matches its shards, which must live
// beside it. The returned token stands for the prefix.
func (m *Manager) DistributeIndex(b *command.Builder, prefix, siblingGlob string, staged bool) (string, error) {
	absPrefix, err := m.resolver.Absolute(prefix)
	if err != nil {
		return "", err
	}
	siblings, err := m.resolver.MustMatch(siblingGlob)
	if err != nil {
		return "", err
	}
	for _, s := range siblings {
		if filepath.Dir(s) != filepath.Dir(absPrefix) {
			return "", &paths.InvalidPathError{Path: s, Reason: "index file outside " + filepath.Dir(absPrefix)}
		}
	}

	if !staged {
		if b.Strategy().Containerized() {
			b.AddMount(filepath.Dir(absPrefix))
		}
		return absPrefix, nil
	}

	if err := checkBaseName(b, absPrefix); err != nil {
		return "", err
	}
	for _, s := range siblings {
		if err := checkBaseName(b, s); err != nil {
			return "", err
		}
	}
	idx := b.AddFile(command.FileRef{Path: absPrefix, Mode: command.Staged, Prefix: true})
	for _, s := range siblings {
		b.AddFile(command.FileRef{Path: s, Mode: command.Staged})
	}
	if b.Strategy().Containerized() {
		b.AddMount(command.RootPlaceholder)
	}
	return command.Placeholder(idx), nil
}

// checkBaseName rejects a staged file whose base name is already taken by a
// different staged file, since both would land in the same staging root.
func checkBaseName(b *command.Builder, abs string) error {
	base := filepath.Base(abs)
	for _, f := range b.Files() {
		if f.Mode == command.Staged && f.Path != abs && filepath.Base(f.Path) == base {
			return &command.ConfigurationError{
				Option: "add-files",
				Reason: fmt.Sprintf("%s and %s share the staged name %q", f.Path, abs, base),
			}
		}
	}
	return nil
}

// Stage copies every staged file in refs into every worker's staging root.
// It is idempotent and must complete before any partition runs.
func (m *Manager) Stage(ctx context.Context, refs []command.FileRef) error {
	g, ctx := errgroup.WithContext(ctx)
	for worker, root := range m.roots {
		g.Go(func() error {
			for _, ref := range refs {
				if ref.Mode != command.Staged || ref.Prefix {
					continue
				}
				dest := filepath.Join(root, filepath.Base(ref.Path))
				m.logger.Debug("staging file", "path", ref.Path, "worker", worker, "dest", dest)
				if err := m.stager.StageIn(ctx, m.location(ref.Path), dest); err != nil {
					return &StagingError{Path: ref.Path, Worker: worker, Err: err}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	m.logger.Info("staged files", "files", countStaged(refs), "workers", len(m.roots))
	return nil
}

func (m *Manager) location(path string) string {
	if m.remote == "" {
		return path
	}
	return m.remote + "/files/" + url.PathEscape(filepath.Base(path))
}

func countStaged(refs []command.FileRef) int {
	n := 0
	for _, r := range refs {
		if r.Mode == command.Staged && !r.Prefix {
			n++
		}
	}
	return n
}

// SubstitutionFor maps refs, in registration order, to their paths on the
// worker whose staging root is root.
func SubstitutionFor(root string, refs []command.FileRef) Substitution {
	files := make([]string, len(refs))
	for i, ref := range refs {
		if ref.Mode == command.Staged {
			files[i] = filepath.Join(root, filepath.Base(ref.Path))
		} else {
			files[i] = ref.Path
		}
	}
	return Substitution{Files: files, Root: root}
}

// Substitution returns the substitution for the given worker.
func (m *Manager) Substitution(worker int, refs []command.FileRef) (Substitution, error) {
	if worker < 0 || worker >= len(m.roots) {
		return Substitution{}, fmt.Errorf("no worker %d (have %d)", worker, len(m.roots))
	}
	return SubstitutionFor(m.roots[worker], refs), nil
}
