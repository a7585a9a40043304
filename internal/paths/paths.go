// Package paths resolves user-supplied file references into absolute host
// paths, derives mount roots, and expands glob patterns.
package paths

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

const schemeFile = "file"

// InvalidPathError reports a path that cannot be resolved or does not exist.
type InvalidPathError struct {
	Path   string
	Reason string
	Err    error
}

func (e *InvalidPathError) Error() string {
	msg := fmt.Sprintf("invalid path %q", e.Path)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidPathError) Unwrap() error {
	return e.Err
}

// Resolver resolves paths against a base directory.
// The zero value resolves against the process working directory.
type Resolver struct {
	Base string
}

// ParseScheme splits "scheme://rest" into its parts.
// Returns ("", raw) for bare paths. file:///x and file://x both yield "/x".
func ParseScheme(location string) (scheme, path string) {
	if i := strings.Index(location, "://"); i > 0 {
		scheme = strings.ToLower(location[:i])
		path = location[i+3:]
		if scheme == schemeFile {
			path = "/" + strings.TrimLeft(path, "/")
		}
		return scheme, path
	}
	return "", location
}

// Absolute returns the absolute, cleaned form of path.
func (r Resolver) Absolute(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &InvalidPathError{Path: path, Reason: "empty path"}
	}
	scheme, p := ParseScheme(path)
	switch scheme {
	case "", schemeFile:
	default:
		return "", &InvalidPathError{Path: path, Reason: fmt.Sprintf("unsupported scheme %q", scheme)}
	}

	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	base := r.Base
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", &InvalidPathError{Path: path, Reason: "working directory", Err: err}
		}
		base = wd
	}
	abs, err := filepath.Abs(filepath.Join(base, p))
	if err != nil {
		return "", &InvalidPathError{Path: path, Err: err}
	}
	return abs, nil
}

// Root returns the directory containing path. It is the mount source used
// when a file's siblings (index shards, dictionaries) must be visible too.
func (r Resolver) Root(path string) (string, error) {
	abs, err := r.Absolute(path)
	if err != nil {
		return "", err
	}
	return filepath.Dir(abs), nil
}

// Exists resolves path and fails unless it names an existing file or directory.
func (r Resolver) Exists(path string) (string, error) {
	abs, err := r.Absolute(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &InvalidPathError{Path: path, Reason: "no such file or directory"}
		}
		return "", &InvalidPathError{Path: path, Err: err}
	}
	return abs, nil
}

// Glob expands pattern into the matching absolute paths, in lexical order.
//
// The pattern is validated eagerly; the filesystem is read each time the
// returned sequence is ranged over, so it can be iterated more than once.
// No match yields an empty sequence.
func (r Resolver) Glob(pattern string) (iter.Seq[string], error) {
	abs, err := r.Absolute(pattern)
	if err != nil {
		return nil, err
	}
	if _, err := filepath.Match(filepath.Base(abs), ""); err != nil {
		return nil, &InvalidPathError{Path: pattern, Reason: "malformed glob", Err: err}
	}

	return func(yield func(string) bool) {
		matches, err := filepath.Glob(abs)
		if err != nil {
			return
		}
		for _, m := range matches {
			if !yield(m) {
				return
			}
		}
	}, nil
}

// MustMatch expands pattern and fails when nothing matches.
func (r Resolver) MustMatch(pattern string) ([]string, error) {
	seq, err := r.Glob(pattern)
	if err != nil {
		return nil, err
	}
	var out []string
	for m := range seq {
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, &InvalidPathError{Path: pattern, Reason: "glob matched no files"}
	}
	return out, nil
}
