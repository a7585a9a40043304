package paths

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
}

func TestParseScheme(t *testing.T) {
	tests := []struct {
		in, scheme, path string
	}{
		{"/data/reads.fq", "", "/data/reads.fq"},
		{"reads.fq", "", "reads.fq"},
		{"file:///data/reads.fq", "file", "/data/reads.fq"},
		{"FILE://data/reads.fq", "file", "/data/reads.fq"},
		{"s3://bucket/key", "s3", "bucket/key"},
	}
	for _, tt := range tests {
		scheme, path := ParseScheme(tt.in)
		if scheme != tt.scheme || path != tt.path {
			t.Errorf("ParseScheme(%q) = (%q, %q), want (%q, %q)", tt.in, scheme, path, tt.scheme, tt.path)
		}
	}
}

func TestAbsolute(t *testing.T) {
	r := Resolver{Base: "/jobs/run1"}

	tests := []struct {
		in   string
		want string
	}{
		{"reads.fq", "/jobs/run1/reads.fq"},
		{"../ref/hg38.fa", "/jobs/ref/hg38.fa"},
		{"/abs/x.bed", "/abs/x.bed"},
		{"file:///abs/x.bed", "/abs/x.bed"},
		{"/abs/./dir/../x.bed", "/abs/x.bed"},
	}
	for _, tt := range tests {
		got, err := r.Absolute(tt.in)
		if err != nil {
			t.Fatalf("Absolute(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Absolute(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAbsolute_Invalid(t *testing.T) {
	r := Resolver{Base: "/jobs"}
	for _, in := range []string{"", "   ", "hdfs://nn/x.bam", "s3://bucket/x"} {
		_, err := r.Absolute(in)
		var ipe *InvalidPathError
		if !errors.As(err, &ipe) {
			t.Errorf("Absolute(%q) error = %v, want InvalidPathError", in, err)
		}
	}
}

func TestRoot_IsDirectParentOfAbsolute(t *testing.T) {
	r := Resolver{Base: "/jobs/run1"}
	for _, in := range []string{"idx/hg38.1.bt2", "/ref/hg38.fa", "file:///a/b/c.bed", "x"} {
		abs, err := r.Absolute(in)
		if err != nil {
			t.Fatal(err)
		}
		root, err := r.Root(in)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(abs, root) {
			t.Errorf("Root(%q) = %q is not a prefix of %q", in, root, abs)
		}
		if filepath.Dir(abs) != root {
			t.Errorf("Root(%q) = %q, want direct parent %q", in, root, filepath.Dir(abs))
		}
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "present.bed")
	r := Resolver{Base: dir}

	if got, err := r.Exists("present.bed"); err != nil || got != filepath.Join(dir, "present.bed") {
		t.Errorf("Exists(present) = %q, %v", got, err)
	}
	_, err := r.Exists("missing.bed")
	var ipe *InvalidPathError
	if !errors.As(err, &ipe) {
		t.Fatalf("Exists(missing) error = %v, want InvalidPathError", err)
	}
}

func TestGlob(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "index.1.ext", "index.2.ext", "other.ext")
	r := Resolver{Base: dir}

	seq, err := r.Glob("index*.ext")
	if err != nil {
		t.Fatalf("Glob error: %v", err)
	}
	want := []string{filepath.Join(dir, "index.1.ext"), filepath.Join(dir, "index.2.ext")}
	if got := slices.Collect(seq); !reflect.DeepEqual(got, want) {
		t.Errorf("Glob = %v, want %v", got, want)
	}
	// Restartable: a second pass sees the same files.
	if got := slices.Collect(seq); !reflect.DeepEqual(got, want) {
		t.Errorf("second pass = %v, want %v", got, want)
	}
}

func TestGlob_EmptyAndMalformed(t *testing.T) {
	dir := t.TempDir()
	r := Resolver{Base: dir}

	seq, err := r.Glob("nothing*.bt2")
	if err != nil {
		t.Fatalf("empty glob should not error: %v", err)
	}
	if got := slices.Collect(seq); len(got) != 0 {
		t.Errorf("expected no matches, got %v", got)
	}

	if _, err := r.MustMatch("nothing*.bt2"); err == nil {
		t.Error("MustMatch should fail on empty result")
	}

	_, err = r.Glob("bad[.bt2")
	var ipe *InvalidPathError
	if !errors.As(err, &ipe) {
		t.Errorf("malformed glob error = %v, want InvalidPathError", err)
	}
}
