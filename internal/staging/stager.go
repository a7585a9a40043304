package staging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nathanielparke/cannoli/internal/paths"
)

// Stager copies one file from location to destPath on the local worker.
type Stager interface {
	StageIn(ctx context.Context, location, destPath string) error
}

// FileStager copies from the shared filesystem (bare paths and file://).
type FileStager struct{}

// NewFileStager returns a FileStager.
func NewFileStager() *FileStager {
	return &FileStager{}
}

// StageIn copies location to destPath. A destination that already holds the
// same bytes is left untouched.
func (s *FileStager) StageIn(_ context.Context, location, destPath string) error {
	scheme, path := paths.ParseScheme(location)
	if scheme != "" && scheme != "file" {
		return fmt.Errorf("file stager: unsupported scheme %q (use CompositeStager for remote schemes)", scheme)
	}

	same, err := sameContent(path, destPath)
	if err != nil {
		return err
	}
	if same {
		return nil
	}

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeAtomic(destPath, in)
}

// CompositeStager routes StageIn to a handler chosen by URI scheme.
type CompositeStager struct {
	handlers map[string]Stager
	fallback Stager
}

// NewCompositeStager creates a CompositeStager with scheme handlers. The
// fallback serves bare paths and unknown schemes.
func NewCompositeStager(handlers map[string]Stager, fallback Stager) *CompositeStager {
	return &CompositeStager{handlers: handlers, fallback: fallback}
}

// StageIn routes to the appropriate handler based on scheme.
func (s *CompositeStager) StageIn(ctx context.Context, location, destPath string) error {
	scheme, _ := paths.ParseScheme(location)
	if handler, ok := s.handlers[scheme]; ok {
		return handler.StageIn(ctx, location, destPath)
	}
	if s.fallback != nil {
		return s.fallback.StageIn(ctx, location, destPath)
	}
	return fmt.Errorf("no stager registered for scheme %q", scheme)
}

// writeAtomic writes r to a temporary file beside dst and renames it into
// place, unless dst already holds identical bytes.
func writeAtomic(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	_, err = io.Copy(tmp, r)
	if closeErr := tmp.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write file: %w", err)
	}

	same, err := sameContent(tmpPath, dst)
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	if same {
		return os.Remove(tmpPath)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// sameContent reports whether b exists and holds exactly the bytes of a.
func sameContent(a, b string) (bool, error) {
	bi, err := os.Stat(b)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	if ai.Size() != bi.Size() || !bi.Mode().IsRegular() {
		return false, nil
	}

	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	bufA := make([]byte, 64*1024)
	bufB := make([]byte, 64*1024)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		doneA := errors.Is(errA, io.EOF) || errors.Is(errA, io.ErrUnexpectedEOF)
		doneB := errors.Is(errB, io.EOF) || errors.Is(errB, io.ErrUnexpectedEOF)
		if errA != nil && !doneA {
			return false, errA
		}
		if errB != nil && !doneB {
			return false, errB
		}
		if doneA || doneB {
			return doneA && doneB, nil
		}
	}
}
