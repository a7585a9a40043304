package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nathanielparke/cannoli/internal/formats"
	"github.com/nathanielparke/cannoli/internal/paths"
)

const partsSuffix = ".parts"

// PartName returns the file name of partition i.
func PartName(i int) string {
	return fmt.Sprintf("part-%05d", i)
}

// SaveOptions controls how a collection is written.
type SaveOptions struct {
	// Single merges all partitions into one file at the output path.
	// Otherwise the output path is a directory of part files.
	Single bool
	// DeferMerging, with Single, writes the parts under <output>.parts/
	// and leaves merging to the caller.
	DeferMerging bool
	// DisableFastConcat, with Single, writes every partition sequentially
	// into the output file instead of writing parts in parallel and
	// concatenating them.
	DisableFastConcat bool
}

// Load reads path (a file, or a directory of part files) and splits the
// records into partitions. partitions <= 0 keeps one partition per part
// file.
func Load[T any](path string, codec formats.Codec[T], partitions int) (*Collection[T], error) {
	if codec.Deserializer == nil {
		return nil, fmt.Errorf("%s input is not supported", codec.Format)
	}
	abs, err := paths.Resolver{}.Exists(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &paths.InvalidPathError{Path: path, Err: err}
	}

	files := []string{abs}
	if info.IsDir() {
		files, err = partFiles(abs)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, &paths.InvalidPathError{Path: path, Reason: "directory holds no part files"}
		}
	}

	parts := make([]Partition[T], len(files))
	for i, f := range files {
		recs, err := readFile(f, codec.Deserializer)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		parts[i] = Partition[T]{Index: i, Records: recs}
	}

	coll := FromPartitions(parts)
	if partitions > 0 && partitions != coll.NumPartitions() {
		coll = coll.Repartition(partitions)
	}
	return coll, nil
}

func partFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &paths.InvalidPathError{Path: dir, Err: err}
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "part-") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func readFile[T any](path string, de formats.Deserializer[T]) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return de.Deserialize(f)
}

// Save writes coll to path according to opts.
func Save[T any](path string, codec formats.Codec[T], coll *Collection[T], opts SaveOptions) error {
	if codec.Serializer == nil {
		return fmt.Errorf("%s output is not supported", codec.Format)
	}
	abs, err := paths.Resolver{}.Absolute(path)
	if err != nil {
		return err
	}

	switch {
	case !opts.Single:
		return writeParts(abs, codec.Serializer, coll)
	case opts.DeferMerging:
		return writeParts(abs+partsSuffix, codec.Serializer, coll)
	case opts.DisableFastConcat:
		return writeSequential(abs, codec.Serializer, coll)
	default:
		partsDir := abs + partsSuffix
		if err := writeParts(partsDir, codec.Serializer, coll); err != nil {
			return err
		}
		if err := Concat(partsDir, abs); err != nil {
			return err
		}
		return os.RemoveAll(partsDir)
	}
}

// writeParts writes one file per partition into dir, in parallel.
func writeParts[T any](dir string, ser formats.Serializer[T], coll *Collection[T]) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var g errgroup.Group
	for _, p := range coll.Partitions() {
		g.Go(func() error {
			return writeFile(filepath.Join(dir, PartName(p.Index)), ser, p.Records)
		})
	}
	return g.Wait()
}

func writeFile[T any](path string, ser formats.Serializer[T], recs []T) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return ser.Serialize(f, recs)
}

func writeSequential[T any](path string, ser formats.Serializer[T], coll *Collection[T]) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(f)
	for _, p := range coll.Partitions() {
		if err := ser.Serialize(w, p.Records); err != nil {
			return fmt.Errorf("partition %d: %w", p.Index, err)
		}
	}
	return w.Flush()
}

// Concat merges the part files of dir, in order, into dest.
func Concat(dir, dest string) (err error) {
	files, err := partFiles(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for _, f := range files {
		if err := appendFile(out, f); err != nil {
			return fmt.Errorf("concat %s: %w", f, err)
		}
	}
	return nil
}

func appendFile(w io.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(w, in)
	return err
}
