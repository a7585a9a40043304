// Package formats converts typed records to and from the byte streams that
// wrapped tools read on stdin and write on stdout.
package formats

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/nathanielparke/cannoli/pkg/records"
)

// Serializer writes records in a tool's input convention.
// Malformed records fail with *EncodingError; errors from w are returned
// unwrapped so callers can recognise a closed pipe.
type Serializer[T any] interface {
	Serialize(w io.Writer, recs []T) error
}

// Deserializer parses a tool's output stream. Unparseable input fails
// with *DecodingError.
type Deserializer[T any] interface {
	Deserialize(r io.Reader) ([]T, error)
}

// Codec pairs both directions for one record type and format.
// Serializer is nil for read-only formats.
type Codec[T any] struct {
	Format       Format
	Serializer   Serializer[T]
	Deserializer Deserializer[T]
}

// Format identifies a wire format.
type Format int

const (
	Native Format = iota
	FASTQ
	BED
	SAM
	BAM
)

var formatNames = map[Format]string{
	Native: "native",
	FASTQ:  "fastq",
	BED:    "bed",
	SAM:    "sam",
	BAM:    "bam",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat maps a format name (as given on the command line) to a Format.
func ParseFormat(name string) (Format, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "ifq", "fq", "interleaved-fastq":
		return FASTQ, nil
	case "jsonl":
		return Native, nil
	}
	for f, s := range formatNames {
		if s == n {
			return f, nil
		}
	}
	return Native, fmt.Errorf("unknown format %q", name)
}

// Detect infers the format from a path's extension. Unrecognised
// extensions yield Native with known=false so callers can warn about a
// possible typo instead of silently writing the default format.
func Detect(path string) (f Format, known bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fq", ".fastq", ".ifq":
		return FASTQ, true
	case ".bed":
		return BED, true
	case ".sam":
		return SAM, true
	case ".bam":
		return BAM, true
	case ".jsonl", ".native":
		return Native, true
	default:
		return Native, false
	}
}

// EncodingError reports a record that cannot be written in a format.
type EncodingError struct {
	Format Format
	Index  int // position of the record in its partition
	Err    error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode %s record %d: %v", e.Format, e.Index, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DecodingError reports bytes that do not parse. Line is 1-based and zero
// when the format is binary.
type DecodingError struct {
	Format Format
	Line   int
	Offset int64
	Err    error
}

func (e *DecodingError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("decode %s at line %d (byte %d): %v", e.Format, e.Line, e.Offset, e.Err)
	}
	return fmt.Sprintf("decode %s at byte %d: %v", e.Format, e.Offset, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// FragmentCodec returns the codec for fragments in format f.
func FragmentCodec(f Format) (Codec[records.Fragment], error) {
	switch f {
	case FASTQ:
		return Codec[records.Fragment]{Format: f, Serializer: InterleavedFASTQ{}, Deserializer: InterleavedFASTQ{}}, nil
	case Native:
		n := NewNative[records.Fragment]("fragment")
		return Codec[records.Fragment]{Format: f, Serializer: n, Deserializer: n}, nil
	}
	return Codec[records.Fragment]{}, fmt.Errorf("fragments cannot be stored as %s", f)
}

// FeatureCodec returns the codec for features in format f.
func FeatureCodec(f Format) (Codec[records.Feature], error) {
	switch f {
	case BED:
		return Codec[records.Feature]{Format: f, Serializer: BEDFormat{}, Deserializer: BEDFormat{}}, nil
	case Native:
		n := NewNative[records.Feature]("feature")
		return Codec[records.Feature]{Format: f, Serializer: n, Deserializer: n}, nil
	}
	return Codec[records.Feature]{}, fmt.Errorf("features cannot be stored as %s", f)
}

// AlignmentCodec returns the codec for alignments in format f. BAM is read
// only.
func AlignmentCodec(f Format) (Codec[records.Alignment], error) {
	switch f {
	case SAM:
		return Codec[records.Alignment]{Format: f, Serializer: SAMFormat{}, Deserializer: AnySAM{}}, nil
	case BAM:
		return Codec[records.Alignment]{Format: f, Deserializer: AnySAM{}}, nil
	case Native:
		n := NewNative[records.Alignment]("alignment")
		return Codec[records.Alignment]{Format: f, Serializer: n, Deserializer: n}, nil
	}
	return Codec[records.Alignment]{}, fmt.Errorf("alignments cannot be stored as %s", f)
}
