package formats

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nathanielparke/cannoli/pkg/records"
)

// InterleavedFASTQ reads and writes fragments as interleaved FASTQ: each
// read is four lines and the mates of a pair are adjacent.
type InterleavedFASTQ struct{}

// Serialize writes every read of every fragment.
func (InterleavedFASTQ) Serialize(w io.Writer, frags []records.Fragment) error {
	bw := bufio.NewWriter(w)
	// lastSingle is the base name of the previous fragment when it had one
	// read; a second single read with that name would be paired on read back.
	lastSingle := ""
	for i, f := range frags {
		if len(f.Reads) == 0 || len(f.Reads) > 2 {
			return &EncodingError{Format: FASTQ, Index: i, Err: fmt.Errorf("fragment %q has %d reads", f.Name, len(f.Reads))}
		}
		names := make([]string, len(f.Reads))
		for j, r := range f.Reads {
			if err := validateRead(r); err != nil {
				return &EncodingError{Format: FASTQ, Index: i, Err: err}
			}
			names[j] = r.Name
			if names[j] == "" {
				names[j] = f.Name
			}
		}
		if err := checkPairing(names, lastSingle); err != nil {
			return &EncodingError{Format: FASTQ, Index: i, Err: err}
		}
		lastSingle = ""
		if len(names) == 1 {
			lastSingle = records.ReadBaseName(names[0])
		}
		for j, r := range f.Reads {
			if _, err := fmt.Fprintf(bw, "@%s\n%s\n+\n%s\n", names[j], r.Sequence, r.Quality); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// checkPairing rejects fragments that Deserialize would split or merge.
func checkPairing(names []string, lastSingle string) error {
	if len(names) == 2 {
		a, b := records.ReadBaseName(names[0]), records.ReadBaseName(names[1])
		if a != b {
			return fmt.Errorf("mates %q and %q do not share a base name", names[0], names[1])
		}
		return nil
	}
	if lastSingle != "" && records.ReadBaseName(names[0]) == lastSingle {
		return fmt.Errorf("unpaired read %q follows an unpaired read with the same base name", names[0])
	}
	return nil
}

func validateRead(r records.Read) error {
	if strings.ContainsAny(r.Name, "\n\r") {
		return errors.New("read name contains a line break")
	}
	if strings.ContainsAny(r.Sequence, "\n\r") || strings.ContainsAny(r.Quality, "\n\r") {
		return fmt.Errorf("read %q contains a line break", r.Name)
	}
	if len(r.Sequence) != len(r.Quality) {
		return fmt.Errorf("read %q: sequence length %d != quality length %d", r.Name, len(r.Sequence), len(r.Quality))
	}
	return nil
}

// Deserialize parses FASTQ and pairs adjacent reads sharing a base name.
func (InterleavedFASTQ) Deserialize(r io.Reader) ([]records.Fragment, error) {
	lr := newLineReader(r)
	var (
		out     []records.Fragment
		pending *records.Read
	)
	flush := func() {
		if pending != nil {
			out = append(out, records.Fragment{Name: records.ReadBaseName(pending.Name), Reads: []records.Read{*pending}})
			pending = nil
		}
	}

	for {
		read, ok, err := readFASTQRecord(lr)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if pending != nil && records.ReadBaseName(pending.Name) == records.ReadBaseName(read.Name) {
			out = append(out, records.Fragment{
				Name:  records.ReadBaseName(read.Name),
				Reads: []records.Read{*pending, read},
			})
			pending = nil
			continue
		}
		flush()
		pending = &read
	}
	flush()
	return out, nil
}

func readFASTQRecord(lr *lineReader) (records.Read, bool, error) {
	fail := func(msg string, args ...any) (records.Read, bool, error) {
		return records.Read{}, false, &DecodingError{Format: FASTQ, Line: lr.line, Offset: lr.offset, Err: fmt.Errorf(msg, args...)}
	}

	var header string
	for {
		line, ok, err := lr.Next()
		if err != nil {
			return records.Read{}, false, err
		}
		if !ok {
			return records.Read{}, false, nil
		}
		if line != "" {
			header = line
			break
		}
	}
	if !strings.HasPrefix(header, "@") {
		return fail("expected '@' header, got %q", truncate(header))
	}

	var fields [3]string
	for i := range fields {
		line, ok, err := lr.Next()
		if err != nil {
			return records.Read{}, false, err
		}
		if !ok {
			return fail("truncated record %q", header[1:])
		}
		fields[i] = line
		switch {
		case i == 1 && !strings.HasPrefix(line, "+"):
			return fail("expected '+' separator, got %q", truncate(line))
		case i == 2 && len(fields[0]) != len(line):
			return fail("read %q: sequence length %d != quality length %d", header[1:], len(fields[0]), len(line))
		}
	}
	return records.Read{Name: header[1:], Sequence: fields[0], Quality: fields[2]}, true, nil
}

func truncate(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
