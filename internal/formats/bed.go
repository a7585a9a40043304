package formats

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nathanielparke/cannoli/pkg/records"
)

// BEDFormat reads and writes features as tab-separated BED3 to BED12.
type BEDFormat struct{}

// Serialize writes BED3 when a feature has no name, score or strand and
// BED6 (plus any extra columns) otherwise.
func (BEDFormat) Serialize(w io.Writer, feats []records.Feature) error {
	bw := bufio.NewWriter(w)
	for i, f := range feats {
		if f.Contig == "" || strings.ContainsAny(f.Contig, "\t\n") {
			return &EncodingError{Format: BED, Index: i, Err: fmt.Errorf("invalid contig %q", f.Contig)}
		}
		if f.Start < 0 || f.End < f.Start {
			return &EncodingError{Format: BED, Index: i, Err: fmt.Errorf("invalid interval [%d, %d)", f.Start, f.End)}
		}
		cols := []string{f.Contig, strconv.FormatInt(f.Start, 10), strconv.FormatInt(f.End, 10)}
		if f.Name != "" || f.Score != 0 || f.Strand != records.StrandUnknown || len(f.Extra) > 0 {
			cols = append(cols,
				orDot(f.Name),
				strconv.FormatFloat(f.Score, 'g', -1, 64),
				orDot(string(f.Strand)),
			)
			cols = append(cols, f.Extra...)
		}
		for _, c := range cols[3:] {
			if strings.ContainsAny(c, "\t\n") {
				return &EncodingError{Format: BED, Index: i, Err: fmt.Errorf("column %q contains a separator", c)}
			}
		}
		if _, err := bw.WriteString(strings.Join(cols, "\t") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func orDot(s string) string {
	if s == "" {
		return "."
	}
	return s
}

func fromDot(s string) string {
	if s == "." {
		return ""
	}
	return s
}

// Deserialize parses BED, skipping blank, comment, track and browser lines.
func (BEDFormat) Deserialize(r io.Reader) ([]records.Feature, error) {
	lr := newLineReader(r)
	var out []records.Feature
	for {
		line, ok, err := lr.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}
		f, err := parseBEDLine(line)
		if err != nil {
			return nil, &DecodingError{Format: BED, Line: lr.line, Offset: lr.offset, Err: err}
		}
		out = append(out, f)
	}
}

func parseBEDLine(line string) (records.Feature, error) {
	cols := strings.Split(line, "\t")
	if len(cols) < 3 {
		return records.Feature{}, fmt.Errorf("expected at least 3 columns, got %d", len(cols))
	}
	start, err := strconv.ParseInt(cols[1], 10, 64)
	if err != nil {
		return records.Feature{}, fmt.Errorf("start: %w", err)
	}
	end, err := strconv.ParseInt(cols[2], 10, 64)
	if err != nil {
		return records.Feature{}, fmt.Errorf("end: %w", err)
	}
	if end < start {
		return records.Feature{}, errors.New("end before start")
	}
	f := records.Feature{Contig: cols[0], Start: start, End: end}
	if len(cols) > 3 {
		f.Name = fromDot(cols[3])
	}
	if len(cols) > 4 && cols[4] != "." {
		score, err := strconv.ParseFloat(cols[4], 64)
		if err != nil {
			return records.Feature{}, fmt.Errorf("score: %w", err)
		}
		f.Score = score
	}
	if len(cols) > 5 {
		switch cols[5] {
		case "+", "-", ".":
			f.Strand = records.Strand(fromDot(cols[5]))
		default:
			return records.Feature{}, fmt.Errorf("invalid strand %q", cols[5])
		}
	}
	if len(cols) > 6 {
		f.Extra = append([]string(nil), cols[6:]...)
	}
	return f, nil
}
