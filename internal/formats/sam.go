package formats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"

	"github.com/nathanielparke/cannoli/pkg/records"
)

// SAMFormat writes alignments as SAM text. Header lines, if any, are
// written first verbatim.
type SAMFormat struct {
	Header []string
}

// Serialize writes one tab-separated line per alignment.
func (s SAMFormat) Serialize(w io.Writer, alns []records.Alignment) error {
	bw := bufio.NewWriter(w)
	for _, h := range s.Header {
		if _, err := bw.WriteString(h + "\n"); err != nil {
			return err
		}
	}
	for i, a := range alns {
		if a.QName == "" || strings.ContainsAny(a.QName, "\t\n ") {
			return &EncodingError{Format: SAM, Index: i, Err: fmt.Errorf("invalid query name %q", a.QName)}
		}
		if a.Seq != "*" && a.Qual != "*" && len(a.Seq) != len(a.Qual) {
			return &EncodingError{Format: SAM, Index: i, Err: fmt.Errorf("alignment %q: sequence length %d != quality length %d", a.QName, len(a.Seq), len(a.Qual))}
		}
		cols := []string{
			a.QName,
			strconv.FormatUint(uint64(a.Flag), 10),
			orStar(a.RName),
			strconv.FormatInt(a.Pos, 10),
			strconv.FormatUint(uint64(a.MapQ), 10),
			orStar(a.Cigar),
			orStar(a.RNext),
			strconv.FormatInt(a.PNext, 10),
			strconv.FormatInt(a.TLen, 10),
			orStar(a.Seq),
			orStar(a.Qual),
		}
		cols = append(cols, a.Tags...)
		if _, err := bw.WriteString(strings.Join(cols, "\t") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func orStar(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

// AnySAM reads SAM text or BGZF-compressed BAM, sniffing the first bytes.
// CRAM is recognised and rejected.
type AnySAM struct{}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	cramMagic = []byte("CRAM")
)

// Deserialize parses the stream in whichever alignment format it holds.
func (AnySAM) Deserialize(r io.Reader) ([]records.Alignment, error) {
	br := bufio.NewReaderSize(r, readBufferSize)
	magic, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		return readBAM(br)
	case bytes.HasPrefix(magic, cramMagic):
		return nil, &DecodingError{Format: BAM, Err: errors.New("CRAM input is not supported")}
	default:
		return readSAM(br)
	}
}

func readSAM(r io.Reader) ([]records.Alignment, error) {
	lr := newLineReader(r)
	var out []records.Alignment
	for {
		line, ok, err := lr.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		if line == "" || strings.HasPrefix(line, "@") {
			continue
		}
		a, err := parseSAMLine(line)
		if err != nil {
			return nil, &DecodingError{Format: SAM, Line: lr.line, Offset: lr.offset, Err: err}
		}
		out = append(out, a)
	}
}

func parseSAMLine(line string) (records.Alignment, error) {
	cols := strings.Split(line, "\t")
	if len(cols) < 11 {
		return records.Alignment{}, fmt.Errorf("expected 11 mandatory columns, got %d", len(cols))
	}
	flag, err := strconv.ParseUint(cols[1], 10, 16)
	if err != nil {
		return records.Alignment{}, fmt.Errorf("flag: %w", err)
	}
	pos, err := strconv.ParseInt(cols[3], 10, 64)
	if err != nil {
		return records.Alignment{}, fmt.Errorf("pos: %w", err)
	}
	mapq, err := strconv.ParseUint(cols[4], 10, 8)
	if err != nil {
		return records.Alignment{}, fmt.Errorf("mapq: %w", err)
	}
	pnext, err := strconv.ParseInt(cols[7], 10, 64)
	if err != nil {
		return records.Alignment{}, fmt.Errorf("pnext: %w", err)
	}
	tlen, err := strconv.ParseInt(cols[8], 10, 64)
	if err != nil {
		return records.Alignment{}, fmt.Errorf("tlen: %w", err)
	}
	a := records.Alignment{
		QName: cols[0],
		Flag:  uint16(flag),
		RName: cols[2],
		Pos:   pos,
		MapQ:  uint8(mapq),
		Cigar: cols[5],
		RNext: cols[6],
		PNext: pnext,
		TLen:  tlen,
		Seq:   cols[9],
		Qual:  cols[10],
	}
	if len(cols) > 11 {
		a.Tags = append([]string(nil), cols[11:]...)
	}
	return a, nil
}

func readBAM(r io.Reader) ([]records.Alignment, error) {
	br, err := bam.NewReader(r, 1)
	if err != nil {
		return nil, &DecodingError{Format: BAM, Err: err}
	}
	defer br.Close()

	var out []records.Alignment
	for {
		rec, err := br.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, &DecodingError{Format: BAM, Err: fmt.Errorf("record %d: %w", len(out), err)}
		}
		out = append(out, fromBAMRecord(rec))
	}
}

func fromBAMRecord(rec *sam.Record) records.Alignment {
	a := records.Alignment{
		QName: rec.Name,
		Flag:  uint16(rec.Flags),
		RName: "*",
		Pos:   int64(rec.Pos) + 1,
		MapQ:  rec.MapQ,
		Cigar: "*",
		RNext: "*",
		PNext: int64(rec.MatePos) + 1,
		TLen:  int64(rec.TempLen),
		Seq:   "*",
		Qual:  "*",
	}
	if rec.Ref != nil {
		a.RName = rec.Ref.Name()
	}
	if rec.MateRef != nil {
		if rec.Ref != nil && rec.MateRef.ID() == rec.Ref.ID() {
			a.RNext = "="
		} else {
			a.RNext = rec.MateRef.Name()
		}
	}
	if len(rec.Cigar) > 0 {
		a.Cigar = rec.Cigar.String()
	}
	if rec.Seq.Length > 0 {
		a.Seq = string(rec.Seq.Expand())
	}
	if len(rec.Qual) > 0 && rec.Qual[0] != 0xff {
		q := make([]byte, len(rec.Qual))
		for i, v := range rec.Qual {
			q[i] = v + 33
		}
		a.Qual = string(q)
	}
	for _, aux := range rec.AuxFields {
		a.Tags = append(a.Tags, aux.String())
	}
	return a
}
