package formats

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"

	"github.com/nathanielparke/cannoli/pkg/records"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"fastq", FASTQ, false},
		{"IFQ", FASTQ, false},
		{"interleaved-fastq", FASTQ, false},
		{"bed", BED, false},
		{"sam", SAM, false},
		{"bam", BAM, false},
		{"jsonl", Native, false},
		{"native", Native, false},
		{"cram", Native, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		path      string
		want      Format
		wantKnown bool
	}{
		{"reads.ifq", FASTQ, true},
		{"/data/reads.FASTQ", FASTQ, true},
		{"peaks.bed", BED, true},
		{"out.sam", SAM, true},
		{"out.bam", BAM, true},
		{"out.jsonl", Native, true},
		{"out.bedd", Native, false},
		{"out", Native, false},
	}
	for _, tt := range tests {
		got, known := Detect(tt.path)
		if got != tt.want || known != tt.wantKnown {
			t.Errorf("Detect(%q) = (%v, %v), want (%v, %v)", tt.path, got, known, tt.want, tt.wantKnown)
		}
	}
}

func sampleFragments() []records.Fragment {
	return []records.Fragment{
		{Name: "r1", Reads: []records.Read{
			{Name: "r1/1", Sequence: "ACGT", Quality: "IIII"},
			{Name: "r1/2", Sequence: "TTGA", Quality: "HHHH"},
		}},
		{Name: "r2", Reads: []records.Read{
			{Name: "r2/1", Sequence: "GG", Quality: "##"},
			{Name: "r2/2", Sequence: "CC", Quality: "$$"},
		}},
		{Name: "single", Reads: []records.Read{
			{Name: "single", Sequence: "A", Quality: "I"},
		}},
	}
}

func TestInterleavedFASTQRoundTrip(t *testing.T) {
	frags := sampleFragments()
	var buf bytes.Buffer
	if err := (InterleavedFASTQ{}).Serialize(&buf, frags); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "@r1/1\nACGT\n+\nIIII\n@r1/2\n") {
		t.Errorf("unexpected encoding:\n%s", buf.String())
	}

	got, err := (InterleavedFASTQ{}).Deserialize(&buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !reflect.DeepEqual(got, frags) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, frags)
	}
}

func TestInterleavedFASTQRejectsLengthMismatch(t *testing.T) {
	frags := []records.Fragment{{Name: "bad", Reads: []records.Read{{Name: "bad", Sequence: "ACGT", Quality: "II"}}}}
	err := (InterleavedFASTQ{}).Serialize(&bytes.Buffer{}, frags)
	var ee *EncodingError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EncodingError, got %v", err)
	}
	if ee.Index != 0 || ee.Format != FASTQ {
		t.Errorf("EncodingError = %+v", ee)
	}
}

func TestInterleavedFASTQRejectsUnpairableFragments(t *testing.T) {
	tests := []struct {
		name  string
		frags []records.Fragment
		index int
	}{
		{
			name: "mates with different names",
			frags: []records.Fragment{{Name: "p", Reads: []records.Read{
				{Name: "a", Sequence: "A", Quality: "I"},
				{Name: "b", Sequence: "C", Quality: "I"},
			}}},
			index: 0,
		},
		{
			name: "adjacent singles sharing a name",
			frags: []records.Fragment{
				{Name: "p", Reads: []records.Read{{Name: "p/1", Sequence: "A", Quality: "I"}, {Name: "p/2", Sequence: "A", Quality: "I"}}},
				{Name: "dup", Reads: []records.Read{{Name: "dup", Sequence: "A", Quality: "I"}}},
				{Name: "dup", Reads: []records.Read{{Name: "dup", Sequence: "C", Quality: "I"}}},
			},
			index: 2,
		},
		{
			name: "single then mate of same name",
			frags: []records.Fragment{
				{Name: "x", Reads: []records.Read{{Name: "x/1", Sequence: "A", Quality: "I"}}},
				{Name: "x", Reads: []records.Read{{Name: "x/2", Sequence: "A", Quality: "I"}}},
			},
			index: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (InterleavedFASTQ{}).Serialize(&bytes.Buffer{}, tt.frags)
			var ee *EncodingError
			if !errors.As(err, &ee) {
				t.Fatalf("expected *EncodingError, got %v", err)
			}
			if ee.Index != tt.index {
				t.Errorf("Index = %d, want %d", ee.Index, tt.index)
			}
		})
	}
}

func TestInterleavedFASTQSinglesSeparatedByPair(t *testing.T) {
	frags := []records.Fragment{
		{Name: "dup", Reads: []records.Read{{Name: "dup", Sequence: "A", Quality: "I"}}},
		{Name: "p", Reads: []records.Read{{Name: "p/1", Sequence: "A", Quality: "I"}, {Name: "p/2", Sequence: "C", Quality: "I"}}},
		{Name: "dup", Reads: []records.Read{{Name: "dup", Sequence: "G", Quality: "I"}}},
	}
	var buf bytes.Buffer
	if err := (InterleavedFASTQ{}).Serialize(&buf, frags); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := (InterleavedFASTQ{}).Deserialize(&buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !reflect.DeepEqual(got, frags) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, frags)
	}
}

func TestInterleavedFASTQDecodingErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int
	}{
		{"missing header", "ACGT\nACGT\n+\nIIII\n", 1},
		{"missing separator", "@a\nACGT\nIIII\nIIII\n", 3},
		{"truncated", "@a\nACGT\n+\nIIII\n@b\nAC\n", 6},
		{"length mismatch", "@a\nACGT\n+\nIIII\n@b\nAC\n+\nI\n", 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (InterleavedFASTQ{}).Deserialize(strings.NewReader(tt.input))
			var de *DecodingError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodingError, got %v", err)
			}
			if de.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d (%v)", de.Line, tt.wantLine, err)
			}
		})
	}
}

func TestBEDRoundTrip(t *testing.T) {
	feats := []records.Feature{
		{Contig: "chr1", Start: 10, End: 20},
		{Contig: "chr2", Start: 0, End: 5, Name: "peak1", Score: 3.5, Strand: records.StrandReverse},
		{Contig: "chr3", Start: 1, End: 2, Name: "g", Extra: []string{"1", "2", "255,0,0"}},
	}
	var buf bytes.Buffer
	if err := (BEDFormat{}).Serialize(&buf, feats); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := "chr1\t10\t20\nchr2\t0\t5\tpeak1\t3.5\t-\nchr3\t1\t2\tg\t0\t.\t1\t2\t255,0,0\n"
	if buf.String() != want {
		t.Errorf("Serialize =\n%q\nwant\n%q", buf.String(), want)
	}
	got, err := (BEDFormat{}).Deserialize(&buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !reflect.DeepEqual(got, feats) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, feats)
	}
}

func TestBEDSkipsHeaders(t *testing.T) {
	input := "track name=x\nbrowser position chr1\n# comment\n\nchr1\t1\t2\n"
	got, err := (BEDFormat{}).Deserialize(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if len(got) != 1 || got[0].Contig != "chr1" {
		t.Errorf("got %+v", got)
	}
}

func TestBEDErrors(t *testing.T) {
	_, err := (BEDFormat{}).Deserialize(strings.NewReader("chr1\t1\t2\nchr1\t5\t3\n"))
	var de *DecodingError
	if !errors.As(err, &de) || de.Line != 2 {
		t.Fatalf("expected DecodingError on line 2, got %v", err)
	}

	err = (BEDFormat{}).Serialize(&bytes.Buffer{}, []records.Feature{{Contig: "chr1", Start: 9, End: 1}})
	var ee *EncodingError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EncodingError, got %v", err)
	}
}

func TestSAMRoundTrip(t *testing.T) {
	alns := []records.Alignment{
		{QName: "r1", Flag: 99, RName: "chr1", Pos: 100, MapQ: 60, Cigar: "4M", RNext: "=", PNext: 200, TLen: 104, Seq: "ACGT", Qual: "IIII", Tags: []string{"NM:i:0"}},
		{QName: "r2", Flag: 4, RName: "*", Pos: 0, MapQ: 0, Cigar: "*", RNext: "*", PNext: 0, TLen: 0, Seq: "GG", Qual: "##"},
	}
	var buf bytes.Buffer
	s := SAMFormat{Header: []string{"@HD\tVN:1.6", "@SQ\tSN:chr1\tLN:1000"}}
	if err := s.Serialize(&buf, alns); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := (AnySAM{}).Deserialize(&buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !reflect.DeepEqual(got, alns) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, alns)
	}
}

func TestSAMDecodingError(t *testing.T) {
	input := "@HD\tVN:1.6\nr1\t0\tchr1\t1\t60\t1M\t*\t0\t0\tA\tI\nr2\tnotaflag\n"
	_, err := (AnySAM{}).Deserialize(strings.NewReader(input))
	var de *DecodingError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodingError, got %v", err)
	}
	if de.Line != 3 {
		t.Errorf("Line = %d, want 3", de.Line)
	}
}

func TestAnySAMDecodesBAM(t *testing.T) {
	ref, err := sam.NewReference("chr1", "", "", 1000, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	h, err := sam.NewHeader(nil, []*sam.Reference{ref})
	if err != nil {
		t.Fatal(err)
	}
	mapped, err := sam.NewRecord("r1", ref, ref, 9, 19, 14, 60,
		[]sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 4)}, []byte("ACGT"), []byte{30, 30, 30, 30}, nil)
	if err != nil {
		t.Fatal(err)
	}
	mapped.Flags = sam.Paired | sam.Read1
	unmapped, err := sam.NewRecord("u1", nil, nil, -1, -1, 0, 0, nil, []byte("TTTT"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	unmapped.Flags = sam.Unmapped

	var buf bytes.Buffer
	bw, err := bam.NewWriter(&buf, h, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range []*sam.Record{mapped, unmapped} {
		if err := bw.Write(rec); err != nil {
			t.Fatalf("write %s: %v", rec.Name, err)
		}
	}
	if err := bw.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := (AnySAM{}).Deserialize(&buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	want := []records.Alignment{
		{QName: "r1", Flag: 65, RName: "chr1", Pos: 10, MapQ: 60, Cigar: "4M", RNext: "=", PNext: 20, TLen: 14, Seq: "ACGT", Qual: "????"},
		{QName: "u1", Flag: 4, RName: "*", Pos: 0, MapQ: 0, Cigar: "*", RNext: "*", PNext: 0, TLen: 0, Seq: "TTTT", Qual: "*"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("alignments:\ngot  %+v\nwant %+v", got, want)
	}
	if !got[1].Unmapped() {
		t.Error("u1 not reported unmapped")
	}
}

func TestAnySAMRejectsCRAM(t *testing.T) {
	_, err := (AnySAM{}).Deserialize(strings.NewReader("CRAM\x03\x00rest"))
	var de *DecodingError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodingError, got %v", err)
	}
}

func TestAnySAMEmpty(t *testing.T) {
	got, err := (AnySAM{}).Deserialize(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d alignments, want 0", len(got))
	}
}

func TestNativeRoundTrip(t *testing.T) {
	n := NewNative[records.Fragment]("fragment")
	frags := sampleFragments()
	var buf bytes.Buffer
	if err := n.Serialize(&buf, frags); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != len(frags) {
		t.Errorf("wrote %d lines, want %d", lines, len(frags))
	}
	got, err := n.Deserialize(&buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !reflect.DeepEqual(got, frags) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, frags)
	}
}

func TestNativeRejectsWrongType(t *testing.T) {
	var buf bytes.Buffer
	if err := NewNative[records.Feature]("feature").Serialize(&buf, []records.Feature{{Contig: "chr1", End: 1}}); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	_, err := NewNative[records.Fragment]("fragment").Deserialize(&buf)
	var de *DecodingError
	if !errors.As(err, &de) || de.Line != 1 {
		t.Fatalf("expected DecodingError on line 1, got %v", err)
	}
}

func TestCodecSelection(t *testing.T) {
	if _, err := FragmentCodec(BED); err == nil {
		t.Error("FragmentCodec(BED) should fail")
	}
	c, err := AlignmentCodec(BAM)
	if err != nil {
		t.Fatalf("AlignmentCodec(BAM): %v", err)
	}
	if c.Serializer != nil {
		t.Error("BAM codec should be read only")
	}
	if _, err := FeatureCodec(Native); err != nil {
		t.Errorf("FeatureCodec(Native): %v", err)
	}
}
