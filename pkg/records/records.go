// Package records defines the typed genomic records that flow through piped
// tools: sequencing fragments, genomic features and read alignments.
package records

import "strings"

// Read is one sequenced read.
type Read struct {
	Name     string `json:"name"`
	Sequence string `json:"sequence"`
	Quality  string `json:"quality"`
}

// Fragment is a sequenced insert: one read, or a read pair sharing a name.
type Fragment struct {
	Name  string `json:"name"`
	Reads []Read `json:"reads"`
}

// Paired reports whether the fragment carries both mates.
func (f Fragment) Paired() bool {
	return len(f.Reads) == 2
}

// ReadBaseName strips the /1 and /2 mate suffixes and any description.
func ReadBaseName(name string) string {
	if i := strings.IndexAny(name, " \t"); i >= 0 {
		name = name[:i]
	}
	if strings.HasSuffix(name, "/1") || strings.HasSuffix(name, "/2") {
		name = name[:len(name)-2]
	}
	return name
}

// Strand of a feature. The empty value means unknown.
type Strand string

const (
	StrandUnknown Strand = ""
	StrandForward Strand = "+"
	StrandReverse Strand = "-"
)

// Feature is a genomic interval, as carried by BED.
type Feature struct {
	Contig string   `json:"contig"`
	Start  int64    `json:"start"` // 0-based, inclusive
	End    int64    `json:"end"`   // exclusive
	Name   string   `json:"name,omitempty"`
	Score  float64  `json:"score,omitempty"`
	Strand Strand   `json:"strand,omitempty"`
	Extra  []string `json:"extra,omitempty"` // BED7+ columns, verbatim
}

// Alignment is a read alignment with SAM semantics. Missing values use the
// SAM conventions ("*" for strings, 0 for positions).
type Alignment struct {
	QName string   `json:"qname"`
	Flag  uint16   `json:"flag"`
	RName string   `json:"rname"`
	Pos   int64    `json:"pos"` // 1-based
	MapQ  uint8    `json:"mapq"`
	Cigar string   `json:"cigar"`
	RNext string   `json:"rnext"`
	PNext int64    `json:"pnext"`
	TLen  int64    `json:"tlen"`
	Seq   string   `json:"seq"`
	Qual  string   `json:"qual"`
	Tags  []string `json:"tags,omitempty"` // TAG:TYPE:VALUE
}

// Unmapped reports the SAM 0x4 flag.
func (a Alignment) Unmapped() bool {
	return a.Flag&0x4 != 0
}
