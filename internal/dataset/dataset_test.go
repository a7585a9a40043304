package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/nathanielparke/cannoli/internal/formats"
	"github.com/nathanielparke/cannoli/internal/paths"
	"github.com/nathanielparke/cannoli/pkg/records"
)

func features(n int) []records.Feature {
	out := make([]records.Feature, n)
	for i := range out {
		out[i] = records.Feature{Contig: "chr1", Start: int64(i * 10), End: int64(i*10 + 5)}
	}
	return out
}

func TestFromRecords(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		parts int
		sizes []int
	}{
		{"even", 6, 3, []int{2, 2, 2}},
		{"uneven", 7, 3, []int{2, 2, 3}},
		{"fewer records", 2, 4, []int{0, 1, 0, 1}},
		{"zero partitions", 3, 0, []int{3}},
		{"empty", 0, 2, []int{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := features(tt.n)
			c := FromRecords(recs, tt.parts)
			var sizes []int
			for i, p := range c.Partitions() {
				if p.Index != i {
					t.Errorf("partition %d has index %d", i, p.Index)
				}
				sizes = append(sizes, len(p.Records))
			}
			if !reflect.DeepEqual(sizes, tt.sizes) {
				t.Errorf("sizes = %v, want %v", sizes, tt.sizes)
			}
			if c.Count() != tt.n {
				t.Errorf("Count = %d, want %d", c.Count(), tt.n)
			}
			if got := c.Records(); len(got) != len(recs) || (len(recs) > 0 && !reflect.DeepEqual(got, recs)) {
				t.Errorf("Records order not preserved")
			}
		})
	}
}

func bedCodec(t *testing.T) formats.Codec[records.Feature] {
	t.Helper()
	c, err := formats.FeatureCodec(formats.BED)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestSaveLoadModes(t *testing.T) {
	recs := features(9)
	coll := FromRecords(recs, 3)
	codec := bedCodec(t)

	tests := []struct {
		name string
		opts SaveOptions
	}{
		{"parts", SaveOptions{}},
		{"single fast concat", SaveOptions{Single: true}},
		{"single sequential", SaveOptions{Single: true, DisableFastConcat: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out.bed")
			if err := Save(out, codec, coll, tt.opts); err != nil {
				t.Fatalf("Save: %v", err)
			}
			info, err := os.Stat(out)
			if err != nil {
				t.Fatal(err)
			}
			if info.IsDir() == tt.opts.Single {
				t.Errorf("IsDir = %v with Single = %v", info.IsDir(), tt.opts.Single)
			}
			if _, err := os.Stat(out + ".parts"); !os.IsNotExist(err) {
				t.Errorf("parts directory left behind")
			}

			got, err := Load(out, codec, 0)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !reflect.DeepEqual(got.Records(), recs) {
				t.Errorf("records = %+v, want %+v", got.Records(), recs)
			}
		})
	}
}

func TestSaveDeferMerging(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.bed")
	coll := FromRecords(features(4), 2)
	codec := bedCodec(t)
	if err := Save(out, codec, coll, SaveOptions{Single: true, DeferMerging: true}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("merged file written despite DeferMerging")
	}
	for i := 0; i < 2; i++ {
		if _, err := os.Stat(filepath.Join(out+".parts", PartName(i))); err != nil {
			t.Errorf("part %d: %v", i, err)
		}
	}

	if err := Concat(out+".parts", out); err != nil {
		t.Fatalf("Concat: %v", err)
	}
	b, _ := os.ReadFile(out)
	if n := strings.Count(string(b), "\n"); n != 4 {
		t.Errorf("merged %d lines, want 4", n)
	}
}

func TestLoadRepartitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.bed")
	if err := os.WriteFile(path, []byte("chr1\t0\t1\nchr1\t1\t2\nchr1\t2\t3\nchr1\t3\t4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path, bedCodec(t), 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.NumPartitions() != 2 || c.Count() != 4 {
		t.Errorf("got %d partitions / %d records", c.NumPartitions(), c.Count())
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.bed"), bedCodec(t), 1)
	var pe *paths.InvalidPathError
	if !errors.As(err, &pe) {
		t.Fatalf("expected InvalidPathError, got %v", err)
	}
}

func TestSaveReadOnlyFormat(t *testing.T) {
	codec, err := formats.AlignmentCodec(formats.BAM)
	if err != nil {
		t.Fatal(err)
	}
	err = Save(filepath.Join(t.TempDir(), "out.bam"), codec, FromRecords([]records.Alignment{}, 1), SaveOptions{})
	if err == nil {
		t.Fatal("expected error writing BAM")
	}
}
