package records

import "testing"

func TestReadBaseName(t *testing.T) {
	tests := map[string]string{
		"frag1/1":          "frag1",
		"frag1/2":          "frag1",
		"frag1":            "frag1",
		"frag1/1 1:N:0:1":  "frag1",
		"SRR001.1\tlen=36": "SRR001.1",
		"a/3":              "a/3",
	}
	for in, want := range tests {
		if got := ReadBaseName(in); got != want {
			t.Errorf("ReadBaseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFlags(t *testing.T) {
	if !(Alignment{Flag: 4}).Unmapped() {
		t.Error("flag 4 should be unmapped")
	}
	if (Alignment{Flag: 99}).Unmapped() {
		t.Error("flag 99 should be mapped")
	}
	if !(Fragment{Reads: make([]Read, 2)}).Paired() {
		t.Error("two reads should be paired")
	}
}
