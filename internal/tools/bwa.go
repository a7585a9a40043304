package tools

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/nathanielparke/cannoli/internal/command"
	"github.com/nathanielparke/cannoli/internal/paths"
)

const (
	bwaExecutable = "bwa"
	bwaImage      = "quay.io/biocontainers/bwa:0.7.17--ha92aebf_3"
)

// bwaIndexSuffixes are the files `bwa index` writes beside the reference.
var bwaIndexSuffixes = []string{".amb", ".ann", ".bwt", ".pac", ".sa"}

// Bwa aligns interleaved read pairs with `bwa mem -p`.
type Bwa struct {
	Common
	Index    string
	SampleID string
	Threads  int
}

func (t *Bwa) Name() string  { return "bwa" }
func (t *Bwa) Short() string { return "Align interleaved FASTQ fragments with bwa mem" }

func (t *Bwa) Bind(fs *pflag.FlagSet) {
	t.BindCommon(fs, bwaExecutable, bwaImage)
	fs.StringVarP(&t.Index, "index", "x", "", "Indexed reference FASTA (the .amb .ann .bwt .pac .sa files must sit beside it)")
	fs.StringVar(&t.SampleID, "sample-id", "", "Read group ID and sample name added with -R")
	fs.IntVar(&t.Threads, "threads", 1, "Threads per bwa process")
}

func (t *Bwa) Validate() error {
	if t.Index == "" {
		return &command.ConfigurationError{Option: "--index", Reason: "is required"}
	}
	if t.Threads < 1 {
		return &command.ConfigurationError{Option: "--threads", Reason: "must be at least 1"}
	}
	return t.ValidateCommon()
}

func (t *Bwa) Command(env *Env) (*command.Command, error) {
	for _, s := range bwaIndexSuffixes {
		if _, err := os.Stat(t.Index + s); err != nil {
			return nil, &paths.InvalidPathError{Path: t.Index + s, Reason: "missing bwa index file", Err: err}
		}
	}
	b, err := t.Builder(env)
	if err != nil {
		return nil, err
	}
	idx, err := env.Files.DistributeIndex(b, t.Index, t.Index+".*", t.AddFiles)
	if err != nil {
		return nil, err
	}
	b.Add("mem", "-t", fmt.Sprint(t.Threads), "-p")
	if t.SampleID != "" {
		b.Add("-R", fmt.Sprintf(`@RG\tID:%s\tSM:%s`, t.SampleID, t.SampleID))
	}
	b.Add(idx, "-")
	return b.Build()
}

func (t *Bwa) Run(ctx context.Context, env *Env, input, output string) error {
	cmd, err := t.Command(env)
	if err != nil {
		return err
	}
	return runAligner(ctx, env, t.Name(), cmd, &t.Common, input, output)
}
