package tools

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/nathanielparke/cannoli/internal/command"
	"github.com/nathanielparke/cannoli/internal/formats"
	"github.com/nathanielparke/cannoli/pkg/records"
)

const (
	bowtie2Executable = "bowtie2"
	bowtie2Image      = "quay.io/biocontainers/bowtie2:2.3.4.3--py27h2d50403_0"
)

// Bowtie2 aligns interleaved read pairs with bowtie2.
type Bowtie2 struct {
	Common
	Index string
}

func (t *Bowtie2) Name() string  { return "bowtie2" }
func (t *Bowtie2) Short() string { return "Align interleaved FASTQ fragments with bowtie2" }

func (t *Bowtie2) Bind(fs *pflag.FlagSet) {
	t.BindCommon(fs, bowtie2Executable, bowtie2Image)
	fs.StringVarP(&t.Index, "index", "x", "", "Basename of the bowtie2 index (the *.bt2 files beside it are used)")
}

func (t *Bowtie2) Validate() error {
	if t.Index == "" {
		return &command.ConfigurationError{Option: "--index", Reason: "is required"}
	}
	return t.ValidateCommon()
}

func (t *Bowtie2) Command(env *Env) (*command.Command, error) {
	b, err := t.Builder(env)
	if err != nil {
		return nil, err
	}
	idx, err := env.Files.DistributeIndex(b, t.Index, t.Index+".*.bt2*", t.AddFiles)
	if err != nil {
		return nil, err
	}
	b.Add("-x", idx, "--interleaved", "-")
	return b.Build()
}

func (t *Bowtie2) Run(ctx context.Context, env *Env, input, output string) error {
	cmd, err := t.Command(env)
	if err != nil {
		return err
	}
	return runAligner(ctx, env, t.Name(), cmd, &t.Common, input, output)
}

// runAligner pipes fragments as interleaved FASTQ into an aligner that
// writes SAM.
func runAligner(ctx context.Context, env *Env, tool string, cmd *command.Command, c *Common, input, output string) error {
	in, err := formats.FragmentCodec(detect(env.Logger, input))
	if err != nil {
		return err
	}
	out, err := formats.AlignmentCodec(detect(env.Logger, output))
	if err != nil {
		return err
	}
	return run(ctx, env, job[records.Fragment, records.Alignment]{
		tool: tool, cmd: cmd, input: input, output: output, common: c,
		in: in, out: out, ser: formats.InterleavedFASTQ{}, de: formats.AnySAM{},
	})
}
