package tools

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/nathanielparke/cannoli/internal/command"
	"github.com/nathanielparke/cannoli/internal/formats"
	"github.com/nathanielparke/cannoli/pkg/records"
)

const (
	bedtoolsExecutable = "bedtools"
	bedtoolsImage      = "quay.io/biocontainers/bedtools:2.27.1--he941832_2"
)

// Bedtools runs `bedtools intersect` with the partition on one side and a
// feature file on the other.
type Bedtools struct {
	Common
	A      string
	B      string
	Sorted bool
}

func (t *Bedtools) Name() string  { return "bedtools" }
func (t *Bedtools) Short() string { return "Intersect features with bedtools intersect" }

func (t *Bedtools) Bind(fs *pflag.FlagSet) {
	t.BindCommon(fs, bedtoolsExecutable, bedtoolsImage)
	fs.StringVarP(&t.A, "a", "a", "", "Feature file for -a; the partition is then given as -b")
	fs.StringVarP(&t.B, "b", "b", "", "Feature file for -b; the partition is then given as -a")
	fs.BoolVar(&t.Sorted, "sorted", false, "Pass -sorted to bedtools")
}

func (t *Bedtools) Validate() error {
	if err := ExactlyOne(Choice{"a", t.A}, Choice{"b", t.B}); err != nil {
		return err
	}
	return t.ValidateCommon()
}

func (t *Bedtools) Command(env *Env) (*command.Command, error) {
	b, err := t.Builder(env)
	if err != nil {
		return nil, err
	}
	a, bb := "stdin", "stdin"
	if t.A != "" {
		if a, err = env.Files.Distribute(b, t.A, t.AddFiles); err != nil {
			return nil, err
		}
	} else {
		if bb, err = env.Files.Distribute(b, t.B, t.AddFiles); err != nil {
			return nil, err
		}
	}
	b.Add("intersect", "-a", a, "-b", bb)
	if t.Sorted {
		b.Add("-sorted")
	}
	return b.Build()
}

func (t *Bedtools) Run(ctx context.Context, env *Env, input, output string) error {
	cmd, err := t.Command(env)
	if err != nil {
		return err
	}
	in, err := formats.FeatureCodec(detect(env.Logger, input))
	if err != nil {
		return err
	}
	out, err := formats.FeatureCodec(detect(env.Logger, output))
	if err != nil {
		return err
	}
	return run(ctx, env, job[records.Feature, records.Feature]{
		tool: t.Name(), cmd: cmd, input: input, output: output, common: &t.Common,
		in: in, out: out, ser: formats.BEDFormat{}, de: formats.BEDFormat{},
	})
}
