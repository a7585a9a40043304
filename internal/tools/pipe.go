package tools

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/nathanielparke/cannoli/internal/command"
	"github.com/nathanielparke/cannoli/internal/formats"
	"github.com/nathanielparke/cannoli/pkg/records"
)

// Pipe runs an arbitrary command given after `--`. Files passed with
// --file are registered in order and may be referenced as $0, $1, … in the
// arguments.
type Pipe struct {
	Common
	InputFormat  string
	OutputFormat string
	Files        []string
	Args         []string
}

func (t *Pipe) Name() string  { return "pipe" }
func (t *Pipe) Short() string { return "Pipe records through any command given after --" }

func (t *Pipe) Bind(fs *pflag.FlagSet) {
	t.BindCommon(fs, "", "")
	fs.StringVar(&t.InputFormat, "input-format", "", "Format the command reads on stdin: fastq, bed or sam")
	fs.StringVar(&t.OutputFormat, "output-format", "", "Format the command writes on stdout: fastq, bed or sam (default: the input format)")
	fs.StringArrayVar(&t.Files, "file", nil, "Auxiliary file, referenced as $0, $1, … in order (repeatable)")
}

// TakeArgs receives the command after `--`. Without --executable the first
// argument names the executable.
func (t *Pipe) TakeArgs(args []string) error {
	t.Args = args
	return nil
}

func (t *Pipe) Validate() error {
	if t.Executable == "" && len(t.Args) == 0 {
		return &command.ConfigurationError{Option: "--executable", Reason: "no command given"}
	}
	if t.InputFormat == "" {
		return &command.ConfigurationError{Option: "--input-format", Reason: "is required"}
	}
	if _, err := toolFormat(t.InputFormat); err != nil {
		return &command.ConfigurationError{Option: "--input-format", Reason: err.Error()}
	}
	if t.OutputFormat != "" {
		if _, err := toolFormat(t.OutputFormat); err != nil {
			return &command.ConfigurationError{Option: "--output-format", Reason: err.Error()}
		}
	}
	return t.ValidateCommon()
}

// toolFormat parses a format a command can speak on its streams.
func toolFormat(name string) (formats.Format, error) {
	f, err := formats.ParseFormat(name)
	if err != nil {
		return f, err
	}
	switch f {
	case formats.FASTQ, formats.BED, formats.SAM:
		return f, nil
	}
	return f, fmt.Errorf("%s cannot be streamed to a command", f)
}

func (t *Pipe) Command(env *Env) (*command.Command, error) {
	exe, args := t.Executable, t.Args
	if exe == "" {
		exe, args = args[0], args[1:]
	}
	c := t.Common
	c.Executable = exe
	b, err := c.Builder(env)
	if err != nil {
		return nil, err
	}
	for _, f := range t.Files {
		if err := t.addFile(env, b, f); err != nil {
			return nil, err
		}
	}
	b.Add(args...)
	return b.Build()
}

// addFile registers f so that its placeholder resolves on every worker,
// whether it is staged or shared.
func (t *Pipe) addFile(env *Env, b *command.Builder, f string) error {
	tok, err := env.Files.Distribute(b, f, t.AddFiles)
	if err != nil || t.AddFiles {
		return err
	}
	b.AddFile(command.FileRef{Path: tok, Mode: command.Shared})
	return nil
}

func (t *Pipe) Run(ctx context.Context, env *Env, input, output string) error {
	cmd, err := t.Command(env)
	if err != nil {
		return err
	}
	inFmt, _ := toolFormat(t.InputFormat)
	outFmt := inFmt
	if t.OutputFormat != "" {
		outFmt, _ = toolFormat(t.OutputFormat)
	}
	p := pipeRun{tool: t, env: env, cmd: cmd, input: input, output: output, outFmt: outFmt}
	switch inFmt {
	case formats.FASTQ:
		return pipeFrom[records.Fragment](ctx, p, formats.FragmentCodec, formats.InterleavedFASTQ{})
	case formats.BED:
		return pipeFrom[records.Feature](ctx, p, formats.FeatureCodec, formats.BEDFormat{})
	default:
		return pipeFrom[records.Alignment](ctx, p, formats.AlignmentCodec, formats.SAMFormat{})
	}
}

type pipeRun struct {
	tool          *Pipe
	env           *Env
	cmd           *command.Command
	input, output string
	outFmt        formats.Format
}

// pipeFrom fixes the input record type and dispatches on the output one.
func pipeFrom[T any](ctx context.Context, p pipeRun, codec func(formats.Format) (formats.Codec[T], error), ser formats.Serializer[T]) error {
	in, err := codec(detect(p.env.Logger, p.input))
	if err != nil {
		return err
	}
	switch p.outFmt {
	case formats.FASTQ:
		return pipeTo[T, records.Fragment](ctx, p, in, ser, formats.FragmentCodec, formats.InterleavedFASTQ{})
	case formats.BED:
		return pipeTo[T, records.Feature](ctx, p, in, ser, formats.FeatureCodec, formats.BEDFormat{})
	default:
		return pipeTo[T, records.Alignment](ctx, p, in, ser, formats.AlignmentCodec, formats.AnySAM{})
	}
}

func pipeTo[T, U any](ctx context.Context, p pipeRun, in formats.Codec[T], ser formats.Serializer[T],
	codec func(formats.Format) (formats.Codec[U], error), de formats.Deserializer[U]) error {
	out, err := codec(detect(p.env.Logger, p.output))
	if err != nil {
		return err
	}
	return run(ctx, p.env, job[T, U]{
		tool: p.tool.Name(), cmd: p.cmd, input: p.input, output: p.output, common: &p.tool.Common,
		in: in, out: out, ser: ser, de: de,
	})
}
