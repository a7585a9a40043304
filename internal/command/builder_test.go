package command

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestBuilder_Direct(t *testing.T) {
	cmd, err := NewBuilder(Direct).
		SetExecutable("bowtie2").
		Add("-x", "/ref/hg38").
		Add("--interleaved", "-").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{"bowtie2", "-x", "/ref/hg38", "--interleaved", "-"}
	if !reflect.DeepEqual(cmd.Tokens(), want) {
		t.Errorf("Tokens = %v, want %v", cmd.Tokens(), want)
	}
	for _, tok := range cmd.Tokens() {
		if tok == "docker" || tok == "singularity" || tok == "sudo" {
			t.Errorf("direct command contains container token %q", tok)
		}
	}
	if cmd.Strategy() != Direct {
		t.Errorf("Strategy = %v, want direct", cmd.Strategy())
	}
}

func TestBuilder_ContainerPrefixThenDirectTail(t *testing.T) {
	configure := func(b *Builder) *Builder {
		return b.SetExecutable("bedtools").Add("intersect", "-a", "stdin", "-b", "$0")
	}
	direct, err := configure(NewBuilder(Direct)).Build()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		strategy Strategy
		sudo     bool
		prefix   []string
	}{
		{
			name:     "docker",
			strategy: Docker,
			prefix:   []string{"docker", "run", "--rm", "-i", "-v", "/ref:/ref", "-v", "$root:$root", "quay.io/biocontainers/bedtools"},
		},
		{
			name:     "docker sudo",
			strategy: Docker,
			sudo:     true,
			prefix:   []string{"sudo", "docker", "run", "--rm", "-i", "-v", "/ref:/ref", "-v", "$root:$root", "quay.io/biocontainers/bedtools"},
		},
		{
			name:     "singularity",
			strategy: Singularity,
			prefix:   []string{"singularity", "exec", "--bind", "/ref:/ref", "--bind", "$root:$root", "quay.io/biocontainers/bedtools"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := configure(NewBuilder(tt.strategy)).
				SetImage("quay.io/biocontainers/bedtools").
				SetSudo(tt.sudo).
				AddMount("/ref").
				AddMount("$root").
				AddMount("/ref")
			cmd, err := b.Build()
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			want := append(append([]string{}, tt.prefix...), direct.Tokens()...)
			if !reflect.DeepEqual(cmd.Tokens(), want) {
				t.Errorf("Tokens =\n  %v\nwant\n  %v", cmd.Tokens(), want)
			}
			if !reflect.DeepEqual(cmd.Inner(), direct.Tokens()) {
				t.Errorf("Inner = %v, want %v", cmd.Inner(), direct.Tokens())
			}
			if got := cmd.Mounts(); !reflect.DeepEqual(got, []string{"/ref", "$root"}) {
				t.Errorf("Mounts = %v, want deduplicated set", got)
			}
		})
	}
}

func TestBuilder_ContainerOptionsRejectedUnderDirect(t *testing.T) {
	for name, apply := range map[string]func(*Builder){
		"image": func(b *Builder) { b.SetImage("ubuntu") },
		"sudo":  func(b *Builder) { b.SetSudo(true) },
		"mount": func(b *Builder) { b.AddMount("/data") },
	} {
		t.Run(name, func(t *testing.T) {
			b := NewBuilder(Direct).SetExecutable("cat")
			apply(b)
			_, err := b.Build()
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("Build() error = %v, want ConfigurationError", err)
			}
		})
	}
}

func TestBuilder_MissingExecutableOrImage(t *testing.T) {
	var ce *ConfigurationError
	if _, err := NewBuilder(Direct).Add("x").Build(); !errors.As(err, &ce) {
		t.Errorf("missing executable: error = %v", err)
	}
	if _, err := NewBuilder(Docker).SetExecutable("cat").Build(); !errors.As(err, &ce) {
		t.Errorf("missing image: error = %v", err)
	}
}

func TestNewBuilderFor(t *testing.T) {
	tests := []struct {
		docker, singularity bool
		want                Strategy
		wantErr             bool
	}{
		{false, false, Direct, false},
		{true, false, Docker, false},
		{false, true, Singularity, false},
		{true, true, Direct, true},
	}
	for _, tt := range tests {
		b, err := NewBuilderFor(tt.docker, tt.singularity)
		if tt.wantErr {
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Errorf("NewBuilderFor(%v, %v) error = %v, want ConfigurationError", tt.docker, tt.singularity, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NewBuilderFor(%v, %v) error = %v", tt.docker, tt.singularity, err)
		}
		if b.Strategy() != tt.want {
			t.Errorf("NewBuilderFor(%v, %v) = %v, want %v", tt.docker, tt.singularity, b.Strategy(), tt.want)
		}
	}
}

func TestBuilder_FilesAndPlaceholders(t *testing.T) {
	b := NewBuilder(Direct).SetExecutable("bwa")
	i := b.AddFile(FileRef{Path: "/ref/hg38.fa", Mode: Staged})
	idx := b.AddFiles(
		FileRef{Path: "/ref/hg38.fa.bwt", Mode: Staged},
		FileRef{Path: "/ref/hg38.fa.sa", Mode: Staged},
	)
	b.Add("mem", "-p", Placeholder(i), "-")

	if i != 0 || !reflect.DeepEqual(idx, []int{1, 2}) {
		t.Errorf("indices = %d, %v; want 0, [1 2]", i, idx)
	}
	cmd, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"bwa", "mem", "-p", "$0", "-"}
	if !reflect.DeepEqual(cmd.Tokens(), want) {
		t.Errorf("Tokens = %v, want %v", cmd.Tokens(), want)
	}
	files := cmd.Files()
	if len(files) != 3 || files[2].Path != "/ref/hg38.fa.sa" {
		t.Errorf("Files = %v", files)
	}
}

func TestBuilder_EnvAndTimeout(t *testing.T) {
	direct, err := NewBuilder(Direct).SetExecutable("cat").SetEnv("LC_ALL", "C").SetTimeout(time.Minute).Build()
	if err != nil {
		t.Fatal(err)
	}
	if got := direct.ProcessEnv(); !reflect.DeepEqual(got, []string{"LC_ALL=C"}) {
		t.Errorf("ProcessEnv = %v", got)
	}
	if direct.Timeout() != time.Minute {
		t.Errorf("Timeout = %v", direct.Timeout())
	}

	docker, err := NewBuilder(Docker).SetExecutable("cat").SetImage("alpine").SetEnv("LC_ALL", "C").Build()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"docker", "run", "--rm", "-i", "-e", "LC_ALL=C", "alpine", "cat"}
	if !reflect.DeepEqual(docker.Tokens(), want) {
		t.Errorf("Tokens = %v, want %v", docker.Tokens(), want)
	}
	if docker.ProcessEnv() != nil {
		t.Errorf("container ProcessEnv = %v, want nil", docker.ProcessEnv())
	}

	if _, err := NewBuilder(Direct).SetExecutable("cat").SetEnv("A=B", "x").Build(); err == nil {
		t.Error("expected error for invalid env name")
	}
}

func TestBuilder_RuntimeBinary(t *testing.T) {
	cmd, err := NewBuilder(Singularity).SetRuntimeBinary("/opt/apptainer/bin/apptainer").
		SetExecutable("cat").SetImage("docker://alpine").Build()
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Tokens()[0] != "/opt/apptainer/bin/apptainer" {
		t.Errorf("Tokens[0] = %q", cmd.Tokens()[0])
	}
}

func TestCommand_ImmutableAccessors(t *testing.T) {
	cmd, err := NewBuilder(Direct).SetExecutable("cat").Add("-").Build()
	if err != nil {
		t.Fatal(err)
	}
	tokens := cmd.Tokens()
	tokens[0] = "rm"
	if cmd.Tokens()[0] != "cat" {
		t.Error("Tokens() must return a copy")
	}
}

func TestCommand_String(t *testing.T) {
	cmd, err := NewBuilder(Direct).SetExecutable("sh").Add("-c", "echo 'hi' >&2").Build()
	if err != nil {
		t.Fatal(err)
	}
	want := `sh -c 'echo '\''hi'\'' >&2'`
	if got := cmd.String(); got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
}
