package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/mrbdec/internal/decompiler"
	"github.com/shinji-kodama/mrbdec/internal/docker"
	"github.com/shinji-kodama/mrbdec/internal/model"
	"github.com/shinji-kodama/mrbdec/internal/opcode"
	"github.com/shinji-kodama/mrbdec/internal/rite"
)

// executeCommand runs the root command with args and returns stdout. An
// empty config file is passed so settings in the working directory never
// leak into a test.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "mrbdec.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte("{}"), 0o644))
	return executeWithConfig(t, cfgPath, args...)
}

func executeWithConfig(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func requireExitCode(t *testing.T, err error, want model.ExitCode) {
	t.Helper()
	require.Error(t, err)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "expected CLIError, got %T: %v", err, err)
	assert.Equal(t, want, cliErr.Code, err.Error())
}

// helloBinary is `puts "hello"` compiled to a RITE binary.
func helloBinary(t *testing.T) []byte {
	t.Helper()
	return encode(t, &rite.Irep{
		NumLocals: 1,
		NumRegs:   3,
		Code: []uint32{
			opcode.ABC(opcode.OP_LOADSELF, 1, 0, 0),
			opcode.ABx(opcode.OP_STRING, 2, 0),
			opcode.ABC(opcode.OP_SEND, 1, 0, 1),
			opcode.ABC(opcode.OP_STOP, 0, 0, 0),
		},
		Pool:    []rite.PoolEntry{{Type: rite.PoolString, Value: "hello"}},
		Symbols: []string{"puts"},
	})
}

// jumpBinary holds a bare jump, which has no Ruby rendering.
func jumpBinary(t *testing.T) []byte {
	t.Helper()
	return encode(t, &rite.Irep{
		NumLocals: 1,
		NumRegs:   2,
		Code: []uint32{
			opcode.AsBx(opcode.OP_JMP, 0, 1),
			opcode.ABC(opcode.OP_STOP, 0, 0, 0),
		},
	})
}

func encode(t *testing.T, root *rite.Irep) []byte {
	t.Helper()
	data, err := rite.Encode(&rite.File{Root: root})
	require.NoError(t, err)
	return data
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDescribeError(t *testing.T) {
	code, msg, underlying := describeError(model.WrapCLIError(model.ExitMalformedBinary, "bad", io.EOF))
	assert.Equal(t, model.ExitMalformedBinary, code)
	assert.Equal(t, "bad", msg)
	assert.Equal(t, io.EOF, underlying)

	wrapped := fmt.Errorf("outer: %w", model.NewCLIError(model.ExitInputNotFound, "gone"))
	code, _, _ = describeError(wrapped)
	assert.Equal(t, model.ExitInputNotFound, code)

	code, msg, underlying = describeError(errors.New("plain"))
	assert.Equal(t, model.ExitGeneralError, code)
	assert.Equal(t, "plain", msg)
	assert.Nil(t, underlying)
}

func TestInputError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ExitCode
	}{
		{"missing", fmt.Errorf("open: %w", os.ErrNotExist), model.ExitInputNotFound},
		{"unhandled opcode", fmt.Errorf("%w: OP_JMP", decompiler.ErrUnhandledOpcode), model.ExitUnsupportedOpcode},
		{"truncated", fmt.Errorf("%w: header", rite.ErrTruncated), model.ExitMalformedBinary},
		{"crc", rite.ErrCRCMismatch, model.ExitMalformedBinary},
		{"bad operand", decompiler.ErrBadOperand, model.ExitMalformedBinary},
		{"other", errors.New("disk on fire"), model.ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireExitCode(t, inputError("x.mrb", tt.err), tt.want)
		})
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, "input file not found: a.mrb", os.ErrNotExist)
	assert.Equal(t, "Error: input file not found: a.mrb: file does not exist\n", buf.String())

	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })
	buf.Reset()
	printError(&buf, "boom", nil)

	var got map[string]map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, map[string]string{"message": "boom"}, got["error"])
}

func TestDecompileCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, filepath.Join(dir, "hello.mrb"), helloBinary(t))

	out, err := executeCommand(t, "decompile", in)

	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("Decompiled %s -> %s.rb\n", in, in), out)
	src, err := os.ReadFile(in + ".rb")
	require.NoError(t, err)
	assert.Equal(t, "puts(\"hello\")\n", string(src))
}

func TestDecompileCommand_Stdout(t *testing.T) {
	in := writeFile(t, filepath.Join(t.TempDir(), "hello_scp.bin"), helloBinary(t))

	out, err := executeCommand(t, "decompile", "-o", "-", in)

	require.NoError(t, err)
	assert.Equal(t, "puts(\"hello\")\n", out)
	assert.NoFileExists(t, in+".rb")
}

func TestDecompileCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, filepath.Join(dir, "hello.mrb"), helloBinary(t))
	target := filepath.Join(dir, "out.rb")

	out, err := executeCommand(t, "--json", "decompile", "-o", target, in)
	require.NoError(t, err)

	var got struct {
		Files []decompileResult `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []decompileResult{{Input: in, Output: target}}, got.Files)
	assert.FileExists(t, target)
}

func TestDecompileCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	hello := writeFile(t, filepath.Join(dir, "hello.mrb"), helloBinary(t))
	jump := writeFile(t, filepath.Join(dir, "jump.mrb"), jumpBinary(t))
	bad := writeFile(t, filepath.Join(dir, "bad.mrb"), []byte("RIFF\x00\x00\x00\x00 not a script at all"))

	tests := []struct {
		name string
		args []string
		want model.ExitCode
	}{
		{"missing input", []string{"decompile", filepath.Join(dir, "nope.mrb")}, model.ExitInputNotFound},
		{"not a RITE file", []string{"decompile", bad}, model.ExitMalformedBinary},
		{"strict unhandled", []string{"decompile", "--strict", jump}, model.ExitUnsupportedOpcode},
		{"output with two inputs", []string{"decompile", "-o", "x.rb", hello, jump}, model.ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, tt.args...)
			requireExitCode(t, err, tt.want)
		})
	}

	// Without --strict the jump becomes a comment.
	out, err := executeCommand(t, "decompile", "-o", "-", jump)
	require.NoError(t, err)
	assert.Equal(t, "# 0000 OP_JMP 0 1\n", out)
}

func TestDisasmCommand(t *testing.T) {
	in := writeFile(t, filepath.Join(t.TempDir(), "hello.mrb"), helloBinary(t))

	out, err := executeCommand(t, "disasm", in)
	require.NoError(t, err)
	assert.Contains(t, out, "irep #0")
	assert.Contains(t, out, "OP_LOADSELF")
	assert.Contains(t, out, "OP_SEND")

	out, err = executeCommand(t, "disasm", "--only", "send", in)
	require.NoError(t, err)
	assert.Contains(t, out, "OP_SEND")
	assert.NotContains(t, out, "OP_LOADSELF")

	_, err = executeCommand(t, "disasm", "--only", "OP_SNED", in)
	requireExitCode(t, err, model.ExitGeneralError)
	assert.Contains(t, err.Error(), "OP_SEND")
}

func TestDumpCommand(t *testing.T) {
	in := writeFile(t, filepath.Join(t.TempDir(), "hello.mrb"), helloBinary(t))

	out, err := executeCommand(t, "dump", in)
	require.NoError(t, err)
	assert.Contains(t, out, "format:   RITE00")
	assert.Contains(t, out, "MATZ")
	assert.Contains(t, out, "(ok)")
	assert.Contains(t, out, "#0     locals 1  regs 3  code 4")

	out, err = executeCommand(t, "--json", "dump", in)
	require.NoError(t, err)
	var res dumpResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.CRCValid)
	require.Len(t, res.Ireps, 1)
	assert.Equal(t, 4, res.Ireps[0].Instructions)
	assert.Equal(t, "END", res.Sections[len(res.Sections)-1].Name)

	out, err = executeCommand(t, "dump", "--yaml", in)
	require.NoError(t, err)
	assert.Contains(t, out, "crcValid: true")
	assert.Regexp(t, `path: ["']#0["']`, out)
}

func TestDumpCommand_CRCMismatch(t *testing.T) {
	data := helloBinary(t)
	data[8] ^= 0xff // stored checksum
	in := writeFile(t, filepath.Join(t.TempDir(), "tampered.mrb"), data)

	out, err := executeCommand(t, "dump", in)

	require.NoError(t, err, "dump reports checksum problems instead of failing")
	assert.Contains(t, out, "(mismatch)")
}

// scanTree lays out one good binary, one duplicate and one broken file.
func scanTree(t *testing.T) string {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mrb"), helloBinary(t))
	writeFile(t, filepath.Join(dir, "sub", "b_scp.bin"), helloBinary(t))
	writeFile(t, filepath.Join(dir, "broken.mrb"), []byte("garbage"))
	return dir
}

func TestDecompileAllCommand(t *testing.T) {
	dir := scanTree(t)

	out, err := executeCommand(t, "decompile-all", dir)

	require.NoError(t, err)
	assert.Contains(t, out, "FAILED "+filepath.Join(dir, "broken.mrb"))
	assert.Contains(t, out, "Decompiled 2/3 files\n")
	assert.FileExists(t, filepath.Join(dir, "sub", "b_scp.bin.rb"))

	_, err = executeCommand(t, "decompile-all", filepath.Join(dir, "missing"))
	requireExitCode(t, err, model.ExitInputNotFound)
}

func TestStatsCommand(t *testing.T) {
	dir := scanTree(t)

	out, err := executeCommand(t, "stats", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "OPCODE")
	assert.Regexp(t, `OP_SEND\s+2\s+a\.mrb, b_scp\.bin`, out)
	assert.Contains(t, out, "3 files scanned, 1 failed")

	out, err = executeCommand(t, "--json", "stats", dir)
	require.NoError(t, err)
	var got struct {
		Files   int `json:"files"`
		Opcodes []struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		} `json:"opcodes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 3, got.Files)
	assert.Len(t, got.Opcodes, 4)
}

const fixtureRB = `def greet(name, greeting = "hi")
  # OP_ENTER:  req: 1 opt: 1 rest: 0 post: 0 key: 0 kdict: 0 block: 0
  puts "#{greeting} #{name}"
end

def wrong(a, *rest)
  # OP_ENTER:  req: 1 opt: 0 rest: 0 post: 0 key: 0 kdict: 0 block: 0
  rest
end

def plain(a)
  a
end
`

func TestSigsCommand(t *testing.T) {
	in := writeFile(t, filepath.Join(t.TempDir(), "fixture.rb"), []byte(fixtureRB))

	out, err := executeCommand(t, "sigs", in)

	require.NoError(t, err)
	assert.Regexp(t, `fixture\.rb:1\s+greet\s+req: 1 opt: 1 rest: 0`, out)
	assert.Regexp(t, `fixture\.rb:6\s+wrong\s+req: 1 opt: 0 rest: 1`, out)
	assert.Regexp(t, `fixture\.rb:11\s+plain\s+req: 1 opt: 0`, out)

	_, err = executeCommand(t, "sigs", filepath.Join(t.TempDir(), "missing.rb"))
	requireExitCode(t, err, model.ExitInputNotFound)
}

func TestSigsCommand_Kind(t *testing.T) {
	src := "def each_item(items)\n  items.each { |x| puts x }\nend\n"
	in := writeFile(t, filepath.Join(t.TempDir(), "blocks.rb"), []byte(src))

	out, err := executeCommand(t, "sigs", "--kind", "Block", in)

	require.NoError(t, err)
	assert.Regexp(t, `blocks\.rb:2\s+items\.each block\s+req: 1`, out)
	assert.NotContains(t, out, "each_item")

	_, err = executeCommand(t, "sigs", "--kind", "proc", in)
	requireExitCode(t, err, model.ExitGeneralError)
	assert.Contains(t, err.Error(), "invalid --kind value")
}

func TestCheckCommand(t *testing.T) {
	in := writeFile(t, filepath.Join(t.TempDir(), "fixture.rb"), []byte(fixtureRB))

	out, err := executeCommand(t, "check", in)
	requireExitCode(t, err, model.ExitAnnotationMismatch)
	assert.Contains(t, out, "wrong: mismatch (rest)")
	assert.Contains(t, out, "declared:  req: 1 opt: 0 rest: 1")
	assert.Contains(t, out, "1 ok, 1 mismatch, 1 unannotated, 0 malformed\n")

	_, err = executeCommand(t, "check", "--allow-mismatch", in)
	assert.NoError(t, err)

	out, err = executeCommand(t, "--json", "check", "--allow-mismatch", in)
	require.NoError(t, err)
	var got struct {
		Findings []struct {
			Status string `json:"status"`
		} `json:"findings"`
		Counts map[string]int `json:"counts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Findings, 3)
	assert.Equal(t, []string{"ok", "mismatch", "unannotated"},
		[]string{got.Findings[0].Status, got.Findings[1].Status, got.Findings[2].Status})
	assert.Equal(t, 1, got.Counts["mismatch"])
}

func TestCompileCommand_Local(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	dir := t.TempDir()
	mrbc := filepath.Join(dir, "mrbc")
	require.NoError(t, os.WriteFile(mrbc, []byte("#!/bin/sh\nprintf RITE > \"$2\"\n"), 0o755))
	cfgPath := writeFile(t, filepath.Join(dir, "cfg.yaml"), []byte("compiler:\n  path: "+mrbc+"\n"))
	src := writeFile(t, filepath.Join(dir, "a.rb"), []byte("puts 1\n"))

	out, err := executeWithConfig(t, cfgPath, "compile", src)

	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("Compiled %s -> %s.mrb\n", src, src), out)
	data, err := os.ReadFile(src + ".mrb")
	require.NoError(t, err)
	assert.Equal(t, "RITE", string(data))

	_, err = executeWithConfig(t, cfgPath, "compile", filepath.Join(dir, "missing.rb"))
	requireExitCode(t, err, model.ExitInputNotFound)
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, filepath.Join(dir, "cfg.json"), []byte(`{"workers": 0, "compiler": {"mode": "docker"}}`))
	in := writeFile(t, filepath.Join(dir, "hello.mrb"), helloBinary(t))

	_, err := executeWithConfig(t, cfgPath, "decompile", in)

	requireExitCode(t, err, model.ExitGeneralError)
	assert.Contains(t, err.Error(), "workers")
	assert.Contains(t, err.Error(), "compiler.image")
}

type fakeEngine struct {
	containers []docker.Container
	removed    []string
}

func (f *fakeEngine) Run(context.Context, docker.RunSpec) (*docker.RunResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeEngine) ListManaged(context.Context) ([]docker.Container, error) {
	return f.containers, nil
}

func (f *fakeEngine) Remove(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return nil
}

func TestCleanContainers(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newEngine := func() *fakeEngine {
		return &fakeEngine{containers: []docker.Container{
			{ID: "a", Name: "mrbdec-compile-a", Labels: docker.BuildLabels("/src/a.rb", now.Add(-90*time.Second))},
			{ID: "b", Name: "mrbdec-compile-b", Labels: map[string]string{docker.LabelManagedBy: docker.ManagedByValue}},
		}}
	}

	t.Run("text", func(t *testing.T) {
		engine := newEngine()
		var buf bytes.Buffer

		require.NoError(t, cleanContainers(context.Background(), &buf, engine, now))

		assert.Equal(t,
			"Removed mrbdec-compile-a (source /src/a.rb, started 1m30s ago)\n"+
				"Removed mrbdec-compile-b\n"+
				"Removed 2 compile container(s)\n", buf.String())
		assert.Equal(t, []string{"a", "b"}, engine.removed)
	})

	t.Run("json", func(t *testing.T) {
		jsonOutput = true
		t.Cleanup(func() { jsonOutput = false })
		var buf bytes.Buffer

		require.NoError(t, cleanContainers(context.Background(), &buf, newEngine(), now))

		var res struct {
			Removed    int `json:"removed"`
			Containers []struct {
				Name       string `json:"name"`
				Source     string `json:"source"`
				Age        string `json:"age"`
				LabelError string `json:"labelError"`
			} `json:"containers"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
		assert.Equal(t, 2, res.Removed)
		require.Len(t, res.Containers, 2)
		assert.Equal(t, "/src/a.rb", res.Containers[0].Source)
		assert.Equal(t, "1m30s", res.Containers[0].Age)
		assert.NotEmpty(t, res.Containers[1].LabelError)
	})
}
