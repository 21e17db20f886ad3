package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mrbdec/internal/compiler"
	"github.com/shinji-kodama/mrbdec/internal/config"
	"github.com/shinji-kodama/mrbdec/internal/docker"
	"github.com/shinji-kodama/mrbdec/internal/model"
)

type compileFlags struct {
	output string
}

// NewCompileCommand creates the "compile" command.
func NewCompileCommand() *cobra.Command {
	flags := &compileFlags{}

	cmd := &cobra.Command{
		Use:   "compile <file.rb>...",
		Short: "Compile Ruby source to RITE binaries with mrbc",
		Long: `Compile Ruby source files with mrbc, writing <file>.rb.mrb next to each
input unless -o is given.

mrbc is taken from the host (compiler.mode "local", the default) or run in
a throwaway container built from compiler.image (compiler.mode "docker").

Examples:
  mrbdec compile methods.rb
  MRBDEC_COMPILER_MODE=docker MRBDEC_MRBC_IMAGE=my/mruby:1.4 mrbdec compile a.rb`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), cmd.OutOrStdout(), flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file for a single input")

	return cmd
}

type compileResult struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

func runCompile(ctx context.Context, w io.Writer, flags *compileFlags, args []string) error {
	if flags.output != "" && len(args) > 1 {
		return model.NewCLIError(model.ExitGeneralError, "--output can only be used with a single input file")
	}
	for _, path := range args {
		if _, err := os.Stat(path); err != nil {
			return inputError(path, err)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, closeFn, err := newCompiler(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	results := make([]compileResult, 0, len(args))
	for _, src := range args {
		out := flags.output
		if out == "" {
			out = compiler.OutputPath(src)
		}
		VerboseLog("Compiling %s with %s mrbc", src, cfg.Compiler.Mode)
		if err := c.Compile(ctx, src, out); err != nil {
			return err
		}
		results = append(results, compileResult{Input: src, Output: out})
	}

	if IsJSONOutput() {
		return printJSON(w, map[string]any{"files": results})
	}
	for _, r := range results {
		fmt.Fprintf(w, "Compiled %s -> %s\n", r.Input, r.Output)
	}
	return nil
}

// newCompiler builds the compiler selected by cfg. The returned function
// releases the Docker connection, if any.
func newCompiler(ctx context.Context, cfg *config.Config) (compiler.Compiler, func(), error) {
	timeout := cfg.Compiler.TimeoutDuration()
	if cfg.Compiler.Mode != config.ModeDocker {
		return &compiler.Local{Path: cfg.Compiler.Path, Timeout: timeout}, func() {}, nil
	}

	dc, err := connectDocker(ctx)
	if err != nil {
		return nil, nil, err
	}
	c := &compiler.Docker{
		Engine:  dc,
		Image:   cfg.Compiler.Image,
		Command: cfg.Compiler.Command,
		Timeout: timeout,
	}
	return c, func() { _ = dc.Close() }, nil
}

// connectDocker opens a Docker client and checks the daemon answers.
func connectDocker(ctx context.Context) (*docker.Client, error) {
	dc, err := docker.NewClient()
	if err != nil {
		return nil, err
	}
	if err := dc.Ping(ctx); err != nil {
		_ = dc.Close()
		return nil, err
	}
	VerboseLog("Connected to Docker daemon")
	return dc, nil
}
