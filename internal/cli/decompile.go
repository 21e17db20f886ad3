package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mrbdec/internal/config"
	"github.com/shinji-kodama/mrbdec/internal/decompiler"
	"github.com/shinji-kodama/mrbdec/internal/model"
	"github.com/shinji-kodama/mrbdec/internal/rite"
)

// stdoutPath selects standard output as the -o target.
const stdoutPath = "-"

type decompileFlags struct {
	// output overrides the output path of a single input; "-" means stdout.
	output string

	strict   bool
	annotate bool
}

// NewDecompileCommand creates the "decompile" command.
func NewDecompileCommand() *cobra.Command {
	flags := &decompileFlags{}

	cmd := &cobra.Command{
		Use:   "decompile <file>...",
		Short: "Decompile RITE binaries to Ruby source",
		Long: `Decompile one or more mruby 1.x RITE binaries back to Ruby source.

Each input is written to <file>.rb next to it (the suffix is configurable).
Instructions that have no Ruby equivalent become "# <pc> <instruction>"
comments unless --strict is given, in which case they are an error.

Examples:
  mrbdec decompile script.mrb
  mrbdec decompile -o - event_scp.bin
  mrbdec decompile --annotate --strict a.mrb b.mrb`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecompile(cmd.Context(), cmd.OutOrStdout(), flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", `Output file for a single input ("-" for stdout)`)
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "Fail on instructions that cannot be expressed as Ruby")
	cmd.Flags().BoolVar(&flags.annotate, "annotate", false, `Write "# OP_ENTER:" arity comments into methods and blocks`)

	return cmd
}

type decompileResult struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

func runDecompile(ctx context.Context, w io.Writer, flags *decompileFlags, args []string) error {
	if flags.output != "" && len(args) > 1 {
		return model.NewCLIError(model.ExitGeneralError, "--output can only be used with a single input file")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts := decompileOptions(cfg)
	opts.Strict = opts.Strict || flags.strict
	opts.Annotate = opts.Annotate || flags.annotate

	results := make([]decompileResult, 0, len(args))
	for _, path := range args {
		if err := ctx.Err(); err != nil {
			return err
		}
		VerboseLog("Decompiling %s", path)

		src, err := decompileFile(path, parseOptions(cfg), opts)
		if err != nil {
			return err
		}

		if flags.output == stdoutPath {
			if _, err := io.WriteString(w, src); err != nil {
				return err
			}
			continue
		}

		out := flags.output
		if out == "" {
			out = path + cfg.OutputSuffix
		}
		if err := os.WriteFile(out, []byte(src), 0o644); err != nil {
			return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("failed to write %s", out), err)
		}
		results = append(results, decompileResult{Input: path, Output: out})
	}

	if flags.output == stdoutPath {
		return nil
	}
	if IsJSONOutput() {
		return printJSON(w, map[string]any{"files": results})
	}
	for _, r := range results {
		fmt.Fprintf(w, "Decompiled %s -> %s\n", r.Input, r.Output)
	}
	return nil
}

func decompileFile(path string, parse rite.Options, opts decompiler.Options) (string, error) {
	f, err := rite.ParseFile(path, parse)
	if err != nil {
		return "", inputError(path, err)
	}
	src, err := decompiler.Decompile(f, opts)
	if err != nil {
		return "", inputError(path, err)
	}
	return src, nil
}

func parseOptions(cfg *config.Config) rite.Options {
	return rite.Options{VerifyCRC: cfg.VerifyCRC}
}

func decompileOptions(cfg *config.Config) decompiler.Options {
	return decompiler.Options{
		Indent:   cfg.Indent,
		Strict:   cfg.Strict,
		Annotate: cfg.Annotate,
	}
}
