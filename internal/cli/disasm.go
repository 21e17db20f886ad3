package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mrbdec/internal/disasm"
	"github.com/shinji-kodama/mrbdec/internal/model"
	"github.com/shinji-kodama/mrbdec/internal/opcode"
	"github.com/shinji-kodama/mrbdec/internal/rite"
)

type disasmFlags struct {
	// only is a comma-separated opcode list, e.g. "OP_SEND,ENTER".
	only string
}

// NewDisasmCommand creates the "disasm" command.
func NewDisasmCommand() *cobra.Command {
	flags := &disasmFlags{}

	cmd := &cobra.Command{
		Use:   "disasm <file>",
		Short: "Print the instruction listing of a RITE binary",
		Long: `Print every irep of a RITE binary with its pool, symbols and decoded
instructions. The listing is always text, even with --json.

Examples:
  mrbdec disasm script.mrb
  mrbdec disasm --only OP_SEND,OP_ENTER script.mrb`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisasm(cmd.Context(), cmd.OutOrStdout(), flags, args[0])
		},
	}

	cmd.Flags().StringVar(&flags.only, "only", "", "Only list these opcodes (comma-separated, OP_ prefix optional)")

	return cmd
}

func runDisasm(_ context.Context, w io.Writer, flags *disasmFlags, path string) error {
	ops, err := opcodeFilter(flags.only)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f, err := rite.ParseFile(path, parseOptions(cfg))
	if err != nil {
		return inputError(path, err)
	}
	return disasm.Write(w, f, disasm.Options{Only: ops})
}

func opcodeFilter(list string) ([]opcode.Op, error) {
	ops, err := opcode.ParseList(list)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "invalid --only value", err)
	}
	return ops, nil
}
