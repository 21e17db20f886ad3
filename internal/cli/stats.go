package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mrbdec/internal/model"
	"github.com/shinji-kodama/mrbdec/internal/scan"
)

// NewStatsCommand creates the "stats" command.
func NewStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <dir>",
		Short: "Count opcode usage across a directory of RITE binaries",
		Long: `Count how often each opcode occurs over every irep of every binary under a
directory, most frequent first, with up to five example files per opcode.
Useful for finding which instructions a decompiler must handle first.

Examples:
  mrbdec stats ./scripts
  mrbdec stats --json ./scripts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func runStats(ctx context.Context, w io.Writer, dir string) error {
	if err := requireDir(dir); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stats, err := scan.OpcodeStats(ctx, dir, scanOptions(cfg))
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("failed to scan %s", dir), err)
	}

	if IsJSONOutput() {
		return printJSON(w, stats)
	}
	printStatsText(w, stats)
	return nil
}

// printStatsText prints the table:
//
//	OPCODE          COUNT     EXAMPLES
//	OP_SEND         1532      a.mrb, b.mrb
func printStatsText(w io.Writer, stats *scan.Stats) {
	fmt.Fprintf(w, "%-15s %-9s %s\n", "OPCODE", "COUNT", "EXAMPLES")
	for _, st := range stats.Opcodes {
		fmt.Fprintf(w, "%-15s %-9d %s\n", st.Name, st.Count, strings.Join(st.Examples, ", "))
	}
	fmt.Fprintf(w, "\n%d files scanned, %d failed\n", stats.Files, len(stats.Failed))
}
