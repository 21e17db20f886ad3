package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mrbdec/internal/config"
	"github.com/shinji-kodama/mrbdec/internal/model"
	"github.com/shinji-kodama/mrbdec/internal/scan"
)

// NewDecompileAllCommand creates the "decompile-all" command.
func NewDecompileAllCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decompile-all <dir>",
		Short: "Decompile every RITE binary under a directory",
		Long: `Walk a directory tree and decompile every file with a configured extension
(.mrb and _scp.bin by default), writing each result next to its input.
Files that fail are reported and do not stop the others.

Examples:
  mrbdec decompile-all ./scripts
  mrbdec decompile-all --json ./scripts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecompileAll(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func runDecompileAll(ctx context.Context, w io.Writer, dir string) error {
	if err := requireDir(dir); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	summary, err := scan.DecompileAll(ctx, dir, scanOptions(cfg))
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("failed to scan %s", dir), err)
	}
	VerboseLog("%d of %d outputs came from the duplicate cache", summary.CacheHits, summary.Decompiled)

	if IsJSONOutput() {
		return printJSON(w, summary)
	}
	for _, f := range summary.Failed {
		fmt.Fprintf(w, "FAILED %s: %s\n", f.Path, f.Error)
	}
	fmt.Fprintf(w, "Decompiled %d/%d files\n", summary.Decompiled, summary.Found)
	return nil
}

func scanOptions(cfg *config.Config) scan.Options {
	return scan.Options{
		Extensions:   cfg.Extensions,
		OutputSuffix: cfg.OutputSuffix,
		Workers:      cfg.Workers,
		CacheSize:    cfg.CacheSize,
		Parse:        parseOptions(cfg),
		Decompile:    decompileOptions(cfg),
		Logger:       logger,
	}
}
