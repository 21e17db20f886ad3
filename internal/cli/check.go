package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mrbdec/internal/model"
	"github.com/shinji-kodama/mrbdec/internal/rbsig"
)

type checkFlags struct {
	// allowMismatch reports mismatches without failing the command.
	allowMismatch bool
}

// NewCheckCommand creates the "check" command.
func NewCheckCommand() *cobra.Command {
	flags := &checkFlags{}

	cmd := &cobra.Command{
		Use:   "check <file.rb>...",
		Short: `Verify "# OP_ENTER:" annotations against declared parameters`,
		Long: `Compare every "# OP_ENTER:" annotation in Ruby source files with the arity
computed from the parameter list of the method, block or lambda it sits in.

The command exits with code 6 when an annotation disagrees with its
declaration or cannot be parsed, unless --allow-mismatch is given.
Unannotated definitions are only listed with --verbose.

Examples:
  mrbdec check methods.rb
  mrbdec check --allow-mismatch --json fixtures/*.rb`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), flags, args)
		},
	}

	cmd.Flags().BoolVar(&flags.allowMismatch, "allow-mismatch", false, "Report mismatches without a failing exit code")

	return cmd
}

func runCheck(ctx context.Context, w io.Writer, flags *checkFlags, args []string) error {
	files, err := parseRubyFiles(ctx, args)
	if err != nil {
		return err
	}

	findings := rbsig.Check(files)
	counts := rbsig.Tally(findings)

	if IsJSONOutput() {
		if err := printJSON(w, map[string]any{"findings": findings, "counts": counts}); err != nil {
			return err
		}
	} else {
		printCheckText(w, findings, counts)
	}

	if counts.Failed() && !flags.allowMismatch {
		return model.NewCLIError(model.ExitAnnotationMismatch,
			fmt.Sprintf("annotation check failed: %d mismatch, %d malformed", counts.Mismatch, counts.Malformed))
	}
	return nil
}

func printCheckText(w io.Writer, findings []rbsig.Finding, counts rbsig.Counts) {
	for _, fd := range findings {
		sig := fd.Signature
		loc := fmt.Sprintf("%s:%d", fd.Path, sig.Line)
		switch fd.Status {
		case rbsig.StatusOK:
			VerboseLog("%s %s: ok", loc, sig.QualifiedName())
		case rbsig.StatusUnannotated:
			VerboseLog("%s %s: unannotated", loc, sig.QualifiedName())
		case rbsig.StatusMalformed:
			fmt.Fprintf(w, "%s %s: malformed annotation at line %d: %s\n",
				loc, sig.QualifiedName(), sig.AnnotationLine, sig.AnnotationError)
		case rbsig.StatusMismatch:
			fmt.Fprintf(w, "%s %s: mismatch (%s)\n", loc, sig.QualifiedName(), strings.Join(fd.Diff, ", "))
			fmt.Fprintf(w, "    declared:  %s\n", sig.Arity.Fields())
			fmt.Fprintf(w, "    annotated: %s\n", sig.Annotation.Fields())
		}
	}
	fmt.Fprintf(w, "%d ok, %d mismatch, %d unannotated, %d malformed\n",
		counts.OK, counts.Mismatch, counts.Unannotated, counts.Malformed)
}
