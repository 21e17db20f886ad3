package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mrbdec/internal/model"
	"github.com/shinji-kodama/mrbdec/internal/rbsig"
)

type sigsFlags struct {
	// kinds restricts output to these method kinds, e.g. "block,lambda".
	kinds []string
}

// NewSigsCommand creates the "sigs" command.
func NewSigsCommand() *cobra.Command {
	flags := &sigsFlags{}

	cmd := &cobra.Command{
		Use:   "sigs <file.rb>...",
		Short: "Print the arity of every method, block and lambda in Ruby files",
		Long: `Parse Ruby source files and print, for every method, singleton method,
block and lambda, the OP_ENTER arity its parameter list compiles to.

Examples:
  mrbdec sigs methods.rb
  mrbdec sigs --kind block,lambda methods.rb
  mrbdec sigs --json lib/*.rb`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSigs(cmd.Context(), cmd.OutOrStdout(), flags, args)
		},
	}

	cmd.Flags().StringSliceVar(&flags.kinds, "kind", nil, "Only list these kinds (instance, singleton, block, lambda)")

	return cmd
}

func runSigs(ctx context.Context, w io.Writer, flags *sigsFlags, args []string) error {
	kinds, err := parseKinds(flags.kinds)
	if err != nil {
		return err
	}
	files, err := parseRubyFiles(ctx, args)
	if err != nil {
		return err
	}
	if len(kinds) > 0 {
		for _, f := range files {
			f.Signatures = slices.DeleteFunc(f.Signatures, func(sig rbsig.Signature) bool {
				return !slices.Contains(kinds, sig.Kind)
			})
		}
	}

	if IsJSONOutput() {
		return printJSON(w, map[string]any{"files": files})
	}
	for _, f := range files {
		for _, sig := range f.Signatures {
			loc := fmt.Sprintf("%s:%d", f.Path, sig.Line)
			fmt.Fprintf(w, "%-24s %-32s %s\n", loc, sig.QualifiedName(), sig.Arity.Fields())
		}
	}
	return nil
}

func parseKinds(values []string) ([]model.MethodKind, error) {
	kinds := make([]model.MethodKind, 0, len(values))
	for _, v := range values {
		kind, err := model.ParseMethodKind(strings.TrimSpace(v))
		if err != nil {
			return nil, model.WrapCLIError(model.ExitGeneralError, "invalid --kind value", err)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// parseRubyFiles parses every path in argument order. Syntax errors are
// logged and the file's remaining signatures are kept.
func parseRubyFiles(ctx context.Context, paths []string) ([]*rbsig.File, error) {
	p, err := rbsig.NewParser()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to initialize Ruby parser", err)
	}
	defer p.Close()

	files := make([]*rbsig.File, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := p.ParseFile(path)
		if err != nil {
			return nil, inputError(path, err)
		}
		for _, se := range f.SyntaxErrors {
			logger.Warn("syntax error", "file", path, "line", se.Line, "column", se.Column, "error", se.Message)
		}
		VerboseLog("%s: %d signatures", path, len(f.Signatures))
		files = append(files, f)
	}
	return files, nil
}
