package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mrbdec/internal/compiler"
)

// NewCleanCommand creates the "clean" command.
func NewCleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove leftover compile containers",
		Long: `Remove every container labelled mrbdec.managed-by=mrbdec. Compile
containers are normally removed as soon as mrbc exits; this cleans up after
runs that were killed. Each removed container is listed with the source file
it was compiling and how long ago it was started.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runClean(ctx context.Context, w io.Writer) error {
	dc, err := connectDocker(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = dc.Close() }()

	return cleanContainers(ctx, w, dc, time.Now())
}

type cleanedContainer struct {
	compiler.Leftover
	Age string `json:"age,omitempty"`
}

// cleanContainers removes the leftovers and reports each one with the
// source file it was compiling and how long ago it was started.
func cleanContainers(ctx context.Context, w io.Writer, engine compiler.Engine, now time.Time) error {
	removed, err := compiler.Cleanup(ctx, engine)
	if err != nil {
		return err
	}

	results := make([]cleanedContainer, 0, len(removed))
	for _, l := range removed {
		c := cleanedContainer{Leftover: l}
		if l.LabelError != "" {
			logger.Warn("unreadable container labels", "container", l.Name, "error", l.LabelError)
		} else {
			c.Age = now.Sub(l.CreatedAt).Round(time.Second).String()
		}
		results = append(results, c)
	}

	if IsJSONOutput() {
		return printJSON(w, map[string]any{"removed": len(results), "containers": results})
	}
	for _, c := range results {
		if c.LabelError != "" {
			fmt.Fprintf(w, "Removed %s\n", c.Name)
			continue
		}
		fmt.Fprintf(w, "Removed %s (source %s, started %s ago)\n", c.Name, c.Source, c.Age)
	}
	fmt.Fprintf(w, "Removed %d compile container(s)\n", len(results))
	return nil
}
