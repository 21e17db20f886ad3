// Package cli implements the cobra-based CLI commands for mrbdec.
//
// Each subcommand is defined in its own file within this package. This file
// defines the root command, the global flags and the error-to-exit-code
// translation shared by all subcommands.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mrbdec/internal/config"
	"github.com/shinji-kodama/mrbdec/internal/decompiler"
	"github.com/shinji-kodama/mrbdec/internal/model"
	"github.com/shinji-kodama/mrbdec/internal/rite"
)

// Global flag variables, bound to persistent flags on the root command.
var (
	// jsonOutput switches command output and error reports to JSON.
	jsonOutput bool

	// verbose lowers the log level to Debug.
	verbose bool

	// configPath names a project config file instead of searching the
	// working directory.
	configPath string
)

// logger receives all diagnostics. It is rebuilt before every command so
// it honours --verbose and --json.
var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Build information, injected from the main package.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates the root command with every subcommand registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mrbdec",
		Short: "mruby bytecode decompiler and OP_ENTER arity checker",
		Long: `mrbdec reads mruby 1.x RITE binaries (.mrb, _scp.bin) and turns them back
into Ruby source, prints instruction listings and opcode statistics, and
checks "# OP_ENTER:" arity annotations in Ruby fixtures against the
declared method parameters.`,

		// Cobra would print the error and the full usage text for every
		// RunE failure. A decompile error is not a usage mistake, and with
		// --json the output must stay a single JSON document, so Execute
		// prints errors itself.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		// Flags are only parsed once a subcommand is selected, so the
		// logger is rebuilt here rather than in NewRootCommand. Writing to
		// cmd.ErrOrStderr lets tests capture diagnostics with SetErr.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogger(cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: .mrbdec.{jsonc,json,yaml,yml} in the working directory)")

	rootCmd.AddCommand(NewDecompileCommand())
	rootCmd.AddCommand(NewDisasmCommand())
	rootCmd.AddCommand(NewDumpCommand())
	rootCmd.AddCommand(NewDecompileAllCommand())
	rootCmd.AddCommand(NewStatsCommand())
	rootCmd.AddCommand(NewSigsCommand())
	rootCmd.AddCommand(NewCheckCommand())
	rootCmd.AddCommand(NewCompileCommand())
	rootCmd.AddCommand(NewCleanCommand())

	return rootCmd
}

// Execute runs the root command and exits with the code carried by a
// returned CLIError, or 1 for any other error.
func Execute(rootCmd *cobra.Command) {
	// Exit codes are part of the interface: scripts tell a missing input
	// (2) from a malformed binary (4) or an annotation mismatch (6). Any
	// error without a CLIError in its chain falls back to 1.
	if err := rootCmd.Execute(); err != nil {
		code, message, underlying := describeError(err)
		printError(os.Stderr, message, underlying)
		os.Exit(int(code))
	}
}

// describeError splits err into an exit code, a message and the
// underlying cause.
func describeError(err error) (model.ExitCode, string, error) {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code, cliErr.Message, cliErr.Err
	}
	return model.ExitGeneralError, err.Error(), nil
}

// printError writes an error in the format selected by --json.
func printError(w io.Writer, message string, underlying error) {
	// The JSON form keeps the message and its cause in separate fields so
	// tools can match on the message without parsing the cause.
	if jsonOutput {
		errObj := map[string]any{"message": message}
		if underlying != nil {
			errObj["detail"] = underlying.Error()
		}
		data, _ := json.MarshalIndent(map[string]any{"error": errObj}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}
	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// setupLogger replaces the package logger. With --json the records are
// JSON too, so stderr stays machine-readable alongside JSON stdout.
func setupLogger(w io.Writer) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if jsonOutput {
		logger = slog.New(slog.NewJSONHandler(w, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(w, opts))
	}
}

// VerboseLog emits a Debug record, which is only shown with --verbose.
func VerboseLog(format string, args ...any) {
	logger.Debug(fmt.Sprintf(format, args...))
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// loadConfig loads and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: configPath})
	if err != nil {
		// A CLIError already carries the right exit code (a --config file
		// that does not exist is ExitInputNotFound); keep it as is.
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			return nil, err
		}
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to load configuration", err)
	}

	// Every problem is reported at once so a broken config file can be
	// fixed in one edit.
	if problems := config.Validate(cfg); len(problems) > 0 {
		msgs := make([]string, 0, len(problems))
		for _, p := range problems {
			msgs = append(msgs, p.Field+": "+p.Message)
		}
		return nil, model.NewCLIError(model.ExitGeneralError,
			"invalid configuration: "+strings.Join(msgs, "; "))
	}
	return cfg, nil
}

// formatErrors are the failures that mean the input is not a usable RITE
// binary.
var formatErrors = []error{
	rite.ErrBadIdentifier,
	rite.ErrUnsupportedVersion,
	rite.ErrTruncated,
	rite.ErrMalformed,
	rite.ErrSymbolIndex,
	rite.ErrCRCMismatch,
	decompiler.ErrBadOperand,
}

// inputError attaches the exit code matching a per-file failure.
//
// The checks are ordered: a missing file is reported before anything
// else, and an unhandled opcode in strict mode gets its own exit code even
// though the binary itself parsed fine.
func inputError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return model.WrapCLIError(model.ExitInputNotFound, fmt.Sprintf("input file not found: %s", path), err)
	case errors.Is(err, decompiler.ErrUnhandledOpcode):
		return model.WrapCLIError(model.ExitUnsupportedOpcode, fmt.Sprintf("cannot decompile %s", path), err)
	}
	for _, target := range formatErrors {
		if errors.Is(err, target) {
			return model.WrapCLIError(model.ExitMalformedBinary, fmt.Sprintf("malformed RITE binary: %s", path), err)
		}
	}
	return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("failed to process %s", path), err)
}

// requireDir fails with ExitInputNotFound unless path is a directory.
func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return inputError(path, err)
	}
	if !info.IsDir() {
		return model.NewCLIError(model.ExitGeneralError, fmt.Sprintf("not a directory: %s", path))
	}
	return nil
}
