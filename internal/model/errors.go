package model

import "fmt"

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInputNotFound indicates an input file or directory does not exist.
	ExitInputNotFound ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible
	// while the docker compiler backend was selected.
	ExitDockerNotRunning ExitCode = 3

	// ExitMalformedBinary indicates a RITE binary could not be parsed.
	ExitMalformedBinary ExitCode = 4

	// ExitUnsupportedOpcode indicates strict decompilation met an
	// instruction it cannot express as Ruby source.
	ExitUnsupportedOpcode ExitCode = 5

	// ExitAnnotationMismatch indicates at least one OP_ENTER annotation
	// disagrees with the declared parameters.
	ExitAnnotationMismatch ExitCode = 6

	// ExitCompileFailed indicates mrbc returned an error.
	ExitCompileFailed ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
