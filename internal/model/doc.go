// Package model defines the domain types and value objects for the
// mrbdec CLI.
//
// This package contains pure data structures with no external dependencies.
// The central value is Arity, the seven-field argument specification that
// mruby encodes in the OP_ENTER instruction and that Ruby fixtures carry
// as "# OP_ENTER:" annotation comments. Both the bytecode side (opcode
// package) and the source side (rbsig package) produce Arity values so
// they can be compared directly.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
