// Package decompiler turns mruby 1.x bytecode back into Ruby source.
//
// The decompiler replays each irep's instructions against a model of the
// VM register file. Loads put expressions into registers, operations
// combine them into bigger expressions, and instructions with an effect
// (assignments, calls whose value is never read, definitions) become
// statements. Class, module and method bodies are decompiled
// recursively from the child ireps they reference.
//
// Method and block parameters are recovered from the OP_ENTER argument
// specification and the local variable table; default values of optional
// parameters are decompiled from the jump table mrbc emits after OP_ENTER.
//
// Control flow (if, while, rescue) is not reconstructed. In the default
// mode such instructions are kept as "# 0012 OP_JMP 0 3" comments; in
// strict mode they abort decompilation with ErrUnhandledOpcode.
package decompiler

import (
	"errors"
	"fmt"

	"github.com/shinji-kodama/mrbdec/internal/rite"
)

var (
	// ErrUnhandledOpcode is returned in strict mode for instructions that
	// have no Ruby source rendering.
	ErrUnhandledOpcode = errors.New("unhandled opcode")

	// ErrBadOperand is returned when an operand indexes past the irep's
	// symbol table, pool or children.
	ErrBadOperand = errors.New("operand out of range")
)

// DefaultIndent is the indentation used when Options.Indent is empty.
const DefaultIndent = "  "

// Options controls decompilation.
type Options struct {
	// Indent is the string used for one level of indentation.
	Indent string

	// Strict fails on instructions that cannot be expressed as Ruby
	// instead of emitting them as comments.
	Strict bool

	// Annotate adds an "# OP_ENTER: ..." comment to every method and
	// block body, recording the arity mrbc compiled.
	Annotate bool
}

// decodeError carries an error out of deeply nested operand lookups.
// Decompile recovers it and returns the wrapped error.
type decodeError struct {
	err error
}

// Decompile renders the whole file as Ruby source.
func Decompile(f *rite.File, opts Options) (src string, err error) {
	if f == nil || f.Root == nil {
		return "", fmt.Errorf("%w: empty file", ErrBadOperand)
	}
	if opts.Indent == "" {
		opts.Indent = DefaultIndent
	}

	defer func() {
		if rec := recover(); rec != nil {
			de, ok := rec.(*decodeError)
			if !ok {
				panic(rec)
			}
			src, err = "", de.err
		}
	}()

	main := newReader(&opts, f.Root, nil, nil, scopeMain, &mainClass{name: "Object"})
	if err := main.run(0, len(main.code)); err != nil {
		return "", err
	}

	fm := &formatter{indent: opts.Indent, annotate: opts.Annotate}
	return fm.body(main.statements(), 0), nil
}
