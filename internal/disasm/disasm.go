// Package disasm renders parsed RITE binaries as human-readable
// instruction listings.
//
// Each irep is printed with its register counts, literal pool, symbol
// table and local variable names, followed by one line per instruction:
//
//	irep #0.1 nlocals=3 nregs=6 children=0 ilen=4
//	  locals: r1=a r2=b
//	  0000 OP_ENTER  req: 2 opt: 0 rest: 0 post: 0 key: 0 kdict: 0 block: 0
//	  0001 OP_ADD 3 0 1                ; :+ a
//
// Operands that index the symbol table, the pool or a child irep are
// resolved in a trailing comment.
package disasm

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/shinji-kodama/mrbdec/internal/opcode"
	"github.com/shinji-kodama/mrbdec/internal/rite"
)

// commentColumn is the column trailing operand comments are aligned to.
const commentColumn = 32

// Options controls the listing.
type Options struct {
	// Only restricts the instruction lines to these opcodes. Irep headers,
	// pools and symbol tables are always printed.
	Only []opcode.Op
}

// Write prints the listing of every irep in f to w.
func Write(w io.Writer, f *rite.File, opts Options) error {
	bw := bufio.NewWriter(w)
	var err error
	f.Root.Walk(func(path []int, irep *rite.Irep) {
		if err != nil {
			return
		}
		err = writeIrep(bw, path, irep, opts)
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

// String returns the listing of f as a string.
func String(f *rite.File, opts Options) string {
	var sb strings.Builder
	// strings.Builder writes never fail.
	_ = Write(&sb, f, opts)
	return sb.String()
}

// PathString renders an irep path as "#0", "#0.1.2" and so on.
func PathString(path []int) string {
	parts := []string{"0"}
	for _, p := range path {
		parts = append(parts, strconv.Itoa(p))
	}
	return "#" + strings.Join(parts, ".")
}

func writeIrep(w io.Writer, path []int, irep *rite.Irep, opts Options) error {
	indent := strings.Repeat("  ", len(path))
	body := indent + "  "

	if _, err := fmt.Fprintf(w, "%sirep %s nlocals=%d nregs=%d children=%d ilen=%d\n",
		indent, PathString(path), irep.NumLocals, irep.NumRegs, len(irep.Children), len(irep.Code)); err != nil {
		return err
	}

	if len(irep.Pool) > 0 {
		if _, err := fmt.Fprintf(w, "%spool:\n", body); err != nil {
			return err
		}
		for i, p := range irep.Pool {
			if _, err := fmt.Fprintf(w, "%s  [%d] %s %s\n", body, i, p.Type, strconv.Quote(p.Value)); err != nil {
				return err
			}
		}
	}
	if len(irep.Symbols) > 0 {
		if _, err := fmt.Fprintf(w, "%ssymbols:\n", body); err != nil {
			return err
		}
		for i, s := range irep.Symbols {
			if _, err := fmt.Fprintf(w, "%s  [%d] %s\n", body, i, s); err != nil {
				return err
			}
		}
	}
	if len(irep.Locals) > 0 {
		parts := make([]string, 0, len(irep.Locals))
		for _, l := range irep.Locals {
			name := l.Name
			if name == "" {
				name = "_"
			}
			parts = append(parts, fmt.Sprintf("r%d=%s", l.Register, name))
		}
		if _, err := fmt.Fprintf(w, "%slocals: %s\n", body, strings.Join(parts, " ")); err != nil {
			return err
		}
	}

	for pc, word := range irep.Code {
		in := opcode.Decode(word)
		if len(opts.Only) > 0 && !slices.Contains(opts.Only, in.Op) {
			continue
		}
		line := fmt.Sprintf("%04d %s", pc, in)
		if c := comment(path, pc, in, irep); c != "" {
			line = pad(line, commentColumn) + "; " + c
		}
		if _, err := fmt.Fprintf(w, "%s%s\n", body, line); err != nil {
			return err
		}
	}
	return nil
}

func pad(s string, col int) string {
	if len(s) >= col {
		return s + " "
	}
	return s + strings.Repeat(" ", col-len(s))
}

// comment resolves the operands of in against the irep's tables.
func comment(path []int, pc int, in opcode.Instruction, irep *rite.Irep) string {
	var parts []string
	sym := func(i int) {
		if i >= 0 && i < len(irep.Symbols) {
			parts = append(parts, ":"+irep.Symbols[i])
		}
	}
	local := func(reg int) {
		if name, ok := irep.LocalName(reg); ok {
			parts = append(parts, name)
		}
	}

	if in.IsJump() {
		return fmt.Sprintf("-> %04d", in.JumpTarget(pc))
	}

	switch in.Op {
	case opcode.OP_LOADL, opcode.OP_STRING:
		if in.Bx < len(irep.Pool) {
			parts = append(parts, strconv.Quote(irep.Pool[in.Bx].Value))
		}
		local(in.A)
	case opcode.OP_LOADSYM,
		opcode.OP_GETGLOBAL, opcode.OP_SETGLOBAL,
		opcode.OP_GETSPECIAL, opcode.OP_SETSPECIAL,
		opcode.OP_GETIV, opcode.OP_SETIV,
		opcode.OP_GETCV, opcode.OP_SETCV,
		opcode.OP_GETCONST, opcode.OP_SETCONST,
		opcode.OP_GETMCNST, opcode.OP_SETMCNST:
		sym(in.Bx)
		local(in.A)
	case opcode.OP_SEND, opcode.OP_SENDB, opcode.OP_FSEND,
		opcode.OP_ADD, opcode.OP_ADDI, opcode.OP_SUB, opcode.OP_SUBI,
		opcode.OP_MUL, opcode.OP_DIV,
		opcode.OP_EQ, opcode.OP_LT, opcode.OP_LE, opcode.OP_GT, opcode.OP_GE,
		opcode.OP_CLASS, opcode.OP_MODULE, opcode.OP_METHOD,
		opcode.OP_KARG, opcode.OP_TAILCALL:
		sym(in.B)
		local(in.A)
	case opcode.OP_MOVE:
		local(in.A)
		local(in.B)
	case opcode.OP_LAMBDA:
		parts = append(parts, "irep "+PathString(append(append([]int(nil), path...), in.Bz)))
	case opcode.OP_EXEC:
		parts = append(parts, "irep "+PathString(append(append([]int(nil), path...), in.Bx)))
	case opcode.OP_RETURN:
		switch in.B {
		case opcode.ReturnBreak:
			parts = append(parts, "break")
		case opcode.ReturnReturn:
			parts = append(parts, "return")
		}
		local(in.A)
	default:
		if in.Op.Format() == opcode.FormatABC {
			local(in.A)
		}
	}
	return strings.Join(parts, " ")
}
