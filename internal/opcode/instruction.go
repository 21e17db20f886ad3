package opcode

import (
	"fmt"
)

// Operand field limits for the 1.x encoding.
const (
	MaxA   = 0x1ff
	MaxB   = 0x1ff
	MaxC   = 0x7f
	MaxBx  = 0xffff
	MaxSBx = MaxBx >> 1
	MaxAx  = 0x1ffffff
	MaxBz  = 0x3fff
	MaxCz  = 0x3
)

// Instruction is a decoded instruction word. Every operand view is
// populated regardless of the opcode's layout; Format tells which views
// are meaningful.
type Instruction struct {
	// Word is the raw 32-bit instruction.
	Word uint32

	// Op is the opcode, normalized to OP_UNKNOWN when out of range.
	Op Op

	A   int
	B   int
	C   int
	Bx  int
	SBx int
	Ax  int
	Bz  int
	Cz  int
}

// Decode splits an instruction word into its operand views.
func Decode(word uint32) Instruction {
	bx := int((word >> 7) & MaxBx)
	return Instruction{
		Word: word,
		Op:   normalize(Op(word & 0x7f)),
		A:    int((word >> 23) & MaxA),
		B:    int((word >> 14) & MaxB),
		C:    int((word >> 7) & MaxC),
		Bx:   bx,
		SBx:  bx - MaxSBx,
		Ax:   int((word >> 7) & MaxAx),
		Bz:   int((word >> 9) & MaxBz),
		Cz:   int((word >> 7) & MaxCz),
	}
}

// DecodeAll decodes a whole instruction sequence.
func DecodeAll(words []uint32) []Instruction {
	out := make([]Instruction, len(words))
	for i, w := range words {
		out[i] = Decode(w)
	}
	return out
}

// ABC encodes an ABC-layout instruction.
func ABC(op Op, a, b, c int) uint32 {
	return uint32(op)&0x7f |
		uint32(a&MaxA)<<23 |
		uint32(b&MaxB)<<14 |
		uint32(c&MaxC)<<7
}

// ABx encodes an ABx-layout instruction.
func ABx(op Op, a, bx int) uint32 {
	return uint32(op)&0x7f |
		uint32(a&MaxA)<<23 |
		uint32(bx&MaxBx)<<7
}

// AsBx encodes an AsBx-layout instruction; sbx is the signed jump offset.
func AsBx(op Op, a, sbx int) uint32 {
	return ABx(op, a, sbx+MaxSBx)
}

// Ax encodes an Ax-layout instruction.
func Ax(op Op, ax int) uint32 {
	return uint32(op)&0x7f | uint32(ax&MaxAx)<<7
}

// ABzCz encodes an ABzCz-layout instruction.
func ABzCz(op Op, a, bz, cz int) uint32 {
	return uint32(op)&0x7f |
		uint32(a&MaxA)<<23 |
		uint32(bz&MaxBz)<<9 |
		uint32(cz&MaxCz)<<7
}

// String renders the instruction as "NAME operands" with operands in hex,
// the usual mruby dump format. OP_ENTER shows its decoded
// argument specification instead of the raw Ax value.
func (in Instruction) String() string {
	name := in.Op.String()
	if in.Op == OP_ENTER {
		return fmt.Sprintf("%s  %s", name, DecodeAspec(in.Ax).Fields())
	}
	switch in.Op.Format() {
	case FormatABC:
		return fmt.Sprintf("%s %x %x %x", name, in.A, in.B, in.C)
	case FormatABx:
		return fmt.Sprintf("%s %x %x", name, in.A, in.Bx)
	case FormatAsBx:
		if in.SBx < 0 {
			return fmt.Sprintf("%s %x -%x", name, in.A, -in.SBx)
		}
		return fmt.Sprintf("%s %x %x", name, in.A, in.SBx)
	case FormatAx:
		return fmt.Sprintf("%s %x", name, in.Ax)
	case FormatABzCz:
		return fmt.Sprintf("%s %x %x %x", name, in.A, in.Bz, in.Cz)
	default:
		return name
	}
}

// JumpTarget returns the absolute index a relative jump at pc lands on.
func (in Instruction) JumpTarget(pc int) int {
	return pc + in.SBx
}

// IsJump reports whether the instruction transfers control by sBx.
func (in Instruction) IsJump() bool {
	switch in.Op {
	case OP_JMP, OP_JMPIF, OP_JMPNOT, OP_ONERR:
		return true
	default:
		return false
	}
}
