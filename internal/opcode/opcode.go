// Package opcode describes the mruby 1.x virtual machine instruction set.
//
// Every instruction is a single big-endian 32-bit word. The low 7 bits hold
// the opcode number; the remaining 25 bits carry operands in one of five
// layouts:
//
//	ABC    A:9 B:9 C:7
//	ABx    A:9 Bx:16
//	AsBx   A:9 sBx:16 (Bx biased by 0x7fff)
//	Ax     Ax:25
//	ABzCz  A:9 Bz:14 Cz:2
//
// The package decodes and encodes those words, renders them for listings,
// and decodes the OP_ENTER argument specification into a model.Arity.
package opcode

// Op is an mruby opcode number.
type Op uint8

// Format is the operand layout of an opcode.
type Format uint8

const (
	FormatNone Format = iota
	FormatABC
	FormatABx
	FormatAsBx
	FormatAx
	FormatABzCz
)

// String returns the layout name.
func (f Format) String() string {
	switch f {
	case FormatABC:
		return "ABC"
	case FormatABx:
		return "ABx"
	case FormatAsBx:
		return "AsBx"
	case FormatAx:
		return "Ax"
	case FormatABzCz:
		return "ABzCz"
	default:
		return "none"
	}
}

// The opcode numbers follow mruby's opcode.h for the 1.x series.
const (
	OP_NOP Op = iota
	OP_MOVE
	OP_LOADL
	OP_LOADI
	OP_LOADSYM
	OP_LOADNIL
	OP_LOADSELF
	OP_LOADT
	OP_LOADF

	OP_GETGLOBAL
	OP_SETGLOBAL
	OP_GETSPECIAL
	OP_SETSPECIAL
	OP_GETIV
	OP_SETIV
	OP_GETCV
	OP_SETCV
	OP_GETCONST
	OP_SETCONST
	OP_GETMCNST
	OP_SETMCNST
	OP_GETUPVAR
	OP_SETUPVAR

	OP_JMP
	OP_JMPIF
	OP_JMPNOT
	OP_ONERR
	OP_RESCUE
	OP_POPERR
	OP_RAISE
	OP_EPUSH
	OP_EPOP

	OP_SEND
	OP_SENDB
	OP_FSEND
	OP_CALL
	OP_SUPER
	OP_ARGARY
	OP_ENTER
	OP_KARG
	OP_KDICT

	OP_RETURN
	OP_TAILCALL
	OP_BLKPUSH

	OP_ADD
	OP_ADDI
	OP_SUB
	OP_SUBI
	OP_MUL
	OP_DIV
	OP_EQ
	OP_LT
	OP_LE
	OP_GT
	OP_GE

	OP_ARRAY
	OP_ARYCAT
	OP_ARYPUSH
	OP_AREF
	OP_ASET
	OP_APOST

	OP_STRING
	OP_STRCAT

	OP_HASH
	OP_LAMBDA
	OP_RANGE

	OP_OCLASS
	OP_CLASS
	OP_MODULE
	OP_EXEC
	OP_METHOD
	OP_SCLASS
	OP_TCLASS

	OP_DEBUG
	OP_STOP
	OP_ERR

	OP_RSVD1
	OP_RSVD2
	OP_RSVD3
	OP_RSVD4
	OP_RSVD5

	// OP_UNKNOWN stands in for any opcode number past the table.
	OP_UNKNOWN
)

// Count is the number of table entries, OP_UNKNOWN included.
const Count = int(OP_UNKNOWN) + 1

// Return modes carried in operand B of OP_RETURN.
const (
	ReturnNormal = 0
	ReturnBreak  = 1
	ReturnReturn = 2
)

type info struct {
	name   string
	format Format
}

var table = [Count]info{
	OP_NOP:      {"OP_NOP", FormatNone},
	OP_MOVE:     {"OP_MOVE", FormatABC},
	OP_LOADL:    {"OP_LOADL", FormatABx},
	OP_LOADI:    {"OP_LOADI", FormatAsBx},
	OP_LOADSYM:  {"OP_LOADSYM", FormatABx},
	OP_LOADNIL:  {"OP_LOADNIL", FormatABC},
	OP_LOADSELF: {"OP_LOADSELF", FormatABC},
	OP_LOADT:    {"OP_LOADT", FormatABC},
	OP_LOADF:    {"OP_LOADF", FormatABC},

	OP_GETGLOBAL:  {"OP_GETGLOBAL", FormatABx},
	OP_SETGLOBAL:  {"OP_SETGLOBAL", FormatABx},
	OP_GETSPECIAL: {"OP_GETSPECIAL", FormatABx},
	OP_SETSPECIAL: {"OP_SETSPECIAL", FormatABx},
	OP_GETIV:      {"OP_GETIV", FormatABx},
	OP_SETIV:      {"OP_SETIV", FormatABx},
	OP_GETCV:      {"OP_GETCV", FormatABx},
	OP_SETCV:      {"OP_SETCV", FormatABx},
	OP_GETCONST:   {"OP_GETCONST", FormatABx},
	OP_SETCONST:   {"OP_SETCONST", FormatABx},
	OP_GETMCNST:   {"OP_GETMCNST", FormatABx},
	OP_SETMCNST:   {"OP_SETMCNST", FormatABx},
	OP_GETUPVAR:   {"OP_GETUPVAR", FormatABC},
	OP_SETUPVAR:   {"OP_SETUPVAR", FormatABC},

	OP_JMP:    {"OP_JMP", FormatAsBx},
	OP_JMPIF:  {"OP_JMPIF", FormatAsBx},
	OP_JMPNOT: {"OP_JMPNOT", FormatAsBx},
	OP_ONERR:  {"OP_ONERR", FormatAsBx},
	OP_RESCUE: {"OP_RESCUE", FormatABC},
	OP_POPERR: {"OP_POPERR", FormatABC},
	OP_RAISE:  {"OP_RAISE", FormatABC},
	OP_EPUSH:  {"OP_EPUSH", FormatABx},
	OP_EPOP:   {"OP_EPOP", FormatABC},

	OP_SEND:   {"OP_SEND", FormatABC},
	OP_SENDB:  {"OP_SENDB", FormatABC},
	OP_FSEND:  {"OP_FSEND", FormatABC},
	OP_CALL:   {"OP_CALL", FormatABC},
	OP_SUPER:  {"OP_SUPER", FormatABC},
	OP_ARGARY: {"OP_ARGARY", FormatABx},
	OP_ENTER:  {"OP_ENTER", FormatAx},
	OP_KARG:   {"OP_KARG", FormatABC},
	OP_KDICT:  {"OP_KDICT", FormatABC},

	OP_RETURN:   {"OP_RETURN", FormatABC},
	OP_TAILCALL: {"OP_TAILCALL", FormatABC},
	OP_BLKPUSH:  {"OP_BLKPUSH", FormatABx},

	OP_ADD:  {"OP_ADD", FormatABC},
	OP_ADDI: {"OP_ADDI", FormatABC},
	OP_SUB:  {"OP_SUB", FormatABC},
	OP_SUBI: {"OP_SUBI", FormatABC},
	OP_MUL:  {"OP_MUL", FormatABC},
	OP_DIV:  {"OP_DIV", FormatABC},
	OP_EQ:   {"OP_EQ", FormatABC},
	OP_LT:   {"OP_LT", FormatABC},
	OP_LE:   {"OP_LE", FormatABC},
	OP_GT:   {"OP_GT", FormatABC},
	OP_GE:   {"OP_GE", FormatABC},

	OP_ARRAY:   {"OP_ARRAY", FormatABC},
	OP_ARYCAT:  {"OP_ARYCAT", FormatABC},
	OP_ARYPUSH: {"OP_ARYPUSH", FormatABC},
	OP_AREF:    {"OP_AREF", FormatABC},
	OP_ASET:    {"OP_ASET", FormatABC},
	OP_APOST:   {"OP_APOST", FormatABC},

	OP_STRING: {"OP_STRING", FormatABx},
	OP_STRCAT: {"OP_STRCAT", FormatABC},

	OP_HASH:   {"OP_HASH", FormatABC},
	OP_LAMBDA: {"OP_LAMBDA", FormatABzCz},
	OP_RANGE:  {"OP_RANGE", FormatABC},

	OP_OCLASS: {"OP_OCLASS", FormatABC},
	OP_CLASS:  {"OP_CLASS", FormatABC},
	OP_MODULE: {"OP_MODULE", FormatABC},
	OP_EXEC:   {"OP_EXEC", FormatABx},
	OP_METHOD: {"OP_METHOD", FormatABC},
	OP_SCLASS: {"OP_SCLASS", FormatABC},
	OP_TCLASS: {"OP_TCLASS", FormatABC},

	OP_DEBUG: {"OP_DEBUG", FormatABC},
	OP_STOP:  {"OP_STOP", FormatABC},
	OP_ERR:   {"OP_ERR", FormatABx},

	OP_RSVD1: {"OP_RSVD1", FormatNone},
	OP_RSVD2: {"OP_RSVD2", FormatNone},
	OP_RSVD3: {"OP_RSVD3", FormatNone},
	OP_RSVD4: {"OP_RSVD4", FormatNone},
	OP_RSVD5: {"OP_RSVD5", FormatNone},

	OP_UNKNOWN: {"OP_UNKNOWN", FormatNone},
}

// normalize maps out-of-table opcode numbers to OP_UNKNOWN.
func normalize(op Op) Op {
	if int(op) >= Count {
		return OP_UNKNOWN
	}
	return op
}

// String returns the mnemonic, e.g. "OP_SEND".
func (op Op) String() string {
	return table[normalize(op)].name
}

// Format returns the operand layout of the opcode.
func (op Op) Format() Format {
	return table[normalize(op)].format
}

// All returns every opcode in table order, OP_UNKNOWN last.
func All() []Op {
	ops := make([]Op, Count)
	for i := range ops {
		ops[i] = Op(i)
	}
	return ops
}
