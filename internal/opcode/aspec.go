package opcode

import "github.com/shinji-kodama/mrbdec/internal/model"

// Bit layout of the OP_ENTER Ax operand (mruby MRB_ASPEC_* macros).
const (
	aspecReqShift  = 18
	aspecOptShift  = 13
	aspecRestShift = 12
	aspecPostShift = 7
	aspecKeyShift  = 2
	aspecDictShift = 1

	aspecCountMask = 0x1f
)

// DecodeAspec converts an OP_ENTER Ax operand into an Arity.
func DecodeAspec(ax int) model.Arity {
	return model.Arity{
		Req:   (ax >> aspecReqShift) & aspecCountMask,
		Opt:   (ax >> aspecOptShift) & aspecCountMask,
		Rest:  (ax >> aspecRestShift) & 1,
		Post:  (ax >> aspecPostShift) & aspecCountMask,
		Key:   (ax >> aspecKeyShift) & aspecCountMask,
		KDict: (ax >> aspecDictShift) & 1,
		Block: ax & 1,
	}
}

// EncodeAspec is the inverse of DecodeAspec. Counts above 31 and flags
// above 1 are truncated to the field width, as mrbc does.
func EncodeAspec(a model.Arity) int {
	return (a.Req&aspecCountMask)<<aspecReqShift |
		(a.Opt&aspecCountMask)<<aspecOptShift |
		(a.Rest&1)<<aspecRestShift |
		(a.Post&aspecCountMask)<<aspecPostShift |
		(a.Key&aspecCountMask)<<aspecKeyShift |
		(a.KDict&1)<<aspecDictShift |
		a.Block&1
}

// Enter builds an OP_ENTER instruction word for the given arity.
func Enter(a model.Arity) uint32 {
	return Ax(OP_ENTER, EncodeAspec(a))
}
